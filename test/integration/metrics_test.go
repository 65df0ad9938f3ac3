package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyworks/quotaledger/internal/config"
	"github.com/policyworks/quotaledger/internal/observability"
	"github.com/policyworks/quotaledger/internal/rules"
	"github.com/policyworks/quotaledger/internal/server"
	"github.com/policyworks/quotaledger/internal/server/handlers"
)

// initMetricsOrSkip starts the Prometheus exporter and stops it when the test
// ends. Sandboxes that refuse loopback binds skip the test.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	err := observability.InitMetrics(config.MetricsConfig{Enabled: true, Port: 0}, "test")
	if bindDenied(err) {
		t.Skipf("metrics exporter cannot bind: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

func bindDenied(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "not permitted")
}

// newTestServer serves the quota API for set on an IPv4 loopback listener.
func newTestServer(t *testing.T, set *rules.Set) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := server.New(config.ServerConfig{Host: "127.0.0.1"}, set)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if bindDenied(err) {
		t.Skipf("loopback listener refused: %v", err)
	}
	require.NoError(t, err)

	ts := &httptest.Server{Listener: listener, Config: &http.Server{Handler: srv.Handler()}}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func loadUploads(t *testing.T, perDay int) *rules.Set {
	t.Helper()
	set, err := rules.LoadSet(context.Background(), rules.Default, []map[string]any{
		{"rule": rules.ThrottleRuleName, "rule_id": "uploads", "per_hour": perDay, "per_day": perDay},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = set.Close() })
	return set
}

func postJSON(t *testing.T, client *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := client.Post(url, "application/json", strings.NewReader(`{"profile_id":"c0ffee","request_type":"upload"}`))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestQuotaRoutesServeWithMetricsDisabled(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", config.LoggingConfig{Level: "info"}, "test")

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})
	t.Setenv("QUOTALEDGER_METRICS_ENABLED", "false")

	handlers.InitHealthManager("test")
	ts, client := newTestServer(t, loadUploads(t, 1))

	resp := postJSON(t, client, ts.URL+"/v1/rules/uploads/approve")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, client, ts.URL+"/v1/rules/uploads/use")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestQuotaFlowMetrics(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", config.LoggingConfig{Level: "info"}, "test")

	initMetricsOrSkip(t)

	handlers.InitHealthManager("test")
	ts, client := newTestServer(t, loadUploads(t, 2))

	approve := func() bool {
		resp := postJSON(t, client, ts.URL+"/v1/rules/uploads/approve")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var approval handlers.ApprovalResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&approval))
		return approval.Approved
	}

	require.True(t, approve())
	assert.False(t, approve(), "the first approval is still unused")
	assert.Equal(t, http.StatusNoContent, postJSON(t, client, ts.URL+"/v1/rules/uploads/use").StatusCode)
	assert.Equal(t, http.StatusConflict, postJSON(t, client, ts.URL+"/v1/rules/uploads/use").StatusCode)

	var approvals []bool
	for i := 0; i < 2; i++ {
		ok := approve()
		approvals = append(approvals, ok)
		if ok {
			assert.Equal(t, http.StatusNoContent, postJSON(t, client, ts.URL+"/v1/rules/uploads/use").StatusCode)
		}
	}
	assert.Equal(t, []bool{true, false}, approvals)

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	metricsBody, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain; version=0.0.4"),
		"Expected Prometheus content type, got: %s", resp.Header.Get("Content-Type"))

	content := string(metricsBody)
	assert.Contains(t, content, "test_quota_decisions_total")
	assert.Contains(t, content, "test_quota_consumed_total")
	assert.Contains(t, content, "test_ledger_lock_contention_total")
	assert.Contains(t, content, "test_http_requests_total")
}
