package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyworks/quotaledger/internal/core/store"
	"github.com/policyworks/quotaledger/internal/rules"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

func TestHealthHandlerReturnsHealthyStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("ok", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "healthy", resp.Checks["ok"])
}

func TestHealthHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("ledger:uploads", stubChecker{err: errors.New("down")})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Error struct {
			Code    string                 `json:"code"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)

	checks, ok := resp.Error.Details["checks"].(map[string]interface{})
	require.True(t, ok, "checks in details")
	assert.Equal(t, "unhealthy", checks["ledger:uploads"])
}

func TestProbesShareChecks(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("ok", stubChecker{})

	for name, handler := range map[string]http.HandlerFunc{
		"live":    manager.LivenessHandler,
		"ready":   manager.ReadinessHandler,
		"startup": manager.StartupHandler,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(http.MethodGet, "/health/"+name, nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var resp ProbeResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "healthy", resp.Status)
		})
	}
}

func TestOverallStatusTreatsTimeoutAsDegraded(t *testing.T) {
	assert.Equal(t, "degraded", overallStatus(map[string]string{"db": "timeout"}))
	assert.Equal(t, "unhealthy", overallStatus(map[string]string{"a": "timeout", "b": "unhealthy"}))
	assert.Equal(t, "healthy", overallStatus(nil))
}

func TestGlobalHandlersWithoutManager(t *testing.T) {
	original := globalHealthManager
	globalHealthManager = nil
	t.Cleanup(func() { globalHealthManager = original })

	rec := httptest.NewRecorder()
	ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLedgerChecker(t *testing.T) {
	mem := store.NewMemoryStore()
	require.NoError(t, LedgerChecker{Backend: mem}.CheckHealth(context.Background()))

	_, found, err := mem.Get(context.Background(), store.SelfTestKey)
	require.NoError(t, err)
	assert.False(t, found, "self-test row is removed")
}

func TestRegisterRuleCheckers(t *testing.T) {
	set, err := rules.LoadSet(context.Background(), nil, []map[string]any{
		{"rule": rules.ThrottleRuleName, "rule_id": "uploads", "per_day": 5},
		{"rule": rules.ApproveRuleName, "rule_id": "open"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = set.Close() })

	manager := NewHealthManager("dev")
	manager.RegisterRuleCheckers(set)

	checks := manager.runHealthChecks(context.Background())
	assert.Equal(t, map[string]string{"ledger:uploads": "healthy"}, checks)
}
