package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyworks/quotaledger/internal/config"
	apperrors "github.com/policyworks/quotaledger/internal/errors"
	"github.com/policyworks/quotaledger/internal/rules"
	"github.com/policyworks/quotaledger/internal/server/middleware"
)

func testConfig() config.ServerConfig {
	return config.ServerConfig{Host: "127.0.0.1", Port: 0}
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(testConfig(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
	assert.Equal(t, body.Error.RequestID, rec.Header().Get(middleware.RequestIDHeader))
}

func TestServerMethodNotAllowed(t *testing.T) {
	srv := New(testConfig(), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rules/uploads/approve", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerRoutesRuleAPI(t *testing.T) {
	set, err := rules.LoadSet(context.Background(), nil, []map[string]any{
		{"rule": rules.ThrottleRuleName, "rule_id": "uploads", "per_hour": 1},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = set.Close() })

	h := New(testConfig(), set).Handler()
	body := `{"profile_id":"beef"}`

	post := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		return rec
	}

	rec := post("/v1/rules/uploads/approve")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rule_id":"uploads","approved":true}`, rec.Body.String())

	rec = post("/v1/rules/uploads/use")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = post("/v1/rules/uploads/approve")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rule_id":"uploads","approved":false}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rules", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"uploads"`)
}

func TestServerAddr(t *testing.T) {
	srv := New(config.ServerConfig{Host: "::1", Port: 8181}, nil)
	assert.Equal(t, "[::1]:8181", srv.Addr())
	assert.Equal(t, 8181, srv.Port())
	assert.NoError(t, srv.Shutdown(context.Background()))
}
