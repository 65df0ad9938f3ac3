package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/policyworks/quotaledger/internal/core"
	"github.com/policyworks/quotaledger/internal/core/ledger"
	"github.com/policyworks/quotaledger/internal/core/store"
	"github.com/policyworks/quotaledger/internal/metrics"
	"github.com/policyworks/quotaledger/internal/rules"
)

// Check results
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
	statusTimeout   = "timeout"
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthManager manages health checks and probe states
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
	}
}

// RegisterChecker registers a health checker
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, c := range hm.checkers {
		checkers[name] = c
	}
	hm.mu.RUnlock()
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	for _, name := range names {
		if ctx.Err() != nil {
			checks[name] = statusTimeout
			continue
		}
		start := time.Now()
		err := checkers[name].CheckHealth(ctx)
		metrics.RecordHealthCheck(name, err == nil, time.Since(start))
		if err != nil {
			checks[name] = statusUnhealthy
		} else {
			checks[name] = statusHealthy
		}
	}
	return checks
}

func overallStatus(checks map[string]string) string {
	degraded := false
	for _, status := range checks {
		if status == statusUnhealthy {
			return statusUnhealthy
		}
		if status == statusDegraded || status == statusTimeout {
			degraded = true
		}
	}
	if degraded {
		return statusDegraded
	}
	return statusHealthy
}

// probe runs the checks under timeout and writes either body or a 503 envelope.
func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, probe, message string, timeout time.Duration, body func(status string, checks map[string]string) any) {
	checkCtx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks := hm.runHealthChecks(checkCtx)
	status := overallStatus(checks)

	if status == statusUnhealthy {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message)
		respondWithError(w, r, enrichHealthEnvelope(envelope, probe, status, checks))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body(status, checks))
}

func probeBody(status string, _ map[string]string) any {
	return ProbeResponse{Status: status, Timestamp: time.Now().UTC()}
}

// HealthHandler reports every check by name.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "", "aggregate health check failed", 5*time.Second, func(status string, checks map[string]string) any {
		return HealthResponse{
			Status:    status,
			Version:   hm.version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		}
	})
}

// LivenessHandler indicates the process is running.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "live", "liveness probe failed", 2*time.Second, probeBody)
}

// ReadinessHandler indicates every ledger store answers.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "ready", "readiness probe failed", 5*time.Second, probeBody)
}

// StartupHandler indicates the rule set finished loading.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "startup", "startup probe failed", 3*time.Second, probeBody)
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	details := map[string]interface{}{"status": status}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	if probe != "" {
		details["probe"] = probe
	}
	envelope = envelope.WithDetails(details)

	contextData := map[string]interface{}{"status": status}
	if probe != "" {
		contextData["probe"] = probe
	}
	var unhealthy []string
	for name, result := range checks {
		if result != statusHealthy {
			unhealthy = append(unhealthy, name)
		}
	}
	if len(unhealthy) > 0 {
		sort.Strings(unhealthy)
		contextData["unhealthy_checks"] = unhealthy
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}

// LedgerChecker round-trips the store self-test row through one rule's
// ledger backend.
type LedgerChecker struct {
	Backend core.Backend
}

func (c LedgerChecker) CheckHealth(ctx context.Context) error {
	return store.SelfTest(ctx, c.Backend)
}

type ledgerRule interface {
	Ledger() *ledger.Ledger
}

// RegisterRuleCheckers adds a LedgerChecker for every quota rule in set,
// named "ledger:<rule id>".
func (hm *HealthManager) RegisterRuleCheckers(set *rules.Set) {
	if set == nil {
		return
	}
	for _, rule := range set.List() {
		lr, ok := rule.(ledgerRule)
		if !ok {
			continue
		}
		hm.RegisterChecker("ledger:"+rule.ID(), LedgerChecker{Backend: lr.Ledger().Backend()})
	}
}

var globalHealthManager *HealthManager

// InitHealthManager initializes the global health manager
func InitHealthManager(version string) *HealthManager {
	globalHealthManager = NewHealthManager(version)
	return globalHealthManager
}

// GetHealthManager returns the global health manager
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func withGlobalManager(probe string, serve func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if globalHealthManager != nil {
			serve(globalHealthManager, w, r)
			return
		}
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "health manager not initialized")
		respondWithError(w, r, enrichHealthEnvelope(envelope, probe, "unknown", nil))
	}
}

// Package-level handlers serve the global manager.
var (
	HealthHandler    = withGlobalManager("aggregate", (*HealthManager).HealthHandler)
	LivenessHandler  = withGlobalManager("live", (*HealthManager).LivenessHandler)
	ReadinessHandler = withGlobalManager("ready", (*HealthManager).ReadinessHandler)
	StartupHandler   = withGlobalManager("startup", (*HealthManager).StartupHandler)
)
