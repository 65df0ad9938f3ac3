package metrics

import (
	"time"

	"github.com/policyworks/quotaledger/internal/observability"
)

// Host metric names
const (
	RulesLoadedTotal       = "rules_loaded_total"
	RuleEvaluationDuration = "rule_evaluation_duration_ms"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordRuleLoaded counts one configured rule built at startup.
func RecordRuleLoaded(ruleName string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RulesLoadedTotal,
			1,
			map[string]string{"rule_name": ruleName},
		)
	}
}

// RecordRuleEvaluation records how long one approval took.
func RecordRuleEvaluation(ruleName string, approved bool, duration time.Duration) {
	result := "approved"
	if !approved {
		result = "denied"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			RuleEvaluationDuration,
			duration,
			map[string]string{
				"rule_name": ruleName,
				"result":    result,
			},
		)
	}
}

// RecordHealthCheck records a health check execution.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{"check": checkName},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp).
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}

// SetServerUptime records the server uptime in seconds.
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerUptime, float64(seconds), nil)
	}
}
