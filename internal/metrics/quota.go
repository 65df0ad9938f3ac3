package metrics

import (
	"github.com/policyworks/quotaledger/internal/observability"
)

// Quota metric names
const (
	QuotaDecisionsTotal       = "quota_decisions_total"
	QuotaConsumedTotal        = "quota_consumed_total"
	LedgerRecoveriesTotal     = "ledger_recoveries_total"
	LedgerLockContentionTotal = "ledger_lock_contention_total"
)

// Decision labels for QuotaDecisionsTotal
const (
	DecisionApproved = "approved"
	DecisionDenied   = "denied"
	DecisionLocked   = "locked"
)

// Recovery kinds for LedgerRecoveriesTotal
const (
	RecoveryMalformedRecord = "malformed_record"
	RecoveryBackendReset    = "backend_reset"
)

// RecordQuotaDecision records the outcome of one approval check.
func RecordQuotaDecision(rule string, decision string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			QuotaDecisionsTotal,
			1,
			map[string]string{
				"rule":     rule,
				"decision": decision,
			},
		)
	}
}

// RecordQuotaConsumed records one unit of quota charged to a caller.
func RecordQuotaConsumed(rule string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			QuotaConsumedTotal,
			1,
			map[string]string{"rule": rule},
		)
	}
}

// RecordLedgerRecovery records a ledger row or backend reset after corruption.
func RecordLedgerRecovery(kind string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			LedgerRecoveriesTotal,
			1,
			map[string]string{"kind": kind},
		)
	}
}

// RecordLockContention records a lock attempt that found the row held elsewhere.
func RecordLockContention(rule string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			LedgerLockContentionTotal,
			1,
			map[string]string{"rule": rule},
		)
	}
}
