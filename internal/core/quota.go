package core

import (
	"encoding/hex"
	"strings"
	"time"
)

// LedgerKey identifies one ledger row: a rule instance and the caller it limits.
type LedgerKey struct {
	RuleID   string
	CallerID []byte
}

// StorageKey derives the backend key, hex(caller) + ":" + rule.
func (k LedgerKey) StorageKey() string {
	return hex.EncodeToString(k.CallerID) + ":" + k.RuleID
}

// ParseStorageKey splits a backend key back into its ledger key.
func ParseStorageKey(key string) (LedgerKey, bool) {
	callerHex, ruleID, ok := strings.Cut(key, ":")
	if !ok {
		return LedgerKey{}, false
	}
	caller, err := hex.DecodeString(callerHex)
	if err != nil {
		return LedgerKey{}, false
	}
	return LedgerKey{RuleID: ruleID, CallerID: caller}, true
}

// QuotaRecord is the per-key counter state kept by the ledger.
type QuotaRecord struct {
	Timestamp time.Time
	HourCount int
	DayCount  int
	// LockToken is empty when the row is not held.
	LockToken string
}

// Locked reports whether any owner holds the row.
func (r QuotaRecord) Locked() bool {
	return r.LockToken != ""
}
