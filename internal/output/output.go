// Package output renders ledger rows and rule listings for the CLI.
package output

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/policyworks/quotaledger/internal/core"
	"github.com/policyworks/quotaledger/internal/core/ledger"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// LedgerRow is one decoded ledger entry. Rows that do not parse as ledger
// records keep their raw text and set Malformed.
type LedgerRow struct {
	Key       string    `json:"key"`
	RuleID    string    `json:"rule_id,omitempty"`
	ProfileID string    `json:"profile_id,omitempty"`
	HourCount int       `json:"hour_count"`
	DayCount  int       `json:"day_count"`
	Locked    bool      `json:"locked"`
	Updated   time.Time `json:"updated,omitempty"`
	Malformed bool      `json:"malformed,omitempty"`
	Raw       string    `json:"raw,omitempty"`
}

// RowFromEntry decodes entry with codec. Counts reflect rollover at the
// codec's clock, so a row last touched yesterday shows zero.
func RowFromEntry(entry core.Entry, codec ledger.Codec) LedgerRow {
	row := LedgerRow{Key: entry.Key}
	if key, ok := core.ParseStorageKey(entry.Key); ok {
		row.RuleID = key.RuleID
		row.ProfileID = hex.EncodeToString(key.CallerID)
	}

	rec, err := codec.Decode(entry.Value)
	if err != nil {
		row.Malformed = true
		row.Raw = entry.Value.String()
		return row
	}
	row.HourCount = rec.HourCount
	row.DayCount = rec.DayCount
	row.Locked = rec.Locked()
	row.Updated = rec.Timestamp
	return row
}

// RuleRow describes one configured rule.
type RuleRow struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Quota bool   `json:"quota"`
}

// Formatter renders ledger rows and rules.
type Formatter interface {
	FormatRows(rows []LedgerRow) (string, error)
	FormatRules(rules []RuleRow) (string, error)
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func lockLabel(locked bool) string {
	if locked {
		return "locked"
	}
	return "-"
}

func updatedLabel(row LedgerRow) string {
	if row.Malformed {
		return "malformed"
	}
	if row.Updated.IsZero() {
		return "-"
	}
	return row.Updated.UTC().Format(time.RFC3339)
}
