package output

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policyworks/quotaledger/internal/core"
	"github.com/policyworks/quotaledger/internal/core/ledger"
)

var fixedNow = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func testCodec() ledger.Codec {
	return ledger.Codec{Now: func() time.Time { return fixedNow }, Location: time.UTC}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestRowFromEntry(t *testing.T) {
	codec := testCodec()
	key := core.LedgerKey{RuleID: "uploads", CallerID: []byte{0x0a, 0x0b}}

	value, err := codec.Encode(core.QuotaRecord{Timestamp: fixedNow.Add(-time.Minute), HourCount: 2, DayCount: 5}, "tok")
	require.NoError(t, err)

	row := RowFromEntry(core.Entry{Key: key.StorageKey(), Value: value}, codec)
	assert.Equal(t, "uploads", row.RuleID)
	assert.Equal(t, "0a0b", row.ProfileID)
	assert.Equal(t, 2, row.HourCount)
	assert.Equal(t, 5, row.DayCount)
	assert.True(t, row.Locked)
	assert.False(t, row.Malformed)

	t.Run("previous day rolls over", func(t *testing.T) {
		old, err := codec.Encode(core.QuotaRecord{Timestamp: fixedNow.Add(-24 * time.Hour), HourCount: 1, DayCount: 1}, "")
		require.NoError(t, err)
		row := RowFromEntry(core.Entry{Key: key.StorageKey(), Value: old}, codec)
		assert.Zero(t, row.DayCount)
		assert.False(t, row.Locked)
	})

	t.Run("malformed", func(t *testing.T) {
		row := RowFromEntry(core.Entry{Key: "not-a-ledger-key", Value: core.TextValue("{broken")}, codec)
		assert.True(t, row.Malformed)
		assert.Equal(t, "{broken", row.Raw)
		assert.Empty(t, row.RuleID)
	})
}

func TestFormatters(t *testing.T) {
	rows := []LedgerRow{
		{Key: "0a:uploads", RuleID: "uploads", ProfileID: "0a", HourCount: 1, DayCount: 3, Locked: true, Updated: fixedNow},
		{Key: "junk", Malformed: true, Raw: "x"},
	}
	rules := []RuleRow{{ID: "uploads", Name: "per-profile-throttle-rule", Quota: true}}

	t.Run("table", func(t *testing.T) {
		f := NewFormatter(FormatTable)
		out, err := f.FormatRows(rows)
		require.NoError(t, err)
		assert.Contains(t, out, "uploads")
		assert.Contains(t, out, "locked")
		assert.Contains(t, out, "malformed")
		assert.Contains(t, out, "2 row(s)")

		out, err = f.FormatRows(nil)
		require.NoError(t, err)
		assert.Contains(t, out, "no stored quota rows")

		out, err = f.FormatRules(rules)
		require.NoError(t, err)
		assert.Contains(t, out, "per-profile-throttle-rule")
	})

	t.Run("json", func(t *testing.T) {
		f := NewFormatter(FormatJSON)
		out, err := f.FormatRows(rows)
		require.NoError(t, err)

		var decoded []LedgerRow
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		require.Len(t, decoded, 2)
		assert.Equal(t, "uploads", decoded[0].RuleID)
		assert.True(t, decoded[1].Malformed)

		out, err = f.FormatRows(nil)
		require.NoError(t, err)
		assert.Equal(t, "[]", out)

		out, err = f.FormatRules(rules)
		require.NoError(t, err)
		assert.Contains(t, out, `"quota": true`)
	})

	t.Run("markdown", func(t *testing.T) {
		f := NewFormatter(FormatMarkdown)
		out, err := f.FormatRows(rows)
		require.NoError(t, err)
		assert.Contains(t, out, "## Quota ledger")
		assert.Contains(t, out, "| uploads |")

		out, err = f.FormatRules(rules)
		require.NoError(t, err)
		assert.Contains(t, out, "## Rules")
	})
}
