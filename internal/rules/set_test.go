package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSet(t *testing.T) {
	ctx := context.Background()
	set, err := LoadSet(ctx, nil, []map[string]any{
		{"rule": ThrottleRuleName, "rule_id": "uploads", "per_hour": 2},
		{"rule": ApproveRuleName, "rule_id": "open"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = set.Close() })

	list := set.List()
	require.Len(t, list, 2)
	assert.Equal(t, "uploads", list[0].ID())
	assert.Equal(t, "open", list[1].ID())

	r, ok := set.Get("uploads")
	require.True(t, ok)
	_, isQuota := r.(QuotaRule)
	assert.True(t, isQuota)

	_, ok = set.Get("missing")
	assert.False(t, ok)

	require.NoError(t, set.Close())
	assert.Empty(t, set.List())
}

func TestLoadSetRejectsDuplicateIDs(t *testing.T) {
	_, err := LoadSet(context.Background(), Default, []map[string]any{
		{"rule": ApproveRuleName, "rule_id": "same"},
		{"rule": RejectRuleName, "rule_id": "same"},
	})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadSetReportsFailingRule(t *testing.T) {
	_, err := LoadSet(context.Background(), Default, []map[string]any{
		{"rule": ApproveRuleName},
		{"rule": "nope"},
	})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "rule 1")
}

func TestReadRuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- rule: per-profile-throttle-rule
  rule_id: uploads
  per_day: 3
- rule: time-range-policy
  days: [0, 1, 2, 3, 4]
`), 0o600))

	configs, err := ReadRuleFile(path)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "uploads", configs[0]["rule_id"])

	set, err := LoadSet(context.Background(), Default, configs)
	require.NoError(t, err)
	assert.Len(t, set.List(), 2)
	require.NoError(t, set.Close())

	require.NoError(t, os.WriteFile(path, []byte("rule: not-a-list"), 0o600))
	_, err = ReadRuleFile(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
