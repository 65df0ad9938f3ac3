package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryNames(t *testing.T) {
	assert.Equal(t, []string{
		ApproveRuleName,
		ThrottleRuleName,
		ProfileIDRuleName,
		RejectRuleName,
		SessionParamsRuleName,
		TimeRangeRuleName,
	}, Default.Names())
}

func TestRegistryBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("missing rule name", func(t *testing.T) {
		_, err := Default.Build(ctx, map[string]any{"per_hour": 1})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("unknown rule", func(t *testing.T) {
		_, err := Default.Build(ctx, map[string]any{"rule": "meta-rule"})
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "meta-rule")
	})

	t.Run("explicit rule id", func(t *testing.T) {
		r, err := Default.Build(ctx, map[string]any{"rule": ApproveRuleName, "rule-id": "always"})
		require.NoError(t, err)
		assert.Equal(t, "always", r.ID())
		assert.Equal(t, ApproveRuleName, r.Name())
	})

	t.Run("hashed rule id is stable", func(t *testing.T) {
		args := map[string]any{"rule": TimeRangeRuleName, "days": []any{0, 1}}
		a, err := Default.Build(ctx, args)
		require.NoError(t, err)
		b, err := Default.Build(ctx, map[string]any{"days": []any{0, 1}, "rule": TimeRangeRuleName})
		require.NoError(t, err)
		assert.Equal(t, a.ID(), b.ID())
		assert.Len(t, a.ID(), 16)

		c, err := Default.Build(ctx, map[string]any{"rule": TimeRangeRuleName, "days": []any{0, 2}})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID(), c.ID())
	})

	t.Run("hyphenated keys", func(t *testing.T) {
		r, err := Default.Build(ctx, map[string]any{"rule": SessionParamsRuleName, "max-request-count": 5})
		require.NoError(t, err)
		assert.Equal(t, 5, r.(*SessionParamsRule).MaxRequestCount)
	})
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Names())

	reg.Register("custom", NewRejectRule)
	r, err := reg.Build(context.Background(), map[string]any{"rule": "custom", "rule_id": "x"})
	require.NoError(t, err)

	ok, err := r.ApproveRequest(context.Background(), Request{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticRules(t *testing.T) {
	ctx := context.Background()

	approve, err := Default.Build(ctx, map[string]any{"rule": ApproveRuleName})
	require.NoError(t, err)
	reject, err := Default.Build(ctx, map[string]any{"rule": RejectRuleName})
	require.NoError(t, err)

	ok, err := approve.ApproveRequest(ctx, Request{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reject.ApproveRequest(ctx, Request{Profile: &ProfileInfo{ID: []byte{1}}})
	require.NoError(t, err)
	assert.False(t, ok)
}
