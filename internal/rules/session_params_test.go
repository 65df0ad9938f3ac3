package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionParamsRule(t *testing.T) {
	ctx := context.Background()

	r, err := Default.Build(ctx, map[string]any{"rule": SessionParamsRuleName})
	require.NoError(t, err)
	session := r.(*SessionParamsRule)
	assert.Equal(t, 0, session.MaxRequestCount)
	assert.Equal(t, DefaultMaxTimeSeconds, session.MaxTimeSeconds)
	assert.Nil(t, session.EndByTime)

	ok, err := r.ApproveRequest(ctx, Request{})
	require.NoError(t, err)
	assert.True(t, ok)

	r, err = Default.Build(ctx, map[string]any{
		"rule":              SessionParamsRuleName,
		"max_request_count": 10,
		"max_time_seconds":  "600",
		"end_by_time":       "5:30pm",
	})
	require.NoError(t, err)
	session = r.(*SessionParamsRule)
	assert.Equal(t, 10, session.MaxRequestCount)
	assert.Equal(t, 600, session.MaxTimeSeconds)
	require.NotNil(t, session.EndByTime)
	assert.Equal(t, 17*3600+30*60, session.EndByTime.Seconds)
}

func TestSessionParamsValidation(t *testing.T) {
	tests := map[string]map[string]any{
		"negative request count": {"max_request_count": -1},
		"time too short":         {"max_time_seconds": 1},
		"time too long":          {"max_time_seconds": 604800},
		"bad end time":           {"end_by_time": "bad"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			args["rule"] = SessionParamsRuleName
			_, err := Default.Build(context.Background(), args)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
