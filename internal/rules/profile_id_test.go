package rules

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileIDRule(t *testing.T) {
	ctx := context.Background()
	words := "correct horse battery staple diamond hands"

	r, err := Default.Build(ctx, map[string]any{
		"rule":        ProfileIDRuleName,
		"profile_ids": []any{"d56e89af673fe1897fdcc8", words},
	})
	require.NoError(t, err)

	id, err := hex.DecodeString("d56e89af673fe1897fdcc8")
	require.NoError(t, err)

	tests := []struct {
		name    string
		profile *ProfileInfo
		want    bool
	}{
		{"no profile", nil, false},
		{"listed id", &ProfileInfo{ID: id}, true},
		{"other id", &ProfileInfo{ID: []byte{0xd5, 0x6e}}, false},
		{"exact words", &ProfileInfo{ID: []byte{1}, Words: strings.Fields(words)}, true},
		{"words with suffix", &ProfileInfo{ID: []byte{1}, Words: append(strings.Fields(words), "extra")}, true},
		{"too few words", &ProfileInfo{ID: []byte{1}, Words: strings.Fields("correct horse battery staple")}, false},
		{"different words", &ProfileInfo{ID: []byte{1}, Words: strings.Fields("wrong horse battery staple diamond hands")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := r.ApproveRequest(ctx, Request{Profile: tt.profile})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestProfileIDRuleValidation(t *testing.T) {
	ctx := context.Background()

	_, err := Default.Build(ctx, map[string]any{"rule": ProfileIDRuleName})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Default.Build(ctx, map[string]any{"rule": ProfileIDRuleName, "profile_ids": []any{"one two three"}})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Default.Build(ctx, map[string]any{"rule": ProfileIDRuleName, "profile_ids": []any{"not-hex"}})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
