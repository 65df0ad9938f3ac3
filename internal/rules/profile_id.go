package rules

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
)

const ProfileIDRuleName = "profile-id-rule"

// MinimumWordCount is the shortest word list accepted as a profile match.
const MinimumWordCount = 4

type profileIDConfig struct {
	ProfileIDs []string `mapstructure:"profile_ids"`
}

// ProfileIDRule approves requests from listed profiles. An entry is either a
// hex profile ID or a space separated word list matched as a prefix of the
// profile's words.
//
//	- rule: profile-id-rule
//	  profile_ids:
//	    - d56e89af673fe1897fdcc8
//	    - correct horse battery staple diamond hands
type ProfileIDRule struct {
	id    string
	ids   map[string]struct{}
	words map[int]map[string]struct{}
}

func NewProfileIDRule(_ context.Context, env Env) (Rule, error) {
	var cfg profileIDConfig
	if err := env.Decode(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.ProfileIDs) == 0 {
		return nil, fmt.Errorf("%w: %s requires profile_ids", ErrInvalidConfig, ProfileIDRuleName)
	}

	r := &ProfileIDRule{
		id:    env.RuleID,
		ids:   make(map[string]struct{}),
		words: make(map[int]map[string]struct{}),
	}
	for _, entry := range cfg.ProfileIDs {
		if strings.Contains(entry, " ") {
			words := strings.Fields(entry)
			if len(words) < MinimumWordCount {
				return nil, fmt.Errorf("%w: profile id word match must use at least %d words", ErrInvalidConfig, MinimumWordCount)
			}
			if r.words[len(words)] == nil {
				r.words[len(words)] = make(map[string]struct{})
			}
			r.words[len(words)][wordKey(words)] = struct{}{}
			continue
		}
		id, err := hex.DecodeString(strings.TrimSpace(entry))
		if err != nil {
			return nil, fmt.Errorf("%w: profile id %q is not hex", ErrInvalidConfig, entry)
		}
		r.ids[string(id)] = struct{}{}
	}
	return r, nil
}

func (r *ProfileIDRule) Name() string { return ProfileIDRuleName }

func (r *ProfileIDRule) ID() string { return r.id }

func (r *ProfileIDRule) ApproveRequest(_ context.Context, req Request) (bool, error) {
	if req.Profile == nil {
		return false, nil
	}
	if _, ok := r.ids[string(req.Profile.ID)]; ok {
		return true, nil
	}
	for n, set := range r.words {
		if len(req.Profile.Words) < n {
			continue
		}
		if _, ok := set[wordKey(req.Profile.Words[:n])]; ok {
			return true, nil
		}
	}
	return false, nil
}

func wordKey(words []string) string {
	return strings.Join(words, "\x00")
}
