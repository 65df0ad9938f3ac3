package rules

import (
	"context"
	"fmt"
)

const SessionParamsRuleName = "session-params-rule"

const (
	DefaultMaxTimeSeconds = 300
	maxSessionSeconds     = 604800
)

type sessionParamsConfig struct {
	MaxRequestCount int    `mapstructure:"max_request_count"`
	MaxTimeSeconds  int    `mapstructure:"max_time_seconds"`
	EndByTime       string `mapstructure:"end_by_time"`
}

// SessionParamsRule carries session limits for the host to enforce. It
// approves every request.
type SessionParamsRule struct {
	id string

	// MaxRequestCount is zero when the session has no request limit.
	MaxRequestCount int
	MaxTimeSeconds  int
	// EndByTime is nil when not configured.
	EndByTime *TimeOfDay
}

func NewSessionParamsRule(_ context.Context, env Env) (Rule, error) {
	cfg := sessionParamsConfig{MaxTimeSeconds: DefaultMaxTimeSeconds}
	if err := env.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.MaxRequestCount < 0 {
		return nil, fmt.Errorf("%w: max_request_count must be positive or 0 for none", ErrInvalidConfig)
	}
	if cfg.MaxTimeSeconds <= 1 || cfg.MaxTimeSeconds >= maxSessionSeconds {
		return nil, fmt.Errorf("%w: max_time_seconds must be between 1 and %d", ErrInvalidConfig, maxSessionSeconds)
	}

	r := &SessionParamsRule{
		id:              env.RuleID,
		MaxRequestCount: cfg.MaxRequestCount,
		MaxTimeSeconds:  cfg.MaxTimeSeconds,
	}
	if cfg.EndByTime != "" {
		end, err := ParseTimeOfDay(cfg.EndByTime)
		if err != nil {
			return nil, err
		}
		r.EndByTime = &end
	}
	return r, nil
}

func (r *SessionParamsRule) Name() string { return SessionParamsRuleName }

func (r *SessionParamsRule) ID() string { return r.id }

func (r *SessionParamsRule) ApproveRequest(context.Context, Request) (bool, error) {
	return true, nil
}
