package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/policyworks/quotaledger/internal/config"
	"github.com/policyworks/quotaledger/internal/core"
	"github.com/policyworks/quotaledger/internal/core/ledger"
	"github.com/policyworks/quotaledger/internal/core/store"
	"github.com/policyworks/quotaledger/internal/metrics"
)

const ThrottleRuleName = "per-profile-throttle-rule"

// Unlimited disables a throttle limit.
const Unlimited = -1

type throttleConfig struct {
	PerHour    *int     `mapstructure:"per_hour"`
	PerDay     *int     `mapstructure:"per_day"`
	Persistent *bool    `mapstructure:"persistent"`
	ExpirySecs *float64 `mapstructure:"expiry_secs"`
	DBURI      string   `mapstructure:"db_uri"`
	DBFile     string   `mapstructure:"db_file"`
	DBTable    string   `mapstructure:"db_table"`
}

// Limits are the configured per-caller request allowances.
type Limits struct {
	PerHour int `json:"per_hour"`
	PerDay  int `json:"per_day"`
}

// Allows reports whether rec has room for one more request.
func (l Limits) Allows(rec core.QuotaRecord) bool {
	if l.PerDay != Unlimited && rec.DayCount >= l.PerDay {
		return false
	}
	if l.PerHour != Unlimited && rec.HourCount >= l.PerHour {
		return false
	}
	return true
}

// ThrottleRule limits each profile to a number of requests per hour and per
// day. Approval locks the profile's ledger row until UseQuota charges it.
//
//	- rule: per-profile-throttle-rule
//	  rule_id: uploads
//	  per_hour: 10
//	  per_day: 100
//	  persistent: true
type ThrottleRule struct {
	id     string
	limits Limits
	ledger *ledger.Ledger
	env    Env
}

// NewThrottleRule opens the rule's backend and builds its ledger. Failure to
// open a persistent backend, even after moving a broken file aside, fails
// construction.
func NewThrottleRule(ctx context.Context, env Env) (Rule, error) {
	var cfg throttleConfig
	if err := env.Decode(&cfg); err != nil {
		return nil, err
	}

	limits := Limits{PerHour: Unlimited, PerDay: Unlimited}
	if cfg.PerHour != nil {
		limits.PerHour = *cfg.PerHour
	}
	if cfg.PerDay != nil {
		limits.PerDay = *cfg.PerDay
	}
	if limits.PerHour < Unlimited || limits.PerDay < Unlimited {
		return nil, fmt.Errorf("%w: per_hour and per_day must be -1 or a count", ErrInvalidConfig)
	}

	expiry := env.Ledger.Expiry()
	if cfg.ExpirySecs != nil {
		expiry = time.Duration(*cfg.ExpirySecs * float64(time.Second))
	}
	if expiry <= 0 {
		expiry = ledger.DefaultExpiry
	}

	persistent := env.Ledger.Persistent
	if cfg.Persistent != nil {
		persistent = *cfg.Persistent
	}

	var backend core.Backend
	if persistent {
		storeCfg, err := throttleStoreConfig(env.Store, cfg)
		if err != nil {
			return nil, err
		}
		backend, err = ledger.OpenBackend(ctx, storeCfg, env.Logger)
		if err != nil {
			return nil, fmt.Errorf("open ledger for rule %s: %w", env.RuleID, err)
		}
	} else {
		backend = store.NewMemoryStore()
	}

	opts := []ledger.Option{
		ledger.WithExpiry(expiry),
		ledger.WithLocation(env.location()),
		ledger.WithClock(env.now),
	}
	if env.Logger != nil {
		opts = append(opts, ledger.WithLogger(env.Logger))
	}
	l, err := ledger.New(backend, opts...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	return &ThrottleRule{id: env.RuleID, limits: limits, ledger: l, env: env}, nil
}

// throttleStoreConfig overlays the rule's own db_uri, db_file and db_table on
// the shared store configuration.
func throttleStoreConfig(base config.StoreConfig, cfg throttleConfig) (config.StoreConfig, error) {
	out := base
	local := func(path string) {
		if out.Driver != "libsql" && out.Driver != "sqlite3" {
			out.Driver = ""
		}
		out.URL = ""
		out.Path = path
	}

	switch {
	case cfg.DBURI != "":
		// MySQL DSNs such as user@tcp(host:3306)/db are not valid URLs, so
		// only the scheme is inspected.
		scheme, _, ok := strings.Cut(cfg.DBURI, ":")
		if !ok {
			return out, fmt.Errorf("%w: db_uri %q has no scheme", ErrInvalidConfig, cfg.DBURI)
		}
		switch strings.ToLower(scheme) {
		case "file":
			local(cfg.DBURI)
		case "redis", "rediss":
			out.Driver, out.URL, out.Path = "redis", cfg.DBURI, ""
		case "postgres", "postgresql":
			out.Driver, out.URL, out.Path = "postgres", cfg.DBURI, ""
		case "mysql":
			out.Driver, out.URL, out.Path = "mysql", cfg.DBURI, ""
		case "libsql", "http", "https":
			out.Driver, out.URL, out.Path = "libsql", cfg.DBURI, ""
		default:
			return out, fmt.Errorf("%w: unsupported db_uri scheme %q", ErrInvalidConfig, scheme)
		}
	case cfg.DBFile != "":
		local(cfg.DBFile)
	}

	if cfg.DBTable != "" {
		out.Table = cfg.DBTable
	}
	return out, nil
}

func (r *ThrottleRule) Name() string { return ThrottleRuleName }

func (r *ThrottleRule) ID() string { return r.id }

// Limits returns the configured allowances.
func (r *ThrottleRule) Limits() Limits { return r.limits }

// Ledger exposes the rule's ledger for inspection.
func (r *ThrottleRule) Ledger() *ledger.Ledger { return r.ledger }

func (r *ThrottleRule) key(profile ProfileInfo) core.LedgerKey {
	return core.LedgerKey{RuleID: r.id, CallerID: profile.ID}
}

// ApproveRequest locks the caller's row and approves when it has room. A row
// that is already locked, by another owner or by an approval on this rule that
// was never used, is denied. A denied row is released.
func (r *ThrottleRule) ApproveRequest(ctx context.Context, req Request) (bool, error) {
	if req.Profile == nil {
		return false, ErrNoProfile
	}
	key := r.key(*req.Profile)

	rec, err := r.ledger.Get(ctx, key, true)
	if errors.Is(err, ledger.ErrLocked) {
		r.logWarn("quota row locked, denying request", key)
		metrics.RecordLockContention(r.id)
		metrics.RecordQuotaDecision(r.id, metrics.DecisionLocked)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if !r.limits.Allows(rec) {
		if err := r.ledger.Unlock(ctx, key, rec); err != nil {
			return false, err
		}
		metrics.RecordQuotaDecision(r.id, metrics.DecisionDenied)
		return false, nil
	}

	metrics.RecordQuotaDecision(r.id, metrics.DecisionApproved)
	return true, nil
}

// UseQuota charges one request to the caller and releases the row. It must
// follow an approving ApproveRequest for the same caller whose lock has not
// expired; otherwise nothing is charged and ErrProtocolViolation is returned.
func (r *ThrottleRule) UseQuota(ctx context.Context, req Request) error {
	if req.Profile == nil {
		return ErrNoProfile
	}
	if _, err := r.ledger.Consume(ctx, r.key(*req.Profile)); err != nil {
		if errors.Is(err, ledger.ErrNotHeld) {
			return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
		}
		return err
	}
	metrics.RecordQuotaConsumed(r.id)
	return nil
}

// ApproveAndUse approves the request and, if approved, charges it.
func (r *ThrottleRule) ApproveAndUse(ctx context.Context, req Request) (bool, error) {
	ok, err := r.ApproveRequest(ctx, req)
	if err != nil || !ok {
		return ok, err
	}
	if err := r.UseQuota(ctx, req); err != nil {
		return false, err
	}
	return true, nil
}

// AtQuota reports, without locking, whether the profile has used its allowance.
func (r *ThrottleRule) AtQuota(ctx context.Context, profile ProfileInfo) (bool, error) {
	rec, err := r.Usage(ctx, profile)
	if err != nil {
		return false, err
	}
	return !r.limits.Allows(rec), nil
}

// Usage returns the profile's current record after rollover, without locking.
func (r *ThrottleRule) Usage(ctx context.Context, profile ProfileInfo) (core.QuotaRecord, error) {
	return r.ledger.Get(ctx, r.key(profile), false)
}

// ClearQuota forgets the profile's counts.
func (r *ThrottleRule) ClearQuota(ctx context.Context, profile ProfileInfo) error {
	return r.ledger.Clear(ctx, r.key(profile))
}

// Close releases the rule's backend.
func (r *ThrottleRule) Close() error {
	return r.ledger.Close()
}

func (r *ThrottleRule) logWarn(msg string, key core.LedgerKey) {
	if r.env.Logger == nil {
		return
	}
	r.env.Logger.Warn(msg,
		zap.String("rule", r.id),
		zap.String("key", key.StorageKey()))
}
