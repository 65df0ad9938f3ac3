package rules

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/go-viper/mapstructure/v2"

	"github.com/policyworks/quotaledger/internal/config"
)

const (
	argRule   = "rule"
	argRuleID = "rule_id"
)

// Env carries a rule's arguments and the ambient services it may use.
type Env struct {
	// RuleID is the configured identity, or a hash of Args when none was given.
	RuleID string
	// Args holds the rule arguments with hyphens in keys replaced by underscores.
	Args map[string]any

	Logger   *logging.Logger
	Store    config.StoreConfig
	Ledger   config.LedgerConfig
	Now      func() time.Time
	Location *time.Location
}

// Decode copies Args into out using its mapstructure tags.
func (e Env) Decode(out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(e.Args); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, e.RuleID, err)
	}
	return nil
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) location() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.Local
}

// Factory builds a rule from its environment.
type Factory func(ctx context.Context, env Env) (Rule, error)

// BuildOption supplies ambient services to Build.
type BuildOption func(*Env)

// WithLogger passes a logger to built rules.
func WithLogger(logger *logging.Logger) BuildOption {
	return func(e *Env) { e.Logger = logger }
}

// WithStore sets the durable store used by persistent rules that do not name one.
func WithStore(cfg config.StoreConfig) BuildOption {
	return func(e *Env) { e.Store = cfg }
}

// WithLedgerDefaults sets the expiry and persistence defaults for quota rules.
func WithLedgerDefaults(cfg config.LedgerConfig) BuildOption {
	return func(e *Env) { e.Ledger = cfg }
}

// WithClock replaces time.Now for built rules.
func WithClock(now func() time.Time) BuildOption {
	return func(e *Env) { e.Now = now }
}

// WithLocation sets the zone rules use for calendar decisions.
func WithLocation(loc *time.Location) BuildOption {
	return func(e *Env) { e.Location = loc }
}

// Registry maps rule names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default holds every built-in rule.
var Default = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ThrottleRuleName, NewThrottleRule)
	r.Register(ApproveRuleName, NewApproveRule)
	r.Register(RejectRuleName, NewRejectRule)
	r.Register(ProfileIDRuleName, NewProfileIDRule)
	r.Register(TimeRangeRuleName, NewTimeRangeRule)
	r.Register(SessionParamsRuleName, NewSessionParamsRule)
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered rule names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the rule named by args["rule"].
func (r *Registry) Build(ctx context.Context, args map[string]any, opts ...BuildOption) (Rule, error) {
	normalized := normalizeArgs(args)

	name, _ := normalized[argRule].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidConfig, argRule)
	}

	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown rule %q", ErrInvalidConfig, name)
	}

	ruleID, err := resolveRuleID(normalized)
	if err != nil {
		return nil, err
	}

	env := Env{RuleID: ruleID, Args: normalized}
	for _, opt := range opts {
		opt(&env)
	}

	return factory(ctx, env)
}

// normalizeArgs copies args with "-" in keys replaced by "_".
func normalizeArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[strings.ReplaceAll(k, "-", "_")] = v
	}
	return out
}

// resolveRuleID returns the configured rule_id, or a stable hash of the
// arguments so the same configuration always maps to the same ledger rows.
func resolveRuleID(args map[string]any) (string, error) {
	if raw, ok := args[argRuleID]; ok && raw != nil {
		id := strings.TrimSpace(fmt.Sprint(raw))
		if id != "" {
			return id, nil
		}
	}

	// encoding/json sorts map keys, which makes the encoding canonical.
	canonical, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("%w: arguments are not serializable: %v", ErrInvalidConfig, err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:8]), nil
}
