package rules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Set holds the rules a host has configured, in configuration order.
type Set struct {
	rules []Rule
	byID  map[string]Rule
}

// LoadSet builds every rule in configs. Rule IDs must be unique. Rules built
// before a failure are closed.
func LoadSet(ctx context.Context, registry *Registry, configs []map[string]any, opts ...BuildOption) (*Set, error) {
	if registry == nil {
		registry = Default
	}

	set := &Set{byID: make(map[string]Rule, len(configs))}
	for i, args := range configs {
		rule, err := registry.Build(ctx, args, opts...)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if _, dup := set.byID[rule.ID()]; dup {
			closeRule(rule)
			_ = set.Close()
			return nil, fmt.Errorf("%w: duplicate rule id %q", ErrInvalidConfig, rule.ID())
		}
		set.rules = append(set.rules, rule)
		set.byID[rule.ID()] = rule
	}
	return set, nil
}

// ReadRuleFile parses a YAML list of rule argument maps.
func ReadRuleFile(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied rule file
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var configs []map[string]any
	if err := yaml.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("%w: parse rule file %s: %v", ErrInvalidConfig, path, err)
	}
	return configs, nil
}

// Get returns the rule with the given ID.
func (s *Set) Get(id string) (Rule, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// List returns the rules in configuration order.
func (s *Set) List() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Close releases every rule that holds a backend.
func (s *Set) Close() error {
	var errs []error
	for _, r := range s.rules {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close rule %s: %w", r.ID(), err))
			}
		}
	}
	s.rules = nil
	s.byID = map[string]Rule{}
	return errors.Join(errs...)
}

func closeRule(r Rule) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}
