package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/policyworks/quotaledger/internal/config"
	"github.com/policyworks/quotaledger/internal/core"
	"github.com/policyworks/quotaledger/internal/core/ledger"
	"github.com/policyworks/quotaledger/internal/core/store"
	"github.com/policyworks/quotaledger/internal/observability"
	"github.com/policyworks/quotaledger/internal/rules"
)

// ledgerStore is an opened backend with its maintenance surface.
type ledgerStore struct {
	backend core.Backend
	admin   store.Admin
	codec   ledger.Codec
}

func (s *ledgerStore) Close() error {
	return s.backend.Close()
}

// openLedgerStore opens the configured durable store. Unlike rule
// construction it never moves a broken database aside.
func openLedgerStore(ctx context.Context, cfg *config.Config) (*ledgerStore, error) {
	backend, err := store.Connect(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	admin, ok := backend.(store.Admin)
	if !ok {
		_ = backend.Close()
		return nil, fmt.Errorf("store driver %q does not support maintenance", cfg.Store.Driver)
	}
	return &ledgerStore{
		backend: backend,
		admin:   admin,
		codec:   ledger.Codec{Location: time.Local, Expiry: cfg.Ledger.Expiry()},
	}, nil
}

// loadRuleSet builds the configured rules. A non-empty rulesFile replaces
// the rules listed in the config.
func loadRuleSet(ctx context.Context, cfg *config.Config, rulesFile string) (*rules.Set, error) {
	configs := cfg.Rules
	if rulesFile != "" {
		fromFile, err := rules.ReadRuleFile(rulesFile)
		if err != nil {
			return nil, err
		}
		configs = fromFile
	}

	opts := []rules.BuildOption{
		rules.WithStore(cfg.Store),
		rules.WithLedgerDefaults(cfg.Ledger),
	}
	if logger := observability.Logger(); logger != nil {
		opts = append(opts, rules.WithLogger(logger))
	}
	return rules.LoadSet(ctx, rules.Default, configs, opts...)
}
