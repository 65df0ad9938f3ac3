package store

import (
	"context"
	"strings"

	"github.com/policyworks/quotaledger/internal/config"
	"github.com/policyworks/quotaledger/internal/core"
)

// Connect opens the backend selected by cfg.Driver. Every returned backend
// also implements core.Swapper and Admin.
func Connect(ctx context.Context, cfg config.StoreConfig) (core.Backend, error) {
	switch strings.TrimSpace(cfg.Driver) {
	case driverMemory:
		return NewMemoryStore(), nil
	case driverRedis:
		s, err := OpenRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
