package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/policyworks/quotaledger/internal/config"
	"github.com/policyworks/quotaledger/internal/core"
	"github.com/policyworks/quotaledger/internal/core/store"
	"github.com/policyworks/quotaledger/internal/metrics"
)

// backupSuffix is appended to a database file moved aside after it failed to open.
const backupSuffix = ".old"

// sidecarSuffixes are the SQLite files that belong to a database in WAL mode.
var sidecarSuffixes = []string{"-wal", "-shm"}

// connectStore is replaced in tests.
var connectStore = store.Connect

// OpenBackend opens the durable backend described by cfg. If an existing local
// database file opens but is unusable (store.ErrUnusable), it is renamed to
// "<path>.old" and a fresh database is created in its place. A second failure
// is returned. Configuration errors and remote backends never touch the file.
func OpenBackend(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (core.Backend, error) {
	backend, err := connectStore(ctx, cfg)
	if err == nil {
		return backend, nil
	}
	if !errors.Is(err, store.ErrUnusable) {
		return nil, err
	}

	path := store.LocalPath(cfg)
	if path == "" {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, err
	}

	if logger != nil {
		logger.Error("unable to open ledger store, moving it aside",
			zap.String("path", path),
			zap.String("backup", path+backupSuffix),
			zap.Error(err))
	}

	if renameErr := moveAside(path); renameErr != nil {
		return nil, errors.Join(err, renameErr)
	}
	metrics.RecordLedgerRecovery(metrics.RecoveryBackendReset)

	backend, retryErr := connectStore(ctx, cfg)
	if retryErr != nil {
		return nil, fmt.Errorf("reopen ledger store after reset: %w", retryErr)
	}
	return backend, nil
}

func moveAside(path string) error {
	if err := os.Rename(path, path+backupSuffix); err != nil {
		return fmt.Errorf("move %s aside: %w", path, err)
	}
	for _, suffix := range sidecarSuffixes {
		sidecar := path + suffix
		if _, err := os.Stat(sidecar); err != nil {
			continue
		}
		if err := os.Rename(sidecar, path+backupSuffix+suffix); err != nil {
			return fmt.Errorf("move %s aside: %w", sidecar, err)
		}
	}
	return nil
}
