package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/policyworks/quotaledger/internal/core"
)

// SelfTestKey is written and removed by SelfTest. It cannot collide with a
// ledger key, which is hex followed by a colon.
const SelfTestKey = "^ufhvG6xWsMtTBkHhQQ+cZg!"

const selfTestValue = 44

// ErrSchemaMismatch reports an existing table whose columns do not match the
// key/val/ival layout.
var ErrSchemaMismatch = errors.New("store table has an incompatible schema")

var requiredColumns = []string{"key", "val", "ival"}

// Migrate ensures the value table exists and has the expected columns.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, s.dialect.createTableSQL(s.table)); err != nil {
		return fmt.Errorf("store migration failed: %w", err)
	}

	if s.dialect == dialectSQLite {
		if err := s.requireColumns(ctx, s.table, requiredColumns...); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) requireColumns(ctx context.Context, table string, columns ...string) error {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s schema: %w", table, err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	present := map[string]bool{}
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}

	for _, column := range columns {
		if !present[column] {
			return fmt.Errorf("%w: %s is missing column %s", ErrSchemaMismatch, table, column)
		}
	}

	return nil
}

// SelfTest round-trips a sentinel integer through b and removes it.
func SelfTest(ctx context.Context, b core.Backend) error {
	if err := b.Set(ctx, SelfTestKey, core.IntegerValue(selfTestValue)); err != nil {
		return fmt.Errorf("store self-test write: %w", err)
	}
	got, ok, err := b.Get(ctx, SelfTestKey)
	if err != nil {
		return fmt.Errorf("store self-test read: %w", err)
	}
	if !ok || !got.Equal(core.IntegerValue(selfTestValue)) {
		return fmt.Errorf("store self-test read back %#v", got)
	}
	if err := b.Remove(ctx, SelfTestKey); err != nil {
		return fmt.Errorf("store self-test cleanup: %w", err)
	}
	return nil
}

// SelfTest verifies the table accepts and returns integer values.
func (s *Store) SelfTest(ctx context.Context) error {
	return SelfTest(ctx, s)
}
