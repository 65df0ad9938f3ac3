package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/policyworks/quotaledger/internal/core"
)

// EntryQuery selects stored rows for listing or reset.
type EntryQuery struct {
	All    bool
	Key    string
	Prefix string
}

func (q EntryQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Key) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --key, or --prefix")
}

// Matches reports whether key is selected by the query.
func (q EntryQuery) Matches(key string) bool {
	if q.All {
		return true
	}
	if k := strings.TrimSpace(q.Key); k != "" {
		return key == k
	}
	prefix := strings.TrimSpace(q.Prefix)
	return prefix != "" && strings.HasPrefix(key, prefix)
}

func (q EntryQuery) whereClause(d dialect) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	key := d.keyColumn()
	// The self-test row is transient and never listed.
	if q.All {
		return fmt.Sprintf("WHERE %s <> ?", key), []any{SelfTestKey}, nil
	}
	if k := strings.TrimSpace(q.Key); k != "" {
		return fmt.Sprintf("WHERE %s = ?", key), []any{k}, nil
	}
	prefix := strings.TrimSpace(q.Prefix)
	if prefix == "" {
		return "", nil, errors.New("prefix is required")
	}
	like := fmt.Sprintf("WHERE %s LIKE ?", key)
	if d == dialectSQLite {
		// postgres and mysql already default to backslash.
		like += ` ESCAPE '\'`
	}
	return like, []any{likeEscape(prefix) + "%"}, nil
}

// Admin is the maintenance surface shared by every bundled backend.
type Admin interface {
	ListEntries(ctx context.Context, q EntryQuery) ([]core.Entry, error)
	CountEntries(ctx context.Context, q EntryQuery) (int, error)
	ResetEntries(ctx context.Context, q EntryQuery) (int64, error)
}

var (
	_ Admin = (*Store)(nil)
	_ Admin = (*MemoryStore)(nil)
	_ Admin = (*RedisStore)(nil)
)

func (s *Store) ListEntries(ctx context.Context, q EntryQuery) ([]core.Entry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause(s.dialect)
	if err != nil {
		return nil, err
	}

	key := s.dialect.keyColumn()
	rows, err := s.DB.QueryContext(ctx, s.dialect.rebind(fmt.Sprintf(`
		SELECT %s, val, ival
		FROM %s
		%s
		ORDER BY %s
	`, key, s.table, where, key)), args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []core.Entry{}
	for rows.Next() {
		var (
			k       string
			text    sql.NullString
			integer sql.NullInt64
		)
		if err := rows.Scan(&k, &text, &integer); err != nil {
			return nil, fmt.Errorf("scan entries: %w", err)
		}
		entries = append(entries, core.Entry{Key: k, Value: scanValue(text, integer)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	return entries, nil
}

func (s *Store) CountEntries(ctx context.Context, q EntryQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause(s.dialect)
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, s.dialect.rebind(fmt.Sprintf(`
		SELECT COUNT(*)
		FROM %s
		%s
	`, s.table, where)), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

func (s *Store) ResetEntries(ctx context.Context, q EntryQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause(s.dialect)
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, s.dialect.rebind(fmt.Sprintf(`
		DELETE FROM %s
		%s
	`, s.table, where)), args...)
	if err != nil {
		return 0, fmt.Errorf("reset entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset entries: %w", err)
	}
	return affected, nil
}
