package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/policyworks/quotaledger/internal/core"
)

var (
	_ core.Backend = (*Store)(nil)
	_ core.Swapper = (*Store)(nil)
)

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (core.Value, bool, error) {
	if s == nil || s.DB == nil {
		return core.Value{}, false, errors.New("store is not initialized")
	}

	query := s.dialect.rebind(fmt.Sprintf(`SELECT val, ival FROM %s WHERE %s = ?`, s.table, s.dialect.keyColumn()))

	var (
		text    sql.NullString
		integer sql.NullInt64
	)
	if err := s.DB.QueryRowContext(ctx, query, key).Scan(&text, &integer); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Value{}, false, nil
		}
		return core.Value{}, false, fmt.Errorf("fetch %s: %w", key, err)
	}

	return scanValue(text, integer), true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value core.Value) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	text, integer := columns(value)
	if _, err := s.DB.ExecContext(ctx, s.dialect.upsertSQL(s.table), key, text, integer); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	query := s.dialect.rebind(fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, s.table, s.dialect.keyColumn()))
	if _, err := s.DB.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Clear deletes every row in the table.
func (s *Store) Clear(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("clear %s: %w", s.table, err)
	}
	return nil
}

// CompareAndSwap replaces the value under key with next only if the stored
// value equals *old, or the key is absent when old is nil.
func (s *Store) CompareAndSwap(ctx context.Context, key string, old *core.Value, next core.Value) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}

	nextText, nextInteger := columns(next)

	var (
		result sql.Result
		err    error
	)
	if old == nil {
		result, err = s.DB.ExecContext(ctx, s.dialect.insertIfAbsentSQL(s.table), key, nextText, nextInteger)
	} else {
		oldText, oldInteger := columns(*old)
		result, err = s.DB.ExecContext(ctx, s.dialect.swapSQL(s.table),
			nextText, nextInteger, key, oldText, oldInteger)
	}
	if err != nil {
		return false, fmt.Errorf("swap %s: %w", key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap %s: %w", key, err)
	}
	return affected == 1, nil
}

// columns splits a value into the val and ival column arguments. The unused
// column is NULL.
func columns(value core.Value) (any, any) {
	if value.Kind == core.KindInteger {
		return nil, value.Integer
	}
	return value.Text, nil
}

func scanValue(text sql.NullString, integer sql.NullInt64) core.Value {
	if integer.Valid {
		return core.IntegerValue(integer.Int64)
	}
	return core.TextValue(text.String)
}
