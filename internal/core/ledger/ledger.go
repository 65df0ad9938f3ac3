// Package ledger keeps per-caller hour and day request counts in a shared
// backend and coordinates concurrent users of a row with lock tokens.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/policyworks/quotaledger/internal/core"
	"github.com/policyworks/quotaledger/internal/metrics"
)

var (
	// ErrLocked means the row has an unexpired lock, held by another owner or
	// by a claim of this owner that has not been used or released yet. It is
	// neither an approval nor a quota denial.
	ErrLocked = errors.New("ledger row is locked")

	// ErrNotHeld is returned by Consume when this owner does not hold an
	// unexpired lock on the row.
	ErrNotHeld = errors.New("ledger row is not held by this owner")

	// ErrContended is returned when an atomic update keeps losing races.
	ErrContended = errors.New("ledger row update contended")
)

const (
	// maxLockAttempts bounds re-reads after a lost lock claim.
	maxLockAttempts = 3
	// maxSwapAttempts bounds the retry loop of Add and Consume.
	maxSwapAttempts = 64

	tokenBytes = 8
)

// Ledger reads and updates quota records for one owner. Each Ledger has its
// own lock token; ledgers sharing a backend coordinate through it.
//
// Lock claims use the backend's CompareAndSwap when it implements
// core.Swapper. A backend without it gets read-then-write, and two owners
// racing in that window may both believe they hold the row.
type Ledger struct {
	backend core.Backend
	swapper core.Swapper
	codec   Codec
	token   string
	logger  *logging.Logger

	// mu serializes this process's read-modify-write sequences. Other
	// processes are excluded by the row token only.
	mu sync.Mutex
	// pending holds the storage keys claimed by Get(lock) and not yet
	// consumed, incremented or released. Guarded by mu.
	pending map[string]struct{}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithExpiry sets the lock lifetime.
func WithExpiry(d time.Duration) Option {
	return func(l *Ledger) { l.codec.Expiry = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.codec.Now = now }
}

// WithLocation sets the zone used for hour and day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.codec.Location = loc }
}

// WithLogger enables warning logs for locked and malformed rows.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithOwnerToken fixes the lock token instead of generating one.
func WithOwnerToken(token string) Option {
	return func(l *Ledger) { l.token = token }
}

// New creates a Ledger over backend.
func New(backend core.Backend, opts ...Option) (*Ledger, error) {
	if backend == nil {
		return nil, errors.New("ledger backend is required")
	}

	l := &Ledger{
		backend: backend,
		codec:   Codec{Expiry: DefaultExpiry},
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.codec.Expiry <= 0 {
		return nil, fmt.Errorf("lock expiry must be positive, got %s", l.codec.Expiry)
	}
	if swapper, ok := backend.(core.Swapper); ok {
		l.swapper = swapper
	}
	if l.token == "" {
		token, err := newToken()
		if err != nil {
			return nil, err
		}
		l.token = token
	}
	return l, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Token returns this ledger's lock token.
func (l *Ledger) Token() string {
	return l.token
}

// Codec returns the codec used for stored records.
func (l *Ledger) Codec() Codec {
	return l.codec
}

// Backend returns the underlying store.
func (l *Ledger) Backend() core.Backend {
	return l.backend
}

// Close closes the backend.
func (l *Ledger) Close() error {
	return l.backend.Close()
}

// HeldByOther reports whether rec is locked by an owner other than l.
func (l *Ledger) HeldByOther(rec core.QuotaRecord) bool {
	return rec.LockToken != "" && rec.LockToken != l.token
}

// Get returns the record for key. Without lock it never writes; an absent or
// malformed row reads as a zero record.
//
// With lock, the row is claimed for this owner and written back with its
// token. ErrLocked is returned when another owner holds an unexpired lock, or
// when an earlier claim by this ledger is still pending. Callers sharing one
// Ledger therefore get at most one claim per row at a time.
func (l *Ledger) Get(ctx context.Context, key core.LedgerKey, lock bool) (core.QuotaRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	storageKey := key.StorageKey()

	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		raw, found, rec, err := l.read(ctx, storageKey)
		if err != nil {
			return core.QuotaRecord{}, err
		}
		if !lock {
			return rec, nil
		}

		if l.HeldByOther(rec) {
			l.warn("ledger row locked", storageKey, zap.String("holder", rec.LockToken))
			return rec, ErrLocked
		}
		// An expired claim decodes without a token and may be taken again.
		if _, claimed := l.pending[storageKey]; claimed && rec.LockToken == l.token {
			l.warn("ledger row claim pending", storageKey)
			return rec, ErrLocked
		}

		rec.Timestamp = l.codec.now()
		rec.LockToken = l.token
		applied, err := l.write(ctx, storageKey, previous(raw, found), rec)
		if err != nil {
			return core.QuotaRecord{}, err
		}
		if applied {
			l.pending[storageKey] = struct{}{}
			return rec, nil
		}
	}

	l.warn("ledger lock claim lost", storageKey)
	return core.QuotaRecord{}, ErrLocked
}

// Peek reads key without locking and reports whether a row exists.
func (l *Ledger) Peek(ctx context.Context, key core.LedgerKey) (core.QuotaRecord, bool, error) {
	_, found, rec, err := l.read(ctx, key.StorageKey())
	return rec, found, err
}

// Increment adds one to both counts of rec, releases the lock and stores it.
func (l *Ledger) Increment(ctx context.Context, key core.LedgerKey, rec core.QuotaRecord) (core.QuotaRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.HourCount++
	rec.DayCount++
	rec.LockToken = ""
	rec.Timestamp = l.codec.now()
	if err := l.put(ctx, key.StorageKey(), rec); err != nil {
		return core.QuotaRecord{}, err
	}
	delete(l.pending, key.StorageKey())
	return rec, nil
}

// Lock stores rec with this owner's token. Counts are unchanged.
func (l *Ledger) Lock(ctx context.Context, key core.LedgerKey, rec core.QuotaRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.LockToken = l.token
	rec.Timestamp = l.codec.now()
	if err := l.put(ctx, key.StorageKey(), rec); err != nil {
		return err
	}
	l.pending[key.StorageKey()] = struct{}{}
	return nil
}

// Unlock stores rec without a token. Counts are unchanged.
func (l *Ledger) Unlock(ctx context.Context, key core.LedgerKey, rec core.QuotaRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.LockToken = ""
	rec.Timestamp = l.codec.now()
	if err := l.put(ctx, key.StorageKey(), rec); err != nil {
		return err
	}
	delete(l.pending, key.StorageKey())
	return nil
}

// Clear removes the row for key.
func (l *Ledger) Clear(ctx context.Context, key core.LedgerKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.backend.Remove(ctx, key.StorageKey()); err != nil {
		return fmt.Errorf("clear ledger row: %w", err)
	}
	delete(l.pending, key.StorageKey())
	return nil
}

// Add atomically increments key regardless of who holds it and releases any
// lock. Concurrent Adds from any number of ledgers never lose an update on a
// backend with CompareAndSwap.
func (l *Ledger) Add(ctx context.Context, key core.LedgerKey) (core.QuotaRecord, error) {
	return l.update(ctx, key, false)
}

// Consume increments a row this owner holds and releases the lock.
// ErrNotHeld is returned when the row is unlocked, held by another owner, or
// its lock expired before the charge.
func (l *Ledger) Consume(ctx context.Context, key core.LedgerKey) (core.QuotaRecord, error) {
	return l.update(ctx, key, true)
}

func (l *Ledger) update(ctx context.Context, key core.LedgerKey, requireHeld bool) (core.QuotaRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	storageKey := key.StorageKey()

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return core.QuotaRecord{}, err
		}

		raw, found, rec, err := l.read(ctx, storageKey)
		if err != nil {
			return core.QuotaRecord{}, err
		}
		if requireHeld && rec.LockToken != l.token {
			l.warn("ledger row not held by this owner", storageKey, zap.String("holder", rec.LockToken))
			delete(l.pending, storageKey)
			return rec, ErrNotHeld
		}

		rec.HourCount++
		rec.DayCount++
		rec.LockToken = ""
		rec.Timestamp = l.codec.now()

		applied, err := l.write(ctx, storageKey, previous(raw, found), rec)
		if err != nil {
			return core.QuotaRecord{}, err
		}
		if applied {
			delete(l.pending, storageKey)
			return rec, nil
		}
	}

	return core.QuotaRecord{}, fmt.Errorf("%w: %s", ErrContended, storageKey)
}

// read fetches and decodes a row. A missing row, or one that fails to decode,
// yields a zero record stamped now; found reports whether any row existed.
func (l *Ledger) read(ctx context.Context, storageKey string) (core.Value, bool, core.QuotaRecord, error) {
	raw, found, err := l.backend.Get(ctx, storageKey)
	if err != nil {
		return core.Value{}, false, core.QuotaRecord{}, fmt.Errorf("read ledger row: %w", err)
	}
	zero := core.QuotaRecord{Timestamp: l.codec.now()}
	if !found {
		return raw, false, zero, nil
	}

	rec, err := l.codec.Decode(raw)
	if err != nil {
		l.warn("invalid ledger row, resetting", storageKey,
			zap.String("value", raw.String()), zap.Error(err))
		metrics.RecordLedgerRecovery(metrics.RecoveryMalformedRecord)
		return raw, true, zero, nil
	}
	return raw, true, rec, nil
}

// write stores rec, conditionally on old when the backend can swap.
func (l *Ledger) write(ctx context.Context, storageKey string, old *core.Value, rec core.QuotaRecord) (bool, error) {
	value, err := l.codec.Encode(rec, rec.LockToken)
	if err != nil {
		return false, err
	}
	if l.swapper == nil {
		if err := l.backend.Set(ctx, storageKey, value); err != nil {
			return false, fmt.Errorf("write ledger row: %w", err)
		}
		return true, nil
	}
	applied, err := l.swapper.CompareAndSwap(ctx, storageKey, old, value)
	if err != nil {
		return false, fmt.Errorf("write ledger row: %w", err)
	}
	return applied, nil
}

func (l *Ledger) put(ctx context.Context, storageKey string, rec core.QuotaRecord) error {
	value, err := l.codec.Encode(rec, rec.LockToken)
	if err != nil {
		return err
	}
	if err := l.backend.Set(ctx, storageKey, value); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	return nil
}

func (l *Ledger) warn(msg string, storageKey string, fields ...zap.Field) {
	if l.logger == nil {
		return
	}
	l.logger.Warn(msg, append([]zap.Field{zap.String("key", storageKey)}, fields...)...)
}

func previous(raw core.Value, found bool) *core.Value {
	if !found {
		return nil
	}
	return &raw
}
