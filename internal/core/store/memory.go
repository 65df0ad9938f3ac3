package store

import (
	"context"
	"sort"
	"sync"

	"github.com/policyworks/quotaledger/internal/core"
)

var (
	_ core.Backend = (*MemoryStore)(nil)
	_ core.Swapper = (*MemoryStore)(nil)
)

// MemoryStore is a volatile backend. Its contents are lost on Close.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]core.Value
}

// NewMemoryStore creates an empty in-memory backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]core.Value)}
}

// Get returns the value stored under key and whether it exists.
func (m *MemoryStore) Get(_ context.Context, key string) (core.Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key, replacing any previous value.
func (m *MemoryStore) Set(_ context.Context, key string, value core.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Remove deletes key. A missing key is not an error.
func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Clear deletes every key.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]core.Value)
	return nil
}

// Close discards the contents. The store stays usable.
func (m *MemoryStore) Close() error {
	return m.Clear(context.Background())
}

// CompareAndSwap stores next only if key still holds old. A nil old means
// the key must be absent.
func (m *MemoryStore) CompareAndSwap(_ context.Context, key string, old *core.Value, next core.Value) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.values[key]
	switch {
	case old == nil && ok:
		return false, nil
	case old != nil && (!ok || !current.Equal(*old)):
		return false, nil
	}
	m.values[key] = next
	return true, nil
}

// ListEntries returns the entries matching q in key order, skipping the
// self-test row.
func (m *MemoryStore) ListEntries(_ context.Context, q EntryQuery) ([]core.Entry, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := []core.Entry{}
	for key, value := range m.values {
		if key != SelfTestKey && q.Matches(key) {
			entries = append(entries, core.Entry{Key: key, Value: value})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// CountEntries counts the entries ListEntries would return.
func (m *MemoryStore) CountEntries(ctx context.Context, q EntryQuery) (int, error) {
	entries, err := m.ListEntries(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ResetEntries deletes the entries matching q and reports how many were removed.
func (m *MemoryStore) ResetEntries(_ context.Context, q EntryQuery) (int64, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key := range m.values {
		if q.Matches(key) {
			delete(m.values, key)
			removed++
		}
	}
	return removed, nil
}
