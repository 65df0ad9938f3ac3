package store

import (
	"context"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/policyworks/quotaledger/internal/config"
	"github.com/policyworks/quotaledger/internal/core"
)

type adminBackend interface {
	core.Backend
	core.Swapper
	Admin
}

// exerciseBackend checks the behaviour every bundled backend shares.
func exerciseBackend(t *testing.T, b adminBackend) {
	t.Helper()
	ctx := context.Background()

	t.Run("MissingKey", func(t *testing.T) {
		_, ok, err := b.Get(ctx, "absent")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("KindRoundTrips", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "text", core.TextValue(`{"tm": 1}`)))
		require.NoError(t, b.Set(ctx, "int", core.IntegerValue(-7)))

		got, ok, err := b.Get(ctx, "text")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, core.TextValue(`{"tm": 1}`), got)

		got, ok, err = b.Get(ctx, "int")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, core.IntegerValue(-7), got)
	})

	t.Run("OverwriteChangesKind", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "flip", core.IntegerValue(3)))
		require.NoError(t, b.Set(ctx, "flip", core.TextValue("3")))

		got, _, err := b.Get(ctx, "flip")
		require.NoError(t, err)
		require.Equal(t, core.KindText, got.Kind)
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "gone", core.TextValue("x")))
		require.NoError(t, b.Remove(ctx, "gone"))
		require.NoError(t, b.Remove(ctx, "gone"))

		_, ok, err := b.Get(ctx, "gone")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("CompareAndSwap", func(t *testing.T) {
		ok, err := b.CompareAndSwap(ctx, "cas", nil, core.TextValue("a"))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = b.CompareAndSwap(ctx, "cas", nil, core.TextValue("b"))
		require.NoError(t, err)
		require.False(t, ok, "insert-if-absent must fail on an existing key")

		stale := core.TextValue("zzz")
		ok, err = b.CompareAndSwap(ctx, "cas", &stale, core.TextValue("b"))
		require.NoError(t, err)
		require.False(t, ok)

		wrongKind := core.IntegerValue(0)
		ok, err = b.CompareAndSwap(ctx, "cas", &wrongKind, core.TextValue("b"))
		require.NoError(t, err)
		require.False(t, ok)

		current := core.TextValue("a")
		ok, err = b.CompareAndSwap(ctx, "cas", &current, core.TextValue("b"))
		require.NoError(t, err)
		require.True(t, ok)

		same := core.TextValue("b")
		ok, err = b.CompareAndSwap(ctx, "cas", &same, core.TextValue("b"))
		require.NoError(t, err)
		require.True(t, ok, "swapping in an identical value still applies")

		got, _, err := b.Get(ctx, "cas")
		require.NoError(t, err)
		require.Equal(t, core.TextValue("b"), got)
	})

	t.Run("Admin", func(t *testing.T) {
		require.NoError(t, b.Clear(ctx))
		require.NoError(t, b.Set(ctx, "aa:uploads", core.TextValue("1")))
		require.NoError(t, b.Set(ctx, "aa:logins", core.TextValue("2")))
		require.NoError(t, b.Set(ctx, "bb:uploads", core.TextValue("3")))

		entries, err := b.ListEntries(ctx, EntryQuery{All: true})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		require.Equal(t, "aa:logins", entries[0].Key)

		count, err := b.CountEntries(ctx, EntryQuery{Prefix: "aa:"})
		require.NoError(t, err)
		require.Equal(t, 2, count)

		_, err = b.ListEntries(ctx, EntryQuery{})
		require.Error(t, err)

		removed, err := b.ResetEntries(ctx, EntryQuery{Key: "bb:uploads"})
		require.NoError(t, err)
		require.EqualValues(t, 1, removed)

		removed, err = b.ResetEntries(ctx, EntryQuery{Prefix: "aa:"})
		require.NoError(t, err)
		require.EqualValues(t, 2, removed)

		count, err = b.CountEntries(ctx, EntryQuery{All: true})
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "one", core.TextValue("1")))
		require.NoError(t, b.Clear(ctx))

		_, ok, err := b.Get(ctx, "one")
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseBackend(t, NewMemoryStore())
}

func TestMemoryStoreCloseAndSelfTestRow(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.Set(ctx, SelfTestKey, core.TextValue("self-test")))
	require.NoError(t, m.Set(ctx, "aa:uploads", core.TextValue("1")))
	entries, err := m.ListEntries(ctx, EntryQuery{All: true})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "aa:uploads", entries[0].Key)

	require.NoError(t, m.Close())
	_, ok, err := m.Get(ctx, "aa:uploads")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Set(ctx, "aa:uploads", core.TextValue("2")))
	count, err := m.CountEntries(ctx, EntryQuery{Prefix: "aa:"})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestConnectMemory(t *testing.T) {
	b, err := Connect(context.Background(), config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, b)
	require.NoError(t, b.Close())
}

func redisURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("QUOTALEDGER_TEST_REDIS_URL"); url != "" {
		return url
	}
	mr := miniredis.RunT(t)
	return "redis://" + mr.Addr()
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{Driver: "redis", URL: redisURL(t), Table: "ledger_test"}

	b, err := Connect(ctx, cfg)
	require.NoError(t, err)
	rs, ok := b.(*RedisStore)
	require.True(t, ok)
	defer func() { _ = rs.Close() }()

	require.Equal(t, "redis", rs.Driver())
	exerciseBackend(t, rs)
}

func TestRedisStoreSharedAcrossHandles(t *testing.T) {
	ctx := context.Background()
	cfg := config.StoreConfig{URL: redisURL(t), Table: "shared"}

	first, err := OpenRedis(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = first.Close() }()
	second, err := OpenRedis(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	ok, err := first.CompareAndSwap(ctx, "row", nil, core.TextValue("first"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.CompareAndSwap(ctx, "row", nil, core.TextValue("second"))
	require.NoError(t, err)
	require.False(t, ok)

	got, _, err := second.Get(ctx, "row")
	require.NoError(t, err)
	require.Equal(t, core.TextValue("first"), got)
}

func TestOpenRedisRequiresURL(t *testing.T) {
	_, err := OpenRedis(context.Background(), config.StoreConfig{Driver: "redis"})
	require.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	require.Equal(t, `vals:a\*b\?`, escapeGlob("vals:a*b?"))
}
