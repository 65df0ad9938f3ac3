package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/policyworks/quotaledger/internal/config"
	"github.com/policyworks/quotaledger/internal/core"
)

//go:embed set.lua
var setScriptSource string

//go:embed swap.lua
var swapScriptSource string

var (
	setScript  = redis.NewScript(setScriptSource)
	swapScript = redis.NewScript(swapScriptSource)
)

const (
	fieldText    = "val"
	fieldInteger = "ival"
	scanBatch    = 256
)

var (
	_ core.Backend = (*RedisStore)(nil)
	_ core.Swapper = (*RedisStore)(nil)
)

// RedisStore keeps each value in a hash named "<table>:<key>" holding either
// a val or an ival field.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to the redis URL in cfg and runs the self-test.
func OpenRedis(ctx context.Context, cfg config.StoreConfig) (*RedisStore, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, errors.New("redis store requires a url")
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return NewRedisStore(ctx, redis.NewClient(opts), table)
}

// NewRedisStore wraps an existing client. The client is closed if the store
// cannot be initialized.
func NewRedisStore(ctx context.Context, client *redis.Client, table string) (*RedisStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis store: %w", err)
	}

	s := &RedisStore{client: client, prefix: table + ":"}
	if err := SelfTest(ctx, s); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// Driver returns the store driver name.
func (s *RedisStore) Driver() string {
	return driverRedis
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (core.Value, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return core.Value{}, false, fmt.Errorf("fetch %s: %w", key, err)
	}
	return decodeFields(key, fields)
}

func (s *RedisStore) Set(ctx context.Context, key string, value core.Value) error {
	kind, raw := encodeArgs(value)
	if err := setScript.Run(ctx, s.client, []string{s.redisKey(key)}, kind, raw).Err(); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.deleteMatching(ctx, EntryQuery{All: true}, true)
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, old *core.Value, next core.Value) (bool, error) {
	oldKind, oldRaw := "n", ""
	if old != nil {
		oldKind, oldRaw = encodeArgs(*old)
	}
	nextKind, nextRaw := encodeArgs(next)

	applied, err := swapScript.Run(ctx, s.client, []string{s.redisKey(key)},
		oldKind, oldRaw, nextKind, nextRaw).Int()
	if err != nil {
		return false, fmt.Errorf("swap %s: %w", key, err)
	}
	return applied == 1, nil
}

func (s *RedisStore) ListEntries(ctx context.Context, q EntryQuery) ([]core.Entry, error) {
	keys, err := s.matchingKeys(ctx, q)
	if err != nil {
		return nil, err
	}

	entries := []core.Entry{}
	for _, key := range keys {
		value, ok, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, core.Entry{Key: key, Value: value})
		}
	}
	return entries, nil
}

func (s *RedisStore) CountEntries(ctx context.Context, q EntryQuery) (int, error) {
	keys, err := s.matchingKeys(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *RedisStore) ResetEntries(ctx context.Context, q EntryQuery) (int64, error) {
	return s.deleteMatching(ctx, q, false)
}

func (s *RedisStore) deleteMatching(ctx context.Context, q EntryQuery, includeSelfTest bool) (int64, error) {
	keys, err := s.scanKeys(ctx, q, includeSelfTest)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	redisKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		redisKeys = append(redisKeys, s.redisKey(key))
	}
	removed, err := s.client.Del(ctx, redisKeys...).Result()
	if err != nil {
		return 0, fmt.Errorf("reset entries: %w", err)
	}
	return removed, nil
}

func (s *RedisStore) matchingKeys(ctx context.Context, q EntryQuery) ([]string, error) {
	return s.scanKeys(ctx, q, false)
}

// scanKeys returns the unprefixed keys selected by q, sorted.
func (s *RedisStore) scanKeys(ctx context.Context, q EntryQuery, includeSelfTest bool) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	pattern := escapeGlob(s.prefix) + "*"
	if !q.All && strings.TrimSpace(q.Key) == "" {
		pattern = escapeGlob(s.prefix+strings.TrimSpace(q.Prefix)) + "*"
	}

	keys := []string{}
	iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), s.prefix)
		if key == SelfTestKey && !includeSelfTest {
			continue
		}
		if q.Matches(key) {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func encodeArgs(value core.Value) (string, string) {
	if value.Kind == core.KindInteger {
		return "i", strconv.FormatInt(value.Integer, 10)
	}
	return "t", value.Text
}

func decodeFields(key string, fields map[string]string) (core.Value, bool, error) {
	if raw, ok := fields[fieldInteger]; ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return core.Value{}, false, fmt.Errorf("fetch %s: invalid integer %q", key, raw)
		}
		return core.IntegerValue(n), true, nil
	}
	if raw, ok := fields[fieldText]; ok {
		return core.TextValue(raw), true, nil
	}
	return core.Value{}, false, nil
}

// escapeGlob escapes redis MATCH metacharacters.
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
