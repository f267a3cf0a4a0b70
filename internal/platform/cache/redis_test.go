package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu       sync.Mutex
	values   map[string]string
	ttls     map[string]time.Duration
	getErr   error
	scanSize int
	deleted  []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}, scanSize: 2}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

// Scan pages through matching keys in sorted order, scanSize at a time.
func (f *fakeRedis) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(match, "*")
	matched := make([]string, 0)
	for key := range f.values {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	sort.Strings(matched)
	start := int(cursor)
	end := start + f.scanSize
	if end >= len(matched) {
		end = len(matched)
		return redis.NewScanCmdResult(matched[start:end], 0, nil)
	}
	return redis.NewScanCmdResult(matched[start:end], uint64(end), nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error { return nil }

type listing struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

func TestSetThenGetRoundTripsWithTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	c := newRedisCache(client, 2*time.Minute)

	require.NoError(t, c.Set(ctx, "catalog:featured:8", listing{IDs: []string{"w1", "w2"}, Count: 2}))
	assert.Equal(t, 2*time.Minute, client.ttls["atelier:catalog:featured:8"])

	var got listing
	ok, err := c.Get(ctx, "catalog:featured:8", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, listing{IDs: []string{"w1", "w2"}, Count: 2}, got)
}

func TestGetMissAndBackendError(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	c := newRedisCache(client, 0)
	assert.Equal(t, defaultTTL, c.ttl)

	var got listing
	ok, err := c.Get(ctx, "catalog:categories", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	client.getErr = errors.New("connection refused")
	ok, err = c.Get(ctx, "catalog:categories", &got)
	require.Error(t, err)
	assert.False(t, ok)
}

func TestGetTreatsUndecodableEntryAsMiss(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	client.values["atelier:catalog:categories"] = "{not json"
	c := newRedisCache(client, time.Minute)

	var got listing
	ok, err := c.Get(ctx, "catalog:categories", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateWalksEveryScanPage(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	c := newRedisCache(client, time.Minute, WithNamespace("test:"))
	for _, key := range []string{"catalog:a", "catalog:b", "catalog:c", "catalog:d", "catalog:e", "sessions:x"} {
		require.NoError(t, c.Set(ctx, key, 1))
	}

	require.NoError(t, c.Invalidate(ctx, "catalog:"))
	assert.ElementsMatch(t, []string{
		"test:catalog:a", "test:catalog:b", "test:catalog:c", "test:catalog:d", "test:catalog:e",
	}, client.deleted)
}

func TestNewRedisCacheRequiresAddress(t *testing.T) {
	_, err := NewRedisCache(Options{Addr: " "})
	require.Error(t, err)

	c, err := NewRedisCache(Options{Addr: "localhost:6379", TTL: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, c.ttl)
	require.NoError(t, c.Close())
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `catalog:\*\?\[x\]`, escapeGlob("catalog:*?[x]"))
}
