// Package cache provides the Redis-backed list cache used for hot catalog reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	defaultTTL       = 5 * time.Minute
	defaultNamespace = "atelier:"
	scanBatch        = 100
	metricNamespace  = "github.com/atelier-gallery/api/internal/platform/cache"
)

// redisClient is the subset of *redis.Client the cache relies on.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache stores JSON-encoded values under a namespaced key with a fixed TTL.
type RedisCache struct {
	client    redisClient
	ttl       time.Duration
	namespace string
	logger    *zap.Logger
	lookups   metric.Int64Counter
}

// Option customises a RedisCache.
type Option func(*RedisCache)

// WithLogger sets the logger used for backend failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *RedisCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNamespace prefixes every key, allowing several deployments to share one Redis.
func WithNamespace(namespace string) Option {
	return func(c *RedisCache) {
		c.namespace = namespace
	}
}

// NewRedisCache dials Redis with the supplied options. The connection is verified lazily.
func NewRedisCache(opts Options, options ...Option) (*RedisCache, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("cache: redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return newRedisCache(client, opts.TTL, options...), nil
}

func newRedisCache(client redisClient, ttl time.Duration, options ...Option) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c := &RedisCache{
		client:    client,
		ttl:       ttl,
		namespace: defaultNamespace,
		logger:    zap.NewNop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	counter, err := otel.GetMeterProvider().Meter(metricNamespace).Int64Counter(
		"cache.lookups",
		metric.WithDescription("Catalog cache lookups by result"),
	)
	if err == nil {
		c.lookups = counter
	}
	return c
}

// Get decodes the cached value into dest. Missing keys report ok=false with a nil error.
func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, c.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record(ctx, "miss")
		return false, nil
	}
	if err != nil {
		c.record(ctx, "error")
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// stale layout from an older release; treat as a miss
		c.record(ctx, "miss")
		c.logger.Warn("cache: discarding undecodable entry", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	c.record(ctx, "hit")
	return true, nil
}

// Set stores value as JSON with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.namespace+key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Invalidate removes every key beginning with prefix. SCAN is used so large keyspaces do not
// block the server.
func (c *RedisCache) Invalidate(ctx context.Context, prefix string) error {
	match := c.namespace + escapeGlob(prefix) + "*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("cache: scan %s: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache: delete %s: %w", prefix, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping checks connectivity for readiness probes.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) record(ctx context.Context, result string) {
	if c.lookups == nil {
		return
	}
	c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func escapeGlob(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)
	return replacer.Replace(value)
}
