// Package redis implements Redis caching and pub/sub infrastructure for the
// progression engine.
//
// Key components:
//   - Cache: general-purpose caching with TTL management
//   - BoardCache: hot leaderboard data backed by sorted sets
//   - Catalog caches: read-through decorators for the rank and achievement catalogs
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config describes how to reach the Redis server and how the
// connection pool behaves.
type Config struct {
	Host     string
	Port     int
	Password string // empty when auth is disabled
	DB       int    // database number, 0-15

	PoolSize     int // socket cap
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration // wait for a free connection
}

// DefaultConfig covers a local single-instance Redis; production values
// come from the environment.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Addr joins host and port for the go-redis client.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Cache errors. Callers branch on ErrCacheMiss to fall back to the
// repository; the rest surface as degradation warnings.
var (
	ErrCacheMiss          = errors.New("cache: key not found")
	ErrCacheConnection    = errors.New("cache: connection failed")
	ErrCacheSerialization = errors.New("cache: serialization failed")
	ErrCacheInvalidTTL    = errors.New("cache: invalid TTL")
	ErrCacheKeyEmpty      = errors.New("cache: key cannot be empty")
	ErrCacheNilValue      = errors.New("cache: value cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS & TTLs
// ══════════════════════════════════════════════════════════════════════════════

// Every engine key lives under one of these namespaces so that
// DeleteByPattern can clear a whole family at once.
const (
	PrefixLeaderboard = "leaderboard:"
	PrefixCatalog     = "catalog:"
)

// TTLs tuned to how fast the underlying data moves. Boards churn with
// every evaluation pass; catalogs change only on admin edits, and the
// engine tolerates that much staleness.
const (
	TTLBoardCache   = 5 * time.Minute
	TTLCatalogCache = 10 * time.Minute
)

// BoardKey builds the key for a cached leaderboard.
func BoardKey(metric, period string) string {
	return fmt.Sprintf("%sboard:%s:%s", PrefixLeaderboard, metric, period)
}

// ScoresKey builds the key for a leaderboard score sorted set.
func ScoresKey(metric, period string) string {
	return fmt.Sprintf("%sscores:%s:%s", PrefixLeaderboard, metric, period)
}

// CatalogKey builds a catalog cache key.
func CatalogKey(name string) string {
	return PrefixCatalog + name
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache wraps the Redis client with JSON serialization and the engine's
// error vocabulary. Board and catalog caches build on it; the worker
// uses SetNX directly as its job lock.
type Cache struct {
	client *redis.Client
	config Config
}

// NewCache dials Redis and verifies the connection before returning.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return &Cache{
		client: client,
		config: cfg,
	}, nil
}

// Client exposes the underlying Redis client for components that need
// operations beyond the Cache surface, like the event bus adapter.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping reports whether Redis answers; the health endpoint calls it.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Set marshals value to JSON and stores it under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if value == nil {
		return ErrCacheNilValue
	}
	if ttl < 0 {
		return ErrCacheInvalidTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get reads key into dest. A missing key is ErrCacheMiss, which
// callers treat as a signal to fall back to Postgres.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return nil
}

// Delete drops the given keys; a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return c.client.Del(ctx, keys...).Err()
}

// Exists reports whether key is present.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrCacheKeyEmpty
	}

	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// Expire replaces the TTL on an existing key.
func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if ttl < 0 {
		return ErrCacheInvalidTTL
	}

	return c.client.Expire(ctx, key, ttl).Err()
}

// DeleteByPattern removes all keys matching a pattern using SCAN to avoid
// blocking the server. Cache invalidation after a rank change clears a
// whole leaderboard namespace this way.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) error {
	if pattern == "" {
		return ErrCacheKeyEmpty
	}

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}

	return nil
}

// SetNX sets a key only if it doesn't exist. Used for distributed locks
// around scheduler jobs that must not run on two workers at once.
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrCacheKeyEmpty
	}

	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return c.client.SetNX(ctx, key, data, ttl).Result()
}

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB
// ══════════════════════════════════════════════════════════════════════════════

// Publish marshals message to JSON and sends it on channel. The Redis
// event bus adapter uses it to fan events out across instances.
func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	if channel == "" {
		return ErrCacheKeyEmpty
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return c.client.Publish(ctx, channel, data).Err()
}

// Subscribe opens a subscription on the given channels; the caller
// owns the returned PubSub and must close it.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.client.Subscribe(ctx, channels...)
}
