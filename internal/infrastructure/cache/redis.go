// Package cache wraps the Redis client used as VizFlow's fast store: the
// read-through query cache, execution records, pub/sub transport for the
// Live Channel Hub, and the embed rate limiter. Adapted closely from the
// teacher's internal/infrastructure/cache/redis.go.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vizflow/vizflow/internal/config"
)

// RedisCache wraps the Redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache dials Redis and verifies connectivity.
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.PoolSize = cfg.PoolSize
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Client returns the underlying go-redis client, for components (pub/sub,
// rate limiting) that need direct access.
func (c *RedisCache) Client() *redis.Client { return c.client }

// Close closes the connection.
func (c *RedisCache) Close() error { return c.client.Close() }

// Health pings Redis.
func (c *RedisCache) Health(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Get retrieves a value by key. Returns redis.Nil (wrapped) on miss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Set stores a value with an optional TTL (0 means no expiry).
func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes one or more keys.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Exists reports how many of the given keys exist.
func (c *RedisCache) Exists(ctx context.Context, keys ...string) (int64, error) {
	return c.client.Exists(ctx, keys...).Result()
}

// IsMiss reports whether err is a cache-miss (key not found), as opposed
// to an actual connectivity/command error.
func IsMiss(err error) bool { return err == redis.Nil }
