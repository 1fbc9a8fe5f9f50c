// Package cache provides a Redis-backed read-side cache for event listings
// and dashboard stats. The cache is strictly an optimisation: every miss or
// Redis failure falls through to the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventgate/ticketd/internal/config"
)

// ErrMiss is returned when a key is absent or the cache is disabled.
var ErrMiss = errors.New("cache miss")

// Cache wraps a Redis client with JSON marshalling and a default TTL.
type Cache struct {
	client  *redis.Client
	enabled bool
	ttl     time.Duration
}

// New connects to Redis per cfg. With Enabled=false it returns a no-op cache,
// so callers never need to nil-check.
func New(cfg config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		return &Cache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client, enabled: true, ttl: cfg.TTL}, nil
}

// NewWithClient wraps an existing client; used by tests with redismock.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, enabled: true, ttl: ttl}
}

// Disabled returns a cache that misses on every read and drops every write.
func Disabled() *Cache {
	return &Cache{enabled: false}
}

// Get unmarshals the cached value for key into value, or returns ErrMiss.
func (c *Cache) Get(ctx context.Context, key string, value any) error {
	if !c.enabled {
		return ErrMiss
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, value); err != nil {
		return fmt.Errorf("unmarshal cached %s: %w", key, err)
	}
	return nil
}

// Set stores value under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if !c.enabled {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal for cache %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys; used to invalidate after writes.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled || len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// EventListKey is the cache key for the full event listing.
const EventListKey = "events:list"

// StatsKey is the cache key for the organizer dashboard stats.
const StatsKey = "events:stats"

// EventKey returns the cache key for a single event.
func EventKey(id string) string {
	return "event:" + id
}
