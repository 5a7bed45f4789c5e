// Package cache implements the Redis read-through cache SPEC_FULL.md §4.B
// puts in front of UserProfile and the per-user feedback map. It is a
// latency optimization only; DocumentStore remains the source of truth and
// every cached entry is invalidated on write (§5 "no process-wide caches
// may diverge").
//
// Grounded on the teacher's pkg/cache/worker_redis_cache.go.
package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/redis/go-redis/v9"
)

// RedisCache wraps a redis.Client with JSON get/set/delete helpers.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// GetJSON unmarshals the cached value into dest. The bool return reports a
// cache hit; (false, nil) is a clean miss, not an error.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores value under key with ttl. ttl <= 0 means no expiry.
func (c *RedisCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete evicts key, used on every write to the backing document so the
// cache can never serve stale data past the writing request.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
