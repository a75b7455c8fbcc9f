package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter implements Counter on a shared Redis instance so abuse
// counts survive restarts and aggregate across replicas.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter creates a Redis-backed counter. All keys are
// namespaced under prefix.
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) key(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Incr increments the counter and arms the expiry only when the key is
// new, keeping the window anchored to the first event.
func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := c.key(key)
	count, err := c.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 && ttl > 0 {
		if err := c.client.Expire(ctx, k, ttl).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Get returns the current count, zero when the key is absent
func (c *RedisCounter) Get(ctx context.Context, key string) (int64, error) {
	count, err := c.client.Get(ctx, c.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}
