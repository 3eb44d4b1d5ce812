package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Cache backed by a Redis server. Expiry is delegated to Redis
// key TTLs so every instance sharing the server sees the same state.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps client. Every key is namespaced with prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Set stores value under key with the given TTL, overwriting any prior value.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("storing %q in redis: %w", key, err)
	}
	return nil
}

// Get returns the value for key, or ErrNotFound once Redis has expired it.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %q from redis: %w", key, err)
	}
	return val, nil
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("deleting %q from redis: %w", key, err)
	}
	return nil
}

// Incr increments the integer stored under key. The TTL is set by the call
// that creates the key.
func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := r.prefix + key
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing %q in redis: %w", key, err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, k, ttl).Err(); err != nil {
			return 0, fmt.Errorf("setting expiry on %q in redis: %w", key, err)
		}
	}
	return n, nil
}
