package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimiter counts hits per key in fixed windows.
type RateLimiter struct {
	client    *redis.Client
	keyPrefix string
}

func NewRateLimiter(client *redis.Client, keyPrefix string) *RateLimiter {
	if client == nil {
		panic("redis client cannot be nil for RateLimiter")
	}
	return &RateLimiter{client: client, keyPrefix: normalizePrefix(keyPrefix) + "ratelimit:"}
}

// Exceeded increments the counter for key and reports whether it went over limit.
func (r *RateLimiter) Exceeded(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.keyPrefix + key
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit pipeline for %s: %w", fullKey, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit incr for %s: %w", fullKey, err)
	}
	return count > int64(limit), nil
}
