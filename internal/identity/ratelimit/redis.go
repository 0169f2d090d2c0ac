package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares the failure counter across service instances via a
// fixed-window INCR + EXPIRE pattern. Errors from redis are surfaced to
// the caller rather than silently failing open.
type RedisLimiter struct {
	client *redis.Client

	maxAttempts int
	window      time.Duration
}

func NewRedisLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

func (l *RedisLimiter) key(k string) string {
	return "mfa:att:" + k
}

func (l *RedisLimiter) Check(ctx context.Context, key string) error {
	count, err := l.client.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("ratelimit: redis get failed: %w", err)
	}
	if count >= int64(l.maxAttempts) {
		return ErrLimited
	}
	return nil
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, key string) error {
	count, err := l.client.Incr(ctx, l.key(key)).Result()
	if err != nil {
		return fmt.Errorf("ratelimit: redis incr failed: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, l.key(key), l.window).Err(); err != nil {
			return fmt.Errorf("ratelimit: redis expire failed: %w", err)
		}
	}
	if count >= int64(l.maxAttempts) {
		return ErrLimited
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis del failed: %w", err)
	}
	return nil
}
