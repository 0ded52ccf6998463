package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/storage"
	"github.com/redis/go-redis/v9"
)

// FixedWindowLimiter bounds inbound client requests using a redis-backed
// fixed window counter, shared across gateway instances. Outbound broker
// calls use the in-memory TokenBucket instead.
type FixedWindowLimiter struct {
	redis  *storage.RedisClient
	limit  int
	window time.Duration
}

func NewFixedWindow(redis *storage.RedisClient, limit int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		redis:  redis,
		limit:  limit,
		window: window,
	}
}

func (f *FixedWindowLimiter) key(key string) string {
	currentWindow := time.Now().Unix() / int64(f.window.Seconds())
	return fmt.Sprintf("client:ratelimit:%s:%d", key, currentWindow)
}

func (f *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := f.key(key)

	count, err := f.redis.Incr(ctx, redisKey)
	if err != nil {
		return false, err
	}

	if count == 1 {
		f.redis.Expire(ctx, redisKey, f.window)
	}

	return count <= int64(f.limit), nil
}

func (f *FixedWindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	val, err := f.redis.Get(ctx, f.key(key))
	if err == redis.Nil {
		return f.limit, nil
	}
	if err != nil {
		return 0, err
	}

	count, _ := strconv.Atoi(val)
	remaining := f.limit - count
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

func (f *FixedWindowLimiter) Limit() int {
	return f.limit
}

// Reset returns when the current window rolls over.
func (f *FixedWindowLimiter) Reset() time.Time {
	currentWindow := time.Now().Unix() / int64(f.window.Seconds())
	return time.Unix((currentWindow+1)*int64(f.window.Seconds()), 0)
}
