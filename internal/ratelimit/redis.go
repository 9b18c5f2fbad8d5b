package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisLimiter shares fixed windows across processes. The first hit in a window
// creates the counter and sets its expiry; later hits only increment.
type RedisLimiter struct {
	client redis.Cmdable
	policy Policy
}

// NewRedisLimiter builds a limiter on a go-redis client.
func NewRedisLimiter(client redis.Cmdable, policy Policy) *RedisLimiter {
	if client == nil {
		panic("ratelimit: redis client required")
	}
	return &RedisLimiter{client: client, policy: policy.normalized()}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, customerID string, _ time.Time) (bool, error) {
	key := redisKeyPrefix + customerID
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	if count == 1 {
		if err := l.client.PExpire(ctx, key, l.policy.Window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: redis expire: %w", err)
		}
	} else {
		// Heal a counter left without an expiry by a crash between INCR and PEXPIRE.
		ttl, err := l.client.PTTL(ctx, key).Result()
		if err == nil && ttl < 0 {
			_ = l.client.PExpire(ctx, key, l.policy.Window).Err()
		}
	}
	if count > int64(l.policy.Max) {
		// Rejected events do not consume budget.
		_ = l.client.Decr(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// Count returns the current window's counter, for diagnostics.
func (l *RedisLimiter) Count(ctx context.Context, customerID string) (int, error) {
	val, err := l.client.Get(ctx, redisKeyPrefix+customerID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis get: %w", err)
	}
	return strconv.Atoi(val)
}
