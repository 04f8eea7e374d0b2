package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// fixedWindow 按自然时间窗口计数，键形如 rate:<scope>:<subject>:<窗口起点>。
type fixedWindow struct {
	client redisRateCounter
	window time.Duration
	limit  int
}

// exceeded 记一次命中，返回是否超过 limit。limit<=0 或 client 为空时不限流。
func (w fixedWindow) exceeded(ctx context.Context, now time.Time, scope string, subject ...string) (bool, error) {
	if w.client == nil || w.limit <= 0 {
		return false, nil
	}
	start := now.UTC().Truncate(w.window).Unix()
	key := fmt.Sprintf("rate:%s:%s:%d", scope, strings.Join(subject, ":"), start)
	count, err := incrWithTTL(ctx, w.client, key, w.window)
	if err != nil {
		return false, err
	}
	return count > int64(w.limit), nil
}

// incrWithTTL 自增计数，首次写入时设置过期时间。
func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := client.Expire(ctx, key, ttl).Err(); err != nil {
			return count, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count, nil
}
