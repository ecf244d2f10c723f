package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Redis is a fixed one-minute window counter shared by every replica.
type Redis struct {
	rdb    goredis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedis(rdb goredis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Redis{rdb: rdb, prefix: prefix, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string, n, perMinute int) (Decision, error) {
	if perMinute <= 0 {
		return Decision{Allowed: true}, nil
	}
	if n <= 0 {
		n = 1
	}
	if n > perMinute {
		return Decision{Allowed: false, RetryAfter: time.Minute}, nil
	}

	now := r.now()
	window := now.Truncate(time.Minute)
	windowKey := fmt.Sprintf("%s:%s:%d", r.prefix, key, window.Unix())

	var incr *goredis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.IncrBy(ctx, windowKey, int64(n))
		p.Expire(ctx, windowKey, 2*time.Minute)
		return nil
	})
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("ratelimit incr: %w", err)
	}

	count := incr.Val()
	if count <= int64(perMinute) {
		return Decision{Allowed: true, Remaining: perMinute - int(count)}, nil
	}

	// Denied requests do not spend budget. A failed refund only over-counts
	// until the window rolls over.
	_ = r.rdb.DecrBy(ctx, windowKey, int64(n)).Err()
	return Decision{Allowed: false, RetryAfter: retryAfterAtLeastSecond(window.Add(time.Minute).Sub(now))}, nil
}
