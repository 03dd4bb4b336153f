package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter ограничивает количество писем на получателя в окне
// (см. services/notifier). Счётчик общий между инстансами.
type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c: redis.NewClient(&redis.Options{
			Addr:        addr,
			DialTimeout: 3 * time.Second,
			ReadTimeout: 2 * time.Second,
		}),
	}
}

// Allow делает INCR по ключу. TTL ставится только при первом инкременте,
// чтобы окно не продлевалось каждым письмом. Возвращает (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}
