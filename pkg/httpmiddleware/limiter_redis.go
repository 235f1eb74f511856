package httpmiddleware

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps one sorted set per key, scored by request time, so the
// window is shared by every server instance.
type RedisLimiter struct {
	rdb    redis.Cmdable
	prefix string
	max    int
	window time.Duration
}

// NewRedisLimiter allows max requests per window and key across all
// instances using rdb.
func NewRedisLimiter(rdb redis.Cmdable, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, max: max, window: window}
}

func (l *RedisLimiter) Limit() int { return l.max }

func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (Quota, error) {
	k := l.prefix + key
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixNano(), 10)

	var card *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", "("+cutoff)
		p.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
		card = p.ZCard(ctx, k)
		p.PExpire(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return Quota{}, errors.Wrap(err, "rate limit pipeline")
	}

	n := int(card.Val())
	return Quota{
		Allowed:   n <= l.max,
		Remaining: max(l.max-n, 0),
		Reset:     now.Add(l.window),
	}, nil
}
