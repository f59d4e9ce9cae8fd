package redis

import (
	"context"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// Limiter budgets cold content generations per client with a GCRA limit.
type Limiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

func NewLimiter(client redis.UniversalClient, perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = 5
	}
	return &Limiter{limiter: redis_rate.NewLimiter(client), limit: redis_rate.PerMinute(perMinute)}
}

func (l *Limiter) Allow(ctx context.Context, client string) (bool, error) {
	if client == "" {
		client = "anonymous"
	}
	res, err := l.limiter.Allow(ctx, "ratelimit:generate:"+client, l.limit)
	if err != nil {
		return false, err
	}
	return res.Allowed > 0, nil
}
