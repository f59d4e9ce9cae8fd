package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lease serializes cold generations of one content key across instances.
type Lease struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
	log    *zap.Logger
}

// NewLease holds each lock for at most expiry; waiters poll up to tries times.
func NewLease(client redis.UniversalClient, expiry time.Duration, tries int, log *zap.Logger) *Lease {
	if log == nil {
		log = zap.NewNop()
	}
	if tries <= 0 {
		tries = 32
	}
	return &Lease{rs: redsync.New(goredis.NewPool(client)), expiry: expiry, tries: tries, log: log}
}

func (l *Lease) Acquire(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex("lease:content:"+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("lease %s: %w", key, err)
	}
	return func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			l.log.Warn("lease release failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
