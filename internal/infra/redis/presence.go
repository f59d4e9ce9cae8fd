package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence marks live play sessions per game so every instance can report
// how many people are playing it. Markers expire after ttl if an instance
// dies without calling Leave.
//
//	SADD presence:{gameID} {attemptID}
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresence(client *redis.Client, ttl time.Duration) *Presence {
	return &Presence{client: client, ttl: ttl}
}

func (p *Presence) Join(ctx context.Context, gameID, attemptID string) error {
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, p.key(gameID), attemptID)
	if p.ttl > 0 {
		pipe.Expire(ctx, p.key(gameID), p.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Presence) Leave(ctx context.Context, gameID, attemptID string) error {
	return p.client.SRem(ctx, p.key(gameID), attemptID).Err()
}

func (p *Presence) Count(ctx context.Context, gameID string) (int, error) {
	n, err := p.client.SCard(ctx, p.key(gameID)).Result()
	return int(n), err
}

func (p *Presence) key(gameID string) string {
	return "presence:" + gameID
}
