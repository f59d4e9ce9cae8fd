package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"fanfrenzy/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// EntryStore is the durable store behind the redis hot layer.
type EntryStore interface {
	GetEntry(ctx context.Context, sourceID string) (domain.CacheEntry, bool, error)
	UpsertEntry(ctx context.Context, entry domain.CacheEntry) error
}

// EntryCache keeps generated content in redis (one hash per game) and falls
// back to the durable store on a miss.
//
//	HSET game_cache:{sourceID} payload {json} source {model} fetched_at {unix ms} needs_review {0|1}
type EntryCache struct {
	client *redis.Client
	next   EntryStore
	ttl    time.Duration
	log    *zap.Logger
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewEntryCache(client *redis.Client, next EntryStore, ttl time.Duration, log *zap.Logger) *EntryCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &EntryCache{
		client: client,
		next:   next,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *EntryCache) GetEntry(ctx context.Context, sourceID string) (domain.CacheEntry, bool, error) {
	if e, ok := c.readHash(ctx, sourceID); ok {
		return e, true, nil
	}

	type result struct {
		entry domain.CacheEntry
		ok    bool
	}
	v, err, _ := c.sf.Do(sourceID, func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if e, ok := c.readHash(ctx, sourceID); ok {
			return result{e, true}, nil
		}
		e, ok, err := c.next.GetEntry(ctx, sourceID)
		if err != nil || !ok {
			return result{}, err
		}
		c.writeHash(ctx, e)
		return result{e, true}, nil
	})
	if err != nil {
		return domain.CacheEntry{}, false, err
	}
	r := v.(result)
	return r.entry, r.ok, nil
}

// UpsertEntry writes the durable store first; redis only mirrors it.
func (c *EntryCache) UpsertEntry(ctx context.Context, entry domain.CacheEntry) error {
	if err := c.next.UpsertEntry(ctx, entry); err != nil {
		_ = c.client.Del(ctx, c.key(entry.SourceID)).Err()
		return err
	}
	c.writeHash(ctx, entry)
	return nil
}

func (c *EntryCache) readHash(ctx context.Context, sourceID string) (domain.CacheEntry, bool) {
	fields, err := c.client.HGetAll(ctx, c.key(sourceID)).Result()
	if err != nil {
		c.log.Warn("redis game cache read failed", zap.String("key", sourceID), zap.Error(err))
		return domain.CacheEntry{}, false
	}
	payload, ok := fields["payload"]
	if !ok || !json.Valid([]byte(payload)) {
		return domain.CacheEntry{}, false
	}
	e := domain.CacheEntry{
		SourceID:    sourceID,
		Payload:     json.RawMessage(payload),
		Source:      fields["source"],
		NeedsReview: fields["needs_review"] == "1",
	}
	if ms, err := strconv.ParseInt(fields["fetched_at"], 10, 64); err == nil {
		e.FetchedAt = time.UnixMilli(ms).UTC()
	}
	return e, true
}

// writeHash is best effort: the durable store already has the entry.
func (c *EntryCache) writeHash(ctx context.Context, e domain.CacheEntry) {
	key := c.key(e.SourceID)
	review := "0"
	if e.NeedsReview {
		review = "1"
	}
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"payload", string(e.Payload),
		"source", e.Source,
		"fetched_at", strconv.FormatInt(e.FetchedAt.UnixMilli(), 10),
		"needs_review", review,
	)
	if ttl := c.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("redis game cache write failed", zap.String("key", e.SourceID), zap.Error(err))
	}
}

func (c *EntryCache) key(sourceID string) string {
	return "game_cache:" + sourceID
}

func (c *EntryCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
