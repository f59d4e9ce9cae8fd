package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"fanfrenzy/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CacheStore keeps generated content entries in a map keyed by source id.
type CacheStore struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
}

func NewCacheStore() *CacheStore {
	return &CacheStore{entries: make(map[string]domain.CacheEntry)}
}

func (s *CacheStore) GetEntry(_ context.Context, sourceID string) (domain.CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[sourceID]
	return e, ok, nil
}

func (s *CacheStore) UpsertEntry(_ context.Context, entry domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.SourceID] = entry
	return nil
}

// Len is the number of stored entries.
func (s *CacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EntryStore is the backing store an EntryCache reads through.
type EntryStore interface {
	GetEntry(ctx context.Context, sourceID string) (domain.CacheEntry, bool, error)
	UpsertEntry(ctx context.Context, entry domain.CacheEntry) error
}

// EntryCache fronts an EntryStore with a process-local TTL cache so hot games
// do not hit the database on every request.
type EntryCache struct {
	next  EntryStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedEntry
}

type cachedEntry struct {
	entry     domain.CacheEntry
	expiresAt time.Time
}

func NewEntryCache(next EntryStore, ttl time.Duration) *EntryCache {
	return &EntryCache{
		next:  next,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedEntry),
	}
}

func (c *EntryCache) GetEntry(ctx context.Context, sourceID string) (domain.CacheEntry, bool, error) {
	if e, ok := c.fresh(sourceID); ok {
		return e, true, nil
	}

	type result struct {
		entry domain.CacheEntry
		ok    bool
	}
	v, err, _ := c.sf.Do(sourceID, func() (interface{}, error) {
		if e, ok := c.fresh(sourceID); ok {
			return result{e, true}, nil
		}
		e, ok, err := c.next.GetEntry(ctx, sourceID)
		if err != nil || !ok {
			return result{}, err
		}
		c.store(e)
		return result{e, true}, nil
	})
	if err != nil {
		return domain.CacheEntry{}, false, err
	}
	r := v.(result)
	return r.entry, r.ok, nil
}

// UpsertEntry writes through to the backing store, then refreshes the local copy.
func (c *EntryCache) UpsertEntry(ctx context.Context, entry domain.CacheEntry) error {
	if err := c.next.UpsertEntry(ctx, entry); err != nil {
		c.mu.Lock()
		delete(c.cache, entry.SourceID)
		c.mu.Unlock()
		return err
	}
	c.store(entry)
	return nil
}

func (c *EntryCache) fresh(sourceID string) (domain.CacheEntry, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.cache[sourceID]; ok && e.expiresAt.After(now) {
		return e.entry, true
	}
	return domain.CacheEntry{}, false
}

func (c *EntryCache) store(e domain.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[e.SourceID] = cachedEntry{entry: e, expiresAt: c.clock().Add(c.ttlWithJitterLocked())}
}

func (c *EntryCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
