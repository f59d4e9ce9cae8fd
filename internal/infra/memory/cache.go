package memory

import (
	"context"
	"sync"
	"time"

	"fanfrenzy/internal/pkg/caching"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache is a process-local caching.Cache. Values are msgpack-encoded like
// the redis-backed cache, so callers see the same copy semantics.
type Cache struct {
	clock func() time.Time

	mu    sync.Mutex
	items map[string]cacheItem
}

type cacheItem struct {
	data      []byte
	expiresAt time.Time
}

func NewCache() *Cache {
	return &Cache{clock: time.Now, items: make(map[string]cacheItem)}
}

func (c *Cache) Get(_ context.Context, key string, target any) error {
	c.mu.Lock()
	it, ok := c.items[key]
	if ok && !it.expiresAt.IsZero() && !it.expiresAt.After(c.clock()) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return caching.ErrCacheMiss
	}
	if b, isBytes := target.(*[]byte); isBytes {
		*b = append([]byte(nil), it.data...)
		return nil
	}
	return msgpack.Unmarshal(it.data, target)
}

func (c *Cache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = append([]byte(nil), v...)
	default:
		b, err := msgpack.Marshal(v)
		if err != nil {
			return err
		}
		data = b
	}
	it := cacheItem{data: data}
	if ttl > 0 {
		it.expiresAt = c.clock().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = it
	c.mu.Unlock()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		return caching.ErrCacheMiss
	}
	delete(c.items, key)
	return nil
}
