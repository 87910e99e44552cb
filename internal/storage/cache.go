// cache.go - In-memory TTL cache for slowly changing lookup data

package storage

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value    V
	loadedAt time.Time
}

// TTLCache memoises loader results per key for a fixed duration
type TTLCache[V any] struct {
	ttl     time.Duration
	entries map[string]cacheEntry[V]
	mu      sync.RWMutex
	now     func() time.Time
}

// NewTTLCache creates an empty cache
func NewTTLCache[V any](ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		ttl:     ttl,
		entries: make(map[string]cacheEntry[V]),
		now:     time.Now,
	}
}

// GetOrLoad returns the cached value or calls load. Failed loads are not cached.
func (c *TTLCache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.loadedAt) < c.ttl {
		return entry.value, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	entry, ok = c.entries[key]
	if ok && c.now().Sub(entry.loadedAt) < c.ttl {
		return entry.value, nil
	}

	value, err := load()
	if err != nil {
		var zero V
		return zero, err
	}

	c.entries[key] = cacheEntry[V]{value: value, loadedAt: c.now()}
	return value, nil
}

// Invalidate removes one key
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every key
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry[V])
}
