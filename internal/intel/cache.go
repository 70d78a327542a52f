package intel

import (
	"sync"
	"time"
)

// cacheEntry holds a cached upstream result.
type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// ttlCache is a thread-safe in-memory cache keyed by string. Expired entries
// remain readable through stale until evict removes them.
type ttlCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry[V]
	ttl     time.Duration
	now     func() time.Time
}

func newTTLCache[V any](ttl time.Duration) *ttlCache[V] {
	return &ttlCache[V]{
		entries: make(map[string]*cacheEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// get returns a fresh entry for key.
func (c *ttlCache[V]) get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// stale returns the entry for key whether or not it has expired.
func (c *ttlCache[V]) stale(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// set stores value under key.
func (c *ttlCache[V]) set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// evict removes all expired entries and returns how many were dropped.
func (c *ttlCache[V]) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// len returns the number of cached entries (including expired).
func (c *ttlCache[V]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
