package registry

import (
	"sync"
	"time"
)

// resultCache is a TTL'd fingerprint→result cache, the same shape as the
// teacher's internal/rpc.QueryCache (sha256-of-op+args key, RWMutex-
// guarded map, hit/miss counters) but genericized to any registry result
// instead of a fixed Response type.
type resultCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	hits    int64
	misses  int64
}

type cacheEntry struct {
	value     any
	timestamp time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	if ttl == 0 {
		ttl = 10 * time.Second
	}
	return &resultCache{entries: make(map[string]cacheEntry), ttl: ttl}
}

// Get returns the cached value for key if present and unexpired.
func (c *resultCache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Since(entry.timestamp) > c.ttl {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return entry.value, true
}

// Set stores value under key, stamped with the current time.
func (c *resultCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, timestamp: time.Now()}
}

// Stats returns cumulative hit/miss counts.
func (c *resultCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Invalidate drops every expired entry. Intended for a periodic sweep.
func (c *resultCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.Sub(e.timestamp) > c.ttl {
			delete(c.entries, k)
		}
	}
}
