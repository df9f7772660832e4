package hooks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// CacheKey hashes (tool, params) into a stable cache fingerprint, per
// spec.md §4.7's "validation cache keys on the hash of (tool, params)".
func CacheKey(tool string, params map[string]any) string {
	payload, _ := json.Marshal(params)
	h := sha256.Sum256(append([]byte(tool+":"), payload...))
	return hex.EncodeToString(h[:])
}

type cacheEntry struct {
	decision  Decision
	expiresAt time.Time
}

// Cache is a TTL'd cache of hook decisions, keyed on CacheKey. It tracks
// hit/miss counters for the `system.metrics` surface.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// NewCache returns a Cache with the given entry TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]cacheEntry), ttl: ttl}
}

// Get returns a cached decision and true if present and unexpired.
func (c *Cache) Get(key string) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		c.misses++
		return Decision{}, false
	}
	c.hits++
	d := e.decision
	d.CacheHit = true
	return d, true
}

// Set stores a decision under key with the cache's configured TTL.
func (c *Cache) Set(key string, d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{decision: d, expiresAt: time.Now().Add(c.ttl)}
}

// Stats returns cumulative hit/miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Purge drops every expired entry. Intended to be called periodically by
// a sweeper goroutine so the cache does not grow unbounded.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
