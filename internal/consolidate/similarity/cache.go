package similarity

import (
	"sync"
	"time"
)

type cacheEntry struct {
	vec     []float32
	expires time.Time
}

// embeddingCache is read-mostly shared state: concurrent reads, atomic
// insert-if-absent writes. A zero TTL disables expiry.
type embeddingCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newEmbeddingCache(ttl time.Duration) *embeddingCache {
	return &embeddingCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *embeddingCache) get(key string) ([]float32, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Now().After(entry.expires) {
		c.mu.Lock()
		// Re-check under the write lock; another goroutine may have refreshed it.
		if e, still := c.entries[key]; still && time.Now().After(e.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.vec, true
}

func (c *embeddingCache) put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return // first writer wins
	}
	c.entries[key] = cacheEntry{vec: vec, expires: time.Now().Add(c.ttl)}
}

func (c *embeddingCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
