package imagegen

import (
	"sync"
	"time"
)

// sweepThreshold bounds the cache map: once it grows past this, expired
// entries are dropped on the next Set.
const sweepThreshold = 4096

// Cache keeps rendered sparklines for a short period so product pages and
// search results don't re-rasterize on every request. Keys are chosen by
// the caller; the image handlers use the tpnc plus the requested size.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached image if present and not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

// Set stores an image under key for the cache's TTL.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= sweepThreshold {
		now := time.Now()
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = cacheEntry{data: data, expiresAt: time.Now().Add(c.ttl)}
}
