package explorer

import (
	"sync"
	"time"
)

// BalanceTTL is how long cached balance reads stay fresh.
const BalanceTTL = 30 * time.Second

// Cache is a namespaced in-memory cache with per-entry TTL. Namespaces
// keep unrelated consumers (balances, explorer responses) from
// colliding on short keys.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func cacheKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// Get returns the cached value for a key if it has not expired.
func (c *Cache) Get(namespace, key string) (interface{}, bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(namespace, key)]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, cacheKey(namespace, key))
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Set stores a value under the key for ttl. A non-positive ttl is a
// no-op.
func (c *Cache) Set(namespace, key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[cacheKey(namespace, key)] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
}

// Delete removes a cached entry.
func (c *Cache) Delete(namespace, key string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(namespace, key))
	c.mu.Unlock()
}
