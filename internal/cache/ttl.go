package cache

import (
	"sync"
	"time"
)

// TTL is a small in-process cache with per-entry expiry. Used to memoize
// tier health probes so the health endpoint does not fan out to every
// backend on each request.
type TTL struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

type entry struct {
	value     any
	expiresAt time.Time
}

// NewTTL creates an empty cache.
func NewTTL() *TTL {
	return &TTL{data: make(map[string]entry), now: time.Now}
}

// Get retrieves a cached value if present and not expired.
func (c *TTL) Get(key string) (any, bool) {
	c.mu.RLock()
	it, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !it.expiresAt.IsZero() && c.now().After(it.expiresAt) {
		c.Delete(key)
		return nil, false
	}
	return it.value, true
}

// Set stores a value. A non-positive ttl means the entry never expires.
func (c *TTL) Set(key string, value any, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.data[key] = entry{value: value, expiresAt: expires}
	c.mu.Unlock()
}

// Delete removes an entry.
func (c *TTL) Delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}
