package service

import (
	"sync"
	"time"
)

const defaultCacheCapacity = 100

// TTLCache is a process-lifetime map with TTL-on-read expiry and bounded-size
// FIFO eviction: once capacity is exceeded the oldest *inserted* key is
// dropped, regardless of access pattern. FIFO rather than LRU is deliberate;
// see the eviction tests before changing it.
type TTLCache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]cacheEntry[V]
	order    []string // insertion order, oldest first

	// now is swappable for tests
	now func() time.Time
}

type cacheEntry[V any] struct {
	value      V
	insertedAt time.Time
}

// NewTTLCache creates a cache with the given TTL and a capacity of 100.
func NewTTLCache[V any](ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		ttl:      ttl,
		capacity: defaultCacheCapacity,
		entries:  make(map[string]cacheEntry[V]),
		now:      time.Now,
	}
}

// Get returns the cached value for key if present and not expired.
// Expired entries are removed on read.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(entry.insertedAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return zero, false
	}
	return entry.value, true
}

// Set inserts or refreshes a value. Inserting beyond capacity evicts the
// oldest inserted key.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.removeFromOrder(key)
	}
	c.entries[key] = cacheEntry[V]{value: value, insertedAt: c.now()}
	c.order = append(c.order, key)

	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Len returns the number of stored entries, including not-yet-read expired ones.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTLCache[V]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
