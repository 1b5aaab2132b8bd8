// Package cache provides a bounded least-recently-used map.
package cache

import "sync"

// LRU is a map holding at most capacity entries; adding beyond capacity
// evicts the least recently used entry. It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*node[K, V]
	order    recency[K, V]
	capacity int
	stats    Stats
}

// Stats counts lookups and evictions.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// New returns an empty LRU. A capacity below 1 means 1.
func New[K comparable, V any](capacity int) *LRU[K, V] {
	return &LRU[K, V]{
		entries:  make(map[K]*node[K, V]),
		capacity: max(capacity, 1),
	}
}

// Get returns the value stored for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	c.order.moveToFront(n)
	return n.value, true
}

// Add stores value for key, replacing any previous value.
func (c *LRU[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.entries[key]; ok {
		n.value = value
		c.order.moveToFront(n)
		return
	}
	n := &node[K, V]{key: key, value: value}
	c.entries[key] = n
	c.order.pushFront(n)
	for len(c.entries) > c.capacity {
		oldest := c.order.tail
		c.order.unlink(oldest)
		delete(c.entries, oldest.key)
		c.stats.Evictions++
	}
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the lookup counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
