// Package cache provides a small TTL cache. Instances are created by the
// caller and passed to whoever needs them; there is no package-level state.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]item[V]
	ttl   time.Duration
	clock clockwork.Clock
	// version moves on every Delete and Clear.
	version uint64
}

func New[K comparable, V any](ttl time.Duration, clock clockwork.Clock) *Cache[K, V] {
	return &Cache[K, V]{
		items: make(map[K]item[V]),
		ttl:   ttl,
		clock: clock,
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || !c.clock.Now().Before(it.expiresAt) {
		var zero V
		return zero, false
	}
	return it.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[V]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
}

// Version returns a token for SetIfVersion. Take it before reading the data
// the cached value is computed from.
func (c *Cache[K, V]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.version
}

// SetIfVersion stores value only if nothing was deleted since version was
// taken, so a value computed from data that changed meanwhile is dropped.
func (c *Cache[K, V]) SetIfVersion(key K, value V, version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.version != version {
		return false
	}
	c.items[key] = item[V]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
	return true
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	c.version++
}

// Clear drops every item and returns how many there were.
func (c *Cache[K, V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.items)
	clear(c.items)
	c.version++
	return n
}

// Sweep drops expired items and returns how many were removed.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for k, it := range c.items {
		if !now.Before(it.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}
