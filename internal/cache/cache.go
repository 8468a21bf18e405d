package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// TTLCache is a concurrency-safe map cache whose entries expire after a
// fixed TTL. Expired entries are treated as misses on read and reaped by a
// background sweep; the cache never blocks readers on the sweep.
type TTLCache[T any] struct {
	name    string
	mu      sync.RWMutex // Protects entries
	entries map[string]entry[T]
	hits    atomic.Uint64
	misses  atomic.Uint64
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

func NewTTLCache[T any](name string, ttl time.Duration, maxSize int) *TTLCache[T] {
	c := &TTLCache[T]{
		name:    name,
		entries: make(map[string]entry[T]),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
	go c.manage()
	return c
}

func (c *TTLCache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().After(e.expiresAt) {
		c.misses.Add(1)
		var zero T
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

func (c *TTLCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, expiresAt: c.now().Add(c.ttl)}
}

func (c *TTLCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *TTLCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTLCache[T]) manage() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		removed := c.sweep()
		length := c.Len()
		hits := c.hits.Swap(0)
		misses := c.misses.Swap(0)
		slog.Info("Cache stats", "size", length, "hits", hits, "misses", misses, "expired", removed, "cacheName", c.name)
	}
}

// sweep removes expired entries and, if the cache is still over its size
// cap, arbitrary surplus entries. A momentarily evicted entry just causes
// a re-lookup, so precision is not required here.
func (c *TTLCache[T]) sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}

	if c.maxSize > 0 && len(c.entries) > c.maxSize {
		surplus := len(c.entries) - c.maxSize
		for k := range c.entries {
			if surplus == 0 {
				break
			}
			delete(c.entries, k)
			surplus--
			removed++
		}
	}

	return removed
}
