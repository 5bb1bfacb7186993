package cache

import (
	"context"
	"sync"
	"time"
)

type entry[T any] struct {
	value      T
	expiration time.Time
}

// Cache is a thread-safe in-memory TTL cache. A non-positive TTL means
// entries never expire.
type Cache[T any] struct {
	mu   sync.RWMutex
	data map[string]entry[T]
	ttl  time.Duration
	now  func() time.Time
}

// New creates a cache whose entries live for defaultTTL.
func New[T any](defaultTTL time.Duration) *Cache[T] {
	return &Cache[T]{
		data: make(map[string]entry[T]),
		ttl:  defaultTTL,
		now:  time.Now,
	}
}

// Get returns a cached value if present and not expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	item, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	if c.expired(item, c.now()) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		var zero T
		return zero, false
	}
	return item.value, true
}

// Put inserts or overwrites key with the default TTL.
func (c *Cache[T]) Put(key string, value T) {
	c.PutTTL(key, value, c.ttl)
}

// PutTTL inserts or overwrites key with an explicit TTL.
func (c *Cache[T]) PutTTL(key string, value T, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.data[key] = entry[T]{value: value, expiration: exp}
	c.mu.Unlock()
}

// Bust removes key.
func (c *Cache[T]) Bust(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Len counts entries, including expired ones not yet cleaned.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// StartCleaner removes expired entries every interval until ctx is done.
func (c *Cache[T]) StartCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Cache[T]) cleanupExpired() {
	now := c.now()
	c.mu.Lock()
	for k, v := range c.data {
		if c.expired(v, now) {
			delete(c.data, k)
		}
	}
	c.mu.Unlock()
}

func (c *Cache[T]) expired(e entry[T], now time.Time) bool {
	return !e.expiration.IsZero() && !now.Before(e.expiration)
}
