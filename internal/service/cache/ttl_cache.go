package cache

import (
	"sync"
	"time"
)

type entry struct {
	v   any
	exp time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.exp.IsZero() && now.After(e.exp)
}

// TTLCache is an in-process map cache with per-entry expiry and a soft size
// bound. When the bound is exceeded a Set sweeps expired entries first and
// evicts arbitrary ones only if the sweep was not enough.
type TTLCache struct {
	mu      sync.RWMutex
	m       map[string]entry
	maxSize int
}

const defaultMaxEntries = 4096

func NewTTLCache() *TTLCache {
	return NewTTLCacheSize(defaultMaxEntries)
}

func NewTTLCacheSize(maxSize int) *TTLCache {
	if maxSize <= 0 {
		maxSize = defaultMaxEntries
	}
	return &TTLCache{m: make(map[string]entry), maxSize: maxSize}
}

func (c *TTLCache) Get(key string) (any, bool) {
	now := time.Now()

	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expired(now) {
		return e.v, true
	}

	// Lazily drop the stale entry, but only if a concurrent Set has not
	// replaced it between the read and write locks.
	c.mu.Lock()
	if cur, ok := c.m[key]; ok && cur.expired(now) {
		delete(c.m, key)
	}
	c.mu.Unlock()
	return nil, false
}

func (c *TTLCache) Set(key string, v any, ttl time.Duration) {
	e := entry{v: v}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}

	c.mu.Lock()
	if len(c.m) >= c.maxSize {
		c.evictLocked()
	}
	c.m[key] = e
	c.mu.Unlock()
}

func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// evictLocked drops expired entries, then arbitrary ones until a quarter of
// the capacity is free. Caller holds the write lock.
func (c *TTLCache) evictLocked() {
	now := time.Now()
	for k, e := range c.m {
		if e.expired(now) {
			delete(c.m, k)
		}
	}
	target := c.maxSize - c.maxSize/4
	for k := range c.m {
		if len(c.m) <= target {
			break
		}
		delete(c.m, k)
	}
}

// GetBytes implements BytesCache.
func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	if v, ok := c.Get(key); ok {
		if b, ok2 := v.([]byte); ok2 {
			return b, true, nil
		}
	}
	return nil, false, nil
}

// SetBytes implements BytesCache.
func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	c.Set(key, value, ttl)
	return nil
}
