package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryConfig holds the in-memory cache settings.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

type MemoryOption func(*MemoryConfig)

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) { c.MaxSize = size }
}

func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.CleanupInterval = interval }
}

type memoryItem struct {
	value    interface{}
	expireAt time.Time
	accessed time.Time
}

func (m *memoryItem) expired() bool {
	return time.Now().After(m.expireAt)
}

// MemoryCache implements Service in process memory. It stands in for Redis
// when the engine runs without one: single-process scans still get lock
// semantics, and tests get a Service without a server.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	maxSize int
	janitor *time.Ticker
}

// NewMemoryCache creates an in-memory cache with LRU eviction at capacity.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		items:   make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		janitor: time.NewTicker(cfg.CleanupInterval),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if len(mc.items) >= mc.maxSize {
		mc.evictOldest()
	}
	mc.items[key] = &memoryItem{
		value:    value,
		expireAt: expiryFrom(expiration),
		accessed: time.Now(),
	}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.items[key]
	if !ok || item.expired() {
		if ok {
			delete(mc.items, key)
		}
		return ErrCacheMiss
	}
	item.accessed = time.Now()

	switch d := dest.(type) {
	case *string:
		if s, ok := item.value.(string); ok {
			*d = s
			return nil
		}
	case *interface{}:
		*d = item.value
		return nil
	}
	return ErrCacheMiss
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.items, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if item, ok := mc.items[key]; ok && !item.expired() {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if item, ok := mc.items[key]; ok && !item.expired() {
		return false, nil
	}
	mc.items[key] = &memoryItem{
		value:    "locked",
		expireAt: time.Now().Add(ttl),
		accessed: time.Now(),
	}
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

// Close stops the expiry sweeper.
func (mc *MemoryCache) Close() error {
	mc.janitor.Stop()
	return nil
}

// evictOldest drops the least recently touched entry. Caller holds mu.
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, item := range mc.items {
		if oldestKey == "" || item.accessed.Before(oldest) {
			oldestKey = key
			oldest = item.accessed
		}
	}
	if oldestKey != "" {
		delete(mc.items, oldestKey)
	}
}

func (mc *MemoryCache) sweep() {
	for range mc.janitor.C {
		mc.mu.Lock()
		for key, item := range mc.items {
			if item.expired() {
				delete(mc.items, key)
			}
		}
		mc.mu.Unlock()
	}
}

// expiryFrom treats non-positive expirations as long-lived rather than
// already expired.
func expiryFrom(expiration time.Duration) time.Time {
	if expiration <= 0 {
		return time.Now().Add(7 * 24 * time.Hour)
	}
	return time.Now().Add(expiration)
}

var _ Service = (*MemoryCache)(nil)
