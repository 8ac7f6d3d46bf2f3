package fallback

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/stability/internal/core/domain"
)

// Cache stores successful responses for the cached strategy.
type Cache interface {
	Get(ctx context.Context, key string) (*domain.Response, bool)
	Put(ctx context.Context, key string, resp *domain.Response)
	// Prune drops expired entries and reports how many were removed.
	Prune(ctx context.Context) int
	Clear(ctx context.Context) error
}

type cacheEntry struct {
	resp     *domain.Response
	storedAt time.Time
}

// MemoryCache is an in-process TTL cache bounded by entry count.
type MemoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewMemoryCache creates a cache keeping entries for ttl.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}
}

// Get returns the response for key if within TTL.
func (c *MemoryCache) Get(_ context.Context, key string) (*domain.Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	return e.resp, true
}

// Put stores resp, evicting the oldest entry when full.
func (c *MemoryCache) Put(_ context.Context, key string, resp *domain.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = cacheEntry{resp: resp, storedAt: c.now()}
}

func (c *MemoryCache) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.storedAt
		}
	}
	delete(c.entries, oldestKey)
}

// Prune removes expired entries.
func (c *MemoryCache) Prune(context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
