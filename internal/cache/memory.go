package cache

import (
	"path"
	"sync"
	"time"
)

type memoryEntry struct {
	value     interface{}
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is the process-local L1 tier.
type MemoryCache struct {
	mu      sync.RWMutex
	items   map[string]memoryEntry
	metrics *CacheMetrics
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items:   make(map[string]memoryEntry),
		metrics: NewCacheMetrics(),
		now:     time.Now,
	}
}

// Set stores value; a non-positive ttl never expires.
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.items[key] = entry
	c.mu.Unlock()
	c.metrics.RecordSet()
}

func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		c.metrics.RecordMiss()
		return nil, false
	}
	if entry.expired(c.now()) {
		c.mu.Lock()
		if current, ok := c.items[key]; ok && current.expired(c.now()) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		c.metrics.RecordExpired()
		return nil, false
	}

	c.metrics.RecordHit(TierL1)
	return entry.value, true
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	c.metrics.RecordDelete()
}

// DeletePattern removes keys matching a glob such as "task:*".
func (c *MemoryCache) DeletePattern(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.items {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			delete(c.items, key)
			c.metrics.RecordDelete()
		}
	}
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *MemoryCache) Stats() map[string]interface{} {
	snap := c.metrics.Snapshot()
	return map[string]interface{}{
		"items":       c.Len(),
		"hits":        snap.Hits,
		"misses":      snap.Misses,
		"expirations": snap.Expirations,
		"sets":        snap.Sets,
		"deletes":     snap.Deletes,
		"hit_rate":    snap.HitRate(),
	}
}
