package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type Cache interface {
	Set(key string, value interface{}, ttl time.Duration) error
	Get(key string, dest interface{}) error
	Delete(key string) error
	DeletePattern(pattern string) error
	Stats() map[string]interface{}
}

// l1TTL caps how long a value pulled from redis lives in process memory.
const l1TTL = time.Minute

// MultiLevelCache reads through a process-local tier before redis. The redis
// tier is optional; with nil it behaves as a plain memory cache.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      *RedisCache
	metrics *CacheMetrics
}

func NewMultiLevelCache(redisCache *RedisCache) *MultiLevelCache {
	return &MultiLevelCache{
		l1:      NewMemoryCache(),
		l2:      redisCache,
		metrics: NewCacheMetrics(),
	}
}

func (c *MultiLevelCache) Set(key string, value interface{}, ttl time.Duration) error {
	l1 := ttl
	if c.l2 != nil && (l1 <= 0 || l1 > l1TTL) {
		l1 = l1TTL
	}
	c.l1.Set(key, value, l1)
	c.metrics.RecordSet()

	if c.l2 != nil {
		if err := c.l2.Set(key, value, ttl); err != nil {
			c.metrics.RecordError()
			return err
		}
	}
	return nil
}

// Get fills dest from the first tier holding key. Redis errors count as misses.
func (c *MultiLevelCache) Get(key string, dest interface{}) error {
	if value, found := c.l1.Get(key); found {
		c.metrics.RecordHit(TierL1)
		return copyValue(value, dest)
	}

	if c.l2 != nil {
		err := c.l2.Get(key, dest)
		if err == nil {
			c.l1.Set(key, dest, l1TTL)
			c.metrics.RecordHit(TierL2)
			return nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			c.metrics.RecordError()
			slog.Warn("redis cache read failed", "key", key, "error", err)
		}
	}

	c.metrics.RecordMiss()
	return ErrCacheMiss
}

func (c *MultiLevelCache) Delete(key string) error {
	c.l1.Delete(key)
	c.metrics.RecordDelete()

	if c.l2 != nil {
		return c.l2.Delete(key)
	}
	return nil
}

func (c *MultiLevelCache) DeletePattern(pattern string) error {
	c.l1.DeletePattern(pattern)

	if c.l2 != nil {
		return c.l2.DeletePattern(pattern)
	}
	return nil
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":       c.l1.Stats(),
		"hit_rate": c.metrics.HitRate(),
		"totals":   c.metrics.Snapshot(),
	}
	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}
	return stats
}

// copyValue hands out a deep copy so callers cannot mutate cached values.
func copyValue(src, dest interface{}) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal source value: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal to destination: %w", err)
	}
	return nil
}
