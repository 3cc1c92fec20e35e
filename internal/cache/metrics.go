package cache

import (
	"sync/atomic"
	"time"
)

// Tier names a cache level a hit was served from.
type Tier string

const (
	TierL1 Tier = "l1"
	TierL2 Tier = "l2"
)

// CacheMetrics counts cache traffic. All methods are safe for concurrent use.
type CacheMetrics struct {
	hits        atomic.Int64
	l2Hits      atomic.Int64
	misses      atomic.Int64
	expirations atomic.Int64
	errors      atomic.Int64
	sets        atomic.Int64
	deletes     atomic.Int64
	since       atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of CacheMetrics.
type MetricsSnapshot struct {
	Hits        int64     `json:"hits"`
	L2Hits      int64     `json:"l2_hits"`
	Misses      int64     `json:"misses"`
	Expirations int64     `json:"expirations"`
	Errors      int64     `json:"errors"`
	Sets        int64     `json:"sets"`
	Deletes     int64     `json:"deletes"`
	Since       time.Time `json:"since"`
}

func NewCacheMetrics() *CacheMetrics {
	m := &CacheMetrics{}
	m.since.Store(time.Now().UnixNano())
	return m
}

// RecordHit counts a hit; L2 hits are also tallied separately.
func (m *CacheMetrics) RecordHit(tier Tier) {
	m.hits.Add(1)
	if tier == TierL2 {
		m.l2Hits.Add(1)
	}
}

func (m *CacheMetrics) RecordMiss() { m.misses.Add(1) }

// RecordExpired counts an entry dropped on read because its TTL passed. The
// read itself is also a miss.
func (m *CacheMetrics) RecordExpired() {
	m.expirations.Add(1)
	m.misses.Add(1)
}

func (m *CacheMetrics) RecordError()  { m.errors.Add(1) }
func (m *CacheMetrics) RecordSet()    { m.sets.Add(1) }
func (m *CacheMetrics) RecordDelete() { m.deletes.Add(1) }

func (m *CacheMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:        m.hits.Load(),
		L2Hits:      m.l2Hits.Load(),
		Misses:      m.misses.Load(),
		Expirations: m.expirations.Load(),
		Errors:      m.errors.Load(),
		Sets:        m.sets.Load(),
		Deletes:     m.deletes.Load(),
		Since:       time.Unix(0, m.since.Load()),
	}
}

// HitRate returns hits as a percentage of lookups, or 0 before any lookup.
func (m *CacheMetrics) HitRate() float64 {
	return m.Snapshot().HitRate()
}

func (s MetricsSnapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
