// Package caching provides the in-memory TTL cache for channel
// performance snapshots.
package caching

import (
	"sync"
	"time"

	"github.com/convertlens/convertlens-go/internal/domain/attribution"
)

type cacheKey struct {
	channel    attribution.Channel
	campaignID string
	from       time.Time
	to         time.Time
	model      attribution.ModelType
}

type cacheEntry struct {
	snapshot *attribution.ChannelPerformanceSnapshot
	cachedAt time.Time
}

// SnapshotCache keeps recently computed performance snapshots so
// repeated dashboard queries skip the aggregation pass. Entries expire
// after the configured TTL and are re-read from storage.
type SnapshotCache struct {
	entries map[cacheKey]*cacheEntry
	ttl     time.Duration
	mu      sync.RWMutex
}

func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		entries: make(map[cacheKey]*cacheEntry),
		ttl:     ttl,
	}
}

// Get returns a cached snapshot if present and fresh.
func (c *SnapshotCache) Get(key attribution.PerformanceKey, from, to time.Time, model attribution.ModelType) (*attribution.ChannelPerformanceSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[cacheKey{key.Channel, key.CampaignID, from, to, model}]
	if !exists || time.Since(entry.cachedAt) > c.ttl {
		return nil, false
	}
	return entry.snapshot, true
}

// Set stores a snapshot, replacing any previous entry for the key.
func (c *SnapshotCache) Set(key attribution.PerformanceKey, from, to time.Time, model attribution.ModelType, snap *attribution.ChannelPerformanceSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey{key.Channel, key.CampaignID, from, to, model}] = &cacheEntry{
		snapshot: snap,
		cachedAt: time.Now().UTC(),
	}
}

// Invalidate drops every cached snapshot. Called after recompute jobs
// finish so dashboards see the new computation version.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]*cacheEntry)
}
