package webhook

import (
	"sync"
	"time"
)

// DedupeCache is a TTL-based deduplication cache for inbound events. The
// provider redelivers webhooks on timeouts, so every event id is checked
// before processing.
//
// Entries expire after TTL and are pruned lazily on each check.
type DedupeCache struct {
	mu      sync.Mutex
	entries map[string]int64 // key → unix millis
	ttl     time.Duration
	maxSize int
}

// NewDedupeCache creates a new dedup cache.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	return &DedupeCache{
		entries: make(map[string]int64, 256),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// IsDuplicate returns true if key was already seen within the TTL window.
// If not a duplicate, records the key for future checks.
func (d *DedupeCache) IsDuplicate(key string) bool {
	now := time.Now().UnixMilli()
	cutoff := now - d.ttl.Milliseconds()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, ok := d.entries[key]; ok && ts >= cutoff {
		return true
	}

	d.cleanup(cutoff)

	d.entries[key] = now
	return false
}

// cleanup removes expired entries and evicts oldest if over maxSize.
// Must be called with d.mu held.
func (d *DedupeCache) cleanup(cutoff int64) {
	for k, ts := range d.entries {
		if ts < cutoff {
			delete(d.entries, k)
		}
	}

	for len(d.entries) >= d.maxSize {
		var oldestKey string
		var oldestTS int64 = 1<<63 - 1
		for k, ts := range d.entries {
			if ts < oldestTS {
				oldestTS = ts
				oldestKey = k
			}
		}
		delete(d.entries, oldestKey)
	}
}
