package bus

import (
	"sync"
	"time"
)

// DedupeCache remembers keys for a TTL, bounded by max entries.
// Safe for concurrent use.
type DedupeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]time.Time
	now     func() time.Time
}

// NewDedupeCache creates a cache. ttl <= 0 disables deduplication.
func NewDedupeCache(ttl time.Duration, max int) *DedupeCache {
	if max <= 0 {
		max = 1000
	}
	return &DedupeCache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// IsDuplicate records key and reports whether it was already seen within the TTL.
func (c *DedupeCache) IsDuplicate(key string) bool {
	if c == nil || c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if seen, ok := c.entries[key]; ok && now.Sub(seen) < c.ttl {
		return true
	}

	if len(c.entries) >= c.max {
		c.prune(now)
	}
	c.entries[key] = now
	return false
}

// prune drops expired entries, then the oldest ones until below max.
func (c *DedupeCache) prune(now time.Time) {
	for k, seen := range c.entries {
		if now.Sub(seen) >= c.ttl {
			delete(c.entries, k)
		}
	}
	for len(c.entries) >= c.max {
		var oldestKey string
		var oldest time.Time
		for k, seen := range c.entries {
			if oldestKey == "" || seen.Before(oldest) {
				oldestKey, oldest = k, seen
			}
		}
		delete(c.entries, oldestKey)
	}
}

// Len returns the number of tracked keys.
func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
