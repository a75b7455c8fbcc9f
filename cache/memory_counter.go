package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounter implements Counter in process memory with a hard
// capacity bound. It backs deployments that run without Redis; counts
// are per-instance and lost on restart, which is acceptable for abuse
// signals.
type MemoryCounter struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	capacity int
	now      func() time.Time
}

// NewMemoryCounter creates a bounded in-memory counter. capacity caps
// the number of live keys so hostile traffic spraying distinct keys
// cannot grow memory without limit.
func NewMemoryCounter(capacity int) *MemoryCounter {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryCounter{
		entries:  make(map[string]*memoryEntry),
		capacity: capacity,
		now:      time.Now,
	}
}

// Incr increments key, arming the expiry on first increment
func (c *MemoryCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[key]
	if ok && !e.expiresAt.IsZero() && now.After(e.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		if len(c.entries) >= c.capacity {
			c.evictExpiredLocked(now)
			if len(c.entries) >= c.capacity {
				// Full of live entries; drop the new key rather than
				// evicting a hotter one.
				return 1, nil
			}
		}
		e = &memoryEntry{}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
		c.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Get returns the current count, zero when absent or expired
func (c *MemoryCounter) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return 0, nil
	}
	return e.count, nil
}

func (c *MemoryCounter) evictExpiredLocked(now time.Time) {
	for k, e := range c.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
