// Package dedupe remembers recently handled event ids so redelivered events
// are applied once.
package dedupe

import (
	"sync"
	"time"
)

type seenAt struct {
	id string
	at time.Time
}

// Cache is a bounded set of event ids, each remembered for ttl.
type Cache struct {
	mu       sync.Mutex
	ids      map[string]time.Time
	order    []seenAt
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache holding at most capacity ids for ttl each.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		ids:      make(map[string]time.Time, capacity),
		order:    make([]seenAt, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// IsSeen reports whether id was marked inside the ttl window. It does not mark it.
func (c *Cache) IsSeen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen(id, c.now())
}

// MarkSeen records id as handled.
func (c *Cache) MarkSeen(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mark(id, c.now())
}

// Observe marks id and reports whether it had already been seen, in one step.
func (c *Cache) Observe(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.seen(id, now) {
		return true
	}
	c.mark(id, now)
	return false
}

// Len returns the number of ids currently remembered.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

func (c *Cache) seen(id string, now time.Time) bool {
	at, ok := c.ids[id]
	return ok && now.Sub(at) <= c.ttl
}

func (c *Cache) mark(id string, now time.Time) {
	c.ids[id] = now
	c.order = append(c.order, seenAt{id: id, at: now})
	c.compact(now)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.ids) > c.capacity || c.order[0].at.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		// a later mark of the same id keeps it alive
		if at, ok := c.ids[oldest.id]; ok && at.Equal(oldest.at) {
			delete(c.ids, oldest.id)
		}
	}
}
