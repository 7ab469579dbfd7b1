package cache

import (
	"sync"
	"time"
)

// Cache defines the common interface for the optional caches around the
// pipeline (result cache, embedding cache).
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Purge()
}

// lruEntry is a node in the recency ring. The ring has a sentinel whose
// next is the most recently used entry and whose prev is the eviction
// candidate.
type lruEntry struct {
	key        string
	value      any
	expiresAt  time.Time
	prev, next *lruEntry
}

type lruCache struct {
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	index      map[string]*lruEntry
	ring       lruEntry // sentinel
	now        func() time.Time
}

// NewLRU creates an LRU cache with capacity and default TTL.
func NewLRU(capacity int, ttl time.Duration) Cache {
	return newLRU(capacity, ttl, time.Now)
}

func newLRU(capacity int, ttl time.Duration, now func() time.Time) *lruCache {
	if capacity <= 0 {
		capacity = 512
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &lruCache{
		capacity:   capacity,
		defaultTTL: ttl,
		index:      make(map[string]*lruEntry, capacity),
		now:        now,
	}
	c.ring.next = &c.ring
	c.ring.prev = &c.ring
	return c
}

func (c *lruCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.index[key]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		c.unlink(e)
		delete(c.index, key)
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.index[key]; ok {
		e.value = value
		e.expiresAt = c.now().Add(ttl)
		c.moveToFront(e)
		return
	}

	if len(c.index) >= c.capacity {
		c.evictOne()
	}
	e := &lruEntry{key: key, value: value, expiresAt: c.now().Add(ttl)}
	c.index[key] = e
	c.pushFront(e)
}

func (c *lruCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*lruEntry, c.capacity)
	c.ring.next = &c.ring
	c.ring.prev = &c.ring
}

// evictOne drops the least recently used entry, preferring any entry
// that has already expired over the recency candidate.
func (c *lruCache) evictOne() {
	for e := c.ring.prev; e != &c.ring; e = e.prev {
		if c.expired(e) {
			c.unlink(e)
			delete(c.index, e.key)
			return
		}
	}
	tail := c.ring.prev
	if tail == &c.ring {
		return
	}
	c.unlink(tail)
	delete(c.index, tail.key)
}

func (c *lruCache) expired(e *lruEntry) bool {
	return !e.expiresAt.IsZero() && c.now().After(e.expiresAt)
}

func (c *lruCache) pushFront(e *lruEntry) {
	e.prev = &c.ring
	e.next = c.ring.next
	e.prev.next = e
	e.next.prev = e
}

func (c *lruCache) unlink(e *lruEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

func (c *lruCache) moveToFront(e *lruEntry) {
	if c.ring.next == e {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	c.pushFront(e)
}
