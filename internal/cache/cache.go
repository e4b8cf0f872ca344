package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry is a cached upstream payload.
type Entry struct {
	Payload   json.RawMessage
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Cache holds upstream payloads for a fixed TTL. An entry is servable only
// while now < ExpiresAt; expired entries are dropped lazily on Get, by
// EvictExpired, or by the optional janitor.
type Cache struct {
	mu         sync.RWMutex
	items      map[string]*Entry
	ttl        time.Duration
	maxEntries int

	stopOnce sync.Once
	stopCh   chan struct{}
}

type Option func(*Cache)

// WithMaxEntries caps the number of stored entries. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		items:  make(map[string]*Entry),
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for key if it has not expired at now.
func (c *Cache) Get(key string, now time.Time) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	if ok && now.Before(e.ExpiresAt) {
		out := *e
		c.mu.RUnlock()
		return out, true
	}
	c.mu.RUnlock()

	if ok {
		c.mu.Lock()
		// re-check: a concurrent Put may have refreshed it
		if cur, still := c.items[key]; still && !now.Before(cur.ExpiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
	}
	return Entry{}, false
}

// Put stores payload under key, expiring at now+TTL. When the cache is
// full, expired entries go first, then the entry closest to expiry.
func (c *Cache) Put(key string, payload json.RawMessage, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.evictExpiredLocked(now)
		if len(c.items) >= c.maxEntries {
			c.evictSoonestLocked()
		}
	}

	c.items[key] = &Entry{
		Payload:   payload,
		StoredAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
}

// EvictExpired removes every entry with ExpiresAt <= now.
func (c *Cache) EvictExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictExpiredLocked(now)
}

func (c *Cache) evictExpiredLocked(now time.Time) int {
	removed := 0
	for k, e := range c.items {
		if !now.Before(e.ExpiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

func (c *Cache) evictSoonestLocked() {
	var (
		victim  string
		soonest time.Time
		found   bool
	)
	for k, e := range c.items {
		if !found || e.ExpiresAt.Before(soonest) {
			victim, soonest, found = k, e.ExpiresAt, true
		}
	}
	if found {
		delete(c.items, victim)
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// StartJanitor runs EvictExpired every interval until Stop is called.
// now supplies the eviction instant, normally the gateway clock.
func (c *Cache) StartJanitor(every time.Duration, now func() time.Time) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.EvictExpired(now())
			case <-c.stopCh:
				return
			}
		}
	}()
}

func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
