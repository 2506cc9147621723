package weather

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long a live snapshot is served from cache.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	fetchedAt time.Time
	snapshot  Snapshot
}

// Cache is a concurrency-safe snapshot cache keyed by Query.Key. Entries are
// replaced whole and expire lazily on read; nothing sweeps them. It lives as
// long as the process and is never persisted.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a Cache. A non-positive ttl falls back to DefaultCacheTTL
// and a nil clock to time.Now.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the snapshot for key if it was stored less than ttl ago.
func (c *Cache) Get(key string) (Snapshot, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return Snapshot{}, false
	}
	return e.snapshot, true
}

// Put stores snapshot under key, overwriting any previous entry.
func (c *Cache) Put(key string, snapshot Snapshot) {
	e := cacheEntry{fetchedAt: c.now(), snapshot: snapshot}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
