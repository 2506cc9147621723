package pump

import "sync"

// StatusCache holds the latest known Status per device for the lifetime of
// the process. Entries are only ever replaced whole.
type StatusCache struct {
	mu      sync.RWMutex
	entries map[string]Status
}

// NewStatusCache creates an empty cache.
func NewStatusCache() *StatusCache {
	return &StatusCache{entries: make(map[string]Status)}
}

// Get returns the cached status for deviceID.
func (c *StatusCache) Get(deviceID string) (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[deviceID]
	return s, ok
}

// Set replaces the cached status for s.DeviceID.
func (c *StatusCache) Set(s Status) {
	c.mu.Lock()
	c.entries[s.DeviceID] = s
	c.mu.Unlock()
}
