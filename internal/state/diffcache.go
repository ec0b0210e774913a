package state

import (
	"sync"
	"time"
)

// diffEntry holds a cached rendered diff.
type diffEntry struct {
	Text      string
	ExpiresAt time.Time
}

// DiffCache caches the rendered working-tree diff per session. Git and
// message handlers invalidate it as their declared side effect; the TTL
// covers sessions whose events were missed while detached.
type DiffCache struct {
	mu      sync.RWMutex
	entries map[string]diffEntry
	ttl     time.Duration
	hits    int64
	misses  int64
}

// NewDiffCache creates a cache with the given TTL.
func NewDiffCache(ttl time.Duration) *DiffCache {
	return &DiffCache{
		entries: make(map[string]diffEntry),
		ttl:     ttl,
	}
}

// Get retrieves the cached diff for a session if still valid.
func (c *DiffCache) Get(sessionID string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[sessionID]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.ExpiresAt) {
		c.mu.Lock()
		c.misses++
		if ok {
			delete(c.entries, sessionID)
		}
		c.mu.Unlock()
		return "", false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return entry.Text, true
}

// Put stores a rendered diff for a session.
func (c *DiffCache) Put(sessionID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sessionID] = diffEntry{
		Text:      text,
		ExpiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate drops the cached diff for a session.
func (c *DiffCache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// Stats returns cache hit/miss counters.
func (c *DiffCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
