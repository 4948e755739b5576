package fs

import (
	"maps"
	"sync"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// cacheEntry holds the parsed fields of a file as of a given mtime and size.
type cacheEntry struct {
	Fields       core.Fields
	LastModified time.Time
	Size         int64
}

// cache remembers parsed documents so rescans after a change only parse the
// files that actually changed.
type cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry // keyed by document ID
}

func newCache() *cache {
	return &cache{entries: make(map[string]cacheEntry)}
}

// Get returns a copy of the cached fields if the entry matches mtime and size.
func (c *cache) Get(id string, mtime time.Time, size int64) (core.Fields, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok || !entry.LastModified.Equal(mtime) || entry.Size != size {
		return nil, false
	}
	return maps.Clone(entry.Fields), true
}

// Set stores a copy of fields for id.
func (c *cache) Set(id string, mtime time.Time, size int64, fields core.Fields) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = cacheEntry{Fields: maps.Clone(fields), LastModified: mtime, Size: size}
}

// Delete removes a single entry.
func (c *cache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}

// Prune removes entries whose ID is not in keep.
func (c *cache) Prune(keep map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.entries {
		if !keep[id] {
			delete(c.entries, id)
		}
	}
}

// Len returns the number of cached documents.
func (c *cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
