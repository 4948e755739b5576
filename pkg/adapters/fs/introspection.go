package fs

import (
	"time"

	"github.com/aretw0/introspection"
)

// CollectionState exposes internal state for observability.
type CollectionState struct {
	Path          string     `json:"path"`
	Collection    string     `json:"collection"`
	Extension     string     `json:"extension"`
	Versioning    bool       `json:"versioning"`
	ReadOnly      bool       `json:"read_only"`
	CacheSize     int        `json:"cache_size"`
	WatcherActive bool       `json:"watcher_active"`
	Watchers      int        `json:"watchers"`
	LastScan      *time.Time `json:"last_scan,omitempty"`
}

// State implements introspection.Introspectable.
func (c *Collection) State() any {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	return CollectionState{
		Path:          c.Path,
		Collection:    c.config.Collection,
		Extension:     c.config.Extension,
		Versioning:    c.config.Versioning,
		ReadOnly:      c.config.ReadOnly,
		CacheSize:     c.cache.Len(),
		WatcherActive: c.watcherActive.Load(),
		Watchers:      c.hub.Len(),
		LastScan:      c.lastScan,
	}
}

// ComponentType implements introspection.Component.
func (c *Collection) ComponentType() string {
	return "fs-collection"
}

var _ introspection.Introspectable = (*Collection)(nil)
var _ introspection.Component = (*Collection)(nil)

func (c *Collection) setWatcherActive(active bool) {
	c.watcherActive.Store(active)
}

func (c *Collection) recordScan() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	now := time.Now()
	c.lastScan = &now
}
