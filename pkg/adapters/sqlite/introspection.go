package sqlite

import (
	"time"

	"github.com/aretw0/introspection"
)

// CollectionState exposes internal state for observability.
type CollectionState struct {
	Path         string     `json:"path"`
	Collection   string     `json:"collection"`
	ReadOnly     bool       `json:"read_only"`
	PollInterval string     `json:"poll_interval"`
	PollerActive bool       `json:"poller_active"`
	DataVersion  int64      `json:"data_version"`
	Watchers     int        `json:"watchers"`
	Writes       int        `json:"writes"`
	LastScan     *time.Time `json:"last_scan,omitempty"`
}

// State implements introspection.Introspectable.
func (c *Collection) State() any {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	return CollectionState{
		Path:         c.config.Path,
		Collection:   c.config.Collection,
		ReadOnly:     c.config.ReadOnly,
		PollInterval: c.config.PollInterval.String(),
		PollerActive: c.pollerActive,
		DataVersion:  c.dataVersion,
		Watchers:     c.hub.Len(),
		Writes:       c.writes,
		LastScan:     c.lastScan,
	}
}

// ComponentType implements introspection.Component.
func (c *Collection) ComponentType() string {
	return "sqlite-collection"
}

var _ introspection.Introspectable = (*Collection)(nil)
var _ introspection.Component = (*Collection)(nil)

func (c *Collection) setPollerActive(active bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.pollerActive = active
}

func (c *Collection) recordScan() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	now := time.Now()
	c.lastScan = &now
}
