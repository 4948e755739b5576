package remote

import (
	"github.com/aretw0/introspection"
)

// CollectionState exposes internal state for observability.
type CollectionState struct {
	Endpoint     string `json:"endpoint"`
	Collection   string `json:"collection"`
	Connected    bool   `json:"connected"`
	Subscription string `json:"subscription,omitempty"`
	Watchers     int    `json:"watchers"`
	Pending      int    `json:"pending"`
	Requests     int64  `json:"requests"`
	LastError    string `json:"last_error,omitempty"`
}

// State implements introspection.Introspectable.
func (c *Collection) State() any {
	c.watchMu.Lock()
	sub := c.watchSub
	c.watchMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	state := CollectionState{
		Endpoint:     c.endpoint,
		Collection:   c.config.Collection,
		Connected:    !c.closed,
		Subscription: sub,
		Watchers:     c.hub.Len(),
		Pending:      len(c.pending),
		Requests:     c.requests.Load(),
	}
	if c.closeErr != nil {
		state.LastError = c.closeErr.Error()
	}
	return state
}

// ComponentType implements introspection.Component.
func (c *Collection) ComponentType() string {
	return "remote-collection"
}

var _ introspection.Introspectable = (*Collection)(nil)
var _ introspection.Component = (*Collection)(nil)
