package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	Collection     string `json:"collection"`
	CollectionType string `json:"collection_type"`
	Subscribed     bool   `json:"subscribed"`
	Notes          int    `json:"notes"`
	ListVersion    uint64 `json:"list_version"`
	PendingWrites  int64  `json:"pending_writes"`
	CollectionInfo any    `json:"collection_state,omitempty"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.RLock()
	subscribed := s.subscribed
	s.mu.RUnlock()

	state := ServiceState{
		Subscribed:     subscribed,
		Notes:          s.list.Len(),
		ListVersion:    s.list.Version(),
		PendingWrites:  s.pending.Load(),
		CollectionType: "unknown",
	}

	if s.coll != nil {
		state.Collection = s.coll.Name()
		state.CollectionType = "collection"
		// Try to get component type if the collection implements introspection.Component
		if comp, ok := s.coll.(introspection.Component); ok {
			state.CollectionType = comp.ComponentType()
		}
		if intro, ok := s.coll.(introspection.Introspectable); ok {
			state.CollectionInfo = intro.State()
		}
	}

	return state
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "service"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
