package server

import (
	"time"

	"github.com/aretw0/introspection"
)

// ServerState exposes internal state for observability.
type ServerState struct {
	Collections []string  `json:"collections"`
	Sessions    int       `json:"sessions"`
	Watches     int64     `json:"watches"`
	Requests    int64     `json:"requests"`
	Started     time.Time `json:"started"`
}

// State implements introspection.Introspectable.
func (s *Server) State() any {
	s.mu.Lock()
	sessions := len(s.sessions)
	s.mu.Unlock()

	return ServerState{
		Collections: s.names(),
		Sessions:    sessions,
		Watches:     s.watches.Load(),
		Requests:    s.requests.Load(),
		Started:     s.started,
	}
}

// ComponentType implements introspection.Component.
func (s *Server) ComponentType() string {
	return "server"
}

var _ introspection.Introspectable = (*Server)(nil)
var _ introspection.Component = (*Server)(nil)
