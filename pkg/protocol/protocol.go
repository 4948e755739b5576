// Package protocol defines the JSON messages exchanged between a remote
// collection client and the collection server over a websocket.
//
// A client sends Requests. The server answers each with a Response carrying
// the same ID, and pushes snapshot notifications for active watches as
// Responses with no ID and an Event.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// Methods understood by the server.
const (
	MethodGet     = "get"
	MethodList    = "list"
	MethodSet     = "set"
	MethodUpdate  = "update"
	MethodDelete  = "delete"
	MethodWatch   = "watch"
	MethodUnwatch = "unwatch"
)

// Error codes.
const (
	CodeNotFound        = "not_found"
	CodeInvalidArgument = "invalid_argument"
	CodeReadOnly        = "read_only"
	CodeInternal        = "internal"
)

// CollectionPath returns the websocket path for a collection.
func CollectionPath(name string) string {
	return "/v1/collections/" + url.PathEscape(name) + "/ws"
}

// Request is a client call.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is either a reply to a Request (ID set) or a watch notification
// (Event set).
type Response struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	Event  *Event          `json:"event,omitempty"`
}

// IDParams addresses a single document.
type IDParams struct {
	ID string `json:"id"`
}

// SetParams carries a full document.
type SetParams struct {
	Document core.Document `json:"document"`
}

// UpdateParams carries a partial update.
type UpdateParams struct {
	ID     string      `json:"id"`
	Fields core.Fields `json:"fields"`
}

// WatchResult is the reply to a watch call.
type WatchResult struct {
	Subscription string `json:"subscription"`
}

// UnwatchParams ends a watch.
type UnwatchParams struct {
	Subscription string `json:"subscription"`
}

// Event is a snapshot pushed for a watch subscription.
type Event struct {
	Subscription string          `json:"subscription"`
	Documents    []core.Document `json:"documents,omitempty"`
	ReadAt       time.Time       `json:"read_at"`
	Error        string          `json:"error,omitempty"`
}

// NewEvent converts a snapshot event for the wire.
func NewEvent(subscription string, ev core.SnapshotEvent) *Event {
	out := &Event{Subscription: subscription}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
		return out
	}
	out.Documents = ev.Snapshot.Documents
	out.ReadAt = ev.Snapshot.ReadAt
	if out.Documents == nil {
		out.Documents = []core.Document{}
	}
	return out
}

// SnapshotEvent converts a wire event back into a snapshot event.
func (e *Event) SnapshotEvent() core.SnapshotEvent {
	if e.Error != "" {
		return core.SnapshotEvent{Err: fmt.Errorf("remote: %s", e.Error)}
	}
	docs := e.Documents
	if docs == nil {
		docs = []core.Document{}
	}
	return core.SnapshotEvent{Snapshot: core.Snapshot{Documents: docs, ReadAt: e.ReadAt}}
}

// Error is a failed call.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap maps the code back to the matching core sentinel, so callers can
// use errors.Is across the wire.
func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeNotFound:
		return core.ErrNotFound
	case CodeReadOnly:
		return core.ErrReadOnly
	}
	return nil
}

// ErrorFrom classifies err for the wire.
func ErrorFrom(err error) *Error {
	code := CodeInternal
	switch {
	case errors.Is(err, core.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, core.ErrReadOnly):
		code = CodeReadOnly
	case errors.Is(err, core.ErrEmptyID), errors.Is(err, ErrBadRequest):
		code = CodeInvalidArgument
	}
	return &Error{Code: code, Message: err.Error()}
}

// ErrBadRequest marks malformed requests.
var ErrBadRequest = errors.New("bad request")
