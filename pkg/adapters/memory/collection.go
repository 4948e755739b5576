// Package memory implements core.Collection in process memory.
//
// It behaves like a hosted collection (server-side ordering, full snapshot
// notifications, partial updates) and doubles as the fake remote store used
// by tests. Failures can be injected to exercise error paths.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/introspection"

	"github.com/aretw0/notesync/internal/fanout"
	"github.com/aretw0/notesync/pkg/core"
)

// Config holds the configuration for the in-memory collection.
type Config struct {
	Name        string
	EventBuffer int
	// Manual disables automatic notifications after writes; snapshots are
	// only delivered through Notify. Used to control delivery in tests.
	Manual bool
}

// Collection implements core.Collection in memory.
type Collection struct {
	config Config
	hub    *fanout.Hub

	mu       sync.Mutex
	docs     map[string]core.Fields
	writeErr error
	closed   bool
	writes   int
}

// New creates an empty collection.
func New(config Config) *Collection {
	if config.Name == "" {
		config.Name = "notes"
	}
	return &Collection{
		config: config,
		hub:    fanout.NewHub(config.EventBuffer),
		docs:   make(map[string]core.Fields),
	}
}

// Name implements core.Collection.
func (c *Collection) Name() string {
	return c.config.Name
}

// NewID implements core.Collection.
func (c *Collection) NewID() string {
	return uuid.NewString()
}

// Get implements core.Collection.
func (c *Collection) Get(ctx context.Context, id string) (core.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return core.Document{}, core.ErrClosed
	}
	fields, ok := c.docs[id]
	if !ok {
		return core.Document{}, fmt.Errorf("%s/%s: %w", c.config.Name, id, core.ErrNotFound)
	}
	return core.Document{ID: id, Fields: maps.Clone(fields)}, nil
}

// List implements core.Collection.
func (c *Collection) List(ctx context.Context) ([]core.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, core.ErrClosed
	}
	return c.documentsLocked(), nil
}

func (c *Collection) documentsLocked() []core.Document {
	ids := slices.Sorted(maps.Keys(c.docs))
	docs := make([]core.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, core.Document{ID: id, Fields: maps.Clone(c.docs[id])})
	}
	return docs
}

// Set implements core.Collection.
func (c *Collection) Set(ctx context.Context, doc core.Document) error {
	if doc.ID == "" {
		return core.ErrEmptyID
	}
	return c.mutate(func() error {
		c.docs[doc.ID] = maps.Clone(doc.Fields)
		if c.docs[doc.ID] == nil {
			c.docs[doc.ID] = core.Fields{}
		}
		return nil
	})
}

// Update implements core.Collection.
func (c *Collection) Update(ctx context.Context, id string, fields core.Fields) error {
	if id == "" {
		return core.ErrEmptyID
	}
	return c.mutate(func() error {
		existing, ok := c.docs[id]
		if !ok {
			return fmt.Errorf("%s/%s: %w", c.config.Name, id, core.ErrNotFound)
		}
		maps.Copy(existing, fields)
		return nil
	})
}

// Delete implements core.Collection.
func (c *Collection) Delete(ctx context.Context, id string) error {
	if id == "" {
		return core.ErrEmptyID
	}
	return c.mutate(func() error {
		delete(c.docs, id)
		return nil
	})
}

func (c *Collection) mutate(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return core.ErrClosed
	}
	if c.writeErr != nil {
		err := c.writeErr
		c.writeErr = nil
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	c.writes++
	if !c.config.Manual {
		c.publishLocked()
	}
	return nil
}

func (c *Collection) publishLocked() {
	c.hub.Publish(core.SnapshotEvent{
		Snapshot: core.Snapshot{Documents: c.documentsLocked(), ReadAt: time.Now()},
	})
}

// Watch implements core.Collection.
func (c *Collection) Watch(ctx context.Context) (<-chan core.SnapshotEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, core.ErrClosed
	}
	initial := core.SnapshotEvent{
		Snapshot: core.Snapshot{Documents: c.documentsLocked(), ReadAt: time.Now()},
	}
	return c.hub.Subscribe(ctx, &initial)
}

// Notify delivers the current document set to every watcher.
func (c *Collection) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.publishLocked()
	}
}

// FailWatchers delivers a subscription error to every watcher.
func (c *Collection) FailWatchers(err error) {
	c.hub.Publish(core.SnapshotEvent{Err: err})
}

// FailNextWrite makes the next Set, Update or Delete return err.
func (c *Collection) FailNextWrite(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Close implements core.Collection.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.hub.Close()
	return nil
}

// CollectionState exposes internal state for observability.
type CollectionState struct {
	Name     string `json:"name"`
	Docs     int    `json:"documents"`
	Watchers int    `json:"watchers"`
	Writes   int    `json:"writes"`
	Closed   bool   `json:"closed"`
}

// State implements introspection.Introspectable.
func (c *Collection) State() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CollectionState{
		Name:     c.config.Name,
		Docs:     len(c.docs),
		Watchers: c.hub.Len(),
		Writes:   c.writes,
		Closed:   c.closed,
	}
}

// ComponentType implements introspection.Component.
func (c *Collection) ComponentType() string {
	return "memory-collection"
}

var _ core.Collection = (*Collection)(nil)
var _ introspection.Introspectable = (*Collection)(nil)
var _ introspection.Component = (*Collection)(nil)
