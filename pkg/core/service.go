package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/lifecycle"
)

// DefaultWriteTimeout bounds a single remote write.
const DefaultWriteTimeout = 10 * time.Second

// Config holds the configuration for the notes service.
type Config struct {
	Logger *slog.Logger
	// ErrorHandler receives every subscription and write failure
	// (crash-reporting hook). Optional.
	ErrorHandler func(error)
	// WriteTimeout bounds each write. Zero means DefaultWriteTimeout.
	WriteTimeout time.Duration
}

// Service keeps a local list of notes mirroring a remote collection and
// forwards create/update/delete intents to it.
type Service struct {
	coll   Collection
	config Config
	logger *slog.Logger
	list   NoteList

	mu          sync.RWMutex
	subscribing bool
	subscribed  bool
	pending    atomic.Int64
}

// NewService creates a new Service over the given collection.
func NewService(coll Collection, config Config) *Service {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	return &Service{
		coll:   coll,
		config: config,
		logger: logger,
	}
}

// Collection returns the underlying collection.
func (s *Service) Collection() Collection {
	return s.coll
}

// Subscribe registers onChange against the collection.
// Every change notification fully replaces the local list before onChange is
// called with a copy of it. Subscription errors are logged and reported to
// the error handler; they never reach the caller or the list.
// The subscription lives until ctx ends. A service subscribes only once.
func (s *Service) Subscribe(ctx context.Context, onChange func([]Note)) error {
	s.mu.Lock()
	if s.subscribed || s.subscribing {
		s.mu.Unlock()
		return ErrAlreadySubscribed
	}
	s.subscribing = true
	s.mu.Unlock()

	// Watch may be a network round trip; state readers must not wait on it.
	events, err := s.coll.Watch(ctx)

	s.mu.Lock()
	s.subscribing = false
	if err == nil {
		s.subscribed = true
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.coll.Name(), err)
	}
	s.logger.Debug("subscribed", "collection", s.coll.Name())

	lifecycle.Go(ctx, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				s.handle(ev, onChange)
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		s.report(fmt.Errorf("subscription panic: %w", err))
	}))

	return nil
}

// Subscribed reports whether Subscribe has succeeded.
func (s *Service) Subscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed
}

func (s *Service) handle(ev SnapshotEvent, onChange func([]Note)) {
	if ev.Err != nil {
		s.logger.Warn("listen failed", "collection", s.coll.Name(), "error", ev.Err)
		s.report(ev.Err)
		return
	}

	notes, skipped := ev.Snapshot.Notes()
	for _, err := range skipped {
		s.logger.Debug("document skipped", "error", err)
	}

	if s.list.Replace(notes) {
		s.logger.Debug("notes replaced", "count", len(notes))
	}
	if onChange != nil {
		onChange(s.list.Notes())
	}
}

// Notes returns a copy of the local list.
func (s *Service) Notes() []Note {
	return s.list.Notes()
}

// Create generates a new ID and writes a note with the given fields.
// The local list only reflects it after the next change notification.
func (s *Service) Create(ctx context.Context, title, content string) *Completion {
	note := Note{
		ID:      s.coll.NewID(),
		Title:   title,
		Content: content,
	}
	s.logger.Info("adding note", "id", note.ID)

	return s.write(ctx, "create", note.ID, func(ctx context.Context) error {
		return s.coll.Set(ctx, note.Document())
	})
}

// Update overwrites the title and content of an existing note.
func (s *Service) Update(ctx context.Context, id, title, content string) *Completion {
	if id == "" {
		return Failed(id, ErrEmptyID)
	}
	s.logger.Info("updating note", "id", id)

	fields := Fields{
		FieldTitle:   title,
		FieldContent: content,
	}
	return s.write(ctx, "update", id, func(ctx context.Context) error {
		return s.coll.Update(ctx, id, fields)
	})
}

// Delete removes a note.
func (s *Service) Delete(ctx context.Context, id string) *Completion {
	if id == "" {
		return Failed(id, ErrEmptyID)
	}
	s.logger.Info("deleting note", "id", id)

	return s.write(ctx, "delete", id, func(ctx context.Context) error {
		return s.coll.Delete(ctx, id)
	})
}

// write runs fn detached from the caller's cancellation, bounded by the
// write timeout.
func (s *Service) write(ctx context.Context, op, id string, fn func(ctx context.Context) error) *Completion {
	c := newCompletion(id)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.WriteTimeout)
	s.pending.Add(1)

	lifecycle.Go(wctx, func(ctx context.Context) error {
		defer cancel()
		defer s.pending.Add(-1)

		err := fn(ctx)
		if err != nil {
			s.logger.Error("write failed", "op", op, "id", id, "error", err)
			err = fmt.Errorf("%s %s: %w", op, id, err)
			s.report(err)
		}
		c.finish(err)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		err = fmt.Errorf("%s %s panic: %w", op, id, err)
		s.logger.Error("write panic", "op", op, "id", id, "error", err)
		s.report(err)
		c.finish(err)
	}))

	return c
}

func (s *Service) report(err error) {
	if s.config.ErrorHandler != nil {
		s.config.ErrorHandler(err)
	}
}
