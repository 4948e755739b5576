// Package lifecycle exposes collection change subscriptions as
// lifecycle event sources.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notesync/pkg/core"
)

type snapshotSource struct {
	events <-chan core.SnapshotEvent
	out    chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits the events of a
// collection watch. Each event is a core.SnapshotEvent.
func NewSource(events <-chan core.SnapshotEvent) lifecycle.Source {
	return &snapshotSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

// Watch subscribes to coll and wraps the subscription in a Source.
func Watch(ctx context.Context, coll core.Collection) (lifecycle.Source, error) {
	events, err := coll.Watch(ctx)
	if err != nil {
		return nil, err
	}
	return NewSource(events), nil
}

func (s *snapshotSource) Events() <-chan lifecycle.Event {
	return s.out
}

// Start forwards events until the subscription ends or ctx is done, then
// closes the Events channel.
func (s *snapshotSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
