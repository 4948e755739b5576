package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/lifecycle"
	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/core"
)

func TestSourceForwardsSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.New(memory.Config{Name: "notes"})
	defer store.Close()

	src, err := lifecycle.Watch(ctx, store)
	require.NoError(t, err)
	require.NoError(t, src.Start(ctx))

	next := func() core.SnapshotEvent {
		select {
		case e, ok := <-src.Events():
			require.True(t, ok)
			ev, ok := e.(core.SnapshotEvent)
			require.True(t, ok, "got %T", e)
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
			return core.SnapshotEvent{}
		}
	}

	assert.Empty(t, next().Snapshot.Documents, "initial snapshot")

	require.NoError(t, store.Set(ctx, core.Note{ID: "n1", Title: "A"}.Document()))
	ev := next()
	require.Len(t, ev.Snapshot.Documents, 1)
	assert.Equal(t, "snapshot: 1 documents", ev.String())

	store.FailWatchers(assert.AnError)
	ev = next()
	assert.ErrorIs(t, ev.Err, assert.AnError)
}

func TestSourceClosesWithSubscription(t *testing.T) {
	events := make(chan core.SnapshotEvent)
	src := lifecycle.NewSource(events)
	require.NoError(t, src.Start(context.Background()))

	close(events)
	select {
	case _, ok := <-src.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestSourceStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := lifecycle.NewSource(make(chan core.SnapshotEvent))
	require.NoError(t, src.Start(ctx))

	cancel()
	select {
	case _, ok := <-src.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}
