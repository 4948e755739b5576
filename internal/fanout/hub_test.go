package fanout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/core"
)

func snapshotOf(ids ...string) core.SnapshotEvent {
	docs := make([]core.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, core.Document{ID: id})
	}
	return core.SnapshotEvent{Snapshot: core.Snapshot{Documents: docs}}
}

func TestHub_InitialThenPublished(t *testing.T) {
	hub := NewHub(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial := snapshotOf("a")
	ch, err := hub.Subscribe(ctx, &initial)
	require.NoError(t, err)

	hub.Publish(snapshotOf("a", "b"))

	first := <-ch
	assert.Len(t, first.Snapshot.Documents, 1)
	second := <-ch
	assert.Len(t, second.Snapshot.Documents, 2)
}

func TestHub_SlowWatcherKeepsNewest(t *testing.T) {
	hub := NewHub(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := hub.Subscribe(ctx, nil)
	require.NoError(t, err)

	// Publisher never blocks, even though nobody reads.
	done := make(chan struct{})
	go func() {
		for i := 1; i <= 10; i++ {
			ids := make([]string, i)
			for j := range ids {
				ids[j] = string(rune('a' + j))
			}
			hub.Publish(snapshotOf(ids...))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow watcher")
	}

	var last core.SnapshotEvent
	for i := 0; i < 2; i++ {
		last = <-ch
	}
	assert.Len(t, last.Snapshot.Documents, 10, "newest snapshot must survive eviction")
}

func TestHub_CancelClosesChannel(t *testing.T) {
	hub := NewHub(1)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := hub.Subscribe(ctx, nil)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(1)
	ch, err := hub.Subscribe(context.Background(), nil)
	require.NoError(t, err)

	hub.Close()
	_, ok := <-ch
	assert.False(t, ok)

	_, err = hub.Subscribe(context.Background(), nil)
	assert.True(t, errors.Is(err, core.ErrClosed))

	// Publishing after close is a no-op.
	hub.Publish(snapshotOf("x"))
}

func TestHub_LastIgnoresErrors(t *testing.T) {
	hub := NewHub(1)
	_, ok := hub.Last()
	assert.False(t, ok)

	hub.Publish(snapshotOf("a"))
	hub.Publish(core.SnapshotEvent{Err: errors.New("boom")})

	last, ok := hub.Last()
	require.True(t, ok)
	assert.Len(t, last.Documents, 1)
}

func TestHub_SlowWatcherKeepsPendingError(t *testing.T) {
	tests := []struct {
		name   string
		buffer int
	}{
		{"Single Slot", 1},
		{"Two Slots", 2},
		{"Roomy", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub(tt.buffer)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ch, err := hub.Subscribe(ctx, nil)
			require.NoError(t, err)

			boom := errors.New("listen failed")
			hub.Publish(snapshotOf("a"))
			hub.Publish(core.SnapshotEvent{Err: boom})
			for i := 0; i < 10; i++ {
				hub.Publish(snapshotOf("a", "b"))
			}

			var got []core.SnapshotEvent
			for len(ch) > 0 {
				got = append(got, <-ch)
			}
			require.NotEmpty(t, got)
			assert.Len(t, got[len(got)-1].Snapshot.Documents, 2, "newest snapshot is last")

			if tt.buffer > 1 {
				var sawErr bool
				for _, ev := range got {
					sawErr = sawErr || errors.Is(ev.Err, boom)
				}
				assert.True(t, sawErr, "pending error must survive eviction")
			}
		})
	}
}

func TestCompact(t *testing.T) {
	boom := core.SnapshotEvent{Err: errors.New("boom")}
	events := []core.SnapshotEvent{snapshotOf("a"), boom, snapshotOf("a", "b"), snapshotOf("a", "b", "c")}

	out := compact(events)
	require.Len(t, out, 2)
	assert.Error(t, out[0].Err)
	assert.Len(t, out[1].Snapshot.Documents, 3)

	assert.Len(t, dropOne(append(out, snapshotOf("d"))), 2)
	assert.Equal(t, []core.SnapshotEvent{boom}, dropOne([]core.SnapshotEvent{boom, boom}))
}
