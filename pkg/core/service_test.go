package core_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/core"
)

type harness struct {
	coll    *memory.Collection
	svc     *core.Service
	changes chan []core.Note
	errs    chan error
}

// setup subscribes a service to a manual in-memory collection and consumes
// the initial notification.
func setup(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		coll:    memory.New(memory.Config{Manual: true}),
		changes: make(chan []core.Note, 16),
		errs:    make(chan error, 16),
	}
	h.svc = core.NewService(h.coll, core.Config{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		ErrorHandler: func(err error) { h.errs <- err },
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, h.svc.Subscribe(ctx, func(notes []core.Note) {
		h.changes <- notes
	}))
	h.next(t)
	return h
}

func (h *harness) next(t *testing.T) []core.Note {
	t.Helper()
	select {
	case notes := <-h.changes:
		return notes
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
		return nil
	}
}

// notify triggers a notification and returns the resulting local list.
func (h *harness) notify(t *testing.T) []core.Note {
	t.Helper()
	h.coll.Notify()
	h.next(t)
	return h.svc.Notes()
}

func wait(t *testing.T, c *core.Completion) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func storeNotes(t *testing.T, coll core.Collection) []core.Note {
	t.Helper()
	docs, err := coll.List(context.Background())
	require.NoError(t, err)
	notes, skipped := core.Snapshot{Documents: docs}.Notes()
	require.Empty(t, skipped)
	return notes
}

func TestService_Create(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	c := h.svc.Create(ctx, "Groceries", "milk, eggs")
	wait(t, c)
	assert.NotEmpty(t, c.ID())

	assert.Empty(t, h.svc.Notes(), "no optimistic insert before the notification")

	notes := h.notify(t)
	require.Len(t, notes, 1)
	assert.Equal(t, core.Note{ID: c.ID(), Title: "Groceries", Content: "milk, eggs"}, notes[0])
}

func TestService_CreateAllowsEmptyFields(t *testing.T) {
	h := setup(t)

	c := h.svc.Create(context.Background(), "", "")
	wait(t, c)

	notes := h.notify(t)
	require.Len(t, notes, 1)
	assert.Equal(t, c.ID(), notes[0].ID)
	assert.Empty(t, notes[0].Title)
	assert.Empty(t, notes[0].Content)
}

func TestService_Update(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	a := h.svc.Create(ctx, "a", "1")
	b := h.svc.Create(ctx, "b", "2")
	wait(t, a)
	wait(t, b)
	before := h.notify(t)

	wait(t, h.svc.Update(ctx, a.ID(), "a2", "1b"))
	after := h.notify(t)

	require.Len(t, after, len(before))
	for _, n := range after {
		switch n.ID {
		case a.ID():
			assert.Equal(t, "a2", n.Title)
			assert.Equal(t, "1b", n.Content)
		case b.ID():
			assert.Equal(t, "b", n.Title)
		default:
			t.Fatalf("unexpected id %s", n.ID)
		}
	}
}

func TestService_UpdateMissingIsReported(t *testing.T) {
	h := setup(t)

	c := h.svc.Update(context.Background(), "ghost", "t", "c")
	<-c.Done()
	assert.ErrorIs(t, c.Err(), core.ErrNotFound)

	select {
	case err := <-h.errs:
		assert.ErrorIs(t, err, core.ErrNotFound)
	case <-time.After(time.Second):
		t.Fatal("error handler not called")
	}
	assert.Empty(t, h.notify(t))
}

func TestService_Delete(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	var created []*core.Completion
	for _, title := range []string{"x", "y", "z"} {
		c := h.svc.Create(ctx, title, "")
		wait(t, c)
		created = append(created, c)
	}
	h.notify(t)

	victim := created[1].ID()
	wait(t, h.svc.Delete(ctx, victim))
	notes := h.notify(t)

	require.Len(t, notes, 2)
	remaining := map[string]bool{}
	for _, n := range notes {
		remaining[n.ID] = true
	}
	assert.False(t, remaining[victim])
	assert.True(t, remaining[created[0].ID()])
	assert.True(t, remaining[created[2].ID()])
}

func TestService_EmptyID(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.svc.Update(ctx, "", "t", "c").Err(), core.ErrEmptyID)
	assert.ErrorIs(t, h.svc.Delete(ctx, "").Err(), core.ErrEmptyID)
}

func TestService_WriteFailureSurfaced(t *testing.T) {
	h := setup(t)
	boom := errors.New("unavailable")
	h.coll.FailNextWrite(boom)

	c := h.svc.Create(context.Background(), "t", "c")
	<-c.Done()
	assert.ErrorIs(t, c.Err(), boom)
	assert.Empty(t, h.notify(t), "failed write leaves the list untouched")
}

func TestService_ListMirrorsStoreAfterRandomOps(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))

	var ids []string
	for i := 0; i < 60; i++ {
		switch op := rng.IntN(3); {
		case op == 0 || len(ids) == 0:
			c := h.svc.Create(ctx, "title", "content")
			wait(t, c)
			ids = append(ids, c.ID())
		case op == 1:
			id := ids[rng.IntN(len(ids))]
			c := h.svc.Update(ctx, id, "t"+id[:4], "c"+id[:4])
			wait(t, c)
		default:
			k := rng.IntN(len(ids))
			wait(t, h.svc.Delete(ctx, ids[k]))
			ids = append(ids[:k], ids[k+1:]...)
		}

		if i%5 == 0 {
			assert.Equal(t, storeNotes(t, h.coll), h.notify(t))
		}
	}
	assert.Equal(t, storeNotes(t, h.coll), h.notify(t))
}

func TestService_SameNotificationTwiceIsIdempotent(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	wait(t, h.svc.Create(ctx, "a", "b"))

	first := h.notify(t)
	second := h.notify(t)
	assert.Equal(t, first, second)
}

func TestService_SubscriptionErrorLeavesListAlone(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	wait(t, h.svc.Create(ctx, "a", "b"))
	before := h.notify(t)

	denied := errors.New("permission denied")
	assert.NotPanics(t, func() { h.coll.FailWatchers(denied) })

	select {
	case err := <-h.errs:
		assert.ErrorIs(t, err, denied)
	case <-time.After(time.Second):
		t.Fatal("subscription error not reported")
	}
	select {
	case <-h.changes:
		t.Fatal("onChange must not run for a subscription error")
	default:
	}
	assert.Equal(t, before, h.svc.Notes())

	// The subscription keeps delivering afterwards.
	assert.Equal(t, before, h.notify(t))
}

func TestService_UnconvertibleDocumentSkipped(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	require.NoError(t, h.coll.Set(ctx, core.Document{ID: "bad", Fields: core.Fields{core.FieldTitle: 42}}))
	require.NoError(t, h.coll.Set(ctx, core.Document{ID: "good", Fields: core.Fields{core.FieldTitle: "ok"}}))

	notes := h.notify(t)
	assert.Equal(t, []core.Note{{ID: "good", Title: "ok"}}, notes)
}

func TestService_SubscribeOnce(t *testing.T) {
	h := setup(t)
	assert.True(t, h.svc.Subscribed())

	err := h.svc.Subscribe(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrAlreadySubscribed)
}

func TestService_SubscribeOnClosedCollection(t *testing.T) {
	coll := memory.New(memory.Config{})
	require.NoError(t, coll.Close())

	svc := core.NewService(coll, core.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	err := svc.Subscribe(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.False(t, svc.Subscribed())
}

// slowWatch holds Watch until release is closed.
type slowWatch struct {
	*memory.Collection
	entered chan struct{}
	release chan struct{}
}

func (s *slowWatch) Watch(ctx context.Context) (<-chan core.SnapshotEvent, error) {
	close(s.entered)
	<-s.release
	return s.Collection.Watch(ctx)
}

func TestService_StateDuringSlowSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.New(memory.Config{})
	defer store.Close()
	coll := &slowWatch{Collection: store, entered: make(chan struct{}), release: make(chan struct{})}
	svc := core.NewService(coll, core.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	subscribed := make(chan error, 1)
	go func() { subscribed <- svc.Subscribe(ctx, func([]core.Note) {}) }()
	<-coll.entered

	stateRead := make(chan core.ServiceState, 1)
	go func() { stateRead <- svc.State().(core.ServiceState) }()
	select {
	case state := <-stateRead:
		assert.False(t, state.Subscribed)
	case <-time.After(time.Second):
		t.Fatal("State blocked behind Subscribe")
	}
	assert.False(t, svc.Subscribed())
	assert.ErrorIs(t, svc.Subscribe(ctx, nil), core.ErrAlreadySubscribed)

	close(coll.release)
	require.NoError(t, <-subscribed)
	assert.True(t, svc.Subscribed())
}

func TestService_WritesOutliveCallerContext(t *testing.T) {
	h := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	c := h.svc.Create(ctx, "t", "c")
	cancel()

	wait(t, c)
	assert.Len(t, h.notify(t), 1)
}

func TestService_State(t *testing.T) {
	h := setup(t)
	wait(t, h.svc.Create(context.Background(), "t", "c"))
	h.notify(t)

	state, ok := h.svc.State().(core.ServiceState)
	require.True(t, ok)
	assert.Equal(t, "notes", state.Collection)
	assert.Equal(t, "memory-collection", state.CollectionType)
	assert.True(t, state.Subscribed)
	assert.Equal(t, 1, state.Notes)
	assert.Equal(t, "service", h.svc.ComponentType())
}

func TestService_ConcurrentWrites(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := h.svc.Create(ctx, "t", "c")
			<-c.Done()
			assert.NoError(t, c.Err())
		}()
	}
	wg.Wait()

	assert.Len(t, h.notify(t), 20)
}
