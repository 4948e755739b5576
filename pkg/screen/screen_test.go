package screen_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/screen"
)

// recorder keeps every rendered view.
type recorder struct {
	mu    sync.Mutex
	views []screen.View
}

func (r *recorder) Render(v screen.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) last() screen.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[len(r.views)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

type harness struct {
	store  *memory.Collection
	screen *screen.Screen
	rec    *recorder
}

func setup(t *testing.T) (*harness, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New(memory.Config{Name: "notes"})
	t.Cleanup(func() { _ = store.Close() })

	svc := core.NewService(store, core.Config{Logger: logger})
	rec := &recorder{}
	scr := screen.New(svc, rec, screen.Config{Logger: logger})
	require.NoError(t, scr.Start(ctx))

	return &harness{store: store, screen: scr, rec: rec}, ctx
}

// waitNotes waits until the rendered list has n notes.
func (h *harness) waitNotes(t *testing.T, n int) []core.Note {
	t.Helper()
	var notes []core.Note
	require.Eventually(t, func() bool {
		v, err := h.screen.View()
		if err != nil {
			return false
		}
		notes = v.Notes
		return len(notes) == n
	}, 2*time.Second, 5*time.Millisecond)
	return notes
}

func TestStartRendersEmptyScreen(t *testing.T) {
	h, _ := setup(t)
	require.GreaterOrEqual(t, h.rec.count(), 1)
	assert.Empty(t, h.rec.last().Title)
	h.waitNotes(t, 0)
}

func TestAddClearsForm(t *testing.T) {
	h, ctx := setup(t)

	require.NoError(t, h.screen.SetTitle("Groceries"))
	require.NoError(t, h.screen.SetContent("eggs"))
	v, err := h.screen.View()
	require.NoError(t, err)
	assert.Equal(t, "Groceries", v.Title)

	c, err := h.screen.Add(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Wait(ctx))

	v, err = h.screen.View()
	require.NoError(t, err)
	assert.Empty(t, v.Title)
	assert.Empty(t, v.Content)

	notes := h.waitNotes(t, 1)
	assert.Equal(t, "Groceries", notes[0].Title)
	assert.Equal(t, "eggs", notes[0].Content)
}

func TestAddClearsFormEvenWhenWriteFails(t *testing.T) {
	h, ctx := setup(t)
	h.store.FailNextWrite(assert.AnError)

	require.NoError(t, h.screen.SetTitle("lost"))
	c, err := h.screen.Add(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Wait(ctx), assert.AnError)

	v, err := h.screen.View()
	require.NoError(t, err)
	assert.Empty(t, v.Title)
	assert.Empty(t, v.Notes)
}

func TestEditDialog(t *testing.T) {
	h, ctx := setup(t)
	require.NoError(t, h.store.Set(ctx, core.Note{ID: "n1", Title: "Old", Content: "old body"}.Document()))
	h.waitNotes(t, 1)

	assert.ErrorIs(t, h.screen.OpenEdit("missing"), screen.ErrNoteNotFound)
	assert.ErrorIs(t, h.screen.SetEditTitle("x"), screen.ErrNoEdit)
	_, err := h.screen.SaveEdit(ctx)
	assert.ErrorIs(t, err, screen.ErrNoEdit)

	require.NoError(t, h.screen.OpenEdit("n1"))
	v, err := h.screen.View()
	require.NoError(t, err)
	require.NotNil(t, v.Edit)
	assert.Equal(t, screen.EditForm{ID: "n1", Title: "Old", Content: "old body"}, *v.Edit, "dialog is pre-filled")

	t.Run("Cancel Does Not Write", func(t *testing.T) {
		require.NoError(t, h.screen.SetEditTitle("discarded"))
		require.NoError(t, h.screen.CancelEdit())

		v, err := h.screen.View()
		require.NoError(t, err)
		assert.Nil(t, v.Edit)

		doc, err := h.store.Get(ctx, "n1")
		require.NoError(t, err)
		assert.Equal(t, "Old", doc.Fields[core.FieldTitle])
	})

	t.Run("Save Updates And Closes", func(t *testing.T) {
		require.NoError(t, h.screen.OpenEdit("n1"))
		require.NoError(t, h.screen.SetEditTitle("New"))
		require.NoError(t, h.screen.SetEditContent("new body"))

		c, err := h.screen.SaveEdit(ctx)
		require.NoError(t, err)
		require.NoError(t, c.Wait(ctx))

		require.Eventually(t, func() bool {
			v, err := h.screen.View()
			return err == nil && v.Edit == nil && len(v.Notes) == 1 && v.Notes[0].Title == "New"
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, "n1", h.rec.last().Notes[0].ID, "id is unchanged")
	})
}

func TestDelete(t *testing.T) {
	h, ctx := setup(t)
	require.NoError(t, h.store.Set(ctx, core.Note{ID: "n1", Title: "A"}.Document()))
	h.waitNotes(t, 1)

	_, err := h.screen.Delete(ctx, "missing")
	assert.ErrorIs(t, err, screen.ErrNoteNotFound)

	c, err := h.screen.Delete(ctx, "n1")
	require.NoError(t, err)
	require.NoError(t, c.Wait(ctx))
	h.waitNotes(t, 0)
}

func TestViewsAreCopies(t *testing.T) {
	h, ctx := setup(t)
	require.NoError(t, h.store.Set(ctx, core.Note{ID: "n1", Title: "A"}.Document()))
	notes := h.waitNotes(t, 1)
	notes[0].Title = "mutated"

	v, err := h.screen.View()
	require.NoError(t, err)
	assert.Equal(t, "A", v.Notes[0].Title)
}

func TestStoppedScreen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := memory.New(memory.Config{})
	defer store.Close()
	scr := screen.New(core.NewService(store, core.Config{}), nil, screen.Config{})
	require.NoError(t, scr.Start(ctx))

	cancel()
	<-scr.Done()
	assert.ErrorIs(t, scr.SetTitle("x"), screen.ErrLoopStopped)
}

func TestTextRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := screen.NewTextRenderer(&buf)
	r.Render(screen.View{
		Title: "draft",
		Notes: []core.Note{
			{ID: "1", Title: "First", Content: "one"},
			{ID: "2", Title: "Second", Content: "two"},
		},
		Edit: &screen.EditForm{ID: "2", Title: "Second!", Content: "two"},
	})

	out := buf.String()
	assert.Contains(t, out, "Title: draft")
	assert.Contains(t, out, "Editing 2")
	assert.Contains(t, out, "[1] Title: First\n    Description: one\n")
	assert.Contains(t, out, "[2] Title: Second\n    Description: two\n")
	assert.Equal(t, 1, strings.Count(out, "Notes (2)"))
}
