// Package screen is the notes screen: an add form, the list of notes and an
// edit dialog, kept in one state value owned by an event loop.
//
// User actions and change notifications are both posted to the loop, so
// state is never touched concurrently. After each change the screen hands an
// immutable View to its Renderer.
package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aretw0/notesync/pkg/core"
)

var (
	// ErrNoteNotFound is returned for an ID that is not on screen.
	ErrNoteNotFound = errors.New("note not on screen")
	// ErrNoEdit is returned by edit actions when no dialog is open.
	ErrNoEdit = errors.New("no note is being edited")
)

// EditForm is the open edit dialog, pre-filled from the note.
type EditForm struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// View is a copy of the screen state for rendering.
type View struct {
	Title   string      `json:"title"`
	Content string      `json:"content"`
	Notes   []core.Note `json:"notes"`
	Edit    *EditForm   `json:"edit,omitempty"`
}

// Renderer draws a view.
type Renderer interface {
	Render(View)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(View)

func (f RendererFunc) Render(v View) { f(v) }

// Config holds the configuration for the screen.
type Config struct {
	Logger *slog.Logger
	// ErrorHandler receives panics raised on the event loop.
	ErrorHandler func(error)
	// QueueSize bounds pending loop tasks. Zero means 64.
	QueueSize int
}

// Screen is the notes screen.
type Screen struct {
	svc      *core.Service
	renderer Renderer
	config   Config
	logger   *slog.Logger
	loop     *Loop

	// Owned by the loop.
	state View
}

// New creates a screen over svc. Start must be called before any action.
func New(svc *core.Service, renderer Renderer, config Config) *Screen {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if renderer == nil {
		renderer = RendererFunc(func(View) {})
	}
	return &Screen{
		svc:      svc,
		renderer: renderer,
		config:   config,
		logger:   logger,
		loop:     NewLoop(config.QueueSize),
	}
}

// Start runs the event loop, draws the empty screen and subscribes to
// changes. The screen lives until ctx ends.
func (s *Screen) Start(ctx context.Context) error {
	s.loop.Start(ctx, func(err error) {
		s.logger.Error("screen loop failure", "error", err)
		if s.config.ErrorHandler != nil {
			s.config.ErrorHandler(err)
		}
	})

	if err := s.loop.Do(func() error {
		s.render()
		return nil
	}); err != nil {
		return err
	}

	return s.svc.Subscribe(ctx, func(notes []core.Note) {
		if err := s.loop.Post(func() {
			s.state.Notes = notes
			s.render()
		}); err != nil {
			s.logger.Debug("change dropped", "error", err)
		}
	})
}

// Done is closed when the screen's loop has stopped.
func (s *Screen) Done() <-chan struct{} {
	return s.loop.Done()
}

func (s *Screen) render() {
	s.renderer.Render(s.snapshot())
}

func (s *Screen) snapshot() View {
	v := View{
		Title:   s.state.Title,
		Content: s.state.Content,
		Notes:   slices.Clone(s.state.Notes),
	}
	if s.state.Edit != nil {
		edit := *s.state.Edit
		v.Edit = &edit
	}
	return v
}

func (s *Screen) find(id string) (core.Note, bool) {
	i := slices.IndexFunc(s.state.Notes, func(n core.Note) bool { return n.ID == id })
	if i < 0 {
		return core.Note{}, false
	}
	return s.state.Notes[i], true
}

// View returns the current state.
func (s *Screen) View() (View, error) {
	var v View
	err := s.loop.Do(func() error {
		v = s.snapshot()
		return nil
	})
	return v, err
}

// SetTitle sets the add form's title field.
func (s *Screen) SetTitle(title string) error {
	return s.loop.Do(func() error {
		s.state.Title = title
		s.render()
		return nil
	})
}

// SetContent sets the add form's content field.
func (s *Screen) SetContent(content string) error {
	return s.loop.Do(func() error {
		s.state.Content = content
		s.render()
		return nil
	})
}

// Add creates a note from the add form and clears it, whatever the outcome
// of the write. The note shows up with the next change notification.
func (s *Screen) Add(ctx context.Context) (*core.Completion, error) {
	var c *core.Completion
	err := s.loop.Do(func() error {
		c = s.svc.Create(ctx, s.state.Title, s.state.Content)
		s.state.Title = ""
		s.state.Content = ""
		s.render()
		return nil
	})
	return c, err
}

// OpenEdit opens the edit dialog for a note on screen.
func (s *Screen) OpenEdit(id string) error {
	return s.loop.Do(func() error {
		note, ok := s.find(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoteNotFound, id)
		}
		s.state.Edit = &EditForm{ID: note.ID, Title: note.Title, Content: note.Content}
		s.render()
		return nil
	})
}

// SetEditTitle sets the edit dialog's title field.
func (s *Screen) SetEditTitle(title string) error {
	return s.loop.Do(func() error {
		if s.state.Edit == nil {
			return ErrNoEdit
		}
		s.state.Edit.Title = title
		s.render()
		return nil
	})
}

// SetEditContent sets the edit dialog's content field.
func (s *Screen) SetEditContent(content string) error {
	return s.loop.Do(func() error {
		if s.state.Edit == nil {
			return ErrNoEdit
		}
		s.state.Edit.Content = content
		s.render()
		return nil
	})
}

// SaveEdit writes the dialog's fields to its note and closes the dialog.
func (s *Screen) SaveEdit(ctx context.Context) (*core.Completion, error) {
	var c *core.Completion
	err := s.loop.Do(func() error {
		edit := s.state.Edit
		if edit == nil {
			return ErrNoEdit
		}
		c = s.svc.Update(ctx, edit.ID, edit.Title, edit.Content)
		s.state.Edit = nil
		s.render()
		return nil
	})
	return c, err
}

// CancelEdit closes the dialog without writing.
func (s *Screen) CancelEdit() error {
	return s.loop.Do(func() error {
		if s.state.Edit == nil {
			return nil
		}
		s.state.Edit = nil
		s.render()
		return nil
	})
}

// Delete removes a note on screen. It stays visible until the next change
// notification.
func (s *Screen) Delete(ctx context.Context, id string) (*core.Completion, error) {
	var c *core.Completion
	err := s.loop.Do(func() error {
		if _, ok := s.find(id); !ok {
			return fmt.Errorf("%w: %s", ErrNoteNotFound, id)
		}
		c = s.svc.Delete(ctx, id)
		return nil
	})
	return c, err
}
