package screen

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// TextRenderer draws the screen as plain text.
type TextRenderer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextRenderer returns a renderer writing to w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

// Render implements Renderer.
func (r *TextRenderer) Render(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.w, Format(v))
}

// Format lays out a view: the add form, the edit dialog when open, then one
// numbered card per note.
func Format(v View) string {
	var b strings.Builder

	b.WriteString("── New note ──\n")
	fmt.Fprintf(&b, "Title: %s\n", v.Title)
	fmt.Fprintf(&b, "Content: %s\n", v.Content)

	if v.Edit != nil {
		fmt.Fprintf(&b, "── Editing %s ──\n", v.Edit.ID)
		fmt.Fprintf(&b, "Title: %s\n", v.Edit.Title)
		fmt.Fprintf(&b, "Content: %s\n", v.Edit.Content)
	}

	fmt.Fprintf(&b, "── Notes (%d) ──\n", len(v.Notes))
	for i, n := range v.Notes {
		fmt.Fprintf(&b, "[%d] Title: %s\n", i+1, n.Title)
		fmt.Fprintf(&b, "    Description: %s\n", n.Content)
	}
	return b.String()
}
