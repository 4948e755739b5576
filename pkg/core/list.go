package core

import (
	"slices"
	"sync"
)

// NoteList is the local, disposable cache of notes.
// It is only ever replaced as a whole; there is no incremental merge.
type NoteList struct {
	mu      sync.RWMutex
	notes   []Note
	version uint64
}

// Replace swaps the list contents for notes.
// It reports whether the contents changed; replacing with an equal set
// leaves the list (and its version) untouched.
func (l *NoteList) Replace(notes []Note) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.version > 0 && slices.Equal(l.notes, notes) {
		return false
	}
	l.notes = slices.Clone(notes)
	l.version++
	return true
}

// Notes returns a copy of the current list.
func (l *NoteList) Notes() []Note {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.notes)
}

// Len returns the number of notes.
func (l *NoteList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.notes)
}

// Version counts the replacements that changed the list.
func (l *NoteList) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}
