package core

import (
	"fmt"
	"time"
)

// Field names of a note document in the remote collection.
const (
	FieldTitle   = "title"
	FieldContent = "content"
)

// Fields represents the flexible key-value pairs stored in a document.
type Fields map[string]any

// Document is the record shape of the remote collection.
// The document key serves as the note ID.
type Document struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

// Note is the central entity of the domain.
// It is the local shape of a document: an ID, a title and a content.
// Empty titles and contents are allowed.
type Note struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Document converts the note into its remote representation.
func (n Note) Document() Document {
	return Document{
		ID: n.ID,
		Fields: Fields{
			FieldTitle:   n.Title,
			FieldContent: n.Content,
		},
	}
}

// NoteFromDocument maps a document field-for-field into a Note.
// Missing fields map to the empty string. A field holding a non-string value
// makes the document unconvertible.
func NoteFromDocument(doc Document) (Note, error) {
	title, err := stringField(doc.Fields, FieldTitle)
	if err != nil {
		return Note{}, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	content, err := stringField(doc.Fields, FieldContent)
	if err != nil {
		return Note{}, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	return Note{ID: doc.ID, Title: title, Content: content}, nil
}

func stringField(fields Fields, key string) (string, error) {
	v, ok := fields[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, not a string", key, v)
	}
	return s, nil
}

// Snapshot is the full current document set of a collection.
// Documents are ordered by ascending ID.
type Snapshot struct {
	Documents []Document
	ReadAt    time.Time
}

// Notes converts every convertible document, keeping the snapshot order.
// Documents that cannot be converted are returned in skipped.
func (s Snapshot) Notes() (notes []Note, skipped []error) {
	notes = make([]Note, 0, len(s.Documents))
	for _, doc := range s.Documents {
		n, err := NoteFromDocument(doc)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		notes = append(notes, n)
	}
	return notes, skipped
}

// SnapshotEvent is one item of a change subscription: either a snapshot or a
// subscription error (transport failure, permission denial).
type SnapshotEvent struct {
	Snapshot Snapshot
	Err      error
}

// String implements fmt.Stringer.
func (e SnapshotEvent) String() string {
	if e.Err != nil {
		return fmt.Sprintf("error: %v", e.Err)
	}
	return fmt.Sprintf("snapshot: %d documents", len(e.Snapshot.Documents))
}
