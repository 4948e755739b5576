package core

import "context"

// Collection defines the contract of a named remote collection of documents.
// Adhering to this interface keeps the core independent of the underlying
// store (in-memory, filesystem, SQLite, hosted server).
type Collection interface {
	// Name returns the collection name (e.g. "notes").
	Name() string

	// NewID generates a fresh document key without writing anything.
	NewID() string

	// Get retrieves a document by its ID. Returns ErrNotFound if missing.
	Get(ctx context.Context, id string) (Document, error)

	// List returns the current document set ordered by ascending ID.
	List(ctx context.Context) ([]Document, error)

	// Set creates the document or replaces all of its fields.
	Set(ctx context.Context, doc Document) error

	// Update overwrites only the given fields of an existing document.
	// Returns ErrNotFound if the document does not exist.
	Update(ctx context.Context, id string, fields Fields) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, id string) error

	// Watch subscribes to the collection. The first event carries the initial
	// document set; every later change produces a new full snapshot.
	// The channel is closed when ctx ends or the collection is closed.
	Watch(ctx context.Context) (<-chan SnapshotEvent, error)

	// Close releases the collection's resources and ends all watches.
	Close() error
}
