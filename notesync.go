package notesync

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/notesync/internal/platform"
	"github.com/aretw0/notesync/pkg/core"
)

// --- Configuration ---

// Option defines a functional option for configuring notesync.
type Option = platform.Option

// Adapter names accepted by WithAdapter.
const (
	AdapterMemory = platform.AdapterMemory
	AdapterFS     = platform.AdapterFS
	AdapterSQLite = platform.AdapterSQLite
	AdapterRemote = platform.AdapterRemote
)

// WithAdapter selects the storage adapter by name (memory, fs, sqlite, remote).
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithCollection sets the collection name ("notes" by default).
func WithCollection(name string) Option {
	return platform.WithCollection(name)
}

// WithCollectionImpl allows injecting a custom collection.
func WithCollectionImpl(coll core.Collection) Option {
	return platform.WithCollectionImpl(coll)
}

// WithExtension sets the file extension of the fs adapter.
func WithExtension(ext string) Option {
	return platform.WithExtension(ext)
}

// WithEventBuffer sets the per-watcher snapshot buffer.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithWriteTimeout bounds each write issued by the service.
func WithWriteTimeout(d time.Duration) Option {
	return platform.WithWriteTimeout(d)
}

// WithRequestTimeout bounds each call of the remote adapter.
func WithRequestTimeout(d time.Duration) Option {
	return platform.WithRequestTimeout(d)
}

// WithPollInterval sets the sqlite adapter's poll interval for foreign commits.
func WithPollInterval(d time.Duration) Option {
	return platform.WithPollInterval(d)
}

// WithVersioning enables or disables git history for the fs adapter.
func WithVersioning(enabled bool) Option {
	return platform.WithVersioning(enabled)
}

// WithAutoInit enables automatic creation of the storage.
func WithAutoInit(auto bool) Option {
	return platform.WithAutoInit(auto)
}

// WithMustExist ensures the storage must already exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithReadOnly rejects every write.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithDevSafety toggles the temporary sandbox used under go run / go test.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithErrorHandler sets the hook receiving subscription and write failures.
func WithErrorHandler(fn func(error)) Option {
	return platform.WithErrorHandler(fn)
}

// --- Factory ---

// New creates a notes service on top of the configured collection.
func New(ctx context.Context, uri string, opts ...Option) (*core.Service, error) {
	return platform.New(ctx, uri, opts...)
}

// Open returns the configured collection without wrapping it in a service.
func Open(ctx context.Context, uri string, opts ...Option) (core.Collection, error) {
	return platform.Open(ctx, uri, opts...)
}
