package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

// Adapter names.
const (
	AdapterMemory = "memory"
	AdapterFS     = "fs"
	AdapterSQLite = "sqlite"
	AdapterRemote = "remote"
)

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "notes"

// options holds the internal configuration for notesync.
type options struct {
	collection     core.Collection
	logger         *slog.Logger
	adapter        string
	name           string
	extension      string
	eventBuffer    int
	writeTimeout   time.Duration
	requestTimeout time.Duration
	pollInterval   time.Duration
	versioning     bool
	autoInit       bool
	mustExist      bool
	readOnly       bool
	devSafety      bool
	errorHandler   func(error)
}

// Option defines a functional option for configuring notesync.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter:   AdapterFS,
		name:      DefaultCollection,
		autoInit:  true,
		devSafety: true,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithAdapter selects the storage adapter by name: memory, fs, sqlite or
// remote. Defaults to fs.
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithLogger sets the logger for the service and its adapter.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCollection sets the collection name. Defaults to "notes".
func WithCollection(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithCollectionImpl injects a ready collection (e.g. a fake in tests).
// The adapter and URI are then ignored.
func WithCollectionImpl(coll core.Collection) Option {
	return func(o *options) {
		o.collection = coll
	}
}

// WithExtension sets the document file extension of the fs adapter
// (".yaml" by default, or ".json").
func WithExtension(ext string) Option {
	return func(o *options) {
		o.extension = ext
	}
}

// WithEventBuffer sets the per-watcher snapshot buffer.
// Zero means default (16).
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.eventBuffer = size
	}
}

// WithWriteTimeout bounds each create, update or delete issued by the service.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = d
	}
}

// WithRequestTimeout bounds each call of the remote adapter.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = d
	}
}

// WithPollInterval sets how often the sqlite adapter checks for commits
// made by other processes.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithVersioning commits every fs write to git.
func WithVersioning(enabled bool) Option {
	return func(o *options) {
		o.versioning = enabled
	}
}

// WithAutoInit creates missing directories (and the git repository when
// versioned). Enabled by default.
func WithAutoInit(auto bool) Option {
	return func(o *options) {
		o.autoInit = auto
	}
}

// WithMustExist fails Open if the storage does not exist yet.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.mustExist = must
	}
}

// WithReadOnly rejects writes with core.ErrReadOnly and skips any setup
// that would touch the storage. The dev sandbox is bypassed.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.readOnly = enabled
	}
}

// WithDevSafety controls the sandbox used under `go run` and `go test`:
// by default local storage paths are re-rooted into a temporary directory.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}

// WithErrorHandler receives subscription, write and adapter failures
// (crash-reporting hook). They are logged either way.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}
