// Package fs implements core.Collection on top of a directory.
//
// Each document is one file named after its ID inside the collection
// directory ({Path}/{Collection}/{id}.yaml by default). External edits are
// picked up by an fsnotify watcher and turned into full snapshots, so two
// processes sharing a directory see each other's changes. With versioning
// enabled every write is also committed to git.
package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/aretw0/lifecycle/pkg/core/supervisor"
	"github.com/aretw0/lifecycle/pkg/core/worker"

	"github.com/aretw0/notesync/internal/fanout"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/git"
)

// Config holds the configuration for the filesystem collection.
type Config struct {
	Path       string // Root directory holding collections.
	Collection string // Collection name; documents live in Path/Collection.
	Extension  string // Document file extension, e.g. ".yaml" (default) or ".json".
	AutoInit   bool   // Create missing directories (and git repo when versioned).
	MustExist  bool   // Fail Initialize if the collection directory is missing.
	Versioning bool   // Commit every write to git.
	ReadOnly   bool
	Logger     *slog.Logger
	// ErrorHandler receives watcher failures, which are otherwise only logged.
	ErrorHandler func(error)
	EventBuffer  int
	// Debounce coalesces bursts of filesystem events. Zero means 50ms.
	Debounce time.Duration
}

// Collection implements core.Collection using the filesystem.
type Collection struct {
	Path       string // Absolute collection directory.
	config     Config
	serializer Serializer
	pattern    string
	git        *git.Client
	hub        *fanout.Hub
	cache      *cache

	// mu serializes writes with snapshot publication so a watcher's initial
	// snapshot never misses a concurrent write.
	mu     sync.Mutex
	closed bool

	stateMu       sync.RWMutex
	watcherActive atomic.Bool
	lastScan      *time.Time
	sup           runner
	cancelSup     context.CancelFunc
}

// runner is the part of the lifecycle supervisor the collection drives.
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NewCollection creates a new filesystem-backed collection.
// It does no I/O until Initialize or the first operation.
func NewCollection(config Config) *Collection {
	if config.Collection == "" {
		config.Collection = "notes"
	}
	if config.Extension == "" {
		config.Extension = ".yaml"
	}
	if !strings.HasPrefix(config.Extension, ".") {
		config.Extension = "." + config.Extension
	}
	if config.Debounce <= 0 {
		config.Debounce = 50 * time.Millisecond
	}

	serializer, ok := DefaultSerializers()[config.Extension]
	if !ok {
		serializer = YAMLSerializer{}
	}

	return &Collection{
		Path:       filepath.Join(config.Path, config.Collection),
		config:     config,
		serializer: serializer,
		pattern:    "*" + config.Extension,
		git:        git.NewClient(config.Path, config.Logger),
		hub:        fanout.NewHub(config.EventBuffer),
		cache:      newCache(),
	}
}

// RegisterSerializer overrides the serializer used for this collection's
// extension (e.g. to store documents in another format).
func (c *Collection) RegisterSerializer(s Serializer) {
	c.serializer = s
}

// Initialize performs the necessary setup (mkdir, git init).
func (c *Collection) Initialize(ctx context.Context) error {
	if c.config.MustExist || c.config.ReadOnly {
		info, err := os.Stat(c.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("collection path does not exist: %s", c.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("collection path is not a directory: %s", c.Path)
		}
	} else {
		if err := os.MkdirAll(c.Path, 0755); err != nil {
			return fmt.Errorf("failed to create collection directory: %w", err)
		}
	}

	if c.config.Versioning && !c.config.ReadOnly {
		if !git.IsInstalled() {
			return fmt.Errorf("git is not installed")
		}
		if !c.git.IsRepo() {
			if !c.config.AutoInit {
				return fmt.Errorf("path is not a git repository: %s", c.config.Path)
			}
			if err := c.git.Init(ctx); err != nil {
				return fmt.Errorf("failed to git init: %w", err)
			}
		}
	}

	return nil
}

// Name implements core.Collection.
func (c *Collection) Name() string {
	return c.config.Collection
}

// NewID implements core.Collection.
func (c *Collection) NewID() string {
	return uuid.NewString()
}

func (c *Collection) filename(id string) string {
	return filepath.Join(c.Path, id+c.config.Extension)
}

// validateID rejects keys that would escape the collection directory.
func validateID(id string) error {
	if id == "" {
		return core.ErrEmptyID
	}
	if strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid document id %q", id)
	}
	return nil
}

// Get implements core.Collection.
func (c *Collection) Get(ctx context.Context, id string) (core.Document, error) {
	if err := validateID(id); err != nil {
		return core.Document{}, err
	}
	return c.read(id)
}

func (c *Collection) read(id string) (core.Document, error) {
	path := c.filename(id)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.cache.Delete(id)
			return core.Document{}, fmt.Errorf("%s/%s: %w", c.config.Collection, id, core.ErrNotFound)
		}
		return core.Document{}, fmt.Errorf("failed to stat document: %w", err)
	}
	if fields, ok := c.cache.Get(id, info.ModTime(), info.Size()); ok {
		return core.Document{ID: id, Fields: fields}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.cache.Delete(id)
			return core.Document{}, fmt.Errorf("%s/%s: %w", c.config.Collection, id, core.ErrNotFound)
		}
		return core.Document{}, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	fields, err := c.serializer.Parse(f)
	if err != nil {
		return core.Document{}, fmt.Errorf("failed to parse %s: %w", id, err)
	}
	if fields == nil {
		fields = core.Fields{}
	}
	c.cache.Set(id, info.ModTime(), info.Size(), fields)
	return core.Document{ID: id, Fields: fields}, nil
}

// List implements core.Collection.
// Files that fail to parse are skipped and reported to the error handler.
func (c *Collection) List(ctx context.Context) ([]core.Document, error) {
	entries, err := os.ReadDir(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return []core.Document{}, nil
		}
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}

	docs := make([]core.Document, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := c.idFromName(e.Name())
		if !ok {
			continue
		}
		seen[id] = true
		doc, err := c.read(id)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue // removed while listing
			}
			c.reportError(err)
			continue
		}
		docs = append(docs, doc)
	}
	c.cache.Prune(seen)

	slices.SortFunc(docs, func(a, b core.Document) int {
		return strings.Compare(a.ID, b.ID)
	})
	return docs, nil
}

// idFromName maps a file name to a document ID if the file is a document.
func (c *Collection) idFromName(name string) (string, bool) {
	if strings.HasPrefix(name, TempFilePrefix) || strings.HasPrefix(name, ".") {
		return "", false
	}
	match, err := doublestar.Match(c.pattern, name)
	if err != nil || !match {
		return "", false
	}
	return strings.TrimSuffix(name, c.config.Extension), true
}

// Set implements core.Collection.
func (c *Collection) Set(ctx context.Context, doc core.Document) error {
	if err := validateID(doc.ID); err != nil {
		return err
	}
	return c.write(ctx, func() (string, error) {
		_, err := os.Stat(c.filename(doc.ID))
		verb := "update"
		if os.IsNotExist(err) {
			verb = "create"
		}
		return verb, c.writeFields(doc.ID, doc.Fields)
	}, doc.ID)
}

// Update implements core.Collection.
func (c *Collection) Update(ctx context.Context, id string, fields core.Fields) error {
	if err := validateID(id); err != nil {
		return err
	}
	return c.write(ctx, func() (string, error) {
		existing, err := c.read(id)
		if err != nil {
			return "", err
		}
		merged := maps.Clone(existing.Fields)
		if merged == nil {
			merged = core.Fields{}
		}
		maps.Copy(merged, fields)
		return "update", c.writeFields(id, merged)
	}, id)
}

// Delete implements core.Collection.
func (c *Collection) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return c.write(ctx, func() (string, error) {
		if err := os.Remove(c.filename(id)); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to delete document: %w", err)
		}
		c.cache.Delete(id)
		return "delete", nil
	}, id)
}

func (c *Collection) writeFields(id string, fields core.Fields) error {
	data, err := c.serializer.Serialize(fields)
	if err != nil {
		return fmt.Errorf("failed to serialize document: %w", err)
	}
	if err := os.MkdirAll(c.Path, 0755); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}
	if err := writeFileAtomic(c.filename(id), data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	// A rewrite can keep mtime and size on coarse clocks.
	c.cache.Delete(id)
	return nil
}

// write runs one mutation, records it in git when versioned and publishes
// the resulting snapshot.
func (c *Collection) write(ctx context.Context, fn func() (verb string, err error), id string) error {
	if c.config.ReadOnly {
		return core.ErrReadOnly
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return core.ErrClosed
	}

	verb, err := fn()
	if err != nil {
		return err
	}

	if c.config.Versioning {
		if err := c.commit(ctx, verb, id); err != nil {
			return err
		}
	}

	c.publishLocked(ctx)
	return nil
}

func (c *Collection) commit(ctx context.Context, verb, id string) error {
	unlock, err := c.git.Lock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire git lock: %w", err)
	}
	defer unlock()

	rel, err := filepath.Rel(c.config.Path, c.filename(id))
	if err != nil {
		return err
	}
	if verb == "delete" {
		err = c.git.Rm(ctx, rel)
	} else {
		err = c.git.Add(ctx, rel)
	}
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", rel, err)
	}

	msg := git.FormatCommitMessage(git.CommitTypeDocs, c.config.Collection, verb+" "+id, "")
	if err := c.git.Commit(ctx, msg); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}
	return nil
}

// publish lists the collection and delivers the snapshot to watchers,
// skipping it when nothing changed since the last one.
func (c *Collection) publish(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.publishLocked(ctx)
	}
}

func (c *Collection) publishLocked(ctx context.Context) {
	if c.hub.Len() == 0 {
		return
	}
	docs, err := c.List(ctx)
	if err != nil {
		c.hub.Publish(core.SnapshotEvent{Err: err})
		return
	}
	c.deliverLocked(docs)
}

func (c *Collection) deliverLocked(docs []core.Document) core.SnapshotEvent {
	ev := core.SnapshotEvent{Snapshot: core.Snapshot{Documents: docs, ReadAt: time.Now()}}
	c.recordScan()
	if last, ok := c.hub.Last(); ok && reflect.DeepEqual(last.Documents, docs) {
		return ev
	}
	c.hub.Publish(ev)
	return ev
}

// Watch implements core.Collection.
// The first call starts the directory watcher.
func (c *Collection) Watch(ctx context.Context) (<-chan core.SnapshotEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, core.ErrClosed
	}
	if err := c.ensureWatcher(); err != nil {
		return nil, err
	}

	docs, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	initial := c.deliverLocked(docs)
	return c.hub.Subscribe(ctx, &initial)
}

// ensureWatcher starts the supervised watch worker once. Callers hold c.mu.
// stateMu is not held across sup.Start: the worker reports its state while
// starting.
func (c *Collection) ensureWatcher() error {
	c.stateMu.RLock()
	running := c.sup != nil
	c.stateMu.RUnlock()
	if running {
		return nil
	}
	if !c.config.ReadOnly {
		if err := os.MkdirAll(c.Path, 0755); err != nil {
			return fmt.Errorf("failed to create collection directory: %w", err)
		}
	}

	spec := supervisor.Spec{
		Name: "fs-watcher",
		Type: string(worker.TypeGoroutine),
		Factory: func() (worker.Worker, error) {
			return newWatchWorker(c), nil
		},
		Backoff: supervisor.Backoff{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
			ResetDuration:   time.Minute,
			MaxRestarts:     10,
			MaxDuration:     10 * time.Minute,
		},
		RestartPolicy: supervisor.RestartOnFailure,
	}

	// The watcher outlives any single Watch call; Close stops it.
	ctx, cancel := context.WithCancel(context.Background())
	sup := supervisor.New("fs-collection-"+c.config.Collection, supervisor.StrategyOneForOne, spec)
	if err := sup.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	c.stateMu.Lock()
	c.sup = sup
	c.cancelSup = cancel
	c.stateMu.Unlock()
	return nil
}

// Close implements core.Collection. It stops the watcher and ends all watches.
func (c *Collection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stateMu.Lock()
	sup, cancel := c.sup, c.cancelSup
	c.stateMu.Unlock()

	var err error
	if sup != nil && cancel != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = sup.Stop(stopCtx)
		stopCancel()
		cancel()
	}

	c.hub.Close()
	return err
}

func (c *Collection) reportError(err error) {
	if c.config.Logger != nil {
		c.config.Logger.Warn("collection error", "collection", c.config.Collection, "error", err)
	}
	if c.config.ErrorHandler != nil {
		c.config.ErrorHandler(err)
	}
}

var _ core.Collection = (*Collection)(nil)
