// Package sqlite implements core.Collection on a SQLite database.
//
// All collections share one documents table keyed by (collection, id), with
// the fields stored as a JSON object. The collection holds a single
// connection: its own writes publish a snapshot right away, and commits made
// by other processes are detected by polling PRAGMA data_version, which only
// changes when another connection commits.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notesync/internal/fanout"
	"github.com/aretw0/notesync/pkg/core"
)

// DefaultPollInterval is how often foreign commits are checked for.
const DefaultPollInterval = 500 * time.Millisecond

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	fields TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// Config holds the configuration for the SQLite collection.
type Config struct {
	Path       string // Database file, or ":memory:".
	Collection string
	ReadOnly   bool
	Logger     *slog.Logger
	// ErrorHandler receives poller failures and undecodable rows.
	ErrorHandler func(error)
	EventBuffer  int
	PollInterval time.Duration
}

// Collection implements core.Collection on SQLite.
type Collection struct {
	config Config
	db     *sql.DB
	hub    *fanout.Hub
	logger *slog.Logger

	// mu serializes writes with snapshot publication.
	mu     sync.Mutex
	closed bool

	stateMu      sync.RWMutex
	pollerActive bool
	stopPoller   context.CancelFunc
	pollerDone   chan struct{}
	dataVersion  int64
	lastScan     *time.Time
	writes       int
}

// Open opens (creating if needed) the database and prepares the schema.
func Open(ctx context.Context, config Config) (*Collection, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	if config.Collection == "" {
		config.Collection = "notes"
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dsn(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: data_version is per connection, and own commits must
	// not look like foreign ones.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if !config.ReadOnly {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Collection{
		config: config,
		db:     db,
		hub:    fanout.NewHub(config.EventBuffer),
		logger: logger,
	}, nil
}

func dsn(config Config) string {
	params := "_busy_timeout=5000"
	if config.ReadOnly {
		params += "&mode=ro"
	}
	if config.Path == ":memory:" {
		return "file::memory:?" + params
	}
	sep := "?"
	if strings.Contains(config.Path, "?") {
		sep = "&"
	}
	path := config.Path
	if config.ReadOnly && !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + sep + params
}

// Name implements core.Collection.
func (c *Collection) Name() string {
	return c.config.Collection
}

// NewID implements core.Collection.
func (c *Collection) NewID() string {
	return uuid.NewString()
}

// Get implements core.Collection.
func (c *Collection) Get(ctx context.Context, id string) (core.Document, error) {
	if id == "" {
		return core.Document{}, core.ErrEmptyID
	}
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT fields FROM documents WHERE collection = ? AND id = ?`,
		c.config.Collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Document{}, fmt.Errorf("%s/%s: %w", c.config.Collection, id, core.ErrNotFound)
	}
	if err != nil {
		return core.Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return core.Document{}, fmt.Errorf("failed to decode %s: %w", id, err)
	}
	return core.Document{ID: id, Fields: fields}, nil
}

// List implements core.Collection.
// Rows whose fields cannot be decoded are skipped and reported.
func (c *Collection) List(ctx context.Context) ([]core.Document, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, fields FROM documents WHERE collection = ? ORDER BY id`,
		c.config.Collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []core.Document{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			c.reportError(fmt.Errorf("failed to decode %s: %w", id, err))
			continue
		}
		docs = append(docs, core.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Set implements core.Collection.
func (c *Collection) Set(ctx context.Context, doc core.Document) error {
	if doc.ID == "" {
		return core.ErrEmptyID
	}
	raw, err := encodeFields(doc.Fields)
	if err != nil {
		return err
	}
	return c.write(ctx, func(ctx context.Context) error {
		_, err := c.db.ExecContext(ctx, `
			INSERT INTO documents (collection, id, fields, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(collection, id) DO UPDATE SET
				fields = excluded.fields,
				updated_at = excluded.updated_at`,
			c.config.Collection, doc.ID, raw, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}
		return nil
	})
}

// Update implements core.Collection.
func (c *Collection) Update(ctx context.Context, id string, fields core.Fields) error {
	if id == "" {
		return core.ErrEmptyID
	}
	return c.write(ctx, func(ctx context.Context) error {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		var raw string
		err = tx.QueryRowContext(ctx,
			`SELECT fields FROM documents WHERE collection = ? AND id = ?`,
			c.config.Collection, id,
		).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s/%s: %w", c.config.Collection, id, core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get document: %w", err)
		}

		merged, err := decodeFields(raw)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", id, err)
		}
		maps.Copy(merged, fields)
		updated, err := encodeFields(merged)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET fields = ?, updated_at = ? WHERE collection = ? AND id = ?`,
			updated, time.Now().UTC(), c.config.Collection, id,
		); err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}
		return tx.Commit()
	})
}

// Delete implements core.Collection.
func (c *Collection) Delete(ctx context.Context, id string) error {
	if id == "" {
		return core.ErrEmptyID
	}
	return c.write(ctx, func(ctx context.Context) error {
		if _, err := c.db.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND id = ?`,
			c.config.Collection, id,
		); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		return nil
	})
}

func (c *Collection) write(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.config.ReadOnly {
		return core.ErrReadOnly
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return core.ErrClosed
	}
	if err := fn(ctx); err != nil {
		return err
	}

	c.stateMu.Lock()
	c.writes++
	c.stateMu.Unlock()

	c.publishLocked(ctx)
	return nil
}

// publish lists the collection and delivers it to watchers if it changed.
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
// The first call starts the data_version poller.
func (c *Collection) Watch(ctx context.Context) (<-chan core.SnapshotEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, core.ErrClosed
	}
	if err := c.ensurePoller(ctx); err != nil {
		return nil, err
	}

	docs, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	initial := c.deliverLocked(docs)
	return c.hub.Subscribe(ctx, &initial)
}

func (c *Collection) ensurePoller(ctx context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.stopPoller != nil {
		return nil
	}

	version, err := c.readDataVersion(ctx)
	if err != nil {
		return err
	}
	c.dataVersion = version

	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.stopPoller = cancel
	c.pollerDone = done
	c.pollerActive = true

	lifecycle.Go(pollCtx, func(ctx context.Context) error {
		defer close(done)
		defer c.setPollerActive(false)
		c.poll(ctx)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		c.reportError(fmt.Errorf("poller panic: %w", err))
	}))
	return nil
}

func (c *Collection) poll(ctx context.Context) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		version, err := c.readDataVersion(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.reportError(err)
			c.hub.Publish(core.SnapshotEvent{Err: fmt.Errorf("watch %s: %w", c.config.Collection, err)})
			continue
		}

		c.stateMu.Lock()
		changed := version != c.dataVersion
		c.dataVersion = version
		c.stateMu.Unlock()

		if changed {
			c.logger.Debug("foreign commit detected", "collection", c.config.Collection, "data_version", version)
			c.publish(ctx)
		}
	}
}

func (c *Collection) readDataVersion(ctx context.Context) (int64, error) {
	var version int64
	if err := c.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read data_version: %w", err)
	}
	return version, nil
}

// Close implements core.Collection. It stops the poller, ends all watches
// and closes the database.
func (c *Collection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stateMu.Lock()
	stop, done := c.stopPoller, c.pollerDone
	c.stateMu.Unlock()
	if stop != nil {
		stop()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			c.logger.Warn("poller did not stop in time", "collection", c.config.Collection)
		}
	}

	c.hub.Close()
	return c.db.Close()
}

func (c *Collection) reportError(err error) {
	c.logger.Warn("collection error", "collection", c.config.Collection, "error", err)
	if c.config.ErrorHandler != nil {
		c.config.ErrorHandler(err)
	}
}

func encodeFields(fields core.Fields) (string, error) {
	if fields == nil {
		fields = core.Fields{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode fields: %w", err)
	}
	return string(data), nil
}

func decodeFields(raw string) (core.Fields, error) {
	fields := core.Fields{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = core.Fields{}
	}
	return fields, nil
}

var _ core.Collection = (*Collection)(nil)
