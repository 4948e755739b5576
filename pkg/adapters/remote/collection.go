// Package remote implements core.Collection as a client of a collection
// server (see pkg/server), speaking pkg/protocol over a websocket.
//
// One connection carries all calls. Watchers share a single server-side
// subscription whose snapshots are fanned out locally. When the connection
// drops, every watcher receives an error event and its channel is closed;
// reconnecting is left to the caller.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notesync/internal/fanout"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/protocol"
)

// DefaultRequestTimeout bounds a call when the caller's context has no
// deadline.
const DefaultRequestTimeout = 30 * time.Second

// ErrConnectionClosed is returned by calls once the connection is gone.
var ErrConnectionClosed = errors.New("remote: connection closed")

// Config holds the configuration for the remote collection.
type Config struct {
	// URL of the server, e.g. ws://localhost:8080 (http and https are
	// accepted and mapped to ws and wss).
	URL        string
	Collection string
	Logger     *slog.Logger
	// ErrorHandler receives connection failures.
	ErrorHandler   func(error)
	EventBuffer    int
	RequestTimeout time.Duration
	Dialer         *websocket.Dialer
}

// Collection implements core.Collection over a websocket.
type Collection struct {
	config   Config
	endpoint string
	logger   *slog.Logger
	conn     *websocket.Conn
	hub      *fanout.Hub

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan protocol.Response
	closed   bool
	closeErr error
	done     chan struct{}

	watchMu  sync.Mutex
	watchSub string

	requests atomic.Int64
}

// Dial connects to the server and starts reading.
func Dial(ctx context.Context, config Config) (*Collection, error) {
	if config.Collection == "" {
		config.Collection = "notes"
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	endpoint, err := Endpoint(config.URL, config.Collection)
	if err != nil {
		return nil, err
	}

	conn, res, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	if res != nil && res.Body != nil {
		res.Body.Close()
	}

	c := &Collection{
		config:   config,
		endpoint: endpoint,
		logger:   logger.With("collection", config.Collection),
		conn:     conn,
		hub:      fanout.NewHub(config.EventBuffer),
		pending:  make(map[string]chan protocol.Response),
		done:     make(chan struct{}),
	}

	lifecycle.Go(context.Background(), func(ctx context.Context) error {
		c.readLoop()
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		c.fail(fmt.Errorf("remote: read loop panic: %w", err))
	}))

	c.logger.Debug("connected", "endpoint", endpoint)
	return c, nil
}

// Endpoint builds the websocket URL of a collection on a server.
func Endpoint(base, collection string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("remote: server url is required")
	}
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "ws://"), strings.HasPrefix(base, "wss://"):
	default:
		base = "ws://" + base
	}
	return strings.TrimSuffix(base, "/") + protocol.CollectionPath(collection), nil
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
	var doc core.Document
	err := c.call(ctx, protocol.MethodGet, protocol.IDParams{ID: id}, &doc)
	return doc, err
}

// List implements core.Collection.
func (c *Collection) List(ctx context.Context) ([]core.Document, error) {
	docs := []core.Document{}
	if err := c.call(ctx, protocol.MethodList, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Set implements core.Collection.
func (c *Collection) Set(ctx context.Context, doc core.Document) error {
	return c.call(ctx, protocol.MethodSet, protocol.SetParams{Document: doc}, nil)
}

// Update implements core.Collection.
func (c *Collection) Update(ctx context.Context, id string, fields core.Fields) error {
	return c.call(ctx, protocol.MethodUpdate, protocol.UpdateParams{ID: id, Fields: fields}, nil)
}

// Delete implements core.Collection.
func (c *Collection) Delete(ctx context.Context, id string) error {
	return c.call(ctx, protocol.MethodDelete, protocol.IDParams{ID: id}, nil)
}

// Watch implements core.Collection.
// The first call opens the server-side subscription; later calls start from
// the latest snapshot received.
func (c *Collection) Watch(ctx context.Context) (<-chan core.SnapshotEvent, error) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	var initial *core.SnapshotEvent
	if last, ok := c.hub.Last(); ok {
		initial = &core.SnapshotEvent{Snapshot: last}
	}

	// Subscribe before asking the server so its first snapshot is not missed.
	subCtx, cancel := context.WithCancel(ctx)
	ch, err := c.hub.Subscribe(subCtx, initial)
	if err != nil {
		cancel()
		return nil, err
	}
	// subCtx is released with ctx.
	context.AfterFunc(ctx, cancel)

	if c.watchSub == "" {
		var res protocol.WatchResult
		if err := c.call(ctx, protocol.MethodWatch, nil, &res); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to watch %s: %w", c.config.Collection, err)
		}
		c.watchSub = res.Subscription
		c.logger.Debug("watching", "subscription", res.Subscription)
	}
	return ch, nil
}

// call sends one request and waits for its reply.
func (c *Collection) call(ctx context.Context, method string, params, result any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	req := protocol.Request{ID: uuid.NewString(), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = raw
	}

	resCh := make(chan protocol.Response, 1)
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.pending[req.ID] = resCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.requests.Add(1)
	if err := c.write(ctx, req); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.done:
		return c.err()
	case res := <-resCh:
		if res.Error != nil {
			return res.Error
		}
		if result != nil && len(res.Result) > 0 {
			if err := json.Unmarshal(res.Result, result); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *Collection) write(ctx context.Context, req protocol.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.fail(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
		return c.err()
	}
	return nil
}

// readLoop routes replies to their callers and notifications to watchers,
// in the order the server sent them.
func (c *Collection) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			return
		}

		var res protocol.Response
		if err := json.Unmarshal(data, &res); err != nil {
			c.logger.Error("undecodable message", "error", err)
			continue
		}

		if res.Event != nil {
			c.hub.Publish(res.Event.SnapshotEvent())
			continue
		}
		if res.ID == "" {
			if res.Error != nil {
				c.logger.Error("server error without request id", "error", res.Error)
			}
			continue
		}

		c.mu.Lock()
		resCh, ok := c.pending[res.ID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("reply for unknown request", "id", res.ID)
			continue
		}
		resCh <- res
	}
}

// fail marks the connection dead. Outstanding calls return err and watchers
// get one error event before their channels close.
func (c *Collection) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	close(c.done)
	c.mu.Unlock()

	c.logger.Warn("connection lost", "error", err)
	if c.config.ErrorHandler != nil {
		c.config.ErrorHandler(err)
	}
	c.hub.Publish(core.SnapshotEvent{Err: err})
	c.hub.Close()
	_ = c.conn.Close()
}

func (c *Collection) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Close implements core.Collection.
func (c *Collection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeErr = core.ErrClosed
	close(c.done)
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.hub.Close()
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

var _ core.Collection = (*Collection)(nil)
