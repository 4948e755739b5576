package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/protocol"
)

// session serves one websocket connection. Requests are handled in arrival
// order; every watch gets its own forwarding goroutine.
type session struct {
	srv    *Server
	coll   core.Collection
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func newSession(srv *Server, coll core.Collection, conn *websocket.Conn) *session {
	return &session{
		srv:    srv,
		coll:   coll,
		conn:   conn,
		logger: srv.logger.With("collection", coll.Name()),
		subs:   make(map[string]context.CancelFunc),
	}
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.close()
		s.wg.Wait()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.reply(protocol.Response{Error: protocol.ErrorFrom(fmt.Errorf("%w: %v", protocol.ErrBadRequest, err))})
			continue
		}
		s.srv.requests.Add(1)
		res, started := s.handle(ctx, req)
		s.reply(res)
		if started != nil {
			// Notifications only flow once the subscription ID is on the wire.
			started()
		}
	}
}

// handle runs one request. The returned func, if any, must be called after
// the response is written.
func (s *session) handle(ctx context.Context, req protocol.Request) (protocol.Response, func()) {
	var (
		result  any
		started func()
		err     error
	)
	if req.Method == protocol.MethodWatch {
		result, started, err = s.watch(ctx)
	} else {
		result, err = s.dispatch(ctx, req)
	}
	if err != nil {
		s.logger.Debug("request failed", "method", req.Method, "error", err)
		return protocol.Response{ID: req.ID, Error: protocol.ErrorFrom(err)}, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return protocol.Response{ID: req.ID, Error: protocol.ErrorFrom(err)}, nil
	}
	return protocol.Response{ID: req.ID, Result: raw}, started
}

func (s *session) dispatch(ctx context.Context, req protocol.Request) (any, error) {
	switch req.Method {
	case protocol.MethodGet:
		var p protocol.IDParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return s.coll.Get(ctx, p.ID)

	case protocol.MethodList:
		return s.coll.List(ctx)

	case protocol.MethodSet:
		var p protocol.SetParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return struct{}{}, s.coll.Set(ctx, p.Document)

	case protocol.MethodUpdate:
		var p protocol.UpdateParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return struct{}{}, s.coll.Update(ctx, p.ID, p.Fields)

	case protocol.MethodDelete:
		var p protocol.IDParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return struct{}{}, s.coll.Delete(ctx, p.ID)

	case protocol.MethodUnwatch:
		var p protocol.UnwatchParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		s.unwatch(p.Subscription)
		return struct{}{}, nil
	}
	return nil, fmt.Errorf("%w: unknown method %q", protocol.ErrBadRequest, req.Method)
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing params", protocol.ErrBadRequest)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrBadRequest, err)
	}
	return nil
}

func (s *session) watch(ctx context.Context) (protocol.WatchResult, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	events, err := s.coll.Watch(subCtx)
	if err != nil {
		cancel()
		return protocol.WatchResult{}, nil, err
	}

	id := uuid.NewString()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return protocol.WatchResult{}, nil, core.ErrClosed
	}
	s.subs[id] = cancel
	s.mu.Unlock()

	start := func() {
		s.srv.watches.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.srv.watches.Add(-1)
			for ev := range events {
				s.reply(protocol.Response{Event: protocol.NewEvent(id, ev)})
			}
		}()
	}
	return protocol.WatchResult{Subscription: id}, start, nil
}

func (s *session) unwatch(id string) {
	s.mu.Lock()
	cancel, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// reply writes one frame. Failed writes are logged; the read loop notices
// the broken connection.
func (s *session) reply(res protocol.Response) {
	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
	}
}

func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, cancel := range subs {
		cancel()
	}
	_ = s.conn.Close()
}
