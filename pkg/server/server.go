// Package server hosts core.Collection implementations over HTTP.
//
// Each collection is reachable over a websocket speaking pkg/protocol, which
// is what the remote adapter connects to, plus a small read-only JSON API
// for inspection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/aretw0/introspection"

	"github.com/aretw0/notesync/pkg/core"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// Config holds the configuration for the server.
type Config struct {
	Logger *slog.Logger
	// WriteTimeout bounds each websocket frame write. Zero means 10s.
	WriteTimeout time.Duration
}

// Server serves a fixed set of collections.
type Server struct {
	config      Config
	logger      *slog.Logger
	collections map[string]core.Collection
	router      *mux.Router
	upgrader    websocket.Upgrader
	started     time.Time

	mu       sync.Mutex
	sessions map[*session]struct{}

	requests atomic.Int64
	watches  atomic.Int64
}

// New creates a server for the given collections, keyed by their names.
func New(config Config, collections ...core.Collection) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	s := &Server{
		config:      config,
		logger:      logger,
		collections: make(map[string]core.Collection, len(collections)),
		sessions:    make(map[*session]struct{}),
		started:     time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, c := range collections {
		s.collections[c.Name()] = c
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	api := router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/collections/{name}/documents", s.handleList).Methods("GET")
	api.HandleFunc("/collections/{name}/documents/{id}", s.handleGet).Methods("GET")
	api.HandleFunc("/collections/{name}/ws", s.handleWebsocket).Methods("GET")

	s.router = router
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully
// and drops open websocket sessions.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("server listening", "addr", ln.Addr().String(), "collections", s.names())

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	s.closeSessions()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) names() []string {
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) collection(w http.ResponseWriter, r *http.Request) (core.Collection, bool) {
	name := mux.Vars(r)["name"]
	coll, ok := s.collections[name]
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown collection %q", name))
	}
	return coll, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	collections := make(map[string]any, len(s.collections))
	for name, coll := range s.collections {
		if in, ok := coll.(introspection.Introspectable); ok {
			collections[name] = in.State()
		} else {
			collections[name] = nil
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"server":      s.State(),
		"collections": collections,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.collection(w, r)
	if !ok {
		return
	}
	docs, err := coll.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.collection(w, r)
	if !ok {
		return
	}
	doc, err := coll.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, core.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	coll, ok := s.collection(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := newSession(s, coll, conn)
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("session opened", "collection", coll.Name(), "remote", r.RemoteAddr)
	sess.run(r.Context())
	s.logger.Debug("session closed", "collection", coll.Name(), "remote", r.RemoteAddr)

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.close()
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
