package remote_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/adapters/remote"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/server"
)

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"ws://localhost:8080", "ws://localhost:8080/v1/collections/notes/ws"},
		{"http://localhost:8080/", "ws://localhost:8080/v1/collections/notes/ws"},
		{"https://notes.example.com", "wss://notes.example.com/v1/collections/notes/ws"},
		{"localhost:9000", "ws://localhost:9000/v1/collections/notes/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := remote.Endpoint(tt.base, "notes")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := remote.Endpoint("", "notes")
	assert.Error(t, err)
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = remote.Dial(ctx, remote.Config{URL: "ws://" + addr})
	assert.Error(t, err)
}

// TestConnectionLoss checks that a dropped connection reaches watchers as an
// error event, then closes their channels, and fails later calls.
func TestConnectionLoss(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New(memory.Config{Name: "notes"})
	defer store.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	serveCtx, stopServer := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- server.New(server.Config{Logger: logger}, store).Serve(serveCtx, ln)
	}()

	var reported []error
	coll, err := remote.Dial(context.Background(), remote.Config{
		URL:          "ws://" + ln.Addr().String(),
		Logger:       logger,
		ErrorHandler: func(err error) { reported = append(reported, err) },
	})
	require.NoError(t, err)
	defer coll.Close()

	ctx := context.Background()
	ch, err := coll.Watch(ctx)
	require.NoError(t, err)
	initial := <-ch
	require.NoError(t, initial.Err)

	stopServer()
	require.NoError(t, <-served)

	var sawError bool
	deadline := time.After(3 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				break loop
			}
			if ev.Err != nil {
				sawError = true
				assert.ErrorIs(t, ev.Err, remote.ErrConnectionClosed)
			}
		case <-deadline:
			t.Fatal("watch channel not closed after connection loss")
		}
	}
	assert.True(t, sawError, "watchers get an error before the channel closes")

	assert.ErrorIs(t, coll.Set(ctx, core.Note{ID: "a"}.Document()), remote.ErrConnectionClosed)
	state := coll.State().(remote.CollectionState)
	assert.False(t, state.Connected)
	assert.NotEmpty(t, state.LastError)
	assert.Len(t, reported, 1)
}

func TestClosedCollection(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New(memory.Config{Name: "notes"})
	defer store.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.New(server.Config{Logger: logger}, store).Serve(ctx, ln)

	coll, err := remote.Dial(ctx, remote.Config{URL: ln.Addr().String(), Logger: logger})
	require.NoError(t, err)

	require.NoError(t, coll.Close())
	require.NoError(t, coll.Close())

	assert.ErrorIs(t, coll.Delete(ctx, "a"), core.ErrClosed)
	_, err = coll.Watch(ctx)
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.Equal(t, "remote-collection", coll.ComponentType())
}
