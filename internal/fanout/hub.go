// Package fanout distributes snapshot events to any number of watchers.
//
// Every watcher owns a buffered channel. Events carry full snapshots, so a
// slow watcher whose buffer is full loses superseded snapshots rather than
// blocking the publisher. The newest pending error is kept.
package fanout

import (
	"context"
	"sync"

	"github.com/aretw0/notesync/pkg/core"
)

// DefaultBuffer is the per-watcher buffer size used when none is given.
const DefaultBuffer = 16

// Hub fans snapshot events out to watchers.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan core.SnapshotEvent
	next   uint64
	buffer int
	closed bool
	done   chan struct{}
	last   *core.SnapshotEvent
}

// NewHub creates a hub. A non-positive buffer means DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[uint64]chan core.SnapshotEvent),
		buffer: buffer,
		done:   make(chan struct{}),
	}
}

// Subscribe registers a watcher. If initial is non-nil it is queued first.
// The returned channel is closed when ctx ends or the hub is closed.
func (h *Hub) Subscribe(ctx context.Context, initial *core.SnapshotEvent) (<-chan core.SnapshotEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, core.ErrClosed
	}

	ch := make(chan core.SnapshotEvent, h.buffer)
	if initial != nil {
		ch <- *initial
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	go func() {
		select {
		case <-ctx.Done():
			h.remove(id)
		case <-h.done:
		}
	}()

	return ch, nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers ev to every watcher without blocking.
func (h *Hub) Publish(ev core.SnapshotEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	if ev.Err == nil {
		h.last = &ev
	}
	for _, ch := range h.subs {
		offer(ch, ev)
	}
}

// offer pushes ev. When the buffer is full the pending events are compacted
// to the newest error and the newest snapshot, in their original order, so a
// subscription error is never lost to a later snapshot.
func offer(ch chan core.SnapshotEvent, ev core.SnapshotEvent) {
	select {
	case ch <- ev:
		return
	default:
	}

	var pending []core.SnapshotEvent
drain:
	for {
		select {
		case p := <-ch:
			pending = append(pending, p)
		default:
			break drain
		}
	}

	kept := append(compact(pending), ev)
	for len(kept) > cap(ch) {
		kept = dropOne(kept)
	}
	for _, e := range kept {
		ch <- e
	}
}

// compact keeps the newest error and the newest snapshot of events.
func compact(events []core.SnapshotEvent) []core.SnapshotEvent {
	lastErr, lastSnap := -1, -1
	for i, e := range events {
		if e.Err != nil {
			lastErr = i
		} else {
			lastSnap = i
		}
	}
	out := make([]core.SnapshotEvent, 0, 3)
	for i, e := range events {
		if i == lastErr || i == lastSnap {
			out = append(out, e)
		}
	}
	return out
}

// dropOne removes the oldest snapshot, or the oldest event if all are errors.
// The final event is always kept.
func dropOne(events []core.SnapshotEvent) []core.SnapshotEvent {
	for i, e := range events[:len(events)-1] {
		if e.Err == nil {
			return append(events[:i], events[i+1:]...)
		}
	}
	return events[1:]
}

// Last returns the most recently published snapshot, if any.
func (h *Hub) Last() (core.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.last == nil {
		return core.Snapshot{}, false
	}
	return h.last.Snapshot, true
}

// Len returns the number of active watchers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every watcher channel. Later subscriptions fail with
// core.ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
