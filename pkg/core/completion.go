package core

import (
	"context"
	"sync"
)

// Completion is the outcome of an asynchronous write.
// Callers may ignore it (fire-and-forget) or wait for it.
type Completion struct {
	id   string
	done chan struct{}
	once sync.Once
	err  error
}

func newCompletion(id string) *Completion {
	return &Completion{id: id, done: make(chan struct{})}
}

// Failed returns an already finished completion carrying err.
func Failed(id string, err error) *Completion {
	c := newCompletion(id)
	c.finish(err)
	return c
}

func (c *Completion) finish(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// ID returns the ID of the note the write targets.
func (c *Completion) ID() string {
	return c.id
}

// Done is closed when the write has finished.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns the write error. It is nil while the write is in flight.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the write finishes or ctx ends.
func (c *Completion) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
