package screen

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/lifecycle"
)

// ErrLoopStopped is returned when work is posted to a loop that has ended.
var ErrLoopStopped = errors.New("screen: event loop stopped")

// Loop runs posted functions one at a time on a single goroutine.
// Everything that touches screen state goes through it.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
	start sync.Once
}

// NewLoop creates a loop with room for buffer queued tasks.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Start runs the loop until ctx ends or Stop is called. Calling it more than
// once has no effect.
func (l *Loop) Start(ctx context.Context, onPanic func(error)) {
	l.start.Do(func() {
		lifecycle.Go(ctx, func(ctx context.Context) error {
			defer l.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-l.done:
					return nil
				case task := <-l.tasks:
					l.runTask(task, onPanic)
				}
			}
		}, lifecycle.WithErrorHandler(func(err error) {
			if onPanic != nil {
				onPanic(err)
			}
		}))
	})
}

// runTask keeps the loop alive across a panicking task.
func (l *Loop) runTask(task func(), onPanic func(error)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(fmt.Errorf("screen task panic: %v", r))
		}
	}()
	task()
}

// Stop ends the loop. Queued tasks are dropped.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.done) })
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues fn without waiting for it to run.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrLoopStopped
	}
}

// Do runs fn on the loop and waits for its result.
func (l *Loop) Do(fn func() error) error {
	result := make(chan error, 1)
	if err := l.Post(func() { result <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		// The task may have run right before the loop stopped.
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopStopped
		}
	}
}
