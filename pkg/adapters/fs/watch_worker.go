package fs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/notesync/pkg/core"
)

type watchWorker struct {
	*worker.BaseWorker
	coll      *Collection
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc
}

func newWatchWorker(coll *Collection) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("fs-watcher"),
		coll:       coll,
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.coll.Path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.coll.Path, err)
	}

	w.watcher = watcher
	w.debouncer = newDebouncer(w.coll.config.Debounce)
	w.coll.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}

	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"path":              w.coll.Path,
		}
	})
}

// relevant reports whether a filesystem event touches a document file.
func (w *watchWorker) relevant(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	_, ok := w.coll.idFromName(filepath.Base(event.Name))
	return ok
}

func (w *watchWorker) logger() *slog.Logger {
	if w.coll.config.Logger != nil {
		return w.coll.config.Logger
	}
	return slog.Default()
}

// run is the main event loop for the watcher worker.
func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)

			// Full stack only when debug logging is enabled.
			if w.logger().Enabled(ctx, slog.LevelDebug) {
				w.logger().Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			} else {
				w.logger().Error("watcher panic", "error", err)
			}
		}
	}()
	defer w.coll.setWatcherActive(false)
	defer w.watcher.Close()

	err = w.loop(ctx)

	// Wait for an in-flight publish before the collection can be torn down.
	w.debouncer.stopAndWait(5 * time.Second)

	return err
}

func (w *watchWorker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}

			w.logger().Debug("event received", "name", event.Name, "op", event.Op.String())
			if !w.relevant(event) {
				continue
			}
			w.debouncer.trigger(func() {
				w.coll.publish(ctx)
			})

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.handleWatcherError(wErr)
		}
	}
}

// handleWatcherError logs the failure and forwards it to watchers as a
// subscription error. The watcher keeps running.
func (w *watchWorker) handleWatcherError(err error) {
	w.logger().Error("fsnotify error", "error", err)
	if w.coll.config.ErrorHandler != nil {
		w.coll.config.ErrorHandler(err)
	}
	w.coll.hub.Publish(core.SnapshotEvent{Err: fmt.Errorf("watch %s: %w", w.coll.config.Collection, err)})
}
