package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/notesync/pkg/adapters/fs"
	"github.com/aretw0/notesync/pkg/adapters/memory"
	"github.com/aretw0/notesync/pkg/adapters/remote"
	"github.com/aretw0/notesync/pkg/adapters/sqlite"
	"github.com/aretw0/notesync/pkg/core"
)

// Open returns the collection selected by the options.
// The uri is adapter-specific: a directory for fs, a database file for
// sqlite, a server URL for remote; memory ignores it.
func Open(ctx context.Context, uri string, opts ...Option) (core.Collection, error) {
	o := applyOptions(opts)
	return open(ctx, uri, o)
}

func open(ctx context.Context, uri string, o *options) (core.Collection, error) {
	if o.collection != nil {
		return o.collection, nil
	}

	switch o.adapter {
	case AdapterMemory:
		return memory.New(memory.Config{Name: o.name, EventBuffer: o.eventBuffer}), nil
	case AdapterFS:
		return openFS(ctx, uri, o)
	case AdapterSQLite:
		return openSQLite(ctx, uri, o)
	case AdapterRemote:
		return remote.Dial(ctx, remote.Config{
			URL:            uri,
			Collection:     o.name,
			Logger:         o.logger,
			ErrorHandler:   o.errorHandler,
			EventBuffer:    o.eventBuffer,
			RequestTimeout: o.requestTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
}

// localPath applies the dev sandbox to a local storage path.
func localPath(uri string, o *options) string {
	sandbox := o.devSafety && !o.readOnly && IsDevRun()
	path := ResolvePath(uri, sandbox)

	if o.logger != nil && IsDevRun() {
		switch {
		case o.readOnly:
			o.logger.Debug("running in READ-ONLY mode (bypassing dev sandbox)", "path", path)
		case !o.devSafety:
			o.logger.Warn("running in UNSAFE mode (bypassing dev sandbox)", "path", path)
		default:
			o.logger.Debug("running in SAFE mode (dev sandbox enabled)", "original_path", uri, "path", path)
		}
	}
	return path
}

func openFS(ctx context.Context, uri string, o *options) (core.Collection, error) {
	coll := fs.NewCollection(fs.Config{
		Path:         localPath(uri, o),
		Collection:   o.name,
		Extension:    o.extension,
		AutoInit:     o.autoInit,
		MustExist:    o.mustExist || !o.autoInit,
		Versioning:   o.versioning,
		ReadOnly:     o.readOnly,
		Logger:       o.logger,
		ErrorHandler: o.errorHandler,
		EventBuffer:  o.eventBuffer,
	})
	if err := coll.Initialize(ctx); err != nil {
		return nil, err
	}
	return coll, nil
}

func openSQLite(ctx context.Context, uri string, o *options) (core.Collection, error) {
	path := uri
	if path == "" {
		path = "notes.db"
	}
	if path != ":memory:" {
		path = localPath(path, o)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if o.mustExist || !o.autoInit || o.readOnly {
				return nil, fmt.Errorf("database does not exist: %s", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	return sqlite.Open(ctx, sqlite.Config{
		Path:         path,
		Collection:   o.name,
		ReadOnly:     o.readOnly,
		Logger:       o.logger,
		ErrorHandler: o.errorHandler,
		EventBuffer:  o.eventBuffer,
		PollInterval: o.pollInterval,
	})
}
