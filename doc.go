// Package notesync is the composition root for the notes application.
//
// It connects the core synchronization logic with a storage adapter:
// a directory of YAML files (optionally versioned with git), a SQLite
// database, an in-memory store, or a collection hosted by another
// process over a websocket.
//
// The local list of notes is never edited directly. Every create, update
// or delete is sent to the collection, and the list is replaced by the
// next snapshot the collection pushes to its watchers.
//
// Usage:
//
//	svc, err := notesync.New(ctx, "./vault",
//		notesync.WithVersioning(true),
//		notesync.WithLogger(logger),
//	)
//
//	err = svc.Subscribe(ctx, func(notes []core.Note) { render(notes) })
//	err = svc.Create(ctx, "Groceries", "eggs").Wait(ctx)
package notesync
