package notesync_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/notesync"
	"github.com/aretw0/notesync/pkg/core"
)

// Example_basic subscribes to an in-memory collection and adds a note.
func Example_basic() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := notesync.New(ctx, "", notesync.WithAdapter(notesync.AdapterMemory))
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Collection().Close()

	seen := make(chan []core.Note, 8)
	onChange := func(notes []core.Note) {
		select {
		case seen <- notes:
		case <-ctx.Done():
		}
	}
	if err := svc.Subscribe(ctx, onChange); err != nil {
		log.Fatal(err)
	}

	if err := svc.Create(ctx, "Groceries", "eggs").Wait(ctx); err != nil {
		log.Fatal(err)
	}

	for notes := range seen {
		if len(notes) == 1 {
			fmt.Printf("%s: %s\n", notes[0].Title, notes[0].Content)
			break
		}
	}
	// Output:
	// Groceries: eggs
}
