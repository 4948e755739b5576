package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/pkg/adapters/lifecycle"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/screen"
)

var watchEvents bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the notes list on every change until interrupted",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, _ := openService(ctx, cmd)
		defer svc.Collection().Close()

		if watchEvents {
			printEvents(ctx, svc.Collection())
			return
		}

		renderer := screen.NewTextRenderer(os.Stdout)
		err := svc.Subscribe(ctx, func(notes []core.Note) {
			renderer.Render(screen.View{Notes: notes})
			fmt.Println()
		})
		if err != nil {
			fatal("Failed to watch collection", err)
		}

		<-ctx.Done()
	},
}

// printEvents prints one line per raw subscription event, errors included.
func printEvents(ctx context.Context, coll core.Collection) {
	src, err := lifecycle.Watch(ctx, coll)
	if err != nil {
		fatal("Failed to watch collection", err)
	}
	if err := src.Start(ctx); err != nil {
		fatal("Failed to start event source", err)
	}
	for e := range src.Events() {
		fmt.Printf("%s %s\n", time.Now().Format(time.RFC3339), e)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchEvents, "events", false, "Print raw subscription events instead of the list")
}
