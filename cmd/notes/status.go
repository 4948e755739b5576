package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/pkg/core"
)

var statusTimeout time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the service state as JSON",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		svc, _ := openService(ctx, cmd)
		defer svc.Collection().Close()

		first := make(chan struct{})
		notified := false
		err := svc.Subscribe(ctx, func([]core.Note) {
			if !notified {
				notified = true
				close(first)
			}
		})
		if err != nil {
			fatal("Failed to subscribe", err)
		}

		select {
		case <-first:
		case <-time.After(statusTimeout):
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(svc.State()); err != nil {
			fatal("Failed to encode JSON", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 2*time.Second, "How long to wait for the first snapshot")
}
