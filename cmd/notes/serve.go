package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync"
	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/server"
)

var (
	listenAddr  string
	collections []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host collections of the configured adapter over websocket and HTTP",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := resolveSettings(cmd)
		if err != nil {
			fatal("Failed to load configuration", err)
		}
		addr := listenAddr
		if !cmd.Flags().Changed("listen") && s.listen != "" {
			addr = s.listen
		}

		names := collections
		if len(names) == 0 {
			names = []string{collection}
		}

		var hosted []core.Collection
		defer func() {
			for _, coll := range hosted {
				_ = coll.Close()
			}
		}()
		for _, name := range names {
			opts := append(s.opts[:len(s.opts):len(s.opts)], notesync.WithCollection(name))
			coll, err := notesync.Open(ctx, s.uri, opts...)
			if err != nil {
				fatal(fmt.Sprintf("Failed to open collection %s", name), err)
			}
			hosted = append(hosted, coll)
		}

		srv := server.New(server.Config{Logger: slog.Default()}, hosted...)
		slog.Info("serving collections", "addr", addr, "adapter", s.adapter, "collections", names)
		if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("Server failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8080", "Listen address")
	serveCmd.Flags().StringSliceVar(&collections, "collections", nil, "Collections to host (default: --collection)")
}
