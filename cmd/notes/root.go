package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync"
	"github.com/aretw0/notesync/internal/platform"
	"github.com/aretw0/notesync/pkg/core"
)

var (
	verbose    bool
	configPath string
	adapter    string
	uri        string
	collection string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notes",
	Short: "A notes list kept in sync with a shared collection",
	Long: `notes keeps a local list of notes synchronized with a collection
(a directory of YAML files, a SQLite database, or a collection served by
"notes serve"). Writes go to the collection; the list follows its change
notifications.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&configPath, "config", "", "Config file (default: notesync.yaml at the project root)")
	flags.StringVar(&adapter, "adapter", platform.AdapterFS, "Storage adapter: memory, fs, sqlite or remote")
	flags.StringVar(&uri, "uri", "", "Adapter location: directory, database file or server URL")
	flags.StringVar(&collection, "collection", platform.DefaultCollection, "Collection name")
}

// settings is the merged result of the config file and the flags.
type settings struct {
	adapter string
	uri     string
	listen  string
	opts    []notesync.Option
}

// defaultURI returns the location used when neither flag nor file sets one.
func defaultURI(adapter string) string {
	switch adapter {
	case platform.AdapterSQLite:
		return "notes.db"
	case platform.AdapterRemote:
		return "ws://localhost:8080"
	default:
		return "."
	}
}

// resolveSettings loads the config file (explicit or discovered) and lets
// changed flags override it.
func resolveSettings(cmd *cobra.Command) (*settings, error) {
	s := &settings{adapter: adapter}

	path := configPath
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		if path, err = platform.FindConfig(wd); err != nil {
			return nil, err
		}
	}

	if path != "" {
		cfg, err := platform.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		slog.Debug("loaded config", "path", path)
		s.opts = append(s.opts, cfg.Options()...)
		if cfg.Adapter != "" {
			s.adapter = cfg.Adapter
		}
		s.uri = cfg.URI
		s.listen = cfg.Listen
	}

	flags := cmd.Flags()
	if flags.Changed("adapter") {
		s.adapter = adapter
	}
	if flags.Changed("collection") || path == "" {
		s.opts = append(s.opts, notesync.WithCollection(collection))
	}
	if flags.Changed("uri") {
		s.uri = uri
	}
	if s.uri == "" {
		s.uri = defaultURI(s.adapter)
	}

	s.opts = append(s.opts,
		notesync.WithAdapter(s.adapter),
		notesync.WithLogger(slog.Default()),
	)
	return s, nil
}

// openService builds the notes service for a command.
func openService(ctx context.Context, cmd *cobra.Command, extra ...notesync.Option) (*core.Service, *settings) {
	s, err := resolveSettings(cmd)
	if err != nil {
		fatal("Failed to load configuration", err)
	}

	svc, err := notesync.New(ctx, s.uri, append(s.opts, extra...)...)
	if err != nil {
		fatal("Failed to open collection", err)
	}
	return svc, s
}
