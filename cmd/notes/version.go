package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of notes",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("notes version %s\n", strings.TrimSpace(notesync.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
