package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/pkg/core"
)

var (
	noteTitle   string
	noteContent string
	waitWrite   bool
)

// finishWrite keeps the process alive until the write is done. Without
// --wait a failure is only logged, like any other write failure.
func finishWrite(ctx context.Context, c *core.Completion, verb string) {
	err := c.Wait(ctx)
	if waitWrite {
		if err != nil {
			fatal(fmt.Sprintf("Failed to %s note", verb), err)
		}
		fmt.Printf("Note '%s' %s.\n", c.ID(), verb+"d")
		return
	}
	fmt.Println(c.ID())
}

func writeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Minute)
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a note",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := writeContext()
		defer cancel()

		svc, _ := openService(ctx, cmd)
		defer svc.Collection().Close()

		finishWrite(ctx, svc.Create(ctx, noteTitle, noteContent), "create")
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Overwrite the title and content of a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := writeContext()
		defer cancel()

		svc, _ := openService(ctx, cmd)
		defer svc.Collection().Close()

		finishWrite(ctx, svc.Update(ctx, args[0], noteTitle, noteContent), "update")
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := writeContext()
		defer cancel()

		svc, _ := openService(ctx, cmd)
		defer svc.Collection().Close()

		finishWrite(ctx, svc.Delete(ctx, args[0]), "delete")
	},
}

func init() {
	for _, cmd := range []*cobra.Command{addCmd, updateCmd, deleteCmd} {
		rootCmd.AddCommand(cmd)
		cmd.Flags().BoolVar(&waitWrite, "wait", false, "Fail if the write fails")
	}
	for _, cmd := range []*cobra.Command{addCmd, updateCmd} {
		cmd.Flags().StringVar(&noteTitle, "title", "", "Note title")
		cmd.Flags().StringVar(&noteContent, "content", "", "Note content")
	}
}
