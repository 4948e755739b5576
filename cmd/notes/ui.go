package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/pkg/core"
	"github.com/aretw0/notesync/pkg/screen"
)

const uiHelp = `Commands:
  title <text>          set the new note's title
  content <text>        set the new note's content
  add                   add the new note and clear the form
  edit <n|id>           open the edit dialog for a note
  edit-title <text>     change the title in the edit dialog
  edit-content <text>   change the content in the edit dialog
  save                  save the edit dialog
  cancel                close the edit dialog without saving
  delete <n|id>         delete a note
  show                  print the screen
  help                  print this help
  quit                  leave
`

var errQuit = errors.New("quit")

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Interactive notes screen driven by line commands",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, _ := openService(ctx, cmd)
		defer svc.Collection().Close()

		scr := screen.New(svc, screen.NewTextRenderer(os.Stdout), screen.Config{Logger: slog.Default()})
		if err := scr.Start(ctx); err != nil {
			fatal("Failed to start screen", err)
		}

		fmt.Print(uiHelp)
		r := &repl{screen: scr, out: os.Stdout}
		if err := r.run(ctx, os.Stdin); err != nil {
			fatal("Screen failed", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

// repl maps input lines onto screen actions.
type repl struct {
	screen  *screen.Screen
	out     io.Writer
	pending []*core.Completion
}

// run reads commands until quit, EOF or ctx ends, then waits briefly for
// writes still in flight.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	defer r.drain(5 * time.Second)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := r.exec(ctx, line)
			switch {
			case errors.Is(err, errQuit):
				return nil
			case errors.Is(err, screen.ErrLoopStopped):
				return err
			case err != nil:
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
		}
	}
}

func (r *repl) exec(ctx context.Context, line string) error {
	verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch verb {
	case "":
		return nil
	case "title":
		return r.screen.SetTitle(arg)
	case "content":
		return r.screen.SetContent(arg)
	case "add":
		return r.track(r.screen.Add(ctx))
	case "edit":
		id, err := r.resolve(arg)
		if err != nil {
			return err
		}
		return r.screen.OpenEdit(id)
	case "edit-title":
		return r.screen.SetEditTitle(arg)
	case "edit-content":
		return r.screen.SetEditContent(arg)
	case "save":
		return r.track(r.screen.SaveEdit(ctx))
	case "cancel":
		return r.screen.CancelEdit()
	case "delete":
		id, err := r.resolve(arg)
		if err != nil {
			return err
		}
		return r.track(r.screen.Delete(ctx, id))
	case "show":
		v, err := r.screen.View()
		if err != nil {
			return err
		}
		_, err = io.WriteString(r.out, screen.Format(v))
		return err
	case "help":
		_, err := io.WriteString(r.out, uiHelp)
		return err
	case "quit", "exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", verb)
	}
}

// resolve accepts a 1-based card number or a note ID.
func (r *repl) resolve(arg string) (string, error) {
	if arg == "" {
		return "", errors.New("missing note number or id")
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg, nil
	}
	v, err := r.screen.View()
	if err != nil {
		return "", err
	}
	if n < 1 || n > len(v.Notes) {
		return "", fmt.Errorf("no note #%d: %w", n, screen.ErrNoteNotFound)
	}
	return v.Notes[n-1].ID, nil
}

func (r *repl) track(c *core.Completion, err error) error {
	if err != nil {
		return err
	}
	r.pending = append(r.pending, c)
	return nil
}

func (r *repl) drain(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, c := range r.pending {
		_ = c.Wait(ctx)
	}
}
