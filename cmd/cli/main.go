package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/setupgrid/internal/cli"
)

var executeFunc = cli.Execute

// main is the entrypoint for the setupgrid application.
func main() {
	// Use a minimal logger until the app configures its own.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
	runMain(os.Args, os.Stdout, os.Stderr, os.Exit)
}

// runMain runs the CLI until it finishes or the process is interrupted, and
// exits with the code of the failure, if any.
func runMain(args []string, stdout, stderr io.Writer, exit func(int)) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, args, stdout, stderr); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			_, _ = fmt.Fprintln(stderr, exitErr.Message)
			exit(exitErr.Code)
			return
		}
		_, _ = fmt.Fprintln(stderr, err)
		exit(cli.ExitFailure)
	}
}

// run executes the command line. Handler code may panic while modules are
// registered; the panic becomes an error so the process exits cleanly.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("a critical startup error occurred: %v", r)
		}
	}()

	if len(args) > 0 {
		args = args[1:]
	}
	return executeFunc(ctx, args, stdout, stderr)
}
