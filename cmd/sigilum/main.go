package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sigilum/internal/faults"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto process exit codes.
func exitCode(err error) int {
	switch faults.Kind(err) {
	case "configuration", "lookup":
		return 2
	case "computation":
		return 3
	case "storage":
		return 4
	default:
		return 1
	}
}
