package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dupsync/dupsync/cmd"
	"github.com/dupsync/dupsync/pkg/plog"
)

func main() {
	// Ctrl+C cancels the run context; in-flight copies finish or abandon
	// their temp files, and the cache keeps only completed work.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		plog.Error("Run failed", "error", err)
		plog.CloseRunLog()
		os.Exit(1)
	}
}
