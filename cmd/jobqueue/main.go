// Package main is the entry point for the jobqueue binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jobqueue-go/internal/cli"
)

func main() {
	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRoot().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}
