package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd.Version = version
	// Flags are defined by every file's init, so completion is wired last.
	registerCompletionFunctions()
	err := rootCmd.ExecuteContext(ctx)
	teardown()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
