// Package main is the entry point for the hdistcc CLI.
//
// hdistcc brings up a short-lived fleet of distcc build nodes on Hetzner
// Cloud, runs builds against it and tears it down again.
//
// Commands: start, status, make, stop, init, auth, version.
//
// For detailed usage information, run:
//
//	hdistcc --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/hdistcc/cmd/hdistcc/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
