// gatewayctl - bulk on/off control for a smart-home gateway.
//
// This is the main entry point for the gatewayctl command. It switches every
// switch and dimmer behind one gateway on or off through batched,
// bounded-concurrency command dispatch, either from a numbered menu, from
// one-shot subcommands, or from the local control API (gatewayctl serve).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gatewayctl/internal/cli"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:])
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}

// run builds the command tree and executes it with args.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context, args []string) error {
	cmd := cli.NewRootCommand(version)
	cmd.SetVersionTemplate(fmt.Sprintf("gatewayctl %s (commit %s, built %s)\n", version, commit, date))
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
