// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/seam-foundation/seam/cmd/seam/cli"
	"github.com/seam-foundation/seam/lib/version"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like status) return an
		// ExitError with the desired exit code. Don't print a redundant
		// "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}

// rootCommand builds the seam CLI command tree.
func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "seam",
		Description: `Seam: reconciliation queue operations.

Inspect and operate the queue that keeps the local user database and
the remote identity provider consistent.`,
		Subcommands: []*cli.Command{
			statusCommand(),
			statsCommand(),
			pendingCommand(),
			failedCommand(),
			retryCommand(),
			clearCommand(),
			userCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("seam %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Show queue and sync health",
				Command:     "seam status",
			},
			{
				Description: "Inspect the dead-letter list",
				Command:     "seam failed --limit 20",
			},
			{
				Description: "Requeue failed operations for another attempt",
				Command:     "seam retry",
			},
			{
				Description: "Check one user's sync state",
				Command:     "seam user user-42",
			},
		},
	}
}
