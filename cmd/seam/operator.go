// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/seam-foundation/seam/cmd/seam/cli"
)

func retryCommand() *cli.Command {
	var flags storeFlags
	var limit int

	return &cli.Command{
		Name:    "retry",
		Summary: "Requeue dead-letter operations",
		Description: `Move dead-letter operations back into the queue with their attempt
counter reset, oldest first. Requeueing stops early if the queue
reaches capacity.`,
		Usage: "seam retry [flags]",
		Examples: []cli.Example{
			{
				Description: "Requeue the ten oldest failures",
				Command:     "seam retry --limit 10",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("retry", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.IntVar(&limit, "limit", 100, "maximum operations to requeue")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			client, queue, err := flags.connect()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := callContext(ctx)
			defer cancel()

			count, err := queue.RequeueFailed(ctx, limit)
			if err != nil {
				return err
			}

			if flags.json {
				return cli.WriteJSON(struct {
					Requeued int `json:"requeued"`
				}{count})
			}
			fmt.Printf("Requeued %d operation(s).\n", count)
			return nil
		},
	}
}

func clearCommand() *cli.Command {
	var flags storeFlags
	var clearFailed, clearAll, yes bool

	return &cli.Command{
		Name:    "clear",
		Summary: "Remove failed operations or all queue state",
		Description: `Remove queue state from the store. --failed deletes only the
dead-letter list and its records; --all deletes every queue structure
including pending work and the lifetime counters.

Without --yes the command asks for confirmation on the terminal, and
refuses to run when stdin is not a terminal.`,
		Usage: "seam clear --failed | --all [flags]",
		Examples: []cli.Example{
			{
				Description: "Drop the dead-letter list after triaging it",
				Command:     "seam clear --failed --yes",
			},
			{
				Description: "Reset a development store completely",
				Command:     "seam clear --all",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("clear", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&clearFailed, "failed", false, "clear only dead-letter operations")
			flagSet.BoolVar(&clearAll, "all", false, "clear every queue structure and counter")
			flagSet.BoolVar(&yes, "yes", false, "skip the confirmation prompt")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if clearFailed == clearAll {
				return fmt.Errorf("specify exactly one of --failed or --all")
			}

			client, queue, err := flags.connect()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := callContext(ctx)
			defer cancel()

			stats, err := queue.Stats(ctx)
			if err != nil {
				return err
			}

			if !yes {
				var what string
				var count int64
				if clearFailed {
					what = "failed operations"
					count = stats.Failed
				} else {
					what = "ALL queue state including pending work"
					count = stats.Pending + stats.Processing + stats.Retrying + stats.Failed
				}
				if err := confirmClear(what, count); err != nil {
					return err
				}
			}

			if clearFailed {
				removed, err := queue.ClearFailed(ctx)
				if err != nil {
					return err
				}
				if flags.json {
					return cli.WriteJSON(struct {
						Cleared int `json:"cleared"`
					}{removed})
				}
				fmt.Printf("Cleared %d failed operation(s).\n", removed)
				return nil
			}

			if err := queue.Clear(ctx); err != nil {
				return err
			}
			if flags.json {
				return cli.WriteJSON(struct {
					Cleared string `json:"cleared"`
				}{"all"})
			}
			fmt.Println("Cleared all queue state.")
			return nil
		},
	}
}

// confirmClear prompts for confirmation before a destructive clear.
// Piped stdin cannot answer a prompt, so non-interactive callers must
// pass --yes explicitly.
func confirmClear(what string, count int64) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("refusing to clear %s without confirmation (pass --yes)", what)
	}

	fmt.Fprintf(os.Stderr, "Clear %s (%d entries)? [y/N]: ", what, count)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	}
	return fmt.Errorf("aborted")
}

func userCommand() *cli.Command {
	var flags storeFlags

	return &cli.Command{
		Name:    "user",
		Summary: "Show one user's sync status",
		Description: `Show where a user stands with the identity provider: sync state,
last successful sync, and any outstanding or failed operations.

Sync state is tracked while operations flow through the queue and
expires after thirty days of inactivity, so a user with no recent
operations may have no recorded state.`,
		Usage: "seam user <user-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Check why a user is not showing up in the provider",
				Command:     "seam user user-42",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("user", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one user id (got %d args)", len(args))
			}
			userID := args[0]

			client, queue, err := flags.connect()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := callContext(ctx)
			defer cancel()

			status, err := queue.UserSyncStatus(ctx, userID)
			if err != nil {
				return err
			}
			if status == nil {
				return fmt.Errorf("no sync state recorded for user %q", userID)
			}

			if flags.json {
				return cli.WriteJSON(status)
			}

			fmt.Printf("User:        %s\n", status.UserID)
			fmt.Printf("State:       %s\n", status.State)
			if !status.LastSyncedAt.IsZero() {
				fmt.Printf("Last synced: %s (%s, %s ago)\n",
					status.LastSyncedAt.Format(time.RFC3339),
					status.LastSyncType,
					formatAge(time.Since(status.LastSyncedAt)))
			}
			fmt.Printf("Pending:     %d\n", status.PendingOps)
			fmt.Printf("Failed:      %d\n", status.FailedOps)
			if status.LastError != "" {
				fmt.Printf("Last error:  %s\n", status.LastError)
			}
			return nil
		},
	}
}
