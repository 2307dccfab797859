// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/seam-foundation/seam/cmd/seam/cli"
	"github.com/seam-foundation/seam/reconcile"
)

func statusCommand() *cli.Command {
	var flags storeFlags

	return &cli.Command{
		Name:    "status",
		Summary: "Show queue and sync health",
		Description: `Grade queue and sync health from the shared store, the same way
the reconciler daemon's monitor grades them: queue depth, dead-letter
volume, oldest pending age, lifetime success rate, and average
operation duration.

Exits 1 when overall health is UNHEALTHY, so the command works as a
probe in scripts and alerting.`,
		Usage: "seam status [flags]",
		Examples: []cli.Example{
			{
				Description: "Human-readable health summary",
				Command:     "seam status",
			},
			{
				Description: "JSON for a monitoring pipeline",
				Command:     "seam status --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			client, queue, err := flags.connect()
			if err != nil {
				return err
			}
			defer client.Close()

			monitor, err := reconcile.NewMonitor(reconcile.MonitorConfig{Stats: queue})
			if err != nil {
				return err
			}

			ctx, cancel := callContext(ctx)
			defer cancel()

			queueCheck := monitor.CheckQueueHealth(ctx)
			stats, err := queue.Stats(ctx)
			if err != nil {
				return err
			}
			syncCheck := reconcile.GradeSyncStats(stats, queueCheck.CheckedAt)

			status := reconcile.HealthStatus{
				Queue:     queueCheck,
				Sync:      syncCheck,
				Level:     max(queueCheck.Level, syncCheck.Level),
				CheckedAt: queueCheck.CheckedAt,
			}

			if flags.json {
				if err := cli.WriteJSON(status); err != nil {
					return err
				}
			} else {
				fmt.Printf("Overall: %s\n", status.Level)
				printHealthCheck("Queue", queueCheck)
				printHealthCheck("Sync", syncCheck)
			}

			if status.Level == reconcile.HealthUnhealthy {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	var flags storeFlags

	return &cli.Command{
		Name:    "stats",
		Summary: "Show queue statistics",
		Description: `Print the queue's current depth by state plus the lifetime
counters the reconciler maintains in the store.`,
		Usage: "seam stats [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("stats", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
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

			if flags.json {
				return cli.WriteJSON(stats)
			}

			fmt.Printf("Pending:    %d\n", stats.Pending)
			fmt.Printf("Processing: %d\n", stats.Processing)
			fmt.Printf("Retrying:   %d\n", stats.Retrying)
			fmt.Printf("Failed:     %d\n", stats.Failed)
			if stats.OldestPendingAge > 0 {
				fmt.Printf("Oldest pending: %s\n", formatAge(stats.OldestPendingAge))
			}

			fmt.Printf("\nLifetime\n")
			fmt.Printf("  Processed: %d\n", stats.TotalProcessed)
			fmt.Printf("  Succeeded: %d\n", stats.TotalSucceeded)
			fmt.Printf("  Failed:    %d\n", stats.TotalFailed)
			fmt.Printf("  Retried:   %d\n", stats.TotalRetried)
			if stats.AverageDurationMillis > 0 {
				average := time.Duration(stats.AverageDurationMillis * float64(time.Millisecond))
				fmt.Printf("  Average:   %s\n", average.Round(time.Millisecond))
			}
			return nil
		},
	}
}

func pendingCommand() *cli.Command {
	var flags storeFlags
	var limit int

	return &cli.Command{
		Name:    "pending",
		Summary: "List operations waiting for execution",
		Description: `Peek at pending operations without claiming them: FIFO entries
first, then priority entries. Note the worker drains due retries and
priority entries before the FIFO list.`,
		Usage: "seam pending [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("pending", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.IntVar(&limit, "limit", 10, "maximum operations to list")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			client, queue, err := flags.connect()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := callContext(ctx)
			defer cancel()

			operations, err := queue.PendingOperations(ctx, limit)
			if err != nil {
				return err
			}

			if flags.json {
				return cli.WriteJSON(operations)
			}
			if len(operations) == 0 {
				fmt.Println("No pending operations.")
				return nil
			}
			printOperations(operations)
			return nil
		},
	}
}

func failedCommand() *cli.Command {
	var flags storeFlags
	var limit int

	return &cli.Command{
		Name:    "failed",
		Summary: "List dead-letter operations",
		Description: `List operations that exhausted their attempts or hit a
non-recoverable error, oldest first, with their last error.`,
		Usage: "seam failed [flags]",
		Examples: []cli.Example{
			{
				Description: "Inspect recent failures with full errors",
				Command:     "seam failed --limit 5 --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("failed", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.IntVar(&limit, "limit", 10, "maximum operations to list")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			client, queue, err := flags.connect()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := callContext(ctx)
			defer cancel()

			operations, err := queue.FailedOperations(ctx, limit)
			if err != nil {
				return err
			}

			if flags.json {
				return cli.WriteJSON(operations)
			}
			if len(operations) == 0 {
				fmt.Println("No failed operations.")
				return nil
			}
			printFailedOperations(operations)
			return nil
		},
	}
}
