// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// seam-viewer is a terminal dashboard for a running Seam deployment.
// It polls the shared store for queue statistics, health, and the
// dead-letter list, and renders them full-screen with live refresh.
//
// The viewer is read-only against the store except for two explicit
// operator actions: requeueing dead-lettered operations and clearing
// the dead-letter list. Both are also available non-interactively as
// "seam retry" and "seam clear --failed".
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/seam-foundation/seam/lib/version"
	"github.com/seam-foundation/seam/reconcile"
	"github.com/seam-foundation/seam/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("seam-viewer", pflag.ContinueOnError)
	storeAddr := flagSet.String("store-addr", defaultStoreAddr(), "store address (host:port)")
	keyPrefix := flagSet.String("key-prefix", "seam", "store key namespace")
	interval := flagSet.Duration("interval", 2*time.Second, "poll interval")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the other Seam
	// binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("seam-viewer")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	client, err := store.New(store.Config{Addr: *storeAddr})
	if err != nil {
		return fmt.Errorf("connecting to store at %s: %w", *storeAddr, err)
	}
	defer client.Close()

	// Fail fast on a bad address instead of starting an empty TUI.
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = client.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connecting to store at %s: %w", *storeAddr, err)
	}

	queue, err := reconcile.NewQueue(reconcile.QueueConfig{
		Store:     client,
		KeyPrefix: *keyPrefix,
	})
	if err != nil {
		return err
	}
	monitor, err := reconcile.NewMonitor(reconcile.MonitorConfig{Stats: queue})
	if err != nil {
		return err
	}

	source := &queueSource{queue: queue, monitor: monitor}
	model := newModel(source, *storeAddr, *interval)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func defaultStoreAddr() string {
	if addr := os.Getenv("SEAM_STORE_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Seam queue dashboard: a live terminal view of reconciliation state.

Polls the shared store for queue statistics, health grades, and the
dead-letter list. Health is graded the same way the reconciler
daemon's monitor grades it, so the dashboard and the daemon's logs
agree on DEGRADED and UNHEALTHY.

Keys:
  q       quit
  p       pause and resume polling
  r       requeue dead-lettered operations (oldest first)
  c       clear the dead-letter list (asks for confirmation)
  up/down scroll the dead-letter pane

Usage:
  seam-viewer [flags]

Examples:
  # Watch the local store
  seam-viewer

  # Watch a staging deployment at a faster cadence
  seam-viewer --store-addr staging-redis:6379 --interval 1s

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
