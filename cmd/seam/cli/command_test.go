// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "seam",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "stats",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					called = "stats"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"stats"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "stats" {
		t.Errorf("dispatched to %q, want %q", called, "stats")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "seam",
		Subcommands: []*Command{
			{
				Name: "queue",
				Subcommands: []*Command{
					{
						Name: "inspect",
						Run: func(_ context.Context, args []string, _ *slog.Logger) error {
							called = "queue inspect"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"queue", "inspect", "extra-arg"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "queue inspect" {
		t.Errorf("dispatched to %q, want %q", called, "queue inspect")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra-arg" {
		t.Errorf("args = %v, want [extra-arg]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var storeAddr string
	var target string

	command := &Command{
		Name: "user",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("user", pflag.ContinueOnError)
			flagSet.StringVar(&storeAddr, "store-addr", "localhost:6379", "store address")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--store-addr", "store.internal:6380", "user-42"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if storeAddr != "store.internal:6380" {
		t.Errorf("storeAddr = %q, want %q", storeAddr, "store.internal:6380")
	}
	if target != "user-42" {
		t.Errorf("target = %q, want %q", target, "user-42")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "pending",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("pending", pflag.ContinueOnError)
			flagSet.Int("limit", 10, "maximum entries to show")
			flagSet.String("store-addr", "localhost:6379", "store address")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error { return nil },
	}

	err := command.Execute([]string{"--limti"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --limit") {
		t.Errorf("error = %q, want suggestion for '--limit'", errStr)
	}
	// Suggestion should be on the same line as the error, not buried.
	if !strings.Contains(errStr, "limti") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	// Should include a pointer to --help.
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "pending",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("pending", pflag.ContinueOnError)
			flagSet.Int("limit", 10, "maximum entries to show")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "seam",
		Subcommands: []*Command{
			{Name: "pending"},
			{Name: "failed"},
			{Name: "version"},
		},
	}

	err := root.Execute([]string{"pnding"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"pending\"") {
		t.Errorf("error = %q, want suggestion for 'pending'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "seam",
		Subcommands: []*Command{
			{Name: "pending"},
			{Name: "failed"},
		},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "seam",
				Summary: "Reconciliation queue operations",
				Subcommands: []*Command{
					{Name: "stats", Summary: "Show queue statistics"},
				},
			}

			err := root.Execute([]string{helpArg})
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "seam",
		Subcommands: []*Command{
			{Name: "stats", Summary: "Show queue statistics"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "seam",
		Description: "Operate the reconciliation queue.",
		Subcommands: []*Command{
			{Name: "status", Summary: "Show queue and sync health"},
			{Name: "failed", Summary: "List dead-letter operations"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Show queue health",
				Command:     "seam status",
			},
			{
				Description: "Requeue every dead-letter operation",
				Command:     "seam retry",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	// Verify structural elements are present.
	for _, want := range []string{
		"Operate the reconciliation queue.",
		"Usage:",
		"seam <command> [flags]",
		"Commands:",
		"status",
		"Show queue and sync health",
		"failed",
		"List dead-letter operations",
		"Examples:",
		"seam status",
		"seam retry",
		"Run 'seam <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "failed",
		Summary: "List dead-letter operations",
		Usage:   "seam failed [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("failed", pflag.ContinueOnError)
			flagSet.Int("limit", 10, "maximum entries to show")
			flagSet.Bool("json", false, "output as JSON")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"seam failed [flags]",
		"Flags:",
		"limit",
		"json",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "seam"}
	clear := &Command{Name: "clear", parent: root}

	if got := root.fullName(); got != "seam" {
		t.Errorf("root.fullName() = %q, want %q", got, "seam")
	}
	if got := clear.fullName(); got != "seam clear" {
		t.Errorf("clear.fullName() = %q, want %q", got, "seam clear")
	}
}
