// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/seam-foundation/seam/reconcile"
)

// printHealthCheck writes one subsystem's verdict with its details,
// indented under a section header.
func printHealthCheck(name string, check reconcile.HealthCheck) {
	fmt.Printf("\n%s: %s\n", name, check.Level)
	fmt.Printf("  %s\n", check.Message)

	keys := make([]string, 0, len(check.Details))
	for key := range check.Details {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
	for _, key := range keys {
		fmt.Fprintf(writer, "  %s:\t%s\n", key, check.Details[key])
	}
	writer.Flush()
}

// printOperations writes a compact table of queued operations.
func printOperations(operations []*reconcile.Operation) {
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "ID\tTYPE\tUSER\tPRI\tATTEMPT\tAGE\n")
	for _, op := range operations {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%d/%d\t%s\n",
			op.ID,
			op.Type,
			op.UserID,
			op.Priority,
			op.Attempt,
			op.MaxAttempts,
			formatAge(time.Since(op.CreatedAt)),
		)
	}
	writer.Flush()
}

// printFailedOperations writes the dead-letter table with last errors.
func printFailedOperations(operations []*reconcile.Operation) {
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "ID\tTYPE\tUSER\tATTEMPTS\tAGE\tLAST ERROR\n")
	for _, op := range operations {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			op.ID,
			op.Type,
			op.UserID,
			op.Attempt,
			op.MaxAttempts,
			formatAge(time.Since(op.CreatedAt)),
			truncate(op.LastError, 60),
		)
	}
	writer.Flush()
}

// formatAge renders a duration at the precision an operator cares
// about: seconds under a minute, then minutes, hours, days.
func formatAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age/time.Second))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age/time.Minute))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(age/time.Hour), int((age%time.Hour)/time.Minute))
	default:
		return fmt.Sprintf("%dd%dh", int(age/(24*time.Hour)), int((age%(24*time.Hour))/time.Hour))
	}
}

// truncate shortens value to maxLength, marking the cut with an
// ellipsis.
func truncate(value string, maxLength int) string {
	if len(value) <= maxLength {
		return value
	}
	if maxLength <= 3 {
		return value[:maxLength]
	}
	return value[:maxLength-3] + "..."
}
