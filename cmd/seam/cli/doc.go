// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command-tree framework for the seam binary.
//
// A [Command] is a node in the tree: either a dispatcher with
// Subcommands or a leaf with Run. Execution parses pflag flags,
// renders help, and suggests the closest command or flag name on
// typos. Leaf Run functions receive a signal-scoped context and a
// terminal-aware logger from [NewCommandLogger].
package cli
