// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Seam is the operator CLI for the reconciliation queue. It inspects
// and manipulates queue state directly in the store: health, counters,
// pending and dead-letter listings, requeue, clear, and per-user sync
// status.
//
// The CLI never runs a worker. It builds the same queue layer the
// reconciler daemon uses, pointed at the same store, so every command
// sees exactly the state the daemon operates on.
//
// Every command accepts --store-addr (default $SEAM_STORE_ADDR, then
// localhost:6379), --key-prefix, and --json for machine-readable
// output.
package main
