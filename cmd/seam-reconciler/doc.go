// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Seam-reconciler is the reconciliation daemon. It owns the worker
// loop that drains the operation queue against the identity provider,
// keeping the local user database and the remote provider consistent.
//
// # Startup
//
// The daemon loads its YAML configuration from --config (or the
// SEAM_CONFIG environment variable), waits for the backing store to
// answer pings, opens the user database, and builds the identity
// provider client. It then starts the worker loop, the periodic
// health checks, and the metrics emitter, and runs until SIGINT or
// SIGTERM.
//
// # Shutdown
//
// On signal the daemon stops the worker (waiting up to the configured
// grace period for in-flight operations), stops health checks, flushes
// a final metrics snapshot, and closes the store and database.
//
// # Scaling
//
// Multiple reconciler processes may point at the same store. Dequeue
// is atomic per operation, so adding processes adds throughput without
// double-executing operations.
package main
