// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile keeps a local user database and a remote identity
// provider consistent through an asynchronous, store-backed work
// queue.
//
// The package splits the problem into three cooperating pieces:
//
//   - [Queue] owns all persistent state. Operations are enqueued as
//     durable records plus an index entry in one of three structures:
//     a FIFO list for normal work, a priority sorted set for work that
//     should jump the line, and a retry sorted set keyed by the time a
//     failed operation becomes ready again. Because every structure
//     lives in the store and every claim is a single atomic command,
//     any number of worker processes can share one queue.
//
//   - [Orchestrator] owns the worker. Its poll loop wakes on a clock
//     tick, claims up to its concurrency in ready operations, executes
//     each against the [IdentityProvider] adapter with a bounded
//     timeout, and settles every outcome through [Queue.Complete] or
//     [Queue.Fail] before the next tick.
//
//   - [Monitor] grades health. It folds queue statistics and the
//     worker's reported outcomes into per-subsystem [HealthCheck]
//     verdicts and an aggregate [HealthStatus], and runs its own
//     periodic evaluation loop when asked.
//
// An operation's life: PENDING in an index structure, PROCESSING while
// claimed by a worker, then either gone (completed), RETRYING in the
// retry set with exponential [Backoff], or FAILED in the capped
// dead-letter list awaiting [Queue.RequeueFailed] or
// [Queue.ClearFailed].
//
// Failure handling is classification-driven: [Recoverable] decides
// from the error chain whether an execution failure is worth retrying
// (timeouts, rate limits, transient network trouble) or should
// dead-letter immediately (validation rejections, anything wrapped
// with [ErrNonRecoverable]).
//
// Records are serialized through a versioned binary envelope (CBOR
// body, keyed BLAKE3 fingerprint, optional compression) so that
// records written by one version of the daemon stay readable by the
// next.
package reconcile
