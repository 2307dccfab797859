// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Seam's in-process metrics model: named
// counter and gauge series in a Registry, snapshotted to Points and
// flushed by an Emitter.
//
// # Flow
//
// Components write through the Registry:
//
//	registry.Add("seam_ops_enqueued_total", map[string]string{"type": "CREATE"}, 1)
//	registry.Set("seam_health_overall", nil, 0.5)
//
// The daemon's Emitter snapshots the registry on an interval and hands
// the points to a Sink. The default LogSink emits them as structured
// log records; alternative sinks implement the one-method Sink
// interface.
//
// # Nil safety
//
// Registry methods are no-ops on a nil receiver, so components that
// can run without metrics (the operator CLI) pass nil instead of
// guarding every call site.
package metrics
