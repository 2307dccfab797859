// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The reconciliation engine is timing-heavy: retry schedules, worker
// poll ticks, health-check intervals, operation ages. Every component
// takes a Clock so tests pin time with Fake() and step it with
// Advance, instead of sleeping and hoping.
//
// # Wiring
//
//	q := reconcile.NewQueue(st, cfg, clock.Real(), logger)
//
// and in tests:
//
//	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
//	q := reconcile.NewQueue(st, cfg, clk, logger)
//	clk.Advance(25 * time.Second)
//
// # Synchronizing with goroutines
//
// When another goroutine registers the timer (a worker loop creating
// its poll ticker), call WaitForTimers before Advance so the
// registration cannot race the advance.
package clock
