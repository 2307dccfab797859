// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/seam-foundation/seam/reconcile"
)

// failedPageSize bounds the dead-letter rows fetched per poll and the
// batch requeued by the retry key, so one keypress requeues what the
// pane shows.
const failedPageSize = 100

// snapshot is one consistent poll of the store.
type snapshot struct {
	stats      reconcile.QueueStats
	queueCheck reconcile.HealthCheck
	syncCheck  reconcile.HealthCheck
	failed     []*reconcile.Operation
	takenAt    time.Time
}

func (s snapshot) overall() reconcile.HealthLevel {
	return max(s.queueCheck.Level, s.syncCheck.Level)
}

// dashboardSource is the queue surface the dashboard needs: one poll
// per tick plus the two operator actions bound to keys.
type dashboardSource interface {
	Snapshot(ctx context.Context) (snapshot, error)
	RequeueFailed(ctx context.Context, limit int) (int, error)
	ClearFailed(ctx context.Context) (int, error)
}

// queueSource reads the live queue, grading health the same way the
// reconciler daemon's monitor does. Sync health comes from the
// store's lifetime counters because the viewer executes no
// operations itself.
type queueSource struct {
	queue   *reconcile.Queue
	monitor *reconcile.Monitor
}

func (s *queueSource) Snapshot(ctx context.Context) (snapshot, error) {
	queueCheck := s.monitor.CheckQueueHealth(ctx)
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("reading queue stats: %w", err)
	}
	failed, err := s.queue.FailedOperations(ctx, failedPageSize)
	if err != nil {
		return snapshot{}, fmt.Errorf("reading dead letters: %w", err)
	}
	return snapshot{
		stats:      stats,
		queueCheck: queueCheck,
		syncCheck:  reconcile.GradeSyncStats(stats, queueCheck.CheckedAt),
		failed:     failed,
		takenAt:    queueCheck.CheckedAt,
	}, nil
}

func (s *queueSource) RequeueFailed(ctx context.Context, limit int) (int, error) {
	return s.queue.RequeueFailed(ctx, limit)
}

func (s *queueSource) ClearFailed(ctx context.Context) (int, error) {
	return s.queue.ClearFailed(ctx)
}
