// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/seam-foundation/seam/lib/clock"
	"github.com/seam-foundation/seam/lib/metrics"
)

type fakeStats struct {
	stats QueueStats
	err   error

	// called receives once per Stats call when non-nil.
	called chan struct{}
}

func (f *fakeStats) Stats(ctx context.Context) (QueueStats, error) {
	if f.called != nil {
		select {
		case f.called <- struct{}{}:
		default:
		}
	}
	return f.stats, f.err
}

func newTestMonitor(t *testing.T, src StatsSource, mutate ...func(*MonitorConfig)) (*Monitor, *clock.FakeClock, *metrics.Registry) {
	t.Helper()

	clk := clock.Fake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	registry := metrics.NewRegistry(clk)
	cfg := MonitorConfig{
		Stats:              src,
		Clock:              clk,
		Registry:           registry,
		QueueSizeThreshold: 100,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	monitor, err := NewMonitor(cfg)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return monitor, clk, registry
}

func recordSuccesses(m *Monitor, opType OpType, n int, duration time.Duration) {
	op := &Operation{Type: opType}
	for i := 0; i < n; i++ {
		m.RecordSyncSuccess(op, duration)
	}
}

func recordFailures(m *Monitor, opType OpType, n int, err error, duration time.Duration) {
	op := &Operation{Type: opType}
	for range n {
		m.RecordSyncFailure(op, err, duration)
	}
}

// --- queue health ---

func TestCheckQueueHealthPendingThresholds(t *testing.T) {
	tests := []struct {
		pending int64
		want    HealthLevel
	}{
		{0, HealthOK},
		{50, HealthOK},
		{100, HealthOK},
		{150, HealthDegraded},
		{500, HealthDegraded},
		{501, HealthUnhealthy},
		{600, HealthUnhealthy},
	}
	for _, test := range tests {
		src := &fakeStats{stats: QueueStats{Pending: test.pending}}
		monitor, _, _ := newTestMonitor(t, src)
		check := monitor.CheckQueueHealth(context.Background())
		if check.Level != test.want {
			t.Errorf("pending %d: level = %s, want %s", test.pending, check.Level, test.want)
		}
	}
}

func TestCheckQueueHealthDeadLetterThresholds(t *testing.T) {
	tests := []struct {
		failed int64
		want   HealthLevel
	}{
		{0, HealthOK},
		{20, HealthOK},
		{21, HealthDegraded},
		{100, HealthDegraded},
		{101, HealthUnhealthy},
	}
	for _, test := range tests {
		src := &fakeStats{stats: QueueStats{Failed: test.failed}}
		monitor, _, _ := newTestMonitor(t, src)
		check := monitor.CheckQueueHealth(context.Background())
		if check.Level != test.want {
			t.Errorf("failed %d: level = %s, want %s", test.failed, check.Level, test.want)
		}
	}
}

func TestCheckQueueHealthOldestAge(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want HealthLevel
	}{
		{5 * time.Minute, HealthOK},
		{11 * time.Minute, HealthDegraded},
		{31 * time.Minute, HealthUnhealthy},
	}
	for _, test := range tests {
		src := &fakeStats{stats: QueueStats{OldestPendingAge: test.age}}
		monitor, _, _ := newTestMonitor(t, src)
		check := monitor.CheckQueueHealth(context.Background())
		if check.Level != test.want {
			t.Errorf("age %v: level = %s, want %s", test.age, check.Level, test.want)
		}
	}
}

func TestCheckQueueHealthStatsError(t *testing.T) {
	src := &fakeStats{err: errors.New("store unreachable")}
	monitor, _, _ := newTestMonitor(t, src)

	check := monitor.CheckQueueHealth(context.Background())
	if check.Level != HealthUnhealthy {
		t.Errorf("level = %s, want %s", check.Level, HealthUnhealthy)
	}
	if !strings.Contains(check.Message, "stats unavailable") {
		t.Errorf("message = %q, want stats unavailable", check.Message)
	}
}

// --- sync health ---

func TestCheckSyncHealthSampleGate(t *testing.T) {
	monitor, _, _ := newTestMonitor(t, &fakeStats{})
	recordFailures(monitor, OpUpdate, 9, errors.New("boom"), time.Second)

	check := monitor.CheckSyncHealth()
	if check.Level != HealthOK {
		t.Errorf("level with 9 samples = %s, want %s", check.Level, HealthOK)
	}
	if !strings.Contains(check.Message, "insufficient samples") {
		t.Errorf("message = %q, want insufficient samples", check.Message)
	}
}

func TestCheckSyncHealthSuccessRate(t *testing.T) {
	tests := []struct {
		name      string
		succeeded int
		failed    int
		want      HealthLevel
	}{
		{"all_good", 10, 0, HealthOK},
		{"rate_0.95", 19, 1, HealthOK},
		{"rate_0.9", 9, 1, HealthDegraded},
		{"rate_0.7", 7, 3, HealthUnhealthy},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			monitor, _, _ := newTestMonitor(t, &fakeStats{})
			recordSuccesses(monitor, OpCreate, test.succeeded, 10*time.Millisecond)
			recordFailures(monitor, OpCreate, test.failed, errors.New("boom"), 10*time.Millisecond)

			check := monitor.CheckSyncHealth()
			if check.Level != test.want {
				t.Errorf("level = %s, want %s", check.Level, test.want)
			}
		})
	}
}

func TestCheckSyncHealthAverageDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     HealthLevel
	}{
		{time.Second, HealthOK},
		{6 * time.Second, HealthDegraded},
		{11 * time.Second, HealthUnhealthy},
	}
	for _, test := range tests {
		monitor, _, _ := newTestMonitor(t, &fakeStats{})
		recordSuccesses(monitor, OpCreate, 10, test.duration)

		check := monitor.CheckSyncHealth()
		if check.Level != test.want {
			t.Errorf("avg %v: level = %s, want %s", test.duration, check.Level, test.want)
		}
	}
}

func TestGradeSyncStats(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		stats QueueStats
		want  HealthLevel
	}{
		{"empty", QueueStats{}, HealthOK},
		{"below_sample_gate", QueueStats{TotalProcessed: 9, TotalSucceeded: 1, TotalFailed: 8}, HealthOK},
		{"all_good", QueueStats{TotalProcessed: 100, TotalSucceeded: 100, AverageDurationMillis: 250}, HealthOK},
		{"rate_degraded", QueueStats{TotalProcessed: 100, TotalSucceeded: 90, TotalFailed: 10}, HealthDegraded},
		{"rate_unhealthy", QueueStats{TotalProcessed: 100, TotalSucceeded: 70, TotalFailed: 30}, HealthUnhealthy},
		{"duration_degraded", QueueStats{TotalProcessed: 100, TotalSucceeded: 100, AverageDurationMillis: 6000}, HealthDegraded},
		{"duration_unhealthy", QueueStats{TotalProcessed: 100, TotalSucceeded: 100, AverageDurationMillis: 11000}, HealthUnhealthy},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			check := GradeSyncStats(test.stats, now)
			if check.Level != test.want {
				t.Errorf("level = %s, want %s", check.Level, test.want)
			}
			if !check.CheckedAt.Equal(now) {
				t.Errorf("CheckedAt = %v, want %v", check.CheckedAt, now)
			}
			if check.Details["processed"] == "" {
				t.Error("details missing processed count")
			}
		})
	}

	check := GradeSyncStats(QueueStats{TotalProcessed: 5}, now)
	if !strings.Contains(check.Message, "insufficient samples") {
		t.Errorf("message = %q, want insufficient samples", check.Message)
	}
}

// --- aggregate ---

func TestOverallHealthWorstOf(t *testing.T) {
	// Queue unhealthy, sync silent: overall follows the queue.
	monitor, _, _ := newTestMonitor(t, &fakeStats{err: errors.New("down")})
	status := monitor.OverallHealth(context.Background())
	if status.Level != HealthUnhealthy {
		t.Errorf("overall = %s, want %s", status.Level, HealthUnhealthy)
	}

	// Queue fine, sync degraded: overall follows sync.
	monitor, _, _ = newTestMonitor(t, &fakeStats{})
	recordSuccesses(monitor, OpCreate, 9, time.Millisecond)
	recordFailures(monitor, OpCreate, 1, errors.New("boom"), time.Millisecond)
	status = monitor.OverallHealth(context.Background())
	if status.Level != HealthDegraded {
		t.Errorf("overall = %s, want %s", status.Level, HealthDegraded)
	}
	if status.Queue.Level != HealthOK || status.Sync.Level != HealthDegraded {
		t.Errorf("subsystems = %s/%s, want HEALTHY/DEGRADED", status.Queue.Level, status.Sync.Level)
	}
}

func TestOverallHealthGauges(t *testing.T) {
	monitor, _, registry := newTestMonitor(t, &fakeStats{stats: QueueStats{Processing: 4}})
	recordSuccesses(monitor, OpCreate, 9, time.Millisecond)
	recordFailures(monitor, OpCreate, 1, errors.New("boom"), time.Millisecond)

	monitor.OverallHealth(context.Background())

	if got := registry.Value("seam_health_queue", nil); got != 0 {
		t.Errorf("seam_health_queue = %v, want 0", got)
	}
	if got := registry.Value("seam_health_sync", nil); got != 0.5 {
		t.Errorf("seam_health_sync = %v, want 0.5", got)
	}
	if got := registry.Value("seam_health_overall", nil); got != 0.5 {
		t.Errorf("seam_health_overall = %v, want 0.5", got)
	}
	if got := registry.Value("seam_processing_count", nil); got != 4 {
		t.Errorf("seam_processing_count = %v, want 4", got)
	}
}

func TestShouldAlert(t *testing.T) {
	monitor, _, _ := newTestMonitor(t, &fakeStats{})
	if monitor.ShouldAlert(context.Background()) {
		t.Error("ShouldAlert on healthy system = true, want false")
	}

	monitor, _, _ = newTestMonitor(t, &fakeStats{err: errors.New("down")})
	if !monitor.ShouldAlert(context.Background()) {
		t.Error("ShouldAlert on unhealthy system = false, want true")
	}
	if details := monitor.AlertDetails(context.Background()); !strings.Contains(details, "UNHEALTHY") {
		t.Errorf("AlertDetails = %q, want UNHEALTHY mentioned", details)
	}
}

func TestSyncMetricsSnapshot(t *testing.T) {
	monitor, _, registry := newTestMonitor(t, &fakeStats{})
	recordSuccesses(monitor, OpCreate, 3, 100*time.Millisecond)
	recordFailures(monitor, OpUpdate, 1, errors.New("request timed out"), 200*time.Millisecond)

	snap := monitor.SyncMetrics()
	if snap.Total != 4 || snap.Succeeded != 3 || snap.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 4/3/1", snap.Total, snap.Succeeded, snap.Failed)
	}
	if snap.SuccessRate != 0.75 {
		t.Errorf("SuccessRate = %v, want 0.75", snap.SuccessRate)
	}
	if snap.AverageDuration != 125*time.Millisecond {
		t.Errorf("AverageDuration = %v, want 125ms", snap.AverageDuration)
	}
	if snap.PerType[OpCreate] != 3 || snap.PerType[OpUpdate] != 1 {
		t.Errorf("PerType = %v, want CREATE:3 UPDATE:1", snap.PerType)
	}
	if snap.PerErrorKind["timeout"] != 1 {
		t.Errorf("PerErrorKind = %v, want timeout:1", snap.PerErrorKind)
	}

	labels := map[string]string{"type": string(OpCreate)}
	if got := registry.Value("seam_op_duration_millis_sum", labels); got != 300 {
		t.Errorf("duration sum for CREATE = %v, want 300", got)
	}
	if got := registry.Value("seam_op_duration_millis_count", labels); got != 3 {
		t.Errorf("duration count for CREATE = %v, want 3", got)
	}
}

func TestSyncMetricsEmpty(t *testing.T) {
	monitor, _, _ := newTestMonitor(t, &fakeStats{})
	snap := monitor.SyncMetrics()
	if snap.SuccessRate != 1 {
		t.Errorf("SuccessRate with no samples = %v, want 1", snap.SuccessRate)
	}
	if snap.AverageDuration != 0 {
		t.Errorf("AverageDuration with no samples = %v, want 0", snap.AverageDuration)
	}
}

// --- periodic checks ---

func TestPeriodicHealthChecks(t *testing.T) {
	src := &fakeStats{called: make(chan struct{}, 1)}
	monitor, clk, registry := newTestMonitor(t, src, func(cfg *MonitorConfig) {
		cfg.HealthCheckInterval = time.Minute
	})

	monitor.StartHealthChecks()
	monitor.StartHealthChecks() // second start is a no-op
	clk.WaitForTimers(1)
	if got := clk.PendingCount(); got != 1 {
		t.Errorf("pending timers after double start = %d, want 1", got)
	}

	clk.Advance(time.Minute)
	select {
	case <-src.called:
	case <-time.After(5 * time.Second):
		t.Fatal("health check did not run after one interval")
	}

	monitor.StopHealthChecks()
	monitor.StopHealthChecks() // second stop is a no-op

	var published bool
	for _, point := range registry.Snapshot() {
		if point.Name == "seam_health_overall" {
			published = true
			if point.Value != 0 {
				t.Errorf("seam_health_overall = %v, want 0 on healthy system", point.Value)
			}
		}
	}
	if !published {
		t.Error("periodic check published no seam_health_overall gauge")
	}
}
