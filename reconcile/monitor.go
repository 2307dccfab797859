// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/seam-foundation/seam/lib/clock"
	"github.com/seam-foundation/seam/lib/metrics"
)

// StatsSource provides the queue statistics the monitor grades.
// *Queue implements it.
type StatsSource interface {
	Stats(ctx context.Context) (QueueStats, error)
}

// HealthLevel orders health verdicts from best to worst.
type HealthLevel int

const (
	HealthOK HealthLevel = iota
	HealthDegraded
	HealthUnhealthy
)

func (l HealthLevel) String() string {
	switch l {
	case HealthOK:
		return "HEALTHY"
	case HealthDegraded:
		return "DEGRADED"
	case HealthUnhealthy:
		return "UNHEALTHY"
	default:
		return fmt.Sprintf("HealthLevel(%d)", int(l))
	}
}

func (l HealthLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Fixed grading thresholds. The configurable thresholds in
// MonitorConfig set the DEGRADED tier; these set the UNHEALTHY tier
// and the dead-letter tiers.
const (
	// minHealthSamples gates sync grading so a cold start never
	// alerts.
	minHealthSamples = 10

	deadLetterDegraded     = 20
	deadLetterUnhealthy    = 100
	oldestPendingUnhealthy = 30 * time.Minute

	unhealthySuccessRate     = 0.8
	degradedSuccessRate      = 0.95
	unhealthyAverageDuration = 10 * time.Second
	degradedAverageDuration  = 5 * time.Second

	// queueUnhealthyFactor scales QueueSizeThreshold up to the
	// UNHEALTHY tier.
	queueUnhealthyFactor = 5

	healthCheckTimeout = 10 * time.Second
)

// HealthCheck is one subsystem's verdict.
type HealthCheck struct {
	Level     HealthLevel       `json:"level"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

// HealthStatus aggregates the queue and sync verdicts. Level is the
// worse of the two.
type HealthStatus struct {
	Queue     HealthCheck `json:"queue"`
	Sync      HealthCheck `json:"sync"`
	Level     HealthLevel `json:"level"`
	CheckedAt time.Time   `json:"checked_at"`
}

// SyncMetrics is a snapshot of execution outcomes recorded since the
// monitor was constructed.
type SyncMetrics struct {
	Total           int64            `json:"total"`
	Succeeded       int64            `json:"succeeded"`
	Failed          int64            `json:"failed"`
	SuccessRate     float64          `json:"success_rate"`
	AverageDuration time.Duration    `json:"average_duration"`
	PerType         map[OpType]int64 `json:"per_type,omitempty"`
	PerErrorKind    map[string]int64 `json:"per_error_kind,omitempty"`
}

// MonitorConfig holds the parameters for NewMonitor. Stats is
// required; everything else defaults.
type MonitorConfig struct {
	Stats StatsSource

	// Clock defaults to the system clock.
	Clock clock.Clock

	// Logger defaults to discard.
	Logger *slog.Logger

	// Registry receives health gauges and duration counters. Nil
	// disables metrics.
	Registry *metrics.Registry

	// SuccessRateThreshold is the rate below which sync health is
	// DEGRADED. Defaults to 0.95.
	SuccessRateThreshold float64

	// QueueSizeThreshold is the pending count above which queue
	// health is DEGRADED, and five times which it is UNHEALTHY.
	// Defaults to 1000.
	QueueSizeThreshold int64

	// OperationAgeThreshold is the oldest-pending age above which
	// queue health is DEGRADED. Defaults to 10 minutes.
	OperationAgeThreshold time.Duration

	// HealthCheckInterval is the periodic check cadence. Defaults to
	// one minute.
	HealthCheckInterval time.Duration
}

// Monitor grades reconciliation health from two angles: queue state
// read through the stats source, and execution outcomes reported by
// the worker through RecordSyncSuccess and RecordSyncFailure.
type Monitor struct {
	stats    StatsSource
	clk      clock.Clock
	logger   *slog.Logger
	registry *metrics.Registry

	successRateThreshold  float64
	queueSizeThreshold    int64
	operationAgeThreshold time.Duration
	healthCheckInterval   time.Duration

	mu           sync.Mutex
	total        int64
	succeeded    int64
	failed       int64
	durationSum  time.Duration
	perType      map[OpType]int64
	perErrorKind map[string]int64

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewMonitor constructs a monitor over the given stats source.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Stats == nil {
		return nil, errors.New("reconcile: MonitorConfig.Stats is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.SuccessRateThreshold <= 0 || cfg.SuccessRateThreshold > 1 {
		cfg.SuccessRateThreshold = degradedSuccessRate
	}
	if cfg.QueueSizeThreshold <= 0 {
		cfg.QueueSizeThreshold = 1000
	}
	if cfg.OperationAgeThreshold <= 0 {
		cfg.OperationAgeThreshold = 10 * time.Minute
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = time.Minute
	}
	return &Monitor{
		stats:                 cfg.Stats,
		clk:                   cfg.Clock,
		logger:                cfg.Logger,
		registry:              cfg.Registry,
		successRateThreshold:  cfg.SuccessRateThreshold,
		queueSizeThreshold:    cfg.QueueSizeThreshold,
		operationAgeThreshold: cfg.OperationAgeThreshold,
		healthCheckInterval:   cfg.HealthCheckInterval,
		perType:               make(map[OpType]int64),
		perErrorKind:          make(map[string]int64),
	}, nil
}

// RecordSyncSuccess tallies a successful execution.
func (m *Monitor) RecordSyncSuccess(op *Operation, duration time.Duration) {
	m.mu.Lock()
	m.total++
	m.succeeded++
	m.durationSum += duration
	m.perType[op.Type]++
	m.mu.Unlock()

	labels := map[string]string{"type": string(op.Type)}
	m.registry.Add("seam_op_duration_millis_sum", labels, float64(duration.Milliseconds()))
	m.registry.Add("seam_op_duration_millis_count", labels, 1)
}

// RecordSyncFailure tallies a failed execution. The duration covers
// the provider call, so slow failures weigh on the average like slow
// successes do.
func (m *Monitor) RecordSyncFailure(op *Operation, err error, duration time.Duration) {
	kind := ErrorKind(err)

	m.mu.Lock()
	m.total++
	m.failed++
	m.durationSum += duration
	m.perType[op.Type]++
	m.perErrorKind[kind]++
	m.mu.Unlock()

	labels := map[string]string{"type": string(op.Type)}
	m.registry.Add("seam_op_duration_millis_sum", labels, float64(duration.Milliseconds()))
	m.registry.Add("seam_op_duration_millis_count", labels, 1)
}

// SyncMetrics snapshots the recorded tallies. SuccessRate is 1 when
// nothing has been recorded yet.
func (m *Monitor) SyncMetrics() SyncMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := SyncMetrics{
		Total:        m.total,
		Succeeded:    m.succeeded,
		Failed:       m.failed,
		SuccessRate:  1,
		PerType:      make(map[OpType]int64, len(m.perType)),
		PerErrorKind: make(map[string]int64, len(m.perErrorKind)),
	}
	if m.total > 0 {
		snap.SuccessRate = float64(m.succeeded) / float64(m.total)
		snap.AverageDuration = m.durationSum / time.Duration(m.total)
	}
	maps.Copy(snap.PerType, m.perType)
	maps.Copy(snap.PerErrorKind, m.perErrorKind)
	return snap
}

// CheckQueueHealth grades queue depth, dead-letter volume, and
// oldest-pending age. A stats read failure is UNHEALTHY on its own.
func (m *Monitor) CheckQueueHealth(ctx context.Context) HealthCheck {
	now := m.clk.Now()
	stats, err := m.stats.Stats(ctx)
	if err != nil {
		return HealthCheck{
			Level:     HealthUnhealthy,
			Message:   fmt.Sprintf("queue stats unavailable: %v", err),
			CheckedAt: now,
		}
	}
	m.registry.Set("seam_processing_count", nil, float64(stats.Processing))

	var unhealthy, degraded []string
	if stats.Pending > m.queueSizeThreshold*queueUnhealthyFactor {
		unhealthy = append(unhealthy, fmt.Sprintf("%d operations pending", stats.Pending))
	} else if stats.Pending > m.queueSizeThreshold {
		degraded = append(degraded, fmt.Sprintf("%d operations pending", stats.Pending))
	}
	if stats.Failed > deadLetterUnhealthy {
		unhealthy = append(unhealthy, fmt.Sprintf("%d operations dead-lettered", stats.Failed))
	} else if stats.Failed > deadLetterDegraded {
		degraded = append(degraded, fmt.Sprintf("%d operations dead-lettered", stats.Failed))
	}
	age := stats.OldestPendingAge
	if age > oldestPendingUnhealthy {
		unhealthy = append(unhealthy, fmt.Sprintf("oldest pending operation is %s old", age.Round(time.Second)))
	} else if age > m.operationAgeThreshold {
		degraded = append(degraded, fmt.Sprintf("oldest pending operation is %s old", age.Round(time.Second)))
	}

	check := HealthCheck{
		Level:   HealthOK,
		Message: "queue healthy",
		Details: map[string]string{
			"pending":            strconv.FormatInt(stats.Pending, 10),
			"processing":         strconv.FormatInt(stats.Processing, 10),
			"retrying":           strconv.FormatInt(stats.Retrying, 10),
			"failed":             strconv.FormatInt(stats.Failed, 10),
			"oldest_pending_age": age.String(),
		},
		CheckedAt: now,
	}
	switch {
	case len(unhealthy) > 0:
		check.Level = HealthUnhealthy
		check.Message = strings.Join(append(unhealthy, degraded...), "; ")
	case len(degraded) > 0:
		check.Level = HealthDegraded
		check.Message = strings.Join(degraded, "; ")
	}
	return check
}

// CheckSyncHealth grades recorded execution outcomes.
func (m *Monitor) CheckSyncHealth() HealthCheck {
	now := m.clk.Now()
	snap := m.SyncMetrics()

	details := map[string]string{
		"total":            strconv.FormatInt(snap.Total, 10),
		"succeeded":        strconv.FormatInt(snap.Succeeded, 10),
		"failed":           strconv.FormatInt(snap.Failed, 10),
		"success_rate":     strconv.FormatFloat(snap.SuccessRate, 'f', 3, 64),
		"average_duration": snap.AverageDuration.Round(time.Millisecond).String(),
	}
	if snap.Total < minHealthSamples {
		return HealthCheck{
			Level:     HealthOK,
			Message:   fmt.Sprintf("insufficient samples (%d of %d)", snap.Total, minHealthSamples),
			Details:   details,
			CheckedAt: now,
		}
	}

	var unhealthy, degraded []string
	if snap.SuccessRate < unhealthySuccessRate {
		unhealthy = append(unhealthy, fmt.Sprintf("success rate %.0f%%", snap.SuccessRate*100))
	} else if snap.SuccessRate < m.successRateThreshold {
		degraded = append(degraded, fmt.Sprintf("success rate %.0f%%", snap.SuccessRate*100))
	}
	avg := snap.AverageDuration
	if avg > unhealthyAverageDuration {
		unhealthy = append(unhealthy, fmt.Sprintf("average duration %s", avg.Round(time.Millisecond)))
	} else if avg > degradedAverageDuration {
		degraded = append(degraded, fmt.Sprintf("average duration %s", avg.Round(time.Millisecond)))
	}

	check := HealthCheck{
		Level:     HealthOK,
		Message:   "sync healthy",
		Details:   details,
		CheckedAt: now,
	}
	switch {
	case len(unhealthy) > 0:
		check.Level = HealthUnhealthy
		check.Message = strings.Join(append(unhealthy, degraded...), "; ")
	case len(degraded) > 0:
		check.Level = HealthDegraded
		check.Message = strings.Join(degraded, "; ")
	}
	return check
}

// GradeSyncStats grades the store's lifetime counters with the default
// thresholds. CheckSyncHealth sees only outcomes recorded in this
// process, so operator tooling that is not executing operations itself
// grades the shared lifetime counters instead.
func GradeSyncStats(stats QueueStats, now time.Time) HealthCheck {
	successRate := 1.0
	if stats.TotalProcessed > 0 {
		successRate = float64(stats.TotalSucceeded) / float64(stats.TotalProcessed)
	}
	average := time.Duration(stats.AverageDurationMillis * float64(time.Millisecond))

	details := map[string]string{
		"processed":        strconv.FormatInt(stats.TotalProcessed, 10),
		"succeeded":        strconv.FormatInt(stats.TotalSucceeded, 10),
		"failed":           strconv.FormatInt(stats.TotalFailed, 10),
		"retried":          strconv.FormatInt(stats.TotalRetried, 10),
		"success_rate":     strconv.FormatFloat(successRate, 'f', 3, 64),
		"average_duration": average.Round(time.Millisecond).String(),
	}

	if stats.TotalProcessed < minHealthSamples {
		return HealthCheck{
			Level:     HealthOK,
			Message:   fmt.Sprintf("insufficient samples (%d of %d)", stats.TotalProcessed, minHealthSamples),
			Details:   details,
			CheckedAt: now,
		}
	}

	check := HealthCheck{
		Level:     HealthOK,
		Message:   "sync healthy",
		Details:   details,
		CheckedAt: now,
	}
	switch {
	case successRate < unhealthySuccessRate || average > unhealthyAverageDuration:
		check.Level = HealthUnhealthy
	case successRate < degradedSuccessRate || average > degradedAverageDuration:
		check.Level = HealthDegraded
	}
	if check.Level != HealthOK {
		check.Message = fmt.Sprintf("success rate %.0f%%, average duration %s",
			successRate*100, average.Round(time.Millisecond))
	}
	return check
}

// OverallHealth runs both checks and aggregates to the worse level,
// logging degradations and publishing the health gauges.
func (m *Monitor) OverallHealth(ctx context.Context) HealthStatus {
	queue := m.CheckQueueHealth(ctx)
	sync := m.CheckSyncHealth()

	status := HealthStatus{
		Queue:     queue,
		Sync:      sync,
		Level:     max(queue.Level, sync.Level),
		CheckedAt: m.clk.Now(),
	}
	switch status.Level {
	case HealthDegraded:
		m.logger.Warn("reconciliation degraded", "queue", queue.Message, "sync", sync.Message)
	case HealthUnhealthy:
		m.logger.Error("reconciliation unhealthy", "queue", queue.Message, "sync", sync.Message)
	}

	m.registry.Set("seam_health_queue", nil, healthGauge(queue.Level))
	m.registry.Set("seam_health_sync", nil, healthGauge(sync.Level))
	m.registry.Set("seam_health_overall", nil, healthGauge(status.Level))
	return status
}

// ShouldAlert reports whether overall health is UNHEALTHY.
func (m *Monitor) ShouldAlert(ctx context.Context) bool {
	return m.OverallHealth(ctx).Level == HealthUnhealthy
}

// AlertDetails renders the current health state as a single line
// suitable for an alert payload.
func (m *Monitor) AlertDetails(ctx context.Context) string {
	status := m.OverallHealth(ctx)
	return fmt.Sprintf("overall=%s queue=%s (%s) sync=%s (%s)",
		status.Level, status.Queue.Level, status.Queue.Message,
		status.Sync.Level, status.Sync.Message)
}

// StartHealthChecks begins periodic overall health evaluation. A
// monitor that is already running is left alone.
func (m *Monitor) StartHealthChecks() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.runHealthChecks(m.stop, m.done)
	m.logger.Debug("health checks started", "interval", m.healthCheckInterval)
}

// StopHealthChecks stops the periodic evaluation and waits for the
// checker goroutine to exit. Safe to call repeatedly.
func (m *Monitor) StopHealthChecks() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.runMu.Unlock()
	<-done
}

func (m *Monitor) runHealthChecks(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := m.clk.NewTicker(m.healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
			m.OverallHealth(ctx)
			cancel()
		}
	}
}

func healthGauge(l HealthLevel) float64 {
	switch l {
	case HealthDegraded:
		return 0.5
	case HealthUnhealthy:
		return 1
	default:
		return 0
	}
}
