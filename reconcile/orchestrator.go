// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seam-foundation/seam/lib/clock"
	"github.com/seam-foundation/seam/lib/metrics"
)

// IdentityProvider is the outbound boundary to the remote identity
// provider. CreateUser returns the provider-assigned remote id.
// Implementations must honor context cancellation; the orchestrator
// bounds every call with its operation timeout.
type IdentityProvider interface {
	CreateUser(ctx context.Context, payload map[string]any) (string, error)
	UpdateUser(ctx context.Context, userID string, payload map[string]any) error
	DeleteUser(ctx context.Context, userID string) error
}

// settleTimeout bounds the store writes that record an execution
// outcome. It is deliberately separate from the operation timeout: a
// provider call that timed out must still get its failure recorded.
const settleTimeout = 10 * time.Second

// OrchestratorConfig holds the parameters for NewOrchestrator. Queue,
// Monitor, and Provider are required; everything else defaults.
type OrchestratorConfig struct {
	Queue    *Queue
	Monitor  *Monitor
	Provider IdentityProvider

	// Clock defaults to the system clock.
	Clock clock.Clock

	// Logger defaults to discard.
	Logger *slog.Logger

	// Registry receives the worker gauge. Nil disables metrics.
	Registry *metrics.Registry

	// RecordRemoteID, when set, is invoked after a successful CREATE
	// with the provider-assigned remote id. Failures are logged and
	// do not fail the operation.
	RecordRemoteID func(ctx context.Context, userID, remoteID string) error

	// Concurrency is the per-tick execution fan-out. Defaults to 5.
	Concurrency int

	// PollInterval is the worker tick cadence. Defaults to 5s.
	PollInterval time.Duration

	// OperationTimeout bounds each provider call. Defaults to 30s.
	OperationTimeout time.Duration

	// ShutdownGrace bounds how long StopWorker waits for in-flight
	// executions. Defaults to 5s.
	ShutdownGrace time.Duration
}

// Orchestrator owns the reconciliation worker: it accepts user
// mutations, runs the poll loop that drains the queue against the
// identity provider, and exposes the combined status surface.
type Orchestrator struct {
	queue          *Queue
	monitor        *Monitor
	provider       IdentityProvider
	clk            clock.Clock
	logger         *slog.Logger
	registry       *metrics.Registry
	recordRemoteID func(ctx context.Context, userID, remoteID string) error

	concurrency      int
	pollInterval     time.Duration
	operationTimeout time.Duration
	shutdownGrace    time.Duration

	shuttingDown atomic.Bool
	inflight     sync.WaitGroup

	runMu   sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	disposeOnce sync.Once
}

// NewOrchestrator constructs an orchestrator over the given queue,
// monitor, and provider adapter.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Queue == nil {
		return nil, errors.New("reconcile: OrchestratorConfig.Queue is required")
	}
	if cfg.Monitor == nil {
		return nil, errors.New("reconcile: OrchestratorConfig.Monitor is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("reconcile: OrchestratorConfig.Provider is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	return &Orchestrator{
		queue:            cfg.Queue,
		monitor:          cfg.Monitor,
		provider:         cfg.Provider,
		clk:              cfg.Clock,
		logger:           cfg.Logger,
		registry:         cfg.Registry,
		recordRemoteID:   cfg.RecordRemoteID,
		concurrency:      cfg.Concurrency,
		pollInterval:     cfg.PollInterval,
		operationTimeout: cfg.OperationTimeout,
		shutdownGrace:    cfg.ShutdownGrace,
	}, nil
}

// --- enqueue surface ---

// QueueUserCreate enqueues a CREATE for the user. Returns once the
// operation is persisted.
func (o *Orchestrator) QueueUserCreate(ctx context.Context, userID string, data map[string]any) (string, error) {
	return o.queue.Enqueue(ctx, userID, OpCreate, data, PriorityCreate)
}

// QueueUserUpdate enqueues an UPDATE for the user.
func (o *Orchestrator) QueueUserUpdate(ctx context.Context, userID string, data map[string]any) (string, error) {
	return o.queue.Enqueue(ctx, userID, OpUpdate, data, PriorityUpdate)
}

// QueueUserDelete enqueues a DELETE for the user.
func (o *Orchestrator) QueueUserDelete(ctx context.Context, userID string) (string, error) {
	return o.queue.Enqueue(ctx, userID, OpDelete, nil, PriorityDelete)
}

// --- worker lifecycle ---

// StartWorker starts the polling worker goroutine. A worker that is
// already running is left alone.
func (o *Orchestrator) StartWorker() {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.running || o.shuttingDown.Load() {
		return
	}
	o.running = true
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	go o.runWorker(o.stop, o.done)

	o.registry.Set("seam_worker_running", nil, 1)
	o.logger.Info("worker started",
		"concurrency", o.concurrency, "poll_interval", o.pollInterval)
}

// StopWorker stops polling and the monitor's periodic checks, then
// waits up to the shutdown grace for in-flight executions to settle.
// Returns whether the drain completed in time.
func (o *Orchestrator) StopWorker() bool {
	o.shuttingDown.Store(true)

	o.runMu.Lock()
	var done chan struct{}
	if o.running {
		o.running = false
		close(o.stop)
		done = o.done
	}
	o.runMu.Unlock()

	o.monitor.StopHealthChecks()

	// The poll goroutine can be mid-tick, blocked on its batch join,
	// so its exit and the in-flight drain are waited together under
	// one grace window.
	drained := make(chan struct{})
	go func() {
		if done != nil {
			<-done
		}
		o.inflight.Wait()
		close(drained)
	}()

	var clean bool
	select {
	case <-drained:
		clean = true
	case <-o.clk.After(o.shutdownGrace):
	}

	o.registry.Set("seam_worker_running", nil, 0)
	if clean {
		o.logger.Info("worker stopped")
	} else {
		o.logger.Warn("worker stopped with operations in flight", "grace", o.shutdownGrace)
	}
	return clean
}

// Dispose shuts the orchestrator down. Safe to call repeatedly; only
// the first call does anything.
func (o *Orchestrator) Dispose() {
	o.disposeOnce.Do(func() { o.StopWorker() })
}

func (o *Orchestrator) runWorker(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := o.clk.NewTicker(o.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if o.shuttingDown.Load() {
				continue
			}
			o.tick()
		}
	}
}

// tick claims up to Concurrency ready operations and executes them in
// parallel, joining the whole batch before returning. Every claimed
// operation settles through Complete or Fail regardless of how its
// siblings fare. Errors are contained here; the next tick starts
// fresh.
func (o *Orchestrator) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	var batch sync.WaitGroup
	for n := 0; n < o.concurrency; n++ {
		op, err := o.queue.Dequeue(ctx)
		if err != nil {
			o.logger.Error("dequeue failed, ending tick", "error", err)
			break
		}
		if op == nil {
			break
		}
		o.inflight.Add(1)
		batch.Add(1)
		go func() {
			defer o.inflight.Done()
			defer batch.Done()
			o.execute(op)
		}()
	}
	batch.Wait()
}

// execute runs one operation against the provider and settles it.
// Panics are contained and settle as non-recoverable failures.
func (o *Orchestrator) execute(op *Operation) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("operation execution panicked",
				"operation_id", op.ID, "user_id", op.UserID, "type", op.Type,
				"panic", r, "stack", string(debug.Stack()))
			panicErr := fmt.Errorf("%w: panic: %v", ErrNonRecoverable, r)
			o.monitor.RecordSyncFailure(op, panicErr, 0)
			ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
			defer cancel()
			if err := o.queue.Fail(ctx, op.ID, panicErr, false); err != nil {
				o.logger.Error("failing panicked operation", "operation_id", op.ID, "error", err)
			}
		}
	}()

	opCtx, cancel := context.WithTimeout(context.Background(), o.operationTimeout)
	defer cancel()

	start := o.clk.Now()
	remoteID, opErr := o.dispatch(opCtx, op)
	duration := o.clk.Since(start)

	// Outcomes are settled under their own deadline: a provider call
	// that timed out must still get recorded.
	settleCtx, settleCancel := context.WithTimeout(context.Background(), settleTimeout)
	defer settleCancel()

	if opErr != nil {
		recoverable := Recoverable(opErr)
		o.monitor.RecordSyncFailure(op, opErr, duration)
		if err := o.queue.Fail(settleCtx, op.ID, opErr, recoverable); err != nil {
			o.logger.Error("failing operation", "operation_id", op.ID, "error", err)
		}
		return
	}

	if op.Type == OpCreate && remoteID != "" && o.recordRemoteID != nil {
		if err := o.recordRemoteID(settleCtx, op.UserID, remoteID); err != nil {
			o.logger.Warn("recording remote id",
				"user_id", op.UserID, "remote_id", remoteID, "error", err)
		}
	}
	o.monitor.RecordSyncSuccess(op, duration)
	if err := o.queue.Complete(settleCtx, op.ID); err != nil {
		o.logger.Error("completing operation", "operation_id", op.ID, "error", err)
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, op *Operation) (string, error) {
	switch op.Type {
	case OpCreate:
		return o.provider.CreateUser(ctx, op.Data)
	case OpUpdate:
		return "", o.provider.UpdateUser(ctx, op.UserID, op.Data)
	case OpDelete:
		return "", o.provider.DeleteUser(ctx, op.UserID)
	default:
		return "", fmt.Errorf("%w: unknown operation type %q", ErrNonRecoverable, op.Type)
	}
}

// --- status surface ---

// UserSyncStatus reports where a user stands with the provider.
func (o *Orchestrator) UserSyncStatus(ctx context.Context, userID string) (*UserSyncStatus, error) {
	return o.queue.UserSyncStatus(ctx, userID)
}

// HealthStatus reports combined queue and sync health.
func (o *Orchestrator) HealthStatus(ctx context.Context) HealthStatus {
	return o.monitor.OverallHealth(ctx)
}

// QueueStats reports queue counts and lifetime counters.
func (o *Orchestrator) QueueStats(ctx context.Context) (QueueStats, error) {
	return o.queue.Stats(ctx)
}

// RetryFailedOperations moves up to limit dead-lettered operations
// back into the queue.
func (o *Orchestrator) RetryFailedOperations(ctx context.Context, limit int) (int, error) {
	return o.queue.RequeueFailed(ctx, limit)
}

// ClearFailedOperations drops every dead-lettered operation.
func (o *Orchestrator) ClearFailedOperations(ctx context.Context) (int, error) {
	return o.queue.ClearFailed(ctx)
}
