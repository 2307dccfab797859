// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/seam-foundation/seam/lib/clock"
	"github.com/seam-foundation/seam/lib/metrics"
)

// ErrQueueFull is returned by Enqueue when pending plus retry-scheduled
// operations have reached the configured capacity. The caller decides
// whether to retry later; nothing is resubmitted automatically.
var ErrQueueFull = errors.New("reconciliation queue is full")

// Store is the set of store primitives the queue coordinates on. Every
// method must be atomic at the single-key level: LPop, ZPopMax, and
// ZRem are the claims that keep concurrent pollers from double-
// dequeuing an operation. *store.Client implements it.
type Store interface {
	RPush(ctx context.Context, key string, values ...string) error
	LPop(ctx context.Context, key string) (string, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZPopMax(ctx context.Context, key string) (string, float64, bool, error)
	ZRangeByScoreLimit(ctx context.Context, key string, min, max float64, count int64) ([]string, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SCard(ctx context.Context, key string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// Per-user sync status hashes expire after thirty days without a
// write for that user.
const userStatusTTL = 30 * 24 * time.Hour

// Stats hash fields (lifetime counters).
const (
	statTotal         = "total"
	statSucceeded     = "succeeded"
	statFailed        = "failed"
	statRetried       = "retried"
	statDurationSum   = "duration_millis_sum"
	statDurationCount = "duration_count"
)

// User status hash fields.
const (
	userFieldStatus       = "status"
	userFieldLastSyncedAt = "last_synced_at"
	userFieldLastSyncType = "last_sync_type"
	userFieldPendingOps   = "pending_ops"
	userFieldFailedOps    = "failed_ops"
	userFieldLastError    = "last_error"
)

// QueueStats is a point-in-time view of queue state plus the lifetime
// counters from the stats hash.
type QueueStats struct {
	// Pending counts operations waiting for their first dequeue, in
	// both the FIFO list and the priority set.
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Retrying   int64 `json:"retrying"`

	// Failed is the dead-letter list length.
	Failed int64 `json:"failed"`

	// Lifetime counters. TotalProcessed counts terminal outcomes
	// (completions plus dead-letterings); retries are counted
	// separately.
	TotalProcessed int64 `json:"total_processed"`
	TotalSucceeded int64 `json:"total_succeeded"`
	TotalFailed    int64 `json:"total_failed"`
	TotalRetried   int64 `json:"total_retried"`

	// AverageDurationMillis averages execution duration over
	// successful completions.
	AverageDurationMillis float64 `json:"average_duration_millis"`

	// OldestPendingAge is how long the oldest pending operation has
	// been waiting. Zero when nothing is pending.
	OldestPendingAge time.Duration `json:"oldest_pending_age"`
}

// UserSyncState is the per-user reconciliation state exposed to
// status queries.
type UserSyncState string

const (
	UserSynced   UserSyncState = "SYNCED"
	UserPending  UserSyncState = "PENDING"
	UserFailed   UserSyncState = "FAILED"
	UserRetrying UserSyncState = "RETRYING"
)

// UserSyncStatus summarizes where a user stands with the identity
// provider.
type UserSyncStatus struct {
	UserID       string        `json:"user_id"`
	State        UserSyncState `json:"state"`
	LastSyncedAt time.Time     `json:"last_synced_at,omitzero"`
	LastSyncType OpType        `json:"last_sync_type,omitempty"`
	PendingOps   int64         `json:"pending_ops"`
	FailedOps    int64         `json:"failed_ops"`
	LastError    string        `json:"last_error,omitempty"`
}

// QueueConfig holds the parameters for NewQueue. Store is required;
// everything else defaults.
type QueueConfig struct {
	Store Store

	// Clock defaults to the system clock.
	Clock clock.Clock

	// Logger defaults to discard.
	Logger *slog.Logger

	// Registry receives operation counters. Nil disables metrics.
	Registry *metrics.Registry

	// KeyPrefix namespaces every store key. Defaults to "seam".
	KeyPrefix string

	// MaxQueueSize caps pending plus retry-scheduled operations.
	// Defaults to 10000.
	MaxQueueSize int

	// MaxAttempts is the execution ceiling before an operation is
	// dead-lettered. Defaults to 3.
	MaxAttempts int

	// RetryBaseDelay and RetryMultiplier parameterize Backoff.
	// Defaults: 5s and 5.
	RetryBaseDelay  time.Duration
	RetryMultiplier float64

	// OperationTTL bounds how long an operation record lives in the
	// store. Defaults to 7 days.
	OperationTTL time.Duration

	// DeadLetterCap bounds the dead-letter list; the oldest entries
	// are evicted past it. Defaults to 1000.
	DeadLetterCap int
}

// Queue is the persistent, prioritized reconciliation work queue. All
// state lives in the store, so any number of processes can share one
// queue; the in-memory struct is just configuration.
type Queue struct {
	store    Store
	clk      clock.Clock
	logger   *slog.Logger
	registry *metrics.Registry

	maxQueueSize    int
	maxAttempts     int
	retryBaseDelay  time.Duration
	retryMultiplier float64
	operationTTL    time.Duration
	deadLetterCap   int

	pendingKey    string
	priorityKey   string
	retryKey      string
	processingKey string
	deadLetterKey string
	statsKey      string
	opPrefix      string
	userPrefix    string
}

// NewQueue constructs a queue over the given store.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Store == nil {
		return nil, errors.New("reconcile: QueueConfig.Store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "seam"
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 10000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 5 * time.Second
	}
	if cfg.RetryMultiplier < 1 {
		cfg.RetryMultiplier = 5
	}
	if cfg.OperationTTL <= 0 {
		cfg.OperationTTL = 7 * 24 * time.Hour
	}
	if cfg.DeadLetterCap <= 0 {
		cfg.DeadLetterCap = 1000
	}

	p := cfg.KeyPrefix
	return &Queue{
		store:           cfg.Store,
		clk:             cfg.Clock,
		logger:          cfg.Logger,
		registry:        cfg.Registry,
		maxQueueSize:    cfg.MaxQueueSize,
		maxAttempts:     cfg.MaxAttempts,
		retryBaseDelay:  cfg.RetryBaseDelay,
		retryMultiplier: cfg.RetryMultiplier,
		operationTTL:    cfg.OperationTTL,
		deadLetterCap:   cfg.DeadLetterCap,
		pendingKey:      p + ":queue:pending",
		priorityKey:     p + ":queue:priority",
		retryKey:        p + ":queue:retry",
		processingKey:   p + ":queue:processing",
		deadLetterKey:   p + ":queue:deadletter",
		statsKey:        p + ":stats",
		opPrefix:        p + ":op:",
		userPrefix:      p + ":user:",
	}, nil
}

func (q *Queue) opKey(id string) string       { return q.opPrefix + id }
func (q *Queue) userKey(userID string) string { return q.userPrefix + userID }

// Enqueue validates and persists a new operation, indexes it for
// dequeue, and returns its id. Returns ErrQueueFull at capacity
// without mutating any state.
func (q *Queue) Enqueue(ctx context.Context, userID string, opType OpType, data map[string]any, priority int) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	switch opType {
	case OpCreate, OpUpdate:
		if data == nil {
			return "", fmt.Errorf("%s operations require a payload", opType)
		}
	case OpDelete:
		if data != nil {
			return "", errors.New("DELETE operations carry no payload")
		}
	default:
		return "", fmt.Errorf("unknown operation type %q", opType)
	}
	if priority < 0 {
		return "", fmt.Errorf("priority must be non-negative, got %d", priority)
	}

	size, err := q.queueSize(ctx)
	if err != nil {
		return "", err
	}
	if size >= int64(q.maxQueueSize) {
		return "", fmt.Errorf("%w: %d operations (max %d)", ErrQueueFull, size, q.maxQueueSize)
	}

	now := q.clk.Now()
	op := &Operation{
		ID:           NewOperationID(now),
		UserID:       userID,
		Type:         opType,
		Data:         data,
		MaxAttempts:  q.maxAttempts,
		CreatedAt:    now,
		ScheduledFor: now,
		Status:       StatusPending,
		Priority:     priority,
	}

	if err := q.writeRecord(ctx, op); err != nil {
		return "", err
	}
	if priority > 0 {
		err = q.store.ZAdd(ctx, q.priorityKey, float64(priority), op.ID)
	} else {
		err = q.store.RPush(ctx, q.pendingKey, op.ID)
	}
	if err != nil {
		return "", fmt.Errorf("indexing operation %s: %w", op.ID, err)
	}

	q.updateUserStatus(ctx, userID, userStatusUpdate{state: UserPending, pendingDelta: 1})
	q.registry.Add("seam_ops_enqueued_total", map[string]string{"type": string(opType)}, 1)
	q.logger.Debug("operation enqueued",
		"operation_id", op.ID, "user_id", userID, "type", opType, "priority", priority)
	return op.ID, nil
}

// Dequeue claims the next operation to execute: the longest-overdue
// retry whose backoff has elapsed, else the highest-priority pending
// operation, else the oldest FIFO pending operation. The claimed
// operation moves into the processing set with Status=PROCESSING.
// Returns (nil, nil) when nothing is ready.
func (q *Queue) Dequeue(ctx context.Context) (*Operation, error) {
	nowMillis := float64(q.clk.Now().UnixMilli())

	for {
		ids, err := q.store.ZRangeByScoreLimit(ctx, q.retryKey, 0, nowMillis, 1)
		if err != nil {
			return nil, fmt.Errorf("scanning retry set: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		removed, err := q.store.ZRem(ctx, q.retryKey, ids[0])
		if err != nil {
			return nil, fmt.Errorf("claiming retry operation %s: %w", ids[0], err)
		}
		if removed == 0 {
			// Another poller claimed it between the range and the
			// remove; try the next candidate.
			continue
		}
		op, err := q.beginProcessing(ctx, ids[0])
		if err != nil || op != nil {
			return op, err
		}
	}

	for {
		id, _, ok, err := q.store.ZPopMax(ctx, q.priorityKey)
		if err != nil {
			return nil, fmt.Errorf("popping priority operation: %w", err)
		}
		if !ok {
			break
		}
		op, err := q.beginProcessing(ctx, id)
		if err != nil || op != nil {
			return op, err
		}
	}

	for {
		id, ok, err := q.store.LPop(ctx, q.pendingKey)
		if err != nil {
			return nil, fmt.Errorf("popping pending operation: %w", err)
		}
		if !ok {
			break
		}
		op, err := q.beginProcessing(ctx, id)
		if err != nil || op != nil {
			return op, err
		}
	}

	return nil, nil
}

// beginProcessing finishes a claim: loads the record, moves it into
// the processing set, and stamps the processing start. Returns
// (nil, nil) when the record is gone or undecodable, in which case
// the id has already been dropped from its structure and the caller
// should try the next candidate.
func (q *Queue) beginProcessing(ctx context.Context, id string) (*Operation, error) {
	op, found, err := q.loadRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading operation %s: %w", id, err)
	}
	if !found {
		q.logger.Warn("dequeued id has no record, dropping", "operation_id", id)
		return nil, nil
	}

	op.Status = StatusProcessing
	op.ProcessingStartedAt = q.clk.Now()
	if err := q.store.SAdd(ctx, q.processingKey, id); err != nil {
		return nil, fmt.Errorf("marking operation %s processing: %w", id, err)
	}
	if err := q.writeRecord(ctx, op); err != nil {
		return nil, err
	}

	q.logger.Debug("operation dequeued",
		"operation_id", id, "user_id", op.UserID, "type", op.Type, "attempt", op.Attempt)
	return op, nil
}

// Complete finishes an operation after a successful provider call:
// the record is deleted, the user's status becomes SYNCED, and the
// lifetime success counters advance. Completing an id that no longer
// exists is a no-op, so double completion and completion after record
// expiry are safe.
func (q *Queue) Complete(ctx context.Context, id string) error {
	op, found, err := q.loadRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("loading operation %s: %w", id, err)
	}
	if !found {
		q.store.SRem(ctx, q.processingKey, id)
		return nil
	}

	if _, err := q.store.SRem(ctx, q.processingKey, id); err != nil {
		return fmt.Errorf("releasing operation %s: %w", id, err)
	}

	now := q.clk.Now()
	var duration time.Duration
	if !op.ProcessingStartedAt.IsZero() {
		duration = now.Sub(op.ProcessingStartedAt)
	}

	q.updateUserStatus(ctx, op.UserID, userStatusUpdate{
		state:        UserSynced,
		syncedAt:     now,
		syncType:     op.Type,
		pendingDelta: -1,
		clearError:   true,
	})

	if _, err := q.store.Del(ctx, q.opKey(id)); err != nil {
		return fmt.Errorf("deleting operation %s: %w", id, err)
	}

	q.bumpStats(ctx, map[string]int64{
		statTotal:         1,
		statSucceeded:     1,
		statDurationSum:   duration.Milliseconds(),
		statDurationCount: 1,
	})
	q.registry.Add("seam_ops_completed_total", map[string]string{"type": string(op.Type)}, 1)
	q.logger.Debug("operation completed",
		"operation_id", id, "user_id", op.UserID, "type", op.Type,
		"duration_ms", duration.Milliseconds())
	return nil
}

// Fail records a failed execution. Recoverable failures with attempts
// remaining are scheduled for retry with exponential backoff;
// everything else is dead-lettered. Failing an id that no longer
// exists is a no-op.
func (q *Queue) Fail(ctx context.Context, id string, opErr error, recoverable bool) error {
	if opErr == nil {
		opErr = errors.New("unknown error")
	}

	op, found, err := q.loadRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("loading operation %s: %w", id, err)
	}
	if !found {
		q.store.SRem(ctx, q.processingKey, id)
		return nil
	}

	if _, err := q.store.SRem(ctx, q.processingKey, id); err != nil {
		return fmt.Errorf("releasing operation %s: %w", id, err)
	}

	now := q.clk.Now()
	op.Attempt++
	op.LastError = opErr.Error()
	op.ProcessingStartedAt = time.Time{}
	q.registry.Add("seam_ops_failed_total",
		map[string]string{"type": string(op.Type), "error_kind": ErrorKind(opErr)}, 1)

	if recoverable && op.Attempt < op.MaxAttempts {
		delay := Backoff(q.retryBaseDelay, q.retryMultiplier, op.Attempt)
		op.Status = StatusRetrying
		op.ScheduledFor = now.Add(delay)
		if err := q.writeRecord(ctx, op); err != nil {
			return err
		}
		if err := q.store.ZAdd(ctx, q.retryKey, float64(op.ScheduledFor.UnixMilli()), id); err != nil {
			return fmt.Errorf("scheduling retry for operation %s: %w", id, err)
		}

		q.bumpStats(ctx, map[string]int64{statRetried: 1})
		q.updateUserStatus(ctx, op.UserID, userStatusUpdate{state: UserRetrying, lastError: op.LastError})
		q.registry.Add("seam_ops_retried_total", map[string]string{"type": string(op.Type)}, 1)
		q.logger.Debug("operation scheduled for retry",
			"operation_id", id, "user_id", op.UserID, "type", op.Type,
			"attempt", op.Attempt, "delay", delay, "error", opErr)
		return nil
	}

	op.Status = StatusFailed
	if err := q.writeRecord(ctx, op); err != nil {
		return err
	}
	if err := q.store.RPush(ctx, q.deadLetterKey, id); err != nil {
		return fmt.Errorf("dead-lettering operation %s: %w", id, err)
	}
	q.trimDeadLetter(ctx)

	q.bumpStats(ctx, map[string]int64{statTotal: 1, statFailed: 1})
	q.updateUserStatus(ctx, op.UserID, userStatusUpdate{
		state:        UserFailed,
		pendingDelta: -1,
		failedDelta:  1,
		lastError:    op.LastError,
	})
	q.registry.Add("seam_ops_dead_lettered_total", map[string]string{"type": string(op.Type)}, 1)
	q.logger.Warn("operation dead-lettered",
		"operation_id", id, "user_id", op.UserID, "type", op.Type,
		"attempt", op.Attempt, "recoverable", recoverable, "error", opErr)
	return nil
}

// Stats reads the point-in-time queue counts and lifetime counters.
func (q *Queue) Stats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats

	fifo, err := q.store.LLen(ctx, q.pendingKey)
	if err != nil {
		return stats, fmt.Errorf("reading queue stats: %w", err)
	}
	prio, err := q.store.ZCard(ctx, q.priorityKey)
	if err != nil {
		return stats, fmt.Errorf("reading queue stats: %w", err)
	}
	retrying, err := q.store.ZCard(ctx, q.retryKey)
	if err != nil {
		return stats, fmt.Errorf("reading queue stats: %w", err)
	}
	processing, err := q.store.SCard(ctx, q.processingKey)
	if err != nil {
		return stats, fmt.Errorf("reading queue stats: %w", err)
	}
	failed, err := q.store.LLen(ctx, q.deadLetterKey)
	if err != nil {
		return stats, fmt.Errorf("reading queue stats: %w", err)
	}
	lifetime, err := q.store.HGetAll(ctx, q.statsKey)
	if err != nil {
		return stats, fmt.Errorf("reading queue stats: %w", err)
	}

	stats.Pending = fifo + prio
	stats.Processing = processing
	stats.Retrying = retrying
	stats.Failed = failed
	stats.TotalProcessed = hashInt(lifetime, statTotal)
	stats.TotalSucceeded = hashInt(lifetime, statSucceeded)
	stats.TotalFailed = hashInt(lifetime, statFailed)
	stats.TotalRetried = hashInt(lifetime, statRetried)
	if count := hashInt(lifetime, statDurationCount); count > 0 {
		stats.AverageDurationMillis = float64(hashInt(lifetime, statDurationSum)) / float64(count)
	}
	stats.OldestPendingAge = q.oldestPendingAge(ctx, q.clk.Now())
	return stats, nil
}

// oldestPendingAge derives the age of the oldest pending operation
// from the creation timestamps embedded in ids: the FIFO head, and the
// first member of the priority set. The priority probe looks at the
// lowest priority class, which drains last and therefore holds the
// stalest entries.
func (q *Queue) oldestPendingAge(ctx context.Context, now time.Time) time.Duration {
	var oldest time.Time
	if heads, err := q.store.LRange(ctx, q.pendingKey, 0, 0); err == nil && len(heads) == 1 {
		if t, ok := operationIDTime(heads[0]); ok {
			oldest = t
		}
	}
	if members, err := q.store.ZRange(ctx, q.priorityKey, 0, 0); err == nil && len(members) == 1 {
		if t, ok := operationIDTime(members[0]); ok && (oldest.IsZero() || t.Before(oldest)) {
			oldest = t
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return max(now.Sub(oldest), 0)
}

// PendingOperations peeks at up to limit pending operations without
// claiming them: FIFO entries first, then priority entries. Store
// failures are logged and produce an empty result rather than an
// error.
func (q *Queue) PendingOperations(ctx context.Context, limit int) ([]*Operation, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	ids, err := q.store.LRange(ctx, q.pendingKey, 0, int64(limit-1))
	if err != nil {
		q.logger.Error("listing pending operations", "error", err)
		return nil, nil
	}
	if len(ids) < limit {
		more, err := q.store.ZRange(ctx, q.priorityKey, 0, int64(limit-len(ids)-1))
		if err != nil {
			q.logger.Error("listing priority operations", "error", err)
		} else {
			ids = append(ids, more...)
		}
	}
	return q.loadAll(ctx, ids), nil
}

// FailedOperations peeks at up to limit dead-letter entries, oldest
// first. Store failures are logged and produce an empty result.
func (q *Queue) FailedOperations(ctx context.Context, limit int) ([]*Operation, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	ids, err := q.store.LRange(ctx, q.deadLetterKey, 0, int64(limit-1))
	if err != nil {
		q.logger.Error("listing failed operations", "error", err)
		return nil, nil
	}
	return q.loadAll(ctx, ids), nil
}

// RequeueFailed moves up to limit dead-letter entries back into the
// queue with their attempt counter reset. Requeueing stops early when
// the queue reaches capacity. Returns how many were requeued.
func (q *Queue) RequeueFailed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, errors.New("limit must be positive")
	}

	size, err := q.queueSize(ctx)
	if err != nil {
		return 0, err
	}
	budget := min(int64(limit), int64(q.maxQueueSize)-size)
	if budget <= 0 {
		q.logger.Info("queue at capacity, not requeuing failed operations")
		return 0, nil
	}

	requeued := 0
	for int64(requeued) < budget {
		id, ok, err := q.store.LPop(ctx, q.deadLetterKey)
		if err != nil {
			return requeued, fmt.Errorf("popping dead-letter entry: %w", err)
		}
		if !ok {
			break
		}
		op, found, err := q.loadRecord(ctx, id)
		if err != nil {
			return requeued, fmt.Errorf("loading operation %s: %w", id, err)
		}
		if !found {
			q.logger.Warn("dead-letter record expired, skipping", "operation_id", id)
			continue
		}

		op.Attempt = 0
		op.Status = StatusPending
		op.ScheduledFor = q.clk.Now()
		op.LastError = ""
		op.ProcessingStartedAt = time.Time{}
		if err := q.writeRecord(ctx, op); err != nil {
			return requeued, err
		}
		if op.Priority > 0 {
			err = q.store.ZAdd(ctx, q.priorityKey, float64(op.Priority), id)
		} else {
			err = q.store.RPush(ctx, q.pendingKey, id)
		}
		if err != nil {
			return requeued, fmt.Errorf("indexing operation %s: %w", id, err)
		}

		q.updateUserStatus(ctx, op.UserID, userStatusUpdate{
			state:        UserPending,
			pendingDelta: 1,
			failedDelta:  -1,
			clearError:   true,
		})
		requeued++
	}

	if requeued > 0 {
		q.logger.Info("requeued failed operations", "count", requeued)
	}
	return requeued, nil
}

// ClearFailed deletes every dead-letter entry and its record. Returns
// how many entries were cleared.
func (q *Queue) ClearFailed(ctx context.Context) (int, error) {
	ids, err := q.store.LRange(ctx, q.deadLetterKey, 0, -1)
	if err != nil {
		return 0, fmt.Errorf("listing dead-letter entries: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, q.opKey(id))
	}
	keys = append(keys, q.deadLetterKey)
	if _, err := q.store.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("clearing dead-letter entries: %w", err)
	}

	if len(ids) > 0 {
		q.logger.Info("cleared dead-letter operations", "count", len(ids))
	}
	return len(ids), nil
}

// Clear deletes every queue structure, record, and the lifetime
// counters. Per-user status hashes are left to their TTL.
func (q *Queue) Clear(ctx context.Context) error {
	var ids []string

	pending, err := q.store.LRange(ctx, q.pendingKey, 0, -1)
	if err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}
	ids = append(ids, pending...)

	priority, err := q.store.ZRange(ctx, q.priorityKey, 0, -1)
	if err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}
	ids = append(ids, priority...)

	retrying, err := q.store.ZRange(ctx, q.retryKey, 0, -1)
	if err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}
	ids = append(ids, retrying...)

	processing, err := q.store.SMembers(ctx, q.processingKey)
	if err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}
	ids = append(ids, processing...)

	failed, err := q.store.LRange(ctx, q.deadLetterKey, 0, -1)
	if err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}
	ids = append(ids, failed...)

	keys := make([]string, 0, len(ids)+6)
	for _, id := range ids {
		keys = append(keys, q.opKey(id))
	}
	keys = append(keys,
		q.pendingKey, q.priorityKey, q.retryKey,
		q.processingKey, q.deadLetterKey, q.statsKey)
	if _, err := q.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}

	q.logger.Info("queue cleared", "operations", len(ids))
	return nil
}

// UserSyncStatus reads a user's sync status. Returns (nil, nil) when
// the user has no recorded status; store failures are logged and read
// as not found.
func (q *Queue) UserSyncStatus(ctx context.Context, userID string) (*UserSyncStatus, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	fields, err := q.store.HGetAll(ctx, q.userKey(userID))
	if err != nil {
		q.logger.Error("reading user sync status", "user_id", userID, "error", err)
		return nil, nil
	}
	if len(fields) == 0 {
		return nil, nil
	}

	status := &UserSyncStatus{
		UserID:       userID,
		State:        UserSyncState(fields[userFieldStatus]),
		LastSyncType: OpType(fields[userFieldLastSyncType]),
		PendingOps:   max(hashInt(fields, userFieldPendingOps), 0),
		FailedOps:    max(hashInt(fields, userFieldFailedOps), 0),
		LastError:    fields[userFieldLastError],
	}
	if ms := hashInt(fields, userFieldLastSyncedAt); ms > 0 {
		status.LastSyncedAt = time.UnixMilli(ms)
	}
	return status, nil
}

// HealthCheck verifies the store answers both a ping and a read.
func (q *Queue) HealthCheck(ctx context.Context) error {
	if err := q.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	if _, err := q.store.LLen(ctx, q.pendingKey); err != nil {
		return fmt.Errorf("store probe read failed: %w", err)
	}
	return nil
}

// --- internals ---

func (q *Queue) queueSize(ctx context.Context) (int64, error) {
	fifo, err := q.store.LLen(ctx, q.pendingKey)
	if err != nil {
		return 0, fmt.Errorf("counting pending operations: %w", err)
	}
	prio, err := q.store.ZCard(ctx, q.priorityKey)
	if err != nil {
		return 0, fmt.Errorf("counting priority operations: %w", err)
	}
	retrying, err := q.store.ZCard(ctx, q.retryKey)
	if err != nil {
		return 0, fmt.Errorf("counting retry operations: %w", err)
	}
	return fifo + prio + retrying, nil
}

func (q *Queue) writeRecord(ctx context.Context, op *Operation) error {
	b, err := encodeOperation(op)
	if err != nil {
		return err
	}
	if err := q.store.SetWithTTL(ctx, q.opKey(op.ID), b, q.operationTTL); err != nil {
		return fmt.Errorf("storing operation %s: %w", op.ID, err)
	}
	return nil
}

// loadRecord reads and decodes an operation record. Undecodable
// records are deleted and logged, then reported as not found:
// corruption quarantines one record, never the queue.
func (q *Queue) loadRecord(ctx context.Context, id string) (*Operation, bool, error) {
	b, found, err := q.store.Get(ctx, q.opKey(id))
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	op, err := decodeOperation(b)
	if err != nil {
		q.logger.Warn("dropping undecodable operation record", "operation_id", id, "error", err)
		q.store.Del(ctx, q.opKey(id))
		return nil, false, nil
	}
	return op, true, nil
}

func (q *Queue) loadAll(ctx context.Context, ids []string) []*Operation {
	ops := make([]*Operation, 0, len(ids))
	for _, id := range ids {
		op, found, err := q.loadRecord(ctx, id)
		if err != nil {
			q.logger.Error("loading operation", "operation_id", id, "error", err)
			continue
		}
		if !found {
			continue
		}
		ops = append(ops, op)
	}
	return ops
}

// trimDeadLetter evicts the oldest dead-letter entries past the cap.
// Best-effort: failures are logged, never propagated.
func (q *Queue) trimDeadLetter(ctx context.Context) {
	length, err := q.store.LLen(ctx, q.deadLetterKey)
	if err != nil {
		q.logger.Error("checking dead-letter length", "error", err)
		return
	}
	if length <= int64(q.deadLetterCap) {
		return
	}
	if err := q.store.LTrim(ctx, q.deadLetterKey, -int64(q.deadLetterCap), -1); err != nil {
		q.logger.Error("trimming dead-letter list", "error", err)
		return
	}
	q.logger.Info("dead-letter list trimmed",
		"evicted", length-int64(q.deadLetterCap), "cap", q.deadLetterCap)
}

// bumpStats advances lifetime counters. Best-effort: failures are
// logged, never propagated.
func (q *Queue) bumpStats(ctx context.Context, fields map[string]int64) {
	for field, delta := range fields {
		if _, err := q.store.HIncrBy(ctx, q.statsKey, field, delta); err != nil {
			q.logger.Warn("updating queue stats", "field", field, "error", err)
		}
	}
}

// userStatusUpdate describes one write to a user's status hash.
type userStatusUpdate struct {
	state        UserSyncState
	syncedAt     time.Time
	syncType     OpType
	pendingDelta int64
	failedDelta  int64
	lastError    string
	clearError   bool
}

// updateUserStatus applies an update to the per-user status hash and
// refreshes its TTL. Best-effort: the status is advisory, so failures
// are logged rather than failing the operation that triggered them.
func (q *Queue) updateUserStatus(ctx context.Context, userID string, u userStatusUpdate) {
	key := q.userKey(userID)

	fields := map[string]string{userFieldStatus: string(u.state)}
	if !u.syncedAt.IsZero() {
		fields[userFieldLastSyncedAt] = strconv.FormatInt(u.syncedAt.UnixMilli(), 10)
		fields[userFieldLastSyncType] = string(u.syncType)
	}
	if u.clearError {
		fields[userFieldLastError] = ""
	} else if u.lastError != "" {
		fields[userFieldLastError] = u.lastError
	}

	if err := q.store.HSet(ctx, key, fields); err != nil {
		q.logger.Warn("updating user sync status", "user_id", userID, "error", err)
		return
	}
	if u.pendingDelta != 0 {
		if _, err := q.store.HIncrBy(ctx, key, userFieldPendingOps, u.pendingDelta); err != nil {
			q.logger.Warn("updating user pending count", "user_id", userID, "error", err)
		}
	}
	if u.failedDelta != 0 {
		if _, err := q.store.HIncrBy(ctx, key, userFieldFailedOps, u.failedDelta); err != nil {
			q.logger.Warn("updating user failed count", "user_id", userID, "error", err)
		}
	}
	if err := q.store.Expire(ctx, key, userStatusTTL); err != nil {
		q.logger.Warn("refreshing user status expiry", "user_id", userID, "error", err)
	}
}

func hashInt(m map[string]string, field string) int64 {
	v, err := strconv.ParseInt(m[field], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
