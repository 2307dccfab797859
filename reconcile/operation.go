// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OpType is the kind of reconciliation an operation performs against
// the identity provider.
type OpType string

const (
	OpCreate OpType = "CREATE"
	OpUpdate OpType = "UPDATE"
	OpDelete OpType = "DELETE"
)

// Status is an operation's position in its lifecycle. Transitions are
// driven exclusively by Dequeue, Complete, and Fail:
//
//	PENDING → PROCESSING → COMPLETED
//	PROCESSING → RETRYING → PROCESSING (once ScheduledFor elapses)
//	PROCESSING → FAILED (terminal, dead-lettered)
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusRetrying   Status = "RETRYING"
	StatusFailed     Status = "FAILED"
)

// Dequeue priorities for the three operation types. Deletes jump the
// queue ahead of creates, which jump ahead of updates: removing access
// is the most urgent reconciliation, and an update to a user the
// provider has never seen fails anyway.
const (
	PriorityUpdate = 0
	PriorityCreate = 1
	PriorityDelete = 2
)

// DefaultPriority returns the standard dequeue priority for an
// operation type.
func DefaultPriority(t OpType) int {
	switch t {
	case OpDelete:
		return PriorityDelete
	case OpCreate:
		return PriorityCreate
	default:
		return PriorityUpdate
	}
}

// Operation is the unit of reconciliation work. Instances are created
// by Enqueue and persisted in the store; every state transition
// rewrites the stored record.
type Operation struct {
	// ID is globally unique and generation-time ordered: a
	// zero-padded millisecond timestamp, a dash, and a random suffix.
	// IDs are never reused.
	ID string `json:"id"`

	// UserID is the local user the operation reconciles.
	UserID string `json:"user_id"`

	Type OpType `json:"type"`

	// Data is the provider payload. Nil exactly for DELETE.
	Data map[string]any `json:"data,omitempty"`

	// Attempt counts failed executions. Starts at zero and only
	// increases, except for an operator requeue which resets it.
	Attempt int `json:"attempt"`

	// MaxAttempts is the ceiling on Attempt before the operation is
	// dead-lettered.
	MaxAttempts int `json:"max_attempts"`

	CreatedAt time.Time `json:"created_at"`

	// ScheduledFor is the earliest time the operation may be
	// dequeued: enqueue time for fresh operations, a backoff deadline
	// for retries.
	ScheduledFor time.Time `json:"scheduled_for"`

	// LastError is the most recent failure message, if any.
	LastError string `json:"last_error,omitempty"`

	Status Status `json:"status"`

	// Priority orders dequeues among non-retry operations; higher
	// dequeues first.
	Priority int `json:"priority"`

	// ProcessingStartedAt is stamped by Dequeue and zeroed again on
	// retry; Complete derives the execution duration from it.
	ProcessingStartedAt time.Time `json:"processing_started_at,omitzero"`
}

// NewOperationID generates an operation id: the zero-padded UnixMilli
// of now, a dash, and 8 random bytes in hex. The timestamp prefix
// makes lexicographic order match creation order. Panics if the
// system entropy source fails, a system-level failure no caller can
// recover from.
func NewOperationID(now time.Time) string {
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		panic("reconcile: failed to generate operation id: " + err.Error())
	}
	return fmt.Sprintf("%013d-%s", now.UnixMilli(), hex.EncodeToString(suffix[:]))
}

// operationIDTime recovers the creation time embedded in an operation
// id. Returns false for ids that do not carry the timestamp prefix.
func operationIDTime(id string) (time.Time, bool) {
	prefix, _, found := strings.Cut(id, "-")
	if !found {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
