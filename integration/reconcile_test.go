// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package integration_test

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/seam-foundation/seam/reconcile"
	"github.com/seam-foundation/seam/userdb"
)

const convergeTimeout = 10 * time.Second

// TestUserLifecycle drives one user through create, update, and
// delete, and verifies both sides converge: the provider sees every
// mutation, and the local database records the provider-assigned
// remote id.
func TestUserLifecycle(t *testing.T) {
	t.Parallel()

	stack := newStack(t)
	ctx := context.Background()

	user, err := stack.db.CreateUser(ctx, userdb.User{
		ID:          "user-1",
		Email:       "user-1@example.com",
		DisplayName: "User One",
		Active:      true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	payload := map[string]any{"id": user.ID, "email": user.Email, "display_name": user.DisplayName}
	if _, err := stack.orch.QueueUserCreate(ctx, user.ID, payload); err != nil {
		t.Fatalf("QueueUserCreate: %v", err)
	}

	waitFor(t, convergeTimeout, "provider to see the created user", func() (bool, error) {
		_, ok := stack.idp.user(user.ID)
		return ok, nil
	})
	waitFor(t, convergeTimeout, "remote id to be recorded locally", func() (bool, error) {
		stored, err := stack.db.GetUser(ctx, user.ID)
		if err != nil {
			return false, err
		}
		return stored.RemoteID != "", nil
	})
	stored, err := stack.db.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !strings.HasPrefix(stored.RemoteID, "idp-") {
		t.Errorf("remote id = %q, want provider-assigned idp-* id", stored.RemoteID)
	}

	// Update propagates the new attributes.
	payload["email"] = "user-one@example.com"
	if _, err := stack.orch.QueueUserUpdate(ctx, user.ID, payload); err != nil {
		t.Fatalf("QueueUserUpdate: %v", err)
	}
	waitFor(t, convergeTimeout, "provider to see the updated email", func() (bool, error) {
		remote, ok := stack.idp.user(user.ID)
		return ok && remote["email"] == "user-one@example.com", nil
	})

	// Delete removes the remote user.
	if _, err := stack.orch.QueueUserDelete(ctx, user.ID); err != nil {
		t.Fatalf("QueueUserDelete: %v", err)
	}
	waitFor(t, convergeTimeout, "provider to drop the deleted user", func() (bool, error) {
		_, ok := stack.idp.user(user.ID)
		return !ok, nil
	})

	waitFor(t, convergeTimeout, "lifetime counters to settle", func() (bool, error) {
		stats, err := stack.queue.Stats(ctx)
		if err != nil {
			return false, err
		}
		return stats.TotalProcessed == 3, nil
	})
	stats, err := stack.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalSucceeded != 3 || stats.TotalFailed != 0 {
		t.Errorf("lifetime counters = %+v, want 3 succeeded and 0 failed", stats)
	}

	status, err := stack.orch.UserSyncStatus(ctx, user.ID)
	if err != nil {
		t.Fatalf("UserSyncStatus: %v", err)
	}
	if status == nil {
		t.Fatal("UserSyncStatus returned nil for a tracked user")
	}
	if status.State != reconcile.UserSynced {
		t.Errorf("state = %s, want %s", status.State, reconcile.UserSynced)
	}
	if status.LastSyncType != reconcile.OpDelete {
		t.Errorf("last sync type = %s, want %s", status.LastSyncType, reconcile.OpDelete)
	}
	if status.PendingOps != 0 {
		t.Errorf("pending ops = %d, want 0", status.PendingOps)
	}
}

// TestProviderOutageRetries injects two transient provider failures
// and verifies the operation retries through them and succeeds
// without operator involvement.
func TestProviderOutageRetries(t *testing.T) {
	t.Parallel()

	stack := newStack(t)
	ctx := context.Background()

	stack.idp.failNextRequests(2, http.StatusServiceUnavailable)

	payload := map[string]any{"id": "user-2", "email": "user-2@example.com"}
	if _, err := stack.orch.QueueUserCreate(ctx, "user-2", payload); err != nil {
		t.Fatalf("QueueUserCreate: %v", err)
	}

	waitFor(t, convergeTimeout, "create to succeed after the outage", func() (bool, error) {
		_, ok := stack.idp.user("user-2")
		return ok, nil
	})
	waitFor(t, convergeTimeout, "lifetime counters to settle", func() (bool, error) {
		stats, err := stack.queue.Stats(ctx)
		if err != nil {
			return false, err
		}
		return stats.TotalProcessed == 1, nil
	})

	stats, err := stack.queue.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalRetried != 2 {
		t.Errorf("TotalRetried = %d, want 2", stats.TotalRetried)
	}
	if stats.TotalSucceeded != 1 || stats.TotalFailed != 0 {
		t.Errorf("lifetime counters = %+v, want 1 succeeded and 0 failed", stats)
	}

	status, err := stack.orch.UserSyncStatus(ctx, "user-2")
	if err != nil {
		t.Fatalf("UserSyncStatus: %v", err)
	}
	if status.State != reconcile.UserSynced {
		t.Errorf("state = %s, want %s", status.State, reconcile.UserSynced)
	}
}

// TestNonRecoverableDeadLetters injects a permanent provider
// rejection, verifies the operation dead-letters on the first
// attempt, then requeues it through the orchestrator and watches it
// converge once the provider accepts.
func TestNonRecoverableDeadLetters(t *testing.T) {
	t.Parallel()

	stack := newStack(t)
	ctx := context.Background()

	stack.idp.failNextRequests(1, http.StatusBadRequest)

	payload := map[string]any{"id": "user-3", "email": "user-3@example.com"}
	if _, err := stack.orch.QueueUserCreate(ctx, "user-3", payload); err != nil {
		t.Fatalf("QueueUserCreate: %v", err)
	}

	waitFor(t, convergeTimeout, "operation to dead-letter", func() (bool, error) {
		stats, err := stack.queue.Stats(ctx)
		if err != nil {
			return false, err
		}
		return stats.Failed == 1, nil
	})

	failed, err := stack.queue.FailedOperations(ctx, 10)
	if err != nil {
		t.Fatalf("FailedOperations: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("dead-letter list has %d entries, want 1", len(failed))
	}
	op := failed[0]
	if op.UserID != "user-3" {
		t.Errorf("dead-lettered user = %q, want user-3", op.UserID)
	}
	if op.Attempt != 1 {
		t.Errorf("attempts = %d, want 1 (no retries on permanent errors)", op.Attempt)
	}
	if !strings.Contains(op.LastError, "HTTP 400") {
		t.Errorf("last error = %q, want the provider status", op.LastError)
	}

	status, err := stack.orch.UserSyncStatus(ctx, "user-3")
	if err != nil {
		t.Fatalf("UserSyncStatus: %v", err)
	}
	if status.State != reconcile.UserFailed {
		t.Errorf("state = %s, want %s", status.State, reconcile.UserFailed)
	}
	if status.FailedOps != 1 {
		t.Errorf("failed ops = %d, want 1", status.FailedOps)
	}

	// Operator requeues; the provider accepts this time.
	requeued, err := stack.orch.RetryFailedOperations(ctx, 10)
	if err != nil {
		t.Fatalf("RetryFailedOperations: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("requeued = %d, want 1", requeued)
	}

	waitFor(t, convergeTimeout, "requeued create to succeed", func() (bool, error) {
		_, ok := stack.idp.user("user-3")
		return ok, nil
	})
	waitFor(t, convergeTimeout, "user state to return to synced", func() (bool, error) {
		status, err := stack.orch.UserSyncStatus(ctx, "user-3")
		if err != nil {
			return false, err
		}
		return status != nil && status.State == reconcile.UserSynced && status.FailedOps == 0, nil
	})
}

// TestManyUsersConverge floods the queue with creates for many users
// and verifies the worker pool drains them all.
func TestManyUsersConverge(t *testing.T) {
	t.Parallel()

	stack := newStack(t)
	ctx := context.Background()

	const users = 25
	for i := range users {
		id := fmt.Sprintf("bulk-%03d", i)
		if _, err := stack.db.CreateUser(ctx, userdb.User{
			ID:     id,
			Email:  id + "@example.com",
			Active: true,
		}); err != nil {
			t.Fatalf("CreateUser %s: %v", id, err)
		}
		payload := map[string]any{"id": id, "email": id + "@example.com"}
		if _, err := stack.orch.QueueUserCreate(ctx, id, payload); err != nil {
			t.Fatalf("QueueUserCreate %s: %v", id, err)
		}
	}

	waitFor(t, convergeTimeout, "all users to reach the provider", func() (bool, error) {
		return stack.idp.count() == users, nil
	})
	waitFor(t, convergeTimeout, "lifetime counters to settle", func() (bool, error) {
		stats, err := stack.queue.Stats(ctx)
		if err != nil {
			return false, err
		}
		return stats.TotalSucceeded == users, nil
	})

	for i := range users {
		id := fmt.Sprintf("bulk-%03d", i)
		stored, err := stack.db.GetUser(ctx, id)
		if err != nil {
			t.Fatalf("GetUser %s: %v", id, err)
		}
		if stored.RemoteID == "" {
			t.Errorf("user %s missing remote id", id)
		}
	}

	health := stack.monitor.OverallHealth(ctx)
	if health.Level != reconcile.HealthOK {
		t.Errorf("overall health = %s after clean convergence, want %s",
			health.Level, reconcile.HealthOK)
	}
}
