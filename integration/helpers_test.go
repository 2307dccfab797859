// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package integration_test exercises the full Seam stack in one
// process: the reconciliation queue over a real (in-memory) store,
// the SQLite user database, and the HTTP identity provider client
// talking to an in-memory provider. Components are wired the way
// cmd/seam-reconciler wires them, with short intervals so the whole
// suite finishes in a few seconds of wall clock.
package integration_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/seam-foundation/seam/idp"
	"github.com/seam-foundation/seam/reconcile"
	"github.com/seam-foundation/seam/store"
	"github.com/seam-foundation/seam/userdb"
)

const testProviderToken = "integration-test-token"

// fakeIdP is an in-memory identity provider speaking the REST surface
// the idp client expects. Users are keyed by the caller's external id
// (the local user id); create responses carry the provider-assigned
// id.
type fakeIdP struct {
	server *httptest.Server

	mu         sync.Mutex
	users      map[string]map[string]any
	nextID     int
	failNext   int
	failStatus int
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	// Go 1.21's ServeMux has no method or wildcard patterns, so method
	// dispatch and {id} extraction are done by hand: exact
	// /api/v1/users for create, a single non-empty trailing segment
	// for update and delete.
	fake := &fakeIdP{users: make(map[string]map[string]any)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fake.handleCreate(w, r)
	})
	mux.HandleFunc("/api/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		if id := userIDFromPath(r); id == "" {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodPut:
			fake.handleUpdate(w, r)
		case http.MethodDelete:
			fake.handleDelete(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

// userIDFromPath returns the user id segment of an /api/v1/users/{id}
// request, or "" when the path has no id or more than one trailing
// segment.
func userIDFromPath(r *http.Request) string {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/users/")
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}

// failNextRequests makes the next n requests fail with the given
// status before any handler logic runs.
func (f *fakeIdP) failNextRequests(n, status int) {
	f.mu.Lock()
	f.failNext = n
	f.failStatus = status
	f.mu.Unlock()
}

// gate enforces auth and injected failures. Returns false when the
// response has already been written.
func (f *fakeIdP) gate(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+testProviderToken {
		http.Error(w, "missing or wrong bearer token", http.StatusUnauthorized)
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		http.Error(w, "injected failure", f.failStatus)
		return false
	}
	return true
}

func (f *fakeIdP) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !f.gate(w, r) {
		return
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	userID, _ := payload["id"].(string)
	if userID == "" {
		http.Error(w, "payload missing id", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.nextID++
	remoteID := fmt.Sprintf("idp-%04d", f.nextID)
	f.users[userID] = payload
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": remoteID})
}

func (f *fakeIdP) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !f.gate(w, r) {
		return
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	userID := userIDFromPath(r)

	f.mu.Lock()
	_, exists := f.users[userID]
	if exists {
		f.users[userID] = payload
	}
	f.mu.Unlock()

	if !exists {
		http.Error(w, "no such user", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeIdP) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !f.gate(w, r) {
		return
	}
	userID := userIDFromPath(r)

	f.mu.Lock()
	_, exists := f.users[userID]
	delete(f.users, userID)
	f.mu.Unlock()

	if !exists {
		http.Error(w, "no such user", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// user returns the stored payload for a user id.
func (f *fakeIdP) user(userID string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.users[userID]
	return payload, ok
}

func (f *fakeIdP) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// stack is one fully wired Seam deployment: store, queue, monitor,
// user database, provider client, and a running worker.
type stack struct {
	queue   *reconcile.Queue
	monitor *reconcile.Monitor
	orch    *reconcile.Orchestrator
	db      *userdb.DB
	idp     *fakeIdP
}

func newStack(t *testing.T) *stack {
	t.Helper()

	server := miniredis.RunT(t)
	client, err := store.New(store.Config{Addr: server.Addr()})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	db, err := userdb.Open(userdb.Config{
		Path: filepath.Join(t.TempDir(), "users.db"),
	})
	if err != nil {
		t.Fatalf("userdb.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := newFakeIdP(t)
	provider, err := idp.NewClient(idp.Config{
		BaseURL: fake.server.URL,
		Token:   testProviderToken,
	})
	if err != nil {
		t.Fatalf("idp.NewClient: %v", err)
	}

	queue, err := reconcile.NewQueue(reconcile.QueueConfig{
		Store:           client,
		KeyPrefix:       "seam",
		MaxAttempts:     5,
		RetryBaseDelay:  20 * time.Millisecond,
		RetryMultiplier: 1,
	})
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	monitor, err := reconcile.NewMonitor(reconcile.MonitorConfig{Stats: queue})
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	orch, err := reconcile.NewOrchestrator(reconcile.OrchestratorConfig{
		Queue:            queue,
		Monitor:          monitor,
		Provider:         provider,
		RecordRemoteID:   db.SetRemoteID,
		Concurrency:      4,
		PollInterval:     20 * time.Millisecond,
		OperationTimeout: 5 * time.Second,
		ShutdownGrace:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	orch.StartWorker()
	t.Cleanup(func() { orch.StopWorker() })

	return &stack{
		queue:   queue,
		monitor: monitor,
		orch:    orch,
		db:      db,
		idp:     fake,
	}
}

// waitFor polls condition until it holds or the deadline expires. A
// condition error fails the test immediately.
func waitFor(t *testing.T, timeout time.Duration, description string, condition func() (bool, error)) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		ok, err := condition()
		if err != nil {
			t.Fatalf("%s: %v", description, err)
		}
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v waiting for %s", timeout, description)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
