// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/seam-foundation/seam/lib/clock"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryCountersAccumulate(t *testing.T) {
	registry := NewRegistry(clock.Fake(testEpoch))

	registry.Add("seam_ops_enqueued_total", map[string]string{"type": "CREATE"}, 1)
	registry.Add("seam_ops_enqueued_total", map[string]string{"type": "CREATE"}, 1)
	registry.Add("seam_ops_enqueued_total", map[string]string{"type": "DELETE"}, 1)

	if got := registry.Value("seam_ops_enqueued_total", map[string]string{"type": "CREATE"}); got != 2 {
		t.Errorf("CREATE counter = %v, want 2", got)
	}
	if got := registry.Value("seam_ops_enqueued_total", map[string]string{"type": "DELETE"}); got != 1 {
		t.Errorf("DELETE counter = %v, want 1", got)
	}
}

func TestRegistryGaugeReplaces(t *testing.T) {
	registry := NewRegistry(clock.Fake(testEpoch))

	registry.Set("seam_health_overall", nil, 1)
	registry.Set("seam_health_overall", nil, 0.5)

	if got := registry.Value("seam_health_overall", nil); got != 0.5 {
		t.Errorf("gauge = %v, want 0.5", got)
	}
}

func TestRegistrySnapshotDeterministic(t *testing.T) {
	clk := clock.Fake(testEpoch)
	registry := NewRegistry(clk)

	registry.Set("seam_worker_running", nil, 1)
	registry.Add("seam_ops_completed_total", map[string]string{"type": "UPDATE"}, 3)
	registry.Add("seam_ops_completed_total", map[string]string{"type": "CREATE"}, 7)

	points := registry.Snapshot()
	if len(points) != 3 {
		t.Fatalf("Snapshot returned %d points, want 3", len(points))
	}

	// Sorted by name, then labels.
	wantOrder := []struct {
		name  string
		typ   string
		value float64
		kind  Kind
	}{
		{"seam_ops_completed_total", "CREATE", 7, KindCounter},
		{"seam_ops_completed_total", "UPDATE", 3, KindCounter},
		{"seam_worker_running", "", 1, KindGauge},
	}
	for i, want := range wantOrder {
		got := points[i]
		if got.Name != want.name || got.Labels["type"] != want.typ ||
			got.Value != want.value || got.Kind != want.kind {
			t.Errorf("points[%d] = %+v, want %+v", i, got, want)
		}
		if got.Timestamp != testEpoch.UnixNano() {
			t.Errorf("points[%d].Timestamp = %d, want %d", i, got.Timestamp, testEpoch.UnixNano())
		}
	}
}

func TestRegistryNilReceiver(t *testing.T) {
	var registry *Registry
	registry.Add("seam_ops_enqueued_total", nil, 1)
	registry.Set("seam_worker_running", nil, 1)
	if got := registry.Value("seam_worker_running", nil); got != 0 {
		t.Errorf("nil registry Value = %v, want 0", got)
	}
	if points := registry.Snapshot(); points != nil {
		t.Errorf("nil registry Snapshot = %v, want nil", points)
	}
}

func TestRegistryConcurrentWriters(t *testing.T) {
	registry := NewRegistry(clock.Fake(testEpoch))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				registry.Add("seam_ops_retried_total", map[string]string{"type": "UPDATE"}, 1)
			}
		}()
	}
	wg.Wait()

	if got := registry.Value("seam_ops_retried_total", map[string]string{"type": "UPDATE"}); got != 800 {
		t.Errorf("counter after concurrent adds = %v, want 800", got)
	}
}

// --- emitter ---

// captureSink records every Emit batch.
type captureSink struct {
	mu      sync.Mutex
	batches [][]Point
}

func (s *captureSink) Emit(_ context.Context, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, points)
	return nil
}

func (s *captureSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestEmitterFlushesOnInterval(t *testing.T) {
	clk := clock.Fake(testEpoch)
	registry := NewRegistry(clk)
	registry.Set("seam_worker_running", nil, 1)

	sink := &captureSink{}
	emitter, err := NewEmitter(EmitterConfig{
		Sink:     sink,
		Interval: 10 * time.Second,
		Clock:    clk,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}
	emitter.AddCollector(registry.Snapshot)

	ctx, cancel := context.WithCancel(context.Background())
	go emitter.Run(ctx)

	clk.WaitForTimers(1)
	clk.Advance(10 * time.Second)

	deadline := time.After(5 * time.Second)
	for sink.batchCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no flush after one interval")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	<-emitter.Done()

	// The drain flush adds at least one more batch.
	if got := sink.batchCount(); got < 2 {
		t.Errorf("batches after drain = %d, want >= 2", got)
	}
}

func TestEmitterConfigValidation(t *testing.T) {
	base := EmitterConfig{
		Sink:     &captureSink{},
		Interval: time.Second,
		Clock:    clock.Fake(testEpoch),
		Logger:   discardLogger(),
	}

	broken := []func(c *EmitterConfig){
		func(c *EmitterConfig) { c.Sink = nil },
		func(c *EmitterConfig) { c.Interval = 0 },
		func(c *EmitterConfig) { c.Clock = nil },
		func(c *EmitterConfig) { c.Logger = nil },
	}
	for i, mutate := range broken {
		config := base
		mutate(&config)
		if _, err := NewEmitter(config); err == nil {
			t.Errorf("case %d: NewEmitter accepted invalid config", i)
		}
	}
}
