// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/seam-foundation/seam/lib/clock"
)

// Kind distinguishes how a metric point's value should be interpreted.
type Kind uint8

const (
	// KindGauge is an instantaneous value that can go up or down
	// (processing count, health level).
	KindGauge Kind = 0

	// KindCounter is a monotonically increasing value (operations
	// enqueued, operations failed). Counters only go up; rate
	// computation happens downstream.
	KindCounter Kind = 1
)

// Point is a single metric observation at a point in time. Names
// follow Prometheus conventions (seam_ops_enqueued_total,
// seam_health_overall).
type Point struct {
	// Name is the metric name.
	Name string `json:"name"`

	// Labels are the metric's dimensions. Standard labels are "type"
	// (operation type) and "error_kind" (failure classification).
	Labels map[string]string `json:"labels,omitempty"`

	// Kind distinguishes gauge (0) from counter (1).
	Kind Kind `json:"kind"`

	// Timestamp is when this observation was snapshotted, as Unix
	// nanoseconds.
	Timestamp int64 `json:"timestamp"`

	// Value is the metric value. Zero is a valid measurement, so the
	// field is always serialized.
	Value float64 `json:"value"`
}

// Registry accumulates counters and gauges in memory. It is the one
// mutable metrics surface in the process: the queue, orchestrator, and
// monitor write into it, and the emitter snapshots it on each flush.
//
// Safe for concurrent use. All methods are no-ops on a nil receiver so
// components can skip nil checks when metrics are not wired.
type Registry struct {
	clk clock.Clock

	mu     sync.Mutex
	series map[string]*series
}

type series struct {
	name   string
	labels map[string]string
	kind   Kind
	value  float64
}

// NewRegistry returns an empty registry stamping snapshots from clk.
func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{clk: clk, series: make(map[string]*series)}
}

// Add increments the named counter by delta, creating it at zero first
// if needed.
func (r *Registry) Add(name string, labels map[string]string, delta float64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.seriesLocked(name, labels, KindCounter)
	s.value += delta
}

// Set records the current value of the named gauge.
func (r *Registry) Set(name string, labels map[string]string, value float64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.seriesLocked(name, labels, KindGauge)
	s.value = value
}

// Value returns the current value of a series, or zero when the series
// does not exist. Intended for tests and the alert path, not for hot
// loops.
func (r *Registry) Value(name string, labels map[string]string) float64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[seriesKey(name, labels)]
	if !ok {
		return 0
	}
	return s.value
}

// Snapshot returns every series as a Point stamped with the current
// time, sorted by name then label key for deterministic output.
// Counters are cumulative; the registry never resets them.
func (r *Registry) Snapshot() []Point {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now().UnixNano()
	keys := make([]string, 0, len(r.series))
	for key := range r.series {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	points := make([]Point, 0, len(keys))
	for _, key := range keys {
		s := r.series[key]
		points = append(points, Point{
			Name:      s.name,
			Labels:    copyLabels(s.labels),
			Kind:      s.kind,
			Timestamp: now,
			Value:     s.value,
		})
	}
	return points
}

// seriesLocked finds or creates the series for name+labels. A series
// keeps the kind it was created with; mixed-kind writes to the same
// name+labels are a programming error and the first kind wins.
func (r *Registry) seriesLocked(name string, labels map[string]string, kind Kind) *series {
	key := seriesKey(name, labels)
	s, ok := r.series[key]
	if !ok {
		s = &series{name: name, labels: copyLabels(labels), kind: kind}
		r.series[key] = s
	}
	return s
}

// seriesKey canonicalizes name+labels: labels sorted by key, rendered
// as k=v pairs. Identical logical series always map to one entry.
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
