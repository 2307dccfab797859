// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seam-foundation/seam/lib/clock"
)

// drainFlushTimeout bounds the final flush performed when the emitter
// shuts down. Exceeding it means the sink is unresponsive and the data
// should be dropped rather than blocking process shutdown.
const drainFlushTimeout = 2 * time.Second

// Sink receives metric points from the emitter's flush cycle.
type Sink interface {
	Emit(ctx context.Context, points []Point) error
}

// Collector produces metric points for the next flush. Implementations
// must be safe for concurrent use and return quickly; the call happens
// on the flush path. Registry.Snapshot satisfies this when used as a
// method value.
type Collector func() []Point

// EmitterConfig holds the parameters for NewEmitter. All fields are
// required.
type EmitterConfig struct {
	// Sink receives each flush batch.
	Sink Sink

	// Interval is the flush period.
	Interval time.Duration

	// Clock drives the flush ticker.
	Clock clock.Clock

	// Logger receives flush failures.
	Logger *slog.Logger
}

// Emitter periodically gathers points from its collectors and hands
// them to the sink. Flush failures are logged and the batch dropped;
// lost metrics are preferable to unbounded buffering or a stalled
// reconciler.
//
// Lifecycle: register collectors, call Run in a goroutine, cancel the
// context to stop. Run does one final drain flush before closing Done.
type Emitter struct {
	sink       Sink
	interval   time.Duration
	clk        clock.Clock
	logger     *slog.Logger
	collectors []Collector
	done       chan struct{}
}

// NewEmitter validates config and returns an Emitter. The caller must
// start the flush loop with Run.
func NewEmitter(config EmitterConfig) (*Emitter, error) {
	if config.Sink == nil {
		return nil, fmt.Errorf("metrics emitter: Sink is required")
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("metrics emitter: Interval must be positive, got %v", config.Interval)
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("metrics emitter: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("metrics emitter: Logger is required")
	}
	return &Emitter{
		sink:     config.Sink,
		interval: config.Interval,
		clk:      config.Clock,
		logger:   config.Logger,
		done:     make(chan struct{}),
	}, nil
}

// AddCollector registers a point source. Must be called before Run.
func (e *Emitter) AddCollector(c Collector) {
	e.collectors = append(e.collectors, c)
}

// Run flushes on the configured interval until ctx is cancelled, then
// performs one final drain flush with a short deadline and closes the
// Done channel. Call exactly once per emitter.
func (e *Emitter) Run(ctx context.Context) {
	defer close(e.done)

	ticker := e.clk.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.flush(ctx)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), drainFlushTimeout)
			e.flush(drainCtx)
			cancel()
			return
		}
	}
}

// Done is closed after Run has fully exited, including the drain flush.
func (e *Emitter) Done() <-chan struct{} {
	return e.done
}

func (e *Emitter) flush(ctx context.Context) {
	var points []Point
	for _, collect := range e.collectors {
		points = append(points, collect()...)
	}
	if len(points) == 0 {
		return
	}
	if err := e.sink.Emit(ctx, points); err != nil {
		e.logger.Error("metrics flush failed",
			"error", err,
			"dropped_points", len(points),
		)
	}
}

// LogSink writes each point as a structured log record. It is the
// default sink for the reconciler daemon, keeping the metric stream in
// the same transport as the rest of its telemetry.
type LogSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

// Emit logs one record per point.
func (s LogSink) Emit(ctx context.Context, points []Point) error {
	for _, p := range points {
		attrs := make([]any, 0, 6+2*len(p.Labels))
		attrs = append(attrs, "metric", p.Name, "kind", p.Kind.String(), "value", p.Value)
		for k, v := range p.Labels {
			attrs = append(attrs, k, v)
		}
		s.Logger.Log(ctx, s.Level, "metric point", attrs...)
	}
	return nil
}

// String names the kind for logs and JSON dumps.
func (k Kind) String() string {
	switch k {
	case KindGauge:
		return "gauge"
	case KindCounter:
		return "counter"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}
