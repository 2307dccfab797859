// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/seam-foundation/seam/idp"
	"github.com/seam-foundation/seam/lib/clock"
	"github.com/seam-foundation/seam/lib/config"
	"github.com/seam-foundation/seam/lib/metrics"
	"github.com/seam-foundation/seam/lib/process"
	"github.com/seam-foundation/seam/lib/version"
	"github.com/seam-foundation/seam/reconcile"
	"github.com/seam-foundation/seam/store"
	"github.com/seam-foundation/seam/userdb"
)

// metricsFlushInterval is how often the emitter writes registry
// snapshots to the log sink.
const metricsFlushInterval = time.Minute

// storeReadyTimeout bounds the startup wait for the store to answer
// pings before the daemon gives up.
const storeReadyTimeout = time.Minute

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		logFormat   string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the YAML configuration file (defaults to $SEAM_CONFIG)")
	pflag.StringVar(&logLevel, "log-level", "", "log level override: debug, info, warn, or error")
	pflag.StringVar(&logFormat, "log-format", "", "log format override: text or json")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		version.Print("seam-reconciler")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.ValidateDaemon(); err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return err
	}
	clk := clock.Real()

	logger.Info("seam-reconciler starting",
		"version", version.Full(),
		"environment", cfg.Environment,
		"store", cfg.Store.Addr,
		"idp", cfg.IdP.BaseURL,
	)

	// Store. The daemon outlives transient store restarts once running
	// (the worker retries on recoverable errors), but startup requires
	// a reachable store so misconfiguration fails fast.
	storeClient, err := store.New(store.Config{
		Addr:        cfg.Store.Addr,
		Password:    cfg.Store.Password,
		DB:          cfg.Store.DB,
		DialTimeout: cfg.Store.DialTimeout.Std(),
	})
	if err != nil {
		return fmt.Errorf("connecting store: %w", err)
	}
	defer func() {
		if err := storeClient.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()
	if err := waitForStore(ctx, storeClient, clk, logger); err != nil {
		return err
	}

	// User database.
	db, err := userdb.Open(userdb.Config{
		Path:     cfg.UserDB.Path,
		PoolSize: cfg.UserDB.PoolSize,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing user database", "error", err)
		}
	}()

	// Identity provider client.
	provider, err := idp.NewClient(idp.Config{
		BaseURL:           cfg.IdP.BaseURL,
		Token:             cfg.IdP.Token,
		RequestsPerSecond: cfg.IdP.RequestsPerSecond,
		Burst:             cfg.IdP.Burst,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	// Metrics: counters and gauges accumulate in the registry; the
	// emitter flushes snapshots to the log sink once a minute.
	registry := metrics.NewRegistry(clk)
	emitter, err := metrics.NewEmitter(metrics.EmitterConfig{
		Sink:     metrics.LogSink{Logger: logger, Level: slog.LevelDebug},
		Interval: metricsFlushInterval,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	emitter.AddCollector(registry.Snapshot)

	queue, err := reconcile.NewQueue(reconcile.QueueConfig{
		Store:           storeClient,
		Clock:           clk,
		Logger:          logger,
		Registry:        registry,
		KeyPrefix:       cfg.Queue.KeyPrefix,
		MaxQueueSize:    cfg.Queue.MaxQueueSize,
		MaxAttempts:     cfg.Queue.MaxRetries,
		RetryBaseDelay:  cfg.Queue.RetryBaseDelay.Std(),
		RetryMultiplier: cfg.Queue.RetryMultiplier,
		OperationTTL:    cfg.Queue.OperationTTL.Std(),
		DeadLetterCap:   cfg.Queue.DeadLetterCap,
	})
	if err != nil {
		return err
	}

	monitor, err := reconcile.NewMonitor(reconcile.MonitorConfig{
		Stats:                 queue,
		Clock:                 clk,
		Logger:                logger,
		Registry:              registry,
		SuccessRateThreshold:  cfg.Monitor.SuccessRateThreshold,
		QueueSizeThreshold:    int64(cfg.Monitor.QueueSizeThreshold),
		OperationAgeThreshold: cfg.Monitor.OperationAgeThreshold.Std(),
		HealthCheckInterval:   cfg.Monitor.HealthCheckInterval.Std(),
	})
	if err != nil {
		return err
	}

	orchestrator, err := reconcile.NewOrchestrator(reconcile.OrchestratorConfig{
		Queue:            queue,
		Monitor:          monitor,
		Provider:         provider,
		Clock:            clk,
		Logger:           logger,
		Registry:         registry,
		RecordRemoteID:   db.SetRemoteID,
		Concurrency:      cfg.Worker.Concurrency,
		PollInterval:     cfg.Worker.PollInterval.Std(),
		OperationTimeout: cfg.Worker.OperationTimeout.Std(),
		ShutdownGrace:    cfg.Worker.ShutdownGrace.Std(),
	})
	if err != nil {
		return err
	}

	// The emitter runs on its own context so the final flush happens
	// after the signal context is already done.
	emitterCtx, stopEmitter := context.WithCancel(context.Background())
	defer stopEmitter()
	go emitter.Run(emitterCtx)

	orchestrator.StartWorker()
	monitor.StartHealthChecks()

	logger.Info("seam-reconciler running",
		"concurrency", cfg.Worker.Concurrency,
		"poll_interval", cfg.Worker.PollInterval.Std(),
		"key_prefix", cfg.Queue.KeyPrefix,
	)

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	if clean := orchestrator.StopWorker(); !clean {
		logger.Warn("worker stopped with operations still in flight",
			"grace", cfg.Worker.ShutdownGrace.Std())
	}

	// Final metrics flush before the store closes.
	stopEmitter()
	<-emitter.Done()

	return nil
}

// loadConfig resolves the configuration from the --config flag when
// set, otherwise from the SEAM_CONFIG environment variable.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildLogger constructs the daemon logger from the logging section.
// Level and format have already been overridden by flags when given.
func buildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	switch cfg.Level {
	case "", "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", cfg.Level)
	}

	options := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected text or json)", cfg.Format)
	}
}

// waitForStore pings the store until it answers or the deadline
// passes. Container orchestration commonly starts the reconciler
// before the store is accepting connections.
func waitForStore(ctx context.Context, client *store.Client, clk clock.Clock, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, storeReadyTimeout)
	defer cancel()

	delay := time.Second
	for {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx)
		pingCancel()
		if err == nil {
			return nil
		}

		logger.Warn("store not ready", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for store: %w", ctx.Err())
		case <-clk.After(delay):
		}
		if delay *= 2; delay > 10*time.Second {
			delay = 10 * time.Second
		}
	}
}
