// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Duration wraps time.Duration with YAML scalar parsing ("5s", "10m",
// "168h"). yaml.v3 has no native duration support.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the master configuration for Seam.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Store configures the shared key-value store connection.
	Store StoreConfig `yaml:"store"`

	// IdP configures the identity-provider client.
	IdP IdPConfig `yaml:"idp"`

	// UserDB configures the local user database.
	UserDB UserDBConfig `yaml:"userdb"`

	// Queue configures the reconciliation queue.
	Queue QueueConfig `yaml:"queue"`

	// Worker configures the orchestrator's polling worker.
	Worker WorkerConfig `yaml:"worker"`

	// Monitor configures health checking and alerting thresholds.
	Monitor MonitorConfig `yaml:"monitor"`

	// Logging configures the daemon's log output.
	Logging LoggingConfig `yaml:"logging"`

	// Per-environment overrides, applied after the base values load.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the sections that may differ per environment.
type Overrides struct {
	Store   *StoreConfig   `yaml:"store,omitempty"`
	IdP     *IdPConfig     `yaml:"idp,omitempty"`
	UserDB  *UserDBConfig  `yaml:"userdb,omitempty"`
	Worker  *WorkerConfig  `yaml:"worker,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

// StoreConfig configures the shared key-value store connection.
type StoreConfig struct {
	// Addr is the store's host:port.
	Addr string `yaml:"addr"`

	// Password authenticates the connection. Supports ${VAR}
	// expansion so the secret can live in the environment.
	Password string `yaml:"password"`

	// DB selects the store's logical database number.
	DB int `yaml:"db"`

	// DialTimeout bounds connection establishment.
	DialTimeout Duration `yaml:"dial_timeout"`
}

// IdPConfig configures the identity-provider client.
type IdPConfig struct {
	// BaseURL is the provider's API root (e.g. "https://idp.internal").
	BaseURL string `yaml:"base_url"`

	// Token is the bearer token for provider calls. Supports ${VAR}
	// expansion.
	Token string `yaml:"token"`

	// RequestsPerSecond caps outbound provider calls. Zero disables
	// client-side limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the rate limiter's burst allowance.
	Burst int `yaml:"burst"`
}

// UserDBConfig configures the local user database.
type UserDBConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size.
	PoolSize int `yaml:"pool_size"`
}

// QueueConfig configures the reconciliation queue.
type QueueConfig struct {
	// KeyPrefix namespaces every store key.
	KeyPrefix string `yaml:"key_prefix"`

	// MaxQueueSize rejects enqueues once pending+retrying reaches it.
	MaxQueueSize int `yaml:"max_queue_size"`

	// MaxRetries is the attempt ceiling before an operation is
	// dead-lettered.
	MaxRetries int `yaml:"max_retries"`

	// RetryBaseDelay is the first retry's backoff delay.
	RetryBaseDelay Duration `yaml:"retry_base_delay"`

	// RetryMultiplier scales the delay for each further attempt.
	RetryMultiplier float64 `yaml:"retry_multiplier"`

	// OperationTTL expires operation records in the store.
	OperationTTL Duration `yaml:"operation_ttl"`

	// DeadLetterCap bounds the dead-letter list; the oldest entries
	// are evicted past it.
	DeadLetterCap int `yaml:"dead_letter_cap"`
}

// WorkerConfig configures the orchestrator's polling worker.
type WorkerConfig struct {
	// Concurrency is the per-tick execution fan-out.
	Concurrency int `yaml:"concurrency"`

	// PollInterval is the worker tick period.
	PollInterval Duration `yaml:"poll_interval"`

	// OperationTimeout bounds one identity-provider call. Timeouts
	// are treated as recoverable failures.
	OperationTimeout Duration `yaml:"operation_timeout"`

	// ShutdownGrace is how long StopWorker waits for in-flight
	// executions.
	ShutdownGrace Duration `yaml:"shutdown_grace"`
}

// MonitorConfig configures health checking thresholds.
type MonitorConfig struct {
	// HealthCheckInterval is the periodic overall-health cadence.
	HealthCheckInterval Duration `yaml:"health_check_interval"`

	// SuccessRateThreshold is the sync success rate below which
	// health degrades.
	SuccessRateThreshold float64 `yaml:"success_rate_threshold"`

	// QueueSizeThreshold is the pending count above which queue
	// health degrades (5x for unhealthy).
	QueueSizeThreshold int `yaml:"queue_size_threshold"`

	// OperationAgeThreshold is the oldest-pending age above which
	// queue health degrades.
	OperationAgeThreshold Duration `yaml:"operation_age_threshold"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the base configuration. LoadFile starts from these
// values, so a config file only states what differs.
func Default() *Config {
	return &Config{
		Environment: Development,
		Store: StoreConfig{
			Addr:        "127.0.0.1:6379",
			DialTimeout: Duration(5 * time.Second),
		},
		IdP: IdPConfig{
			RequestsPerSecond: 50,
			Burst:             10,
		},
		UserDB: UserDBConfig{
			Path:     "${SEAM_DATA:-/var/lib/seam}/users.db",
			PoolSize: 4,
		},
		Queue: QueueConfig{
			KeyPrefix:       "seam",
			MaxQueueSize:    10000,
			MaxRetries:      3,
			RetryBaseDelay:  Duration(5 * time.Second),
			RetryMultiplier: 5,
			OperationTTL:    Duration(7 * 24 * time.Hour),
			DeadLetterCap:   1000,
		},
		Worker: WorkerConfig{
			Concurrency:      5,
			PollInterval:     Duration(5 * time.Second),
			OperationTimeout: Duration(30 * time.Second),
			ShutdownGrace:    Duration(5 * time.Second),
		},
		Monitor: MonitorConfig{
			HealthCheckInterval:   Duration(60 * time.Second),
			SuccessRateThreshold:  0.95,
			QueueSizeThreshold:    1000,
			OperationAgeThreshold: Duration(10 * time.Minute),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from the SEAM_CONFIG environment variable.
// There are no search paths or fallbacks: if SEAM_CONFIG is unset this
// fails, keeping configuration deterministic and auditable.
func Load() (*Config, error) {
	path := os.Getenv("SEAM_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("SEAM_CONFIG environment variable not set; " +
			"set it to the path of your seam.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path on top of Default(), applies
// the matching environment override section, then expands ${VAR} and
// ${VAR:-default} patterns in the credential and path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// applyEnvironmentOverrides merges the override section matching
// c.Environment into the base values. Only non-zero override fields
// apply.
func (c *Config) applyEnvironmentOverrides() {
	var o *Overrides
	switch c.Environment {
	case Development:
		o = c.Development
	case Staging:
		o = c.Staging
	case Production:
		o = c.Production
	}
	if o == nil {
		return
	}

	if o.Store != nil {
		if o.Store.Addr != "" {
			c.Store.Addr = o.Store.Addr
		}
		if o.Store.Password != "" {
			c.Store.Password = o.Store.Password
		}
		if o.Store.DB != 0 {
			c.Store.DB = o.Store.DB
		}
		if o.Store.DialTimeout != 0 {
			c.Store.DialTimeout = o.Store.DialTimeout
		}
	}
	if o.IdP != nil {
		if o.IdP.BaseURL != "" {
			c.IdP.BaseURL = o.IdP.BaseURL
		}
		if o.IdP.Token != "" {
			c.IdP.Token = o.IdP.Token
		}
		if o.IdP.RequestsPerSecond != 0 {
			c.IdP.RequestsPerSecond = o.IdP.RequestsPerSecond
		}
		if o.IdP.Burst != 0 {
			c.IdP.Burst = o.IdP.Burst
		}
	}
	if o.UserDB != nil {
		if o.UserDB.Path != "" {
			c.UserDB.Path = o.UserDB.Path
		}
		if o.UserDB.PoolSize != 0 {
			c.UserDB.PoolSize = o.UserDB.PoolSize
		}
	}
	if o.Worker != nil {
		if o.Worker.Concurrency != 0 {
			c.Worker.Concurrency = o.Worker.Concurrency
		}
		if o.Worker.PollInterval != 0 {
			c.Worker.PollInterval = o.Worker.PollInterval
		}
		if o.Worker.OperationTimeout != 0 {
			c.Worker.OperationTimeout = o.Worker.OperationTimeout
		}
		if o.Worker.ShutdownGrace != 0 {
			c.Worker.ShutdownGrace = o.Worker.ShutdownGrace
		}
	}
	if o.Logging != nil {
		if o.Logging.Level != "" {
			c.Logging.Level = o.Logging.Level
		}
		if o.Logging.Format != "" {
			c.Logging.Format = o.Logging.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in the fields
// that commonly carry secrets or machine-local paths.
func (c *Config) expandVariables() {
	c.Store.Addr = expandVars(c.Store.Addr)
	c.Store.Password = expandVars(c.Store.Password)
	c.IdP.BaseURL = expandVars(c.IdP.BaseURL)
	c.IdP.Token = expandVars(c.IdP.Token)
	c.UserDB.Path = expandVars(c.UserDB.Path)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors. All problems are
// reported at once via errors.Join.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Store.Addr == "" {
		errs = append(errs, fmt.Errorf("store.addr is required"))
	}
	if c.Queue.KeyPrefix == "" {
		errs = append(errs, fmt.Errorf("queue.key_prefix is required"))
	}
	if c.Queue.MaxQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue.max_queue_size must be positive, got %d", c.Queue.MaxQueueSize))
	}
	if c.Queue.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("queue.max_retries must be at least 1, got %d", c.Queue.MaxRetries))
	}
	if c.Queue.RetryBaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("queue.retry_base_delay must be positive, got %v", c.Queue.RetryBaseDelay.Std()))
	}
	if c.Queue.RetryMultiplier < 1 {
		errs = append(errs, fmt.Errorf("queue.retry_multiplier must be at least 1, got %v", c.Queue.RetryMultiplier))
	}
	if c.Queue.OperationTTL <= 0 {
		errs = append(errs, fmt.Errorf("queue.operation_ttl must be positive, got %v", c.Queue.OperationTTL.Std()))
	}
	if c.Queue.DeadLetterCap < 1 {
		errs = append(errs, fmt.Errorf("queue.dead_letter_cap must be at least 1, got %d", c.Queue.DeadLetterCap))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("worker.concurrency must be at least 1, got %d", c.Worker.Concurrency))
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("worker.poll_interval must be positive, got %v", c.Worker.PollInterval.Std()))
	}
	if c.Worker.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("worker.operation_timeout must be positive, got %v", c.Worker.OperationTimeout.Std()))
	}
	if c.Monitor.HealthCheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.health_check_interval must be positive, got %v", c.Monitor.HealthCheckInterval.Std()))
	}
	if c.Monitor.SuccessRateThreshold <= 0 || c.Monitor.SuccessRateThreshold > 1 {
		errs = append(errs, fmt.Errorf("monitor.success_rate_threshold must be in (0, 1], got %v", c.Monitor.SuccessRateThreshold))
	}
	if c.Monitor.QueueSizeThreshold < 1 {
		errs = append(errs, fmt.Errorf("monitor.queue_size_threshold must be at least 1, got %d", c.Monitor.QueueSizeThreshold))
	}
	if c.Monitor.OperationAgeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("monitor.operation_age_threshold must be positive, got %v", c.Monitor.OperationAgeThreshold.Std()))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateDaemon performs Validate plus the checks only the reconciler
// daemon needs (the operator CLI runs without an identity provider or
// user database).
func (c *Config) ValidateDaemon() error {
	var errs []error
	if err := c.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.IdP.BaseURL == "" {
		errs = append(errs, fmt.Errorf("idp.base_url is required"))
	}
	if c.UserDB.Path == "" {
		errs = append(errs, fmt.Errorf("userdb.path is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
