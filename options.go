package dataflow

import (
	"log/slog"
	"time"
)

// DefaultPollInterval is how long a runner sleeps between scheduler CanRun polls.
const DefaultPollInterval = 100 * time.Millisecond

// RunnerConfig contains configuration options for creating a runner
type RunnerConfig struct {
	// MaxConcurrency limits parallel agent executions per wave and streaming
	// pass (0 = unlimited). Ignored by the sequential runner.
	MaxConcurrency int

	// PollInterval is the sleep between scheduler CanRun polls.
	// Default: 100ms
	PollInterval time.Duration

	// LenientDependencies logs unresolved declared dependencies instead of
	// failing the run.
	LenientDependencies bool

	// Logger receives run logs. Default: slog.Default()
	Logger *slog.Logger

	// EnableMetrics records Prometheus metrics for runs and agent calls.
	EnableMetrics bool

	// EnableTracing emits OpenTelemetry spans for runs, epochs, waves and agent calls.
	EnableTracing bool
}

// DefaultConfig returns a RunnerConfig with sensible defaults
func DefaultConfig() *RunnerConfig {
	return &RunnerConfig{
		PollInterval: DefaultPollInterval,
	}
}

// Option is a functional option for configuring a runner
type Option func(*RunnerConfig)

// WithMaxConcurrency sets the maximum number of concurrent agent executions
func WithMaxConcurrency(n int) Option {
	return func(cfg *RunnerConfig) {
		cfg.MaxConcurrency = n
	}
}

// WithPollInterval sets the scheduler poll interval
func WithPollInterval(d time.Duration) Option {
	return func(cfg *RunnerConfig) {
		cfg.PollInterval = d
	}
}

// WithLenientDependencies logs unresolved dependencies instead of failing
func WithLenientDependencies() Option {
	return func(cfg *RunnerConfig) {
		cfg.LenientDependencies = true
	}
}

// WithLogger sets the run logger
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *RunnerConfig) {
		cfg.Logger = logger
	}
}

// WithMetrics enables or disables metrics collection
func WithMetrics(enabled bool) Option {
	return func(cfg *RunnerConfig) {
		cfg.EnableMetrics = enabled
	}
}

// WithTracing enables or disables span creation
func WithTracing(enabled bool) Option {
	return func(cfg *RunnerConfig) {
		cfg.EnableTracing = enabled
	}
}

func newConfig(opts []Option) *RunnerConfig {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}
