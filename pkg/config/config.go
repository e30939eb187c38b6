// Package config loads pipeline files: the runner, its schedule and the agents
// to build.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	agentdef "github.com/aixgo-dev/dataflow/internal/agent"
	"github.com/aixgo-dev/dataflow/schedule"
)

// Runner names.
const (
	RunnerSequential = "sequential"
	RunnerParallel   = "parallel"
)

// Environment overrides applied by Load.
const (
	EnvRunner         = "DATAFLOW_RUNNER"
	EnvSchedule       = "DATAFLOW_SCHEDULE"
	EnvMaxConcurrency = "DATAFLOW_MAX_CONCURRENCY"
)

// DefaultPollInterval matches the runner default.
const DefaultPollInterval = 100 * time.Millisecond

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is a pipeline file.
type Config struct {
	// Runner is "sequential" (default) or "parallel".
	Runner string `yaml:"runner"`

	Schedule schedule.Config `yaml:"schedule"`

	// MaxConcurrency limits concurrent executions of the parallel runner (0 = unlimited).
	MaxConcurrency int `yaml:"max_concurrency,omitempty"`

	PollInterval agentdef.Duration `yaml:"poll_interval,omitempty"`

	// LenientDependencies logs unresolved dependencies instead of failing.
	LenientDependencies bool `yaml:"lenient_dependencies,omitempty"`

	Agents []agentdef.AgentDef `yaml:"agents"`

	Observability ObservabilityConfig `yaml:"observability,omitempty"`
}

// ObservabilityConfig configures the metrics endpoint and tracing.
type ObservabilityConfig struct {
	// MetricsPort serves /metrics and /health when non-zero.
	MetricsPort int `yaml:"metrics_port,omitempty"`

	// TracingExporter is "none" (default), "stdout" or "otlp".
	TracingExporter string `yaml:"tracing_exporter,omitempty"`

	ServiceName string `yaml:"service_name,omitempty"`
}

// FileReader interface for reading files (testable)
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// OSFileReader implements FileReader using os.ReadFile
type OSFileReader struct{}

func (r *OSFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) // #nosec G304 - path is supplied by the operator
}

// Loader reads, parses and validates pipeline files.
type Loader struct {
	files  FileReader
	parser *Parser
	getenv func(string) string
}

// NewLoader creates a loader with the default limits.
func NewLoader(fr FileReader) *Loader {
	return NewLoaderWithLimits(fr, DefaultLimits())
}

// NewLoaderWithLimits creates a loader with custom YAML limits.
func NewLoaderWithLimits(fr FileReader, limits Limits) *Loader {
	return &Loader{
		files:  fr,
		parser: NewParser(limits),
		getenv: os.Getenv,
	}
}

// Load reads a pipeline file from disk.
func Load(path string) (*Config, error) {
	return NewLoader(&OSFileReader{}).Load(path)
}

// Load reads path, applies defaults and environment overrides, and validates
// the result.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := l.files.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return l.Parse(data)
}

// Parse decodes a pipeline document held in memory.
func (l *Loader) Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := l.parser.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.applyEnv(l.getenv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Runner == "" {
		c.Runner = RunnerSequential
	}
	if c.Schedule.Name == "" {
		c.Schedule.Name = schedule.NameRunOnce
	}
	if c.PollInterval.Duration <= 0 {
		c.PollInterval.Duration = DefaultPollInterval
	}
	if c.Observability.TracingExporter == "" {
		c.Observability.TracingExporter = "none"
	}
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvRunner); v != "" {
		c.Runner = v
	}
	if v := getenv(EnvSchedule); v != "" {
		c.Schedule.Name = v
	}
	if v := getenv(EnvMaxConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, EnvMaxConcurrency, v)
		}
		c.MaxConcurrency = n
	}
	return nil
}

// Validate checks runner and schedule names, limits and agent definitions.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch strings.ToLower(c.Runner) {
	case RunnerSequential, RunnerParallel:
	default:
		invalid("runner %q (want %s or %s)", c.Runner, RunnerSequential, RunnerParallel)
	}
	if _, err := schedule.Build(c.Schedule); err != nil {
		invalid("schedule: %v", err)
	}
	if c.MaxConcurrency < 0 {
		invalid("max_concurrency must not be negative, got %d", c.MaxConcurrency)
	}
	if len(c.Agents) == 0 {
		invalid("no agents defined")
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, def := range c.Agents {
		switch {
		case def.Name == "":
			invalid("agents[%d]: name is required", i)
		case seen[def.Name]:
			invalid("agents[%d]: duplicate name %q", i, def.Name)
		}
		seen[def.Name] = true
		if def.Role == "" {
			invalid("agents[%d] (%s): role is required", i, def.Name)
		}
		for _, in := range def.Inputs {
			if in.Kind == "" {
				invalid("agents[%d] (%s): input without kind", i, def.Name)
			}
		}
	}

	switch c.Observability.TracingExporter {
	case "", "none", "stdout", "otlp":
	default:
		invalid("tracing_exporter %q", c.Observability.TracingExporter)
	}

	return errors.Join(errs...)
}

// Save writes c as YAML.
func Save(c *Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
