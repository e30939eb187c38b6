package dataflow

import (
	"context"
	"fmt"

	agentdef "github.com/aixgo-dev/dataflow/internal/agent"
	"github.com/aixgo-dev/dataflow/pkg/config"
	"github.com/aixgo-dev/dataflow/schedule"
)

// Pipeline is a runner populated from a pipeline file, together with the
// scheduler the file asks for.
type Pipeline struct {
	Config   *config.Config
	Engine   Engine
	Schedule schedule.Scheduler
}

// LoadPipeline reads a pipeline file and builds its agents from the roles
// registered with the default registry. Options override the file's runner
// settings.
func LoadPipeline(path string, opts ...Option) (*Pipeline, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return FromConfig(cfg, opts...)
}

// FromConfig builds a pipeline from an already loaded configuration.
func FromConfig(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	return fromConfig(cfg, agentdef.Default(), opts)
}

func fromConfig(cfg *config.Config, registry agentdef.Registry, opts []Option) (*Pipeline, error) {
	sched, err := schedule.Build(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithMaxConcurrency(cfg.MaxConcurrency),
		WithPollInterval(cfg.PollInterval.Duration),
	}
	if cfg.LenientDependencies {
		base = append(base, WithLenientDependencies())
	}
	engine, err := New(cfg.Runner, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	agents, err := agentdef.CreateAgents(cfg.Agents, registry)
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		if err := engine.Add(a); err != nil {
			return nil, fmt.Errorf("register %s: %w", a.Name(), err)
		}
	}

	return &Pipeline{Config: cfg, Engine: engine, Schedule: sched}, nil
}

// Run runs the pipeline once with its configured scheduler. Schedulers keep
// state, so a Pipeline is not reusable after Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	return p.Engine.Run(ctx, p.Schedule)
}
