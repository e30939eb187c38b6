package dataflow

import (
	"context"

	"github.com/aixgo-dev/dataflow/agent"
	"github.com/aixgo-dev/dataflow/schedule"
)

// Runner executes agents one at a time in dependency order.
type Runner struct {
	engine
}

// NewRunner creates a sequential runner.
func NewRunner(opts ...Option) *Runner {
	return &Runner{engine: newEngine(RunnerSequential, opts)}
}

// Run implements Engine.
func (r *Runner) Run(ctx context.Context, s schedule.Scheduler) error {
	return r.run(ctx, s, r.epoch)
}

// RunSchedule implements Engine.
func (r *Runner) RunSchedule(ctx context.Context, name string) error {
	s, err := schedule.New(name)
	if err != nil {
		return err
	}
	return r.Run(ctx, s)
}

func (r *Runner) epoch(ctx context.Context, s *runState) error {
	for _, a := range s.order {
		if agent.IsStreaming(a) || s.executed[a.Name()] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		s.wire(a, agent.ProducedBy, everyProducer)
		if err := s.call(ctx, a, PhaseExecute, a.Execute); err != nil {
			return err
		}
		s.executed[a.Name()] = true
	}

	return s.drain(ctx, agent.ProducedBy, s.stream.Drain)
}
