package dataflow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aixgo-dev/dataflow/agent"
	tracing "github.com/aixgo-dev/dataflow/internal/observability"
	metrics "github.com/aixgo-dev/dataflow/pkg/observability"
	"github.com/aixgo-dev/dataflow/schedule"
)

// ParallelRunner executes batch agents in waves. Every agent of a wave has all
// of its producers completed, and the agents of one wave run concurrently.
type ParallelRunner struct {
	engine
}

// NewParallelRunner creates a wave-parallel runner.
func NewParallelRunner(opts ...Option) *ParallelRunner {
	return &ParallelRunner{engine: newEngine(RunnerParallel, opts)}
}

// Run implements Engine.
func (r *ParallelRunner) Run(ctx context.Context, s schedule.Scheduler) error {
	return r.run(ctx, s, r.epoch)
}

// RunSchedule implements Engine.
func (r *ParallelRunner) RunSchedule(ctx context.Context, name string) error {
	s, err := schedule.New(name)
	if err != nil {
		return err
	}
	return r.Run(ctx, s)
}

func (r *ParallelRunner) epoch(ctx context.Context, s *runState) error {
	completed := make(map[string]bool, len(s.order))
	var remaining []agent.Agent
	for _, a := range s.order {
		switch {
		case agent.IsStreaming(a):
		case s.executed[a.Name()]:
			completed[a.Name()] = true
		default:
			remaining = append(remaining, a)
		}
	}

	for wave := 0; len(remaining) > 0; wave++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var ready, pending []agent.Agent
		for _, a := range remaining {
			if s.ready(a, completed) {
				ready = append(ready, a)
			} else {
				pending = append(pending, a)
			}
		}
		if len(ready) == 0 {
			names := make([]string, len(pending))
			for i, a := range pending {
				names[i] = a.Name()
			}
			s.logger.Error("stalled wave", "remaining", names)
			return &StalledWaveError{Remaining: names}
		}

		if err := s.runWave(ctx, wave, ready); err != nil {
			return err
		}
		for _, a := range ready {
			completed[a.Name()] = true
			s.executed[a.Name()] = true
		}
		remaining = pending
	}

	return s.drain(ctx, s.tableValue, func(ctx context.Context) error {
		return s.stream.DrainConcurrent(ctx, s.cfg.MaxConcurrency)
	})
}

// ready reports whether every producer of a is completed or streaming.
func (s *runState) ready(a agent.Agent, completed map[string]bool) bool {
	for _, p := range s.deps[a.Name()] {
		if !completed[p.Name()] && !agent.IsStreaming(p) {
			return false
		}
	}
	return true
}

// tableValue reads a producer's value from the wave table, falling back to
// the agent itself for streaming producers which never publish there.
func (s *runState) tableValue(a agent.Agent) any {
	if agent.IsStreaming(a) {
		return agent.ProducedBy(a)
	}
	return s.values.Load(a.Name())
}

// runWave wires inputs from the value table, executes the wave concurrently
// and publishes produced values once every agent of the wave has returned.
func (s *runState) runWave(ctx context.Context, wave int, ready []agent.Agent) (err error) {
	start := time.Now()
	if s.cfg.EnableTracing {
		var span trace.Span
		ctx, span = tracing.StartSpanWithOtel(ctx, "dataflow.wave",
			trace.WithAttributes(
				attribute.Int("wave", wave),
				attribute.Int("wave.size", len(ready)),
			))
		defer func() {
			endSpan(span, err)
		}()
	}

	for _, a := range ready {
		s.wire(a, s.tableValue, everyProducer)
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.MaxConcurrency > 0 {
		g.SetLimit(s.cfg.MaxConcurrency)
	}
	for _, a := range ready {
		g.Go(func() error {
			return s.call(gctx, a, PhaseExecute, a.Execute)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, a := range ready {
		s.values.Store(a.Name(), agent.ProducedBy(a))
	}

	if s.cfg.EnableMetrics {
		metrics.RecordWave(len(ready))
	}
	s.logger.Debug("wave complete", "wave", wave, "size", len(ready), "duration", time.Since(start))
	return nil
}
