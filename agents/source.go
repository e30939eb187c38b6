package agents

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aixgo-dev/dataflow/agent"
	agentdef "github.com/aixgo-dev/dataflow/internal/agent"
)

func init() {
	agentdef.Register(RoleNumberSource, func(def agentdef.AgentDef) (agent.Agent, error) {
		src := &NumberSource{
			Value:    def.GetInt("value", 0),
			Interval: def.Interval.Duration,
			log:      agentLogger(def),
		}
		return agent.NewComputational[int, int](def.Name, def.KindOrRole(), src, def.Inputs...), nil
	})
	agentdef.Register(RoleTextSource, func(def agentdef.AgentDef) (agent.Agent, error) {
		src := &TextSource{Value: def.GetString("value", ""), log: agentLogger(def)}
		return agent.NewComputational[string, string](def.Name, def.KindOrRole(), src, def.Inputs...), nil
	})
	agentdef.Register(RoleArraySource, func(def agentdef.AgentDef) (agent.Agent, error) {
		var values []int
		if err := def.UnmarshalKey("values", &values); err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}
		src := &ArraySource{Values: values, log: agentLogger(def)}
		return agent.NewComputational[[]int, []int](def.Name, def.KindOrRole(), src, def.Inputs...), nil
	})
}

// NumberSource produces a fixed integer. An upstream value, when wired,
// replaces it for the rest of the run. A non-zero Interval delays every
// computation, simulating slow work.
type NumberSource struct {
	Value    int
	Interval time.Duration

	log     *slog.Logger
	current int
}

func (s *NumberSource) Initialize(ctx context.Context) error {
	s.current = s.Value
	return nil
}

func (s *NumberSource) Consume(v int) { s.current = v }

func (s *NumberSource) Compute(ctx context.Context) error {
	if err := pause(ctx, s.Interval); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Debug("producing", "value", s.current)
	}
	return nil
}

func (s *NumberSource) Produce() int { return s.current }

// TextSource produces a fixed string.
type TextSource struct {
	Value string

	log     *slog.Logger
	current string
}

func (s *TextSource) Initialize(ctx context.Context) error {
	s.current = s.Value
	return nil
}

func (s *TextSource) Consume(v string) { s.current = v }

func (s *TextSource) Compute(ctx context.Context) error {
	if s.log != nil {
		s.log.Debug("producing", "value", s.current)
	}
	return nil
}

func (s *TextSource) Produce() string { return s.current }

// ArraySource produces a fixed slice of integers. Consumers receive a copy.
type ArraySource struct {
	Values []int

	log     *slog.Logger
	current []int
}

func (s *ArraySource) Initialize(ctx context.Context) error {
	s.current = slices.Clone(s.Values)
	return nil
}

func (s *ArraySource) Consume(v []int) { s.current = slices.Clone(v) }

func (s *ArraySource) Compute(ctx context.Context) error {
	if s.log != nil {
		s.log.Debug("producing", "values", s.current)
	}
	return nil
}

func (s *ArraySource) Produce() []int { return slices.Clone(s.current) }
