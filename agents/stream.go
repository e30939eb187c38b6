package agents

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/aixgo-dev/dataflow/agent"
	agentdef "github.com/aixgo-dev/dataflow/internal/agent"
)

// DefaultStreamCount is the number of items a number_stream emits when no
// count is configured.
const DefaultStreamCount = 10

func init() {
	agentdef.Register(RoleNumberStream, func(def agentdef.AgentDef) (agent.Agent, error) {
		n := &NumberStream{
			Start:    def.GetInt("start", 1),
			Count:    def.GetInt("count", DefaultStreamCount),
			Interval: def.Interval.Duration,
			log:      agentLogger(def),
		}
		if n.Count < 0 {
			return nil, fmt.Errorf("%w: %s: count must not be negative", ErrInvalidSetting, def.Name)
		}
		return agent.NewStreamProducer[int](def.Name, def.KindOrRole(), n, def.Inputs...), nil
	})
	agentdef.Register(RoleStreamScaler, func(def agentdef.AgentDef) (agent.Agent, error) {
		s := &StreamScaler{Factor: def.GetInt("factor", 1)}
		return agent.NewStreamConsumer[int, int](def.Name, def.KindOrRole(), s, def.Inputs...), nil
	})
	agentdef.Register(RoleStreamSum, func(def agentdef.AgentDef) (agent.Agent, error) {
		return agent.NewStreamConsumer[int, int](def.Name, def.KindOrRole(), &StreamSum{log: agentLogger(def)}, def.Inputs...), nil
	})
	agentdef.Register(RoleHybrid, func(def agentdef.AgentDef) (agent.Agent, error) {
		return NewHybrid(def.Name, def.KindOrRole(), agentLogger(def), def.Inputs...), nil
	})
}

// NumberStream emits Count consecutive integers starting at Start, one per
// step. A non-zero Interval delays each item.
type NumberStream struct {
	Start    int
	Count    int
	Interval time.Duration

	log *slog.Logger
}

func (n *NumberStream) Generate() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := range n.Count {
			if !yield(n.Start + i) {
				return
			}
		}
	}
}

func (n *NumberStream) OnItem(ctx context.Context, item int) error {
	if n.log != nil {
		n.log.Debug("streaming", "item", item)
	}
	return pause(ctx, n.Interval)
}

func (n *NumberStream) Finish(context.Context) error {
	if n.log != nil {
		n.log.Debug("stream finished", "count", n.Count)
	}
	return nil
}

// StreamScaler multiplies every item by Factor and forwards it downstream.
type StreamScaler struct {
	Factor int

	last int
}

func (s *StreamScaler) ConsumeItem(_ context.Context, item int) error {
	s.last = item * s.Factor
	return nil
}

func (s *StreamScaler) Produce() int { return s.last }

// StreamSum keeps a running sum and count of the items it receives.
// Produce returns the running sum.
type StreamSum struct {
	log   *slog.Logger
	mu    sync.Mutex
	sum   int
	count int
}

func (s *StreamSum) Initialize(context.Context) error {
	s.mu.Lock()
	s.sum, s.count = 0, 0
	s.mu.Unlock()
	return nil
}

func (s *StreamSum) ConsumeItem(_ context.Context, item int) error {
	s.mu.Lock()
	s.sum += item
	s.count++
	s.mu.Unlock()
	return nil
}

func (s *StreamSum) Produce() int { return s.Sum() }

// Sum returns the running sum.
func (s *StreamSum) Sum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}

// Count returns the number of items received.
func (s *StreamSum) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *StreamSum) Finish(context.Context) error {
	if s.log != nil {
		s.log.Info("stream summed", "sum", s.Sum(), "count", s.Count())
	}
	return nil
}
