package agents

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aixgo-dev/dataflow/agent"
	agentdef "github.com/aixgo-dev/dataflow/internal/agent"
)

func init() {
	agentdef.Register(RoleFormatter, func(def agentdef.AgentDef) (agent.Agent, error) {
		f := &Formatter{Format: def.GetString("format", "%v"), log: agentLogger(def)}
		return agent.NewComputational[any, string](def.Name, def.KindOrRole(), f, def.Inputs...), nil
	})
	agentdef.Register(RoleCollector, func(def agentdef.AgentDef) (agent.Agent, error) {
		return agent.NewComputational[any, int](def.Name, def.KindOrRole(), &Collector{log: agentLogger(def)}, def.Inputs...), nil
	})
}

// Formatter renders its input with a fmt verb string and logs the result.
type Formatter struct {
	Format string

	log     *slog.Logger
	in      any
	pending bool
	out     string
}

func (f *Formatter) Consume(v any) { f.in, f.pending = v, true }

func (f *Formatter) Compute(context.Context) error {
	if !f.pending {
		return nil
	}
	f.pending = false
	f.out = fmt.Sprintf(f.Format, f.in)
	if f.log != nil {
		f.log.Info(f.out)
	}
	return nil
}

func (f *Formatter) Produce() string { return f.out }

// Collector records every value it receives during a run. Produce returns
// the number collected so far.
type Collector struct {
	log     *slog.Logger
	mu      sync.Mutex
	values  []any
	in      any
	pending bool
}

func (c *Collector) Initialize(context.Context) error {
	c.mu.Lock()
	c.values = nil
	c.mu.Unlock()
	c.pending = false
	return nil
}

func (c *Collector) Consume(v any) { c.in, c.pending = v, true }

func (c *Collector) Compute(context.Context) error {
	if !c.pending {
		return nil
	}
	c.pending = false
	c.mu.Lock()
	c.values = append(c.values, c.in)
	c.mu.Unlock()
	if c.log != nil {
		c.log.Info("received", "value", c.in)
	}
	return nil
}

func (c *Collector) Produce() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Values returns a copy of the collected values.
func (c *Collector) Values() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.values)
}
