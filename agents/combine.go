package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aixgo-dev/dataflow/agent"
	agentdef "github.com/aixgo-dev/dataflow/internal/agent"
)

func init() {
	agentdef.Register(RoleCombiner, func(def agentdef.AgentDef) (agent.Agent, error) {
		kinds := make([]string, len(def.Inputs))
		for i, in := range def.Inputs {
			kinds[i] = in.Kind
		}
		c := &Combiner{Kinds: kinds, Separator: def.GetString("separator", "-"), log: agentLogger(def)}
		return agent.NewMultiSource[string](def.Name, def.KindOrRole(), c, def.Inputs...), nil
	})
}

// Combiner joins the values of several producers into one string. Values are
// taken in the order of Kinds; kinds with no value are skipped.
type Combiner struct {
	Kinds     []string
	Separator string

	log    *slog.Logger
	inputs map[string]any
	out    string
}

func (c *Combiner) ConsumeMultiple(inputs map[string]any) { c.inputs = inputs }

func (c *Combiner) Compute(context.Context) error {
	parts := make([]string, 0, len(c.Kinds))
	for _, kind := range c.Kinds {
		if v, ok := c.inputs[kind]; ok {
			parts = append(parts, fmt.Sprint(v))
		}
	}
	c.out = strings.Join(parts, c.Separator)
	if c.log != nil {
		c.log.Debug("combined", "inputs", len(parts), "result", c.out)
	}
	return nil
}

func (c *Combiner) Produce() string { return c.out }
