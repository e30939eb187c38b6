package dataflow

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aixgo-dev/dataflow/agent"
)

// Plan describes how a runner would execute its registered agents.
type Plan struct {
	// Order is the topological execution order.
	Order []string `json:"order" yaml:"order"`

	// Dependencies maps each agent to its resolved producers in declaration order.
	Dependencies map[string][]string `json:"dependencies" yaml:"dependencies"`

	// Levels groups batch and streaming agents by depth; agents of one level
	// share no dependencies and form one wave of the parallel runner.
	Levels [][]string `json:"levels" yaml:"levels"`

	// Streaming lists the agents driven by the streaming sub-loop.
	Streaming []string `json:"streaming,omitempty" yaml:"streaming,omitempty"`

	// Unresolved lists declared dependencies that matched no agent.
	Unresolved []string `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
}

// Plan implements Engine. Cycles are reported as errors; unresolved
// dependencies are listed in the plan and are only an error when the runner
// is strict.
func (e *engine) Plan() (*Plan, error) {
	res, order, err := e.build()
	if err != nil {
		return nil, err
	}
	levels, err := res.Graph.TopologicalLevels()
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Order:        make([]string, len(order)),
		Dependencies: make(map[string][]string, len(order)),
		Levels:       levels,
	}
	for i, a := range order {
		p.Order[i] = a.Name()
		p.Dependencies[a.Name()] = res.Graph.GetDependencies(a.Name())
		if agent.IsStreaming(a) {
			p.Streaming = append(p.Streaming, a.Name())
		}
	}

	var errs []error
	for _, u := range res.Unresolved {
		p.Unresolved = append(p.Unresolved, u.Error())
		errs = append(errs, u)
	}
	if !e.cfg.LenientDependencies {
		return p, errors.Join(errs...)
	}
	return p, nil
}

// Write prints the plan in a human readable form.
func (p *Plan) Write(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintln(&b, "Execution order:")
	for i, name := range p.Order {
		deps := p.Dependencies[name]
		if len(deps) == 0 {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, name)
			continue
		}
		fmt.Fprintf(&b, "  %d. %s <- %s\n", i+1, name, strings.Join(deps, ", "))
	}

	fmt.Fprintln(&b, "Waves:")
	for i, level := range p.Levels {
		fmt.Fprintf(&b, "  %d: %s\n", i+1, strings.Join(level, ", "))
	}

	if len(p.Streaming) > 0 {
		fmt.Fprintf(&b, "Streaming: %s\n", strings.Join(p.Streaming, ", "))
	}
	for _, u := range p.Unresolved {
		fmt.Fprintf(&b, "Unresolved: %s\n", u)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
