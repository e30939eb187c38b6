package graph

import (
	"github.com/aixgo-dev/dataflow/agent"
)

// Resolution is the outcome of resolving every agent's declared dependencies
// against the registered agents.
type Resolution struct {
	// Graph holds one node per agent, in registration order, with edges to the
	// resolved producers in declaration order.
	Graph *DependencyGraph

	// Unresolved lists declarations that matched no registered agent. No edge
	// is added for them.
	Unresolved []*UnresolvedError
}

// Err returns the first unresolved dependency as an error, or nil.
func (r *Resolution) Err() error {
	if len(r.Unresolved) == 0 {
		return nil
	}
	return r.Unresolved[0]
}

// Resolve finds the registered producer for a declared dependency. With an
// instance name both kind and name must match; without one the first agent of
// that kind in registration order is selected.
func Resolve(agents []agent.Agent, dep agent.Dependency) (agent.Agent, bool) {
	for _, a := range agents {
		if a.Kind() != dep.Kind {
			continue
		}
		if dep.Name != "" && a.Name() != dep.Name {
			continue
		}
		return a, true
	}
	return nil, false
}

// Build resolves the declared dependencies of agents, given in registration
// order, and returns the resulting graph.
func Build(agents []agent.Agent) *Resolution {
	res := &Resolution{Graph: NewDependencyGraph()}

	for _, a := range agents {
		var producers []string
		for _, dep := range agent.DependenciesOf(a) {
			p, ok := Resolve(agents, dep)
			if !ok {
				res.Unresolved = append(res.Unresolved, &UnresolvedError{Agent: a.Name(), Dependency: dep})
				continue
			}
			producers = append(producers, p.Name())
		}
		res.Graph.AddNode(a.Name(), producers)
	}

	return res
}
