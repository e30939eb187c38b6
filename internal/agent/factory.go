package agent

import (
	"fmt"

	"github.com/aixgo-dev/dataflow/agent"
)

// CreateAgent creates an agent using the default registry
func CreateAgent(def AgentDef) (agent.Agent, error) {
	return CreateAgentWithRegistry(def, defaultRegistry)
}

// CreateAgentWithRegistry creates an agent using a custom registry (useful for testing)
func CreateAgentWithRegistry(def AgentDef, registry Registry) (agent.Agent, error) {
	if factory, ok := registry.GetFactory(def.Role); ok {
		a, err := factory(def)
		if err != nil {
			return nil, fmt.Errorf("create agent %s (role %s): %w", def.Name, def.Role, err)
		}
		return a, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownRole, def.Role)
}

// CreateAgents creates every agent of defs in order.
func CreateAgents(defs []AgentDef, registry Registry) ([]agent.Agent, error) {
	agents := make([]agent.Agent, 0, len(defs))
	for _, def := range defs {
		a, err := CreateAgentWithRegistry(def, registry)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}
