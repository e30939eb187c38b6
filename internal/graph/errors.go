package graph

import (
	"fmt"
	"strings"

	"github.com/aixgo-dev/dataflow/agent"
)

// CycleError provides detailed information about a dependency cycle.
type CycleError struct {
	Path []string
}

// Error returns a human-readable description of the cycle.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Unwrap returns the base error for errors.Is compatibility.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// UnresolvedError reports a declared dependency that matched no registered agent.
type UnresolvedError struct {
	Agent      string
	Dependency agent.Dependency
}

// Error returns a human-readable description of the missing producer.
func (e *UnresolvedError) Error() string {
	if e.Dependency.Name != "" {
		return fmt.Sprintf("unresolved dependency: agent %q consumes from %s %q, which is not registered",
			e.Agent, e.Dependency.Kind, e.Dependency.Name)
	}
	return fmt.Sprintf("unresolved dependency: agent %q consumes from kind %q, which has no registered instance",
		e.Agent, e.Dependency.Kind)
}

// Unwrap returns the base error for errors.Is compatibility.
func (e *UnresolvedError) Unwrap() error {
	return ErrUnresolvedDependency
}
