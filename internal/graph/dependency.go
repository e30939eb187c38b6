// Package graph provides dependency graph construction and ordering for agent execution.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrCycleDetected is returned when a dependency cycle is found in the graph.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrUnknownDependency is returned when an agent depends on an unknown agent.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrUnresolvedDependency is returned when a declared dependency matches no registered agent.
	ErrUnresolvedDependency = errors.New("unresolved dependency")
)

// Node represents an agent in the dependency graph.
type Node struct {
	Name         string
	Dependencies []string
	index        int
}

// DependencyGraph is a directed graph over agents with edges drawn from
// producers to consumers. Nodes keep their insertion order, which is the
// tie-break order for every traversal.
type DependencyGraph struct {
	nodes map[string]*Node
	order []*Node
	mu    sync.RWMutex
}

// NewDependencyGraph creates a new empty dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*Node),
	}
}

// AddNode adds an agent to the dependency graph with the names of its producers.
// Duplicate producer names are collapsed. Adding an existing name replaces its
// dependencies but keeps its position.
func (g *DependencyGraph) AddNode(name string, dependencies []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Copy dependencies to avoid external mutation
	deps := make([]string, 0, len(dependencies))
	seen := make(map[string]bool, len(dependencies))
	for _, d := range dependencies {
		if seen[d] {
			continue
		}
		seen[d] = true
		deps = append(deps, d)
	}

	if n, exists := g.nodes[name]; exists {
		n.Dependencies = deps
		return
	}

	n := &Node{Name: name, Dependencies: deps, index: len(g.order)}
	g.nodes[name] = n
	g.order = append(g.order, n)
}

// Validate checks the graph for cycles and unknown dependencies.
// Returns an error if validation fails, nil otherwise.
func (g *DependencyGraph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if err := g.checkUnknown(); err != nil {
		return err
	}
	_, err := g.depthFirst()
	return err
}

// TopologicalOrder returns all agent names ordered so that every producer
// precedes each of its consumers. Independent agents keep insertion order, so
// repeated calls on an unchanged graph return the same order.
func (g *DependencyGraph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if err := g.checkUnknown(); err != nil {
		return nil, err
	}
	return g.depthFirst()
}

func (g *DependencyGraph) checkUnknown() error {
	for _, node := range g.order {
		for _, dep := range node.Dependencies {
			if _, exists := g.nodes[dep]; !exists {
				return fmt.Errorf("%w: agent %q depends on unknown agent %q",
					ErrUnknownDependency, node.Name, dep)
			}
		}
	}
	return nil
}

// depthFirst runs a depth-first traversal over producers with three-state marking.
// Colors: 0=white (unvisited), 1=gray (visiting), 2=black (visited)
func (g *DependencyGraph) depthFirst() ([]string, error) {
	colors := make([]uint8, len(g.order))
	sorted := make([]string, 0, len(g.order))
	var stack []string

	var visit func(n *Node) error
	visit = func(n *Node) error {
		switch colors[n.index] {
		case 1:
			// Found a cycle - build the cycle path for the error message
			cycleStart := 0
			for i, name := range stack {
				if name == n.Name {
					cycleStart = i
					break
				}
			}
			path := make([]string, 0, len(stack)-cycleStart+1)
			path = append(path, stack[cycleStart:]...)
			path = append(path, n.Name)
			return &CycleError{Path: path}
		case 2:
			return nil
		}

		colors[n.index] = 1
		stack = append(stack, n.Name)

		for _, dep := range n.Dependencies {
			if err := visit(g.nodes[dep]); err != nil {
				return err
			}
		}

		colors[n.index] = 2
		stack = stack[:len(stack)-1]
		sorted = append(sorted, n.Name)
		return nil
	}

	for _, n := range g.order {
		if colors[n.index] == 0 {
			if err := visit(n); err != nil {
				return nil, err
			}
		}
	}
	return sorted, nil
}

// TopologicalLevels returns agents grouped by dependency level using Kahn's algorithm.
// Level 0 contains agents with no dependencies.
// Level N contains agents whose dependencies are all in levels < N.
// Agents within the same level can run in parallel and keep insertion order.
//
// Returns an error if the graph contains cycles or unknown dependencies.
func (g *DependencyGraph) TopologicalLevels() ([][]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.order) == 0 {
		return nil, nil
	}

	// In-degree = number of producers not yet placed in a level
	inDegree := make(map[string]int, len(g.order))
	for _, n := range g.order {
		inDegree[n.Name] = len(n.Dependencies)
	}

	dependents := g.dependents()

	var levels [][]string
	remaining := len(g.order)

	for remaining > 0 {
		var current []*Node
		for name, degree := range inDegree {
			if degree == 0 {
				current = append(current, g.nodes[name])
			}
		}

		if len(current) == 0 {
			// This should not happen if Validate() passed
			return nil, ErrCycleDetected
		}

		sort.Slice(current, func(i, j int) bool { return current[i].index < current[j].index })

		level := make([]string, len(current))
		for i, n := range current {
			level[i] = n.Name
			delete(inDegree, n.Name)
			for _, dependent := range dependents[n.Name] {
				inDegree[dependent]--
			}
		}

		levels = append(levels, level)
		remaining -= len(current)
	}

	return levels, nil
}

// dependents builds the reverse adjacency list (producer -> consumers) in
// insertion order of the consumers.
func (g *DependencyGraph) dependents() map[string][]string {
	out := make(map[string][]string)
	for _, n := range g.order {
		for _, dep := range n.Dependencies {
			out[dep] = append(out[dep], n.Name)
		}
	}
	return out
}

// Dependents returns the consumers of the given agent in insertion order.
func (g *DependencyGraph) Dependents(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for _, n := range g.order {
		for _, dep := range n.Dependencies {
			if dep == name {
				out = append(out, n.Name)
				break
			}
		}
	}
	return out
}

// Names returns all node names in insertion order.
func (g *DependencyGraph) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, len(g.order))
	for i, n := range g.order {
		names[i] = n.Name
	}
	return names
}

// NodeCount returns the number of nodes in the graph.
func (g *DependencyGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// GetDependencies returns the dependencies for a given agent.
// Returns nil if the agent is not found.
func (g *DependencyGraph) GetDependencies(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[name]
	if !exists {
		return nil
	}

	// Return a copy to prevent external mutation
	deps := make([]string, len(node.Dependencies))
	copy(deps, node.Dependencies)
	return deps
}
