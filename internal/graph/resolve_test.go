package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/dataflow/agent"
)

type stubAgent struct {
	*agent.Base
}

func (stubAgent) Initialize(context.Context) error { return nil }
func (stubAgent) Execute(context.Context) error    { return nil }
func (stubAgent) Finish(context.Context) error     { return nil }

func stub(name, kind string, deps ...agent.Dependency) agent.Agent {
	return stubAgent{Base: agent.NewBase(name, kind, deps...)}
}

func TestResolve(t *testing.T) {
	agents := []agent.Agent{
		stub("source", "array"),
		stub("P1", "multiplier"),
		stub("P2", "multiplier"),
	}

	t.Run("first of kind", func(t *testing.T) {
		a, ok := Resolve(agents, agent.From("multiplier"))
		require.True(t, ok)
		assert.Equal(t, "P1", a.Name())
	})

	t.Run("named instance", func(t *testing.T) {
		a, ok := Resolve(agents, agent.FromInstance("multiplier", "P2"))
		require.True(t, ok)
		assert.Equal(t, "P2", a.Name())
	})

	t.Run("name must match kind", func(t *testing.T) {
		_, ok := Resolve(agents, agent.FromInstance("array", "P2"))
		assert.False(t, ok)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, ok := Resolve(agents, agent.From("missing"))
		assert.False(t, ok)
	})
}

func TestBuild_NamedInstance(t *testing.T) {
	// The consumer is registered before its producers and names the second
	// instance of its kind.
	agents := []agent.Agent{
		stub("C", "collector", agent.FromInstance("multiplier", "P2")),
		stub("P1", "multiplier"),
		stub("P2", "multiplier"),
	}

	res := Build(agents)
	require.NoError(t, res.Err())
	assert.Equal(t, []string{"P2"}, res.Graph.GetDependencies("C"))

	order, err := res.Graph.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"P2", "C", "P1"}, order)
}

func TestBuild_FanOut(t *testing.T) {
	agents := []agent.Agent{
		stub("source", "array"),
		stub("x2", "multiply2", agent.From("array")),
		stub("x3", "multiply3", agent.From("array")),
		stub("x4", "multiply4", agent.From("array")),
		stub("collector", "collector", agent.From("multiply2"), agent.From("multiply3"), agent.From("multiply4")),
	}

	res := Build(agents)
	require.NoError(t, res.Err())

	levels, err := res.Graph.TopologicalLevels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"source"}, {"x2", "x3", "x4"}, {"collector"}}, levels)
	assert.Equal(t, []string{"x2", "x3", "x4"}, res.Graph.Dependents("source"))
}

func TestBuild_Unresolved(t *testing.T) {
	agents := []agent.Agent{
		stub("A", "numbers"),
		stub("B", "divider", agent.From("numbers"), agent.FromInstance("numbers", "other")),
	}

	res := Build(agents)
	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, []string{"A"}, res.Graph.GetDependencies("B"))

	err := res.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedDependency))

	var unresolved *UnresolvedError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "B", unresolved.Agent)
	assert.Equal(t, "other", unresolved.Dependency.Name)
}

func TestBuild_SelfCycle(t *testing.T) {
	agents := []agent.Agent{
		stub("A", "loop", agent.From("loop")),
	}

	res := Build(agents)
	require.NoError(t, res.Err())

	_, err := res.Graph.TopologicalOrder()
	assert.ErrorIs(t, err, ErrCycleDetected)
}
