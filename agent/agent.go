package agent

import (
	"context"
	"errors"
)

// ErrUnexpectedInput is returned by the base agents when an upstream value cannot
// be converted to the type the agent consumes.
var ErrUnexpectedInput = errors.New("unexpected input type")

// Agent is the interface that all agents must implement.
//
// The engine calls Initialize once per run, Execute one or more times and Finish
// exactly once per run, in that order. Finish is called even when an earlier
// Execute returned an error.
type Agent interface {
	// Name returns the unique identifier for this agent instance.
	// Agent names must be unique within a runner.
	Name() string

	// Kind returns the agent's type. Dependencies are declared against kinds,
	// optionally narrowed to an instance name.
	Kind() string

	// Initialize acquires the resources the agent needs for a run.
	Initialize(ctx context.Context) error

	// Execute performs one unit of work. Batch agents run their computation and
	// store the result as their produced value; streaming agents advance by
	// at most one item.
	Execute(ctx context.Context) error

	// Finish releases everything acquired in Initialize.
	Finish(ctx context.Context) error
}

// Dependency declares an upstream producer by kind and, optionally, by instance name.
type Dependency struct {
	Kind string `yaml:"kind" json:"kind"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// From declares a dependency on the first registered agent of the given kind.
func From(kind string) Dependency {
	return Dependency{Kind: kind}
}

// FromInstance declares a dependency on the agent of the given kind and name.
func FromInstance(kind, name string) Dependency {
	return Dependency{Kind: kind, Name: name}
}

// String returns "kind" or "kind/name".
func (d Dependency) String() string {
	if d.Name == "" {
		return d.Kind
	}
	return d.Kind + "/" + d.Name
}

// Dependent is implemented by agents that consume values from other agents.
// The declarations must not change once the agent has been registered.
type Dependent interface {
	ConsumesFrom() []Dependency
}

// Producer exposes the value stored by the most recent Execute.
type Producer interface {
	Produced() any
}

// Consumer receives the value of its single upstream producer before Execute.
type Consumer interface {
	SetInput(value any)
}

// MultiConsumer receives the latest values of all its upstream producers, keyed
// by producer kind. Two producers of the same kind share one key and the last
// write wins.
type MultiConsumer interface {
	SetInputs(values map[string]any)
}

// Streamer is implemented by agents that produce or consume an incremental stream.
type Streamer interface {
	// HasMoreData reports whether the stream is still open.
	HasMoreData() bool

	// SignalStreamComplete closes the stream until the next Initialize.
	SignalStreamComplete()
}

// StreamReceiver is a streaming agent that accepts items pushed by the engine.
type StreamReceiver interface {
	Streamer

	// Enqueue appends one item to the agent's FIFO queue.
	Enqueue(item any)

	// Pending returns the number of queued items.
	Pending() int

	// NotifyProducerComplete tells the agent that every upstream stream is done.
	// The agent completes once its queue is drained.
	NotifyProducerComplete()
}

// IsStreaming reports whether a participates in the streaming sub-loop.
func IsStreaming(a Agent) bool {
	_, ok := a.(Streamer)
	return ok
}

// DependenciesOf returns the declared dependencies of a, or nil for sources.
func DependenciesOf(a Agent) []Dependency {
	if d, ok := a.(Dependent); ok {
		return d.ConsumesFrom()
	}
	return nil
}

// ProducedBy returns the produced value of a, or nil if a produces nothing.
func ProducedBy(a Agent) any {
	if p, ok := a.(Producer); ok {
		return p.Produced()
	}
	return nil
}
