package agent

import (
	"context"
	"fmt"
	"sync"
)

// Initializer is an optional hook on processors, called from the agent's Initialize.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Finalizer is an optional hook on processors, called from the agent's Finish.
type Finalizer interface {
	Finish(ctx context.Context) error
}

// Base holds the identity, declared dependencies and produced value shared by
// all base agents. It is safe to read the produced value while another
// goroutine stores it.
type Base struct {
	name     string
	kind     string
	deps     []Dependency
	mu       sync.RWMutex
	produced any
}

// NewBase creates a Base. The dependency slice is copied.
func NewBase(name, kind string, deps ...Dependency) *Base {
	d := make([]Dependency, len(deps))
	copy(d, deps)
	return &Base{name: name, kind: kind, deps: d}
}

// Name returns the agent's instance name.
func (b *Base) Name() string { return b.name }

// Kind returns the agent's kind.
func (b *Base) Kind() string { return b.kind }

// String returns the agent's name.
func (b *Base) String() string { return b.name }

// ConsumesFrom returns a copy of the declared dependencies.
func (b *Base) ConsumesFrom() []Dependency {
	d := make([]Dependency, len(b.deps))
	copy(d, b.deps)
	return d
}

// Produced returns the value stored by the last execution.
func (b *Base) Produced() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.produced
}

// SetProduced overwrites the produced value.
func (b *Base) SetProduced(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.produced = v
}

func initHook(ctx context.Context, v any) error {
	if h, ok := v.(Initializer); ok {
		return h.Initialize(ctx)
	}
	return nil
}

func finishHook(ctx context.Context, v any) error {
	if h, ok := v.(Finalizer); ok {
		return h.Finish(ctx)
	}
	return nil
}

// convert asserts an upstream value to T.
func convert[T any](agentName string, v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: agent %s expected %T, got %T", ErrUnexpectedInput, agentName, zero, v)
	}
	return t, nil
}

// Processor is the logic behind a single-source Computational agent.
type Processor[In, Out any] interface {
	// Consume receives the upstream value. It is not called when no input was wired.
	Consume(input In)

	// Compute runs the agent's computation.
	Compute(ctx context.Context) error

	// Produce returns the agent's result after Compute.
	Produce() Out
}

// Computational is a batch agent with at most one upstream producer. Execute
// consumes the pending input (if any), computes, and stores the produced value.
type Computational[In, Out any] struct {
	*Base
	proc     Processor[In, Out]
	input    any
	hasInput bool
}

// NewComputational creates a single-source batch agent.
func NewComputational[In, Out any](name, kind string, proc Processor[In, Out], deps ...Dependency) *Computational[In, Out] {
	return &Computational[In, Out]{
		Base: NewBase(name, kind, deps...),
		proc: proc,
	}
}

// SetInput fills the pending-input slot. A nil value leaves the slot empty.
func (c *Computational[In, Out]) SetInput(value any) {
	c.input = value
	c.hasInput = value != nil
}

// Processor returns the agent's processor.
func (c *Computational[In, Out]) Processor() Processor[In, Out] { return c.proc }

// Initialize implements Agent.
func (c *Computational[In, Out]) Initialize(ctx context.Context) error {
	c.input, c.hasInput = nil, false
	return initHook(ctx, c.proc)
}

// Execute implements Agent.
func (c *Computational[In, Out]) Execute(ctx context.Context) error {
	if c.hasInput {
		in, err := convert[In](c.name, c.input)
		if err != nil {
			return err
		}
		c.proc.Consume(in)
	}
	if err := c.proc.Compute(ctx); err != nil {
		return err
	}
	c.SetProduced(c.proc.Produce())
	return nil
}

// Finish implements Agent.
func (c *Computational[In, Out]) Finish(ctx context.Context) error {
	return finishHook(ctx, c.proc)
}

// MultiProcessor is the logic behind a MultiSource agent.
type MultiProcessor[Out any] interface {
	// ConsumeMultiple receives the upstream values keyed by producer kind.
	// It is not called when no input was wired.
	ConsumeMultiple(inputs map[string]any)

	Compute(ctx context.Context) error

	Produce() Out
}

// MultiSource is a batch agent combining the values of several producers.
type MultiSource[Out any] struct {
	*Base
	proc   MultiProcessor[Out]
	inputs map[string]any
}

// NewMultiSource creates a multi-source batch agent.
func NewMultiSource[Out any](name, kind string, proc MultiProcessor[Out], deps ...Dependency) *MultiSource[Out] {
	return &MultiSource[Out]{
		Base:   NewBase(name, kind, deps...),
		proc:   proc,
		inputs: make(map[string]any),
	}
}

// SetInputs merges values into the pending inputs, overwriting per kind.
// Nil values are ignored.
func (m *MultiSource[Out]) SetInputs(values map[string]any) {
	for k, v := range values {
		if v == nil {
			continue
		}
		m.inputs[k] = v
	}
}

// Processor returns the agent's processor.
func (m *MultiSource[Out]) Processor() MultiProcessor[Out] { return m.proc }

// Initialize implements Agent.
func (m *MultiSource[Out]) Initialize(ctx context.Context) error {
	m.inputs = make(map[string]any)
	return initHook(ctx, m.proc)
}

// Execute implements Agent.
func (m *MultiSource[Out]) Execute(ctx context.Context) error {
	if len(m.inputs) > 0 {
		snapshot := make(map[string]any, len(m.inputs))
		for k, v := range m.inputs {
			snapshot[k] = v
		}
		m.proc.ConsumeMultiple(snapshot)
	}
	if err := m.proc.Compute(ctx); err != nil {
		return err
	}
	m.SetProduced(m.proc.Produce())
	return nil
}

// Finish implements Agent.
func (m *MultiSource[Out]) Finish(ctx context.Context) error {
	return finishHook(ctx, m.proc)
}
