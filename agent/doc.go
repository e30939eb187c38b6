// Package agent provides the public contracts for agents run by the dataflow engine.
//
// An agent is a named unit of work with a fixed lifecycle: Initialize once per
// run, Execute one or more times, Finish exactly once. Agents declare the
// producers they consume from by kind (and optionally by instance name); the
// engine resolves those declarations to registered instances, orders the graph
// so producers run before consumers, and hands produced values to consumers.
//
// # Batch agents
//
// Implement a Processor and wrap it with NewComputational:
//
//	type divider struct {
//	    in, out float64
//	}
//
//	func (d *divider) Consume(v int)                       { d.in = float64(v) }
//	func (d *divider) Compute(ctx context.Context) error   { d.out = d.in / 10; return nil }
//	func (d *divider) Produce() float64                    { return d.out }
//
//	a := agent.NewComputational[int, float64]("B", "divider", &divider{}, agent.From("source"))
//
// Agents combining several producers use NewMultiSource; their processor receives
// the latest values keyed by producer kind.
//
// # Streaming agents
//
// NewStreamProducer wraps a Generator whose iter.Seq is advanced one item per
// Execute. NewStreamConsumer wraps an ItemProcessor fed through a FIFO queue;
// it completes once every upstream stream has completed and its queue is empty.
//
//	nums := agent.NewStreamProducer[int]("numbers", "numbers", agent.GeneratorFunc[int](func() iter.Seq[int] {
//	    return func(yield func(int) bool) {
//	        for i := 1; i <= 5; i++ {
//	            if !yield(i) {
//	                return
//	            }
//	        }
//	    }
//	}))
//
// Processors may implement Initializer and Finalizer to hook into the agent's
// lifecycle.
package agent
