// Package dataflow runs graphs of agents that declare which other agents'
// output they consume.
//
// A runner resolves the declared dependencies once per run, orders the agents
// topologically and executes them in epochs chosen by a schedule.Scheduler.
// Each epoch executes the batch agents (Runner one at a time, ParallelRunner in
// concurrent waves) and then drains the streaming agents, pushing every item a
// stream producer emits to its consumers.
//
//	r := dataflow.NewRunner()
//	_ = r.Add(source)
//	_ = r.Add(sink)
//	err := r.Run(ctx, schedule.RunOnce())
package dataflow

// Version is the library version reported by the CLI and the health endpoint.
var Version = "dev"
