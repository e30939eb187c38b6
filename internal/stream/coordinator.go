// Package stream coordinates streaming agents: it classifies them into
// producers and consumers, pushes produced items downstream and propagates
// stream completion.
package stream

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aixgo-dev/dataflow/agent"
)

// ExecFunc runs one agent step. Runners pass their instrumented execution so
// streaming steps are traced and counted like batch steps.
type ExecFunc func(ctx context.Context, a agent.Agent) error

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithExec sets the function used to execute agent steps.
func WithExec(fn ExecFunc) Option {
	return func(c *Coordinator) {
		c.exec = fn
	}
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithItemHook registers a callback invoked with the emitting agent's name for
// every item a stream producer emits and every item a consumer forwards to
// downstream consumers. Items consumed by a final sink are not reported.
func WithItemHook(fn func(producer string)) Option {
	return func(c *Coordinator) {
		c.onItem = fn
	}
}

// Coordinator drives the streaming agents of one run. Topology is computed
// once in New; completion state lives for the lifetime of the Coordinator.
type Coordinator struct {
	agents    map[string]agent.Agent
	producers []string
	consumers []string
	fanout    map[string][]string
	upstreams map[string]int

	// mu serializes push, step and completion tracking.
	mu        sync.Mutex
	completed map[string]bool
	doneUps   map[string]int

	exec   ExecFunc
	logger *slog.Logger
	onItem func(string)
}

// New analyses the streaming topology of agents, given in execution order.
// deps returns the names of the resolved producers of an agent.
func New(agents []agent.Agent, deps func(name string) []string, opts ...Option) *Coordinator {
	c := &Coordinator{
		agents:    make(map[string]agent.Agent, len(agents)),
		fanout:    make(map[string][]string),
		upstreams: make(map[string]int),
		completed: make(map[string]bool),
		doneUps:   make(map[string]int),
		exec: func(ctx context.Context, a agent.Agent) error {
			return a.Execute(ctx)
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, a := range agents {
		c.agents[a.Name()] = a
	}

	for _, a := range agents {
		if !agent.IsStreaming(a) {
			continue
		}
		name := a.Name()
		for _, up := range deps(name) {
			producer, ok := c.agents[up]
			if !ok || !agent.IsStreaming(producer) {
				continue
			}
			c.fanout[up] = append(c.fanout[up], name)
			c.upstreams[name]++
		}

		if c.upstreams[name] == 0 {
			c.producers = append(c.producers, name)
			if _, ok := a.(agent.StreamReceiver); ok {
				c.logger.Warn("streaming receiver has no streaming upstream and completes on its first step",
					"agent", name)
			}
			continue
		}
		c.consumers = append(c.consumers, name)
		if _, ok := a.(agent.StreamReceiver); !ok {
			c.logger.Warn("streaming agent has a streaming upstream but cannot receive items",
				"agent", name)
		}
	}

	return c
}

// Producers returns the stream producers in execution order.
func (c *Coordinator) Producers() []string {
	return append([]string(nil), c.producers...)
}

// Consumers returns the stream consumers in execution order.
func (c *Coordinator) Consumers() []string {
	return append([]string(nil), c.consumers...)
}

// FanOut returns the streaming consumers fed by the named agent.
func (c *Coordinator) FanOut(name string) []string {
	return append([]string(nil), c.fanout[name]...)
}

// Completed reports whether the named agent has been marked complete as an
// upstream.
func (c *Coordinator) Completed(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed[name]
}

// Empty reports whether there are no streaming agents.
func (c *Coordinator) Empty() bool {
	return len(c.producers) == 0 && len(c.consumers) == 0
}

// Active reports whether any stream producer or consumer still has data.
func (c *Coordinator) Active() bool {
	for _, name := range c.producers {
		if c.streamer(name).HasMoreData() {
			return true
		}
	}
	for _, name := range c.consumers {
		if c.streamer(name).HasMoreData() {
			return true
		}
	}
	return false
}

// Drain runs streaming passes until no agent has data left. The context is
// checked between passes.
func (c *Coordinator) Drain(ctx context.Context) error {
	for c.Active() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.pass(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DrainConcurrent is Drain with the producer steps of each pass executed
// concurrently, at most limit at a time (0 means no limit). Pushing items and
// stepping consumers stays serialized.
func (c *Coordinator) DrainConcurrent(ctx context.Context, limit int) error {
	for c.Active() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.concurrentPass(ctx, limit); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) pass(ctx context.Context) error {
	for _, name := range c.producers {
		if err := c.stepProducer(ctx, name); err != nil {
			return err
		}
	}
	return c.stepConsumers(ctx)
}

func (c *Coordinator) concurrentPass(ctx context.Context, limit int) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, name := range c.producers {
		g.Go(func() error {
			return c.stepProducer(gctx, name)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return c.stepConsumers(ctx)
}

// stepProducer advances one producer by a single item and pushes it, or marks
// the producer complete once it is exhausted.
func (c *Coordinator) stepProducer(ctx context.Context, name string) error {
	p := c.agents[name]
	if r, ok := p.(agent.StreamReceiver); ok {
		r.NotifyProducerComplete()
	}
	if c.streamer(name).HasMoreData() {
		if err := c.exec(ctx, p); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.streamer(name).HasMoreData() {
		c.complete(name)
		return nil
	}
	return c.push(ctx, name)
}

// stepConsumers gives every open consumer a step so queued items are drained
// and completion is observed once upstreams are done.
func (c *Coordinator) stepConsumers(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range c.consumers {
		if !c.streamer(name).HasMoreData() {
			c.complete(name)
			continue
		}
		if r, ok := c.agents[name].(agent.StreamReceiver); ok && r.Pending() == 0 && c.doneUps[name] < c.upstreams[name] {
			continue
		}
		if err := c.step(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// push hands the latest item of name to its consumers and steps each of them.
// Callers hold mu.
func (c *Coordinator) push(ctx context.Context, name string) error {
	item := agent.ProducedBy(c.agents[name])
	if item == nil {
		return nil
	}
	if c.onItem != nil && (c.upstreams[name] == 0 || len(c.fanout[name]) > 0) {
		c.onItem(name)
	}
	for _, consumer := range c.fanout[name] {
		if r, ok := c.agents[consumer].(agent.StreamReceiver); ok {
			r.Enqueue(item)
		}
		if err := c.step(ctx, consumer); err != nil {
			return err
		}
	}
	return nil
}

// step executes a consumer once, forwards the item it produced and cascades
// completion. Callers hold mu.
func (c *Coordinator) step(ctx context.Context, name string) error {
	a := c.agents[name]
	produces := false
	if r, ok := a.(agent.StreamReceiver); ok {
		produces = r.Pending() > 0
	}

	if err := c.exec(ctx, a); err != nil {
		return err
	}

	if !c.streamer(name).HasMoreData() {
		c.complete(name)
		return nil
	}
	if produces {
		return c.push(ctx, name)
	}
	return nil
}

// complete marks name as a finished upstream. Consumers are notified once all
// of their streaming upstreams have completed. Callers hold mu.
func (c *Coordinator) complete(name string) {
	if c.completed[name] {
		return
	}
	c.completed[name] = true
	c.logger.Debug("stream complete", "agent", name)

	for _, consumer := range c.fanout[name] {
		c.doneUps[consumer]++
		if c.doneUps[consumer] < c.upstreams[consumer] {
			continue
		}
		if r, ok := c.agents[consumer].(agent.StreamReceiver); ok {
			r.NotifyProducerComplete()
		}
	}
}

func (c *Coordinator) streamer(name string) agent.Streamer {
	return c.agents[name].(agent.Streamer)
}
