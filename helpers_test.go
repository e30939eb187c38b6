package dataflow

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aixgo-dev/dataflow/agent"
)

// runners lets a test run against both execution strategies.
var runners = []struct {
	name string
	new  func(opts ...Option) Engine
}{
	{RunnerSequential, func(opts ...Option) Engine { return NewRunner(opts...) }},
	{RunnerParallel, func(opts ...Option) Engine { return NewParallelRunner(opts...) }},
}

// fnProc is a single-source processor backed by a function.
type fnProc[In, Out any] struct {
	fn       func(In) Out
	in       In
	out      Out
	consumed int
}

func newFn[In, Out any](fn func(In) Out) *fnProc[In, Out] {
	return &fnProc[In, Out]{fn: fn}
}

func (p *fnProc[In, Out]) Consume(v In)                  { p.in = v; p.consumed++ }
func (p *fnProc[In, Out]) Compute(context.Context) error { p.out = p.fn(p.in); return nil }
func (p *fnProc[In, Out]) Produce() Out                  { return p.out }

func constant[Out any](v Out) *fnProc[struct{}, Out] {
	return newFn(func(struct{}) Out { return v })
}

// collector records every value it consumes.
type collector[T any] struct {
	mu     sync.Mutex
	values []T
	last   T
}

func (c *collector[T]) Consume(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, v)
	c.last = v
}

// ConsumeMultiple lets a collector sit behind a MultiSource.
func (c *collector[T]) ConsumeMultiple(inputs map[string]any) {
	for _, v := range inputs {
		if t, ok := v.(T); ok {
			c.Consume(t)
		}
	}
}

func (c *collector[T]) Compute(context.Context) error { return nil }

func (c *collector[T]) Produce() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

func (c *collector[T]) Values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.values...)
}

func count(n int) agent.Generator[int] {
	return agent.GeneratorFunc[int](func() iter.Seq[int] {
		return func(yield func(int) bool) {
			for i := 1; i <= n; i++ {
				if !yield(i) {
					return
				}
			}
		}
	})
}

type sumItems struct {
	total, items int
}

func (s *sumItems) ConsumeItem(_ context.Context, item int) error {
	s.total += item
	s.items++
	return nil
}

func (s *sumItems) Produce() int { return s.total }

// recorder collects lifecycle events from probes in call order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// probe is a batch agent that records its lifecycle and can be told to fail.
type probe struct {
	*agent.Base
	rec *recorder

	initErr   error
	execErr   error
	finishErr error
	panics    bool
	delay     time.Duration
	block     chan struct{}
	started   chan struct{}

	execs    atomic.Int32
	inFlight *atomic.Int32
	maxSeen  *atomic.Int32
}

func newProbe(rec *recorder, name, kind string, deps ...agent.Dependency) *probe {
	return &probe{Base: agent.NewBase(name, kind, deps...), rec: rec}
}

func (p *probe) Initialize(context.Context) error {
	p.rec.add("init:" + p.Name())
	return p.initErr
}

func (p *probe) Execute(context.Context) error {
	p.execs.Add(1)
	p.rec.add("exec:" + p.Name())
	if p.started != nil {
		close(p.started)
		p.started = nil
	}
	if p.block != nil {
		<-p.block
	}
	if p.inFlight != nil {
		n := p.inFlight.Add(1)
		for {
			m := p.maxSeen.Load()
			if n <= m || p.maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		defer p.inFlight.Add(-1)
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.panics {
		panic("probe exploded")
	}
	p.SetProduced(p.Name())
	return p.execErr
}

func (p *probe) Finish(context.Context) error {
	p.rec.add("finish:" + p.Name())
	return p.finishErr
}
