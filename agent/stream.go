package agent

import (
	"context"
	"iter"
	"sync"
)

// StreamState tracks whether a streaming agent still has data.
type StreamState struct {
	smu      sync.RWMutex
	complete bool
}

// HasMoreData implements Streamer.
func (s *StreamState) HasMoreData() bool {
	s.smu.RLock()
	defer s.smu.RUnlock()
	return !s.complete
}

// SignalStreamComplete implements Streamer.
func (s *StreamState) SignalStreamComplete() {
	s.smu.Lock()
	s.complete = true
	s.smu.Unlock()
}

// ResetStream reopens the stream.
func (s *StreamState) ResetStream() {
	s.smu.Lock()
	s.complete = false
	s.smu.Unlock()
}

// Generator is the logic behind a StreamProducer. Generate is called on every
// Initialize and must return a finite sequence.
type Generator[Out any] interface {
	Generate() iter.Seq[Out]
}

// ItemObserver is an optional hook on generators, called for every item the
// producer emits.
type ItemObserver[Out any] interface {
	OnItem(ctx context.Context, item Out) error
}

// StreamProducer emits the items of its generator, one per Execute. When the
// sequence is exhausted Execute signals stream completion instead of producing.
type StreamProducer[Out any] struct {
	*Base
	StreamState
	gen  Generator[Out]
	next func() (Out, bool)
	stop func()
}

// NewStreamProducer creates a streaming producer.
func NewStreamProducer[Out any](name, kind string, gen Generator[Out], deps ...Dependency) *StreamProducer[Out] {
	return &StreamProducer[Out]{
		Base: NewBase(name, kind, deps...),
		gen:  gen,
	}
}

// Generator returns the producer's generator.
func (p *StreamProducer[Out]) Generator() Generator[Out] { return p.gen }

// Initialize restarts the stream.
func (p *StreamProducer[Out]) Initialize(ctx context.Context) error {
	p.release()
	p.ResetStream()
	p.SetProduced(nil)
	return initHook(ctx, p.gen)
}

// Execute advances the stream by exactly one item.
func (p *StreamProducer[Out]) Execute(ctx context.Context) error {
	if !p.HasMoreData() {
		return nil
	}
	if p.next == nil {
		p.next, p.stop = iter.Pull(p.gen.Generate())
	}
	item, ok := p.next()
	if !ok {
		p.SignalStreamComplete()
		return nil
	}
	p.SetProduced(item)
	if obs, ok := p.gen.(ItemObserver[Out]); ok {
		return obs.OnItem(ctx, item)
	}
	return nil
}

// Finish releases the underlying iterator.
func (p *StreamProducer[Out]) Finish(ctx context.Context) error {
	p.release()
	return finishHook(ctx, p.gen)
}

func (p *StreamProducer[Out]) release() {
	if p.stop != nil {
		p.stop()
	}
	p.next, p.stop = nil, nil
}

// ItemProcessor is the logic behind a StreamConsumer.
type ItemProcessor[In, Out any] interface {
	// ConsumeItem processes one dequeued item.
	ConsumeItem(ctx context.Context, item In) error

	// Produce returns the agent's result after the latest item.
	Produce() Out
}

// StreamConsumer processes items pushed by the engine, one per Execute. It
// completes once its producers are done and its queue is empty.
type StreamConsumer[In, Out any] struct {
	*Base
	StreamState
	proc             ItemProcessor[In, Out]
	qmu              sync.Mutex
	queue            []any
	producerComplete bool
}

// NewStreamConsumer creates a streaming consumer.
func NewStreamConsumer[In, Out any](name, kind string, proc ItemProcessor[In, Out], deps ...Dependency) *StreamConsumer[In, Out] {
	return &StreamConsumer[In, Out]{
		Base: NewBase(name, kind, deps...),
		proc: proc,
	}
}

// Processor returns the consumer's item processor.
func (c *StreamConsumer[In, Out]) Processor() ItemProcessor[In, Out] { return c.proc }

// Enqueue implements StreamReceiver.
func (c *StreamConsumer[In, Out]) Enqueue(item any) {
	c.qmu.Lock()
	c.queue = append(c.queue, item)
	c.qmu.Unlock()
}

// Pending implements StreamReceiver.
func (c *StreamConsumer[In, Out]) Pending() int {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	return len(c.queue)
}

// NotifyProducerComplete implements StreamReceiver.
func (c *StreamConsumer[In, Out]) NotifyProducerComplete() {
	c.qmu.Lock()
	c.producerComplete = true
	c.qmu.Unlock()
}

func (c *StreamConsumer[In, Out]) dequeue() (any, bool, bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.queue) == 0 {
		return nil, false, c.producerComplete
	}
	item := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return item, true, c.producerComplete
}

// Initialize clears the queue and reopens the stream.
func (c *StreamConsumer[In, Out]) Initialize(ctx context.Context) error {
	c.qmu.Lock()
	c.queue = nil
	c.producerComplete = false
	c.qmu.Unlock()
	c.ResetStream()
	c.SetProduced(nil)
	return initHook(ctx, c.proc)
}

// Execute dequeues and processes at most one item.
func (c *StreamConsumer[In, Out]) Execute(ctx context.Context) error {
	raw, ok, producerDone := c.dequeue()
	if !ok {
		if producerDone {
			c.SignalStreamComplete()
		}
		return nil
	}
	item, err := convert[In](c.name, raw)
	if err != nil {
		return err
	}
	if err := c.proc.ConsumeItem(ctx, item); err != nil {
		return err
	}
	c.SetProduced(c.proc.Produce())
	return nil
}

// Finish implements Agent.
func (c *StreamConsumer[In, Out]) Finish(ctx context.Context) error {
	return finishHook(ctx, c.proc)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc[Out any] func() iter.Seq[Out]

// Generate implements Generator.
func (f GeneratorFunc[Out]) Generate() iter.Seq[Out] { return f() }
