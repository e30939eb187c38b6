package agent

import (
	"context"
	"errors"
	"iter"
	"testing"
)

type divider struct {
	in, out  float64
	consumed int
	inits    int
	finishes int
}

func (d *divider) Consume(v int)                       { d.in = float64(v); d.consumed++ }
func (d *divider) Compute(ctx context.Context) error   { d.out = d.in / 10; return nil }
func (d *divider) Produce() float64                    { return d.out }
func (d *divider) Initialize(ctx context.Context) error { d.inits++; return nil }
func (d *divider) Finish(ctx context.Context) error     { d.finishes++; return nil }

type failingProcessor struct{}

func (failingProcessor) Consume(int)                      {}
func (failingProcessor) Compute(ctx context.Context) error { return errors.New("boom") }
func (failingProcessor) Produce() int                      { return 0 }

type merger struct {
	last map[string]any
}

func (m *merger) ConsumeMultiple(in map[string]any) { m.last = in }
func (m *merger) Compute(ctx context.Context) error  { return nil }
func (m *merger) Produce() int                       { return len(m.last) }

type summer struct {
	sum, count int
}

func (s *summer) ConsumeItem(ctx context.Context, item int) error {
	s.sum += item
	s.count++
	return nil
}

func (s *summer) Produce() int { return s.sum }

func countTo(n int) Generator[int] {
	return GeneratorFunc[int](func() iter.Seq[int] {
		return func(yield func(int) bool) {
			for i := 1; i <= n; i++ {
				if !yield(i) {
					return
				}
			}
		}
	})
}

type observedGen struct {
	Generator[int]
	seen []int
}

func (o *observedGen) OnItem(ctx context.Context, item int) error {
	o.seen = append(o.seen, item)
	return nil
}

func TestDependency(t *testing.T) {
	t.Run("From declares kind only", func(t *testing.T) {
		d := From("divider")
		if d.Kind != "divider" || d.Name != "" {
			t.Errorf("unexpected dependency %+v", d)
		}
		if d.String() != "divider" {
			t.Errorf("String() = %q", d.String())
		}
	})

	t.Run("FromInstance declares kind and name", func(t *testing.T) {
		d := FromInstance("multiplier", "P1")
		if d.String() != "multiplier/P1" {
			t.Errorf("String() = %q", d.String())
		}
	})
}

func TestBase_ConsumesFromIsCopied(t *testing.T) {
	deps := []Dependency{From("a")}
	b := NewBase("x", "kind", deps...)
	deps[0].Kind = "changed"

	got := b.ConsumesFrom()
	if got[0].Kind != "a" {
		t.Fatalf("declared dependency mutated: %+v", got)
	}
	got[0].Kind = "again"
	if b.ConsumesFrom()[0].Kind != "a" {
		t.Fatal("ConsumesFrom exposed internal slice")
	}
}

func TestComputational(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes wired input", func(t *testing.T) {
		proc := &divider{}
		a := NewComputational[int, float64]("B", "divider", proc, From("source"))

		if err := a.Initialize(ctx); err != nil {
			t.Fatalf("Initialize: %v", err)
		}
		a.SetInput(150)
		if err := a.Execute(ctx); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if got := a.Produced(); got != 15.0 {
			t.Errorf("Produced() = %v, want 15.0", got)
		}
		if err := a.Finish(ctx); err != nil {
			t.Fatalf("Finish: %v", err)
		}
		if proc.inits != 1 || proc.finishes != 1 {
			t.Errorf("hooks called %d/%d times", proc.inits, proc.finishes)
		}
	})

	t.Run("skips consume without input", func(t *testing.T) {
		proc := &divider{}
		a := NewComputational[int, float64]("B", "divider", proc)
		_ = a.Initialize(ctx)
		a.SetInput(nil)
		if err := a.Execute(ctx); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if proc.consumed != 0 {
			t.Errorf("Consume called %d times", proc.consumed)
		}
		if got := a.Produced(); got != 0.0 {
			t.Errorf("Produced() = %v", got)
		}
	})

	t.Run("rejects mismatched input", func(t *testing.T) {
		a := NewComputational[int, float64]("B", "divider", &divider{})
		_ = a.Initialize(ctx)
		a.SetInput("not a number")
		err := a.Execute(ctx)
		if !errors.Is(err, ErrUnexpectedInput) {
			t.Fatalf("expected ErrUnexpectedInput, got %v", err)
		}
	})

	t.Run("propagates compute errors", func(t *testing.T) {
		a := NewComputational[int, int]("F", "failing", failingProcessor{})
		if err := a.Execute(ctx); err == nil || err.Error() != "boom" {
			t.Fatalf("expected boom, got %v", err)
		}
		if a.Produced() != nil {
			t.Error("failed execution must not store a value")
		}
	})
}

func TestMultiSource(t *testing.T) {
	ctx := context.Background()
	proc := &merger{}
	a := NewMultiSource[int]("M", "merger", proc, From("a"), From("b"))

	_ = a.Initialize(ctx)
	a.SetInputs(map[string]any{"a": 1, "b": nil})
	a.SetInputs(map[string]any{"a": 3})
	if err := a.Execute(ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if proc.last["a"] != 3 {
		t.Errorf("last write per kind should win, got %v", proc.last["a"])
	}
	if _, ok := proc.last["b"]; ok {
		t.Error("nil inputs must be dropped")
	}
	if a.Produced() != 1 {
		t.Errorf("Produced() = %v", a.Produced())
	}

	// Initialize clears previously wired inputs.
	_ = a.Initialize(ctx)
	proc.last = nil
	_ = a.Execute(ctx)
	if proc.last != nil {
		t.Error("ConsumeMultiple called with no inputs")
	}
}

func TestStreamProducer(t *testing.T) {
	ctx := context.Background()

	t.Run("emits one item per execute", func(t *testing.T) {
		p := NewStreamProducer[int]("numbers", "numbers", countTo(3))
		_ = p.Initialize(ctx)
		if !p.HasMoreData() {
			t.Fatal("fresh producer must have data")
		}
		for want := 1; want <= 3; want++ {
			if err := p.Execute(ctx); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if p.Produced() != want {
				t.Errorf("Produced() = %v, want %d", p.Produced(), want)
			}
			if !p.HasMoreData() {
				t.Fatalf("stream closed early at %d", want)
			}
		}
		_ = p.Execute(ctx)
		if p.HasMoreData() {
			t.Error("exhausted producer must signal completion")
		}
		if p.Produced() != 3 {
			t.Errorf("completion must not overwrite the last item, got %v", p.Produced())
		}
		_ = p.Finish(ctx)
	})

	t.Run("observer sees every item but not completion", func(t *testing.T) {
		gen := &observedGen{Generator: countTo(2)}
		p := NewStreamProducer[int]("numbers", "numbers", gen)
		_ = p.Initialize(ctx)
		for range 3 {
			_ = p.Execute(ctx)
		}
		_ = p.Finish(ctx)
		if len(gen.seen) != 2 {
			t.Errorf("observer saw %v", gen.seen)
		}
	})

	t.Run("initialize restarts the stream", func(t *testing.T) {
		p := NewStreamProducer[int]("numbers", "numbers", countTo(2))
		_ = p.Initialize(ctx)
		for range 3 {
			_ = p.Execute(ctx)
		}
		if p.HasMoreData() {
			t.Fatal("expected completion")
		}
		_ = p.Initialize(ctx)
		if !p.HasMoreData() {
			t.Fatal("Initialize must reopen the stream")
		}
		_ = p.Execute(ctx)
		if p.Produced() != 1 {
			t.Errorf("restart should begin at 1, got %v", p.Produced())
		}
		_ = p.Finish(ctx)
	})
}

func TestStreamConsumer(t *testing.T) {
	ctx := context.Background()

	t.Run("processes queued items in order", func(t *testing.T) {
		proc := &summer{}
		c := NewStreamConsumer[int, int]("sum", "sum", proc, From("numbers"))
		_ = c.Initialize(ctx)

		for i := 1; i <= 3; i++ {
			c.Enqueue(i)
		}
		if c.Pending() != 3 {
			t.Fatalf("Pending() = %d", c.Pending())
		}
		for range 3 {
			if err := c.Execute(ctx); err != nil {
				t.Fatalf("Execute: %v", err)
			}
		}
		if proc.sum != 6 || proc.count != 3 {
			t.Errorf("sum=%d count=%d", proc.sum, proc.count)
		}
		if c.Produced() != 6 {
			t.Errorf("Produced() = %v", c.Produced())
		}
	})

	t.Run("empty queue is a no-op", func(t *testing.T) {
		c := NewStreamConsumer[int, int]("sum", "sum", &summer{})
		_ = c.Initialize(ctx)
		if err := c.Execute(ctx); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !c.HasMoreData() {
			t.Error("consumer must stay open until its producer completes")
		}
	})

	t.Run("completes after producer and drained queue", func(t *testing.T) {
		c := NewStreamConsumer[int, int]("sum", "sum", &summer{})
		_ = c.Initialize(ctx)
		c.Enqueue(1)
		c.NotifyProducerComplete()

		_ = c.Execute(ctx)
		if !c.HasMoreData() {
			t.Fatal("queued item must be processed before completion")
		}
		_ = c.Execute(ctx)
		if c.HasMoreData() {
			t.Error("expected completion")
		}
	})

	t.Run("rejects mismatched items", func(t *testing.T) {
		c := NewStreamConsumer[int, int]("sum", "sum", &summer{})
		_ = c.Initialize(ctx)
		c.Enqueue("x")
		if err := c.Execute(ctx); !errors.Is(err, ErrUnexpectedInput) {
			t.Fatalf("expected ErrUnexpectedInput, got %v", err)
		}
	})
}

func TestHelpers(t *testing.T) {
	p := NewStreamProducer[int]("numbers", "numbers", countTo(1))
	c := NewComputational[int, float64]("B", "divider", &divider{}, From("numbers"))

	if !IsStreaming(p) || IsStreaming(c) {
		t.Error("IsStreaming misclassified agents")
	}
	if deps := DependenciesOf(c); len(deps) != 1 || deps[0].Kind != "numbers" {
		t.Errorf("DependenciesOf = %v", deps)
	}
	if ProducedBy(c) != nil {
		t.Error("unexecuted agent must produce nil")
	}
	var _ StreamReceiver = NewStreamConsumer[int, int]("s", "s", &summer{})
	var _ Consumer = c
	var _ MultiConsumer = NewMultiSource[int]("m", "m", &merger{})
}
