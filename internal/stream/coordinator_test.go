package stream

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/dataflow/agent"
)

func numbers(n int) agent.Generator[int] {
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

type sum struct {
	total, count int
}

func (s *sum) ConsumeItem(_ context.Context, item int) error {
	s.total += item
	s.count++
	return nil
}

func (s *sum) Produce() int { return s.total }

type scale struct {
	factor, last int
}

func (s *scale) ConsumeItem(_ context.Context, item int) error {
	s.last = item * s.factor
	return nil
}

func (s *scale) Produce() int { return s.last }

type constant struct{}

func (constant) Consume(int)                   {}
func (constant) Compute(context.Context) error { return nil }
func (constant) Produce() int                  { return 100 }

// edges maps an agent name to its resolved producers.
type edges map[string][]string

func (e edges) deps(name string) []string { return e[name] }

func TestNew_Topology(t *testing.T) {
	producer := agent.NewStreamProducer[int]("numbers", "number_stream", numbers(3))
	scaler := agent.NewStreamConsumer[int, int]("scaler", "stream_scaler", &scale{factor: 2}, agent.From("number_stream"))
	total := agent.NewStreamConsumer[int, int]("total", "stream_sum", &sum{}, agent.From("stream_scaler"))
	batch := agent.NewComputational[int, int]("batch", "constant", constant{})

	c := New([]agent.Agent{batch, producer, scaler, total}, edges{
		"scaler": {"numbers"},
		"total":  {"scaler"},
	}.deps)

	assert.Equal(t, []string{"numbers"}, c.Producers())
	assert.Equal(t, []string{"scaler", "total"}, c.Consumers())
	assert.Equal(t, []string{"scaler"}, c.FanOut("numbers"))
	assert.Equal(t, []string{"total"}, c.FanOut("scaler"))
	assert.Empty(t, c.FanOut("batch"))
	assert.False(t, c.Empty())
}

func TestNew_BatchUpstreamDoesNotMakeConsumer(t *testing.T) {
	batch := agent.NewComputational[int, int]("batch", "constant", constant{})
	producer := agent.NewStreamProducer[int]("numbers", "number_stream", numbers(3), agent.From("constant"))

	c := New([]agent.Agent{batch, producer}, edges{"numbers": {"batch"}}.deps)

	assert.Equal(t, []string{"numbers"}, c.Producers())
	assert.Empty(t, c.Consumers())
	assert.Empty(t, c.FanOut("batch"))
}

func TestNew_NoStreaming(t *testing.T) {
	batch := agent.NewComputational[int, int]("batch", "constant", constant{})
	c := New([]agent.Agent{batch}, edges{}.deps)

	assert.True(t, c.Empty())
	assert.False(t, c.Active())
	require.NoError(t, c.Drain(context.Background()))
}

func TestDrain_SingleStage(t *testing.T) {
	ctx := context.Background()
	producer := agent.NewStreamProducer[int]("numbers", "number_stream", numbers(5))
	proc := &sum{}
	consumer := agent.NewStreamConsumer[int, int]("sum", "stream_sum", proc, agent.From("number_stream"))
	require.NoError(t, producer.Initialize(ctx))
	require.NoError(t, consumer.Initialize(ctx))

	var items atomic.Int32
	c := New([]agent.Agent{producer, consumer}, edges{"sum": {"numbers"}}.deps,
		WithItemHook(func(string) { items.Add(1) }))

	require.NoError(t, c.Drain(ctx))

	assert.Equal(t, 15, proc.total)
	assert.Equal(t, 5, proc.count)
	assert.False(t, producer.HasMoreData())
	assert.False(t, consumer.HasMoreData())
	assert.True(t, c.Completed("numbers"))
	assert.True(t, c.Completed("sum"))
	assert.Equal(t, int32(5), items.Load())
	assert.False(t, c.Active())
}

func TestDrain_MultiStage(t *testing.T) {
	ctx := context.Background()
	producer := agent.NewStreamProducer[int]("numbers", "number_stream", numbers(4))
	scaler := agent.NewStreamConsumer[int, int]("scaler", "stream_scaler", &scale{factor: 3}, agent.From("number_stream"))
	proc := &sum{}
	total := agent.NewStreamConsumer[int, int]("total", "stream_sum", proc, agent.From("stream_scaler"))
	for _, a := range []agent.Agent{producer, scaler, total} {
		require.NoError(t, a.Initialize(ctx))
	}

	var steps []string
	c := New([]agent.Agent{producer, scaler, total}, edges{
		"scaler": {"numbers"},
		"total":  {"scaler"},
	}.deps, WithExec(func(ctx context.Context, a agent.Agent) error {
		steps = append(steps, a.Name())
		return a.Execute(ctx)
	}))

	require.NoError(t, c.Drain(ctx))

	assert.Equal(t, 30, proc.total)
	assert.Equal(t, 4, proc.count)
	assert.False(t, total.HasMoreData())
	// Each item flows through all stages in the pass that produced it.
	assert.Equal(t, []string{"numbers", "scaler", "total"}, steps[:3])
}

func TestDrain_ItemHookCountsEmittedAndForwardedItems(t *testing.T) {
	ctx := context.Background()
	producer := agent.NewStreamProducer[int]("numbers", "number_stream", numbers(4))
	scaler := agent.NewStreamConsumer[int, int]("scaler", "stream_scaler", &scale{factor: 2}, agent.From("number_stream"))
	total := agent.NewStreamConsumer[int, int]("total", "stream_sum", &sum{}, agent.From("stream_scaler"))
	for _, a := range []agent.Agent{producer, scaler, total} {
		require.NoError(t, a.Initialize(ctx))
	}

	items := make(map[string]int)
	c := New([]agent.Agent{producer, scaler, total}, edges{
		"scaler": {"numbers"},
		"total":  {"scaler"},
	}.deps, WithItemHook(func(name string) { items[name]++ }))

	require.NoError(t, c.Drain(ctx))

	assert.Equal(t, map[string]int{"numbers": 4, "scaler": 4}, items)
}

func TestDrain_WaitsForAllUpstreams(t *testing.T) {
	ctx := context.Background()
	short := agent.NewStreamProducer[int]("short", "short_stream", numbers(2))
	long := agent.NewStreamProducer[int]("long", "long_stream", numbers(5))
	proc := &sum{}
	consumer := agent.NewStreamConsumer[int, int]("sum", "stream_sum", proc,
		agent.From("short_stream"), agent.From("long_stream"))
	for _, a := range []agent.Agent{short, long, consumer} {
		require.NoError(t, a.Initialize(ctx))
	}

	c := New([]agent.Agent{short, long, consumer}, edges{"sum": {"short", "long"}}.deps)

	require.NoError(t, c.Drain(ctx))

	assert.Equal(t, 3+15, proc.total)
	assert.Equal(t, 7, proc.count)
	assert.True(t, c.Completed("short"))
	assert.True(t, c.Completed("long"))
	assert.False(t, consumer.HasMoreData())
}

func TestDrainConcurrent(t *testing.T) {
	ctx := context.Background()
	var all []agent.Agent
	deps := edges{}
	procs := make([]*sum, 3)
	for i := range procs {
		name := string(rune('a' + i))
		producer := agent.NewStreamProducer[int](name, "stream_"+name, numbers(10*(i+1)))
		procs[i] = &sum{}
		consumer := agent.NewStreamConsumer[int, int](name+"_sum", "sum_"+name, procs[i], agent.From("stream_"+name))
		deps[name+"_sum"] = []string{name}
		all = append(all, producer, consumer)
	}
	for _, a := range all {
		require.NoError(t, a.Initialize(ctx))
	}

	c := New(all, deps.deps)
	require.NoError(t, c.DrainConcurrent(ctx, 2))

	assert.Equal(t, 55, procs[0].total)
	assert.Equal(t, 210, procs[1].total)
	assert.Equal(t, 465, procs[2].total)
	assert.False(t, c.Active())
}

func TestDrain_ExecError(t *testing.T) {
	ctx := context.Background()
	producer := agent.NewStreamProducer[int]("numbers", "number_stream", numbers(5))
	require.NoError(t, producer.Initialize(ctx))

	boom := errors.New("boom")
	c := New([]agent.Agent{producer}, edges{}.deps, WithExec(func(context.Context, agent.Agent) error {
		return boom
	}))

	assert.ErrorIs(t, c.Drain(ctx), boom)
	assert.ErrorIs(t, c.DrainConcurrent(ctx, 0), boom)
}

func TestDrain_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	producer := agent.NewStreamProducer[int]("numbers", "number_stream", numbers(5))
	require.NoError(t, producer.Initialize(ctx))

	c := New([]agent.Agent{producer}, edges{}.deps)
	cancel()

	assert.ErrorIs(t, c.Drain(ctx), context.Canceled)
	assert.True(t, producer.HasMoreData())
}

func TestDrain_ReceiverWithoutStreamingUpstream(t *testing.T) {
	ctx := context.Background()
	proc := &sum{}
	orphan := agent.NewStreamConsumer[int, int]("sum", "stream_sum", proc, agent.From("number_stream"))
	require.NoError(t, orphan.Initialize(ctx))

	c := New([]agent.Agent{orphan}, edges{}.deps)
	assert.Equal(t, []string{"sum"}, c.Producers())

	require.NoError(t, c.Drain(ctx))
	assert.False(t, orphan.HasMoreData())
	assert.Zero(t, proc.count)
	assert.True(t, c.Completed("sum"))
}
