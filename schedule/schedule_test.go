package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/dataflow/agent"
)

type fakeStream struct {
	*agent.Base
	agent.StreamState
}

func (f *fakeStream) Initialize(context.Context) error { return nil }
func (f *fakeStream) Execute(context.Context) error    { return nil }
func (f *fakeStream) Finish(context.Context) error     { return nil }

type fakeBatch struct {
	*agent.Base
}

func (fakeBatch) Initialize(context.Context) error { return nil }
func (fakeBatch) Execute(context.Context) error    { return nil }
func (fakeBatch) Finish(context.Context) error     { return nil }

func newStream(name string) *fakeStream {
	return &fakeStream{Base: agent.NewBase(name, "stream")}
}

func TestRunOnce(t *testing.T) {
	s := RunOnce()
	assert.True(t, s.HasMoreEpochs())
	assert.True(t, s.CanRun())

	s.Advance()
	assert.False(t, s.HasMoreEpochs())
	assert.True(t, s.CanRun())
}

func TestRunIndefinitely(t *testing.T) {
	s := RunIndefinitely()
	for range 100 {
		require.True(t, s.HasMoreEpochs())
		s.Advance()
	}
	assert.True(t, s.CanRun())
}

func TestRunUntilStreamComplete(t *testing.T) {
	t.Run("no agents completes after first epoch", func(t *testing.T) {
		s := RunUntilStreamComplete()
		assert.True(t, s.HasMoreEpochs())
		s.EpochComplete(nil)
		assert.False(t, s.HasMoreEpochs())
	})

	t.Run("batch only completes after first epoch", func(t *testing.T) {
		s := RunUntilStreamComplete()
		s.EpochComplete([]agent.Agent{fakeBatch{agent.NewBase("b", "batch")}})
		assert.False(t, s.HasMoreEpochs())
	})

	t.Run("active stream continues", func(t *testing.T) {
		s := RunUntilStreamComplete()
		s.EpochComplete([]agent.Agent{newStream("s")})
		assert.True(t, s.HasMoreEpochs())
	})

	t.Run("stops once every stream is exhausted", func(t *testing.T) {
		s := RunUntilStreamComplete()
		a, b := newStream("a"), newStream("b")
		agents := []agent.Agent{fakeBatch{agent.NewBase("x", "batch")}, a, b}

		a.SignalStreamComplete()
		s.EpochComplete(agents)
		assert.True(t, s.HasMoreEpochs())

		b.SignalStreamComplete()
		s.EpochComplete(agents)
		assert.False(t, s.HasMoreEpochs())
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		want Scheduler
	}{
		{"run_once", &Once{}},
		{"RunOnce", nil},
		{"run-indefinitely", &Indefinitely{}},
		{" Run_Until_Stream_Complete ", &UntilStreamComplete{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.name)
			if tt.want == nil {
				assert.ErrorIs(t, err, ErrUnknownSchedule)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
		})
	}

	t.Run("fresh instance per call", func(t *testing.T) {
		a, _ := New(NameRunOnce)
		b, _ := New(NameRunOnce)
		a.Advance()
		assert.True(t, b.HasMoreEpochs())
	})
}

func TestLimit(t *testing.T) {
	s := Limit(RunIndefinitely(), 3)
	epochs := 0
	for s.HasMoreEpochs() {
		epochs++
		s.Advance()
	}
	assert.Equal(t, 3, epochs)

	unbounded := Limit(RunOnce(), 0)
	unbounded.Advance()
	assert.False(t, unbounded.HasMoreEpochs())
}

func TestLimit_ForwardsEpochComplete(t *testing.T) {
	var s Scheduler = Limit(RunUntilStreamComplete(), 10)
	obs, ok := s.(EpochObserver)
	require.True(t, ok)

	obs.EpochComplete(nil)
	assert.False(t, s.HasMoreEpochs())
}

func TestThrottle(t *testing.T) {
	s := Throttle(RunIndefinitely(), 0.001, 2)

	assert.True(t, s.CanRun())
	assert.True(t, s.CanRun())
	assert.False(t, s.CanRun(), "burst exhausted")
	assert.True(t, s.HasMoreEpochs())
}

func TestOnCron(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	clock := start

	c, err := OnCron(RunIndefinitely(), "* * * * *")
	require.NoError(t, err)
	c.now = func() time.Time { return clock }
	c.next = c.schedule.Next(clock)

	assert.Equal(t, time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC), c.Next())
	assert.False(t, c.CanRun())

	clock = clock.Add(30 * time.Second)
	assert.True(t, c.CanRun())

	c.Advance()
	assert.Equal(t, time.Date(2026, 1, 1, 12, 2, 0, 0, time.UTC), c.Next())
	assert.False(t, c.CanRun())
}

func TestOnCron_InvalidExpression(t *testing.T) {
	_, err := OnCron(RunOnce(), "not a cron")
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		s, err := Build(Config{Name: NameRunOnce})
		require.NoError(t, err)
		assert.IsType(t, &Once{}, s)
	})

	t.Run("gated", func(t *testing.T) {
		s, err := Build(Config{Name: NameRunIndefinitely, MaxEpochs: 2, Rate: 1000, Burst: 10, Cron: "@every 1s"})
		require.NoError(t, err)

		throttled, ok := s.(*Throttled)
		require.True(t, ok)
		cronGate, ok := throttled.Scheduler.(*Cron)
		require.True(t, ok)
		_, ok = cronGate.Scheduler.(*Limited)
		assert.True(t, ok)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Build(Config{Name: "sometimes"})
		assert.ErrorIs(t, err, ErrUnknownSchedule)
	})

	t.Run("bad cron", func(t *testing.T) {
		_, err := Build(Config{Name: NameRunOnce, Cron: "61 * * * *"})
		assert.Error(t, err)
	})
}
