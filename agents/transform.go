package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aixgo-dev/dataflow/agent"
	agentdef "github.com/aixgo-dev/dataflow/internal/agent"
)

// Reducer operations.
const (
	ReduceSum   = "sum"
	ReduceMax   = "max"
	ReduceMin   = "min"
	ReduceCount = "count"
)

// ErrInvalidSetting is returned by factories given an unusable setting.
var ErrInvalidSetting = errors.New("invalid agent setting")

func init() {
	agentdef.Register(RoleOffset, func(def agentdef.AgentDef) (agent.Agent, error) {
		p := &Offset{Add: def.GetInt("add", 0), Interval: def.Interval.Duration, log: agentLogger(def)}
		return agent.NewComputational[int, int](def.Name, def.KindOrRole(), p, def.Inputs...), nil
	})
	agentdef.Register(RoleMultiplier, func(def agentdef.AgentDef) (agent.Agent, error) {
		p := &Multiplier{Factor: def.GetInt("factor", 1), log: agentLogger(def)}
		return agent.NewComputational[int, int](def.Name, def.KindOrRole(), p, def.Inputs...), nil
	})
	agentdef.Register(RoleDivider, func(def agentdef.AgentDef) (agent.Agent, error) {
		divisor := def.GetFloat("divisor", 10)
		if divisor == 0 {
			return nil, fmt.Errorf("%w: %s: divisor must be non-zero", ErrInvalidSetting, def.Name)
		}
		return agent.NewComputational[int, float64](def.Name, def.KindOrRole(), &Divider{Divisor: divisor}, def.Inputs...), nil
	})
	agentdef.Register(RoleFilter, func(def agentdef.AgentDef) (agent.Agent, error) {
		p := &Filter{Min: def.GetFloat("min", 0), log: agentLogger(def)}
		return agent.NewComputational[float64, any](def.Name, def.KindOrRole(), p, def.Inputs...), nil
	})
	agentdef.Register(RoleAccumulator, func(def agentdef.AgentDef) (agent.Agent, error) {
		return agent.NewComputational[float64, float64](def.Name, def.KindOrRole(), &Accumulator{log: agentLogger(def)}, def.Inputs...), nil
	})
	agentdef.Register(RoleReducer, func(def agentdef.AgentDef) (agent.Agent, error) {
		op := def.GetString("op", ReduceSum)
		if !slices.Contains([]string{ReduceSum, ReduceMax, ReduceMin, ReduceCount}, op) {
			return nil, fmt.Errorf("%w: %s: unknown op %q", ErrInvalidSetting, def.Name, op)
		}
		return agent.NewComputational[[]int, int](def.Name, def.KindOrRole(), &Reducer{Op: op, log: agentLogger(def)}, def.Inputs...), nil
	})
}

// Offset adds a constant to its input.
type Offset struct {
	Add      int
	Interval time.Duration

	log      *slog.Logger
	in, out  int
	received bool
}

func (o *Offset) Consume(v int) { o.in, o.received = v, true }

func (o *Offset) Compute(ctx context.Context) error {
	if err := pause(ctx, o.Interval); err != nil {
		return err
	}
	if !o.received {
		return nil
	}
	o.out = o.in + o.Add
	if o.log != nil {
		o.log.Debug("offset applied", "input", o.in, "output", o.out)
	}
	return nil
}

func (o *Offset) Produce() int { return o.out }

// Multiplier multiplies its input by Factor.
type Multiplier struct {
	Factor int

	log     *slog.Logger
	in, out int
}

func (m *Multiplier) Consume(v int) { m.in = v }

func (m *Multiplier) Compute(ctx context.Context) error {
	m.out = m.in * m.Factor
	if m.log != nil {
		m.log.Debug("multiplied", "input", m.in, "output", m.out)
	}
	return nil
}

func (m *Multiplier) Produce() int { return m.out }

// Divider converts its integer input to a float and divides it by Divisor.
type Divider struct {
	Divisor float64

	in, out float64
}

func (d *Divider) Consume(v int) { d.in = float64(v) }

func (d *Divider) Compute(context.Context) error {
	d.out = d.in / d.Divisor
	return nil
}

func (d *Divider) Produce() float64 { return d.out }

// Filter passes its input through only when it exceeds Min. A rejected value
// produces nil, which leaves downstream input slots empty.
type Filter struct {
	Min float64

	log     *slog.Logger
	in      float64
	pending bool
	out     any
}

func (f *Filter) Consume(v float64) { f.in, f.pending = v, true }

func (f *Filter) Compute(context.Context) error {
	f.out = nil
	if !f.pending {
		return nil
	}
	f.pending = false
	if f.in > f.Min {
		f.out = f.in
		return nil
	}
	if f.log != nil {
		f.log.Debug("value filtered", "value", f.in, "min", f.Min)
	}
	return nil
}

func (f *Filter) Produce() any { return f.out }

// Accumulator keeps a running sum and count of the values it receives.
// Produce returns the running sum.
type Accumulator struct {
	log     *slog.Logger
	in      float64
	pending bool
	sum     float64
	count   int
}

func (a *Accumulator) Initialize(context.Context) error {
	a.sum, a.count, a.pending = 0, 0, false
	return nil
}

func (a *Accumulator) Consume(v float64) { a.in, a.pending = v, true }

func (a *Accumulator) Compute(context.Context) error {
	if !a.pending {
		return nil
	}
	a.pending = false
	a.sum += a.in
	a.count++
	return nil
}

func (a *Accumulator) Produce() float64 { return a.sum }

// Sum returns the running sum.
func (a *Accumulator) Sum() float64 { return a.sum }

// Count returns the number of values accumulated.
func (a *Accumulator) Count() int { return a.count }

func (a *Accumulator) Finish(context.Context) error {
	if a.log != nil {
		a.log.Info("accumulated", "sum", a.sum, "count", a.count)
	}
	return nil
}

// Reducer folds a slice of integers to one value with Op. An empty slice
// reduces to zero.
type Reducer struct {
	Op string

	log *slog.Logger
	in  []int
	out int
}

func (r *Reducer) Consume(v []int) { r.in = v }

func (r *Reducer) Compute(context.Context) error {
	r.out = reduce(r.Op, r.in)
	if r.log != nil {
		r.log.Debug("reduced", "op", r.Op, "items", len(r.in), "result", r.out)
	}
	return nil
}

func (r *Reducer) Produce() int { return r.out }

func reduce(op string, values []int) int {
	if len(values) == 0 {
		return 0
	}
	switch op {
	case ReduceMax:
		return slices.Max(values)
	case ReduceMin:
		return slices.Min(values)
	case ReduceCount:
		return len(values)
	default:
		total := 0
		for _, v := range values {
			total += v
		}
		return total
	}
}
