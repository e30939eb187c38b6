package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/aixgo-dev/dataflow/agent"
)

// gate wraps a Scheduler and forwards epoch notifications to it.
type gate struct {
	Scheduler
}

func (g gate) EpochComplete(agents []agent.Agent) {
	if obs, ok := g.Scheduler.(EpochObserver); ok {
		obs.EpochComplete(agents)
	}
}

// Throttled gates epochs through a token bucket.
type Throttled struct {
	gate
	limiter *rate.Limiter
}

// Throttle limits s to perSecond epochs per second with the given burst.
func Throttle(s Scheduler, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		gate:    gate{s},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// CanRun reports whether the wrapped scheduler can run and a token is
// available. A token is consumed only when both hold.
func (t *Throttled) CanRun() bool {
	return t.Scheduler.CanRun() && t.limiter.Allow()
}

// Cron opens the gate whenever a cron schedule fires.
type Cron struct {
	gate
	schedule cron.Schedule
	next     time.Time
	now      func() time.Time
}

// OnCron gates s on a standard five-field cron expression (descriptors such as
// "@every 10s" are accepted). The first epoch waits for the first fire time.
func OnCron(s Scheduler, expr string) (*Cron, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	c := &Cron{
		gate:     gate{s},
		schedule: sched,
		now:      time.Now,
	}
	c.next = sched.Next(c.now())
	return c, nil
}

// Next returns the next time the gate opens.
func (c *Cron) Next() time.Time { return c.next }

// CanRun implements Scheduler.
func (c *Cron) CanRun() bool {
	return c.Scheduler.CanRun() && !c.now().Before(c.next)
}

// Advance implements Scheduler.
func (c *Cron) Advance() {
	c.Scheduler.Advance()
	c.next = c.schedule.Next(c.now())
}

// Limited stops after a fixed number of epochs.
type Limited struct {
	gate
	limit, done int
}

// Limit stops s after n epochs. A non-positive n leaves s unbounded.
func Limit(s Scheduler, n int) *Limited {
	return &Limited{gate: gate{s}, limit: n}
}

// HasMoreEpochs implements Scheduler.
func (l *Limited) HasMoreEpochs() bool {
	if l.limit > 0 && l.done >= l.limit {
		return false
	}
	return l.Scheduler.HasMoreEpochs()
}

// Advance implements Scheduler.
func (l *Limited) Advance() {
	l.done++
	l.Scheduler.Advance()
}

// Config describes a scheduler and its gates.
type Config struct {
	Name      string  `yaml:"name" json:"name"`
	MaxEpochs int     `yaml:"max_epochs,omitempty" json:"max_epochs,omitempty"`
	Rate      float64 `yaml:"rate,omitempty" json:"rate,omitempty"`
	Burst     int     `yaml:"burst,omitempty" json:"burst,omitempty"`
	Cron      string  `yaml:"cron,omitempty" json:"cron,omitempty"`
}

// Build creates the scheduler described by cfg. Gates are applied innermost
// first: epoch limit, then cron, then rate.
func Build(cfg Config) (Scheduler, error) {
	s, err := New(cfg.Name)
	if err != nil {
		return nil, err
	}
	if cfg.MaxEpochs > 0 {
		s = Limit(s, cfg.MaxEpochs)
	}
	if cfg.Cron != "" {
		c, err := OnCron(s, cfg.Cron)
		if err != nil {
			return nil, err
		}
		s = c
	}
	if cfg.Rate > 0 {
		s = Throttle(s, cfg.Rate, cfg.Burst)
	}
	return s, nil
}
