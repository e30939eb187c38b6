package dataflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aixgo-dev/dataflow/agent"
	"github.com/aixgo-dev/dataflow/internal/graph"
	tracing "github.com/aixgo-dev/dataflow/internal/observability"
	"github.com/aixgo-dev/dataflow/internal/stream"
	metrics "github.com/aixgo-dev/dataflow/pkg/observability"
	"github.com/aixgo-dev/dataflow/schedule"
)

// Engine is the registration and run surface shared by Runner and ParallelRunner.
type Engine interface {
	// Add registers an agent. Registration order breaks ties in dependency
	// resolution and ordering.
	Add(a agent.Agent) error

	// Agents returns the registered agents in registration order.
	Agents() []agent.Agent

	// Plan resolves and orders the graph without running it.
	Plan() (*Plan, error)

	// Run blocks until the scheduler reports no more epochs and every agent
	// has been finished.
	Run(ctx context.Context, s schedule.Scheduler) error

	// RunSchedule runs with a fresh scheduler selected by name.
	RunSchedule(ctx context.Context, name string) error
}

// New creates a runner by name: "sequential" or "parallel".
func New(name string, opts ...Option) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case RunnerSequential, "":
		return NewRunner(opts...), nil
	case RunnerParallel:
		return NewParallelRunner(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRunner, name)
	}
}

// Runner names accepted by New.
const (
	RunnerSequential = "sequential"
	RunnerParallel   = "parallel"
)

// engine holds the registry and run lifecycle common to both runners.
type engine struct {
	kind    string
	cfg     *RunnerConfig
	mu      sync.Mutex
	agents  []agent.Agent
	names   map[string]struct{}
	running atomic.Bool
}

func newEngine(kind string, opts []Option) engine {
	return engine{
		kind:  kind,
		cfg:   newConfig(opts),
		names: make(map[string]struct{}),
	}
}

// Add implements Engine. A nil pointer held in the interface counts as nil.
func (e *engine) Add(a agent.Agent) error {
	if isNil(a) || a.Name() == "" {
		return ErrNilAgent
	}
	if e.running.Load() {
		return fmt.Errorf("%w: cannot add agent %s", ErrRunInProgress, a.Name())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.names[a.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAgent, a.Name())
	}
	e.names[a.Name()] = struct{}{}
	e.agents = append(e.agents, a)
	return nil
}

func isNil(a agent.Agent) bool {
	if a == nil {
		return true
	}
	v := reflect.ValueOf(a)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Agents implements Engine.
func (e *engine) Agents() []agent.Agent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]agent.Agent(nil), e.agents...)
}

// RunConfig returns the runner's configuration.
func (e *engine) RunConfig() RunnerConfig {
	return *e.cfg
}

// build resolves dependencies and orders the registered agents.
func (e *engine) build() (*graph.Resolution, []agent.Agent, error) {
	agents := e.Agents()
	res := graph.Build(agents)

	names, err := res.Graph.TopologicalOrder()
	if err != nil {
		return res, nil, err
	}

	byName := make(map[string]agent.Agent, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}
	order := make([]agent.Agent, len(names))
	for i, name := range names {
		order[i] = byName[name]
	}
	return res, order, nil
}

// epochFunc executes one epoch of a run.
type epochFunc func(ctx context.Context, s *runState) error

// run drives the lifecycle: configuration checks, Initialize, epochs, Finish.
func (e *engine) run(ctx context.Context, sched schedule.Scheduler, epoch epochFunc) (err error) {
	if sched == nil {
		sched = schedule.RunOnce()
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer e.running.Store(false)

	s, err := e.prepare()
	if err != nil {
		return err
	}

	start := time.Now()
	if e.cfg.EnableMetrics {
		metrics.InitMetrics()
		metrics.RunStarted(e.kind)
		defer func() {
			metrics.RecordRun(e.kind, runStatus(err), time.Since(start))
		}()
	}
	if e.cfg.EnableTracing {
		var span trace.Span
		ctx, span = tracing.StartSpanWithOtel(ctx, "dataflow.run",
			trace.WithAttributes(
				attribute.String("run.id", s.id),
				attribute.String("runner", e.kind),
				attribute.Int("agents", len(s.order)),
			))
		defer func() {
			endSpan(span, err)
		}()
	}

	s.logger.Info("run started", "agents", len(s.order), "streaming", !s.stream.Empty())

	if err := s.initialize(ctx); err != nil {
		s.logger.Error("initialization failed", "error", err)
		return err
	}

	runErr := e.loop(ctx, s, sched, epoch)
	finErr := s.finish(ctx, s.order)
	err = errors.Join(runErr, finErr)

	if err != nil {
		s.logger.Error("run failed", "epochs", s.epochs, "duration", time.Since(start), "error", err)
	} else {
		s.logger.Info("run finished", "epochs", s.epochs, "duration", time.Since(start))
	}
	return err
}

func (e *engine) loop(ctx context.Context, s *runState, sched schedule.Scheduler, epoch epochFunc) error {
	for sched.HasMoreEpochs() {
		if err := s.waitCanRun(ctx, sched); err != nil {
			return err
		}

		if err := s.runEpoch(ctx, epoch); err != nil {
			return err
		}

		if obs, ok := sched.(schedule.EpochObserver); ok {
			obs.EpochComplete(s.order)
		}
		sched.Advance()
	}
	return nil
}

func (e *engine) prepare() (*runState, error) {
	id := uuid.NewString()
	logger := e.cfg.Logger.With("run_id", id, "runner", e.kind)

	res, order, err := e.build()
	if err != nil {
		logger.Error("invalid agent graph", "error", err)
		return nil, err
	}
	if len(res.Unresolved) > 0 {
		if !e.cfg.LenientDependencies {
			errs := make([]error, len(res.Unresolved))
			for i, u := range res.Unresolved {
				errs[i] = u
			}
			err := errors.Join(errs...)
			logger.Error("unresolved dependencies", "error", err)
			return nil, err
		}
		for _, u := range res.Unresolved {
			logger.Warn("unresolved dependency", "agent", u.Agent, "dependency", u.Dependency.String())
		}
	}

	s := &runState{
		id:       id,
		kind:     e.kind,
		cfg:      e.cfg,
		logger:   logger,
		order:    order,
		deps:     make(map[string][]agent.Agent, len(order)),
		executed: make(map[string]bool, len(order)),
		values:   newValueTable(),
	}
	byName := make(map[string]agent.Agent, len(order))
	for _, a := range order {
		byName[a.Name()] = a
	}
	for _, a := range order {
		for _, p := range res.Graph.GetDependencies(a.Name()) {
			s.deps[a.Name()] = append(s.deps[a.Name()], byName[p])
		}
	}

	streamOpts := []stream.Option{
		stream.WithLogger(logger),
		stream.WithExec(func(ctx context.Context, a agent.Agent) error {
			return s.call(ctx, a, PhaseExecute, a.Execute)
		}),
	}
	if e.cfg.EnableMetrics {
		streamOpts = append(streamOpts, stream.WithItemHook(metrics.RecordStreamItem))
	}
	s.stream = stream.New(order, res.Graph.GetDependencies, streamOpts...)

	return s, nil
}

// runState is the per-run view of the graph.
type runState struct {
	id     string
	kind   string
	cfg    *RunnerConfig
	logger *slog.Logger

	order []agent.Agent
	// deps holds the resolved producers of each agent in declaration order.
	deps map[string][]agent.Agent
	// executed marks batch agents that already ran in this run.
	executed map[string]bool
	// values is the wave hand-off table of the parallel runner.
	values *valueTable
	stream *stream.Coordinator
	epochs int
}

func (s *runState) runEpoch(ctx context.Context, epoch epochFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.EnableTracing {
		var span trace.Span
		ctx, span = tracing.StartSpanWithOtel(ctx, "dataflow.epoch",
			trace.WithAttributes(attribute.Int("epoch", s.epochs)))
		defer func() {
			endSpan(span, err)
		}()
	}

	s.logger.Debug("epoch started", "epoch", s.epochs)
	if err := epoch(ctx, s); err != nil {
		return err
	}
	s.epochs++
	if s.cfg.EnableMetrics {
		metrics.RecordEpoch(s.kind)
	}
	return nil
}

// waitCanRun polls the scheduler until it allows an epoch.
func (s *runState) waitCanRun(ctx context.Context, sched schedule.Scheduler) error {
	for !sched.CanRun() {
		timer := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (s *runState) initialize(ctx context.Context) error {
	for i, a := range s.order {
		if err := s.call(ctx, a, PhaseInitialize, a.Initialize); err != nil {
			return errors.Join(err, s.finish(ctx, s.order[:i]))
		}
	}
	return nil
}

// finish calls Finish on every agent even after cancellation or failures.
func (s *runState) finish(ctx context.Context, agents []agent.Agent) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, a := range agents {
		if err := s.call(ctx, a, PhaseFinish, a.Finish); err != nil {
			s.logger.Warn("finish failed", "agent", a.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// call runs one lifecycle call with panic recovery, metrics and tracing.
func (s *runState) call(ctx context.Context, a agent.Agent, phase Phase, fn func(context.Context) error) (err error) {
	start := time.Now()
	var span trace.Span
	if s.cfg.EnableTracing {
		ctx, span = tracing.StartSpanWithOtel(ctx, "dataflow.agent."+string(phase),
			trace.WithAttributes(
				attribute.String("agent.name", a.Name()),
				attribute.String("agent.kind", a.Kind()),
			))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrAgentPanic, r)
		}
		if err != nil {
			err = &ExecutionError{Agent: a.Name(), Phase: phase, Err: err}
		}
		if span != nil {
			endSpan(span, err)
		}
		if s.cfg.EnableMetrics {
			metrics.RecordAgentCall(a.Name(), string(phase), callStatus(err))
			if phase == PhaseExecute {
				metrics.RecordAgentExecution(a.Name(), time.Since(start))
			}
		}
	}()

	return fn(ctx)
}

// wire copies producer values into a consumer's input slot. Only producers
// accepted by include are considered.
func (s *runState) wire(a agent.Agent, value func(agent.Agent) any, include func(agent.Agent) bool) {
	var producers []agent.Agent
	for _, p := range s.deps[a.Name()] {
		if include(p) {
			producers = append(producers, p)
		}
	}
	if len(producers) == 0 {
		return
	}

	switch c := a.(type) {
	case agent.MultiConsumer:
		inputs := make(map[string]any, len(producers))
		for _, p := range producers {
			if v := value(p); v != nil {
				inputs[p.Kind()] = v
			}
		}
		c.SetInputs(inputs)
	case agent.Consumer:
		c.SetInput(value(producers[0]))
	}
}

// drain runs the streaming sub-loop after handing batch values to streaming
// agents that also accept batch input.
func (s *runState) drain(ctx context.Context, value func(agent.Agent) any, run func(context.Context) error) (err error) {
	if s.stream.Empty() || !s.stream.Active() {
		return nil
	}
	for _, a := range s.order {
		if agent.IsStreaming(a) {
			s.wire(a, value, isBatch)
		}
	}

	if s.cfg.EnableTracing {
		var span trace.Span
		ctx, span = tracing.StartSpanWithOtel(ctx, "dataflow.stream")
		defer func() {
			endSpan(span, err)
		}()
	}
	return run(ctx)
}

func isBatch(a agent.Agent) bool { return !agent.IsStreaming(a) }

func everyProducer(agent.Agent) bool { return true }

// valueTable is the name to value hand-off table published at wave boundaries.
type valueTable struct {
	mu     sync.RWMutex
	values map[string]any
}

func newValueTable() *valueTable {
	return &valueTable{values: make(map[string]any)}
}

func (t *valueTable) Store(name string, v any) {
	t.mu.Lock()
	t.values[name] = v
	t.mu.Unlock()
}

func (t *valueTable) Load(name string) any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values[name]
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func callStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
