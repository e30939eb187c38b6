package agents

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/aixgo-dev/dataflow/agent"
)

// Hybrid consumes a stream of integers and a batch integer in the same run.
// The engine delivers the batch value through SetInputs before the stream is
// drained; stream items arrive through the embedded StreamConsumer. It
// produces a summary of both once the first item has been consumed.
type Hybrid struct {
	*agent.StreamConsumer[int, string]
	totals *hybridTotals
}

// NewHybrid creates a hybrid consumer. deps should name one batch producer
// and at least one stream producer.
func NewHybrid(name, kind string, log *slog.Logger, deps ...agent.Dependency) *Hybrid {
	t := &hybridTotals{log: log}
	return &Hybrid{
		StreamConsumer: agent.NewStreamConsumer[int, string](name, kind, t, deps...),
		totals:         t,
	}
}

// SetInputs implements agent.MultiConsumer. With several integer inputs the
// one whose kind sorts last wins.
func (h *Hybrid) SetInputs(values map[string]any) {
	for _, kind := range slices.Sorted(maps.Keys(values)) {
		if n, ok := values[kind].(int); ok {
			h.totals.setBatch(n)
		}
	}
}

// Batch returns the batch value received this run.
func (h *Hybrid) Batch() int {
	h.totals.mu.Lock()
	defer h.totals.mu.Unlock()
	return h.totals.batch
}

// Summary returns the current summary string.
func (h *Hybrid) Summary() string { return h.totals.Produce() }

type hybridTotals struct {
	log   *slog.Logger
	mu    sync.Mutex
	batch int
	sum   int
	count int
}

func (t *hybridTotals) Initialize(context.Context) error {
	t.mu.Lock()
	t.batch, t.sum, t.count = 0, 0, 0
	t.mu.Unlock()
	return nil
}

func (t *hybridTotals) setBatch(n int) {
	t.mu.Lock()
	t.batch = n
	t.mu.Unlock()
}

func (t *hybridTotals) ConsumeItem(_ context.Context, item int) error {
	t.mu.Lock()
	t.sum += item
	t.count++
	t.mu.Unlock()
	return nil
}

func (t *hybridTotals) Produce() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("Batch:%d,StreamSum:%d,StreamCount:%d", t.batch, t.sum, t.count)
}

func (t *hybridTotals) Finish(context.Context) error {
	if t.log != nil {
		t.log.Info("hybrid result", "summary", t.Produce())
	}
	return nil
}
