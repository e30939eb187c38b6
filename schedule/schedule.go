// Package schedule provides the epoch schedulers that decide how many passes a
// runner makes over its agent graph and when the run terminates.
package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aixgo-dev/dataflow/agent"
)

// ErrUnknownSchedule is returned when a schedule name is not recognised.
var ErrUnknownSchedule = errors.New("unknown schedule")

// Schedule names accepted by New.
const (
	NameRunOnce                = "run_once"
	NameRunIndefinitely        = "run_indefinitely"
	NameRunUntilStreamComplete = "run_until_stream_complete"
)

// Scheduler decides whether another epoch runs.
//
// The runner loops while HasMoreEpochs reports true. Before each epoch it polls
// CanRun, sleeping between polls, and calls Advance after the epoch finished.
type Scheduler interface {
	CanRun() bool
	HasMoreEpochs() bool
	Advance()
}

// EpochObserver is implemented by schedulers that inspect the agents after
// every epoch. Runners call EpochComplete before Advance.
type EpochObserver interface {
	EpochComplete(agents []agent.Agent)
}

// Names lists the schedule names accepted by New.
func Names() []string {
	return []string{NameRunOnce, NameRunIndefinitely, NameRunUntilStreamComplete}
}

// New creates a fresh scheduler by name. Names are case-insensitive and accept
// either dashes or underscores.
func New(name string) (Scheduler, error) {
	switch normalize(name) {
	case NameRunOnce:
		return RunOnce(), nil
	case NameRunIndefinitely:
		return RunIndefinitely(), nil
	case NameRunUntilStreamComplete:
		return RunUntilStreamComplete(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchedule, name)
	}
}

func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

// Once runs exactly one epoch.
type Once struct {
	done bool
}

// RunOnce returns a scheduler that runs a single epoch.
func RunOnce() *Once { return &Once{} }

func (s *Once) CanRun() bool        { return true }
func (s *Once) HasMoreEpochs() bool { return !s.done }
func (s *Once) Advance()            { s.done = true }

// Indefinitely never stops. Callers end the run by cancelling its context.
type Indefinitely struct{}

// RunIndefinitely returns a scheduler with unbounded epochs.
func RunIndefinitely() *Indefinitely { return &Indefinitely{} }

func (s *Indefinitely) CanRun() bool        { return true }
func (s *Indefinitely) HasMoreEpochs() bool { return true }
func (s *Indefinitely) Advance()            {}

// UntilStreamComplete runs epochs until every streaming agent is exhausted. A
// graph without streaming agents runs a single epoch.
type UntilStreamComplete struct {
	complete bool
}

// RunUntilStreamComplete returns a scheduler bounded by streaming state.
func RunUntilStreamComplete() *UntilStreamComplete { return &UntilStreamComplete{} }

func (s *UntilStreamComplete) CanRun() bool        { return true }
func (s *UntilStreamComplete) HasMoreEpochs() bool { return !s.complete }
func (s *UntilStreamComplete) Advance()            {}

// EpochComplete implements EpochObserver.
func (s *UntilStreamComplete) EpochComplete(agents []agent.Agent) {
	for _, a := range agents {
		if st, ok := a.(agent.Streamer); ok && st.HasMoreData() {
			s.complete = false
			return
		}
	}
	s.complete = true
}
