package dataflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNilAgent is returned when registering a nil or unnamed agent.
	ErrNilAgent = errors.New("agent is nil or has no name")

	// ErrDuplicateAgent is returned when an agent name is registered twice.
	ErrDuplicateAgent = errors.New("duplicate agent name")

	// ErrRunInProgress is returned when registering or running while a run is active.
	ErrRunInProgress = errors.New("run in progress")

	// ErrStalledWave is returned when no agent becomes ready while agents remain.
	ErrStalledWave = errors.New("stalled wave")

	// ErrAgentPanic wraps a panic recovered from an agent call.
	ErrAgentPanic = errors.New("agent panicked")

	// ErrUnknownRunner is returned when a runner name is not recognised.
	ErrUnknownRunner = errors.New("unknown runner")
)

// Phase names an agent lifecycle call.
type Phase string

const (
	PhaseInitialize Phase = "initialize"
	PhaseExecute    Phase = "execute"
	PhaseFinish     Phase = "finish"
)

// ExecutionError reports a failed agent lifecycle call.
type ExecutionError struct {
	Agent string
	Phase Phase
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent %s: %s: %v", e.Agent, e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// StalledWaveError lists the agents that could not become ready.
type StalledWaveError struct {
	Remaining []string
}

func (e *StalledWaveError) Error() string {
	return fmt.Sprintf("stalled wave: no agent ready, %d remaining: %s",
		len(e.Remaining), strings.Join(e.Remaining, ", "))
}

// Unwrap returns the base error for errors.Is compatibility.
func (e *StalledWaveError) Unwrap() error {
	return ErrStalledWave
}
