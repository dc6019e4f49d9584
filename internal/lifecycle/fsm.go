// Package lifecycle implements the transfer phase and execution status state machines.
package lifecycle

import (
	"fmt"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

// Transfer phases advance strictly in order; FAILED is reachable from every
// non-terminal phase.
var phaseTransitions = map[types.TransferPhase][]types.TransferPhase{
	types.PhaseInitialized:     {types.PhaseSourceReady, types.PhaseFailed},
	types.PhaseSourceReady:     {types.PhaseBalanceVerified, types.PhaseFailed},
	types.PhaseBalanceVerified: {types.PhaseBurned, types.PhaseFailed},
	types.PhaseBurned:          {types.PhaseAttested, types.PhaseFailed},
	types.PhaseAttested:        {types.PhaseMinted, types.PhaseFailed},
	types.PhaseMinted:          {},
	types.PhaseFailed:          {},
}

// An execution is finalized exactly once.
var executionTransitions = map[types.ExecutionStatus][]types.ExecutionStatus{
	types.ExecutionPending:   {types.ExecutionCompleted, types.ExecutionError},
	types.ExecutionCompleted: {},
	types.ExecutionError:     {},
}

func allowed[S comparable](table map[S][]S, from, to S) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanAdvance checks if moving from one transfer phase to another is valid.
func CanAdvance(from, to types.TransferPhase) bool {
	return allowed(phaseTransitions, from, to)
}

// Advance returns an error if the phase transition is invalid.
func Advance(from, to types.TransferPhase) error {
	if !CanAdvance(from, to) {
		return fmt.Errorf("invalid phase transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminalPhase reports whether p ends a transfer.
func IsTerminalPhase(p types.TransferPhase) bool {
	return p == types.PhaseMinted || p == types.PhaseFailed
}

// CanTransition checks if transitioning from one execution status to another is valid.
func CanTransition(from, to types.ExecutionStatus) bool {
	return allowed(executionTransitions, from, to)
}

// Transition validates and returns an error if the status transition is invalid.
func Transition(from, to types.ExecutionStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the status is a terminal (final) state.
func IsTerminal(status types.ExecutionStatus) bool {
	return status == types.ExecutionCompleted || status == types.ExecutionError
}

// Trace records the phases a transfer visited and enforces their order.
type Trace struct {
	phases []types.TransferPhase
}

// NewTrace starts a trace at PhaseInitialized.
func NewTrace() *Trace {
	return &Trace{phases: []types.TransferPhase{types.PhaseInitialized}}
}

// Current returns the latest phase.
func (t *Trace) Current() types.TransferPhase {
	return t.phases[len(t.phases)-1]
}

// Advance moves the trace to phase p if the transition is valid.
func (t *Trace) Advance(p types.TransferPhase) error {
	if err := Advance(t.Current(), p); err != nil {
		return err
	}
	t.phases = append(t.phases, p)
	return nil
}

// Visited reports whether the trace passed through p.
func (t *Trace) Visited(p types.TransferPhase) bool {
	for _, v := range t.phases {
		if v == p {
			return true
		}
	}
	return false
}

// Phases returns a copy of the visited phases in order.
func (t *Trace) Phases() []types.TransferPhase {
	return append([]types.TransferPhase(nil), t.phases...)
}
