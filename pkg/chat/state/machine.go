package state

import (
	"fmt"
)

// transitions is the closed set of legal moves. Creating is reachable from
// every state because starting a new chat abandons whatever is in flight.
var transitions = map[Workflow][]Workflow{
	Uninitialized:         {Creating},
	Creating:              {Creating, Ready, Failed},
	AnalyzingContext:      {Creating, FetchingContextDetail, Ready, Failed},
	FetchingContextDetail: {Creating, SearchingResult, Ready, Failed},
	SearchingResult:       {Creating, SynthesizingResponse, Ready, Failed},
	SynthesizingResponse:  {Creating, Ready, Failed},
	Ready:                 {Creating, AnalyzingContext},
	Failed:                {Creating, AnalyzingContext},
}

// Machine holds the current workflow state and rejects backward moves.
type Machine struct {
	current Workflow
	flags   Flags
}

// NewMachine creates a machine in the Uninitialized state.
func NewMachine() *Machine {
	return &Machine{current: Uninitialized}
}

// Current returns the active workflow state.
func (m *Machine) Current() Workflow {
	return m.current
}

// Flags returns a copy of the substage flags for the current turn.
func (m *Machine) Flags() Flags {
	return m.flags
}

// CanMove reports whether to is a legal successor of the current state.
func (m *Machine) CanMove(to Workflow) bool {
	for _, next := range transitions[m.current] {
		if next == to {
			return true
		}
	}
	return false
}

// Move transitions to the given state. Entering Creating or AnalyzingContext
// starts a new turn and clears the substage flags.
func (m *Machine) Move(to Workflow) error {
	if !m.CanMove(to) {
		return fmt.Errorf("illegal transition %s -> %s", m.current, to)
	}
	if to == Creating || to == AnalyzingContext {
		m.flags = Flags{}
	}
	m.current = to
	return nil
}

// Mark sets a substage flag, refusing flags that would skip an earlier one.
func (m *Machine) Mark(f Flag) error {
	return m.flags.set(f)
}
