package step

import (
	"errors"
	"fmt"
)

// State is the coarse position of a query in the pipeline.
type State int

// States. Stage states follow dependency order so progress is a monotonic max.
const (
	StateIdle State = iota
	StateSections
	StateTraits
	StateKeyPhrases
	StateQuerySynthesis
	StateRetrieval
	StateScoring
	StateDone
	StateError
)

var stateNames = [...]string{
	"idle", "sections", "traits", "key_phrases", "query_synthesis", "retrieval", "scoring", "done", "error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateDone || s == StateError }

var stageState = map[Stage]State{
	StageSections:       StateSections,
	StageTraits:         StateTraits,
	StageKeyPhrases:     StateKeyPhrases,
	StageQuerySynthesis: StateQuerySynthesis,
	StageRetrieval:      StateRetrieval,
	StageScoring:        StateScoring,
}

var dependencies = map[Stage][]Stage{
	StageKeyPhrases:     {StageSections, StageTraits},
	StageQuerySynthesis: {StageSections, StageTraits, StageKeyPhrases},
	StageRetrieval:      {StageQuerySynthesis},
	StageScoring:        {StageTraits, StageRetrieval},
}

// ErrTransition reports an illegal state machine transition.
var ErrTransition = errors.New("illegal pipeline transition")

// Machine enforces the per-query transition rules. It is not safe for
// concurrent use; the orchestrator is its only writer.
type Machine struct {
	state    State
	statuses map[Stage]Status
}

// NewMachine returns a machine in the idle state.
func NewMachine() *Machine {
	return &Machine{statuses: make(map[Stage]Status, len(stageState))}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Status returns a stage's last status, or "" if it never started.
func (m *Machine) Status(s Stage) Status { return m.statuses[s] }

// Begin marks a stage as started. Every dependency must have completed or errored.
func (m *Machine) Begin(s Stage) error {
	st, ok := stageState[s]
	if !ok {
		return fmt.Errorf("%w: unknown stage %q", ErrTransition, s)
	}
	if m.state.Terminal() {
		return fmt.Errorf("%w: %s after %s", ErrTransition, s, m.state)
	}
	if m.statuses[s] != "" {
		return fmt.Errorf("%w: %s already %s", ErrTransition, s, m.statuses[s])
	}
	for _, dep := range dependencies[s] {
		if !m.resolved(dep) {
			return fmt.Errorf("%w: %s before %s resolved", ErrTransition, s, dep)
		}
	}
	m.statuses[s] = StatusStarted
	m.state = max(m.state, st)
	return nil
}

// Finish records a started stage's outcome (completed or error).
func (m *Machine) Finish(s Stage, status Status) error {
	if status != StatusCompleted && status != StatusError {
		return fmt.Errorf("%w: %s cannot finish as %q", ErrTransition, s, status)
	}
	if m.state.Terminal() {
		return fmt.Errorf("%w: finish %s after %s", ErrTransition, s, m.state)
	}
	if m.statuses[s] != StatusStarted {
		return fmt.Errorf("%w: %s is %q, not started", ErrTransition, s, m.statuses[s])
	}
	m.statuses[s] = status
	return nil
}

// Complete moves to done. Every stage must be resolved.
func (m *Machine) Complete() error {
	if m.state.Terminal() {
		return fmt.Errorf("%w: done after %s", ErrTransition, m.state)
	}
	for s := range stageState {
		if !m.resolved(s) {
			return fmt.Errorf("%w: done before %s resolved", ErrTransition, s)
		}
	}
	m.state = StateDone
	return nil
}

// Fail moves to the error state from any non-terminal state.
func (m *Machine) Fail() error {
	if m.state.Terminal() {
		return fmt.Errorf("%w: error after %s", ErrTransition, m.state)
	}
	m.state = StateError
	return nil
}

func (m *Machine) resolved(s Stage) bool {
	st := m.statuses[s]
	return st == StatusCompleted || st == StatusError
}
