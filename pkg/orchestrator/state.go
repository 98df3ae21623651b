package orchestrator

import "fmt"

// State is the lifecycle state of a pipeline session.
type State string

const (
	StateInit     State = "INIT"
	StateRunning  State = "RUNNING"
	StateHalted   State = "HALTED"
	StateComplete State = "COMPLETE"
	StateFailed   State = "FAILED"
)

// validTransitions defines the session state machine. RUNNING loops on itself
// once per stage; HALTED goes back to RUNNING when answers arrive.
//
//nolint:gochecknoglobals // Intentional package-level constant for state machine definition
var validTransitions = map[State][]State{
	StateInit: {
		StateRunning,
	},
	StateRunning: {
		StateRunning,
		StateHalted,
		StateComplete,
		StateFailed,
	},
	StateHalted: {
		StateRunning,
	},
	StateComplete: {},
	StateFailed:   {},
}

// IsValidTransition checks if a state transition is allowed.
func IsValidTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidNextStates returns the valid next states for a given state.
func ValidNextStates(from State) []State {
	return validTransitions[from]
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	next, ok := validTransitions[s]
	return ok && len(next) == 0
}

// TransitionError reports a move the state machine forbids.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

func transition(from, to State) error {
	if !IsValidTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}
