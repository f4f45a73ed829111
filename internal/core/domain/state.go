package domain

// State is a step of the per-configuration lifecycle.
type State string

const (
	// StateIdle is the state of a run that has not started.
	StateIdle State = "Idle"
	// StateFetching downloads and unpacks the sources.
	StateFetching State = "Fetching"
	// StatePatching applies the recipe's source patches.
	StatePatching State = "Patching"
	// StateBuilding configures, compiles and installs.
	StateBuilding State = "Building"
	// StatePackaging collects outputs and publishes the artifact.
	StatePackaging State = "Packaging"
	// StateDone is the terminal success state.
	StateDone State = "Done"
	// StateFailed is the terminal failure state.
	StateFailed State = "Failed"
)

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Next returns the state that follows s on the success path.
// Terminal states return themselves.
func (s State) Next() State {
	switch s {
	case StateIdle:
		return StateFetching
	case StateFetching:
		return StatePatching
	case StatePatching:
		return StateBuilding
	case StateBuilding:
		return StatePackaging
	case StatePackaging:
		return StateDone
	default:
		return s
	}
}

// Stages lists the non-terminal working states in execution order.
func Stages() []State {
	return []State{StateFetching, StatePatching, StateBuilding, StatePackaging}
}
