// Package recording tracks the lifecycle of one video recording and owns
// its encoder.
package recording

import (
	"errors"
	"fmt"
)

// State is the recording lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrIllegalTransition is returned when a transition is not allowed from the
// current state.
var ErrIllegalTransition = errors.New("illegal recording state transition")

var transitions = map[State][]State{
	StateIdle:      {StatePreparing},
	StatePreparing: {StateIdle, StateRecording},
	StateRecording: {StateStopping},
	StateStopping:  {StateIdle},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
