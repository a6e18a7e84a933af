package camera

// State is the controller lifecycle state.
type State int32

const (
	StateClosed State = iota
	StateOpening
	StatePreviewing
	StateRecording
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StatePreviewing:
		return "previewing"
	case StateRecording:
		return "recording"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
