package workspace

// Phase represents the workspace lifecycle phase.
type Phase int

const (
	PhaseIdle   Phase = iota // No cue file opened yet
	PhaseOpen                // A cue file is loaded and its engine running
	PhaseClosed              // Shut down
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOpen:
		return "open"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}
