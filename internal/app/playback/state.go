// Package playback provides the playback state engine: per-cue playback
// records, retrigger handling, fades, trims, playlist sequencing and ducking.
package playback

// Phase is the lifecycle phase of a playback record.
type Phase int

const (
	PhaseLoading  Phase = iota // Handle opened, waiting for it to start
	PhasePlaying               // Handle audible
	PhasePaused                // Handle paused
	PhaseCuedNext              // Playlist staged on an item, no handle
	PhaseStopping              // Stop requested (possibly fading out), waiting for confirmation
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseCuedNext:
		return "cued_next"
	case PhaseStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// transitions lists the legal next phases for every phase.
var transitions = map[Phase][]Phase{
	PhaseLoading:  {PhaseLoading, PhasePlaying, PhaseCuedNext, PhaseStopping},
	PhasePlaying:  {PhaseLoading, PhasePaused, PhaseCuedNext, PhaseStopping},
	PhasePaused:   {PhaseLoading, PhasePlaying, PhaseCuedNext, PhaseStopping},
	PhaseCuedNext: {PhaseLoading, PhaseCuedNext},
	// A trim-end stop continues like a natural end.
	PhaseStopping: {PhaseLoading, PhaseCuedNext},
}

// CanTransition reports whether moving from p to next is legal.
func (p Phase) CanTransition(next Phase) bool {
	for _, n := range transitions[p] {
		if n == next {
			return true
		}
	}
	return false
}

// Fade is the fade overlay carried alongside the phase.
type Fade int

const (
	FadeNone Fade = iota
	FadeIn
	FadeOut
)

// String returns the string representation of the fade overlay.
func (f Fade) String() string {
	switch f {
	case FadeNone:
		return "none"
	case FadeIn:
		return "fading_in"
	case FadeOut:
		return "fading_out"
	default:
		return "unknown"
	}
}
