// Package sequencer decides which playlist item plays next.
package sequencer

import (
	"math/rand/v2"

	"github.com/osa030/cuedeck/internal/domain/cue"
	"github.com/osa030/cuedeck/internal/domain/playlist"
)

// Action is the outcome of resolving the end of a playlist item.
type Action int

const (
	ActionAdvance       Action = iota // Play Index immediately
	ActionLoopFromStart               // Wrapped around; play Index (0) immediately
	ActionCueNext                     // Stage Index and wait for a trigger
	ActionStop                        // Playlist finished
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionAdvance:
		return "advance"
	case ActionLoopFromStart:
		return "loop_from_start"
	case ActionCueNext:
		return "cue_next"
	case ActionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Plays reports whether the action starts playback immediately.
func (a Action) Plays() bool {
	return a == ActionAdvance || a == ActionLoopFromStart
}

// Settings are the playlist flags that drive sequencing.
type Settings struct {
	Mode      cue.PlayMode
	Loop      bool
	Shuffle   bool
	RepeatOne bool
}

// SettingsFor extracts sequencing settings from a cue, falling back to defaultMode.
func SettingsFor(c *cue.Cue, defaultMode cue.PlayMode) Settings {
	mode := c.PlayMode
	if !mode.Valid() {
		mode = defaultMode
	}
	if !mode.Valid() {
		mode = cue.PlayModeContinue
	}
	return Settings{
		Mode:      mode,
		Loop:      c.Loop,
		Shuffle:   c.Shuffle,
		RepeatOne: c.RepeatOne,
	}
}

// Decision is the resolved next step. Order is the order to use from now on;
// it differs from the input order only when a shuffled playlist wrapped around.
type Decision struct {
	Action Action
	Index  int // logical index, -1 for ActionStop
	Order  playlist.Order
}

// Sequencer resolves playlist transitions. It is not safe for concurrent use.
type Sequencer struct {
	rng *rand.Rand
}

// New creates a sequencer drawing shuffles from rng.
func New(rng *rand.Rand) *Sequencer {
	return &Sequencer{rng: rng}
}

// NewOrder returns a fresh order for n items.
func (s *Sequencer) NewOrder(n int, shuffle bool) playlist.Order {
	if !shuffle {
		return nil
	}
	return playlist.Shuffled(n, s.rng)
}

// Resolve decides what follows the item at logical position in a playlist of n items.
func (s *Sequencer) Resolve(order playlist.Order, logical, n int, set Settings) Decision {
	if set.RepeatOne {
		return Decision{Action: ActionCueNext, Index: logical, Order: order}
	}

	next := logical + 1
	if next < n {
		if set.Mode == cue.PlayModeStopAndCueNext {
			return Decision{Action: ActionCueNext, Index: next, Order: order}
		}
		return Decision{Action: ActionAdvance, Index: next, Order: order}
	}

	if !set.Loop {
		return Decision{Action: ActionStop, Index: -1, Order: order}
	}

	// Shuffle orders are regenerated only when wrapping around.
	fresh := s.NewOrder(n, set.Shuffle)
	if set.Mode == cue.PlayModeStopAndCueNext {
		return Decision{Action: ActionCueNext, Index: 0, Order: fresh}
	}
	return Decision{Action: ActionLoopFromStart, Index: 0, Order: fresh}
}

// Peek returns the logical index expected to follow without mutating anything.
// At a loop boundary the index refers to the start of a not yet generated order.
func Peek(logical, n int, set Settings) (int, bool) {
	if n == 0 {
		return -1, false
	}
	if set.RepeatOne {
		return logical, true
	}
	if logical+1 < n {
		return logical + 1, true
	}
	if set.Loop {
		return 0, true
	}
	return -1, false
}
