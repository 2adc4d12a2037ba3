package playback

import (
	"time"

	"github.com/osa030/cuedeck/internal/app/sequencer"
)

// Snapshot is a read-only view of a cue's playback state.
type Snapshot struct {
	CueID   string
	CueName string
	Phase   Phase
	Fade    Fade

	IsPlaying   bool // audible, including while fading out
	IsPaused    bool
	IsCuedNext  bool
	IsFadingIn  bool
	IsFadingOut bool

	Position  time.Duration // relative to trim start
	Duration  time.Duration // trim-adjusted, 0 if unknown
	Remaining time.Duration

	// Playlists
	ItemIndex       int // logical position
	ItemCount       int
	IsShuffled      bool
	CurrentItemName string
	NextItemName    string

	IsDucked bool
	DuckedBy string

	Instances int // independent instances still playing
}

// GetPlaybackState returns the state of an active cue.
func (e *Engine) GetPlaybackState(cueID string) (Snapshot, bool) {
	e.lock()
	defer e.unlock()

	rec := e.records[cueID]
	if rec == nil {
		if n := e.instanceCountLocked(cueID); n > 0 {
			return Snapshot{CueID: cueID, Instances: n, IsPlaying: true}, true
		}
		return Snapshot{}, false
	}
	return e.snapshotLocked(rec), true
}

// ActiveCues returns the state of every active cue, ordered by cue ID.
func (e *Engine) ActiveCues() []Snapshot {
	e.lock()
	defer e.unlock()

	snaps := make([]Snapshot, 0, len(e.records))
	for _, id := range e.activeIDsLocked() {
		snaps = append(snaps, e.snapshotLocked(e.records[id]))
	}
	return snaps
}

func (e *Engine) snapshotLocked(rec *record) Snapshot {
	s := Snapshot{
		CueID:       rec.cueID,
		CueName:     rec.cue.DisplayName(),
		Phase:       rec.phase,
		Fade:        rec.fade,
		IsPaused:    rec.phase == PhasePaused,
		IsCuedNext:  rec.phase == PhaseCuedNext,
		IsFadingIn:  rec.fade == FadeIn,
		IsFadingOut: rec.fade == FadeOut,
		Instances:   e.instanceCountLocked(rec.cueID),
	}
	// Without a handle nothing is audible.
	if rec.handle != nil {
		s.IsPlaying = rec.phase == PhasePlaying || (rec.phase == PhaseStopping && rec.fade == FadeOut && !rec.stopIssued)
	}

	s.Position, s.Duration, s.Remaining = e.timesLocked(rec)
	if rec.phase == PhaseCuedNext {
		s.Position = 0
		s.Remaining = s.Duration
	}

	if rec.isPlaylist() {
		s.ItemIndex = rec.logical
		s.ItemCount = rec.itemCount()
		s.IsShuffled = rec.order.IsShuffled()
		_, s.CurrentItemName = rec.itemName()
		set := sequencer.SettingsFor(rec.cue, e.config.PlayMode)
		if next, ok := sequencer.Peek(rec.logical, rec.itemCount(), set); ok {
			if it, ok := rec.item(next); ok {
				s.NextItemName = it.Name
			}
		}
	}

	s.IsDucked, s.DuckedBy, _ = e.duck.State(rec.cueID)
	return s
}
