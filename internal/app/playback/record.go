package playback

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/domain/cue"
	"github.com/osa030/cuedeck/internal/domain/playlist"
	"github.com/osa030/cuedeck/internal/domain/sound"
)

// record is the playback state of one cue. Exactly one record exists per
// active cue; independent instances are tracked separately.
type record struct {
	cueID string
	cue   *cue.Cue // snapshot taken when playback started

	handle sound.Handle
	token  uint64 // identifies the current handle; events from older handles are dropped
	phase  Phase
	fade   Fade

	// Stop bookkeeping
	stopReason    string
	stopAfterFade bool
	stopIssued    bool
	restart       uint64 // restart sequence this record is being stopped for

	// Position
	duration time.Duration // raw media duration, 0 until known
	failures int           // consecutive playlist item failures

	// Playlist
	order   playlist.Order
	logical int

	timers *timerSet
}

func newRecord(c *cue.Cue) *record {
	return &record{
		cueID:  c.ID,
		cue:    c,
		phase:  PhaseLoading,
		timers: newTimerSet(),
	}
}

// setPhase moves the record to next, refusing illegal transitions.
func (r *record) setPhase(next Phase) bool {
	if r.phase == next && next != PhaseLoading && next != PhaseCuedNext {
		return true
	}
	if !r.phase.CanTransition(next) {
		zlog.Warn().Msgf("playback: illegal transition refused: cue=%s from=%s to=%s", r.cueID, r.phase, next)
		return false
	}
	r.phase = next
	return true
}

func (r *record) isPlaylist() bool {
	return r.cue.IsPlaylist()
}

func (r *record) itemCount() int {
	return len(r.cue.Items)
}

// item returns the playlist item at logical position pos.
func (r *record) item(pos int) (cue.PlaylistItem, bool) {
	if !r.isPlaylist() {
		return cue.PlaylistItem{}, false
	}
	idx := r.index(pos)
	if idx < 0 {
		return cue.PlaylistItem{}, false
	}
	return r.cue.Items[idx], true
}

// index resolves a logical position to an item index, -1 if out of range.
func (r *record) index(pos int) int {
	if pos < 0 || pos >= r.itemCount() {
		return -1
	}
	return r.order.Item(pos)
}

func (r *record) currentItem() (cue.PlaylistItem, bool) {
	return r.item(r.logical)
}

// media returns the path to open for the current position and its item.
func (r *record) media() (string, cue.PlaylistItem) {
	if it, ok := r.currentItem(); ok {
		return it.Path, it
	}
	return r.cue.FilePath, cue.PlaylistItem{}
}

// knownDuration is the stored duration of the current media.
func (r *record) knownDuration() time.Duration {
	if it, ok := r.currentItem(); ok {
		return it.KnownDuration
	}
	return r.cue.KnownDuration
}

// rememberDuration stores a discovered duration on the snapshot so loops
// do not report it again.
func (r *record) rememberDuration(d time.Duration) {
	if !r.isPlaylist() {
		r.cue.KnownDuration = d
		return
	}
	if idx := r.index(r.logical); idx >= 0 {
		r.cue.Items[idx].KnownDuration = d
	}
}

// trimStart applies to single cues only.
func (r *record) trimStart() time.Duration {
	if r.isPlaylist() {
		return 0
	}
	return r.cue.TrimStart
}

// trimEnd is the absolute position playback ends at, 0 when untrimmed.
func (r *record) trimEnd() time.Duration {
	if r.isPlaylist() {
		return 0
	}
	return r.cue.TrimEnd
}

// bounds returns the playable window of the current media. end is 0 when
// the duration is not known yet.
func (r *record) bounds() (start, end time.Duration) {
	start = r.trimStart()
	end = r.duration
	if end == 0 {
		end = r.knownDuration()
	}
	if te := r.trimEnd(); te > 0 && (end == 0 || te < end) {
		end = te
	}
	if end > 0 && end < start {
		end = start
	}
	return start, end
}

func (r *record) itemName() (id, name string) {
	if it, ok := r.currentItem(); ok {
		return it.ID, it.Name
	}
	return "", ""
}
