package playback

import (
	"time"

	"github.com/osa030/cuedeck/internal/app/ducking"
)

// engineMixer exposes the engine's records to the ducking coordinator.
// The coordinator only calls it with the engine lock held.
type engineMixer struct {
	e *Engine
}

func (m engineMixer) Targets() []ducking.Target {
	var targets []ducking.Target
	for _, id := range m.e.activeIDsLocked() {
		rec := m.e.records[id]
		if rec.handle == nil || rec.phase == PhaseStopping {
			continue
		}
		targets = append(targets, ducking.Target{
			CueID:   id,
			Volume:  rec.cue.Volume,
			Enabled: rec.cue.EnableDucking,
		})
	}
	return targets
}

func (m engineMixer) FadeVolume(cueID string, to float64, d time.Duration) {
	rec := m.e.records[cueID]
	if rec == nil || rec.handle == nil || rec.phase == PhaseStopping {
		return
	}

	switch rec.phase {
	case PhasePlaying:
		if rec.fade == FadeIn {
			rec.fade = FadeNone
			rec.timers.cancel(timerFade)
		}
		if d <= 0 {
			rec.handle.SetVolume(to)
			return
		}
		rec.handle.Fade(rec.handle.Volume(), to, d)
	case PhaseLoading:
		// A pending fade-in picks up the new factor when the handle loads.
		if rec.fade == FadeIn {
			rec.handle.Fade(rec.handle.Volume(), to, d)
			return
		}
		if m.e.fadeInFor(rec.cue) == 0 {
			rec.handle.SetVolume(to)
		}
	default:
		rec.handle.SetVolume(to)
	}
}
