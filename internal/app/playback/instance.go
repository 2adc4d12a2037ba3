package playback

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/app/sequencer"
	"github.com/osa030/cuedeck/internal/domain/sound"
)

// durationTolerance is how far a measured duration may differ from the
// stored one before it is reported again.
const durationTolerance = 500 * time.Millisecond

// silence is the fade step volume at which a fade-out counts as finished.
const silence = 0.001

// startLocked opens a new handle for the record's current media and
// replaces whatever handle it had.
// Must be called with lock held.
func (e *Engine) startLocked(rec *record) {
	e.releaseHandleLocked(rec)

	path, item := rec.media()
	token := e.nextToken()
	rec.token = token
	rec.fade = FadeNone
	rec.stopReason = ""
	rec.stopAfterFade = false
	rec.stopIssued = false
	rec.duration = 0
	rec.setPhase(PhaseLoading)

	volume := rec.cue.Volume * e.duck.Join(rec.cueID, rec.cue.Volume, rec.cue.EnableDucking)
	if e.fadeInFor(rec.cue) > 0 {
		volume = 0
	}

	zlog.Debug().Msgf("playback: open: cue=%s item=%s path=%s", rec.cueID, item.ID, path)
	rec.handle = e.sound.Open(path, sound.Options{
		Volume: volume,
		Device: e.config.Device,
	}, e.listener(rec.cueID, token))
}

// advanceLocked starts the record's current position once the handler that
// called it has finished. Events from the old handle are dropped from now on.
func (e *Engine) advanceLocked(rec *record) {
	rec.timers.cancelAll()
	token := e.nextToken()
	rec.token = token
	rec.fade = FadeNone
	rec.setPhase(PhaseLoading)
	e.nav.Remember(rec.cueID, rec.logical)

	e.deferLocked(func() {
		if e.records[rec.cueID] != rec || rec.token != token {
			return
		}
		e.startLocked(rec)
	})
}

func (e *Engine) listener(cueID string, token uint64) sound.Listener {
	return func(ev sound.Event) {
		e.post(func() { e.handleSoundEventLocked(cueID, token, ev) })
	}
}

func (e *Engine) handleSoundEventLocked(cueID string, token uint64, ev sound.Event) {
	rec := e.records[cueID]
	if rec == nil || rec.token != token || rec.handle == nil {
		zlog.Debug().Msgf("playback: stale sound event ignored: cue=%s event=%s", cueID, ev.Type)
		return
	}

	switch ev.Type {
	case sound.EventLoaded:
		e.onLoadedLocked(rec)
	case sound.EventStarted:
		e.onStartedLocked(rec)
	case sound.EventPaused:
		if rec.phase == PhasePlaying {
			e.markPausedLocked(rec)
		}
	case sound.EventEnded:
		if rec.phase == PhaseStopping {
			e.onStoppedLocked(rec)
			return
		}
		e.naturalEndLocked(rec)
	case sound.EventStopped:
		e.onStoppedLocked(rec)
	case sound.EventFadeStep:
		if rec.stopAfterFade && !rec.stopIssued && ev.Volume <= silence {
			e.issueStopLocked(rec)
		}
	case sound.EventLoadError, sound.EventPlayError:
		e.onErrorLocked(rec, ev)
	}
}

func (e *Engine) onLoadedLocked(rec *record) {
	if rec.phase != PhaseLoading {
		return
	}
	rec.duration = rec.handle.Duration()
	e.reportDurationLocked(rec)

	if start := rec.trimStart(); start > 0 {
		rec.handle.Seek(start)
	}
	if fade := e.fadeInFor(rec.cue); fade > 0 {
		target := rec.cue.Volume * e.duck.Factor(rec.cueID)
		rec.fade = FadeIn
		rec.handle.Fade(0, target, fade)
		e.armLocked(rec, timerFade, fade, func() {
			if rec.fade == FadeIn {
				rec.fade = FadeNone
			}
		})
	}
	rec.handle.Play()
}

func (e *Engine) onStartedLocked(rec *record) {
	if rec.phase != PhaseLoading && rec.phase != PhasePaused {
		return
	}
	rec.setPhase(PhasePlaying)
	rec.failures = 0
	e.startPollLocked(rec)
	e.armTrimEndLocked(rec)
	if rec.cue.IsDuckingTrigger {
		e.duck.Apply(rec.cueID, rec.cue.DuckingLevelPercent)
	}

	id, name := rec.itemName()
	e.statusLocked(Event{CueID: rec.cueID, Status: StatusPlaying, ItemID: id, ItemName: name})
}

// onStoppedLocked releases a stopped record and replays it if a restart
// is still pending for it.
func (e *Engine) onStoppedLocked(rec *record) {
	reason := rec.stopReason
	if reason == "" {
		reason = ReasonUser
	}
	seq := rec.restart
	e.destroyLocked(rec, StatusStopped, reason)
	if seq != 0 && e.restarts[rec.cueID] == seq {
		e.scheduleReplayLocked(rec.cueID, seq)
	}
}

// naturalEndLocked handles media reaching its end.
func (e *Engine) naturalEndLocked(rec *record) {
	rec.timers.cancelAll()
	rec.fade = FadeNone

	if !rec.isPlaylist() {
		if rec.cue.Loop {
			rec.setPhase(PhaseLoading)
			rec.handle.Seek(rec.trimStart())
			rec.handle.Play()
			return
		}
		e.destroyLocked(rec, StatusStopped, ReasonEnded)
		return
	}

	set := sequencer.SettingsFor(rec.cue, e.config.PlayMode)
	d := e.seq.Resolve(rec.order, rec.logical, rec.itemCount(), set)
	rec.order = d.Order
	zlog.Debug().Msgf("playback: item ended: cue=%s logical=%d action=%s next=%d", rec.cueID, rec.logical, d.Action, d.Index)

	switch {
	case d.Action.Plays():
		rec.logical = d.Index
		e.advanceLocked(rec)
	case d.Action == sequencer.ActionCueNext:
		e.stageLocked(rec, d.Index)
	default:
		e.destroyLocked(rec, StatusStopped, ReasonEndedNoLoop)
	}
}

// onErrorLocked fails a single cue. A playlist skips to the following
// item until every item has failed in a row.
func (e *Engine) onErrorLocked(rec *record, ev sound.Event) {
	code := CodeLoadError
	if ev.Type == sound.EventPlayError {
		code = CodePlayError
	}
	path, _ := rec.media()
	zlog.Warn().Err(ev.Err).Msgf("playback: %s: cue=%s path=%s", code, rec.cueID, path)

	if rec.phase == PhaseStopping {
		e.onStoppedLocked(rec)
		return
	}
	if !rec.isPlaylist() {
		e.destroyLocked(rec, StatusError, code)
		return
	}

	rec.failures++
	if rec.failures >= rec.itemCount() {
		e.destroyLocked(rec, StatusError, CodeAllItemsFailed)
		return
	}
	rec.logical = (rec.logical + 1) % rec.itemCount()
	e.advanceLocked(rec)
}

func (e *Engine) markPausedLocked(rec *record) {
	rec.timers.cancel(timerPoll, timerTrim, timerFade)
	if rec.fade == FadeIn {
		rec.handle.SetVolume(rec.cue.Volume * e.duck.Factor(rec.cueID))
	}
	rec.fade = FadeNone
	rec.setPhase(PhasePaused)
	if rec.cue.IsDuckingTrigger {
		e.duck.Revert(rec.cueID)
	}

	id, name := rec.itemName()
	e.statusLocked(Event{CueID: rec.cueID, Status: StatusPaused, ItemID: id, ItemName: name})
}

func (e *Engine) armTrimEndLocked(rec *record) {
	end := rec.trimEnd()
	if end <= 0 {
		rec.timers.cancel(timerTrim)
		return
	}
	remaining := end - rec.handle.Position()
	if remaining < 0 {
		remaining = 0
	}
	e.armLocked(rec, timerTrim, remaining, func() {
		if rec.phase != PhasePlaying {
			return
		}
		if rec.cue.Loop {
			rec.handle.Seek(rec.trimStart())
			e.armTrimEndLocked(rec)
			return
		}
		zlog.Debug().Msgf("playback: trim end reached: cue=%s", rec.cueID)
		e.stopRecordLocked(rec, 0, ReasonEnded)
	})
}

// startPollLocked emits time updates while the record is audible.
func (e *Engine) startPollLocked(rec *record) {
	e.armLocked(rec, timerPoll, e.config.PollInterval, func() {
		if rec.phase != PhasePlaying && rec.phase != PhaseStopping {
			return
		}
		pos, dur, rem := e.timesLocked(rec)
		id, name := rec.itemName()
		e.sendEventLocked(Event{
			Type:      EventTimeUpdate,
			CueID:     rec.cueID,
			ItemID:    id,
			ItemName:  name,
			Position:  pos,
			Duration:  dur,
			Remaining: rem,
		})
		e.startPollLocked(rec)
	})
}

func (e *Engine) reportDurationLocked(rec *record) {
	d := rec.duration
	if d <= 0 {
		return
	}
	if known := rec.knownDuration(); known > 0 && absDuration(d-known) < durationTolerance {
		return
	}
	rec.rememberDuration(d)

	id, name := rec.itemName()
	zlog.Debug().Msgf("playback: duration discovered: cue=%s item=%s duration=%v", rec.cueID, id, d)
	e.sendEventLocked(Event{
		Type:     EventDurationDiscovered,
		CueID:    rec.cueID,
		ItemID:   id,
		ItemName: name,
		Duration: d,
	})
}

// timesLocked returns the trim-relative position, playable duration and
// remaining time of the record.
func (e *Engine) timesLocked(rec *record) (pos, dur, rem time.Duration) {
	start, end := rec.bounds()
	if end > start {
		dur = end - start
	}
	if rec.handle != nil && rec.phase != PhaseLoading {
		pos = rec.handle.Position() - start
	}
	if pos < 0 {
		pos = 0
	}
	if dur > 0 && pos > dur {
		pos = dur
	}
	if dur > 0 {
		rem = dur - pos
	}
	return pos, dur, rem
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
