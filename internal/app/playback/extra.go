package playback

import (
	"sort"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/domain/cue"
	"github.com/osa030/cuedeck/internal/domain/sound"
)

// instance is an independent, one-shot playback of a cue started by the
// play-new-instance retrigger. It is never looped, sequenced or ducked.
type instance struct {
	id     string
	cueID  string
	cue    *cue.Cue
	handle sound.Handle
	token  uint64

	stopping      bool
	stopAfterFade bool
	stopIssued    bool
	reason        string
	cancels       []func() bool
}

func (i *instance) track(cancel func() bool) {
	i.cancels = append(i.cancels, cancel)
}

func (i *instance) cancelTimers() {
	for _, cancel := range i.cancels {
		cancel()
	}
	i.cancels = nil
}

// release stops and unloads the handle without waiting for confirmation.
func (i *instance) release() {
	i.cancelTimers()
	if i.handle != nil {
		i.handle.Stop()
		i.handle.Unload()
		i.handle = nil
	}
}

func (e *Engine) spawnInstanceLocked(c *cue.Cue) error {
	snap := c.Clone()
	path := snap.FilePath
	if snap.IsPlaylist() {
		// Instances are not sequenced: they play the first item of a fresh order.
		path = snap.Items[e.seq.NewOrder(len(snap.Items), snap.Shuffle).Item(0)].Path
	}
	volume := snap.Volume
	if e.fadeInFor(snap) > 0 {
		volume = 0
	}

	inst := &instance{
		id:    uuid.NewString(),
		cueID: snap.ID,
		cue:   snap,
		token: e.nextToken(),
	}
	e.instances[inst.id] = inst
	zlog.Debug().Msgf("playback: new instance: cue=%s instance=%s", snap.ID, inst.id)

	inst.handle = e.sound.Open(path, sound.Options{
		Volume: volume,
		Device: e.config.Device,
	}, e.instanceListener(inst.id, inst.token))
	return nil
}

func (e *Engine) instanceListener(id string, token uint64) sound.Listener {
	return func(ev sound.Event) {
		e.post(func() { e.handleInstanceEventLocked(id, token, ev) })
	}
}

func (e *Engine) handleInstanceEventLocked(id string, token uint64, ev sound.Event) {
	inst := e.instances[id]
	if inst == nil || inst.token != token || inst.handle == nil {
		return
	}

	switch ev.Type {
	case sound.EventLoaded:
		if inst.stopping {
			return
		}
		if !inst.cue.IsPlaylist() && inst.cue.TrimStart > 0 {
			inst.handle.Seek(inst.cue.TrimStart)
		}
		if fade := e.fadeInFor(inst.cue); fade > 0 {
			inst.handle.Fade(0, inst.cue.Volume, fade)
		}
		inst.handle.Play()
	case sound.EventStarted:
		if end := inst.cue.TrimEnd; !inst.cue.IsPlaylist() && end > 0 {
			remaining := end - inst.handle.Position()
			if remaining < 0 {
				remaining = 0
			}
			inst.track(e.after(remaining, func() {
				if e.instances[id] == inst {
					e.stopInstanceLocked(inst, 0)
				}
			}))
		}
		e.statusLocked(Event{CueID: inst.cueID, InstanceID: id, Status: StatusPlaying})
	case sound.EventFadeStep:
		if inst.stopAfterFade && !inst.stopIssued && ev.Volume <= silence {
			e.issueInstanceStopLocked(inst)
		}
	case sound.EventEnded:
		e.finishInstanceLocked(inst, StatusStopped, ReasonEnded)
	case sound.EventStopped:
		e.finishInstanceLocked(inst, StatusStopped, inst.reason)
	case sound.EventLoadError:
		zlog.Warn().Err(ev.Err).Msgf("playback: instance load error: cue=%s instance=%s", inst.cueID, id)
		e.finishInstanceLocked(inst, StatusError, CodeLoadError)
	case sound.EventPlayError:
		zlog.Warn().Err(ev.Err).Msgf("playback: instance play error: cue=%s instance=%s", inst.cueID, id)
		e.finishInstanceLocked(inst, StatusError, CodePlayError)
	}
}

func (e *Engine) stopInstancesLocked(cueID string, fade time.Duration) {
	for _, id := range e.instanceIDsLocked() {
		if inst := e.instances[id]; inst.cueID == cueID {
			e.stopInstanceLocked(inst, fade)
		}
	}
}

func (e *Engine) stopInstanceLocked(inst *instance, fade time.Duration) {
	if inst.stopping && (inst.stopIssued || fade > 0) {
		return
	}
	inst.stopping = true
	if inst.reason == "" {
		inst.reason = ReasonUser
	}

	if fade > 0 && inst.handle.Playing() {
		inst.stopAfterFade = true
		inst.handle.Fade(inst.handle.Volume(), 0, fade)
		inst.track(e.after(fade, func() {
			if e.instances[inst.id] == inst && !inst.stopIssued {
				e.issueInstanceStopLocked(inst)
			}
		}))
		return
	}
	e.issueInstanceStopLocked(inst)
}

func (e *Engine) issueInstanceStopLocked(inst *instance) {
	inst.stopIssued = true
	inst.track(e.after(e.config.StopConfirmTimeout, func() {
		if e.instances[inst.id] == inst {
			e.finishInstanceLocked(inst, StatusStopped, inst.reason)
		}
	}))
	inst.handle.Stop()
}

func (e *Engine) finishInstanceLocked(inst *instance, status Status, details string) {
	inst.cancelTimers()
	if inst.handle != nil {
		inst.handle.Unload()
		inst.handle = nil
	}
	delete(e.instances, inst.id)
	e.statusLocked(Event{CueID: inst.cueID, InstanceID: inst.id, Status: status, Details: details})
}

func (e *Engine) instanceIDsLocked() []string {
	ids := make([]string, 0, len(e.instances))
	for id := range e.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) instanceCountLocked(cueID string) int {
	n := 0
	for _, inst := range e.instances {
		if inst.cueID == cueID {
			n++
		}
	}
	return n
}
