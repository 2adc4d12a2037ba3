// Package ducking attenuates active cues while a ducking trigger cue plays.
package ducking

import (
	"sort"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Target is an active cue that may be ducked.
type Target struct {
	CueID   string
	Volume  float64 // the cue's own configured volume
	Enabled bool    // the cue opted into ducking
}

// Mixer exposes the active cues and fades their volume.
type Mixer interface {
	Targets() []Target
	FadeVolume(cueID string, to float64, d time.Duration)
}

type trigger struct {
	cueID string
	level float64 // 0..100
}

// duckState tracks one ducked cue. by holds the triggers currently ducking
// it in activation order; the last one sets the volume.
type duckState struct {
	volume float64
	by     []string
}

// Coordinator applies and reverts ducking. It is not safe for concurrent
// use; the playback engine calls it with its own lock held.
type Coordinator struct {
	mixer    Mixer
	fade     time.Duration
	triggers []trigger
	ducked   map[string]*duckState
}

// New creates a coordinator fading over fade.
func New(mixer Mixer, fade time.Duration) *Coordinator {
	return &Coordinator{
		mixer:  mixer,
		fade:   fade,
		ducked: make(map[string]*duckState),
	}
}

// Apply ducks every other active, ducking-enabled cue by levelPercent.
// Applying the same trigger again does not stack.
func (c *Coordinator) Apply(triggerID string, levelPercent float64) {
	c.activate(triggerID, clampLevel(levelPercent))

	for _, t := range c.mixer.Targets() {
		if t.CueID == triggerID || !t.Enabled {
			continue
		}
		st := c.ducked[t.CueID]
		if st == nil {
			st = &duckState{volume: t.Volume}
			c.ducked[t.CueID] = st
		}
		if n := len(st.by); n > 0 && st.by[n-1] == triggerID {
			continue
		}
		st.by = append(without(st.by, triggerID), triggerID)
		to := st.volume * c.factorOf(triggerID)
		zlog.Debug().Msgf("ducking: duck cue=%s trigger=%s to=%.3f", t.CueID, triggerID, to)
		c.mixer.FadeVolume(t.CueID, to, c.fade)
	}
}

// Revert releases every cue ducked by triggerID. A cue still ducked by
// another active trigger follows the most recent remaining one.
func (c *Coordinator) Revert(triggerID string) {
	c.deactivate(triggerID)

	ids := make([]string, 0, len(c.ducked))
	for id := range c.ducked {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		st := c.ducked[id]
		if !contains(st.by, triggerID) {
			continue
		}
		wasTop := st.by[len(st.by)-1] == triggerID
		st.by = without(st.by, triggerID)

		if len(st.by) == 0 {
			delete(c.ducked, id)
			zlog.Debug().Msgf("ducking: restore cue=%s trigger=%s to=%.3f", id, triggerID, st.volume)
			c.mixer.FadeVolume(id, st.volume, c.fade)
			continue
		}
		if wasTop {
			c.mixer.FadeVolume(id, st.volume*c.factorOf(st.by[len(st.by)-1]), c.fade)
		}
	}
}

// Join registers a cue that is starting while triggers may be active and
// returns the volume factor it should start at.
func (c *Coordinator) Join(cueID string, volume float64, enabled bool) float64 {
	if !enabled {
		return 1
	}
	var by []string
	for _, t := range c.triggers {
		if t.cueID != cueID {
			by = append(by, t.cueID)
		}
	}
	if len(by) == 0 {
		delete(c.ducked, cueID)
		return 1
	}
	c.ducked[cueID] = &duckState{volume: volume, by: by}
	return c.factorOf(by[len(by)-1])
}

// Leave forgets a cue whose playback ended. A trigger that is still
// active is reverted so nothing stays ducked behind it.
func (c *Coordinator) Leave(cueID string) {
	delete(c.ducked, cueID)
	if c.IsActiveTrigger(cueID) {
		c.Revert(cueID)
	}
}

// Factor returns the current volume factor of a cue, 1 if not ducked.
func (c *Coordinator) Factor(cueID string) float64 {
	st, ok := c.ducked[cueID]
	if !ok || len(st.by) == 0 {
		return 1
	}
	return c.factorOf(st.by[len(st.by)-1])
}

// State reports whether a cue is ducked, by which trigger, and the volume
// it had before ducking.
func (c *Coordinator) State(cueID string) (ducked bool, by string, volume float64) {
	st, ok := c.ducked[cueID]
	if !ok || len(st.by) == 0 {
		return false, "", 0
	}
	return true, st.by[len(st.by)-1], st.volume
}

// IsActiveTrigger reports whether cueID is currently ducking others.
func (c *Coordinator) IsActiveTrigger(cueID string) bool {
	for _, t := range c.triggers {
		if t.cueID == cueID {
			return true
		}
	}
	return false
}

// Reset drops all state without touching volumes.
func (c *Coordinator) Reset() {
	c.triggers = nil
	c.ducked = make(map[string]*duckState)
}

func (c *Coordinator) activate(cueID string, level float64) {
	c.deactivate(cueID)
	c.triggers = append(c.triggers, trigger{cueID: cueID, level: level})
}

func (c *Coordinator) deactivate(cueID string) {
	for i, t := range c.triggers {
		if t.cueID == cueID {
			c.triggers = append(c.triggers[:i], c.triggers[i+1:]...)
			return
		}
	}
}

func (c *Coordinator) factorOf(triggerID string) float64 {
	for _, t := range c.triggers {
		if t.cueID == triggerID {
			return 1 - t.level/100
		}
	}
	return 1
}

func clampLevel(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
