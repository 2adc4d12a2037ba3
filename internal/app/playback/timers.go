package playback

import "time"

// Scheduler runs callbacks after a delay. The returned function cancels the
// callback and reports whether it was still pending.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func() bool)
}

// wallScheduler schedules on the runtime timer.
type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// timerKind names the timer slots owned by a record.
type timerKind int

const (
	timerFade    timerKind = iota // fade-in overlay end or fade-out hard stop
	timerTrim                     // trim-end stop
	timerPoll                     // time-update interval
	timerConfirm                  // stop confirmation fallback
)

type armedTimer struct {
	gen    uint64
	cancel func() bool
}

// timerSet holds at most one timer per slot. Arming a slot cancels what was
// there, and a callback only runs if its generation is still the armed one.
type timerSet struct {
	gen   uint64
	slots map[timerKind]armedTimer
}

func newTimerSet() *timerSet {
	return &timerSet{slots: make(map[timerKind]armedTimer)}
}

// next cancels the slot and reserves a generation for a new timer.
func (t *timerSet) next(k timerKind) uint64 {
	t.cancel(k)
	t.gen++
	return t.gen
}

func (t *timerSet) put(k timerKind, gen uint64, cancel func() bool) {
	t.slots[k] = armedTimer{gen: gen, cancel: cancel}
}

// claim reports whether gen is still armed in the slot and clears it.
func (t *timerSet) claim(k timerKind, gen uint64) bool {
	a, ok := t.slots[k]
	if !ok || a.gen != gen {
		return false
	}
	delete(t.slots, k)
	return true
}

func (t *timerSet) cancel(kinds ...timerKind) {
	for _, k := range kinds {
		if a, ok := t.slots[k]; ok {
			a.cancel()
			delete(t.slots, k)
		}
	}
}

func (t *timerSet) cancelAll() {
	for k, a := range t.slots {
		a.cancel()
		delete(t.slots, k)
	}
}
