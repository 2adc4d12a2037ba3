package playback

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/cuedeck/internal/domain/cue"
	"github.com/osa030/cuedeck/internal/domain/sound"
)

// Mock clock: callbacks run synchronously from Advance.
type fakeClock struct {
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	at   time.Duration
	seq  int
	f    func()
	dead bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.seq++
	t := &fakeTimer{at: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return func() bool {
		if t.dead {
			return false
		}
		t.dead = true
		return true
	}
}

// Advance fires due timers in order, including ones armed while advancing.
func (c *fakeClock) Advance(d time.Duration) {
	target := c.now + d
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.dead || t.at > target {
				continue
			}
			if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			return
		}
		next.dead = true
		c.now = next.at
		next.f()
	}
}

const (
	soundEnded   = sound.EventEnded
	soundStopped = sound.EventStopped
)

// Mock sound engine: every handle loads and starts synchronously unless told otherwise.
type fakeSound struct {
	handles    []*fakeHandle
	failing    map[string]bool
	durations  map[string]time.Duration
	manualStop bool // Stop does not report EventStopped until confirmStop
}

func newFakeSound() *fakeSound {
	return &fakeSound{
		failing:   make(map[string]bool),
		durations: make(map[string]time.Duration),
	}
}

func (s *fakeSound) Open(path string, opts sound.Options, l sound.Listener) sound.Handle {
	dur, ok := s.durations[path]
	if !ok {
		dur = time.Minute
	}
	h := &fakeHandle{sound: s, path: path, volume: opts.Volume, dur: dur, listener: l}
	s.handles = append(s.handles, h)

	if s.failing[path] {
		l(sound.Event{Type: sound.EventLoadError, Err: errors.New("cannot decode")})
		return h
	}
	l(sound.Event{Type: sound.EventLoaded})
	return h
}

// live returns handles that were not unloaded.
func (s *fakeSound) live() []*fakeHandle {
	var out []*fakeHandle
	for _, h := range s.handles {
		if !h.unloaded {
			out = append(out, h)
		}
	}
	return out
}

func (s *fakeSound) last() *fakeHandle {
	return s.handles[len(s.handles)-1]
}

type fakeHandle struct {
	sound    *fakeSound
	path     string
	volume   float64
	pos      time.Duration
	dur      time.Duration
	playing  bool
	unloaded bool
	calls    []string
	listener sound.Listener
}

func (h *fakeHandle) emit(t sound.EventType) {
	h.listener(sound.Event{Type: t})
}

func (h *fakeHandle) confirmStop() {
	h.emit(sound.EventStopped)
}

func (h *fakeHandle) count(call string) int {
	n := 0
	for _, c := range h.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (h *fakeHandle) Play() {
	h.calls = append(h.calls, "play")
	h.playing = true
	h.emit(sound.EventStarted)
}

func (h *fakeHandle) Pause() {
	h.calls = append(h.calls, "pause")
	h.playing = false
	h.emit(sound.EventPaused)
}

func (h *fakeHandle) Stop() {
	h.calls = append(h.calls, "stop")
	h.playing = false
	if !h.sound.manualStop {
		h.emit(sound.EventStopped)
	}
}

func (h *fakeHandle) Seek(pos time.Duration) {
	h.calls = append(h.calls, "seek:"+pos.String())
	h.pos = pos
}

func (h *fakeHandle) Position() time.Duration { return h.pos }
func (h *fakeHandle) Volume() float64         { return h.volume }
func (h *fakeHandle) Duration() time.Duration { return h.dur }
func (h *fakeHandle) Playing() bool           { return h.playing }

func (h *fakeHandle) SetVolume(v float64) {
	h.volume = v
}

func (h *fakeHandle) Fade(from, to float64, d time.Duration) {
	h.calls = append(h.calls, fmt.Sprintf("fade:%.2f->%.2f", from, to))
	h.volume = to
}

func (h *fakeHandle) Unload() {
	h.calls = append(h.calls, "unload")
	h.playing = false
	h.unloaded = true
}

// Mock cue directory
type mapDirectory map[string]*cue.Cue

func (d mapDirectory) Get(cueID string) (*cue.Cue, bool) {
	c, ok := d[cueID]
	return c, ok
}

func testConfig() Config {
	return Config{
		Defaults: Defaults{
			FadeOut:        time.Second,
			StopAllFadeOut: 2 * time.Second,
			Retrigger:      cue.RetriggerRestart,
			PlayMode:       cue.PlayModeContinue,
		},
		PollInterval:       250 * time.Millisecond,
		DuckingFade:        500 * time.Millisecond,
		StopConfirmTimeout: 5 * time.Second,
		EventBuffer:        1024,
	}
}

type testRig struct {
	engine *Engine
	sound  *fakeSound
	clock  *fakeClock
	dir    mapDirectory
}

func newTestRig(t *testing.T, cues ...*cue.Cue) *testRig {
	t.Helper()
	return newTestRigWithConfig(t, testConfig(), cues...)
}

func newTestRigWithConfig(t *testing.T, cfg Config, cues ...*cue.Cue) *testRig {
	t.Helper()
	dir := make(mapDirectory)
	for _, c := range cues {
		dir[c.ID] = c
	}
	r := &testRig{
		sound: newFakeSound(),
		clock: &fakeClock{},
		dir:   dir,
	}
	r.engine = New(cfg, dir, r.sound,
		WithScheduler(r.clock),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	)
	t.Cleanup(r.engine.Close)
	return r
}

// drain returns the events emitted so far.
func (r *testRig) drain() []Event {
	var evs []Event
	for {
		select {
		case ev, ok := <-r.engine.Events():
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

// statuses returns the status events emitted so far as "status/details" strings.
func (r *testRig) statuses() []string {
	var out []string
	for _, ev := range r.drain() {
		if ev.Type != EventStatus {
			continue
		}
		s := string(ev.Status)
		if ev.Details != "" {
			s += "/" + ev.Details
		}
		if ev.ItemName != "" {
			s += "@" + ev.ItemName
		}
		out = append(out, s)
	}
	return out
}

func singleCue(id string) *cue.Cue {
	return &cue.Cue{ID: id, Name: id, Kind: cue.KindSingle, FilePath: id + ".mp3", Volume: 1}
}

func playlistCue(id string, names ...string) *cue.Cue {
	c := &cue.Cue{ID: id, Name: id, Kind: cue.KindPlaylist, Volume: 1}
	for _, n := range names {
		c.Items = append(c.Items, cue.PlaylistItem{ID: n, Name: n, Path: n + ".mp3"})
	}
	return c
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
