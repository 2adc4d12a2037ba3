package beepsound

import (
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/domain/sound"
)

// silence is the volume below which output is muted.
const silence = 0.001

type loadState int

const (
	stateLoading loadState = iota
	stateReady
	stateFailed
	stateUnloaded
)

// handle is one decoded file. The streamer chain is
// decoder -> (loop) -> (resample) -> volume -> ctrl, and is attached to the
// output while playing or paused.
type handle struct {
	engine   *Engine
	path     string
	loop     bool
	listener sound.Listener

	mu       sync.Mutex
	state    loadState
	src      beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	vol      *effects.Volume
	volume   float64
	playing  bool
	attached bool
	gen      uint64
	fadeGen  uint64
}

func newHandle(e *Engine, path string, opts sound.Options, listener sound.Listener) *handle {
	return &handle{
		engine:   e,
		path:     path,
		loop:     opts.Loop,
		listener: listener,
		volume:   clamp(opts.Volume),
	}
}

func (h *handle) load() {
	src, format, err := h.engine.decode(h.path)

	h.mu.Lock()
	if h.state == stateUnloaded {
		h.mu.Unlock()
		if src != nil {
			_ = src.Close()
		}
		return
	}
	if err != nil {
		h.state = stateFailed
		h.mu.Unlock()
		zlog.Warn().Msgf("beepsound: load failed: path=%s err=%v", h.path, err)
		h.emit(sound.Event{Type: sound.EventLoadError, Err: err})
		return
	}
	h.src, h.format = src, format
	h.state = stateReady
	h.mu.Unlock()

	zlog.Debug().Msgf("beepsound: loaded: path=%s rate=%d duration=%s", h.path, format.SampleRate, format.SampleRate.D(src.Len()))
	h.emit(sound.Event{Type: sound.EventLoaded})
}

func (h *handle) emit(ev sound.Event) {
	if h.listener != nil {
		h.listener(ev)
	}
}

// Play starts or resumes playback. After the media ended or was stopped
// the stream is attached again from the current position.
func (h *handle) Play() {
	h.mu.Lock()
	if h.state != stateReady {
		h.mu.Unlock()
		return
	}
	out := h.engine.out
	if h.attached {
		out.Lock()
		h.ctrl.Paused = false
		out.Unlock()
	} else {
		if h.src.Position() >= h.src.Len() {
			if err := h.src.Seek(0); err != nil {
				zlog.Warn().Msgf("beepsound: rewind failed: path=%s err=%v", h.path, err)
			}
		}
		h.attachLocked()
	}
	h.playing = true
	h.mu.Unlock()

	h.emit(sound.Event{Type: sound.EventStarted})
}

func (h *handle) attachLocked() {
	h.gen++
	gen := h.gen

	var s beep.Streamer = h.src
	if h.loop {
		s = beep.Loop(-1, h.src)
	}
	if h.format.SampleRate != h.engine.rate {
		s = beep.Resample(h.engine.quality, h.format.SampleRate, h.engine.rate, s)
	}
	h.vol = &effects.Volume{Streamer: s, Base: 2}
	h.applyVolumeLocked()
	h.ctrl = &beep.Ctrl{Streamer: h.vol}
	h.attached = true

	// The callback runs on the output goroutine with the output locked.
	h.engine.out.Play(beep.Seq(h.ctrl, beep.Callback(func() {
		go h.finished(gen)
	})))
}

func (h *handle) finished(gen uint64) {
	h.mu.Lock()
	if gen != h.gen || !h.attached {
		h.mu.Unlock()
		return
	}
	h.attached = false
	h.playing = false
	var err error
	if h.src != nil {
		err = h.src.Err()
	}
	h.mu.Unlock()

	if err != nil {
		h.emit(sound.Event{Type: sound.EventPlayError, Err: err})
		return
	}
	h.emit(sound.Event{Type: sound.EventEnded})
}

func (h *handle) Pause() {
	h.mu.Lock()
	if !h.attached || h.ctrl.Paused {
		h.mu.Unlock()
		return
	}
	out := h.engine.out
	out.Lock()
	h.ctrl.Paused = true
	out.Unlock()
	h.playing = false
	h.mu.Unlock()

	h.emit(sound.Event{Type: sound.EventPaused})
}

func (h *handle) Stop() {
	h.mu.Lock()
	if h.state == stateUnloaded {
		h.mu.Unlock()
		return
	}
	h.fadeGen++
	h.detachLocked()
	h.playing = false
	h.mu.Unlock()

	h.emit(sound.Event{Type: sound.EventStopped})
}

// detachLocked silences the chain. The pending end callback sees a new
// generation and does nothing.
func (h *handle) detachLocked() {
	if !h.attached {
		return
	}
	out := h.engine.out
	out.Lock()
	h.ctrl.Streamer = nil
	out.Unlock()
	h.attached = false
	h.gen++
}

func (h *handle) Seek(pos time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != stateReady {
		return
	}
	n := h.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	if limit := h.src.Len(); n > limit {
		n = limit
	}
	out := h.engine.out
	out.Lock()
	err := h.src.Seek(n)
	out.Unlock()
	if err != nil {
		zlog.Warn().Msgf("beepsound: seek failed: path=%s pos=%s err=%v", h.path, pos, err)
	}
}

func (h *handle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != stateReady {
		return 0
	}
	out := h.engine.out
	out.Lock()
	p := h.src.Position()
	out.Unlock()
	return h.format.SampleRate.D(p)
}

func (h *handle) Duration() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != stateReady {
		return 0
	}
	return h.format.SampleRate.D(h.src.Len())
}

func (h *handle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *handle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// SetVolume sets the volume and cancels any running fade.
func (h *handle) SetVolume(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fadeGen++
	h.setVolumeLocked(v)
}

func (h *handle) setVolumeLocked(v float64) {
	h.volume = clamp(v)
	if h.vol == nil {
		return
	}
	out := h.engine.out
	out.Lock()
	h.applyVolumeLocked()
	out.Unlock()
}

// applyVolumeLocked maps the linear volume onto effects.Volume, which
// scales by Base^Volume.
func (h *handle) applyVolumeLocked() {
	if h.volume < silence {
		h.vol.Silent = true
		return
	}
	h.vol.Silent = false
	h.vol.Volume = math.Log2(h.volume)
}

// Fade moves the volume linearly from one level to another, reporting
// every step. A new fade, SetVolume, Stop or Unload cancels it.
func (h *handle) Fade(from, to float64, d time.Duration) {
	h.mu.Lock()
	if h.state == stateUnloaded {
		h.mu.Unlock()
		return
	}
	h.fadeGen++
	gen := h.fadeGen
	if d <= 0 {
		h.setVolumeLocked(to)
		v := h.volume
		h.mu.Unlock()
		h.emit(sound.Event{Type: sound.EventFadeStep, Volume: v})
		return
	}
	h.setVolumeLocked(from)
	h.mu.Unlock()

	go h.runFade(gen, from, to, d)
}

func (h *handle) runFade(gen uint64, from, to float64, d time.Duration) {
	ticker := time.NewTicker(h.engine.fadeStep)
	defer ticker.Stop()
	start := time.Now()

	for range ticker.C {
		frac := float64(time.Since(start)) / float64(d)
		if frac > 1 {
			frac = 1
		}
		v := from + (to-from)*frac

		h.mu.Lock()
		if h.fadeGen != gen || h.state == stateUnloaded {
			h.mu.Unlock()
			return
		}
		h.setVolumeLocked(v)
		h.mu.Unlock()

		h.emit(sound.Event{Type: sound.EventFadeStep, Volume: v})
		if frac >= 1 {
			return
		}
	}
}

func (h *handle) Unload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == stateUnloaded {
		return
	}
	h.fadeGen++
	h.detachLocked()
	h.playing = false
	h.state = stateUnloaded
	if h.src != nil {
		if err := h.src.Close(); err != nil {
			zlog.Debug().Msgf("beepsound: close failed: path=%s err=%v", h.path, err)
		}
		h.src = nil
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
