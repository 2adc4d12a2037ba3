package playback

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/app/ducking"
	"github.com/osa030/cuedeck/internal/app/sequencer"
	"github.com/osa030/cuedeck/internal/domain/cue"
	"github.com/osa030/cuedeck/internal/domain/sound"
)

// Errors
var (
	ErrCueNotFound = errors.New("cue not found")
	ErrNotActive   = errors.New("cue not active")
	ErrNotPlaying  = errors.New("not playing")
	ErrNotPaused   = errors.New("not paused")
	ErrNoHandle    = errors.New("no sound loaded")
	ErrNotPlaylist = errors.New("not a playlist")
	ErrClosed      = errors.New("engine closed")
)

// Defaults are the fallbacks used when a cue leaves a setting unset.
// They can be changed at runtime with SetDefaults.
type Defaults struct {
	FadeIn         time.Duration
	FadeOut        time.Duration
	StopAllFadeOut time.Duration
	Retrigger      cue.Retrigger
	PlayMode       cue.PlayMode
}

// Config holds engine configuration.
type Config struct {
	Defaults

	PollInterval       time.Duration // time update interval
	DuckingFade        time.Duration // duck and unduck fade duration
	StopConfirmTimeout time.Duration // give up waiting for a stopped event after this
	RestartDelay       time.Duration // settle time between stop and replay, 0 replays right after the stop
	EventBuffer        int
	Device             string
}

// Directory resolves cue IDs to cue definitions.
type Directory interface {
	Get(cueID string) (*cue.Cue, bool)
}

// Option configures an Engine.
type Option func(*Engine)

// WithScheduler replaces the wall clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithRand sets the random source used for shuffles.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// Engine owns the playback record of every active cue.
//
// All state changes happen with mu held. Sound listener callbacks and
// deferred work are queued and drained by whoever holds the lock, so a
// handler always runs to completion before the next one starts.
type Engine struct {
	mu sync.Mutex

	config Config
	dir    Directory
	sound  sound.Engine
	sched  Scheduler
	rng    *rand.Rand

	seq  *sequencer.Sequencer
	nav  *sequencer.Navigator
	duck *ducking.Coordinator

	records   map[string]*record
	instances map[string]*instance
	restarts  map[string]uint64 // cue ID -> pending restart sequence
	restartN  uint64
	tokenN    uint64
	closed    bool

	qmu   sync.Mutex
	queue []func()

	eventCh chan Event
}

// New creates a playback engine.
func New(config Config, dir Directory, snd sound.Engine, opts ...Option) *Engine {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 64
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	if config.StopConfirmTimeout <= 0 {
		config.StopConfirmTimeout = 2 * time.Second
	}

	e := &Engine{
		config:    config,
		dir:       dir,
		sound:     snd,
		sched:     wallScheduler{},
		nav:       sequencer.NewNavigator(),
		records:   make(map[string]*record),
		instances: make(map[string]*instance),
		restarts:  make(map[string]uint64),
		eventCh:   make(chan Event, config.EventBuffer),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	e.seq = sequencer.New(e.rng)
	e.duck = ducking.New(engineMixer{e: e}, config.DuckingFade)
	return e
}

// Events returns the event channel. It is closed by Close.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// SetDefaults replaces the fallback settings for subsequent operations.
func (e *Engine) SetDefaults(d Defaults) {
	e.lock()
	defer e.unlock()
	e.config.Defaults = d
}

// Play starts a cue. With resume set, a paused cue is unpaused and a cued
// playlist starts its cued item; an active cue is otherwise restarted.
func (e *Engine) Play(cueID string, resume bool) error {
	e.lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}

	c, err := e.lookupLocked(cueID)
	if err != nil {
		return err
	}

	rec := e.records[cueID]
	if rec == nil {
		delete(e.restarts, cueID)
		return e.startFreshLocked(c)
	}

	if resume {
		switch rec.phase {
		case PhasePaused:
			return e.resumeLocked(rec)
		case PhaseCuedNext:
			return e.playCuedLocked(rec)
		case PhasePlaying, PhaseLoading:
			return nil
		}
	}
	return e.restartLocked(rec, 0)
}

// Stop stops a cue and its independent instances. The record is released
// once the sound engine confirms the stop.
func (e *Engine) Stop(cueID string, useFade bool) error {
	return e.StopWithReason(cueID, useFade, ReasonUser)
}

// StopWithReason is Stop with an explicit reason reported in the stopped status.
func (e *Engine) StopWithReason(cueID string, useFade bool, reason string) error {
	e.lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}

	delete(e.restarts, cueID)

	rec := e.records[cueID]
	c := e.cueForFade(cueID, rec)
	var fade time.Duration
	if useFade && c != nil {
		fade = e.fadeOutFor(c)
	}
	e.stopInstancesLocked(cueID, fade)

	if rec == nil {
		return nil
	}
	e.stopRecordLocked(rec, fade, reason)
	return nil
}

// Pause pauses a playing cue.
func (e *Engine) Pause(cueID string) error {
	e.lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}

	rec := e.records[cueID]
	if rec == nil || rec.handle == nil {
		return ErrNotPlaying
	}
	return e.pauseLocked(rec)
}

// Toggle triggers a cue: an inactive cue starts, an active cue applies its
// retrigger behavior. override, if set, replaces the cue's behavior.
func (e *Engine) Toggle(cueID string, override cue.Retrigger) error {
	e.lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}

	c, err := e.lookupLocked(cueID)
	if err != nil {
		return err
	}

	rec := e.records[cueID]
	if rec == nil {
		delete(e.restarts, cueID)
		return e.startFreshLocked(c)
	}
	if rec.phase == PhaseCuedNext {
		return e.playCuedLocked(rec)
	}

	behavior := e.retriggerFor(c, override)
	zlog.Debug().Msgf("playback: retrigger: cue=%s phase=%s behavior=%s", cueID, rec.phase, behavior)

	switch behavior {
	case cue.RetriggerRestart:
		return e.restartLocked(rec, 0)
	case cue.RetriggerFadeStopRestart:
		return e.restartLocked(rec, e.fadeOutFor(c))
	case cue.RetriggerStop:
		delete(e.restarts, cueID)
		e.stopRecordLocked(rec, 0, ReasonRetrigger)
	case cue.RetriggerFadeOutAndStop:
		delete(e.restarts, cueID)
		e.stopRecordLocked(rec, e.fadeOutFor(c), ReasonRetrigger)
	case cue.RetriggerPlayPause:
		switch rec.phase {
		case PhasePlaying:
			return e.pauseLocked(rec)
		case PhasePaused:
			return e.resumeLocked(rec)
		}
	case cue.RetriggerPlayNewInstance:
		return e.spawnInstanceLocked(c)
	case cue.RetriggerDoNothing:
	}
	return nil
}

// StopAll stops every active cue and instance, with the global fade-out when fade is set.
func (e *Engine) StopAll(fade bool) {
	e.lock()
	defer e.unlock()
	if e.closed {
		return
	}

	var d time.Duration
	if fade {
		d = e.config.StopAllFadeOut
	}
	zlog.Info().Msgf("playback: stop all: fade=%v", d)

	e.restarts = make(map[string]uint64)
	for _, id := range e.activeIDsLocked() {
		e.stopRecordLocked(e.records[id], d, ReasonStopAll)
	}
	for _, id := range e.instanceIDsLocked() {
		inst := e.instances[id]
		inst.reason = ReasonStopAll
		e.stopInstanceLocked(inst, d)
	}
}

// Seek moves a loaded cue to pos, relative to its trim start.
func (e *Engine) Seek(cueID string, pos time.Duration) error {
	e.lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}

	rec := e.records[cueID]
	if rec == nil {
		return ErrNotActive
	}
	if rec.handle == nil || (rec.phase != PhasePlaying && rec.phase != PhasePaused) {
		return ErrNoHandle
	}

	start, end := rec.bounds()
	target := start + pos
	if target < start {
		target = start
	}
	if end > 0 && target > end {
		target = end
	}
	rec.handle.Seek(target)
	zlog.Debug().Msgf("playback: seek: cue=%s pos=%v", cueID, target)

	if rec.phase == PhasePlaying {
		e.armTrimEndLocked(rec)
	}
	return nil
}

// Next moves a playlist forward. A playing playlist skips to the next item,
// an idle or cued one stages it.
func (e *Engine) Next(cueID string) error {
	return e.navigate(cueID, 1)
}

// Previous moves a playlist back. See Next.
func (e *Engine) Previous(cueID string) error {
	return e.navigate(cueID, -1)
}

// Close stops every sound without waiting for confirmation, cancels all
// timers and closes the event channel.
func (e *Engine) Close() {
	e.lock()
	defer e.unlock()
	if e.closed {
		return
	}

	for _, rec := range e.records {
		rec.timers.cancelAll()
		if rec.handle != nil {
			rec.handle.Stop()
			rec.handle.Unload()
			rec.handle = nil
		}
	}
	for _, inst := range e.instances {
		inst.release()
	}
	e.records = make(map[string]*record)
	e.instances = make(map[string]*instance)
	e.restarts = make(map[string]uint64)
	e.duck.Reset()
	e.closed = true

	e.qmu.Lock()
	e.queue = nil
	e.qmu.Unlock()

	close(e.eventCh)
	zlog.Info().Msg("playback: engine closed")
}

func (e *Engine) navigate(cueID string, delta int) error {
	e.lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}

	c, err := e.lookupLocked(cueID)
	if err != nil {
		return err
	}
	if !c.IsPlaylist() {
		return ErrNotPlaylist
	}

	rec := e.records[cueID]
	if rec == nil {
		n := len(c.Items)
		var pos int
		if delta > 0 {
			pos = e.nav.Next(cueID, n, c.Loop)
		} else {
			pos = e.nav.Previous(cueID, n, c.Loop)
		}
		rec = newRecord(c.Clone())
		rec.order = e.seq.NewOrder(n, c.Shuffle)
		e.records[cueID] = rec
		e.stageLocked(rec, pos)
		return nil
	}

	pos := sequencer.Step(rec.logical, delta, rec.itemCount(), rec.cue.Loop)
	switch rec.phase {
	case PhaseCuedNext, PhasePaused:
		e.stageLocked(rec, pos)
	case PhasePlaying, PhaseLoading:
		if pos == rec.logical {
			return nil
		}
		rec.logical = pos
		rec.failures = 0
		e.nav.Remember(cueID, pos)
		e.startLocked(rec)
	case PhaseStopping:
	}
	return nil
}

// lookupLocked resolves and validates a cue, reporting failures as error statuses.
func (e *Engine) lookupLocked(cueID string) (*cue.Cue, error) {
	c, ok := e.dir.Get(cueID)
	if !ok || c == nil {
		zlog.Warn().Msgf("playback: cue not found: cue=%s", cueID)
		e.statusLocked(Event{CueID: cueID, Status: StatusError, Details: CodeCueNotFound})
		return nil, errors.Wrapf(ErrCueNotFound, "cue %q", cueID)
	}
	if err := c.Validate(); err != nil {
		code := "invalid_cue"
		var invalid *cue.InvalidError
		if errors.As(err, &invalid) {
			code = invalid.Code
		}
		zlog.Warn().Err(err).Msgf("playback: invalid cue: cue=%s", cueID)
		e.statusLocked(Event{CueID: cueID, Status: StatusError, Details: code})
		return nil, err
	}
	return c, nil
}

func (e *Engine) startFreshLocked(c *cue.Cue) error {
	snap := c.Clone()
	rec := newRecord(snap)
	if snap.IsPlaylist() {
		rec.order = e.seq.NewOrder(len(snap.Items), snap.Shuffle)
		e.nav.Remember(snap.ID, 0)
	}
	e.records[snap.ID] = rec
	zlog.Info().Msgf("playback: start: cue=%s name=%s", snap.ID, snap.DisplayName())
	e.startLocked(rec)
	return nil
}

func (e *Engine) playCuedLocked(rec *record) error {
	e.nav.Remember(rec.cueID, rec.logical)
	e.startLocked(rec)
	return nil
}

func (e *Engine) resumeLocked(rec *record) error {
	if rec.phase != PhasePaused || rec.handle == nil {
		return ErrNotPaused
	}
	rec.handle.SetVolume(rec.cue.Volume * e.duck.Factor(rec.cueID))
	rec.handle.Play()
	zlog.Debug().Msgf("playback: resume: cue=%s", rec.cueID)
	return nil
}

func (e *Engine) pauseLocked(rec *record) error {
	if rec.phase != PhasePlaying || !rec.handle.Playing() {
		return ErrNotPlaying
	}
	rec.handle.Pause()
	e.markPausedLocked(rec)
	return nil
}

// restartLocked stops the record and replays the cue from the start once
// the stop is confirmed. A restart already pending for the cue absorbs it.
func (e *Engine) restartLocked(rec *record, fade time.Duration) error {
	if seq, pending := e.restarts[rec.cueID]; pending && rec.restart == seq {
		zlog.Debug().Msgf("playback: restart already in progress: cue=%s", rec.cueID)
		return nil
	}
	e.restartN++
	seq := e.restartN
	e.restarts[rec.cueID] = seq
	rec.restart = seq

	if rec.handle == nil {
		e.destroyLocked(rec, StatusStopped, ReasonRestart)
		e.scheduleReplayLocked(rec.cueID, seq)
		return nil
	}
	e.stopRecordLocked(rec, fade, ReasonRestart)
	return nil
}

func (e *Engine) scheduleReplayLocked(cueID string, seq uint64) {
	replay := func() {
		if e.restarts[cueID] != seq {
			zlog.Debug().Msgf("playback: restart aborted: cue=%s", cueID)
			return
		}
		delete(e.restarts, cueID)
		if _, active := e.records[cueID]; active {
			zlog.Debug().Msgf("playback: restart aborted, cue active again: cue=%s", cueID)
			return
		}
		c, err := e.lookupLocked(cueID)
		if err != nil {
			return
		}
		_ = e.startFreshLocked(c)
	}

	if e.config.RestartDelay > 0 {
		e.after(e.config.RestartDelay, replay)
		return
	}
	e.deferLocked(replay)
}

// stopRecordLocked stops a record, fading out first when fade is positive
// and the record is audible.
func (e *Engine) stopRecordLocked(rec *record, fade time.Duration, reason string) {
	rec.stopReason = reason

	if rec.handle == nil {
		e.destroyLocked(rec, StatusStopped, reason)
		return
	}
	if rec.phase == PhaseStopping {
		if rec.stopIssued || fade > 0 {
			return
		}
		e.issueStopLocked(rec)
		return
	}
	if fade > 0 && rec.phase == PhasePlaying {
		from := rec.handle.Volume()
		rec.setPhase(PhaseStopping)
		rec.fade = FadeOut
		rec.stopAfterFade = true
		rec.timers.cancel(timerTrim)
		rec.handle.Fade(from, 0, fade)
		zlog.Debug().Msgf("playback: fade out: cue=%s duration=%v", rec.cueID, fade)
		e.armLocked(rec, timerFade, fade, func() {
			if !rec.stopIssued {
				e.issueStopLocked(rec)
			}
		})
		return
	}
	e.issueStopLocked(rec)
}

// issueStopLocked stops the handle and waits for the stopped event, with a
// timeout in case it never arrives.
func (e *Engine) issueStopLocked(rec *record) {
	rec.setPhase(PhaseStopping)
	rec.stopIssued = true
	rec.timers.cancel(timerPoll, timerTrim, timerFade)
	e.armLocked(rec, timerConfirm, e.config.StopConfirmTimeout, func() {
		zlog.Warn().Msgf("playback: stop not confirmed, releasing: cue=%s", rec.cueID)
		e.onStoppedLocked(rec)
	})
	rec.handle.Stop()
}

// stageLocked releases the handle and cues logical position pos.
func (e *Engine) stageLocked(rec *record, pos int) {
	e.releaseHandleLocked(rec)
	rec.logical = pos
	rec.duration = 0
	rec.fade = FadeNone
	rec.stopAfterFade = false
	rec.stopIssued = false
	rec.setPhase(PhaseCuedNext)
	e.nav.Remember(rec.cueID, pos)
	e.leaveDuckingLocked(rec)

	id, name := rec.itemName()
	zlog.Debug().Msgf("playback: cued: cue=%s item=%s", rec.cueID, name)
	e.statusLocked(Event{CueID: rec.cueID, Status: StatusCued, ItemID: id, ItemName: name})
}

// destroyLocked drops the record and reports its final status.
func (e *Engine) destroyLocked(rec *record, status Status, details string) {
	e.releaseHandleLocked(rec)
	if e.records[rec.cueID] == rec {
		delete(e.records, rec.cueID)
	}
	if rec.isPlaylist() {
		e.nav.Remember(rec.cueID, rec.logical)
	}
	e.leaveDuckingLocked(rec)

	zlog.Info().Msgf("playback: %s: cue=%s details=%s", status, rec.cueID, details)
	e.statusLocked(Event{CueID: rec.cueID, Status: status, Details: details})
}

func (e *Engine) releaseHandleLocked(rec *record) {
	rec.timers.cancelAll()
	if rec.handle != nil {
		rec.handle.Unload()
	}
	rec.handle = nil
	rec.token = 0
}

func (e *Engine) leaveDuckingLocked(rec *record) {
	if rec.cue.IsDuckingTrigger {
		e.duck.Revert(rec.cueID)
	}
	e.duck.Leave(rec.cueID)
}

func (e *Engine) retriggerFor(c *cue.Cue, override cue.Retrigger) cue.Retrigger {
	for _, r := range []cue.Retrigger{override, c.Retrigger, e.config.Retrigger} {
		if r.Valid() {
			return r
		}
	}
	return cue.RetriggerRestart
}

func (e *Engine) fadeInFor(c *cue.Cue) time.Duration {
	if c.FadeIn != nil {
		return *c.FadeIn
	}
	return e.config.FadeIn
}

func (e *Engine) fadeOutFor(c *cue.Cue) time.Duration {
	if c.FadeOut != nil {
		return *c.FadeOut
	}
	return e.config.FadeOut
}

// cueForFade prefers the playback snapshot and falls back to the directory.
func (e *Engine) cueForFade(cueID string, rec *record) *cue.Cue {
	if rec != nil {
		return rec.cue
	}
	if c, ok := e.dir.Get(cueID); ok {
		return c
	}
	return nil
}

func (e *Engine) activeIDsLocked() []string {
	ids := make([]string, 0, len(e.records))
	for id := range e.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) nextToken() uint64 {
	e.tokenN++
	return e.tokenN
}

// statusLocked emits a status event.
func (e *Engine) statusLocked(ev Event) {
	ev.Type = EventStatus
	e.sendEventLocked(ev)
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (e *Engine) sendEventLocked(ev Event) {
	if e.closed {
		return
	}
	select {
	case e.eventCh <- ev:
	default:
		zlog.Warn().Msgf("playback: event dropped, channel full: type=%s cue=%s", ev.Type, ev.CueID)
	}
}
