package playback

import (
	"time"

	zlog "github.com/rs/zerolog/log"
)

func (e *Engine) lock() {
	e.mu.Lock()
}

// unlock drains queued work before releasing the lock. Work queued by
// another goroutine after the release is picked up if the lock is free.
func (e *Engine) unlock() {
	for {
		e.drainLocked()
		e.mu.Unlock()
		if !e.pending() || !e.mu.TryLock() {
			return
		}
	}
}

// post queues fn to run with the lock held. If the lock is free it is run
// right away, otherwise the current holder runs it before unlocking.
func (e *Engine) post(fn func()) {
	e.qmu.Lock()
	e.queue = append(e.queue, fn)
	e.qmu.Unlock()

	if e.mu.TryLock() {
		e.unlock()
	}
}

// deferLocked queues fn behind the work already queued.
// Must be called with lock held.
func (e *Engine) deferLocked(fn func()) {
	e.qmu.Lock()
	e.queue = append(e.queue, fn)
	e.qmu.Unlock()
}

func (e *Engine) pending() bool {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	return len(e.queue) > 0
}

func (e *Engine) drainLocked() {
	for {
		e.qmu.Lock()
		if len(e.queue) == 0 {
			e.qmu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.qmu.Unlock()

		if e.closed {
			continue
		}
		fn()
	}
}

// after runs fn with the lock held once d has elapsed.
func (e *Engine) after(d time.Duration, fn func()) func() bool {
	return e.sched.AfterFunc(d, func() {
		e.lock()
		defer e.unlock()
		if e.closed {
			return
		}
		fn()
	})
}

// armLocked arms a record timer. The callback is dropped if the record was
// replaced, its handle changed, or the slot was re-armed or cancelled.
// Must be called with lock held.
func (e *Engine) armLocked(rec *record, k timerKind, d time.Duration, fn func()) {
	token := rec.token
	gen := rec.timers.next(k)
	cancel := e.after(d, func() {
		if e.records[rec.cueID] != rec || rec.token != token || !rec.timers.claim(k, gen) {
			zlog.Debug().Msgf("playback: stale timer ignored: cue=%s", rec.cueID)
			return
		}
		fn()
	})
	rec.timers.put(k, gen, cancel)
}
