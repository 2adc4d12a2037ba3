// Package sound defines the contract the playback engine requires from an
// audio output backend.
package sound

import "time"

// EventType identifies a handle lifecycle event.
type EventType int

const (
	EventLoaded    EventType = iota // Media decoded, duration known
	EventStarted                    // Playback started or resumed
	EventPaused                     // Playback paused
	EventEnded                      // Reached the end of the media
	EventStopped                    // Stopped by an explicit Stop call
	EventFadeStep                   // Volume changed during a fade
	EventLoadError                  // Media could not be opened or decoded
	EventPlayError                  // Media could not be played
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventLoaded:
		return "loaded"
	case EventStarted:
		return "started"
	case EventPaused:
		return "paused"
	case EventEnded:
		return "ended"
	case EventStopped:
		return "stopped"
	case EventFadeStep:
		return "fade_step"
	case EventLoadError:
		return "load_error"
	case EventPlayError:
		return "play_error"
	default:
		return "unknown"
	}
}

// Event is emitted by a Handle.
type Event struct {
	Type   EventType
	Volume float64 // current volume, set for EventFadeStep
	Err    error   // set for EventLoadError and EventPlayError
}

// Listener receives handle events. Implementations of Engine may call it
// from any goroutine, including synchronously from a Handle method.
type Listener func(Event)

// Options configures a new handle.
type Options struct {
	Volume float64 // initial volume, 0..1
	Loop   bool
	Device string // output device, empty for the default
}

// Handle controls one loaded sound.
type Handle interface {
	Play()
	Pause()
	Stop()
	Seek(pos time.Duration)
	Position() time.Duration
	Volume() float64
	SetVolume(v float64)
	Fade(from, to float64, d time.Duration)
	Duration() time.Duration
	Playing() bool
	// Unload releases decoder and device resources. The handle is unusable afterwards.
	Unload()
}

// Engine opens sounds. Loading is asynchronous: the handle reports
// EventLoaded or EventLoadError through the listener.
type Engine interface {
	Open(path string, opts Options, listener Listener) Handle
}
