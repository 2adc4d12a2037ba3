package playback

import "time"

// EventType represents a playback event type.
type EventType int

const (
	EventStatus             EventType = iota // Cue status transition
	EventDurationDiscovered                  // A handle reported a duration not yet recorded
	EventTimeUpdate                          // Periodic position update of a playing cue
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStatus:
		return "status"
	case EventDurationDiscovered:
		return "duration_discovered"
	case EventTimeUpdate:
		return "time_update"
	default:
		return "unknown"
	}
}

// Status is the externally visible status of a cue.
type Status string

const (
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
	StatusCued    Status = "cued_next"
	StatusError   Status = "error"
)

// Stop reasons and error codes carried in Event.Details.
const (
	ReasonUser         = "user"
	ReasonRetrigger    = "retrigger"
	ReasonRestart      = "restart"
	ReasonStopAll      = "stop_all"
	ReasonEnded        = "ended"
	ReasonEndedNoLoop  = "ended_no_loop"
	CodeCueNotFound    = "cue_not_found"
	CodeLoadError      = "load_error"
	CodePlayError      = "play_error"
	CodeAllItemsFailed = "all_items_failed"
)

// Event represents a playback event.
type Event struct {
	Type       EventType
	CueID      string
	Status     Status // EventStatus only
	Details    string // stop reason or error code
	InstanceID string // set for independent instances
	ItemID     string // playlist item, if any
	ItemName   string
	Position   time.Duration // trim-relative
	Duration   time.Duration // trim-adjusted for time updates, raw for discovery
	Remaining  time.Duration
}
