// Package cue provides the Cue domain entity.
package cue

import (
	"fmt"
	"time"
)

// Kind distinguishes single-file cues from playlists.
type Kind string

const (
	KindSingle   Kind = "single"
	KindPlaylist Kind = "playlist"
)

// Retrigger is the policy applied when an already active cue is triggered again.
type Retrigger string

const (
	RetriggerRestart         Retrigger = "restart"
	RetriggerStop            Retrigger = "stop"
	RetriggerFadeOutAndStop  Retrigger = "fade_out_and_stop"
	RetriggerFadeStopRestart Retrigger = "fade_stop_restart"
	RetriggerPlayPause       Retrigger = "toggle_pause"
	RetriggerPlayNewInstance Retrigger = "play_new_instance"
	RetriggerDoNothing       Retrigger = "do_nothing"
)

// Retriggers lists every known retrigger behavior.
var Retriggers = []Retrigger{
	RetriggerRestart,
	RetriggerStop,
	RetriggerFadeOutAndStop,
	RetriggerFadeStopRestart,
	RetriggerPlayPause,
	RetriggerPlayNewInstance,
	RetriggerDoNothing,
}

// Valid reports whether r is a known behavior.
func (r Retrigger) Valid() bool {
	for _, k := range Retriggers {
		if r == k {
			return true
		}
	}
	return false
}

// PlayMode controls what a playlist does when an item ends.
type PlayMode string

const (
	PlayModeContinue       PlayMode = "continue"
	PlayModeStopAndCueNext PlayMode = "stop_and_cue_next"
)

// Valid reports whether m is a known play mode.
func (m PlayMode) Valid() bool {
	return m == PlayModeContinue || m == PlayModeStopAndCueNext
}

// PlaylistItem is one entry of a playlist cue.
type PlaylistItem struct {
	ID            string
	Path          string
	Name          string
	KnownDuration time.Duration // zero if never measured
}

// Cue represents a playable unit: a single file or an ordered playlist.
type Cue struct {
	ID   string
	Name string
	Kind Kind

	// Single cues
	FilePath      string
	KnownDuration time.Duration

	// Playlist cues
	Items     []PlaylistItem
	Shuffle   bool
	RepeatOne bool
	PlayMode  PlayMode // empty means the configured default

	Volume  float64 // 0..1
	Loop    bool
	FadeIn  *time.Duration // nil means the configured default
	FadeOut *time.Duration // nil means the configured default

	TrimStart time.Duration
	TrimEnd   time.Duration // zero means play to the end

	Retrigger Retrigger // empty means the configured default

	IsDuckingTrigger    bool
	EnableDucking       bool
	DuckingLevelPercent float64 // 0..100, used when this cue is a trigger
}

// IsPlaylist reports whether the cue is a playlist.
func (c *Cue) IsPlaylist() bool {
	return c.Kind == KindPlaylist
}

// DisplayName returns the name, falling back to the ID.
func (c *Cue) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Paths returns every media file the cue refers to, in play order.
func (c *Cue) Paths() []string {
	if !c.IsPlaylist() {
		return []string{c.FilePath}
	}
	paths := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		paths = append(paths, it.Path)
	}
	return paths
}

// Clone returns a deep copy, used as the per-playback snapshot.
func (c *Cue) Clone() *Cue {
	cp := *c
	if c.Items != nil {
		cp.Items = make([]PlaylistItem, len(c.Items))
		copy(cp.Items, c.Items)
	}
	if c.FadeIn != nil {
		v := *c.FadeIn
		cp.FadeIn = &v
	}
	if c.FadeOut != nil {
		v := *c.FadeOut
		cp.FadeOut = &v
	}
	return &cp
}

// ItemIndex returns the index of the playlist item with the given ID, or -1.
func (c *Cue) ItemIndex(id string) int {
	for i, it := range c.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Invalid cue data codes reported through the status hook.
const (
	CodeMissingID       = "missing_id"
	CodeMissingFilePath = "missing_file_path"
	CodeEmptyPlaylist   = "empty_playlist"
	CodeItemMissingPath = "playlist_item_missing_path"
	CodeUnknownKind     = "unknown_kind"
	CodeInvalidVolume   = "invalid_volume"
	CodeInvalidTrim     = "invalid_trim"
)

// InvalidError reports cue data that cannot be played.
type InvalidError struct {
	CueID string
	Code  string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid cue %q: %s", e.CueID, e.Code)
}

// Validate checks the cue can be handed to a sound engine.
func (c *Cue) Validate() error {
	if c.ID == "" {
		return &InvalidError{CueID: c.ID, Code: CodeMissingID}
	}
	switch c.Kind {
	case KindSingle, "":
		if c.FilePath == "" {
			return &InvalidError{CueID: c.ID, Code: CodeMissingFilePath}
		}
	case KindPlaylist:
		if len(c.Items) == 0 {
			return &InvalidError{CueID: c.ID, Code: CodeEmptyPlaylist}
		}
		for _, it := range c.Items {
			if it.Path == "" {
				return &InvalidError{CueID: c.ID, Code: CodeItemMissingPath}
			}
		}
	default:
		return &InvalidError{CueID: c.ID, Code: CodeUnknownKind}
	}
	if c.Volume < 0 || c.Volume > 1 {
		return &InvalidError{CueID: c.ID, Code: CodeInvalidVolume}
	}
	if c.TrimStart < 0 || c.TrimEnd < 0 || (c.TrimEnd > 0 && c.TrimEnd <= c.TrimStart) {
		return &InvalidError{CueID: c.ID, Code: CodeInvalidTrim}
	}
	return nil
}
