// Package cuestore loads cue definitions from a YAML cue file.
package cuestore

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/cuedeck/internal/domain/cue"
)

// entry is one cue as written in the cue file.
type entry struct {
	ID              string       `yaml:"id" mapstructure:"id" validate:"required"`
	Name            string       `yaml:"name,omitempty" mapstructure:"name"`
	Kind            string       `yaml:"kind" mapstructure:"kind" default:"single"`
	FilePath        string       `yaml:"file_path,omitempty" mapstructure:"file_path"`
	KnownDurationMs int64        `yaml:"known_duration_ms,omitempty" mapstructure:"known_duration_ms" validate:"gte=0"`
	Items           []itemEntry  `yaml:"items,omitempty" mapstructure:"items" validate:"dive"`
	Shuffle         bool         `yaml:"shuffle,omitempty" mapstructure:"shuffle"`
	RepeatOne       bool         `yaml:"repeat_one,omitempty" mapstructure:"repeat_one"`
	PlayMode        string       `yaml:"play_mode,omitempty" mapstructure:"play_mode" validate:"omitempty,oneof=continue stop_and_cue_next"`
	Volume          *float64     `yaml:"volume" mapstructure:"volume" default:"1"`
	Loop            bool         `yaml:"loop,omitempty" mapstructure:"loop"`
	FadeInMs        *int64       `yaml:"fade_in_ms,omitempty" mapstructure:"fade_in_ms" validate:"omitempty,gte=0"`
	FadeOutMs       *int64       `yaml:"fade_out_ms,omitempty" mapstructure:"fade_out_ms" validate:"omitempty,gte=0"`
	TrimStartMs     int64        `yaml:"trim_start_ms,omitempty" mapstructure:"trim_start_ms"`
	TrimEndMs       int64        `yaml:"trim_end_ms,omitempty" mapstructure:"trim_end_ms"`
	Retrigger       string       `yaml:"retrigger,omitempty" mapstructure:"retrigger" validate:"omitempty,oneof=restart stop fade_out_and_stop fade_stop_restart toggle_pause play_new_instance do_nothing"`
	Ducking         duckingEntry `yaml:"ducking,omitempty" mapstructure:"ducking"`
}

type duckingEntry struct {
	Trigger      bool     `yaml:"trigger,omitempty" mapstructure:"trigger"`
	Enabled      bool     `yaml:"enabled,omitempty" mapstructure:"enabled"`
	LevelPercent *float64 `yaml:"level_percent,omitempty" mapstructure:"level_percent" default:"50" validate:"omitempty,gte=0,lte=100"`
}

type itemEntry struct {
	ID              string `yaml:"id" mapstructure:"id"`
	Name            string `yaml:"name,omitempty" mapstructure:"name"`
	Path            string `yaml:"path" mapstructure:"path"`
	KnownDurationMs int64  `yaml:"known_duration_ms,omitempty" mapstructure:"known_duration_ms" validate:"gte=0"`
}

type document struct {
	Cues []map[string]any `yaml:"cues"`
}

type output struct {
	Cues []entry `yaml:"cues"`
}

// Store holds the cues of one cue file.
type Store struct {
	mu     sync.RWMutex
	path   string
	cues   map[string]*cue.Cue
	order  []string
	digest [sha256.Size]byte
}

// Open loads the cue file at path.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the cue file path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the cue file. It reports false when the content did not
// change since the last load or save.
func (s *Store) Reload() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, errors.Wrapf(err, "failed to read cue file %s", s.path)
	}
	sum := sha256.Sum256(data)

	s.mu.RLock()
	same := s.cues != nil && sum == s.digest
	s.mu.RUnlock()
	if same {
		return false, nil
	}

	cues, err := Parse(data)
	if err != nil {
		return false, errors.Wrapf(err, "failed to parse cue file %s", s.path)
	}

	byID := make(map[string]*cue.Cue, len(cues))
	order := make([]string, 0, len(cues))
	for _, c := range cues {
		byID[c.ID] = c
		order = append(order, c.ID)
	}

	s.mu.Lock()
	s.cues = byID
	s.order = order
	s.digest = sum
	s.mu.Unlock()

	zlog.Info().Msgf("cuestore: loaded %d cues from %s", len(order), s.path)
	return true, nil
}

// Get returns a copy of the cue with the given ID.
func (s *Store) Get(cueID string) (*cue.Cue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cues[cueID]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// List returns copies of all cues in file order.
func (s *Store) List() []*cue.Cue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*cue.Cue, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.cues[id].Clone())
	}
	return result
}

// RecordDuration stores a measured duration for a cue, or for one of its
// playlist items when itemID is set. It reports whether anything changed.
func (s *Store) RecordDuration(cueID, itemID string, d time.Duration) bool {
	d = d.Truncate(time.Millisecond)
	if d <= 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cues[cueID]
	if !ok {
		return false
	}
	if itemID == "" {
		if c.KnownDuration == d {
			return false
		}
		c.KnownDuration = d
		return true
	}
	i := c.ItemIndex(itemID)
	if i < 0 || c.Items[i].KnownDuration == d {
		return false
	}
	c.Items[i].KnownDuration = d
	return true
}

// Save writes the cues back to the cue file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := output{Cues: make([]entry, 0, len(s.order))}
	for _, id := range s.order {
		out.Cues = append(out.Cues, toEntry(s.cues[id]))
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return errors.Wrap(err, "failed to encode cues")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "failed to encode cues")
	}

	// Write to a temp file and rename it over the original.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cues-*.yaml")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(err, "failed to replace cue file %s", s.path)
	}

	s.digest = sha256.Sum256(buf.Bytes())
	zlog.Debug().Msgf("cuestore: saved %d cues to %s", len(s.order), s.path)
	return nil
}

// Parse decodes a cue file. Entries that cannot be decoded are skipped
// with a warning so one bad cue does not take the whole show down.
// Semantic problems (a single cue without a file) are left for cue.Validate
// to report when the cue is triggered.
func Parse(data []byte) ([]*cue.Cue, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal cue file")
	}

	validate := validator.New()
	seen := make(map[string]bool, len(doc.Cues))
	result := make([]*cue.Cue, 0, len(doc.Cues))
	for i, raw := range doc.Cues {
		e, err := decodeEntry(raw, validate)
		if err != nil {
			zlog.Warn().Msgf("cuestore: skipping cue #%d: %v", i+1, err)
			continue
		}
		if seen[e.ID] {
			zlog.Warn().Msgf("cuestore: skipping duplicate cue id=%s", e.ID)
			continue
		}
		seen[e.ID] = true
		result = append(result, e.toCue())
	}
	return result, nil
}

func decodeEntry(raw map[string]any, validate *validator.Validate) (entry, error) {
	var e entry
	if err := mapstructure.Decode(raw, &e); err != nil {
		return entry{}, errors.Wrap(err, "failed to decode cue")
	}
	if err := defaults.Set(&e); err != nil {
		return entry{}, errors.Wrap(err, "failed to set cue defaults")
	}
	for i := range e.Items {
		if e.Items[i].ID == "" {
			e.Items[i].ID = fmt.Sprintf("%s-%d", e.ID, i+1)
		}
	}
	if err := validate.Struct(e); err != nil {
		return entry{}, errors.Wrapf(err, "invalid cue %q", e.ID)
	}
	return e, nil
}

func (e entry) toCue() *cue.Cue {
	c := &cue.Cue{
		ID:               e.ID,
		Name:             e.Name,
		Kind:             cue.Kind(e.Kind),
		FilePath:         e.FilePath,
		KnownDuration:    msDuration(e.KnownDurationMs),
		Shuffle:          e.Shuffle,
		RepeatOne:        e.RepeatOne,
		PlayMode:         cue.PlayMode(e.PlayMode),
		Volume:           1,
		Loop:             e.Loop,
		TrimStart:        msDuration(e.TrimStartMs),
		TrimEnd:          msDuration(e.TrimEndMs),
		Retrigger:        cue.Retrigger(e.Retrigger),
		IsDuckingTrigger: e.Ducking.Trigger,
		EnableDucking:    e.Ducking.Enabled,
	}
	if e.Volume != nil {
		c.Volume = *e.Volume
	}
	if e.Ducking.LevelPercent != nil {
		c.DuckingLevelPercent = *e.Ducking.LevelPercent
	}
	if e.FadeInMs != nil {
		d := msDuration(*e.FadeInMs)
		c.FadeIn = &d
	}
	if e.FadeOutMs != nil {
		d := msDuration(*e.FadeOutMs)
		c.FadeOut = &d
	}
	for _, it := range e.Items {
		c.Items = append(c.Items, cue.PlaylistItem{
			ID:            it.ID,
			Name:          it.Name,
			Path:          it.Path,
			KnownDuration: msDuration(it.KnownDurationMs),
		})
	}
	return c
}

func toEntry(c *cue.Cue) entry {
	vol := c.Volume
	level := c.DuckingLevelPercent
	e := entry{
		ID:              c.ID,
		Name:            c.Name,
		Kind:            string(c.Kind),
		FilePath:        c.FilePath,
		KnownDurationMs: c.KnownDuration.Milliseconds(),
		Shuffle:         c.Shuffle,
		RepeatOne:       c.RepeatOne,
		PlayMode:        string(c.PlayMode),
		Volume:          &vol,
		Loop:            c.Loop,
		TrimStartMs:     c.TrimStart.Milliseconds(),
		TrimEndMs:       c.TrimEnd.Milliseconds(),
		Retrigger:       string(c.Retrigger),
		Ducking: duckingEntry{
			Trigger:      c.IsDuckingTrigger,
			Enabled:      c.EnableDucking,
			LevelPercent: &level,
		},
	}
	if c.FadeIn != nil {
		v := c.FadeIn.Milliseconds()
		e.FadeInMs = &v
	}
	if c.FadeOut != nil {
		v := c.FadeOut.Milliseconds()
		e.FadeOutMs = &v
	}
	for _, it := range c.Items {
		e.Items = append(e.Items, itemEntry{
			ID:              it.ID,
			Name:            it.Name,
			Path:            it.Path,
			KnownDurationMs: it.KnownDuration.Milliseconds(),
		})
	}
	return e
}

func msDuration(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
