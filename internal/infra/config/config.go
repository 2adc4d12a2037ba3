// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/cuedeck/internal/domain/cue"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Remote    RemoteConfig    `yaml:"remote"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Audio     AudioConfig     `yaml:"audio"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// RemoteConfig represents remote control configuration.
type RemoteConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// WorkspaceConfig represents the cue workspace configuration.
type WorkspaceConfig struct {
	CuesFile         string `yaml:"cues_file" validate:"required"`
	Watch            *bool  `yaml:"watch" default:"true"`
	WatchDebounceMs  *int   `yaml:"watch_debounce_ms" default:"200" validate:"omitempty,gte=0,lte=10000"`
	PersistDurations *bool  `yaml:"persist_durations" default:"true"`
}

// WatchEnabled reports whether the cue file is watched for changes.
func (w WorkspaceConfig) WatchEnabled() bool {
	return w.Watch == nil || *w.Watch
}

// PersistEnabled reports whether discovered durations are written back.
func (w WorkspaceConfig) PersistEnabled() bool {
	return w.PersistDurations == nil || *w.PersistDurations
}

// WatchDebounce returns the reload debounce interval.
func (w WorkspaceConfig) WatchDebounce() time.Duration {
	return msPtr(w.WatchDebounceMs)
}

// PlaybackConfig represents the global playback defaults.
type PlaybackConfig struct {
	DefaultFadeInMs      int    `yaml:"default_fade_in_ms" validate:"gte=0,lte=60000"`
	DefaultFadeOutMs     int    `yaml:"default_fade_out_ms" validate:"gte=0,lte=60000"`
	StopAllFadeOutMs     *int   `yaml:"stop_all_fade_out_ms" default:"2000" validate:"omitempty,gte=0,lte=60000"`
	DefaultRetrigger     string `yaml:"default_retrigger" default:"restart" validate:"oneof=restart stop fade_out_and_stop fade_stop_restart toggle_pause play_new_instance do_nothing"`
	DefaultPlayMode      string `yaml:"default_play_mode" default:"continue" validate:"oneof=continue stop_and_cue_next"`
	PollIntervalMs       int    `yaml:"poll_interval_ms" default:"250" validate:"gte=50,lte=5000"`
	DuckingFadeMs        *int   `yaml:"ducking_fade_ms" default:"500" validate:"omitempty,gte=0,lte=10000"`
	StopConfirmTimeoutMs int    `yaml:"stop_confirm_timeout_ms" default:"2000" validate:"gte=100,lte=30000"`
	RestartDelayMs       int    `yaml:"restart_delay_ms" validate:"gte=0,lte=5000"`
	EventBuffer          int    `yaml:"event_buffer" default:"256" validate:"gte=16,lte=65536"`
}

func (p PlaybackConfig) FadeIn() time.Duration             { return ms(p.DefaultFadeInMs) }
func (p PlaybackConfig) FadeOut() time.Duration            { return ms(p.DefaultFadeOutMs) }
func (p PlaybackConfig) StopAllFadeOut() time.Duration     { return msPtr(p.StopAllFadeOutMs) }
func (p PlaybackConfig) PollInterval() time.Duration       { return ms(p.PollIntervalMs) }
func (p PlaybackConfig) DuckingFade() time.Duration        { return msPtr(p.DuckingFadeMs) }
func (p PlaybackConfig) StopConfirmTimeout() time.Duration { return ms(p.StopConfirmTimeoutMs) }
func (p PlaybackConfig) RestartDelay() time.Duration       { return ms(p.RestartDelayMs) }

// Retrigger returns the default retrigger behavior.
func (p PlaybackConfig) Retrigger() cue.Retrigger {
	return cue.Retrigger(p.DefaultRetrigger)
}

// PlayMode returns the default playlist play mode.
func (p PlaybackConfig) PlayMode() cue.PlayMode {
	return cue.PlayMode(p.DefaultPlayMode)
}

// AudioConfig represents the audio output configuration.
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate" default:"44100" validate:"oneof=22050 44100 48000 96000"`
	BufferMs   int    `yaml:"buffer_ms" default:"100" validate:"gte=10,lte=1000"`
	Device     string `yaml:"device"`
}

// Buffer returns the speaker buffer duration.
func (a AudioConfig) Buffer() time.Duration {
	return ms(a.BufferMs)
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	// Cue files are relative to the config file
	cfg.Workspace.CuesFile = resolve(filepath.Dir(path), cfg.Workspace.CuesFile)

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("CUEDECK_REMOTE_TOKEN"); v != "" {
		c.Remote.Token = v
	}
	if v := os.Getenv("CUEDECK_CUES_FILE"); v != "" {
		c.Workspace.CuesFile = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// msPtr treats an unset value as zero. Load always fills it.
func msPtr(v *int) time.Duration {
	if v == nil {
		return 0
	}
	return ms(*v)
}
