package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/cuedeck/internal/domain/cue"
)

func intPtr(v int) *int { return &v }

func validConfig() Config {
	return Config{
		Remote:    RemoteConfig{Token: "test-remote-token"},
		Workspace: WorkspaceConfig{CuesFile: "cues.yaml"},
		Playback: PlaybackConfig{
			StopAllFadeOutMs:     intPtr(2000),
			DefaultRetrigger:     "restart",
			DefaultPlayMode:      "continue",
			PollIntervalMs:       250,
			StopConfirmTimeoutMs: 2000,
			EventBuffer:          256,
		},
		Audio: AudioConfig{SampleRate: 44100, BufferMs: 100},
	}
}

func TestConfig_Validate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing remote token",
			mutate:  func(c *Config) { c.Remote.Token = "" },
			wantErr: true,
			errMsg:  "Token",
		},
		{
			name:    "missing cues file",
			mutate:  func(c *Config) { c.Workspace.CuesFile = "" },
			wantErr: true,
			errMsg:  "CuesFile",
		},
		{
			name:    "unknown retrigger",
			mutate:  func(c *Config) { c.Playback.DefaultRetrigger = "explode" },
			wantErr: true,
			errMsg:  "DefaultRetrigger",
		},
		{
			name:    "unknown play mode",
			mutate:  func(c *Config) { c.Playback.DefaultPlayMode = "shuffle" },
			wantErr: true,
			errMsg:  "DefaultPlayMode",
		},
		{
			name:    "poll interval too short",
			mutate:  func(c *Config) { c.Playback.PollIntervalMs = 10 },
			wantErr: true,
			errMsg:  "PollIntervalMs",
		},
		{
			name:    "negative stop all fade",
			mutate:  func(c *Config) { c.Playback.StopAllFadeOutMs = intPtr(-1) },
			wantErr: true,
			errMsg:  "StopAllFadeOutMs",
		},
		{
			name:    "unset fade durations",
			mutate:  func(c *Config) { c.Playback.StopAllFadeOutMs = nil },
			wantErr: false,
		},
		{
			name:    "unsupported sample rate",
			mutate:  func(c *Config) { c.Audio.SampleRate = 12345 },
			wantErr: true,
			errMsg:  "SampleRate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
remote:
  token: secret
workspace:
  cues_file: show/cues.yaml
playback:
  default_fade_out_ms: 1500
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "show", "cues.yaml"), cfg.Workspace.CuesFile)
	assert.True(t, cfg.Workspace.WatchEnabled())
	assert.True(t, cfg.Workspace.PersistEnabled())
	assert.Equal(t, 200*time.Millisecond, cfg.Workspace.WatchDebounce())

	assert.Equal(t, time.Duration(0), cfg.Playback.FadeIn())
	assert.Equal(t, 1500*time.Millisecond, cfg.Playback.FadeOut())
	assert.Equal(t, 2*time.Second, cfg.Playback.StopAllFadeOut())
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.DuckingFade())
	assert.Equal(t, 250*time.Millisecond, cfg.Playback.PollInterval())
	assert.Equal(t, cue.RetriggerRestart, cfg.Playback.Retrigger())
	assert.Equal(t, cue.PlayModeContinue, cfg.Playback.PlayMode())
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Audio.Buffer())
}

func TestLoad_ExplicitFalseFlags(t *testing.T) {
	path := writeConfig(t, `
remote:
  token: secret
workspace:
  cues_file: /abs/cues.yaml
  watch: false
  persist_durations: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/abs/cues.yaml", cfg.Workspace.CuesFile)
	assert.False(t, cfg.Workspace.WatchEnabled())
	assert.False(t, cfg.Workspace.PersistEnabled())
}

func TestLoad_ExplicitZeroDurations(t *testing.T) {
	path := writeConfig(t, `
remote:
  token: secret
workspace:
  cues_file: /abs/cues.yaml
  watch_debounce_ms: 0
playback:
  stop_all_fade_out_ms: 0
  ducking_fade_ms: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.Workspace.WatchDebounce())
	assert.Equal(t, time.Duration(0), cfg.Playback.StopAllFadeOut())
	assert.Equal(t, time.Duration(0), cfg.Playback.DuckingFade())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
workspace:
  cues_file: cues.yaml
`)
	t.Setenv("CUEDECK_REMOTE_TOKEN", "from-env")
	t.Setenv("CUEDECK_CUES_FILE", "/env/cues.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Remote.Token)
	assert.Equal(t, "/env/cues.yaml", cfg.Workspace.CuesFile)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "remote: ["))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "workspace:\n  cues_file: cues.yaml\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Token")
}
