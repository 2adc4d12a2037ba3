package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/cuedeck/internal/app/playback"
	"github.com/osa030/cuedeck/internal/domain/cue"
	"github.com/osa030/cuedeck/internal/domain/sound"
	"github.com/osa030/cuedeck/internal/infra/config"
)

// stubSound loads every file instantly with a fixed duration.
type stubSound struct {
	mu       sync.Mutex
	duration time.Duration
	handles  []*stubHandle
}

func (s *stubSound) Open(path string, opts sound.Options, l sound.Listener) sound.Handle {
	h := &stubHandle{path: path, volume: opts.Volume, duration: s.duration, listener: l}
	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	l(sound.Event{Type: sound.EventLoaded})
	return h
}

func (s *stubSound) all() []*stubHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*stubHandle(nil), s.handles...)
}

type stubHandle struct {
	mu       sync.Mutex
	path     string
	volume   float64
	duration time.Duration
	playing  bool
	unloaded bool
	listener sound.Listener
}

func (h *stubHandle) set(playing bool) {
	h.mu.Lock()
	h.playing = playing
	h.mu.Unlock()
}

func (h *stubHandle) Play() {
	h.set(true)
	h.listener(sound.Event{Type: sound.EventStarted})
}

func (h *stubHandle) Pause() {
	h.set(false)
	h.listener(sound.Event{Type: sound.EventPaused})
}

func (h *stubHandle) Stop() {
	h.set(false)
	h.listener(sound.Event{Type: sound.EventStopped})
}

func (h *stubHandle) Seek(time.Duration)      {}
func (h *stubHandle) Position() time.Duration { return 0 }
func (h *stubHandle) Volume() float64         { return h.volume }
func (h *stubHandle) SetVolume(v float64)     { h.volume = v }
func (h *stubHandle) Fade(_, to float64, _ time.Duration) {
	h.volume = to
	h.listener(sound.Event{Type: sound.EventFadeStep, Volume: to})
}
func (h *stubHandle) Duration() time.Duration { return h.duration }

func (h *stubHandle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *stubHandle) Unload() {
	h.mu.Lock()
	h.unloaded = true
	h.mu.Unlock()
}

func (h *stubHandle) isUnloaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unloaded
}

type collectStream struct {
	mu   sync.Mutex
	msgs []map[string]any
}

func (s *collectStream) Send(msg *structpb.Struct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg.AsMap())
	return nil
}

func (s *collectStream) has(typ, cueID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.msgs {
		if m["type"] == typ && m["cue_id"] == cueID && (status == "" || m["status"] == status) {
			return true
		}
	}
	return false
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testConfig(cuesFile string) *config.Config {
	watch := false
	return &config.Config{
		Workspace: config.WorkspaceConfig{CuesFile: cuesFile, Watch: &watch},
		Playback: config.PlaybackConfig{
			DefaultFadeOutMs:     0,
			DefaultRetrigger:     "restart",
			DefaultPlayMode:      "continue",
			PollIntervalMs:       1000,
			StopConfirmTimeoutMs: 500,
			EventBuffer:          256,
		},
	}
}

func newManager(t *testing.T, body string) (*Manager, *stubSound, string) {
	t.Helper()
	dir := t.TempDir()
	path := writeFile(t, dir, "cues.yaml", body)
	snd := &stubSound{duration: 90 * time.Second}
	m := NewManager(testConfig(path), snd)
	t.Cleanup(m.Close)
	return m, snd, dir
}

const showCues = `
cues:
  - id: intro
    file_path: /show/intro.mp3
`

func TestManager_StartAndPlay(t *testing.T) {
	m, _, _ := newManager(t, showCues)
	stream := &collectStream{}
	m.GetNotificationManager().Subscribe(stream)

	_, err := m.Engine()
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, PhaseOpen, m.Phase())

	engine, err := m.Engine()
	require.NoError(t, err)
	require.NoError(t, engine.Play("intro", false))

	require.Eventually(t, func() bool {
		return stream.has("status", "intro", "playing")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_PersistsDiscoveredDuration(t *testing.T) {
	m, _, _ := newManager(t, showCues)
	require.NoError(t, m.Start(context.Background()))

	engine, err := m.Engine()
	require.NoError(t, err)
	require.NoError(t, engine.Play("intro", false))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(m.Path())
		return err == nil && strings.Contains(string(data), "known_duration_ms: 90000")
	}, 2*time.Second, 10*time.Millisecond)

	c, ok := m.Store().Get("intro")
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, c.KnownDuration)
}

func TestManager_OpenSwitchesWorkspace(t *testing.T) {
	m, snd, dir := newManager(t, showCues)
	require.NoError(t, m.Start(context.Background()))

	oldEngine, err := m.Engine()
	require.NoError(t, err)
	require.NoError(t, oldEngine.Play("intro", false))

	other := writeFile(t, dir, "other.yaml", "cues:\n  - id: outro\n    file_path: /show/outro.mp3\n")
	require.NoError(t, m.Open(other))
	assert.Equal(t, other, m.Path())

	for _, h := range snd.all() {
		assert.True(t, h.isUnloaded(), "handles of the old workspace are released")
	}
	assert.ErrorIs(t, oldEngine.Play("intro", false), playback.ErrClosed)

	engine, err := m.Engine()
	require.NoError(t, err)
	assert.ErrorIs(t, engine.Play("intro", false), playback.ErrCueNotFound)
	require.NoError(t, engine.Play("outro", false))
}

func TestManager_OpenFailureKeepsCurrent(t *testing.T) {
	m, _, dir := newManager(t, showCues)
	require.NoError(t, m.Start(context.Background()))
	before := m.Path()

	err := m.Open(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, before, m.Path())

	engine, err := m.Engine()
	require.NoError(t, err)
	assert.NoError(t, engine.Play("intro", false))
}

func TestManager_SetDefaults(t *testing.T) {
	m, _, _ := newManager(t, showCues)
	require.NoError(t, m.Start(context.Background()))

	p := m.config.Playback
	p.DefaultRetrigger = string(cue.RetriggerDoNothing)
	m.SetDefaults(p)

	engine, _ := m.Engine()
	require.NoError(t, engine.Play("intro", false))
	require.NoError(t, engine.Toggle("intro", ""))

	snap, ok := engine.GetPlaybackState("intro")
	require.True(t, ok)
	assert.True(t, snap.IsPlaying)
}

func TestManager_Close(t *testing.T) {
	m, _, dir := newManager(t, showCues)
	require.NoError(t, m.Start(context.Background()))

	m.Close()
	select {
	case <-m.Done():
	default:
		t.Fatal("done channel not closed")
	}
	assert.Equal(t, PhaseClosed, m.Phase())

	_, err := m.Engine()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Open(filepath.Join(dir, "cues.yaml")), ErrClosed)

	m.Close()
}

func TestEngineConfig(t *testing.T) {
	cfg := testConfig("cues.yaml")
	cfg.Playback.DefaultFadeInMs = 300
	cfg.Playback.RestartDelayMs = 50
	cfg.Audio.Device = "hw:1"

	ec := EngineConfig(cfg)
	assert.Equal(t, 300*time.Millisecond, ec.FadeIn)
	assert.Equal(t, 50*time.Millisecond, ec.RestartDelay)
	assert.Equal(t, time.Second, ec.PollInterval)
	assert.Equal(t, cue.RetriggerRestart, ec.Retrigger)
	assert.Equal(t, "hw:1", ec.Device)
	assert.Equal(t, 256, ec.EventBuffer)
}
