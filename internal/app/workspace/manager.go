// Package workspace provides the workspace manager. A workspace is one cue
// file together with the playback engine playing it.
package workspace

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cuedeck/internal/app/notification"
	"github.com/osa030/cuedeck/internal/app/playback"
	"github.com/osa030/cuedeck/internal/domain/sound"
	"github.com/osa030/cuedeck/internal/infra/config"
	"github.com/osa030/cuedeck/internal/infra/cuestore"
)

var (
	ErrClosed  = errors.New("workspace manager is closed")
	ErrNotOpen = errors.New("no workspace is open")
)

// Manager owns the open workspace and routes engine events to remote
// subscribers and to the cue file.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config *config.Config
	opts   []playback.Option

	// Components
	sound        sound.Engine
	notification *notification.Manager

	// Open workspace
	phase    Phase
	store    *cuestore.Store
	engine   *playback.Engine
	watcher  *cuestore.Watcher
	pumpDone chan struct{}

	done chan struct{}
}

// NewManager creates a new workspace manager. Options are passed to every
// engine it creates.
func NewManager(cfg *config.Config, snd sound.Engine, opts ...playback.Option) *Manager {
	return &Manager{
		config:       cfg,
		opts:         opts,
		sound:        snd,
		notification: notification.NewManager(),
		phase:        PhaseIdle,
		done:         make(chan struct{}),
	}
}

// EngineConfig converts the playback section of the configuration.
func EngineConfig(cfg *config.Config) playback.Config {
	return playback.Config{
		Defaults:           EngineDefaults(cfg.Playback),
		PollInterval:       cfg.Playback.PollInterval(),
		DuckingFade:        cfg.Playback.DuckingFade(),
		StopConfirmTimeout: cfg.Playback.StopConfirmTimeout(),
		RestartDelay:       cfg.Playback.RestartDelay(),
		EventBuffer:        cfg.Playback.EventBuffer,
		Device:             cfg.Audio.Device,
	}
}

// EngineDefaults converts the global playback defaults.
func EngineDefaults(p config.PlaybackConfig) playback.Defaults {
	return playback.Defaults{
		FadeIn:         p.FadeIn(),
		FadeOut:        p.FadeOut(),
		StopAllFadeOut: p.StopAllFadeOut(),
		Retrigger:      p.Retrigger(),
		PlayMode:       p.PlayMode(),
	}
}

// Start opens the configured cue file.
func (m *Manager) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Open(m.config.Workspace.CuesFile)
}

// Open switches to the cue file at path. The previous engine is closed,
// which stops every sound it was playing. When the new file cannot be
// loaded the current workspace stays open.
func (m *Manager) Open(path string) error {
	store, err := cuestore.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open workspace")
	}

	m.mu.Lock()
	if m.phase == PhaseClosed {
		m.mu.Unlock()
		return ErrClosed
	}
	oldEngine, oldWatcher, oldPump := m.engine, m.watcher, m.pumpDone

	engine := playback.New(EngineConfig(m.config), store, m.sound, m.opts...)
	pumpDone := make(chan struct{})
	go m.pump(engine, store, pumpDone)

	var watcher *cuestore.Watcher
	if m.config.Workspace.WatchEnabled() {
		watcher, err = cuestore.Watch(store, m.config.Workspace.WatchDebounce(), nil)
		if err != nil {
			zlog.Warn().Msgf("workspace: hot reload disabled: %v", err)
		}
	}

	m.store, m.engine, m.watcher, m.pumpDone = store, engine, watcher, pumpDone
	m.phase = PhaseOpen
	m.mu.Unlock()

	m.teardown(oldEngine, oldWatcher, oldPump)
	zlog.Info().Msgf("workspace: opened: path=%s", path)
	return nil
}

// teardown closes an engine and waits until its last event was handled.
func (m *Manager) teardown(engine *playback.Engine, watcher *cuestore.Watcher, pumpDone chan struct{}) {
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			zlog.Debug().Msgf("workspace: watcher close: %v", err)
		}
	}
	if engine != nil {
		engine.Close()
	}
	if pumpDone != nil {
		<-pumpDone
	}
}

// pump forwards engine events until the engine closes its channel.
func (m *Manager) pump(engine *playback.Engine, store *cuestore.Store, done chan struct{}) {
	defer close(done)

	for ev := range engine.Events() {
		zlog.Trace().Msgf("workspace: event: type=%s cue=%s status=%s", ev.Type, ev.CueID, ev.Status)

		if ev.Type == playback.EventDurationDiscovered && m.config.Workspace.PersistEnabled() {
			m.persistDuration(store, ev)
		}
		if err := m.notification.Broadcast(ev); err != nil {
			zlog.Error().Msgf("workspace: broadcast failed: %v", err)
		}
	}
}

func (m *Manager) persistDuration(store *cuestore.Store, ev playback.Event) {
	if !store.RecordDuration(ev.CueID, ev.ItemID, ev.Duration) {
		return
	}
	if err := store.Save(); err != nil {
		zlog.Error().Msgf("workspace: failed to persist duration: cue=%s err=%v", ev.CueID, err)
		return
	}
	zlog.Debug().Msgf("workspace: duration recorded: cue=%s item=%s duration=%s", ev.CueID, ev.ItemID, ev.Duration)
}

// Engine returns the engine of the open workspace.
func (m *Manager) Engine() (*playback.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch m.phase {
	case PhaseClosed:
		return nil, ErrClosed
	case PhaseIdle:
		return nil, ErrNotOpen
	}
	return m.engine, nil
}

// Store returns the cue store of the open workspace, or nil.
func (m *Manager) Store() *cuestore.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}

// Path returns the open cue file, or "" when none is open.
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.store == nil {
		return ""
	}
	return m.store.Path()
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// SetDefaults applies new global playback defaults to the running engine
// and to engines opened later.
func (m *Manager) SetDefaults(p config.PlaybackConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Playback = p
	if m.engine != nil {
		m.engine.SetDefaults(EngineDefaults(p))
	}
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// Done returns a channel closed once the manager has shut down.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close stops all playback and shuts the manager down.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.phase == PhaseClosed {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseClosed
	engine, watcher, pumpDone := m.engine, m.watcher, m.pumpDone
	m.mu.Unlock()

	m.teardown(engine, watcher, pumpDone)
	m.notification.Close()
	zlog.Info().Msg("workspace: closed")
	close(m.done)
}
