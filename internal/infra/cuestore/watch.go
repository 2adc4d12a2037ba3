package cuestore

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// Watcher reloads a Store when its cue file changes on disk.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func()

	closeCh chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// Watch starts watching the store's cue file. onChange, if set, is called
// after every reload that changed the cues.
func Watch(store *Store, debounce time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	// Editors often replace the file, so watch the directory.
	if err := fw.Add(filepath.Dir(store.Path())); err != nil {
		_ = fw.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", store.Path())
	}

	w := &Watcher{
		store:    store,
		watcher:  fw,
		debounce: debounce,
		onChange: onChange,
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher and waits for it to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.doneCh
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	target := filepath.Clean(w.store.Path())
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			zlog.Warn().Msgf("cuestore: watch error: %v", err)
		case <-fire:
			fire = nil
			w.reload()
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	changed, err := w.store.Reload()
	if err != nil {
		// Keep the previous cues; the file may be mid-edit.
		zlog.Warn().Msgf("cuestore: reload failed: %v", err)
		return
	}
	if !changed {
		return
	}
	zlog.Info().Msgf("cuestore: reloaded %s", w.store.Path())
	if w.onChange != nil {
		w.onChange()
	}
}
