package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// StoreWatcher re-runs Restore when another process rewrites the file store,
// so a login or logout in one terminal is seen by every running client.
type StoreWatcher struct {
	mgr                *Manager
	path               string
	watcher            *fsnotify.Watcher
	stabilityThreshold time.Duration
	done               chan struct{}
	stopOnce           sync.Once

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewStoreWatcher watches the file at path on behalf of mgr
func NewStoreWatcher(mgr *Manager, path string, stabilityThreshold time.Duration) (*StoreWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if stabilityThreshold <= 0 {
		stabilityThreshold = 100 * time.Millisecond
	}

	return &StoreWatcher{
		mgr:                mgr,
		path:               filepath.Clean(path),
		watcher:            watcher,
		stabilityThreshold: stabilityThreshold,
		done:               make(chan struct{}),
	}, nil
}

// Start watches the store's directory. Watching the directory rather than the
// file survives the rename used for atomic writes.
func (w *StoreWatcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.eventLoop()

	log.Info().Str("path", w.path).Msg("Session store watcher started")
	return nil
}

// Stop stops the watcher
func (w *StoreWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	log.Info().Msg("Session store watcher stopped")
	return nil
}

func (w *StoreWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.debounce()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Session store watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *StoreWatcher) debounce() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
		}
		outcome := w.mgr.Restore(context.Background())
		log.Debug().Str("outcome", outcome.String()).Msg("Session reloaded after store change")
	})
}
