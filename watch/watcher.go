// Package watch reloads input files when they change on disk.
package watch

import (
	"agent-attendance/metrics"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDelay coalesces the burst of events an editor or a copy produces.
const DefaultDelay = 250 * time.Millisecond

// Handler is run after a watched file changed.
type Handler func(ctx context.Context) error

// Watcher monitors a set of files and runs their handler after each change.
// Parent directories are watched so that files replaced by rename are seen.
type Watcher struct {
	logger   zerolog.Logger
	delay    time.Duration
	handlers map[string]Handler

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher that waits delay after the last event on a file
// before running its handler.
func New(logger zerolog.Logger, delay time.Duration) *Watcher {
	return &Watcher{
		logger:   logger.With().Str("component", "watch").Logger(),
		delay:    delay,
		handlers: make(map[string]Handler),
		pending:  make(map[string]*time.Timer),
	}
}

// Handle registers h for path. It must be called before Start.
func (w *Watcher) Handle(path string, h Handler) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	w.handlers[filepath.Clean(path)] = h
}

// Start begins watching. The watcher stops when ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dirs := make(map[string]bool)
	for path := range w.handlers {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
		w.logger.Info().Str("dir", dir).Msg("watching for file changes")
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				w.stopPending()
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				path := filepath.Clean(evt.Name)
				if h, ok := w.handlers[path]; ok {
					w.schedule(ctx, path, h)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn().Err(err).Msg("file watcher error")
			}
		}
	}()
	return nil
}

func (w *Watcher) schedule(ctx context.Context, path string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.delay)
		return
	}
	w.pending[path] = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.run(ctx, path, h)
	})
}

func (w *Watcher) run(ctx context.Context, path string, h Handler) {
	if ctx.Err() != nil {
		return
	}
	file := filepath.Base(path)
	if err := h(ctx); err != nil {
		metrics.FileReloadsTotal.WithLabelValues(file, "error").Inc()
		w.logger.Error().Err(err).Str("path", path).Msg("reload after file change failed")
		return
	}
	metrics.FileReloadsTotal.WithLabelValues(file, "ok").Inc()
	w.logger.Info().Str("path", path).Msg("reloaded after file change")
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}
