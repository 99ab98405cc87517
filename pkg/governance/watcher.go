package governance

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounceInterval is the quiet period before a detected change
// triggers a reload.
const defaultDebounceInterval = 100 * time.Millisecond

// ThresholdWatcher watches a threshold definition file and reconciles
// it into the store on change. Rapid successive writes are debounced
// into one reload.
type ThresholdWatcher struct {
	path     string
	manager  *ThresholdManager
	watcher  *fsnotify.Watcher
	debounce *debouncer
	logger   *slog.Logger

	mu       sync.Mutex
	running  bool
	stopping bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewThresholdWatcher creates a watcher for a threshold file.
func NewThresholdWatcher(path string, manager *ThresholdManager, logger *slog.Logger) (*ThresholdWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &ThresholdWatcher{
		path:     path,
		manager:  manager,
		watcher:  watcher,
		debounce: newDebouncer(defaultDebounceInterval),
		logger:   logger.With("component", "governance.watcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks processing file events until the context is cancelled
// or Stop is called. Editors often replace files by rename, so the
// parent directory is watched and events are filtered to the target
// file.
func (w *ThresholdWatcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.path, err)
	}

	w.logger.Info("threshold watcher started", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("threshold watcher stopped (context cancelled)")
			return nil

		case <-w.stopCh:
			w.logger.Info("threshold watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.shouldProcessEvent(event) {
				continue
			}

			w.debounce.trigger(func() {
				w.logger.Info("reloading thresholds", "path", w.path, "op", event.Op.String())
				if err := w.manager.BootstrapThresholds(ctx, w.path); err != nil {
					w.logger.Error("threshold reload failed", "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("threshold watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and cancels any pending reload. Only the
// first call closes anything; concurrent and repeated calls are no-ops.
func (w *ThresholdWatcher) Stop() error {
	w.mu.Lock()
	if !w.running || w.stopping {
		w.mu.Unlock()
		return nil
	}
	w.stopping = true
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.debounce.stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// shouldProcessEvent filters events down to writes of the target file.
func (w *ThresholdWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

// debouncer collapses rapid events into one callback after a quiet
// period.
type debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopCh   chan struct{}
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// trigger schedules the callback after the quiet period, replacing any
// pending one.
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		select {
		case <-d.stopCh:
			return
		default:
		}

		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}

// stop cancels any pending callback.
func (d *debouncer) stop() {
	close(d.stopCh)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
