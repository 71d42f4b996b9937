// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc is called once the watched catalog file has settled after a
// burst of writes. Implementations reload and swap the snapshot; errors are
// theirs to log because the watcher has nothing useful to do with them.
type ReloadFunc func(ctx context.Context, path string)

// WatcherOptions configures the catalog file watcher.
type WatcherOptions struct {
	// DebounceWindow is how long the file must stay quiet before reloading.
	// Catalog exports arrive as bursts of partial writes; default 500ms.
	DebounceWindow time.Duration

	// BufferSize is the size of the internal event channel. Default 64.
	BufferSize int
}

// DefaultWatcherOptions returns the defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow: 500 * time.Millisecond,
		BufferSize:     64,
	}
}

// Watcher hot-reloads the catalog when its source file changes.
//
// # Description
//
// Watches the parent directory of one catalog file and debounces events for
// that file. Watching the directory instead of the file itself survives the
// rename-replace pattern editors and exporters use. When the debounce window
// expires without further writes, the reload callback fires once.
//
// # Thread Safety
//
// Safe for concurrent use. The reload callback runs on a single goroutine.
type Watcher struct {
	path    string
	base    string
	watcher *fsnotify.Watcher
	reload  ReloadFunc
	opts    WatcherOptions
	logger  *slog.Logger

	events   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// NewWatcher creates a watcher for the given catalog file. Call Start to
// begin watching and Stop to release the inotify handle.
func NewWatcher(path string, reload ReloadFunc, opts *WatcherOptions, logger *slog.Logger) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &StoreError{Op: "reload", Message: "create file watcher", Err: err}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, &StoreError{Op: "reload", Message: "resolve catalog path", Err: err}
	}

	return &Watcher{
		path:    abs,
		base:    filepath.Base(abs),
		watcher: fsw,
		reload:  reload,
		opts:    *opts,
		logger:  logger.With(slog.String("component", "catalog_watcher")),
		events:  make(chan struct{}, opts.BufferSize),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. It returns immediately; events are processed on
// background goroutines that exit when ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return &StoreError{Op: "reload", Message: "watch catalog directory", Err: err}
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	w.logger.Info("catalog watcher started", slog.String("path", w.path))
	return nil
}

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.events <- struct{}{}:
			default:
				// Buffer full; the pending reload already covers this write.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.events:
			if timer == nil {
				timer = time.NewTimer(w.opts.DebounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.DebounceWindow)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.logger.Info("catalog file changed, reloading", slog.String("path", w.path))
			w.reload(ctx, w.path)
		}
	}
}
