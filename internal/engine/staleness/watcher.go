// Package staleness implements proactive divergence detection: a periodic
// poll over every watched key plus an fsnotify fast path that fires a check
// as soon as a watched file changes.
package staleness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vigilproject/vigil/internal/core/domain"
	"github.com/vigilproject/vigil/internal/core/ports"
)

// Watcher detects stored entries whose watched paths have moved past them
// and publishes state:stale exactly once per divergence. It never deletes
// entries and never triggers computation; the event is advisory.
type Watcher struct {
	store    ports.EntryStore
	resolver ports.WatchResolver
	sink     ports.EventSink
	logger   ports.Logger
	watches  map[string][]string
	poll     time.Duration
	debounce time.Duration

	mu           sync.Mutex
	lastSignaled map[string]int64
}

// New creates a staleness watcher for the configured watch sets.
func New(cfg *domain.Config, store ports.EntryStore, resolver ports.WatchResolver, sink ports.EventSink, logger ports.Logger) *Watcher {
	return &Watcher{
		store:        store,
		resolver:     resolver,
		sink:         sink,
		logger:       logger,
		watches:      cfg.Watches(),
		poll:         cfg.PollInterval,
		debounce:     cfg.DebounceWindow,
		lastSignaled: make(map[string]int64),
	}
}

// Run blocks until ctx is cancelled, polling every configured interval and
// reacting to file system notifications in between. The fsnotify side is
// best effort: if the platform watcher cannot be created the poll loop still
// covers every key.
func (w *Watcher) Run(ctx context.Context) error {
	debouncer := NewDebouncer(w.debounce, func(paths []string) {
		w.logger.Info(fmt.Sprintf("fs change detected (%d paths), checking staleness", len(paths)))
		w.CheckAll()
	})

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn(fmt.Sprintf("fs notifications unavailable, polling only: %v", err))
	} else {
		defer fsWatcher.Close() //nolint:errcheck
		w.addWatchDirs(fsWatcher)
		go w.pumpEvents(ctx, fsWatcher, debouncer)
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			debouncer.Flush()
			return ctx.Err()
		case <-ticker.C:
			w.CheckAll()
		}
	}
}

// addWatchDirs registers the parent directories of every resolved watch path.
// Watching directories instead of files survives the rename-and-replace write
// pattern editors use.
func (w *Watcher) addWatchDirs(fsWatcher *fsnotify.Watcher) {
	seen := make(map[string]struct{})
	for key, patterns := range w.watches {
		paths, err := w.resolver.Resolve(patterns)
		if err != nil {
			w.logger.Warn(fmt.Sprintf("cannot resolve watch patterns for %s: %v", key, err))
			continue
		}
		for _, path := range paths {
			dir := filepath.Dir(path)
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				dir = path
			}
			if _, ok := seen[dir]; ok {
				continue
			}
			seen[dir] = struct{}{}
			if err := fsWatcher.Add(dir); err != nil {
				w.logger.Warn(fmt.Sprintf("cannot watch %s: %v", dir, err))
			}
		}
	}
}

func (w *Watcher) pumpEvents(ctx context.Context, fsWatcher *fsnotify.Watcher, debouncer *Debouncer) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				debouncer.Add(event.Name)
			}
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(fmt.Sprintf("fs watcher error: %v", err))
		}
	}
}

// CheckAll compares every stored entry against its watched paths and
// publishes state:stale for each newly diverged one. A divergence already
// signaled at the same observed mtime is skipped, so repeated polls over an
// unchanged stale entry stay silent.
func (w *Watcher) CheckAll() {
	for key, patterns := range w.watches {
		if err := w.checkKey(key, patterns); err != nil {
			w.logger.Error(err)
		}
	}
}

func (w *Watcher) checkKey(key string, patterns []string) error {
	entry, err := w.store.Get(key)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	maxMtime, err := w.resolver.MaxMtime(patterns)
	if err != nil {
		return err
	}
	if entry.ValidAgainst(maxMtime) {
		w.mu.Lock()
		delete(w.lastSignaled, key)
		w.mu.Unlock()
		return nil
	}

	w.mu.Lock()
	already := w.lastSignaled[key] == maxMtime
	if !already {
		w.lastSignaled[key] = maxMtime
	}
	w.mu.Unlock()
	if already {
		return nil
	}

	w.sink.Publish(domain.EventStateStale, key, nil, domain.WithMeta(map[string]any{
		"sourceMtime":   entry.SourceMtime,
		"observedMtime": maxMtime,
		"delta":         time.Duration(maxMtime - entry.SourceMtime).Seconds(),
	}))
	return nil
}
