// Package watch re-reviews source files as they change on disk, batching
// rapid saves behind a debounce window.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"tomato/internal/logging"
)

// ReviewFunc runs a review over the settled paths.
type ReviewFunc func(ctx context.Context, paths []string)

// Watcher monitors a directory tree and invokes the review callback once a
// changed file has settled past the debounce window.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	root        string
	extensions  map[string]bool
	review      ReviewFunc
	debounceDur time.Duration
	pending     map[string]time.Time
	// cooldown suppresses the events caused by our own verified writes.
	cooldown    map[string]time.Time
	cooldownDur time.Duration
}

// New creates a watcher over root for files with the given extensions.
func New(root string, extensions []string, review ReviewFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[e] = true
	}

	return &Watcher{
		watcher:     fsw,
		root:        root,
		extensions:  exts,
		review:      review,
		debounceDur: 500 * time.Millisecond,
		pending:     make(map[string]time.Time),
		cooldown:    make(map[string]time.Time),
		cooldownDur: 3 * time.Second,
	}, nil
}

// Run watches until the context is cancelled. Subdirectories are added as
// they appear; dot-directories are never descended into.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	logging.Watch("watching %s", w.root)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("stopped: %v", ctx.Err())
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.Watch("watch error: %v", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// addTree registers root and every non-hidden subdirectory.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && len(name) > 0 && name[0] == '.' {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	// New directories join the watch set.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			base := filepath.Base(event.Name)
			if len(base) > 0 && base[0] != '.' {
				_ = w.watcher.Add(event.Name)
			}
			return
		}
	}

	if !w.extensions[filepath.Ext(event.Name)] {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if until, ok := w.cooldown[event.Name]; ok && time.Now().Before(until) {
		return
	}
	w.pending[event.Name] = time.Now()
}

// flush reviews every pending file that has settled past the debounce
// window, then puts it on cooldown so the verified write-back does not
// immediately re-trigger a review.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)

	logging.Watch("reviewing %d changed files", len(ready))
	w.review(ctx, ready)

	w.mu.Lock()
	until := time.Now().Add(w.cooldownDur)
	for _, path := range ready {
		w.cooldown[path] = until
	}
	w.mu.Unlock()
}
