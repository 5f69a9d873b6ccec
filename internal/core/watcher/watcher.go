// Package watcher reports content changes to files in a set of directories.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"toolhost/internal/shared/observability"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/zeebo/blake3"
)

// Watcher watches directories non-recursively and calls onChange with the
// paths whose content changed. Writes that leave a file byte-identical are
// not reported.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	debounce   time.Duration
	include    []glob.Glob
	onChange   func([]string)
	logger     *slog.Logger
	callbackMu sync.Mutex

	pending   map[string]struct{}
	hashes    map[string][32]byte
	pendingMu sync.Mutex
	timer     *time.Timer

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New compiles the include patterns, matched against base names. With no
// patterns every file is included.
func New(debounce time.Duration, patterns []string, logger *slog.Logger, onChange func([]string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, g)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsw,
		debounce:  debounce,
		include:   compiled,
		onChange:  onChange,
		logger:    logger,
		pending:   make(map[string]struct{}),
		hashes:    make(map[string][32]byte),
		done:      make(chan struct{}),
	}, nil
}

// Watch adds dirs and starts the event loop. Directories that do not exist
// are skipped. It returns the directories actually watched.
func (w *Watcher) Watch(dirs []string) ([]string, error) {
	watched := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			w.logger.Debug("skipping missing watch directory", "path", dir)
			continue
		}
		if err := w.fsWatcher.Add(dir); err != nil {
			return watched, err
		}
		w.seed(dir)
		watched = append(watched, dir)
	}

	w.wg.Add(1)
	go w.run()
	return watched, nil
}

// seed records the current content of matching files so the first
// identical rewrite is ignored.
func (w *Watcher) seed(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !w.matches(path) {
			continue
		}
		if sum, ok := hashFile(path); ok {
			w.hashes[path] = sum
		}
	}
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.PolicyFileEventsTotal.Inc()
			if !w.matches(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.scheduleChange(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flushChanges)
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		if w.contentChanged(path) {
			paths = append(paths, path)
		}
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	if len(paths) == 0 {
		return
	}
	select {
	case <-w.done:
		return
	default:
	}

	slices.Sort(paths)
	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.onChange(paths)
}

// contentChanged updates the stored hash for path. Caller holds pendingMu.
func (w *Watcher) contentChanged(path string) bool {
	previous, known := w.hashes[path]
	sum, exists := hashFile(path)
	switch {
	case !exists:
		delete(w.hashes, path)
		return known
	case known && previous == sum:
		return false
	default:
		w.hashes[path] = sum
		return true
	}
}

func (w *Watcher) matches(path string) bool {
	if len(w.include) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, g := range w.include {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// Close stops the event loop. Pending changes are discarded.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.pendingMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.pendingMu.Unlock()
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

func hashFile(path string) ([32]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, false
	}
	return blake3.Sum256(data), true
}
