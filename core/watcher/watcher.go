package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"stemdeck/logger"
	"stemdeck/repository"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow absorbs editor-style save storms before reporting.
const debounceWindow = 500 * time.Millisecond

// MissingFunc is invoked when a known stem source file disappears.
type MissingFunc func(songID, stemID, path string)

// LibraryWatcher keeps an fsnotify watch over the directories that
// contain imported stem files and reports stems whose source file was
// removed or renamed away. Watching is best-effort: failures are
// logged, never fatal, and playback is unaffected (decoded songs stay
// in memory).
type LibraryWatcher struct {
	stems   repository.StemRepository
	missing MissingFunc

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	byPath  map[string][2]string // path -> (songID, stemID)
	pending map[string]time.Time
	done    chan struct{}
}

// NewLibraryWatcher creates a watcher over the current library.
func NewLibraryWatcher(stems repository.StemRepository, missing MissingFunc) *LibraryWatcher {
	return &LibraryWatcher{
		stems:   stems,
		missing: missing,
		byPath:  make(map[string][2]string),
		pending: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
}

// Start begins watching. Call Refresh after imports or deletes.
func (w *LibraryWatcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.watcher = fsw
	w.mu.Unlock()

	if err := w.Refresh(); err != nil {
		logger.Warn("library watcher initial refresh failed", logger.Err(err))
	}

	go w.loop()
	return nil
}

// Refresh re-reads the stem list and adjusts the watched directories.
func (w *LibraryWatcher) Refresh() error {
	stems, err := w.stems.GetAllStems()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}

	w.byPath = make(map[string][2]string, len(stems))
	dirs := make(map[string]struct{})
	for _, stem := range stems {
		w.byPath[stem.FilePath] = [2]string{stem.SongID, stem.ID}
		dirs[filepath.Dir(stem.FilePath)] = struct{}{}
	}

	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			logger.Warn("failed to watch directory",
				logger.F("dir", dir), logger.Err(err))
		}
	}
	return nil
}

func (w *LibraryWatcher) loop() {
	ticker := time.NewTicker(debounceWindow)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			if _, known := w.byPath[event.Name]; known {
				w.pending[event.Name] = time.Now()
			}
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("library watcher error", logger.Err(err))

		case <-ticker.C:
			w.flush()

		case <-w.done:
			return
		}
	}
}

// flush reports debounced removals whose file is still gone.
func (w *LibraryWatcher) flush() {
	now := time.Now()

	w.mu.Lock()
	ready := make(map[string][2]string)
	for path, seen := range w.pending {
		if now.Sub(seen) >= debounceWindow {
			if ids, known := w.byPath[path]; known {
				ready[path] = ids
			}
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for path, ids := range ready {
		if _, err := os.Stat(path); err == nil {
			// Recreated within the window (editor-style save).
			continue
		}
		logger.Warn("stem source file missing",
			logger.F("songId", ids[0]),
			logger.F("stemId", ids[1]),
			logger.F("path", path))
		if w.missing != nil {
			w.missing(ids[0], ids[1], path)
		}
	}
}

// Close stops the watcher.
func (w *LibraryWatcher) Close() {
	close(w.done)
	w.mu.Lock()
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
	w.mu.Unlock()
}
