// Package watch reports changes to image folders so DynamicImage nodes can
// pick up added, removed or rewritten files.
package watch

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chazu/strata/pkg/imaging"
	"github.com/chazu/strata/pkg/logging"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is used when New is given a non-positive debounce.
const DefaultDebounce = 250 * time.Millisecond

// Watcher watches folders and emits a folder's path once its image files
// have stopped changing for the debounce interval.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger
	events   chan string

	mu      sync.Mutex
	folders map[string]int // watched folder -> reference count
	timers  map[string]*time.Timer

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a stopped watcher.
func New(debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create folder watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:  fw,
		debounce: debounce,
		logger:   logging.OrNop(logger),
		events:   make(chan string, 16),
		folders:  make(map[string]int),
		timers:   make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
	}, nil
}

// Events delivers the paths of folders whose contents changed.
func (w *Watcher) Events() <-chan string { return w.events }

// Add starts watching folder. Folders are reference counted, so every Add
// needs a matching Remove.
func (w *Watcher) Add(folder string) error {
	folder = filepath.Clean(folder)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.folders[folder] == 0 {
		if err := w.watcher.Add(folder); err != nil {
			return fmt.Errorf("watch %s: %w", folder, err)
		}
		w.logger.Debug("watching folder", zap.String("folder", folder))
	}
	w.folders[folder]++
	return nil
}

// Remove drops one reference to folder.
func (w *Watcher) Remove(folder string) error {
	folder = filepath.Clean(folder)
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.folders[folder] {
	case 0:
		return nil
	case 1:
		return w.drop(folder)
	default:
		w.folders[folder]--
		return nil
	}
}

// Sync makes the watched set equal to folders, ignoring reference counts.
func (w *Watcher) Sync(folders []string) error {
	want := make(map[string]bool, len(folders))
	for _, f := range folders {
		want[filepath.Clean(f)] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for f := range w.folders {
		if want[f] {
			delete(want, f)
			continue
		}
		if err := w.drop(f); err != nil {
			return err
		}
	}
	for f := range want {
		if err := w.watcher.Add(f); err != nil {
			return fmt.Errorf("watch %s: %w", f, err)
		}
		w.folders[f] = 1
	}
	return nil
}

// drop stops watching folder. w.mu must be held.
func (w *Watcher) drop(folder string) error {
	delete(w.folders, folder)
	if t, ok := w.timers[folder]; ok {
		t.Stop()
		delete(w.timers, folder)
	}
	if err := w.watcher.Remove(folder); err != nil {
		return fmt.Errorf("unwatch %s: %w", folder, err)
	}
	return nil
}

// Folders returns the watched folders, sorted.
func (w *Watcher) Folders() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.folders))
	for f := range w.folders {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Start runs the event loop in a new goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop ends the event loop and releases the underlying watcher. Events is
// not closed.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		for f, t := range w.timers {
			t.Stop()
			delete(w.timers, f)
		}
		w.mu.Unlock()
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn("close folder watcher", zap.Error(err))
		}
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !imaging.IsSupported(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(filepath.Dir(event.Name))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("folder watcher error", zap.Error(err))
		}
	}
}

// schedule (re)starts the debounce timer for folder.
func (w *Watcher) schedule(folder string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scheduleLocked(folder)
}

func (w *Watcher) scheduleLocked(folder string) {
	if w.folders[folder] == 0 {
		return
	}
	if t, ok := w.timers[folder]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		// A reschedule may have replaced us after we fired.
		if w.timers[folder] == t {
			delete(w.timers, folder)
		}
		w.mu.Unlock()

		w.logger.Debug("folder changed", zap.String("folder", folder))
		select {
		case w.events <- folder:
		case <-w.stopCh:
		}
	})
	w.timers[folder] = t
}
