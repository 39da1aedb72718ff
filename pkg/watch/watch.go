// Package watch rebuilds the corpus when its inputs change. It watches the
// workflow file and, optionally, a local Formex source directory, and fires
// a debounced callback so editor save bursts trigger one rebuild.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/fsnotify.v1"
)

// DefaultDebounce coalesces event bursts from editors that write a file
// several times per save.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches a set of paths and invokes a callback after changes
// settle.
type Watcher struct {
	onChange func()
	debounce time.Duration

	// Watched files, keyed by directory. Files are watched through their
	// parent directory so rename-and-replace saves are still seen.
	files map[string]map[string]bool
	dirs  []string

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
}

// New creates a watcher for the given paths. Each path may be a file or a
// directory; files are tracked through their parent directory.
func New(onChange func(), paths ...string) (*Watcher, error) {
	w := &Watcher{
		onChange: onChange,
		debounce: DefaultDebounce,
		files:    map[string]map[string]bool{},
		stopChan: make(chan struct{}),
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat watch path %s: %w", path, err)
		}
		if info.IsDir() {
			w.dirs = append(w.dirs, path)
			continue
		}
		dir := filepath.Dir(path)
		if w.files[dir] == nil {
			w.files[dir] = map[string]bool{}
		}
		w.files[dir][filepath.Base(path)] = true
	}

	return w, nil
}

// SetDebounce overrides the settle interval.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching and returns immediately; events are handled on a
// background goroutine until Stop is called.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = watcher

	for _, dir := range w.dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	for dir := range w.files {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	go w.loop()
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

func (w *Watcher) loop() {
	var timer *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.onChange)

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// relevant filters events down to content changes of watched files, or any
// change inside a watched directory.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}

	dir := filepath.Dir(event.Name)
	if names, ok := w.files[dir]; ok && names[filepath.Base(event.Name)] {
		return true
	}
	for _, watched := range w.dirs {
		if dir == watched || event.Name == watched {
			return true
		}
	}
	return false
}
