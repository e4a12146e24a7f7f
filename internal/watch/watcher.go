// Package watch regenerates the suite when its inputs change.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"pytestmaker/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher watches a fixed set of files. It watches their directories, not
// the files, so that editors which save by rename keep being seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	debounce time.Duration
}

// New watches the given files.
func New(files []string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{watcher: fw, files: make(map[string]bool), debounce: debounce}
	dirs := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
		logging.Watch("watching directory: %s", dir)
	}
	return w, nil
}

// Run blocks until ctx is done, calling regenerate on this goroutine once
// per debounced burst of changes to the watched files. Errors from
// regenerate are logged and watching continues. The watcher is closed when
// Run returns.
func (w *Watcher) Run(ctx context.Context, regenerate func(context.Context) error) error {
	defer w.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("context cancelled, stopping")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			logging.WatchDebug("%s %s", event.Op, event.Name)
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.WatchError("watcher error: %v", err)

		case <-timer.C:
			logging.Watch("inputs changed, regenerating")
			if err := regenerate(ctx); err != nil {
				logging.WatchError("regeneration failed: %v", err)
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Remove) {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return w.files[abs]
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
