package board

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals when the backing file is created, modified, or deleted by
// any writer. The watch is bound to the containing directory and filtered
// by file name, so it survives the atomic temp-and-rename replace and fires
// before the file first exists. No attempt is made to distinguish our own
// writes from external ones; consumers must tolerate redundant callbacks.
type Watcher struct {
	fsw       *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
	logger    Logger
}

func WatchLocation(location string, notify func(), logger Logger) (*Watcher, error) {
	dir := filepath.Dir(location)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{fsw: fsw, done: make(chan struct{}), logger: logger}
	go w.loop(filepath.Base(location), notify)
	return w, nil
}

func (w *Watcher) loop(name string, notify func()) {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			notify()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logf("watch error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
	})
}

func (w *Watcher) logf(format string, args ...any) {
	if w.logger == nil {
		return
	}
	w.logger.Printf(format, args...)
}
