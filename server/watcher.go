package server

import (
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// lockWatcher is the fallback for clients that cannot register file
// watchers: it watches the directory of every open manifest and reports
// Cargo.lock changes to the engine.
type lockWatcher struct {
	logger *log.Logger
	notify func(path string)
	fs     *fsnotify.Watcher

	mu   sync.Mutex
	dirs map[string]int // refcount per watched directory
}

func newLockWatcher(logger *log.Logger, notify func(path string)) (*lockWatcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &lockWatcher{
		logger: logger,
		notify: notify,
		fs:     fs,
		dirs:   make(map[string]int),
	}
	go w.run()
	return w, nil
}

func (w *lockWatcher) run() {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, string(filepath.Separator)+"Cargo.lock") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.notify(event.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Printf("lock watcher error: %v", err)
		}
	}
}

func (w *lockWatcher) watchManifest(manifestPath string) {
	dir := filepath.Dir(manifestPath)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dirs[dir]++
	if w.dirs[dir] == 1 {
		if err := w.fs.Add(dir); err != nil {
			w.logger.Printf("watching %s: %v", dir, err)
		}
	}
}

func (w *lockWatcher) unwatchManifest(manifestPath string) {
	dir := filepath.Dir(manifestPath)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dirs[dir] == 0 {
		return
	}
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		if err := w.fs.Remove(dir); err != nil {
			w.logger.Printf("unwatching %s: %v", dir, err)
		}
	}
}

func (w *lockWatcher) close() {
	if err := w.fs.Close(); err != nil {
		w.logger.Printf("closing lock watcher: %v", err)
	}
}
