// Package watcher reports journal files dropped into a directory once they
// stop changing.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tradelens/backend/internal/logger"
)

// DefaultSettle is how long a file must be quiet before it is reported.
const DefaultSettle = 500 * time.Millisecond

// JournalExtensions are the file types picked up from the drop directory.
var JournalExtensions = map[string]bool{
	".csv":  true,
	".tsv":  true,
	".txt":  true,
	".json": true,
	".html": true,
	".htm":  true,
	".xlsx": true,
}

type Watcher struct {
	fw     *fsnotify.Watcher
	settle time.Duration
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
	pending map[string]*time.Timer
}

func New(settle time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{
		fw:      fw,
		settle:  settle,
		done:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Watch monitors dir (not recursively). onFile is called from a timer
// goroutine with the absolute path of each new or rewritten journal.
func (w *Watcher) Watch(dir string, onFile func(path string)) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := w.fw.Add(absDir); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case event, ok := <-w.fw.Events:
				if !ok {
					return
				}
				if !IsJournal(event.Name) {
					continue
				}
				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					w.cancel(event.Name)
					continue
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
					w.schedule(event.Name, onFile)
				}

			case err, ok := <-w.fw.Errors:
				if !ok {
					return
				}
				logger.WithError(err, "watcher").Warn("File watcher error")

			case <-w.done:
				return
			}
		}
	}()

	logger.Info("Watching for journals", map[string]interface{}{"dir": absDir})
	return nil
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string, onFile func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return
		}
		onFile(path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// Stop ends monitoring. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	close(w.done)
	return w.fw.Close()
}

// IsJournal reports whether path looks like a journal export. Hidden and
// editor temp files are skipped.
func IsJournal(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") || strings.HasSuffix(base, "~") {
		return false
	}
	return JournalExtensions[strings.ToLower(filepath.Ext(base))]
}
