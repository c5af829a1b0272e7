// Package watcher turns raw filesystem notifications into debounced
// pipeline triggers.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultIgnores are directory names that never produce a trigger.
var DefaultIgnores = []string{".git", "node_modules", ".astro", "__pycache__", ".aether"}

// Event is a single relevant filesystem notification.
type Event struct {
	Path string
	Op   string
	At   time.Time
}

// Watcher watches a directory tree recursively and emits Events. fsnotify
// watches are per-directory, so the tree is registered on start and new
// directories join as their create events arrive.
type Watcher struct {
	root    string
	ignores map[string]struct{}
	fsw     *fsnotify.Watcher
	events  chan Event
	log     *zap.SugaredLogger
}

// New creates a Watcher rooted at dir. Extra ignore names are merged with
// DefaultIgnores.
func New(dir string, extraIgnores []string, log *zap.SugaredLogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ignores := make(map[string]struct{}, len(DefaultIgnores)+len(extraIgnores))
	for _, name := range DefaultIgnores {
		ignores[name] = struct{}{}
	}
	for _, name := range extraIgnores {
		ignores[name] = struct{}{}
	}

	w := &Watcher{
		root:    dir,
		ignores: ignores,
		fsw:     fsw,
		events:  make(chan Event, 64),
		log:     log,
	}
	if err := w.addTree(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Events returns the event stream. Closed when Run returns.
func (w *Watcher) Events() <-chan Event { return w.events }

// Close releases the underlying notifier. Safe to call whether or not Run
// was started; a running pump drains out through its closed channels.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Run pumps notifications until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.ignored(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.log.Debugw("watch new directory", "path", ev.Name, "error", err)
					}
					continue
				}
			}
			select {
			case w.events <- Event{Path: ev.Name, Op: ev.Op.String(), At: time.Now()}:
			default:
				// Never stall the notification pump; the debounce window
				// makes individual drops harmless.
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warnw("watch error", "error", err)
		}
	}
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if _, ok := w.ignores[part]; ok {
			return true
		}
	}
	return false
}
