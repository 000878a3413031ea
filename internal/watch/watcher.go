// Package watch monitors the recipes directory and nudges the sync
// loop when local files change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces a burst of filesystem events (an editor save
// typically fires several) into a single sync trigger.
const debounceWindow = 500 * time.Millisecond

// Watcher triggers a callback when files under the recipes directory
// change, debounced so editor save bursts cause one trigger.
type Watcher struct {
	root     string
	trigger  func()
	logger   *slog.Logger
	debounce time.Duration
}

// New creates a watcher for the given directory. The trigger callback
// must be safe to call from the watcher's goroutine.
func New(root string, trigger func(), logger *slog.Logger) *Watcher {
	return &Watcher{
		root:     root,
		trigger:  trigger,
		logger:   logger,
		debounce: debounceWindow,
	}
}

// Watch blocks until the context is cancelled, firing the trigger after
// each debounced burst of changes.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addRecursive(watcher); err != nil {
		return fmt.Errorf("adding recipes directory to watcher: %w", err)
	}

	w.logger.Info("watching recipes directory", slog.String("path", w.root))

	// The timer is created stopped; each relevant event rewinds it.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			w.logger.Debug("local changes settled, triggering sync")
			w.trigger()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			if !w.handleEvent(watcher, event) {
				continue
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}

			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}

			// fsnotify errors are non-fatal (e.g. too many watches);
			// the periodic sync still picks up missed changes.
			w.logger.Warn("filesystem watch error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent maintains watches on created/removed directories and
// reports whether the event should count toward a sync trigger.
func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	if w.shouldIgnore(event.Name) {
		return false
	}

	if event.Has(fsnotify.Create) {
		// New directory: start watching it so we catch files created
		// inside it. Use Lstat to avoid following symlinks to
		// directories outside the recipes tree.
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			_ = watcher.Add(event.Name)
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		// Harmless if the path wasn't a watched directory.
		_ = watcher.Remove(event.Name)
	}

	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

// addRecursive walks the root and adds all non-hidden directories to
// the fsnotify watcher.
func (w *Watcher) addRecursive(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		return watcher.Add(path)
	})
}

// shouldIgnore returns true for paths that never warrant a sync.
func (w *Watcher) shouldIgnore(absPath string) bool {
	name := filepath.Base(absPath)

	// Hidden files and directories.
	if strings.HasPrefix(name, ".") {
		return true
	}

	// Temp files from editors.
	if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") {
		return true
	}

	return false
}
