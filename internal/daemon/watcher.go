package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitemirage/internal/logfields"
	"git.home.luguber.info/inful/sitemirage/internal/metrics"
)

// TreeWatcher watches the input tree recursively and reports every relevant
// change as one notification. fsnotify watches are per-directory, so the
// watcher registers every directory up front and adds new ones as they
// appear.
type TreeWatcher struct {
	root    string
	watcher *fsnotify.Watcher
	changes chan<- struct{}
	rec     *metrics.Recorder
}

// NewTreeWatcher creates a recursive watcher rooted at root. Notifications
// are delivered on changes; delivery is lossy by construction since the
// debouncer only cares that something changed, not how many times.
func NewTreeWatcher(root string, changes chan<- struct{}, rec *metrics.Recorder) (*TreeWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}

	tw := &TreeWatcher{root: absRoot, watcher: watcher, changes: changes, rec: rec}
	if err := tw.addRecursive(absRoot); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return tw, nil
}

func (tw *TreeWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !de.IsDir() {
			return nil
		}
		if err := tw.watcher.Add(p); err != nil {
			return fmt.Errorf("watch directory %s: %w", p, err)
		}
		return nil
	})
}

// Run pumps fsnotify events until the context ends.
func (tw *TreeWatcher) Run(ctx context.Context) error {
	defer tw.watcher.Close()

	slog.Info("Watching input tree", logfields.Path(tw.root))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-tw.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := tw.addRecursive(event.Name); err != nil {
						slog.Warn("Cannot watch new directory",
							logfields.Path(event.Name), logfields.Error(err))
					}
				}
			}
			if tw.rec != nil {
				tw.rec.RecordWatcherEvent()
			}
			select {
			case tw.changes <- struct{}{}:
			default:
				// A notification is already queued; the debouncer will see
				// the burst either way.
			}

		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("File watcher error", logfields.Error(err))
		}
	}
}
