package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce collapses bursts of file system events into one
// notification.
const defaultDebounce = 500 * time.Millisecond

// WatchFunc receives the document ids that changed after a burst of
// file system events settles. The ids are sorted and deduplicated.
type WatchFunc func(ctx context.Context, ids []string)

// Watch blocks watching the workspace root for document changes and
// calls fn with each settled batch. Hidden directories are ignored,
// and directories created while watching are picked up. Watch returns
// nil when ctx is cancelled.
func (w *Workspace) Watch(ctx context.Context, debounce time.Duration, fn WatchFunc) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watchTreeDirs(watcher, w.Root()); err != nil {
		return fmt.Errorf("failed to watch workspace root: %w", err)
	}

	w.logger.Info().
		Str("root", w.Root()).
		Dur("debounce", debounce).
		Msg("Watching workspace for document changes")

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !strings.HasPrefix(filepath.Base(event.Name), ".") {
						if err := watchTreeDirs(watcher, event.Name); err != nil {
							w.logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
						}
					}
					continue
				}
			}

			id, ok := w.DocumentID(event.Name)
			if !ok {
				continue
			}

			w.logger.Debug().
				Str("document_id", id).
				Str("op", event.Op.String()).
				Msg("Document changed")

			pending[id] = struct{}{}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			ids := make([]string, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			pending = make(map[string]struct{})

			fn(ctx, ids)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// watchTreeDirs registers root and every directory below it with the
// watcher, skipping hidden directories.
func watchTreeDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
