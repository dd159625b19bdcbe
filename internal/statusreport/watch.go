package statusreport

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/drover-dev/drover/internal/log"
)

// watchDebounce coalesces the burst of events one atomic save produces.
const watchDebounce = 200 * time.Millisecond

// Watch invokes fn whenever one of the given files changes, until the
// context is cancelled. fn runs once up front so the caller always has a
// current view. The parent directories are watched, not the files: the
// store replaces the backlog by rename, which would orphan a file watch.
func Watch(ctx context.Context, logger *log.Logger, paths []string, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}

	fn()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !watched[abs] {
				continue
			}
			pending = time.After(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("file watch error")

		case <-pending:
			pending = nil
			fn()
		}
	}
}
