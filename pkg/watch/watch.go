// Package watch reports batches of changed files under a set of roots,
// coalescing bursts of filesystem events.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 200 * time.Millisecond

// ErrClosed is returned by Run when the underlying watcher shut down.
var ErrClosed = errors.New("watcher closed")

// Options configure a Watcher.
type Options struct {
	// Debounce is the quiet period after the last event before a batch is
	// delivered.
	Debounce time.Duration
	// Skip reports paths to ignore. Skipped directories are not watched.
	Skip func(path string, isDir bool) bool
	// Logger receives watcher errors. Nil discards them.
	Logger *slog.Logger
}

// Handler receives one batch of changed file paths, sorted.
type Handler func(ctx context.Context, paths []string) error

// Watcher watches directory trees.
type Watcher struct {
	fsw  *fsnotify.Watcher
	opts Options
}

// New watches every directory under roots. A root may also be a file, in
// which case its directory is watched and only that file reported.
func New(roots []string, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.Skip == nil {
		opts.Skip = func(string, bool) bool { return false }
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{fsw: fsw, opts: opts}

	for _, root := range roots {
		info, statErr := os.Stat(root)
		if statErr != nil {
			_ = fsw.Close() //nolint:errcheck // the stat error is the one worth reporting.

			return nil, fmt.Errorf("watch %s: %w", root, statErr)
		}

		if !info.IsDir() {
			err = fsw.Add(filepath.Dir(root))
		} else {
			err = w.addTree(root)
		}

		if err != nil {
			_ = fsw.Close() //nolint:errcheck // the add error is the one worth reporting.

			return nil, err
		}
	}

	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && w.opts.Skip(path, true) {
			return filepath.SkipDir
		}

		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch %s: %w", path, addErr)
		}

		return nil
	})
}

// Run delivers batches to handle until ctx is done. A handler error stops
// the loop and is returned.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	pending := make(map[string]bool)

	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return ErrClosed
			}

			if w.accept(event) {
				pending[event.Name] = true
				timer.Reset(w.opts.Debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrClosed
			}

			w.opts.Logger.WarnContext(ctx, "watch error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}

			batch := make([]string, 0, len(pending))
			for path := range pending {
				batch = append(batch, path)
			}

			sort.Strings(batch)
			clear(pending)

			if err := handle(ctx, batch); err != nil {
				return err
			}
		}
	}
}

// accept filters an event down to a live file worth reporting, and starts
// watching directories that appear.
func (w *Watcher) accept(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return false
	}

	if info.IsDir() {
		if event.Has(fsnotify.Create) && !w.opts.Skip(event.Name, true) {
			if addErr := w.addTree(event.Name); addErr != nil {
				w.opts.Logger.Warn("watch new directory", "path", event.Name, "error", addErr)
			}
		}

		return false
	}

	return !w.opts.Skip(event.Name, false)
}

// Close stops watching.
func (w *Watcher) Close() error {
	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}

	return nil
}
