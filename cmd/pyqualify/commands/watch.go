package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/pyqualify/pkg/config"
	"github.com/Sumatoshi-tech/pyqualify/pkg/driver"
	"github.com/Sumatoshi-tech/pyqualify/pkg/report"
	"github.com/Sumatoshi-tech/pyqualify/pkg/watch"
)

// watchAndRewrite re-runs the driver on every batch of changed Python files
// until ctx is done.
func watchAndRewrite(
	ctx context.Context,
	d *driver.Driver,
	cfg *config.Config,
	paths []string,
	out io.Writer,
	format report.Format,
	colorize bool,
	tel *telemetry,
) error {
	roots := make([]string, 0, len(paths))

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}

		roots = append(roots, abs)
	}

	w, err := watch.New(roots, watch.Options{
		Debounce: cfg.Watch.Debounce,
		Skip:     skipFunc(d, roots, cfg.IncludeStubs),
		Logger:   tel.Logger,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	tel.markServing()
	tel.Logger.InfoContext(ctx, "watching for changes", "roots", roots)

	err = w.Run(ctx, func(ctx context.Context, files []string) error {
		summary, runErr := d.RunFiles(ctx, files)
		if runErr != nil {
			return runErr
		}

		// Our own writes come back as events; only report real work.
		if summary.Changed+summary.Failed > 0 {
			writeSummary(out, summary, format, colorize, tel)
		}

		return nil
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

// skipFunc filters watch events with the same exclude patterns as discovery.
// Only files with a Python extension are reported.
func skipFunc(d *driver.Driver, roots []string, includeStubs bool) func(string, bool) bool {
	return func(path string, isDir bool) bool {
		if d.Excluded(relativeTo(roots, path)) {
			return true
		}

		if isDir {
			return false
		}

		switch filepath.Ext(path) {
		case ".py":
			return false
		case ".pyi":
			return !includeStubs
		}

		return true
	}
}

// relativeTo returns path relative to the first root containing it, slash
// separated, or its base name when no root does.
func relativeTo(roots []string, path string) string {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}

	return filepath.Base(path)
}
