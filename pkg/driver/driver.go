// Package driver runs the qualify rewrite over files and directory trees.
//
// Files are discovered, filtered and then processed by a bounded worker
// pool. Each file gets a fresh transform, so a failure in one file never
// affects another: a file that does not parse is reported and left
// untouched while the rest of the batch continues.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/pyqualify/internal/observability"
	"github.com/Sumatoshi-tech/pyqualify/pkg/atomicfile"
	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod"
	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod/qualify"
	"github.com/Sumatoshi-tech/pyqualify/pkg/difftext"
	"github.com/Sumatoshi-tech/pyqualify/pkg/report"
	"github.com/Sumatoshi-tech/pyqualify/pkg/runcache"
)

// Mode selects what happens to a file that would change.
type Mode int

// Modes.
const (
	// ModeWrite rewrites files in place.
	ModeWrite Mode = iota
	// ModeCheck only reports which files would change.
	ModeCheck
	// ModeDiff prints a unified diff per changed file.
	ModeDiff
	// ModeStdout prints the rewritten source of every file.
	ModeStdout
)

// StdinPath is the path argument that selects stdin.
const StdinPath = "-"

const stdinName = "<stdin>"

// Sentinel errors.
var (
	ErrPath      = errors.New("invalid path")
	ErrGit       = errors.New("git changed-file lookup failed")
	ErrStdinOnly = errors.New("'-' must be the only path")
	ErrRead      = errors.New("read failed")
	ErrWrite     = errors.New("write failed")
)

// Options configure a Driver.
type Options struct {
	Qualify               qualify.Options
	BlankLineAfterImports bool
	Mode                  Mode
	// Jobs bounds the worker pool. Zero or less means one worker.
	Jobs         int
	Exclude      []string
	IncludeStubs bool
	// GitChanged keeps only files git reports as changed.
	GitChanged bool
	// Cache skips files already in rewritten form. Nil disables it.
	Cache *runcache.Cache
	// Out receives diffs and rewritten sources. Defaults to os.Stdout.
	Out io.Writer
	// Color enables colored diffs.
	Color bool

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *observability.RewriteMetrics
}

// Driver processes batches of files. It is safe for concurrent use.
type Driver struct {
	opts    Options
	runner  *codemod.Runner
	factory codemod.Factory

	outMu sync.Mutex
}

// New validates the rewrite options and creates a Driver.
func New(opts Options) (*Driver, error) {
	if err := opts.Qualify.Validate(); err != nil {
		return nil, err
	}

	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}

	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(observability.TracerName)
	}

	runner := codemod.NewRunner(codemod.Options{
		BlankLineAfterImports: opts.BlankLineAfterImports,
		Logger:                opts.Logger,
		Tracer:                opts.Tracer,
	})

	return &Driver{opts: opts, runner: runner, factory: qualify.Factory(opts.Qualify)}, nil
}

// CacheFingerprint identifies the options a run cache was written under.
func CacheFingerprint(q qualify.Options, blankLineAfterImports bool, version string) string {
	return fmt.Sprintf("%s|%s|%s|%t|%s", q.Module, q.Alias, q.Match, blankLineAfterImports, version)
}

// Transform rewrites one in-memory source.
func (d *Driver) Transform(ctx context.Context, filename string, src []byte) (*codemod.Result, error) {
	return d.runner.Run(ctx, filename, src, d.factory())
}

// Run discovers the files under paths and processes them. The returned
// error is non-nil only when the batch could not run to completion: bad
// paths, git failures or cancellation. Per-file failures are in the summary.
func (d *Driver) Run(ctx context.Context, paths []string) (*report.Summary, error) {
	ctx, span := d.opts.Tracer.Start(ctx, "pyqualify.run",
		trace.WithAttributes(attribute.Int("paths", len(paths)), attribute.Int("jobs", d.opts.Jobs)))
	defer span.End()

	summary, err := d.run(ctx, paths)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
	}

	if summary != nil {
		span.SetAttributes(
			attribute.Int("files", len(summary.Files)),
			attribute.Int("changed", summary.Changed),
			attribute.Int("failed", summary.Failed),
		)
	}

	return summary, err
}

func (d *Driver) run(ctx context.Context, paths []string) (*report.Summary, error) {
	files, err := d.Discover(ctx, paths)
	if err != nil {
		return nil, err
	}

	d.opts.Logger.DebugContext(ctx, "discovered files", "count", len(files))

	return d.RunFiles(ctx, files)
}

// RunFiles processes an explicit list of files.
func (d *Driver) RunFiles(ctx context.Context, files []string) (*report.Summary, error) {
	start := time.Now()
	results := make([]*report.FileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Jobs)

	for idx, path := range files {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			fr := d.processFile(gctx, path)
			results[idx] = &fr

			return nil
		})
	}

	waitErr := g.Wait()

	summary := &report.Summary{Check: d.opts.Mode == ModeCheck}

	for _, fr := range results {
		if fr != nil {
			summary.Add(*fr)
		}
	}

	summary.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}

	if waitErr != nil {
		return summary, waitErr
	}

	if d.opts.Cache != nil {
		if err := d.opts.Cache.Save(); err != nil {
			d.opts.Logger.WarnContext(ctx, "run cache not saved", "error", err)
		}
	}

	d.opts.Logger.InfoContext(ctx, "run finished",
		"files", len(summary.Files), "changed", summary.Changed, "failed", summary.Failed,
		"duration", summary.Duration)

	return summary, nil
}

func (d *Driver) processFile(ctx context.Context, path string) report.FileResult {
	start := time.Now()

	src, err := os.ReadFile(path)
	if err != nil {
		return d.fail(ctx, path, 0, start, fmt.Errorf("%w: %w", ErrRead, err))
	}

	if d.opts.Cache != nil && d.opts.Mode != ModeStdout && d.opts.Cache.Fresh(path, src) {
		d.opts.Metrics.RecordFile(ctx, observability.FileStats{Outcome: observability.OutcomeCached})

		return report.FileResult{Path: path, Status: report.StatusCached, Bytes: len(src)}
	}

	result, err := d.Transform(ctx, path, src)
	if err != nil {
		return d.fail(ctx, path, len(src), start, err)
	}

	fr := report.FileResult{
		Path:     path,
		Status:   report.StatusUnchanged,
		Bytes:    len(src),
		Inserted: result.Inserted,
		Warnings: result.Warnings,
		Stats:    result.Stats,
	}

	if result.Changed {
		fr.Status = report.StatusChanged
	}

	if err = d.emit(path, src, result); err != nil {
		return d.fail(ctx, path, len(src), start, err)
	}

	d.remember(path, src, result)
	d.record(ctx, fr, start)

	d.opts.Logger.DebugContext(ctx, "file processed", "file", path, "status", fr.Status,
		"references", fr.Stats.ReferencesRewritten)

	return fr
}

// emit applies the mode to a processed file.
func (d *Driver) emit(path string, src []byte, result *codemod.Result) error {
	switch d.opts.Mode {
	case ModeWrite:
		if !result.Changed {
			return nil
		}

		perm := os.FileMode(0o644)
		if info, err := os.Stat(path); err == nil {
			perm = info.Mode().Perm()
		}

		if err := atomicfile.WriteFile(path, result.Output, perm); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	case ModeDiff:
		if !result.Changed {
			return nil
		}

		return d.write(func(w io.Writer) error {
			return difftext.Write(w, difftext.Unified(path, src, result.Output), d.opts.Color)
		})
	case ModeStdout:
		return d.write(func(w io.Writer) error {
			_, err := w.Write(result.Output)

			return err
		})
	case ModeCheck:
	}

	return nil
}

func (d *Driver) write(fn func(io.Writer) error) error {
	d.outMu.Lock()
	defer d.outMu.Unlock()

	if err := fn(d.opts.Out); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	return nil
}

// remember stores the rewritten form of a file in the cache once it is on
// disk.
func (d *Driver) remember(path string, src []byte, result *codemod.Result) {
	if d.opts.Cache == nil {
		return
	}

	switch {
	case !result.Changed:
		d.opts.Cache.Mark(path, src)
	case d.opts.Mode == ModeWrite:
		d.opts.Cache.Mark(path, result.Output)
	default:
		d.opts.Cache.Forget(path)
	}
}

func (d *Driver) fail(ctx context.Context, path string, size int, start time.Time, err error) report.FileResult {
	d.opts.Logger.WarnContext(ctx, "file skipped", "file", path, "error", err)

	if d.opts.Cache != nil {
		d.opts.Cache.Forget(path)
	}

	fr := report.FileResult{Path: path, Status: report.StatusFailed, Bytes: size, Error: err.Error()}
	d.record(ctx, fr, start)

	return fr
}

func (d *Driver) record(ctx context.Context, fr report.FileResult, start time.Time) {
	if d.opts.Metrics == nil {
		return
	}

	warnings := make(map[string]int, len(fr.Warnings))
	for _, w := range fr.Warnings {
		warnings[string(w.Kind)]++
	}

	outcome := observability.OutcomeUnchanged

	switch fr.Status {
	case report.StatusChanged:
		outcome = observability.OutcomeChanged
	case report.StatusFailed:
		outcome = observability.OutcomeFailed
	case report.StatusCached:
		outcome = observability.OutcomeCached
	case report.StatusUnchanged:
	}

	d.opts.Metrics.RecordFile(ctx, observability.FileStats{
		Outcome:          outcome,
		Duration:         time.Since(start),
		References:       fr.Stats.ReferencesRewritten,
		ImportsRemoved:   fr.Stats.ImportsRemoved,
		ImportsRewritten: fr.Stats.ImportsRewritten,
		ImportsInserted:  fr.Stats.ImportsInserted,
		Warnings:         warnings,
	})
}

// RunStdin rewrites the source read from r and writes the result to w. In
// check mode nothing is written; in diff mode the diff is written instead.
func (d *Driver) RunStdin(ctx context.Context, r io.Reader, w io.Writer) (*report.Summary, error) {
	start := time.Now()

	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: stdin: %w", ErrRead, err)
	}

	summary := &report.Summary{Check: d.opts.Mode == ModeCheck}

	result, err := d.Transform(ctx, stdinName, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run interrupted: %w", ctx.Err())
		}

		summary.Add(d.fail(ctx, stdinName, len(src), start, err))
		summary.Duration = time.Since(start)

		return summary, nil
	}

	switch d.opts.Mode {
	case ModeCheck:
	case ModeDiff:
		if result.Changed {
			err = difftext.Write(w, difftext.Unified(stdinName, src, result.Output), d.opts.Color)
		}
	case ModeWrite, ModeStdout:
		_, err = w.Write(result.Output)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: stdout: %w", ErrWrite, err)
	}

	fr := report.FileResult{
		Path:     stdinName,
		Status:   report.StatusUnchanged,
		Bytes:    len(src),
		Inserted: result.Inserted,
		Warnings: result.Warnings,
		Stats:    result.Stats,
	}

	if result.Changed {
		fr.Status = report.StatusChanged
	}

	d.record(ctx, fr, start)
	summary.Add(fr)
	summary.Duration = time.Since(start)

	return summary, nil
}
