package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesTotal      = "pyqualify.rewrite.files.total"
	metricFileDuration    = "pyqualify.rewrite.file.duration.seconds"
	metricReferencesTotal = "pyqualify.rewrite.references.total"
	metricImportsTotal    = "pyqualify.rewrite.imports.total"
	metricWarningsTotal   = "pyqualify.rewrite.warnings.total"
	metricCacheHitsTotal  = "pyqualify.rewrite.cache.hits.total"

	attrOutcome = "outcome"
	attrAction  = "action"
	attrKind    = "kind"
)

// File outcomes.
const (
	OutcomeChanged   = "changed"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
	OutcomeCached    = "cached"
)

var fileBucketBoundaries = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// RewriteMetrics holds the per-file rewrite instruments.
type RewriteMetrics struct {
	filesTotal      metric.Int64Counter
	fileDuration    metric.Float64Histogram
	referencesTotal metric.Int64Counter
	importsTotal    metric.Int64Counter
	warningsTotal   metric.Int64Counter
	cacheHits       metric.Int64Counter
}

// FileStats describes one processed file, decoupled from the codemod types.
type FileStats struct {
	Outcome          string
	Duration         time.Duration
	References       int
	ImportsRemoved   int
	ImportsRewritten int
	ImportsInserted  int
	// Warnings counts warnings by kind.
	Warnings map[string]int
}

// NewRewriteMetrics creates the per-file instruments on mt.
func NewRewriteMetrics(mt metric.Meter) (*RewriteMetrics, error) {
	var rw RewriteMetrics

	counters := []struct {
		dst              *metric.Int64Counter
		name, desc, unit string
	}{
		{&rw.filesTotal, metricFilesTotal, "Files processed by outcome", "{file}"},
		{&rw.referencesTotal, metricReferencesTotal, "Name references qualified", "{reference}"},
		{&rw.importsTotal, metricImportsTotal, "Import statements touched by action", "{import}"},
		{&rw.warningsTotal, metricWarningsTotal, "Warnings raised by kind", "{warning}"},
		{&rw.cacheHits, metricCacheHitsTotal, "Files skipped through the run cache", "{file}"},
	}

	var errs []error

	for _, c := range counters {
		counter, err := mt.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		*c.dst = counter
		errs = append(errs, err)
	}

	hist, err := mt.Float64Histogram(metricFileDuration,
		metric.WithDescription("Per-file rewrite duration in seconds"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(fileBucketBoundaries...))
	rw.fileDuration = hist

	if err = errors.Join(append(errs, err)...); err != nil {
		return nil, fmt.Errorf("create rewrite metrics: %w", err)
	}

	return &rw, nil
}

// RecordFile records one processed file. Safe to call on a nil receiver.
func (rw *RewriteMetrics) RecordFile(ctx context.Context, stats FileStats) {
	if rw == nil {
		return
	}

	rw.filesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, stats.Outcome)))

	if stats.Outcome == OutcomeCached {
		rw.cacheHits.Add(ctx, 1)

		return
	}

	rw.fileDuration.Record(ctx, stats.Duration.Seconds())
	rw.referencesTotal.Add(ctx, int64(stats.References))

	for action, n := range map[string]int{
		"removed":   stats.ImportsRemoved,
		"rewritten": stats.ImportsRewritten,
		"inserted":  stats.ImportsInserted,
	} {
		if n > 0 {
			rw.importsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrAction, action)))
		}
	}

	for kind, n := range stats.Warnings {
		rw.warningsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrKind, kind)))
	}
}
