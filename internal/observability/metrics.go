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
	metricRequestsTotal    = "pyqualify.requests.total"
	metricRequestDuration  = "pyqualify.request.duration.seconds"
	metricErrorsTotal      = "pyqualify.errors.total"
	metricInflightRequests = "pyqualify.inflight.requests"

	attrOp     = "op"
	attrStatus = "status"

	// StatusOK marks a request that completed.
	StatusOK = "ok"
	// StatusError marks a request that failed.
	StatusError = "error"
)

// requestBucketBoundaries covers a single in-editor formatting call up to a
// rewrite of a large monorepo.
var requestBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// REDMetrics holds the Rate, Error, Duration instruments for the request
// surfaces (MCP tools, LSP requests, CLI runs).
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

// NewREDMetrics creates the request instruments on mt.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	var (
		rm   REDMetrics
		errs [4]error
	)

	rm.requestsTotal, errs[0] = mt.Int64Counter(metricRequestsTotal,
		metric.WithDescription("Requests handled"), metric.WithUnit("{request}"))
	rm.requestDuration, errs[1] = mt.Float64Histogram(metricRequestDuration,
		metric.WithDescription("Request duration in seconds"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(requestBucketBoundaries...))
	rm.errorsTotal, errs[2] = mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Requests that failed"), metric.WithUnit("{error}"))
	rm.inflightRequests, errs[3] = mt.Int64UpDownCounter(metricInflightRequests,
		metric.WithDescription("Requests in progress"), metric.WithUnit("{request}"))

	if err := errors.Join(errs[:]...); err != nil {
		return nil, fmt.Errorf("create request metrics: %w", err)
	}

	return &rm, nil
}

// RecordRequest records a completed request. A nil receiver records nothing.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	if rm == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requestsTotal.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOp, op)))
	}
}

// TrackInflight increments the in-flight gauge and returns a function to
// decrement it.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	if rm == nil {
		return func() {}
	}

	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflightRequests.Add(ctx, 1, attrs)

	return func() {
		rm.inflightRequests.Add(ctx, -1, attrs)
	}
}

// StatusOf maps an error to a request status.
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}

	return StatusOK
}
