package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer and meter of every pyqualify component.
const TracerName = "pyqualify"

// Providers are the initialized telemetry handles of one process.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// MetricsHandler serves the Prometheus registry; nil unless
	// Config.Prometheus is set.
	MetricsHandler http.Handler

	shutdowns []func(context.Context) error
	timeout   time.Duration
}

// Shutdown flushes pending spans and metrics, bounded by the configured
// timeout.
func (p *Providers) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var errs []error

	for _, shutdown := range p.shutdowns {
		errs = append(errs, shutdown(ctx))
	}

	return errors.Join(errs...)
}

// Init builds the tracer, meter and logger described by cfg and installs
// them as the otel globals. Without an OTLP endpoint or Prometheus the
// tracer and meter are no-ops.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultService
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdown
	}

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	providers := &Providers{timeout: cfg.ShutdownTimeout}

	tp, err := newTracerProvider(ctx, cfg, res, providers)
	if err != nil {
		return nil, err
	}

	mp, err := newMeterProvider(ctx, cfg, res, providers)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(ctx))
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	providers.Tracer = tp.Tracer(TracerName)
	providers.Meter = mp.Meter(TracerName)
	providers.Logger = newLogger(cfg)

	return providers, nil
}

func resourceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	if cfg.Mode != "" {
		attrs = append(attrs, attribute.String("app.mode", string(cfg.Mode)))
	}

	return attrs
}

func newLogger(cfg Config) *slog.Logger {
	out := cfg.LogOutput
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(NewLogHandler(handler, Identity{
		Service:     cfg.ServiceName,
		Version:     cfg.ServiceVersion,
		Environment: cfg.Environment,
		Mode:        cfg.Mode,
	}))
}
