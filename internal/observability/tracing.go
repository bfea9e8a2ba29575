package observability

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// SpanFile is the per-file span started by the codemod runner. Outside debug
// mode it is never exported, so a run over a large tree costs one span.
const SpanFile = "pyqualify.file"

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource, p *Providers) (trace.TracerProvider, error) {
	if cfg.OTLP.Endpoint == "" {
		return nooptrace.NewTracerProvider(), nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLP.Endpoint)}

	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(cfg.OTLP.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.OTLP.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)

	p.shutdowns = append(p.shutdowns, tp.Shutdown)

	return tp, nil
}

// namedSamplers maps OTEL_TRACES_SAMPLER values to samplers.
var namedSamplers = map[string]func(ratio float64) sdktrace.Sampler{
	"always_on":    func(float64) sdktrace.Sampler { return sdktrace.AlwaysSample() },
	"always_off":   func(float64) sdktrace.Sampler { return sdktrace.NeverSample() },
	"traceidratio": sdktrace.TraceIDRatioBased,
	"parentbased_always_on": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	},
	"parentbased_always_off": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.NeverSample())
	},
	"parentbased_traceidratio": func(ratio float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	},
}

func (c Config) sampler() sdktrace.Sampler {
	if c.Debug {
		return sdktrace.AlwaysSample()
	}

	base := sdktrace.ParentBased(sdktrace.AlwaysSample())

	if build, ok := namedSamplers[c.Sampler]; ok {
		base = build(samplerRatio(c.SamplerArg))
	}

	return DropFileSpans(base)
}

func samplerRatio(arg string) float64 {
	ratio, err := strconv.ParseFloat(arg, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return 1
	}

	return ratio
}

// DropFileSpans wraps base so that SpanFile spans are never recorded.
func DropFileSpans(base sdktrace.Sampler) sdktrace.Sampler {
	return fileSpanSampler{base: base}
}

type fileSpanSampler struct {
	base sdktrace.Sampler
}

func (s fileSpanSampler) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if params.Name == SpanFile {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.Drop,
			Tracestate: trace.SpanContextFromContext(params.ParentContext).TraceState(),
		}
	}

	return s.base.ShouldSample(params)
}

func (s fileSpanSampler) Description() string {
	return "DropFileSpans{" + s.base.Description() + "}"
}
