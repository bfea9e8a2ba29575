// Package observability wires OpenTelemetry tracing and metrics and the slog
// logger shared by every pyqualify mode.
package observability

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// AppMode identifies how the binary was launched.
type AppMode string

// Modes.
const (
	ModeCLI   AppMode = "cli"
	ModeMCP   AppMode = "mcp"
	ModeLSP   AppMode = "lsp"
	ModeWatch AppMode = "watch"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPHeaders  = "OTEL_EXPORTER_OTLP_HEADERS"
	EnvOTLPInsecure = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvSampler      = "OTEL_TRACES_SAMPLER"
	EnvSamplerArg   = "OTEL_TRACES_SAMPLER_ARG"
	EnvEnvironment  = "PYQUALIFY_ENVIRONMENT"
)

const (
	defaultService  = "pyqualify"
	defaultShutdown = 5 * time.Second
)

// OTLPConfig addresses an OTLP gRPC collector. An empty Endpoint disables
// export.
type OTLPConfig struct {
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// Config drives Init.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Environment is the deployment environment, e.g. "ci".
	Environment string
	Mode        AppMode

	OTLP OTLPConfig

	// Sampler and SamplerArg follow the OTEL_TRACES_SAMPLER conventions.
	Sampler    string
	SamplerArg string

	// Debug samples every trace and keeps the per-file spans.
	Debug bool

	LogLevel  slog.Level
	LogJSON   bool
	LogOutput io.Writer

	// Prometheus adds a scrape reader, served through Providers.MetricsHandler.
	Prometheus bool

	ShutdownTimeout time.Duration
}

// ConfigFromEnv builds a Config for mode from the OTEL_* variables, looked up
// through getenv.
func ConfigFromEnv(mode AppMode, getenv func(string) string) Config {
	insecure, _ := strconv.ParseBool(getenv(EnvOTLPInsecure)) //nolint:errcheck // anything unparsable means TLS.

	return Config{
		ServiceName: defaultService,
		Environment: getenv(EnvEnvironment),
		Mode:        mode,
		OTLP: OTLPConfig{
			Endpoint: getenv(EnvOTLPEndpoint),
			Headers:  parseHeaders(getenv(EnvOTLPHeaders)),
			Insecure: insecure,
		},
		Sampler:         strings.ToLower(strings.TrimSpace(getenv(EnvSampler))),
		SamplerArg:      getenv(EnvSamplerArg),
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdown,
	}
}

// parseHeaders reads "k1=v1,k2=v2". Pairs without "=" are ignored.
func parseHeaders(raw string) map[string]string {
	var headers map[string]string

	for pair := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}

		if headers == nil {
			headers = make(map[string]string)
		}

		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return headers
}
