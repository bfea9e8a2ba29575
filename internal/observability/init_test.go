package observability_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pyqualify/internal/observability"
)

func envOf(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestConfigFromEnv(t *testing.T) {
	t.Parallel()

	cfg := observability.ConfigFromEnv(observability.ModeWatch, envOf(map[string]string{
		observability.EnvOTLPEndpoint: "collector:4317",
		observability.EnvOTLPHeaders:  " api-key = abc ,garbage, team=py",
		observability.EnvOTLPInsecure: "true",
		observability.EnvSampler:      " ParentBased_TraceIDRatio",
		observability.EnvSamplerArg:   "0.25",
		observability.EnvEnvironment:  "ci",
	}))

	assert.Equal(t, observability.ModeWatch, cfg.Mode)
	assert.Equal(t, "pyqualify", cfg.ServiceName)
	assert.Equal(t, "ci", cfg.Environment)
	assert.Equal(t, observability.OTLPConfig{
		Endpoint: "collector:4317",
		Headers:  map[string]string{"api-key": "abc", "team": "py"},
		Insecure: true,
	}, cfg.OTLP)
	assert.Equal(t, "parentbased_traceidratio", cfg.Sampler)
	assert.Equal(t, "0.25", cfg.SamplerArg)
}

func TestConfigFromEnv_Empty(t *testing.T) {
	t.Parallel()

	cfg := observability.ConfigFromEnv(observability.ModeCLI, envOf(nil))

	assert.Empty(t, cfg.OTLP.Endpoint)
	assert.Nil(t, cfg.OTLP.Headers)
	assert.False(t, cfg.OTLP.Insecure)
	assert.Empty(t, cfg.Sampler)
}

func TestInit_NoopWhenNothingConfigured(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer

	cfg := observability.ConfigFromEnv(observability.ModeCLI, envOf(nil))
	cfg.LogOutput = &logs

	providers, err := observability.Init(context.Background(), cfg)
	require.NoError(t, err)

	assert.Nil(t, providers.MetricsHandler)

	_, span := providers.Tracer.Start(context.Background(), "probe")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	providers.Logger.Info("hello")
	assert.Contains(t, logs.String(), "service=pyqualify")
	assert.Contains(t, logs.String(), "mode=cli")

	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_PrometheusServesRewriteMetrics(t *testing.T) {
	t.Parallel()

	for range 2 {
		cfg := observability.ConfigFromEnv(observability.ModeWatch, envOf(nil))
		cfg.Prometheus = true
		cfg.LogOutput = &bytes.Buffer{}

		providers, err := observability.Init(context.Background(), cfg)
		require.NoError(t, err)
		require.NotNil(t, providers.MetricsHandler)

		t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

		rw, err := observability.NewRewriteMetrics(providers.Meter)
		require.NoError(t, err)

		rw.RecordFile(context.Background(), observability.FileStats{Outcome: observability.OutcomeChanged, References: 3})

		rec := httptest.NewRecorder()
		providers.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "pyqualify_rewrite_references_total")
		assert.Contains(t, rec.Body.String(), "target_info")
	}
}
