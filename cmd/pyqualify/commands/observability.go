package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/Sumatoshi-tech/pyqualify/internal/observability"
	"github.com/Sumatoshi-tech/pyqualify/pkg/config"
	"github.com/Sumatoshi-tech/pyqualify/pkg/version"
)

var errNotServing = errors.New("not serving yet")

// telemetry bundles the providers and the optional diagnostics server of a
// command run.
type telemetry struct {
	*observability.Providers

	diagnostics *observability.DiagnosticsServer
	serving     atomic.Bool
}

// initTelemetry sets up tracing, metrics and logging for mode. A non-empty
// metricsAddr turns on the Prometheus reader and serves it together with the
// health endpoints; /readyz fails until markServing is called.
func initTelemetry(ctx context.Context, mode observability.AppMode, cfg *config.Config, metricsAddr string, debug bool) (*telemetry, error) {
	obsCfg := observability.ConfigFromEnv(mode, os.Getenv)
	obsCfg.ServiceVersion = version.Version
	obsCfg.LogLevel = cfg.LogLevel()
	obsCfg.LogJSON = cfg.Logging.Format == "json"
	obsCfg.Prometheus = metricsAddr != ""

	if debug {
		obsCfg.LogLevel = slog.LevelDebug
		obsCfg.Debug = true
	}

	providers, err := observability.Init(ctx, obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	tel := &telemetry{Providers: providers}

	if metricsAddr == "" {
		return tel, nil
	}

	probe := observability.Probe{Name: string(mode), Check: func(context.Context) error {
		if !tel.serving.Load() {
			return errNotServing
		}

		return nil
	}}

	tel.diagnostics, err = observability.NewDiagnosticsServer(metricsAddr, providers.MetricsHandler, providers.Logger, probe)
	if err != nil {
		tel.close()

		return nil, fmt.Errorf("start diagnostics server: %w", err)
	}

	providers.Logger.Info("diagnostics server listening", "addr", tel.diagnostics.Addr())

	return tel, nil
}

// markServing flips readiness once the long-running loop is up.
func (t *telemetry) markServing() {
	t.serving.Store(true)
}

// close stops the diagnostics server and flushes telemetry. Failures are
// logged, never returned: they must not change the exit code.
func (t *telemetry) close() {
	if t.diagnostics != nil {
		if err := t.diagnostics.Close(); err != nil {
			t.Logger.Warn("diagnostics server shutdown failed", "error", err)
		}
	}

	if err := t.Shutdown(context.Background()); err != nil {
		t.Logger.Warn("observability shutdown failed", "error", err)
	}
}
