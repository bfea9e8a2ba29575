package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const readHeaderTimeout = 5 * time.Second

// Probe is a named readiness check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type probeReport struct {
	Status  string   `json:"status"`
	Failing []string `json:"failing,omitempty"`
}

// DiagnosticsServer serves /healthz, /readyz and, when a metrics handler is
// given, /metrics for the long-running modes.
type DiagnosticsServer struct {
	server   *http.Server
	listener net.Listener
	probes   []Probe
	logger   *slog.Logger
}

// NewDiagnosticsServer listens on addr and serves in the background. A nil
// metrics handler leaves /metrics unregistered.
func NewDiagnosticsServer(addr string, metrics http.Handler, logger *slog.Logger, probes ...Probe) (*DiagnosticsServer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var lc net.ListenConfig

	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	d := &DiagnosticsServer{listener: listener, probes: probes, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.healthz)
	mux.HandleFunc("GET /readyz", d.readyz)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	d.server = &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go d.serve()

	return d, nil
}

func (d *DiagnosticsServer) serve() {
	err := d.server.Serve(d.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		d.logger.Warn("diagnostics server stopped", "error", err)
	}
}

func (d *DiagnosticsServer) healthz(rw http.ResponseWriter, _ *http.Request) {
	d.respond(rw, http.StatusOK, probeReport{Status: "ok"})
}

func (d *DiagnosticsServer) readyz(rw http.ResponseWriter, req *http.Request) {
	report := probeReport{Status: "ok"}

	for _, probe := range d.probes {
		if err := probe.Check(req.Context()); err != nil {
			report.Failing = append(report.Failing, probe.Name)
		}
	}

	code := http.StatusOK
	if len(report.Failing) > 0 {
		report.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	d.respond(rw, code, report)
}

func (d *DiagnosticsServer) respond(rw http.ResponseWriter, code int, report probeReport) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	if err := json.NewEncoder(rw).Encode(report); err != nil {
		d.logger.Debug("diagnostics response not delivered", "error", err)
	}
}

// Addr returns the listening address.
func (d *DiagnosticsServer) Addr() string {
	return d.listener.Addr().String()
}

// Close shuts the server down, waiting for in-flight requests.
func (d *DiagnosticsServer) Close() error {
	if err := d.server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("shutdown diagnostics server: %w", err)
	}

	return nil
}
