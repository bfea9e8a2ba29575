// Package lsp provides a Language Server Protocol server that reports
// imports the qualify rewrite would change and applies the rewrite as a
// formatting edit or a fix-all code action.
package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/pyqualify/internal/observability"
	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod"
	"github.com/Sumatoshi-tech/pyqualify/pkg/config"
	"github.com/Sumatoshi-tech/pyqualify/pkg/driver"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

const (
	serverName       = "pyqualify"
	diagnosticSource = "pyqualify"

	// CodeActionKindFixAll applies the whole rewrite to a document.
	CodeActionKindFixAll protocol.CodeActionKind = "source.fixAll.pyqualify"

	fixAllTitle = "Qualify typing imports"
	opPrefix    = "lsp."
)

// ServerDeps holds injectable dependencies for the LSP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Config supplies the rewrite settings. Nil uses config.Default().
	Config *config.Config

	// Version is reported in the initialize response.
	Version string

	// Logger is an optional structured logger. Nil discards.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-request spans.
	Tracer trace.Tracer
}

// Server implements the LSP server.
type Server struct {
	store   *DocumentStore
	handler protocol.Handler
	driver  *driver.Driver
	logger  *slog.Logger
	metrics *observability.REDMetrics
	tracer  trace.Tracer
	version string
}

// NewServer creates a new LSP server. It fails when the configured rewrite
// options are invalid.
func NewServer(deps ServerDeps) (*Server, error) {
	cfg := config.Default()
	if deps.Config != nil {
		cfg = *deps.Config
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(serverName)
	}

	d, err := driver.New(driver.Options{
		Qualify:               cfg.QualifyOptions(),
		BlankLineAfterImports: cfg.BlankLineAfterImports,
		Mode:                  driver.ModeStdout,
		Logger:                logger,
		Tracer:                tracer,
	})
	if err != nil {
		return nil, err
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	srv := &Server{
		store:   NewDocumentStore(),
		driver:  d,
		logger:  logger,
		metrics: deps.Metrics,
		tracer:  tracer,
		version: version,
	}

	srv.handler = protocol.Handler{
		Initialize:             srv.initialize,
		Initialized:            srv.initialized,
		Shutdown:               srv.shutdown,
		SetTrace:               srv.setTrace,
		TextDocumentDidOpen:    srv.didOpen,
		TextDocumentDidChange:  srv.didChange,
		TextDocumentDidSave:    srv.didSave,
		TextDocumentDidClose:   srv.didClose,
		TextDocumentFormatting: srv.formatting,
		TextDocumentCodeAction: srv.codeAction,
	}

	return srv, nil
}

// Run starts the LSP server on stdio and blocks until the client exits.
func (srv *Server) Run() error {
	lspServer := server.NewServer(&srv.handler, serverName, false)

	if err := lspServer.RunStdio(); err != nil {
		return fmt.Errorf("lsp server: %w", err)
	}

	return nil
}

func (srv *Server) initialize(_ *glsp.Context, _ *protocol.InitializeParams) (any, error) {
	capabilities := srv.handler.CreateServerCapabilities()

	// Whole-document sync keeps the store trivially consistent.
	if sync, ok := capabilities.TextDocumentSync.(*protocol.TextDocumentSyncOptions); ok {
		full := protocol.TextDocumentSyncKindFull
		sync.Change = &full
	}

	capabilities.CodeActionProvider = protocol.CodeActionOptions{
		CodeActionKinds: []protocol.CodeActionKind{CodeActionKindFixAll, protocol.CodeActionKindQuickFix},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &srv.version,
		},
	}, nil
}

func (srv *Server) initialized(_ *glsp.Context, _ *protocol.InitializedParams) error {
	return nil
}

func (srv *Server) shutdown(_ *glsp.Context) error {
	protocol.SetTraceValue(protocol.TraceValueOff)

	return nil
}

func (srv *Server) setTrace(_ *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)

	return nil
}

func (srv *Server) didOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI

	srv.store.Set(uri, params.TextDocument.Text)
	srv.publishDiagnostics(ctx, uri)

	return nil
}

func (srv *Server) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	if len(params.ContentChanges) > 0 {
		srv.store.Apply(uri, params.ContentChanges)
		srv.publishDiagnostics(ctx, uri)
	}

	return nil
}

func (srv *Server) didSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	uri := params.TextDocument.URI

	if params.Text != nil {
		srv.store.Set(uri, *params.Text)
	}

	if _, ok := srv.store.Get(uri); ok {
		srv.publishDiagnostics(ctx, uri)
	}

	return nil
}

func (srv *Server) didClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	srv.store.Delete(uri)

	// Clear what was published for the closed document.
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})

	return nil
}

// formatting returns one edit replacing the whole document, or none when
// the document is already qualified or does not parse.
func (srv *Server) formatting(_ *glsp.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	ctx, finish := srv.begin("formatting", params.TextDocument.URI)

	edits, err := srv.wholeDocumentEdit(ctx, params.TextDocument.URI)
	finish(err)

	return edits, err
}

func (srv *Server) codeAction(_ *glsp.Context, params *protocol.CodeActionParams) (any, error) {
	if !wantsFixAll(params.Context.Only) {
		return []protocol.CodeAction{}, nil
	}

	ctx, finish := srv.begin("codeAction", params.TextDocument.URI)

	edits, err := srv.wholeDocumentEdit(ctx, params.TextDocument.URI)
	finish(err)

	if err != nil || len(edits) == 0 {
		return []protocol.CodeAction{}, err
	}

	kind := CodeActionKindFixAll
	preferred := true

	var related []protocol.Diagnostic

	for _, d := range params.Context.Diagnostics {
		if d.Source != nil && *d.Source == diagnosticSource {
			related = append(related, d)
		}
	}

	return []protocol.CodeAction{{
		Title:       fixAllTitle,
		Kind:        &kind,
		Diagnostics: related,
		IsPreferred: &preferred,
		Edit: &protocol.WorkspaceEdit{
			Changes: map[protocol.DocumentUri][]protocol.TextEdit{params.TextDocument.URI: edits},
		},
	}}, nil
}

// wantsFixAll reports whether a code action request's kind filter admits
// the fix-all action. An empty filter admits everything.
func wantsFixAll(only []protocol.CodeActionKind) bool {
	if len(only) == 0 {
		return true
	}

	for _, kind := range only {
		switch kind {
		case CodeActionKindFixAll, protocol.CodeActionKindSource, protocol.CodeActionKindQuickFix, "source.fixAll":
			return true
		}
	}

	return false
}

func (srv *Server) wholeDocumentEdit(ctx context.Context, uri string) ([]protocol.TextEdit, error) {
	text, ok := srv.store.Get(uri)
	if !ok {
		return nil, nil
	}

	result, err := srv.driver.Transform(ctx, filenameOf(uri), []byte(text))
	if err != nil {
		var parseErr *pysyntax.ParseError
		if errors.As(err, &parseErr) {
			return nil, nil
		}

		return nil, err
	}

	if !result.Changed {
		return []protocol.TextEdit{}, nil
	}

	return []protocol.TextEdit{{
		Range:   protocol.Range{Start: protocol.Position{}, End: endPosition(text)},
		NewText: string(result.Output),
	}}, nil
}

func (srv *Server) publishDiagnostics(ctx *glsp.Context, uri string) {
	reqCtx, finish := srv.begin("diagnostics", uri)

	diagnostics, err := srv.diagnose(reqCtx, uri)
	finish(err)

	if err != nil {
		srv.logger.Warn("diagnostics failed", "uri", uri, "error", err)

		return
	}

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose reports one information diagnostic per import statement the
// rewrite would change, a hint per advisory, and an error for a document
// that does not parse.
func (srv *Server) diagnose(ctx context.Context, uri string) ([]protocol.Diagnostic, error) {
	text, ok := srv.store.Get(uri)
	if !ok {
		return []protocol.Diagnostic{}, nil
	}

	result, err := srv.driver.Transform(ctx, filenameOf(uri), []byte(text))
	if err != nil {
		var parseErr *pysyntax.ParseError
		if !errors.As(err, &parseErr) {
			return nil, err
		}

		start := position(text, parseErr.Line, parseErr.Column)

		return []protocol.Diagnostic{
			diagnostic(protocol.Range{Start: start, End: start}, protocol.DiagnosticSeverityError, parseErr.Error()),
		}, nil
	}

	diagnostics := make([]protocol.Diagnostic, 0, len(result.Edits)+len(result.Warnings))

	if result.Changed {
		for _, e := range result.Edits {
			rng := protocol.Range{
				Start: position(text, e.Line, e.Column),
				End:   position(text, e.EndLine, e.EndColumn),
			}

			diagnostics = append(diagnostics, diagnostic(rng, protocol.DiagnosticSeverityInformation, e.Message))
		}
	}

	for _, w := range result.Warnings {
		if w.Severity == codemod.SeverityDebug {
			continue
		}

		start := position(text, w.Line, w.Column)
		diagnostics = append(diagnostics,
			diagnostic(protocol.Range{Start: start, End: start}, protocol.DiagnosticSeverityHint, w.Message))
	}

	return diagnostics, nil
}

func diagnostic(rng protocol.Range, severity protocol.DiagnosticSeverity, message string) protocol.Diagnostic {
	source := diagnosticSource

	return protocol.Diagnostic{
		Range:    rng,
		Severity: &severity,
		Source:   &source,
		Message:  message,
	}
}

// begin opens a span and in-flight gauge for one request; the returned
// func records its outcome.
func (srv *Server) begin(op, uri string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := srv.tracer.Start(context.Background(), opPrefix+op,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("lsp.uri", uri)))
	done := srv.metrics.TrackInflight(ctx, opPrefix+op)

	return ctx, func(err error) {
		done()

		status := observability.StatusOf(err)
		if err != nil {
			span.RecordError(err)
		}

		srv.metrics.RecordRequest(ctx, opPrefix+op, status, time.Since(start))
		span.End()
	}
}

// filenameOf turns a file URI into a path for warnings. Other URIs are used
// verbatim.
func filenameOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}

	return u.Path
}
