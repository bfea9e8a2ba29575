// Package mcp implements a Model Context Protocol server exposing the
// qualify rewrite as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/pyqualify/internal/observability"
	"github.com/Sumatoshi-tech/pyqualify/pkg/config"
)

const serverName = "pyqualify"

// ServerDeps configures NewServer. Every field is optional.
type ServerDeps struct {
	// Config supplies the rewrite defaults tool calls start from. Nil uses
	// config.Default().
	Config *config.Config

	// Version is reported as the server implementation version.
	Version string

	Logger  *slog.Logger
	Metrics *observability.REDMetrics
	// Rewrite receives per-file metrics from the check tool.
	Rewrite *observability.RewriteMetrics
	Tracer  trace.Tracer
}

// Server exposes the rewrite as MCP tools.
type Server struct {
	inner    *mcpsdk.Server
	tools    []string
	metrics  *observability.REDMetrics
	tracer   trace.Tracer
	handlers *handlers
}

// NewServer creates a server with every tool registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{Logger: deps.Logger}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	cfg := config.Default()
	if deps.Config != nil {
		cfg = *deps.Config
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(serverName)
	}

	srv := &Server{
		inner:    mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version}, opts),
		metrics:  deps.Metrics,
		tracer:   tracer,
		handlers: &handlers{cfg: cfg, logger: deps.Logger, rewrite: deps.Rewrite, tracer: tracer},
	}

	addTool(srv, ToolNameTransform, transformToolDescription, srv.handlers.transform)
	addTool(srv, ToolNameCheck, checkToolDescription, srv.handlers.check)

	return srv
}

// ListToolNames returns the registered tool names, sorted.
func (s *Server) ListToolNames() []string {
	return slices.Sorted(slices.Values(s.tools))
}

// Run serves on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport serves on transport.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	if err := s.inner.Run(ctx, transport); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func addTool[In any](
	s *Server,
	name, description string,
	handler func(context.Context, *mcpsdk.CallToolRequest, In) (*mcpsdk.CallToolResult, ToolOutput, error),
) {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{Name: name, Description: description}, observe(s, name, handler))
	s.tools = append(s.tools, name)
}

const mcpSpanPrefix = "mcp."

// observe runs a tool call inside a server span and records it in the RED
// metrics. A failed call is one that returns an error or an error result.
// When the span is sampled its trace id is appended to the result content.
func observe[In any](
	s *Server,
	name string,
	handler func(context.Context, *mcpsdk.CallToolRequest, In) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, In) (*mcpsdk.CallToolResult, ToolOutput, error) {
	op := mcpSpanPrefix + name

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		done := s.metrics.TrackInflight(ctx, op)
		defer done()

		ctx, span := s.tracer.Start(ctx, op,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", name)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		status := observability.StatusOK
		if err != nil || (result != nil && result.IsError) {
			status = observability.StatusError
			span.SetStatus(codes.Error, "tool call failed")
		}

		if sc := span.SpanContext(); sc.IsSampled() && result != nil {
			result.Content = append(result.Content, &mcpsdk.TextContent{Text: "trace_id=" + sc.TraceID().String()})
		}

		s.metrics.RecordRequest(ctx, op, status, time.Since(start))

		return result, output, err
	}
}

const (
	transformToolDescription = "Rewrite Python source so every name imported from the typing module " +
		"(or another configured module) is referenced through a single qualified alias, " +
		"e.g. `from typing import Any` becomes `import typing as t` and `Any` becomes `t.Any`. " +
		"Accepts inline code and returns the rewritten code with warnings and counts."

	checkToolDescription = "Report which Python files under the given absolute paths would be changed " +
		"by the typing qualification rewrite. Files are not modified."
)
