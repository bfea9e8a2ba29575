package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/pyqualify/internal/observability"
	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod"
	"github.com/Sumatoshi-tech/pyqualify/pkg/config"
	"github.com/Sumatoshi-tech/pyqualify/pkg/driver"
	"github.com/Sumatoshi-tech/pyqualify/pkg/report"
)

// Tool name constants.
const (
	ToolNameTransform = "pyqualify_transform"
	ToolNameCheck     = "pyqualify_check"
)

// MaxCodeInputBytes is the maximum allowed size for inline code input (1 MB).
const MaxCodeInputBytes = 1 << 20

const inlineFilename = "<mcp>"

// Sentinel errors for tool input validation.
var (
	// ErrEmptyCode indicates the code parameter is empty.
	ErrEmptyCode = errors.New("code parameter is required and must not be empty")
	// ErrCodeTooLarge indicates the code input exceeds the size limit.
	ErrCodeTooLarge = errors.New("code input exceeds maximum size")
	// ErrNoPaths indicates the paths parameter is empty.
	ErrNoPaths = errors.New("paths parameter is required and must not be empty")
	// ErrPathNotAbsolute indicates a relative path was given.
	ErrPathNotAbsolute = errors.New("paths must be absolute")
)

// rewriteOptions override the configured rewrite settings for one call.
type rewriteOptions struct {
	module, alias, match string
	blankLine            *bool
}

// TransformInput is the input schema for the pyqualify_transform tool.
type TransformInput struct {
	Alias                 string `json:"alias,omitempty"                    jsonschema:"alias the module is imported as (default: t)"`
	BlankLineAfterImports *bool  `json:"blank_line_after_imports,omitempty" jsonschema:"keep a blank line after an inserted import"`
	Code                  string `json:"code"                               jsonschema:"python source code to rewrite"`
	Filename              string `json:"filename,omitempty"                 jsonschema:"optional file name used in warnings"`
	Match                 string `json:"match,omitempty"                    jsonschema:"reference matching: scope or spelling (default: scope)"`
	Module                string `json:"module,omitempty"                   jsonschema:"module whose names are qualified (default: typing)"`
}

// CheckInput is the input schema for the pyqualify_check tool.
type CheckInput struct {
	Alias                 string   `json:"alias,omitempty"                    jsonschema:"alias the module is imported as (default: t)"`
	BlankLineAfterImports *bool    `json:"blank_line_after_imports,omitempty" jsonschema:"keep a blank line after an inserted import"`
	Match                 string   `json:"match,omitempty"                    jsonschema:"reference matching: scope or spelling (default: scope)"`
	Module                string   `json:"module,omitempty"                   jsonschema:"module whose names are qualified (default: typing)"`
	Paths                 []string `json:"paths"                              jsonschema:"absolute paths of python files or directories"`
}

// TransformResult is the structured result of pyqualify_transform.
type TransformResult struct {
	Output   string            `json:"output"`
	Changed  bool              `json:"changed"`
	Inserted []string          `json:"inserted,omitempty"`
	Warnings []codemod.Warning `json:"warnings,omitempty"`
	Stats    codemod.Stats     `json:"stats"`
}

// CheckFailure names a file that could not be processed.
type CheckFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// CheckResult is the structured result of pyqualify_check.
type CheckResult struct {
	Files       int            `json:"files"`
	WouldChange []string       `json:"would_change"`
	Failed      []CheckFailure `json:"failed,omitempty"`
	Totals      codemod.Stats  `json:"totals"`
}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

type handlers struct {
	cfg     config.Config
	logger  *slog.Logger
	rewrite *observability.RewriteMetrics
	tracer  trace.Tracer
}

// driverFor builds a driver from the configured defaults and the per-call
// overrides.
func (h *handlers) driverFor(ro rewriteOptions, mode driver.Mode) (*driver.Driver, error) {
	cfg := h.cfg

	if ro.module != "" {
		cfg.Module = ro.module
	}

	if ro.alias != "" {
		cfg.Alias = ro.alias
	}

	if ro.match != "" {
		cfg.Match = ro.match
	}

	if ro.blankLine != nil {
		cfg.BlankLineAfterImports = *ro.blankLine
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return driver.New(driver.Options{
		Qualify:               cfg.QualifyOptions(),
		BlankLineAfterImports: cfg.BlankLineAfterImports,
		Mode:                  mode,
		Jobs:                  cfg.Workers(),
		Exclude:               cfg.Exclude,
		IncludeStubs:          cfg.IncludeStubs,
		Logger:                h.logger,
		Tracer:                h.tracer,
		Metrics:               h.rewrite,
	})
}

func (h *handlers) transform(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input TransformInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.Code == "" {
		return errorResult(ErrEmptyCode)
	}

	if len(input.Code) > MaxCodeInputBytes {
		return errorResult(fmt.Errorf("%w: %d bytes (max %d)", ErrCodeTooLarge, len(input.Code), MaxCodeInputBytes))
	}

	d, err := h.driverFor(rewriteOptions{input.Module, input.Alias, input.Match, input.BlankLineAfterImports}, driver.ModeStdout)
	if err != nil {
		return errorResult(err)
	}

	filename := input.Filename
	if filename == "" {
		filename = inlineFilename
	}

	result, err := d.Transform(ctx, filename, []byte(input.Code))
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(TransformResult{
		Output:   string(result.Output),
		Changed:  result.Changed,
		Inserted: result.Inserted,
		Warnings: result.Warnings,
		Stats:    result.Stats,
	})
}

func (h *handlers) check(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input CheckInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if len(input.Paths) == 0 {
		return errorResult(ErrNoPaths)
	}

	for _, path := range input.Paths {
		if !filepath.IsAbs(path) {
			return errorResult(fmt.Errorf("%w: %s", ErrPathNotAbsolute, path))
		}
	}

	d, err := h.driverFor(rewriteOptions{input.Module, input.Alias, input.Match, input.BlankLineAfterImports}, driver.ModeCheck)
	if err != nil {
		return errorResult(err)
	}

	summary, err := d.Run(ctx, input.Paths)
	if err != nil {
		return errorResult(err)
	}

	out := CheckResult{Files: len(summary.Files), WouldChange: []string{}, Totals: summary.Totals}

	for _, fr := range summary.Files {
		switch {
		case fr.Error != "":
			out.Failed = append(out.Failed, CheckFailure{Path: fr.Path, Error: fr.Error})
		case fr.Status == report.StatusChanged:
			out.WouldChange = append(out.WouldChange, fr.Path)
		}
	}

	return jsonResult(out)
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
