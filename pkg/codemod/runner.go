package codemod

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/pyqualify/pkg/importinject"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pyscope"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

// Transform is a rewrite driven by a Runner. Implementations keep their
// state per file: the runner calls Setup once before any traversal.
type Transform interface {
	// Setup prepares per-file state and files import requests.
	Setup(ctx *Context)
	// Visit sees every live node during the scanning pass. Returning false
	// skips the node's children.
	Visit(ctx *Context, node *pysyntax.Node) bool
	// Leave sees every node post-order during the rewriting pass and may
	// replace or delete it through the cursor.
	Leave(ctx *Context, cur *pysyntax.Cursor)
	// Finish runs after the rewriting pass, before imports are injected.
	Finish(ctx *Context)
}

// Factory builds a fresh Transform for one file.
type Factory func() Transform

// State is the runner's position in the per-file lifecycle.
type State int

// Runner states.
const (
	StateIdle State = iota
	StateScanning
	StateRewriting
	StateDone
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateScanning:  "scanning",
	StateRewriting: "rewriting",
	StateDone:      "done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return "unknown"
}

// Result is the outcome of running a transform over one file.
type Result struct {
	Filename string    `json:"filename"           yaml:"filename"`
	Output   []byte    `json:"-"                  yaml:"-"`
	Changed  bool      `json:"changed"            yaml:"changed"`
	Inserted []string  `json:"inserted,omitempty" yaml:"inserted,omitempty"`
	Warnings []Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Edits    []Edit    `json:"edits,omitempty"    yaml:"edits,omitempty"`
	Stats    Stats     `json:"stats"              yaml:"stats"`
}

// Options configure a Runner.
type Options struct {
	// BlankLineAfterImports is passed to the import injector.
	BlankLineAfterImports bool

	// Logger receives per-file debug records and warnings.
	// When nil, a discard logger is used.
	Logger *slog.Logger

	// Tracer creates one span per file. When nil, falls back to
	// otel.Tracer("pyqualify").
	Tracer trace.Tracer
}

// tracerName is the default OTel tracer name for the codemod package.
const tracerName = "pyqualify"

// Runner applies transforms to files. It is safe for concurrent use as long
// as every call gets its own Transform.
type Runner struct {
	opts   Options
	parser *pysyntax.Parser
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	return &Runner{opts: opts, parser: pysyntax.NewParser()}
}

func (r *Runner) enter(ctx context.Context, filename string, s State) {
	r.opts.Logger.DebugContext(ctx, "codemod state", slog.String("file", filename), slog.String("state", s.String()))
}

// Run parses src and applies tr. A syntax error is returned as a
// *pysyntax.ParseError and nothing is rewritten.
func (r *Runner) Run(ctx context.Context, filename string, src []byte, tr Transform) (*Result, error) {
	ctx, span := r.opts.Tracer.Start(ctx, "pyqualify.file",
		trace.WithAttributes(attribute.String("file", filename), attribute.Int("bytes", len(src))))
	defer span.End()

	r.enter(ctx, filename, StateIdle)

	result, err := r.run(ctx, filename, src, tr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rewrite failed")

		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("changed", result.Changed),
		attribute.Int("references_rewritten", result.Stats.ReferencesRewritten),
		attribute.Int("warnings", len(result.Warnings)),
	)

	return result, nil
}

func (r *Runner) run(ctx context.Context, filename string, src []byte, tr Transform) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	tree, err := r.parser.Parse(ctx, filename, src)
	if err != nil {
		return nil, err
	}

	cctx := &Context{
		Filename: filename,
		Tree:     tree,
		Scope:    pyscope.Analyze(ctx, tree),
		Injector: importinject.New(importinject.Options{BlankLineAfterImports: r.opts.BlankLineAfterImports}),
		Logger:   r.opts.Logger,
		ctx:      ctx,
	}

	tr.Setup(cctx)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", filename, err)
	}

	r.enter(ctx, filename, StateScanning)
	tree.Root.Walk(func(n *pysyntax.Node) bool {
		return tr.Visit(cctx, n)
	})

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rewrite %s: %w", filename, err)
	}

	r.enter(ctx, filename, StateRewriting)
	pysyntax.Apply(tree, nil, func(cur *pysyntax.Cursor) bool {
		tr.Leave(cctx, cur)

		return true
	})
	tr.Finish(cctx)

	inserted := cctx.Injector.Apply(tree)
	cctx.Stats.ImportsInserted = len(inserted)

	out := pysyntax.Print(tree)

	r.enter(ctx, filename, StateDone)

	return &Result{
		Filename: filename,
		Output:   out,
		Changed:  !bytes.Equal(out, src),
		Inserted: inserted,
		Warnings: cctx.Warnings(),
		Edits:    cctx.Edits(),
		Stats:    cctx.Stats,
	}, nil
}
