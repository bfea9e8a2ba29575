// Package codemod runs source-to-source transforms over Python files.
//
// A Runner parses a file, analyzes its scopes, and drives a Transform through
// two traversals: a scanning pass that sees every node before any rewrite
// happens, then a rewriting pass that visits nodes post-order with a cursor.
// Requested imports are injected last and the edited tree is printed back.
package codemod

import (
	"context"
	"log/slog"

	"github.com/Sumatoshi-tech/pyqualify/pkg/importinject"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pyscope"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

// Context carries the per-file state shared between the runner and a
// transform. It is created for one file and discarded afterwards.
type Context struct {
	Filename string
	Tree     *pysyntax.Tree
	Scope    *pyscope.Info
	Injector *importinject.Injector
	Logger   *slog.Logger
	Stats    Stats

	ctx      context.Context //nolint:containedctx // scoped to one file run.
	warnings []Warning
	edits    []Edit
}

// Warn records an advisory positioned at node.
func (c *Context) Warn(kind WarningKind, severity Severity, node *pysyntax.Node, message string) {
	w := Warning{Kind: kind, Severity: severity, Message: message, Filename: c.Filename}

	if node != nil {
		w.Line, w.Column = c.Tree.Position(node.Start)
	}

	c.warnings = append(c.warnings, w)

	level := slog.LevelWarn
	if severity == SeverityDebug {
		level = slog.LevelDebug
	}

	c.Logger.Log(c.ctx, level, message,
		slog.String("file", c.Filename),
		slog.String("kind", string(kind)),
		slog.Int("line", w.Line),
	)
}

// Record notes that node is being rewritten.
func (c *Context) Record(node *pysyntax.Node, message string) {
	e := Edit{Message: message}
	e.Line, e.Column = c.Tree.Position(node.Start)
	e.EndLine, e.EndColumn = c.Tree.Position(node.End)

	c.edits = append(c.edits, e)
}

// Edits returns the rewritten statements recorded so far.
func (c *Context) Edits() []Edit {
	return c.edits
}

// Warnings returns the advisories recorded so far.
func (c *Context) Warnings() []Warning {
	return c.warnings
}

// Text returns the current source text of node.
func (c *Context) Text(node *pysyntax.Node) string {
	return c.Tree.Text(node)
}
