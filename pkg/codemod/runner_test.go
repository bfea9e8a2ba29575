package codemod

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

// recordingTransform renames every identifier `old` to `new` and records the
// order in which the runner called it.
type recordingTransform struct {
	calls   []string
	visited int
	left    int
}

func (r *recordingTransform) Setup(ctx *Context) {
	r.calls = append(r.calls, "setup")
	ctx.Injector.Request("typing", "", "t")
}

func (r *recordingTransform) Visit(_ *Context, _ *pysyntax.Node) bool {
	if r.visited == 0 {
		r.calls = append(r.calls, "visit")
	}

	r.visited++

	return true
}

func (r *recordingTransform) Leave(ctx *Context, cur *pysyntax.Cursor) {
	if r.left == 0 {
		r.calls = append(r.calls, "leave")
	}

	r.left++

	if cur.Node().Kind == pysyntax.KindIdentifier && ctx.Text(cur.Node()) == "old" {
		cur.Replace(pysyntax.NewIdentifier("new"))
		ctx.Stats.ReferencesRewritten++
		ctx.Warn(WarnUnusedImport, SeverityAdvisory, cur.Node(), "renamed")
	}
}

func (r *recordingTransform) Finish(_ *Context) {
	r.calls = append(r.calls, "finish")
}

func TestRunner_PhaseOrder(t *testing.T) {
	t.Parallel()

	tr := &recordingTransform{}
	runner := NewRunner(Options{BlankLineAfterImports: true})

	result, err := runner.Run(context.Background(), "m.py", []byte("x = old\n"), tr)
	require.NoError(t, err)

	assert.Equal(t, []string{"setup", "visit", "leave", "finish"}, tr.calls)
	assert.Equal(t, tr.visited, tr.left)
	assert.True(t, result.Changed)
	assert.Equal(t, "import typing as t\n\nx = new\n", string(result.Output))
	assert.Equal(t, 1, result.Stats.ReferencesRewritten)
	assert.Equal(t, 1, result.Stats.ImportsInserted)

	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "m.py:1:5: unused-import: renamed", result.Warnings[0].String())
}

func TestRunner_UnchangedFile(t *testing.T) {
	t.Parallel()

	tr := &recordingTransform{}
	runner := NewRunner(Options{})

	result, err := runner.Run(context.Background(), "m.py", []byte("x = 1\n"), tr)
	require.NoError(t, err)

	assert.False(t, result.Changed)
	assert.Empty(t, result.Inserted)
	assert.Equal(t, "x = 1\n", string(result.Output))
}

func TestRunner_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(Options{}).Run(ctx, "m.py", []byte("x = 1\n"), &recordingTransform{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "scanning", StateScanning.String())
	assert.Equal(t, "rewriting", StateRewriting.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestStats_Add(t *testing.T) {
	t.Parallel()

	total := Stats{ImportsRemoved: 1}
	total.Add(Stats{ImportsRemoved: 2, ReferencesRewritten: 5, UnusedSymbols: 1})

	assert.Equal(t, Stats{ImportsRemoved: 3, ReferencesRewritten: 5, UnusedSymbols: 1}, total)
}
