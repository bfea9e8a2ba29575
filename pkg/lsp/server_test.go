package lsp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/pyqualify/internal/observability"
	"github.com/Sumatoshi-tech/pyqualify/pkg/config"
)

const (
	testURI = "file:///work/app/models.py"

	qualifiable = "from typing import Any\nimport typing\nx: Any = typing.cast(int, 1)\n"
	qualified   = "import typing as t\nx: t.Any = t.cast(int, 1)\n"
)

type notifications struct {
	mu   sync.Mutex
	sent []*protocol.PublishDiagnosticsParams
}

func (n *notifications) context() *glsp.Context {
	return &glsp.Context{Notify: func(method string, params any) {
		if method != protocol.ServerTextDocumentPublishDiagnostics {
			return
		}

		n.mu.Lock()
		defer n.mu.Unlock()

		n.sent = append(n.sent, params.(*protocol.PublishDiagnosticsParams)) //nolint:forcetypeassert // test double.
	}}
}

func (n *notifications) last(t *testing.T) *protocol.PublishDiagnosticsParams {
	t.Helper()

	n.mu.Lock()
	defer n.mu.Unlock()

	require.NotEmpty(t, n.sent)

	return n.sent[len(n.sent)-1]
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	srv, err := NewServer(ServerDeps{Version: "test"})
	require.NoError(t, err)

	return srv
}

func open(t *testing.T, srv *Server, n *notifications, text string) {
	t.Helper()

	require.NoError(t, srv.didOpen(n.context(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: testURI, LanguageID: "python", Version: 1, Text: text},
	}))
}

func TestDocumentStore(t *testing.T) {
	t.Parallel()

	store := NewDocumentStore()

	_, ok := store.Get(testURI)
	assert.False(t, ok)

	store.Set(testURI, "a = 1\n")

	got, ok := store.Get(testURI)
	require.True(t, ok)
	assert.Equal(t, "a = 1\n", got)

	store.Delete(testURI)

	_, ok = store.Get(testURI)
	assert.False(t, ok)
}

func TestDocumentStore_Apply(t *testing.T) {
	t.Parallel()

	store := NewDocumentStore()
	store.Set(testURI, "a = 1\nb = 2\n")

	got := store.Apply(testURI, []any{
		protocol.TextDocumentContentChangeEvent{
			Range: &protocol.Range{
				Start: protocol.Position{Line: 1, Character: 4},
				End:   protocol.Position{Line: 1, Character: 5},
			},
			Text: "42",
		},
	})
	assert.Equal(t, "a = 1\nb = 42\n", got)

	got = store.Apply(testURI, []any{protocol.TextDocumentContentChangeEventWhole{Text: "c = 3\n"}})
	assert.Equal(t, "c = 3\n", got)
}

func TestPosition(t *testing.T) {
	t.Parallel()

	text := "x = 1\ns = \"é😀\"; y = 2\n"

	assert.Equal(t, protocol.Position{Line: 0, Character: 0}, position(text, 1, 1))
	// é is two bytes and one UTF-16 unit, the emoji four bytes and two units.
	assert.Equal(t, protocol.Position{Line: 1, Character: 8}, position(text, 2, 12))
	assert.Equal(t, protocol.Position{Line: 2, Character: 0}, position(text, 9, 1))
	assert.Equal(t, protocol.Position{Line: 2, Character: 0}, endPosition(text))
	assert.Equal(t, protocol.Position{Line: 0, Character: 3}, endPosition("abc"))
}

func TestDidOpen_PublishesImportDiagnostics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	n := &notifications{}
	open(t, srv, n, qualifiable)

	published := n.last(t)
	assert.Equal(t, testURI, published.URI)
	require.Len(t, published.Diagnostics, 2)

	first := published.Diagnostics[0]
	assert.Equal(t, protocol.DiagnosticSeverityInformation, *first.Severity)
	assert.Equal(t, "pyqualify", *first.Source)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 0, Character: 0},
		End:   protocol.Position{Line: 0, Character: 22},
	}, first.Range)
	assert.Equal(t, "names from typing are referenced through t", first.Message)

	second := published.Diagnostics[1]
	assert.Equal(t, uint32(1), second.Range.Start.Line)
	assert.Equal(t, "import typing becomes import typing as t", second.Message)
}

func TestDidOpen_QualifiedDocumentIsClean(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	n := &notifications{}
	open(t, srv, n, qualified)

	assert.Empty(t, n.last(t).Diagnostics)
}

func TestDidChange_SyntaxErrorDiagnostic(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	n := &notifications{}
	open(t, srv, n, qualifiable)

	require.NoError(t, srv.didChange(n.context(), &protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: testURI}},
		ContentChanges: []any{protocol.TextDocumentContentChangeEventWhole{Text: "def f(:\n"}},
	}))

	published := n.last(t)
	require.Len(t, published.Diagnostics, 1)
	assert.Equal(t, protocol.DiagnosticSeverityError, *published.Diagnostics[0].Severity)
	assert.Contains(t, published.Diagnostics[0].Message, "invalid python syntax")
}

func TestDidClose_ClearsDiagnostics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	n := &notifications{}
	open(t, srv, n, qualifiable)

	require.NoError(t, srv.didClose(n.context(), &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	}))

	assert.Empty(t, n.last(t).Diagnostics)

	_, ok := srv.store.Get(testURI)
	assert.False(t, ok)
}

func TestFormatting_ReplacesWholeDocument(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	n := &notifications{}
	open(t, srv, n, qualifiable)

	edits, err := srv.formatting(n.context(), &protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	})
	require.NoError(t, err)
	require.Len(t, edits, 1)

	assert.Equal(t, qualified, edits[0].NewText)
	assert.Equal(t, protocol.Position{}, edits[0].Range.Start)
	assert.Equal(t, protocol.Position{Line: 3, Character: 0}, edits[0].Range.End)
}

func TestFormatting_NoEditsWhenUnchangedOrBroken(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	n := &notifications{}

	for _, text := range []string{qualified, "def f(:\n"} {
		open(t, srv, n, text)

		edits, err := srv.formatting(n.context(), &protocol.DocumentFormattingParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
		})
		require.NoError(t, err)
		assert.Empty(t, edits)
	}
}

func TestCodeAction_FixAll(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	n := &notifications{}
	open(t, srv, n, qualifiable)

	diagnostics := n.last(t).Diagnostics

	got, err := srv.codeAction(n.context(), &protocol.CodeActionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
		Context:      protocol.CodeActionContext{Diagnostics: diagnostics},
	})
	require.NoError(t, err)

	actions, ok := got.([]protocol.CodeAction)
	require.True(t, ok)
	require.Len(t, actions, 1)

	action := actions[0]
	assert.Equal(t, CodeActionKindFixAll, *action.Kind)
	assert.Len(t, action.Diagnostics, 2)
	require.NotNil(t, action.Edit)
	assert.Equal(t, qualified, action.Edit.Changes[testURI][0].NewText)

	got, err = srv.codeAction(n.context(), &protocol.CodeActionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
		Context:      protocol.CodeActionContext{Only: []protocol.CodeActionKind{protocol.CodeActionKindRefactor}},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInitialize_Capabilities(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	got, err := srv.initialize(&glsp.Context{}, &protocol.InitializeParams{})
	require.NoError(t, err)

	result, ok := got.(protocol.InitializeResult)
	require.True(t, ok)

	sync, ok := result.Capabilities.TextDocumentSync.(*protocol.TextDocumentSyncOptions)
	require.True(t, ok)
	assert.Equal(t, protocol.TextDocumentSyncKindFull, *sync.Change)
	assert.NotNil(t, result.Capabilities.DocumentFormattingProvider)
	assert.Equal(t, "test", *result.ServerInfo.Version)
}

func TestNewServer_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Alias = "not valid"

	_, err := NewServer(ServerDeps{Config: &cfg})
	require.Error(t, err)
}

func TestServer_RecordsRequestMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { require.NoError(t, mp.Shutdown(context.Background())) })

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	srv, err := NewServer(ServerDeps{Metrics: red})
	require.NoError(t, err)

	open(t, srv, &notifications{}, qualifiable)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == "pyqualify.requests.total" {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(1), total)
}

func TestFilenameOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/work/app/models.py", filenameOf(testURI))
	assert.Equal(t, "untitled:Untitled-1", filenameOf("untitled:Untitled-1"))
}
