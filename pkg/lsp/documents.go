package lsp

import (
	"strings"
	"sync"
	"unicode/utf16"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// DocumentStore is a thread-safe store for document contents keyed by URI.
type DocumentStore struct {
	documents map[string]string // URI -> content.
	mu        sync.RWMutex
}

// NewDocumentStore creates a new empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]string),
	}
}

// Set stores document content for the given URI.
func (ds *DocumentStore) Set(uri, content string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.documents[uri] = content
}

// Get retrieves document content by URI.
func (ds *DocumentStore) Get(uri string) (string, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	content, ok := ds.documents[uri]

	return content, ok
}

// Apply applies content changes in order and stores the result. Changes
// for an unknown document start from empty content.
func (ds *DocumentStore) Apply(uri string, changes []any) string {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	content := ds.documents[uri]

	for _, change := range changes {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			content = c.Text
		case protocol.TextDocumentContentChangeEvent:
			if c.Range == nil {
				content = c.Text

				continue
			}

			start, end := c.Range.IndexesIn(content)
			content = content[:start] + c.Text + content[end:]
		}
	}

	ds.documents[uri] = content

	return content
}

// Delete removes document content by URI.
func (ds *DocumentStore) Delete(uri string) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	delete(ds.documents, uri)
}

// position converts a 1-based line and byte column into an LSP position,
// which is 0-based and counts UTF-16 code units.
func position(text string, line, byteCol int) protocol.Position {
	lines := strings.Split(text, "\n")
	if line < 1 {
		line = 1
	}

	if line > len(lines) {
		return endPosition(text)
	}

	lineText := lines[line-1]
	col := min(max(byteCol-1, 0), len(lineText))

	return protocol.Position{
		Line:      protocol.UInteger(line - 1),                 //nolint:gosec // bounded by the line count.
		Character: protocol.UInteger(utf16Len(lineText[:col])), //nolint:gosec // bounded by the line length.
	}
}

// endPosition is the position just past the last character of text.
func endPosition(text string) protocol.Position {
	line := strings.Count(text, "\n")
	last := text[strings.LastIndexByte(text, '\n')+1:]

	return protocol.Position{
		Line:      protocol.UInteger(line),           //nolint:gosec // a line count.
		Character: protocol.UInteger(utf16Len(last)), //nolint:gosec // a line length.
	}
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}

	return n
}
