package pysyntax

import (
	"bytes"
	"sort"
)

// Tree is a parsed Python file plus the edits applied to it.
type Tree struct {
	Filename string
	Source   []byte
	Root     *Node

	insertions []insertion
	mutations  int
}

type insertion struct {
	offset uint32
	text   string
	seq    int
}

// Modified reports whether any node was replaced or deleted. Pending
// insertions do not count.
func (t *Tree) Modified() bool {
	return t.mutations > 0
}

// InsertAt queues text to be printed at the given source offset. Insertions
// at the same offset print in call order.
func (t *Tree) InsertAt(offset uint32, text string) {
	t.insertions = append(t.insertions, insertion{offset: offset, text: text, seq: len(t.insertions)})

	sort.SliceStable(t.insertions, func(i, j int) bool {
		return t.insertions[i].offset < t.insertions[j].offset
	})
}

// Insertions returns the number of queued insertions.
func (t *Tree) Insertions() int {
	return len(t.insertions)
}

// Text returns the current rendering of n, edits included.
func (t *Tree) Text(n *Node) string {
	var buf bytes.Buffer

	p := &printer{tree: t, out: &buf, done: make([]bool, len(t.insertions))}
	p.render(n)

	return buf.String()
}

// Position converts a byte offset into a 1-based line and column.
func (t *Tree) Position(offset uint32) (line, col int) {
	limit := min(int(offset), len(t.Source))
	prefix := t.Source[:limit]

	line = bytes.Count(prefix, []byte{'\n'}) + 1
	col = limit - (bytes.LastIndexByte(prefix, '\n') + 1) + 1

	return line, col
}

// LineStart returns the offset of the first byte of the line holding offset.
func (t *Tree) LineStart(offset uint32) uint32 {
	limit := min(int(offset), len(t.Source))

	return uint32(bytes.LastIndexByte(t.Source[:limit], '\n') + 1) //nolint:gosec // bounded by len(Source).
}

// LineEnd returns the offset just past the newline ending the line holding
// offset, or len(Source) on the last line.
func (t *Tree) LineEnd(offset uint32) uint32 {
	limit := min(int(offset), len(t.Source))

	idx := bytes.IndexByte(t.Source[limit:], '\n')
	if idx < 0 {
		return uint32(len(t.Source)) //nolint:gosec // source size fits the tree-sitter offset type.
	}

	return uint32(limit + idx + 1) //nolint:gosec // bounded by len(Source).
}

// SameLine reports whether no newline separates the offsets a <= b.
func (t *Tree) SameLine(a, b uint32) bool {
	if a > b {
		a, b = b, a
	}

	return bytes.IndexByte(t.Source[a:b], '\n') < 0
}

// blankOrSpace reports whether src[a:b] holds only spaces, tabs and a
// trailing carriage return.
func (t *Tree) blankOrSpace(a, b uint32) bool {
	for _, ch := range t.Source[a:b] {
		if ch != ' ' && ch != '\t' && ch != '\r' && ch != '\f' {
			return false
		}
	}

	return true
}
