package pysyntax

import (
	"bytes"
	"io"
	"sort"
)

// Print renders the tree with every edit applied. Unmodified regions are
// copied byte-for-byte from the original source.
func Print(t *Tree) []byte {
	var buf bytes.Buffer

	buf.Grow(len(t.Source))

	p := &printer{tree: t, out: &buf, done: make([]bool, len(t.insertions))}
	rootSkips := t.deletionSpans(t.Root)

	p.source(0, t.Root.Start, rootSkips)
	p.render(t.Root)
	p.source(t.Root.End, uint32(len(t.Source)), rootSkips) //nolint:gosec // source size fits the tree-sitter offset type.

	return buf.Bytes()
}

// Fprint writes the rendered tree to w.
func Fprint(w io.Writer, t *Tree) error {
	_, err := w.Write(Print(t))

	return err
}

type span struct {
	start, end uint32
}

type printer struct {
	tree *Tree
	out  *bytes.Buffer
	done []bool
}

func (p *printer) render(n *Node) {
	if n.synthetic {
		if len(n.Children) == 0 {
			p.out.WriteString(n.text)

			return
		}

		for _, child := range n.Children {
			if !child.deleted {
				p.render(child)
			}
		}

		return
	}

	if len(n.Children) == 0 {
		p.source(n.Start, n.End, nil)

		return
	}

	skips := p.tree.deletionSpans(n)
	pos := n.Start

	for _, child := range n.Children {
		if child.deleted || covered(skips, child.Start, child.End) {
			continue
		}

		p.source(pos, child.Start, skips)
		p.render(child)
		pos = child.End
	}

	p.source(pos, n.End, skips)
}

// source copies src[a:b] minus the skipped spans, flushing any insertion whose
// offset falls in [a, b].
func (p *printer) source(a, b uint32, skips []span) {
	if a > b {
		return
	}

	cur := a

	for _, sk := range skips {
		if sk.end <= cur || sk.start >= b {
			continue
		}

		if sk.start > cur {
			p.copyRange(cur, sk.start)
		}

		p.flush(cur, sk.start)
		// Insertions inside a removed span land where the span began.
		p.flush(sk.start, min(sk.end, b))

		cur = max(cur, sk.end)
	}

	if cur <= b {
		p.copyRange(cur, b)
	}
}

func (p *printer) copyRange(a, b uint32) {
	for idx, ins := range p.tree.insertions {
		if p.done[idx] || ins.offset < a || ins.offset > b {
			continue
		}

		p.out.Write(p.tree.Source[a:ins.offset])
		p.out.WriteString(ins.text)
		p.done[idx] = true
		a = ins.offset
	}

	p.out.Write(p.tree.Source[a:b])
}

func (p *printer) flush(a, b uint32) {
	for idx, ins := range p.tree.insertions {
		if !p.done[idx] && ins.offset >= a && ins.offset <= b {
			p.out.WriteString(ins.text)
			p.done[idx] = true
		}
	}
}

func covered(skips []span, start, end uint32) bool {
	for _, sk := range skips {
		if start >= sk.start && end <= sk.end {
			return true
		}
	}

	return false
}

// deletionSpans computes the byte ranges removed from parent's span because
// of deleted children. A statement alone on its line loses the whole line,
// trailing comment included. A statement sharing its line loses itself and
// one `;` separator.
func (t *Tree) deletionSpans(parent *Node) []span {
	var spans []span

	kids := parent.Children

	for idx, child := range kids {
		if child.Kind == KindComment && idx > 0 && t.trailsDeletion(kids[idx-1], child) {
			spans = append(spans, span{start: kids[idx-1].End, end: child.End})

			continue
		}

		if !child.deleted {
			continue
		}

		spans = append(spans, t.deletionSpan(parent, idx))
	}

	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	return spans
}

func (t *Tree) deletionSpan(parent *Node, idx int) span {
	kids := parent.Children
	child := kids[idx]
	start, end := child.Start, child.End

	next := idx + 1
	if next < len(kids) && kids[next].Kind == ";" && t.SameLine(end, kids[next].Start) {
		end = kids[next].End
		next++
	}

	// `stmt; other` keeps `other` in place of the statement.
	if next < len(kids) && t.SameLine(end, kids[next].Start) && kids[next].Kind != KindComment {
		return span{start: start, end: kids[next].Start}
	}

	// `other; stmt` drops the separator that precedes the statement.
	if prev := idx - 1; prev >= 0 && kids[prev].Kind == ";" && t.SameLine(kids[prev].Start, start) {
		from := kids[prev].Start
		if prev-1 >= 0 && t.SameLine(kids[prev-1].End, from) {
			from = kids[prev-1].End
		}

		return span{start: from, end: end}
	}

	if next < len(kids) && kids[next].Kind == KindComment && t.SameLine(end, kids[next].Start) {
		end = kids[next].End
		next++
	}

	lineStart := t.LineStart(start)
	if lineStart < parent.Start || !t.blankOrSpace(lineStart, start) {
		// First statement of an indented block: the indentation belongs to the
		// enclosing node, so swallow everything up to the next sibling instead.
		if next < len(kids) {
			return span{start: start, end: kids[next].Start}
		}

		return span{start: start, end: end}
	}

	lineEnd := t.LineEnd(end)
	if !t.blankOrComment(end, trimNewline(t, lineEnd)) {
		return span{start: start, end: end}
	}

	if lineEnd > parent.End && parent.Kind != KindModule {
		// Last statement of a block: the newline after it belongs to the
		// enclosing node, so drop the one before it instead.
		from := lineStart - 1
		if from > parent.Start && t.Source[from-1] == '\r' {
			from--
		}

		return span{start: from, end: end}
	}

	return span{start: lineStart, end: lineEnd}
}

// trailsDeletion reports whether comment sits on the line of a statement
// that was deleted from the end of prev. The parser hangs such a comment on
// an enclosing node rather than on the block holding the statement.
func (t *Tree) trailsDeletion(prev, comment *Node) bool {
	if !t.SameLine(prev.End, comment.Start) {
		return false
	}

	for cur := prev; len(cur.Children) > 0; {
		last := cur.Children[len(cur.Children)-1]
		if last.End != prev.End {
			return false
		}

		if last.deleted {
			return last.IsStatement() && t.blankOrSpace(t.LineStart(last.Start), last.Start)
		}

		cur = last
	}

	return false
}

// blankOrComment reports whether src[a:b] holds only spaces, optionally
// followed by a comment.
func (t *Tree) blankOrComment(a, b uint32) bool {
	for idx := a; idx < b; idx++ {
		switch t.Source[idx] {
		case ' ', '\t', '\r', '\f':
		case '#':
			return true
		default:
			return false
		}
	}

	return true
}

func trimNewline(t *Tree, lineEnd uint32) uint32 {
	if lineEnd > 0 && int(lineEnd) <= len(t.Source) && t.Source[lineEnd-1] == '\n' {
		return lineEnd - 1
	}

	return lineEnd
}

// SkipDeleted advances offset past the source removed by deleted top-level
// statements, returning the first offset that will still be printed.
func (t *Tree) SkipDeleted(offset uint32) uint32 {
	for _, sk := range t.deletionSpans(t.Root) {
		if offset >= sk.start && offset < sk.end {
			offset = sk.end
		}
	}

	return offset
}

// Removed reports whether the byte at offset belongs to a deleted top-level
// statement and will not be printed.
func (t *Tree) Removed(offset uint32) bool {
	for _, sk := range t.deletionSpans(t.Root) {
		if offset >= sk.start && offset < sk.end {
			return true
		}
	}

	return false
}
