// Package importinject adds import statements to a rewritten Python module.
//
// Rewrites file requests while they walk the tree; the injector decides at
// the end which requests materialize. A request is dropped when the module
// already holds an equivalent top-level import or when nothing else in the
// tree was edited, so applying the same rewrite twice never duplicates an
// import.
package importinject

import (
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/pyqualify/pkg/pyscope"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

// Request is one needed import: `import Module as Alias` when Symbol is
// empty, `from Module import Symbol as Alias` otherwise. An empty Alias means
// the plain form.
type Request struct {
	Module string
	Symbol string
	Alias  string
}

// Statement renders the import statement for the request.
func (r Request) Statement() string {
	var sb strings.Builder

	if r.Symbol == "" {
		sb.WriteString("import ")
		sb.WriteString(r.Module)

		if r.Alias != "" && r.Alias != r.Module {
			sb.WriteString(" as ")
			sb.WriteString(r.Alias)
		}

		return sb.String()
	}

	sb.WriteString("from ")
	sb.WriteString(r.Module)
	sb.WriteString(" import ")
	sb.WriteString(r.Symbol)

	if r.Alias != "" && r.Alias != r.Symbol {
		sb.WriteString(" as ")
		sb.WriteString(r.Alias)
	}

	return sb.String()
}

// Options tune placement.
type Options struct {
	// BlankLineAfterImports separates the inserted block from the following
	// statement when no blank line is there already.
	BlankLineAfterImports bool
}

// Injector collects import requests for one file.
type Injector struct {
	opts     Options
	requests []Request
	seen     map[Request]bool
}

// New creates an empty Injector.
func New(opts Options) *Injector {
	return &Injector{opts: opts, seen: make(map[Request]bool)}
}

// Request files a needed import. Repeated requests are merged.
func (inj *Injector) Request(module, symbol, alias string) {
	req := Request{Module: module, Symbol: symbol, Alias: alias}
	if inj.seen[req] {
		return
	}

	inj.seen[req] = true
	inj.requests = append(inj.requests, req)
}

// Withdraw cancels a filed request, for a rewrite that found its import
// already bound where every use can see it.
func (inj *Injector) Withdraw(module, symbol, alias string) {
	req := Request{Module: module, Symbol: symbol, Alias: alias}
	if !inj.seen[req] {
		return
	}

	delete(inj.seen, req)

	inj.requests = slices.DeleteFunc(inj.requests, func(r Request) bool { return r == req })
}

// Requests returns the filed requests in order.
func (inj *Injector) Requests() []Request {
	return inj.requests
}

// Apply queues the missing imports on tree and returns the inserted
// statements. Nothing is inserted into an unedited tree.
func (inj *Injector) Apply(tree *pysyntax.Tree) []string {
	if len(inj.requests) == 0 || !tree.Modified() {
		return nil
	}

	existing := existingImports(tree)

	var missing []string

	for _, req := range inj.requests {
		if !existing[req] {
			missing = append(missing, req.Statement())
		}
	}

	if len(missing) == 0 {
		return nil
	}

	offset, next := anchor(tree)
	block := strings.Join(missing, "\n") + "\n"

	if offset > 0 && tree.Source[offset-1] != '\n' {
		block = "\n" + block
	}

	if inj.opts.BlankLineAfterImports && next != nil && !startsWithBlankLine(tree, offset) {
		block += "\n"
	}

	tree.InsertAt(offset, block)

	return missing
}

// existingImports lists the live top-level imports as requests.
func existingImports(tree *pysyntax.Tree) map[Request]bool {
	out := make(map[Request]bool)

	for _, stmt := range tree.Root.NamedChildren() {
		switch stmt.Kind {
		case pysyntax.KindImportStatement:
			for _, entry := range stmt.NamedChildren() {
				module, alias := entryNames(tree, entry)
				if module != "" {
					out[Request{Module: module, Alias: alias}] = true
				}
			}
		case pysyntax.KindImportFromStatement:
			moduleNode := stmt.ChildByField("module_name")
			if moduleNode == nil {
				continue
			}

			module := tree.Text(moduleNode)

			for _, entry := range pyscope.ImportedNames(stmt) {
				symbol, alias := entryNames(tree, entry)
				if symbol != "" {
					out[Request{Module: module, Symbol: symbol, Alias: alias}] = true
				}
			}
		}
	}

	// The plain form also satisfies a request aliased to its own name.
	for req := range out {
		if req.Alias == "" {
			name := req.Module
			if req.Symbol != "" {
				name = req.Symbol
			}

			out[Request{Module: req.Module, Symbol: req.Symbol, Alias: name}] = true
		}
	}

	return out
}

func entryNames(tree *pysyntax.Tree, entry *pysyntax.Node) (name, alias string) {
	switch entry.Kind {
	case pysyntax.KindDottedName:
		return tree.Text(entry), ""
	case pysyntax.KindAliasedImport:
		nameNode, aliasNode := entry.ChildByField("name"), entry.ChildByField("alias")
		if nameNode == nil || aliasNode == nil {
			return "", ""
		}

		return tree.Text(nameNode), tree.Text(aliasNode)
	}

	return "", ""
}

// anchor picks the insertion offset: after the last live top-level import,
// else after the docstring and __future__ imports, else above the first
// statement and the blank lines leading to it. It also returns the
// statement that will follow the inserted block, if any.
func anchor(tree *pysyntax.Tree) (uint32, *pysyntax.Node) {
	stmts := tree.Root.NamedChildren()

	last := -1

	for idx, stmt := range stmts {
		switch stmt.Kind {
		case pysyntax.KindImportStatement, pysyntax.KindImportFromStatement, pysyntax.KindFutureImport:
			last = idx
		}
	}

	if last < 0 {
		for idx, stmt := range stmts {
			if idx == 0 && isDocstring(stmt) {
				last = idx

				continue
			}

			break
		}
	}

	if last < 0 {
		if len(stmts) == 0 {
			return uint32(len(tree.Source)), nil //nolint:gosec // source size fits the tree-sitter offset type.
		}

		return leadingStart(tree, stmts[0]), stmts[0]
	}

	var next *pysyntax.Node
	if last+1 < len(stmts) {
		next = stmts[last+1]
	}

	return tree.LineEnd(lineTail(tree, stmts[last])), next
}

// leadingStart returns the offset before the blank lines and deleted
// statements that precede stmt, so the inserted block lands above them.
func leadingStart(tree *pysyntax.Tree, stmt *pysyntax.Node) uint32 {
	offset := tree.LineStart(stmt.Start)

	for offset > 0 {
		prev := tree.LineStart(offset - 1)

		line := strings.TrimSpace(string(tree.Source[prev:offset]))
		if line != "" && !tree.Removed(prev) {
			break
		}

		offset = prev
	}

	return offset
}

// lineTail returns the end of the statement, extended over a trailing
// comment on the same line.
func lineTail(tree *pysyntax.Tree, stmt *pysyntax.Node) uint32 {
	end := stmt.End

	if sib := nextSibling(stmt); sib != nil && sib.Kind == pysyntax.KindComment && tree.SameLine(end, sib.Start) {
		end = sib.End
	}

	return end
}

func nextSibling(n *pysyntax.Node) *pysyntax.Node {
	idx := n.Index()
	if idx < 0 {
		return nil
	}

	for _, sib := range n.Parent.Children[idx+1:] {
		if !sib.IsDeleted() {
			return sib
		}
	}

	return nil
}

func isDocstring(stmt *pysyntax.Node) bool {
	if stmt.Kind != pysyntax.KindExpressionStatement {
		return false
	}

	named := stmt.NamedChildren()

	return len(named) == 1 && named[0].Kind == pysyntax.KindString
}

// startsWithBlankLine reports whether the first printed line at offset is
// empty.
func startsWithBlankLine(tree *pysyntax.Tree, offset uint32) bool {
	offset = tree.SkipDeleted(offset)
	if int(offset) >= len(tree.Source) {
		return true
	}

	end := tree.LineEnd(offset)
	line := strings.TrimRight(string(tree.Source[offset:end]), "\r\n")

	return strings.TrimSpace(line) == "" && tree.LineStart(offset) == offset
}
