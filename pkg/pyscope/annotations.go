package pyscope

import (
	"strings"

	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

// StringAnnotation is a type annotation written as a string literal, such
// as `def f(x: "Optional[int]")`. Its content is parsed into a separate tree
// whose identifiers take part in scope resolution like any other read.
type StringAnnotation struct {
	// Node is the string literal in the analyzed tree.
	Node *pysyntax.Node
	// Tree holds the parsed content. Edit it, then call Literal.
	Tree *pysyntax.Tree

	prefix string
	quote  string
}

// Literal renders the string literal with the current content of Tree.
func (a *StringAnnotation) Literal() string {
	return a.prefix + a.quote + string(pysyntax.Print(a.Tree)) + a.quote
}

// Modified reports whether Tree was edited.
func (a *StringAnnotation) Modified() bool {
	return a.Tree.Modified()
}

func (c *collector) visitStringAnnotation(n *pysyntax.Node, scope *Scope) {
	if insideLiteral(c.tree, n) {
		return
	}

	prefix, quote, content, ok := splitStringLiteral(c.text(n))
	if !ok {
		return
	}

	sub, err := pysyntax.Parse(c.ctx, c.tree.Filename, []byte(content))
	if err != nil {
		return
	}

	stmts := sub.Root.NamedChildren()
	if len(stmts) != 1 || stmts[0].Kind != pysyntax.KindExpressionStatement {
		return
	}

	c.info.annotations = append(c.info.annotations, &StringAnnotation{
		Node:   n,
		Tree:   sub,
		prefix: prefix,
		quote:  quote,
	})

	inner := &collector{ctx: c.ctx, info: c.info, tree: sub, inAnnotation: 1}
	inner.visitChildren(stmts[0], scope)
}

// insideLiteral reports whether n is an argument of a Literal[...] subscript,
// where strings are values rather than forward references.
func insideLiteral(tree *pysyntax.Tree, n *pysyntax.Node) bool {
	for cur := n.Parent; cur != nil && cur.Kind != "type"; cur = cur.Parent {
		if cur.Kind != "subscript" {
			continue
		}

		if value := cur.ChildByField("value"); value != nil && strings.HasSuffix(tree.Text(value), "Literal") {
			return true
		}
	}

	return false
}

// splitStringLiteral breaks a plain single-line string literal into prefix,
// quote and content. Byte strings, f-strings, escapes and multi-line content
// are rejected.
func splitStringLiteral(raw string) (prefix, quote, content string, ok bool) {
	idx := strings.IndexAny(raw, `"'`)
	if idx < 0 {
		return "", "", "", false
	}

	prefix = raw[:idx]
	if strings.ContainsAny(prefix, "bBfF") {
		return "", "", "", false
	}

	body := raw[idx:]

	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(body) >= 2*len(q) && strings.HasPrefix(body, q) && strings.HasSuffix(body, q) {
			quote = q

			break
		}
	}

	if quote == "" {
		return "", "", "", false
	}

	content = body[len(quote) : len(body)-len(quote)]
	if strings.TrimSpace(content) == "" || strings.TrimLeft(content, " \t") != content ||
		strings.ContainsAny(content, "\\\n") {
		return "", "", "", false
	}

	return prefix, quote, content, true
}
