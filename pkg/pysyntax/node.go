// Package pysyntax parses Python source into a mutable concrete syntax tree
// and prints it back losslessly.
//
// The tree mirrors tree-sitter-python node kinds, keeps anonymous tokens as
// children, and remembers the byte span of every original node. Printing
// re-emits untouched source verbatim, so only replaced, deleted, or inserted
// regions differ from the input.
package pysyntax

import (
	"strings"
)

// Node kinds the rewrite engine and the scope analyzer look at.
const (
	KindModule              = "module"
	KindBlock               = "block"
	KindComment             = "comment"
	KindIdentifier          = "identifier"
	KindAttribute           = "attribute"
	KindDottedName          = "dotted_name"
	KindAliasedImport       = "aliased_import"
	KindRelativeImport      = "relative_import"
	KindWildcardImport      = "wildcard_import"
	KindImportStatement     = "import_statement"
	KindImportFromStatement = "import_from_statement"
	KindFutureImport        = "future_import_statement"
	KindExpressionStatement = "expression_statement"
	KindString              = "string"
	KindPassStatement       = "pass_statement"
	KindDeleteStatement     = "delete_statement"
	KindExpressionList      = "expression_list"
	KindError               = "ERROR"
)

// Node is one concrete syntax tree node.
//
// Original nodes carry the byte span they occupy in Tree.Source. Synthetic
// nodes, built with the New* helpers, carry their own text instead; when a
// synthetic node replaces an original one it inherits the replaced span so
// surrounding whitespace is preserved.
type Node struct {
	Kind     string
	Field    string
	Parent   *Node
	Children []*Node
	Start    uint32
	End      uint32
	Named    bool

	text      string
	synthetic bool
	deleted   bool
}

// IsSynthetic reports whether the node was built by a rewrite rather than parsed.
func (n *Node) IsSynthetic() bool {
	return n.synthetic
}

// IsDeleted reports whether the node was removed from its parent.
func (n *Node) IsDeleted() bool {
	return n.deleted
}

// ChildByField returns the first live child assigned to the given field, or nil.
func (n *Node) ChildByField(field string) *Node {
	for _, child := range n.Children {
		if child.Field == field && !child.deleted {
			return child
		}
	}

	return nil
}

// ChildrenByField returns every live child assigned to the given field.
func (n *Node) ChildrenByField(field string) []*Node {
	var out []*Node

	for _, child := range n.Children {
		if child.Field == field && !child.deleted {
			out = append(out, child)
		}
	}

	return out
}

// NamedChildren returns the live named children, skipping comments.
func (n *Node) NamedChildren() []*Node {
	out := make([]*Node, 0, len(n.Children))

	for _, child := range n.Children {
		if child.Named && !child.deleted && child.Kind != KindComment {
			out = append(out, child)
		}
	}

	return out
}

// Index returns the position of n in its parent's children, or -1.
func (n *Node) Index() int {
	if n.Parent == nil {
		return -1
	}

	for idx, child := range n.Parent.Children {
		if child == n {
			return idx
		}
	}

	return -1
}

// IsStatement reports whether n sits directly in a statement list.
func (n *Node) IsStatement() bool {
	if n.Parent == nil || !n.Named || n.Kind == KindComment {
		return false
	}

	return n.Parent.Kind == KindModule || n.Parent.Kind == KindBlock
}

// Walk calls fn for n and every live descendant in source order. Returning
// false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if n.deleted || !fn(n) {
		return
	}

	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Find returns every live descendant (including n) of the given kind.
func (n *Node) Find(kind string) []*Node {
	var out []*Node

	n.Walk(func(cur *Node) bool {
		if cur.Kind == kind {
			out = append(out, cur)
		}

		return true
	})

	return out
}

// Ancestor returns the closest ancestor of one of the given kinds, or nil.
func (n *Node) Ancestor(kinds ...string) *Node {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		for _, kind := range kinds {
			if cur.Kind == kind {
				return cur
			}
		}
	}

	return nil
}

// String renders a compact s-expression, handy in test failures.
func (n *Node) String() string {
	var sb strings.Builder

	n.sexp(&sb)

	return sb.String()
}

func (n *Node) sexp(sb *strings.Builder) {
	if !n.Named {
		return
	}

	sb.WriteByte('(')

	if n.Field != "" {
		sb.WriteString(n.Field)
		sb.WriteString(": ")
	}

	sb.WriteString(n.Kind)

	for _, child := range n.Children {
		if child.deleted || !child.Named {
			continue
		}

		sb.WriteByte(' ')
		child.sexp(sb)
	}

	sb.WriteByte(')')
}
