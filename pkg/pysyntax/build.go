package pysyntax

import "strings"

// NewToken builds an anonymous synthetic token printed as text.
func NewToken(kind, text string) *Node {
	return &Node{Kind: kind, text: text, synthetic: true}
}

// NewIdentifier builds a synthetic identifier.
func NewIdentifier(name string) *Node {
	return &Node{Kind: KindIdentifier, Named: true, text: name, synthetic: true}
}

// NewDottedName builds a synthetic dotted_name such as `collections.abc`.
func NewDottedName(name string) *Node {
	n := &Node{Kind: KindDottedName, Named: true, synthetic: true}

	for idx, part := range strings.Split(name, ".") {
		if idx > 0 {
			n.adopt(NewToken(".", "."))
		}

		n.adopt(NewIdentifier(part))
	}

	return n
}

// NewAttribute builds `object.attr`. Either operand may be an original node,
// in which case it keeps printing from source.
func NewAttribute(object, attr *Node) *Node {
	n := &Node{Kind: KindAttribute, Named: true, synthetic: true}

	object.Field = "object"
	attr.Field = "attribute"

	n.adopt(object)
	n.adopt(NewToken(".", "."))
	n.adopt(attr)

	return n
}

// NewAliasedImport builds `name as alias` as used by import statements.
func NewAliasedImport(name, alias string) *Node {
	n := &Node{Kind: KindAliasedImport, Named: true, synthetic: true}

	dotted := NewDottedName(name)
	dotted.Field = "name"

	ident := NewIdentifier(alias)
	ident.Field = "alias"

	n.adopt(dotted)
	n.adopt(NewToken("as", " as "))
	n.adopt(ident)

	return n
}

// NewPass builds a `pass` statement.
func NewPass() *Node {
	n := &Node{Kind: KindPassStatement, Named: true, synthetic: true}
	n.adopt(NewToken("pass", "pass"))

	return n
}

// NewString builds a synthetic string literal from its full source text,
// quotes and prefix included.
func NewString(literal string) *Node {
	return &Node{Kind: KindString, Named: true, text: literal, synthetic: true}
}

func (n *Node) adopt(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
}
