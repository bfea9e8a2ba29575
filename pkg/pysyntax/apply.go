package pysyntax

// Cursor describes a node met during Apply and lets the callback replace or
// delete it.
type Cursor struct {
	tree   *Tree
	node   *Node
	parent *Node
	index  int
}

// Node returns the current node.
func (c *Cursor) Node() *Node { return c.node }

// Parent returns the parent of the current node, nil at the root.
func (c *Cursor) Parent() *Node { return c.parent }

// Index returns the position of the current node among its parent's children.
func (c *Cursor) Index() int { return c.index }

// Tree returns the tree being traversed.
func (c *Cursor) Tree() *Tree { return c.tree }

// Replace substitutes n for the current node. The replacement inherits the
// old node's span and field so printing keeps the surrounding bytes.
func (c *Cursor) Replace(n *Node) {
	if c.parent == nil {
		panic("pysyntax: cannot replace the root node")
	}

	c.tree.replace(c.parent, c.node, n)
	c.node = n
}

// Delete removes the current statement from its block. When it is the last
// live statement of a block it becomes `pass` instead, keeping the block
// syntactically valid.
func (c *Cursor) Delete() {
	if c.parent == nil {
		panic("pysyntax: cannot delete the root node")
	}

	if c.parent.Kind == KindBlock && len(c.parent.NamedChildren()) == 1 {
		c.Replace(NewPass())

		return
	}

	c.node.deleted = true
	c.tree.mutations++
}

// ApplyFunc is called for each node visited by Apply.
type ApplyFunc func(*Cursor) bool

// Apply traverses the tree depth-first. pre runs before a node's children and
// post after them; either may be nil. If pre returns false the children and
// post are skipped for that node. If post returns false the traversal stops.
//
// Nodes inserted with Replace are not traversed further.
func Apply(tree *Tree, pre, post ApplyFunc) {
	a := &applier{tree: tree, pre: pre, post: post}
	a.apply(nil, 0, tree.Root)
}

type applier struct {
	tree    *Tree
	pre     ApplyFunc
	post    ApplyFunc
	stopped bool
}

func (a *applier) apply(parent *Node, index int, n *Node) {
	if a.stopped || n.deleted {
		return
	}

	cur := &Cursor{tree: a.tree, node: n, parent: parent, index: index}

	if a.pre != nil && !a.pre(cur) {
		return
	}

	// Children may be replaced in place while iterating; index lookups stay
	// valid because Replace never changes the slice length.
	for idx := 0; idx < len(n.Children) && !a.stopped; idx++ {
		a.apply(n, idx, n.Children[idx])
	}

	if a.stopped || n.deleted {
		return
	}

	if a.post != nil && !a.post(cur) {
		a.stopped = true
	}
}

func (t *Tree) replace(parent, old, n *Node) {
	n.Parent = parent
	n.Start = old.Start
	n.End = old.End
	n.Field = old.Field

	for idx, child := range parent.Children {
		if child == old {
			parent.Children[idx] = n

			break
		}
	}

	t.mutations++
}

// ReplaceNode substitutes n for old outside of an Apply traversal.
func (t *Tree) ReplaceNode(old, n *Node) {
	if old.Parent == nil {
		panic("pysyntax: cannot replace the root node")
	}

	t.replace(old.Parent, old, n)
}
