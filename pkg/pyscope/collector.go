package pyscope

import (
	"context"
	"strings"

	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

// Info is the result of Analyze.
type Info struct {
	tree   *pysyntax.Tree
	module *Scope

	scopes      map[*pysyntax.Node]*Scope
	nodeScope   map[*pysyntax.Node]*Scope
	loads       map[*pysyntax.Node]bool
	resolved    map[*pysyntax.Node][]*Binding
	byStatement map[*pysyntax.Node][]*Binding
	annotations []*StringAnnotation

	pending []access
}

type access struct {
	node  *pysyntax.Node
	name  string
	scope *Scope
}

// Analyze builds the scope graph of tree. String annotations are parsed with
// ctx; a string that is not a valid expression is treated as plain text.
func Analyze(ctx context.Context, tree *pysyntax.Tree) *Info {
	info := &Info{
		tree:        tree,
		scopes:      make(map[*pysyntax.Node]*Scope),
		nodeScope:   make(map[*pysyntax.Node]*Scope),
		loads:       make(map[*pysyntax.Node]bool),
		resolved:    make(map[*pysyntax.Node][]*Binding),
		byStatement: make(map[*pysyntax.Node][]*Binding),
	}

	info.module = newScope(ScopeModule, tree.Root, nil)
	info.scopes[tree.Root] = info.module

	c := &collector{ctx: ctx, info: info, tree: tree}
	c.visitChildren(tree.Root, info.module)
	info.resolve()

	return info
}

// Module returns the module scope.
func (info *Info) Module() *Scope {
	return info.module
}

// BindingsOf returns the bindings introduced by a statement, in source order.
func (info *Info) BindingsOf(stmt *pysyntax.Node) []*Binding {
	return info.byStatement[stmt]
}

// References returns the name reads resolved to b.
func (info *Info) References(b *Binding) []*pysyntax.Node {
	return b.references
}

// Resolve returns the bindings a name read may observe. It returns nil for
// nodes that are not reads and for names that resolve to builtins.
func (info *Info) Resolve(ident *pysyntax.Node) []*Binding {
	return info.resolved[ident]
}

// IsLoad reports whether ident is a name read.
func (info *Info) IsLoad(ident *pysyntax.Node) bool {
	return info.loads[ident]
}

// ScopeOf returns the scope a node is evaluated in.
func (info *Info) ScopeOf(node *pysyntax.Node) *Scope {
	if s, ok := info.nodeScope[node]; ok {
		return s
	}

	for cur := node.Parent; cur != nil; cur = cur.Parent {
		if s, ok := info.scopes[cur]; ok {
			return s
		}
	}

	return info.module
}

// StringAnnotations returns the annotations written as string literals.
func (info *Info) StringAnnotations() []*StringAnnotation {
	return info.annotations
}

func (info *Info) resolve() {
	for _, acc := range info.pending {
		bindings := acc.scope.Lookup(acc.name)
		if len(bindings) == 0 {
			continue
		}

		info.resolved[acc.node] = bindings

		for _, b := range bindings {
			b.references = append(b.references, acc.node)
		}
	}

	info.pending = nil
}

type collector struct {
	ctx  context.Context //nolint:containedctx // only used to parse string annotations during Analyze.
	info *Info
	tree *pysyntax.Tree

	inAnnotation int
}

func (c *collector) text(n *pysyntax.Node) string {
	return c.tree.Text(n)
}

func (c *collector) load(ident *pysyntax.Node, scope *Scope) {
	c.info.loads[ident] = true
	c.info.nodeScope[ident] = scope
	c.info.pending = append(c.info.pending, access{node: ident, name: c.text(ident), scope: scope})
}

func (c *collector) bind(scope *Scope, name string, b *Binding) {
	target := scope.bindTarget(name)

	b.Name = name
	b.Scope = target
	target.bindings[name] = append(target.bindings[name], b)

	if b.Statement != nil {
		c.info.byStatement[b.Statement] = append(c.info.byStatement[b.Statement], b)
	}

	if b.Node != nil {
		c.info.nodeScope[b.Node] = target
	}
}

func (c *collector) bindIdent(scope *Scope, ident *pysyntax.Node, kind BindingKind) {
	c.bind(scope, c.text(ident), &Binding{Kind: kind, Node: ident, Statement: enclosingStatement(ident)})
}

func enclosingStatement(n *pysyntax.Node) *pysyntax.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.IsStatement() {
			return cur
		}
	}

	return nil
}

func (c *collector) visitChildren(n *pysyntax.Node, scope *Scope) {
	for _, child := range n.Children {
		if !child.IsDeleted() {
			c.visit(child, scope)
		}
	}
}

//nolint:cyclop,gocyclo // one case per binding form keeps the dispatch flat.
func (c *collector) visit(n *pysyntax.Node, scope *Scope) {
	if !n.Named {
		return
	}

	switch n.Kind {
	case pysyntax.KindIdentifier:
		c.load(n, scope)
	case pysyntax.KindComment:
	case pysyntax.KindImportStatement:
		c.visitImport(n, scope)
	case pysyntax.KindImportFromStatement:
		c.visitImportFrom(n, scope)
	case pysyntax.KindFutureImport:
	case pysyntax.KindAttribute:
		c.visitAttribute(n, scope)
	case "keyword_argument":
		if value := n.ChildByField("value"); value != nil {
			c.visit(value, scope)
		}
	case "function_definition":
		c.visitFunction(n, scope)
	case "class_definition":
		c.visitClass(n, scope)
	case "lambda":
		c.visitLambda(n, scope)
	case "list_comprehension", "set_comprehension", "dictionary_comprehension", "generator_expression":
		c.visitComprehension(n, scope)
	case "assignment":
		c.visitAssignment(n, scope)
	case "augmented_assignment":
		if left := n.ChildByField("left"); left != nil {
			c.visit(left, scope)
			c.bindTargets(left, scope, BindAssignment)
		}

		if right := n.ChildByField("right"); right != nil {
			c.visit(right, scope)
		}
	case "for_statement":
		c.visitFor(n, scope)
	case "named_expression":
		c.visitWalrus(n, scope)
	case "as_pattern":
		c.visitAsPattern(n, scope)
	case "except_clause":
		c.visitExcept(n, scope)
	case "global_statement", "nonlocal_statement":
		for _, child := range n.NamedChildren() {
			if child.Kind != pysyntax.KindIdentifier {
				continue
			}

			if n.Kind == "global_statement" {
				scope.globals[c.text(child)] = true
			} else {
				scope.nonlocals[c.text(child)] = true
			}
		}
	case "type":
		c.inAnnotation++
		c.visitChildren(n, scope)
		c.inAnnotation--
	case pysyntax.KindString:
		if c.inAnnotation > 0 {
			c.visitStringAnnotation(n, scope)
		}

		c.visitChildren(n, scope)
	default:
		c.visitChildren(n, scope)
	}
}

func (c *collector) visitImport(n *pysyntax.Node, scope *Scope) {
	for _, child := range n.NamedChildren() {
		switch child.Kind {
		case pysyntax.KindDottedName:
			module := c.text(child)
			first, _, _ := strings.Cut(module, ".")
			c.bind(scope, first, &Binding{Kind: BindImport, Node: child, Statement: n, Module: module})
		case pysyntax.KindAliasedImport:
			name, alias := child.ChildByField("name"), child.ChildByField("alias")
			if name == nil || alias == nil {
				continue
			}

			c.bind(scope, c.text(alias), &Binding{Kind: BindImport, Node: child, Statement: n, Module: c.text(name)})
		}
	}
}

func (c *collector) visitImportFrom(n *pysyntax.Node, scope *Scope) {
	moduleNode := n.ChildByField("module_name")
	if moduleNode == nil {
		return
	}

	module := c.text(moduleNode)

	for _, child := range ImportedNames(n) {
		switch child.Kind {
		case pysyntax.KindDottedName:
			symbol := c.text(child)
			c.bind(scope, symbol, &Binding{Kind: BindImportFrom, Node: child, Statement: n, Module: module, Symbol: symbol})
		case pysyntax.KindAliasedImport:
			name, alias := child.ChildByField("name"), child.ChildByField("alias")
			if name == nil || alias == nil {
				continue
			}

			c.bind(scope, c.text(alias), &Binding{
				Kind: BindImportFrom, Node: child, Statement: n, Module: module, Symbol: c.text(name),
			})
		}
	}
}

// ImportedNames returns the dotted_name, aliased_import and wildcard_import
// entries listed after `import` in a from-import statement.
func ImportedNames(stmt *pysyntax.Node) []*pysyntax.Node {
	var (
		out      []*pysyntax.Node
		afterKey bool
	)

	for _, child := range stmt.Children {
		if child.IsDeleted() {
			continue
		}

		if !child.Named {
			if child.Kind == "import" {
				afterKey = true
			}

			continue
		}

		if !afterKey || child.Field == "module_name" {
			continue
		}

		switch child.Kind {
		case pysyntax.KindDottedName, pysyntax.KindAliasedImport, pysyntax.KindWildcardImport:
			out = append(out, child)
		}
	}

	return out
}

func (c *collector) visitAttribute(n *pysyntax.Node, scope *Scope) {
	// Only the object is a read; the member name is not a variable.
	if object := n.ChildByField("object"); object != nil {
		c.visit(object, scope)
	}

	for _, child := range n.Children {
		if child.Field != "object" && child.Field != "attribute" && child.Named && child.Kind != pysyntax.KindIdentifier {
			c.visit(child, scope)
		}
	}
}

func (c *collector) visitFunction(n *pysyntax.Node, scope *Scope) {
	fn := newScope(ScopeFunction, n, scope)
	c.info.scopes[n] = fn

	if name := n.ChildByField("name"); name != nil {
		c.bindIdent(scope, name, BindDefinition)
	}

	if params := n.ChildByField("parameters"); params != nil {
		c.visitParameters(params, scope, fn)
	}

	if ret := n.ChildByField("return_type"); ret != nil {
		c.visit(ret, scope)
	}

	for _, child := range n.Children {
		if child.Field == "name" || child.Field == "parameters" || child.Field == "return_type" {
			continue
		}

		c.visit(child, fn)
	}
}

// visitParameters binds parameter names in inner and evaluates defaults and
// annotations in outer.
func (c *collector) visitParameters(params *pysyntax.Node, outer, inner *Scope) {
	for _, param := range params.NamedChildren() {
		c.visitParameter(param, outer, inner)
	}
}

func (c *collector) visitParameter(param *pysyntax.Node, outer, inner *Scope) {
	switch param.Kind {
	case pysyntax.KindIdentifier:
		c.bindIdent(inner, param, BindParameter)
	case "list_splat_pattern", "dictionary_splat_pattern":
		for _, child := range param.NamedChildren() {
			if child.Kind == pysyntax.KindIdentifier {
				c.bindIdent(inner, child, BindParameter)
			}
		}
	case "default_parameter", "typed_parameter", "typed_default_parameter":
		named := param.NamedChildren()
		for idx, child := range named {
			switch {
			case child.Field == "value" || child.Kind == "type":
				c.visit(child, outer)
			case idx == 0:
				c.visitParameter(child, outer, inner)
			default:
				c.visit(child, outer)
			}
		}
	case "tuple_pattern":
		c.bindTargets(param, inner, BindParameter)
	}
}

func (c *collector) visitClass(n *pysyntax.Node, scope *Scope) {
	cls := newScope(ScopeClass, n, scope)
	c.info.scopes[n] = cls

	if name := n.ChildByField("name"); name != nil {
		c.bindIdent(scope, name, BindDefinition)
	}

	for _, child := range n.Children {
		switch child.Field {
		case "name":
		case "body":
			c.visit(child, cls)
		default:
			c.visit(child, scope)
		}
	}
}

func (c *collector) visitLambda(n *pysyntax.Node, scope *Scope) {
	fn := newScope(ScopeLambda, n, scope)
	c.info.scopes[n] = fn

	if params := n.ChildByField("parameters"); params != nil {
		c.visitParameters(params, scope, fn)
	}

	if body := n.ChildByField("body"); body != nil {
		c.visit(body, fn)
	}
}

// visitComprehension evaluates the first iterable in the enclosing scope and
// everything else in a fresh comprehension scope.
func (c *collector) visitComprehension(n *pysyntax.Node, scope *Scope) {
	comp := newScope(ScopeComprehension, n, scope)
	c.info.scopes[n] = comp

	first := true

	for _, child := range n.NamedChildren() {
		if child.Kind != "for_in_clause" {
			continue
		}

		if right := child.ChildByField("right"); right != nil {
			if first {
				c.visit(right, scope)
			} else {
				c.visit(right, comp)
			}
		}

		first = false

		if left := child.ChildByField("left"); left != nil {
			c.bindTargets(left, comp, BindAssignment)
		}

		for _, rest := range child.NamedChildren() {
			if rest.Field != "left" && rest.Field != "right" {
				c.visit(rest, comp)
			}
		}
	}

	for _, child := range n.NamedChildren() {
		if child.Kind != "for_in_clause" {
			c.visit(child, comp)
		}
	}
}

func (c *collector) visitAssignment(n *pysyntax.Node, scope *Scope) {
	for _, child := range n.Children {
		switch child.Field {
		case "left":
			c.bindTargets(child, scope, BindAssignment)
		default:
			c.visit(child, scope)
		}
	}
}

func (c *collector) visitFor(n *pysyntax.Node, scope *Scope) {
	for _, child := range n.Children {
		if child.Field == "left" {
			c.bindTargets(child, scope, BindAssignment)

			continue
		}

		c.visit(child, scope)
	}
}

func (c *collector) visitWalrus(n *pysyntax.Node, scope *Scope) {
	target := scope
	for target.Kind == ScopeComprehension && target.Parent != nil {
		target = target.Parent
	}

	if value := n.ChildByField("value"); value != nil {
		c.visit(value, scope)
	}

	if name := n.ChildByField("name"); name != nil && name.Kind == pysyntax.KindIdentifier {
		c.bindIdent(target, name, BindAssignment)
	}
}

func (c *collector) visitAsPattern(n *pysyntax.Node, scope *Scope) {
	for _, child := range n.NamedChildren() {
		if child.Field == "alias" || child.Kind == "as_pattern_target" {
			c.bindTargets(child, scope, BindOther)

			continue
		}

		c.visit(child, scope)
	}
}

// visitExcept handles both `except E as e` grammars: the target is either an
// as_pattern or the named child following the `as` keyword.
func (c *collector) visitExcept(n *pysyntax.Node, scope *Scope) {
	afterAs := false

	for _, child := range n.Children {
		if !child.Named {
			afterAs = child.Kind == "as"

			continue
		}

		if afterAs && child.Kind == pysyntax.KindIdentifier {
			c.bindIdent(scope, child, BindOther)
			afterAs = false

			continue
		}

		c.visit(child, scope)
	}
}

// bindTargets binds every name in an assignment target. Attribute and
// subscript targets are reads of their base expression.
func (c *collector) bindTargets(target *pysyntax.Node, scope *Scope, kind BindingKind) {
	switch target.Kind {
	case pysyntax.KindIdentifier:
		c.bindIdent(scope, target, kind)
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "expression_list",
		"list_splat_pattern", "list_splat", "parenthesized_expression", "as_pattern_target":
		for _, child := range target.NamedChildren() {
			c.bindTargets(child, scope, kind)
		}
	case pysyntax.KindComment:
	default:
		c.visit(target, scope)
	}
}
