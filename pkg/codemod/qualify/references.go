package qualify

import (
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pyscope"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

// rewriteIdentifier qualifies a read of a watched name. With a single-part
// module a read of the bare module name becomes the alias.
func (tr *Transform) rewriteIdentifier(ctx *codemod.Context, cur *pysyntax.Cursor) {
	node := cur.Node()
	if node.IsSynthetic() || !ctx.Scope.IsLoad(node) {
		return
	}

	name := ctx.Text(node)

	if tr.readsModule(ctx, node, name) {
		tr.noteRewrite(node)
		cur.Replace(pysyntax.NewIdentifier(tr.opts.Alias))
		ctx.Stats.ReferencesRewritten++

		return
	}

	symbol, ok := tr.symbolAt(ctx, node, name)
	if !ok {
		return
	}

	if isDeleteTarget(node) {
		ctx.Warn(codemod.WarnDeleteTarget, codemod.SeverityAdvisory, node,
			fmt.Sprintf("del %s becomes del %s.%s, which removes the attribute from %s", name, tr.opts.Alias, symbol, tr.opts.Module))
	}

	tr.noteRewrite(node)
	cur.Replace(pysyntax.NewAttribute(pysyntax.NewIdentifier(tr.opts.Alias), pysyntax.NewIdentifier(symbol)))
	ctx.Stats.ReferencesRewritten++
}

// isDeleteTarget reports whether an identifier is itself a target of `del`.
func isDeleteTarget(node *pysyntax.Node) bool {
	parent := node.Parent
	if parent != nil && parent.Kind == pysyntax.KindExpressionList {
		parent = parent.Parent
	}

	return parent != nil && parent.Kind == pysyntax.KindDeleteStatement
}

// symbolAt returns the symbol an occurrence stands for. In scope mode the
// symbol comes from the import binding the occurrence resolves to, so one
// alias spelling bound in two scopes keeps each scope's meaning.
func (tr *Transform) symbolAt(ctx *codemod.Context, node *pysyntax.Node, name string) (string, bool) {
	if tr.opts.Match == MatchSpelling {
		return tr.symbolFor(name)
	}

	b := tr.trackedBinding(ctx.Scope.Resolve(node), pyscope.BindImportFrom)
	if b == nil {
		return "", false
	}

	return b.Symbol, true
}

// symbolFor maps a spelling to the symbol it stands for.
func (tr *Transform) symbolFor(name string) (string, bool) {
	st := tr.state

	if st.unaliased.Has(name) {
		return name, true
	}

	if original, ok := st.aliases[name]; ok {
		return original, true
	}

	return "", false
}

// readsModule reports whether an identifier is a read of the bare watched
// module bound by the marker.
func (tr *Transform) readsModule(ctx *codemod.Context, node *pysyntax.Node, name string) bool {
	st := tr.state
	if st.marker == nil || name != tr.opts.Module || strings.Contains(tr.opts.Module, ".") {
		return false
	}

	if tr.opts.Match == MatchSpelling {
		return node.Field == "object" && node.Parent != nil && node.Parent.Kind == pysyntax.KindAttribute
	}

	for _, b := range ctx.Scope.Resolve(node) {
		if b == st.markerBinding {
			return true
		}
	}

	return false
}

// rewriteModuleAttribute replaces a dotted module spelled as an attribute
// chain, such as `collections.abc` in `collections.abc.Mapping`, with the
// alias.
func (tr *Transform) rewriteModuleAttribute(ctx *codemod.Context, cur *pysyntax.Cursor) {
	st := tr.state
	if st.marker == nil || !strings.Contains(tr.opts.Module, ".") {
		return
	}

	node := cur.Node()
	if node.IsSynthetic() || node.Field != "object" || ctx.Text(node) != tr.opts.Module {
		return
	}

	base := node
	for base.Kind == pysyntax.KindAttribute {
		base = base.ChildByField("object")
		if base == nil {
			return
		}
	}

	if base.Kind != pysyntax.KindIdentifier {
		return
	}

	if tr.opts.Match == MatchScope && !tr.resolvesToMarker(ctx.Scope.Resolve(base)) {
		return
	}

	tr.noteRewrite(node)
	cur.Replace(pysyntax.NewIdentifier(tr.opts.Alias))
	ctx.Stats.ReferencesRewritten++
}

func (tr *Transform) trackedBinding(bindings []*pyscope.Binding, kind pyscope.BindingKind) *pyscope.Binding {
	for _, b := range bindings {
		if b.Kind == kind && tr.state.tracked[b] {
			return b
		}
	}

	return nil
}

func (tr *Transform) resolvesToMarker(bindings []*pyscope.Binding) bool {
	for _, b := range bindings {
		if b == tr.state.markerBinding {
			return true
		}
	}

	return false
}
