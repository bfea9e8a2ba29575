package qualify

import (
	"fmt"

	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pyscope"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

// watched reports whether a from-import's module is the watched module.
// Relative imports never match.
func (tr *Transform) watched(ctx *codemod.Context, stmt *pysyntax.Node) bool {
	module := stmt.ChildByField("module_name")

	return module != nil && module.Kind == pysyntax.KindDottedName && ctx.Text(module) == tr.opts.Module
}

func (tr *Transform) classifyFromImport(ctx *codemod.Context, stmt *pysyntax.Node) {
	if !tr.watched(ctx, stmt) {
		return
	}

	for _, entry := range pyscope.ImportedNames(stmt) {
		if entry.Kind == pysyntax.KindWildcardImport {
			ctx.Warn(codemod.WarnWildcardImport, codemod.SeverityAdvisory, stmt,
				fmt.Sprintf("from %s import * is left as is", tr.opts.Module))

			return
		}
	}

	st := tr.state

	var refs []*pysyntax.Node

	for _, b := range ctx.Scope.BindingsOf(stmt) {
		if b.Kind != pyscope.BindImportFrom {
			continue
		}

		bindingRefs := ctx.Scope.References(b)
		if len(bindingRefs) == 0 {
			ctx.Warn(codemod.WarnUnusedImport, codemod.SeverityAdvisory, b.Node, b.Name+" is unused")
			ctx.Stats.UnusedSymbols++

			continue
		}

		if b.Name != b.Symbol {
			st.unaliased.Remove(b.Name)
			st.aliases[b.Name] = b.Symbol
		} else {
			delete(st.aliases, b.Name)
			st.unaliased.Add(b.Symbol)
		}

		st.tracked[b] = true
		refs = append(refs, bindingRefs...)
	}

	st.registry[stmt] = refs
}

// classifyImport records the first `import M` statement importing exactly
// the watched module under its own name.
func (tr *Transform) classifyImport(ctx *codemod.Context, stmt *pysyntax.Node) {
	entries := stmt.NamedChildren()
	if len(entries) != 1 || entries[0].Kind != pysyntax.KindDottedName || ctx.Text(entries[0]) != tr.opts.Module {
		return
	}

	st := tr.state
	if st.marker != nil {
		ctx.Warn(codemod.WarnAmbiguousGenericImport, codemod.SeverityDebug, stmt,
			fmt.Sprintf("import %s repeated; only the first one is rewritten", tr.opts.Module))

		return
	}

	st.marker = stmt

	for _, b := range ctx.Scope.BindingsOf(stmt) {
		st.markerBinding = b
		st.tracked[b] = true
	}
}
