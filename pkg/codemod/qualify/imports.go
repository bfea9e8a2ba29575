package qualify

import (
	"fmt"

	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod"
	"github.com/Sumatoshi-tech/pyqualify/pkg/pysyntax"
)

// rewriteImport turns the marker into `import M as alias` and deletes every
// registered from-import. Other imports are left alone.
func (tr *Transform) rewriteImport(ctx *codemod.Context, cur *pysyntax.Cursor) {
	node := cur.Node()
	st := tr.state

	if node == st.marker {
		entries := node.NamedChildren()
		if len(entries) != 1 {
			return
		}

		ctx.Record(node, fmt.Sprintf("import %s becomes import %s as %s", tr.opts.Module, tr.opts.Module, tr.opts.Alias))

		// Only the name is replaced so keyword spacing and trailing comments
		// stay where they were.
		ctx.Tree.ReplaceNode(entries[0], pysyntax.NewAliasedImport(tr.opts.Module, tr.opts.Alias))
		ctx.Stats.ImportsRewritten++
		st.markerRewritten = true

		return
	}

	if _, ok := st.registry[node]; ok {
		ctx.Record(node, fmt.Sprintf("names from %s are referenced through %s", tr.opts.Module, tr.opts.Alias))
		tr.noteRewrite(node)
		cur.Delete()
		ctx.Stats.ImportsRemoved++
	}
}
