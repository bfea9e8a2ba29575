package pysyntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deleteStatements removes every statement of the given kind.
func deleteStatements(tree *Tree, kind string) {
	Apply(tree, nil, func(c *Cursor) bool {
		if c.Node().Kind == kind && c.Node().IsStatement() {
			c.Delete()
		}

		return true
	})
}

func TestPrint_RoundTrip(t *testing.T) {
	t.Parallel()

	sources := []string{
		"",
		"x = 1\n",
		"# header\n\"\"\"Doc.\"\"\"\nfrom __future__ import annotations\n\nimport os  # keep\n",
		"def f(a, b=2, *args, **kw) -> None:\n    if a:\n        return b\n    pass\n",
		"class C(Base):\n    x: int = 0\n\n    @staticmethod\n    def g(): ...\n",
		"x = [i for i in range(3)]; y = {k: v for k, v in d.items()}\n",
		"no_trailing_newline = 1",
		"a = 1\r\nb = 2\r\n",
	}

	for _, src := range sources {
		tree := mustParse(t, src)
		assert.Equal(t, src, string(Print(tree)))
		assert.False(t, tree.Modified())
	}
}

func TestPrint_DeleteTopLevelLine(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "import os\nfrom typing import X  # note\nx = 1\n")
	deleteStatements(tree, KindImportFromStatement)

	assert.True(t, tree.Modified())
	assert.Equal(t, "import os\nx = 1\n", string(Print(tree)))
}

func TestPrint_DeleteSoleBlockStatementLeavesPass(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "def f():\n    from typing import X\n")
	deleteStatements(tree, KindImportFromStatement)

	assert.Equal(t, "def f():\n    pass\n", string(Print(tree)))
}

func TestPrint_DeleteFirstBlockStatement(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "def f():\n    import os\n    return 1\n")
	deleteStatements(tree, KindImportStatement)

	assert.Equal(t, "def f():\n    return 1\n", string(Print(tree)))
}

func TestPrint_DeleteLastBlockStatement(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "def f():\n    x = 1\n    import os\ny = 2\n")
	deleteStatements(tree, KindImportStatement)

	assert.Equal(t, "def f():\n    x = 1\ny = 2\n", string(Print(tree)))
}

func TestPrint_DeleteSemicolonSeparated(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "import os; x = 1\n")
	deleteStatements(tree, KindImportStatement)
	assert.Equal(t, "x = 1\n", string(Print(tree)))

	tree = mustParse(t, "x = 1; import os\ny = 2\n")
	deleteStatements(tree, KindImportStatement)
	assert.Equal(t, "x = 1\ny = 2\n", string(Print(tree)))
}

func TestPrint_ReplaceIdentifier(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "x: List[int] = []\n")

	Apply(tree, nil, func(c *Cursor) bool {
		if c.Node().Kind == KindIdentifier && tree.Text(c.Node()) == "List" {
			c.Replace(NewAttribute(NewIdentifier("t"), NewIdentifier("List")))
		}

		return true
	})

	assert.Equal(t, "x: t.List[int] = []\n", string(Print(tree)))
}

func TestPrint_ReplaceImportName(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "import typing  # keep me\n")

	stmt := tree.Root.NamedChildren()[0]
	name := stmt.NamedChildren()[0]
	tree.ReplaceNode(name, NewAliasedImport("typing", "t"))

	assert.Equal(t, "import typing as t  # keep me\n", string(Print(tree)))
}

func TestPrint_Insertions(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "x = 1\n")
	tree.InsertAt(0, "import typing as t\n")
	tree.InsertAt(0, "\n")

	assert.Equal(t, 2, tree.Insertions())
	assert.False(t, tree.Modified())
	assert.Equal(t, "import typing as t\n\nx = 1\n", string(Print(tree)))
}

func TestPrint_InsertionInsideDeletedLine(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "import os\nfrom typing import X\nx = X\n")
	stmts := tree.Root.NamedChildren()
	tree.InsertAt(stmts[1].End, "\nimport typing as t")
	deleteStatements(tree, KindImportFromStatement)

	out := string(Print(tree))
	require.Contains(t, out, "import typing as t")
	assert.NotContains(t, out, "from typing")
}

func TestNewDottedName(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "")
	dotted := NewDottedName("collections.abc")

	assert.Equal(t, "collections.abc", tree.Text(dotted))
	assert.True(t, dotted.IsSynthetic())
	assert.Equal(t, "(dotted_name (identifier) (identifier))", dotted.String())
}
