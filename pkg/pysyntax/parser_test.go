package pysyntax

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Tree {
	t.Helper()

	tree, err := Parse(context.Background(), "test.py", []byte(src))
	require.NoError(t, err)

	return tree
}

func TestParse_BuildsModule(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "from typing import List as L\nimport os\n")

	require.Equal(t, KindModule, tree.Root.Kind)

	stmts := tree.Root.NamedChildren()
	require.Len(t, stmts, 2)
	assert.Equal(t, KindImportFromStatement, stmts[0].Kind)
	assert.Equal(t, KindImportStatement, stmts[1].Kind)
	assert.True(t, stmts[0].IsStatement())

	module := stmts[0].ChildByField("module_name")
	require.NotNil(t, module)
	assert.Equal(t, "typing", tree.Text(module))

	aliased := stmts[0].Find(KindAliasedImport)
	require.Len(t, aliased, 1)
	assert.Equal(t, "List", tree.Text(aliased[0].ChildByField("name")))
	assert.Equal(t, "L", tree.Text(aliased[0].ChildByField("alias")))
}

func TestParse_AttributeFields(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "x = typing.Optional\n")

	attrs := tree.Root.Find(KindAttribute)
	require.Len(t, attrs, 1)
	assert.Equal(t, "typing", tree.Text(attrs[0].ChildByField("object")))
	assert.Equal(t, "Optional", tree.Text(attrs[0].ChildByField("attribute")))
	assert.NotNil(t, attrs[0].Ancestor(KindExpressionStatement))
}

func TestParse_ByteSpans(t *testing.T) {
	t.Parallel()

	src := "s = \"héllo\"\nx: typing.Any = s\n"
	tree := mustParse(t, src)

	attrs := tree.Root.Find(KindAttribute)
	require.Len(t, attrs, 1)

	attr := attrs[0]
	assert.Equal(t, uint32(16), attr.Start)
	assert.Equal(t, uint32(26), attr.End)
	assert.Equal(t, "typing.Any", src[attr.Start:attr.End])

	object := attr.ChildByField("object")
	require.NotNil(t, object)
	assert.Equal(t, attr.Start, object.Start)
	assert.Equal(t, uint32(22), object.End)
}

func TestParse_SyntaxError(t *testing.T) {
	t.Parallel()

	_, err := Parse(context.Background(), "bad.py", []byte("x = 1\ndef f(:\n    pass\n"))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrSyntax)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "bad.py", parseErr.Filename)
	assert.Equal(t, 2, parseErr.Line)
	assert.Contains(t, parseErr.Error(), "bad.py:2:")
}

func TestParse_EmptySource(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "")

	assert.Empty(t, tree.Root.NamedChildren())
	assert.Empty(t, string(Print(tree)))
}

func TestParser_ConcurrentUse(t *testing.T) {
	t.Parallel()

	parser := NewParser()
	done := make(chan error, 8)

	for range 8 {
		go func() {
			_, err := parser.Parse(context.Background(), "c.py", []byte("import typing\nx: typing.Any = 1\n"))
			done <- err
		}()
	}

	for range 8 {
		require.NoError(t, <-done)
	}
}

func TestTree_Position(t *testing.T) {
	t.Parallel()

	tree := mustParse(t, "a = 1\nbb = 2\n")

	line, col := tree.Position(8)
	assert.Equal(t, 2, line)
	assert.Equal(t, 3, col)

	assert.Equal(t, uint32(6), tree.LineStart(8))
	assert.Equal(t, uint32(13), tree.LineEnd(8))
	assert.True(t, tree.SameLine(6, 10))
	assert.False(t, tree.SameLine(2, 8))
}
