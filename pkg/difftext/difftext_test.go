package difftext_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pyqualify/pkg/difftext"
)

func TestUnified_Identical(t *testing.T) {
	t.Parallel()

	assert.Empty(t, difftext.Unified("m.py", []byte("x = 1\n"), []byte("x = 1\n")))
}

func TestUnified_SingleChange(t *testing.T) {
	t.Parallel()

	before := "a\nb\nc\nd\ne\n"
	after := "a\nb\nX\nd\ne\n"

	want := `--- a/m.py
+++ b/m.py
@@ -1,5 +1,5 @@
 a
 b
-c
+X
 d
 e
`
	assert.Equal(t, want, difftext.Unified("m.py", []byte(before), []byte(after)))
}

func TestUnified_SeparateHunks(t *testing.T) {
	t.Parallel()

	var before, after []string
	for i := range 20 {
		line := strings.Repeat("x", i+1)
		before = append(before, line)
		after = append(after, line)
	}

	after[1] = "first"
	after[18] = "second"

	diff := difftext.UnifiedContext("m.py",
		[]byte(strings.Join(before, "\n")+"\n"),
		[]byte(strings.Join(after, "\n")+"\n"), 1)

	assert.Equal(t, 2, strings.Count(diff, "@@ -"))
	assert.Contains(t, diff, "@@ -1,3 +1,3 @@\n")
	assert.Contains(t, diff, "@@ -18,3 +18,3 @@\n")
	assert.Contains(t, diff, "+first\n")
	assert.Contains(t, diff, "+second\n")
}

func TestUnified_Insertion(t *testing.T) {
	t.Parallel()

	diff := difftext.UnifiedContext("m.py", []byte("x = 1\n"), []byte("import typing as t\nx = 1\n"), 0)

	assert.Contains(t, diff, "@@ -0,0 +1 @@\n+import typing as t\n")
}

func TestUnified_MissingFinalNewline(t *testing.T) {
	t.Parallel()

	diff := difftext.Unified("m.py", []byte("a\nb"), []byte("a\nc"))

	assert.Contains(t, diff, "-b\n\\ No newline at end of file\n")
	assert.Contains(t, diff, "+c\n\\ No newline at end of file\n")
}

func TestWrite_Plain(t *testing.T) {
	t.Parallel()

	diff := difftext.Unified("m.py", []byte("a\n"), []byte("b\n"))

	var buf bytes.Buffer
	require.NoError(t, difftext.Write(&buf, diff, false))

	assert.Equal(t, diff, buf.String())
}

func TestWrite_Colored(t *testing.T) {
	t.Parallel()

	diff := difftext.Unified("m.py", []byte("a\n"), []byte("b\n"))

	var buf bytes.Buffer
	require.NoError(t, difftext.Write(&buf, diff, true))

	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "+b")
}
