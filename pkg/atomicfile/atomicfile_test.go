package atomicfile_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pyqualify/pkg/atomicfile"
)

func TestWriteFile_ReplacesContentAndMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "m.py")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

	require.NoError(t, atomicfile.WriteFile(path, []byte("new\n"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file should remain")
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	t.Parallel()

	err := atomicfile.WriteFile(filepath.Join(t.TempDir(), "absent", "m.py"), []byte("x"), 0o600)
	require.Error(t, err)
}
