package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pyqualify/pkg/report"
	"github.com/Sumatoshi-tech/pyqualify/pkg/version"
)

const (
	typingSrc  = "from typing import Any\nx: Any = 1\n"
	typingWant = "import typing as t\n\nx: t.Any = 1\n"
)

// workspace creates a directory with one python file and a config file whose
// cache lives in the same temp dir.
func workspace(t *testing.T) (dir, file, cfg string) {
	t.Helper()

	root := t.TempDir()
	dir = filepath.Join(root, "src")
	require.NoError(t, os.Mkdir(dir, 0o750))

	file = filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(file, []byte(typingSrc), 0o600))

	cfg = filepath.Join(root, "pyqualify.yaml")
	content := "cache:\n  path: " + filepath.Join(root, "cache") + "\n"
	require.NoError(t, os.WriteFile(cfg, []byte(content), 0o600))

	return dir, file, cfg
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func TestRoot_RewritesDirectory(t *testing.T) {
	t.Parallel()

	dir, file, cfg := workspace(t)

	stdout, _, err := execute(t, "", dir, "--config", cfg, "--format", "json", "--no-color")
	require.NoError(t, err)

	assert.Equal(t, typingWant, readFile(t, file))

	var summary report.Summary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.Totals.ReferencesRewritten)
}

func TestRun_SecondRunHitsCache(t *testing.T) {
	t.Parallel()

	dir, _, cfg := workspace(t)

	_, _, err := execute(t, "", "run", dir, "--config", cfg)
	require.NoError(t, err)

	stdout, _, err := execute(t, "", "run", dir, "--config", cfg, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "cached: 1")
}

func TestRun_CheckExitsNonZero(t *testing.T) {
	t.Parallel()

	dir, file, cfg := workspace(t)

	stdout, _, err := execute(t, "", "run", dir, "--config", cfg, "--check", "--no-color")
	require.Error(t, err)

	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.True(t, Quiet(err))
	assert.ErrorIs(t, err, ErrWouldChange)
	assert.Contains(t, stdout, "Would change")
	assert.Equal(t, typingSrc, readFile(t, file))
}

func TestRun_DiffPrintsToStdout(t *testing.T) {
	t.Parallel()

	dir, file, cfg := workspace(t)

	stdout, stderr, err := execute(t, "", dir, "--config", cfg, "--diff", "--no-color")
	require.NoError(t, err)

	assert.Contains(t, stdout, "+import typing as t\n")
	assert.NotContains(t, stdout, "Would change")
	assert.NotEmpty(t, stderr)
	assert.Equal(t, typingSrc, readFile(t, file))
}

func TestRun_Stdin(t *testing.T) {
	t.Parallel()

	_, _, cfg := workspace(t)

	stdout, _, err := execute(t, typingSrc, "-", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, typingWant, stdout)
}

func TestRun_StdinSyntaxError(t *testing.T) {
	t.Parallel()

	_, _, cfg := workspace(t)

	stdout, stderr, err := execute(t, "def f(:\n", "-", "--config", cfg, "--no-color")
	require.Error(t, err)

	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.ErrorIs(t, err, ErrFilesFailed)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "invalid python syntax")
}

func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	dir, _, cfg := workspace(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "exclusive modes", args: []string{dir, "--check", "--diff"}},
		{name: "bad format", args: []string{dir, "--format", "xml"}},
		{name: "bad flag value", args: []string{dir, "--jobs", "many"}},
		{name: "unknown flag", args: []string{dir, "--frobnicate"}},
		{name: "invalid alias", args: []string{dir, "--alias", "1x"}},
		{name: "invalid match", args: []string{dir, "--match", "fuzzy"}},
		{name: "stdin mixed with paths", args: []string{"-", dir}},
		{name: "watch with stdout", args: []string{dir, "--watch", "--stdout"}},
		{name: "missing path", args: []string{filepath.Join(dir, "absent")}},
		{name: "missing config", args: []string{dir, "--config", filepath.Join(dir, "absent.yaml")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			args := tt.args
			if !strings.Contains(tt.name, "config") {
				args = append(args, "--config", cfg)
			}

			_, _, err := execute(t, "", args...)
			require.Error(t, err)
			assert.Equal(t, ExitUsage, ExitCode(err), "error: %v", err)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	_, _, cfg := workspace(t)

	stdout, _, err := execute(t, "", "config", "validate", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, cfg)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("alias: 3\nunknown: true\n"), 0o600))

	_, _, err = execute(t, "", "config", "validate", bad)
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestConfigShow(t *testing.T) {
	t.Parallel()

	_, _, cfg := workspace(t)

	stdout, _, err := execute(t, "", "config", "show", "--config", cfg)
	require.NoError(t, err)

	assert.Contains(t, stdout, "# "+cfg)
	assert.Contains(t, stdout, "module: typing")
	assert.Contains(t, stdout, "alias: t")
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "pyqualify "+version.String()+"\n", stdout)
}

func TestRootCommand_NameOverride(t *testing.T) {
	t.Setenv(EnvCommandName, "python -m qualify")

	cmd := NewRootCommand()
	assert.Equal(t, "python -m qualify [paths...]", cmd.Use)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitUsage, ExitCode(usageError("bad")))
	assert.Equal(t, ExitFailure, ExitCode(outcome(&report.Summary{Failed: 1})))
	assert.Equal(t, ExitFailure, ExitCode(outcome(&report.Summary{Check: true, Changed: 2})))
	require.NoError(t, outcome(&report.Summary{Changed: 2}))
}

func TestRelativeTo(t *testing.T) {
	t.Parallel()

	roots := []string{filepath.FromSlash("/repo/src"), filepath.FromSlash("/repo/tests")}

	assert.Equal(t, "pkg/mod.py", relativeTo(roots, filepath.FromSlash("/repo/src/pkg/mod.py")))
	assert.Equal(t, "test_a.py", relativeTo(roots, filepath.FromSlash("/repo/tests/test_a.py")))
	assert.Equal(t, "setup.py", relativeTo(roots, filepath.FromSlash("/elsewhere/setup.py")))
}
