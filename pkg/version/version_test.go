package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

// These tests mutate package state and must not run in parallel.

func restore(t *testing.T) {
	t.Helper()

	v, c, d := Version, Commit, Date

	t.Cleanup(func() { Version, Commit, Date = v, c, d })
}

func TestApply_FillsUnsetFields(t *testing.T) {
	restore(t)

	Version, Commit, Date = unset, "none", "unknown"

	apply(&debug.BuildInfo{
		Main: debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	})

	assert.Equal(t, "v1.2.3 (commit: abc123, built: 2026-01-02T03:04:05Z)", String())
}

func TestApply_KeepsLinkerValues(t *testing.T) {
	restore(t)

	Version, Commit, Date = "v9.9.9", "deadbeef", "yesterday"

	apply(&debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}},
	})

	assert.Equal(t, "v9.9.9", Version)
	assert.Equal(t, "deadbeef", Commit)
	assert.Equal(t, "yesterday", Date)
}
