package report_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod"
	"github.com/Sumatoshi-tech/pyqualify/pkg/report"
)

func sampleSummary() *report.Summary {
	s := &report.Summary{Duration: 1500 * time.Millisecond}

	s.Add(report.FileResult{
		Path:   "a.py",
		Status: report.StatusChanged,
		Bytes:  2048,
		Warnings: []codemod.Warning{{
			Kind: codemod.WarnUnusedImport, Severity: codemod.SeverityAdvisory,
			Message: "List is unused", Filename: "a.py", Line: 1, Column: 20,
		}},
		Stats: codemod.Stats{ImportsRemoved: 1, ReferencesRewritten: 4, ImportsInserted: 1},
	})
	s.Add(report.FileResult{Path: "b.py", Status: report.StatusUnchanged, Bytes: 10})
	s.Add(report.FileResult{Path: "c.py", Status: report.StatusFailed, Error: "syntax error at line 3"})
	s.Add(report.FileResult{Path: "d.py", Status: report.StatusCached})

	return s
}

func TestSummary_Add(t *testing.T) {
	t.Parallel()

	s := sampleSummary()

	assert.Equal(t, 1, s.Changed)
	assert.Equal(t, 1, s.Unchanged)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Cached)
	assert.Equal(t, 1, s.Warnings)
	assert.Equal(t, int64(2058), s.Bytes)
	assert.Equal(t, 4, s.Totals.ReferencesRewritten)

	failures := s.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "c.py", failures[0].Path)
}

func TestWrite_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, sampleSummary(), report.FormatText, false))

	out := buf.String()
	assert.Contains(t, out, "a.py:1:20: unused-import: List is unused\n")
	assert.Contains(t, out, "error: c.py: syntax error at line 3\n")
	assert.Contains(t, out, "Changed")
	assert.Contains(t, out, "2.1 kB in 1.5s")
	assert.NotContains(t, out, "\x1b[")
}

func TestWrite_TextCheckHeader(t *testing.T) {
	t.Parallel()

	s := sampleSummary()
	s.Check = true

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, s, report.FormatText, false))

	assert.Contains(t, buf.String(), "Would change")
}

func TestWrite_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, sampleSummary(), report.FormatJSON, false))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.InDelta(t, 1, decoded["changed"], 0)
	files, ok := decoded["files"].([]any)
	require.True(t, ok)
	require.Len(t, files, 4)

	first, ok := files[0].(map[string]any)
	require.True(t, ok)
	warnings, ok := first["warnings"].([]any)
	require.True(t, ok)
	assert.Equal(t, "advisory", warnings[0].(map[string]any)["severity"])
}

func TestWrite_YAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, sampleSummary(), report.FormatYAML, false))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, 1, decoded["failed"])
	assert.Equal(t, "1.5s", decoded["duration"])
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := report.ParseFormat("yaml")
	require.NoError(t, err)
	assert.Equal(t, report.FormatYAML, f)

	_, err = report.ParseFormat("xml")
	require.ErrorIs(t, err, report.ErrUnknownFormat)

	require.ErrorIs(t, report.Write(&bytes.Buffer{}, &report.Summary{}, "xml", false), report.ErrUnknownFormat)
}
