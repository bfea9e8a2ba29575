// Package report renders the summary of a batch rewrite as a table, JSON or
// YAML.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Sumatoshi-tech/pyqualify/pkg/codemod"
)

// Format selects the summary encoding.
type Format string

// Formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnknownFormat is returned for a format other than text, json or yaml.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Status is the outcome for one file.
type Status string

// Statuses.
const (
	StatusChanged   Status = "changed"
	StatusUnchanged Status = "unchanged"
	StatusCached    Status = "cached"
	StatusFailed    Status = "failed"
)

// FileResult is one processed file.
type FileResult struct {
	Path     string            `json:"path"               yaml:"path"`
	Status   Status            `json:"status"             yaml:"status"`
	Error    string            `json:"error,omitempty"    yaml:"error,omitempty"`
	Bytes    int               `json:"bytes"              yaml:"bytes"`
	Inserted []string          `json:"inserted,omitempty" yaml:"inserted,omitempty"`
	Warnings []codemod.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Stats    codemod.Stats     `json:"stats"              yaml:"stats"`
}

// Summary aggregates a batch.
type Summary struct {
	// Check is set when files were only inspected, not written.
	Check     bool          `json:"check"     yaml:"check"`
	Files     []FileResult  `json:"files"     yaml:"files"`
	Changed   int           `json:"changed"   yaml:"changed"`
	Unchanged int           `json:"unchanged" yaml:"unchanged"`
	Cached    int           `json:"cached"    yaml:"cached"`
	Failed    int           `json:"failed"    yaml:"failed"`
	Warnings  int           `json:"warnings"  yaml:"warnings"`
	Bytes     int64         `json:"bytes"     yaml:"bytes"`
	Totals    codemod.Stats `json:"totals"    yaml:"totals"`
	Duration  time.Duration `json:"duration"  yaml:"duration"`
}

// Add folds one file into the summary.
func (s *Summary) Add(fr FileResult) {
	s.Files = append(s.Files, fr)
	s.Bytes += int64(fr.Bytes)
	s.Warnings += len(fr.Warnings)
	s.Totals.Add(fr.Stats)

	switch fr.Status {
	case StatusChanged:
		s.Changed++
	case StatusUnchanged:
		s.Unchanged++
	case StatusCached:
		s.Cached++
	case StatusFailed:
		s.Failed++
	}
}

// Failures returns the failed files.
func (s *Summary) Failures() []FileResult {
	var out []FileResult

	for _, fr := range s.Files {
		if fr.Status == StatusFailed {
			out = append(out, fr)
		}
	}

	return out
}

// Write renders s to w in the given format.
func Write(w io.Writer, s *Summary, format Format, colorize bool) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}

		return nil
	case FormatYAML:
		return writeYAML(w, s)
	case FormatText:
		return writeText(w, s, colorize)
	}

	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
