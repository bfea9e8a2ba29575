package codemod

import "fmt"

// WarningKind classifies advisories raised while rewriting a file.
type WarningKind string

// Warning kinds.
const (
	// WarnUnusedImport flags an imported symbol nothing reads.
	WarnUnusedImport WarningKind = "unused-import"
	// WarnWildcardImport flags a star import, which is never rewritten.
	WarnWildcardImport WarningKind = "wildcard-import"
	// WarnAmbiguousGenericImport flags a repeated bare import of the watched
	// module; only the first one is rewritten.
	WarnAmbiguousGenericImport WarningKind = "ambiguous-generic-import"
	// WarnAliasShadowed flags an alias name already bound in module scope.
	WarnAliasShadowed WarningKind = "alias-shadowed"
	// WarnDeleteTarget flags a `del` of an imported name that now deletes an
	// attribute of the watched module.
	WarnDeleteTarget WarningKind = "delete-target"
)

// Severity orders warnings for display.
type Severity int

// Severities.
const (
	SeverityDebug Severity = iota
	SeverityAdvisory
)

func (s Severity) String() string {
	if s == SeverityDebug {
		return "debug"
	}

	return "advisory"
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name. Unknown names are advisory.
func (s *Severity) UnmarshalText(text []byte) error {
	if string(text) == "debug" {
		*s = SeverityDebug
	} else {
		*s = SeverityAdvisory
	}

	return nil
}

// Warning is one advisory. Warnings never stop a rewrite.
type Warning struct {
	Kind     WarningKind `json:"kind"              yaml:"kind"`
	Severity Severity    `json:"severity"          yaml:"severity"`
	Message  string      `json:"message"           yaml:"message"`
	Filename string      `json:"filename,omitempty" yaml:"filename,omitempty"`
	Line     int         `json:"line"              yaml:"line"`
	Column   int         `json:"column"            yaml:"column"`
}

func (w Warning) String() string {
	if w.Filename == "" {
		return fmt.Sprintf("%d:%d: %s: %s", w.Line, w.Column, w.Kind, w.Message)
	}

	return fmt.Sprintf("%s:%d:%d: %s: %s", w.Filename, w.Line, w.Column, w.Kind, w.Message)
}

// Stats counts what a transform did to one file.
type Stats struct {
	ImportsRemoved      int `json:"imports_removed"      yaml:"imports_removed"`
	ImportsRewritten    int `json:"imports_rewritten"    yaml:"imports_rewritten"`
	ImportsInserted     int `json:"imports_inserted"     yaml:"imports_inserted"`
	ReferencesRewritten int `json:"references_rewritten" yaml:"references_rewritten"`
	UnusedSymbols       int `json:"unused_symbols"       yaml:"unused_symbols"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.ImportsRemoved += other.ImportsRemoved
	s.ImportsRewritten += other.ImportsRewritten
	s.ImportsInserted += other.ImportsInserted
	s.ReferencesRewritten += other.ReferencesRewritten
	s.UnusedSymbols += other.UnusedSymbols
}

// Edit locates a statement a transform rewrote or removed. Positions are
// 1-based byte columns, End is exclusive.
type Edit struct {
	Line      int    `json:"line"       yaml:"line"`
	Column    int    `json:"column"     yaml:"column"`
	EndLine   int    `json:"end_line"   yaml:"end_line"`
	EndColumn int    `json:"end_column" yaml:"end_column"`
	Message   string `json:"message"    yaml:"message"`
}
