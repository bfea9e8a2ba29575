// Package difftext renders line-level unified diffs of rewritten files.
package difftext

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultContext is the number of unchanged lines shown around a change.
const DefaultContext = 3

const noNewline = `\ No newline at end of file`

type line struct {
	op    diffmatchpatch.Operation
	text  string
	noEOL bool
}

// Unified returns the unified diff between before and after, labelled with
// name. Identical inputs yield an empty string.
func Unified(name string, before, after []byte) string {
	return UnifiedContext(name, before, after, DefaultContext)
}

// UnifiedContext is Unified with a custom context size.
func UnifiedContext(name string, before, after []byte, context int) string {
	if string(before) == string(after) {
		return ""
	}

	lines := diffLines(string(before), string(after))

	var sb strings.Builder

	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", name, name)

	for _, h := range hunks(lines, context) {
		writeHunk(&sb, lines, h)
	}

	return sb.String()
}

func diffLines(before, after string) []line {
	dmp := diffmatchpatch.New()
	src, dst, table := dmp.DiffLinesToRunes(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(src, dst, false), table)

	var out []line

	for _, d := range diffs {
		for _, text := range splitKeepEOL(d.Text) {
			out = append(out, line{
				op:    d.Type,
				text:  strings.TrimSuffix(text, "\n"),
				noEOL: !strings.HasSuffix(text, "\n"),
			})
		}
	}

	return out
}

func splitKeepEOL(s string) []string {
	var parts []string

	for s != "" {
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			parts = append(parts, s)

			break
		}

		parts = append(parts, s[:idx+1])
		s = s[idx+1:]
	}

	return parts
}

// hunk is a half-open range of line indices.
type hunk struct{ start, end int }

func hunks(lines []line, context int) []hunk {
	var out []hunk

	for idx, l := range lines {
		if l.op == diffmatchpatch.DiffEqual {
			continue
		}

		start := max(idx-context, 0)
		end := min(idx+context+1, len(lines))

		if n := len(out); n > 0 && start <= out[n-1].end {
			out[n-1].end = max(out[n-1].end, end)

			continue
		}

		out = append(out, hunk{start: start, end: end})
	}

	return out
}

func writeHunk(sb *strings.Builder, lines []line, h hunk) {
	oldBefore, newBefore := 0, 0

	for _, l := range lines[:h.start] {
		if l.op != diffmatchpatch.DiffInsert {
			oldBefore++
		}

		if l.op != diffmatchpatch.DiffDelete {
			newBefore++
		}
	}

	oldCount, newCount := 0, 0

	for _, l := range lines[h.start:h.end] {
		if l.op != diffmatchpatch.DiffInsert {
			oldCount++
		}

		if l.op != diffmatchpatch.DiffDelete {
			newCount++
		}
	}

	fmt.Fprintf(sb, "@@ -%s +%s @@\n", hunkRange(oldBefore, oldCount), hunkRange(newBefore, newCount))

	for _, l := range lines[h.start:h.end] {
		switch l.op {
		case diffmatchpatch.DiffDelete:
			sb.WriteByte('-')
		case diffmatchpatch.DiffInsert:
			sb.WriteByte('+')
		case diffmatchpatch.DiffEqual:
			sb.WriteByte(' ')
		}

		sb.WriteString(l.text)
		sb.WriteByte('\n')

		if l.noEOL {
			sb.WriteString(noNewline)
			sb.WriteByte('\n')
		}
	}
}

func hunkRange(before, count int) string {
	start := before + 1
	if count == 0 {
		start = before
	}

	if count == 1 {
		return fmt.Sprint(start)
	}

	return fmt.Sprintf("%d,%d", start, count)
}

// Write prints diff to w, coloring headers, hunk markers, removals and
// additions when colorize is set.
func Write(w io.Writer, diff string, colorize bool) error {
	header := color.New(color.Bold)
	marker := color.New(color.FgCyan)
	removed := color.New(color.FgRed)
	added := color.New(color.FgGreen)

	for _, c := range []*color.Color{header, marker, removed, added} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(diff))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		text := scanner.Text()

		var err error

		switch {
		case strings.HasPrefix(text, "--- "), strings.HasPrefix(text, "+++ "):
			_, err = header.Fprintln(w, text)
		case strings.HasPrefix(text, "@@"):
			_, err = marker.Fprintln(w, text)
		case strings.HasPrefix(text, "-"):
			_, err = removed.Fprintln(w, text)
		case strings.HasPrefix(text, "+"):
			_, err = added.Fprintln(w, text)
		default:
			_, err = fmt.Fprintln(w, text)
		}

		if err != nil {
			return fmt.Errorf("write diff: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan diff: %w", err)
	}

	return nil
}
