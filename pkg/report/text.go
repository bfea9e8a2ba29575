package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

func writeText(w io.Writer, s *Summary, colorize bool) error {
	failed := color.New(color.FgRed)
	warned := color.New(color.FgYellow)

	for _, c := range []*color.Color{failed, warned} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	var sb strings.Builder

	for _, fr := range s.Files {
		for _, warning := range fr.Warnings {
			warned.Fprintln(&sb, warning.String())
		}

		if fr.Status == StatusFailed {
			failed.Fprintf(&sb, "error: %s: %s\n", fr.Path, fr.Error)
		}
	}

	changedHeader := "Changed"
	if s.Check {
		changedHeader = "Would change"
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Format.Header = text.FormatDefault
	tbl.Style().Format.Footer = text.FormatDefault
	tbl.AppendHeader(table.Row{"Files", changedHeader, "Unchanged", "Cached", "Failed", "References", "Imports removed", "Imports added", "Warnings"})
	tbl.AppendRow(table.Row{
		humanize.Comma(int64(len(s.Files))),
		humanize.Comma(int64(s.Changed)),
		humanize.Comma(int64(s.Unchanged)),
		humanize.Comma(int64(s.Cached)),
		humanize.Comma(int64(s.Failed)),
		humanize.Comma(int64(s.Totals.ReferencesRewritten)),
		humanize.Comma(int64(s.Totals.ImportsRemoved)),
		humanize.Comma(int64(s.Totals.ImportsInserted)),
		humanize.Comma(int64(s.Warnings)),
	})
	tbl.AppendFooter(table.Row{fmt.Sprintf("%s in %s", humanize.Bytes(uint64(max(s.Bytes, 0))), roundDuration(s.Duration))})

	sb.WriteString(tbl.Render())
	sb.WriteByte('\n')

	_, err := io.WriteString(w, sb.String())
	if err != nil {
		return fmt.Errorf("write text report: %w", err)
	}

	return nil
}

func roundDuration(d time.Duration) time.Duration {
	if d > time.Second {
		return d.Round(10 * time.Millisecond)
	}

	return d.Round(time.Microsecond)
}

func writeYAML(w io.Writer, s *Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}

	return nil
}
