// Package render prints localized warnings for terminals.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"data-sculptor/domain"
)

// PrettyOpts controls Pretty.
type PrettyOpts struct {
	// Path is printed in front of every position.
	Path string
	// LineOffset is the number of lines before the document in Path.
	LineOffset int
	Color      bool
	// Width truncates messages to this many terminal columns; zero disables it.
	Width int
}

type palette struct {
	pos, code, gutter, mark *color.Color
	severity                map[domain.Severity]*color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		pos:    color.New(color.Bold),
		code:   color.New(color.FgCyan),
		gutter: color.New(color.FgBlue),
		mark:   color.New(color.FgGreen, color.Bold),
		severity: map[domain.Severity]*color.Color{
			domain.SeverityError:   color.New(color.FgRed, color.Bold),
			domain.SeverityWarning: color.New(color.FgYellow, color.Bold),
			domain.SeverityInfo:    color.New(color.FgBlue, color.Bold),
			domain.SeverityHint:    color.New(color.FgWhite),
		},
	}
	all := []*color.Color{p.pos, p.code, p.gutter, p.mark}
	for _, c := range p.severity {
		all = append(all, c)
	}
	for _, c := range all {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Pretty writes each warning as
//
//	<path>:<line>:<col>: <SEVERITY> <code>: <message>
//
// followed by the source line and a ^~~~ marker under the range. Lines and columns
// are printed 1-based.
func Pretty(w io.Writer, doc domain.CodeDocument, warnings []domain.LocalizedWarning, opts PrettyOpts) error {
	p := newPalette(opts.Color)
	for _, warn := range warnings {
		start := warn.Range.Start
		msg := warn.Message
		if opts.Width > 0 {
			msg = runewidth.Truncate(msg, opts.Width, "...")
		}
		sev := p.severity[warn.Severity]
		if sev == nil {
			sev = p.severity[domain.SeverityWarning]
		}
		if _, err := fmt.Fprintf(w, "%s: %s %s: %s\n",
			p.pos.Sprintf("%s:%d:%d", opts.Path, start.Line+1, start.Character+1),
			sev.Sprint(warn.Severity.String()),
			p.code.Sprint(warn.Code),
			msg,
		); err != nil {
			return err
		}

		line := start.Line - opts.LineOffset
		if line < 0 || line >= doc.LineCount() {
			continue
		}
		src := doc.Line(line)
		from := runewidth.StringWidth(src[:utf16Offset(src, start.Character)])
		to := from + 1
		if warn.Range.End.Line == start.Line && warn.Range.End.Character > start.Character {
			to = runewidth.StringWidth(src[:utf16Offset(src, warn.Range.End.Character)])
		} else if warn.Range.End.Line > start.Line {
			to = runewidth.StringWidth(strings.TrimRight(src, " \t"))
		}
		if to <= from {
			to = from + 1
		}

		gutter := fmt.Sprintf("%5d | ", start.Line+1)
		if _, err := fmt.Fprintf(w, "%s%s\n%s%s%s\n",
			p.gutter.Sprint(gutter), src,
			p.gutter.Sprint(strings.Repeat(" ", len(gutter)-2)+"| "),
			strings.Repeat(" ", from),
			p.mark.Sprint("^"+strings.Repeat("~", to-from-1)),
		); err != nil {
			return err
		}
	}
	return nil
}

// utf16Offset returns the byte offset of the UTF-16 column col in line, clamped to
// the line length.
func utf16Offset(line string, col int) int {
	units := 0
	for i, r := range line {
		if units >= col {
			return i
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return len(line)
}
