package domain

import (
	"strings"
	"unicode/utf8"
)

// Position is a zero-based location inside a CodeDocument.
// Character is measured in UTF-16 code units, as LSP clients expect.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span of a CodeDocument: End is exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Before reports whether p sorts before q in document order.
func (p Position) Before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Character < q.Character
}

// Valid reports whether the range has non-negative coordinates and Start <= End.
func (r Range) Valid() bool {
	if r.Start.Line < 0 || r.Start.Character < 0 || r.End.Line < 0 || r.End.Character < 0 {
		return false
	}
	return !r.End.Before(r.Start)
}

// Shift moves both ends of the range by lines.
func (r Range) Shift(lines int) Range {
	r.Start.Line += lines
	r.End.Line += lines
	return r
}

// CodeDocument is an immutable, versioned sequence of source lines.
// Editing code produces a new CodeDocument; instances are never mutated.
type CodeDocument struct {
	version uint64
	lines   []string
}

// NewCodeDocument splits text into lines and binds it to version.
//
// Line breaks follow the usual "splitlines" rules: "\n", "\r\n" and "\r" all end a line,
// a trailing line break does not create an extra empty line and an empty text has no lines.
func NewCodeDocument(text string, version uint64) CodeDocument {
	return CodeDocument{version: version, lines: splitLines(text)}
}

// RestoreCodeDocument rebuilds a document from already-split lines, as persisted by stores.
func RestoreCodeDocument(lines []string, version uint64) CodeDocument {
	ls := make([]string, len(lines))
	copy(ls, lines)
	return CodeDocument{version: version, lines: ls}
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Version returns the monotonic document version.
func (d CodeDocument) Version() uint64 { return d.version }

// LineCount returns the number of lines in the document.
func (d CodeDocument) LineCount() int { return len(d.lines) }

// Empty reports whether the document has no lines.
func (d CodeDocument) Empty() bool { return len(d.lines) == 0 }

// Line returns line i, or "" when i is out of range.
func (d CodeDocument) Line(i int) string {
	if i < 0 || i >= len(d.lines) {
		return ""
	}
	return d.lines[i]
}

// Lines returns a copy of the document lines.
func (d CodeDocument) Lines() []string {
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

// Text joins the lines back with "\n".
func (d CodeDocument) Text() string {
	return strings.Join(d.lines, "\n")
}

// Contains reports whether r resolves to valid offsets in the document.
func (d CodeDocument) Contains(r Range) bool {
	if !r.Valid() {
		return false
	}
	return d.containsPosition(r.Start) && d.containsPosition(r.End)
}

func (d CodeDocument) containsPosition(p Position) bool {
	if p.Line >= len(d.lines) {
		return false
	}
	return p.Character <= UTF16Len(d.lines[p.Line])
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	units := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
		s = s[size:]
	}
	return units
}

// UTF16Column converts a byte offset inside line into a UTF-16 column.
func UTF16Column(line string, byteOffset int) int {
	if byteOffset <= 0 {
		return 0
	}
	if byteOffset > len(line) {
		byteOffset = len(line)
	}
	return UTF16Len(line[:byteOffset])
}
