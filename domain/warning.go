package domain

import (
	"fmt"
	"strings"
)

// Severity orders diagnostics: Hint < Info < Warning < Error.
type Severity uint8

const (
	SeverityHint Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityHint:
		return "HINT"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// LSP returns the Language Server Protocol number for the severity (1=Error .. 4=Hint).
func (s Severity) LSP() int {
	switch s {
	case SeverityError:
		return 1
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 3
	default:
		return 4
	}
}

// SeverityMap translates numeric tool severities into Severity.
type SeverityMap struct {
	Levels  map[int]Severity
	Default Severity
}

// DefaultSeverityMap follows the LSP numbering used by the static analyzers.
func DefaultSeverityMap() SeverityMap {
	return SeverityMap{
		Levels: map[int]Severity{
			1: SeverityError,
			2: SeverityWarning,
			3: SeverityInfo,
			4: SeverityHint,
		},
		Default: SeverityWarning,
	}
}

// Map returns the severity for a numeric tool level.
func (m SeverityMap) Map(level int) Severity {
	if s, ok := m.Levels[level]; ok {
		return s
	}
	return m.Default
}

const (
	// SemanticWarningCode is the stable diagnostic code of text-localized warnings.
	SemanticWarningCode = "custom-warning"
	// SemanticWarningSource names the producer shown next to localized warnings.
	SemanticWarningSource = "Data Sculptor"
)

// LineHint is a partial, document-local position reported by a tool or a model.
// Lines are zero-based and EndLine is inclusive.
type LineHint struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// RawWarning is an unstructured diagnostic with no reliable position.
type RawWarning struct {
	Description string    `json:"description"`
	Category    string    `json:"framework"`
	Fix         string    `json:"fix"`
	Benefit     string    `json:"benefit"`
	Message     string    `json:"message,omitempty"`
	Hint        *LineHint `json:"hint,omitempty"`
}

// Text returns the user-facing message for the warning.
func (w RawWarning) Text() string {
	switch {
	case strings.TrimSpace(w.Message) != "":
		return strings.TrimSpace(w.Message)
	case strings.TrimSpace(w.Fix) != "" && strings.TrimSpace(w.Description) != "":
		return fmt.Sprintf("%s. %s", strings.TrimRight(strings.TrimSpace(w.Description), "."), strings.TrimSpace(w.Fix))
	default:
		return strings.TrimSpace(w.Description + " " + w.Fix)
	}
}

// Malformed reports whether the warning carries no text to localize or show.
func (w RawWarning) Malformed() bool {
	return strings.TrimSpace(w.Description) == "" &&
		strings.TrimSpace(w.Fix) == "" &&
		strings.TrimSpace(w.Message) == ""
}

// LLMDescription renders the warning as a single numbered-list friendly line.
func (w RawWarning) LLMDescription() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(w.Description))
	if w.Category != "" {
		fmt.Fprintf(&b, " (framework: %s)", w.Category)
	}
	if w.Fix != "" {
		fmt.Fprintf(&b, " Fix: %s", strings.TrimSpace(w.Fix))
	}
	if w.Benefit != "" {
		fmt.Fprintf(&b, " Benefit: %s", strings.TrimSpace(w.Benefit))
	}
	return b.String()
}

// LocalizedWarning is a warning bound to a Range of the document it was computed against.
type LocalizedWarning struct {
	Range    Range    `json:"range"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Source   string   `json:"source"`
	Message  string   `json:"message"`
}

// LLMDescription renders the warning with one-based line numbers for prompts.
func (w LocalizedWarning) LLMDescription() string {
	start := w.Range.Start.Line + 1
	end := w.Range.End.Line + 1
	if start == end {
		return fmt.Sprintf("Line %d: %s", start, w.Message)
	}
	return fmt.Sprintf("Lines %d-%d: %s", start, end, w.Message)
}

// ToolDiagnostic is a pre-localized diagnostic from a structural linter,
// still carrying the tool's numeric severity.
type ToolDiagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"`
	Code     string `json:"code"`
	Source   string `json:"source"`
	Message  string `json:"message"`
}
