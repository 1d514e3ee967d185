package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineRange(line, from, to int) Range {
	return Range{Start: Position{line, from}, End: Position{line, to}}
}

func TestAssemble_NoIssues(t *testing.T) {
	t.Parallel()

	doc := NewCodeDocument("x=1\ny=2\n", 1)
	snap := NewFeedbackAssembler(nil).Assemble(AssembleInput{Document: doc})

	assert.Equal(t, NoIssuesFound, snap.Summary)
	assert.Empty(t, snap.Warnings)
	assert.Equal(t, uint64(1), snap.Version())
}

func TestAssemble_KeepsSummaryWithoutWarnings(t *testing.T) {
	t.Parallel()

	doc := NewCodeDocument("x=1\n", 1)
	snap := NewFeedbackAssembler(nil).Assemble(AssembleInput{Document: doc, Summary: "  Looks fine overall.  "})

	assert.Equal(t, "Looks fine overall.", snap.Summary)
}

func TestAssemble_DedupKeepsMostSevere(t *testing.T) {
	t.Parallel()

	doc := NewCodeDocument("a = 1\nb = 2\nc = 3\n", 1)
	diags := []ToolDiagnostic{
		{Range: lineRange(1, 0, 5), Severity: 2, Code: "E1", Source: "pylint", Message: "first"},
		{Range: lineRange(0, 0, 5), Severity: 3, Code: "E2", Source: "pylint", Message: "other"},
		{Range: lineRange(1, 0, 5), Severity: 1, Code: "E1", Source: "flake8", Message: "second"},
		{Range: lineRange(1, 0, 5), Severity: 1, Code: "E1", Source: "ruff", Message: "third"},
	}
	snap := NewFeedbackAssembler(nil).Assemble(AssembleInput{Document: doc, Diagnostics: diags})

	require.Len(t, snap.Warnings, 2)
	assert.Equal(t, "other", snap.Warnings[0].Message)
	assert.Equal(t, "second", snap.Warnings[1].Message)
	assert.Equal(t, SeverityError, snap.Warnings[1].Severity)
}

func TestAssemble_SortsStablyByStart(t *testing.T) {
	t.Parallel()

	doc := NewCodeDocument("a = 1\nb = 2\nc = 3\n", 1)
	diags := []ToolDiagnostic{
		{Range: lineRange(2, 0, 5), Severity: 2, Code: "C", Message: "line 2"},
		{Range: lineRange(0, 4, 5), Severity: 2, Code: "B", Message: "line 0 col 4"},
		{Range: lineRange(0, 0, 5), Severity: 2, Code: "A", Message: "line 0 col 0 first"},
		{Range: lineRange(0, 0, 1), Severity: 2, Code: "D", Message: "line 0 col 0 second"},
	}
	snap := NewFeedbackAssembler(nil).Assemble(AssembleInput{Document: doc, Diagnostics: diags})

	var got []string
	for _, w := range snap.Warnings {
		got = append(got, w.Message)
	}
	assert.Equal(t, []string{"line 0 col 0 first", "line 0 col 0 second", "line 0 col 4", "line 2"}, got)
}

func TestAssemble_SkipsInvalidRanges(t *testing.T) {
	t.Parallel()

	doc := NewCodeDocument("a = 1\n", 1)
	diags := []ToolDiagnostic{
		{Range: Range{Start: Position{0, 3}, End: Position{0, 1}}, Severity: 1, Code: "X"},
		{Range: lineRange(-1, 0, 1), Severity: 1, Code: "Y"},
		{Range: lineRange(0, 0, 5), Severity: 9, Code: "Z"},
	}
	snap := NewFeedbackAssembler(nil).Assemble(AssembleInput{Document: doc, Diagnostics: diags})

	require.Len(t, snap.Warnings, 1)
	assert.Equal(t, "Z", snap.Warnings[0].Code)
	assert.Equal(t, SeverityWarning, snap.Warnings[0].Severity, "unknown levels map to the default")
}

func TestAssemble_MergesLocatedWarnings(t *testing.T) {
	t.Parallel()

	doc := NewCodeDocument("a = 1\nfoo = 2\n", 1)
	snap := NewFeedbackAssembler(nil).Assemble(AssembleInput{
		Document:    doc,
		Diagnostics: []ToolDiagnostic{{Range: lineRange(5, 2, 5), Severity: 2, Code: "W0612", Message: "unused"}},
		Warnings:    []RawWarning{{Description: "`foo` is shadowed"}},
		Summary:     "Two findings.",
		LineOffset:  4,
	})

	require.Len(t, snap.Warnings, 2)
	assert.Equal(t, SemanticWarningCode, snap.Warnings[0].Code)
	assert.Equal(t, 5, snap.Warnings[0].Range.Start.Line)
	assert.Equal(t, "W0612", snap.Warnings[1].Code)
	assert.Equal(t, "Two findings.", snap.Summary)
}

func TestSnapshot_IsolatedFromCaller(t *testing.T) {
	t.Parallel()

	ws := []LocalizedWarning{{Range: lineRange(0, 0, 1), Code: "A", Message: "m"}}
	snap := NewFeedbackSnapshot(NewCodeDocument("a\n", 1), ws, "s")
	before := snap.Fingerprint()
	ws[0].Message = "changed"

	assert.Equal(t, "m", snap.Warnings[0].Message)
	assert.Equal(t, before, snap.Fingerprint())
	assert.NotEqual(t, before, FeedbackFingerprint("s", ws))
}
