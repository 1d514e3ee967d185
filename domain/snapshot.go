package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// NoIssuesFound is the summary emitted when an analysis produced nothing to report.
const NoIssuesFound = "no issues found"

// FeedbackSnapshot is the immutable result of one analysis, bound to the document it ran on.
type FeedbackSnapshot struct {
	Document CodeDocument
	Warnings []LocalizedWarning
	Summary  string
}

// NewFeedbackSnapshot copies warnings so later changes by the caller are not observed.
func NewFeedbackSnapshot(doc CodeDocument, warnings []LocalizedWarning, summary string) FeedbackSnapshot {
	ws := make([]LocalizedWarning, len(warnings))
	copy(ws, warnings)
	return FeedbackSnapshot{Document: doc, Warnings: ws, Summary: summary}
}

// Version returns the document version the snapshot was computed against.
func (s FeedbackSnapshot) Version() uint64 {
	return s.Document.Version()
}

// Fingerprint identifies the feedback content, independent of the bound document.
func (s FeedbackSnapshot) Fingerprint() string {
	return FeedbackFingerprint(s.Summary, s.Warnings)
}

// FeedbackFingerprint hashes a summary and warning list.
func FeedbackFingerprint(summary string, warnings []LocalizedWarning) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00", strings.TrimSpace(summary))
	for _, w := range warnings {
		fmt.Fprintf(h, "%d:%d-%d:%d|%d|%s|%s|%s\x00",
			w.Range.Start.Line, w.Range.Start.Character, w.Range.End.Line, w.Range.End.Character,
			w.Severity, w.Code, w.Source, w.Message)
	}
	return hex.EncodeToString(h.Sum(nil))
}
