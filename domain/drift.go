package domain

import (
	difflib "github.com/pmezard/go-difflib/difflib"
)

// DriftPolicy decides whether code moved far enough from the document a snapshot
// was computed against for its localized warnings to be untrustworthy.
type DriftPolicy interface {
	Drifted(bound, current CodeDocument) bool
}

// LineCountDrift flags drift when the line count changes by more than Threshold.
// With Threshold 0 any line-count change is drift.
type LineCountDrift struct {
	Threshold int
}

func (p LineCountDrift) Drifted(bound, current CodeDocument) bool {
	delta := current.LineCount() - bound.LineCount()
	if delta < 0 {
		delta = -delta
	}
	return delta > p.Threshold
}

// DiffDrift is stricter than LineCountDrift: any line-count change is drift, and so is
// an edit that leaves the count intact but rewrites more than MaxChangedRatio of the lines.
type DiffDrift struct {
	MaxChangedRatio float64
}

func (p DiffDrift) Drifted(bound, current CodeDocument) bool {
	if bound.LineCount() != current.LineCount() {
		return true
	}
	if bound.LineCount() == 0 {
		return false
	}
	m := difflib.NewMatcher(bound.Lines(), current.Lines())
	return 1-m.Ratio() > p.MaxChangedRatio
}
