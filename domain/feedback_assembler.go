package domain

import (
	"log"
	"sort"
	"strings"
)

// AssembleInput gathers everything a FeedbackSnapshot is built from.
type AssembleInput struct {
	Document CodeDocument
	// Diagnostics are already localized by structural tools and pass through.
	Diagnostics []ToolDiagnostic
	// Warnings still need the Range Locator.
	Warnings   []RawWarning
	Summary    string
	Severities SeverityMap
	// LineOffset is applied to located warnings; tool diagnostics are assumed to be
	// in caller coordinates already.
	LineOffset int
}

// FeedbackAssembler merges tool diagnostics and located warnings into one snapshot.
type FeedbackAssembler struct {
	Locator *RangeLocator
}

// NewFeedbackAssembler returns an assembler that places raw warnings with locator.
func NewFeedbackAssembler(locator *RangeLocator) *FeedbackAssembler {
	if locator == nil {
		locator = NewRangeLocator(nil)
	}
	return &FeedbackAssembler{Locator: locator}
}

type dedupKey struct {
	r    Range
	code string
}

// Assemble builds the snapshot.
//
// Warnings sharing a (Range, Code) key collapse to the most severe one; on equal
// severity the first one seen wins and keeps the slot of the key's first occurrence.
// The result is stably sorted by start position. When there is neither a summary nor
// a warning, the summary is NoIssuesFound.
func (a *FeedbackAssembler) Assemble(in AssembleInput) FeedbackSnapshot {
	sev := in.Severities
	if sev.Levels == nil {
		sev = DefaultSeverityMap()
	}

	all := make([]LocalizedWarning, 0, len(in.Diagnostics)+len(in.Warnings))
	for i, d := range in.Diagnostics {
		if !d.Range.Valid() {
			log.Printf("feedback assembler: skipping diagnostic %d (%s/%s): invalid range %+v", i, d.Source, d.Code, d.Range)
			continue
		}
		all = append(all, LocalizedWarning{
			Range:    d.Range,
			Severity: sev.Map(d.Severity),
			Code:     d.Code,
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	all = append(all, a.Locator.Locate(in.Document, in.Warnings, in.LineOffset)...)

	warnings := Dedup(all)
	SortWarnings(warnings)

	summary := strings.TrimSpace(in.Summary)
	if summary == "" && len(warnings) == 0 {
		summary = NoIssuesFound
	}
	return NewFeedbackSnapshot(in.Document, warnings, summary)
}

// Dedup collapses warnings with the same range and code, keeping the most severe.
func Dedup(ws []LocalizedWarning) []LocalizedWarning {
	slot := make(map[dedupKey]int, len(ws))
	out := make([]LocalizedWarning, 0, len(ws))
	for _, w := range ws {
		k := dedupKey{r: w.Range, code: w.Code}
		if i, ok := slot[k]; ok {
			if w.Severity > out[i].Severity {
				out[i] = w
			}
			continue
		}
		slot[k] = len(out)
		out = append(out, w)
	}
	return out
}

// SortWarnings orders warnings by start line and character, keeping input order for ties.
func SortWarnings(ws []LocalizedWarning) {
	sort.SliceStable(ws, func(i, j int) bool {
		return ws[i].Range.Start.Before(ws[j].Range.Start)
	})
}
