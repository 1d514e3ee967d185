package domain

import (
	"log"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// RangeLocator maps unstructured warnings onto ranges of a code document.
// It holds no per-call state and is safe for concurrent use.
type RangeLocator struct {
	Tokenizer CodeTokenizer
}

// NewRangeLocator returns a locator using tokenizer, or the lexical tokenizer when nil.
func NewRangeLocator(tokenizer CodeTokenizer) *RangeLocator {
	if tokenizer == nil {
		tokenizer = LexicalTokenizer{}
	}
	return &RangeLocator{Tokenizer: tokenizer}
}

// Locate returns one LocalizedWarning per warning that could be placed in doc, in input
// order. Warnings that cannot be placed are dropped, never given a made-up range.
//
// A valid LineHint wins over text matching. Otherwise every line is scored by how many
// distinct cues from the warning text it contains; the highest score wins and ties go to
// the earliest line. offset is added to the resulting line numbers so ranges can be
// reported in the coordinates of a larger file.
func (l *RangeLocator) Locate(doc CodeDocument, warnings []RawWarning, offset int) []LocalizedWarning {
	if doc.Empty() || len(warnings) == 0 {
		return nil
	}
	if offset < 0 {
		offset = 0
	}

	var lineTokens []map[string]int
	tokens := func() []map[string]int {
		if lineTokens == nil {
			lineTokens = l.indexTokens(doc)
		}
		return lineTokens
	}

	out := make([]LocalizedWarning, 0, len(warnings))
	for i, w := range warnings {
		if w.Malformed() {
			log.Printf("range locator: skipping warning %d: no text", i)
			continue
		}

		r, ok := hintRange(doc, w.Hint)
		if !ok {
			if w.Hint != nil {
				log.Printf("range locator: warning %d hint %d-%d outside %d lines, matching text instead",
					i, w.Hint.StartLine, w.Hint.EndLine, doc.LineCount())
			}
			r, ok = matchRange(doc, tokens(), ExtractCues(w))
		}
		if !ok {
			continue
		}

		out = append(out, LocalizedWarning{
			Range:    r.Shift(offset),
			Severity: SeverityWarning,
			Code:     SemanticWarningCode,
			Source:   SemanticWarningSource,
			Message:  w.Text(),
		})
	}
	return out
}

func (l *RangeLocator) indexTokens(doc CodeDocument) []map[string]int {
	tokenizer := l.Tokenizer
	if tokenizer == nil {
		tokenizer = LexicalTokenizer{}
	}
	perLine := tokenizer.Tokenize(doc)
	if len(perLine) != doc.LineCount() {
		log.Printf("range locator: tokenizer returned %d lines for %d, using lexical tokens", len(perLine), doc.LineCount())
		perLine = LexicalTokenizer{}.Tokenize(doc)
	}

	index := make([]map[string]int, len(perLine))
	for i, toks := range perLine {
		m := make(map[string]int, len(toks))
		for _, t := range toks {
			key := normalizeCue(t.Text)
			if col, seen := m[key]; !seen || t.Column < col {
				m[key] = t.Column
			}
		}
		index[i] = m
	}
	return index
}

func hintRange(doc CodeDocument, h *LineHint) (Range, bool) {
	if h == nil {
		return Range{}, false
	}
	if h.StartLine < 0 || h.EndLine < h.StartLine || h.EndLine >= doc.LineCount() {
		return Range{}, false
	}
	return Range{
		Start: Position{Line: h.StartLine, Character: 0},
		End:   Position{Line: h.EndLine, Character: trimmedWidth(doc.Line(h.EndLine))},
	}, true
}

func matchRange(doc CodeDocument, lines []map[string]int, cues []string) (Range, bool) {
	if len(cues) == 0 {
		return Range{}, false
	}
	bestLine, bestScore, bestCol := -1, 0, 0
	for i, toks := range lines {
		score, col := 0, -1
		for _, c := range cues {
			if at, ok := toks[c]; ok {
				score++
				if col < 0 || at < col {
					col = at
				}
			}
		}
		if score > bestScore {
			bestLine, bestScore, bestCol = i, score, col
		}
	}
	if bestLine < 0 {
		return Range{}, false
	}
	end := trimmedWidth(doc.Line(bestLine))
	if bestCol > end {
		bestCol = end
	}
	return Range{
		Start: Position{Line: bestLine, Character: bestCol},
		End:   Position{Line: bestLine, Character: end},
	}, true
}

func trimmedWidth(line string) int {
	return UTF16Len(strings.TrimRight(line, " \t"))
}

var quotedPattern = regexp.MustCompile("`([^`]+)`|'([^'\\s]+)'|\"([^\"]+)\"")

// ExtractCues returns the distinct, normalised words of a warning that the locator
// looks for in code, sorted for determinism.
//
// Quoted spans contribute every word they contain. Free text contributes words of at
// least two characters that are not common English words. Category keywords add the
// code tokens typically involved in that kind of warning.
func ExtractCues(w RawWarning) []string {
	text := strings.Join([]string{w.Description, w.Fix, w.Message}, "\n")
	set := make(map[string]struct{})

	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		span := m[1] + m[2] + m[3]
		for _, t := range WordTokens(span, 0) {
			set[normalizeCue(t.Text)] = struct{}{}
		}
	}

	for _, t := range WordTokens(text, 0) {
		c := normalizeCue(t.Text)
		if utf8.RuneCountInString(c) < 2 {
			continue
		}
		if _, stop := stopWords[c]; stop {
			continue
		}
		set[c] = struct{}{}
	}

	trigger := strings.ToLower(text + "\n" + w.Category)
	for _, k := range categoryKeywords {
		for _, t := range k.triggers {
			if strings.Contains(trigger, t) {
				for _, tok := range k.tokens {
					set[tok] = struct{}{}
				}
				break
			}
		}
	}

	cues := make([]string, 0, len(set))
	for c := range set {
		cues = append(cues, c)
	}
	sort.Strings(cues)
	return cues
}

func normalizeCue(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

type categoryKeyword struct {
	triggers []string
	tokens   []string
}

var categoryKeywords = []categoryKeyword{
	{triggers: []string{"loop", "iterat", "vectori"}, tokens: []string{"for", "while", "iterrows", "itertuples", "range"}},
	{triggers: []string{"inplace", "in-place", "in place"}, tokens: []string{"inplace"}},
	{triggers: []string{"seed", "random state", "random_state", "reproducib"}, tokens: []string{"random_state", "seed"}},
	{triggers: []string{"chained", "chain index", "settingwithcopy"}, tokens: []string{"loc", "iloc"}},
	{triggers: []string{"missing value", " nan", "null value"}, tokens: []string{"isna", "isnull", "fillna", "dropna"}},
	{triggers: []string{"leak", "train/test", "train-test", "test split"}, tokens: []string{"fit", "fit_transform", "train_test_split"}},
	{triggers: []string{"exception", "bare except"}, tokens: []string{"try", "except"}},
	{triggers: []string{"dtype", "type conversion", "casting"}, tokens: []string{"astype", "dtype"}},
	{triggers: []string{"global variable", "global state"}, tokens: []string{"global"}},
	{triggers: []string{"wildcard import", "unused import"}, tokens: []string{"import"}},
}

var stopWords = func() map[string]struct{} {
	words := strings.Fields(`
		a about above after again against all also an and any are as at be because been
		before being below between both but by can could did do does doing done down during
		each either else etc even every few for from further had has have having here how
		however if in into is it its itself just less like make makes many may might more
		most much must no nor not now of off on once one only or other otherwise our out
		over own per rather same should so some such than that the their them then there
		these they this those through to too under until up upon use used uses using very
		via was we were what when where whether which while who whom why will with within
		without would you your instead consider avoid ensure prefer better code line lines
		variable variables function functions method methods call calls
		issue issues warning problem example eg ie
	`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
