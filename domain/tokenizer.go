package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// CodeToken is a word-like token of a source line. Column is in UTF-16 units.
type CodeToken struct {
	Text   string
	Column int
}

// CodeTokenizer splits a document into per-line tokens for the Range Locator.
// The result has one entry per document line.
type CodeTokenizer interface {
	Tokenize(doc CodeDocument) [][]CodeToken
}

var wordPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|[0-9]+(?:\.[0-9]+)?`)

// LexicalTokenizer extracts identifiers and numbers from each line with a regular
// expression. It knows nothing about the language and also reads comments and strings.
type LexicalTokenizer struct{}

func (LexicalTokenizer) Tokenize(doc CodeDocument) [][]CodeToken {
	out := make([][]CodeToken, doc.LineCount())
	for i := range out {
		out[i] = WordTokens(doc.Line(i), 0)
	}
	return out
}

// WordTokens returns the identifier and number tokens of text. Columns are relative to
// the start of line, with text starting at byte offset base inside line.
func WordTokens(line string, base int) []CodeToken {
	text := line[base:]
	locs := wordPattern.FindAllStringIndex(text, -1)
	tokens := make([]CodeToken, 0, len(locs))
	for _, loc := range locs {
		tokens = append(tokens, CodeToken{
			Text:   text[loc[0]:loc[1]],
			Column: UTF16Column(line, base+loc[0]),
		})
	}
	return tokens
}

// TokenCounter estimates how many model tokens a text occupies.
type TokenCounter interface {
	CountTokens(text string) int
}

// ApproxTokenCounter estimates tokens as roughly four characters per token, but never
// fewer than the number of whitespace-separated words.
type ApproxTokenCounter struct{}

func (ApproxTokenCounter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	byChars := (utf8.RuneCountInString(text) + 3) / 4
	byWords := len(strings.Fields(text))
	if byWords > byChars {
		return byWords
	}
	return byChars
}
