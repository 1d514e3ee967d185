// Package syntax provides language-aware tokenizers for the range locator.
package syntax

import (
	"log"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"data-sculptor/domain"
)

var pythonLanguage = sitter.NewLanguage(tree_sitter_python.Language())

// PythonTokenizer tokenizes Python code from its syntax tree. Comments are skipped,
// so words in them never attract a warning; identifiers, literals and string contents
// are kept.
//
// A parser is created per call; the tokenizer is safe for concurrent use.
type PythonTokenizer struct{}

// NewPythonTokenizer returns a tokenizer for Python cells.
func NewPythonTokenizer() *PythonTokenizer {
	return &PythonTokenizer{}
}

// Tokenize implements domain.CodeTokenizer. On a parser failure it falls back to the
// lexical tokenizer.
func (t *PythonTokenizer) Tokenize(doc domain.CodeDocument) [][]domain.CodeToken {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(pythonLanguage); err != nil {
		log.Printf("python tokenizer: %v, using lexical tokens", err)
		return domain.LexicalTokenizer{}.Tokenize(doc)
	}

	src := []byte(doc.Text())
	tree := parser.Parse(src, nil)
	if tree == nil {
		log.Printf("python tokenizer: parse failed, using lexical tokens")
		return domain.LexicalTokenizer{}.Tokenize(doc)
	}
	defer tree.Close()

	lines := doc.Lines()
	out := make([][]domain.CodeToken, len(lines))
	walkLeaves(tree.RootNode(), func(n *sitter.Node) {
		if n.Kind() == "comment" || n.StartByte() == n.EndByte() {
			return
		}
		start := n.StartPosition()
		row, col := int(start.Row), int(start.Column)
		for i, segment := range strings.Split(n.Utf8Text(src), "\n") {
			line := row + i
			if line >= len(lines) {
				break
			}
			base := 0
			if i == 0 {
				base = col
			}
			end := base + len(segment)
			if end > len(lines[line]) || base > end {
				continue
			}
			out[line] = append(out[line], domain.WordTokens(lines[line][:end], base)...)
		}
	})
	return out
}

// walkLeaves calls fn for every leaf of the tree rooted at n, in source order.
func walkLeaves(n *sitter.Node, fn func(*sitter.Node)) {
	if n == nil {
		return
	}
	count := n.ChildCount()
	if count == 0 {
		fn(n)
		return
	}
	if n.Kind() == "comment" {
		return
	}
	for i := uint(0); i < count; i++ {
		walkLeaves(n.Child(i), fn)
	}
}
