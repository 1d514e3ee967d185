package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"data-sculptor/domain"
)

func texts(tokens []domain.CodeToken) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

func TestPythonTokenizer_SkipsComments(t *testing.T) {
	t.Parallel()

	doc := domain.NewCodeDocument("import pandas as pd  # pandas alias\ndf = pd.read_csv('prices.csv')\n", 1)
	lines := NewPythonTokenizer().Tokenize(doc)
	require.Len(t, lines, 2)

	assert.Equal(t, []string{"import", "pandas", "as", "pd"}, texts(lines[0]))
	assert.Equal(t, []string{"df", "pd", "read_csv", "prices", "csv"}, texts(lines[1]))
	assert.Equal(t, 8, lines[1][2].Column)
}

func TestPythonTokenizer_MultilineString(t *testing.T) {
	t.Parallel()

	doc := domain.NewCodeDocument("query = \"\"\"\nselect price\nfrom items\"\"\"\nrun(query)", 1)
	lines := NewPythonTokenizer().Tokenize(doc)
	require.Len(t, lines, doc.LineCount())

	assert.Equal(t, []string{"query"}, texts(lines[0]))
	assert.Equal(t, []string{"select", "price"}, texts(lines[1]))
	assert.Equal(t, 7, lines[1][1].Column)
	assert.Equal(t, []string{"from", "items"}, texts(lines[2]))
	assert.Equal(t, []string{"run", "query"}, texts(lines[3]))
}

func TestPythonTokenizer_UTF16Columns(t *testing.T) {
	t.Parallel()

	doc := domain.NewCodeDocument("s = \"é😀\"; total = 1", 1)
	lines := NewPythonTokenizer().Tokenize(doc)
	require.Len(t, lines, 1)

	var total domain.CodeToken
	for _, tok := range lines[0] {
		if tok.Text == "total" {
			total = tok
		}
	}
	assert.Equal(t, 11, total.Column)
}

func TestPythonTokenizer_WithLocator(t *testing.T) {
	t.Parallel()

	doc := domain.NewCodeDocument("# compute the mean\nvalues = [1, 2]\nmean = sum(values) / len(values)\n", 1)
	locator := domain.NewRangeLocator(NewPythonTokenizer())
	got := locator.Locate(doc, []domain.RawWarning{{Description: "`mean` shadows nothing but could use statistics"}}, 0)

	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Range.Start.Line)
}

func TestPythonTokenizer_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, NewPythonTokenizer().Tokenize(domain.NewCodeDocument("", 1)))
}
