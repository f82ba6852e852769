package diag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameShape(t *testing.T) {
	d := Diagnostic{
		Phase:      "SYNTAX",
		Msg:        "Expected ';'",
		Line:       2,
		Column:     8,
		SourceLine: "print 1",
		Hint:       "Every statement ends with a semicolon.",
	}

	out := d.String()

	assert.Contains(t, out, strings.Repeat("-", Width))
	assert.Contains(t, out, "SYNTAX ERROR [line 2, column 8]")
	assert.Contains(t, out, "print 1")
	assert.Contains(t, out, "Hint: Every statement")

	// caret lands under column 8
	assert.Contains(t, out, "\n    "+strings.Repeat(" ", 7)+"^\n")
}

func TestSummaryHeader(t *testing.T) {
	out := string(Summary(nil, "lexical", 2, []Diagnostic{{Phase: "LEXICAL", Msg: "a"}, {Phase: "LEXICAL", Msg: "b"}}))

	assert.Contains(t, out, strings.Repeat("#", Width))
	assert.Contains(t, out, "COMPILATION FAILED: Found 2 lexical error(s)")
}

func TestSourceLine(t *testing.T) {
	src := "one\ntwo\nthree"

	assert.Equal(t, "two", SourceLine(src, 2))
	assert.Equal(t, "", SourceLine(src, 9))
	assert.Equal(t, "", SourceLine(src, 0))
}
