package lexer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxlang/box/compiler/token"
)

func scan(t *testing.T, src string) []token.Token {
	t.Helper()

	tokens, err := New(src).Scan(context.Background())
	require.NoError(t, err)

	return tokens
}

func kinds(tokens []token.Token) []token.Kind {
	ks := make([]token.Kind, len(tokens))
	for i, tk := range tokens {
		ks[i] = tk.Kind
	}

	return ks
}

func TestEmptySource(t *testing.T) {
	tokens := scan(t, "")

	require.Len(t, tokens, 1)
	assert.Equal(t, token.END_OF_FILE, tokens[0].Kind)
}

func TestWhitespaceAndCommentsOnly(t *testing.T) {
	tokens := scan(t, "  \t\n// line comment\n/* block /* nested */ */\n")

	require.Len(t, tokens, 1)
	assert.Equal(t, token.END_OF_FILE, tokens[0].Kind)
}

func TestPunctuationAndOperators(t *testing.T) {
	tokens := scan(t, "( ) { } [ ] , ; : & -> + - * / % ! != = == < <= > >=")

	want := []token.Kind{
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE,
		token.LBRACKET, token.RBRACKET, token.COMMA, token.SEMICOLON,
		token.COLON, token.AMPERSAND, token.ARROW,
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT,
		token.BANG, token.BANG_EQUAL, token.EQUAL, token.EQUAL_EQUAL,
		token.LESS, token.LESS_EQUAL, token.GREATER, token.GREATER_EQUAL,
		token.END_OF_FILE,
	}

	assert.Equal(t, want, kinds(tokens))
}

func TestKeywords(t *testing.T) {
	tokens := scan(t, "var print if else while for fun return switch case default break import unsafe")

	want := []token.Kind{
		token.VAR, token.PRINT, token.IF, token.ELSE, token.WHILE, token.FOR,
		token.FUN, token.RETURN, token.SWITCH, token.CASE, token.DEFAULT,
		token.BREAK, token.IMPORT, token.UNSAFE, token.END_OF_FILE,
	}

	assert.Equal(t, want, kinds(tokens))
}

func TestNumbers(t *testing.T) {
	for _, tc := range []struct {
		src  string
		want float64
	}{
		{"0", 0},
		{"42", 42},
		{"3.25", 3.25},
		{"1e3", 1000},
		{"2.5e-1", 0.25},
		{"1E2", 100},
	} {
		tokens := scan(t, tc.src)

		require.Len(t, tokens, 2, "src %q", tc.src)
		assert.Equal(t, token.NUMBER, tokens[0].Kind)
		assert.Equal(t, tc.want, tokens[0].Literal.Num, "src %q", tc.src)
	}
}

func TestTrailingDotIsError(t *testing.T) {
	_, err := New("var x = 1.;").Scan(context.Background())
	require.Error(t, err)

	var el ErrorList
	require.ErrorAs(t, err, &el)
	assert.Contains(t, el.Diags[0].Msg, "decimal point")
}

func TestExponentWithoutDigits(t *testing.T) {
	_, err := New("1e;").Scan(context.Background())
	require.Error(t, err)
}

func TestStringEscapes(t *testing.T) {
	tokens := scan(t, `"a\tb\n\"q\"\x41Ж"`)

	require.Len(t, tokens, 2)
	assert.Equal(t, "a\tb\n\"q\"AЖ", tokens[0].Literal.Str)
}

func TestStringSpansNewlines(t *testing.T) {
	tokens := scan(t, "\"a\nb\"")

	require.Len(t, tokens, 2)
	assert.Equal(t, "a\nb", tokens[0].Literal.Str)
}

func TestUnterminatedString(t *testing.T) {
	_, err := New("\"abc").Scan(context.Background())
	require.Error(t, err)

	var el ErrorList
	require.ErrorAs(t, err, &el)
	assert.Contains(t, el.Diags[0].Msg, "Unterminated string")
}

func TestNestedBlockCommentDeficit(t *testing.T) {
	_, err := New("/* a /* b /* c */").Scan(context.Background())
	require.Error(t, err)

	var el ErrorList
	require.ErrorAs(t, err, &el)
	assert.Contains(t, el.Diags[0].Msg, "2 '*/' still missing")
}

func TestIdentifierLengthBoundary(t *testing.T) {
	ok := strings.Repeat("a", 255)

	tokens := scan(t, ok)
	require.Len(t, tokens, 2)
	assert.Equal(t, token.IDENTIFIER, tokens[0].Kind)

	_, err := New(strings.Repeat("a", 256)).Scan(context.Background())
	require.Error(t, err)
}

func TestUnexpectedCharacterHints(t *testing.T) {
	_, err := New("a | b").Scan(context.Background())
	require.Error(t, err)

	var el ErrorList
	require.ErrorAs(t, err, &el)
	assert.Contains(t, el.Diags[0].Hint, "or")
}

func TestErrorsAccumulate(t *testing.T) {
	_, err := New("@ # $").Scan(context.Background())
	require.Error(t, err)

	var el ErrorList
	require.ErrorAs(t, err, &el)
	assert.Len(t, el.Diags, 3)
}

func TestPositions(t *testing.T) {
	tokens := scan(t, "var x;\nprint x;")

	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 1, tokens[0].Column)

	// print on the second line
	assert.Equal(t, token.PRINT, tokens[3].Kind)
	assert.Equal(t, 2, tokens[3].Line)
	assert.Equal(t, 1, tokens[3].Column)
}

func TestLiteralsCarryValues(t *testing.T) {
	tokens := scan(t, "true false nil")

	assert.Equal(t, true, tokens[0].Literal.Bool)
	assert.Equal(t, false, tokens[1].Literal.Bool)
	assert.Equal(t, token.LitNil, tokens[2].Literal.Kind)
}
