package lexer

import (
	"context"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/boxlang/box/compiler/diag"
	"github.com/boxlang/box/compiler/token"
)

const maxIdentLen = 255

type (
	// Lexer scans one UTF-8 source buffer into tokens.
	Lexer struct {
		src string

		start   int
		current int

		line     int
		column   int
		startCol int

		tokens []token.Token
		errs   []diag.Diagnostic
	}

	// ErrorList is the bundled failure of a whole scan.
	ErrorList struct {
		Diags []diag.Diagnostic
	}
)

func New(src string) *Lexer {
	src = strings.ReplaceAll(src, "\r\n", "\n")

	return &Lexer{
		src:    src,
		line:   1,
		column: 1,
	}
}

// Scan tokenizes the whole source. It returns either a complete token
// sequence terminated by END_OF_FILE, or all collected lexical errors;
// never both.
func (l *Lexer) Scan(ctx context.Context) ([]token.Token, error) {
	tr := tlog.SpanFromContext(ctx)

	for !l.atEnd() {
		l.start = l.current
		l.startCol = l.column

		l.scanToken(ctx)
	}

	if len(l.errs) != 0 {
		tr.Printw("lex failed", "errors", len(l.errs))

		return nil, ErrorList{Diags: l.errs}
	}

	l.tokens = append(l.tokens, token.Token{
		Kind:   token.END_OF_FILE,
		Line:   l.line,
		Column: l.column,
	})

	tr.Printw("lexed", "tokens", len(l.tokens), "lines", l.line)

	return l.tokens, nil
}

func (l *Lexer) scanToken(ctx context.Context) {
	c := l.advance()

	if tr := tlog.SpanFromContext(ctx); tr.If("next_token") {
		tr.Printw("scan", "c", string(c), "line", l.line, "col", l.startCol, "from", loc.Callers(1, 2))
	}

	switch c {
	case '(':
		l.add(token.LPAREN)
	case ')':
		l.add(token.RPAREN)
	case '{':
		l.add(token.LBRACE)
	case '}':
		l.add(token.RBRACE)
	case '[':
		l.add(token.LBRACKET)
	case ']':
		l.add(token.RBRACKET)
	case ',':
		l.add(token.COMMA)
	case ';':
		l.add(token.SEMICOLON)
	case ':':
		l.add(token.COLON)
	case '&':
		l.add(token.AMPERSAND)
	case '+':
		l.add(token.PLUS)
	case '*':
		l.add(token.STAR)
	case '%':
		l.add(token.PERCENT)
	case '-':
		if l.match('>') {
			l.add(token.ARROW)
		} else {
			l.add(token.MINUS)
		}
	case '!':
		if l.match('=') {
			l.add(token.BANG_EQUAL)
		} else {
			l.add(token.BANG)
		}
	case '=':
		if l.match('=') {
			l.add(token.EQUAL_EQUAL)
		} else {
			l.add(token.EQUAL)
		}
	case '<':
		if l.match('=') {
			l.add(token.LESS_EQUAL)
		} else {
			l.add(token.LESS)
		}
	case '>':
		if l.match('=') {
			l.add(token.GREATER_EQUAL)
		} else {
			l.add(token.GREATER)
		}
	case '/':
		switch {
		case l.match('/'):
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
		case l.match('*'):
			l.blockComment()
		default:
			l.add(token.SLASH)
		}
	case '"':
		l.str()
	case ' ', '\t', '\r':
		// skip
	case '\n':
		l.line++
		l.column = 1
	default:
		switch {
		case isDigit(c):
			l.number()
		case isIdentStart(c):
			l.ident()
		default:
			l.errorf(c, "Unexpected character %q", c)
		}
	}
}

// blockComment consumes a /* ... */ comment. Comments nest; the scanner
// terminates only when depth returns to zero.
func (l *Lexer) blockComment() {
	openLine := l.line
	depth := 1

	for depth > 0 && !l.atEnd() {
		c := l.advance()

		switch {
		case c == '/' && l.match('*'):
			depth++
		case c == '*' && l.match('/'):
			depth--
		case c == '\n':
			l.line++
			l.column = 1
		}
	}

	if depth > 0 {
		l.errs = append(l.errs, diag.Diagnostic{
			Phase:      "LEXICAL",
			Msg:        errors.New("Unterminated block comment: %d '*/' still missing", depth).Error(),
			Line:       openLine,
			Column:     l.startCol,
			SourceLine: diag.SourceLine(l.src, openLine),
			Hint:       "Block comments nest; every '/*' needs a matching '*/'.",
		})
	}
}

func (l *Lexer) str() {
	openLine := l.line
	openCol := l.startCol

	var sb strings.Builder

	for !l.atEnd() && l.peek() != '"' {
		c := l.advance()

		switch c {
		case '\n':
			// raw newline is preserved
			l.line++
			l.column = 1
			sb.WriteByte('\n')
		case '\\':
			l.escape(&sb)
		default:
			sb.WriteByte(c)
		}
	}

	if l.atEnd() {
		l.errs = append(l.errs, diag.Diagnostic{
			Phase:      "LEXICAL",
			Msg:        "Unterminated string",
			Line:       openLine,
			Column:     openCol,
			SourceLine: diag.SourceLine(l.src, openLine),
			Hint:       "Close the string with '\"'.",
		})

		return
	}

	l.advance() // closing quote

	l.tokens = append(l.tokens, token.Token{
		Kind:    token.STRING,
		Lexeme:  l.src[l.start:l.current],
		Literal: token.Str(sb.String()),
		Line:    openLine,
		Column:  openCol,
	})
}

var escapes = map[byte]byte{
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'\\': '\\',
	'"':  '"',
	'0':  0,
	'a':  '\a',
	'b':  '\b',
	'f':  '\f',
	'v':  '\v',
}

func (l *Lexer) escape(sb *strings.Builder) {
	if l.atEnd() {
		l.errorHint('\\', "Incomplete escape sequence at end of file", "The file ends right after a backslash.")
		return
	}

	c := l.advance()

	if r, ok := escapes[c]; ok {
		sb.WriteByte(r)
		return
	}

	switch c {
	case 'x':
		v, ok := l.hex(2)
		if !ok || v > 0xff {
			l.errorHint(c, "Invalid \\x escape", `\x expects exactly 2 hex digits, value <= 0xFF.`)
			return
		}

		sb.WriteByte(byte(v))
	case 'u':
		v, ok := l.hex(4)
		if !ok || v > 0x10ffff {
			l.errorHint(c, "Invalid \\u escape", `\u expects exactly 4 hex digits encoding a Unicode scalar.`)
			return
		}

		var buf [utf8.UTFMax]byte
		n := utf8.EncodeRune(buf[:], rune(v))
		sb.Write(buf[:n])
	default:
		l.errorHint(c, errors.New("Invalid escape sequence \\%c", c).Error(), `Supported escapes: \n \t \r \\ \" \0 \a \b \f \v \xHH \uHHHH.`)
	}
}

func (l *Lexer) hex(n int) (v int, ok bool) {
	for i := 0; i < n; i++ {
		if l.atEnd() {
			return 0, false
		}

		c := l.advance()

		switch {
		case c >= '0' && c <= '9':
			v = v<<4 | int(c-'0')
		case c >= 'a' && c <= 'f':
			v = v<<4 | int(c-'a'+10)
		case c >= 'A' && c <= 'F':
			v = v<<4 | int(c-'A'+10)
		default:
			return 0, false
		}
	}

	return v, true
}

func (l *Lexer) number() {
	for isDigit(l.peek()) {
		l.advance()
	}

	if l.peek() == '.' {
		if !isDigit(l.peekNext()) {
			l.advance()
			l.errorHint('.', "Malformed number: expected digit after decimal point", "Write 1.0, not 1. (Box has no member access.)")

			return
		}

		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
	}

	if c := l.peek(); c == 'e' || c == 'E' {
		j := l.current + 1
		if j < len(l.src) && (l.src[j] == '+' || l.src[j] == '-') {
			j++
		}

		if j < len(l.src) && isDigit(l.src[j]) {
			l.column += j - l.current
			l.current = j

			for isDigit(l.peek()) {
				l.advance()
			}
		} else {
			l.advance()
			l.errorHint(c, "Malformed number: exponent has no digits", "An exponent needs at least one digit: 1e9, 2.5e-3.")

			return
		}
	}

	lex := l.src[l.start:l.current]

	v, err := strconv.ParseFloat(lex, 64)
	if err != nil || math.IsInf(v, 0) {
		l.errorHint('0', errors.New("Number literal %q overflows", lex).Error(), "The value does not fit a 64-bit float.")

		return
	}

	l.tokens = append(l.tokens, token.Token{
		Kind:    token.NUMBER,
		Lexeme:  lex,
		Literal: token.Number(v),
		Line:    l.line,
		Column:  l.startCol,
	})
}

func (l *Lexer) ident() {
	for isIdentPart(l.peek()) {
		l.advance()
	}

	lex := l.src[l.start:l.current]

	if len(lex) > maxIdentLen {
		l.errorHint(lex[0], errors.New("Identifier exceeds %d characters", maxIdentLen).Error(), "Shorten the name.")

		return
	}

	kind, ok := token.Keywords[lex]
	if !ok {
		kind = token.IDENTIFIER
	}

	tk := token.Token{
		Kind:   kind,
		Lexeme: lex,
		Line:   l.line,
		Column: l.startCol,
	}

	switch kind {
	case token.TRUE:
		tk.Literal = token.Bool(true)
	case token.FALSE:
		tk.Literal = token.Bool(false)
	case token.NIL:
		tk.Literal = token.Nil()
	}

	l.tokens = append(l.tokens, tk)
}

// hintFor maps an offending byte to a character-specific hint.
func hintFor(c byte) string {
	switch {
	case c == '|':
		return "Box has no '|' operator; use 'or'."
	case c == '\'':
		return "Strings use double quotes: \"text\"."
	case c == '@' || c == '#' || c == '$' || c == '^' || c == '~' || c == '?' || c == '`':
		return errors.New("%q is not a valid operator", c).Error()
	case c < 32:
		return "Invisible control character; remove it."
	default:
		return ""
	}
}

func (l *Lexer) errorf(c byte, f string, args ...interface{}) {
	l.errorHint(c, errors.New(f, args...).Error(), hintFor(c))
}

func (l *Lexer) errorHint(c byte, msg, hint string) {
	if hint == "" {
		hint = hintFor(c)
	}

	l.errs = append(l.errs, diag.Diagnostic{
		Phase:      "LEXICAL",
		Msg:        msg,
		Line:       l.line,
		Column:     l.startCol,
		SourceLine: diag.SourceLine(l.src, l.line),
		Hint:       hint,
	})
}

func (l *Lexer) add(k token.Kind) {
	l.tokens = append(l.tokens, token.Token{
		Kind:   k,
		Lexeme: l.src[l.start:l.current],
		Line:   l.line,
		Column: l.startCol,
	})
}

func (l *Lexer) advance() byte {
	c := l.src[l.current]
	l.current++
	l.column++

	return c
}

func (l *Lexer) match(want byte) bool {
	if l.atEnd() || l.src[l.current] != want {
		return false
	}

	l.current++
	l.column++

	return true
}

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}

	return l.src[l.current]
}

func (l *Lexer) peekNext() byte {
	if l.current+1 >= len(l.src) {
		return 0
	}

	return l.src[l.current+1]
}

func (l *Lexer) atEnd() bool {
	return l.current >= len(l.src)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func (e ErrorList) Error() string {
	return string(diag.Summary(nil, "lexical", len(e.Diags), e.Diags))
}
