package parser

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/diag"
	"github.com/boxlang/box/compiler/token"
)

const (
	maxArgs    = 255
	maxParams  = 255
	maxNameLen = 255
	maxElems   = 1000
	maxPairs   = 1000
	maxNesting = 100

	phase = "SYNTAX"
)

type (
	// Parser turns a token sequence into a statement list by recursive
	// descent with panic-mode recovery.
	Parser struct {
		src    string
		tokens []token.Token
		pos    int

		funcDepth   int
		loopDepth   int
		blockDepth  int
		switchDepth int
		inUnsafe    bool

		errs []diag.Diagnostic
	}

	// ErrorList bundles every syntax error found in one parse.
	ErrorList struct {
		Diags []diag.Diagnostic
	}

	// bail unwinds to the closest statement boundary on error.
	bail struct{}
)

func New(src string, tokens []token.Token) *Parser {
	return &Parser{
		src:    src,
		tokens: tokens,
	}
}

// Parse consumes the whole token sequence. It returns the top-level
// statement list, or all collected syntax errors; never both.
func (p *Parser) Parse(ctx context.Context) (stmts []ast.Stmt, err error) {
	tr := tlog.SpanFromContext(ctx)

	for !p.atEnd() {
		if st := p.declaration(ctx); st != nil {
			stmts = append(stmts, st)
		}
	}

	if len(p.errs) != 0 {
		tr.Printw("parse failed", "errors", len(p.errs))

		return nil, ErrorList{Diags: p.errs}
	}

	tr.Printw("parsed", "stmts", len(stmts))

	return stmts, nil
}

// declaration parses one top-level statement, recovering to the next
// statement boundary on error.
func (p *Parser) declaration(ctx context.Context) (st ast.Stmt) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bail); !ok {
				panic(r)
			}

			p.synchronize()
			st = nil
		}
	}()

	return p.statement(ctx)
}

func (p *Parser) statement(ctx context.Context) ast.Stmt {
	switch {
	case p.match(token.VAR):
		return p.varStmt(ctx)
	case p.match(token.FUN):
		return p.funStmt(ctx)
	case p.match(token.PRINT):
		return p.printStmt(ctx)
	case p.match(token.IF):
		return p.ifStmt(ctx)
	case p.match(token.WHILE):
		return p.whileStmt(ctx)
	case p.match(token.FOR):
		return p.forStmt(ctx)
	case p.match(token.SWITCH):
		return p.switchStmt(ctx)
	case p.match(token.RETURN):
		return p.returnStmt(ctx)
	case p.match(token.BREAK):
		return p.breakStmt(ctx)
	case p.match(token.UNSAFE):
		return p.unsafeBlock(ctx)
	case p.match(token.LLVM_INLINE):
		return p.llvmInline(ctx)
	case p.match(token.IMPORT):
		return p.importStmt(ctx)
	case p.check(token.LBRACE):
		brace := p.advance()
		return &ast.Block{Stmts: p.block(ctx), Brace: brace}
	default:
		return p.exprStmt(ctx)
	}
}

func (p *Parser) varStmt(ctx context.Context) ast.Stmt {
	name := p.expect(token.IDENTIFIER, "Expected variable name after 'var'",
		"Declare variables as: var name = value;")

	var init ast.Expr
	if p.match(token.EQUAL) {
		init = p.expression(ctx)
	}

	p.expect(token.SEMICOLON, "Expected ';' after variable declaration",
		"Every statement ends with a semicolon.")

	return &ast.VarStmt{Name: name, Init: init}
}

func (p *Parser) funStmt(ctx context.Context) ast.Stmt {
	if p.funcDepth >= maxNesting {
		p.fail(p.peek(), "Function nesting too deep", "At most 100 nested functions are allowed.")
	}

	name := p.expect(token.IDENTIFIER, "Expected function name after 'fun'",
		"Declare functions as: fun name(params) { ... }")

	if len(name.Lexeme) > maxNameLen {
		p.fail(name, "Function name exceeds 255 characters", "Shorten the name.")
	}

	p.expect(token.LPAREN, "Expected '(' after function name", "")

	var params []token.Token
	seen := map[string]bool{}

	if !p.check(token.RPAREN) {
		for {
			if len(params) >= maxParams {
				p.fail(p.peek(), "Too many parameters", "A function takes at most 255 parameters.")
			}

			prm := p.expect(token.IDENTIFIER, "Expected parameter name", "")

			if seen[prm.Lexeme] {
				p.fail(prm, errors.New("Duplicate parameter %q", prm.Lexeme).Error(),
					"Parameter names must be unique within one function.")
			}
			seen[prm.Lexeme] = true

			params = append(params, prm)

			if !p.match(token.COMMA) {
				break
			}

			if p.check(token.RPAREN) {
				p.fail(p.peek(), "Trailing comma in parameter list", "Remove the comma before ')'.")
			}
		}
	}

	p.expect(token.RPAREN, "Expected ')' after parameters", "")
	p.expect(token.LBRACE, "Expected '{' before function body", "")

	p.funcDepth++
	body := p.block(ctx)
	p.funcDepth--

	return &ast.FunctionStmt{Name: name, Params: params, Body: body}
}

func (p *Parser) printStmt(ctx context.Context) ast.Stmt {
	kw := p.prev()
	e := p.expression(ctx)

	p.expect(token.SEMICOLON, "Expected ';' after print statement", "")

	return &ast.PrintStmt{Expr: e, Keyword: kw}
}

func (p *Parser) ifStmt(ctx context.Context) ast.Stmt {
	kw := p.prev()

	p.expect(token.LPAREN, "Expected '(' after 'if'", "")
	cond := p.expression(ctx)
	p.expect(token.RPAREN, "Expected ')' after if condition", "")

	then := p.statement(ctx)

	var els ast.Stmt
	if p.match(token.ELSE) {
		els = p.statement(ctx)
	}

	return &ast.IfStmt{Condition: cond, Then: then, Else: els, Keyword: kw}
}

func (p *Parser) whileStmt(ctx context.Context) ast.Stmt {
	if p.loopDepth >= maxNesting {
		p.fail(p.prev(), "Loop nesting too deep", "At most 100 nested loops are allowed.")
	}

	p.expect(token.LPAREN, "Expected '(' after 'while'", "")
	cond := p.expression(ctx)
	p.expect(token.RPAREN, "Expected ')' after while condition", "")

	p.loopDepth++
	body := p.statement(ctx)
	p.loopDepth--

	return &ast.WhileStmt{Condition: cond, Body: body}
}

// forStmt desugars for(init; cond; incr) body into
// { init; while (cond) { body; incr; } }.
func (p *Parser) forStmt(ctx context.Context) ast.Stmt {
	kw := p.prev()

	if p.loopDepth >= maxNesting {
		p.fail(kw, "Loop nesting too deep", "At most 100 nested loops are allowed.")
	}

	p.expect(token.LPAREN, "Expected '(' after 'for'", "")

	var init ast.Stmt
	switch {
	case p.match(token.SEMICOLON):
	case p.match(token.VAR):
		init = p.varStmt(ctx)
	default:
		init = p.exprStmt(ctx)
	}

	var cond ast.Expr
	if !p.check(token.SEMICOLON) {
		cond = p.expression(ctx)
	}
	p.expect(token.SEMICOLON, "Expected ';' after for condition", "")

	var incr ast.Expr
	if !p.check(token.RPAREN) {
		incr = p.expression(ctx)
	}
	p.expect(token.RPAREN, "Expected ')' after for clauses", "")

	p.loopDepth++
	body := p.statement(ctx)
	p.loopDepth--

	if incr != nil {
		body = &ast.Block{
			Stmts: []ast.Stmt{body, &ast.ExprStmt{Expr: incr}},
			Brace: kw,
		}
	}

	if cond == nil {
		cond = &ast.Literal{Value: token.Bool(true), Token: kw}
	}

	var loop ast.Stmt = &ast.WhileStmt{Condition: cond, Body: body}

	if init != nil {
		loop = &ast.Block{Stmts: []ast.Stmt{init, loop}, Brace: kw}
	}

	return loop
}

func (p *Parser) switchStmt(ctx context.Context) ast.Stmt {
	kw := p.prev()

	p.expect(token.LPAREN, "Expected '(' after 'switch'", "")
	cond := p.expression(ctx)
	p.expect(token.RPAREN, "Expected ')' after switch value", "")
	p.expect(token.LBRACE, "Expected '{' to open switch body", "")

	var cases []ast.Case
	var def []ast.Stmt
	sawDefault := false

	p.switchDepth++

	for !p.check(token.RBRACE) && !p.atEnd() {
		switch {
		case p.match(token.CASE):
			ckw := p.prev()

			if sawDefault {
				p.fail(ckw, "'case' after 'default'", "All cases must precede the default clause.")
			}

			val := p.expression(ctx)
			p.expect(token.COLON, "Expected ':' after case value", "")

			cases = append(cases, ast.Case{
				Value:   val,
				Body:    p.caseBody(ctx),
				Keyword: ckw,
			})
		case p.match(token.DEFAULT):
			dkw := p.prev()

			if sawDefault {
				p.fail(dkw, "Multiple 'default' clauses", "A switch has at most one default.")
			}
			sawDefault = true

			p.expect(token.COLON, "Expected ':' after 'default'", "")
			def = p.caseBody(ctx)
		default:
			p.fail(p.peek(), "Expected 'case' or 'default' inside switch", "")
		}
	}

	p.switchDepth--

	p.expect(token.RBRACE, "Expected '}' to close switch", "")

	return &ast.SwitchStmt{Condition: cond, Cases: cases, Default: def, Keyword: kw}
}

func (p *Parser) caseBody(ctx context.Context) (stmts []ast.Stmt) {
	for !p.check(token.CASE) && !p.check(token.DEFAULT) && !p.check(token.RBRACE) && !p.atEnd() {
		stmts = append(stmts, p.statement(ctx))
	}

	return stmts
}

func (p *Parser) returnStmt(ctx context.Context) ast.Stmt {
	kw := p.prev()

	if p.funcDepth == 0 {
		p.fail(kw, "'return' outside of a function", "return is only legal inside a fun body.")
	}

	var val ast.Expr
	if !p.check(token.SEMICOLON) {
		val = p.expression(ctx)
	}

	p.expect(token.SEMICOLON, "Expected ';' after return", "")

	return &ast.ReturnStmt{Keyword: kw, Value: val}
}

func (p *Parser) breakStmt(ctx context.Context) ast.Stmt {
	kw := p.prev()

	if p.loopDepth == 0 && p.switchDepth == 0 {
		p.fail(kw, "'break' outside of a loop or switch", "break is only legal inside while, for or switch.")
	}

	p.expect(token.SEMICOLON, "Expected ';' after 'break'", "")

	return &ast.BreakStmt{Keyword: kw}
}

func (p *Parser) unsafeBlock(ctx context.Context) ast.Stmt {
	kw := p.prev()

	p.expect(token.LBRACE, "Expected '{' after 'unsafe'", "")

	prev := p.inUnsafe
	p.inUnsafe = true
	stmts := p.block(ctx)
	p.inUnsafe = prev

	return &ast.UnsafeBlock{Stmts: stmts, Keyword: kw}
}

func (p *Parser) llvmInline(ctx context.Context) ast.Stmt {
	kw := p.prev()

	if !p.inUnsafe {
		p.fail(kw, "'llvm_inline' outside of an unsafe block", "Wrap it: unsafe { llvm_inline(\"...\"); }")
	}

	p.expect(token.LPAREN, "Expected '(' after 'llvm_inline'", "")
	raw := p.expect(token.STRING, "Expected IR string in 'llvm_inline'", "")
	p.expect(token.RPAREN, "Expected ')' after inline IR", "")
	p.expect(token.SEMICOLON, "Expected ';' after 'llvm_inline'", "")

	return &ast.LLVMInlineStmt{IR: raw.Literal.Str, Keyword: kw}
}

func (p *Parser) importStmt(ctx context.Context) ast.Stmt {
	kw := p.prev()

	path := p.expect(token.STRING, "Expected file path string after 'import'", `Use: import "lib.box";`)
	p.expect(token.SEMICOLON, "Expected ';' after import", "")

	return &ast.ImportStmt{Path: path.Literal.Str, Keyword: kw}
}

func (p *Parser) exprStmt(ctx context.Context) ast.Stmt {
	e := p.expression(ctx)

	p.expect(token.SEMICOLON, "Expected ';' after expression", "")

	return &ast.ExprStmt{Expr: e}
}

func (p *Parser) block(ctx context.Context) (stmts []ast.Stmt) {
	if p.blockDepth >= maxNesting {
		p.fail(p.prev(), "Block nesting too deep", "At most 100 nested blocks are allowed.")
	}

	p.blockDepth++
	defer func() { p.blockDepth-- }()

	for !p.check(token.RBRACE) && !p.atEnd() {
		stmts = append(stmts, p.statement(ctx))
	}

	p.expect(token.RBRACE, "Expected '}' to close block", "")

	return stmts
}

// expression grammar:
// assignment → or → and → equality → comparison → term → factor → unary → call → primary

func (p *Parser) expression(ctx context.Context) ast.Expr {
	return p.assignment(ctx)
}

func (p *Parser) assignment(ctx context.Context) ast.Expr {
	e := p.or(ctx)

	if p.match(token.EQUAL) {
		eq := p.prev()
		val := p.assignment(ctx)

		switch t := e.(type) {
		case *ast.Variable:
			return &ast.Assign{Name: t.Name, Value: val}
		case *ast.IndexGet:
			return &ast.IndexSet{Container: t.Container, Index: t.Index, Value: val, Bracket: t.Bracket}
		default:
			p.fail(eq, "Invalid assignment target", "Only variables and index expressions can be assigned to.")
		}
	}

	return e
}

func (p *Parser) or(ctx context.Context) ast.Expr {
	e := p.and(ctx)

	for p.match(token.OR) {
		op := p.prev()
		r := p.and(ctx)
		e = &ast.Logical{Left: e, Op: op, Right: r}
	}

	return e
}

func (p *Parser) and(ctx context.Context) ast.Expr {
	e := p.equality(ctx)

	for p.match(token.AND) {
		op := p.prev()
		r := p.equality(ctx)
		e = &ast.Logical{Left: e, Op: op, Right: r}
	}

	return e
}

func (p *Parser) equality(ctx context.Context) ast.Expr {
	e := p.comparison(ctx)

	for p.match(token.EQUAL_EQUAL, token.BANG_EQUAL) {
		op := p.prev()
		r := p.comparison(ctx)
		e = &ast.Binary{Left: e, Op: op, Right: r}
	}

	return e
}

func (p *Parser) comparison(ctx context.Context) ast.Expr {
	e := p.term(ctx)

	for p.match(token.LESS, token.LESS_EQUAL, token.GREATER, token.GREATER_EQUAL) {
		op := p.prev()
		r := p.term(ctx)
		e = &ast.Binary{Left: e, Op: op, Right: r}
	}

	return e
}

func (p *Parser) term(ctx context.Context) ast.Expr {
	e := p.factor(ctx)

	for p.match(token.PLUS, token.MINUS) {
		op := p.prev()
		r := p.factor(ctx)
		e = &ast.Binary{Left: e, Op: op, Right: r}
	}

	return e
}

func (p *Parser) factor(ctx context.Context) ast.Expr {
	e := p.unary(ctx)

	for p.match(token.STAR, token.SLASH, token.PERCENT) {
		op := p.prev()
		r := p.unary(ctx)
		e = &ast.Binary{Left: e, Op: op, Right: r}
	}

	return e
}

func (p *Parser) unary(ctx context.Context) ast.Expr {
	if p.match(token.BANG, token.MINUS) {
		op := p.prev()
		r := p.unary(ctx)

		return &ast.Unary{Op: op, Right: r}
	}

	return p.call(ctx)
}

func (p *Parser) call(ctx context.Context) ast.Expr {
	e := p.primary(ctx)

	for {
		switch {
		case p.match(token.LPAREN):
			e = p.finishCall(ctx, e)
		case p.match(token.LBRACKET):
			br := p.prev()
			idx := p.expression(ctx)
			p.expect(token.RBRACKET, "Expected ']' after index", "")

			e = &ast.IndexGet{Container: e, Index: idx, Bracket: br}
		default:
			return e
		}
	}
}

func (p *Parser) finishCall(ctx context.Context, callee ast.Expr) ast.Expr {
	paren := p.prev()

	var args []ast.Expr

	if !p.check(token.RPAREN) {
		for {
			if len(args) >= maxArgs {
				p.fail(p.peek(), "Too many arguments", "A call takes at most 255 arguments.")
			}

			args = append(args, p.expression(ctx))

			if !p.match(token.COMMA) {
				break
			}

			if p.check(token.RPAREN) {
				p.fail(p.peek(), "Trailing comma in argument list", "Remove the comma before ')'.")
			}
		}
	}

	p.expect(token.RPAREN, "Expected ')' after arguments", "")

	return &ast.Call{Callee: callee, Args: args, Paren: paren}
}

func (p *Parser) primary(ctx context.Context) ast.Expr {
	tk := p.peek()

	switch {
	case p.match(token.NUMBER, token.STRING, token.TRUE, token.FALSE, token.NIL):
		t := p.prev()
		return &ast.Literal{Value: t.Literal, Token: t}
	case p.match(token.IDENTIFIER):
		return &ast.Variable{Name: p.prev()}
	case p.match(token.LPAREN):
		e := p.expression(ctx)
		p.expect(token.RPAREN, "Expected ')' after expression", "")

		return &ast.Grouping{Inner: e}
	case p.match(token.LBRACKET):
		return p.arrayLiteral(ctx)
	case p.match(token.LBRACE):
		return p.dictLiteral(ctx)
	case token.Builtin(tk.Kind):
		// built-ins parse as identifiers so they can be used as callees;
		// the code generator recognizes them by name.
		p.advance()
		return &ast.Variable{Name: tk}
	default:
		p.fail(tk, errors.New("Expected expression, got %v", tk.Kind).Error(), hintForToken(tk))
		panic(bail{})
	}
}

func (p *Parser) arrayLiteral(ctx context.Context) ast.Expr {
	br := p.prev()

	var elems []ast.Expr

	if !p.check(token.RBRACKET) {
		for {
			if len(elems) >= maxElems {
				p.fail(p.peek(), "Too many array elements", "An array literal holds at most 1000 elements.")
			}

			elems = append(elems, p.expression(ctx))

			if !p.match(token.COMMA) {
				break
			}

			if p.check(token.RBRACKET) {
				p.fail(p.peek(), "Trailing comma in array literal", "Remove the comma before ']'.")
			}
		}
	}

	p.expect(token.RBRACKET, "Expected ']' to close array literal", "")

	return &ast.ArrayLiteral{Elems: elems, Bracket: br}
}

func (p *Parser) dictLiteral(ctx context.Context) ast.Expr {
	br := p.prev()

	var pairs []ast.Pair

	if !p.check(token.RBRACE) {
		for {
			if len(pairs) >= maxPairs {
				p.fail(p.peek(), "Too many dictionary pairs", "A dictionary literal holds at most 1000 pairs.")
			}

			k := p.expression(ctx)
			p.expect(token.COLON, "Expected ':' between dictionary key and value", "")
			v := p.expression(ctx)

			pairs = append(pairs, ast.Pair{Key: k, Value: v})

			if !p.match(token.COMMA) {
				break
			}

			if p.check(token.RBRACE) {
				p.fail(p.peek(), "Trailing comma in dictionary literal", "Remove the comma before '}'.")
			}
		}
	}

	p.expect(token.RBRACE, "Expected '}' to close dictionary literal", "")

	return &ast.DictLiteral{Pairs: pairs, Brace: br}
}

func hintForToken(tk token.Token) string {
	switch tk.Kind {
	case token.SEMICOLON:
		return "An expression is missing before ';'."
	case token.RPAREN, token.RBRACE, token.RBRACKET:
		return "A closing delimiter appears where a value was expected."
	case token.ELSE:
		return "'else' must follow an if statement's body."
	case token.END_OF_FILE:
		return "The file ended in the middle of a statement."
	default:
		return ""
	}
}

// synchronize discards tokens until a statement boundary: past a ';', or
// before a statement keyword.
func (p *Parser) synchronize() {
	for !p.atEnd() {
		if p.prev().Kind == token.SEMICOLON {
			return
		}

		switch p.peek().Kind {
		case token.VAR, token.FUN, token.IF, token.WHILE, token.FOR,
			token.PRINT, token.RETURN, token.SWITCH, token.BREAK:
			return
		}

		p.advance()
	}
}

func (p *Parser) expect(k token.Kind, msg, hint string) token.Token {
	if p.check(k) {
		return p.advance()
	}

	p.fail(p.peek(), errors.New("%s, got %v", msg, p.peek().Kind).Error(), hint)
	panic(bail{})
}

// fail records an error pinned to tk and unwinds to the statement boundary.
func (p *Parser) fail(tk token.Token, msg, hint string) {
	p.errs = append(p.errs, diag.Diagnostic{
		Phase:      phase,
		Msg:        msg,
		Line:       tk.Line,
		Column:     tk.Column,
		SourceLine: diag.SourceLine(p.src, tk.Line),
		Hint:       hint,
	})

	panic(bail{})
}

func (p *Parser) match(kinds ...token.Kind) bool {
	for _, k := range kinds {
		if p.check(k) {
			p.advance()
			return true
		}
	}

	return false
}

func (p *Parser) check(k token.Kind) bool {
	return p.peek().Kind == k
}

func (p *Parser) advance() token.Token {
	t := p.tokens[p.pos]

	if !p.atEnd() {
		p.pos++
	}

	return t
}

func (p *Parser) peek() token.Token {
	return p.tokens[p.pos]
}

func (p *Parser) prev() token.Token {
	return p.tokens[p.pos-1]
}

func (p *Parser) atEnd() bool {
	return p.tokens[p.pos].Kind == token.END_OF_FILE
}

func (e ErrorList) Error() string {
	return string(diag.Summary(nil, "syntax", len(e.Diags), e.Diags))
}
