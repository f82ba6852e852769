package optimizer

import (
	"context"
	"math"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/token"
)

// constantFolder evaluates literal operands at compile time and collapses
// branches with literal conditions. Division and modulo by a literal zero
// are left unfolded so the runtime trap is preserved.
type constantFolder struct{}

func (*constantFolder) name() string { return "constant folding" }

func (p *constantFolder) run(ctx context.Context, stmts []ast.Stmt) ([]ast.Stmt, bool) {
	stmts, m1 := rewriteStmts(stmts, foldExpr)
	stmts, m2 := foldStmts(stmts)

	return stmts, m1 || m2
}

func foldExpr(e ast.Expr) (ast.Expr, bool) {
	switch t := e.(type) {
	case *ast.Binary:
		return foldBinary(t)
	case *ast.Unary:
		return foldUnary(t)
	case *ast.Logical:
		return foldLogical(t)
	case *ast.Grouping:
		if l, ok := t.Inner.(*ast.Literal); ok {
			return l, true
		}
	}

	return e, false
}

func foldBinary(t *ast.Binary) (ast.Expr, bool) {
	l, lt := t.Left.(*ast.Literal)
	r, rt := t.Right.(*ast.Literal)

	if !lt || !rt {
		return t, false
	}

	if l.Value.Kind == token.LitNumber && r.Value.Kind == token.LitNumber {
		a, b := l.Value.Num, r.Value.Num

		switch t.Op.Kind {
		case token.PLUS:
			return numLit(a+b, t.Op), true
		case token.MINUS:
			return numLit(a-b, t.Op), true
		case token.STAR:
			return numLit(a*b, t.Op), true
		case token.SLASH:
			if b == 0 {
				return t, false // keep the runtime trap
			}

			return numLit(a/b, t.Op), true
		case token.PERCENT:
			if b == 0 {
				return t, false
			}

			return numLit(math.Mod(a, b), t.Op), true
		case token.LESS:
			return boolLit(a < b, t.Op), true
		case token.LESS_EQUAL:
			return boolLit(a <= b, t.Op), true
		case token.GREATER:
			return boolLit(a > b, t.Op), true
		case token.GREATER_EQUAL:
			return boolLit(a >= b, t.Op), true
		case token.EQUAL_EQUAL:
			return boolLit(a == b, t.Op), true
		case token.BANG_EQUAL:
			return boolLit(a != b, t.Op), true
		}
	}

	if l.Value.Kind == token.LitBool && r.Value.Kind == token.LitBool {
		switch t.Op.Kind {
		case token.EQUAL_EQUAL:
			return boolLit(l.Value.Bool == r.Value.Bool, t.Op), true
		case token.BANG_EQUAL:
			return boolLit(l.Value.Bool != r.Value.Bool, t.Op), true
		}
	}

	if l.Value.Kind == token.LitString && r.Value.Kind == token.LitString {
		switch t.Op.Kind {
		case token.EQUAL_EQUAL:
			return boolLit(l.Value.Str == r.Value.Str, t.Op), true
		case token.BANG_EQUAL:
			return boolLit(l.Value.Str != r.Value.Str, t.Op), true
		}
	}

	return t, false
}

func foldUnary(t *ast.Unary) (ast.Expr, bool) {
	l, ok := t.Right.(*ast.Literal)
	if !ok {
		return t, false
	}

	switch {
	case t.Op.Kind == token.MINUS && l.Value.Kind == token.LitNumber:
		return numLit(-l.Value.Num, t.Op), true
	case t.Op.Kind == token.BANG && l.Value.Kind == token.LitBool:
		return boolLit(!l.Value.Bool, t.Op), true
	}

	return t, false
}

// foldLogical short-circuits and/or on a literal left operand.
func foldLogical(t *ast.Logical) (ast.Expr, bool) {
	v, tk, ok := litBool(t.Left)
	if !ok {
		return t, false
	}

	switch t.Op.Kind {
	case token.AND:
		if !v {
			return boolLit(false, tk), true
		}

		return t.Right, true
	case token.OR:
		if v {
			return boolLit(true, tk), true
		}

		return t.Right, true
	}

	return t, false
}

// foldStmts collapses if(true/false) to the taken branch and drops
// while(false) loops entirely.
func foldStmts(stmts []ast.Stmt) ([]ast.Stmt, bool) {
	var out []ast.Stmt

	mod := false

	for _, st := range stmts {
		ns, drop, m := foldStmt(st)
		mod = mod || m

		if drop {
			continue
		}

		out = append(out, ns)
	}

	if !mod {
		return stmts, false
	}

	return out, true
}

func foldStmt(st ast.Stmt) (_ ast.Stmt, drop, mod bool) {
	switch t := st.(type) {
	case *ast.IfStmt:
		if v, _, ok := litBool(t.Condition); ok {
			if v {
				ns, drop, _ := foldStmt(t.Then)
				return ns, drop, true
			}

			if t.Else == nil {
				return nil, true, true
			}

			ns, drop, _ := foldStmt(t.Else)

			return ns, drop, true
		}

		then, _, mt := foldStmt(t.Then)

		var els ast.Stmt
		me := false

		if t.Else != nil {
			els, _, me = foldStmt(t.Else)
		}

		if mt || me {
			return &ast.IfStmt{Condition: t.Condition, Then: then, Else: els, Keyword: t.Keyword}, false, true
		}
	case *ast.WhileStmt:
		if v, _, ok := litBool(t.Condition); ok && !v {
			return nil, true, true
		}

		body, _, m := foldStmt(t.Body)
		if m {
			return &ast.WhileStmt{Condition: t.Condition, Body: body}, false, true
		}
	case *ast.Block:
		stmts, m := foldStmts(t.Stmts)
		if m {
			return &ast.Block{Stmts: stmts, Brace: t.Brace}, false, true
		}
	case *ast.UnsafeBlock:
		stmts, m := foldStmts(t.Stmts)
		if m {
			return &ast.UnsafeBlock{Stmts: stmts, Keyword: t.Keyword}, false, true
		}
	case *ast.FunctionStmt:
		body, m := foldStmts(t.Body)
		if m {
			return &ast.FunctionStmt{Name: t.Name, Params: t.Params, Body: body}, false, true
		}
	case *ast.SwitchStmt:
		mod := false

		cases := make([]ast.Case, len(t.Cases))
		for i, c := range t.Cases {
			body, m := foldStmts(c.Body)

			cases[i] = ast.Case{Value: c.Value, Body: body, Keyword: c.Keyword}
			mod = mod || m
		}

		def, md := foldStmts(t.Default)
		mod = mod || md

		if mod {
			return &ast.SwitchStmt{Condition: t.Condition, Cases: cases, Default: def, Keyword: t.Keyword}, false, true
		}
	}

	return st, false, false
}
