package optimizer

import (
	"context"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/token"
)

// strengthReducer rewrites a variable multiplied, divided or taken modulo
// by 2, 4 or 8 (2^k, k = 1..3) into cheaper shapes: x*2^k becomes a
// self-addition tree, x/2^k a chain of halvings (x/2 is kept as is), and
// x%2^k becomes x - (x/2^k)*2^k.
type strengthReducer struct{}

func (*strengthReducer) name() string { return "strength reduction" }

func (p *strengthReducer) run(ctx context.Context, stmts []ast.Stmt) ([]ast.Stmt, bool) {
	return rewriteStmts(stmts, reduceExpr)
}

func reduceExpr(e ast.Expr) (ast.Expr, bool) {
	t, ok := e.(*ast.Binary)
	if !ok {
		return e, false
	}

	v, isVar := t.Left.(*ast.Variable)
	rv, _, rNum := litNum(t.Right)

	if !isVar || !rNum {
		return e, false
	}

	k, isPow2 := pow2(rv)
	if !isPow2 || k < 1 || k > 3 {
		return e, false
	}

	switch t.Op.Kind {
	case token.STAR:
		return selfAddTree(v, k, t.Op), true
	case token.SLASH:
		if k < 2 {
			// x/2 is already a single halving; rewriting it to itself
			// would never reach the fixpoint
			return e, false
		}

		return halveTree(v, k, t.Op), true
	case token.PERCENT:
		// x % 2^k  ->  x - (x/2^k)*2^k
		minus := opToken(token.MINUS, "-", t.Op)
		star := opToken(token.STAR, "*", t.Op)

		div := halveTree(v, k, t.Op)

		return &ast.Binary{
			Left: &ast.Variable{Name: v.Name},
			Op:   minus,
			Right: &ast.Binary{
				Left:  div,
				Op:    star,
				Right: numLit(rv, t.Op),
			},
		}, true
	}

	return e, false
}

// halveTree builds x/2^k as k nested divisions by two.
func halveTree(v *ast.Variable, k int, op token.Token) ast.Expr {
	slash := opToken(token.SLASH, "/", op)

	var e ast.Expr = &ast.Variable{Name: v.Name}

	for i := 0; i < k; i++ {
		e = &ast.Binary{Left: e, Op: slash, Right: numLit(2, op)}
	}

	return e
}

func opToken(k token.Kind, lex string, at token.Token) token.Token {
	return token.Token{Kind: k, Lexeme: lex, Line: at.Line, Column: at.Column}
}
