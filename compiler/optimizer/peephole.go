package optimizer

import (
	"context"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/token"
)

// peepholer cancels double negation: --x and !!b collapse to the
// operand.
type peepholer struct{}

func (*peepholer) name() string { return "peephole" }

func (p *peepholer) run(ctx context.Context, stmts []ast.Stmt) ([]ast.Stmt, bool) {
	return rewriteStmts(stmts, peepExpr)
}

func peepExpr(e ast.Expr) (ast.Expr, bool) {
	t, ok := e.(*ast.Unary)
	if !ok {
		return e, false
	}

	inner, ok := t.Right.(*ast.Unary)
	if !ok || inner.Op.Kind != t.Op.Kind {
		return e, false
	}

	switch t.Op.Kind {
	case token.MINUS, token.BANG:
		return inner.Right, true
	}

	return e, false
}
