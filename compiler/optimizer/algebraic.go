package optimizer

import (
	"context"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/token"
)

// algebraicSimplifier applies identity and annihilator rewrites:
// x+0, x-0, x*1, x/1 drop the operation; x-x and x/x collapse for
// variable operands; x*0 collapses to 0; x*2^k becomes a tree of
// self-additions for small k; double unary minus cancels.
type algebraicSimplifier struct{}

func (*algebraicSimplifier) name() string { return "algebraic simplification" }

func (p *algebraicSimplifier) run(ctx context.Context, stmts []ast.Stmt) ([]ast.Stmt, bool) {
	return rewriteStmts(stmts, simplifyExpr)
}

func simplifyExpr(e ast.Expr) (ast.Expr, bool) {
	switch t := e.(type) {
	case *ast.Binary:
		return simplifyBinary(t)
	case *ast.Unary:
		if t.Op.Kind == token.MINUS {
			if inner, ok := t.Right.(*ast.Unary); ok && inner.Op.Kind == token.MINUS {
				return inner.Right, true
			}
		}
	}

	return e, false
}

func simplifyBinary(t *ast.Binary) (ast.Expr, bool) {
	lv, _, lNum := litNum(t.Left)
	rv, _, rNum := litNum(t.Right)

	switch t.Op.Kind {
	case token.PLUS:
		if rNum && rv == 0 {
			return t.Left, true
		}

		if lNum && lv == 0 {
			return t.Right, true
		}
	case token.MINUS:
		if rNum && rv == 0 {
			return t.Left, true
		}

		if sameVariable(t.Left, t.Right) {
			return numLit(0, t.Op), true
		}
	case token.STAR:
		if rNum && rv == 0 && !hasSideEffects(t.Left) {
			return numLit(0, t.Op), true
		}

		if lNum && lv == 0 && !hasSideEffects(t.Right) {
			return numLit(0, t.Op), true
		}

		if rNum && rv == 1 {
			return t.Left, true
		}

		if lNum && lv == 1 {
			return t.Right, true
		}

		if v, ok := t.Left.(*ast.Variable); ok && rNum {
			if k, ok := pow2(rv); ok && k >= 1 && k <= 3 {
				return selfAddTree(v, k, t.Op), true
			}
		}
	case token.SLASH:
		if rNum && rv == 1 {
			return t.Left, true
		}

		if sameVariable(t.Left, t.Right) {
			return numLit(1, t.Op), true
		}
	}

	return t, false
}

func sameVariable(l, r ast.Expr) bool {
	lv, ok := l.(*ast.Variable)
	if !ok {
		return false
	}

	rv, ok := r.(*ast.Variable)

	return ok && lv.Name.Lexeme == rv.Name.Lexeme
}

// pow2 returns k when v == 2^k for integral k >= 0.
func pow2(v float64) (int, bool) {
	if v < 1 || v != float64(int64(v)) {
		return 0, false
	}

	n := int64(v)
	if n&(n-1) != 0 {
		return 0, false
	}

	k := 0
	for n > 1 {
		n >>= 1
		k++
	}

	return k, true
}

// selfAddTree builds x*2^k as a balanced tree of self-additions:
// k=1 -> x+x, k=2 -> (x+x)+(x+x), and so on.
func selfAddTree(v *ast.Variable, k int, op token.Token) ast.Expr {
	plus := token.Token{Kind: token.PLUS, Lexeme: "+", Line: op.Line, Column: op.Column}

	var e ast.Expr = &ast.Variable{Name: v.Name}

	for i := 0; i < k; i++ {
		e = &ast.Binary{Left: e, Op: plus, Right: cloneExpr(e)}
	}

	return e
}

// cloneExpr deep-copies an expression so rewrites never share subtrees.
func cloneExpr(e ast.Expr) ast.Expr {
	switch t := e.(type) {
	case nil:
		return nil
	case *ast.Literal:
		c := *t
		return &c
	case *ast.Variable:
		c := *t
		return &c
	case *ast.Assign:
		return &ast.Assign{Name: t.Name, Value: cloneExpr(t.Value)}
	case *ast.Binary:
		return &ast.Binary{Left: cloneExpr(t.Left), Op: t.Op, Right: cloneExpr(t.Right)}
	case *ast.Unary:
		return &ast.Unary{Op: t.Op, Right: cloneExpr(t.Right)}
	case *ast.Logical:
		return &ast.Logical{Left: cloneExpr(t.Left), Op: t.Op, Right: cloneExpr(t.Right)}
	case *ast.Grouping:
		return &ast.Grouping{Inner: cloneExpr(t.Inner)}
	case *ast.Call:
		args := make([]ast.Expr, len(t.Args))
		for i, a := range t.Args {
			args[i] = cloneExpr(a)
		}

		return &ast.Call{Callee: cloneExpr(t.Callee), Args: args, Paren: t.Paren}
	case *ast.ArrayLiteral:
		elems := make([]ast.Expr, len(t.Elems))
		for i, el := range t.Elems {
			elems[i] = cloneExpr(el)
		}

		return &ast.ArrayLiteral{Elems: elems, Bracket: t.Bracket}
	case *ast.DictLiteral:
		pairs := make([]ast.Pair, len(t.Pairs))
		for i, p := range t.Pairs {
			pairs[i] = ast.Pair{Key: cloneExpr(p.Key), Value: cloneExpr(p.Value)}
		}

		return &ast.DictLiteral{Pairs: pairs, Brace: t.Brace}
	case *ast.IndexGet:
		return &ast.IndexGet{Container: cloneExpr(t.Container), Index: cloneExpr(t.Index), Bracket: t.Bracket}
	case *ast.IndexSet:
		return &ast.IndexSet{Container: cloneExpr(t.Container), Index: cloneExpr(t.Index), Value: cloneExpr(t.Value), Bracket: t.Bracket}
	}

	return e
}
