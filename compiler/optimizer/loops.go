package optimizer

import (
	"context"

	"github.com/boxlang/box/compiler/ast"
)

const unrollThreshold = 32

// loopOptimizer is scaffolding for unrolling and invariant motion. The
// iteration-count analysis is not implemented yet, so both transforms
// decline every candidate and the pass never modifies the tree.
// TODO: implement iterationCount for while loops with a literal bound
// and a single induction variable, then enable unrolling below the
// threshold.
type loopOptimizer struct{}

func (*loopOptimizer) name() string { return "loop transformations" }

func (p *loopOptimizer) run(ctx context.Context, stmts []ast.Stmt) ([]ast.Stmt, bool) {
	return stmts, false
}

// canUnroll reports whether the loop has a statically known iteration
// count at or below the threshold.
func (p *loopOptimizer) canUnroll(st *ast.WhileStmt) bool {
	n, ok := p.iterationCount(st)

	return ok && n <= unrollThreshold
}

// iterationCount computes the static trip count when possible.
func (p *loopOptimizer) iterationCount(st *ast.WhileStmt) (int, bool) {
	return 0, false
}

// functionInliner records the bodies of functions that pass the
// complexity gate. No call site is rewritten, so the pass never modifies
// the tree. It is opt-in and disabled at every default level.
type functionInliner struct{}

const inlineThreshold = 10

func (*functionInliner) name() string { return "function inlining" }

func (p *functionInliner) run(ctx context.Context, stmts []ast.Stmt) ([]ast.Stmt, bool) {
	bodies := map[string]*ast.FunctionStmt{}
	collectBodies(stmts, bodies)

	return stmts, false
}

func collectBodies(stmts []ast.Stmt, out map[string]*ast.FunctionStmt) {
	for _, st := range stmts {
		fn, ok := st.(*ast.FunctionStmt)
		if !ok {
			continue
		}

		if complexity(fn.Body) <= inlineThreshold {
			out[fn.Name.Lexeme] = fn
		}

		collectBodies(fn.Body, out)
	}
}

// complexity counts one unit per non-block statement.
func complexity(stmts []ast.Stmt) (n int) {
	for _, st := range stmts {
		switch t := st.(type) {
		case *ast.Block:
			n += complexity(t.Stmts)
		case *ast.UnsafeBlock:
			n += complexity(t.Stmts)
		case *ast.IfStmt:
			n++
			n += complexity([]ast.Stmt{t.Then})

			if t.Else != nil {
				n += complexity([]ast.Stmt{t.Else})
			}
		case *ast.WhileStmt:
			n++
			n += complexity([]ast.Stmt{t.Body})
		case *ast.FunctionStmt:
			n++
			n += complexity(t.Body)
		default:
			n++
		}
	}

	return n
}

// inlineExpr returns a copy of the argument bound to e when e is itself a
// parameter variable, and e otherwise; subexpressions are not visited.
func inlineExpr(e ast.Expr, args map[string]ast.Expr) ast.Expr {
	v, ok := e.(*ast.Variable)
	if !ok {
		return e
	}

	if sub, ok := args[v.Name.Lexeme]; ok {
		return cloneExpr(sub)
	}

	return e
}
