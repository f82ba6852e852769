// Package optimizer rewrites the AST through a fixed sequence of passes
// repeated to a fixed point. Every pass rebuilds a new tree; pass outputs
// feed pass inputs.
package optimizer

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/token"
)

const maxRounds = 10

type (
	// Config enables individual passes. Level sets reasonable defaults;
	// explicit flags win.
	Config struct {
		Level int

		ConstantFolding bool
		Algebraic       bool
		DeadCode        bool
		CSE             bool
		Loops           bool
		Strength        bool
		InlineFunctions bool
		Peephole        bool
	}

	pass interface {
		name() string
		run(ctx context.Context, stmts []ast.Stmt) ([]ast.Stmt, bool)
	}
)

// DefaultConfig maps an -O level (0..3) to pass enables.
func DefaultConfig(level int) Config {
	c := Config{Level: level}

	if level >= 1 {
		c.ConstantFolding = true
		c.Algebraic = true
		c.Peephole = true
	}

	if level >= 2 {
		c.DeadCode = true
		c.CSE = true
		c.Strength = true
	}

	if level >= 3 {
		c.Loops = true
	}

	// function inlining stays opt-in at every level
	return c
}

// Optimize runs the enabled passes in order, repeating rounds until no
// pass reports modification, bounded by maxRounds.
func Optimize(ctx context.Context, cfg Config, stmts []ast.Stmt) []ast.Stmt {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "optimize", "level", cfg.Level)
	defer tr.Finish()

	passes := cfg.passes()

	for round := 0; round < maxRounds; round++ {
		modified := false

		for _, p := range passes {
			var m bool

			stmts, m = p.run(ctx, stmts)
			if m {
				tr.Printw("pass modified", "round", round, "pass", p.name())
			}

			modified = modified || m
		}

		if !modified {
			tr.Printw("fixpoint", "rounds", round+1)

			break
		}
	}

	return stmts
}

func (c Config) passes() (ps []pass) {
	if c.ConstantFolding {
		ps = append(ps, &constantFolder{})
	}

	if c.Algebraic {
		ps = append(ps, &algebraicSimplifier{})
	}

	if c.DeadCode {
		ps = append(ps, &deadCodeEliminator{})
	}

	if c.CSE {
		ps = append(ps, &subexprEliminator{})
	}

	if c.Loops {
		ps = append(ps, &loopOptimizer{})
	}

	if c.Strength {
		ps = append(ps, &strengthReducer{})
	}

	if c.InlineFunctions {
		ps = append(ps, &functionInliner{})
	}

	if c.Peephole {
		ps = append(ps, &peepholer{})
	}

	return ps
}

// exprRewriter transforms one expression node after its children were
// already rewritten.
type exprRewriter func(e ast.Expr) (ast.Expr, bool)

// rewriteExpr rebuilds e bottom-up, applying f at every node.
func rewriteExpr(e ast.Expr, f exprRewriter) (ast.Expr, bool) {
	if e == nil {
		return nil, false
	}

	mod := false

	switch t := e.(type) {
	case *ast.Literal, *ast.Variable:
	case *ast.Assign:
		v, m := rewriteExpr(t.Value, f)
		if m {
			e = &ast.Assign{Name: t.Name, Value: v}
			mod = true
		}
	case *ast.Binary:
		l, ml := rewriteExpr(t.Left, f)
		r, mr := rewriteExpr(t.Right, f)

		if ml || mr {
			e = &ast.Binary{Left: l, Op: t.Op, Right: r}
			mod = true
		}
	case *ast.Unary:
		r, m := rewriteExpr(t.Right, f)
		if m {
			e = &ast.Unary{Op: t.Op, Right: r}
			mod = true
		}
	case *ast.Logical:
		l, ml := rewriteExpr(t.Left, f)
		r, mr := rewriteExpr(t.Right, f)

		if ml || mr {
			e = &ast.Logical{Left: l, Op: t.Op, Right: r}
			mod = true
		}
	case *ast.Grouping:
		in, m := rewriteExpr(t.Inner, f)
		if m {
			e = &ast.Grouping{Inner: in}
			mod = true
		}
	case *ast.Call:
		args := t.Args
		changed := false

		for i, a := range t.Args {
			na, m := rewriteExpr(a, f)
			if m && !changed {
				args = append([]ast.Expr(nil), t.Args...)
				changed = true
			}

			if changed {
				args[i] = na
			}
		}

		callee, mc := rewriteExpr(t.Callee, f)

		if changed || mc {
			e = &ast.Call{Callee: callee, Args: args, Paren: t.Paren}
			mod = true
		}
	case *ast.ArrayLiteral:
		elems := t.Elems
		changed := false

		for i, el := range t.Elems {
			ne, m := rewriteExpr(el, f)
			if m && !changed {
				elems = append([]ast.Expr(nil), t.Elems...)
				changed = true
			}

			if changed {
				elems[i] = ne
			}
		}

		if changed {
			e = &ast.ArrayLiteral{Elems: elems, Bracket: t.Bracket}
			mod = true
		}
	case *ast.DictLiteral:
		pairs := t.Pairs
		changed := false

		for i, p := range t.Pairs {
			nk, mk := rewriteExpr(p.Key, f)
			nv, mv := rewriteExpr(p.Value, f)

			if (mk || mv) && !changed {
				pairs = append([]ast.Pair(nil), t.Pairs...)
				changed = true
			}

			if changed {
				pairs[i] = ast.Pair{Key: nk, Value: nv}
			}
		}

		if changed {
			e = &ast.DictLiteral{Pairs: pairs, Brace: t.Brace}
			mod = true
		}
	case *ast.IndexGet:
		c, mc := rewriteExpr(t.Container, f)
		i, mi := rewriteExpr(t.Index, f)

		if mc || mi {
			e = &ast.IndexGet{Container: c, Index: i, Bracket: t.Bracket}
			mod = true
		}
	case *ast.IndexSet:
		c, mc := rewriteExpr(t.Container, f)
		i, mi := rewriteExpr(t.Index, f)
		v, mv := rewriteExpr(t.Value, f)

		if mc || mi || mv {
			e = &ast.IndexSet{Container: c, Index: i, Value: v, Bracket: t.Bracket}
			mod = true
		}
	}

	ne, m := f(e)

	return ne, mod || m
}

// rewriteStmt rebuilds st, applying f to every expression in it.
func rewriteStmt(st ast.Stmt, f exprRewriter) (ast.Stmt, bool) {
	switch t := st.(type) {
	case *ast.ExprStmt:
		e, m := rewriteExpr(t.Expr, f)
		if m {
			return &ast.ExprStmt{Expr: e}, true
		}
	case *ast.PrintStmt:
		e, m := rewriteExpr(t.Expr, f)
		if m {
			return &ast.PrintStmt{Expr: e, Keyword: t.Keyword}, true
		}
	case *ast.VarStmt:
		if t.Init == nil {
			return st, false
		}

		e, m := rewriteExpr(t.Init, f)
		if m {
			return &ast.VarStmt{Name: t.Name, Init: e}, true
		}
	case *ast.Block:
		stmts, m := rewriteStmts(t.Stmts, f)
		if m {
			return &ast.Block{Stmts: stmts, Brace: t.Brace}, true
		}
	case *ast.IfStmt:
		cond, mc := rewriteExpr(t.Condition, f)
		then, mt := rewriteStmt(t.Then, f)

		var els ast.Stmt
		me := false

		if t.Else != nil {
			els, me = rewriteStmt(t.Else, f)
		}

		if mc || mt || me {
			return &ast.IfStmt{Condition: cond, Then: then, Else: els, Keyword: t.Keyword}, true
		}
	case *ast.WhileStmt:
		cond, mc := rewriteExpr(t.Condition, f)
		body, mb := rewriteStmt(t.Body, f)

		if mc || mb {
			return &ast.WhileStmt{Condition: cond, Body: body}, true
		}
	case *ast.SwitchStmt:
		cond, mod := rewriteExpr(t.Condition, f)

		cases := make([]ast.Case, len(t.Cases))
		for i, c := range t.Cases {
			v, mv := rewriteExpr(c.Value, f)
			body, mb := rewriteStmts(c.Body, f)

			cases[i] = ast.Case{Value: v, Body: body, Keyword: c.Keyword}
			mod = mod || mv || mb
		}

		def, md := rewriteStmts(t.Default, f)
		mod = mod || md

		if mod {
			return &ast.SwitchStmt{Condition: cond, Cases: cases, Default: def, Keyword: t.Keyword}, true
		}
	case *ast.FunctionStmt:
		body, m := rewriteStmts(t.Body, f)
		if m {
			return &ast.FunctionStmt{Name: t.Name, Params: t.Params, Body: body}, true
		}
	case *ast.ReturnStmt:
		if t.Value == nil {
			return st, false
		}

		e, m := rewriteExpr(t.Value, f)
		if m {
			return &ast.ReturnStmt{Keyword: t.Keyword, Value: e}, true
		}
	case *ast.UnsafeBlock:
		stmts, m := rewriteStmts(t.Stmts, f)
		if m {
			return &ast.UnsafeBlock{Stmts: stmts, Keyword: t.Keyword}, true
		}
	}

	return st, false
}

func rewriteStmts(stmts []ast.Stmt, f exprRewriter) ([]ast.Stmt, bool) {
	out := stmts
	mod := false

	for i, st := range stmts {
		ns, m := rewriteStmt(st, f)
		if m && !mod {
			out = append([]ast.Stmt(nil), stmts...)
			mod = true
		}

		if mod {
			out[i] = ns
		}
	}

	return out, mod
}

// literal helpers

func litNum(e ast.Expr) (float64, token.Token, bool) {
	l, ok := e.(*ast.Literal)
	if !ok || l.Value.Kind != token.LitNumber {
		return 0, token.Token{}, false
	}

	return l.Value.Num, l.Token, true
}

func litBool(e ast.Expr) (bool, token.Token, bool) {
	l, ok := e.(*ast.Literal)
	if !ok || l.Value.Kind != token.LitBool {
		return false, token.Token{}, false
	}

	return l.Value.Bool, l.Token, true
}

func numLit(v float64, tk token.Token) *ast.Literal {
	return &ast.Literal{Value: token.Number(v), Token: tk}
}

func boolLit(v bool, tk token.Token) *ast.Literal {
	return &ast.Literal{Value: token.Bool(v), Token: tk}
}

// hasSideEffects reports whether evaluating e can be observed: calls,
// assignments, index stores, or any subexpression containing one.
func hasSideEffects(e ast.Expr) bool {
	switch t := e.(type) {
	case nil, *ast.Literal, *ast.Variable:
		return false
	case *ast.Assign, *ast.Call, *ast.IndexSet:
		return true
	case *ast.Binary:
		return hasSideEffects(t.Left) || hasSideEffects(t.Right)
	case *ast.Unary:
		return hasSideEffects(t.Right)
	case *ast.Logical:
		return hasSideEffects(t.Left) || hasSideEffects(t.Right)
	case *ast.Grouping:
		return hasSideEffects(t.Inner)
	case *ast.ArrayLiteral:
		for _, el := range t.Elems {
			if hasSideEffects(el) {
				return true
			}
		}
	case *ast.DictLiteral:
		for _, p := range t.Pairs {
			if hasSideEffects(p.Key) || hasSideEffects(p.Value) {
				return true
			}
		}
	case *ast.IndexGet:
		return hasSideEffects(t.Container) || hasSideEffects(t.Index)
	}

	return false
}
