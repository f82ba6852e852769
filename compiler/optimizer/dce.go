package optimizer

import (
	"context"

	"github.com/boxlang/box/compiler/ast"
)

// deadCodeEliminator drops variable declarations whose name is never
// read and whose initializer has no side effects. Control-flow
// structures are always kept; their bodies are filtered recursively.
type deadCodeEliminator struct{}

func (*deadCodeEliminator) name() string { return "dead code elimination" }

func (p *deadCodeEliminator) run(ctx context.Context, stmts []ast.Stmt) ([]ast.Stmt, bool) {
	reads := map[string]bool{}
	markReadStmts(stmts, reads)

	return filterDead(stmts, reads)
}

func filterDead(stmts []ast.Stmt, reads map[string]bool) ([]ast.Stmt, bool) {
	var out []ast.Stmt

	mod := false

	for _, st := range stmts {
		switch t := st.(type) {
		case *ast.VarStmt:
			if !reads[t.Name.Lexeme] && !hasSideEffects(t.Init) {
				mod = true
				continue
			}
		case *ast.Block:
			body, m := filterDead(t.Stmts, reads)
			if m {
				st = &ast.Block{Stmts: body, Brace: t.Brace}
				mod = true
			}
		case *ast.UnsafeBlock:
			body, m := filterDead(t.Stmts, reads)
			if m {
				st = &ast.UnsafeBlock{Stmts: body, Keyword: t.Keyword}
				mod = true
			}
		case *ast.FunctionStmt:
			body, m := filterDead(t.Body, reads)
			if m {
				st = &ast.FunctionStmt{Name: t.Name, Params: t.Params, Body: body}
				mod = true
			}
		case *ast.IfStmt:
			then, mt := filterDeadOne(t.Then, reads)

			els := t.Else
			me := false

			if t.Else != nil {
				els, me = filterDeadOne(t.Else, reads)
			}

			if mt || me {
				st = &ast.IfStmt{Condition: t.Condition, Then: then, Else: els, Keyword: t.Keyword}
				mod = true
			}
		case *ast.WhileStmt:
			body, m := filterDeadOne(t.Body, reads)
			if m {
				st = &ast.WhileStmt{Condition: t.Condition, Body: body}
				mod = true
			}
		case *ast.SwitchStmt:
			changed := false

			cases := make([]ast.Case, len(t.Cases))
			for i, c := range t.Cases {
				body, m := filterDead(c.Body, reads)

				cases[i] = ast.Case{Value: c.Value, Body: body, Keyword: c.Keyword}
				changed = changed || m
			}

			def, md := filterDead(t.Default, reads)
			changed = changed || md

			if changed {
				st = &ast.SwitchStmt{Condition: t.Condition, Cases: cases, Default: def, Keyword: t.Keyword}
				mod = true
			}
		}

		out = append(out, st)
	}

	if !mod {
		return stmts, false
	}

	return out, true
}

func filterDeadOne(st ast.Stmt, reads map[string]bool) (ast.Stmt, bool) {
	out, mod := filterDead([]ast.Stmt{st}, reads)
	if !mod {
		return st, false
	}

	if len(out) == 0 {
		return &ast.Block{}, true
	}

	return out[0], true
}

func markReadStmts(stmts []ast.Stmt, reads map[string]bool) {
	for _, st := range stmts {
		markReadStmt(st, reads)
	}
}

func markReadStmt(st ast.Stmt, reads map[string]bool) {
	switch t := st.(type) {
	case *ast.ExprStmt:
		markReadExpr(t.Expr, reads)
	case *ast.PrintStmt:
		markReadExpr(t.Expr, reads)
	case *ast.VarStmt:
		markReadExpr(t.Init, reads)
	case *ast.Block:
		markReadStmts(t.Stmts, reads)
	case *ast.IfStmt:
		markReadExpr(t.Condition, reads)
		markReadStmt(t.Then, reads)

		if t.Else != nil {
			markReadStmt(t.Else, reads)
		}
	case *ast.WhileStmt:
		markReadExpr(t.Condition, reads)
		markReadStmt(t.Body, reads)
	case *ast.SwitchStmt:
		markReadExpr(t.Condition, reads)

		for _, c := range t.Cases {
			markReadExpr(c.Value, reads)
			markReadStmts(c.Body, reads)
		}

		markReadStmts(t.Default, reads)
	case *ast.FunctionStmt:
		markReadStmts(t.Body, reads)
	case *ast.ReturnStmt:
		markReadExpr(t.Value, reads)
	case *ast.UnsafeBlock:
		markReadStmts(t.Stmts, reads)
	}
}

func markReadExpr(e ast.Expr, reads map[string]bool) {
	switch t := e.(type) {
	case nil:
	case *ast.Variable:
		reads[t.Name.Lexeme] = true
	case *ast.Assign:
		reads[t.Name.Lexeme] = true
		markReadExpr(t.Value, reads)
	case *ast.Binary:
		markReadExpr(t.Left, reads)
		markReadExpr(t.Right, reads)
	case *ast.Unary:
		markReadExpr(t.Right, reads)
	case *ast.Logical:
		markReadExpr(t.Left, reads)
		markReadExpr(t.Right, reads)
	case *ast.Grouping:
		markReadExpr(t.Inner, reads)
	case *ast.Call:
		markReadExpr(t.Callee, reads)

		for _, a := range t.Args {
			markReadExpr(a, reads)
		}
	case *ast.ArrayLiteral:
		for _, el := range t.Elems {
			markReadExpr(el, reads)
		}
	case *ast.DictLiteral:
		for _, p := range t.Pairs {
			markReadExpr(p.Key, reads)
			markReadExpr(p.Value, reads)
		}
	case *ast.IndexGet:
		markReadExpr(t.Container, reads)
		markReadExpr(t.Index, reads)
	case *ast.IndexSet:
		markReadExpr(t.Container, reads)
		markReadExpr(t.Index, reads)
		markReadExpr(t.Value, reads)
	}
}
