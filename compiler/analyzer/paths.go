package analyzer

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/set"
)

const (
	maxPathDepth = 1000
	maxPaths     = 10000
)

// enumeratePaths walks every user function's body CFG by bounded DFS and
// warns about allocations still live at the function exit on any
// enumerated path. Path feasibility is not evaluated; all paths are
// assumed feasible.
func (a *Analyzer) enumeratePaths(ctx context.Context, stmts []ast.Stmt) {
	var fns []*ast.FunctionStmt
	collectFunctions(stmts, &fns)

	for _, fn := range fns {
		g := a.buildCFG(ctx, fn.Body)

		a.enumerateFunc(ctx, fn, g)
	}
}

func (a *Analyzer) enumerateFunc(ctx context.Context, fn *ast.FunctionStmt, g *Graph) {
	tr := tlog.SpanFromContext(ctx)

	paths := 0
	leaked := map[string]bool{} // one warning per name per function

	visited := set.MakeBitmap(len(g.Nodes))

	var dfs func(id, depth int, facts map[string]Fact)
	dfs = func(id, depth int, facts map[string]Fact) {
		if paths >= maxPaths || depth > maxPathDepth {
			return
		}

		if visited.IsSet(id) {
			return
		}

		n := g.Nodes[id]
		facts = transfer(n, facts)

		if id == g.Exit {
			paths++

			for name, f := range facts {
				if f.State == Allocated && !leaked[name] {
					leaked[name] = true

					a.warn(ctx, "MEMORY LEAK", fn.Name,
						errors.New("%q may leak along a path through %q", name, fn.Name.Lexeme).Error(),
						"At least one enumerated path reaches the function exit without freeing it.")
				}
			}

			return
		}

		visited.Set(id)

		for _, s := range n.Succ {
			dfs(s, depth+1, facts)
		}

		visited.Clear(id)
	}

	dfs(g.Entry, 0, map[string]Fact{})

	tr.Printw("paths enumerated", "func", fn.Name.Lexeme, "paths", paths, "capped", paths >= maxPaths)
}

func collectFunctions(stmts []ast.Stmt, fns *[]*ast.FunctionStmt) {
	for _, st := range stmts {
		switch st := st.(type) {
		case *ast.FunctionStmt:
			*fns = append(*fns, st)
			collectFunctions(st.Body, fns)
		case *ast.Block:
			collectFunctions(st.Stmts, fns)
		case *ast.UnsafeBlock:
			collectFunctions(st.Stmts, fns)
		case *ast.IfStmt:
			collectFunctions([]ast.Stmt{st.Then}, fns)
			if st.Else != nil {
				collectFunctions([]ast.Stmt{st.Else}, fns)
			}
		case *ast.WhileStmt:
			collectFunctions([]ast.Stmt{st.Body}, fns)
		case *ast.SwitchStmt:
			for _, c := range st.Cases {
				collectFunctions(c.Body, fns)
			}

			collectFunctions(st.Default, fns)
		}
	}
}
