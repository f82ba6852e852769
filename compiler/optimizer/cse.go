package optimizer

import (
	"context"
	"strconv"
	"strings"

	"tlog.app/go/tlog"

	"github.com/boxlang/box/compiler/ast"
)

// subexprEliminator performs structural hashing of pure subexpressions
// within one function body; the cache clears at function boundaries and
// at any expression statement with side effects. Repeats are counted and
// logged, but the tree is left intact: no subexpression is replaced or
// shared, so the pass never reports a modification.
type subexprEliminator struct{}

func (*subexprEliminator) name() string { return "common subexpression elimination" }

func (p *subexprEliminator) run(ctx context.Context, stmts []ast.Stmt) ([]ast.Stmt, bool) {
	c := &cseCache{seen: map[string]ast.Expr{}}

	c.scanStmts(stmts)

	tlog.SpanFromContext(ctx).Printw("cse scan", "exprs", len(c.seen), "repeats", c.hits)

	return stmts, false
}

type cseCache struct {
	seen map[string]ast.Expr
	hits int
}

func (c *cseCache) reset() {
	c.seen = map[string]ast.Expr{}
}

func (c *cseCache) scanStmts(stmts []ast.Stmt) {
	for _, st := range stmts {
		c.scanStmt(st)
	}
}

func (c *cseCache) scanStmt(st ast.Stmt) {
	switch t := st.(type) {
	case *ast.ExprStmt:
		if hasSideEffects(t.Expr) {
			c.reset()
		}

		c.scanExpr(t.Expr)
	case *ast.PrintStmt:
		c.scanExpr(t.Expr)
	case *ast.VarStmt:
		if t.Init != nil {
			c.scanExpr(t.Init)
		}
	case *ast.Block:
		c.scanStmts(t.Stmts)
	case *ast.IfStmt:
		c.scanExpr(t.Condition)
		c.scanStmt(t.Then)

		if t.Else != nil {
			c.scanStmt(t.Else)
		}
	case *ast.WhileStmt:
		c.scanExpr(t.Condition)
		c.scanStmt(t.Body)
	case *ast.SwitchStmt:
		c.scanExpr(t.Condition)

		for _, cs := range t.Cases {
			c.scanStmts(cs.Body)
		}

		c.scanStmts(t.Default)
	case *ast.FunctionStmt:
		// function boundary clears the cache
		c.reset()
		c.scanStmts(t.Body)
		c.reset()
	case *ast.ReturnStmt:
		if t.Value != nil {
			c.scanExpr(t.Value)
		}
	case *ast.UnsafeBlock:
		c.scanStmts(t.Stmts)
	}
}

func (c *cseCache) scanExpr(e ast.Expr) {
	if e == nil {
		return
	}

	switch t := e.(type) {
	case *ast.Assign:
		c.scanExpr(t.Value)
		return
	case *ast.Call:
		for _, a := range t.Args {
			c.scanExpr(a)
		}

		return
	case *ast.IndexSet:
		c.scanExpr(t.Container)
		c.scanExpr(t.Index)
		c.scanExpr(t.Value)

		return
	case *ast.Binary:
		c.scanExpr(t.Left)
		c.scanExpr(t.Right)
	case *ast.Unary:
		c.scanExpr(t.Right)
	case *ast.Logical:
		c.scanExpr(t.Left)
		c.scanExpr(t.Right)
	case *ast.Grouping:
		c.scanExpr(t.Inner)
	case *ast.IndexGet:
		c.scanExpr(t.Container)
		c.scanExpr(t.Index)
	case *ast.Literal, *ast.Variable:
		// leaves are not worth interning
		return
	}

	if hasSideEffects(e) {
		return
	}

	key := exprKey(e)

	if _, ok := c.seen[key]; ok {
		c.hits++
	} else {
		c.seen[key] = e
	}
}

// exprKey is the stringified structural form used as the hash key.
func exprKey(e ast.Expr) string {
	var sb strings.Builder

	appendKey(&sb, e)

	return sb.String()
}

func appendKey(sb *strings.Builder, e ast.Expr) {
	switch t := e.(type) {
	case nil:
	case *ast.Literal:
		sb.WriteString("lit:")
		sb.WriteString(t.Token.Lexeme)
	case *ast.Variable:
		sb.WriteString("var:")
		sb.WriteString(t.Name.Lexeme)
	case *ast.Binary:
		sb.WriteString("(")
		appendKey(sb, t.Left)
		sb.WriteString(t.Op.Lexeme)
		appendKey(sb, t.Right)
		sb.WriteString(")")
	case *ast.Unary:
		sb.WriteString(t.Op.Lexeme)
		appendKey(sb, t.Right)
	case *ast.Logical:
		sb.WriteString("(")
		appendKey(sb, t.Left)
		sb.WriteString(" ")
		sb.WriteString(t.Op.Lexeme)
		sb.WriteString(" ")
		appendKey(sb, t.Right)
		sb.WriteString(")")
	case *ast.Grouping:
		appendKey(sb, t.Inner)
	case *ast.IndexGet:
		appendKey(sb, t.Container)
		sb.WriteString("[")
		appendKey(sb, t.Index)
		sb.WriteString("]")
	case *ast.ArrayLiteral:
		sb.WriteString("[")
		for i, el := range t.Elems {
			if i != 0 {
				sb.WriteString(",")
			}

			appendKey(sb, el)
		}
		sb.WriteString("]")
	case *ast.DictLiteral:
		sb.WriteString("{")
		for i, p := range t.Pairs {
			if i != 0 {
				sb.WriteString(",")
			}

			appendKey(sb, p.Key)
			sb.WriteString(":")
			appendKey(sb, p.Value)
		}
		sb.WriteString("}")
	default:
		sb.WriteString("opaque:")
		sb.WriteString(strconv.Itoa(int(exprLine(e))))
	}
}

func exprLine(e ast.Expr) int {
	switch t := e.(type) {
	case *ast.Literal:
		return t.Token.Line
	case *ast.Variable:
		return t.Name.Line
	case *ast.Assign:
		return t.Name.Line
	case *ast.Binary:
		return t.Op.Line
	case *ast.Unary:
		return t.Op.Line
	case *ast.Logical:
		return t.Op.Line
	case *ast.Call:
		return t.Paren.Line
	case *ast.Grouping:
		return exprLine(t.Inner)
	case *ast.ArrayLiteral:
		return t.Bracket.Line
	case *ast.DictLiteral:
		return t.Brace.Line
	case *ast.IndexGet:
		return t.Bracket.Line
	case *ast.IndexSet:
		return t.Bracket.Line
	}

	return 0
}
