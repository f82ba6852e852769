package codegen

import (
	"context"
	"strconv"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/ir"
	"github.com/boxlang/box/compiler/token"
)

func (g *Generator) genStmt(ctx context.Context, st ast.Stmt) error {
	switch st := st.(type) {
	case *ast.ExprStmt:
		_, err := g.genExpr(ctx, st.Expr)
		return err
	case *ast.PrintStmt:
		return g.genPrint(ctx, st)
	case *ast.VarStmt:
		return g.genVar(ctx, st)
	case *ast.Block:
		g.pushScope()
		defer g.popScope()

		for _, s := range st.Stmts {
			if err := g.genStmt(ctx, s); err != nil {
				return err
			}
		}

		return nil
	case *ast.IfStmt:
		return g.genIf(ctx, st)
	case *ast.WhileStmt:
		return g.genWhile(ctx, st)
	case *ast.SwitchStmt:
		return g.genSwitch(ctx, st)
	case *ast.FunctionStmt:
		return g.genFunction(ctx, st)
	case *ast.ReturnStmt:
		return g.genReturn(ctx, st)
	case *ast.BreakStmt:
		if len(g.breaks) == 0 {
			return g.errAt(st.Keyword, "break is only legal inside while, for or switch.",
				"'break' outside of a loop or switch")
		}

		g.f.Emit("br label %%%s", g.breaks[len(g.breaks)-1].Label)

		return nil
	case *ast.UnsafeBlock:
		g.unsafeDepth++
		defer func() { g.unsafeDepth-- }()

		g.pushScope()
		defer g.popScope()

		for _, s := range st.Stmts {
			if err := g.genStmt(ctx, s); err != nil {
				return err
			}
		}

		return nil
	case *ast.LLVMInlineStmt:
		return g.genInline(ctx, st)
	case *ast.ImportStmt:
		// imports were flattened by the resolver
		return nil
	}

	return nil
}

func (g *Generator) genVar(ctx context.Context, st *ast.VarStmt) error {
	var v Value
	var err error

	if st.Init != nil {
		v, err = g.genExpr(ctx, st.Init)
		if err != nil {
			return err
		}
	} else {
		v = Value{Ref: ir.Float(0), Tag: NilTag}
	}

	name := st.Name.Lexeme

	var b *binding

	switch v.Tag {
	case Array, Dict:
		// the struct pointer itself is the binding
		b = &binding{ptr: v.Ref, tag: v.Tag, mutable: true, elem: v.Elem, key: v.Key}
	default:
		ty := irType(v.Tag)

		slot := g.f.Reg()
		g.f.Emit("%s = alloca %s", slot, ty)
		g.f.Emit("store %s %s, ptr %s", ty, v.Ref, slot)

		b = &binding{ptr: slot, tag: v.Tag, mutable: true, elem: v.Elem}
	}

	if !g.define(name, b) {
		return g.errAt(st.Name, "Every name can be declared once per scope.",
			"Variable %q is already declared in this scope", name)
	}

	return nil
}

func (g *Generator) genIf(ctx context.Context, st *ast.IfStmt) error {
	cond, err := g.genExpr(ctx, st.Condition)
	if err != nil {
		return err
	}

	c, err := g.toBool(cond, st.Keyword)
	if err != nil {
		return err
	}

	then := g.f.NewBlock("if_then")
	end := g.f.NewBlock("if_end")

	els := end
	if st.Else != nil {
		els = g.f.NewBlock("if_else")
	}

	g.f.Emit("br i1 %s, label %%%s, label %%%s", c, then.Label, els.Label)

	g.f.SetBlock(then)

	if err := g.genStmt(ctx, st.Then); err != nil {
		return err
	}

	if !g.f.Terminated() {
		g.f.Emit("br label %%%s", end.Label)
	}

	if st.Else != nil {
		g.f.SetBlock(els)

		if err := g.genStmt(ctx, st.Else); err != nil {
			return err
		}

		if !g.f.Terminated() {
			g.f.Emit("br label %%%s", end.Label)
		}
	}

	g.f.SetBlock(end)

	return nil
}

func (g *Generator) genWhile(ctx context.Context, st *ast.WhileStmt) error {
	cond := g.f.NewBlock("while_cond")
	body := g.f.NewBlock("while_body")
	end := g.f.NewBlock("while_end")

	g.f.Emit("br label %%%s", cond.Label)

	g.f.SetBlock(cond)

	cv, err := g.genExpr(ctx, st.Condition)
	if err != nil {
		return err
	}

	c, err := g.toBool(cv, tokenOf(st.Condition))
	if err != nil {
		return err
	}

	g.f.Emit("br i1 %s, label %%%s, label %%%s", c, body.Label, end.Label)

	g.breaks = append(g.breaks, end)

	g.f.SetBlock(body)

	if err := g.genStmt(ctx, st.Body); err != nil {
		return err
	}

	g.breaks = g.breaks[:len(g.breaks)-1]

	if !g.f.Terminated() {
		g.f.Emit("br label %%%s", cond.Label)
	}

	g.f.SetBlock(end)

	return nil
}

// genSwitch lowers to a chain of case-check blocks; each case body gets
// the switch end as its break target. The default block, when present,
// is reached from the last failed check.
func (g *Generator) genSwitch(ctx context.Context, st *ast.SwitchStmt) error {
	cond, err := g.genExpr(ctx, st.Condition)
	if err != nil {
		return err
	}

	end := g.f.NewBlock("switch_end")

	last := g.f.NewBlock("switch_none")
	if st.Default != nil {
		last = g.f.NewBlock("switch_default")
	}

	checks := make([]*ir.Block, len(st.Cases))
	bodies := make([]*ir.Block, len(st.Cases))

	for i := range st.Cases {
		checks[i] = g.f.NewBlock("case_check")
		bodies[i] = g.f.NewBlock("case_body")
	}

	if len(checks) > 0 {
		g.f.Emit("br label %%%s", checks[0].Label)
	} else {
		g.f.Emit("br label %%%s", last.Label)
	}

	for i, c := range st.Cases {
		g.f.SetBlock(checks[i])

		cv, err := g.genExpr(ctx, c.Value)
		if err != nil {
			return err
		}

		eq, err := g.equal(cond, cv, c.Keyword)
		if err != nil {
			return err
		}

		next := last
		if i+1 < len(checks) {
			next = checks[i+1]
		}

		g.f.Emit("br i1 %s, label %%%s, label %%%s", eq, bodies[i].Label, next.Label)

		g.f.SetBlock(bodies[i])

		g.breaks = append(g.breaks, end)

		for _, s := range c.Body {
			if err := g.genStmt(ctx, s); err != nil {
				return err
			}
		}

		g.breaks = g.breaks[:len(g.breaks)-1]

		if !g.f.Terminated() {
			g.f.Emit("br label %%%s", end.Label)
		}
	}

	g.f.SetBlock(last)

	if st.Default != nil {
		g.breaks = append(g.breaks, end)

		for _, s := range st.Default {
			if err := g.genStmt(ctx, s); err != nil {
				return err
			}
		}

		g.breaks = g.breaks[:len(g.breaks)-1]
	}

	if !g.f.Terminated() {
		g.f.Emit("br label %%%s", end.Label)
	}

	g.f.SetBlock(end)

	return nil
}

// genFunction emits a separate IR function returning double and taking
// all-double parameters.
func (g *Generator) genFunction(ctx context.Context, st *ast.FunctionStmt) error {
	info := g.funcs[st.Name.Lexeme]

	params := make([]string, len(st.Params))
	for i := range st.Params {
		params[i] = "double %arg" + strconv.Itoa(i)
	}

	outer := g.f
	outerScopes := g.scopes
	outerBreaks := g.breaks

	g.f = g.mod.NewFunc(info.irName, "double", params...)
	g.scopes = nil
	g.breaks = nil

	g.pushScope()

	for i, p := range st.Params {
		slot := g.f.Reg()
		g.f.Emit("%s = alloca double", slot)
		g.f.Emit("store double %%arg%d, ptr %s", i, slot)

		g.define(p.Lexeme, &binding{ptr: slot, tag: Number, mutable: true})
	}

	for _, s := range st.Body {
		if err := g.genStmt(ctx, s); err != nil {
			return err
		}
	}

	if !g.f.Terminated() {
		g.f.Emit("ret double %s", ir.Float(0))
	}

	g.popScope()

	g.f = outer
	g.scopes = outerScopes
	g.breaks = outerBreaks

	return nil
}

func (g *Generator) genReturn(ctx context.Context, st *ast.ReturnStmt) error {
	if st.Value == nil {
		g.f.Emit("ret double %s", ir.Float(0))

		return nil
	}

	v, err := g.genExpr(ctx, st.Value)
	if err != nil {
		return err
	}

	n, err := g.toNumber(v, st.Keyword)
	if err != nil {
		return err
	}

	g.f.Emit("ret double %s", n.Ref)

	return nil
}

func (g *Generator) genPrint(ctx context.Context, st *ast.PrintStmt) error {
	v, err := g.genExpr(ctx, st.Expr)
	if err != nil {
		return err
	}

	switch v.Tag {
	case Number:
		s := g.mod.StringConst("%g\n")
		g.f.Emit("call i32 (ptr, ...) @printf(ptr %s, double %s)", s, v.Ref)
	case String:
		s := g.mod.StringConst("%s\n")
		g.f.Emit("call i32 (ptr, ...) @printf(ptr %s, ptr %s)", s, v.Ref)
	case Bool:
		t := g.f.NewBlock("print_true")
		f := g.f.NewBlock("print_false")
		end := g.f.NewBlock("print_end")

		g.f.Emit("br i1 %s, label %%%s, label %%%s", v.Ref, t.Label, f.Label)

		fmtStr := g.mod.StringConst("%s\n")

		g.f.SetBlock(t)
		g.f.Emit("call i32 (ptr, ...) @printf(ptr %s, ptr %s)", fmtStr, g.mod.StringConst("true"))
		g.f.Emit("br label %%%s", end.Label)

		g.f.SetBlock(f)
		g.f.Emit("call i32 (ptr, ...) @printf(ptr %s, ptr %s)", fmtStr, g.mod.StringConst("false"))
		g.f.Emit("br label %%%s", end.Label)

		g.f.SetBlock(end)
	case NilTag:
		s := g.mod.StringConst("nil\n")
		g.f.Emit("call i32 (ptr, ...) @printf(ptr %s)", s)
	case Array:
		g.printArray(v)
	case Dict:
		g.printDict(v)
	case Pointer:
		s := g.mod.StringConst("%p\n")
		g.f.Emit("call i32 (ptr, ...) @printf(ptr %s, ptr %s)", s, v.Ref)
	default:
		return g.errAt(st.Keyword, "", "Cannot print a %v value", v.Tag)
	}

	return nil
}

func tokenOf(e ast.Expr) token.Token {
	switch t := e.(type) {
	case *ast.Literal:
		return t.Token
	case *ast.Variable:
		return t.Name
	case *ast.Assign:
		return t.Name
	case *ast.Binary:
		return t.Op
	case *ast.Unary:
		return t.Op
	case *ast.Logical:
		return t.Op
	case *ast.Call:
		return t.Paren
	case *ast.Grouping:
		return tokenOf(t.Inner)
	case *ast.ArrayLiteral:
		return t.Bracket
	case *ast.DictLiteral:
		return t.Brace
	case *ast.IndexGet:
		return t.Bracket
	case *ast.IndexSet:
		return t.Bracket
	}

	return token.Token{}
}
