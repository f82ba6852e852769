package codegen

import (
	"context"
	"strconv"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/ir"
	"github.com/boxlang/box/compiler/token"
)

func (g *Generator) genExpr(ctx context.Context, e ast.Expr) (Value, error) {
	switch e := e.(type) {
	case *ast.Literal:
		return g.genLiteral(e)
	case *ast.Variable:
		return g.genVariable(e)
	case *ast.Assign:
		return g.genAssign(ctx, e)
	case *ast.Binary:
		return g.genBinary(ctx, e)
	case *ast.Unary:
		return g.genUnary(ctx, e)
	case *ast.Logical:
		return g.genLogical(ctx, e)
	case *ast.Call:
		return g.genCall(ctx, e)
	case *ast.Grouping:
		return g.genExpr(ctx, e.Inner)
	case *ast.ArrayLiteral:
		return g.genArrayLiteral(ctx, e)
	case *ast.DictLiteral:
		return g.genDictLiteral(ctx, e)
	case *ast.IndexGet:
		return g.genIndexGet(ctx, e)
	case *ast.IndexSet:
		return g.genIndexSet(ctx, e)
	}

	return Value{}, Error{Msg: "Unknown expression"}
}

func (g *Generator) genLiteral(e *ast.Literal) (Value, error) {
	switch e.Value.Kind {
	case token.LitNumber:
		return Value{Ref: ir.Float(e.Value.Num), Tag: Number}, nil
	case token.LitString:
		return Value{Ref: g.mod.StringConst(e.Value.Str), Tag: String}, nil
	case token.LitBool:
		return Value{Ref: ir.Bool(e.Value.Bool), Tag: Bool}, nil
	case token.LitNil:
		return Value{Ref: ir.Float(0), Tag: NilTag}, nil
	}

	return Value{}, g.errAt(e.Token, "", "Unknown literal")
}

func (g *Generator) genVariable(e *ast.Variable) (Value, error) {
	name := e.Name.Lexeme

	if token.Builtin(e.Name.Kind) {
		return Value{}, g.errAt(e.Name,
			"Built-in names are functions; call them: "+name+"(...)",
			"%q cannot be used as a variable", name)
	}

	b, ok := g.lookup(name)
	if !ok {
		return Value{}, g.errAt(e.Name,
			"Make sure '"+name+"' is declared before use: var "+name+" = value;",
			"Undefined variable %q", name)
	}

	// arrays and dicts carry the struct pointer, scalars load
	switch b.tag {
	case Array, Dict:
		return Value{Ref: b.ptr, Tag: b.tag, Mutable: b.mutable, Elem: b.elem, Key: b.key}, nil
	}

	ty := irType(b.tag)

	r := g.f.Reg()
	g.f.Emit("%s = load %s, ptr %s", r, ty, b.ptr)

	return Value{Ref: r, Tag: b.tag, Mutable: b.mutable, Elem: b.elem}, nil
}

func (g *Generator) genAssign(ctx context.Context, e *ast.Assign) (Value, error) {
	v, err := g.genExpr(ctx, e.Value)
	if err != nil {
		return Value{}, err
	}

	b, ok := g.lookup(e.Name.Lexeme)
	if !ok {
		return Value{}, g.errAt(e.Name,
			"Declare it first: var "+e.Name.Lexeme+" = value;",
			"Undefined variable %q", e.Name.Lexeme)
	}

	if !b.mutable {
		return Value{}, g.errAt(e.Name,
			"Literal values and constants cannot be reassigned.",
			"Cannot assign to immutable variable %q", e.Name.Lexeme)
	}

	if b.tag != v.Tag {
		return Value{}, g.errAt(e.Name,
			"A variable keeps the type of its initializer.",
			"Cannot assign a %v to %q, which holds a %v", v.Tag, e.Name.Lexeme, b.tag)
	}

	switch b.tag {
	case Array, Dict:
		// the binding is the struct itself, not a slot holding it
		return Value{}, g.errAt(e.Name,
			"Mutate elements instead: "+e.Name.Lexeme+"[i] = value;",
			"Cannot rebind %v variable %q", b.tag, e.Name.Lexeme)
	}

	g.f.Emit("store %s %s, ptr %s", irType(v.Tag), v.Ref, b.ptr)

	return v, nil
}

func (g *Generator) genBinary(ctx context.Context, e *ast.Binary) (Value, error) {
	l, err := g.genExpr(ctx, e.Left)
	if err != nil {
		return Value{}, err
	}

	r, err := g.genExpr(ctx, e.Right)
	if err != nil {
		return Value{}, err
	}

	op := e.Op

	switch op.Kind {
	case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT:
		if l.Tag != Number || r.Tag != Number {
			return Value{}, g.errAt(op,
				"Left: "+l.Tag.String()+", Right: "+r.Tag.String(),
				"Operands must be numbers for %q", op.Lexeme)
		}

		var inst string

		switch op.Kind {
		case token.PLUS:
			inst = "fadd"
		case token.MINUS:
			inst = "fsub"
		case token.STAR:
			inst = "fmul"
		case token.SLASH:
			inst = "fdiv"

			g.zeroCheck(r.Ref, op)
		case token.PERCENT:
			inst = "frem"

			g.zeroCheck(r.Ref, op)
		}

		reg := g.f.Reg()
		g.f.Emit("%s = %s double %s, %s", reg, inst, l.Ref, r.Ref)

		return Value{Ref: reg, Tag: Number}, nil
	case token.LESS, token.LESS_EQUAL, token.GREATER, token.GREATER_EQUAL:
		if l.Tag != Number || r.Tag != Number {
			return Value{}, g.errAt(op,
				"Left: "+l.Tag.String()+", Right: "+r.Tag.String(),
				"Operands must be numbers for %q", op.Lexeme)
		}

		cond := map[token.Kind]string{
			token.LESS:          "olt",
			token.LESS_EQUAL:    "ole",
			token.GREATER:       "ogt",
			token.GREATER_EQUAL: "oge",
		}[op.Kind]

		reg := g.f.Reg()
		g.f.Emit("%s = fcmp %s double %s, %s", reg, cond, l.Ref, r.Ref)

		return Value{Ref: reg, Tag: Bool}, nil
	case token.EQUAL_EQUAL, token.BANG_EQUAL:
		eq, err := g.equal(l, r, op)
		if err != nil {
			return Value{}, err
		}

		if op.Kind == token.BANG_EQUAL {
			reg := g.f.Reg()
			g.f.Emit("%s = xor i1 %s, 1", reg, eq)
			eq = reg
		}

		return Value{Ref: eq, Tag: Bool}, nil
	}

	return Value{}, g.errAt(op, "", "Unknown binary operator %q", op.Lexeme)
}

// equal emits an i1 equality between two values: fcmp for numbers, icmp
// for booleans, strcmp for strings.
func (g *Generator) equal(l, r Value, at token.Token) (string, error) {
	switch {
	case l.Tag == Number && r.Tag == Number:
		reg := g.f.Reg()
		g.f.Emit("%s = fcmp oeq double %s, %s", reg, l.Ref, r.Ref)

		return reg, nil
	case l.Tag == Bool && r.Tag == Bool:
		reg := g.f.Reg()
		g.f.Emit("%s = icmp eq i1 %s, %s", reg, l.Ref, r.Ref)

		return reg, nil
	case l.Tag == String && r.Tag == String:
		c := g.f.Reg()
		g.f.Emit("%s = call i32 @strcmp(ptr %s, ptr %s)", c, l.Ref, r.Ref)

		reg := g.f.Reg()
		g.f.Emit("%s = icmp eq i32 %s, 0", reg, c)

		return reg, nil
	case l.Tag == NilTag && r.Tag == NilTag:
		return "1", nil
	case l.Tag == NilTag || r.Tag == NilTag:
		return "0", nil
	}

	return "", g.errAt(at,
		"Left: "+l.Tag.String()+", Right: "+r.Tag.String(),
		"Cannot compare %v with %v", l.Tag, r.Tag)
}

func (g *Generator) genUnary(ctx context.Context, e *ast.Unary) (Value, error) {
	v, err := g.genExpr(ctx, e.Right)
	if err != nil {
		return Value{}, err
	}

	switch e.Op.Kind {
	case token.MINUS:
		if v.Tag != Number {
			return Value{}, g.errAt(e.Op, "", "Operand of unary '-' must be a number, got %v", v.Tag)
		}

		reg := g.f.Reg()
		g.f.Emit("%s = fneg double %s", reg, v.Ref)

		return Value{Ref: reg, Tag: Number}, nil
	case token.BANG:
		b, err := g.toBool(v, e.Op)
		if err != nil {
			return Value{}, err
		}

		reg := g.f.Reg()
		g.f.Emit("%s = xor i1 %s, 1", reg, b)

		return Value{Ref: reg, Tag: Bool}, nil
	}

	return Value{}, g.errAt(e.Op, "", "Unknown unary operator %q", e.Op.Lexeme)
}

// genLogical lowers and/or with short-circuit blocks through a stack
// slot joined at the merge point.
func (g *Generator) genLogical(ctx context.Context, e *ast.Logical) (Value, error) {
	l, err := g.genExpr(ctx, e.Left)
	if err != nil {
		return Value{}, err
	}

	lb, err := g.toBool(l, e.Op)
	if err != nil {
		return Value{}, err
	}

	slot := g.f.Reg()
	g.f.Emit("%s = alloca i1", slot)
	g.f.Emit("store i1 %s, ptr %s", lb, slot)

	rhs := g.f.NewBlock("logic_rhs")
	end := g.f.NewBlock("logic_end")

	switch e.Op.Kind {
	case token.AND:
		g.f.Emit("br i1 %s, label %%%s, label %%%s", lb, rhs.Label, end.Label)
	case token.OR:
		g.f.Emit("br i1 %s, label %%%s, label %%%s", lb, end.Label, rhs.Label)
	default:
		return Value{}, g.errAt(e.Op, "", "Unknown logical operator %q", e.Op.Lexeme)
	}

	g.f.SetBlock(rhs)

	r, err := g.genExpr(ctx, e.Right)
	if err != nil {
		return Value{}, err
	}

	rb, err := g.toBool(r, e.Op)
	if err != nil {
		return Value{}, err
	}

	g.f.Emit("store i1 %s, ptr %s", rb, slot)
	g.f.Emit("br label %%%s", end.Label)

	g.f.SetBlock(end)

	reg := g.f.Reg()
	g.f.Emit("%s = load i1, ptr %s", reg, slot)

	return Value{Ref: reg, Tag: Bool}, nil
}

// zeroCheck inserts the runtime division-by-zero trap before fdiv/frem.
func (g *Generator) zeroCheck(rhs string, op token.Token) {
	c := g.f.Reg()
	g.f.Emit("%s = fcmp oeq double %s, %s", c, rhs, ir.Float(0))

	g.condTrap(c, "div_zero",
		"Runtime Error: Division by zero at line "+strconv.Itoa(op.Line))
}

// toBool coerces a value to i1: booleans pass through, numbers compare
// against zero.
func (g *Generator) toBool(v Value, at token.Token) (string, error) {
	switch v.Tag {
	case Bool:
		return v.Ref, nil
	case Number:
		reg := g.f.Reg()
		g.f.Emit("%s = fcmp one double %s, %s", reg, v.Ref, ir.Float(0))

		return reg, nil
	case NilTag:
		return "0", nil
	}

	return "", g.errAt(at, "", "Cannot use a %v as a condition", v.Tag)
}

// toNumber coerces to double: bool via uitofp, nil becomes 0.0.
func (g *Generator) toNumber(v Value, at token.Token) (Value, error) {
	switch v.Tag {
	case Number:
		return v, nil
	case Bool:
		reg := g.f.Reg()
		g.f.Emit("%s = uitofp i1 %s to double", reg, v.Ref)

		return Value{Ref: reg, Tag: Number}, nil
	case NilTag:
		return Value{Ref: ir.Float(0), Tag: Number}, nil
	}

	return Value{}, g.errAt(at, "", "Cannot convert a %v to a number", v.Tag)
}
