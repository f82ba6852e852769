package codegen

import (
	"context"
	"strconv"
	"strings"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/ir"
)

func (g *Generator) genCall(ctx context.Context, e *ast.Call) (Value, error) {
	callee, ok := e.Callee.(*ast.Variable)
	if !ok {
		return Value{}, g.errAt(e.Paren, "Only named functions can be called.", "Invalid call target")
	}

	name := callee.Name.Lexeme

	switch name {
	case "malloc":
		return g.genMalloc(ctx, e)
	case "calloc":
		return g.genCalloc(ctx, e)
	case "realloc":
		return g.genRealloc(ctx, e)
	case "free":
		return g.genFree(ctx, e)
	case "addr_of":
		return g.genAddrOf(ctx, e)
	case "deref":
		return g.genDeref(ctx, e)
	case "len":
		return g.genLen(ctx, e)
	case "has":
		return g.genHas(ctx, e)
	case "keys":
		return g.genKeys(ctx, e, true)
	case "values":
		return g.genKeys(ctx, e, false)
	case "input":
		return g.genInput(ctx, e)
	case "input_num":
		return g.genInputNum(ctx, e)
	case "read_file":
		return g.genReadFile(ctx, e)
	case "write_file":
		return g.genWriteFile(ctx, e, "w")
	case "append_file":
		return g.genWriteFile(ctx, e, "a")
	case "file_exists":
		return g.genFileExists(ctx, e)
	}

	info, ok := g.funcs[name]
	if !ok {
		return Value{}, g.errAt(callee.Name,
			"Define it first: fun "+name+"(...) { ... }",
			"Undefined function %q", name)
	}

	if len(e.Args) != info.arity {
		return Value{}, g.errAt(e.Paren, "",
			"%q expects %d argument(s) but got %d", name, info.arity, len(e.Args))
	}

	args := make([]string, len(e.Args))

	for i, arg := range e.Args {
		v, err := g.genExpr(ctx, arg)
		if err != nil {
			return Value{}, err
		}

		n, err := g.toNumber(v, tokenOf(arg))
		if err != nil {
			return Value{}, err
		}

		args[i] = "double " + n.Ref
	}

	reg := g.f.Reg()
	g.f.Emit("%s = call double @%s(%s)", reg, info.irName, strings.Join(args, ", "))

	return Value{Ref: reg, Tag: Number}, nil
}

func (g *Generator) arity(e *ast.Call, name string, n int) error {
	if len(e.Args) != n {
		return g.errAt(e.Paren, "", "%s() expects %d argument(s) but got %d", name, n, len(e.Args))
	}

	return nil
}

// numArg lowers argument i and requires it to be a number.
func (g *Generator) numArg(ctx context.Context, e *ast.Call, i int) (Value, error) {
	v, err := g.genExpr(ctx, e.Args[i])
	if err != nil {
		return Value{}, err
	}

	if v.Tag != Number {
		return Value{}, g.errAt(tokenOf(e.Args[i]), "", "Argument must be a number, got %v", v.Tag)
	}

	return v, nil
}

// sizeToI64 converts a double size to i64 with the negative-size trap.
func (g *Generator) sizeToI64(v Value, fn string) string {
	n := g.f.Reg()
	g.f.Emit("%s = fptosi double %s to i64", n, v.Ref)

	neg := g.f.Reg()
	g.f.Emit("%s = icmp slt i64 %s, 0", neg, n)

	g.condTrap(neg, "is_negative", "Runtime Error: "+fn+"() size cannot be negative")

	return n
}

func (g *Generator) genMalloc(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "malloc", 1); err != nil {
		return Value{}, err
	}

	size, err := g.numArg(ctx, e, 0)
	if err != nil {
		return Value{}, err
	}

	n := g.sizeToI64(size, "malloc")

	reg := g.f.Reg()
	g.f.Emit("%s = call ptr @malloc(i64 %s)", reg, n)

	return Value{Ref: reg, Tag: Pointer, Mutable: true}, nil
}

func (g *Generator) genCalloc(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "calloc", 2); err != nil {
		return Value{}, err
	}

	count, err := g.numArg(ctx, e, 0)
	if err != nil {
		return Value{}, err
	}

	size, err := g.numArg(ctx, e, 1)
	if err != nil {
		return Value{}, err
	}

	total := g.f.Reg()
	g.f.Emit("%s = fmul double %s, %s", total, count.Ref, size.Ref)

	n := g.sizeToI64(Value{Ref: total, Tag: Number}, "calloc")

	reg := g.f.Reg()
	g.f.Emit("%s = call ptr @malloc(i64 %s)", reg, n)
	g.f.Emit("call ptr @memset(ptr %s, i32 0, i64 %s)", reg, n)

	return Value{Ref: reg, Tag: Pointer, Mutable: true}, nil
}

func (g *Generator) genRealloc(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "realloc", 2); err != nil {
		return Value{}, err
	}

	p, err := g.genExpr(ctx, e.Args[0])
	if err != nil {
		return Value{}, err
	}

	if p.Tag != Pointer {
		return Value{}, g.errAt(tokenOf(e.Args[0]),
			"Example: var new_ptr = realloc(old_ptr, 80);",
			"realloc() first argument must be a pointer, got %v", p.Tag)
	}

	size, err := g.numArg(ctx, e, 1)
	if err != nil {
		return Value{}, err
	}

	n := g.sizeToI64(size, "realloc")

	reg := g.f.Reg()
	g.f.Emit("%s = call ptr @realloc(ptr %s, i64 %s)", reg, p.Ref, n)

	isNull := g.f.Reg()
	g.f.Emit("%s = icmp eq ptr %s, null", isNull, reg)

	g.condTrap(isNull, "realloc_failed", "Runtime Error: realloc() failed - out of memory")

	return Value{Ref: reg, Tag: Pointer, Mutable: true}, nil
}

func (g *Generator) genFree(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "free", 1); err != nil {
		return Value{}, err
	}

	p, err := g.genExpr(ctx, e.Args[0])
	if err != nil {
		return Value{}, err
	}

	if p.Tag != Pointer {
		return Value{}, g.errAt(tokenOf(e.Args[0]), "",
			"free() argument must be a pointer, got %v", p.Tag)
	}

	g.f.Emit("call void @free(ptr %s)", p.Ref)

	return Value{Ref: ir.Float(0), Tag: NilTag}, nil
}

// genAddrOf takes the address of a number variable's storage slot.
func (g *Generator) genAddrOf(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "addr_of", 1); err != nil {
		return Value{}, err
	}

	v, ok := e.Args[0].(*ast.Variable)
	if !ok {
		return Value{}, g.errAt(e.Paren, "Use: addr_of(variable)", "addr_of() argument must be a variable")
	}

	b, ok := g.lookup(v.Name.Lexeme)
	if !ok {
		return Value{}, g.errAt(v.Name, "", "Undefined variable %q", v.Name.Lexeme)
	}

	if b.tag != Number {
		return Value{}, g.errAt(v.Name, "",
			"addr_of() requires a number variable, got %v", b.tag)
	}

	return Value{Ref: b.ptr, Tag: Pointer}, nil
}

func (g *Generator) genDeref(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "deref", 1); err != nil {
		return Value{}, err
	}

	p, err := g.genExpr(ctx, e.Args[0])
	if err != nil {
		return Value{}, err
	}

	if p.Tag != Pointer {
		return Value{}, g.errAt(tokenOf(e.Args[0]), "",
			"deref() argument must be a pointer, got %v", p.Tag)
	}

	isNull := g.f.Reg()
	g.f.Emit("%s = icmp eq ptr %s, null", isNull, p.Ref)

	line := tokenOf(e.Args[0]).Line
	g.condTrap(isNull, "deref_null",
		"Runtime Error: Null pointer dereference at line "+strconv.Itoa(line))

	reg := g.f.Reg()
	g.f.Emit("%s = load double, ptr %s", reg, p.Ref)

	return Value{Ref: reg, Tag: Number}, nil
}

func (g *Generator) genInput(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "input", 0); err != nil {
		return Value{}, err
	}

	buf := g.f.Reg()
	g.f.Emit("%s = alloca [4096 x i8]", buf)

	in := g.f.Reg()
	g.f.Emit("%s = load ptr, ptr @stdin", in)

	g.f.Emit("call ptr @fgets(ptr %s, i32 4096, ptr %s)", buf, in)

	// strip the trailing newline
	n := g.f.Reg()
	g.f.Emit("%s = call i64 @strlen(ptr %s)", n, buf)

	hasLen := g.f.Reg()
	g.f.Emit("%s = icmp sgt i64 %s, 0", hasLen, n)

	strip := g.f.NewBlock("input_strip")
	check := g.f.NewBlock("input_check")
	done := g.f.NewBlock("input_done")

	g.f.Emit("br i1 %s, label %%%s, label %%%s", hasLen, check.Label, done.Label)

	g.f.SetBlock(check)

	lastIdx := g.f.Reg()
	g.f.Emit("%s = sub i64 %s, 1", lastIdx, n)

	lastPtr := g.f.Reg()
	g.f.Emit("%s = getelementptr i8, ptr %s, i64 %s", lastPtr, buf, lastIdx)

	last := g.f.Reg()
	g.f.Emit("%s = load i8, ptr %s", last, lastPtr)

	isNL := g.f.Reg()
	g.f.Emit("%s = icmp eq i8 %s, 10", isNL, last)

	g.f.Emit("br i1 %s, label %%%s, label %%%s", isNL, strip.Label, done.Label)

	g.f.SetBlock(strip)
	g.f.Emit("store i8 0, ptr %s", lastPtr)
	g.f.Emit("br label %%%s", done.Label)

	g.f.SetBlock(done)

	return Value{Ref: buf, Tag: String}, nil
}

func (g *Generator) genInputNum(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "input_num", 0); err != nil {
		return Value{}, err
	}

	slot := g.f.Reg()
	g.f.Emit("%s = alloca double", slot)

	fmtStr := g.mod.StringConst("%lf")

	r := g.f.Reg()
	g.f.Emit("%s = call i32 (ptr, ...) @scanf(ptr %s, ptr %s)", r, fmtStr, slot)

	bad := g.f.Reg()
	g.f.Emit("%s = icmp ne i32 %s, 1", bad, r)

	g.condTrap(bad, "input_invalid", "Runtime Error: Invalid number input")

	reg := g.f.Reg()
	g.f.Emit("%s = load double, ptr %s", reg, slot)

	return Value{Ref: reg, Tag: Number}, nil
}

func (g *Generator) genReadFile(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "read_file", 1); err != nil {
		return Value{}, err
	}

	path, err := g.strArg(ctx, e, 0)
	if err != nil {
		return Value{}, err
	}

	f := g.f.Reg()
	g.f.Emit("%s = call ptr @fopen(ptr %s, ptr %s)", f, path.Ref, g.mod.StringConst("r"))

	isNull := g.f.Reg()
	g.f.Emit("%s = icmp eq ptr %s, null", isNull, f)

	g.condTrap(isNull, "fopen_failed", "Runtime Error: Cannot open file")

	// SEEK_END = 2
	g.f.Emit("call i32 @fseek(ptr %s, i64 0, i32 2)", f)

	size := g.f.Reg()
	g.f.Emit("%s = call i64 @ftell(ptr %s)", size, f)

	g.f.Emit("call void @rewind(ptr %s)", f)

	bufSize := g.f.Reg()
	g.f.Emit("%s = add i64 %s, 1", bufSize, size)

	buf := g.f.Reg()
	g.f.Emit("%s = call ptr @malloc(i64 %s)", buf, bufSize)

	g.f.Emit("call i64 @fread(ptr %s, i64 1, i64 %s, ptr %s)", buf, size, f)

	endPtr := g.f.Reg()
	g.f.Emit("%s = getelementptr i8, ptr %s, i64 %s", endPtr, buf, size)
	g.f.Emit("store i8 0, ptr %s", endPtr)

	g.f.Emit("call i32 @fclose(ptr %s)", f)

	return Value{Ref: buf, Tag: String}, nil
}

func (g *Generator) genWriteFile(ctx context.Context, e *ast.Call, mode string) (Value, error) {
	fn := "write_file"
	if mode == "a" {
		fn = "append_file"
	}

	if err := g.arity(e, fn, 2); err != nil {
		return Value{}, err
	}

	path, err := g.strArg(ctx, e, 0)
	if err != nil {
		return Value{}, err
	}

	data, err := g.strArg(ctx, e, 1)
	if err != nil {
		return Value{}, err
	}

	f := g.f.Reg()
	g.f.Emit("%s = call ptr @fopen(ptr %s, ptr %s)", f, path.Ref, g.mod.StringConst(mode))

	isNull := g.f.Reg()
	g.f.Emit("%s = icmp eq ptr %s, null", isNull, f)

	g.condTrap(isNull, "fopen_failed", "Runtime Error: Cannot open file")

	g.f.Emit("call i32 @fputs(ptr %s, ptr %s)", data.Ref, f)
	g.f.Emit("call i32 @fclose(ptr %s)", f)

	return Value{Ref: ir.Float(1), Tag: Number}, nil
}

func (g *Generator) genFileExists(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "file_exists", 1); err != nil {
		return Value{}, err
	}

	path, err := g.strArg(ctx, e, 0)
	if err != nil {
		return Value{}, err
	}

	r := g.f.Reg()
	g.f.Emit("%s = call i32 @access(ptr %s, i32 0)", r, path.Ref)

	reg := g.f.Reg()
	g.f.Emit("%s = icmp eq i32 %s, 0", reg, r)

	return Value{Ref: reg, Tag: Bool}, nil
}

func (g *Generator) strArg(ctx context.Context, e *ast.Call, i int) (Value, error) {
	v, err := g.genExpr(ctx, e.Args[i])
	if err != nil {
		return Value{}, err
	}

	if v.Tag != String {
		return Value{}, g.errAt(tokenOf(e.Args[i]), "", "Argument must be a string, got %v", v.Tag)
	}

	return v, nil
}
