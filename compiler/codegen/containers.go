package codegen

import (
	"context"
	"strconv"

	"github.com/boxlang/box/compiler/ast"
)

// genArrayLiteral allocates the array struct on the stack and the data
// buffer on the heap. Elements are restricted to numbers.
func (g *Generator) genArrayLiteral(ctx context.Context, e *ast.ArrayLiteral) (Value, error) {
	s := g.f.Reg()
	g.f.Emit("%s = alloca %%ArrayStruct", s)

	n := len(e.Elems)

	lenPtr := g.f.Reg()
	g.f.Emit("%s = getelementptr %%ArrayStruct, ptr %s, i32 0, i32 0", lenPtr, s)
	g.f.Emit("store i64 %d, ptr %s", n, lenPtr)

	dataPtr := g.f.Reg()
	g.f.Emit("%s = getelementptr %%ArrayStruct, ptr %s, i32 0, i32 1", dataPtr, s)

	if n == 0 {
		g.f.Emit("store ptr null, ptr %s", dataPtr)

		return Value{Ref: s, Tag: Array, Elem: Number}, nil
	}

	buf := g.f.Reg()
	g.f.Emit("%s = call ptr @malloc(i64 %d)", buf, n*8)

	for i, el := range e.Elems {
		v, err := g.genExpr(ctx, el)
		if err != nil {
			return Value{}, err
		}

		if v.Tag != Number {
			return Value{}, g.errAt(tokenOf(el), "Array elements are numbers.",
				"Array element %d is a %v", i, v.Tag)
		}

		ep := g.f.Reg()
		g.f.Emit("%s = getelementptr double, ptr %s, i64 %d", ep, buf, i)
		g.f.Emit("store double %s, ptr %s", v.Ref, ep)
	}

	g.f.Emit("store ptr %s, ptr %s", buf, dataPtr)

	return Value{Ref: s, Tag: Array, Elem: Number}, nil
}

// genDictLiteral allocates the dict struct and an entry buffer of
// 24-byte entries. Keys and values are restricted to numbers.
func (g *Generator) genDictLiteral(ctx context.Context, e *ast.DictLiteral) (Value, error) {
	s := g.f.Reg()
	g.f.Emit("%s = alloca %%DictStruct", s)

	n := len(e.Pairs)

	lenPtr := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictStruct, ptr %s, i32 0, i32 0", lenPtr, s)
	g.f.Emit("store i64 %d, ptr %s", n, lenPtr)

	entPtr := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictStruct, ptr %s, i32 0, i32 1", entPtr, s)

	if n == 0 {
		g.f.Emit("store ptr null, ptr %s", entPtr)

		return Value{Ref: s, Tag: Dict, Key: Number, Elem: Number}, nil
	}

	buf := g.f.Reg()
	g.f.Emit("%s = call ptr @malloc(i64 %d)", buf, n*24)

	for i, p := range e.Pairs {
		k, err := g.genExpr(ctx, p.Key)
		if err != nil {
			return Value{}, err
		}

		v, err := g.genExpr(ctx, p.Value)
		if err != nil {
			return Value{}, err
		}

		if k.Tag != Number || v.Tag != Number {
			return Value{}, g.errAt(e.Brace, "Dictionary keys and values are numbers.",
				"Dictionary pair %d is %v: %v", i, k.Tag, v.Tag)
		}

		ep := g.f.Reg()
		g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i64 %d", ep, buf, i)

		kp := g.f.Reg()
		g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i32 0, i32 0", kp, ep)
		g.f.Emit("store double %s, ptr %s", k.Ref, kp)

		vp := g.f.Reg()
		g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i32 0, i32 1", vp, ep)
		g.f.Emit("store double %s, ptr %s", v.Ref, vp)

		up := g.f.Reg()
		g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i32 0, i32 2", up, ep)
		g.f.Emit("store i1 1, ptr %s", up)
	}

	g.f.Emit("store ptr %s, ptr %s", buf, entPtr)

	return Value{Ref: s, Tag: Dict, Key: Number, Elem: Number}, nil
}

// arrayParts loads the length and data pointer of an array value.
func (g *Generator) arrayParts(v Value) (length, data string) {
	lp := g.f.Reg()
	g.f.Emit("%s = getelementptr %%ArrayStruct, ptr %s, i32 0, i32 0", lp, v.Ref)

	length = g.f.Reg()
	g.f.Emit("%s = load i64, ptr %s", length, lp)

	dp := g.f.Reg()
	g.f.Emit("%s = getelementptr %%ArrayStruct, ptr %s, i32 0, i32 1", dp, v.Ref)

	data = g.f.Reg()
	g.f.Emit("%s = load ptr, ptr %s", data, dp)

	return length, data
}

func (g *Generator) dictParts(v Value) (length, entries string) {
	lp := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictStruct, ptr %s, i32 0, i32 0", lp, v.Ref)

	length = g.f.Reg()
	g.f.Emit("%s = load i64, ptr %s", length, lp)

	ep := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictStruct, ptr %s, i32 0, i32 1", ep, v.Ref)

	entries = g.f.Reg()
	g.f.Emit("%s = load ptr, ptr %s", entries, ep)

	return length, entries
}

// boundsCheckedIndex converts a double index to i64 and traps when it is
// outside [0, length).
func (g *Generator) boundsCheckedIndex(idx Value, length string, line int) string {
	i := g.f.Reg()
	g.f.Emit("%s = fptosi double %s to i64", i, idx.Ref)

	neg := g.f.Reg()
	g.f.Emit("%s = icmp slt i64 %s, 0", neg, i)

	big := g.f.Reg()
	g.f.Emit("%s = icmp sge i64 %s, %s", big, i, length)

	out := g.f.Reg()
	g.f.Emit("%s = or i1 %s, %s", out, neg, big)

	g.condTrap(out, "bounds",
		"Runtime Error: Array index out of bounds at line "+strconv.Itoa(line))

	return i
}

func (g *Generator) genIndexGet(ctx context.Context, e *ast.IndexGet) (Value, error) {
	c, err := g.genExpr(ctx, e.Container)
	if err != nil {
		return Value{}, err
	}

	idx, err := g.genExpr(ctx, e.Index)
	if err != nil {
		return Value{}, err
	}

	if idx.Tag != Number {
		return Value{}, g.errAt(e.Bracket, "", "Index must be a number, got %v", idx.Tag)
	}

	switch c.Tag {
	case Array:
		length, data := g.arrayParts(c)

		i := g.boundsCheckedIndex(idx, length, e.Bracket.Line)

		ep := g.f.Reg()
		g.f.Emit("%s = getelementptr double, ptr %s, i64 %s", ep, data, i)

		reg := g.f.Reg()
		g.f.Emit("%s = load double, ptr %s", reg, ep)

		return Value{Ref: reg, Tag: Number}, nil
	case Dict:
		entry := g.dictLookup(c, idx, e.Bracket.Line)

		vp := g.f.Reg()
		g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i32 0, i32 1", vp, entry)

		reg := g.f.Reg()
		g.f.Emit("%s = load double, ptr %s", reg, vp)

		return Value{Ref: reg, Tag: Number}, nil
	}

	return Value{}, g.errAt(e.Bracket, "", "Cannot index a %v", c.Tag)
}

func (g *Generator) genIndexSet(ctx context.Context, e *ast.IndexSet) (Value, error) {
	c, err := g.genExpr(ctx, e.Container)
	if err != nil {
		return Value{}, err
	}

	idx, err := g.genExpr(ctx, e.Index)
	if err != nil {
		return Value{}, err
	}

	if idx.Tag != Number {
		return Value{}, g.errAt(e.Bracket, "", "Index must be a number, got %v", idx.Tag)
	}

	v, err := g.genExpr(ctx, e.Value)
	if err != nil {
		return Value{}, err
	}

	if v.Tag != Number {
		return Value{}, g.errAt(e.Bracket, "", "Stored value must be a number, got %v", v.Tag)
	}

	switch c.Tag {
	case Array:
		length, data := g.arrayParts(c)

		i := g.boundsCheckedIndex(idx, length, e.Bracket.Line)

		ep := g.f.Reg()
		g.f.Emit("%s = getelementptr double, ptr %s, i64 %s", ep, data, i)
		g.f.Emit("store double %s, ptr %s", v.Ref, ep)

		return v, nil
	case Dict:
		entry := g.dictLookup(c, idx, e.Bracket.Line)

		vp := g.f.Reg()
		g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i32 0, i32 1", vp, entry)
		g.f.Emit("store double %s, ptr %s", v.Ref, vp)

		return v, nil
	}

	return Value{}, g.errAt(e.Bracket, "", "Cannot index a %v", c.Tag)
}

// dictLookup emits the linear key scan and returns a register holding
// the matching entry pointer; a missing key traps.
func (g *Generator) dictLookup(d Value, key Value, line int) string {
	length, entries := g.dictParts(d)

	idxSlot := g.f.Reg()
	g.f.Emit("%s = alloca i64", idxSlot)
	g.f.Emit("store i64 0, ptr %s", idxSlot)

	resSlot := g.f.Reg()
	g.f.Emit("%s = alloca ptr", resSlot)

	cond := g.f.NewBlock("dict_scan")
	body := g.f.NewBlock("dict_cmp")
	next := g.f.NewBlock("dict_next")
	found := g.f.NewBlock("dict_found")
	miss := g.f.NewBlock("dict_miss")
	done := g.f.NewBlock("dict_done")

	g.f.Emit("br label %%%s", cond.Label)

	g.f.SetBlock(cond)

	i := g.f.Reg()
	g.f.Emit("%s = load i64, ptr %s", i, idxSlot)

	inRange := g.f.Reg()
	g.f.Emit("%s = icmp slt i64 %s, %s", inRange, i, length)

	g.f.Emit("br i1 %s, label %%%s, label %%%s", inRange, body.Label, miss.Label)

	g.f.SetBlock(body)

	entry := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i64 %s", entry, entries, i)

	kp := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i32 0, i32 0", kp, entry)

	k := g.f.Reg()
	g.f.Emit("%s = load double, ptr %s", k, kp)

	eq := g.f.Reg()
	g.f.Emit("%s = fcmp oeq double %s, %s", eq, k, key.Ref)

	g.f.Emit("br i1 %s, label %%%s, label %%%s", eq, found.Label, next.Label)

	g.f.SetBlock(next)

	ni := g.f.Reg()
	g.f.Emit("%s = add i64 %s, 1", ni, i)
	g.f.Emit("store i64 %s, ptr %s", ni, idxSlot)
	g.f.Emit("br label %%%s", cond.Label)

	g.f.SetBlock(found)
	g.f.Emit("store ptr %s, ptr %s", entry, resSlot)
	g.f.Emit("br label %%%s", done.Label)

	g.f.SetBlock(miss)
	g.trap("Runtime Error: Dictionary key not found at line " + strconv.Itoa(line))

	g.f.SetBlock(done)

	res := g.f.Reg()
	g.f.Emit("%s = load ptr, ptr %s", res, resSlot)

	return res
}

func (g *Generator) genLen(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "len", 1); err != nil {
		return Value{}, err
	}

	v, err := g.genExpr(ctx, e.Args[0])
	if err != nil {
		return Value{}, err
	}

	var length string

	switch v.Tag {
	case Array:
		length, _ = g.arrayParts(v)
	case Dict:
		length, _ = g.dictParts(v)
	case String:
		length = g.f.Reg()
		g.f.Emit("%s = call i64 @strlen(ptr %s)", length, v.Ref)
	default:
		return Value{}, g.errAt(e.Paren, "len() works on arrays, dicts and strings.",
			"Cannot take len() of a %v", v.Tag)
	}

	reg := g.f.Reg()
	g.f.Emit("%s = sitofp i64 %s to double", reg, length)

	return Value{Ref: reg, Tag: Number}, nil
}

// genHas scans the dictionary for a key and yields a bool.
func (g *Generator) genHas(ctx context.Context, e *ast.Call) (Value, error) {
	if err := g.arity(e, "has", 2); err != nil {
		return Value{}, err
	}

	d, err := g.genExpr(ctx, e.Args[0])
	if err != nil {
		return Value{}, err
	}

	if d.Tag != Dict {
		return Value{}, g.errAt(e.Paren, "", "has() first argument must be a dict, got %v", d.Tag)
	}

	key, err := g.numArg(ctx, e, 1)
	if err != nil {
		return Value{}, err
	}

	length, entries := g.dictParts(d)

	resSlot := g.f.Reg()
	g.f.Emit("%s = alloca i1", resSlot)
	g.f.Emit("store i1 0, ptr %s", resSlot)

	idxSlot := g.f.Reg()
	g.f.Emit("%s = alloca i64", idxSlot)
	g.f.Emit("store i64 0, ptr %s", idxSlot)

	cond := g.f.NewBlock("has_scan")
	body := g.f.NewBlock("has_cmp")
	next := g.f.NewBlock("has_next")
	hit := g.f.NewBlock("has_hit")
	done := g.f.NewBlock("has_done")

	g.f.Emit("br label %%%s", cond.Label)

	g.f.SetBlock(cond)

	i := g.f.Reg()
	g.f.Emit("%s = load i64, ptr %s", i, idxSlot)

	inRange := g.f.Reg()
	g.f.Emit("%s = icmp slt i64 %s, %s", inRange, i, length)

	g.f.Emit("br i1 %s, label %%%s, label %%%s", inRange, body.Label, done.Label)

	g.f.SetBlock(body)

	entry := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i64 %s", entry, entries, i)

	kp := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i32 0, i32 0", kp, entry)

	k := g.f.Reg()
	g.f.Emit("%s = load double, ptr %s", k, kp)

	eq := g.f.Reg()
	g.f.Emit("%s = fcmp oeq double %s, %s", eq, k, key.Ref)

	g.f.Emit("br i1 %s, label %%%s, label %%%s", eq, hit.Label, next.Label)

	g.f.SetBlock(next)

	ni := g.f.Reg()
	g.f.Emit("%s = add i64 %s, 1", ni, i)
	g.f.Emit("store i64 %s, ptr %s", ni, idxSlot)
	g.f.Emit("br label %%%s", cond.Label)

	g.f.SetBlock(hit)
	g.f.Emit("store i1 1, ptr %s", resSlot)
	g.f.Emit("br label %%%s", done.Label)

	g.f.SetBlock(done)

	reg := g.f.Reg()
	g.f.Emit("%s = load i1, ptr %s", reg, resSlot)

	return Value{Ref: reg, Tag: Bool}, nil
}

// genKeys builds a fresh array of the dictionary's keys (or values).
func (g *Generator) genKeys(ctx context.Context, e *ast.Call, keys bool) (Value, error) {
	fn := "keys"
	field := 0

	if !keys {
		fn = "values"
		field = 1
	}

	if err := g.arity(e, fn, 1); err != nil {
		return Value{}, err
	}

	d, err := g.genExpr(ctx, e.Args[0])
	if err != nil {
		return Value{}, err
	}

	if d.Tag != Dict {
		return Value{}, g.errAt(e.Paren, "", "%s() argument must be a dict, got %v", fn, d.Tag)
	}

	length, entries := g.dictParts(d)

	s := g.f.Reg()
	g.f.Emit("%s = alloca %%ArrayStruct", s)

	lenPtr := g.f.Reg()
	g.f.Emit("%s = getelementptr %%ArrayStruct, ptr %s, i32 0, i32 0", lenPtr, s)
	g.f.Emit("store i64 %s, ptr %s", length, lenPtr)

	bytes := g.f.Reg()
	g.f.Emit("%s = mul i64 %s, 8", bytes, length)

	buf := g.f.Reg()
	g.f.Emit("%s = call ptr @malloc(i64 %s)", buf, bytes)

	dataPtr := g.f.Reg()
	g.f.Emit("%s = getelementptr %%ArrayStruct, ptr %s, i32 0, i32 1", dataPtr, s)
	g.f.Emit("store ptr %s, ptr %s", buf, dataPtr)

	idxSlot := g.f.Reg()
	g.f.Emit("%s = alloca i64", idxSlot)
	g.f.Emit("store i64 0, ptr %s", idxSlot)

	cond := g.f.NewBlock(fn + "_scan")
	body := g.f.NewBlock(fn + "_copy")
	done := g.f.NewBlock(fn + "_done")

	g.f.Emit("br label %%%s", cond.Label)

	g.f.SetBlock(cond)

	i := g.f.Reg()
	g.f.Emit("%s = load i64, ptr %s", i, idxSlot)

	inRange := g.f.Reg()
	g.f.Emit("%s = icmp slt i64 %s, %s", inRange, i, length)

	g.f.Emit("br i1 %s, label %%%s, label %%%s", inRange, body.Label, done.Label)

	g.f.SetBlock(body)

	entry := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i64 %s", entry, entries, i)

	fp := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i32 0, i32 %d", fp, entry, field)

	val := g.f.Reg()
	g.f.Emit("%s = load double, ptr %s", val, fp)

	dp := g.f.Reg()
	g.f.Emit("%s = getelementptr double, ptr %s, i64 %s", dp, buf, i)
	g.f.Emit("store double %s, ptr %s", val, dp)

	ni := g.f.Reg()
	g.f.Emit("%s = add i64 %s, 1", ni, i)
	g.f.Emit("store i64 %s, ptr %s", ni, idxSlot)
	g.f.Emit("br label %%%s", cond.Label)

	g.f.SetBlock(done)

	return Value{Ref: s, Tag: Array, Elem: Number}, nil
}

// printArray walks the array printing "[e1, e2, ...]".
func (g *Generator) printArray(v Value) {
	length, data := g.arrayParts(v)

	g.f.Emit("call i32 (ptr, ...) @printf(ptr %s)", g.mod.StringConst("["))

	idxSlot := g.f.Reg()
	g.f.Emit("%s = alloca i64", idxSlot)
	g.f.Emit("store i64 0, ptr %s", idxSlot)

	cond := g.f.NewBlock("parr_cond")
	body := g.f.NewBlock("parr_body")
	sep := g.f.NewBlock("parr_sep")
	elem := g.f.NewBlock("parr_elem")
	done := g.f.NewBlock("parr_done")

	g.f.Emit("br label %%%s", cond.Label)

	g.f.SetBlock(cond)

	i := g.f.Reg()
	g.f.Emit("%s = load i64, ptr %s", i, idxSlot)

	inRange := g.f.Reg()
	g.f.Emit("%s = icmp slt i64 %s, %s", inRange, i, length)

	g.f.Emit("br i1 %s, label %%%s, label %%%s", inRange, body.Label, done.Label)

	g.f.SetBlock(body)

	first := g.f.Reg()
	g.f.Emit("%s = icmp eq i64 %s, 0", first, i)

	g.f.Emit("br i1 %s, label %%%s, label %%%s", first, elem.Label, sep.Label)

	g.f.SetBlock(sep)
	g.f.Emit("call i32 (ptr, ...) @printf(ptr %s)", g.mod.StringConst(", "))
	g.f.Emit("br label %%%s", elem.Label)

	g.f.SetBlock(elem)

	ep := g.f.Reg()
	g.f.Emit("%s = getelementptr double, ptr %s, i64 %s", ep, data, i)

	val := g.f.Reg()
	g.f.Emit("%s = load double, ptr %s", val, ep)

	g.f.Emit("call i32 (ptr, ...) @printf(ptr %s, double %s)", g.mod.StringConst("%g"), val)

	ni := g.f.Reg()
	g.f.Emit("%s = add i64 %s, 1", ni, i)
	g.f.Emit("store i64 %s, ptr %s", ni, idxSlot)
	g.f.Emit("br label %%%s", cond.Label)

	g.f.SetBlock(done)
	g.f.Emit("call i32 (ptr, ...) @printf(ptr %s)", g.mod.StringConst("]\n"))
}

// printDict walks the dictionary printing "{k1: v1, ...}".
func (g *Generator) printDict(v Value) {
	length, entries := g.dictParts(v)

	g.f.Emit("call i32 (ptr, ...) @printf(ptr %s)", g.mod.StringConst("{"))

	idxSlot := g.f.Reg()
	g.f.Emit("%s = alloca i64", idxSlot)
	g.f.Emit("store i64 0, ptr %s", idxSlot)

	cond := g.f.NewBlock("pdict_cond")
	body := g.f.NewBlock("pdict_body")
	sep := g.f.NewBlock("pdict_sep")
	elem := g.f.NewBlock("pdict_elem")
	done := g.f.NewBlock("pdict_done")

	g.f.Emit("br label %%%s", cond.Label)

	g.f.SetBlock(cond)

	i := g.f.Reg()
	g.f.Emit("%s = load i64, ptr %s", i, idxSlot)

	inRange := g.f.Reg()
	g.f.Emit("%s = icmp slt i64 %s, %s", inRange, i, length)

	g.f.Emit("br i1 %s, label %%%s, label %%%s", inRange, body.Label, done.Label)

	g.f.SetBlock(body)

	first := g.f.Reg()
	g.f.Emit("%s = icmp eq i64 %s, 0", first, i)

	g.f.Emit("br i1 %s, label %%%s, label %%%s", first, elem.Label, sep.Label)

	g.f.SetBlock(sep)
	g.f.Emit("call i32 (ptr, ...) @printf(ptr %s)", g.mod.StringConst(", "))
	g.f.Emit("br label %%%s", elem.Label)

	g.f.SetBlock(elem)

	entry := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i64 %s", entry, entries, i)

	kp := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i32 0, i32 0", kp, entry)

	k := g.f.Reg()
	g.f.Emit("%s = load double, ptr %s", k, kp)

	vp := g.f.Reg()
	g.f.Emit("%s = getelementptr %%DictEntry, ptr %s, i32 0, i32 1", vp, entry)

	val := g.f.Reg()
	g.f.Emit("%s = load double, ptr %s", val, vp)

	g.f.Emit("call i32 (ptr, ...) @printf(ptr %s, double %s, double %s)", g.mod.StringConst("%g: %g"), k, val)

	ni := g.f.Reg()
	g.f.Emit("%s = add i64 %s, 1", ni, i)
	g.f.Emit("store i64 %s, ptr %s", ni, idxSlot)
	g.f.Emit("br label %%%s", cond.Label)

	g.f.SetBlock(done)
	g.f.Emit("call i32 (ptr, ...) @printf(ptr %s)", g.mod.StringConst("}\n"))
}
