// Package codegen lowers the optimized AST to a textual typed IR module,
// inserting the runtime safety checks the language guarantees: zero
// division, array bounds, dictionary lookups, allocation sizes.
package codegen

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/diag"
	"github.com/boxlang/box/compiler/ir"
	"github.com/boxlang/box/compiler/token"
)

type (
	// Tag is the Box value-type tag carried through lowering.
	Tag int

	// Value is the box value: an IR operand, its tag, mutability and
	// the optional container element tags.
	Value struct {
		Ref     string
		Tag     Tag
		Mutable bool
		Elem    Tag
		Key     Tag
	}

	binding struct {
		ptr     string
		tag     Tag
		mutable bool
		elem    Tag
		key     Tag
	}

	funcInfo struct {
		irName string
		arity  int
	}

	// Generator holds the state of one lowering run. It fails fast on
	// the first error.
	Generator struct {
		src string

		mod *ir.Module
		f   *ir.Func

		scopes []map[string]*binding
		funcs  map[string]*funcInfo

		breaks []*ir.Block

		unsafeDepth int
	}

	// Error is a fatal lowering error pinned to a source token.
	Error struct {
		Msg    string
		Line   int
		Column int
		Hint   string

		sourceLine string
	}
)

const (
	Number Tag = iota
	String
	Bool
	NilTag
	Array
	Dict
	Function
	Pointer
)

func (t Tag) String() string {
	switch t {
	case Number:
		return "number"
	case String:
		return "string"
	case Bool:
		return "bool"
	case NilTag:
		return "nil"
	case Array:
		return "array"
	case Dict:
		return "dict"
	case Function:
		return "function"
	case Pointer:
		return "pointer"
	}

	return "value"
}

// irType is the IR storage type of a tag.
func irType(t Tag) string {
	switch t {
	case Bool:
		return "i1"
	case String, Pointer, Array, Dict:
		return "ptr"
	default:
		return "double"
	}
}

// Generate lowers stmts into a complete IR module.
func Generate(ctx context.Context, src string, stmts []ast.Stmt) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "codegen")
	defer tr.Finish("err", &err)

	g := &Generator{
		src:   src,
		mod:   ir.NewModule(),
		funcs: map[string]*funcInfo{},
	}

	g.registerFunctions(stmts)

	g.f = g.mod.NewFunc("main", "i32")
	g.pushScope()

	for _, st := range stmts {
		if err := g.genStmt(ctx, st); err != nil {
			return nil, err
		}
	}

	g.popScope()

	if !g.f.Terminated() {
		g.f.Emit("ret i32 0")
	}

	b := g.mod.Bytes()

	tr.Printw("module emitted", "bytes", len(b))

	return b, nil
}

// registerFunctions records every function name before lowering so
// recursive and forward calls resolve.
func (g *Generator) registerFunctions(stmts []ast.Stmt) {
	for _, st := range stmts {
		switch st := st.(type) {
		case *ast.FunctionStmt:
			g.funcs[st.Name.Lexeme] = &funcInfo{
				irName: "box_" + st.Name.Lexeme,
				arity:  len(st.Params),
			}

			g.registerFunctions(st.Body)
		case *ast.Block:
			g.registerFunctions(st.Stmts)
		case *ast.UnsafeBlock:
			g.registerFunctions(st.Stmts)
		case *ast.IfStmt:
			g.registerFunctions([]ast.Stmt{st.Then})
			if st.Else != nil {
				g.registerFunctions([]ast.Stmt{st.Else})
			}
		case *ast.WhileStmt:
			g.registerFunctions([]ast.Stmt{st.Body})
		case *ast.SwitchStmt:
			for _, c := range st.Cases {
				g.registerFunctions(c.Body)
			}

			g.registerFunctions(st.Default)
		}
	}
}

// env

func (g *Generator) pushScope() {
	g.scopes = append(g.scopes, map[string]*binding{})
}

func (g *Generator) popScope() {
	g.scopes = g.scopes[:len(g.scopes)-1]
}

func (g *Generator) define(name string, b *binding) bool {
	sc := g.scopes[len(g.scopes)-1]

	if _, ok := sc[name]; ok {
		return false
	}

	sc[name] = b

	return true
}

func (g *Generator) lookup(name string) (*binding, bool) {
	for i := len(g.scopes) - 1; i >= 0; i-- {
		if b, ok := g.scopes[i][name]; ok {
			return b, true
		}
	}

	return nil, false
}

// errors

func (g *Generator) errAt(tk token.Token, hint, f string, args ...interface{}) error {
	return Error{
		Msg:        errors.New(f, args...).Error(),
		Line:       tk.Line,
		Column:     tk.Column,
		Hint:       hint,
		sourceLine: diag.SourceLine(g.src, tk.Line),
	}
}

func (e Error) Error() string {
	d := diag.Diagnostic{
		Phase:      "CODEGEN",
		Msg:        e.Msg,
		Line:       e.Line,
		Column:     e.Column,
		SourceLine: e.sourceLine,
		Hint:       e.Hint,
	}

	return d.String()
}

// trap emits a printf+exit(1) diagnostic path into the current block.
func (g *Generator) trap(msg string) {
	s := g.mod.StringConst(msg + "\n")

	g.f.Emit("call i32 (ptr, ...) @printf(ptr %s)", s)
	g.f.Emit("call void @exit(i32 1)")
	g.f.Emit("unreachable")
}

// condTrap branches to a fresh trap block when cond holds and continues
// in a fresh ok block otherwise.
func (g *Generator) condTrap(cond, prefix, msg string) {
	bad := g.f.NewBlock(prefix + "_error")
	ok := g.f.NewBlock(prefix + "_ok")

	g.f.Emit("br i1 %s, label %%%s, label %%%s", cond, bad.Label, ok.Label)

	g.f.SetBlock(bad)
	g.trap(msg)

	g.f.SetBlock(ok)
}
