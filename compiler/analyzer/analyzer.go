// Package analyzer is the flow- and path-sensitive memory-safety pass.
//
// It runs three cooperating layers: a scope-driven symbolic walk over the
// AST, a worklist dataflow over an explicitly built control-flow graph,
// and a bounded per-function path enumeration. Strict by default; inside
// an unsafe block every finding demotes to a warning.
package analyzer

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/diag"
	"github.com/boxlang/box/compiler/token"
)

type (
	AllocState int
	PtrState   int

	// AllocationInfo tracks one heap allocation through the walk.
	AllocationInfo struct {
		Name     string
		Token    token.Token
		State    AllocState
		FreedAt  *token.Token
		Size     ast.Expr
		IsArray  bool
		RefCount int
		Aliases  map[string]bool
	}

	// PointerInfo tracks one pointer variable introduced by addr_of.
	PointerInfo struct {
		Name        string
		Token       token.Token
		State       PtrState
		PointsTo    string
		Indirection int
	}

	// Analyzer holds the state of one analysis run.
	Analyzer struct {
		src string

		strict      bool
		unsafeDepth int

		allocs map[string]*AllocationInfo
		ptrs   map[string]*PointerInfo

		scopes  []map[string]bool // declared names per lexical scope
		freedIn []map[string]bool // names freed within each scope

		errs  []diag.Diagnostic
		warns []diag.Diagnostic
	}

	// Report is the verdict of a full analysis.
	Report struct {
		OK       bool
		Errors   []diag.Diagnostic
		Warnings []diag.Diagnostic
	}

	// Error is a fatal analysis outcome carrying the full report.
	Error struct {
		Report Report
	}
)

const (
	Uninitialized AllocState = iota
	Allocated
	Freed
	Invalid
	Unknown
)

const (
	PtrNull PtrState = iota
	PtrValid
	PtrDangling
	PtrUnknown
)

func (s AllocState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Allocated:
		return "allocated"
	case Freed:
		return "freed"
	case Invalid:
		return "invalid"
	}

	return "unknown"
}

// Analyze runs all three layers over the program and returns the verdict.
func Analyze(ctx context.Context, src string, stmts []ast.Stmt) Report {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "memory analysis")
	defer tr.Finish()

	a := &Analyzer{
		src:    src,
		strict: true,
		allocs: map[string]*AllocationInfo{},
		ptrs:   map[string]*PointerInfo{},
	}

	a.pushScope()
	a.walkStmts(ctx, stmts)
	a.popScope(ctx)

	if len(a.errs) == 0 {
		g := a.buildCFG(ctx, stmts)
		a.dataflow(ctx, g)
		a.flagFreedReads(ctx, g)
		a.enumeratePaths(ctx, stmts)
	}

	tr.Printw("analysis done", "errors", len(a.errs), "warnings", len(a.warns))

	return Report{
		OK:       len(a.errs) == 0,
		Errors:   a.errs,
		Warnings: a.warns,
	}
}

func (a *Analyzer) walkStmts(ctx context.Context, stmts []ast.Stmt) {
	// source order within a scope matters for state inference
	for _, st := range stmts {
		a.walkStmt(ctx, st)
	}
}

func (a *Analyzer) walkStmt(ctx context.Context, st ast.Stmt) {
	switch st := st.(type) {
	case *ast.VarStmt:
		a.walkVar(ctx, st)
	case *ast.ExprStmt:
		a.walkExpr(ctx, st.Expr)
	case *ast.PrintStmt:
		a.walkExpr(ctx, st.Expr)
	case *ast.Block:
		a.pushScope()
		a.walkStmts(ctx, st.Stmts)
		a.popScope(ctx)
	case *ast.IfStmt:
		a.walkIf(ctx, st)
	case *ast.WhileStmt:
		a.walkWhile(ctx, st)
	case *ast.SwitchStmt:
		a.walkSwitch(ctx, st)
	case *ast.FunctionStmt:
		a.walkFunction(ctx, st)
	case *ast.ReturnStmt:
		if st.Value != nil {
			a.walkExpr(ctx, st.Value)
		}
	case *ast.UnsafeBlock:
		a.unsafeDepth++
		a.pushScope()
		a.walkStmts(ctx, st.Stmts)
		a.popScope(ctx)
		a.unsafeDepth--
	case *ast.BreakStmt, *ast.LLVMInlineStmt, *ast.ImportStmt:
		// no memory effects
	}
}

func (a *Analyzer) walkVar(ctx context.Context, st *ast.VarStmt) {
	name := st.Name.Lexeme

	a.declare(name)

	if st.Init == nil {
		return
	}

	if kind, ok := mallocKind(st.Init); ok {
		if old, exists := a.allocs[name]; exists && old.State == Allocated {
			a.emit(ctx, "MEMORY LEAK", st.Name,
				errors.New("Reassigning %q loses the previous allocation", name).Error(),
				errors.New("The allocation from line %d is never freed.", old.Token.Line).Error())
		}

		a.allocs[name] = &AllocationInfo{
			Name:    name,
			Token:   st.Name,
			State:   Allocated,
			Size:    mallocSize(st.Init),
			IsArray: kind == "calloc",
			Aliases: map[string]bool{},
		}

		a.walkCallArgs(ctx, st.Init)

		return
	}

	if tgt, ok := addrOfTarget(st.Init); ok {
		a.ptrs[name] = &PointerInfo{
			Name:        name,
			Token:       st.Name,
			State:       PtrValid,
			PointsTo:    tgt,
			Indirection: 1,
		}

		if al, ok := a.allocs[tgt]; ok {
			al.RefCount++
			al.Aliases[name] = true
		}

		return
	}

	a.walkExpr(ctx, st.Init)
}

func (a *Analyzer) walkIf(ctx context.Context, st *ast.IfStmt) {
	a.walkExpr(ctx, st.Condition)

	snap := a.snapshot()

	a.walkStmt(ctx, st.Then)
	freedThen := a.freedSince(snap)

	a.restore(snap)

	freedElse := map[string]bool{}

	if st.Else != nil {
		a.walkStmt(ctx, st.Else)
		freedElse = a.freedSince(snap)

		a.restore(snap)
	}

	// only names freed on every path stay freed
	for name := range freedThen {
		al, ok := a.allocs[name]
		if !ok {
			continue
		}

		if freedElse[name] {
			al.State = Freed
			a.markFreed(name)
		} else {
			al.State = Allocated
		}
	}
}

func (a *Analyzer) walkWhile(ctx context.Context, st *ast.WhileStmt) {
	a.walkExpr(ctx, st.Condition)

	snap := a.snapshot()

	a.pushScope()
	a.walkStmt(ctx, st.Body)
	a.popScope(ctx)

	// body effects do not escape the loop scope
	a.restore(snap)
}

func (a *Analyzer) walkSwitch(ctx context.Context, st *ast.SwitchStmt) {
	a.walkExpr(ctx, st.Condition)

	snap := a.snapshot()

	for _, c := range st.Cases {
		a.walkExpr(ctx, c.Value)

		a.pushScope()
		a.walkStmts(ctx, c.Body)
		a.popScope(ctx)

		a.restore(snap)
	}

	if st.Default != nil {
		a.pushScope()
		a.walkStmts(ctx, st.Default)
		a.popScope(ctx)

		a.restore(snap)
	}
}

func (a *Analyzer) walkFunction(ctx context.Context, st *ast.FunctionStmt) {
	// nested functions don't see outer allocations
	outer := a.allocs
	a.allocs = map[string]*AllocationInfo{}

	a.pushScope()
	a.walkStmts(ctx, st.Body)
	a.popScope(ctx)

	for _, al := range a.allocs {
		if al.State == Allocated {
			a.emit(ctx, "MEMORY LEAK", al.Token,
				errors.New("%q allocated in function %q is never freed", al.Name, st.Name.Lexeme).Error(),
				"Free every allocation before the function returns.")
		}
	}

	a.allocs = outer
}

func (a *Analyzer) walkExpr(ctx context.Context, e ast.Expr) {
	switch e := e.(type) {
	case *ast.Literal:
	case *ast.Variable:
		a.checkRead(ctx, e.Name)
	case *ast.Assign:
		if kind, ok := mallocKind(e.Value); ok {
			name := e.Name.Lexeme

			if old, exists := a.allocs[name]; exists && old.State == Allocated {
				a.emit(ctx, "MEMORY LEAK", e.Name,
					errors.New("Reassigning %q loses the previous allocation", name).Error(),
					errors.New("The allocation from line %d is never freed.", old.Token.Line).Error())
			}

			a.allocs[name] = &AllocationInfo{
				Name:    name,
				Token:   e.Name,
				State:   Allocated,
				Size:    mallocSize(e.Value),
				IsArray: kind == "calloc",
				Aliases: map[string]bool{},
			}

			a.markDeclaredHere(name)
			a.walkCallArgs(ctx, e.Value)

			return
		}

		a.walkExpr(ctx, e.Value)
	case *ast.Binary:
		a.walkExpr(ctx, e.Left)
		a.walkExpr(ctx, e.Right)
	case *ast.Unary:
		a.walkExpr(ctx, e.Right)
	case *ast.Logical:
		a.walkExpr(ctx, e.Left)
		a.walkExpr(ctx, e.Right)
	case *ast.Grouping:
		a.walkExpr(ctx, e.Inner)
	case *ast.Call:
		a.walkCall(ctx, e)
	case *ast.ArrayLiteral:
		for _, el := range e.Elems {
			a.walkExpr(ctx, el)
		}
	case *ast.DictLiteral:
		for _, p := range e.Pairs {
			a.walkExpr(ctx, p.Key)
			a.walkExpr(ctx, p.Value)
		}
	case *ast.IndexGet:
		a.walkExpr(ctx, e.Container)
		a.walkExpr(ctx, e.Index)
	case *ast.IndexSet:
		a.walkExpr(ctx, e.Container)
		a.walkExpr(ctx, e.Index)
		a.walkExpr(ctx, e.Value)
	}
}

func (a *Analyzer) walkCall(ctx context.Context, e *ast.Call) {
	callee, ok := e.Callee.(*ast.Variable)
	if !ok {
		a.walkExpr(ctx, e.Callee)
		a.walkCallArgs(ctx, e)

		return
	}

	switch callee.Name.Lexeme {
	case "free":
		a.checkFree(ctx, e)
	case "deref":
		a.checkDeref(ctx, e)
	case "malloc", "calloc", "realloc", "addr_of":
		a.walkCallArgs(ctx, e)
	default:
		a.walkCallArgs(ctx, e)
	}
}

func (a *Analyzer) walkCallArgs(ctx context.Context, e ast.Expr) {
	c, ok := e.(*ast.Call)
	if !ok {
		return
	}

	for _, arg := range c.Args {
		a.walkExpr(ctx, arg)
	}
}

func (a *Analyzer) checkFree(ctx context.Context, e *ast.Call) {
	if len(e.Args) != 1 {
		a.emit(ctx, "INVALID FREE", e.Paren,
			"free() takes exactly one argument", "Use: free(ptr);")

		return
	}

	v, ok := e.Args[0].(*ast.Variable)
	if !ok {
		a.emit(ctx, "INVALID FREE", e.Paren,
			"free() argument must be a variable", "Only named allocations can be freed.")

		return
	}

	name := v.Name.Lexeme

	al, exists := a.allocs[name]
	if !exists {
		a.emit(ctx, "INVALID FREE", v.Name,
			errors.New("%q is not a tracked allocation", name).Error(),
			"Only values returned by malloc, calloc or realloc can be freed.")

		return
	}

	if al.State == Freed {
		hint := "The pointer was already released."
		if al.FreedAt != nil {
			hint = errors.New("Previously freed at line %d.", al.FreedAt.Line).Error()
		}

		a.emit(ctx, "DOUBLE-FREE", v.Name,
			errors.New("%q is freed twice", name).Error(), hint)

		return
	}

	tk := v.Name
	al.State = Freed
	al.FreedAt = &tk

	a.markFreed(name)

	for alias := range al.Aliases {
		if p, ok := a.ptrs[alias]; ok {
			p.State = PtrDangling
		}
	}
}

func (a *Analyzer) checkDeref(ctx context.Context, e *ast.Call) {
	if len(e.Args) != 1 {
		return
	}

	v, ok := e.Args[0].(*ast.Variable)
	if !ok {
		a.walkExpr(ctx, e.Args[0])

		return
	}

	name := v.Name.Lexeme

	if al, ok := a.allocs[name]; ok {
		switch al.State {
		case Freed:
			hint := ""
			if al.FreedAt != nil {
				hint = errors.New("Previously freed at line %d.", al.FreedAt.Line).Error()
			}

			a.emit(ctx, "USE-AFTER-FREE", v.Name,
				errors.New("%q is dereferenced after being freed", name).Error(), hint)
		case Uninitialized:
			a.emit(ctx, "MEMORY SAFETY ERROR", v.Name,
				errors.New("%q is dereferenced before initialization", name).Error(), "")
		}

		return
	}

	if p, ok := a.ptrs[name]; ok {
		switch p.State {
		case PtrNull:
			a.emit(ctx, "NULL POINTER DEREFERENCE", v.Name,
				errors.New("%q is nil at this point", name).Error(),
				"Assign the pointer before dereferencing it.")
		case PtrDangling:
			a.emit(ctx, "USE-AFTER-FREE", v.Name,
				errors.New("%q points to freed memory", name).Error(),
				errors.New("It aliases %q, which was freed.", p.PointsTo).Error())
		}
	}
}

func (a *Analyzer) checkRead(ctx context.Context, name token.Token) {
	al, ok := a.allocs[name.Lexeme]
	if !ok || al.State != Freed {
		return
	}

	hint := ""
	if al.FreedAt != nil {
		hint = errors.New("Previously freed at line %d.", al.FreedAt.Line).Error()
	}

	a.emit(ctx, "USE-AFTER-FREE", name,
		errors.New("%q is used after being freed", name.Lexeme).Error(), hint)
}

// emit records a finding, fatal under strict mode unless inside unsafe.
func (a *Analyzer) emit(ctx context.Context, class string, tk token.Token, msg, hint string) {
	d := diag.Diagnostic{
		Phase:      class,
		Msg:        msg,
		Line:       tk.Line,
		Column:     tk.Column,
		SourceLine: diag.SourceLine(a.src, tk.Line),
		Hint:       hint,
	}

	tr := tlog.SpanFromContext(ctx)

	if a.strict && a.unsafeDepth == 0 {
		tr.Printw("memory error", "class", class, "line", tk.Line, "msg", msg)

		a.errs = append(a.errs, d)
	} else {
		tr.Printw("memory warning", "class", class, "line", tk.Line, "msg", msg)

		a.warns = append(a.warns, d)
	}
}

func (a *Analyzer) warn(ctx context.Context, class string, tk token.Token, msg, hint string) {
	tlog.SpanFromContext(ctx).Printw("memory warning", "class", class, "line", tk.Line, "msg", msg)

	a.warns = append(a.warns, diag.Diagnostic{
		Phase:      class,
		Msg:        msg,
		Line:       tk.Line,
		Column:     tk.Column,
		SourceLine: diag.SourceLine(a.src, tk.Line),
		Hint:       hint,
	})
}

// scopes

func (a *Analyzer) pushScope() {
	a.scopes = append(a.scopes, map[string]bool{})
	a.freedIn = append(a.freedIn, map[string]bool{})
}

// popScope reports leaks for the exiting scope and drops it.
func (a *Analyzer) popScope(ctx context.Context) {
	last := len(a.scopes) - 1
	declared := a.scopes[last]
	freed := a.freedIn[last]

	for name := range declared {
		al, ok := a.allocs[name]
		if !ok {
			continue
		}

		if al.State == Allocated && !freed[name] {
			a.emit(ctx, "MEMORY LEAK", al.Token,
				errors.New("%q goes out of scope while still allocated", name).Error(),
				"Call free() before the end of the scope.")
		}

		delete(a.allocs, name)
	}

	a.scopes = a.scopes[:last]
	a.freedIn = a.freedIn[:last]
}

// freedSince reports the names that transitioned to Freed relative to a
// snapshot. Used for branch analysis: a branch body runs in its own
// scope, so the branch's frees are visible only through the state diff.
func (a *Analyzer) freedSince(snap map[string]AllocationInfo) map[string]bool {
	freed := map[string]bool{}

	for name, al := range a.allocs {
		if al.State != Freed {
			continue
		}

		if old, ok := snap[name]; ok && old.State != Freed {
			freed[name] = true
		}
	}

	return freed
}

func (a *Analyzer) declare(name string) {
	a.scopes[len(a.scopes)-1][name] = true
}

func (a *Analyzer) markDeclaredHere(name string) {
	for _, sc := range a.scopes {
		if sc[name] {
			return
		}
	}

	a.declare(name)
}

func (a *Analyzer) markFreed(name string) {
	a.freedIn[len(a.freedIn)-1][name] = true
}

// snapshots

func (a *Analyzer) snapshot() map[string]AllocationInfo {
	m := make(map[string]AllocationInfo, len(a.allocs))

	for k, v := range a.allocs {
		m[k] = *v
	}

	return m
}

func (a *Analyzer) restore(snap map[string]AllocationInfo) {
	for k := range a.allocs {
		if _, ok := snap[k]; !ok {
			delete(a.allocs, k)
		}
	}

	for k, v := range snap {
		cp := v

		a.allocs[k] = &cp
	}
}

// helpers

func mallocKind(e ast.Expr) (string, bool) {
	c, ok := e.(*ast.Call)
	if !ok {
		return "", false
	}

	v, ok := c.Callee.(*ast.Variable)
	if !ok {
		return "", false
	}

	switch v.Name.Lexeme {
	case "malloc", "calloc", "realloc":
		return v.Name.Lexeme, true
	}

	return "", false
}

func mallocSize(e ast.Expr) ast.Expr {
	c, ok := e.(*ast.Call)
	if !ok || len(c.Args) == 0 {
		return nil
	}

	return c.Args[0]
}

func addrOfTarget(e ast.Expr) (string, bool) {
	c, ok := e.(*ast.Call)
	if !ok || len(c.Args) != 1 {
		return "", false
	}

	v, ok := c.Callee.(*ast.Variable)
	if !ok || v.Name.Lexeme != "addr_of" {
		return "", false
	}

	t, ok := c.Args[0].(*ast.Variable)
	if !ok {
		return "", false
	}

	return t.Name.Lexeme, true
}

func (e Error) Error() string {
	b := diag.Summary(nil, "memory safety", len(e.Report.Errors), e.Report.Errors)

	return string(b)
}
