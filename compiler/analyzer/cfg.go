package analyzer

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/set"
	"github.com/boxlang/box/compiler/token"
)

type (
	NodeKind int

	// Node is one CFG program point. Edges are id cross-references, not
	// ownership; the graph is owned by one analysis run and discarded.
	Node struct {
		ID   int
		Kind NodeKind
		Stmt ast.Stmt // borrowed, never mutated

		Succ []int
		Pred []int

		In  map[string]Fact
		Out map[string]Fact

		Freed map[string]bool
	}

	// Fact is the allocation state tracked per name at a program point.
	Fact struct {
		State    AllocState
		IsArray  bool
		RefCount int
	}

	Graph struct {
		Nodes []*Node
		Entry int
		Exit  int
	}
)

const (
	KindEntry NodeKind = iota
	KindExit
	KindStatement
	KindBranch
	KindMerge
	KindLoopHeader
	KindLoopBody
	KindLoopExit
	KindFunctionCall
	KindFunctionReturn
)

func (k NodeKind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindExit:
		return "exit"
	case KindStatement:
		return "stmt"
	case KindBranch:
		return "branch"
	case KindMerge:
		return "merge"
	case KindLoopHeader:
		return "loop_header"
	case KindLoopBody:
		return "loop_body"
	case KindLoopExit:
		return "loop_exit"
	case KindFunctionCall:
		return "call"
	case KindFunctionReturn:
		return "return"
	}

	return "node"
}

func (g *Graph) node(kind NodeKind, st ast.Stmt) *Node {
	n := &Node{
		ID:    len(g.Nodes),
		Kind:  kind,
		Stmt:  st,
		Freed: map[string]bool{},
	}

	g.Nodes = append(g.Nodes, n)

	return n
}

// edge adds a directed edge; duplicates are permitted.
func (g *Graph) edge(from, to int) {
	g.Nodes[from].Succ = append(g.Nodes[from].Succ, to)
	g.Nodes[to].Pred = append(g.Nodes[to].Pred, from)
}

// buildCFG constructs the program CFG: Entry/Exit pair, Statement nodes
// for simple statements, Branch/Merge pairs for ifs, LoopHeader/LoopExit
// for whiles, FunctionCall/FunctionReturn brackets for user functions.
func (a *Analyzer) buildCFG(ctx context.Context, stmts []ast.Stmt) *Graph {
	g := &Graph{}

	entry := g.node(KindEntry, nil)
	g.Entry = entry.ID

	tail := entry.ID
	for _, st := range stmts {
		tail = g.buildStmt(tail, st)
	}

	exit := g.node(KindExit, nil)
	g.Exit = exit.ID
	g.edge(tail, exit.ID)

	tlog.SpanFromContext(ctx).Printw("cfg built", "nodes", len(g.Nodes))

	return g
}

// buildStmt appends the subgraph for st after node cur and returns the
// new tail node id.
func (g *Graph) buildStmt(cur int, st ast.Stmt) int {
	switch st := st.(type) {
	case *ast.Block:
		for _, s := range st.Stmts {
			cur = g.buildStmt(cur, s)
		}

		return cur
	case *ast.UnsafeBlock:
		for _, s := range st.Stmts {
			cur = g.buildStmt(cur, s)
		}

		return cur
	case *ast.IfStmt:
		branch := g.node(KindBranch, st)
		g.edge(cur, branch.ID)

		thenTail := g.buildStmt(branch.ID, st.Then)

		elseTail := branch.ID
		if st.Else != nil {
			elseTail = g.buildStmt(branch.ID, st.Else)
		}

		merge := g.node(KindMerge, nil)
		g.edge(thenTail, merge.ID)
		g.edge(elseTail, merge.ID)

		return merge.ID
	case *ast.WhileStmt:
		header := g.node(KindLoopHeader, st)
		g.edge(cur, header.ID)

		body := g.node(KindLoopBody, nil)
		g.edge(header.ID, body.ID)

		bodyTail := g.buildStmt(body.ID, st.Body)
		g.edge(bodyTail, header.ID) // back edge

		exit := g.node(KindLoopExit, nil)
		g.edge(header.ID, exit.ID)

		return exit.ID
	case *ast.SwitchStmt:
		branch := g.node(KindBranch, st)
		g.edge(cur, branch.ID)

		merge := g.node(KindMerge, nil)

		for _, c := range st.Cases {
			tail := branch.ID
			for _, s := range c.Body {
				tail = g.buildStmt(tail, s)
			}

			g.edge(tail, merge.ID)
		}

		if st.Default != nil {
			tail := branch.ID
			for _, s := range st.Default {
				tail = g.buildStmt(tail, s)
			}

			g.edge(tail, merge.ID)
		} else {
			g.edge(branch.ID, merge.ID)
		}

		return merge.ID
	case *ast.FunctionStmt:
		call := g.node(KindFunctionCall, st)
		g.edge(cur, call.ID)

		tail := call.ID
		for _, s := range st.Body {
			tail = g.buildStmt(tail, s)
		}

		ret := g.node(KindFunctionReturn, st)
		g.edge(tail, ret.ID)

		return ret.ID
	default:
		n := g.node(KindStatement, st)
		g.edge(cur, n.ID)

		return n.ID
	}
}

// dataflow runs the FIFO worklist to a fixpoint. The transfer function
// tracks the malloc-family definitions and frees; join is union over
// predecessors with Freed winning conflicts.
func (a *Analyzer) dataflow(ctx context.Context, g *Graph) {
	tr := tlog.SpanFromContext(ctx)

	queue := []int{g.Entry}

	queued := set.MakeBitmap(len(g.Nodes))
	queued.Set(g.Entry)

	steps := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		queued.Clear(id)

		n := g.Nodes[id]
		steps++

		in := map[string]Fact{}
		for _, p := range n.Pred {
			join(in, g.Nodes[p].Out)
		}

		n.In = in

		out := transfer(n, in)

		// a node whose Out is still nil has never been visited: its
		// successors are queued even when the computed map is empty
		if n.Out != nil && factsEqual(out, n.Out) {
			continue
		}

		n.Out = out

		for _, s := range n.Succ {
			if !queued.IsSet(s) {
				queued.Set(s)
				queue = append(queue, s)
			}
		}
	}

	tr.Printw("dataflow fixpoint", "nodes", len(g.Nodes), "steps", steps)
}

// join merges src into dst; on conflict Freed wins over Allocated.
func join(dst map[string]Fact, src map[string]Fact) {
	for k, v := range src {
		old, ok := dst[k]
		if !ok {
			dst[k] = v
			continue
		}

		if v.State == Freed && old.State != Freed {
			old.State = Freed
			dst[k] = old
		}
	}
}

func transfer(n *Node, in map[string]Fact) map[string]Fact {
	out := make(map[string]Fact, len(in))
	for k, v := range in {
		out[k] = v
	}

	st := n.Stmt

	if v, ok := st.(*ast.VarStmt); ok && v.Init != nil {
		if kind, ok := mallocKind(v.Init); ok {
			out[v.Name.Lexeme] = Fact{State: Allocated, IsArray: kind == "calloc"}
		}
	}

	if e, ok := st.(*ast.ExprStmt); ok {
		if name, ok := freeTarget(e.Expr); ok {
			f := out[name]
			f.State = Freed
			out[name] = f

			n.Freed[name] = true
		}

		if as, ok := e.Expr.(*ast.Assign); ok {
			if kind, ok := mallocKind(as.Value); ok {
				out[as.Name.Lexeme] = Fact{State: Allocated, IsArray: kind == "calloc"}
			}
		}
	}

	return out
}

// factsEqual compares allocation maps by (name, state, is_array, ref_count).
func factsEqual(a, b map[string]Fact) bool {
	if len(a) != len(b) {
		return false
	}

	for k, v := range a {
		w, ok := b[k]
		if !ok || v.State != w.State || v.IsArray != w.IsArray || v.RefCount != w.RefCount {
			return false
		}
	}

	return true
}

// flagFreedReads walks the stabilised CFG and warns on every node that
// reads a name whose in-state is Freed.
func (a *Analyzer) flagFreedReads(ctx context.Context, g *Graph) {
	for _, n := range g.Nodes {
		if n.Stmt == nil || len(n.In) == 0 {
			continue
		}

		for _, rd := range stmtReads(n.Stmt) {
			if f, ok := n.In[rd.Lexeme]; ok && f.State == Freed && !n.Freed[rd.Lexeme] {
				a.warn(ctx, "USE-AFTER-FREE", rd,
					errors.New("%q may be read after being freed on some path", rd.Lexeme).Error(),
					"A path through the control-flow graph frees it first.")
			}
		}
	}
}

// stmtReads collects variable reads of the statement itself, skipping
// compound children (they have their own nodes) and free() arguments.
func stmtReads(st ast.Stmt) (reads []token.Token) {
	switch st := st.(type) {
	case *ast.ExprStmt:
		reads = exprReads(reads, st.Expr)
	case *ast.PrintStmt:
		reads = exprReads(reads, st.Expr)
	case *ast.VarStmt:
		if st.Init != nil {
			reads = exprReads(reads, st.Init)
		}
	case *ast.ReturnStmt:
		if st.Value != nil {
			reads = exprReads(reads, st.Value)
		}
	case *ast.IfStmt:
		reads = exprReads(reads, st.Condition)
	case *ast.WhileStmt:
		reads = exprReads(reads, st.Condition)
	case *ast.SwitchStmt:
		reads = exprReads(reads, st.Condition)
	}

	return reads
}

func exprReads(reads []token.Token, e ast.Expr) []token.Token {
	switch e := e.(type) {
	case *ast.Variable:
		reads = append(reads, e.Name)
	case *ast.Assign:
		reads = exprReads(reads, e.Value)
	case *ast.Binary:
		reads = exprReads(reads, e.Left)
		reads = exprReads(reads, e.Right)
	case *ast.Unary:
		reads = exprReads(reads, e.Right)
	case *ast.Logical:
		reads = exprReads(reads, e.Left)
		reads = exprReads(reads, e.Right)
	case *ast.Grouping:
		reads = exprReads(reads, e.Inner)
	case *ast.Call:
		if _, ok := freeTarget(e); ok {
			return reads
		}

		for _, arg := range e.Args {
			reads = exprReads(reads, arg)
		}
	case *ast.ArrayLiteral:
		for _, el := range e.Elems {
			reads = exprReads(reads, el)
		}
	case *ast.DictLiteral:
		for _, p := range e.Pairs {
			reads = exprReads(reads, p.Key)
			reads = exprReads(reads, p.Value)
		}
	case *ast.IndexGet:
		reads = exprReads(reads, e.Container)
		reads = exprReads(reads, e.Index)
	case *ast.IndexSet:
		reads = exprReads(reads, e.Container)
		reads = exprReads(reads, e.Index)
		reads = exprReads(reads, e.Value)
	}

	return reads
}

func freeTarget(e ast.Expr) (string, bool) {
	c, ok := e.(*ast.Call)
	if !ok || len(c.Args) != 1 {
		return "", false
	}

	v, ok := c.Callee.(*ast.Variable)
	if !ok || v.Name.Lexeme != "free" {
		return "", false
	}

	t, ok := c.Args[0].(*ast.Variable)
	if !ok {
		return "", false
	}

	return t.Name.Lexeme, true
}
