package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxlang/box/compiler/lexer"
	"github.com/boxlang/box/compiler/parser"
)

func buildGraph(t *testing.T, src string) (*Analyzer, *Graph) {
	t.Helper()

	ctx := context.Background()

	tokens, err := lexer.New(src).Scan(ctx)
	require.NoError(t, err)

	stmts, err := parser.New(src, tokens).Parse(ctx)
	require.NoError(t, err)

	a := &Analyzer{
		src:    src,
		strict: true,
		allocs: map[string]*AllocationInfo{},
		ptrs:   map[string]*PointerInfo{},
	}

	return a, a.buildCFG(ctx, stmts)
}

func countKind(g *Graph, k NodeKind) (n int) {
	for _, nd := range g.Nodes {
		if nd.Kind == k {
			n++
		}
	}

	return n
}

func TestLinearGraph(t *testing.T) {
	_, g := buildGraph(t, "var x = 1; print x;")

	assert.Equal(t, 1, countKind(g, KindEntry))
	assert.Equal(t, 1, countKind(g, KindExit))
	assert.Equal(t, 2, countKind(g, KindStatement))

	// entry -> var -> print -> exit
	assert.Equal(t, []int{g.Exit}, g.Nodes[g.Exit-1].Succ)
}

func TestIfGraphHasBranchAndMerge(t *testing.T) {
	_, g := buildGraph(t, "if (1 < 2) { print 1; } else { print 2; }")

	assert.Equal(t, 1, countKind(g, KindBranch))
	assert.Equal(t, 1, countKind(g, KindMerge))

	for _, n := range g.Nodes {
		if n.Kind == KindMerge {
			assert.Len(t, n.Pred, 2)
		}
	}
}

func TestWhileGraphHasBackEdge(t *testing.T) {
	_, g := buildGraph(t, "while (1 < 2) { print 1; }")

	assert.Equal(t, 1, countKind(g, KindLoopHeader))
	assert.Equal(t, 1, countKind(g, KindLoopExit))

	var header *Node
	for _, n := range g.Nodes {
		if n.Kind == KindLoopHeader {
			header = n
		}
	}

	require.NotNil(t, header)

	// the body tail loops back, so the header has two predecessors
	assert.GreaterOrEqual(t, len(header.Pred), 2)
	assert.Len(t, header.Succ, 2)
}

func TestFunctionBrackets(t *testing.T) {
	_, g := buildGraph(t, "fun f() { print 1; }")

	assert.Equal(t, 1, countKind(g, KindFunctionCall))
	assert.Equal(t, 1, countKind(g, KindFunctionReturn))
}

func TestDataflowFreedWinsAtJoin(t *testing.T) {
	a, g := buildGraph(t, `var p = malloc(8);
if (1 < 2) {
	free(p);
}
print 1;
`)

	a.dataflow(context.Background(), g)

	// at the exit the conservative join keeps p freed
	exit := g.Nodes[g.Exit]
	f, ok := exit.In["p"]

	require.True(t, ok)
	assert.Equal(t, Freed, f.State)
}

func TestDataflowReachesFixpoint(t *testing.T) {
	a, g := buildGraph(t, `var p = malloc(8);
while (1 < 2) {
	print 1;
}
free(p);
`)

	a.dataflow(context.Background(), g)

	exit := g.Nodes[g.Exit]
	f, ok := exit.In["p"]

	require.True(t, ok)
	assert.Equal(t, Freed, f.State)
}

func TestFreedReadWarning(t *testing.T) {
	a, g := buildGraph(t, `var p = malloc(8);
if (1 < 2) {
	free(p);
}
print p;
`)

	ctx := context.Background()

	a.dataflow(ctx, g)
	a.flagFreedReads(ctx, g)

	require.NotEmpty(t, a.warns)
	assert.Equal(t, "USE-AFTER-FREE", a.warns[0].Phase)
}

func TestPathLeakWarning(t *testing.T) {
	rep := analyze(t, `unsafe {
fun f() {
	var p = malloc(8);
	if (1 < 2) {
		free(p);
	}
}
}
`)

	assert.True(t, rep.OK)

	found := false
	for _, w := range rep.Warnings {
		if w.Phase == "MEMORY LEAK" {
			found = true
		}
	}

	assert.True(t, found)
}
