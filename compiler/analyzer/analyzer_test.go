package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxlang/box/compiler/lexer"
	"github.com/boxlang/box/compiler/parser"
)

func analyze(t *testing.T, src string) Report {
	t.Helper()

	ctx := context.Background()

	tokens, err := lexer.New(src).Scan(ctx)
	require.NoError(t, err)

	stmts, err := parser.New(src, tokens).Parse(ctx)
	require.NoError(t, err)

	return Analyze(ctx, src, stmts)
}

func TestCleanProgramPasses(t *testing.T) {
	rep := analyze(t, `
var p = malloc(16);
free(p);
`)

	assert.True(t, rep.OK)
	assert.Empty(t, rep.Errors)
}

func TestLeakIsFatal(t *testing.T) {
	rep := analyze(t, "var p = malloc(16);")

	require.False(t, rep.OK)
	require.Len(t, rep.Errors, 1)

	e := rep.Errors[0]
	assert.Equal(t, "MEMORY LEAK", e.Phase)
	assert.Equal(t, 1, e.Line)
	assert.Equal(t, 5, e.Column)
}

func TestDoubleFreeIsFatal(t *testing.T) {
	rep := analyze(t, `var p = malloc(8);
free(p);
free(p);
`)

	require.False(t, rep.OK)
	require.Len(t, rep.Errors, 1)

	e := rep.Errors[0]
	assert.Equal(t, "DOUBLE-FREE", e.Phase)
	assert.Equal(t, 3, e.Line)
	assert.Contains(t, e.Hint, "line 2")
}

func TestUnsafeDemotesToWarning(t *testing.T) {
	rep := analyze(t, "unsafe { var p = malloc(8); }")

	assert.True(t, rep.OK)
	assert.Empty(t, rep.Errors)

	require.NotEmpty(t, rep.Warnings)
	assert.Equal(t, "MEMORY LEAK", rep.Warnings[0].Phase)
}

func TestUseAfterFree(t *testing.T) {
	rep := analyze(t, `var p = malloc(8);
free(p);
print p;
`)

	require.False(t, rep.OK)
	assert.Equal(t, "USE-AFTER-FREE", rep.Errors[0].Phase)
}

func TestInvalidFree(t *testing.T) {
	rep := analyze(t, `var x = 1;
free(x);
`)

	require.False(t, rep.OK)
	assert.Equal(t, "INVALID FREE", rep.Errors[0].Phase)
}

func TestFreeOfNonVariable(t *testing.T) {
	rep := analyze(t, "free(1 + 2);")

	require.False(t, rep.OK)
	assert.Equal(t, "INVALID FREE", rep.Errors[0].Phase)
}

func TestDerefAfterFree(t *testing.T) {
	rep := analyze(t, `var p = malloc(8);
free(p);
var x = deref(p);
`)

	require.False(t, rep.OK)
	assert.Equal(t, "USE-AFTER-FREE", rep.Errors[0].Phase)
}

func TestDanglingAliasDeref(t *testing.T) {
	rep := analyze(t, `var p = malloc(8);
var q = addr_of(p);
free(p);
var x = deref(q);
`)

	require.False(t, rep.OK)

	found := false
	for _, e := range rep.Errors {
		if e.Phase == "USE-AFTER-FREE" {
			found = true
		}
	}

	assert.True(t, found)
}

// a variable freed in only one branch reverts to allocated after the
// join, so the program still leaks overall
func TestBranchFreeReverts(t *testing.T) {
	rep := analyze(t, `var p = malloc(8);
if (1 < 2) {
	free(p);
}
`)

	require.False(t, rep.OK)
	assert.Equal(t, "MEMORY LEAK", rep.Errors[0].Phase)
}

func TestFreeOnBothBranchesPasses(t *testing.T) {
	rep := analyze(t, `var p = malloc(8);
if (1 < 2) {
	free(p);
} else {
	free(p);
}
`)

	assert.True(t, rep.OK)
}

func TestFunctionLeak(t *testing.T) {
	rep := analyze(t, `fun f() {
	var p = malloc(8);
}
`)

	require.False(t, rep.OK)
	assert.Equal(t, "MEMORY LEAK", rep.Errors[0].Phase)
}

func TestFunctionBalanced(t *testing.T) {
	rep := analyze(t, `fun f() {
	var p = malloc(8);
	free(p);
}
`)

	assert.True(t, rep.OK)
}

func TestReassignmentLeak(t *testing.T) {
	rep := analyze(t, `var p = malloc(8);
p = malloc(16);
free(p);
`)

	require.False(t, rep.OK)
	assert.Equal(t, "MEMORY LEAK", rep.Errors[0].Phase)
}

func TestNonMemoryProgramPasses(t *testing.T) {
	rep := analyze(t, `
var s = 0;
var i = 0;
while (i < 10) {
	s = s + i;
	i = i + 1;
}
print s;
`)

	assert.True(t, rep.OK)
	assert.Empty(t, rep.Warnings)
}
