package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/lexer"
	"github.com/boxlang/box/compiler/token"
)

func parse(t *testing.T, src string) []ast.Stmt {
	t.Helper()

	stmts, err := parseErr(src)
	require.NoError(t, err)

	return stmts
}

func parseErr(src string) ([]ast.Stmt, error) {
	ctx := context.Background()

	tokens, err := lexer.New(src).Scan(ctx)
	if err != nil {
		return nil, err
	}

	return New(src, tokens).Parse(ctx)
}

func TestEmptyProgram(t *testing.T) {
	stmts := parse(t, "// nothing here\n")

	assert.Empty(t, stmts)
}

func TestVarStatement(t *testing.T) {
	stmts := parse(t, "var x = 1; var y;")

	require.Len(t, stmts, 2)

	v := stmts[0].(*ast.VarStmt)
	assert.Equal(t, "x", v.Name.Lexeme)
	require.IsType(t, &ast.Literal{}, v.Init)

	assert.Nil(t, stmts[1].(*ast.VarStmt).Init)
}

func TestPrecedence(t *testing.T) {
	stmts := parse(t, "var x = 1 + 2 * 3;")

	v := stmts[0].(*ast.VarStmt)

	add := v.Init.(*ast.Binary)
	assert.Equal(t, token.PLUS, add.Op.Kind)

	mul := add.Right.(*ast.Binary)
	assert.Equal(t, token.STAR, mul.Op.Kind)
}

func TestLeftAssociativity(t *testing.T) {
	stmts := parse(t, "var x = 1 - 2 - 3;")

	outer := stmts[0].(*ast.VarStmt).Init.(*ast.Binary)

	inner, ok := outer.Left.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, token.MINUS, inner.Op.Kind)
}

func TestAssignmentRightAssociative(t *testing.T) {
	stmts := parse(t, "var a; var b; a = b = 1;")

	as := stmts[2].(*ast.ExprStmt).Expr.(*ast.Assign)
	assert.Equal(t, "a", as.Name.Lexeme)

	require.IsType(t, &ast.Assign{}, as.Value)
}

func TestInvalidAssignmentTarget(t *testing.T) {
	_, err := parseErr("1 = 2;")
	require.Error(t, err)

	var el ErrorList
	require.ErrorAs(t, err, &el)
	assert.Contains(t, el.Diags[0].Msg, "Invalid assignment target")
}

func TestIndexAssignmentTarget(t *testing.T) {
	stmts := parse(t, "var a = [1]; a[0] = 2;")

	require.IsType(t, &ast.IndexSet{}, stmts[1].(*ast.ExprStmt).Expr)
}

func TestForDesugarsToWhile(t *testing.T) {
	stmts := parse(t, "for (var i = 0; i < 3; i = i + 1) print i;")

	blk := stmts[0].(*ast.Block)
	require.Len(t, blk.Stmts, 2)

	require.IsType(t, &ast.VarStmt{}, blk.Stmts[0])

	loop := blk.Stmts[1].(*ast.WhileStmt)
	body := loop.Body.(*ast.Block)

	require.Len(t, body.Stmts, 2)
	require.IsType(t, &ast.PrintStmt{}, body.Stmts[0])
	require.IsType(t, &ast.ExprStmt{}, body.Stmts[1])
}

func TestForWithoutClausesLoopsForever(t *testing.T) {
	stmts := parse(t, "for (;;) break;")

	loop := stmts[0].(*ast.WhileStmt)

	cond := loop.Condition.(*ast.Literal)
	assert.Equal(t, true, cond.Value.Bool)
}

func TestSwitchShape(t *testing.T) {
	stmts := parse(t, `
switch (x) {
	case 1: print 1; break;
	case 2: print 2;
	default: print 0;
}
`)

	sw := stmts[0].(*ast.SwitchStmt)

	require.Len(t, sw.Cases, 2)
	require.Len(t, sw.Cases[0].Body, 2)
	require.NotNil(t, sw.Default)
}

func TestSwitchCaseAfterDefault(t *testing.T) {
	_, err := parseErr("switch (x) { default: case 1: }")
	require.Error(t, err)
}

func TestSwitchTwoDefaults(t *testing.T) {
	_, err := parseErr("switch (x) { default: default: }")
	require.Error(t, err)
}

func TestReturnOutsideFunction(t *testing.T) {
	_, err := parseErr("return 1;")
	require.Error(t, err)

	var el ErrorList
	require.ErrorAs(t, err, &el)
	assert.Contains(t, el.Diags[0].Msg, "outside of a function")
}

func TestBreakOutsideLoop(t *testing.T) {
	_, err := parseErr("break;")
	require.Error(t, err)
}

func TestBreakInsideSwitchIsLegal(t *testing.T) {
	parse(t, "switch (1) { case 1: break; }")
}

func TestLLVMInlineRequiresUnsafe(t *testing.T) {
	_, err := parseErr(`llvm_inline("ret void");`)
	require.Error(t, err)

	parse(t, `unsafe { llvm_inline("ret void"); }`)
}

func TestDuplicateParameter(t *testing.T) {
	_, err := parseErr("fun f(a, a) {}")
	require.Error(t, err)

	var el ErrorList
	require.ErrorAs(t, err, &el)
	assert.Contains(t, el.Diags[0].Msg, "Duplicate parameter")
}

func TestTrailingCommaRejected(t *testing.T) {
	for _, src := range []string{
		"f(1, 2,);",
		"var a = [1, 2,];",
		"var d = {1: 2,};",
		"fun f(a, b,) {}",
	} {
		_, err := parseErr(src)
		require.Error(t, err, "src %q", src)
	}
}

func TestArgumentCountBoundary(t *testing.T) {
	args := make([]string, 255)
	for i := range args {
		args[i] = "1"
	}

	parse(t, "f("+strings.Join(args, ",")+");")

	_, err := parseErr("f(" + strings.Join(append(args, "1"), ",") + ");")
	require.Error(t, err)
}

func TestBuiltinsAsCallees(t *testing.T) {
	stmts := parse(t, "var p = malloc(8); free(p); var n = len([1]);")

	call := stmts[0].(*ast.VarStmt).Init.(*ast.Call)

	callee := call.Callee.(*ast.Variable)
	assert.Equal(t, "malloc", callee.Name.Lexeme)
}

func TestMultipleErrorsCollected(t *testing.T) {
	_, err := parseErr("var ; print 1; var ;")
	require.Error(t, err)

	var el ErrorList
	require.ErrorAs(t, err, &el)
	assert.GreaterOrEqual(t, len(el.Diags), 2)
}

func TestUnsafeBlock(t *testing.T) {
	stmts := parse(t, "unsafe { var p = malloc(8); }")

	ub := stmts[0].(*ast.UnsafeBlock)
	require.Len(t, ub.Stmts, 1)
}

func TestImportStatement(t *testing.T) {
	stmts := parse(t, `import "lib.box";`)

	imp := stmts[0].(*ast.ImportStmt)
	assert.Equal(t, "lib.box", imp.Path)
}

func TestNestedGrouping(t *testing.T) {
	stmts := parse(t, "var x = ((1));")

	g := stmts[0].(*ast.VarStmt).Init.(*ast.Grouping)
	require.IsType(t, &ast.Grouping{}, g.Inner)
}

func TestLogicalOperators(t *testing.T) {
	stmts := parse(t, "var x = true and false or true;")

	or := stmts[0].(*ast.VarStmt).Init.(*ast.Logical)
	assert.Equal(t, token.OR, or.Op.Kind)

	and := or.Left.(*ast.Logical)
	assert.Equal(t, token.AND, and.Op.Kind)
}
