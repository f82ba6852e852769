package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/lexer"
	"github.com/boxlang/box/compiler/parser"
	"github.com/boxlang/box/compiler/token"
)

func parse(t *testing.T, src string) []ast.Stmt {
	t.Helper()

	ctx := context.Background()

	tokens, err := lexer.New(src).Scan(ctx)
	require.NoError(t, err)

	stmts, err := parser.New(src, tokens).Parse(ctx)
	require.NoError(t, err)

	return stmts
}

func optimize(t *testing.T, src string) []ast.Stmt {
	t.Helper()

	return Optimize(context.Background(), DefaultConfig(3), parse(t, src))
}

func initNum(t *testing.T, st ast.Stmt) float64 {
	t.Helper()

	v, ok := st.(*ast.VarStmt)
	require.True(t, ok)

	l, ok := v.Init.(*ast.Literal)
	require.True(t, ok)
	require.Equal(t, token.LitNumber, l.Value.Kind)

	return l.Value.Num
}

func TestConstantFoldingArithmetic(t *testing.T) {
	stmts := Optimize(context.Background(), Config{ConstantFolding: true},
		parse(t, "var x = 21 + 21; var y = 2 * 3 + 4; var z = 10 % 3;"))

	assert.Equal(t, 42.0, initNum(t, stmts[0]))
	assert.Equal(t, 10.0, initNum(t, stmts[1]))
	assert.Equal(t, 1.0, initNum(t, stmts[2]))
}

func TestDivisionByLiteralZeroStaysUnfolded(t *testing.T) {
	stmts := optimize(t, "print 1 / 0;")

	p := stmts[0].(*ast.PrintStmt)
	require.IsType(t, &ast.Binary{}, p.Expr)
}

func TestComparisonFolding(t *testing.T) {
	stmts := Optimize(context.Background(), Config{ConstantFolding: true},
		parse(t, `var b = 1 < 2; var s = "a" == "a";`))

	l := stmts[0].(*ast.VarStmt).Init.(*ast.Literal)
	assert.Equal(t, true, l.Value.Bool)

	l = stmts[1].(*ast.VarStmt).Init.(*ast.Literal)
	assert.Equal(t, true, l.Value.Bool)
}

func TestIfTrueCollapses(t *testing.T) {
	stmts := optimize(t, "if (true) { print 1; } else { print 2; }")

	require.Len(t, stmts, 1)
	require.IsType(t, &ast.Block{}, stmts[0])
}

func TestIfFalseWithoutElseDrops(t *testing.T) {
	stmts := optimize(t, "if (false) { print 1; }")

	assert.Empty(t, stmts)
}

func TestWhileFalseEliminated(t *testing.T) {
	stmts := optimize(t, "while (false) { print 1; }")

	assert.Empty(t, stmts)
}

func TestShortCircuitFolding(t *testing.T) {
	stmts := Optimize(context.Background(), Config{ConstantFolding: true},
		parse(t, "var a = false and f(); var b = true or f();"))

	l := stmts[0].(*ast.VarStmt).Init.(*ast.Literal)
	assert.Equal(t, false, l.Value.Bool)

	l = stmts[1].(*ast.VarStmt).Init.(*ast.Literal)
	assert.Equal(t, true, l.Value.Bool)
}

func TestAlgebraicIdentities(t *testing.T) {
	stmts := parse(t, "var y = x + 0; var z = x * 1; var w = x / x; var q = x * 0;")

	out := Optimize(context.Background(), Config{Level: 1, Algebraic: true}, stmts)

	require.IsType(t, &ast.Variable{}, out[0].(*ast.VarStmt).Init)
	require.IsType(t, &ast.Variable{}, out[1].(*ast.VarStmt).Init)

	l := out[2].(*ast.VarStmt).Init.(*ast.Literal)
	assert.Equal(t, 1.0, l.Value.Num)

	l = out[3].(*ast.VarStmt).Init.(*ast.Literal)
	assert.Equal(t, 0.0, l.Value.Num)
}

func TestMulTwoBecomesSelfAdd(t *testing.T) {
	stmts := parse(t, "var y = x * 2;")

	out := Optimize(context.Background(), Config{Algebraic: true}, stmts)

	b := out[0].(*ast.VarStmt).Init.(*ast.Binary)
	assert.Equal(t, token.PLUS, b.Op.Kind)

	require.IsType(t, &ast.Variable{}, b.Left)
	require.IsType(t, &ast.Variable{}, b.Right)
}

func TestStrengthReductionModulo(t *testing.T) {
	stmts := parse(t, "var y = x % 4;")

	out := Optimize(context.Background(), Config{Strength: true}, stmts)

	// x % 4 -> x - (x/2/2)*4
	b := out[0].(*ast.VarStmt).Init.(*ast.Binary)
	assert.Equal(t, token.MINUS, b.Op.Kind)
}

func TestDeadVariableDropped(t *testing.T) {
	stmts := parse(t, "var unused = 1; var kept = f(); print 2;")

	out := Optimize(context.Background(), Config{DeadCode: true}, stmts)

	require.Len(t, out, 2)
	assert.Equal(t, "kept", out[0].(*ast.VarStmt).Name.Lexeme)
}

func TestReadVariableKept(t *testing.T) {
	stmts := parse(t, "var x = 1; print x;")

	out := Optimize(context.Background(), Config{DeadCode: true}, stmts)

	require.Len(t, out, 2)
}

func TestDoubleNegationPeephole(t *testing.T) {
	stmts := parse(t, "var y = --x; var b = !!c;")

	out := Optimize(context.Background(), Config{Peephole: true}, stmts)

	require.IsType(t, &ast.Variable{}, out[0].(*ast.VarStmt).Init)
	require.IsType(t, &ast.Variable{}, out[1].(*ast.VarStmt).Init)
}

func TestLoopPassesAreInert(t *testing.T) {
	src := "var i = 0; while (i < 4) { i = i + 1; }"
	stmts := parse(t, src)

	out := Optimize(context.Background(), Config{Loops: true, InlineFunctions: true}, stmts)

	assert.Equal(t, stmts, out)
}

func TestFixpointIdempotence(t *testing.T) {
	stmts := parse(t, "var x = 1 + 2 * 3; if (true) { print x; } while (false) { print 0; }")

	once := Optimize(context.Background(), DefaultConfig(3), stmts)
	twice := Optimize(context.Background(), DefaultConfig(3), once)

	assert.Equal(t, once, twice)
}

func TestLevelZeroDisablesEverything(t *testing.T) {
	stmts := parse(t, "var x = 1 + 2;")

	out := Optimize(context.Background(), DefaultConfig(0), stmts)

	require.IsType(t, &ast.Binary{}, out[0].(*ast.VarStmt).Init)
}
