package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxlang/box/compiler/ast"
)

func write(t *testing.T, dir, name, src string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	return path
}

func TestSingleFile(t *testing.T) {
	dir := t.TempDir()
	main := write(t, dir, "main.box", "print 1;\n")

	stmts, src, err := New(dir).ResolveFile(context.Background(), main)
	require.NoError(t, err)

	assert.Len(t, stmts, 1)
	assert.Equal(t, "print 1;\n", src)
}

func TestImportSplicesStatements(t *testing.T) {
	dir := t.TempDir()

	write(t, dir, "lib.box", "var shared = 1;\n")
	main := write(t, dir, "main.box", "import \"lib.box\";\nprint shared;\n")

	stmts, _, err := New(dir).ResolveFile(context.Background(), main)
	require.NoError(t, err)

	require.Len(t, stmts, 2)
	require.IsType(t, &ast.VarStmt{}, stmts[0])
	require.IsType(t, &ast.PrintStmt{}, stmts[1])
}

func TestImportOnlyOnce(t *testing.T) {
	dir := t.TempDir()

	write(t, dir, "lib.box", "var shared = 1;\n")
	write(t, dir, "a.box", "import \"lib.box\";\n")
	main := write(t, dir, "main.box", "import \"a.box\";\nimport \"lib.box\";\nprint shared;\n")

	stmts, _, err := New(dir).ResolveFile(context.Background(), main)
	require.NoError(t, err)

	require.Len(t, stmts, 2)
}

func TestImportCycleIsFatal(t *testing.T) {
	dir := t.TempDir()

	write(t, dir, "a.box", "import \"b.box\";\n")
	write(t, dir, "b.box", "import \"a.box\";\n")
	main := write(t, dir, "main.box", "import \"a.box\";\n")

	_, _, err := New(dir).ResolveFile(context.Background(), main)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import cycle")
	assert.Contains(t, err.Error(), "a.box")
	assert.Contains(t, err.Error(), "b.box")
}

func TestMissingImport(t *testing.T) {
	dir := t.TempDir()
	main := write(t, dir, "main.box", "import \"nope.box\";\n")

	_, _, err := New(dir).ResolveFile(context.Background(), main)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import not found")
}

func TestLexErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	main := write(t, dir, "main.box", "var x = @;\n")

	_, _, err := New(dir).ResolveFile(context.Background(), main)
	require.Error(t, err)
}
