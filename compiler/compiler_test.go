package compiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxlang/box/compiler/analyzer"
)

func source(t *testing.T, src string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "main.box")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	return path
}

func TestHelloNumber(t *testing.T) {
	path := source(t, "print 21 + 21;\n")

	module, err := CompileToIR(context.Background(), path, DefaultOptions())
	require.NoError(t, err)

	out := string(module)

	assert.Contains(t, out, "define i32 @main()")
	// 42.0 folded at compile time
	assert.Contains(t, out, "0x4045000000000000")
}

func TestFactorialCompiles(t *testing.T) {
	path := source(t, `fun f(n){ if(n<=1){ return 1; } return n*f(n-1); }
print f(6);
`)

	module, err := CompileToIR(context.Background(), path, DefaultOptions())
	require.NoError(t, err)

	assert.Contains(t, string(module), "define double @box_f(double %arg0)")
}

func TestLeakFailsCompilation(t *testing.T) {
	path := source(t, "var p = malloc(16);\n")

	_, err := CompileToIR(context.Background(), path, DefaultOptions())
	require.Error(t, err)

	var ae analyzer.Error
	require.ErrorAs(t, err, &ae)

	require.Len(t, ae.Report.Errors, 1)
	assert.Equal(t, "MEMORY LEAK", ae.Report.Errors[0].Phase)
}

func TestUnsafeLeakCompilesWithWarning(t *testing.T) {
	path := source(t, "unsafe { var p = malloc(8); }\n")

	opts := DefaultOptions()
	opts.NoWarnings = true

	_, err := CompileToIR(context.Background(), path, opts)
	require.NoError(t, err)
}

func TestImportedProgram(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.box"), []byte("var answer = 42;\n"), 0o644))

	main := filepath.Join(dir, "main.box")
	require.NoError(t, os.WriteFile(main, []byte("import \"lib.box\";\nprint answer;\n"), 0o644))

	module, err := CompileToIR(context.Background(), main, DefaultOptions())
	require.NoError(t, err)

	assert.Contains(t, string(module), "@printf")
}

func TestNoOptimizeKeepsArithmetic(t *testing.T) {
	path := source(t, "print 21 + 21;\n")

	opts := DefaultOptions()
	opts.NoOptimize = true

	module, err := CompileToIR(context.Background(), path, opts)
	require.NoError(t, err)

	assert.Contains(t, string(module), "fadd double")
}

func TestDeterministicIR(t *testing.T) {
	path := source(t, `var a = [1,2,3,4,5]; var s = 0; var i = 0;
while(i<len(a)){ s = s+a[i]; i = i+1; } print s;
`)

	first, err := CompileToIR(context.Background(), path, DefaultOptions())
	require.NoError(t, err)

	second, err := CompileToIR(context.Background(), path, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
