package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringConstPooling(t *testing.T) {
	m := NewModule()

	a := m.StringConst("hello")
	b := m.StringConst("hello")
	c := m.StringConst("world")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	out := string(m.Bytes())
	assert.Equal(t, 1, strings.Count(out, `c"hello\00"`))
}

func TestStringEscaping(t *testing.T) {
	m := NewModule()
	m.StringConst("a\nb\"c\\d")

	out := string(m.Bytes())
	assert.Contains(t, out, `c"a\0Ab\22c\5Cd\00"`)
}

func TestFloatFormatting(t *testing.T) {
	assert.Equal(t, "0x4045000000000000", Float(42))
	assert.Equal(t, "0x0000000000000000", Float(0))
	assert.Equal(t, "0xBFF0000000000000", Float(-1))
}

func TestBoolFormatting(t *testing.T) {
	assert.Equal(t, "1", Bool(true))
	assert.Equal(t, "0", Bool(false))
}

func TestFunctionAssembly(t *testing.T) {
	m := NewModule()

	f := m.NewFunc("main", "i32")
	f.Emit("ret i32 0")

	out := string(m.Bytes())

	require.Contains(t, out, "define i32 @main() {")
	assert.Contains(t, out, "entry:\n  ret i32 0\n}")
}

func TestBlocksAndTermination(t *testing.T) {
	m := NewModule()

	f := m.NewFunc("box_f", "double", "double %arg0")

	assert.False(t, f.Terminated())

	b := f.NewBlock("then")
	f.Emit("br label %%%s", b.Label)

	assert.True(t, f.Terminated())

	f.SetBlock(b)
	f.Emit("ret double 0x0000000000000000")

	out := string(m.Bytes())
	assert.Contains(t, out, "define double @box_f(double %arg0) {")
	assert.Contains(t, out, "then.1:")
}

func TestRegistersAreUnique(t *testing.T) {
	m := NewModule()
	f := m.NewFunc("main", "i32")

	a := f.Reg()
	b := f.Reg()

	assert.NotEqual(t, a, b)
}

func TestDeclaresPresent(t *testing.T) {
	out := string(NewModule().Bytes())

	for _, d := range []string{
		"@printf", "@scanf", "@malloc", "@free", "@memset", "@exit",
		"@strcmp", "@fopen", "@fclose", "@fgets", "@fputs", "@fread",
		"@fwrite", "@fseek", "@ftell", "@rewind", "@feof", "@remove",
		"@strlen", "@strcpy", "@strcat", "@access",
	} {
		assert.Contains(t, out, "declare", d)
		assert.Contains(t, out, d)
	}

	assert.Contains(t, out, "@stdin = external global ptr")
	assert.Contains(t, out, "@stdout = external global ptr")
}
