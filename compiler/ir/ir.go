// Package ir builds a textual typed IR module in the LLVM-compatible
// assembly dialect (opaque pointers). The produced bytes are handed to
// the native backend verbatim; any deviation from the dialect is a
// compatibility bug.
package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nikandfor/hacked/hfmt"
)

type (
	// Module accumulates named types, external declarations, string
	// constants and function definitions.
	Module struct {
		globals []byte

		funcs []*Func

		strs map[string]string
		nstr int
	}

	// Func is one function definition under construction.
	Func struct {
		header string

		Blocks []*Block
		cur    *Block

		ntmp int
		nlbl int
	}

	// Block is a labelled basic block: a label and a list of
	// instruction lines.
	Block struct {
		Label string
		Lines []string
	}
)

const header = `; ModuleID = 'box_module'

%ArrayStruct = type { i64, ptr }
%DictEntry = type { double, double, i1 }
%DictStruct = type { i64, ptr }

@stdin = external global ptr
@stdout = external global ptr

declare i32 @printf(ptr, ...)
declare i32 @scanf(ptr, ...)
declare ptr @malloc(i64)
declare ptr @realloc(ptr, i64)
declare void @free(ptr)
declare ptr @memset(ptr, i32, i64)
declare void @exit(i32)
declare i32 @strcmp(ptr, ptr)
declare ptr @fopen(ptr, ptr)
declare i32 @fclose(ptr)
declare ptr @fgets(ptr, i32, ptr)
declare i32 @fputs(ptr, ptr)
declare i64 @fread(ptr, i64, i64, ptr)
declare i64 @fwrite(ptr, i64, i64, ptr)
declare i32 @fseek(ptr, i64, i32)
declare i64 @ftell(ptr)
declare void @rewind(ptr)
declare i32 @feof(ptr)
declare i32 @remove(ptr)
declare i64 @strlen(ptr)
declare ptr @strcpy(ptr, ptr)
declare ptr @strcat(ptr, ptr)
declare i32 @access(ptr, i32)
`

func NewModule() *Module {
	return &Module{
		strs: map[string]string{},
	}
}

// StringConst interns s as a private global and returns its name. The
// pool is mutable and lives for one compilation.
func (m *Module) StringConst(s string) string {
	if g, ok := m.strs[s]; ok {
		return g
	}

	g := "@.str." + strconv.Itoa(m.nstr)
	m.nstr++

	raw := append([]byte(s), 0)

	m.globals = hfmt.Appendf(m.globals, "%s = private unnamed_addr constant [%d x i8] c\"%s\"\n",
		g, len(raw), escape(raw))

	m.strs[s] = g

	return g
}

// NewFunc opens a function definition. params are full "type %name"
// strings.
func (m *Module) NewFunc(name, ret string, params ...string) *Func {
	f := &Func{
		header: "define " + ret + " @" + name + "(" + strings.Join(params, ", ") + ")",
	}

	entry := &Block{Label: "entry"}
	f.Blocks = []*Block{entry}
	f.cur = entry

	m.funcs = append(m.funcs, f)

	return f
}

// Reg returns a fresh temporary register name.
func (f *Func) Reg() string {
	f.ntmp++

	return "%t" + strconv.Itoa(f.ntmp)
}

// NewBlock creates a labelled block without making it current.
func (f *Func) NewBlock(prefix string) *Block {
	f.nlbl++

	b := &Block{Label: prefix + "." + strconv.Itoa(f.nlbl)}
	f.Blocks = append(f.Blocks, b)

	return b
}

func (f *Func) SetBlock(b *Block) {
	f.cur = b
}

func (f *Func) Cur() *Block {
	return f.cur
}

// Emit appends one instruction line to the current block.
func (f *Func) Emit(format string, args ...interface{}) {
	line := string(hfmt.Appendf(nil, format, args...))

	f.cur.Lines = append(f.cur.Lines, line)
}

// Terminated reports whether the current block already ends with a
// terminator instruction.
func (f *Func) Terminated() bool {
	if len(f.cur.Lines) == 0 {
		return false
	}

	last := strings.TrimSpace(f.cur.Lines[len(f.cur.Lines)-1])

	return strings.HasPrefix(last, "ret ") || strings.HasPrefix(last, "br ") || last == "unreachable"
}

// Bytes assembles the whole module.
func (m *Module) Bytes() []byte {
	b := []byte(header)

	if len(m.globals) > 0 {
		b = append(b, '\n')
		b = append(b, m.globals...)
	}

	for _, f := range m.funcs {
		b = append(b, '\n')
		b = append(b, f.header...)
		b = append(b, " {\n"...)

		for i, blk := range f.Blocks {
			if i != 0 {
				b = append(b, '\n')
			}

			b = append(b, blk.Label...)
			b = append(b, ":\n"...)

			for _, line := range blk.Lines {
				b = append(b, "  "...)
				b = append(b, line...)
				b = append(b, '\n')
			}
		}

		b = append(b, "}\n"...)
	}

	return b
}

// Float formats a double constant in the hexadecimal bit-pattern form,
// which round-trips exactly through the IR parser.
func Float(v float64) string {
	return fmt.Sprintf("0x%016X", math.Float64bits(v))
}

// Bool formats an i1 constant.
func Bool(v bool) string {
	if v {
		return "1"
	}

	return "0"
}

// escape renders raw bytes in the c"..." form.
func escape(raw []byte) string {
	var sb strings.Builder

	for _, c := range raw {
		if c >= 0x20 && c < 0x7f && c != '"' && c != '\\' {
			sb.WriteByte(c)
			continue
		}

		const hex = "0123456789ABCDEF"

		sb.WriteByte('\\')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0xf])
	}

	return sb.String()
}
