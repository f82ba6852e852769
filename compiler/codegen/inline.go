package codegen

import (
	"context"
	"strings"

	"github.com/boxlang/box/compiler/ast"
)

// genInline substitutes $var markers in the raw IR text with the storage
// registers of the variables in scope, then feeds each line through a
// small instruction dispatch. Unknown instructions are rejected.
func (g *Generator) genInline(ctx context.Context, st *ast.LLVMInlineStmt) error {
	if g.unsafeDepth == 0 {
		return g.errAt(st.Keyword, "Wrap it: unsafe { llvm_inline(\"...\"); }",
			"'llvm_inline' outside of an unsafe block")
	}

	text, err := g.substitute(st)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		if err := g.inlineInst(st, line); err != nil {
			return err
		}
	}

	return nil
}

// substitute resolves every $name marker against the environment.
func (g *Generator) substitute(st *ast.LLVMInlineStmt) (string, error) {
	var sb strings.Builder

	raw := st.IR

	for i := 0; i < len(raw); i++ {
		if raw[i] != '$' {
			sb.WriteByte(raw[i])
			continue
		}

		j := i + 1
		for j < len(raw) && (isWordByte(raw[j])) {
			j++
		}

		name := raw[i+1 : j]
		if name == "" {
			sb.WriteByte('$')
			continue
		}

		b, ok := g.lookup(name)
		if !ok {
			return "", g.errAt(st.Keyword, "",
				"Inline IR references unknown variable %q", name)
		}

		sb.WriteString(b.ptr)

		i = j - 1
	}

	return sb.String(), nil
}

// inlineInst validates one instruction against the supported dispatch
// and emits it verbatim.
func (g *Generator) inlineInst(st *ast.LLVMInlineStmt, line string) error {
	op := line

	if eq := strings.Index(line, "="); eq >= 0 && strings.HasPrefix(line, "%") {
		op = strings.TrimSpace(line[eq+1:])
	}

	fields := strings.Fields(op)
	if len(fields) == 0 {
		return g.errAt(st.Keyword, "", "Invalid LLVM IR instruction")
	}

	switch fields[0] {
	case "add", "sub", "mul":
	case "call":
	case "ret":
	case "store":
	case "br":
		if len(fields) < 2 {
			return g.errAt(st.Keyword, "", "Invalid LLVM IR instruction: %q", line)
		}
	default:
		return g.errAt(st.Keyword,
			"Supported: add, sub, mul, call, ret, store, br.",
			"Invalid LLVM IR instruction: %q", line)
	}

	g.f.Emit("%s", line)

	return nil
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
