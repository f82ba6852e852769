// Package diag frames compiler diagnostics for terminal output.
//
// Every error is framed by a 70-char divider, a phase header with the
// source position, the offending source line with a caret, and an
// optional multi-line hint.
package diag

import (
	"strings"

	"github.com/nikandfor/hacked/hfmt"
)

const Width = 70

type (
	// Diagnostic is one framed message.
	Diagnostic struct {
		Phase  string
		Msg    string
		Line   int
		Column int

		SourceLine string
		Hint       string
	}
)

func Divider(c byte) string {
	return strings.Repeat(string(c), Width)
}

// Append renders d onto b.
func (d Diagnostic) Append(b []byte) []byte {
	b = append(b, '\n')
	b = append(b, Divider('-')...)
	b = append(b, '\n')

	if d.Line > 0 {
		b = hfmt.Appendf(b, "%s ERROR [line %d, column %d]\n", d.Phase, d.Line, d.Column)
	} else {
		b = hfmt.Appendf(b, "%s ERROR\n", d.Phase)
	}

	b = hfmt.Appendf(b, "%s\n", d.Msg)

	if d.SourceLine != "" {
		b = hfmt.Appendf(b, "\n    %s\n", d.SourceLine)

		if d.Column > 0 {
			b = append(b, "    "...)
			for i := 1; i < d.Column; i++ {
				b = append(b, ' ')
			}
			b = append(b, "^\n"...)
		}
	}

	if d.Hint != "" {
		b = hfmt.Appendf(b, "\nHint: %s\n", d.Hint)
	}

	b = append(b, Divider('-')...)
	b = append(b, '\n')

	return b
}

func (d Diagnostic) String() string {
	return string(d.Append(nil))
}

// Summary renders the compound failure header used when a phase bundles
// multiple diagnostics into one error.
func Summary(b []byte, phase string, n int, ds []Diagnostic) []byte {
	b = append(b, '\n')
	b = append(b, Divider('#')...)
	b = hfmt.Appendf(b, "\nCOMPILATION FAILED: Found %d %s error(s)\n", n, phase)
	b = append(b, Divider('#')...)
	b = append(b, '\n')

	for _, d := range ds {
		b = d.Append(b)
	}

	return b
}

// SourceLine extracts 1-based line n from src, without the trailing newline.
func SourceLine(src string, n int) string {
	if n < 1 {
		return ""
	}

	lines := strings.Split(src, "\n")
	if n > len(lines) {
		return ""
	}

	return lines[n-1]
}
