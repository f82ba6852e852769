// Package resolver loads a source file and its transitive textual
// imports into one flat statement list. Paths are canonicalized; a file
// reached while still being processed is an import cycle and fatal.
package resolver

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/boxlang/box/compiler/ast"
	"github.com/boxlang/box/compiler/lexer"
	"github.com/boxlang/box/compiler/parser"
)

type (
	Resolver struct {
		base string

		active map[string]bool
		done   map[string]bool

		stack []string
	}
)

func New(base string) *Resolver {
	return &Resolver{
		base:   base,
		active: map[string]bool{},
		done:   map[string]bool{},
	}
}

// ResolveFile loads path and returns the flattened statement list along
// with the root file's source text (used for diagnostics).
func (r *Resolver) ResolveFile(ctx context.Context, path string) ([]ast.Stmt, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", errors.Wrap(err, "canonicalize %v", path)
	}

	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", errors.Wrap(err, "read source")
	}

	stmts, err := r.process(ctx, abs, string(src))
	if err != nil {
		return nil, "", err
	}

	return stmts, string(src), nil
}

func (r *Resolver) process(ctx context.Context, abs, src string) ([]ast.Stmt, error) {
	if r.active[abs] {
		return nil, errors.New("import cycle: %v", strings.Join(append(r.stack, abs), " -> "))
	}

	if r.done[abs] {
		// already spliced once
		return nil, nil
	}

	r.active[abs] = true
	r.stack = append(r.stack, abs)

	defer func() {
		delete(r.active, abs)

		r.stack = r.stack[:len(r.stack)-1]
		r.done[abs] = true
	}()

	tlog.SpanFromContext(ctx).Printw("resolve file", "name", abs, "size", len(src))

	tokens, err := lexer.New(src).Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "lex %v", abs)
	}

	stmts, err := parser.New(src, tokens).Parse(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "parse %v", abs)
	}

	var out []ast.Stmt

	for _, st := range stmts {
		imp, ok := st.(*ast.ImportStmt)
		if !ok {
			out = append(out, st)
			continue
		}

		target, err := r.locate(abs, imp.Path)
		if err != nil {
			return nil, err
		}

		isrc, err := os.ReadFile(target)
		if err != nil {
			return nil, errors.Wrap(err, "read import %v", imp.Path)
		}

		sub, err := r.process(ctx, target, string(isrc))
		if err != nil {
			return nil, err
		}

		out = append(out, sub...)
	}

	return out, nil
}

// locate tries the importing file's directory first, then the base
// directory.
func (r *Resolver) locate(importer, path string) (string, error) {
	rel := filepath.Join(filepath.Dir(importer), path)

	if _, err := os.Stat(rel); err == nil {
		return filepath.Abs(rel)
	}

	based := filepath.Join(r.base, path)

	if _, err := os.Stat(based); err == nil {
		return filepath.Abs(based)
	}

	return "", errors.New("import not found: %q (tried %v, %v)", path, rel, based)
}
