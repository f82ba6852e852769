// Package compiler orchestrates the Box compilation pipeline: resolve
// imports, analyze memory safety, optimize, generate IR, then hand the
// module to the native backend and linker.
package compiler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/boxlang/box/compiler/analyzer"
	"github.com/boxlang/box/compiler/codegen"
	"github.com/boxlang/box/compiler/optimizer"
	"github.com/boxlang/box/compiler/resolver"
)

type (
	// Options mirror the CLI surface.
	Options struct {
		Output string

		EmitLLVM bool
		EmitASM  bool
		Run      bool

		NoOptimize bool
		OptLevel   int // AST optimizer level 0..3
		ASMLevel   int // backend codegen level 0..3

		NoWarnings bool
		Verbose    bool
	}
)

// DefaultOptions is the CLI default: full optimization, no extra
// artifacts.
func DefaultOptions() Options {
	return Options{
		OptLevel: 3,
		ASMLevel: 3,
	}
}

// CompileToIR runs the front-to-middle pipeline on one source file:
// import resolution, memory analysis, optimization, IR generation.
func CompileToIR(ctx context.Context, name string, opts Options) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile to IR", "name", name)
	defer tr.Finish("err", &err)

	stmts, src, err := resolver.New(filepath.Dir(name)).ResolveFile(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "resolve")
	}

	rep := analyzer.Analyze(ctx, src, stmts)

	if !opts.NoWarnings {
		for _, w := range rep.Warnings {
			fmt.Fprintf(os.Stderr, "WARNING: %s", w.String())
		}
	}

	if !rep.OK {
		return nil, analyzer.Error{Report: rep}
	}

	if !opts.NoOptimize && opts.OptLevel > 0 {
		stmts = optimizer.Optimize(ctx, optimizer.DefaultConfig(opts.OptLevel), stmts)
	}

	module, err := codegen.Generate(ctx, src, stmts)
	if err != nil {
		return nil, errors.Wrap(err, "codegen")
	}

	return module, nil
}

// CompileFile runs the whole pipeline on one source file. The returned
// exit code is the produced program's code when opts.Run is set, zero
// otherwise.
func CompileFile(ctx context.Context, name string, opts Options) (exitCode int, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "name", name)
	defer tr.Finish("err", &err)

	module, err := CompileToIR(ctx, name, opts)
	if err != nil {
		return 1, err
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))

	llPath := stem + ".ll"

	err = os.WriteFile(llPath, module, 0o644)
	if err != nil {
		return 1, errors.Wrap(err, "write IR")
	}

	if !opts.EmitLLVM {
		defer cleanup(ctx, llPath, opts.Verbose)
	}

	if opts.EmitASM {
		err = runCmd(ctx, "llc", "-O"+strconv.Itoa(opts.ASMLevel), "-filetype=asm", "-o", stem+".s", llPath)
		if err != nil {
			return 1, errors.Wrap(err, "emit assembly")
		}
	}

	objPath := stem + ".o"

	err = runCmd(ctx, "llc", "-O"+strconv.Itoa(opts.ASMLevel), "-filetype=obj", "-o", objPath, llPath)
	if err != nil {
		return 1, errors.Wrap(err, "backend")
	}

	defer cleanup(ctx, objPath, opts.Verbose)

	out := opts.Output
	if out == "" {
		out = stem
	}

	err = runCmd(ctx, "gcc", objPath, "-o", out, "-lm", "-no-pie")
	if err != nil {
		return 1, errors.Wrap(err, "link")
	}

	tr.Printw("linked", "output", out)

	if !opts.Run {
		return 0, nil
	}

	return run(ctx, out)
}

// runCmd invokes an external tool, blocking until completion; its stderr
// becomes the error message on failure.
func runCmd(ctx context.Context, name string, args ...string) error {
	tlog.SpanFromContext(ctx).Printw("exec", "cmd", name, "args", args)

	cmd := exec.CommandContext(ctx, name, args...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.New("%v: %v\n%s", name, err, out)
	}

	return nil
}

// run executes the produced binary and passes its exit code through.
func run(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 1, errors.Wrap(err, "run")
	}

	cmd := exec.CommandContext(ctx, abs)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Run()
	if err == nil {
		return 0, nil
	}

	var xe *exec.ExitError
	if errors.As(err, &xe) {
		return xe.ExitCode(), nil
	}

	return 1, errors.Wrap(err, "run")
}

// cleanup removes an intermediate artifact, best effort.
func cleanup(ctx context.Context, path string, verbose bool) {
	err := os.Remove(path)
	if err != nil && verbose {
		tlog.SpanFromContext(ctx).Printw("cleanup failed", "path", path, "err", err)
	}
}
