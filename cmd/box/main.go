package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/boxlang/box/compiler"
)

const version = "0.3.0"

func main() {
	app := &cli.Command{
		Name:        "box",
		Description: "box is an ahead-of-time compiler for the Box language",
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("output,o", "", "output executable name (default: stem of input)"),
			cli.NewFlag("emit-llvm", false, "also write <stem>.ll with the IR text"),
			cli.NewFlag("S", false, "also write <stem>.s assembly"),
			cli.NewFlag("run,r", false, "run the executable after linking"),
			cli.NewFlag("no-optimize", false, "disable the optimizer entirely"),
			cli.NewFlag("O", 3, "AST optimizer level (0..3)"),
			cli.NewFlag("Oasm", 3, "backend codegen level (0..3)"),
			cli.NewFlag("no-warnings", false, "suppress memory-safety warnings"),
			cli.NewFlag("verbose,v", false, "log compilation phases"),
			cli.NewFlag("version", false, "print version and exit"),
			cli.FlagfileFlag,
			cli.HelpFlag,
		},
		Action: compileAct,
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func compileAct(c *cli.Command) (err error) {
	if c.Bool("version") {
		fmt.Printf("box %s\n", version)

		return nil
	}

	if c.Bool("verbose") {
		tlog.DefaultLogger = tlog.New(tlog.NewConsoleWriter(os.Stderr, tlog.LstdFlags))
	}

	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	if len(c.Args) != 1 {
		return errors.New("usage: box [options] <input-file>")
	}

	opts := compiler.DefaultOptions()

	opts.Output = c.String("output")
	opts.EmitLLVM = c.Bool("emit-llvm")
	opts.EmitASM = c.Bool("S")
	opts.Run = c.Bool("run")
	opts.NoOptimize = c.Bool("no-optimize")
	opts.OptLevel = c.Int("O")
	opts.ASMLevel = c.Int("Oasm")
	opts.NoWarnings = c.Bool("no-warnings")
	opts.Verbose = c.Bool("verbose")

	code, err := compiler.CompileFile(ctx, c.Args[0], opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)

		os.Exit(1)
	}

	os.Exit(code)

	return nil
}
