package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/energy-in-joles/C-Compiler/pkg/ast"
	"github.com/energy-in-joles/C-Compiler/pkg/checker"
	"github.com/energy-in-joles/C-Compiler/pkg/cli"
	"github.com/energy-in-joles/C-Compiler/pkg/codegen"
	"github.com/energy-in-joles/C-Compiler/pkg/config"
	"github.com/energy-in-joles/C-Compiler/pkg/lexer"
	"github.com/energy-in-joles/C-Compiler/pkg/parser"
	"github.com/energy-in-joles/C-Compiler/pkg/rvsim"
	"github.com/energy-in-joles/C-Compiler/pkg/util"
)

func main() {
	app := cli.NewApp("rvcc")
	app.Synopsis = "[options] <input.c>"
	app.Description = "A compiler for a subset of C that emits RISC-V RV32 assembly for the ilp32d ABI."
	app.Authors = []string{"energy-in-joles"}
	app.Repository = "<https://github.com/energy-in-joles/C-Compiler>"
	app.Since = 2024

	var (
		outFile   string
		target    string
		frameSize int
		maxSteps  int
		printAST  bool
		runMain   bool
		verbose   bool
		wall      bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the assembly into <file> (default: <input>.s).", "file")
	fs.String(&target, "target", "t", "rv32", "Set the target architecture.", "arch")
	fs.Int(&frameSize, "frame-size", "", 32, "Initial stack frame size in bytes.", "bytes")
	fs.Int(&maxSteps, "max-steps", "", 50_000_000, "Instruction budget for --run (0 for unlimited).", "n")
	fs.Bool(&printAST, "print-ast", "S", false, "Print the syntax tree and exit.")
	fs.Bool(&runMain, "run", "r", false, "Execute main in the built-in simulator and exit with its result.")
	fs.Bool(&verbose, "verbose", "v", false, "Report each compilation stage.")
	fs.Bool(&wall, "Wall", "", false, "Enable most warnings.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		util.SetColor(cli.IsTerminal(os.Stderr))

		if len(inputFiles) != 1 {
			return report(fmt.Errorf("expected exactly one input file, got %d", len(inputFiles)))
		}
		inputFile := inputFiles[0]

		// Environment first so the command line overrides it
		if unknown := cfg.ApplyFlagString(os.Getenv("RVCC_FLAGS")); len(unknown) > 0 {
			fmt.Fprintf(os.Stderr, "rvcc: ignoring unknown RVCC_FLAGS entries: %s\n", strings.Join(unknown, " "))
		}
		if wall {
			cfg.ApplyFlag("-Wall")
		}
		cfg.ApplyFlagGroups(warningFlags, featureFlags)

		cfg.TargetArch = target
		if err := cfg.SetFrameSize(frameSize); err != nil {
			return report(err)
		}

		progress := func(format string, args ...interface{}) {
			if verbose {
				fmt.Printf(format+"\n", args...)
			}
		}

		content, err := os.ReadFile(inputFile)
		if err != nil {
			return report(fmt.Errorf("could not read file '%s': %w", inputFile, err))
		}
		source := []rune(string(content))
		util.SetSourceFiles([]util.SourceFileRecord{{Name: inputFile, Content: source}})

		progress("Tokenizing '%s'...", inputFile)
		tokens, err := lexer.Tokenize(source, 0, cfg)
		if err != nil {
			return report(err)
		}

		progress("Parsing tokens into AST...")
		root, err := parser.ParseAST(tokens, cfg)
		if err != nil {
			return report(err)
		}
		if printAST {
			ast.Print(os.Stdout, root)
			return nil
		}

		progress("Checking...")
		if err := checker.Check(root, cfg); err != nil {
			return report(err)
		}

		backend, err := codegen.SelectBackend(cfg)
		if err != nil {
			return report(err)
		}
		progress("Generating code with '%s' backend...", backend.Name())
		asm, err := backend.Generate(root, cfg)
		if err != nil {
			return report(err)
		}

		if outFile != "" || !runMain {
			if outFile == "" {
				outFile = strings.TrimSuffix(filepath.Base(inputFile), filepath.Ext(inputFile)) + ".s"
			}
			progress("Writing '%s'...", outFile)
			if err := os.WriteFile(outFile, asm.Bytes(), 0o644); err != nil {
				return report(fmt.Errorf("could not write '%s': %w", outFile, err))
			}
		}

		if !runMain {
			return nil
		}
		progress("Running main...")
		prog, err := rvsim.Load(asm.String())
		if err != nil {
			return report(fmt.Errorf("simulator: %w", err))
		}
		m := rvsim.NewMachine(prog)
		m.Stdout = os.Stdout
		m.MaxSteps = maxSteps
		result, err := m.Run("main")
		if err != nil {
			return report(fmt.Errorf("simulator: %w", err))
		}
		progress("main returned %d after %d steps", result, m.Steps)
		os.Exit(int(uint8(result)))
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// report prints err with its source context and hands it back so the
// action fails.
func report(err error) error {
	util.PrintError(err)
	return err
}
