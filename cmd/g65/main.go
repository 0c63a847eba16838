package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/xplshn/g65/pkg/cli"
	"github.com/xplshn/g65/pkg/codegen"
	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/driver"
	"github.com/xplshn/g65/pkg/isa"
	"github.com/xplshn/g65/pkg/util"
	"github.com/xplshn/g65/pkg/vm"
)

func main() {
	app := cli.NewApp("g65")
	app.Synopsis = "[options] <input.g65> ..."
	app.Description = "A compiler for a small teaching language that targets a 256-byte 6502-style machine. Every '$'-terminated program becomes one memory image."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/g65>"
	app.Since = 2025

	var (
		outFile    string
		format     string
		configFile string
		maxSteps   int
		verbosity  int
		dumpAsm    bool
		run        bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "a.hex", "Place the output into <file>.", "file")
	fs.String(&format, "format", "f", config.FormatHex, "Output format: hex, bin or cbor.", "format")
	fs.String(&configFile, "config", "", "", "Read settings from <file> instead of the nearest g65.toml.", "file")
	fs.Int(&maxSteps, "max-steps", "", config.DefaultMaxSteps, "Stop a program run with -r after <n> instructions.", "n")
	fs.Count(&verbosity, "verbose", "v", "Trace the pipeline; repeat for more detail.")
	fs.Bool(&dumpAsm, "dump-asm", "d", false, "Print the disassembly and static table of every program.")
	fs.Bool(&run, "run", "r", false, "Run every generated program in the reference machine.")

	cfg := config.NewConfig()
	cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		util.ConfigureLogging(verbosity)
		cfg.Verbosity = verbosity

		// Project file first, command line on top of it
		if err := loadProjectFile(cfg, configFile); err != nil {
			return fail(err)
		}
		given := make(map[string]bool)
		fs.Visit(func(f *cli.Flag) { given[f.Name] = true })
		if given["output"] {
			cfg.OutFile = outFile
		}
		if given["format"] {
			if err := cfg.SetFormat(format); err != nil {
				return fail(err)
			}
		}
		if given["max-steps"] {
			cfg.MaxSteps = maxSteps
		}
		cfg.ProcessFlags(func(fn func(name string)) {
			fs.Visit(func(f *cli.Flag) { fn(f.Name) })
		})

		if len(inputFiles) == 0 {
			return fail(fmt.Errorf("no input files specified"))
		}

		fmt.Println("----------------------")
		records, err := driver.ReadFiles(inputFiles)
		if err != nil {
			return fail(err)
		}
		rep := util.NewReporter(cfg, os.Stderr)
		fmt.Printf("Compiling %d source file(s)...\n", len(records))
		results := driver.Compile(records, cfg, rep)
		fmt.Printf("Generated %d program(s), %d error(s)\n", len(results), rep.ErrorCount())

		if dumpAsm {
			for _, r := range results {
				dumpProgram(records[r.FileIndex].Name, r)
			}
		}

		if len(results) > 0 {
			backend, err := codegen.SelectBackend(cfg.Format)
			if err != nil {
				return fail(err)
			}
			fmt.Printf("Writing '%s' (%s)...\n", cfg.OutFile, cfg.Format)
			buf, err := backend.Generate(results, cfg)
			if err != nil {
				return fail(fmt.Errorf("backend output failed: %w", err))
			}
			if err := os.WriteFile(cfg.OutFile, buf.Bytes(), 0o644); err != nil {
				return fail(err)
			}
		}

		if run {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			for _, r := range results {
				fmt.Printf("Running program %d of '%s'...\n", r.Index, records[r.FileIndex].Name)
				if _, err := vm.Run(ctx, r.Image, os.Stdout, vm.Options{MaxSteps: cfg.MaxSteps}); err != nil {
					fmt.Println()
					return fail(fmt.Errorf("program %d: %w", r.Index, err))
				}
				fmt.Println()
			}
		}

		fmt.Println("----------------------")
		if n := rep.ErrorCount(); n > 0 {
			return fmt.Errorf("%d error(s)", n)
		}
		fmt.Println("Done!")
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func fail(err error) error {
	fmt.Fprintf(os.Stderr, "g65: error: %v\n", err)
	return err
}

func loadProjectFile(cfg *config.Config, path string) error {
	if path == "" {
		found, err := config.FindFile(".")
		if err != nil || found == "" {
			return err
		}
		path = found
	}
	f, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	return cfg.ApplyFile(f)
}

func dumpProgram(file string, r *codegen.Result) {
	mem, err := r.Image.Bytes()
	if err != nil {
		fmt.Fprintf(os.Stderr, "g65: program %d: %v\n", r.Index, err)
		return
	}
	fmt.Printf("\n%s: program %d\n", file, r.Index)
	for _, line := range isa.Disassemble(mem[:], 0, r.Image.CodeSize()) {
		fmt.Printf("    %s\n", line)
	}
	fmt.Println()
	fmt.Print(r.Table)
	fmt.Println()
	if err := r.Image.Dump(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "g65: %v\n", err)
	}
}
