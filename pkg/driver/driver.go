// Package driver runs the whole pipeline over source files: lexing, parsing,
// semantic analysis and code generation, program by program.
package driver

import (
	"fmt"
	"os"
	"strings"

	"github.com/xplshn/g65/pkg/ast"
	"github.com/xplshn/g65/pkg/codegen"
	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/lexer"
	"github.com/xplshn/g65/pkg/parser"
	"github.com/xplshn/g65/pkg/typeChecker"
	"github.com/xplshn/g65/pkg/util"
)

// ReadFiles loads the named sources for compilation and for error carets.
func ReadFiles(paths []string) ([]util.SourceFileRecord, error) {
	records := make([]util.SourceFileRecord, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read file '%s': %w", path, err)
		}
		records = append(records, util.SourceFileRecord{Name: path, Content: []rune(string(content))})
	}
	return records, nil
}

// Compile compiles every file and returns the generated programs in file
// and program order. Diagnostics go to rep.
func Compile(files []util.SourceFileRecord, cfg *config.Config, rep *util.Reporter) []*codegen.Result {
	rep.SetSourceFiles(files)
	var results []*codegen.Result
	for i, f := range files {
		results = append(results, CompileFile(i, f.Content, cfg, rep)...)
	}
	return results
}

// CompileFile runs one source file through the pipeline. A program that
// fails a stage is skipped by the later ones; its neighbors still compile.
func CompileFile(fileIndex int, source []rune, cfg *config.Config, rep *util.Reporter) []*codegen.Result {
	tokens := lexer.Tokenize(source, fileIndex, cfg, rep)
	programs := parser.NewParser(tokens, cfg, rep).Parse()

	var units []codegen.Unit
	var skip []int
	for _, p := range programs {
		scope, ok := typeChecker.NewTypeChecker(cfg, rep).Check(p.Root)
		if !ok {
			skip = append(skip, p.Index)
		}
		if cfg.Verbosity >= 2 {
			var sb strings.Builder
			ast.Fprint(&sb, p.Root)
			if scope != nil {
				ast.PrintScopes(&sb, scope)
			}
			rep.Logger(util.StageSemantic).Debugf("program %d:\n%s", p.Index, sb.String())
		}
		units = append(units, codegen.Unit{Index: p.Index, FileIndex: p.FileIndex, Root: p.Root, Scope: scope})
	}

	results := codegen.GenerateAll(units, skip, cfg, rep)
	if cfg.Verbosity >= 2 {
		for _, r := range results {
			rep.Logger(util.StageCodegen).Debugf("program %d static table:\n%s", r.Index, r.Table)
		}
	}
	return results
}

// CompileString is CompileFile for an in-memory source.
func CompileString(source string, cfg *config.Config, rep *util.Reporter) []*codegen.Result {
	return Compile([]util.SourceFileRecord{{Name: "<input>", Content: []rune(source)}}, cfg, rep)
}
