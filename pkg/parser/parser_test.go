package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/g65/pkg/ast"
	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/lexer"
	"github.com/xplshn/g65/pkg/util"
)

func parse(src string) ([]*Program, *util.Reporter) {
	cfg := config.NewConfig()
	rep := util.NewReporter(cfg, nil)
	toks := lexer.Tokenize([]rune(src), 0, cfg, rep)
	return NewParser(toks, cfg, rep).Parse(), rep
}

func outline(n *ast.Node) string {
	var sb strings.Builder
	ast.Fprint(&sb, n)
	return sb.String()
}

func TestParseProgram(t *testing.T) {
	progs, rep := parse(`{ int a a = 1 + 2 + a print((a == 3)) while (a != 9) { a = 9 } if true { print("x") } }$`)
	if rep.ErrorCount() != 0 || len(progs) != 1 {
		t.Fatalf("got %d program(s), diagnostics %v", len(progs), rep.Diagnostics())
	}
	want := `<Block>
-<VariableDeclaration>
--[int]
--[a]
-<AssignmentStatement>
--[a]
--<IntExpression>
---[1]
---<IntExpression>
----[2]
----[a]
-<PrintStatement>
--<Equality>
---[a]
---[3]
-<WhileStatement>
--<Inequality>
---[a]
---[9]
--<Block>
---<AssignmentStatement>
----[a]
----[9]
-<IfStatement>
--[true]
--<Block>
---<PrintStatement>
----[x]
`
	if diff := cmp.Diff(want, outline(progs[0].Root)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrorsAreIsolated(t *testing.T) {
	progs, rep := parse("{ int }$ { print(1) }$ { a = }$ {}$")
	var got []int
	for _, p := range progs {
		got = append(got, p.Index)
	}
	if diff := cmp.Diff([]int{1, 3}, got); diff != "" {
		t.Errorf("parsed programs mismatch (-want +got):\n%s", diff)
	}
	if !rep.HasErrors(0, 0) || !rep.HasErrors(0, 2) {
		t.Errorf("missing parse errors: %v", rep.Diagnostics())
	}
	if rep.HasErrors(0, 1) || rep.HasErrors(0, 3) {
		t.Errorf("clean programs recorded errors: %v", rep.Diagnostics())
	}
}

func TestParseSkipsLexErrors(t *testing.T) {
	progs, rep := parse("{ print(A) }$ { print(2) }$")
	if len(progs) != 1 || progs[0].Index != 1 {
		t.Fatalf("got %d program(s); want only program 1", len(progs))
	}
	var warned bool
	for _, d := range rep.ProgramDiagnostics(0, 0) {
		if d.Level == util.LevelWarning && d.Stage == util.StageParser {
			warned = true
		}
	}
	if !warned {
		t.Errorf("no skip warning for program 0: %v", rep.Diagnostics())
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"int a$",
		"{ print 1 }$",
		"{ while a { } }$",
		"{ if (1 1) { } }$",
		"{ a = (1 == 2 }$",
		"{ int a",
	} {
		if _, rep := parse(src); rep.ErrorCount() == 0 {
			t.Errorf("parse(%q) reported no error", src)
		}
	}
}
