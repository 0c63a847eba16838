package codegen_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/g65/pkg/ast"
	"github.com/xplshn/g65/pkg/codegen"
	"github.com/xplshn/g65/pkg/config"
	"github.com/xplshn/g65/pkg/image"
	"github.com/xplshn/g65/pkg/lexer"
	"github.com/xplshn/g65/pkg/parser"
	"github.com/xplshn/g65/pkg/token"
	"github.com/xplshn/g65/pkg/typeChecker"
	"github.com/xplshn/g65/pkg/util"
	"github.com/xplshn/g65/pkg/vm"
)

func generate(t *testing.T, src string, cfg *config.Config) ([]*codegen.Result, *util.Reporter) {
	t.Helper()
	rep := util.NewReporter(cfg, nil)
	toks := lexer.Tokenize([]rune(src), 0, cfg, rep)
	var units []codegen.Unit
	var skip []int
	for _, p := range parser.NewParser(toks, cfg, rep).Parse() {
		scope, ok := typeChecker.NewTypeChecker(cfg, rep).Check(p.Root)
		if !ok {
			skip = append(skip, p.Index)
		}
		units = append(units, codegen.Unit{Index: p.Index, FileIndex: p.FileIndex, Root: p.Root, Scope: scope})
	}
	return codegen.GenerateAll(units, skip, cfg, rep), rep
}

func generateOne(t *testing.T, src string) *codegen.Result {
	t.Helper()
	results, rep := generate(t, src, config.NewConfig())
	if rep.ErrorCount() > 0 || len(results) != 1 {
		t.Fatalf("compiling %q: %d result(s), diagnostics %v", src, len(results), rep.Diagnostics())
	}
	return results[0]
}

func run(t *testing.T, r *codegen.Result) (string, *vm.CPU) {
	t.Helper()
	var out bytes.Buffer
	cpu, err := vm.Run(context.Background(), r.Image, &out, vm.Options{MaxSteps: 10000})
	if err != nil {
		t.Fatalf("running program %d: %v", r.Index, err)
	}
	return out.String(), cpu
}

func TestVarDeclCode(t *testing.T) {
	r := generateOne(t, "{ int a }$")
	mem, err := r.Image.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xA9, 0x00, 0x8D, 0x06, 0x00, 0x00, 0x00}
	if diff := cmp.Diff(want, mem[:7]); diff != "" {
		t.Errorf("image prefix mismatch (-want +got):\n%s", diff)
	}
	if r.Image.StackBase() != 6 || r.Image.StackSize() != 1 {
		t.Errorf("stack at %d size %d; want 6 size 1", r.Image.StackBase(), r.Image.StackSize())
	}
}

func TestDefaults(t *testing.T) {
	r := generateOne(t, "{ int a string s boolean b print(a) print(s) print(b) }$")
	if out, _ := run(t, r); out != "0nullfalse" {
		t.Errorf("output = %q; want \"0nullfalse\"", out)
	}
}

func TestAssignAddition(t *testing.T) {
	r := generateOne(t, "{ int a a = 1 + 2 print(a) }$")
	out, cpu := run(t, r)
	if out != "3" {
		t.Errorf("output = %q; want \"3\"", out)
	}
	var slot *codegen.Entry
	for _, e := range r.Table.Entries() {
		if e.Name == "a" {
			slot = e
		}
	}
	if slot == nil || !slot.Resolved {
		t.Fatalf("no resolved entry for a in\n%s", r.Table)
	}
	if cpu.Mem[slot.Addr] != 3 {
		t.Errorf("a holds %d; want 3", cpu.Mem[slot.Addr])
	}
}

func TestAdditionWraps(t *testing.T) {
	// 4 * 81 = 324 = 256 + 68
	src := "{ int a int n a = 0 n = 0 while (n != 4) { a = 9" + strings.Repeat(" + 9", 8) + " + a n = 1 + n } print(a) }$"
	r := generateOne(t, src)
	if out, _ := run(t, r); out != "68" {
		t.Errorf("output = %q; want \"68\"", out)
	}
}

func TestComparisonPolarity(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"(5 == 5)", "true"},
		{"(5 != 5)", "false"},
		{"(5 == 6)", "false"},
		{"(5 != 6)", "true"},
		{"(true == true)", "true"},
		{"(true != false)", "true"},
		{"(\"ab\" == \"ab\")", "true"},
		{"((1 == 1) == (2 == 2))", "true"},
	}
	for _, tc := range tests {
		r := generateOne(t, "{ print("+tc.expr+") }$")
		if out, _ := run(t, r); out != tc.want {
			t.Errorf("print%s = %q; want %q", tc.expr, out, tc.want)
		}
	}
}

func TestComparisonSymmetry(t *testing.T) {
	for _, op := range []string{"==", "!="} {
		left := generateOne(t, "{ int a a = 4 print((a "+op+" 4)) print((a "+op+" 3)) }$")
		right := generateOne(t, "{ int a a = 4 print((4 "+op+" a)) print((3 "+op+" a)) }$")
		l, _ := run(t, left)
		r, _ := run(t, right)
		if l != r {
			t.Errorf("%s is not symmetric: %q vs %q", op, l, r)
		}
	}
}

func TestIf(t *testing.T) {
	r := generateOne(t, `{ if true { print("yes") } if false { print("no") } if (1 != 1) { print("bad") } print("end") }$`)
	if out, _ := run(t, r); out != "yesend" {
		t.Errorf("output = %q; want \"yesend\"", out)
	}
}

func TestWhile(t *testing.T) {
	r := generateOne(t, "{ int i i = 0 while (i != 5) { print(i) i = 1 + i } print(\"done\") }$")
	if out, _ := run(t, r); out != "01234done" {
		t.Errorf("output = %q; want \"01234done\"", out)
	}
	if d := r.Table.Jumps(); len(d) != 1 || d[0] <= 0 {
		t.Errorf("jump table = %v; want one positive distance", d)
	}
}

func TestNestedLoops(t *testing.T) {
	src := `{
		int i
		int j
		i = 0
		while (i != 2) {
			j = 0
			while (j != 2) {
				print(j)
				j = 1 + j
			}
			i = 1 + i
		}
	}$`
	r := generateOne(t, src)
	if out, _ := run(t, r); out != "0101" {
		t.Errorf("output = %q; want \"0101\"", out)
	}
}

func TestShadowing(t *testing.T) {
	r := generateOne(t, "{ int a a = 1 { int a a = 2 print(a) } print(a) }$")
	if out, _ := run(t, r); out != "21" {
		t.Errorf("output = %q; want \"21\"", out)
	}
	var scopes []int
	for _, e := range r.Table.Entries() {
		if e.Name == "a" {
			scopes = append(scopes, e.ScopeID)
		}
	}
	if diff := cmp.Diff([]int{0, 1}, scopes); diff != "" {
		t.Errorf("scopes of a mismatch (-want +got):\n%s", diff)
	}
}

func TestStringInterning(t *testing.T) {
	src := `{ print("two") print("two") }$`
	r := generateOne(t, src)
	if n := len(r.Table.Strings()); n != 1 {
		t.Errorf("%d heap strings; want 1", n)
	}
	if out, _ := run(t, r); out != "twotwo" {
		t.Errorf("output = %q; want \"twotwo\"", out)
	}

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatInternStrings, false)
	results, _ := generate(t, src, cfg)
	if len(results) != 1 || len(results[0].Table.Strings()) != 2 {
		t.Errorf("-Fno-intern-strings: want two heap copies")
	}
}

func TestTemporaryReuse(t *testing.T) {
	once := `{ int a a = 1 print((a == 1)) }$`
	twice := `{ int a a = 1 print((a == 1)) print((a == 1)) }$`

	r := generateOne(t, once)
	base := r.Table.AnonymousCount()
	r = generateOne(t, twice)
	if n := r.Table.AnonymousCount(); n != base || n != 1 {
		t.Errorf("%d anonymous slots after two comparisons; want %d", n, base)
	}
	if out, _ := run(t, r); out != "truetrue" {
		t.Errorf("output = %q; want \"truetrue\"", out)
	}

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatReuseTemps, false)
	results, _ := generate(t, twice, cfg)
	if len(results) != 1 || results[0].Table.AnonymousCount() != 4 {
		t.Errorf("-Fno-reuse-temps: want a fresh slot per spill and result")
	}
}

func TestRegionLayout(t *testing.T) {
	r := generateOne(t, `{ int a string s s = "hi" a = 1 + 2 while (a != 3) { print(s) } if (a == 3) { print(a) } }$`)
	img := r.Image
	if err := img.Check(); err != nil {
		t.Fatal(err)
	}
	if img.StackBase() != img.CodeSize() {
		t.Errorf("stack at %02X, code ends at %02X", img.StackBase(), img.CodeLimit())
	}
	if img.StackSize() != r.Table.Size() {
		t.Errorf("stack holds %d bytes for %d entries", img.StackSize(), r.Table.Size())
	}
	if img.StackLimit() >= img.HeapLimit() {
		t.Errorf("stack %02X reaches heap %02X", img.StackLimit(), img.HeapLimit())
	}
	if len(img.Pending()) != 0 {
		t.Errorf("unresolved cells at %v", img.Pending())
	}
	last, _ := img.ReadCode(img.CodeLimit())
	if last != image.Byte(0x00) {
		t.Errorf("code ends with %v; want BRK", last)
	}
}

func TestCapacityError(t *testing.T) {
	src := "{" + strings.Repeat(" print(1)", 60) + " }$ { print(2) }$"
	results, rep := generate(t, src, config.NewConfig())
	if len(results) != 1 || results[0].Index != 1 {
		t.Fatalf("got %d result(s); want only program 1", len(results))
	}
	if !rep.HasErrors(0, 0) {
		t.Errorf("no error recorded for the oversized program")
	}
	if out, _ := run(t, results[0]); out != "2" {
		t.Errorf("program 1 output = %q; want \"2\"", out)
	}

	rep = util.NewReporter(config.NewConfig(), nil)
	toks := lexer.Tokenize([]rune("{"+strings.Repeat(" print(1)", 60)+" }$"), 0, config.NewConfig(), rep)
	prog := parser.NewParser(toks, config.NewConfig(), rep).Parse()[0]
	scope, _ := typeChecker.NewTypeChecker(config.NewConfig(), rep).Check(prog.Root)
	_, err := codegen.NewContext(config.NewConfig(), rep).Generate(codegen.Unit{Root: prog.Root, Scope: scope})
	if !errors.Is(err, codegen.ErrCapacity) {
		t.Errorf("Generate: got %v, want ErrCapacity", err)
	}
}

func TestGenerateAllIsolation(t *testing.T) {
	cfg := config.NewConfig()
	rep := util.NewReporter(cfg, nil)
	good := ast.NewBlock(token.Token{Program: 2}, nil)
	units := []codegen.Unit{
		{Index: 0, Root: nil},
		{Index: 1, Root: ast.NewBlock(token.Token{Program: 1}, nil)},
		{Index: 2, Root: good, Scope: ast.NewScope(0, nil)},
	}
	results := codegen.GenerateAll(units, []int{1}, cfg, rep)
	if len(results) != 1 || results[0].Index != 2 {
		t.Fatalf("got %d result(s); want only program 2", len(results))
	}
	if !rep.HasErrors(0, 0) {
		t.Errorf("malformed program 0 recorded no error")
	}

	var skipped bool
	for _, d := range rep.ProgramDiagnostics(0, 1) {
		if d.Level == util.LevelWarning && d.Stage == util.StageCodegen {
			skipped = true
		}
	}
	if !skipped {
		t.Errorf("no skip warning for program 1")
	}
	if rep.HasErrors(0, 2) {
		t.Errorf("program 2 picked up another program's error")
	}
}
