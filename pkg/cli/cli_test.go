package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type testFlags struct {
	out     string
	format  string
	steps   int
	verbose int
	run     bool
	wall    bool
	defs    []string
}

func newTestSet() (*FlagSet, *testFlags) {
	fs := NewFlagSet("g65")
	v := &testFlags{}
	fs.String(&v.out, "output", "o", "a.hex", "Place the output into <file>", "file")
	fs.String(&v.format, "format", "f", "hex", "Output format", "fmt")
	fs.Int(&v.steps, "max-steps", "", 100, "Instruction limit", "n")
	fs.Count(&v.verbose, "verbose", "v", "Increase verbosity")
	fs.Bool(&v.run, "run", "r", false, "Run the program")
	fs.Bool(&v.wall, "Wall", "", false, "Enable every warning")
	fs.List(&v.defs, "define", "D", nil, "Define a name", "name")
	return fs, v
}

func TestParse(t *testing.T) {
	fs, v := newTestSet()
	args := []string{"-o", "out.bin", "--format=bin", "-vv", "-r", "--max-steps", "42", "-Wall", "-Dx", "-D", "y", "a.g65", "--", "-b.g65"}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := *v
	want := testFlags{out: "out.bin", format: "bin", steps: 42, verbose: 2, run: true, wall: true, defs: []string{"x", "y"}}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(testFlags{})); diff != "" {
		t.Errorf("parsed values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.g65", "-b.g65"}, fs.Args()); diff != "" {
		t.Errorf("Args() mismatch (-want +got):\n%s", diff)
	}

	var visited []string
	fs.Visit(func(f *Flag) { visited = append(visited, f.Name) })
	wantVisited := []string{"output", "format", "verbose", "verbose", "run", "max-steps", "Wall", "define", "define"}
	if diff := cmp.Diff(wantVisited, visited); diff != "" {
		t.Errorf("Visit order mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--nope"},
		{"-x"},
		{"-o"},
		{"--max-steps", "many"},
		{"--run=maybe"},
	} {
		fs, _ := newTestSet()
		if err := fs.Parse(args); err == nil {
			t.Errorf("Parse(%q) succeeded", args)
		}
	}
}

func TestFlagGroup(t *testing.T) {
	fs := NewFlagSet("g65")
	enabled, disabled := true, false
	fs.AddFlagGroup("Warning Flags", "Toggle warnings.", "warning", "Available Warning Flags:", []FlagGroupEntry{
		{Name: "unused", Prefix: "W", Usage: "Unused variables", Enabled: &enabled, Disabled: &disabled},
	})
	if fs.Lookup("Wunused") == nil || fs.Lookup("Wno-unused") == nil {
		t.Fatalf("group did not define -Wunused and -Wno-unused")
	}
	if err := fs.Parse([]string{"-Wno-unused"}); err != nil {
		t.Fatal(err)
	}
	if !disabled {
		t.Errorf("-Wno-unused did not set its flag")
	}
}

func TestAppHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	app := NewApp("g65")
	app.Synopsis = "[options] <input.g65> ..."
	app.Description = "A compiler."
	app.Stdout, app.Stderr = &stdout, &stderr
	var out string
	app.FlagSet.String(&out, "output", "o", "a.hex", "Place the output into <file>", "file")
	enabled, disabled := true, false
	app.FlagSet.AddFlagGroup("Warning Flags", "Toggle warnings.", "warning", "Available Warning Flags:", []FlagGroupEntry{
		{Name: "unused", Prefix: "W", Usage: "Unused variables", Enabled: &enabled, Disabled: &disabled},
	})

	called := false
	app.Action = func(args []string) error { called = true; return nil }
	if err := app.Run([]string{"--help"}); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Errorf("--help ran the action")
	}
	help := stdout.String()
	for _, want := range []string{"Synopsis", "--output", "Warning Flags", "unused"} {
		if !strings.Contains(help, want) {
			t.Errorf("help page lacks %q:\n%s", want, help)
		}
	}

	bad := NewApp("g65")
	bad.Stdout, bad.Stderr = &stdout, &stderr
	if err := bad.Run([]string{"--bogus"}); err == nil {
		t.Errorf("Run with an unknown flag succeeded")
	}
	if !strings.Contains(stderr.String(), "Usage: g65") {
		t.Errorf("usage not printed on error:\n%s", stderr.String())
	}
}
