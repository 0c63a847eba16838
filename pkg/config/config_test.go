package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/g65/pkg/cli"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	if cfg.OutFile != "a.hex" || cfg.Format != FormatHex || cfg.MaxSteps != DefaultMaxSteps {
		t.Errorf("defaults = %q %q %d", cfg.OutFile, cfg.Format, cfg.MaxSteps)
	}
	if cfg.IsWarningEnabled(WarnPedantic) || !cfg.IsWarningEnabled(WarnUnused) {
		t.Errorf("unexpected default warning state")
	}
	for ft := Feature(0); ft < FeatCount; ft++ {
		if !cfg.IsFeatureEnabled(ft) {
			t.Errorf("feature %s disabled by default", cfg.Features[ft].Name)
		}
	}
	if err := cfg.SetFormat("elf"); err == nil {
		t.Errorf("SetFormat(\"elf\") succeeded")
	}
	if err := cfg.SetFormat(FormatCBOR); err != nil || cfg.Format != FormatCBOR {
		t.Errorf("SetFormat(cbor) = %v, Format %q", err, cfg.Format)
	}
}

func process(t *testing.T, args ...string) *Config {
	t.Helper()
	cfg := NewConfig()
	fs := cli.NewFlagSet("g65")
	cfg.SetupFlagGroups(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%q): %v", args, err)
	}
	cfg.ProcessFlags(func(fn func(string)) {
		fs.Visit(func(f *cli.Flag) { fn(f.Name) })
	})
	return cfg
}

func enabledWarnings(cfg *Config) []string {
	var out []string
	for wt := Warning(0); wt < WarnCount; wt++ {
		if cfg.IsWarningEnabled(wt) {
			out = append(out, cfg.Warnings[wt].Name)
		}
	}
	return out
}

func TestProcessFlags(t *testing.T) {
	tests := []struct {
		args []string
		want []string
	}{
		{nil, []string{"unused", "uninitialized", "unused-init", "missing-eop", "skip", "extra"}},
		{[]string{"-Wunused", "-Wno-all"}, []string{"unused"}},
		{[]string{"-Wno-skip", "-Wno-extra"}, []string{"unused", "uninitialized", "unused-init", "missing-eop"}},
		{[]string{"-Wno-all", "-Wpedantic"}, []string{"unused", "uninitialized", "unused-init", "missing-eop", "skip", "pedantic", "extra"}},
	}
	for _, tc := range tests {
		cfg := process(t, tc.args...)
		if diff := cmp.Diff(tc.want, enabledWarnings(cfg)); diff != "" {
			t.Errorf("flags %q (-want +got):\n%s", tc.args, diff)
		}
	}

	cfg := process(t, "-Fno-intern-strings")
	if cfg.IsFeatureEnabled(FeatInternStrings) || !cfg.IsFeatureEnabled(FeatReuseTemps) {
		t.Errorf("-Fno-intern-strings not applied")
	}
}

func TestLoadAndApplyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, `
[output]
file = "prog.bin"
format = "bin"

[vm]
max-steps = 500

[warnings]
unused = false

[features]
reuse-temps = false
`)
	f, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg := NewConfig()
	if err := cfg.ApplyFile(f); err != nil {
		t.Fatal(err)
	}
	if cfg.OutFile != "prog.bin" || cfg.Format != FormatBin || cfg.MaxSteps != 500 {
		t.Errorf("got %q %q %d", cfg.OutFile, cfg.Format, cfg.MaxSteps)
	}
	if cfg.IsWarningEnabled(WarnUnused) || cfg.IsFeatureEnabled(FeatReuseTemps) {
		t.Errorf("[warnings]/[features] not applied")
	}
}

func TestApplyFileErrors(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"[warnings]\nnoisy = true\n", "unknown warning 'noisy'"},
		{"[features]\nturbo = true\n", "unknown feature 'turbo'"},
		{"[vm]\nmax-steps = -1\n", "must not be negative"},
		{"[output]\nformat = \"elf\"\n", "unsupported output format"},
	}
	for _, tc := range tests {
		path := filepath.Join(t.TempDir(), FileName)
		writeFile(t, path, tc.content)
		f, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile(%q): %v", tc.content, err)
		}
		err = NewConfig().ApplyFile(f)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("ApplyFile(%q) = %v; want error containing %q", tc.content, err, tc.want)
		}
	}

	path := filepath.Join(t.TempDir(), FileName)
	writeFile(t, path, "[output\n")
	if _, err := LoadFile(path); err == nil {
		t.Errorf("LoadFile accepted malformed toml")
	}
}

func TestFindFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, FileName), "")

	got, err := FindFile(nested)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.Abs(filepath.Join(root, FileName))
	if got != want {
		t.Errorf("FindFile = %q; want %q", got, want)
	}
}
