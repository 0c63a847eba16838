package config

import (
	"fmt"
	"strings"

	"github.com/xplshn/g65/pkg/cli"
)

type Feature int

const (
	FeatInternStrings Feature = iota
	FeatReuseTemps
	FeatImplicitEOP
	FeatCount
)

type Warning int

const (
	WarnUnused Warning = iota
	WarnUninitialized
	WarnUnusedInit
	WarnMissingEOP
	WarnSkip
	WarnPedantic
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

// Output formats understood by codegen.SelectBackend.
const (
	FormatHex  = "hex"
	FormatBin  = "bin"
	FormatCBOR = "cbor"
)

const DefaultMaxSteps = 100000

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	OutFile    string
	Format     string
	MaxSteps   int
	Verbosity  int
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		OutFile:    "a.hex",
		Format:     FormatHex,
		MaxSteps:   DefaultMaxSteps,
	}

	features := map[Feature]Info{
		FeatInternStrings: {"intern-strings", true, "Share one heap copy between identical string literals."},
		FeatReuseTemps:    {"reuse-temps", true, "Reuse freed anonymous temporaries before allocating new ones."},
		FeatImplicitEOP:   {"implicit-eop", true, "Close a program that is missing its final '$'."},
	}

	warnings := map[Warning]Info{
		WarnUnused:        {"unused", true, "Warn about variables that are declared but never used."},
		WarnUninitialized: {"uninitialized", true, "Warn about variables used before they are assigned."},
		WarnUnusedInit:    {"unused-init", true, "Warn about variables that are assigned but never read."},
		WarnMissingEOP:    {"missing-eop", true, "Warn when a program does not end with '$'."},
		WarnSkip:          {"skip", true, "Warn when a program is skipped because an earlier stage failed."},
		WarnPedantic:      {"pedantic", false, "Issue every warning, including stylistic ones."},
		WarnExtra:         {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// SetFormat validates and records the output format.
func (c *Config) SetFormat(format string) error {
	switch format {
	case FormatHex, FormatBin, FormatCBOR:
		c.Format = format
		return nil
	}
	return fmt.Errorf("unsupported output format '%s'. Supported: '%s', '%s', '%s'", format, FormatHex, FormatBin, FormatCBOR)
}

// SetupFlagGroups registers the -W and -F families on fs so they show up in
// the help page. The returned entries mirror the config's default state.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) (warningFlags, featureFlags []cli.FlagGroupEntry) {
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := info.Enabled, false
		warningFlags = append(warningFlags, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description, Enabled: &enabled, Disabled: &disabled,
		})
	}
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		enabled, disabled := info.Enabled, false
		featureFlags = append(featureFlags, cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description, Enabled: &enabled, Disabled: &disabled,
		})
	}
	var all, noAll bool
	fs.Bool(&all, "Wall", "", false, "Enable every warning except pedantic.")
	fs.Bool(&noAll, "Wno-all", "", false, "Disable every warning.")
	fs.AddFlagGroup("Warning Flags", "Enable or disable individual warnings.", "warning", "Available Warning Flags:", warningFlags)
	fs.AddFlagGroup("Feature Flags", "Enable or disable individual compiler features.", "feature", "Available Feature Flags:", featureFlags)
	return warningFlags, featureFlags
}

func (c *Config) applyFlag(flag string) bool {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		return false
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return true
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
			return true
		}
	} else if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
		return true
	}
	return false
}

// ProcessFlags applies the -W/-F flags the user actually passed. -Wall and
// -Wno-all go first so that individual flags can refine them.
func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
	if c.IsWarningEnabled(WarnPedantic) {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, true)
		}
	}
}
