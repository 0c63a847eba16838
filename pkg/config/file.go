package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the project file looked up by FindFile.
const FileName = "g65.toml"

// File is the on-disk form of a g65.toml project file.
type File struct {
	Output   OutputSection   `toml:"output"`
	VM       VMSection       `toml:"vm"`
	Warnings map[string]bool `toml:"warnings"`
	Features map[string]bool `toml:"features"`

	// Path is the file the settings were read from (set at load time).
	Path string `toml:"-"`
}

type OutputSection struct {
	File   string `toml:"file"`
	Format string `toml:"format"`
}

type VMSection struct {
	MaxSteps int `toml:"max-steps"`
}

// LoadFile parses a project file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	f.Path = path
	return &f, nil
}

// FindFile walks up from startDir looking for g65.toml. It returns "" when
// no project file exists.
func FindFile(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// ApplyFile copies the project file's settings into the config. Unknown
// warning or feature names are reported rather than ignored.
func (c *Config) ApplyFile(f *File) error {
	if f == nil {
		return nil
	}
	if f.Output.File != "" {
		c.OutFile = f.Output.File
	}
	if f.Output.Format != "" {
		if err := c.SetFormat(f.Output.Format); err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}
	}
	if f.VM.MaxSteps < 0 {
		return fmt.Errorf("%s: vm.max-steps must not be negative", f.Path)
	}
	if f.VM.MaxSteps > 0 {
		c.MaxSteps = f.VM.MaxSteps
	}
	for name, enabled := range f.Warnings {
		wt, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("%s: unknown warning '%s'", f.Path, name)
		}
		c.SetWarning(wt, enabled)
	}
	for name, enabled := range f.Features {
		ft, ok := c.FeatureMap[name]
		if !ok {
			return fmt.Errorf("%s: unknown feature '%s'", f.Path, name)
		}
		c.SetFeature(ft, enabled)
	}
	return nil
}
