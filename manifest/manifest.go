// Package manifest handles fusabi.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a fusabi.toml project configuration.
type Manifest struct {
	Project  Project  `toml:"project"`
	Source   Source   `toml:"source"`
	Engine   Engine   `toml:"engine"`
	Bytecode Bytecode `toml:"bytecode"`

	// Dir is the directory containing the fusabi.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
}

// Engine configures execution limits and the async runtime.
type Engine struct {
	MaxStackDepth        uint32 `toml:"max-stack-depth"`
	MaxInstructions      uint64 `toml:"max-instructions"`
	EnableAsync          *bool  `toml:"enable-async"`
	AsyncWorkerThreads   uint32 `toml:"async-worker-threads"`
	DebugInfo            bool   `toml:"debug-info"`
	StrictExhaustiveness bool   `toml:"strict-exhaustiveness"`
}

// Bytecode configures .fzb output and the compiled-chunk cache.
type Bytecode struct {
	Output    string `toml:"output"`
	CachePath string `toml:"cache-path"`
}

// Load parses a fusabi.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "fusabi.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Project.Version == "" {
		m.Project.Version = "0.1.0"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a fusabi.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		if _, statErr := os.Stat(filepath.Join(dir, "fusabi.toml")); statErr == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath resolves the configured entry file relative to the manifest.
func (m *Manifest) EntryPath() string {
	if m.Entry() == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Entry())
}

// Entry returns the configured entry file, defaulting to main.fsx in the
// first source dir.
func (m *Manifest) Entry() string {
	if m.Source.Entry != "" {
		return m.Source.Entry
	}
	if len(m.Source.Dirs) > 0 {
		return filepath.Join(m.Source.Dirs[0], "main.fsx")
	}
	return ""
}
