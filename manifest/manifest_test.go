package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleManifest = `
[project]
name = "geometry"
version = "1.2.0"

[source]
dirs = ["scripts"]
entry = "scripts/app.fsx"

[engine]
max-stack-depth = 512
async-worker-threads = 4
strict-exhaustiveness = true

[bytecode]
output = "out/app.fzb"
cache-path = ".fusabi/chunks.db"
`

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "fusabi.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, sampleManifest)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Project.Name != "geometry" || m.Project.Version != "1.2.0" {
		t.Errorf("project = %+v", m.Project)
	}
	if m.Engine.MaxStackDepth != 512 || m.Engine.AsyncWorkerThreads != 4 {
		t.Errorf("engine = %+v", m.Engine)
	}
	if !m.Engine.StrictExhaustiveness {
		t.Error("strict-exhaustiveness not parsed")
	}
	if m.Bytecode.CachePath != ".fusabi/chunks.db" {
		t.Errorf("cache path = %q", m.Bytecode.CachePath)
	}
	if m.Entry() != "scripts/app.fsx" {
		t.Errorf("entry = %q", m.Entry())
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[project]\nname = \"x\"\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default dirs = %v", m.Source.Dirs)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("default version = %q", m.Project.Version)
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"up\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m == nil || m.Project.Name != "up" {
		t.Errorf("manifest = %+v", m)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m != nil {
		t.Errorf("manifest = %+v, want nil", m)
	}
}

func TestLoadRejectsBadToml(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "not [valid toml")
	if _, err := Load(dir); err == nil {
		t.Error("bad toml accepted")
	}
}
