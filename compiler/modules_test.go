package compiler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoaderResolvesRelativeLoads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.fsx", "let libValue = 2")
	main := writeFile(t, dir, "main.fsx", "#load \"lib.fsx\"\nlet total = libValue + 1")

	loader := NewLoader(NewSession(Options{}), nil)
	units, err := loader.LoadFile(main)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("unit count = %d, want 2 (dependency first)", len(units))
	}
	if !strings.HasSuffix(units[0].Path, "lib.fsx") {
		t.Errorf("dependency order wrong: %s first", units[0].Path)
	}
}

func TestLoaderMemoizesSharedDependency(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shared.fsx", "let shared = 1")
	writeFile(t, dir, "a.fsx", "#load \"shared.fsx\"\nlet a = shared")
	main := writeFile(t, dir, "main.fsx",
		"#load \"a.fsx\"\n#load \"shared.fsx\"\nlet total = a + shared")

	loader := NewLoader(NewSession(Options{}), nil)
	units, err := loader.LoadFile(main)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	// shared.fsx appears once even though two files load it.
	if len(units) != 3 {
		t.Fatalf("unit count = %d, want 3", len(units))
	}
}

func TestLoaderDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.fsx", "#load \"b.fsx\"\nlet a = 1")
	pathA := filepath.Join(dir, "a.fsx")
	writeFile(t, dir, "b.fsx", "#load \"a.fsx\"\nlet b = 2")

	loader := NewLoader(NewSession(Options{}), nil)
	_, err := loader.LoadFile(pathA)
	if err == nil {
		t.Fatal("cycle not detected")
	}
	loadErr, ok := err.(*LoadError)
	if !ok || len(loadErr.Chain) == 0 {
		t.Errorf("err = %v, want LoadError with cycle chain", err)
	}
}

func TestLoaderReportsMissingFile(t *testing.T) {
	loader := NewLoader(NewSession(Options{}), nil)
	_, err := loader.LoadFile(filepath.Join(t.TempDir(), "absent.fsx"))
	if err == nil {
		t.Fatal("no error for missing file")
	}
}

func TestLoaderRejectsPkgPaths(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "main.fsx", "#load \"pkg:foo\"\nlet x = 1")
	loader := NewLoader(NewSession(Options{}), nil)
	if _, err := loader.LoadFile(main); err == nil {
		t.Fatal("pkg: path accepted")
	}
}

func TestModuleRegistryQualifiedLookup(t *testing.T) {
	registry := NewModuleRegistry()
	registry.Register(&Module{
		Name:     "Geometry",
		Bindings: []string{"origin"},
		Nested: []*Module{
			{Name: "Circle", Bindings: []string{"area"}},
		},
	})

	name, ok := registry.Resolve([]string{"Geometry", "Circle"}, "area")
	if !ok || name != "Geometry.Circle.area" {
		t.Errorf("Resolve = %q/%v, want Geometry.Circle.area", name, ok)
	}
	if _, ok := registry.Resolve([]string{"Geometry"}, "missing"); ok {
		t.Error("resolved a missing binding")
	}
	if _, ok := registry.Resolve([]string{"Absent"}, "x"); ok {
		t.Error("resolved through a missing module")
	}
}

func TestSessionRegistersModules(t *testing.T) {
	session := NewSession(Options{})
	source := "module Math =\n  let add x y = x + y"
	if _, err := session.Compile(source); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !session.Modules.Has("Math") {
		t.Fatal("module Math not registered")
	}
	if name, ok := session.Modules.Resolve([]string{"Math"}, "add"); !ok || name != "Math.add" {
		t.Errorf("Resolve = %q/%v, want Math.add", name, ok)
	}
}
