package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/fusabi-lang/fusabi/vm"
)

// ---------------------------------------------------------------------------
// ModuleRegistry: module binding tables with qualified lookup
// ---------------------------------------------------------------------------

// Module records a compiled module's exported surface.
type Module struct {
	Name     string
	Bindings []string
	Nested   []*Module
}

// ModuleRegistry stores top-level modules by name and resolves qualified
// paths like ["Geometry", "Circle"] + "area".
type ModuleRegistry struct {
	modules map[string]*Module
}

// NewModuleRegistry creates an empty registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{modules: make(map[string]*Module)}
}

// Register adds (or replaces) a top-level module.
func (r *ModuleRegistry) Register(m *Module) {
	r.modules[m.Name] = m
}

// Has reports whether a top-level module exists.
func (r *ModuleRegistry) Has(name string) bool {
	_, ok := r.modules[name]
	return ok
}

// Resolve walks a module path and reports whether binding exists there.
// The resolved global name is path joined with the binding by dots.
func (r *ModuleRegistry) Resolve(path []string, binding string) (string, bool) {
	if len(path) == 0 {
		return "", false
	}
	m, ok := r.modules[path[0]]
	if !ok {
		return "", false
	}
	for _, segment := range path[1:] {
		var next *Module
		for _, nested := range m.Nested {
			if nested.Name == segment {
				next = nested
				break
			}
		}
		if next == nil {
			return "", false
		}
		m = next
	}
	for _, b := range m.Bindings {
		if b == binding {
			return strings.Join(path, ".") + "." + binding, true
		}
	}
	return "", false
}

// ModuleNames lists registered top-level modules.
func (r *ModuleRegistry) ModuleNames() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	return names
}

// ---------------------------------------------------------------------------
// Loader: #load resolution with cycle detection and memoization
// ---------------------------------------------------------------------------

var loaderLog = commonlog.GetLogger("fusabi.loader")

// LoadError wraps a failure with the faulting path (and, for circular
// dependencies, the chain).
type LoadError struct {
	Path  string
	Chain []string
	Err   error
}

func (e *LoadError) Error() string {
	if len(e.Chain) > 0 {
		return fmt.Sprintf("circular dependency: %s", strings.Join(e.Chain, " -> "))
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadedUnit is one compiled file in dependency order.
type LoadedUnit struct {
	Path  string
	Chunk *vm.Chunk
}

// Loader resolves #load directives relative to the loading file,
// canonicalizes paths, memoizes compiled units and detects cycles. An
// optional chunk cache skips code generation for unchanged sources.
type Loader struct {
	session    *Session
	cache      map[string]*vm.Chunk
	loading    []string
	inFlight   map[string]bool
	chunkCache *vm.ChunkCache
}

// NewLoader creates a loader compiling into the given session. chunkCache
// may be nil.
func NewLoader(session *Session, chunkCache *vm.ChunkCache) *Loader {
	return &Loader{
		session:    session,
		cache:      make(map[string]*vm.Chunk),
		inFlight:   make(map[string]bool),
		chunkCache: chunkCache,
	}
}

// resolvePath resolves a directive path relative to the loading file.
// Absolute paths are taken verbatim; "pkg:" is reserved for a future
// package resolver.
func (l *Loader) resolvePath(fromFile, path string) (string, error) {
	if strings.HasPrefix(path, "pkg:") {
		return "", fmt.Errorf("pkg: paths are not supported yet")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(fromFile), path)
	}
	canonical, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(canonical); err == nil {
		canonical = resolved
	}
	return canonical, nil
}

// LoadFile compiles a file and everything it loads, returning units in
// dependency order (dependencies first). Revisiting a cached path yields
// no duplicate units.
func (l *Loader) LoadFile(path string) ([]LoadedUnit, error) {
	canonical, err := l.resolvePath(".", path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return l.loadCanonical(canonical)
}

func (l *Loader) loadCanonical(canonical string) ([]LoadedUnit, error) {
	if _, done := l.cache[canonical]; done {
		return nil, nil
	}
	if l.inFlight[canonical] {
		chain := append(append([]string{}, l.loading...), canonical)
		return nil, &LoadError{Path: canonical, Chain: chain}
	}

	data, err := os.ReadFile(canonical)
	if err != nil {
		return nil, &LoadError{Path: canonical, Err: err}
	}
	source := string(data)

	l.inFlight[canonical] = true
	l.loading = append(l.loading, canonical)
	defer func() {
		delete(l.inFlight, canonical)
		l.loading = l.loading[:len(l.loading)-1]
	}()

	// Directives are processed in textual order before this file's own
	// bindings compile, so loaded names are visible.
	parser := NewParser(source)
	prog := parser.ParseProgram()
	if errs := parser.Errors(); len(errs) > 0 {
		return nil, &LoadError{Path: canonical, Err: joinErrors(errs)}
	}

	var units []LoadedUnit
	for _, directive := range prog.Directives {
		depPath, err := l.resolvePath(canonical, directive.Path)
		if err != nil {
			return nil, &LoadError{Path: canonical, Err: err}
		}
		depUnits, err := l.loadCanonical(depPath)
		if err != nil {
			return nil, err
		}
		units = append(units, depUnits...)
	}

	chunk, err := l.compileUnit(canonical, source)
	if err != nil {
		return nil, err
	}
	l.cache[canonical] = chunk
	return append(units, LoadedUnit{Path: canonical, Chunk: chunk}), nil
}

// compileUnit compiles one file, consulting the on-disk chunk cache by
// source hash. A cache hit still runs inference so the session's type
// environment learns the unit's bindings.
func (l *Loader) compileUnit(canonical, source string) (*vm.Chunk, error) {
	sourceHash := vm.HashSource(source)

	if l.chunkCache != nil {
		if cached, _ := l.chunkCache.Get(sourceHash); cached != nil {
			loaderLog.Debugf("chunk cache hit for %s", canonical)
			if _, _, err := l.session.ParseAndInfer(source); err != nil {
				return nil, &LoadError{Path: canonical, Err: err}
			}
			return cached, nil
		}
	}

	savedFile := l.session.opts.SourceFile
	l.session.opts.SourceFile = canonical
	result, err := l.session.Compile(source)
	l.session.opts.SourceFile = savedFile
	if err != nil {
		return nil, &LoadError{Path: canonical, Err: err}
	}
	for _, w := range result.Warnings {
		loaderLog.Warningf("%s: %s: %s", canonical, w.Pos, w.Msg)
	}

	if l.chunkCache != nil {
		meta := vm.ImageMetadata{
			ModuleName: strings.TrimSuffix(filepath.Base(canonical), filepath.Ext(canonical)),
			SourceHash: sourceHash,
		}
		if err := l.chunkCache.Put(canonical, sourceHash, result.Chunk, meta); err != nil {
			loaderLog.Warningf("cannot cache chunk for %s: %v", canonical, err)
		}
	}
	return result.Chunk, nil
}
