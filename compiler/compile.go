package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fusabi-lang/fusabi/vm"
)

// ---------------------------------------------------------------------------
// Compilation pipeline: parse -> infer -> codegen
// ---------------------------------------------------------------------------

// Options configures a compilation.
type Options struct {
	// Debug attaches source spans to emitted instructions.
	Debug bool
	// SourceFile names the unit in diagnostics and debug info.
	SourceFile string
	// HostNames lists registered host functions; unknown qualified names in
	// this set type as opaque.
	HostNames []string
	// StrictExhaustiveness turns non-exhaustive match warnings into errors.
	StrictExhaustiveness bool
}

// Result is the output of a successful compilation.
type Result struct {
	Chunk    *vm.Chunk
	Warnings []Warning
	// Type is the inferred type of the program's final value.
	Type Type
}

// Session carries the accumulating compilation state of a REPL or an
// engine instance: type definitions, the type environment and the set of
// global names defined so far.
type Session struct {
	defs    *TypeDefs
	env     *TypeEnv
	inf     *Inferencer
	known   map[string]bool
	hosts   map[string]bool
	members map[string][]string // module path -> member names
	opts    Options

	// versions and aliases implement top-level shadowing: each re-binding
	// of a name gets a fresh global slot, so closures compiled earlier
	// keep reading the slot they were compiled against.
	versions map[string]int
	aliases  map[string]string // stable name -> current runtime slot

	// Modules is the registry of compiled modules for qualified lookup.
	Modules *ModuleRegistry
}

// NewSession creates compilation state seeded with the standard library.
func NewSession(opts Options) *Session {
	defs := NewTypeDefs()
	hosts := make(map[string]bool, len(opts.HostNames))
	for _, name := range opts.HostNames {
		hosts[name] = true
	}
	inf := NewInferencer(defs, func(name string) bool { return hosts[name] })
	env := inf.BaseEnv()

	known := make(map[string]bool, len(opts.HostNames)+8)
	for _, name := range opts.HostNames {
		known[name] = true
	}
	for e := env; e != nil; e = e.parent {
		for name := range e.bindings {
			known[name] = true
		}
	}
	known[matchFailureFn] = true

	return &Session{
		defs:     defs,
		env:      NewTypeEnv(env),
		inf:      inf,
		known:    known,
		hosts:    hosts,
		members:  make(map[string][]string),
		opts:     opts,
		versions: make(map[string]int),
		aliases:  make(map[string]string),
		Modules:  NewModuleRegistry(),
	}
}

// AddHostName makes a late-registered host function visible to later
// compilations.
func (s *Session) AddHostName(name string) {
	s.hosts[name] = true
	s.known[name] = true
}

// ParseAndInfer runs the front half of the pipeline, updating the
// session's type environment with the unit's top-level bindings.
func (s *Session) ParseAndInfer(source string) (*Program, Type, error) {
	parser := NewParser(source)
	prog := parser.ParseProgram()
	if errs := parser.Errors(); len(errs) > 0 {
		return nil, nil, joinErrors(errs)
	}

	progType := s.inferProgram(prog)
	if errs := s.inf.Errors(); len(errs) > 0 {
		// Reset the error list so a REPL session survives a bad line.
		s.inf.errors = nil
		return nil, nil, joinErrors(errs)
	}
	return prog, progType, nil
}

// Compile runs the full pipeline over one source unit, updating the
// session's environment with its top-level bindings.
func (s *Session) Compile(source string) (*Result, error) {
	prog, progType, err := s.ParseAndInfer(source)
	if err != nil {
		return nil, err
	}

	cg := NewCodegen(s.inf, s.known, s.aliases, s.opts.Debug, s.opts.SourceFile)
	chunk := s.compileProgram(cg, prog)
	if s.opts.StrictExhaustiveness {
		for _, w := range cg.Warnings() {
			cg.errorf(w.Pos, "%s", w.Msg)
		}
	}
	if errs := cg.Errors(); len(errs) > 0 {
		return nil, joinErrors(errs)
	}

	return &Result{Chunk: chunk, Warnings: cg.Warnings(), Type: progType}, nil
}

func joinErrors[E error](errs []E) error {
	wrapped := make([]error, len(errs))
	for i, e := range errs {
		wrapped[i] = e
	}
	return errors.Join(wrapped...)
}

// ---------------------------------------------------------------------------
// Program-level inference
// ---------------------------------------------------------------------------

func (s *Session) inferProgram(prog *Program) Type {
	return s.inferItems(prog.Items, s.env, "")
}

func (s *Session) inferItems(items []Item, env *TypeEnv, prefix string) Type {
	var lastType Type = TypeUnit

	for _, item := range items {
		switch it := item.(type) {
		case *TypeItem:
			if it.Record != nil {
				s.defs.AddRecord(it.Record)
			}
			if it.Du != nil {
				s.defs.AddDu(it.Du)
			}

		case *LetItem:
			lastType = s.inferLetItem(it, env, prefix)

		case *ExprItem:
			lastType = s.inf.Infer(env, it.Value)

		case *ModuleItem:
			childPrefix := it.Name
			if prefix != "" {
				childPrefix = prefix + "." + it.Name
			}
			child := NewTypeEnv(env)
			s.inferItems(it.Items, child, childPrefix)
			if prefix == "" {
				s.Modules.Register(s.buildModule(it, childPrefix))
			}
			lastType = TypeUnit

		case *OpenItem:
			path := strings.Join(it.Path, ".")
			members, ok := s.members[path]
			if !ok {
				s.inf.errorf(it.P, "unknown module %q", path)
				continue
			}
			for _, member := range members {
				if scheme, found := env.Lookup(path + "." + member); found {
					env.Bind(member, scheme)
				}
			}
		}
	}
	return lastType
}

func (s *Session) inferLetItem(it *LetItem, env *TypeEnv, prefix string) Type {
	bindings := []RecBinding{{Name: it.Name, Value: it.Value}}
	bindings = append(bindings, it.And...)
	it.runtimeNames = make([]string, len(bindings))

	var resultType Type = TypeUnit
	if it.Rec {
		// Recursive groups see their fresh slots immediately.
		for i, b := range bindings {
			it.runtimeNames[i] = s.allocateGlobal(prefix, b.Name)
		}
		pre := make([]Type, len(bindings))
		for i, b := range bindings {
			pre[i] = s.inf.fresh()
			env.Bind(b.Name, &Scheme{Body: pre[i]})
		}
		for i, b := range bindings {
			s.inf.unify(pre[i], s.inf.Infer(env, b.Value), it.P)
		}
		for i, b := range bindings {
			s.bindTopLevel(env, prefix, b.Name, s.inf.generalize(env, pre[i]))
		}
		resultType = pre[0]
	} else {
		valueType := s.inf.Infer(env, it.Value)
		it.runtimeNames[0] = s.allocateGlobal(prefix, it.Name)
		scheme := &Scheme{Body: valueType}
		if isSyntacticValue(it.Value) {
			scheme = s.inf.generalize(env, valueType)
		}
		s.bindTopLevel(env, prefix, it.Name, scheme)
		resultType = valueType
	}
	return resultType
}

// allocateGlobal assigns the runtime slot for a top-level binding. The
// first binding of a name owns the plain slot; shadowing gets a versioned
// one.
func (s *Session) allocateGlobal(prefix, name string) string {
	full := name
	if prefix != "" {
		full = prefix + "." + name
	}
	s.versions[full]++
	runtime := full
	if s.versions[full] > 1 {
		runtime = fmt.Sprintf("%s@%d", full, s.versions[full])
	}
	return runtime
}

// GlobalName resolves a stable binding name to its current runtime slot.
func (s *Session) GlobalName(name string) string {
	if runtime, ok := s.aliases[name]; ok {
		return runtime
	}
	return name
}

// buildModule records a module's member surface for qualified lookup.
func (s *Session) buildModule(it *ModuleItem, prefix string) *Module {
	m := &Module{Name: it.Name, Bindings: s.members[prefix]}
	for _, child := range it.Items {
		if nested, ok := child.(*ModuleItem); ok {
			m.Nested = append(m.Nested, s.buildModule(nested, prefix+"."+nested.Name))
		}
	}
	return m
}

// bindTopLevel installs a binding under its plain name, and under its
// qualified name when inside a module, recording module membership.
func (s *Session) bindTopLevel(env *TypeEnv, prefix, name string, scheme *Scheme) {
	env.Bind(name, scheme)
	if prefix == "" {
		s.known[name] = true
		return
	}
	qualified := prefix + "." + name
	// Qualified names resolve from anywhere, so bind at the session root.
	s.env.Bind(qualified, scheme)
	s.known[qualified] = true
	s.members[prefix] = append(s.members[prefix], name)
}

// ---------------------------------------------------------------------------
// Program-level code generation
// ---------------------------------------------------------------------------

func (s *Session) compileProgram(cg *Codegen, prog *Program) *vm.Chunk {
	unitName := s.opts.SourceFile
	if unitName == "" {
		unitName = "<top>"
	}
	fc := newFuncCompiler(cg, nil, unitName)
	s.compileItems(fc, cg, prog.Items, true)
	return fc.finish()
}

func (s *Session) compileItems(fc *funcCompiler, cg *Codegen, items []Item, topLevel bool) {
	lastValueIdx := -1
	if topLevel {
		for i, item := range items {
			switch item.(type) {
			case *ExprItem, *LetItem:
				lastValueIdx = i
			}
		}
	}

	for i, item := range items {
		isLast := topLevel && i == lastValueIdx
		switch it := item.(type) {
		case *TypeItem:
			// Types exist only at compile time.

		case *LetItem:
			s.compileLetItem(fc, cg, it, isLast)

		case *ExprItem:
			fc.compileExpr(it.Value)
			if !isLast {
				fc.builder.Emit(vm.OpPop)
			}

		case *ModuleItem:
			saved := cg.modulePrefix
			if saved == "" {
				cg.modulePrefix = it.Name
			} else {
				cg.modulePrefix = saved + "." + it.Name
			}
			s.compileItems(fc, cg, it.Items, false)
			cg.modulePrefix = saved

		case *OpenItem:
			cg.opens = append(cg.opens, strings.Join(it.Path, "."))
		}
	}

	if topLevel && lastValueIdx == -1 {
		fc.builder.EmitConst(vm.Unit)
	}
}

func (s *Session) compileLetItem(fc *funcCompiler, cg *Codegen, it *LetItem, isLast bool) {
	bindings := []RecBinding{{Name: it.Name, Value: it.Value}}
	bindings = append(bindings, it.And...)

	stable := make([]string, len(bindings))
	slots := make([]string, len(bindings))
	for i, b := range bindings {
		stable[i] = b.Name
		if cg.modulePrefix != "" {
			stable[i] = cg.modulePrefix + "." + b.Name
		}
		cg.knownGlobals[stable[i]] = true
		slots[i] = stable[i]
		if i < len(it.runtimeNames) && it.runtimeNames[i] != "" {
			slots[i] = it.runtimeNames[i]
		}
	}

	// A recursive group sees its own fresh slots; a plain binding's right
	// hand side still reads the previous slot of a shadowed name.
	if it.Rec {
		for i := range bindings {
			s.aliases[stable[i]] = slots[i]
		}
	}
	for i, b := range bindings {
		fc.compileExpr(b.Value)
		idx := fc.chunk.AddConstant(vm.StrValue(slots[i]))
		fc.builder.EmitU16(vm.OpStoreGlobal, idx)
		s.aliases[stable[i]] = slots[i]
	}

	if isLast {
		fc.emitLoadGlobal(slots[0], it.P)
	}
}
