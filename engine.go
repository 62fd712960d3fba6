// Package fusabi is the embedding surface of the Fusabi scripting system:
// a typed Mini-F# front end compiled to a stack-based bytecode VM with an
// async sub-runtime and a host-function registry.
package fusabi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/fusabi-lang/fusabi/compiler"
	"github.com/fusabi-lang/fusabi/vm"
)

var engineLog = commonlog.GetLogger("fusabi.engine")

// Config configures an Engine.
type Config struct {
	// MaxStackDepth bounds the call frame depth. Zero means 1024.
	MaxStackDepth uint32
	// MaxInstructions bounds instructions per entry point. Zero means
	// unbounded.
	MaxInstructions uint64
	// EnableAsync controls whether the async runtime is started.
	EnableAsync bool
	// AsyncWorkerThreads sizes the executor pool. Zero means the logical
	// CPU count.
	AsyncWorkerThreads uint32
	// DebugInfo attaches source spans to compiled chunks.
	DebugInfo bool
	// StrictExhaustiveness turns non-exhaustive match warnings into
	// compile errors.
	StrictExhaustiveness bool
	// ChunkCachePath, when set, opens an on-disk compiled-chunk cache used
	// by #load.
	ChunkCachePath string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxStackDepth: 1024,
		EnableAsync:   true,
	}
}

// Engine owns a compilation session, a VM and the runtimes behind it.
// One Engine corresponds to one isolated script environment.
type Engine struct {
	config   Config
	registry *vm.HostRegistry
	async    *vm.AsyncRuntime
	machine  *vm.VM
	session  *compiler.Session
	loader   *compiler.Loader
	cache    *vm.ChunkCache
}

// NewEngine builds an engine with the standard library registered.
func NewEngine(config Config) (*Engine, error) {
	registry := vm.NewHostRegistry()
	vm.RegisterStdlib(registry)

	var async *vm.AsyncRuntime
	if config.EnableAsync {
		async = vm.NewAsyncRuntime(int(config.AsyncWorkerThreads))
	}

	machine := vm.NewVM(registry, async, vm.Limits{
		MaxFrames:       int(config.MaxStackDepth),
		MaxInstructions: config.MaxInstructions,
	})
	registry.SnapshotInto(machine)

	session := compiler.NewSession(compiler.Options{
		Debug:                config.DebugInfo,
		HostNames:            registry.Names(),
		StrictExhaustiveness: config.StrictExhaustiveness,
	})

	var cache *vm.ChunkCache
	if config.ChunkCachePath != "" {
		var err error
		cache, err = vm.OpenChunkCache(config.ChunkCachePath)
		if err != nil {
			if async != nil {
				async.Close()
			}
			return nil, err
		}
	}

	return &Engine{
		config:   config,
		registry: registry,
		async:    async,
		machine:  machine,
		session:  session,
		loader:   compiler.NewLoader(session, cache),
		cache:    cache,
	}, nil
}

// Close releases the async runtime and the chunk cache.
func (e *Engine) Close() {
	if e.async != nil {
		e.async.Close()
	}
	if e.cache != nil {
		e.cache.Close()
	}
}

// Compile parses, infers and compiles source without executing it.
func (e *Engine) Compile(source string) (*vm.Chunk, error) {
	result, err := e.session.Compile(source)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		engineLog.Warningf("%s: %s", w.Pos, w.Msg)
	}
	return result.Chunk, nil
}

// Eval parses, infers, compiles and executes source, returning the value
// of its final binding or expression.
func (e *Engine) Eval(source string) (vm.Value, error) {
	chunk, err := e.Compile(source)
	if err != nil {
		return vm.Unit, err
	}
	return e.Execute(chunk)
}

// Execute runs an already-compiled chunk on the engine's VM.
func (e *Engine) Execute(chunk *vm.Chunk) (vm.Value, error) {
	value, verr := e.machine.Execute(chunk)
	if verr != nil {
		return vm.Unit, verr
	}
	return value, nil
}

// EvalFile loads a file, resolving its #load directives with cycle
// detection, and executes every unit in dependency order.
func (e *Engine) EvalFile(path string) (vm.Value, error) {
	units, err := e.loader.LoadFile(path)
	if err != nil {
		return vm.Unit, err
	}
	result := vm.Unit
	for _, unit := range units {
		engineLog.Debugf("executing %s", unit.Path)
		result, err = e.Execute(unit.Chunk)
		if err != nil {
			return vm.Unit, fmt.Errorf("%s: %w", unit.Path, err)
		}
	}
	return result, nil
}

// Call invokes a top-level bound function by name. Compiled functions are
// curried, so arguments are applied one at a time; native functions take
// them in one call.
func (e *Engine) Call(name string, args ...vm.Value) (vm.Value, error) {
	callee, ok := e.machine.Global(e.session.GlobalName(name))
	if !ok {
		return vm.Unit, fmt.Errorf("no top-level binding %q", name)
	}
	if callee.Kind == vm.KindNative {
		value, verr := e.machine.CallValue(callee, args)
		if verr != nil {
			return vm.Unit, verr
		}
		return value, nil
	}
	current := callee
	if len(args) == 0 {
		value, verr := e.machine.CallValue(current, nil)
		if verr != nil {
			return vm.Unit, verr
		}
		return value, nil
	}
	for _, arg := range args {
		value, verr := e.machine.CallValue(current, []vm.Value{arg})
		if verr != nil {
			return vm.Unit, verr
		}
		current = value
	}
	return current, nil
}

// Register binds a host function. Registering an existing name overwrites
// it and logs a warning. Functions registered after engine construction
// are visible to scripts compiled afterwards.
func (e *Engine) Register(name string, arity int, fn vm.HostFunc) {
	e.registry.Register(name, arity, fn)
	if native, ok := e.registry.Lookup(name); ok {
		e.machine.DefineGlobal(name, vm.NativeValue(native))
	}
	e.session.AddHostName(name)
}

// RegisterAsync binds a host function whose work runs on the async
// executor; scripts receive a task handle immediately.
func (e *Engine) RegisterAsync(name string, arity int, fn vm.HostFunc) {
	e.Register(name, arity, func(machine *vm.VM, args []vm.Value) (vm.Value, *vm.VmError) {
		async := machine.Async()
		if async == nil {
			return vm.Unit, vm.HostError("async runtime is disabled")
		}
		captured := make([]vm.Value, len(args))
		copy(captured, args)
		id := async.Spawn(func(ctx context.Context) (vm.Value, *vm.VmError) {
			return fn(machine.Fork(), captured)
		})
		return vm.AsyncValue(id), nil
	})
}

// Grind compiles a source file and serializes it to a .fzb image.
func (e *Engine) Grind(sourcePath, outPath string) error {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}
	source := string(data)
	chunk, err := e.Compile(source)
	if err != nil {
		return err
	}
	meta := vm.ImageMetadata{
		ModuleName: strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath)),
		SourceHash: vm.HashSource(source),
		Timestamp:  time.Now().Unix(),
	}
	return vm.NewImageWriter().WriteImageFile(outPath, chunk, meta)
}

// ExecFile loads, validates and runs a .fzb image.
func (e *Engine) ExecFile(path string) (vm.Value, error) {
	chunk, _, err := vm.ReadImageFile(path)
	if err != nil {
		return vm.Unit, err
	}
	return e.Execute(chunk)
}
