package vm

import (
	"sort"
	"sync"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// HostRegistry: named native functions callable from bytecode
// ---------------------------------------------------------------------------

var registryLog = commonlog.GetLogger("fusabi.registry")

// HostRegistry maps fully-qualified names ("List.map", "Async.sleep") to
// native functions. It is intended to be configured before VM construction
// and treated as read-mostly afterward; registration is synchronized for
// hosts that add functions late.
type HostRegistry struct {
	mu      sync.RWMutex
	entries map[string]*NativeFn
}

// NewHostRegistry creates an empty registry.
func NewHostRegistry() *HostRegistry {
	return &HostRegistry{entries: make(map[string]*NativeFn)}
}

// Register binds a native function under a qualified name. Registering an
// existing name overwrites the previous binding and logs a warning.
func (r *HostRegistry) Register(name string, arity int, fn HostFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		registryLog.Warningf("host function %q re-registered, previous binding replaced", name)
	}
	r.entries[name] = &NativeFn{Name: name, Arity: arity, Fn: fn}
}

// Lookup returns the native function bound to name.
func (r *HostRegistry) Lookup(name string) (*NativeFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.entries[name]
	return fn, ok
}

// Names returns all registered names in sorted order.
func (r *HostRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SnapshotInto installs every registered function into a VM's global table.
// Later registrations do not affect VMs snapshotted earlier.
func (r *HostRegistry) SnapshotInto(vm *VM) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, fn := range r.entries {
		vm.DefineGlobal(name, NativeValue(fn))
	}
}
