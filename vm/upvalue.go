package vm

// ---------------------------------------------------------------------------
// Upvalue: a captured variable slot
// ---------------------------------------------------------------------------

// Upvalue refers to a variable captured from an enclosing frame. While open
// it addresses an absolute index on the VM's value stack; once the owning
// frame exits it is closed and owns the value directly.
type Upvalue struct {
	Index  int // absolute stack index while open
	Closed bool
	Value  Value // owned value once closed
}

// Get reads through the upvalue.
func (u *Upvalue) Get(vm *VM) Value {
	if u.Closed {
		return u.Value
	}
	return vm.stack[u.Index]
}

// Set writes through the upvalue.
func (u *Upvalue) Set(vm *VM, v Value) {
	if u.Closed {
		u.Value = v
		return
	}
	vm.stack[u.Index] = v
}

// close copies the pointed-at stack slot into the upvalue and detaches it
// from the stack.
func (u *Upvalue) close(vm *VM) {
	if !u.Closed {
		u.Value = vm.stack[u.Index]
		u.Closed = true
	}
}

// captureUpvalue returns the open upvalue for the given absolute stack
// index, creating it if none exists. Open upvalues are deduplicated per
// slot and kept sorted by index.
func (vm *VM) captureUpvalue(index int) *Upvalue {
	// openUpvalues is sorted ascending; search from the top since captures
	// cluster near the active frame.
	for i := len(vm.openUpvalues) - 1; i >= 0; i-- {
		u := vm.openUpvalues[i]
		if u.Index == index {
			return u
		}
		if u.Index < index {
			created := &Upvalue{Index: index}
			vm.openUpvalues = append(vm.openUpvalues, nil)
			copy(vm.openUpvalues[i+2:], vm.openUpvalues[i+1:])
			vm.openUpvalues[i+1] = created
			return created
		}
	}
	created := &Upvalue{Index: index}
	vm.openUpvalues = append([]*Upvalue{created}, vm.openUpvalues...)
	return created
}

// closeUpvalues closes every open upvalue at or above the given absolute
// stack index. Each is closed exactly once.
func (vm *VM) closeUpvalues(from int) {
	i := len(vm.openUpvalues)
	for i > 0 && vm.openUpvalues[i-1].Index >= from {
		i--
		vm.openUpvalues[i].close(vm)
	}
	vm.openUpvalues = vm.openUpvalues[:i]
}
