package vm

import (
	"strings"
)

// ---------------------------------------------------------------------------
// VM: stack machine executing chunks
// ---------------------------------------------------------------------------

// HostFunc is the signature of a native function callable from bytecode.
// Higher-order natives may re-enter the VM through CallValue.
type HostFunc func(vm *VM, args []Value) (Value, *VmError)

// Limits configures the resource ceilings a VM enforces.
type Limits struct {
	// MaxFrames bounds call depth. Zero means the default of 1024.
	MaxFrames int
	// MaxInstructions bounds instructions per entry. Zero means unbounded.
	MaxInstructions uint64
	// MaxAllocation bounds per-instruction array/list allocation size.
	// Zero means unbounded.
	MaxAllocation int
}

const defaultMaxFrames = 1024

// frame is one activation record: the running closure, its instruction
// pointer, and the absolute stack index of its first local slot.
type frame struct {
	closure *Closure
	ip      int
	base    int
}

// VM owns a value stack, a frame stack, the global table, the host
// registry handle and the async runtime handle. A VM is single-threaded;
// distinct VMs are isolated and may run in parallel.
type VM struct {
	stack        []Value
	frames       []frame
	globals      map[string]Value
	openUpvalues []*Upvalue
	registry     *HostRegistry
	async        *AsyncRuntime
	limits       Limits
	instCount    uint64
}

// NewVM constructs a VM bound to a host registry and an async runtime
// handle (which may be nil when async is disabled).
func NewVM(registry *HostRegistry, async *AsyncRuntime, limits Limits) *VM {
	if limits.MaxFrames <= 0 {
		limits.MaxFrames = defaultMaxFrames
	}
	if registry == nil {
		registry = NewHostRegistry()
	}
	return &VM{
		stack:    make([]Value, 0, 256),
		frames:   make([]frame, 0, 16),
		globals:  make(map[string]Value),
		registry: registry,
		async:    async,
		limits:   limits,
	}
}

// Fork creates a VM for executor-side evaluation: it shares the registry,
// async runtime and limits, and snapshots the global table. Forked VMs run
// on their own thread; they never touch the parent's stack or upvalues.
func (vm *VM) Fork() *VM {
	child := NewVM(vm.registry, vm.async, vm.limits)
	for name, v := range vm.globals {
		child.globals[name] = v
	}
	return child
}

// Registry returns the VM's host registry handle.
func (vm *VM) Registry() *HostRegistry { return vm.registry }

// Async returns the VM's async runtime handle, or nil.
func (vm *VM) Async() *AsyncRuntime { return vm.async }

// DefineGlobal binds a value into the global table.
func (vm *VM) DefineGlobal(name string, v Value) {
	vm.globals[name] = v
}

// Global looks up a global binding.
func (vm *VM) Global(name string) (Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// ---------------------------------------------------------------------------
// Stack helpers
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() (Value, *VmError) {
	if len(vm.stack) == 0 {
		return Unit, Errorf(ErrStackUnderflow, "pop on empty stack")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func (vm *VM) popBool() (bool, *VmError) {
	v, err := vm.pop()
	if err != nil {
		return false, err
	}
	if v.Kind != KindBool {
		return false, typeError("bool", v)
	}
	return v.Bool(), nil
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Execute runs a top-level chunk to completion and returns its result.
func (vm *VM) Execute(chunk *Chunk) (Value, *VmError) {
	closure := &Closure{Chunk: chunk, Name: chunk.Name}
	return vm.CallValue(ClosureValue(closure), nil)
}

// CallValue invokes a callable value with the given arguments, re-entering
// the dispatch loop with a fresh frame. Host functions use this to call
// script closures passed to them; stack invariants are preserved because
// execution unwinds back to the entry depth.
func (vm *VM) CallValue(callee Value, args []Value) (Value, *VmError) {
	entryDepth := len(vm.frames)
	entryStack := len(vm.stack)

	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	pushedFrame, result, err := vm.call(len(args))
	if err == nil {
		if pushedFrame {
			result, err = vm.run(entryDepth)
		} else {
			// Natives leave their result on the stack for bytecode callers;
			// the embedding path consumes it here.
			result, err = vm.pop()
		}
	}
	if err != nil {
		vm.unwind(entryDepth, entryStack)
		return Unit, err
	}
	return result, nil
}

// unwind tears down frames above entryDepth after an error, closing any
// upvalues that pointed into the discarded stack region.
func (vm *VM) unwind(entryDepth, entryStack int) {
	vm.closeUpvalues(entryStack)
	vm.frames = vm.frames[:entryDepth]
	vm.stack = vm.stack[:entryStack]
}

// call consumes [callee, arg1..argn] from the stack. For closures it
// pushes a frame and reports pushedFrame=true; for natives it invokes the
// function and pushes the result.
func (vm *VM) call(argc int) (pushedFrame bool, result Value, err *VmError) {
	if len(vm.stack) < argc+1 {
		return false, Unit, Errorf(ErrStackUnderflow, "call with %d args on short stack", argc)
	}
	calleeIdx := len(vm.stack) - argc - 1
	callee := vm.stack[calleeIdx]

	switch callee.Kind {
	case KindClosure:
		chunk := callee.Closure.Chunk
		if argc != chunk.Arity {
			return false, Unit, Errorf(ErrArity, "%s expects %d arguments, got %d",
				closureName(callee.Closure), chunk.Arity, argc)
		}
		if len(vm.frames) >= vm.limits.MaxFrames {
			return false, Unit, Errorf(ErrStackOverflow, "call depth exceeds %d frames", vm.limits.MaxFrames)
		}
		base := calleeIdx + 1
		for i := argc; i < chunk.LocalCount; i++ {
			vm.push(Unit)
		}
		vm.frames = append(vm.frames, frame{closure: callee.Closure, base: base})
		return true, Unit, nil

	case KindNative:
		native := callee.Native
		args := make([]Value, 0, len(native.Applied)+argc)
		args = append(args, native.Applied...)
		args = append(args, vm.stack[calleeIdx+1:]...)
		vm.stack = vm.stack[:calleeIdx]

		if len(args) < native.Arity {
			// Partial application binds the supplied prefix.
			partial := &NativeFn{Name: native.Name, Arity: native.Arity, Fn: native.Fn, Applied: args}
			vm.push(NativeValue(partial))
			return false, vm.stack[len(vm.stack)-1], nil
		}
		if len(args) > native.Arity {
			return false, Unit, Errorf(ErrArity, "%s expects %d arguments, got %d",
				native.Name, native.Arity, len(args))
		}
		out, herr := native.Fn(vm, args)
		if herr != nil {
			return false, Unit, herr
		}
		vm.push(out)
		return false, out, nil

	default:
		return false, Unit, Errorf(ErrNotCallable, "cannot call a %s", callee.Kind)
	}
}

func closureName(c *Closure) string {
	if c.Name != "" {
		return c.Name
	}
	return "function"
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// run executes frames until the frame stack returns to entryDepth, then
// pops and returns the value the last frame produced.
func (vm *VM) run(entryDepth int) (Value, *VmError) {
	for len(vm.frames) > entryDepth {
		fr := &vm.frames[len(vm.frames)-1]
		chunk := fr.closure.Chunk
		code := chunk.Code

		if fr.ip >= len(code) {
			// Code fall-through returns unit.
			if err := vm.returnValue(Unit); err != nil {
				return Unit, vm.attachSpan(err, chunk, fr.ip)
			}
			continue
		}

		opPos := fr.ip
		op := Opcode(code[fr.ip])
		fr.ip++

		vm.instCount++
		if vm.limits.MaxInstructions > 0 && vm.instCount > vm.limits.MaxInstructions {
			return Unit, vm.attachSpan(
				Errorf(ErrResourceExhausted, "instruction budget of %d exceeded", vm.limits.MaxInstructions),
				chunk, opPos)
		}

		if err := vm.step(fr, chunk, op); err != nil {
			return Unit, vm.attachSpan(err, chunk, opPos)
		}
	}
	return vm.pop()
}

func (vm *VM) attachSpan(err *VmError, chunk *Chunk, offset int) *VmError {
	if err.Span == nil {
		if span := chunk.SpanAt(offset); span.IsKnown() {
			err.Span = &span
		}
	}
	return err
}

// readU8 and readU16 decode operands at the current frame ip.
func (vm *VM) readU8(fr *frame, code []byte) uint8 {
	v := code[fr.ip]
	fr.ip++
	return v
}

func (vm *VM) readU16(fr *frame, code []byte) uint16 {
	v := uint16(code[fr.ip]) | uint16(code[fr.ip+1])<<8
	fr.ip += 2
	return v
}

// step executes a single decoded instruction.
func (vm *VM) step(fr *frame, chunk *Chunk, op Opcode) *VmError {
	code := chunk.Code

	switch op {
	case OpNop:

	case OpLoadConst:
		idx := vm.readU16(fr, code)
		if int(idx) >= len(chunk.Constants) {
			return Errorf(ErrHost, "constant index %d out of range", idx)
		}
		vm.push(chunk.Constants[idx])

	case OpLoadLocal:
		slot := int(vm.readU8(fr, code))
		vm.push(vm.stack[fr.base+slot])

	case OpStoreLocal:
		slot := int(vm.readU8(fr, code))
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.stack[fr.base+slot] = v

	case OpLoadUpvalue:
		idx := int(vm.readU8(fr, code))
		if idx >= len(fr.closure.Upvalues) {
			return Errorf(ErrHost, "upvalue index %d out of range", idx)
		}
		vm.push(fr.closure.Upvalues[idx].Get(vm))

	case OpStoreUpvalue:
		idx := int(vm.readU8(fr, code))
		if idx >= len(fr.closure.Upvalues) {
			return Errorf(ErrHost, "upvalue index %d out of range", idx)
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		fr.closure.Upvalues[idx].Set(vm, v)

	case OpPop:
		if _, err := vm.pop(); err != nil {
			return err
		}

	case OpDup:
		if len(vm.stack) == 0 {
			return Errorf(ErrStackUnderflow, "dup on empty stack")
		}
		vm.push(vm.stack[len(vm.stack)-1])

	case OpLoadGlobal:
		idx := vm.readU16(fr, code)
		name := chunk.Constants[idx].Str
		v, ok := vm.globals[name]
		if !ok {
			return Errorf(ErrHost, "undefined global %q", name)
		}
		vm.push(v)

	case OpStoreGlobal:
		idx := vm.readU16(fr, code)
		name := chunk.Constants[idx].Str
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.globals[name] = v

	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return vm.arithmetic(op)

	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		return vm.compare(op)

	case OpAnd, OpOr:
		b, err := vm.popBool()
		if err != nil {
			return err
		}
		a, err := vm.popBool()
		if err != nil {
			return err
		}
		if op == OpAnd {
			vm.push(BoolValue(a && b))
		} else {
			vm.push(BoolValue(a || b))
		}

	case OpNot:
		b, err := vm.popBool()
		if err != nil {
			return err
		}
		vm.push(BoolValue(!b))

	case OpJump:
		offset := int(int16(vm.readU16(fr, code)))
		fr.ip += offset

	case OpJumpIfFalse:
		offset := int(int16(vm.readU16(fr, code)))
		cond, err := vm.popBool()
		if err != nil {
			return err
		}
		if !cond {
			fr.ip += offset
		}

	case OpCall:
		argc := int(vm.readU8(fr, code))
		_, _, err := vm.call(argc)
		return err

	case OpTailCall:
		argc := int(vm.readU8(fr, code))
		return vm.tailCall(fr, argc)

	case OpReturn:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.returnValue(v)

	case OpMakeTuple:
		n := int(vm.readU8(fr, code))
		elems, err := vm.popN(n)
		if err != nil {
			return err
		}
		vm.push(TupleValue(elems))

	case OpMakeList:
		n := int(vm.readU16(fr, code))
		if err := vm.checkAllocation(n); err != nil {
			return err
		}
		elems, err := vm.popN(n)
		if err != nil {
			return err
		}
		vm.push(ListFromSlice(elems))

	case OpCons:
		tail, err := vm.pop()
		if err != nil {
			return err
		}
		head, err := vm.pop()
		if err != nil {
			return err
		}
		if tail.Kind != KindList {
			return typeError("list", tail)
		}
		vm.push(ConsValue(head, tail))

	case OpMakeArray:
		n := int(vm.readU16(fr, code))
		if err := vm.checkAllocation(n); err != nil {
			return err
		}
		elems, err := vm.popN(n)
		if err != nil {
			return err
		}
		vm.push(ArrayValue(elems))

	case OpMakeRecord:
		n := int(vm.readU8(fr, code))
		pairs, err := vm.popN(2 * n)
		if err != nil {
			return err
		}
		names := make([]string, n)
		values := make([]Value, n)
		for i := 0; i < n; i++ {
			name := pairs[2*i]
			if name.Kind != KindStr {
				return typeError("field name", name)
			}
			names[i] = name.Str
			values[i] = pairs[2*i+1]
		}
		vm.push(RecordValue(names, values))

	case OpMakeVariant:
		n := int(vm.readU8(fr, code))
		all, err := vm.popN(n + 2)
		if err != nil {
			return err
		}
		typeName, variantName := all[0], all[1]
		if typeName.Kind != KindStr || variantName.Kind != KindStr {
			return Errorf(ErrTypeMismatch, "variant tags must be strings")
		}
		vm.push(VariantValue(typeName.Str, variantName.Str, all[2:]))

	case OpGetField:
		idx := vm.readU16(fr, code)
		name := chunk.Constants[idx].Str
		rec, err := vm.pop()
		if err != nil {
			return err
		}
		if rec.Kind != KindRecord {
			return typeError("record", rec)
		}
		v, ok := rec.Record.Fields[name]
		if !ok {
			return Errorf(ErrUnknownField, "record has no field %q", name)
		}
		vm.push(v)

	case OpArrayGet:
		idx, err := vm.pop()
		if err != nil {
			return err
		}
		arr, err := vm.pop()
		if err != nil {
			return err
		}
		if arr.Kind != KindArray {
			return typeError("array", arr)
		}
		if idx.Kind != KindInt {
			return typeError("int", idx)
		}
		i := idx.Int
		if i < 0 || i >= int64(len(arr.Array.Elems)) {
			return Errorf(ErrIndexOutOfBounds, "index %d out of bounds for array of length %d",
				i, len(arr.Array.Elems))
		}
		vm.push(arr.Array.Elems[i])

	case OpArraySet:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		idx, err := vm.pop()
		if err != nil {
			return err
		}
		arr, err := vm.pop()
		if err != nil {
			return err
		}
		if arr.Kind != KindArray {
			return typeError("array", arr)
		}
		if idx.Kind != KindInt {
			return typeError("int", idx)
		}
		i := idx.Int
		if i < 0 || i >= int64(len(arr.Array.Elems)) {
			return Errorf(ErrIndexOutOfBounds, "index %d out of bounds for array of length %d",
				i, len(arr.Array.Elems))
		}
		arr.Array.Elems[i] = v
		vm.push(Unit)

	case OpArrayLength:
		arr, err := vm.pop()
		if err != nil {
			return err
		}
		if arr.Kind != KindArray {
			return typeError("array", arr)
		}
		vm.push(IntValue(int64(len(arr.Array.Elems))))

	case OpHead:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if v.Kind != KindList {
			return typeError("list", v)
		}
		if v.List == nil {
			return Errorf(ErrIndexOutOfBounds, "head of empty list")
		}
		vm.push(v.List.Head)

	case OpTail:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if v.Kind != KindList {
			return typeError("list", v)
		}
		if v.List == nil {
			return Errorf(ErrIndexOutOfBounds, "tail of empty list")
		}
		vm.push(Value{Kind: KindList, List: v.List.Tail})

	case OpIsNil:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if v.Kind != KindList {
			return typeError("list", v)
		}
		vm.push(BoolValue(v.List == nil))

	case OpMatchTag:
		idx := vm.readU16(fr, code)
		tag := chunk.Constants[idx].Str
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if v.Kind != KindVariant {
			return typeError("variant", v)
		}
		typeName, variantName, ok := splitTag(tag)
		if !ok {
			return Errorf(ErrHost, "malformed variant tag constant %q", tag)
		}
		vm.push(BoolValue(v.Variant.TypeName == typeName && v.Variant.VariantName == variantName))

	case OpMatchLit:
		idx := vm.readU16(fr, code)
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.push(BoolValue(ValuesEqual(v, chunk.Constants[idx])))

	case OpBindLocal:
		slot := int(vm.readU8(fr, code))
		if len(vm.stack) == 0 {
			return Errorf(ErrStackUnderflow, "bind on empty stack")
		}
		vm.stack[fr.base+slot] = vm.stack[len(vm.stack)-1]

	case OpDestruct:
		n := int(vm.readU8(fr, code))
		v, err := vm.pop()
		if err != nil {
			return err
		}
		var fields []Value
		switch v.Kind {
		case KindTuple:
			fields = v.Tuple
		case KindVariant:
			fields = v.Variant.Fields
		case KindRecord:
			fields = make([]Value, 0, len(v.Record.Names))
			for _, name := range v.Record.Names {
				fields = append(fields, v.Record.Fields[name])
			}
		default:
			return typeError("tuple, variant or record", v)
		}
		if len(fields) != n {
			return Errorf(ErrArity, "destructuring expects %d fields, value has %d", n, len(fields))
		}
		for _, f := range fields {
			vm.push(f)
		}

	case OpMakeClosure:
		idx := vm.readU16(fr, code)
		c := chunk.Constants[idx]
		if c.Kind != KindChunk {
			return Errorf(ErrHost, "closure constant is not a chunk")
		}
		closure := &Closure{
			Chunk:    c.Chunk,
			Upvalues: make([]*Upvalue, 0, len(c.Chunk.UpvalueSpecs)),
			Name:     c.Chunk.Name,
		}
		vm.push(ClosureValue(closure))

	case OpCaptureUpvalue:
		isLocal := vm.readU8(fr, code)
		index := int(vm.readU8(fr, code))
		top := vm.stack[len(vm.stack)-1]
		if top.Kind != KindClosure {
			return Errorf(ErrHost, "capture target is not a closure")
		}
		if isLocal != 0 {
			top.Closure.Upvalues = append(top.Closure.Upvalues, vm.captureUpvalue(fr.base+index))
		} else {
			if index >= len(fr.closure.Upvalues) {
				return Errorf(ErrHost, "enclosing upvalue index %d out of range", index)
			}
			top.Closure.Upvalues = append(top.Closure.Upvalues, fr.closure.Upvalues[index])
		}

	case OpCloseUpvalue:
		slot := int(vm.readU16(fr, code))
		vm.closeUpvalues(fr.base + slot)

	default:
		return Errorf(ErrHost, "unknown opcode 0x%02X", byte(op))
	}
	return nil
}

// returnValue pops the current frame, closes upvalues at or above its
// base, removes the callee slot and pushes the result for the caller.
func (vm *VM) returnValue(v Value) *VmError {
	if len(vm.frames) == 0 {
		return Errorf(ErrStackUnderflow, "return with no active frame")
	}
	fr := vm.frames[len(vm.frames)-1]
	vm.closeUpvalues(fr.base)
	vm.stack = vm.stack[:fr.base-1] // discard locals and the callee slot
	vm.push(v)
	vm.frames = vm.frames[:len(vm.frames)-1]
	return nil
}

// tailCall reuses the current frame for a call, keeping recursion flat.
func (vm *VM) tailCall(fr *frame, argc int) *VmError {
	calleeIdx := len(vm.stack) - argc - 1
	callee := vm.stack[calleeIdx]

	if callee.Kind != KindClosure {
		// Natives and partials go through the regular path; a frame is not
		// reused but the Return following the call still fires.
		_, result, err := vm.call(argc)
		if err != nil {
			return err
		}
		return vm.returnValue(result)
	}

	chunk := callee.Closure.Chunk
	if argc != chunk.Arity {
		return Errorf(ErrArity, "%s expects %d arguments, got %d",
			closureName(callee.Closure), chunk.Arity, argc)
	}

	vm.closeUpvalues(fr.base)

	// Slide callee and args down over the current frame.
	moved := vm.stack[calleeIdx:]
	copy(vm.stack[fr.base-1:], moved)
	vm.stack = vm.stack[:fr.base-1+len(moved)]
	for i := argc; i < chunk.LocalCount; i++ {
		vm.push(Unit)
	}

	fr.closure = callee.Closure
	fr.ip = 0
	return nil
}

func (vm *VM) popN(n int) ([]Value, *VmError) {
	if len(vm.stack) < n {
		return nil, Errorf(ErrStackUnderflow, "need %d stack values, have %d", n, len(vm.stack))
	}
	out := make([]Value, n)
	copy(out, vm.stack[len(vm.stack)-n:])
	vm.stack = vm.stack[:len(vm.stack)-n]
	return out, nil
}

func (vm *VM) checkAllocation(n int) *VmError {
	if vm.limits.MaxAllocation > 0 && n > vm.limits.MaxAllocation {
		return Errorf(ErrResourceExhausted, "allocation of %d elements exceeds limit %d",
			n, vm.limits.MaxAllocation)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Arithmetic and comparison
// ---------------------------------------------------------------------------

// arithmetic implements Add/Sub/Mul/Div/Mod. Operands must be two ints or
// two floats, except that Add also concatenates two strings; integer
// overflow wraps, float arithmetic follows IEEE-754.
func (vm *VM) arithmetic(op Opcode) *VmError {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}

	switch {
	case a.Kind == KindInt && b.Kind == KindInt:
		switch op {
		case OpAdd:
			vm.push(IntValue(a.Int + b.Int))
		case OpSub:
			vm.push(IntValue(a.Int - b.Int))
		case OpMul:
			vm.push(IntValue(a.Int * b.Int))
		case OpDiv:
			if b.Int == 0 {
				return Errorf(ErrDivisionByZero, "integer division by zero")
			}
			vm.push(IntValue(a.Int / b.Int))
		case OpMod:
			if b.Int == 0 {
				return Errorf(ErrDivisionByZero, "integer modulo by zero")
			}
			vm.push(IntValue(a.Int % b.Int))
		}
		return nil

	case a.Kind == KindFloat && b.Kind == KindFloat:
		switch op {
		case OpAdd:
			vm.push(FloatValue(a.Float + b.Float))
		case OpSub:
			vm.push(FloatValue(a.Float - b.Float))
		case OpMul:
			vm.push(FloatValue(a.Float * b.Float))
		case OpDiv:
			vm.push(FloatValue(a.Float / b.Float))
		case OpMod:
			return Errorf(ErrTypeMismatch, "modulo requires integers")
		}
		return nil

	case a.Kind == KindStr && b.Kind == KindStr && op == OpAdd:
		vm.push(StrValue(a.Str + b.Str))
		return nil
	}

	return Errorf(ErrTypeMismatch, "arithmetic on %s and %s", a.Kind, b.Kind)
}

// compare implements Eq/Neq and the orderings. Equality is structural per
// ValuesEqual; orderings are defined on ints, floats and strings.
func (vm *VM) compare(op Opcode) *VmError {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}

	switch op {
	case OpEq:
		vm.push(BoolValue(ValuesEqual(a, b)))
		return nil
	case OpNeq:
		vm.push(BoolValue(!ValuesEqual(a, b)))
		return nil
	}

	var cmp int
	switch {
	case a.Kind == KindInt && b.Kind == KindInt:
		switch {
		case a.Int < b.Int:
			cmp = -1
		case a.Int > b.Int:
			cmp = 1
		}
	case a.Kind == KindFloat && b.Kind == KindFloat:
		switch {
		case a.Float < b.Float:
			cmp = -1
		case a.Float > b.Float:
			cmp = 1
		}
	case a.Kind == KindStr && b.Kind == KindStr:
		cmp = strings.Compare(a.Str, b.Str)
	default:
		return Errorf(ErrTypeMismatch, "comparison on %s and %s", a.Kind, b.Kind)
	}

	switch op {
	case OpLt:
		vm.push(BoolValue(cmp < 0))
	case OpLte:
		vm.push(BoolValue(cmp <= 0))
	case OpGt:
		vm.push(BoolValue(cmp > 0))
	case OpGte:
		vm.push(BoolValue(cmp >= 0))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Variant tag encoding
// ---------------------------------------------------------------------------

// Variant tags in the constant pool are encoded "TypeName::VariantName" so
// that a single MatchTag constant carries both discriminators.
const tagSeparator = "::"

// MakeTag builds the constant-pool encoding of a variant discriminator.
func MakeTag(typeName, variantName string) string {
	return typeName + tagSeparator + variantName
}

func splitTag(tag string) (typeName, variantName string, ok bool) {
	i := strings.LastIndex(tag, tagSeparator)
	if i < 0 {
		return "", "", false
	}
	return tag[:i], tag[i+len(tagSeparator):], true
}
