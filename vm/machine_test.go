package vm

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Basic execution tests
// ---------------------------------------------------------------------------

func newTestVM() *VM {
	registry := NewHostRegistry()
	RegisterStdlib(registry)
	machine := NewVM(registry, nil, Limits{})
	registry.SnapshotInto(machine)
	return machine
}

func runChunk(t *testing.T, chunk *Chunk) Value {
	t.Helper()
	machine := newTestVM()
	result, err := machine.Execute(chunk)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(machine.stack) != 0 {
		t.Fatalf("stack not empty after Execute: %d values", len(machine.stack))
	}
	return result
}

func TestExecuteConstant(t *testing.T) {
	chunk := NewChunk("test")
	b := NewBuilder(chunk)
	b.EmitConst(IntValue(42))
	b.Emit(OpReturn)

	result := runChunk(t, chunk)
	if result.Kind != KindInt || result.Int != 42 {
		t.Errorf("result = %v, want 42", result)
	}
}

func TestArithmetic(t *testing.T) {
	cases := []struct {
		op   Opcode
		a, b int64
		want int64
	}{
		{OpAdd, 10, 5, 15},
		{OpSub, 10, 5, 5},
		{OpMul, 10, 5, 50},
		{OpDiv, 10, 5, 2},
		{OpMod, 10, 3, 1},
	}
	for _, c := range cases {
		chunk := NewChunk("arith")
		b := NewBuilder(chunk)
		b.EmitConst(IntValue(c.a))
		b.EmitConst(IntValue(c.b))
		b.Emit(c.op)
		b.Emit(OpReturn)

		result := runChunk(t, chunk)
		if result.Int != c.want {
			t.Errorf("%s(%d, %d) = %v, want %d", c.op, c.a, c.b, result, c.want)
		}
	}
}

func TestIntegerOverflowWraps(t *testing.T) {
	chunk := NewChunk("wrap")
	b := NewBuilder(chunk)
	b.EmitConst(IntValue(9223372036854775807))
	b.EmitConst(IntValue(1))
	b.Emit(OpAdd)
	b.Emit(OpReturn)

	result := runChunk(t, chunk)
	if result.Int != -9223372036854775808 {
		t.Errorf("max int + 1 = %d, want wraparound", result.Int)
	}
}

func TestDivisionByZero(t *testing.T) {
	chunk := NewChunk("div0")
	b := NewBuilder(chunk)
	b.EmitConst(IntValue(1))
	b.EmitConst(IntValue(0))
	b.Emit(OpDiv)
	b.Emit(OpReturn)

	machine := newTestVM()
	_, err := machine.Execute(chunk)
	if err == nil || err.Kind != ErrDivisionByZero {
		t.Errorf("err = %v, want DivisionByZero", err)
	}
	if len(machine.stack) != 0 || len(machine.frames) != 0 {
		t.Errorf("vm not unwound after error")
	}
}

func TestMixedArithmeticFails(t *testing.T) {
	chunk := NewChunk("mixed")
	b := NewBuilder(chunk)
	b.EmitConst(IntValue(1))
	b.EmitConst(FloatValue(2.5))
	b.Emit(OpAdd)
	b.Emit(OpReturn)

	machine := newTestVM()
	_, err := machine.Execute(chunk)
	if err == nil || err.Kind != ErrTypeMismatch {
		t.Errorf("err = %v, want TypeMismatch", err)
	}
}

func TestJumpIfFalse(t *testing.T) {
	// if false then 1 else 2
	chunk := NewChunk("jump")
	b := NewBuilder(chunk)
	b.EmitConst(BoolValue(false))
	elseJump := b.EmitJump(OpJumpIfFalse)
	b.EmitConst(IntValue(1))
	endJump := b.EmitJump(OpJump)
	if err := b.PatchJump(elseJump); err != nil {
		t.Fatal(err)
	}
	b.EmitConst(IntValue(2))
	if err := b.PatchJump(endJump); err != nil {
		t.Fatal(err)
	}
	b.Emit(OpReturn)

	result := runChunk(t, chunk)
	if result.Int != 2 {
		t.Errorf("result = %v, want 2", result)
	}
}

// ---------------------------------------------------------------------------
// Calls, closures and upvalues
// ---------------------------------------------------------------------------

func TestCallClosure(t *testing.T) {
	// inner: fun x -> x + 1
	inner := NewChunk("inc")
	inner.Arity = 1
	inner.LocalCount = 1
	ib := NewBuilder(inner)
	ib.EmitU8(OpLoadLocal, 0)
	ib.EmitConst(IntValue(1))
	ib.Emit(OpAdd)
	ib.Emit(OpReturn)

	outer := NewChunk("main")
	ob := NewBuilder(outer)
	idx := outer.AddConstant(ChunkValue(inner))
	ob.EmitU16(OpMakeClosure, idx)
	ob.EmitConst(IntValue(41))
	ob.EmitU8(OpCall, 1)
	ob.Emit(OpReturn)

	result := runChunk(t, outer)
	if result.Int != 42 {
		t.Errorf("result = %v, want 42", result)
	}
}

func TestArityMismatch(t *testing.T) {
	inner := NewChunk("one")
	inner.Arity = 1
	inner.LocalCount = 1
	ib := NewBuilder(inner)
	ib.EmitU8(OpLoadLocal, 0)
	ib.Emit(OpReturn)

	outer := NewChunk("main")
	ob := NewBuilder(outer)
	idx := outer.AddConstant(ChunkValue(inner))
	ob.EmitU16(OpMakeClosure, idx)
	ob.EmitU8(OpCall, 0)
	ob.Emit(OpReturn)

	machine := newTestVM()
	_, err := machine.Execute(outer)
	if err == nil || err.Kind != ErrArity {
		t.Errorf("err = %v, want Arity", err)
	}
}

func TestUpvalueCaptureAndClose(t *testing.T) {
	// outer: let x = 10 in (fun () -> x)   returns the closure
	inner := NewChunk("reader")
	inner.LocalCount = 0
	inner.UpvalueSpecs = []UpvalueSpec{{IsLocal: true, Index: 0}}
	ib := NewBuilder(inner)
	ib.EmitU8(OpLoadUpvalue, 0)
	ib.Emit(OpReturn)

	outer := NewChunk("main")
	outer.LocalCount = 1
	ob := NewBuilder(outer)
	ob.EmitConst(IntValue(10))
	ob.EmitU8(OpStoreLocal, 0)
	idx := outer.AddConstant(ChunkValue(inner))
	ob.EmitU16(OpMakeClosure, idx)
	ob.EmitU8U8(OpCaptureUpvalue, 1, 0)
	ob.Emit(OpReturn)

	machine := newTestVM()
	closure, err := machine.Execute(outer)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if closure.Kind != KindClosure {
		t.Fatalf("result = %v, want closure", closure)
	}
	if len(closure.Closure.Upvalues) != len(inner.UpvalueSpecs) {
		t.Fatalf("upvalue count = %d, want %d", len(closure.Closure.Upvalues), len(inner.UpvalueSpecs))
	}
	// The outer frame has exited, so the capture must be closed.
	if !closure.Closure.Upvalues[0].Closed {
		t.Errorf("upvalue still open after frame exit")
	}

	result, err := machine.CallValue(closure, nil)
	if err != nil {
		t.Fatalf("CallValue: %v", err)
	}
	if result.Int != 10 {
		t.Errorf("captured value = %v, want 10", result)
	}
}

func TestSharedUpvalueMutation(t *testing.T) {
	// Two closures over the same slot observe each other's writes.
	writer := NewChunk("writer")
	writer.Arity = 1
	writer.LocalCount = 1
	writer.UpvalueSpecs = []UpvalueSpec{{IsLocal: true, Index: 0}}
	wb := NewBuilder(writer)
	wb.EmitU8(OpLoadLocal, 0)
	wb.EmitU8(OpStoreUpvalue, 0)
	wb.EmitConst(Unit)
	wb.Emit(OpReturn)

	reader := NewChunk("reader")
	reader.UpvalueSpecs = []UpvalueSpec{{IsLocal: true, Index: 0}}
	rb := NewBuilder(reader)
	rb.EmitU8(OpLoadUpvalue, 0)
	rb.Emit(OpReturn)

	// main: slot0 = 1; w = writer capturing slot0; r = reader capturing
	// slot0; w 99; r ()
	outer := NewChunk("main")
	outer.LocalCount = 3
	ob := NewBuilder(outer)
	ob.EmitConst(IntValue(1))
	ob.EmitU8(OpStoreLocal, 0)
	widx := outer.AddConstant(ChunkValue(writer))
	ob.EmitU16(OpMakeClosure, widx)
	ob.EmitU8U8(OpCaptureUpvalue, 1, 0)
	ob.EmitU8(OpStoreLocal, 1)
	ridx := outer.AddConstant(ChunkValue(reader))
	ob.EmitU16(OpMakeClosure, ridx)
	ob.EmitU8U8(OpCaptureUpvalue, 1, 0)
	ob.EmitU8(OpStoreLocal, 2)
	ob.EmitU8(OpLoadLocal, 1)
	ob.EmitConst(IntValue(99))
	ob.EmitU8(OpCall, 1)
	ob.Emit(OpPop)
	ob.EmitU8(OpLoadLocal, 2)
	ob.EmitU8(OpCall, 0)
	ob.Emit(OpReturn)

	result := runChunk(t, outer)
	if result.Int != 99 {
		t.Errorf("shared upvalue read = %v, want 99", result)
	}
}

func TestStackOverflow(t *testing.T) {
	// f () = f (); bounded by the frame limit.
	self := NewChunk("loop")
	sb := NewBuilder(self)
	sb.EmitU16(OpLoadGlobal, self.AddConstant(StrValue("loop")))
	sb.EmitU8(OpCall, 0)
	sb.Emit(OpReturn)

	registry := NewHostRegistry()
	machine := NewVM(registry, nil, Limits{MaxFrames: 64})
	machine.DefineGlobal("loop", ClosureValue(&Closure{Chunk: self, Name: "loop"}))

	_, err := machine.Execute(self)
	if err == nil || err.Kind != ErrStackOverflow {
		t.Errorf("err = %v, want StackOverflow", err)
	}
	if len(machine.frames) != 0 {
		t.Errorf("frames not unwound after overflow")
	}
}

func TestTailCallReusesFrame(t *testing.T) {
	// countdown n = if n = 0 then 0 else countdown (n - 1), via TailCall.
	countdown := NewChunk("countdown")
	countdown.Arity = 1
	countdown.LocalCount = 1
	cb := NewBuilder(countdown)
	cb.EmitU8(OpLoadLocal, 0)
	cb.EmitConst(IntValue(0))
	cb.Emit(OpEq)
	elseJump := cb.EmitJump(OpJumpIfFalse)
	cb.EmitConst(IntValue(0))
	cb.Emit(OpReturn)
	if err := cb.PatchJump(elseJump); err != nil {
		t.Fatal(err)
	}
	cb.EmitU16(OpLoadGlobal, countdown.AddConstant(StrValue("countdown")))
	cb.EmitU8(OpLoadLocal, 0)
	cb.EmitConst(IntValue(1))
	cb.Emit(OpSub)
	cb.EmitU8(OpTailCall, 1)

	registry := NewHostRegistry()
	machine := NewVM(registry, nil, Limits{MaxFrames: 16})
	machine.DefineGlobal("countdown", ClosureValue(&Closure{Chunk: countdown, Name: "countdown"}))

	// Depth 10000 with only 16 frames allowed: the tail call must not grow
	// the frame stack.
	result, err := machine.CallValue(ClosureValue(&Closure{Chunk: countdown, Name: "countdown"}),
		[]Value{IntValue(10000)})
	if err != nil {
		t.Fatalf("CallValue: %v", err)
	}
	if result.Int != 0 {
		t.Errorf("result = %v, want 0", result)
	}
}

// ---------------------------------------------------------------------------
// Aggregates and pattern instructions
// ---------------------------------------------------------------------------

func TestMakeTupleAndDestruct(t *testing.T) {
	chunk := NewChunk("tuple")
	chunk.LocalCount = 2
	b := NewBuilder(chunk)
	b.EmitConst(IntValue(1))
	b.EmitConst(IntValue(2))
	b.EmitU8(OpMakeTuple, 2)
	b.EmitU8(OpDestruct, 2)
	b.EmitU8(OpStoreLocal, 1) // second field
	b.EmitU8(OpStoreLocal, 0) // first field
	b.EmitU8(OpLoadLocal, 0)
	b.EmitU8(OpLoadLocal, 1)
	b.Emit(OpAdd)
	b.Emit(OpReturn)

	result := runChunk(t, chunk)
	if result.Int != 3 {
		t.Errorf("result = %v, want 3", result)
	}
}

func TestListInstructions(t *testing.T) {
	chunk := NewChunk("list")
	b := NewBuilder(chunk)
	b.EmitConst(IntValue(1))
	b.EmitConst(IntValue(2))
	b.EmitU16(OpMakeList, 2)
	b.Emit(OpHead)
	b.Emit(OpReturn)

	result := runChunk(t, chunk)
	if result.Int != 1 {
		t.Errorf("head = %v, want 1", result)
	}
}

func TestArraySetMutatesInPlace(t *testing.T) {
	chunk := NewChunk("array")
	chunk.LocalCount = 1
	b := NewBuilder(chunk)
	b.EmitConst(IntValue(0))
	b.EmitConst(IntValue(0))
	b.EmitU16(OpMakeArray, 2)
	b.EmitU8(OpStoreLocal, 0)
	b.EmitU8(OpLoadLocal, 0)
	b.EmitConst(IntValue(1))
	b.EmitConst(IntValue(7))
	b.Emit(OpArraySet)
	b.Emit(OpPop)
	b.EmitU8(OpLoadLocal, 0)
	b.EmitConst(IntValue(1))
	b.Emit(OpArrayGet)
	b.Emit(OpReturn)

	result := runChunk(t, chunk)
	if result.Int != 7 {
		t.Errorf("arr.[1] = %v, want 7", result)
	}
}

func TestArrayIndexOutOfBounds(t *testing.T) {
	chunk := NewChunk("oob")
	b := NewBuilder(chunk)
	b.EmitU16(OpMakeArray, 0)
	b.EmitConst(IntValue(0))
	b.Emit(OpArrayGet)
	b.Emit(OpReturn)

	machine := newTestVM()
	_, err := machine.Execute(chunk)
	if err == nil || err.Kind != ErrIndexOutOfBounds {
		t.Errorf("err = %v, want IndexOutOfBounds", err)
	}
}

func TestMatchTag(t *testing.T) {
	chunk := NewChunk("tag")
	b := NewBuilder(chunk)
	b.EmitConst(StrValue("Option"))
	b.EmitConst(StrValue("Some"))
	b.EmitConst(IntValue(5))
	b.EmitU8(OpMakeVariant, 1)
	b.EmitU16(OpMatchTag, chunk.AddConstant(StrValue(MakeTag("Option", "Some"))))
	b.Emit(OpReturn)

	result := runChunk(t, chunk)
	if result.Kind != KindBool || !result.Bool() {
		t.Errorf("MatchTag = %v, want true", result)
	}
}

func TestVariantNameAloneIsNotEnough(t *testing.T) {
	// Same variant name under a different type name must not match.
	chunk := NewChunk("tag2")
	b := NewBuilder(chunk)
	b.EmitConst(StrValue("Other"))
	b.EmitConst(StrValue("Some"))
	b.EmitConst(IntValue(5))
	b.EmitU8(OpMakeVariant, 1)
	b.EmitU16(OpMatchTag, chunk.AddConstant(StrValue(MakeTag("Option", "Some"))))
	b.Emit(OpReturn)

	result := runChunk(t, chunk)
	if result.Bool() {
		t.Errorf("MatchTag matched across type names")
	}
}

// ---------------------------------------------------------------------------
// Host functions and re-entrance
// ---------------------------------------------------------------------------

func TestNativeCall(t *testing.T) {
	machine := newTestVM()
	machine.Registry().Register("double", 1, func(vm *VM, args []Value) (Value, *VmError) {
		return IntValue(args[0].Int * 2), nil
	})
	native, _ := machine.Registry().Lookup("double")

	result, err := machine.CallValue(NativeValue(native), []Value{IntValue(21)})
	if err != nil {
		t.Fatalf("CallValue: %v", err)
	}
	if result.Int != 42 {
		t.Errorf("result = %v, want 42", result)
	}
}

func TestNativePartialApplication(t *testing.T) {
	machine := newTestVM()
	addFn, ok := machine.Registry().Lookup("List.fold")
	if !ok {
		t.Fatal("List.fold not registered")
	}
	// Apply only the first of three arguments; the result is a partial.
	folder := NativeValue(&NativeFn{Name: "sum2", Arity: 2, Fn: func(vm *VM, args []Value) (Value, *VmError) {
		return IntValue(args[0].Int + args[1].Int), nil
	}})
	partial, err := machine.CallValue(NativeValue(addFn), []Value{folder})
	if err != nil {
		t.Fatalf("partial application: %v", err)
	}
	if partial.Kind != KindNative || len(partial.Native.Applied) != 1 {
		t.Fatalf("partial = %v, want native with one applied arg", partial)
	}

	list := ListFromSlice([]Value{IntValue(1), IntValue(2), IntValue(3)})
	withZero, err := machine.CallValue(partial, []Value{IntValue(0)})
	if err != nil {
		t.Fatalf("second application: %v", err)
	}
	result, err := machine.CallValue(withZero, []Value{list})
	if err != nil {
		t.Fatalf("third application: %v", err)
	}
	if result.Int != 6 {
		t.Errorf("fold result = %v, want 6", result)
	}
}

func TestHostReentrance(t *testing.T) {
	// List.map re-enters the VM to call a compiled closure.
	inc := NewChunk("inc")
	inc.Arity = 1
	inc.LocalCount = 1
	ib := NewBuilder(inc)
	ib.EmitU8(OpLoadLocal, 0)
	ib.EmitConst(IntValue(1))
	ib.Emit(OpAdd)
	ib.Emit(OpReturn)

	machine := newTestVM()
	mapFn, _ := machine.Registry().Lookup("List.map")
	list := ListFromSlice([]Value{IntValue(1), IntValue(2)})

	partial, err := machine.CallValue(NativeValue(mapFn), []Value{ClosureValue(&Closure{Chunk: inc})})
	if err != nil {
		t.Fatalf("partial: %v", err)
	}
	result, err := machine.CallValue(partial, []Value{list})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	elems := ListToSlice(result)
	if len(elems) != 2 || elems[0].Int != 2 || elems[1].Int != 3 {
		t.Errorf("mapped = %v, want [2; 3]", result)
	}
}

func TestInstructionLimit(t *testing.T) {
	loop := NewChunk("spin")
	b := NewBuilder(loop)
	start := b.Len()
	b.Emit(OpNop)
	if err := b.EmitLoop(start); err != nil {
		t.Fatal(err)
	}

	machine := NewVM(NewHostRegistry(), nil, Limits{MaxInstructions: 1000})
	_, err := machine.Execute(loop)
	if err == nil || err.Kind != ErrResourceExhausted {
		t.Errorf("err = %v, want ResourceExhausted", err)
	}
}
