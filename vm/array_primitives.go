package vm

// ---------------------------------------------------------------------------
// Array primitives
// ---------------------------------------------------------------------------

func registerArrayPrimitives(r *HostRegistry) {
	// Array.create: int -> 'a -> Array<'a>
	r.Register("Array.create", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindInt {
			return Unit, typeError("int", args[0])
		}
		n := args[0].Int
		if n < 0 {
			return Unit, Errorf(ErrIndexOutOfBounds, "Array.create with negative length %d", n)
		}
		if err := vm.checkAllocation(int(n)); err != nil {
			return Unit, err
		}
		elems := make([]Value, n)
		for i := range elems {
			elems[i] = args[1]
		}
		return ArrayValue(elems), nil
	})

	// Array.init: int -> (int -> 'a) -> Array<'a>
	r.Register("Array.init", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindInt {
			return Unit, typeError("int", args[0])
		}
		n := args[0].Int
		if n < 0 {
			return Unit, Errorf(ErrIndexOutOfBounds, "Array.init with negative length %d", n)
		}
		if err := vm.checkAllocation(int(n)); err != nil {
			return Unit, err
		}
		elems := make([]Value, n)
		for i := int64(0); i < n; i++ {
			v, err := vm.CallValue(args[1], []Value{IntValue(i)})
			if err != nil {
				return Unit, err
			}
			elems[i] = v
		}
		return ArrayValue(elems), nil
	})

	// Array.length: Array<'a> -> int
	r.Register("Array.length", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindArray {
			return Unit, typeError("array", args[0])
		}
		return IntValue(int64(len(args[0].Array.Elems))), nil
	})

	// Array.get: Array<'a> -> int -> 'a
	r.Register("Array.get", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindArray {
			return Unit, typeError("array", args[0])
		}
		if args[1].Kind != KindInt {
			return Unit, typeError("int", args[1])
		}
		i := args[1].Int
		elems := args[0].Array.Elems
		if i < 0 || i >= int64(len(elems)) {
			return Unit, Errorf(ErrIndexOutOfBounds, "index %d out of bounds for array of length %d", i, len(elems))
		}
		return elems[i], nil
	})

	// Array.set: Array<'a> -> int -> 'a -> unit
	// Mutates the shared array in place; every alias observes the write.
	r.Register("Array.set", 3, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindArray {
			return Unit, typeError("array", args[0])
		}
		if args[1].Kind != KindInt {
			return Unit, typeError("int", args[1])
		}
		i := args[1].Int
		elems := args[0].Array.Elems
		if i < 0 || i >= int64(len(elems)) {
			return Unit, Errorf(ErrIndexOutOfBounds, "index %d out of bounds for array of length %d", i, len(elems))
		}
		elems[i] = args[2]
		return Unit, nil
	})

	// Array.map: ('a -> 'b) -> Array<'a> -> Array<'b>
	r.Register("Array.map", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[1].Kind != KindArray {
			return Unit, typeError("array", args[1])
		}
		src := args[1].Array.Elems
		out := make([]Value, len(src))
		for i, e := range src {
			v, err := vm.CallValue(args[0], []Value{e})
			if err != nil {
				return Unit, err
			}
			out[i] = v
		}
		return ArrayValue(out), nil
	})

	// Array.iter: ('a -> unit) -> Array<'a> -> unit
	r.Register("Array.iter", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[1].Kind != KindArray {
			return Unit, typeError("array", args[1])
		}
		for _, e := range args[1].Array.Elems {
			if _, err := vm.CallValue(args[0], []Value{e}); err != nil {
				return Unit, err
			}
		}
		return Unit, nil
	})

	// Array.toList: Array<'a> -> List<'a>
	r.Register("Array.toList", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindArray {
			return Unit, typeError("array", args[0])
		}
		return ListFromSlice(args[0].Array.Elems), nil
	})

	// Array.ofList: List<'a> -> Array<'a>
	r.Register("Array.ofList", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindList {
			return Unit, typeError("list", args[0])
		}
		return ArrayValue(ListToSlice(args[0])), nil
	})
}
