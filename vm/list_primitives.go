package vm

// ---------------------------------------------------------------------------
// List primitives
// ---------------------------------------------------------------------------

func registerListPrimitives(r *HostRegistry) {
	// List.length: List<'a> -> int
	r.Register("List.length", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindList {
			return Unit, typeError("list", args[0])
		}
		return IntValue(int64(ListLen(args[0]))), nil
	})

	// List.isEmpty: List<'a> -> bool
	r.Register("List.isEmpty", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindList {
			return Unit, typeError("list", args[0])
		}
		return BoolValue(args[0].List == nil), nil
	})

	// List.head: List<'a> -> 'a
	r.Register("List.head", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindList {
			return Unit, typeError("list", args[0])
		}
		if args[0].List == nil {
			return Unit, Errorf(ErrIndexOutOfBounds, "List.head of empty list")
		}
		return args[0].List.Head, nil
	})

	// List.tail: List<'a> -> List<'a>
	r.Register("List.tail", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindList {
			return Unit, typeError("list", args[0])
		}
		if args[0].List == nil {
			return Unit, Errorf(ErrIndexOutOfBounds, "List.tail of empty list")
		}
		return Value{Kind: KindList, List: args[0].List.Tail}, nil
	})

	// List.reverse: List<'a> -> List<'a>
	r.Register("List.reverse", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindList {
			return Unit, typeError("list", args[0])
		}
		var out *ListNode
		for node := args[0].List; node != nil; node = node.Tail {
			out = &ListNode{Head: node.Head, Tail: out}
		}
		return Value{Kind: KindList, List: out}, nil
	})

	// List.append: List<'a> -> List<'a> -> List<'a>
	r.Register("List.append", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindList || args[1].Kind != KindList {
			return Unit, typeError("list", args[0])
		}
		elems := ListToSlice(args[0])
		out := args[1]
		for i := len(elems) - 1; i >= 0; i-- {
			out = ConsValue(elems[i], out)
		}
		return out, nil
	})

	// List.map: ('a -> 'b) -> List<'a> -> List<'b>
	r.Register("List.map", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[1].Kind != KindList {
			return Unit, typeError("list", args[1])
		}
		var out []Value
		for node := args[1].List; node != nil; node = node.Tail {
			v, err := vm.CallValue(args[0], []Value{node.Head})
			if err != nil {
				return Unit, err
			}
			out = append(out, v)
		}
		return ListFromSlice(out), nil
	})

	// List.iter: ('a -> unit) -> List<'a> -> unit
	r.Register("List.iter", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[1].Kind != KindList {
			return Unit, typeError("list", args[1])
		}
		for node := args[1].List; node != nil; node = node.Tail {
			if _, err := vm.CallValue(args[0], []Value{node.Head}); err != nil {
				return Unit, err
			}
		}
		return Unit, nil
	})

	// List.filter: ('a -> bool) -> List<'a> -> List<'a>
	r.Register("List.filter", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[1].Kind != KindList {
			return Unit, typeError("list", args[1])
		}
		var out []Value
		for node := args[1].List; node != nil; node = node.Tail {
			keep, err := vm.CallValue(args[0], []Value{node.Head})
			if err != nil {
				return Unit, err
			}
			if keep.Kind != KindBool {
				return Unit, typeError("bool", keep)
			}
			if keep.Bool() {
				out = append(out, node.Head)
			}
		}
		return ListFromSlice(out), nil
	})

	// List.fold: ('s -> 'a -> 's) -> 's -> List<'a> -> 's
	r.Register("List.fold", 3, func(vm *VM, args []Value) (Value, *VmError) {
		if args[2].Kind != KindList {
			return Unit, typeError("list", args[2])
		}
		acc := args[1]
		for node := args[2].List; node != nil; node = node.Tail {
			partial, err := vm.CallValue(args[0], []Value{acc})
			if err != nil {
				return Unit, err
			}
			acc, err = vm.CallValue(partial, []Value{node.Head})
			if err != nil {
				return Unit, err
			}
		}
		return acc, nil
	})

	// List.contains: 'a -> List<'a> -> bool
	r.Register("List.contains", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[1].Kind != KindList {
			return Unit, typeError("list", args[1])
		}
		for node := args[1].List; node != nil; node = node.Tail {
			if ValuesEqual(node.Head, args[0]) {
				return BoolValue(true), nil
			}
		}
		return BoolValue(false), nil
	})

	// List.init: int -> (int -> 'a) -> List<'a>
	r.Register("List.init", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindInt {
			return Unit, typeError("int", args[0])
		}
		n := args[0].Int
		if n < 0 {
			return Unit, Errorf(ErrIndexOutOfBounds, "List.init with negative count %d", n)
		}
		out := make([]Value, 0, n)
		for i := int64(0); i < n; i++ {
			v, err := vm.CallValue(args[1], []Value{IntValue(i)})
			if err != nil {
				return Unit, err
			}
			out = append(out, v)
		}
		return ListFromSlice(out), nil
	})
}
