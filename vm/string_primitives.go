package vm

import "strings"

// ---------------------------------------------------------------------------
// String primitives
// ---------------------------------------------------------------------------

func registerStringPrimitives(r *HostRegistry) {
	// String.length: string -> int
	r.Register("String.length", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindStr {
			return Unit, typeError("string", args[0])
		}
		return IntValue(int64(len(args[0].Str))), nil
	})

	// String.concat: string -> List<string> -> string
	r.Register("String.concat", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindStr {
			return Unit, typeError("string", args[0])
		}
		if args[1].Kind != KindList {
			return Unit, typeError("list", args[1])
		}
		var parts []string
		for node := args[1].List; node != nil; node = node.Tail {
			if node.Head.Kind != KindStr {
				return Unit, typeError("string", node.Head)
			}
			parts = append(parts, node.Head.Str)
		}
		return StrValue(strings.Join(parts, args[0].Str)), nil
	})

	// String.split: string -> string -> List<string>
	r.Register("String.split", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindStr || args[1].Kind != KindStr {
			return Unit, typeError("string", args[0])
		}
		parts := strings.Split(args[1].Str, args[0].Str)
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = StrValue(p)
		}
		return ListFromSlice(out), nil
	})

	// String.contains: string -> string -> bool
	r.Register("String.contains", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindStr || args[1].Kind != KindStr {
			return Unit, typeError("string", args[0])
		}
		return BoolValue(strings.Contains(args[1].Str, args[0].Str)), nil
	})

	// String.startsWith: string -> string -> bool
	r.Register("String.startsWith", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindStr || args[1].Kind != KindStr {
			return Unit, typeError("string", args[0])
		}
		return BoolValue(strings.HasPrefix(args[1].Str, args[0].Str)), nil
	})

	// String.endsWith: string -> string -> bool
	r.Register("String.endsWith", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindStr || args[1].Kind != KindStr {
			return Unit, typeError("string", args[0])
		}
		return BoolValue(strings.HasSuffix(args[1].Str, args[0].Str)), nil
	})

	// String.toUpper / String.toLower
	r.Register("String.toUpper", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindStr {
			return Unit, typeError("string", args[0])
		}
		return StrValue(strings.ToUpper(args[0].Str)), nil
	})
	r.Register("String.toLower", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindStr {
			return Unit, typeError("string", args[0])
		}
		return StrValue(strings.ToLower(args[0].Str)), nil
	})

	// String.trim: string -> string
	r.Register("String.trim", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindStr {
			return Unit, typeError("string", args[0])
		}
		return StrValue(strings.TrimSpace(args[0].Str)), nil
	})

	// String.sub: string -> int -> int -> string  (start, length)
	r.Register("String.sub", 3, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindStr {
			return Unit, typeError("string", args[0])
		}
		if args[1].Kind != KindInt || args[2].Kind != KindInt {
			return Unit, typeError("int", args[1])
		}
		s := args[0].Str
		start, length := args[1].Int, args[2].Int
		if start < 0 || length < 0 || start+length > int64(len(s)) {
			return Unit, Errorf(ErrIndexOutOfBounds, "substring [%d, %d) out of bounds for string of length %d",
				start, start+length, len(s))
		}
		return StrValue(s[start : start+length]), nil
	})

	// String.replace: string -> string -> string -> string  (old, new, s)
	r.Register("String.replace", 3, func(vm *VM, args []Value) (Value, *VmError) {
		for _, a := range args {
			if a.Kind != KindStr {
				return Unit, typeError("string", a)
			}
		}
		return StrValue(strings.ReplaceAll(args[2].Str, args[0].Str, args[1].Str)), nil
	})
}
