package vm

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Core primitives registration
// ---------------------------------------------------------------------------

// RegisterStdlib installs the standard library into a host registry.
func RegisterStdlib(r *HostRegistry) {
	registerCorePrimitives(r)
	registerListPrimitives(r)
	registerArrayPrimitives(r)
	registerStringPrimitives(r)
	registerOptionPrimitives(r)
	registerAsyncPrimitives(r)
	registerChannelPrimitives(r)
}

func registerCorePrimitives(r *HostRegistry) {
	// Internal.matchFailure backs the synthetic default arm the compiler
	// appends to every match.
	r.Register("Internal.matchFailure", 1, func(vm *VM, args []Value) (Value, *VmError) {
		return Unit, Errorf(ErrMatchFailure, "no pattern matched the value")
	})

	// printfn: string -> unit
	r.Register("printfn", 1, func(vm *VM, args []Value) (Value, *VmError) {
		fmt.Println(args[0].String())
		return Unit, nil
	})

	// print: string -> unit
	r.Register("print", 1, func(vm *VM, args []Value) (Value, *VmError) {
		fmt.Print(args[0].String())
		return Unit, nil
	})

	// ignore: 'a -> unit
	r.Register("ignore", 1, func(vm *VM, args []Value) (Value, *VmError) {
		return Unit, nil
	})

	// string: 'a -> string
	r.Register("string", 1, func(vm *VM, args []Value) (Value, *VmError) {
		return StrValue(args[0].String()), nil
	})

	// int: string -> int (also truncates floats)
	r.Register("int", 1, func(vm *VM, args []Value) (Value, *VmError) {
		switch args[0].Kind {
		case KindInt:
			return args[0], nil
		case KindFloat:
			return IntValue(int64(args[0].Float)), nil
		case KindStr:
			n, err := strconv.ParseInt(args[0].Str, 10, 64)
			if err != nil {
				return Unit, HostError("cannot parse %q as int", args[0].Str)
			}
			return IntValue(n), nil
		}
		return Unit, typeError("int, float or string", args[0])
	})

	// float: int -> float
	r.Register("float", 1, func(vm *VM, args []Value) (Value, *VmError) {
		switch args[0].Kind {
		case KindFloat:
			return args[0], nil
		case KindInt:
			return FloatValue(float64(args[0].Int)), nil
		case KindStr:
			f, err := strconv.ParseFloat(args[0].Str, 64)
			if err != nil {
				return Unit, HostError("cannot parse %q as float", args[0].Str)
			}
			return FloatValue(f), nil
		}
		return Unit, typeError("int, float or string", args[0])
	})

	// not: bool -> bool
	r.Register("not", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindBool {
			return Unit, typeError("bool", args[0])
		}
		return BoolValue(!args[0].Bool()), nil
	})

	// fst, snd: pair accessors
	r.Register("fst", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindTuple || len(args[0].Tuple) < 2 {
			return Unit, typeError("pair", args[0])
		}
		return args[0].Tuple[0], nil
	})
	r.Register("snd", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindTuple || len(args[0].Tuple) < 2 {
			return Unit, typeError("pair", args[0])
		}
		return args[0].Tuple[1], nil
	})
}
