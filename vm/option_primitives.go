package vm

// ---------------------------------------------------------------------------
// Option and Result primitives
// ---------------------------------------------------------------------------

func isVariantOf(v Value, typeName string) bool {
	return v.Kind == KindVariant && v.Variant.TypeName == typeName
}

func registerOptionPrimitives(r *HostRegistry) {
	// Option.isSome / Option.isNone
	r.Register("Option.isSome", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if !isVariantOf(args[0], "Option") {
			return Unit, typeError("option", args[0])
		}
		return BoolValue(args[0].Variant.VariantName == "Some"), nil
	})
	r.Register("Option.isNone", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if !isVariantOf(args[0], "Option") {
			return Unit, typeError("option", args[0])
		}
		return BoolValue(args[0].Variant.VariantName == "None"), nil
	})

	// Option.defaultValue: 'a -> Option<'a> -> 'a
	r.Register("Option.defaultValue", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if !isVariantOf(args[1], "Option") {
			return Unit, typeError("option", args[1])
		}
		if args[1].Variant.VariantName == "Some" {
			return args[1].Variant.Fields[0], nil
		}
		return args[0], nil
	})

	// Option.map: ('a -> 'b) -> Option<'a> -> Option<'b>
	r.Register("Option.map", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if !isVariantOf(args[1], "Option") {
			return Unit, typeError("option", args[1])
		}
		if args[1].Variant.VariantName == "None" {
			return args[1], nil
		}
		v, err := vm.CallValue(args[0], []Value{args[1].Variant.Fields[0]})
		if err != nil {
			return Unit, err
		}
		return SomeValue(v), nil
	})

	// Option.bind: ('a -> Option<'b>) -> Option<'a> -> Option<'b>
	r.Register("Option.bind", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if !isVariantOf(args[1], "Option") {
			return Unit, typeError("option", args[1])
		}
		if args[1].Variant.VariantName == "None" {
			return args[1], nil
		}
		return vm.CallValue(args[0], []Value{args[1].Variant.Fields[0]})
	})

	// Result.isOk / Result.isError
	r.Register("Result.isOk", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if !isVariantOf(args[0], "Result") {
			return Unit, typeError("result", args[0])
		}
		return BoolValue(args[0].Variant.VariantName == "Ok"), nil
	})
	r.Register("Result.isError", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if !isVariantOf(args[0], "Result") {
			return Unit, typeError("result", args[0])
		}
		return BoolValue(args[0].Variant.VariantName == "Error"), nil
	})

	// Result.map: ('a -> 'b) -> Result<'a,'e> -> Result<'b,'e>
	r.Register("Result.map", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if !isVariantOf(args[1], "Result") {
			return Unit, typeError("result", args[1])
		}
		if args[1].Variant.VariantName == "Error" {
			return args[1], nil
		}
		v, err := vm.CallValue(args[0], []Value{args[1].Variant.Fields[0]})
		if err != nil {
			return Unit, err
		}
		return OkValue(v), nil
	})

	// Result.mapError: ('e -> 'f) -> Result<'a,'e> -> Result<'a,'f>
	r.Register("Result.mapError", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if !isVariantOf(args[1], "Result") {
			return Unit, typeError("result", args[1])
		}
		if args[1].Variant.VariantName == "Ok" {
			return args[1], nil
		}
		v, err := vm.CallValue(args[0], []Value{args[1].Variant.Fields[0]})
		if err != nil {
			return Unit, err
		}
		return ErrorValue(v), nil
	})

	// Result.bind: ('a -> Result<'b,'e>) -> Result<'a,'e> -> Result<'b,'e>
	r.Register("Result.bind", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if !isVariantOf(args[1], "Result") {
			return Unit, typeError("result", args[1])
		}
		if args[1].Variant.VariantName == "Error" {
			return args[1], nil
		}
		return vm.CallValue(args[0], []Value{args[1].Variant.Fields[0]})
	})
}
