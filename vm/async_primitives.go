package vm

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Async computation expressions
// ---------------------------------------------------------------------------
//
// async { ... } desugars to builder calls that construct a free-monad value:
// Async::Pure, Async::Bind, Async::Delay and Async::Combine variants.
// Async.RunSynchronously drives the structure on the calling VM thread;
// Async.start hands it to the executor and yields an Async task handle.

const asyncTypeName = "Async"

func asyncVariant(name string, fields []Value) Value {
	return VariantValue(asyncTypeName, name, fields)
}

// runAsyncMonad drives an Async free-monad value to completion on the
// given VM, trampolining Bind continuations to keep the Go stack flat.
func runAsyncMonad(vm *VM, computation Value) (Value, *VmError) {
	current := computation
	var continuations []Value

	for {
		if current.Kind == KindAsync {
			// A started task inside the structure: join it.
			if vm.async == nil {
				return Unit, HostError("async runtime is disabled")
			}
			joined, err := vm.async.BlockOn(current.Task)
			if err != nil {
				return Unit, err
			}
			current = asyncVariant("Pure", []Value{joined})
			continue
		}
		if current.Kind != KindVariant || current.Variant.TypeName != asyncTypeName {
			return Unit, typeError("async computation", current)
		}

		v := current.Variant
		switch v.VariantName {
		case "Pure":
			result := v.Fields[0]
			if len(continuations) == 0 {
				return result, nil
			}
			k := continuations[len(continuations)-1]
			continuations = continuations[:len(continuations)-1]
			next, err := vm.CallValue(k, []Value{result})
			if err != nil {
				return Unit, err
			}
			current = next

		case "Bind":
			continuations = append(continuations, v.Fields[1])
			current = v.Fields[0]

		case "Combine":
			// Combine(first, second) == Bind(first, fun _ -> second)
			helper := &NativeFn{
				Name:    "Async.Internal.CombineHelper",
				Arity:   2,
				Fn:      asyncCombineHelper,
				Applied: []Value{v.Fields[1]},
			}
			current = asyncVariant("Bind", []Value{v.Fields[0], NativeValue(helper)})

		case "Delay":
			next, err := vm.CallValue(v.Fields[0], []Value{Unit})
			if err != nil {
				return Unit, err
			}
			current = next

		default:
			return Unit, HostError("unknown async variant %q", v.VariantName)
		}
	}
}

func asyncCombineHelper(vm *VM, args []Value) (Value, *VmError) {
	return args[0], nil
}

// startAsync schedules an async computation on the executor from the given
// VM, forking it so the task body never races the spawning thread.
func startAsync(vm *VM, computation Value) (TaskID, *VmError) {
	if vm.async == nil {
		return 0, HostError("async runtime is disabled")
	}
	if computation.Kind == KindAsync {
		return computation.Task, nil
	}
	forked := vm.Fork()
	id := vm.async.Spawn(func(ctx context.Context) (Value, *VmError) {
		if ctx.Err() != nil {
			return Unit, Errorf(ErrCancelled, "task cancelled before start")
		}
		return runAsyncMonad(forked, computation)
	})
	return id, nil
}

// ---------------------------------------------------------------------------
// Async primitives registration
// ---------------------------------------------------------------------------

func registerAsyncPrimitives(r *HostRegistry) {
	// Async.Return: 'a -> Async<'a>
	r.Register("Async.Return", 1, func(vm *VM, args []Value) (Value, *VmError) {
		return asyncVariant("Pure", []Value{args[0]}), nil
	})

	// Async.Bind: Async<'a> -> ('a -> Async<'b>) -> Async<'b>
	r.Register("Async.Bind", 2, func(vm *VM, args []Value) (Value, *VmError) {
		return asyncVariant("Bind", []Value{args[0], args[1]}), nil
	})

	// Async.Delay: (unit -> Async<'a>) -> Async<'a>
	r.Register("Async.Delay", 1, func(vm *VM, args []Value) (Value, *VmError) {
		return asyncVariant("Delay", []Value{args[0]}), nil
	})

	// Async.ReturnFrom: Async<'a> -> Async<'a>
	r.Register("Async.ReturnFrom", 1, func(vm *VM, args []Value) (Value, *VmError) {
		return args[0], nil
	})

	// Async.Zero: unit -> Async<unit>
	r.Register("Async.Zero", 1, func(vm *VM, args []Value) (Value, *VmError) {
		return asyncVariant("Pure", []Value{Unit}), nil
	})

	// Async.Combine: Async<unit> -> Async<'a> -> Async<'a>
	r.Register("Async.Combine", 2, func(vm *VM, args []Value) (Value, *VmError) {
		return asyncVariant("Combine", []Value{args[0], args[1]}), nil
	})

	// Async.RunSynchronously: Async<'a> -> 'a
	r.Register("Async.RunSynchronously", 1, func(vm *VM, args []Value) (Value, *VmError) {
		return runAsyncMonad(vm, args[0])
	})

	// Async.start: Async<'a> -> Async<'a>  (schedule on the executor)
	r.Register("Async.start", 1, func(vm *VM, args []Value) (Value, *VmError) {
		id, err := startAsync(vm, args[0])
		if err != nil {
			return Unit, err
		}
		return AsyncValue(id), nil
	})

	// Async.sleep: int -> Async<unit>
	r.Register("Async.sleep", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindInt {
			return Unit, typeError("int", args[0])
		}
		if vm.async == nil {
			return Unit, HostError("async runtime is disabled")
		}
		millis := args[0].Int
		id := vm.async.Spawn(func(ctx context.Context) (Value, *VmError) {
			select {
			case <-time.After(time.Duration(millis) * time.Millisecond):
				return Unit, nil
			case <-ctx.Done():
				return Unit, Errorf(ErrCancelled, "sleep cancelled")
			}
		})
		return AsyncValue(id), nil
	})

	// Async.parallel: List<Async<'a>> -> Async<List<'a>>
	r.Register("Async.parallel", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindList {
			return Unit, typeError("list", args[0])
		}
		if vm.async == nil {
			return Unit, HostError("async runtime is disabled")
		}
		ids := make([]TaskID, 0, ListLen(args[0]))
		for node := args[0].List; node != nil; node = node.Tail {
			id, err := startAsync(vm, node.Head)
			if err != nil {
				return Unit, err
			}
			ids = append(ids, id)
		}
		rt := vm.async
		joined := rt.Spawn(func(ctx context.Context) (Value, *VmError) {
			results := make([]Value, 0, len(ids))
			for _, id := range ids {
				v, err := rt.BlockOn(id)
				if err != nil {
					return Unit, err
				}
				results = append(results, v)
			}
			return ListFromSlice(results), nil
		})
		return AsyncValue(joined), nil
	})

	// Async.parallel2: Async<'a> -> Async<'b> -> Async<'a * 'b>
	r.Register("Async.parallel2", 2, func(vm *VM, args []Value) (Value, *VmError) {
		return parallelTuple(vm, args)
	})

	// Async.parallel3: Async<'a> -> Async<'b> -> Async<'c> -> Async<'a * 'b * 'c>
	r.Register("Async.parallel3", 3, func(vm *VM, args []Value) (Value, *VmError) {
		return parallelTuple(vm, args)
	})

	// Async.withTimeout: int -> Async<'a> -> Async<Option<'a>>
	r.Register("Async.withTimeout", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindInt {
			return Unit, typeError("int", args[0])
		}
		id, err := startAsync(vm, args[1])
		if err != nil {
			return Unit, err
		}
		timeout := time.Duration(args[0].Int) * time.Millisecond
		rt := vm.async
		watcher := rt.Spawn(func(ctx context.Context) (Value, *VmError) {
			deadline := time.After(timeout)
			tick := time.NewTicker(time.Millisecond)
			defer tick.Stop()
			for {
				select {
				case <-deadline:
					rt.Cancel(id)
					return NoneValue(), nil
				case <-ctx.Done():
					return Unit, Errorf(ErrCancelled, "timeout watcher cancelled")
				case <-tick.C:
					status := rt.Poll(id)
					switch status.State {
					case TaskReady:
						return SomeValue(status.Value), nil
					case TaskFailed:
						return Unit, HostError("%s", status.Err)
					case TaskCancelled:
						return NoneValue(), nil
					}
				}
			}
		})
		return AsyncValue(watcher), nil
	})

	// Async.catch: Async<'a> -> Async<Result<'a, string>>
	// The only reification of failure into a script value.
	r.Register("Async.catch", 1, func(vm *VM, args []Value) (Value, *VmError) {
		id, err := startAsync(vm, args[0])
		if err != nil {
			return Unit, err
		}
		rt := vm.async
		caught := rt.Spawn(func(ctx context.Context) (Value, *VmError) {
			v, err := rt.BlockOn(id)
			if err != nil {
				return ErrorValue(StrValue(err.Message)), nil
			}
			return OkValue(v), nil
		})
		return AsyncValue(caught), nil
	})

	// Async.cancel: Async<'a> -> unit
	r.Register("Async.cancel", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindAsync {
			return Unit, typeError("async", args[0])
		}
		if vm.async == nil {
			return Unit, HostError("async runtime is disabled")
		}
		vm.async.Cancel(args[0].Task)
		return Unit, nil
	})
}

// parallelTuple starts every argument and joins them into a tuple.
func parallelTuple(vm *VM, args []Value) (Value, *VmError) {
	ids := make([]TaskID, len(args))
	for i, a := range args {
		id, err := startAsync(vm, a)
		if err != nil {
			return Unit, err
		}
		ids[i] = id
	}
	rt := vm.async
	joined := rt.Spawn(func(ctx context.Context) (Value, *VmError) {
		results := make([]Value, len(ids))
		for i, id := range ids {
			v, err := rt.BlockOn(id)
			if err != nil {
				return Unit, err
			}
			results[i] = v
		}
		return TupleValue(results), nil
	})
	return AsyncValue(joined), nil
}
