package vm

import "context"

// ---------------------------------------------------------------------------
// Channel primitives
// ---------------------------------------------------------------------------

func registerChannelPrimitives(r *HostRegistry) {
	// Channel.create: int -> (Sender<'a> * Receiver<'a>)
	r.Register("Channel.create", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindInt {
			return Unit, typeError("int", args[0])
		}
		s, recv := NewChannel(int(args[0].Int))
		return TupleValue([]Value{SenderValue(s), ReceiverValue(recv)}), nil
	})

	// Channel.send: Sender<'a> -> 'a -> unit  (blocks while the buffer is full)
	r.Register("Channel.send", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindChanSender {
			return Unit, typeError("channel sender", args[0])
		}
		if err := args[0].Sender.Send(context.Background(), args[1]); err != nil {
			return Unit, err
		}
		return Unit, nil
	})

	// Channel.trySend: Sender<'a> -> 'a -> bool
	r.Register("Channel.trySend", 2, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindChanSender {
			return Unit, typeError("channel sender", args[0])
		}
		return BoolValue(args[0].Sender.TrySend(args[1])), nil
	})

	// Channel.receive: Receiver<'a> -> 'a  (blocks while the buffer is empty)
	r.Register("Channel.receive", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindChanReceiver {
			return Unit, typeError("channel receiver", args[0])
		}
		v, ok, err := args[0].Receiver.Receive(context.Background())
		if err != nil {
			return Unit, err
		}
		if !ok {
			return Unit, HostError("receive on closed channel")
		}
		return v, nil
	})

	// Channel.tryReceive: Receiver<'a> -> Option<'a>
	r.Register("Channel.tryReceive", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindChanReceiver {
			return Unit, typeError("channel receiver", args[0])
		}
		v, ok := args[0].Receiver.TryReceive()
		if !ok {
			return NoneValue(), nil
		}
		return SomeValue(v), nil
	})

	// Channel.receiveAsync: Receiver<'a> -> Async<'a>
	// Readiness is driven by the FIFO; the VM thread is never parked.
	r.Register("Channel.receiveAsync", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindChanReceiver {
			return Unit, typeError("channel receiver", args[0])
		}
		if vm.async == nil {
			return Unit, HostError("async runtime is disabled")
		}
		receiver := args[0].Receiver
		id := vm.async.Spawn(func(ctx context.Context) (Value, *VmError) {
			v, ok, err := receiver.Receive(ctx)
			if err != nil {
				return Unit, err
			}
			if !ok {
				return Unit, HostError("receive on closed channel")
			}
			return v, nil
		})
		return AsyncValue(id), nil
	})

	// Channel.close: Sender<'a> -> unit  (idempotent)
	r.Register("Channel.close", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindChanSender {
			return Unit, typeError("channel sender", args[0])
		}
		args[0].Sender.Close()
		return Unit, nil
	})

	// Channel.length: Receiver<'a> -> int
	r.Register("Channel.length", 1, func(vm *VM, args []Value) (Value, *VmError) {
		if args[0].Kind != KindChanReceiver {
			return Unit, typeError("channel receiver", args[0])
		}
		return IntValue(int64(args[0].Receiver.Len())), nil
	})
}
