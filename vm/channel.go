package vm

import (
	"context"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Channel: bounded FIFO with separate sender/receiver handles
// ---------------------------------------------------------------------------

// channelCore is the shared state behind a sender/receiver pair.
type channelCore struct {
	ch     chan Value
	closed atomic.Bool
	mu     sync.Mutex // protects the close operation
}

// ChannelSender is the sending half of a bounded channel.
type ChannelSender struct {
	core *channelCore
}

// ChannelReceiver is the receiving half of a bounded channel.
type ChannelReceiver struct {
	core *channelCore
}

// NewChannel creates a bounded FIFO with the given capacity (0 for a
// rendezvous channel) and returns its two handles.
func NewChannel(capacity int) (*ChannelSender, *ChannelReceiver) {
	if capacity < 0 {
		capacity = 0
	}
	core := &channelCore{ch: make(chan Value, capacity)}
	return &ChannelSender{core: core}, &ChannelReceiver{core: core}
}

// Send enqueues a value, blocking while the buffer is full. Sending on a
// closed channel fails.
func (s *ChannelSender) Send(ctx context.Context, v Value) *VmError {
	if s.core.closed.Load() {
		return Errorf(ErrHost, "send on closed channel")
	}
	select {
	case s.core.ch <- v:
		return nil
	case <-ctx.Done():
		return Errorf(ErrCancelled, "send cancelled")
	}
}

// TrySend enqueues without blocking, reporting whether the value was taken.
func (s *ChannelSender) TrySend(v Value) bool {
	if s.core.closed.Load() {
		return false
	}
	select {
	case s.core.ch <- v:
		return true
	default:
		return false
	}
}

// Close closes the channel. Closing twice is a no-op.
func (s *ChannelSender) Close() {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()
	if !s.core.closed.Load() {
		s.core.closed.Store(true)
		close(s.core.ch)
	}
}

// Receive dequeues a value, blocking while the buffer is empty. A drained
// closed channel yields ok=false.
func (r *ChannelReceiver) Receive(ctx context.Context) (Value, bool, *VmError) {
	select {
	case v, ok := <-r.core.ch:
		return v, ok, nil
	case <-ctx.Done():
		return Unit, false, Errorf(ErrCancelled, "receive cancelled")
	}
}

// TryReceive dequeues without blocking.
func (r *ChannelReceiver) TryReceive() (Value, bool) {
	select {
	case v, ok := <-r.core.ch:
		return v, ok
	default:
		return Unit, false
	}
}

// Len returns the number of buffered values.
func (r *ChannelReceiver) Len() int { return len(r.core.ch) }

// Cap returns the buffer capacity.
func (r *ChannelReceiver) Cap() int { return cap(r.core.ch) }

// SenderValue wraps a sender handle as a script value.
func SenderValue(s *ChannelSender) Value {
	return Value{Kind: KindChanSender, Sender: s}
}

// ReceiverValue wraps a receiver handle as a script value.
func ReceiverValue(r *ChannelReceiver) Value {
	return Value{Kind: KindChanReceiver, Receiver: r}
}
