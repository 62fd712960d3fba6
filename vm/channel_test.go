package vm

import (
	"context"
	"testing"
)

func TestChannelFIFOOrder(t *testing.T) {
	sender, receiver := NewChannel(3)
	for i := int64(1); i <= 3; i++ {
		if err := sender.Send(context.Background(), IntValue(i)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	for i := int64(1); i <= 3; i++ {
		v, ok, err := receiver.Receive(context.Background())
		if err != nil || !ok {
			t.Fatalf("Receive: ok=%v err=%v", ok, err)
		}
		if v.Int != i {
			t.Errorf("received %v, want %d", v, i)
		}
	}
}

func TestChannelTrySendFullBuffer(t *testing.T) {
	sender, receiver := NewChannel(1)
	if !sender.TrySend(IntValue(1)) {
		t.Fatal("TrySend on empty buffer failed")
	}
	if sender.TrySend(IntValue(2)) {
		t.Error("TrySend on full buffer succeeded")
	}
	if v, ok := receiver.TryReceive(); !ok || v.Int != 1 {
		t.Errorf("TryReceive = %v/%v, want 1/true", v, ok)
	}
	if _, ok := receiver.TryReceive(); ok {
		t.Error("TryReceive on empty buffer succeeded")
	}
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	sender, receiver := NewChannel(1)
	sender.Send(context.Background(), IntValue(1))
	sender.Close()
	sender.Close()

	// Buffered value still drains after close.
	v, ok, err := receiver.Receive(context.Background())
	if err != nil || !ok || v.Int != 1 {
		t.Fatalf("drain after close = %v/%v/%v", v, ok, err)
	}
	// Then the channel reports closed.
	if _, ok, _ := receiver.Receive(context.Background()); ok {
		t.Error("Receive on drained closed channel reported a value")
	}
	if err := sender.Send(context.Background(), IntValue(2)); err == nil {
		t.Error("Send on closed channel succeeded")
	}
}

func TestChannelReceiveCancellation(t *testing.T) {
	_, receiver := NewChannel(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := receiver.Receive(ctx)
	if err == nil || err.Kind != ErrCancelled {
		t.Errorf("err = %v, want Cancelled", err)
	}
}

func TestChannelLenCap(t *testing.T) {
	sender, receiver := NewChannel(2)
	sender.TrySend(IntValue(1))
	if receiver.Len() != 1 {
		t.Errorf("Len = %d, want 1", receiver.Len())
	}
	if receiver.Cap() != 2 {
		t.Errorf("Cap = %d, want 2", receiver.Cap())
	}
}
