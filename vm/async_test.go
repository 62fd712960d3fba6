package vm

import (
	"context"
	"testing"
	"time"
)

func TestSpawnAndBlockOn(t *testing.T) {
	rt := NewAsyncRuntime(2)
	defer rt.Close()

	id := rt.Spawn(func(ctx context.Context) (Value, *VmError) {
		return IntValue(42), nil
	})
	result, err := rt.BlockOn(id)
	if err != nil {
		t.Fatalf("BlockOn: %v", err)
	}
	if result.Int != 42 {
		t.Errorf("result = %v, want 42", result)
	}
}

func TestParallelTasks(t *testing.T) {
	rt := NewAsyncRuntime(4)
	defer rt.Close()

	ids := make([]TaskID, 3)
	for i := range ids {
		n := int64(i + 1)
		ids[i] = rt.Spawn(func(ctx context.Context) (Value, *VmError) {
			time.Sleep(10 * time.Millisecond)
			return IntValue(n), nil
		})
	}
	for i, id := range ids {
		result, err := rt.BlockOn(id)
		if err != nil {
			t.Fatalf("task %d: %v", i, err)
		}
		if result.Int != int64(i+1) {
			t.Errorf("task %d = %v, want %d", i, result, i+1)
		}
	}
}

func TestPollPending(t *testing.T) {
	rt := NewAsyncRuntime(1)
	defer rt.Close()

	release := make(chan struct{})
	id := rt.Spawn(func(ctx context.Context) (Value, *VmError) {
		<-release
		return IntValue(1), nil
	})
	if status := rt.Poll(id); status.State != TaskPending {
		t.Errorf("state = %v, want Pending", status.State)
	}
	close(release)
	if _, err := rt.BlockOn(id); err != nil {
		t.Fatalf("BlockOn: %v", err)
	}
}

func TestTaskFailure(t *testing.T) {
	rt := NewAsyncRuntime(1)
	defer rt.Close()

	id := rt.Spawn(func(ctx context.Context) (Value, *VmError) {
		return Unit, HostError("task failed")
	})
	_, err := rt.BlockOn(id)
	if err == nil || err.Kind != ErrHost {
		t.Errorf("err = %v, want Host", err)
	}
}

func TestCancellationIsIdempotent(t *testing.T) {
	rt := NewAsyncRuntime(1)
	defer rt.Close()

	id := rt.Spawn(func(ctx context.Context) (Value, *VmError) {
		select {
		case <-ctx.Done():
			return Unit, Errorf(ErrCancelled, "cancelled")
		case <-time.After(10 * time.Second):
			return IntValue(1), nil
		}
	})
	rt.Cancel(id)
	rt.Cancel(id)
	if status := rt.Poll(id); status.State != TaskCancelled {
		t.Errorf("state = %v, want Cancelled", status.State)
	}
}

func TestTerminalStateIsSticky(t *testing.T) {
	rt := NewAsyncRuntime(1)
	defer rt.Close()

	id := rt.Spawn(func(ctx context.Context) (Value, *VmError) {
		return IntValue(5), nil
	})
	if _, err := rt.BlockOn(id); err != nil {
		t.Fatalf("BlockOn: %v", err)
	}
	first := rt.Poll(id)
	if first.State != TaskReady {
		t.Fatalf("state = %v, want Ready", first.State)
	}
	// Cancelling a terminal task must not change its state.
	rt.Cancel(id)
	if again := rt.Poll(id); again.State != TaskReady || again.Value.Int != 5 {
		t.Errorf("state after cancel = %v, want sticky Ready(5)", again.State)
	}
}

func TestUnknownTask(t *testing.T) {
	rt := NewAsyncRuntime(1)
	defer rt.Close()

	if status := rt.Poll(TaskID(99999)); status.State != TaskFailed {
		t.Errorf("state = %v, want Failed for unknown task", status.State)
	}
}
