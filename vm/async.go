package vm

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// AsyncRuntime: task table bridging the VM to a worker-pool executor
// ---------------------------------------------------------------------------

var asyncLog = commonlog.GetLogger("fusabi.async")

// TaskID identifies an entry in the async task table.
type TaskID uint64

// TaskState is the lifecycle state of an async task. Ready, Failed and
// Cancelled are terminal: once observed, a task never reports Pending again.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskReady
	TaskFailed
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "Pending"
	case TaskReady:
		return "Ready"
	case TaskFailed:
		return "Failed"
	default:
		return "Cancelled"
	}
}

// TaskStatus is a snapshot of one task's state.
type TaskStatus struct {
	State TaskState
	Value Value  // meaningful when State == TaskReady
	Err   string // meaningful when State == TaskFailed
}

// TaskFunc is the work a spawned task performs on the executor. It must
// honor ctx cancellation at its yield points; cancellation is cooperative.
type TaskFunc func(ctx context.Context) (Value, *VmError)

type task struct {
	id     TaskID
	fn     TaskFunc
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	status TaskStatus
	done   chan struct{}
}

// settle records a terminal state exactly once. Later settles are no-ops,
// which is what makes Cancel idempotent and races with completion safe.
func (t *task) settle(status TaskStatus) {
	t.mu.Lock()
	if t.status.State != TaskPending {
		t.mu.Unlock()
		return
	}
	t.status = status
	t.mu.Unlock()
	close(t.done)
}

func (t *task) snapshot() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// AsyncRuntime owns a fixed pool of worker goroutines and the task table.
// The VM thread never executes task bodies; it only spawns, polls, blocks
// and cancels.
type AsyncRuntime struct {
	mu     sync.Mutex
	tasks  map[TaskID]*task
	queue  chan *task
	quit   chan struct{}
	nextID atomic.Uint64
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewAsyncRuntime starts a runtime with the given number of worker
// goroutines; workers <= 0 uses the logical CPU count.
func NewAsyncRuntime(workers int) *AsyncRuntime {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	rt := &AsyncRuntime{
		tasks: make(map[TaskID]*task),
		queue: make(chan *task, 64),
		quit:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		rt.wg.Add(1)
		go rt.worker()
	}
	asyncLog.Debugf("async runtime started with %d workers", workers)
	return rt
}

func (rt *AsyncRuntime) worker() {
	defer rt.wg.Done()
	for {
		select {
		case <-rt.quit:
			return
		case t := <-rt.queue:
			rt.runTask(t)
		}
	}
}

func (rt *AsyncRuntime) runTask(t *task) {
	if t.ctx.Err() != nil {
		t.settle(TaskStatus{State: TaskCancelled})
		return
	}
	value, err := t.fn(t.ctx)
	switch {
	case t.ctx.Err() != nil:
		t.settle(TaskStatus{State: TaskCancelled})
	case err != nil:
		t.settle(TaskStatus{State: TaskFailed, Err: err.Error()})
	default:
		t.settle(TaskStatus{State: TaskReady, Value: value})
	}
}

// Spawn registers a task and returns its id immediately. The factory runs
// on the executor, never on the calling VM thread.
func (rt *AsyncRuntime) Spawn(fn TaskFunc) TaskID {
	id := TaskID(rt.nextID.Add(1))
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:     id,
		fn:     fn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	rt.mu.Lock()
	rt.tasks[id] = t
	closed := rt.closed.Load()
	rt.mu.Unlock()

	if closed {
		t.settle(TaskStatus{State: TaskCancelled})
		return id
	}
	rt.queue <- t
	return id
}

func (rt *AsyncRuntime) lookup(id TaskID) *task {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.tasks[id]
}

// Poll returns a non-blocking snapshot of the task's state. Unknown ids
// report Failed.
func (rt *AsyncRuntime) Poll(id TaskID) TaskStatus {
	t := rt.lookup(id)
	if t == nil {
		return TaskStatus{State: TaskFailed, Err: "unknown task"}
	}
	return t.snapshot()
}

// BlockOn parks the calling thread until the task reaches a terminal state
// and converts that state to a value or error.
func (rt *AsyncRuntime) BlockOn(id TaskID) (Value, *VmError) {
	t := rt.lookup(id)
	if t == nil {
		return Unit, Errorf(ErrHost, "unknown task %d", id)
	}
	<-t.done
	status := t.snapshot()
	switch status.State {
	case TaskReady:
		return status.Value, nil
	case TaskCancelled:
		return Unit, Errorf(ErrCancelled, "task %d was cancelled", id)
	default:
		return Unit, HostError("%s", status.Err)
	}
}

// Cancel requests best-effort cancellation. It is idempotent: cancelling a
// terminal task is a no-op, and downstream binds observe Cancelled.
func (rt *AsyncRuntime) Cancel(id TaskID) {
	t := rt.lookup(id)
	if t == nil {
		return
	}
	t.cancel()
	t.settle(TaskStatus{State: TaskCancelled})
}

// Close cancels outstanding tasks and stops the workers. A closed runtime
// settles new spawns as Cancelled.
func (rt *AsyncRuntime) Close() {
	rt.mu.Lock()
	if !rt.closed.CompareAndSwap(false, true) {
		rt.mu.Unlock()
		return
	}
	for _, t := range rt.tasks {
		t.cancel()
		t.settle(TaskStatus{State: TaskCancelled})
	}
	rt.mu.Unlock()
	close(rt.quit)
	rt.wg.Wait()
	asyncLog.Debug("async runtime stopped")
}
