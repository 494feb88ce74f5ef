package sim

import (
	"errors"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/memory"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// ErrSpawnFailed reports that the scheduler could not create an ordinary task.
var ErrSpawnFailed = errors.New("sim: task spawn failed")

type task struct {
	handle   kernel.TaskHandle
	uid      string
	name     string
	priority int
	core     types.CoreID

	// static creation buffers; nil for ordinary tasks
	stack  *memory.Block
	cb     *memory.Block
	static bool

	state      types.RunState
	suspendReq bool
	deleted    bool

	cond *sync.Cond
	done chan struct{}
}

// newTask builds a task record. Caller holds k.mu.
func (k *Kernel) newTask(name string, priority int, core types.CoreID) *task {
	t := &task{
		handle:   kernel.TaskHandle(k.allocID()),
		uid:      uuid.NewString(),
		name:     name,
		priority: priority,
		core:     core,
		state:    types.StateReady,
		done:     make(chan struct{}),
	}
	t.cond = sync.NewCond(&k.mu)
	k.tasks[t.handle] = t
	if k.metrics != nil {
		k.metrics.TasksActive.Inc()
	}
	return t
}

// launch runs the task function on its own goroutine.
func (k *Kernel) launch(t *task, fn kernel.TaskFunc) {
	go func() {
		gid := goid()

		k.mu.Lock()
		k.byGoroutine[gid] = t
		deleted := t.deleted
		if !deleted {
			t.state = types.StateRunning
		}
		k.mu.Unlock()

		defer func() {
			k.mu.Lock()
			delete(k.byGoroutine, gid)
			if !t.deleted {
				// A task must end by deletion, not by returning.
				t.deleted = true
				t.state = types.StateDeleted
				delete(k.tasks, t.handle)
				if k.metrics != nil {
					k.metrics.TasksActive.Dec()
				}
				k.log.Error("task function returned without deleting the task",
					zap.String("task", t.name),
					zap.String("uid", t.uid),
				)
			}
			k.mu.Unlock()
			close(t.done)
		}()

		// A task deleted before it ever ran must not execute.
		if !deleted {
			fn()
		}
	}()
}

// currentLocked returns the task bound to the calling goroutine. Caller
// holds k.mu.
func (k *Kernel) currentLocked() *task {
	return k.byGoroutine[goid()]
}

// resolveLocked maps a handle to its task, treating the zero handle as the
// caller. Caller holds k.mu.
func (k *Kernel) resolveLocked(h kernel.TaskHandle) *task {
	if h.Nil() {
		return k.currentLocked()
	}
	return k.tasks[h]
}

// CurrentTask returns the calling goroutine's task handle, or zero when the
// caller is not a task.
func (k *Kernel) CurrentTask() kernel.TaskHandle {
	k.mu.Lock()
	defer k.mu.Unlock()
	if t := k.currentLocked(); t != nil {
		return t.handle
	}
	return 0
}

// CurrentCore returns the core the calling task is pinned to, or core 0 for
// unpinned tasks and non-task callers.
func (k *Kernel) CurrentCore() types.CoreID {
	k.mu.Lock()
	defer k.mu.Unlock()
	if t := k.currentLocked(); t != nil && t.core != types.NoAffinity {
		return t.core
	}
	return 0
}

// TaskState reports a task's run state, StateInvalid for unknown handles.
func (k *Kernel) TaskState(h kernel.TaskHandle) types.RunState {
	k.mu.Lock()
	defer k.mu.Unlock()
	t := k.resolveLocked(h)
	if t == nil {
		return types.StateInvalid
	}
	return t.state
}

// TaskPriority returns a task's priority, 0 for unknown handles.
func (k *Kernel) TaskPriority(h kernel.TaskHandle) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	t := k.resolveLocked(h)
	if t == nil {
		return 0
	}
	return t.priority
}

// Suspend requests suspension. A task suspending itself parks here and only
// returns once resumed; suspending another task takes effect at that task's
// next yield point.
func (k *Kernel) Suspend(h kernel.TaskHandle) {
	k.mu.Lock()
	t := k.resolveLocked(h)
	if t == nil {
		k.mu.Unlock()
		k.log.Warn("suspend of unknown task", zap.Uint64("handle", uint64(h)))
		return
	}
	t.suspendReq = true
	self := t == k.currentLocked()
	k.mu.Unlock()

	if self {
		k.park(t)
	}
}

// Resume clears a task's suspension and wakes it.
func (k *Kernel) Resume(h kernel.TaskHandle) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t := k.resolveLocked(h)
	if t == nil {
		return
	}
	t.suspendReq = false
	t.cond.Broadcast()
}

// Yield offers the processor, honoring pending suspension or deletion of the
// caller. Tasks are only observed to stop running at yield points.
func (k *Kernel) Yield() {
	k.mu.Lock()
	t := k.currentLocked()
	if t == nil {
		k.mu.Unlock()
		runtime.Gosched()
		return
	}
	deleted := t.deleted
	suspend := t.suspendReq
	k.mu.Unlock()

	switch {
	case deleted:
		runtime.Goexit()
	case suspend:
		k.park(t)
	default:
		runtime.Gosched()
	}
}

// park blocks the calling task until its suspension is lifted. A task whose
// deletion arrives while parked never resumes.
func (k *Kernel) park(t *task) {
	k.mu.Lock()
	t.state = types.StateSuspended
	for t.suspendReq && !t.deleted {
		t.cond.Wait()
	}
	deleted := t.deleted
	if !deleted {
		t.state = types.StateRunning
	}
	k.mu.Unlock()

	if deleted {
		runtime.Goexit()
	}
}

// SpawnTask creates an ordinary task. Its memory is the goroutine's own; the
// scheduler reclaims everything when the task is deleted.
func (k *Kernel) SpawnTask(fn kernel.TaskFunc, name string, stackDepth int, priority int, core types.CoreID) (kernel.TaskHandle, error) {
	if fn == nil || stackDepth <= 0 {
		return 0, ErrSpawnFailed
	}

	k.mu.Lock()
	if k.failSpawns {
		k.mu.Unlock()
		return 0, ErrSpawnFailed
	}
	if core != types.NoAffinity && (core < 0 || int(core) >= k.cores) {
		k.mu.Unlock()
		return 0, ErrSpawnFailed
	}
	t := k.newTask(name, priority, core)
	k.mu.Unlock()

	k.log.Debug("spawn task",
		zap.String("task", name),
		zap.String("uid", t.uid),
		zap.Int("priority", priority),
	)
	k.launch(t, fn)
	return t.handle, nil
}

// CreateTaskStatic builds a task over caller-supplied stack and control block
// buffers, which the sim holds for introspection but never reclaims.
func (k *Kernel) CreateTaskStatic(fn kernel.TaskFunc, name string, stackDepth int, priority int, core types.CoreID, stack, cb *memory.Block) kernel.TaskHandle {
	if fn == nil || stackDepth <= 0 {
		return 0
	}
	if stack == nil || stack.Len() < stackDepth {
		return 0
	}
	if cb == nil || cb.Len() < taskControlBlockSize {
		return 0
	}
	if core != types.NoAffinity && (core < 0 || int(core) >= k.cores) {
		return 0
	}

	k.mu.Lock()
	t := k.newTask(name, priority, core)
	t.stack = stack
	t.cb = cb
	t.static = true
	k.mu.Unlock()

	k.log.Debug("create static task",
		zap.String("task", name),
		zap.String("uid", t.uid),
		zap.Int("stack_depth", stackDepth),
	)
	k.launch(t, fn)
	return t.handle
}

// TaskStaticBuffers recovers the buffers supplied to CreateTaskStatic. It
// fails for ordinary tasks and for handles no longer alive.
func (k *Kernel) TaskStaticBuffers(h kernel.TaskHandle) (stack, cb *memory.Block, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t := k.resolveLocked(h)
	if t == nil || !t.static {
		return nil, nil, false
	}
	return t.stack, t.cb, true
}

// DeleteTask removes a task from scheduling. The zero handle deletes the
// caller, which does not return. Statically supplied buffers stay untouched.
func (k *Kernel) DeleteTask(h kernel.TaskHandle) {
	k.mu.Lock()
	t := k.resolveLocked(h)
	if t == nil {
		k.mu.Unlock()
		k.log.Warn("delete of unknown task", zap.Uint64("handle", uint64(h)))
		return
	}
	t.deleted = true
	t.state = types.StateDeleted
	delete(k.tasks, t.handle)
	if k.metrics != nil {
		k.metrics.TasksActive.Dec()
	}
	t.cond.Broadcast()
	self := t == k.currentLocked()
	k.mu.Unlock()

	k.log.Debug("delete task",
		zap.String("task", t.name),
		zap.String("uid", t.uid),
		zap.Bool("self", self),
	)
	if self {
		runtime.Goexit()
	}
}

// WaitTaskExit blocks until a task's goroutine has fully unwound. Test hook.
func (k *Kernel) WaitTaskExit(h kernel.TaskHandle) {
	k.mu.Lock()
	t := k.tasks[h]
	k.mu.Unlock()
	if t == nil {
		return
	}
	<-t.done
}

// TaskInfo is a point-in-time view of one task, for the inspector.
type TaskInfo struct {
	Handle   uint64 `json:"handle"`
	UID      string `json:"uid"`
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Core     int    `json:"core"`
	State    string `json:"state"`
	Static   bool   `json:"static"`
}

// Tasks lists tasks known to the scheduler, ordered by handle. A task that
// self-deleted through the capability layer shows up as suspended until its
// reaper removes it.
func (k *Kernel) Tasks() []TaskInfo {
	k.mu.Lock()
	defer k.mu.Unlock()
	infos := make([]TaskInfo, 0, len(k.tasks))
	for _, t := range k.tasks {
		infos = append(infos, TaskInfo{
			Handle:   uint64(t.handle),
			UID:      t.uid,
			Name:     t.name,
			Priority: t.priority,
			Core:     int(t.core),
			State:    t.state.String(),
			Static:   t.static,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Handle < infos[j].Handle })
	return infos
}
