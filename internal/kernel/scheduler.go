package kernel

import "github.com/GriffinCanCode/CapOS/internal/types"

// TaskFunc is a task's entry point. A task ends by being deleted; returning
// from the function without deletion is a scheduler-specific error.
type TaskFunc func()

// Scheduler is the slice of the kernel's scheduling surface the lifecycle
// layer consumes. State transitions belong to the scheduler; the lifecycle
// layer only reads them to decide how a deletion may proceed.
type Scheduler interface {
	// CurrentTask returns the handle of the calling execution context, or
	// the zero handle when called from outside any task.
	CurrentTask() TaskHandle

	// TaskState reports a task's run state. StateInvalid for unknown handles.
	TaskState(h TaskHandle) types.RunState

	// Suspend requests suspension of a task. Self-suspension parks the
	// caller immediately and only returns once the task is resumed.
	Suspend(h TaskHandle)

	// Yield offers the processor to the scheduler, honoring any pending
	// suspend request against the caller.
	Yield()

	// NumCores returns the number of processing cores.
	NumCores() int

	// CurrentCore returns the core the caller is executing on.
	CurrentCore() types.CoreID

	// TaskPriority returns a task's priority.
	TaskPriority(h TaskHandle) int

	// InInterrupt reports whether the caller runs in interrupt context.
	InInterrupt() bool

	// SpawnTask creates an ordinary task whose memory the scheduler both
	// allocates and reclaims. The lifecycle layer uses it only for reapers,
	// so reaper teardown never re-enters capability accounting.
	SpawnTask(fn TaskFunc, name string, stackDepth int, priority int, core types.CoreID) (TaskHandle, error)

	// DeleteTask removes a task from scheduling. Deleting the calling task
	// does not return. Buffers supplied at static creation are untouched;
	// reclaiming them is the caller's job.
	DeleteTask(h TaskHandle)
}
