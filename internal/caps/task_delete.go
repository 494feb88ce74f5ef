package caps

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// reaperStackDepth is the stack depth requested for reaper tasks. Reapers
// are ordinary tasks, so the scheduler sizes and reclaims the real stack.
const reaperStackDepth = 512

// DeleteTask deletes a task created by CreateTask and frees its stack and
// control block. Must not be called from interrupt context.
//
// Three cases, decided by the target's state at the moment of the call:
//
//   - Self-delete (zero handle or the caller's own handle): the task cannot
//     free the stack it is executing on, and the scheduler's deferred
//     cleanup knows nothing about capability-tagged buffers, so a reaper
//     task is spawned to finish the job. The call suspends the caller and
//     never returns.
//   - Running on another core: the target is suspended and the caller spins,
//     yielding, until the scheduler confirms it stopped. Deleting a task
//     whose stack is mid-use on another core is undefined.
//   - Not running anywhere: deleted directly.
func (l *Lifecycle) DeleteTask(h kernel.TaskHandle) {
	if l.kern.InInterrupt() {
		l.invariant("task deletion requested from interrupt context")
		return
	}

	cur := l.kern.CurrentTask()
	if h.Nil() || h == cur {
		l.deleteSelf(cur)
		return
	}

	if l.kern.NumCores() > 1 && l.kern.TaskState(h) == types.StateRunning {
		// Running on another core. Request suspension, then wait for the
		// scheduler to confirm the target stopped. No timeout: the bound is
		// the scheduler honoring the suspend, and the backstop for a
		// scheduler that never does is an external watchdog.
		l.kern.Suspend(h)
		for l.kern.TaskState(h) == types.StateRunning {
			l.kern.Yield()
		}
	}

	l.reclaim(h)
}

// deleteSelf hands the caller's teardown to a freshly spawned reaper and
// suspends the caller. The reaper hand-off is a commitment: once it is
// spawned the caller is past the point of return.
func (l *Lifecycle) deleteSelf(cur kernel.TaskHandle) {
	if cur.Nil() {
		l.invariant("self-delete requested outside any task context")
		return
	}

	reaper := func() {
		// The target suspends itself right after spawning us; wait until
		// the scheduler no longer reports it running.
		for l.kern.TaskState(cur) == types.StateRunning {
			l.kern.Yield()
		}

		l.reclaim(cur)

		// Retire the reaper itself. It is an ordinary task: the scheduler
		// reclaims its resources and this layer is not re-entered.
		l.kern.DeleteTask(0)
	}

	_, err := l.kern.SpawnTask(reaper, "cap_reaper", reaperStackDepth,
		l.kern.TaskPriority(cur), l.kern.CurrentCore())
	if err != nil {
		// A task that can neither delete itself nor hand off deletion would
		// run forever holding stale resources. Halting is the lesser evil.
		l.invariant("failed to spawn reaper for self-deleting task",
			zap.Uint64("handle", uint64(cur)),
			zap.Error(err),
		)
		return
	}
	if l.metrics != nil {
		l.metrics.RecordReaperSpawn()
	}
	l.log.Debug("reaper spawned for self-deleting task",
		zap.Uint64("handle", uint64(cur)),
	)

	// Park until the reaper deletes us. Between here and the deletion the
	// task is visible as suspended in the task listing; that window is a
	// known cosmetic inconsistency, not a correctness problem.
	l.kern.Suspend(cur)

	l.invariant("self-deleted task resumed after suspension",
		zap.Uint64("handle", uint64(cur)),
	)
}

// reclaim performs the ordinary deletion path for a task confirmed not to be
// executing: recover the buffers first, since deletion may invalidate the
// handle, delete, then free.
func (l *Lifecycle) reclaim(h kernel.TaskHandle) {
	if l.kern.TaskState(h) == types.StateRunning {
		l.invariant("attempt to reclaim a running task",
			zap.Uint64("handle", uint64(h)),
		)
		return
	}

	stack, cb, ok := l.kern.TaskStaticBuffers(h)
	if !ok || stack == nil || cb == nil {
		l.invariant("task introspection failed for a live handle",
			zap.Uint64("handle", uint64(h)),
		)
		return
	}

	l.kern.DeleteTask(h)

	l.alloc.Free(stack)
	l.alloc.Free(cb)
	l.destroyed(types.KindTask)
	l.log.Debug("task reclaimed", zap.Uint64("handle", uint64(h)))
}
