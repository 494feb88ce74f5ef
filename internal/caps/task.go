package caps

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// CreateTask creates a task whose stack and control block are both drawn
// from memory satisfying the capability mask. Pass types.NoAffinity for an
// unpinned task. Tasks created here must be deleted through DeleteTask;
// the scheduler's own cleanup cannot reclaim their memory.
func (l *Lifecycle) CreateTask(fn kernel.TaskFunc, name string, stackDepth int, priority int, core types.CoreID, caps types.CapMask) (kernel.TaskHandle, error) {
	if fn == nil || stackDepth <= 0 {
		return 0, types.ErrInvalidArgument
	}

	p, ok := l.allocPair(l.kern.ControlBlockSize(types.KindTask), stackDepth, caps)
	if !ok {
		l.createFailed(types.KindTask, "no_memory")
		return 0, types.ErrOutOfMemory
	}

	h := l.kern.CreateTaskStatic(fn, name, stackDepth, priority, core, p.storage, p.cb)
	if h.Nil() {
		l.rollback(p)
		l.createFailed(types.KindTask, "rejected")
		return 0, types.ErrKernelRejected
	}

	l.created(types.KindTask)
	l.log.Debug("task created",
		zap.Uint64("handle", uint64(h)),
		zap.String("task", name),
		zap.Int("stack_depth", stackDepth),
		zap.Int("priority", priority),
		zap.String("caps", caps.String()),
	)
	return h, nil
}
