package caps

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// CreateSemaphore creates a semaphore of the given kind with its control
// block drawn from memory satisfying the capability mask. Semaphores carry
// no backing store. maxCount and initialCount only apply to counting
// semaphores.
func (l *Lifecycle) CreateSemaphore(kind types.SemKind, maxCount, initialCount int, caps types.CapMask) (kernel.SemaphoreHandle, error) {
	if kind == types.SemCounting && (maxCount <= 0 || initialCount < 0 || initialCount > maxCount) {
		return 0, types.ErrInvalidArgument
	}

	p, ok := l.allocPair(l.kern.ControlBlockSize(types.KindSemaphore), 0, caps)
	if !ok {
		l.createFailed(types.KindSemaphore, "no_memory")
		return 0, types.ErrOutOfMemory
	}

	h := l.kern.CreateSemaphoreStatic(kind, maxCount, initialCount, p.cb)
	if h.Nil() {
		l.rollback(p)
		l.createFailed(types.KindSemaphore, "rejected")
		return 0, types.ErrKernelRejected
	}

	l.created(types.KindSemaphore)
	l.log.Debug("semaphore created",
		zap.Uint64("handle", uint64(h)),
		zap.String("kind", kind.String()),
		zap.String("caps", caps.String()),
	)
	return h, nil
}

// CreateBinarySemaphore creates a binary semaphore, initially empty.
func (l *Lifecycle) CreateBinarySemaphore(caps types.CapMask) (kernel.SemaphoreHandle, error) {
	return l.CreateSemaphore(types.SemBinary, 0, 0, caps)
}

// CreateCountingSemaphore creates a counting semaphore.
func (l *Lifecycle) CreateCountingSemaphore(maxCount, initialCount int, caps types.CapMask) (kernel.SemaphoreHandle, error) {
	return l.CreateSemaphore(types.SemCounting, maxCount, initialCount, caps)
}

// CreateMutex creates a mutex, initially available.
func (l *Lifecycle) CreateMutex(caps types.CapMask) (kernel.SemaphoreHandle, error) {
	return l.CreateSemaphore(types.SemMutex, 0, 0, caps)
}

// CreateRecursiveMutex creates a recursive mutex, initially available.
func (l *Lifecycle) CreateRecursiveMutex(caps types.CapMask) (kernel.SemaphoreHandle, error) {
	return l.CreateSemaphore(types.SemRecursiveMutex, 0, 0, caps)
}

// DeleteSemaphore destroys a semaphore created here and frees its control
// block.
func (l *Lifecycle) DeleteSemaphore(h kernel.SemaphoreHandle) {
	cb, ok := l.kern.SemaphoreStaticBuffer(h)
	if !ok || cb == nil {
		l.invariant("semaphore introspection failed for a live handle",
			zap.Uint64("handle", uint64(h)),
		)
		return
	}

	l.kern.DeleteSemaphore(h)

	l.alloc.Free(cb)
	l.destroyed(types.KindSemaphore)
}
