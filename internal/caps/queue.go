package caps

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// CreateQueue creates a queue of length items of itemSize bytes, with both
// buffers drawn from memory satisfying the capability mask. An itemSize of
// zero is valid and produces a queue with no backing store.
func (l *Lifecycle) CreateQueue(length, itemSize int, caps types.CapMask) (kernel.QueueHandle, error) {
	if length <= 0 || itemSize < 0 {
		return 0, types.ErrInvalidArgument
	}

	p, ok := l.allocPair(l.kern.ControlBlockSize(types.KindQueue), length*itemSize, caps)
	if !ok {
		l.createFailed(types.KindQueue, "no_memory")
		return 0, types.ErrOutOfMemory
	}

	h := l.kern.CreateQueueStatic(length, itemSize, p.storage, p.cb)
	if h.Nil() {
		l.rollback(p)
		l.createFailed(types.KindQueue, "rejected")
		return 0, types.ErrKernelRejected
	}

	l.created(types.KindQueue)
	l.log.Debug("queue created",
		zap.Uint64("handle", uint64(h)),
		zap.Int("length", length),
		zap.Int("item_size", itemSize),
		zap.String("caps", caps.String()),
	)
	return h, nil
}

// DeleteQueue destroys a queue created by CreateQueue and frees its buffers.
// The buffers are recovered before the static delete, which may invalidate
// the handle, and freed after it, so the kernel never touches freed memory.
func (l *Lifecycle) DeleteQueue(h kernel.QueueHandle) {
	storage, cb, ok := l.kern.QueueStaticBuffers(h)
	if !ok || cb == nil {
		l.invariant("queue introspection failed for a live handle",
			zap.Uint64("handle", uint64(h)),
		)
		return
	}

	l.kern.DeleteQueue(h)

	l.alloc.Free(cb)
	l.alloc.Free(storage)
	l.destroyed(types.KindQueue)
}
