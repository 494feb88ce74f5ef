package caps

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// CreateEventGroup creates an event group with its control block drawn from
// memory satisfying the capability mask. Event groups carry no backing
// store.
func (l *Lifecycle) CreateEventGroup(caps types.CapMask) (kernel.EventGroupHandle, error) {
	p, ok := l.allocPair(l.kern.ControlBlockSize(types.KindEventGroup), 0, caps)
	if !ok {
		l.createFailed(types.KindEventGroup, "no_memory")
		return 0, types.ErrOutOfMemory
	}

	h := l.kern.CreateEventGroupStatic(p.cb)
	if h.Nil() {
		l.rollback(p)
		l.createFailed(types.KindEventGroup, "rejected")
		return 0, types.ErrKernelRejected
	}

	l.created(types.KindEventGroup)
	l.log.Debug("event group created",
		zap.Uint64("handle", uint64(h)),
		zap.String("caps", caps.String()),
	)
	return h, nil
}

// DeleteEventGroup destroys an event group created here and frees its
// control block.
func (l *Lifecycle) DeleteEventGroup(h kernel.EventGroupHandle) {
	cb, ok := l.kern.EventGroupStaticBuffer(h)
	if !ok || cb == nil {
		l.invariant("event group introspection failed for a live handle",
			zap.Uint64("handle", uint64(h)),
		)
		return
	}

	l.kern.DeleteEventGroup(h)

	l.alloc.Free(cb)
	l.destroyed(types.KindEventGroup)
}
