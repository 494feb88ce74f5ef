package caps

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// CreateStreamBuffer creates a stream buffer of size bytes with the given
// trigger level, both buffers drawn from memory satisfying the mask.
func (l *Lifecycle) CreateStreamBuffer(size, triggerLevel int, caps types.CapMask) (kernel.StreamBufferHandle, error) {
	return l.createStream(size, triggerLevel, false, caps)
}

// CreateMessageBuffer creates a message buffer of size bytes. Message
// buffers share the stream buffer machinery, distinguished only by framing.
func (l *Lifecycle) CreateMessageBuffer(size int, caps types.CapMask) (kernel.StreamBufferHandle, error) {
	return l.createStream(size, 0, true, caps)
}

func (l *Lifecycle) createStream(size, triggerLevel int, isMessageBuffer bool, caps types.CapMask) (kernel.StreamBufferHandle, error) {
	kind := types.KindStreamBuffer
	if isMessageBuffer {
		kind = types.KindMessageBuffer
	}
	if size <= 0 {
		return 0, types.ErrInvalidArgument
	}

	p, ok := l.allocPair(l.kern.ControlBlockSize(kind), size, caps)
	if !ok {
		l.createFailed(kind, "no_memory")
		return 0, types.ErrOutOfMemory
	}

	h := l.kern.CreateStreamBufferStatic(size, triggerLevel, isMessageBuffer, p.storage, p.cb)
	if h.Nil() {
		l.rollback(p)
		l.createFailed(kind, "rejected")
		return 0, types.ErrKernelRejected
	}

	l.created(kind)
	l.log.Debug("stream buffer created",
		zap.Uint64("handle", uint64(h)),
		zap.Int("size", size),
		zap.Bool("message_buffer", isMessageBuffer),
		zap.String("caps", caps.String()),
	)
	return h, nil
}

// DeleteStreamBuffer destroys a stream buffer created here and frees its
// buffers.
func (l *Lifecycle) DeleteStreamBuffer(h kernel.StreamBufferHandle) {
	l.deleteStream(h, types.KindStreamBuffer)
}

// DeleteMessageBuffer destroys a message buffer created here and frees its
// buffers.
func (l *Lifecycle) DeleteMessageBuffer(h kernel.StreamBufferHandle) {
	l.deleteStream(h, types.KindMessageBuffer)
}

func (l *Lifecycle) deleteStream(h kernel.StreamBufferHandle, kind types.Kind) {
	storage, cb, ok := l.kern.StreamBufferStaticBuffers(h)
	if !ok || cb == nil || storage == nil {
		l.invariant("stream buffer introspection failed for a live handle",
			zap.Uint64("handle", uint64(h)),
		)
		return
	}

	l.kern.DeleteStreamBuffer(h)

	l.alloc.Free(cb)
	l.alloc.Free(storage)
	l.destroyed(kind)
}
