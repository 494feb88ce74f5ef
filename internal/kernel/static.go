package kernel

import (
	"github.com/GriffinCanCode/CapOS/internal/memory"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// The static creation surfaces mirror the kernel's create-from-supplied-
// buffers constructors. Each constructor takes a control block sized per
// ControlBlockSize plus a kind-specific backing store, returns the zero
// handle on rejection, and never allocates. The introspection accessors
// return exactly the blocks supplied at creation; for a live handle they
// must succeed, and the lifecycle layer treats their failure as a broken
// kernel contract.

// Tasks is the static task surface.
type Tasks interface {
	// CreateTaskStatic builds a task over the supplied stack and control
	// block, pinned to core (NoAffinity for unpinned), initially ready.
	CreateTaskStatic(fn TaskFunc, name string, stackDepth int, priority int, core types.CoreID, stack, cb *memory.Block) TaskHandle

	// TaskStaticBuffers recovers the buffers supplied at creation.
	TaskStaticBuffers(h TaskHandle) (stack, cb *memory.Block, ok bool)
}

// Queues is the static queue surface.
type Queues interface {
	// CreateQueueStatic builds a queue of length items of itemSize bytes
	// over the supplied storage. Storage is nil iff itemSize is zero.
	CreateQueueStatic(length, itemSize int, storage, cb *memory.Block) QueueHandle

	QueueStaticBuffers(h QueueHandle) (storage, cb *memory.Block, ok bool)

	DeleteQueue(h QueueHandle)
}

// Semaphores is the static semaphore surface. All variants share one control
// block shape and carry no backing store.
type Semaphores interface {
	CreateSemaphoreStatic(kind types.SemKind, maxCount, initialCount int, cb *memory.Block) SemaphoreHandle

	SemaphoreStaticBuffer(h SemaphoreHandle) (cb *memory.Block, ok bool)

	DeleteSemaphore(h SemaphoreHandle)
}

// StreamBuffers is the static stream/message buffer surface. Message buffers
// share the stream buffer handle space, distinguished by a flag, as in the
// underlying kernel.
type StreamBuffers interface {
	CreateStreamBufferStatic(size, triggerLevel int, isMessageBuffer bool, storage, cb *memory.Block) StreamBufferHandle

	StreamBufferStaticBuffers(h StreamBufferHandle) (storage, cb *memory.Block, ok bool)

	DeleteStreamBuffer(h StreamBufferHandle)
}

// EventGroups is the static event group surface. Event groups carry no
// backing store.
type EventGroups interface {
	CreateEventGroupStatic(cb *memory.Block) EventGroupHandle

	EventGroupStaticBuffer(h EventGroupHandle) (cb *memory.Block, ok bool)

	DeleteEventGroup(h EventGroupHandle)
}

// Kernel is the full collaborator surface the lifecycle layer is built on.
type Kernel interface {
	Scheduler
	Tasks
	Queues
	Semaphores
	StreamBuffers
	EventGroups

	// ControlBlockSize reports the control block size the static
	// constructors require for a kind, the moral equivalent of
	// sizeof(StaticX_t) in a C kernel's static API.
	ControlBlockSize(kind types.Kind) int
}
