package kernel

// Handles are opaque, comparable references to live primitives. The zero
// value means "no handle"; for tasks it additionally means "the caller
// itself" when passed to deletion.
type (
	TaskHandle         uint64
	QueueHandle        uint64
	SemaphoreHandle    uint64
	StreamBufferHandle uint64
	EventGroupHandle   uint64
)

// Nil reports whether the handle is the zero handle.
func (h TaskHandle) Nil() bool         { return h == 0 }
func (h QueueHandle) Nil() bool        { return h == 0 }
func (h SemaphoreHandle) Nil() bool    { return h == 0 }
func (h StreamBufferHandle) Nil() bool { return h == 0 }
func (h EventGroupHandle) Nil() bool   { return h == 0 }
