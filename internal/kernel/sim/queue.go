package sim

import (
	"time"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/memory"
)

// queue is an item ring over the supplied storage block. Zero-item-size
// queues carry tokens only and have no storage, the degenerate form the
// capability layer creates with a nil backing store.
type queue struct {
	length   int
	itemSize int
	storage  *memory.Block
	cb       *memory.Block

	// free slot indices and filled slot indices; buffered to length
	slots chan int
	items chan int

	closed chan struct{}
}

// CreateQueueStatic builds a queue over the supplied buffers. Storage must be
// nil exactly when itemSize is zero.
func (k *Kernel) CreateQueueStatic(length, itemSize int, storage, cb *memory.Block) kernel.QueueHandle {
	if length <= 0 || itemSize < 0 {
		return 0
	}
	if cb == nil || cb.Len() < queueControlBlockSize {
		return 0
	}
	if itemSize == 0 {
		if storage != nil {
			return 0
		}
	} else {
		if storage == nil || storage.Len() < length*itemSize {
			return 0
		}
	}

	q := &queue{
		length:   length,
		itemSize: itemSize,
		storage:  storage,
		cb:       cb,
		slots:    make(chan int, length),
		items:    make(chan int, length),
		closed:   make(chan struct{}),
	}
	for i := 0; i < length; i++ {
		q.slots <- i
	}

	k.mu.Lock()
	h := kernel.QueueHandle(k.allocID())
	k.queues[h] = q
	k.mu.Unlock()
	return h
}

// QueueStaticBuffers recovers the buffers supplied at creation.
func (k *Kernel) QueueStaticBuffers(h kernel.QueueHandle) (storage, cb *memory.Block, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	q := k.queues[h]
	if q == nil {
		return nil, nil, false
	}
	return q.storage, q.cb, true
}

// DeleteQueue invalidates the handle and unblocks pending operations. The
// supplied buffers stay untouched.
func (k *Kernel) DeleteQueue(h kernel.QueueHandle) {
	k.mu.Lock()
	q := k.queues[h]
	delete(k.queues, h)
	k.mu.Unlock()
	if q != nil {
		close(q.closed)
	}
}

// QueueSend copies an item into the queue, blocking up to timeout for space.
// For zero-item-size queues the payload is ignored and a token is enqueued.
func (k *Kernel) QueueSend(h kernel.QueueHandle, item []byte, timeout time.Duration) bool {
	k.mu.Lock()
	q := k.queues[h]
	k.mu.Unlock()
	if q == nil || (q.itemSize > 0 && len(item) != q.itemSize) {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case slot := <-q.slots:
		if q.itemSize > 0 {
			copy(q.storage.Bytes()[slot*q.itemSize:], item)
		}
		q.items <- slot
		return true
	case <-q.closed:
		return false
	case <-timer.C:
		return false
	}
}

// QueueReceive copies the oldest item into buf, blocking up to timeout.
func (k *Kernel) QueueReceive(h kernel.QueueHandle, buf []byte, timeout time.Duration) bool {
	k.mu.Lock()
	q := k.queues[h]
	k.mu.Unlock()
	if q == nil || (q.itemSize > 0 && len(buf) < q.itemSize) {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case slot := <-q.items:
		if q.itemSize > 0 {
			copy(buf, q.storage.Bytes()[slot*q.itemSize:(slot+1)*q.itemSize])
		}
		q.slots <- slot
		return true
	case <-q.closed:
		return false
	case <-timer.C:
		return false
	}
}

// QueueDepth returns the number of items currently queued.
func (k *Kernel) QueueDepth(h kernel.QueueHandle) int {
	k.mu.Lock()
	q := k.queues[h]
	k.mu.Unlock()
	if q == nil {
		return 0
	}
	return len(q.items)
}
