package sim

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/memory"
)

const msgLenBytes = 4

// streamBuffer is a byte ring over the supplied storage. Message buffers run
// the same ring with a length-prefix framing, sharing the handle space, as
// in the underlying kernel.
type streamBuffer struct {
	size    int
	trigger int
	isMsg   bool
	storage *memory.Block
	cb      *memory.Block

	mu     sync.Mutex
	head   int
	count  int
	sig    chan struct{} // replaced on every state change; closing broadcasts
	closed bool
}

// CreateStreamBufferStatic builds a stream or message buffer over the
// supplied buffers.
func (k *Kernel) CreateStreamBufferStatic(size, triggerLevel int, isMessageBuffer bool, storage, cb *memory.Block) kernel.StreamBufferHandle {
	if size <= 0 || triggerLevel < 0 || triggerLevel > size {
		return 0
	}
	if storage == nil || storage.Len() < size {
		return 0
	}
	if cb == nil || cb.Len() < streamControlBlockSize {
		return 0
	}
	if triggerLevel == 0 {
		triggerLevel = 1
	}

	b := &streamBuffer{
		size:    size,
		trigger: triggerLevel,
		isMsg:   isMessageBuffer,
		storage: storage,
		cb:      cb,
		sig:     make(chan struct{}),
	}

	k.mu.Lock()
	h := kernel.StreamBufferHandle(k.allocID())
	k.streams[h] = b
	k.mu.Unlock()
	return h
}

// StreamBufferStaticBuffers recovers the buffers supplied at creation.
func (k *Kernel) StreamBufferStaticBuffers(h kernel.StreamBufferHandle) (storage, cb *memory.Block, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	b := k.streams[h]
	if b == nil {
		return nil, nil, false
	}
	return b.storage, b.cb, true
}

// DeleteStreamBuffer invalidates the handle and unblocks pending operations.
func (k *Kernel) DeleteStreamBuffer(h kernel.StreamBufferHandle) {
	k.mu.Lock()
	b := k.streams[h]
	delete(k.streams, h)
	k.mu.Unlock()
	if b == nil {
		return
	}
	b.mu.Lock()
	b.closed = true
	b.bcast()
	b.mu.Unlock()
}

// bcast wakes every waiter. Caller holds b.mu.
func (b *streamBuffer) bcast() {
	close(b.sig)
	b.sig = make(chan struct{})
}

// await releases b.mu until the buffer state changes or the deadline passes.
// Returns false on timeout or closure. Caller holds b.mu before and after.
func (b *streamBuffer) await(deadline time.Time) bool {
	sig := b.sig
	b.mu.Unlock()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-sig:
		b.mu.Lock()
		return !b.closed
	case <-timer.C:
		b.mu.Lock()
		return false
	}
}

func (b *streamBuffer) put(p []byte) {
	for _, c := range p {
		b.storage.Bytes()[(b.head+b.count)%b.size] = c
		b.count++
	}
}

func (b *streamBuffer) get(p []byte) {
	for i := range p {
		p[i] = b.storage.Bytes()[b.head]
		b.head = (b.head + 1) % b.size
		b.count--
	}
}

// StreamBufferSend writes p, blocking up to timeout for free space. Stream
// writes are all-or-nothing here; message writes add a length prefix and
// reject payloads that can never fit.
func (k *Kernel) StreamBufferSend(h kernel.StreamBufferHandle, p []byte, timeout time.Duration) bool {
	k.mu.Lock()
	b := k.streams[h]
	k.mu.Unlock()
	if b == nil {
		return false
	}

	need := len(p)
	if b.isMsg {
		need += msgLenBytes
	}
	if need > b.size || len(p) == 0 {
		return false
	}

	deadline := time.Now().Add(timeout)
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.size-b.count < need {
		if b.closed || !b.await(deadline) {
			return false
		}
	}

	if b.isMsg {
		var hdr [msgLenBytes]byte
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(p)))
		b.put(hdr[:])
	}
	b.put(p)
	b.bcast()
	return true
}

// StreamBufferReceive reads into buf, blocking up to timeout until the
// trigger level is reached (streams) or a whole message is present (message
// buffers). Returns the number of bytes read.
func (k *Kernel) StreamBufferReceive(h kernel.StreamBufferHandle, buf []byte, timeout time.Duration) int {
	k.mu.Lock()
	b := k.streams[h]
	k.mu.Unlock()
	if b == nil || len(buf) == 0 {
		return 0
	}

	deadline := time.Now().Add(timeout)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isMsg {
		for b.count < msgLenBytes {
			if b.closed || !b.await(deadline) {
				return 0
			}
		}
		var hdr [msgLenBytes]byte
		b.get(hdr[:])
		n := int(binary.LittleEndian.Uint32(hdr[:]))
		if n > len(buf) {
			// Undersized reader buffer drops the message, as the framed
			// ring has no way to put the header back for a retry.
			skip := make([]byte, n)
			b.get(skip)
			b.bcast()
			return 0
		}
		b.get(buf[:n])
		b.bcast()
		return n
	}

	for b.count < b.trigger {
		if b.closed || !b.await(deadline) {
			break
		}
	}
	n := b.count
	if n == 0 {
		return 0
	}
	if n > len(buf) {
		n = len(buf)
	}
	b.get(buf[:n])
	b.bcast()
	return n
}

// StreamBufferBytesAvailable returns the bytes currently buffered.
func (k *Kernel) StreamBufferBytesAvailable(h kernel.StreamBufferHandle) int {
	k.mu.Lock()
	b := k.streams[h]
	k.mu.Unlock()
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
