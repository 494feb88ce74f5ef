package sim

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/memory"
)

// EventBits is an event group's flag word. The top byte is reserved, leaving
// 24 usable bits, matching the underlying kernel's layout.
type EventBits uint32

// EventBitsMask covers the usable flag bits.
const EventBitsMask EventBits = 0x00FFFFFF

// eventGroup keeps its flag word in the supplied control block, so the
// control block is genuinely the primitive's state.
type eventGroup struct {
	cb *memory.Block

	mu     sync.Mutex
	sig    chan struct{}
	closed bool
}

func (g *eventGroup) bits() EventBits {
	return EventBits(binary.LittleEndian.Uint32(g.cb.Bytes()[:4]))
}

func (g *eventGroup) setBits(b EventBits) {
	binary.LittleEndian.PutUint32(g.cb.Bytes()[:4], uint32(b))
}

// CreateEventGroupStatic builds an event group over the supplied control
// block.
func (k *Kernel) CreateEventGroupStatic(cb *memory.Block) kernel.EventGroupHandle {
	if cb == nil || cb.Len() < eventGroupControlBlockSize {
		return 0
	}

	g := &eventGroup{cb: cb, sig: make(chan struct{})}
	g.setBits(0)

	k.mu.Lock()
	h := kernel.EventGroupHandle(k.allocID())
	k.groups[h] = g
	k.mu.Unlock()
	return h
}

// EventGroupStaticBuffer recovers the control block supplied at creation.
func (k *Kernel) EventGroupStaticBuffer(h kernel.EventGroupHandle) (cb *memory.Block, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	g := k.groups[h]
	if g == nil {
		return nil, false
	}
	return g.cb, true
}

// DeleteEventGroup invalidates the handle and unblocks pending waiters.
func (k *Kernel) DeleteEventGroup(h kernel.EventGroupHandle) {
	k.mu.Lock()
	g := k.groups[h]
	delete(k.groups, h)
	k.mu.Unlock()
	if g == nil {
		return
	}
	g.mu.Lock()
	g.closed = true
	close(g.sig)
	g.sig = make(chan struct{})
	g.mu.Unlock()
}

// EventGroupSet sets bits and wakes waiters. Returns the resulting flag word.
func (k *Kernel) EventGroupSet(h kernel.EventGroupHandle, bits EventBits) EventBits {
	k.mu.Lock()
	g := k.groups[h]
	k.mu.Unlock()
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setBits(g.bits() | (bits & EventBitsMask))
	close(g.sig)
	g.sig = make(chan struct{})
	return g.bits()
}

// EventGroupClear clears bits. Returns the flag word before clearing.
func (k *Kernel) EventGroupClear(h kernel.EventGroupHandle, bits EventBits) EventBits {
	k.mu.Lock()
	g := k.groups[h]
	k.mu.Unlock()
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	before := g.bits()
	g.setBits(before &^ bits)
	return before
}

// EventGroupWait blocks until the requested bits are set (any or all),
// optionally clearing them on exit. Returns the flag word at satisfaction,
// or the current word on timeout.
func (k *Kernel) EventGroupWait(h kernel.EventGroupHandle, bits EventBits, waitAll, clearOnExit bool, timeout time.Duration) EventBits {
	k.mu.Lock()
	g := k.groups[h]
	k.mu.Unlock()
	if g == nil || bits&EventBitsMask == 0 {
		return 0
	}
	bits &= EventBitsMask

	deadline := time.Now().Add(timeout)
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		cur := g.bits()
		satisfied := cur&bits != 0
		if waitAll {
			satisfied = cur&bits == bits
		}
		if satisfied {
			if clearOnExit {
				g.setBits(cur &^ bits)
			}
			return cur
		}
		if g.closed {
			return cur
		}

		sig := g.sig
		g.mu.Unlock()
		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-sig:
			timer.Stop()
			g.mu.Lock()
		case <-timer.C:
			g.mu.Lock()
			return g.bits()
		}
	}
}
