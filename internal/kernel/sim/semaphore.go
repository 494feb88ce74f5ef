package sim

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/memory"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// semaphore covers all four variants over one control block shape. Binary
// and counting variants are token channels; the mutex variants add owner
// tracking, with recursion depth for the recursive mutex.
type semaphore struct {
	kind   types.SemKind
	cb     *memory.Block
	tokens chan struct{}
	closed chan struct{}

	mu    sync.Mutex
	owner kernel.TaskHandle
	depth int
}

// CreateSemaphoreStatic builds a semaphore over the supplied control block.
func (k *Kernel) CreateSemaphoreStatic(kind types.SemKind, maxCount, initialCount int, cb *memory.Block) kernel.SemaphoreHandle {
	if cb == nil || cb.Len() < semaphoreControlBlockSize {
		return 0
	}

	s := &semaphore{kind: kind, cb: cb, closed: make(chan struct{})}
	switch kind {
	case types.SemBinary:
		s.tokens = make(chan struct{}, 1)
	case types.SemCounting:
		if maxCount <= 0 || initialCount < 0 || initialCount > maxCount {
			return 0
		}
		s.tokens = make(chan struct{}, maxCount)
		for i := 0; i < initialCount; i++ {
			s.tokens <- struct{}{}
		}
	case types.SemMutex, types.SemRecursiveMutex:
		s.tokens = make(chan struct{}, 1)
		s.tokens <- struct{}{}
	default:
		return 0
	}

	k.mu.Lock()
	h := kernel.SemaphoreHandle(k.allocID())
	k.sems[h] = s
	k.mu.Unlock()
	return h
}

// SemaphoreStaticBuffer recovers the control block supplied at creation.
func (k *Kernel) SemaphoreStaticBuffer(h kernel.SemaphoreHandle) (cb *memory.Block, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s := k.sems[h]
	if s == nil {
		return nil, false
	}
	return s.cb, true
}

// DeleteSemaphore invalidates the handle and unblocks pending takers.
func (k *Kernel) DeleteSemaphore(h kernel.SemaphoreHandle) {
	k.mu.Lock()
	s := k.sems[h]
	delete(k.sems, h)
	k.mu.Unlock()
	if s != nil {
		close(s.closed)
	}
}

// SemaphoreTake acquires the semaphore, blocking up to timeout.
func (k *Kernel) SemaphoreTake(h kernel.SemaphoreHandle, timeout time.Duration) bool {
	k.mu.Lock()
	s := k.sems[h]
	k.mu.Unlock()
	if s == nil {
		return false
	}

	if s.kind == types.SemRecursiveMutex {
		cur := k.CurrentTask()
		s.mu.Lock()
		if !cur.Nil() && s.owner == cur {
			s.depth++
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.tokens:
		if s.kind == types.SemMutex || s.kind == types.SemRecursiveMutex {
			s.mu.Lock()
			s.owner = k.CurrentTask()
			s.depth = 1
			s.mu.Unlock()
		}
		return true
	case <-s.closed:
		return false
	case <-timer.C:
		return false
	}
}

// SemaphoreGive releases the semaphore. Giving a mutex from a context that
// does not hold it, or overflowing a counting semaphore, fails.
func (k *Kernel) SemaphoreGive(h kernel.SemaphoreHandle) bool {
	k.mu.Lock()
	s := k.sems[h]
	k.mu.Unlock()
	if s == nil {
		return false
	}

	if s.kind == types.SemMutex || s.kind == types.SemRecursiveMutex {
		cur := k.CurrentTask()
		s.mu.Lock()
		if s.owner != cur || s.depth == 0 {
			s.mu.Unlock()
			return false
		}
		s.depth--
		if s.depth > 0 {
			s.mu.Unlock()
			return true
		}
		s.owner = 0
		s.mu.Unlock()
	}

	select {
	case s.tokens <- struct{}{}:
		return true
	case <-s.closed:
		return false
	default:
		return false
	}
}

// SemaphoreCount returns the number of available tokens.
func (k *Kernel) SemaphoreCount(h kernel.SemaphoreHandle) int {
	k.mu.Lock()
	s := k.sems[h]
	k.mu.Unlock()
	if s == nil {
		return 0
	}
	return len(s.tokens)
}
