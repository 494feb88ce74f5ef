package memory

import (
	"sync"

	"github.com/GriffinCanCode/CapOS/internal/types"
)

// CountingAllocator wraps an Allocator with call counting and optional fault
// injection. Tests use it to verify the constructors' rollback contract:
// failure paths must leave zero net allocations behind.
type CountingAllocator struct {
	inner Allocator

	mu        sync.Mutex
	allocs    int
	frees     int
	live      int
	liveBytes int
	failAfter int // fail the Nth alloc (1-based); 0 disables
}

// NewCounting wraps inner with counting.
func NewCounting(inner Allocator) *CountingAllocator {
	return &CountingAllocator{inner: inner}
}

// FailOnAlloc arranges for the nth upcoming Alloc call (1-based) to fail.
func (c *CountingAllocator) FailOnAlloc(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAfter = n
	c.allocs = 0
}

// Alloc forwards to the inner allocator unless fault injection fires.
func (c *CountingAllocator) Alloc(size int, caps types.CapMask) *Block {
	if size <= 0 {
		return nil
	}

	c.mu.Lock()
	c.allocs++
	inject := c.failAfter > 0 && c.allocs == c.failAfter
	c.mu.Unlock()

	if inject {
		return nil
	}

	b := c.inner.Alloc(size, caps)
	if b != nil {
		c.mu.Lock()
		c.live++
		c.liveBytes += b.Len()
		c.mu.Unlock()
	}
	return b
}

// Free forwards to the inner allocator. Nil is a no-op.
func (c *CountingAllocator) Free(b *Block) {
	if b == nil {
		return
	}
	c.mu.Lock()
	c.frees++
	c.live--
	c.liveBytes -= b.Len()
	c.mu.Unlock()
	c.inner.Free(b)
}

// AllocCalls returns the number of Alloc calls observed (including injected
// failures and inner exhaustion).
func (c *CountingAllocator) AllocCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocs
}

// FreeCalls returns the number of non-nil Free calls observed.
func (c *CountingAllocator) FreeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frees
}

// Outstanding returns live allocations made through this wrapper.
func (c *CountingAllocator) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// OutstandingBytes returns live bytes allocated through this wrapper.
func (c *CountingAllocator) OutstandingBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveBytes
}
