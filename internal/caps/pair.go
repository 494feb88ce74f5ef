package caps

import (
	"github.com/GriffinCanCode/CapOS/internal/memory"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// pair holds a primitive's two buffers as one unit until the static
// constructor commits them. A half-allocated state is never visible outside
// this file: allocPair either returns both required buffers or nothing, and
// rollback releases whatever exists.
type pair struct {
	cb      *memory.Block
	storage *memory.Block
}

// allocPair allocates the control block first, then the backing store. A
// storageSize of zero is the degenerate no-payload form: the storage stays
// nil and is treated as absent, not failed.
func (l *Lifecycle) allocPair(cbSize, storageSize int, caps types.CapMask) (pair, bool) {
	p := pair{cb: l.alloc.Alloc(cbSize, caps)}
	if storageSize > 0 {
		p.storage = l.alloc.Alloc(storageSize, caps)
	}

	if p.cb == nil || (storageSize > 0 && p.storage == nil) {
		l.rollback(p)
		return pair{}, false
	}
	return p, true
}

// rollback frees whichever buffers the pair holds, storage first to mirror
// the allocation order's symmetry. Free of a nil block is a no-op.
func (l *Lifecycle) rollback(p pair) {
	l.alloc.Free(p.storage)
	l.alloc.Free(p.cb)
}
