package memory

import "github.com/GriffinCanCode/CapOS/internal/types"

// Block is a single allocation returned by an Allocator. It is opaque to the
// lifecycle layer: the layer hands blocks to the static primitive layer and
// back to Free, nothing else.
type Block struct {
	data   []byte
	caps   types.CapMask
	region string
	freed  bool
}

// Bytes returns the allocation's backing bytes.
func (b *Block) Bytes() []byte { return b.data }

// Len returns the allocation size in bytes.
func (b *Block) Len() int { return len(b.data) }

// Caps returns the capability mask the allocation was requested with.
func (b *Block) Caps() types.CapMask { return b.caps }

// Region returns the name of the region the allocation was drawn from.
func (b *Block) Region() string { return b.region }

// Allocator is the capability allocator surface: a buffer satisfying the mask,
// or nil on exhaustion. Free accepts nil as a no-op, matching the original
// free(NULL) contract the rollback paths rely on.
type Allocator interface {
	Alloc(size int, caps types.CapMask) *Block
	Free(b *Block)
}

// Stats reports allocation accounting, used by leak checks and the inspector.
type Stats interface {
	Outstanding() int
	OutstandingBytes() int
}
