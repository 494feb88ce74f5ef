// Package caps is the capability-aware lifecycle layer: it constructs kernel
// primitives whose control block and backing store are drawn from
// caller-selected capability-tagged memory, and tears them down again,
// including tasks that delete themselves or are still running on another
// core.
//
// The kernel's own deferred cleanup only reclaims memory it allocated
// itself; buffers allocated here are invisible to it, so every primitive
// created by this package must also be destroyed by it.
package caps
