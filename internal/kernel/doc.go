// Package kernel defines the external collaborator surfaces the capability
// lifecycle layer is built on: the scheduler, and the per-kind static
// creation/deletion/introspection APIs that accept caller-supplied buffers
// and never allocate on their own.
//
// Implementations adapt a concrete kernel behind these interfaces; the sim
// subpackage provides an in-process one.
package kernel
