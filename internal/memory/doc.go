// Package memory provides the capability allocator surface consumed by the
// lifecycle layer, plus a region-backed implementation that tags each region
// with the capabilities it satisfies.
package memory
