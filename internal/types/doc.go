// Package types defines the shared vocabulary of the capability lifecycle
// layer: memory capability masks, primitive kinds, task run states, and the
// sentinel errors returned by constructors.
package types
