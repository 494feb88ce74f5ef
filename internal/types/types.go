package types

import (
	"errors"
	"strings"
)

// CapMask selects which memory regions an allocation may be satisfied from.
//
// The lifecycle layer never interprets the bits; it forwards the mask verbatim
// to the allocator. Only allocator implementations give the bits meaning.
type CapMask uint32

const (
	// CapInternal requests internal (on-chip) memory.
	CapInternal CapMask = 1 << iota
	// CapDMA requests DMA-capable memory.
	CapDMA
	// CapExec requests executable memory.
	CapExec
	// CapSPIRAM requests external SPI RAM.
	CapSPIRAM
)

// CapDefault is the mask used when the caller expresses no preference.
const CapDefault = CapInternal

func (m CapMask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		bit  CapMask
		name string
	}{
		{CapInternal, "internal"},
		{CapDMA, "dma"},
		{CapExec, "exec"},
		{CapSPIRAM, "spiram"},
	} {
		if m&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Kind identifies a primitive shape managed by the lifecycle layer.
type Kind uint8

const (
	KindTask Kind = iota
	KindQueue
	KindSemaphore
	KindStreamBuffer
	KindMessageBuffer
	KindEventGroup
)

func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindQueue:
		return "queue"
	case KindSemaphore:
		return "semaphore"
	case KindStreamBuffer:
		return "stream_buffer"
	case KindMessageBuffer:
		return "message_buffer"
	case KindEventGroup:
		return "event_group"
	default:
		return "unknown"
	}
}

// SemKind selects the semaphore variant created over the shared control block.
type SemKind uint8

const (
	SemBinary SemKind = iota
	SemCounting
	SemMutex
	SemRecursiveMutex
)

func (s SemKind) String() string {
	switch s {
	case SemBinary:
		return "binary"
	case SemCounting:
		return "counting"
	case SemMutex:
		return "mutex"
	case SemRecursiveMutex:
		return "recursive_mutex"
	default:
		return "unknown"
	}
}

// RunState is a task's scheduling state as reported by the scheduler.
type RunState uint8

const (
	StateInvalid RunState = iota
	StateRunning
	StateReady
	StateBlocked
	StateSuspended
	StateDeleted
)

func (s RunState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	case StateBlocked:
		return "blocked"
	case StateSuspended:
		return "suspended"
	case StateDeleted:
		return "deleted"
	default:
		return "invalid"
	}
}

// CoreID identifies a processing core.
type CoreID int

// NoAffinity marks a task as runnable on any core.
const NoAffinity CoreID = -1

var (
	// ErrOutOfMemory reports that the capability allocator could not satisfy
	// one of the required buffers. The constructor has already rolled back.
	ErrOutOfMemory = errors.New("capability allocation failed")

	// ErrKernelRejected reports that the static constructor refused valid
	// buffers. The constructor has already rolled back.
	ErrKernelRejected = errors.New("static constructor rejected buffers")

	// ErrInvalidArgument reports sizing parameters the primitive cannot use.
	ErrInvalidArgument = errors.New("invalid argument")
)
