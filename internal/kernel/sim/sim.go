// Package sim is an in-process kernel used by tests and the demo binary. It
// implements the full kernel.Kernel surface: goroutine-backed tasks with
// cooperative suspension, and queues, semaphores, stream/message buffers and
// event groups built over caller-supplied buffers.
//
// Preemption is cooperative: a task is only observed to leave the running
// state at its yield points, which is exactly the property the deletion
// protocol's spin-wait relies on.
package sim

import (
	"sync"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/logging"
	"github.com/GriffinCanCode/CapOS/internal/monitoring"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// Control block sizes the static constructors require, standing in for
// sizeof(StaticX_t) in a C kernel. Semaphores reuse the queue control block,
// as the underlying kernel does.
const (
	taskControlBlockSize       = 192
	queueControlBlockSize      = 80
	semaphoreControlBlockSize  = queueControlBlockSize
	streamControlBlockSize     = 56
	eventGroupControlBlockSize = 24
)

// Kernel is the simulated kernel.
type Kernel struct {
	mu         sync.Mutex
	cores      int
	nextID     uint64
	inISR      bool
	failSpawns bool

	tasks   map[kernel.TaskHandle]*task
	queues  map[kernel.QueueHandle]*queue
	sems    map[kernel.SemaphoreHandle]*semaphore
	streams map[kernel.StreamBufferHandle]*streamBuffer
	groups  map[kernel.EventGroupHandle]*eventGroup

	byGoroutine map[int64]*task

	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a simulated kernel with the given core count.
func New(cores int, log *logging.Logger) *Kernel {
	if cores < 1 {
		cores = 1
	}
	return &Kernel{
		cores:       cores,
		tasks:       make(map[kernel.TaskHandle]*task),
		queues:      make(map[kernel.QueueHandle]*queue),
		sems:        make(map[kernel.SemaphoreHandle]*semaphore),
		streams:     make(map[kernel.StreamBufferHandle]*streamBuffer),
		groups:      make(map[kernel.EventGroupHandle]*eventGroup),
		byGoroutine: make(map[int64]*task),
		log:         log.Named("sim"),
	}
}

// WithMetrics attaches a metrics collector.
func (k *Kernel) WithMetrics(m *monitoring.Metrics) *Kernel {
	k.metrics = m
	return k
}

// NumCores returns the configured core count.
func (k *Kernel) NumCores() int { return k.cores }

// InInterrupt reports whether the caller is in interrupt context.
func (k *Kernel) InInterrupt() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.inISR
}

// SetInterruptContext flags every caller as being in interrupt context.
// Test hook; the sim has no real interrupts.
func (k *Kernel) SetInterruptContext(in bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.inISR = in
}

// SetSpawnFailure makes SpawnTask fail while set. Test hook for the
// reaper-creation failure path.
func (k *Kernel) SetSpawnFailure(fail bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.failSpawns = fail
}

// ControlBlockSize reports the control block size required per kind.
func (k *Kernel) ControlBlockSize(kind types.Kind) int {
	switch kind {
	case types.KindTask:
		return taskControlBlockSize
	case types.KindQueue:
		return queueControlBlockSize
	case types.KindSemaphore:
		return semaphoreControlBlockSize
	case types.KindStreamBuffer, types.KindMessageBuffer:
		return streamControlBlockSize
	case types.KindEventGroup:
		return eventGroupControlBlockSize
	default:
		return 0
	}
}

// allocID hands out the next handle id. Caller holds k.mu.
func (k *Kernel) allocID() uint64 {
	k.nextID++
	return k.nextID
}
