package caps

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/logging"
	"github.com/GriffinCanCode/CapOS/internal/memory"
	"github.com/GriffinCanCode/CapOS/internal/monitoring"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// HaltFunc reports an unrecoverable invariant violation: the kernel contract
// this layer depends on has been broken, and continuing would risk freeing
// memory other code still references. The default halts the process.
type HaltFunc func(msg string, fields ...zap.Field)

// Lifecycle creates and destroys primitives backed by capability-tagged
// memory. All methods except DeleteTask are synchronous and must not be
// called from interrupt context.
type Lifecycle struct {
	kern    kernel.Kernel
	alloc   memory.Allocator
	log     *logging.Logger
	metrics *monitoring.Metrics
	halt    HaltFunc
}

// New creates a lifecycle layer over the given kernel and allocator.
func New(kern kernel.Kernel, alloc memory.Allocator, log *logging.Logger) *Lifecycle {
	l := &Lifecycle{
		kern:  kern,
		alloc: alloc,
		log:   log.Named("caps"),
	}
	l.halt = func(msg string, fields ...zap.Field) {
		l.log.Fatal(msg, fields...)
	}
	return l
}

// WithMetrics attaches a metrics collector.
func (l *Lifecycle) WithMetrics(m *monitoring.Metrics) *Lifecycle {
	l.metrics = m
	return l
}

// WithHalt replaces the invariant-violation handler. Tests use this to
// observe the fatal path; production code should leave the default.
func (l *Lifecycle) WithHalt(h HaltFunc) *Lifecycle {
	l.halt = h
	return l
}

// invariant reports a broken kernel contract. It only returns when the halt
// handler was replaced by a non-terminating one.
func (l *Lifecycle) invariant(msg string, fields ...zap.Field) {
	l.halt(msg, fields...)
}

func (l *Lifecycle) created(kind types.Kind) {
	if l.metrics != nil {
		l.metrics.RecordCreate(kind.String())
	}
}

func (l *Lifecycle) destroyed(kind types.Kind) {
	if l.metrics != nil {
		l.metrics.RecordDestroy(kind.String())
	}
}

func (l *Lifecycle) createFailed(kind types.Kind, reason string) {
	if l.metrics != nil {
		l.metrics.RecordCreateFailure(kind.String(), reason)
	}
}
