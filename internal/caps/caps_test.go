package caps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/kernel/sim"
	"github.com/GriffinCanCode/CapOS/internal/logging"
	"github.com/GriffinCanCode/CapOS/internal/memory"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

type env struct {
	kern  *sim.Kernel
	alloc *memory.CountingAllocator
	lc    *Lifecycle
	halts chan string
}

func newEnv(t *testing.T, cores int) *env {
	t.Helper()
	return newEnvKernel(t, sim.New(cores, logging.NewNop()), nil)
}

// newEnvKernel builds a lifecycle over the given kernel, optionally wrapped.
func newEnvKernel(t *testing.T, simKern *sim.Kernel, wrap func(kernel.Kernel) kernel.Kernel) *env {
	t.Helper()
	heap := memory.NewRegionHeap([]memory.Region{
		{Name: "dram", Capacity: 1 << 20, Caps: types.CapInternal | types.CapDMA},
	}, logging.NewNop())
	alloc := memory.NewCounting(heap)

	var kern kernel.Kernel = simKern
	if wrap != nil {
		kern = wrap(simKern)
	}

	e := &env{
		kern:  simKern,
		alloc: alloc,
		halts: make(chan string, 8),
	}
	e.lc = New(kern, alloc, logging.NewNop()).WithHalt(func(msg string, fields ...zap.Field) {
		e.halts <- msg
	})
	return e
}

func (e *env) haltMessage(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-e.halts:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("expected an invariant violation, none reported")
		return ""
	}
}

func TestCreateQueue_RoundTrip(t *testing.T) {
	e := newEnv(t, 2)

	h, err := e.lc.CreateQueue(8, 16, types.CapInternal)
	require.NoError(t, err)
	require.False(t, h.Nil())
	assert.Equal(t, 2, e.alloc.Outstanding(), "control block plus backing store")

	e.lc.DeleteQueue(h)
	assert.Equal(t, 0, e.alloc.Outstanding(), "round trip leaks nothing")
	assert.Empty(t, e.halts)
}

func TestCreateQueue_ZeroItemSize(t *testing.T) {
	e := newEnv(t, 2)

	h, err := e.lc.CreateQueue(4, 0, types.CapInternal)
	require.NoError(t, err)
	assert.Equal(t, 1, e.alloc.AllocCalls(), "no allocation is attempted for a zero payload")
	assert.Equal(t, 1, e.alloc.Outstanding(), "control block only")

	e.lc.DeleteQueue(h)
	assert.Equal(t, 0, e.alloc.Outstanding())
	assert.Equal(t, 1, e.alloc.FreeCalls(), "the absent backing store is never freed")
	assert.Empty(t, e.halts)
}

func TestCreateQueue_InvalidArguments(t *testing.T) {
	e := newEnv(t, 2)

	_, err := e.lc.CreateQueue(0, 4, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = e.lc.CreateQueue(4, -1, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.Equal(t, 0, e.alloc.AllocCalls())
}

func TestCreateQueue_SecondBufferExhausted(t *testing.T) {
	e := newEnv(t, 2)
	e.alloc.FailOnAlloc(2)

	_, err := e.lc.CreateQueue(8, 16, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrOutOfMemory)
	assert.Equal(t, 0, e.alloc.Outstanding(), "the first buffer is freed before returning")
	assert.Equal(t, 1, e.alloc.FreeCalls())
}

func TestCreateQueue_FirstBufferExhausted(t *testing.T) {
	e := newEnv(t, 2)
	e.alloc.FailOnAlloc(1)

	_, err := e.lc.CreateQueue(8, 16, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrOutOfMemory)
	assert.Equal(t, 0, e.alloc.Outstanding())
}

func TestCreateQueue_RealExhaustion(t *testing.T) {
	e := newEnv(t, 2)

	// Larger than the single 1 MiB test region.
	_, err := e.lc.CreateQueue(1<<16, 64, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrOutOfMemory)
	assert.Equal(t, 0, e.alloc.Outstanding())

	// Unsatisfiable capability mask.
	_, err = e.lc.CreateQueue(4, 4, types.CapSPIRAM)
	assert.ErrorIs(t, err, types.ErrOutOfMemory)
	assert.Equal(t, 0, e.alloc.Outstanding())
}

// rejectingKernel forces static-constructor rejection with valid buffers.
type rejectingKernel struct {
	kernel.Kernel
}

func (r *rejectingKernel) CreateQueueStatic(length, itemSize int, storage, cb *memory.Block) kernel.QueueHandle {
	return 0
}

func (r *rejectingKernel) CreateTaskStatic(fn kernel.TaskFunc, name string, stackDepth int, priority int, core types.CoreID, stack, cb *memory.Block) kernel.TaskHandle {
	return 0
}

func TestCreate_StaticRejectionRollsBack(t *testing.T) {
	e := newEnvKernel(t, sim.New(2, logging.NewNop()), func(k kernel.Kernel) kernel.Kernel {
		return &rejectingKernel{Kernel: k}
	})

	_, err := e.lc.CreateQueue(8, 16, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrKernelRejected)
	assert.Equal(t, 0, e.alloc.Outstanding(), "both buffers freed on rejection")

	_, err = e.lc.CreateTask(func() {}, "rejected", 1024, 1, types.NoAffinity, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrKernelRejected)
	assert.Equal(t, 0, e.alloc.Outstanding())
}

func TestCreateSemaphore_AllKindsRoundTrip(t *testing.T) {
	e := newEnv(t, 2)

	kinds := []types.SemKind{
		types.SemBinary, types.SemCounting, types.SemMutex, types.SemRecursiveMutex,
	}
	for _, kind := range kinds {
		before := e.alloc.Outstanding()

		h, err := e.lc.CreateSemaphore(kind, 4, 2, types.CapInternal)
		require.NoError(t, err, kind.String())
		assert.Equal(t, before+1, e.alloc.Outstanding(),
			"%s: control block only, no backing store", kind)

		e.lc.DeleteSemaphore(h)
		assert.Equal(t, before, e.alloc.Outstanding(), kind.String())
	}
	assert.Empty(t, e.halts)
}

func TestCreateSemaphore_Wrappers(t *testing.T) {
	e := newEnv(t, 2)

	b, err := e.lc.CreateBinarySemaphore(types.CapInternal)
	require.NoError(t, err)
	c, err := e.lc.CreateCountingSemaphore(3, 1, types.CapInternal)
	require.NoError(t, err)
	m, err := e.lc.CreateMutex(types.CapInternal)
	require.NoError(t, err)
	r, err := e.lc.CreateRecursiveMutex(types.CapInternal)
	require.NoError(t, err)

	assert.Equal(t, 1, e.kern.SemaphoreCount(c), "counting wrapper passes the initial count")
	assert.True(t, e.kern.SemaphoreTake(m, time.Second), "mutex starts available")

	for _, h := range []kernel.SemaphoreHandle{b, c, m, r} {
		e.lc.DeleteSemaphore(h)
	}
	assert.Equal(t, 0, e.alloc.Outstanding())
}

func TestCreateCountingSemaphore_InvalidCounts(t *testing.T) {
	e := newEnv(t, 2)

	_, err := e.lc.CreateCountingSemaphore(0, 0, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = e.lc.CreateCountingSemaphore(2, 3, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.Equal(t, 0, e.alloc.AllocCalls())
}

func TestCreateStreamBuffer_RoundTrip(t *testing.T) {
	e := newEnv(t, 2)

	h, err := e.lc.CreateStreamBuffer(256, 8, types.CapInternal|types.CapDMA)
	require.NoError(t, err)
	assert.Equal(t, 2, e.alloc.Outstanding())

	require.True(t, e.kern.StreamBufferSend(h, []byte("payload"), time.Second))

	e.lc.DeleteStreamBuffer(h)
	assert.Equal(t, 0, e.alloc.Outstanding())
	assert.Empty(t, e.halts)
}

func TestCreateMessageBuffer_RoundTrip(t *testing.T) {
	e := newEnv(t, 2)

	h, err := e.lc.CreateMessageBuffer(128, types.CapInternal)
	require.NoError(t, err)
	assert.Equal(t, 2, e.alloc.Outstanding())

	require.True(t, e.kern.StreamBufferSend(h, []byte("msg"), time.Second))
	buf := make([]byte, 8)
	assert.Equal(t, 3, e.kern.StreamBufferReceive(h, buf, time.Second))

	e.lc.DeleteMessageBuffer(h)
	assert.Equal(t, 0, e.alloc.Outstanding())
}

func TestCreateStreamBuffer_InvalidSize(t *testing.T) {
	e := newEnv(t, 2)

	_, err := e.lc.CreateStreamBuffer(0, 0, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = e.lc.CreateMessageBuffer(-5, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestCreateEventGroup_RoundTrip(t *testing.T) {
	e := newEnv(t, 2)

	h, err := e.lc.CreateEventGroup(types.CapInternal)
	require.NoError(t, err)
	assert.Equal(t, 1, e.alloc.Outstanding(), "control block only")

	e.kern.EventGroupSet(h, 0b1)

	e.lc.DeleteEventGroup(h)
	assert.Equal(t, 0, e.alloc.Outstanding())
	assert.Empty(t, e.halts)
}

func TestDeleteQueue_TwiceHitsInvariantPath(t *testing.T) {
	e := newEnv(t, 2)

	h, err := e.lc.CreateQueue(4, 8, types.CapInternal)
	require.NoError(t, err)

	e.lc.DeleteQueue(h)
	frees := e.alloc.FreeCalls()

	// The handle is dead; a correct caller never does this. The layer must
	// fail loudly rather than free anything a second time.
	e.lc.DeleteQueue(h)
	assert.Contains(t, e.haltMessage(t), "introspection failed")
	assert.Equal(t, frees, e.alloc.FreeCalls(), "no buffer is freed twice")
}

func TestCreateTask_RoundTrip(t *testing.T) {
	e := newEnv(t, 2)

	h, err := e.lc.CreateTask(func() {
		for {
			e.kern.Yield()
		}
	}, "worker", 4096, 5, types.NoAffinity, types.CapInternal)
	require.NoError(t, err)
	assert.Equal(t, 2, e.alloc.Outstanding(), "control block plus stack")
	assert.Equal(t, 4096+e.kern.ControlBlockSize(types.KindTask), e.alloc.OutstandingBytes())

	e.lc.DeleteTask(h)
	assert.Equal(t, 0, e.alloc.Outstanding())
	assert.Empty(t, e.halts)
}

func TestCreateTask_InvalidArguments(t *testing.T) {
	e := newEnv(t, 2)

	_, err := e.lc.CreateTask(nil, "nil", 1024, 1, types.NoAffinity, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = e.lc.CreateTask(func() {}, "zero-stack", 0, 1, types.NoAffinity, types.CapInternal)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.Equal(t, 0, e.alloc.AllocCalls())
}
