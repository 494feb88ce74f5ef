package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/logging"
	"github.com/GriffinCanCode/CapOS/internal/memory"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

func testKernel(cores int) (*Kernel, *memory.RegionHeap) {
	k := New(cores, logging.NewNop())
	heap := memory.NewRegionHeap([]memory.Region{
		{Name: "dram", Capacity: 1 << 20, Caps: types.CapInternal | types.CapDMA},
	}, logging.NewNop())
	return k, heap
}

func waitState(t *testing.T, k *Kernel, h kernel.TaskHandle, want types.RunState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return k.TaskState(h) == want
	}, 2*time.Second, time.Millisecond)
}

func TestSpawnTask_RunsAndReportsCurrent(t *testing.T) {
	k, _ := testKernel(1)

	got := make(chan kernel.TaskHandle, 1)
	h, err := k.SpawnTask(func() {
		got <- k.CurrentTask()
		k.DeleteTask(0)
	}, "worker", 512, 3, types.NoAffinity)
	require.NoError(t, err)
	require.False(t, h.Nil())

	select {
	case cur := <-got:
		assert.Equal(t, h, cur)
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	waitState(t, k, h, types.StateInvalid)
	assert.Equal(t, 0, k.TaskPriority(h), "deleted handles report zero priority")
}

func TestSpawnTask_Validation(t *testing.T) {
	k, _ := testKernel(2)

	_, err := k.SpawnTask(nil, "nil", 512, 1, types.NoAffinity)
	assert.ErrorIs(t, err, ErrSpawnFailed)

	_, err = k.SpawnTask(func() {}, "bad-core", 512, 1, types.CoreID(5))
	assert.ErrorIs(t, err, ErrSpawnFailed)

	k.SetSpawnFailure(true)
	_, err = k.SpawnTask(func() { k.DeleteTask(0) }, "fail", 512, 1, types.NoAffinity)
	assert.ErrorIs(t, err, ErrSpawnFailed)
}

func TestSuspendResume(t *testing.T) {
	k, _ := testKernel(1)

	h, err := k.SpawnTask(func() {
		for {
			k.Yield()
		}
	}, "spinner", 512, 1, types.NoAffinity)
	require.NoError(t, err)

	waitState(t, k, h, types.StateRunning)

	k.Suspend(h)
	waitState(t, k, h, types.StateSuspended)

	k.Resume(h)
	waitState(t, k, h, types.StateRunning)

	k.DeleteTask(h)
	waitState(t, k, h, types.StateInvalid)
}

func TestDeleteTask_WakesParkedTask(t *testing.T) {
	k, _ := testKernel(1)

	h, err := k.SpawnTask(func() {
		for {
			k.Yield()
		}
	}, "victim", 512, 1, types.NoAffinity)
	require.NoError(t, err)

	k.Suspend(h)
	waitState(t, k, h, types.StateSuspended)

	k.DeleteTask(h)
	k.WaitTaskExit(h)
	assert.Equal(t, types.StateInvalid, k.TaskState(h))
}

func TestCreateTaskStatic_Validation(t *testing.T) {
	k, heap := testKernel(1)
	fn := func() { k.DeleteTask(0) }

	stack := heap.Alloc(1024, types.CapInternal)
	cb := heap.Alloc(k.ControlBlockSize(types.KindTask), types.CapInternal)
	small := heap.Alloc(8, types.CapInternal)

	assert.True(t, k.CreateTaskStatic(nil, "t", 1024, 1, types.NoAffinity, stack, cb).Nil())
	assert.True(t, k.CreateTaskStatic(fn, "t", 1024, 1, types.NoAffinity, nil, cb).Nil())
	assert.True(t, k.CreateTaskStatic(fn, "t", 1024, 1, types.NoAffinity, stack, small).Nil())
	assert.True(t, k.CreateTaskStatic(fn, "t", 2048, 1, types.NoAffinity, stack, cb).Nil(),
		"stack smaller than requested depth")
	assert.True(t, k.CreateTaskStatic(fn, "t", 1024, 1, types.CoreID(3), stack, cb).Nil())
}

func TestCreateTaskStatic_Introspection(t *testing.T) {
	k, heap := testKernel(1)

	stack := heap.Alloc(1024, types.CapInternal)
	cb := heap.Alloc(k.ControlBlockSize(types.KindTask), types.CapInternal)

	h := k.CreateTaskStatic(func() {
		for {
			k.Yield()
		}
	}, "static", 1024, 2, types.NoAffinity, stack, cb)
	require.False(t, h.Nil())

	gotStack, gotCB, ok := k.TaskStaticBuffers(h)
	require.True(t, ok)
	assert.Same(t, stack, gotStack)
	assert.Same(t, cb, gotCB)

	k.Suspend(h)
	waitState(t, k, h, types.StateSuspended)
	k.DeleteTask(h)
	k.WaitTaskExit(h)

	_, _, ok = k.TaskStaticBuffers(h)
	assert.False(t, ok, "introspection must fail after deletion")
}

func TestTaskStaticBuffers_OrdinaryTaskFails(t *testing.T) {
	k, _ := testKernel(1)

	h, err := k.SpawnTask(func() {
		for {
			k.Yield()
		}
	}, "plain", 512, 1, types.NoAffinity)
	require.NoError(t, err)

	_, _, ok := k.TaskStaticBuffers(h)
	assert.False(t, ok)

	k.DeleteTask(h)
}

func TestTaskReturningWithoutDelete_IsRemoved(t *testing.T) {
	k, _ := testKernel(1)

	h, err := k.SpawnTask(func() {}, "runaway", 512, 1, types.NoAffinity)
	require.NoError(t, err)

	waitState(t, k, h, types.StateInvalid)
	assert.Empty(t, k.Tasks())
}

func TestTasks_Listing(t *testing.T) {
	k, _ := testKernel(2)

	h, err := k.SpawnTask(func() {
		for {
			k.Yield()
		}
	}, "listed", 512, 7, types.CoreID(1))
	require.NoError(t, err)
	waitState(t, k, h, types.StateRunning)

	infos := k.Tasks()
	require.Len(t, infos, 1)
	assert.Equal(t, "listed", infos[0].Name)
	assert.Equal(t, 7, infos[0].Priority)
	assert.Equal(t, 1, infos[0].Core)
	assert.Equal(t, "running", infos[0].State)
	assert.False(t, infos[0].Static)
	assert.NotEmpty(t, infos[0].UID)

	k.DeleteTask(h)
}
