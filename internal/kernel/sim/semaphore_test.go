package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/CapOS/internal/kernel"
	"github.com/GriffinCanCode/CapOS/internal/memory"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

func makeSem(t *testing.T, k *Kernel, heap *memory.RegionHeap, kind types.SemKind, max, initial int) kernel.SemaphoreHandle {
	t.Helper()
	cb := heap.Alloc(k.ControlBlockSize(types.KindSemaphore), types.CapInternal)
	require.NotNil(t, cb)
	h := k.CreateSemaphoreStatic(kind, max, initial, cb)
	require.False(t, h.Nil())
	return h
}

func TestSemaphore_Binary(t *testing.T) {
	k, heap := testKernel(1)
	s := makeSem(t, k, heap, types.SemBinary, 0, 0)

	assert.False(t, k.SemaphoreTake(s, 10*time.Millisecond), "binary starts empty")
	require.True(t, k.SemaphoreGive(s))
	assert.False(t, k.SemaphoreGive(s), "binary cannot exceed one token")
	assert.True(t, k.SemaphoreTake(s, time.Second))
}

func TestSemaphore_Counting(t *testing.T) {
	k, heap := testKernel(1)
	s := makeSem(t, k, heap, types.SemCounting, 3, 2)

	assert.Equal(t, 2, k.SemaphoreCount(s))
	require.True(t, k.SemaphoreGive(s))
	assert.False(t, k.SemaphoreGive(s), "over max")

	for i := 0; i < 3; i++ {
		assert.True(t, k.SemaphoreTake(s, time.Second))
	}
	assert.False(t, k.SemaphoreTake(s, 10*time.Millisecond))
}

func TestSemaphore_CountingValidation(t *testing.T) {
	k, heap := testKernel(1)
	cb := heap.Alloc(k.ControlBlockSize(types.KindSemaphore), types.CapInternal)

	assert.True(t, k.CreateSemaphoreStatic(types.SemCounting, 0, 0, cb).Nil())
	assert.True(t, k.CreateSemaphoreStatic(types.SemCounting, 2, 3, cb).Nil())
	assert.True(t, k.CreateSemaphoreStatic(types.SemBinary, 0, 0, nil).Nil())
}

func TestSemaphore_MutexOwnership(t *testing.T) {
	k, heap := testKernel(1)
	m := makeSem(t, k, heap, types.SemMutex, 0, 0)

	took := make(chan bool, 1)
	release := make(chan struct{})
	holder, err := k.SpawnTask(func() {
		took <- k.SemaphoreTake(m, time.Second)
		<-release
		k.SemaphoreGive(m)
		k.DeleteTask(0)
	}, "holder", 512, 1, types.NoAffinity)
	require.NoError(t, err)

	require.True(t, <-took)
	assert.False(t, k.SemaphoreGive(m), "non-owner cannot give a held mutex")

	close(release)
	k.WaitTaskExit(holder)
	assert.True(t, k.SemaphoreTake(m, time.Second), "released mutex is takable")
}

func TestSemaphore_RecursiveMutex(t *testing.T) {
	k, heap := testKernel(1)
	m := makeSem(t, k, heap, types.SemRecursiveMutex, 0, 0)

	done := make(chan struct{})
	h, err := k.SpawnTask(func() {
		defer close(done)
		defer k.DeleteTask(0)

		if !k.SemaphoreTake(m, time.Second) {
			t.Error("first take failed")
			return
		}
		if !k.SemaphoreTake(m, time.Second) {
			t.Error("recursive take failed")
			return
		}
		if !k.SemaphoreGive(m) || !k.SemaphoreGive(m) {
			t.Error("paired gives failed")
		}
	}, "recursive", 512, 1, types.NoAffinity)
	require.NoError(t, err)

	<-done
	k.WaitTaskExit(h)
	assert.True(t, k.SemaphoreTake(m, time.Second), "fully released")
}

func TestSemaphore_DeleteUnblocksTakers(t *testing.T) {
	k, heap := testKernel(1)
	s := makeSem(t, k, heap, types.SemBinary, 0, 0)

	blocked := make(chan bool, 1)
	go func() {
		blocked <- k.SemaphoreTake(s, 10*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	k.DeleteSemaphore(s)

	select {
	case ok := <-blocked:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("delete did not unblock the taker")
	}
}

func TestSemaphore_Introspection(t *testing.T) {
	k, heap := testKernel(1)
	cb := heap.Alloc(k.ControlBlockSize(types.KindSemaphore), types.CapInternal)
	h := k.CreateSemaphoreStatic(types.SemBinary, 0, 0, cb)
	require.False(t, h.Nil())

	got, ok := k.SemaphoreStaticBuffer(h)
	require.True(t, ok)
	assert.Same(t, cb, got)

	k.DeleteSemaphore(h)
	_, ok = k.SemaphoreStaticBuffer(h)
	assert.False(t, ok)
}
