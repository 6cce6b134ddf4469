package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

// =============================================================================
// Creation
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefault(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	if want := runtime.GOMAXPROCS(0); pool.Workers() != want {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), want)
	}
}

// =============================================================================
// ExecuteAll
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAllAfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()

	var counter atomic.Int64
	pool.ExecuteAll([]func(){
		func() { counter.Add(1) },
		func() { counter.Add(1) },
	})
	if counter.Load() != 2 {
		t.Errorf("counter = %d, want 2", counter.Load())
	}
}

func TestWorkerPool_CloseTwice(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()
	if pool.IsRunning() {
		t.Error("pool should not be running after Close")
	}
}

// =============================================================================
// Dispatch
// =============================================================================

func TestWorkerPool_Dispatch(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Close()

	for _, n := range []uint32{0, 1, 7, 256, 1000} {
		seen := make([]atomic.Int32, n)
		pool.Dispatch(n, func(id uint32) {
			seen[id].Add(1)
		})
		for i := range seen {
			if got := seen[i].Load(); got != 1 {
				t.Errorf("n=%d: workgroup %d ran %d times, want 1", n, i, got)
			}
		}
	}
}
