// Package parallel runs compute workgroups on a fixed set of goroutines.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines that executes batches of work items.
//
// Each worker owns a queue and steals from the other queues when its own is
// empty, which balances batches where some items are much slower than others
// (a large polygon next to many tiny ones).
//
// WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers. If workers is
// 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll runs every item of work and returns once all of them have
// finished. On a closed pool the remaining items run on the calling
// goroutine, so the batch always completes.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for i, fn := range work {
		wrapped := func() {
			defer wg.Done()
			fn()
		}
		select {
		case p.workQueues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}
	wg.Wait()
}

// Dispatch calls fn once for every workgroup ID in [0, n) and waits for all
// calls to return. Workgroups are handed out in contiguous chunks, one batch
// item per chunk, so that tiny workgroups do not pay a channel send each.
func (p *WorkerPool) Dispatch(n uint32, fn func(wgID uint32)) {
	if n == 0 {
		return
	}
	chunks := min(uint32(p.workers)*4, n)
	per := (n + chunks - 1) / chunks
	work := make([]func(), 0, chunks)
	for start := uint32(0); start < n; start += per {
		end := min(start+per, n)
		work = append(work, func() {
			for id := start; id < end; id++ {
				fn(id)
			}
		})
	}
	p.ExecuteAll(work)
}

// Close stops the workers after the queued work has run. It is safe to call
// Close multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether Close has not been called yet.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
