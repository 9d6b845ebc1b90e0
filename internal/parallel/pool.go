package parallel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed set of goroutines that run compositing work.
//
// Work is split into indexed chunks with Run, which blocks until every chunk
// has finished. Run must not be called from inside a chunk.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	// queue feeds work items to the workers.
	queue chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool

	// mu orders submissions against Close so nothing is sent on a stopped pool.
	mu sync.RWMutex
}

// NewWorkerPool creates a pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &WorkerPool{
		workers: workers,
		queue:   make(chan func(), workers*4),
		done:    make(chan struct{}),
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			// Drain remaining work before exiting
			for {
				select {
				case work := <-p.queue:
					work()
				default:
					return
				}
			}
		case work := <-p.queue:
			work()
		}
	}
}

// submit queues work, or runs it on the calling goroutine when the pool is
// closed.
func (p *WorkerPool) submit(work func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running.Load() {
		work()
		return
	}
	p.queue <- work
}

// Run calls fn(i) for every i in [0, n) across the workers and waits for all
// calls to return. Chunks not yet started when ctx is cancelled are skipped
// and ctx.Err() is returned.
func (p *WorkerPool) Run(ctx context.Context, n int, fn func(i int)) error {
	if n <= 0 {
		return ctx.Err()
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		p.submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			fn(i)
		})
	}
	wg.Wait()
	return ctx.Err()
}

// Close stops the workers after the queued work has run.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
