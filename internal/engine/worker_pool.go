package engine

import (
	"context"
	"sync"
)

// task is the unit of work dispatched to a worker.
type task func(ctx context.Context)

// workerPool is a fixed-size goroutine pool with a bounded input queue.
// With one worker it serialises every task, which is how the session loop
// owns its state without locks.
type workerPool struct {
	queue chan task
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// newWorkerPool creates and starts a pool with n goroutines and queue capacity cap.
func newWorkerPool(ctx context.Context, n, cap int) *workerPool {
	p := &workerPool{queue: make(chan task, cap)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool) run(ctx context.Context) {
	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			t(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues a task without blocking (returns false if full or drained).
func (p *workerPool) Submit(t task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- t:
		return true
	default:
		return false
	}
}

// SubmitWait enqueues a task, waiting for room until ctx is done.
func (p *workerPool) SubmitWait(ctx context.Context, t task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

// Drain stops accepting tasks and waits for queued ones to finish.
func (p *workerPool) Drain() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// QueueLen returns how many tasks are currently queued.
func (p *workerPool) QueueLen() int {
	return len(p.queue)
}

// QueueCap returns the total queue capacity.
func (p *workerPool) QueueCap() int {
	return cap(p.queue)
}
