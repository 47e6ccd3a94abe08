package session

import (
	"context"
	"sync"
)

// workerPool runs handle on a fixed number of goroutines fed from a bounded
// queue. Results travel back through whatever channel the job carries.
type workerPool[T any] struct {
	queue  chan T
	handle func(ctx context.Context, job T)
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// newWorkerPool starts n workers reading from a queue of capacity depth.
func newWorkerPool[T any](ctx context.Context, n, depth int, handle func(context.Context, T)) *workerPool[T] {
	p := &workerPool[T]{
		queue:  make(chan T, depth),
		handle: handle,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T]) run(ctx context.Context) {
	for {
		select {
		case job, ok := <-p.queue:
			if !ok {
				return
			}
			p.handle(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues job without blocking. It returns false when the queue is
// full or the pool has been drained.
func (p *workerPool[T]) Submit(job T) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- job:
		return true
	default:
		return false
	}
}

// Drain stops accepting jobs, lets the workers finish what is queued and
// waits for them. It is safe to call more than once.
func (p *workerPool[T]) Drain() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Utilization returns queued jobs over capacity, between 0 and 1.
func (p *workerPool[T]) Utilization() float64 {
	if cap(p.queue) == 0 {
		return 0
	}
	return float64(len(p.queue)) / float64(cap(p.queue))
}
