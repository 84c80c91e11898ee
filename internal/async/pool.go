package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/livebind/internal/ctxlog"
)

// Pool runs jobs on a fixed number of worker goroutines. Jobs must not touch
// queue-owned state; they hand results back through futures.
type Pool struct {
	jobs   chan func()
	wg     sync.WaitGroup
	once   sync.Once
	closed chan struct{}
}

// NewPool starts workerCount workers (at least one).
func NewPool(ctx context.Context, workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		jobs:   make(chan func(), workerCount*4),
		closed: make(chan struct{}),
	}
	logger := ctxlog.FromContext(ctx)
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	logger.Debug("Worker pool started.", "workers", workerCount)
	return p
}

// worker is the processing loop for a single worker.
func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)
	for job := range p.jobs {
		job()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// Submit schedules job. It reports false when the pool is closed.
func (p *Pool) Submit(job func()) (ok bool) {
	select {
	case <-p.closed:
		return false
	default:
	}
	defer func() {
		// Close raced with the send.
		if recover() != nil {
			ok = false
		}
	}()
	p.jobs <- job
	return true
}

// Close stops accepting jobs and waits for running ones to finish.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.closed)
		close(p.jobs)
	})
	p.wg.Wait()
}

// Go runs fn on the pool and settles the returned future with its result.
// A panic in fn rejects the future.
func Go[T any](p *Pool, q *Queue, fn func() (T, error)) *Future[T] {
	f := NewFuture[T](q)
	ok := p.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(fmt.Errorf("worker job panicked: %v", r))
			}
		}()
		v, err := fn()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	})
	if !ok {
		f.Reject(fmt.Errorf("worker pool is closed"))
	}
	return f
}
