// Package async provides the cooperative scheduling primitives of the binding
// runtime: a task Queue drained by exactly one goroutine, Futures whose
// continuations always run on that queue, and a worker Pool for work that must
// not block the queue goroutine.
package async

import (
	"context"
	"sync"
)

// Queue is a FIFO of tasks. Any goroutine may Post; exactly one goroutine
// drains it, which makes that goroutine the single writer of engine state.
type Queue struct {
	mu     sync.Mutex
	tasks  []func()
	signal chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Post appends a task. It never blocks.
func (q *Queue) Post(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task, true
}

// RunPending runs tasks until the queue is empty, including tasks posted by the
// tasks themselves, and returns how many ran.
func (q *Queue) RunPending() int {
	n := 0
	for {
		task, ok := q.next()
		if !ok {
			return n
		}
		task()
		n++
	}
}

// Wait blocks until a task may be available or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	if q.Len() > 0 {
		return nil
	}
	select {
	case <-q.signal:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is done. after, when non-nil, is called once
// after every drained burst of tasks.
func (q *Queue) Run(ctx context.Context, after func()) error {
	for {
		if q.RunPending() > 0 && after != nil {
			after()
		}
		if err := q.Wait(ctx); err != nil {
			return err
		}
	}
}
