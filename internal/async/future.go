package async

import "sync"

// Future is the eventual result of an asynchronous operation. It may be
// settled from any goroutine; continuations registered with Then are always
// posted to the future's queue, never run inline.
type Future[T any] struct {
	q       *Queue
	mu      sync.Mutex
	settled bool
	value   T
	err     error
	waiters []func(T, error)
}

// NewFuture creates a pending future bound to q.
func NewFuture[T any](q *Queue) *Future[T] {
	return &Future[T]{q: q}
}

// Resolved creates a future already settled with v.
func Resolved[T any](q *Queue, v T) *Future[T] {
	f := NewFuture[T](q)
	f.Resolve(v)
	return f
}

// Resolve settles the future with v. Only the first settlement counts; it
// reports whether this call settled the future.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles the future with err.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value, f.err = v, err
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()

	for _, w := range waiters {
		f.q.Post(func() { w(v, err) })
	}
	return true
}

// Then registers fn to run on the queue once the future settles.
func (f *Future[T]) Then(fn func(T, error)) {
	f.mu.Lock()
	if !f.settled {
		f.waiters = append(f.waiters, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	f.q.Post(func() { fn(v, err) })
}

// Pending reports whether the future is still unsettled.
func (f *Future[T]) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.settled
}

// Result returns the settled value; ok is false while pending.
func (f *Future[T]) Result() (v T, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err, f.settled
}

// Map derives a future by applying fn on the queue once f settles. Errors
// from f are propagated without calling fn.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := NewFuture[U](f.q)
	f.Then(func(v T, err error) {
		if err != nil {
			out.Reject(err)
			return
		}
		u, err := fn(v)
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(u)
	})
	return out
}
