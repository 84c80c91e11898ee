package reactive

// Runtime tracks the currently running owner and computation and schedules
// computations whose dependencies changed.
type Runtime struct {
	owner    *scope
	listener *scope
	pending  []*scope
	flushing bool
	nextID   uint64
}

// NewRuntime creates an isolated reactive runtime.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// Signal is a readable reactive value. Get subscribes the running computation,
// Peek does not.
type Signal interface {
	Get() any
	Peek() any
}

// Writable is a Signal that can be assigned.
type Writable interface {
	Signal
	Set(v any)
}

// Disposer releases everything created under an owner.
type Disposer func()

// scope is both an owner (of child scopes and cleanup hooks) and, when fn is
// set, a computation tracking the cells it reads.
type scope struct {
	rt       *Runtime
	id       uint64
	children []*scope
	cleanups []func()
	fn       func()
	sources  map[*Cell]struct{}
	queued   bool
	disposed bool
}

func (rt *Runtime) newScope(fn func()) *scope {
	rt.nextID++
	s := &scope{rt: rt, id: rt.nextID, fn: fn}
	if fn != nil {
		s.sources = make(map[*Cell]struct{})
	}
	return s
}

// clean disposes owned scopes, runs cleanups and drops subscriptions.
func (s *scope) clean() {
	children := s.children
	s.children = nil
	for i := len(children) - 1; i >= 0; i-- {
		children[i].dispose()
	}
	cleanups := s.cleanups
	s.cleanups = nil
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
	for c := range s.sources {
		delete(c.observers, s)
	}
	if s.fn != nil {
		s.sources = make(map[*Cell]struct{})
	}
}

func (s *scope) dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	s.clean()
}

func (s *scope) run() {
	if s.disposed {
		return
	}
	s.clean()
	rt := s.rt
	prevOwner, prevListener := rt.owner, rt.listener
	rt.owner, rt.listener = s, s
	defer func() {
		rt.owner, rt.listener = prevOwner, prevListener
	}()
	s.fn()
}

func (rt *Runtime) adopt(s *scope) {
	if rt.owner != nil && !rt.owner.disposed {
		rt.owner.children = append(rt.owner.children, s)
	}
}

func (rt *Runtime) schedule(s *scope) {
	if s.queued || s.disposed {
		return
	}
	s.queued = true
	rt.pending = append(rt.pending, s)
}

func (rt *Runtime) flush() {
	if rt.flushing {
		return
	}
	rt.flushing = true
	defer func() { rt.flushing = false }()
	for len(rt.pending) > 0 {
		s := rt.pending[0]
		rt.pending = rt.pending[1:]
		s.queued = false
		s.run()
	}
}

// Root runs fn inside a new owner that is not attached to the current one and
// returns the owner's disposer. fn receives the same disposer.
func (rt *Runtime) Root(fn func(dispose Disposer)) Disposer {
	s := rt.newScope(nil)
	dispose := Disposer(s.dispose)
	prevOwner, prevListener := rt.owner, rt.listener
	rt.owner, rt.listener = s, nil
	defer func() {
		rt.owner, rt.listener = prevOwner, prevListener
	}()
	fn(dispose)
	return dispose
}

// Effect creates a computation owned by the current owner and runs it
// immediately. It re-runs whenever a cell it read changes.
func (rt *Runtime) Effect(fn func()) {
	s := rt.newScope(fn)
	rt.adopt(s)
	s.run()
}

// OnCleanup registers fn on the current owner. It reports false when there is
// no owner to attach it to, in which case fn is never called.
func (rt *Runtime) OnCleanup(fn func()) bool {
	if rt.owner == nil || rt.owner.disposed {
		return false
	}
	rt.owner.cleanups = append(rt.owner.cleanups, fn)
	return true
}

// Untrack runs fn without subscribing the current computation to anything fn reads.
func (rt *Runtime) Untrack(fn func()) {
	prev := rt.listener
	rt.listener = nil
	defer func() { rt.listener = prev }()
	fn()
}

// Sample reads a signal without subscribing.
func (rt *Runtime) Sample(s Signal) any {
	return s.Peek()
}

// Batch defers computations triggered by writes inside fn until fn returns.
func (rt *Runtime) Batch(fn func()) {
	if rt.flushing {
		fn()
		return
	}
	rt.flushing = true
	func() {
		defer func() { rt.flushing = false }()
		fn()
	}()
	rt.flush()
}
