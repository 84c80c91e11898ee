package reactive

import "sort"

// Cell is a writable reactive value.
type Cell struct {
	rt        *Runtime
	value     any
	observers map[*scope]struct{}
}

// NewCell creates a cell holding initial.
func (rt *Runtime) NewCell(initial any) *Cell {
	return &Cell{rt: rt, value: initial, observers: make(map[*scope]struct{})}
}

// Get returns the value and subscribes the running computation.
func (c *Cell) Get() any {
	if l := c.rt.listener; l != nil && !l.disposed {
		c.observers[l] = struct{}{}
		l.sources[c] = struct{}{}
	}
	return c.value
}

// Peek returns the value without subscribing.
func (c *Cell) Peek() any {
	return c.value
}

// Set stores v and re-runs every computation that read the cell. Writing a
// value identical to the current one is a no-op.
func (c *Cell) Set(v any) {
	if identical(c.value, v) {
		return
	}
	c.value = v
	// Run observers in creation order so effects are deterministic.
	observers := make([]*scope, 0, len(c.observers))
	for s := range c.observers {
		observers = append(observers, s)
	}
	sort.Slice(observers, func(i, j int) bool { return observers[i].id < observers[j].id })
	for _, s := range observers {
		c.rt.schedule(s)
	}
	c.rt.flush()
}

// Observers reports how many computations are subscribed to the cell.
func (c *Cell) Observers() int {
	return len(c.observers)
}

// identical compares with == and treats incomparable dynamic values as different.
func identical(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// Memo is a derived read-only value recomputed when its dependencies change.
type Memo struct {
	cell *Cell
}

// Memo creates a derived value owned by the current owner.
func (rt *Runtime) Memo(fn func() any) *Memo {
	m := &Memo{cell: rt.NewCell(nil)}
	rt.Effect(func() {
		v := fn()
		rt.Untrack(func() { m.cell.Set(v) })
	})
	return m
}

// Get returns the derived value and subscribes the running computation.
func (m *Memo) Get() any {
	return m.cell.Get()
}

// Peek returns the derived value without subscribing.
func (m *Memo) Peek() any {
	return m.cell.Peek()
}
