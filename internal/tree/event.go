package tree

// Event is dispatched to a target and bubbles through its ancestors.
type Event struct {
	Type          string
	Target        *Node
	CurrentTarget *Node
	Detail        any
}

// Listener handles an event.
type Listener func(Event)

type listener struct {
	fn Listener
}

// AddEventListener registers fn for events of type typ on n and returns a
// function that removes it. Removing twice is harmless.
func (n *Node) AddEventListener(typ string, fn Listener) (remove func()) {
	if n.listeners == nil {
		n.listeners = make(map[string][]*listener)
	}
	l := &listener{fn: fn}
	n.listeners[typ] = append(n.listeners[typ], l)
	return func() {
		list := n.listeners[typ]
		for i, other := range list {
			if other == l {
				n.listeners[typ] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(n.listeners[typ]) == 0 {
			delete(n.listeners, typ)
		}
	}
}

// ListenerCount reports how many listeners of type typ are registered on n.
func (n *Node) ListenerCount(typ string) int {
	return len(n.listeners[typ])
}

// Dispatch delivers an event of type typ to n and then to each ancestor and
// returns the number of listeners invoked.
func (n *Node) Dispatch(typ string, detail any) int {
	invoked := 0
	for cur := n; cur != nil; cur = cur.parent {
		list := append([]*listener(nil), cur.listeners[typ]...)
		for _, l := range list {
			l.fn(Event{Type: typ, Target: n, CurrentTarget: cur, Detail: detail})
			invoked++
		}
	}
	return invoked
}
