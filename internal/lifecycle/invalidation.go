package lifecycle

import (
	"github.com/specialistvlad/livebind/internal/provider"
	"github.com/specialistvlad/livebind/internal/tree"
)

// scope says how much of a node must be re-initialized.
type scope int

const (
	// scopeNode rebinds the node's directive attributes only.
	scopeNode scope = iota + 1
	// scopeSubtree re-resolves providers and rebinds the whole subtree.
	scopeSubtree
)

type invalidSet struct {
	entries map[*tree.Node]scope
	order   []*tree.Node
}

func newInvalidSet() *invalidSet {
	return &invalidSet{entries: make(map[*tree.Node]scope)}
}

func (s *invalidSet) mark(n *tree.Node, sc scope) {
	if n == nil || !n.IsElement() {
		return
	}
	prev, seen := s.entries[n]
	if !seen {
		s.order = append(s.order, n)
	}
	if sc > prev {
		s.entries[n] = sc
	}
}

func (s *invalidSet) len() int { return len(s.order) }

// survivors drops disconnected nodes and nodes covered by a subtree-invalid
// ancestor, keeping first-marked order.
func (s *invalidSet) survivors() []*tree.Node {
	out := make([]*tree.Node, 0, len(s.order))
	for _, n := range s.order {
		if !n.Connected() || s.coveredByAncestor(n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (s *invalidSet) coveredByAncestor(n *tree.Node) bool {
	for a := n.ParentElement(); a != nil; a = a.ParentElement() {
		if s.entries[a] == scopeSubtree {
			return true
		}
	}
	return false
}

// classify folds one mutation record into the set. Removals are handled by
// the caller; here they only matter when they change a host's declarations.
func (s *invalidSet) classify(rec tree.MutationRecord, isDirective func(string) bool) {
	switch rec.Kind {
	case tree.NodeAdded:
		switch {
		case provider.IsContextScript(rec.Node):
			s.mark(rec.Target, scopeSubtree)
		case rec.Node.IsElement():
			s.mark(rec.Node, scopeSubtree)
		case provider.IsContextScript(rec.Target):
			s.mark(rec.Target.ParentElement(), scopeSubtree)
		}
	case tree.NodeRemoved:
		switch {
		case provider.IsContextScript(rec.Node):
			s.mark(rec.Target, scopeSubtree)
		case provider.IsContextScript(rec.Target):
			s.mark(rec.Target.ParentElement(), scopeSubtree)
		}
	case tree.AttributeChanged:
		t := rec.Target
		switch {
		case rec.Name == provider.ContextAttr && t.Tag() == "script":
			s.mark(t.ParentElement(), scopeSubtree)
		case isDirective(rec.Name) && !inContextScript(t):
			s.mark(t, scopeNode)
		}
	case tree.TextChanged:
		if p := rec.Target.Parent(); provider.IsContextScript(p) {
			s.mark(p.ParentElement(), scopeSubtree)
		}
	}
}

func inContextScript(n *tree.Node) bool {
	for a := n; a != nil; a = a.ParentElement() {
		if provider.IsContextScript(a) {
			return true
		}
	}
	return false
}
