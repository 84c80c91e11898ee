package lifecycle

import (
	"github.com/specialistvlad/livebind/internal/provider"
	"github.com/specialistvlad/livebind/internal/tree"
)

// walkControl tells walk how to continue after visiting a node.
type walkControl int

const (
	walkContinue walkControl = iota
	walkSkipChildren
)

type frame struct {
	node    *tree.Node
	ambient *provider.Provider
}

// walk visits root and its element descendants in document order with an
// explicit stack. visit returns the provider its children inherit.
func walk(root *tree.Node, ambient *provider.Provider, visit func(n *tree.Node, ambient *provider.Provider) (walkControl, *provider.Provider)) {
	stack := []frame{{node: root, ambient: ambient}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !cur.node.IsElement() {
			continue
		}
		ctl, inherited := visit(cur.node, cur.ambient)
		if ctl == walkSkipChildren {
			continue
		}
		children := cur.node.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: children[i], ambient: inherited})
		}
	}
}
