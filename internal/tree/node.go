// Package tree is the live-tree substrate: an in-memory element tree with
// ordered attributes, inline styles, text nodes, event listeners and a
// mutation observer that records structural, attribute and text changes.
//
// The tree is not safe for concurrent use; it belongs to the goroutine that
// drains the engine's queue.
package tree

import (
	"fmt"
	"strings"
)

// NodeID identifies a node within its Document. IDs are never reused.
type NodeID uint64

// Kind distinguishes element nodes from text nodes.
type Kind int

const (
	ElementNode Kind = iota + 1
	TextNode
)

// Attribute is a single name/value pair.
type Attribute struct {
	Name  string
	Value string
}

// Node is an element or a text node.
type Node struct {
	doc       *Document
	id        NodeID
	kind      Kind
	tag       string
	data      string
	attrs     []Attribute
	parent    *Node
	children  []*Node
	listeners map[string][]*listener
}

// ID returns the node's identity.
func (n *Node) ID() NodeID { return n.id }

// Kind returns the node kind.
func (n *Node) Kind() Kind { return n.kind }

// IsElement reports whether n is an element.
func (n *Node) IsElement() bool { return n.kind == ElementNode }

// Tag returns the lower-case tag name, or "" for text nodes.
func (n *Node) Tag() string { return n.tag }

// Document returns the owning document.
func (n *Node) Document() *Document { return n.doc }

// Parent returns the parent node or nil.
func (n *Node) Parent() *Node { return n.parent }

// ParentElement returns the parent when it is an element.
func (n *Node) ParentElement() *Node {
	if n.parent != nil && n.parent.IsElement() {
		return n.parent
	}
	return nil
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// ElementChildren returns the element children in document order.
func (n *Node) ElementChildren() []*Node {
	var out []*Node
	for _, c := range n.children {
		if c.IsElement() {
			out = append(out, c)
		}
	}
	return out
}

// Connected reports whether n is attached to its document's root.
func (n *Node) Connected() bool {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return n.doc != nil && cur == n.doc.root
}

// Contains reports whether other is n or one of its descendants.
func (n *Node) Contains(other *Node) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// HasAttr reports whether the named attribute is present.
func (n *Node) HasAttr(name string) bool {
	_, ok := n.Attr(name)
	return ok
}

// Attributes returns a copy of the attributes in declaration order.
func (n *Node) Attributes() []Attribute {
	out := make([]Attribute, len(n.attrs))
	copy(out, n.attrs)
	return out
}

// SetAttribute adds or replaces an attribute.
func (n *Node) SetAttribute(name, value string) {
	name = strings.ToLower(name)
	old, had := n.Attr(name)
	if had {
		for i := range n.attrs {
			if n.attrs[i].Name == name {
				n.attrs[i].Value = value
			}
		}
	} else {
		n.attrs = append(n.attrs, Attribute{Name: name, Value: value})
	}
	n.doc.record(MutationRecord{Kind: AttributeChanged, Target: n, Name: name, OldValue: old, HadOldValue: had})
}

// RemoveAttribute deletes an attribute if present.
func (n *Node) RemoveAttribute(name string) {
	name = strings.ToLower(name)
	for i, a := range n.attrs {
		if a.Name == name {
			n.attrs = append(n.attrs[:i], n.attrs[i+1:]...)
			n.doc.record(MutationRecord{Kind: AttributeChanged, Target: n, Name: name, OldValue: a.Value, HadOldValue: true})
			return
		}
	}
}

// AppendChild moves c to the end of n's children.
func (n *Node) AppendChild(c *Node) {
	n.InsertBefore(c, nil)
}

// InsertBefore inserts c before ref, or appends it when ref is nil.
func (n *Node) InsertBefore(c, ref *Node) {
	if n.kind != ElementNode {
		panic("tree: text nodes cannot have children")
	}
	if c.Contains(n) {
		panic("tree: cannot insert a node into its own subtree")
	}
	if c.parent != nil {
		c.parent.RemoveChild(c)
	}
	idx := len(n.children)
	if ref != nil {
		idx = n.indexOf(ref)
		if idx < 0 {
			panic("tree: reference node is not a child")
		}
	}
	n.children = append(n.children, nil)
	copy(n.children[idx+1:], n.children[idx:])
	n.children[idx] = c
	c.parent = n
	n.doc.record(MutationRecord{Kind: NodeAdded, Target: n, Node: c})
}

// RemoveChild detaches c from n. It reports false when c is not a child.
func (n *Node) RemoveChild(c *Node) bool {
	idx := n.indexOf(c)
	if idx < 0 {
		return false
	}
	connected := n.Connected()
	n.children = append(n.children[:idx], n.children[idx+1:]...)
	c.parent = nil
	n.doc.recordRemoval(MutationRecord{Kind: NodeRemoved, Target: n, Node: c}, connected)
	return true
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	if n.parent != nil {
		n.parent.RemoveChild(n)
	}
}

func (n *Node) indexOf(c *Node) int {
	for i, child := range n.children {
		if child == c {
			return i
		}
	}
	return -1
}

// Data returns a text node's content.
func (n *Node) Data() string { return n.data }

// SetData replaces a text node's content.
func (n *Node) SetData(s string) {
	if n.kind != TextNode {
		panic("tree: SetData on an element")
	}
	old := n.data
	n.data = s
	n.doc.record(MutationRecord{Kind: TextChanged, Target: n, OldValue: old, HadOldValue: true})
}

// TextContent concatenates the text of all descendant text nodes.
func (n *Node) TextContent() string {
	if n.kind == TextNode {
		return n.data
	}
	var b strings.Builder
	for _, c := range n.children {
		b.WriteString(c.TextContent())
	}
	return b.String()
}

// SetTextContent replaces all children with a single text node.
func (n *Node) SetTextContent(s string) {
	if n.kind == TextNode {
		n.SetData(s)
		return
	}
	for len(n.children) > 0 {
		n.RemoveChild(n.children[len(n.children)-1])
	}
	if s != "" {
		n.AppendChild(n.doc.CreateText(s))
	}
}

// Path renders a short, human-readable location used in diagnostics.
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.parent {
		if cur.kind == TextNode {
			parts = append(parts, "#text")
			continue
		}
		part := cur.tag
		if id, ok := cur.Attr("id"); ok && id != "" {
			part += "#" + id
		} else if cur.parent != nil {
			part += fmt.Sprintf("[%d]", cur.parent.indexOf(cur))
		}
		parts = append(parts, part)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ">")
}

// String implements fmt.Stringer.
func (n *Node) String() string { return n.Path() }
