package tree

import (
	"net/url"
	"strings"
)

// Document owns a tree rooted at a <body> element and hands out node IDs.
type Document struct {
	root      *Node
	baseURL   *url.URL
	nextID    NodeID
	observers []*Observer
}

// NewDocument creates a document with an empty <body> root. base is the
// location relative references in the document are resolved against; it may
// be nil.
func NewDocument(base *url.URL) *Document {
	d := &Document{baseURL: base}
	d.root = d.CreateElement("body")
	return d
}

// Root returns the <body> element.
func (d *Document) Root() *Node { return d.root }

// BaseURL returns the document location, or nil when unknown.
func (d *Document) BaseURL() *url.URL { return d.baseURL }

// CreateElement creates a detached element.
func (d *Document) CreateElement(tag string) *Node {
	d.nextID++
	return &Node{doc: d, id: d.nextID, kind: ElementNode, tag: strings.ToLower(tag)}
}

// CreateText creates a detached text node.
func (d *Document) CreateText(s string) *Node {
	d.nextID++
	return &Node{doc: d, id: d.nextID, kind: TextNode, data: s}
}

// ElementByID finds the first connected element whose id attribute matches.
func (d *Document) ElementByID(id string) *Node {
	var found *Node
	Walk(d.root, func(n *Node) bool {
		if found != nil {
			return false
		}
		if v, ok := n.Attr("id"); ok && v == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Walk visits n and its element descendants depth-first, left to right,
// without recursion. visit returns false to skip a node's children.
func Walk(n *Node, visit func(*Node) bool) {
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !cur.IsElement() || !visit(cur) {
			continue
		}
		for i := len(cur.children) - 1; i >= 0; i-- {
			stack = append(stack, cur.children[i])
		}
	}
}

// MutationKind classifies a MutationRecord.
type MutationKind int

const (
	NodeAdded MutationKind = iota + 1
	NodeRemoved
	AttributeChanged
	TextChanged
)

func (k MutationKind) String() string {
	switch k {
	case NodeAdded:
		return "added"
	case NodeRemoved:
		return "removed"
	case AttributeChanged:
		return "attribute-changed"
	case TextChanged:
		return "text-changed"
	default:
		return "unknown"
	}
}

// MutationRecord describes one change. For NodeAdded/NodeRemoved, Target is
// the parent and Node the child. For AttributeChanged, Name and OldValue are
// set. For TextChanged, Target is the text node.
type MutationRecord struct {
	Kind        MutationKind
	Target      *Node
	Node        *Node
	Name        string
	OldValue    string
	HadOldValue bool
}

// ObserveOptions filters what an Observer records.
type ObserveOptions struct {
	// AttributeFilter restricts attribute records to these names. Nil records all.
	AttributeFilter []string
}

// Observer accumulates mutation records for changes under the document root.
// Subtrees removed since the last TakeRecords stay observed until then, so
// changes made inside them after removal are still delivered.
type Observer struct {
	doc       *Document
	filter    map[string]struct{}
	records   []MutationRecord
	transient map[*Node]struct{}
	active    bool
}

// Observe starts recording mutations of connected nodes.
func (d *Document) Observe(opts ObserveOptions) *Observer {
	o := &Observer{doc: d, active: true}
	if opts.AttributeFilter != nil {
		o.filter = make(map[string]struct{}, len(opts.AttributeFilter))
		for _, name := range opts.AttributeFilter {
			o.filter[name] = struct{}{}
		}
	}
	d.observers = append(d.observers, o)
	return o
}

// TakeRecords returns and clears the pending records. Removed subtrees stop
// being observed.
func (o *Observer) TakeRecords() []MutationRecord {
	out := o.records
	o.records = nil
	o.transient = nil
	return out
}

// Pending reports the number of records not yet taken.
func (o *Observer) Pending() int { return len(o.records) }

// Disconnect stops recording and drops pending records.
func (o *Observer) Disconnect() {
	o.active = false
	o.records = nil
	o.transient = nil
	for i, other := range o.doc.observers {
		if other == o {
			o.doc.observers = append(o.doc.observers[:i], o.doc.observers[i+1:]...)
			break
		}
	}
}

func (d *Document) record(rec MutationRecord) {
	connected := rec.Target.Connected()
	for _, o := range d.observers {
		if connected || o.watches(rec.Target) {
			o.add(rec)
		}
	}
}

// recordRemoval records rec.Node leaving rec.Target. targetConnected is
// sampled before the node was detached.
func (d *Document) recordRemoval(rec MutationRecord, targetConnected bool) {
	for _, o := range d.observers {
		if !targetConnected && !o.watches(rec.Target) {
			continue
		}
		if o.add(rec) {
			if o.transient == nil {
				o.transient = make(map[*Node]struct{})
			}
			o.transient[rec.Node] = struct{}{}
		}
	}
}

// watches reports whether n lies in a subtree removed since the last
// TakeRecords.
func (o *Observer) watches(n *Node) bool {
	if len(o.transient) == 0 {
		return false
	}
	for cur := n; cur != nil; cur = cur.parent {
		if _, ok := o.transient[cur]; ok {
			return true
		}
	}
	return false
}

func (o *Observer) add(rec MutationRecord) bool {
	if !o.active {
		return false
	}
	if rec.Kind == AttributeChanged && o.filter != nil {
		if _, ok := o.filter[rec.Name]; !ok {
			return false
		}
	}
	o.records = append(o.records, rec)
	return true
}
