package directive

import (
	"fmt"
	"strconv"

	"github.com/specialistvlad/livebind/internal/diag"
	"github.com/specialistvlad/livebind/internal/reactive"
	"github.com/specialistvlad/livebind/internal/tree"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// EventHandler is an invocable value accepted by bind-on.
type EventHandler interface {
	HandleEvent(ev tree.Event)
}

// NodeFunc is a value computed from the bound node. It is followed like a signal.
type NodeFunc = func(*tree.Node) any

// follow calls apply with the settled form of v. Signals and node functions
// are unwrapped inside a computation owned by the current owner, so apply
// re-runs whenever they change; nested reactive values get nested computations.
func follow(env *Env, node *tree.Node, v any, apply func(any)) {
	switch src := v.(type) {
	case reactive.Signal:
		env.Runtime.Effect(func() {
			follow(env, node, src.Get(), apply)
		})
	case NodeFunc:
		env.Runtime.Effect(func() {
			follow(env, node, src(node), apply)
		})
	default:
		apply(v)
	}
}

// Text keeps the node's text content equal to the bound value.
func Text(env *Env, node *tree.Node, value any) error {
	follow(env, node, value, func(v any) {
		node.SetTextContent(Stringify(v))
	})
	return nil
}

// Attr sets one attribute per entry. true sets an empty value, false and null
// remove the attribute.
func Attr(env *Env, node *tree.Node, value any) error {
	entries, err := asEntries("bind-attr", value)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Key
		follow(env, node, e.Value, func(v any) {
			setAttr(node, name, v)
		})
	}
	return nil
}

func setAttr(node *tree.Node, name string, v any) {
	switch b, isBool := truthy(v); {
	case v == nil || isNull(v):
		node.RemoveAttribute(name)
	case isBool && b:
		node.SetAttribute(name, "")
	case isBool && !b:
		node.RemoveAttribute(name)
	default:
		node.SetAttribute(name, Stringify(v))
	}
}

// Style sets one inline style property per entry; null removes it.
func Style(env *Env, node *tree.Node, value any) error {
	entries, err := asEntries("bind-style", value)
	if err != nil {
		return err
	}
	for _, e := range entries {
		prop := e.Key
		follow(env, node, e.Value, func(v any) {
			if v == nil || isNull(v) {
				node.RemoveStyle(prop)
				return
			}
			node.SetStyle(prop, Stringify(v))
		})
	}
	return nil
}

// On adds one event listener per entry. Listeners are removed with the binding.
func On(env *Env, node *tree.Node, value any) error {
	entries, err := asEntries("bind-on", value)
	if err != nil {
		return err
	}
	for _, e := range entries {
		typ := e.Key
		if _, reactiveValue := e.Value.(reactive.Signal); reactiveValue {
			// A signal may hold nothing invocable yet; listen only while it does.
			follow(env, node, e.Value, func(v any) {
				if l, ok := listener(v); ok {
					env.Runtime.OnCleanup(node.AddEventListener(typ, l))
				}
			})
			continue
		}
		l, ok := listener(e.Value)
		if !ok {
			return fmt.Errorf("%w: bind-on %q: value of type %T is not invocable", diag.ErrBindFailure, typ, e.Value)
		}
		env.Runtime.OnCleanup(node.AddEventListener(typ, l))
	}
	return nil
}

func listener(v any) (tree.Listener, bool) {
	switch h := v.(type) {
	case EventHandler:
		return h.HandleEvent, true
	case tree.Listener:
		return h, true
	case func(tree.Event):
		return h, true
	case func():
		return func(tree.Event) { h() }, true
	default:
		return nil, false
	}
}

// Ref hands the node to every target on bind and clears it on unbind.
func Ref(env *Env, node *tree.Node, value any) error {
	targets, err := asVector("bind-ref", value)
	if err != nil {
		return err
	}
	for i, target := range targets {
		switch t := target.(type) {
		case reactive.Writable:
			t.Set(node)
			env.Runtime.OnCleanup(func() {
				if current, ok := t.Peek().(*tree.Node); ok && current == node {
					t.Set(nil)
				}
			})
		case func(*tree.Node):
			t(node)
			env.Runtime.OnCleanup(func() { t(nil) })
		default:
			return fmt.Errorf("%w: bind-ref target %d: value of type %T cannot hold a node", diag.ErrBindFailure, i, target)
		}
	}
	return nil
}

// Multiref appends the node to every target collection on bind and removes it
// on unbind. Targets must be writable and hold a list.
func Multiref(env *Env, node *tree.Node, value any) error {
	targets, err := asVector("bind-multiref", value)
	if err != nil {
		return err
	}
	writables := make([]reactive.Writable, 0, len(targets))
	for i, target := range targets {
		w, ok := target.(reactive.Writable)
		if !ok {
			return fmt.Errorf("%w: bind-multiref target %d: value of type %T is not a writable collection", diag.ErrBindFailure, i, target)
		}
		if _, ok := asList(w.Peek()); !ok {
			return fmt.Errorf("%w: bind-multiref target %d holds %T, not a list", diag.ErrBindFailure, i, w.Peek())
		}
		writables = append(writables, w)
	}
	for _, w := range writables {
		items, _ := asList(w.Peek())
		w.Set(append(append([]any(nil), items...), node))
		env.Runtime.OnCleanup(func() {
			items, _ := asList(w.Peek())
			kept := make([]any, 0, len(items))
			for _, it := range items {
				if n, ok := it.(*tree.Node); ok && n == node {
					continue
				}
				kept = append(kept, it)
			}
			w.Set(kept)
		})
	}
	return nil
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case nil:
		return nil, true
	case []any:
		return l, true
	default:
		return nil, false
	}
}

func asEntries(name string, value any) (Entries, error) {
	entries, ok := value.(Entries)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects key/value entries, got %T", diag.ErrBindFailure, name, value)
	}
	return entries, nil
}

func asVector(name string, value any) ([]any, error) {
	values, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a reference list, got %T", diag.ErrBindFailure, name, value)
	}
	return values, nil
}

func truthy(v any) (value, isBool bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case cty.Value:
		if b.IsKnown() && !b.IsNull() && b.Type() == cty.Bool {
			return b.True(), true
		}
	}
	return false, false
}

func isNull(v any) bool {
	cv, ok := v.(cty.Value)
	return ok && (cv.IsNull() || !cv.IsKnown())
}

// Stringify renders a bound value as text. Null renders as the empty string,
// cty primitives through their string conversion and cty collections as JSON.
func Stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case cty.Value:
		return stringifyCty(s)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

func stringifyCty(v cty.Value) string {
	if v.IsNull() || !v.IsKnown() {
		return ""
	}
	if v.Type().IsPrimitiveType() {
		if sv, err := convert.Convert(v, cty.String); err == nil {
			return sv.AsString()
		}
	}
	buf, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return v.GoString()
	}
	return string(buf)
}
