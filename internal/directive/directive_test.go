package directive

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/diag"
	"github.com/specialistvlad/livebind/internal/reactive"
	"github.com/specialistvlad/livebind/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func newNode(t *testing.T) *tree.Node {
	t.Helper()
	doc := tree.NewDocument(nil)
	n := doc.CreateElement("div")
	doc.Root().AppendChild(n)
	return n
}

// bind runs cb inside a fresh root, the way the dispatcher does.
func bind(t *testing.T, rt *reactive.Runtime, cb Callback, node *tree.Node, value any) reactive.Disposer {
	t.Helper()
	var err error
	dispose := rt.Root(func(reactive.Disposer) {
		err = cb(&Env{Runtime: rt}, node, value)
	})
	require.NoError(t, err)
	return dispose
}

func TestRegistry_Builtins(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"bind-attr", "bind-multiref", "bind-on", "bind-ref", "bind-style", "bind-text"}, r.Names())
	assert.True(t, r.Has("bind-text"))
	assert.False(t, r.Has("bind-unknown"))

	spec, ok := r.Lookup("bind-on")
	require.True(t, ok)
	assert.Equal(t, "bind-on", spec.Name)

	assert.Panics(t, func() { r.register(&Spec{Name: "bind-text"}) })
}

func TestMapParser_RoundTrip(t *testing.T) {
	c := bindctx.Context{"foo": 1, "bar": 2}

	got, err := MapParser("x:foo;y:bar", c)
	require.NoError(t, err)
	want := Entries{{Key: "x", Value: 1}, {Key: "y", Value: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	got, err = MapParser(" x : foo ; ", c)
	require.NoError(t, err)
	assert.Equal(t, Entries{{Key: "x", Value: 1}}, got)
}

func TestMapParser_Errors(t *testing.T) {
	c := bindctx.Context{"foo": 1}
	cases := []struct {
		raw  string
		want error
	}{
		{"x:foo:bar", diag.ErrMalformedDirectiveValue},
		{"xfoo", diag.ErrMalformedDirectiveValue},
		{":foo", diag.ErrMalformedDirectiveValue},
		{"x:", diag.ErrMalformedDirectiveValue},
		{"x:foo;;y:foo", diag.ErrMalformedDirectiveValue},
		{"x:foo;", diag.ErrMalformedDirectiveValue},
		{"", diag.ErrMalformedDirectiveValue},
		{"x:nope;y:missing", diag.ErrUnresolvedReference},
		{"x:nope;y:a:b", diag.ErrMalformedDirectiveValue},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			_, err := MapParser(tc.raw, c)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := MapParser("x:nope;y:missing", c)
	assert.Contains(t, err.Error(), `"nope", "missing"`)
}

func TestScalarAndVectorParsers(t *testing.T) {
	c := bindctx.Context{
		"user": map[string]any{"name": "ada"},
		"a":    1,
		"b":    2,
	}

	v, err := ScalarParser(" user.name ", c)
	require.NoError(t, err)
	assert.Equal(t, "ada", v)

	_, err = ScalarParser("user.age", c)
	assert.ErrorIs(t, err, diag.ErrUnresolvedReference)

	vs, err := VectorParser("a  b", c)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, vs)

	_, err = VectorParser("a c d", c)
	require.ErrorIs(t, err, diag.ErrUnresolvedReference)
	assert.Contains(t, err.Error(), `"c", "d"`)

	_, err = VectorParser("   ", c)
	assert.ErrorIs(t, err, diag.ErrMalformedDirectiveValue)
}

func TestText_FollowsSignals(t *testing.T) {
	rt := reactive.NewRuntime()
	node := newNode(t)
	name := rt.NewCell("ada")
	greeting := func(*tree.Node) any { return "hi " + name.Get().(string) }

	dispose := bind(t, rt, Text, node, NodeFunc(greeting))
	assert.Equal(t, "hi ada", node.TextContent())

	name.Set("bob")
	assert.Equal(t, "hi bob", node.TextContent())

	dispose()
	name.Set("eve")
	assert.Equal(t, "hi bob", node.TextContent(), "disposed binding must stop writing")
	assert.Zero(t, name.Observers())
}

func TestText_NestedSignal(t *testing.T) {
	rt := reactive.NewRuntime()
	node := newNode(t)
	inner := rt.NewCell(cty.NumberIntVal(1))
	outer := rt.NewCell(reactive.Signal(inner))

	bind(t, rt, Text, node, outer)
	assert.Equal(t, "1", node.TextContent())

	inner.Set(cty.NumberIntVal(2))
	assert.Equal(t, "2", node.TextContent())

	outer.Set("plain")
	assert.Equal(t, "plain", node.TextContent())
	assert.Zero(t, inner.Observers())
}

func TestAttr_BooleanSemantics(t *testing.T) {
	rt := reactive.NewRuntime()
	node := newNode(t)
	disabled := rt.NewCell(true)

	bind(t, rt, Attr, node, Entries{
		{Key: "disabled", Value: disabled},
		{Key: "title", Value: cty.StringVal("hello")},
		{Key: "hidden", Value: cty.False},
	})

	v, ok := node.Attr("disabled")
	assert.True(t, ok)
	assert.Equal(t, "", v)
	v, _ = node.Attr("title")
	assert.Equal(t, "hello", v)
	assert.False(t, node.HasAttr("hidden"))

	disabled.Set(false)
	assert.False(t, node.HasAttr("disabled"))
	disabled.Set(nil)
	assert.False(t, node.HasAttr("disabled"))
	disabled.Set(42)
	v, _ = node.Attr("disabled")
	assert.Equal(t, "42", v)
}

func TestStyle_SetAndRemove(t *testing.T) {
	rt := reactive.NewRuntime()
	node := newNode(t)
	color := rt.NewCell("red")

	bind(t, rt, Style, node, Entries{{Key: "color", Value: color}, {Key: "margin", Value: "0"}})
	v, _ := node.Style("color")
	assert.Equal(t, "red", v)

	color.Set(cty.NullVal(cty.String))
	_, ok := node.Style("color")
	assert.False(t, ok)
	v, _ = node.Style("margin")
	assert.Equal(t, "0", v)
}

type countingHandler struct{ calls int }

func (h *countingHandler) HandleEvent(tree.Event) { h.calls++ }

func TestOn_AddsAndRemovesListeners(t *testing.T) {
	rt := reactive.NewRuntime()
	node := newNode(t)
	h := &countingHandler{}
	plain := 0

	dispose := bind(t, rt, On, node, Entries{
		{Key: "click", Value: h},
		{Key: "input", Value: func() { plain++ }},
	})
	node.Dispatch("click", nil)
	node.Dispatch("input", nil)
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, 1, plain)

	dispose()
	assert.Zero(t, node.ListenerCount("click"))
	assert.Zero(t, node.ListenerCount("input"))
}

func TestOn_NotInvocable(t *testing.T) {
	rt := reactive.NewRuntime()
	node := newNode(t)

	var err error
	dispose := rt.Root(func(reactive.Disposer) {
		err = On(&Env{Runtime: rt}, node, Entries{
			{Key: "click", Value: func() {}},
			{Key: "input", Value: cty.StringVal("nope")},
		})
	})
	assert.ErrorIs(t, err, diag.ErrBindFailure)
	dispose()
	assert.Zero(t, node.ListenerCount("click"))
}

func TestRef_SetsAndClears(t *testing.T) {
	rt := reactive.NewRuntime()
	node := newNode(t)
	cell := rt.NewCell(nil)
	var seen *tree.Node

	dispose := bind(t, rt, Ref, node, []any{cell, func(n *tree.Node) { seen = n }})
	assert.Same(t, node, cell.Peek())
	assert.Same(t, node, seen)

	dispose()
	assert.Nil(t, cell.Peek())
	assert.Nil(t, seen)
}

func TestRef_KeepsNewerTarget(t *testing.T) {
	rt := reactive.NewRuntime()
	first, second := newNode(t), newNode(t)
	cell := rt.NewCell(nil)

	disposeFirst := bind(t, rt, Ref, first, []any{cell})
	bind(t, rt, Ref, second, []any{cell})
	disposeFirst()
	assert.Same(t, second, cell.Peek())
}

func TestMultiref_AppendsAndRemoves(t *testing.T) {
	rt := reactive.NewRuntime()
	a, b := newNode(t), newNode(t)
	items := rt.NewCell([]any{})

	disposeA := bind(t, rt, Multiref, a, []any{items})
	bind(t, rt, Multiref, b, []any{items})
	assert.Equal(t, []any{a, b}, items.Peek())

	disposeA()
	assert.Equal(t, []any{b}, items.Peek())
}

func TestMultiref_RejectsNonCollections(t *testing.T) {
	rt := reactive.NewRuntime()
	node := newNode(t)
	var err error
	rt.Root(func(reactive.Disposer) {
		err = Multiref(&Env{Runtime: rt}, node, []any{rt.NewCell("scalar")})
	})
	assert.True(t, errors.Is(err, diag.ErrBindFailure))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "3", Stringify(cty.NumberIntVal(3)))
	assert.Equal(t, "", Stringify(cty.NullVal(cty.String)))
	assert.Equal(t, `["a","b"]`, Stringify(cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")})))
	assert.Equal(t, "7", Stringify(7))
}
