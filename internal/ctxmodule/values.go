package ctxmodule

import (
	"reflect"
	"sort"

	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/reactive"
	"github.com/specialistvlad/livebind/internal/tree"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Functions returns the functions available to context declarations.
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"abs":        stdlib.AbsoluteFunc,
		"ceil":       stdlib.CeilFunc,
		"coalesce":   stdlib.CoalesceFunc,
		"concat":     stdlib.ConcatFunc,
		"contains":   stdlib.ContainsFunc,
		"distinct":   stdlib.DistinctFunc,
		"element":    stdlib.ElementFunc,
		"flatten":    stdlib.FlattenFunc,
		"floor":      stdlib.FloorFunc,
		"format":     stdlib.FormatFunc,
		"formatdate": stdlib.FormatDateFunc,
		"join":       stdlib.JoinFunc,
		"jsondecode": stdlib.JSONDecodeFunc,
		"jsonencode": stdlib.JSONEncodeFunc,
		"keys":       stdlib.KeysFunc,
		"length":     stdlib.LengthFunc,
		"lookup":     stdlib.LookupFunc,
		"lower":      stdlib.LowerFunc,
		"max":        stdlib.MaxFunc,
		"merge":      stdlib.MergeFunc,
		"min":        stdlib.MinFunc,
		"range":      stdlib.RangeFunc,
		"replace":    stdlib.ReplaceFunc,
		"reverse":    stdlib.ReverseListFunc,
		"sort":       stdlib.SortFunc,
		"split":      stdlib.SplitFunc,
		"strlen":     stdlib.StrlenFunc,
		"substr":     stdlib.SubstrFunc,
		"title":      stdlib.TitleFunc,
		"tonumber":   stdlib.MakeToFunc(cty.Number),
		"tostring":   stdlib.MakeToFunc(cty.String),
		"trimspace":  stdlib.TrimSpaceFunc,
		"upper":      stdlib.UpperFunc,
		"values":     stdlib.ValuesFunc,
	}
}

// ToCty converts a context value for use in an HCL expression. Signals are
// read with Get, so a running computation subscribes to them. Values with no
// cty form (functions, handlers) become null.
func ToCty(v any) cty.Value {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case cty.Value:
		return x
	case reactive.Signal:
		return ToCty(x.Get())
	case *tree.Node:
		return nodeObject(x)
	case string:
		return cty.StringVal(x)
	case bool:
		return cty.BoolVal(x)
	case int:
		return cty.NumberIntVal(int64(x))
	case int64:
		return cty.NumberIntVal(x)
	case float64:
		return cty.NumberFloatVal(x)
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, len(x))
		for i, e := range x {
			elems[i] = ToCty(e)
		}
		return cty.TupleVal(elems)
	case bindctx.Context:
		return objectOf(x)
	case map[string]any:
		return objectOf(x)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Func {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	cv, err := gocty.ToCtyValue(v, ty)
	if err != nil {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	return cv
}

func objectOf[M ~map[string]any](m M) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}
	attrs := make(map[string]cty.Value, len(m))
	for k, v := range m {
		attrs[k] = ToCty(v)
	}
	return cty.ObjectVal(attrs)
}

// nodeObject describes a node to expressions: event.target, refs and
// collection members all look like this.
func nodeObject(n *tree.Node) cty.Value {
	if n == nil {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	id, _ := n.Attr("id")
	return cty.ObjectVal(map[string]cty.Value{
		"tag":  cty.StringVal(n.Tag()),
		"id":   cty.StringVal(id),
		"path": cty.StringVal(n.Path()),
		"text": cty.StringVal(n.TextContent()),
	})
}

func eventObject(ev tree.Event) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"type":   cty.StringVal(ev.Type),
		"target": nodeObject(ev.Target),
		"detail": ToCty(ev.Detail),
	})
}

// exportsOf turns a native module's result into exports: a context as is, a
// struct with `cty` tags attribute by attribute.
func exportsOf(out any) (bindctx.Context, error) {
	switch x := out.(type) {
	case nil:
		return bindctx.Context{}, nil
	case bindctx.Context:
		return x, nil
	case map[string]any:
		return bindctx.Context(x), nil
	}
	rv := reflect.Indirect(reflect.ValueOf(out))
	ty, err := gocty.ImpliedType(rv.Interface())
	if err != nil {
		return nil, err
	}
	cv, err := gocty.ToCtyValue(rv.Interface(), ty)
	if err != nil {
		return nil, err
	}
	exports := bindctx.Context{}
	if !ty.IsObjectType() {
		return exports, nil
	}
	names := make([]string, 0, len(ty.AttributeTypes()))
	for name := range ty.AttributeTypes() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		exports[name] = cv.GetAttr(name)
	}
	return exports, nil
}
