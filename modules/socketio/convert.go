package socketio

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// toInterface converts an event detail into a JSON-friendly Go value for
// emitting. Non-cty values are passed through.
func toInterface(v any) (any, error) {
	val, ok := v.(cty.Value)
	if !ok {
		return v, nil
	}
	return ctyValueToInterface(val)
}

func ctyValueToInterface(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			elem, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = elem
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			elem, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}

// toCty converts a decoded socket.io payload.
func toCty(data any) (cty.Value, error) {
	switch v := data.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(v), nil
	case float64:
		return cty.NumberFloatVal(v), nil
	case int:
		return cty.NumberIntVal(int64(v)), nil
	case int64:
		return cty.NumberIntVal(v), nil
	case bool:
		return cty.BoolVal(v), nil
	case map[string]any:
		if len(v) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(v))
		for key, val := range v {
			elem, err := toCty(val)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[key] = elem
		}
		return cty.ObjectVal(attrs), nil
	case []any:
		if len(v) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, 0, len(v))
		for _, val := range v {
			elem, err := toCty(val)
			if err != nil {
				return cty.NilVal, err
			}
			elems = append(elems, elem)
		}
		return cty.TupleVal(elems), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported type for conversion to cty.Value: %T", v)
	}
}
