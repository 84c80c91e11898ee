// Package bindctx defines the binding context: the immutable mapping of
// exported names to values that a provider publishes to its descendants.
package bindctx

import (
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Context maps exported names to values. A published Context is never
// modified; Merge always returns a new one.
type Context map[string]any

// Merge returns a new context holding parent's entries overlaid with own's.
// Own keys win on collision.
func Merge(parent, own Context) Context {
	out := make(Context, len(parent)+len(own))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range own {
		out[k] = v
	}
	return out
}

// Keys returns the sorted key set.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup resolves a dotted path such as "user.address.0.city". The first
// segment is looked up in c; further segments descend through Go maps and
// slices and through cty objects, maps, lists and tuples. A nil value counts
// as absent.
func (c Context) Lookup(path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	cur, ok := c[segments[0]]
	if !ok || cur == nil {
		return nil, false
	}
	for _, seg := range segments[1:] {
		cur, ok = descend(cur, seg)
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func descend(v any, seg string) (any, bool) {
	switch t := v.(type) {
	case Context:
		next, ok := t[seg]
		return next, ok
	case map[string]any:
		next, ok := t[seg]
		return next, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(t) {
			return nil, false
		}
		return t[i], true
	case cty.Value:
		return descendCty(t, seg)
	default:
		return nil, false
	}
}

func descendCty(v cty.Value, seg string) (any, bool) {
	if v.IsNull() || !v.IsKnown() {
		return nil, false
	}
	ty := v.Type()
	switch {
	case ty.IsObjectType():
		if !ty.HasAttribute(seg) {
			return nil, false
		}
		return v.GetAttr(seg), true
	case ty.IsMapType():
		key := cty.StringVal(seg)
		if !v.HasIndex(key).True() {
			return nil, false
		}
		return v.Index(key), true
	case ty.IsListType() || ty.IsTupleType():
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 {
			return nil, false
		}
		idx := cty.NumberVal(new(big.Float).SetInt64(int64(i)))
		if !v.HasIndex(idx).True() {
			return nil, false
		}
		return v.Index(idx), true
	default:
		return nil, false
	}
}
