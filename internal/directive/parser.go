package directive

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/diag"
)

// Entry is one key/value pair produced by MapParser.
type Entry struct {
	Key   string
	Value any
}

// Entries keeps map-directive clauses in declaration order.
type Entries []Entry

// unresolved collects missing keys so an attribute yields a single error.
type unresolved []string

func (u unresolved) err() error {
	if len(u) == 0 {
		return nil
	}
	quoted := make([]string, len(u))
	for i, k := range u {
		quoted[i] = fmt.Sprintf("%q", k)
	}
	return fmt.Errorf("%w: %s not found in context", diag.ErrUnresolvedReference, strings.Join(quoted, ", "))
}

// ScalarParser resolves raw as one dotted-path key.
func ScalarParser(raw string, c bindctx.Context) (any, error) {
	key := strings.TrimSpace(raw)
	v, ok := c.Lookup(key)
	if !ok {
		return nil, unresolved{key}.err()
	}
	return v, nil
}

// VectorParser resolves each whitespace-separated token.
func VectorParser(raw string, c bindctx.Context) (any, error) {
	keys := strings.Fields(raw)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: empty reference list", diag.ErrMalformedDirectiveValue)
	}
	var missing unresolved
	values := make([]any, 0, len(keys))
	for _, key := range keys {
		v, ok := c.Lookup(key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		values = append(values, v)
	}
	if err := missing.err(); err != nil {
		return nil, err
	}
	return values, nil
}

// MapParser parses "k1:v1;k2:v2". Every clause, including one left empty by
// a trailing ';', needs exactly one ':' and a non-empty key and value. Syntax is
// checked before any lookup, so a malformed clause always wins over an
// unresolved one.
func MapParser(raw string, c bindctx.Context) (any, error) {
	type clause struct{ key, ref string }
	var clauses []clause
	for _, part := range strings.Split(raw, ";") {
		fields := strings.Split(part, ":")
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: clause %q must contain exactly one ':'", diag.ErrMalformedDirectiveValue, part)
		}
		key, ref := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
		if key == "" || ref == "" {
			return nil, fmt.Errorf("%w: clause %q has an empty key or value", diag.ErrMalformedDirectiveValue, part)
		}
		clauses = append(clauses, clause{key: key, ref: ref})
	}

	var missing unresolved
	entries := make(Entries, 0, len(clauses))
	for _, cl := range clauses {
		v, ok := c.Lookup(cl.ref)
		if !ok {
			missing = append(missing, cl.ref)
			continue
		}
		entries = append(entries, Entry{Key: cl.key, Value: v})
	}
	if err := missing.err(); err != nil {
		return nil, err
	}
	return entries, nil
}
