package directive

import (
	"fmt"
	"sort"

	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/reactive"
	"github.com/specialistvlad/livebind/internal/tree"
)

// Parser turns a raw attribute value into the value handed to a Callback.
type Parser func(raw string, c bindctx.Context) (any, error)

// Env carries what a callback may use besides the node and its value.
type Env struct {
	Runtime *reactive.Runtime
}

// Callback installs a directive's behaviour. It runs inside a reactive root;
// everything it creates must be released when that root is disposed.
type Callback func(env *Env, node *tree.Node, value any) error

// Spec is one directive table entry.
type Spec struct {
	Name     string
	Parser   Parser
	Callback Callback
}

// Registry is the directive table. It is built once and read-only afterwards.
type Registry struct {
	specs map[string]*Spec
	names []string
}

// NewRegistry returns a registry holding the built-in directives.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]*Spec)}
	r.register(&Spec{Name: "bind-text", Parser: ScalarParser, Callback: Text})
	r.register(&Spec{Name: "bind-attr", Parser: MapParser, Callback: Attr})
	r.register(&Spec{Name: "bind-style", Parser: MapParser, Callback: Style})
	r.register(&Spec{Name: "bind-on", Parser: MapParser, Callback: On})
	r.register(&Spec{Name: "bind-ref", Parser: VectorParser, Callback: Ref})
	r.register(&Spec{Name: "bind-multiref", Parser: VectorParser, Callback: Multiref})
	return r
}

func (r *Registry) register(spec *Spec) {
	if _, exists := r.specs[spec.Name]; exists {
		panic(fmt.Sprintf("directive with name '%s' already registered", spec.Name))
	}
	r.specs[spec.Name] = spec
	r.names = append(r.names, spec.Name)
	sort.Strings(r.names)
}

// Lookup returns the directive registered under name.
func (r *Registry) Lookup(name string) (*Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// Has reports whether name is a directive attribute.
func (r *Registry) Has(name string) bool {
	_, ok := r.specs[name]
	return ok
}

// Names returns the sorted directive attribute names.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
