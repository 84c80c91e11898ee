package registry

import (
	"sort"
)

// Module is the interface that all native modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the native modules and declaration libraries of a single
// application instance.
type Registry struct {
	ModuleRegistry  map[string]*RegisteredModule
	LibraryRegistry map[string]*Library
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		ModuleRegistry:  make(map[string]*RegisteredModule),
		LibraryRegistry: make(map[string]*Library),
	}
}

// Lookup returns the native module registered under name.
func (r *Registry) Lookup(name string) (*RegisteredModule, bool) {
	m, ok := r.ModuleRegistry[name]
	return m, ok
}

// Library returns the declaration library registered under name.
func (r *Registry) Library(name string) (*Library, bool) {
	l, ok := r.LibraryRegistry[name]
	return l, ok
}

// Names returns every registered module and library name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ModuleRegistry)+len(r.LibraryRegistry))
	for name := range r.ModuleRegistry {
		names = append(names, name)
	}
	for name := range r.LibraryRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) taken(name string) bool {
	_, isModule := r.ModuleRegistry[name]
	_, isLibrary := r.LibraryRegistry[name]
	return isModule || isLibrary
}
