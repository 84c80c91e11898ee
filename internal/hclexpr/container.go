// Package hclexpr collects HCL expressions and reports what they reference.
// The context declaration loader uses it to order declarations by their
// dependencies and to reject calls to unknown functions before evaluation.
package hclexpr

import (
	"sync"

	"github.com/hashicorp/hcl/v2"
)

// Container is a thread-safe helper that gathers HCL expressions and provides
// analysis results, such as variable references and function calls.
type Container struct {
	analyzeOnce sync.Once

	mu          sync.RWMutex
	expressions []hcl.Expression

	references      []hcl.Traversal
	calledFunctions []string
}

// NewContainer creates a container holding exprs.
func NewContainer(exprs ...hcl.Expression) *Container {
	c := &Container{}
	c.Add(exprs...)
	return c
}

// Add adds expressions for analysis, ignoring nil ones. Adding resets any
// cached analysis; it must not race with the getters.
func (c *Container) Add(exprs ...hcl.Expression) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.analyzeOnce = sync.Once{}
	for _, expr := range exprs {
		if expr != nil {
			c.expressions = append(c.expressions, expr)
		}
	}
}

func (c *Container) analyze() {
	c.analyzeOnce.Do(func() {
		c.mu.RLock()
		refs, funcs := extractReferencesAndFunctions(c.expressions...)
		c.mu.RUnlock()

		c.mu.Lock()
		c.references = refs
		c.calledFunctions = funcs
		c.mu.Unlock()
	})
}

// References returns all unique variable traversals, sorted by key.
func (c *Container) References() []hcl.Traversal {
	c.analyze()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.references
}

// RootNames returns the unique, sorted root variable names referenced.
func (c *Container) RootNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, t := range c.References() {
		name := t.RootName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// CalledFunctions returns all unique function names called, sorted.
func (c *Container) CalledFunctions() []string {
	c.analyze()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calledFunctions
}
