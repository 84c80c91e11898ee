// Package ctxmodule compiles and instantiates context scripts.
//
// A script without a kind is a list of HCL declarations:
//
//	import "theme" { source = "./theme.hcl" }
//
//	title = "Inbox (${length(messages)})"
//
//	cell "count" { initial = 0 }
//	computed "label" { value = "clicked ${count} times" }
//	handler "increment" {
//	  set = { count = count + 1 }
//	  log = "increment from ${event.target.path}"
//	}
//	ref "input" {}
//	collection "rows" {}
//
// Names from the enclosing provider are in scope, and a declaration that
// refers to its own name sees the inherited value. A script whose kind names
// a native module has its body decoded into that module's input; a kind naming
// a declaration library has the library merged in front of the script.
//
// Parsing and imports run on the worker pool. Everything that touches the
// reactive runtime runs on the queue.
package ctxmodule

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/livebind/internal/async"
	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/diag"
	"github.com/specialistvlad/livebind/internal/provider"
	"github.com/specialistvlad/livebind/internal/reactive"
	"github.com/specialistvlad/livebind/internal/registry"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// DefaultKind is the script kind for plain declarations.
const DefaultKind = "hcl"

// Options configures a Loader. Queue, Pool and Runtime are required.
type Options struct {
	Queue    *async.Queue
	Pool     *async.Pool
	Runtime  *reactive.Runtime
	Registry *registry.Registry
	Fetcher  Fetcher
}

// Loader implements provider.Loader for context scripts.
type Loader struct {
	queue     *async.Queue
	pool      *async.Pool
	rt        *reactive.Runtime
	registry  *registry.Registry
	fetcher   Fetcher
	functions map[string]function.Function
}

var _ provider.Loader = (*Loader)(nil)

// New creates a Loader.
func New(opts Options) *Loader {
	if opts.Registry == nil {
		opts.Registry = registry.New()
	}
	if opts.Fetcher == nil {
		opts.Fetcher = DefaultFetcher{}
	}
	return &Loader{
		queue:     opts.Queue,
		pool:      opts.Pool,
		rt:        opts.Runtime,
		registry:  opts.Registry,
		fetcher:   opts.Fetcher,
		functions: Functions(),
	}
}

// Instance is the handle of a loaded module.
type Instance struct {
	Kind string
	// Names lists the exports in evaluation order.
	Names []string
}

// program is a compiled script, ready to instantiate.
type program struct {
	kind    string
	decls   []*declaration
	imports map[string]cty.Value

	native *registry.RegisteredModule
	body   hcl.Body
}

// Load compiles src on the pool and instantiates it under parent on the queue.
func (l *Loader) Load(ctx context.Context, src provider.Source, parent *provider.State) *async.Future[*provider.Module] {
	compiled := async.Go(l.pool, l.queue, func() (*program, error) {
		p, err := l.compile(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", diag.ErrModuleLoadFailure, src.Origin, err)
		}
		return p, nil
	})
	return async.Map(compiled, func(p *program) (*provider.Module, error) {
		m, err := l.instantiate(ctx, p, parent)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", diag.ErrModuleLoadFailure, src.Origin, err)
		}
		return m, nil
	})
}

func (l *Loader) compile(ctx context.Context, src provider.Source) (*program, error) {
	kind := src.Kind
	if kind == "" {
		kind = DefaultKind
	}
	filename := src.Origin
	if filename == "" {
		filename = "context"
	}
	file, diags := hclsyntax.ParseConfig([]byte(src.Text), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}

	if kind == DefaultKind {
		return l.compileDeclarations(ctx, kind, src, []*hcl.File{file}, []string{filename})
	}
	if lib, ok := l.registry.Library(kind); ok {
		libFile, diags := hclsyntax.ParseConfig(lib.Source, lib.Filename, hcl.InitialPos)
		if diags.HasErrors() {
			return nil, diags
		}
		return l.compileDeclarations(ctx, kind, src, []*hcl.File{libFile, file}, []string{lib.Filename, filename})
	}
	if mod, ok := l.registry.Lookup(kind); ok {
		return &program{kind: kind, native: mod, body: file.Body}, nil
	}
	return nil, fmt.Errorf("unknown context module kind %q", kind)
}

func (l *Loader) compileDeclarations(ctx context.Context, kind string, src provider.Source, files []*hcl.File, filenames []string) (*program, error) {
	body := files[0].Body
	if len(files) > 1 {
		body = hcl.MergeFiles(files)
	}
	decls, diags := parseDeclarations(body)
	if diags.HasErrors() {
		return nil, diags
	}
	known := make(map[string]struct{}, len(l.functions))
	for name := range l.functions {
		known[name] = struct{}{}
	}
	if diags := analyze(decls, known); diags.HasErrors() {
		return nil, diags
	}
	rank := make(map[string]int, len(filenames))
	for i, name := range filenames {
		rank[name] = i
	}
	ordered, err := order(decls, rank)
	if err != nil {
		return nil, err
	}

	p := &program{kind: kind, decls: ordered, imports: make(map[string]cty.Value)}
	for _, d := range ordered {
		if d.kind != declImport {
			continue
		}
		v, err := l.loadImport(ctx, src.BaseURL, d)
		if err != nil {
			return nil, err
		}
		p.imports[d.name] = v
	}
	ctxlog.FromContext(ctx).Debug("Compiled context script.", "origin", src.Origin, "kind", kind, "declarations", len(ordered))
	return p, nil
}

// instantiate evaluates p under parent inside a fresh reactive root whose
// disposal is the module's Dispose.
func (l *Loader) instantiate(ctx context.Context, p *program, parent *provider.State) (*provider.Module, error) {
	inherited := bindctx.Context{}
	if parent != nil && parent.Context != nil {
		inherited = parent.Context
	}

	var (
		exports bindctx.Context
		names   []string
		err     error
	)
	dispose := l.rt.Root(func(reactive.Disposer) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s module panicked: %v", p.kind, r)
			}
		}()
		if p.native != nil {
			exports, err = l.runNative(ctx, p, inherited)
			names = exports.Keys()
			return
		}
		exports, names, err = l.runDeclarations(ctx, p, inherited)
	})
	if err != nil {
		dispose()
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Instantiated context module.", "kind", p.kind, "exports", names)
	return &provider.Module{
		Exports: exports,
		Handle:  &Instance{Kind: p.kind, Names: names},
		Dispose: func() { dispose() },
	}, nil
}

func (l *Loader) runDeclarations(ctx context.Context, p *program, inherited bindctx.Context) (bindctx.Context, []string, error) {
	s := &scope{loader: l, inherited: inherited, local: make(map[string]any, len(p.decls))}
	names := make([]string, 0, len(p.decls))
	for _, d := range p.decls {
		v, err := s.declare(ctx, p, d)
		if err != nil {
			return nil, nil, fmt.Errorf("%s %q: %w", d.kind, d.name, err)
		}
		s.local[d.name] = v
		names = append(names, d.name)
	}
	exports := make(bindctx.Context, len(s.local))
	for k, v := range s.local {
		exports[k] = v
	}
	return exports, names, nil
}

func (l *Loader) runNative(ctx context.Context, p *program, inherited bindctx.Context) (bindctx.Context, error) {
	vars := make(map[string]cty.Value, len(inherited))
	for k, v := range inherited {
		vars[k] = ToCty(v)
	}
	input := p.native.NewInput()
	evalCtx := &hcl.EvalContext{Variables: vars, Functions: l.functions}
	if diags := gohcl.DecodeBody(p.body, evalCtx, input); diags.HasErrors() {
		return nil, diags
	}
	env := &registry.Env{Runtime: l.rt, Queue: l.queue, Parent: inherited}
	out, err := p.native.Fn(ctx, env, input)
	if err != nil {
		return nil, err
	}
	exports, err := exportsOf(out)
	if err != nil {
		return nil, fmt.Errorf("%s module returned unusable output: %w", p.kind, err)
	}
	return exports, nil
}

// scope resolves names for one module instance.
type scope struct {
	loader    *Loader
	inherited bindctx.Context
	local     map[string]any
}

func (s *scope) lookup(name, self string) (any, bool) {
	if name != self {
		if v, ok := s.local[name]; ok {
			return v, true
		}
	}
	v, ok := s.inherited[name]
	return v, ok
}

// eval evaluates expr with the given names in scope. Signals are read with
// Get, so a running computation subscribes to them.
func (s *scope) eval(expr hcl.Expression, names []string, self string, extra map[string]cty.Value) (cty.Value, error) {
	vars := make(map[string]cty.Value, len(names))
	for _, n := range names {
		if v, ok := extra[n]; ok {
			vars[n] = v
			continue
		}
		if raw, ok := s.lookup(n, self); ok {
			vars[n] = ToCty(raw)
		}
	}
	v, diags := expr.Value(&hcl.EvalContext{Variables: vars, Functions: s.loader.functions})
	if diags.HasErrors() {
		return cty.NilVal, diags
	}
	return v, nil
}

func (s *scope) declare(ctx context.Context, p *program, d *declaration) (any, error) {
	rt := s.loader.rt
	switch d.kind {
	case declImport:
		return p.imports[d.name], nil
	case declAttr:
		return s.eval(d.value, d.names, d.name, nil)
	case declCell:
		initial := cty.NullVal(cty.DynamicPseudoType)
		if d.value != nil {
			v, err := s.eval(d.value, d.names, d.name, nil)
			if err != nil {
				return nil, err
			}
			initial = v
		}
		return rt.NewCell(initial), nil
	case declComputed:
		return s.computed(ctx, d)
	case declHandler:
		return &Handler{name: d.name, ctx: ctx, scope: s, set: d.set, log: d.log, names: d.names}, nil
	case declRef:
		return rt.NewCell(nil), nil
	case declCollection:
		return rt.NewCell([]any{}), nil
	}
	return nil, fmt.Errorf("unsupported declaration")
}

// computed creates a memo over d.value. An error on the first evaluation
// fails the load; later errors are logged and yield null.
func (s *scope) computed(ctx context.Context, d *declaration) (*reactive.Memo, error) {
	var firstErr error
	first := true
	m := s.loader.rt.Memo(func() any {
		v, err := s.eval(d.value, d.names, d.name, nil)
		if err != nil {
			if first {
				firstErr = err
			} else {
				ctxlog.FromContext(ctx).Warn("Computed value failed to evaluate.", "name", d.name, "error", err)
			}
			return cty.NullVal(cty.DynamicPseudoType)
		}
		return v
	})
	first = false
	if firstErr != nil {
		return nil, firstErr
	}
	return m, nil
}

// IsLoadFailure reports whether err came from a failed Load.
func IsLoadFailure(err error) bool {
	return errors.Is(err, diag.ErrModuleLoadFailure)
}
