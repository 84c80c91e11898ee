// Package lifecycle keeps directive bindings and context providers in step
// with a live tree. An initial pass initializes the whole document; afterwards
// every batch of mutation records disposes what was removed and re-initializes
// what was added or changed.
//
// All Engine methods must be called from the goroutine draining the engine's
// queue. Stats is the only exception.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/specialistvlad/livebind/internal/async"
	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/diag"
	"github.com/specialistvlad/livebind/internal/directive"
	"github.com/specialistvlad/livebind/internal/facetstore"
	"github.com/specialistvlad/livebind/internal/inmemorystore"
	"github.com/specialistvlad/livebind/internal/provider"
	"github.com/specialistvlad/livebind/internal/reactive"
	"github.com/specialistvlad/livebind/internal/tree"
)

// Options wires an Engine to its collaborators. Queue, Runtime and Loader are
// required; the rest have defaults.
type Options struct {
	Queue      *async.Queue
	Runtime    *reactive.Runtime
	Loader     provider.Loader
	Reporter   diag.Reporter
	Store      facetstore.Store
	Directives *directive.Registry
}

// Stats is a snapshot of the engine's state.
type Stats struct {
	facetstore.Stats
	// InFlight counts provider resolutions and deferred binds not yet settled.
	InFlight int64 `json:"in_flight"`
	Applied  int64 `json:"mutations_applied"`
}

// Engine is the lifecycle manager and directive dispatcher.
type Engine struct {
	ctx        context.Context
	doc        *tree.Document
	queue      *async.Queue
	rt         *reactive.Runtime
	resolver   *provider.Resolver
	reporter   diag.Reporter
	store      facetstore.Store
	directives *directive.Registry
	env        *directive.Env
	observer   *tree.Observer

	inflight atomic.Int64
	applied  atomic.Int64
	started  bool
	stopped  bool
}

// New creates an engine for doc. Nothing happens until Start.
func New(doc *tree.Document, opts Options) *Engine {
	if opts.Reporter == nil {
		opts.Reporter = diag.LogReporter{}
	}
	if opts.Store == nil {
		opts.Store = inmemorystore.New()
	}
	if opts.Directives == nil {
		opts.Directives = directive.NewRegistry()
	}
	return &Engine{
		doc:        doc,
		queue:      opts.Queue,
		rt:         opts.Runtime,
		resolver:   provider.NewResolver(opts.Queue, opts.Loader, opts.Reporter),
		reporter:   opts.Reporter,
		store:      opts.Store,
		directives: opts.Directives,
		env:        &directive.Env{Runtime: opts.Runtime},
	}
}

// Start observes the document and runs the initial pass from the root.
func (e *Engine) Start(ctx context.Context) {
	if e.started {
		return
	}
	e.started = true
	e.ctx = ctx
	filter := append(e.directives.Names(), provider.ContextAttr)
	e.observer = e.doc.Observe(tree.ObserveOptions{AttributeFilter: filter})

	ctxlog.FromContext(ctx).Debug("Starting initial pass.")
	e.initSubtree(e.doc.Root(), nil)
}

// Sync applies every mutation recorded since the last call and reports how
// many records it consumed.
func (e *Engine) Sync() int {
	if e.observer == nil || e.stopped {
		return 0
	}
	records := e.observer.TakeRecords()
	if len(records) > 0 {
		e.Apply(records)
	}
	return len(records)
}

// Apply responds to one batch of mutation records: removed subtrees are
// disposed, then every surviving invalid node is re-initialized with the
// nearest live ancestor provider as its ambient provider.
func (e *Engine) Apply(records []tree.MutationRecord) {
	if !e.started || e.stopped {
		return
	}
	logger := ctxlog.FromContext(e.ctx)
	invalid := newInvalidSet()
	for _, rec := range records {
		if rec.Kind == tree.NodeRemoved && rec.Node.IsElement() {
			e.disposeSubtree(rec.Node)
		}
		invalid.classify(rec, e.directives.Has)
	}
	e.applied.Add(int64(len(records)))

	survivors := invalid.survivors()
	logger.Debug("Applying mutations.", "records", len(records), "invalid", invalid.len(), "reinit", len(survivors))
	for _, n := range survivors {
		if invalid.entries[n] == scopeSubtree {
			e.initSubtree(n, e.nearestProvider(n.ParentElement()))
			continue
		}
		e.disposeBindings(n)
		e.store.BumpEpoch(n.ID())
		e.bindNode(n, e.nearestProvider(n))
	}
}

// Settle drains the queue and applies mutations until no resolution or
// deferred bind is in flight.
func (e *Engine) Settle(ctx context.Context) error {
	for {
		e.Sync()
		e.queue.RunPending()
		if e.observer != nil && e.observer.Pending() > 0 {
			continue
		}
		if e.queue.Len() > 0 {
			continue
		}
		if e.inflight.Load() == 0 {
			return nil
		}
		if err := e.queue.Wait(ctx); err != nil {
			return fmt.Errorf("engine did not settle: %w", err)
		}
	}
}

// Run drains the queue until ctx is done, syncing after every burst of tasks.
func (e *Engine) Run(ctx context.Context) error {
	err := e.queue.Run(ctx, func() { e.Sync() })
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop disposes every facet and disconnects the observer.
func (e *Engine) Stop() {
	if !e.started || e.stopped {
		return
	}
	e.Sync()
	e.stopped = true
	e.observer.Disconnect()
	e.disposeSubtree(e.doc.Root())
	ctxlog.FromContext(e.ctx).Debug("Engine stopped.")
}

// ProviderState returns the state published by n's provider, if resolved.
func (e *Engine) ProviderState(n *tree.Node) (*provider.State, bool) {
	p, ok := e.store.Provider(n.ID())
	if !ok || p.State() == nil {
		return nil, false
	}
	return p.State(), true
}

// Bindings returns the directive attributes currently bound on n.
func (e *Engine) Bindings(n *tree.Node) []string {
	return e.store.Bindings(n.ID())
}

// Stats reports current counts. Safe for concurrent use.
func (e *Engine) Stats() Stats {
	return Stats{
		Stats:    e.store.Stats(),
		InFlight: e.inflight.Load(),
		Applied:  e.applied.Load(),
	}
}

// nearestProvider returns the closest live provider at or above n.
func (e *Engine) nearestProvider(n *tree.Node) *provider.Provider {
	for cur := n; cur != nil; cur = cur.ParentElement() {
		if p, ok := e.store.Provider(cur.ID()); ok && p.Live() {
			return p
		}
	}
	return nil
}

// initSubtree disposes and re-initializes root and everything below it.
func (e *Engine) initSubtree(root *tree.Node, ambient *provider.Provider) {
	walk(root, ambient, func(n *tree.Node, ambient *provider.Provider) (walkControl, *provider.Provider) {
		e.disposeFacets(n)
		if provider.IsContextScript(n) {
			return walkSkipChildren, ambient
		}
		effective := ambient
		if p := e.resolver.Resolve(e.ctx, n, ambient); p != nil {
			e.trackProvider(n, p)
			effective = p
		}
		e.bindNode(n, effective)
		return walkContinue, effective
	})
}

func (e *Engine) trackProvider(n *tree.Node, p *provider.Provider) {
	e.store.SetProvider(n.ID(), p)
	e.inflight.Add(1)
	p.Future().Then(func(*provider.State, error) {
		e.inflight.Add(-1)
		if !p.Failed() {
			return
		}
		if cur, ok := e.store.Provider(n.ID()); ok && cur == p {
			e.store.DeleteProvider(n.ID())
		}
	})
}

// bindNode binds every directive attribute of n against prov. Binding waits
// for prov to settle; work whose epoch went stale meanwhile is dropped.
func (e *Engine) bindNode(n *tree.Node, prov *provider.Provider) {
	if !e.hasDirectives(n) {
		return
	}
	if prov == nil {
		e.bindAll(n, bindctx.Context{})
		return
	}
	epoch := e.store.Epoch(n.ID())
	e.inflight.Add(1)
	prov.Future().Then(func(st *provider.State, err error) {
		defer e.inflight.Add(-1)
		if err != nil {
			ctxlog.FromContext(e.ctx).Debug("Dropping bind; provider went away.", "node", n.Path(), "error", err)
			return
		}
		if e.stopped || e.store.Epoch(n.ID()) != epoch || !n.Connected() {
			ctxlog.FromContext(e.ctx).Debug("Dropping stale bind.", "node", n.Path())
			return
		}
		e.bindAll(n, st.Context)
	})
}

func (e *Engine) hasDirectives(n *tree.Node) bool {
	for _, a := range n.Attributes() {
		if e.directives.Has(a.Name) {
			return true
		}
	}
	return false
}

func (e *Engine) bindAll(n *tree.Node, c bindctx.Context) {
	for _, a := range n.Attributes() {
		spec, ok := e.directives.Lookup(a.Name)
		if !ok {
			continue
		}
		e.bindOne(n, spec, a.Value, c)
	}
}

// bindOne parses and installs a single directive. Failures are reported and
// leave the attribute unbound.
func (e *Engine) bindOne(n *tree.Node, spec *directive.Spec, raw string, c bindctx.Context) {
	value, err := spec.Parser(raw, c)
	if err != nil {
		e.reporter.Report(e.ctx, diag.New(n, spec.Name, err))
		return
	}
	var cbErr error
	dispose := e.rt.Root(func(reactive.Disposer) {
		cbErr = e.invoke(spec, n, value)
	})
	if cbErr != nil {
		dispose()
		e.reporter.Report(e.ctx, diag.New(n, spec.Name, cbErr))
		return
	}
	if err := e.store.SetBinding(n.ID(), spec.Name, dispose); err != nil {
		dispose()
		ctxlog.FromContext(e.ctx).Error("Binding invariant violated.", "node", n.Path(), "attribute", spec.Name, "error", err)
		return
	}
	ctxlog.FromContext(e.ctx).Debug("Directive bound.", "node", n.Path(), "attribute", spec.Name)
}

func (e *Engine) invoke(spec *directive.Spec, n *tree.Node, value any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", diag.ErrBindFailure, spec.Name, r)
		}
	}()
	if err := spec.Callback(e.env, n, value); err != nil {
		if !errors.Is(err, diag.ErrBindFailure) {
			return fmt.Errorf("%w: %s: %w", diag.ErrBindFailure, spec.Name, err)
		}
		return err
	}
	return nil
}

func (e *Engine) disposeBindings(n *tree.Node) {
	taken := e.store.TakeBindings(n.ID())
	names := make([]string, 0, len(taken))
	for name := range taken {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		taken[name]()
	}
}

// disposeFacets releases n's bindings and provider and invalidates pending
// binding work for n.
func (e *Engine) disposeFacets(n *tree.Node) {
	e.disposeBindings(n)
	if p, ok := e.store.DeleteProvider(n.ID()); ok {
		p.Dispose()
	}
	e.store.BumpEpoch(n.ID())
}

// disposeSubtree releases every facet under root.
func (e *Engine) disposeSubtree(root *tree.Node) {
	tree.Walk(root, func(n *tree.Node) bool {
		e.disposeFacets(n)
		e.store.Forget(n.ID())
		return true
	})
}
