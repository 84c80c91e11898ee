// Package provider resolves context providers: elements hosting one or more
// context-declaring script children. A provider publishes an immutable State
// holding its own exports merged over its parent's context.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/specialistvlad/livebind/internal/async"
	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/diag"
	"github.com/specialistvlad/livebind/internal/tree"
)

// ContextAttr marks a script as a context declaration. Its value selects the
// declaration kind.
const ContextAttr = "context"

// ErrProviderDisposed settles the future of a provider disposed before it resolved.
var ErrProviderDisposed = errors.New("provider disposed")

// State is the published result of a provider. It must not be mutated once
// published; a new source yields a new State.
type State struct {
	Context bindctx.Context
	// Handle is the loader's opaque module handle, if any.
	Handle any

	dispose func()
	once    sync.Once
}

// NewState builds a State whose Dispose calls dispose at most once.
func NewState(c bindctx.Context, handle any, dispose func()) *State {
	return &State{Context: c, Handle: handle, dispose: dispose}
}

// Dispose releases the module behind the state. Calls after the first are no-ops.
func (s *State) Dispose() {
	s.once.Do(func() {
		if s.dispose != nil {
			s.dispose()
		}
	})
}

// Source is the input handed to a Loader.
type Source struct {
	Text    string
	Kind    string
	BaseURL *url.URL
	// Origin names the host element in diagnostics.
	Origin string
}

// Module is what a Loader produces.
type Module struct {
	Exports bindctx.Context
	Handle  any
	Dispose func()
}

// Loader compiles and instantiates context declarations.
type Loader interface {
	Load(ctx context.Context, src Source, parent *State) *async.Future[*Module]
}

// Provider is the facet attached to a provider host.
type Provider struct {
	node     *tree.Node
	parent   *Provider
	future   *async.Future[*State]
	state    *State
	failed   bool
	disposed bool
}

// Node returns the host element.
func (p *Provider) Node() *tree.Node { return p.node }

// Parent returns the ambient provider at resolution time, or nil.
func (p *Provider) Parent() *Provider { return p.parent }

// Future settles with the state descendants bind against: the provider's own
// state, its parent's state when loading failed, or ErrProviderDisposed.
func (p *Provider) Future() *async.Future[*State] { return p.future }

// State returns the provider's own published state, or nil while pending,
// after failure, or once disposed.
func (p *Provider) State() *State {
	if p.disposed {
		return nil
	}
	return p.state
}

// Pending reports whether the provider has not settled yet.
func (p *Provider) Pending() bool { return p.future.Pending() }

// Failed reports whether loading the provider's declarations failed.
func (p *Provider) Failed() bool { return p.failed }

// Disposed reports whether Dispose has been called.
func (p *Provider) Disposed() bool { return p.disposed }

// Live reports whether the provider can serve as an ambient provider.
func (p *Provider) Live() bool { return !p.disposed && !p.failed }

// Dispose releases the provider. A resolved state is disposed immediately; a
// pending load is disposed when it settles. Must run on the queue.
func (p *Provider) Dispose() {
	if p.disposed {
		return
	}
	p.disposed = true
	if p.state != nil {
		p.state.Dispose()
	}
	p.future.Reject(ErrProviderDisposed)
}

// IsContextScript reports whether n is a context-declaring script.
func IsContextScript(n *tree.Node) bool {
	return n != nil && n.IsElement() && n.Tag() == "script" && n.HasAttr(ContextAttr)
}

// ContextScripts returns n's context-declaring script children in document order.
func ContextScripts(n *tree.Node) []*tree.Node {
	var scripts []*tree.Node
	for _, c := range n.ElementChildren() {
		if IsContextScript(c) {
			scripts = append(scripts, c)
		}
	}
	return scripts
}

// Resolver turns provider hosts into Providers.
type Resolver struct {
	queue    *async.Queue
	loader   Loader
	reporter diag.Reporter
}

// NewResolver creates a resolver loading through loader and reporting load
// failures to reporter.
func NewResolver(q *async.Queue, loader Loader, reporter diag.Reporter) *Resolver {
	return &Resolver{queue: q, loader: loader, reporter: reporter}
}

// Resolve returns the provider for node, or nil when node hosts no context
// declarations. parent is the nearest live ancestor provider, nil at the root.
// Loading starts once parent settles. Must run on the queue.
func (r *Resolver) Resolve(ctx context.Context, node *tree.Node, parent *Provider) *Provider {
	scripts := ContextScripts(node)
	if len(scripts) == 0 {
		return nil
	}
	logger := ctxlog.FromContext(ctx)

	p := &Provider{node: node, parent: parent, future: async.NewFuture[*State](r.queue)}
	src, srcErr := sourceOf(node, scripts)

	var parentFuture *async.Future[*State]
	if parent != nil {
		parentFuture = parent.Future()
	} else {
		parentFuture = async.Resolved(r.queue, NewState(bindctx.Context{}, nil, nil))
	}

	parentFuture.Then(func(ps *State, err error) {
		if err != nil {
			// The ambient provider went away; so does everything resolved under it.
			p.future.Reject(err)
			return
		}
		if p.disposed {
			return
		}
		if srcErr != nil {
			r.fail(ctx, p, ps, srcErr)
			return
		}
		logger.Debug("Loading context declarations.", "node", src.Origin, "kind", src.Kind)
		r.loader.Load(ctx, src, ps).Then(func(m *Module, err error) {
			if p.disposed {
				if m != nil && m.Dispose != nil {
					m.Dispose()
				}
				return
			}
			if err != nil {
				r.fail(ctx, p, ps, err)
				return
			}
			p.state = NewState(bindctx.Merge(ps.Context, m.Exports), m.Handle, m.Dispose)
			logger.Debug("Provider resolved.", "node", src.Origin, "keys", len(p.state.Context))
			p.future.Resolve(p.state)
		})
	})
	return p
}

// fail reports a load failure and lets descendants fall back to the parent state.
func (r *Resolver) fail(ctx context.Context, p *Provider, parent *State, err error) {
	if !errors.Is(err, diag.ErrModuleLoadFailure) {
		err = fmt.Errorf("%w: %w", diag.ErrModuleLoadFailure, err)
	}
	p.failed = true
	r.reporter.Report(ctx, diag.New(p.node, "", err))
	p.future.Resolve(parent)
}

// sourceOf concatenates the scripts' text. All scripts of one host must share
// a declaration kind.
func sourceOf(node *tree.Node, scripts []*tree.Node) (Source, error) {
	kind, _ := scripts[0].Attr(ContextAttr)
	texts := make([]string, 0, len(scripts))
	for _, s := range scripts {
		k, _ := s.Attr(ContextAttr)
		if k != kind {
			return Source{}, fmt.Errorf("context scripts on %s mix kinds %q and %q", node.Path(), kind, k)
		}
		texts = append(texts, s.TextContent())
	}
	var base *url.URL
	if doc := node.Document(); doc != nil {
		base = doc.BaseURL()
	}
	return Source{
		Text:    strings.Join(texts, "\n"),
		Kind:    kind,
		BaseURL: base,
		Origin:  node.Path(),
	}, nil
}
