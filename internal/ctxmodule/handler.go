package ctxmodule

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/directive"
	"github.com/specialistvlad/livebind/internal/reactive"
	"github.com/specialistvlad/livebind/internal/tree"
	"github.com/zclconf/go-cty/cty"
)

// Handler is an exported event handler. bind-on installs it as a listener.
type Handler struct {
	name  string
	ctx   context.Context
	scope *scope
	set   hcl.Expression
	log   hcl.Expression
	names []string
}

var _ directive.EventHandler = (*Handler)(nil)

// Name returns the declared name.
func (h *Handler) Name() string { return h.name }

// HandleEvent evaluates every assignment with event in scope, then writes the
// cells in one batch. Errors are logged; a failed handler writes nothing.
func (h *Handler) HandleEvent(ev tree.Event) {
	logger := ctxlog.FromContext(h.ctx).With("handler", h.name, "event", ev.Type)
	if err := h.handle(ev); err != nil {
		logger.Warn("Handler failed.", "error", err)
	}
}

type assignment struct {
	target reactive.Writable
	value  cty.Value
}

func (h *Handler) handle(ev tree.Event) error {
	rt := h.scope.loader.rt
	extra := map[string]cty.Value{"event": eventObject(ev)}

	var (
		assignments []assignment
		message     cty.Value
		err         error
	)
	rt.Untrack(func() {
		assignments, err = h.assignments(extra)
		if err != nil || h.log == nil {
			return
		}
		message, err = h.scope.eval(h.log, h.names, "", extra)
	})
	if err != nil {
		return err
	}

	rt.Batch(func() {
		for _, a := range assignments {
			a.target.Set(a.value)
		}
	})
	if h.log != nil {
		ctxlog.FromContext(h.ctx).Info(directive.Stringify(message), "handler", h.name, "event", ev.Type)
	}
	return nil
}

func (h *Handler) assignments(extra map[string]cty.Value) ([]assignment, error) {
	if h.set == nil {
		return nil, nil
	}
	pairs, diags := hcl.ExprMap(h.set)
	if diags.HasErrors() {
		return nil, diags
	}
	out := make([]assignment, 0, len(pairs))
	for _, pair := range pairs {
		name := hcl.ExprAsKeyword(pair.Key)
		if name == "" {
			return nil, fmt.Errorf("set keys must be bare names")
		}
		raw, ok := h.scope.lookup(name, "")
		if !ok {
			return nil, fmt.Errorf("set %q: no such name", name)
		}
		w, ok := raw.(reactive.Writable)
		if !ok {
			return nil, fmt.Errorf("set %q: not a cell", name)
		}
		v, err := h.scope.eval(pair.Value, h.names, "", extra)
		if err != nil {
			return nil, fmt.Errorf("set %q: %w", name, err)
		}
		out = append(out, assignment{target: w, value: v})
	}
	return out, nil
}
