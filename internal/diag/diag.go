// Package diag defines the runtime's error taxonomy and the non-fatal
// diagnostic channel through which localized failures are reported.
//
// Nothing reported here is fatal: the worst outcome of any diagnostic is that a
// single binding or a single provider did not take effect.
package diag

import (
	"context"
	"errors"
	"sync"

	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/tree"
)

var (
	// ErrUnresolvedReference marks a directive value naming a key absent from
	// the resolved context.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrMalformedDirectiveValue marks directive value syntax violations.
	ErrMalformedDirectiveValue = errors.New("malformed directive value")
	// ErrModuleLoadFailure marks a context declaration that failed to load or run.
	ErrModuleLoadFailure = errors.New("module load failure")
	// ErrBindFailure marks a directive callback that rejected its value or panicked.
	ErrBindFailure = errors.New("bind failure")
)

// Kind classifies a Diagnostic.
type Kind string

const (
	UnresolvedReference     Kind = "unresolved_reference"
	MalformedDirectiveValue Kind = "malformed_directive_value"
	ModuleLoadFailure       Kind = "module_load_failure"
	BindFailure             Kind = "bind_failure"
	Unknown                 Kind = "unknown"
)

// KindOf classifies err by the sentinel it wraps.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrUnresolvedReference):
		return UnresolvedReference
	case errors.Is(err, ErrMalformedDirectiveValue):
		return MalformedDirectiveValue
	case errors.Is(err, ErrModuleLoadFailure):
		return ModuleLoadFailure
	case errors.Is(err, ErrBindFailure):
		return BindFailure
	default:
		return Unknown
	}
}

// Diagnostic is one non-fatal report.
type Diagnostic struct {
	Kind      Kind
	NodeID    tree.NodeID
	Path      string
	Attribute string
	Err       error
}

// New builds a Diagnostic for err raised at node (and attribute, if any).
func New(node *tree.Node, attribute string, err error) Diagnostic {
	d := Diagnostic{Kind: KindOf(err), Attribute: attribute, Err: err}
	if node != nil {
		d.NodeID = node.ID()
		d.Path = node.Path()
	}
	return d
}

// Reporter receives diagnostics.
type Reporter interface {
	Report(ctx context.Context, d Diagnostic)
}

// LogReporter writes diagnostics to the context logger: load failures as
// errors, everything else as warnings.
type LogReporter struct{}

// Report implements Reporter.
func (LogReporter) Report(ctx context.Context, d Diagnostic) {
	logger := ctxlog.FromContext(ctx)
	attrs := []any{"kind", string(d.Kind), "node", d.Path, "error", d.Err}
	if d.Attribute != "" {
		attrs = append(attrs, "attribute", d.Attribute)
	}
	if d.Kind == ModuleLoadFailure {
		logger.Error("Context declaration failed to load.", attrs...)
		return
	}
	logger.Warn("Directive not bound.", attrs...)
}

// Recorder keeps every diagnostic in memory. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Report implements Reporter.
func (r *Recorder) Report(_ context.Context, d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, d)
}

// All returns a copy of the recorded diagnostics.
func (r *Recorder) All() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Diagnostic(nil), r.items...)
}

// Count returns how many diagnostics of kind k were recorded.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.items {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// Reset drops all recorded diagnostics.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

// Tee fans a diagnostic out to several reporters.
type Tee []Reporter

// Report implements Reporter.
func (t Tee) Report(ctx context.Context, d Diagnostic) {
	for _, r := range t {
		r.Report(ctx, d)
	}
}
