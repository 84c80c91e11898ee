package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/specialistvlad/livebind/internal/async"
	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/diag"
	"github.com/specialistvlad/livebind/internal/provider"
)

// ExportsFunc builds a module's exports from its parent state.
type ExportsFunc func(parent *provider.State) (bindctx.Context, error)

// StubLoader is a controllable provider.Loader. Sources are matched by their
// trimmed text. With Hold set, loads stay pending until Release is called.
type StubLoader struct {
	Queue *async.Queue
	Hold  bool

	mu       sync.Mutex
	modules  map[string]ExportsFunc
	pending  []heldLoad
	loads    map[string]int
	disposes map[string]int
}

type heldLoad struct {
	text   string
	parent *provider.State
	future *async.Future[*provider.Module]
}

// NewStubLoader creates a loader settling its futures on q.
func NewStubLoader(q *async.Queue) *StubLoader {
	return &StubLoader{
		Queue:    q,
		modules:  make(map[string]ExportsFunc),
		loads:    make(map[string]int),
		disposes: make(map[string]int),
	}
}

// Define makes source text load as exports.
func (l *StubLoader) Define(text string, exports bindctx.Context) {
	l.DefineFunc(text, func(*provider.State) (bindctx.Context, error) { return exports, nil })
}

// DefineFunc makes source text load through fn.
func (l *StubLoader) DefineFunc(text string, fn ExportsFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modules[strings.TrimSpace(text)] = fn
}

// Fail makes source text fail to load with err.
func (l *StubLoader) Fail(text string, err error) {
	l.DefineFunc(text, func(*provider.State) (bindctx.Context, error) { return nil, err })
}

// Load implements provider.Loader.
func (l *StubLoader) Load(_ context.Context, src provider.Source, parent *provider.State) *async.Future[*provider.Module] {
	text := strings.TrimSpace(src.Text)
	f := async.NewFuture[*provider.Module](l.Queue)

	l.mu.Lock()
	l.loads[text]++
	hold := l.Hold
	if hold {
		l.pending = append(l.pending, heldLoad{text: text, parent: parent, future: f})
	}
	l.mu.Unlock()

	if !hold {
		l.settle(heldLoad{text: text, parent: parent, future: f})
	}
	return f
}

// Release settles every held load in request order and reports how many it settled.
func (l *StubLoader) Release() int {
	l.mu.Lock()
	held := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, h := range held {
		l.settle(h)
	}
	return len(held)
}

// Held reports how many loads are waiting for Release.
func (l *StubLoader) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *StubLoader) settle(h heldLoad) {
	l.mu.Lock()
	fn, ok := l.modules[h.text]
	l.mu.Unlock()
	if !ok {
		h.future.Reject(fmt.Errorf("%w: no stub module for %q", diag.ErrModuleLoadFailure, h.text))
		return
	}
	exports, err := fn(h.parent)
	if err != nil {
		h.future.Reject(err)
		return
	}
	text := h.text
	h.future.Resolve(&provider.Module{
		Exports: exports,
		Handle:  text,
		Dispose: func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.disposes[text]++
		},
	})
}

// Loads reports how many times text was requested.
func (l *StubLoader) Loads(text string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[strings.TrimSpace(text)]
}

// Disposes reports how many modules loaded from text were disposed.
func (l *StubLoader) Disposes(text string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disposes[strings.TrimSpace(text)]
}
