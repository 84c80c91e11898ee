package registry

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/specialistvlad/livebind/internal/async"
	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/reactive"
)

// Env is what a native module may use while it is instantiated. It is only
// valid on the queue goroutine; work started elsewhere must Post back.
type Env struct {
	Runtime *reactive.Runtime
	Queue   *async.Queue
	// Parent is the context the module is instantiated under.
	Parent bindctx.Context
}

// OnCleanup registers fn to run when the module is disposed.
func (e *Env) OnCleanup(fn func()) {
	e.Runtime.OnCleanup(fn)
}

// ModuleFunc instantiates a native module. input is the value returned by
// NewInput after the script body was decoded into it. The result is either a
// bindctx.Context or a struct with `cty` tags whose fields become exports.
type ModuleFunc func(ctx context.Context, env *Env, input any) (any, error)

// RegisteredModule holds the compiled Go parts of a native module.
type RegisteredModule struct {
	// NewInput returns a pointer to a struct with `hcl` tags.
	NewInput  func() any
	InputType reflect.Type
	Fn        ModuleFunc
}

// RegisterModule registers a native module under name.
func (r *Registry) RegisterModule(name string, m *RegisteredModule) {
	if r.taken(name) {
		panic(fmt.Sprintf("module with name '%s' already registered", name))
	}
	slog.Debug("Registering native module.", "name", name)
	r.ModuleRegistry[name] = m
}
