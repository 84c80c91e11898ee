package console

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/directive"
	"github.com/specialistvlad/livebind/internal/registry"
	"github.com/specialistvlad/livebind/internal/tree"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments accepted in the script body.
type Input struct {
	Prefix string `hcl:"prefix,optional"`
	Level  string `hcl:"level,optional"`
}

// Printer is an event handler that writes every event it receives to the
// application logger.
type Printer struct {
	ctx    context.Context
	prefix string
	level  slog.Level
}

// HandleEvent implements directive.EventHandler.
func (p *Printer) HandleEvent(ev tree.Event) {
	args := []any{"event", ev.Type}
	if ev.Target != nil {
		args = append(args, "target", ev.Target.Path())
	}
	if ev.Detail != nil {
		args = append(args, "detail", directive.Stringify(ev.Detail))
	}
	ctxlog.FromContext(p.ctx).Log(p.ctx, p.level, strings.TrimSpace(p.prefix+" "+ev.Type), args...)
}

// Instantiate exports a single handler, `log`.
func Instantiate(ctx context.Context, env *registry.Env, input any) (any, error) {
	in := input.(*Input)
	level := slog.LevelInfo
	if in.Level != "" {
		if err := level.UnmarshalText([]byte(in.Level)); err != nil {
			return nil, fmt.Errorf("invalid level %q: %w", in.Level, err)
		}
	}
	return bindctx.Context{"log": &Printer{ctx: ctx, prefix: in.Prefix, level: level}}, nil
}

// Register registers the module with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("console", &registry.RegisteredModule{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        Instantiate,
	})
}
