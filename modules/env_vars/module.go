package env_vars

import (
	"context"
	"os"
	"reflect"
	"strings"

	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments accepted in the script body.
type Input struct {
	Prefix      string `hcl:"prefix,optional"`
	StripPrefix bool   `hcl:"strip_prefix,optional"`
}

// Output defines the exports of the module.
type Output struct {
	Env map[string]string `cty:"env"`
}

// Instantiate exports the process environment, optionally filtered by prefix.
func Instantiate(ctx context.Context, env *registry.Env, input any) (any, error) {
	in := input.(*Input)
	envMap := make(map[string]string)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) != 2 || !strings.HasPrefix(pair[0], in.Prefix) {
			continue
		}
		key := pair[0]
		if in.StripPrefix {
			key = strings.TrimPrefix(key, in.Prefix)
		}
		if key == "" {
			continue
		}
		envMap[key] = pair[1]
	}
	ctxlog.FromContext(ctx).Debug("Exporting environment.", "prefix", in.Prefix, "count", len(envMap))
	return &Output{Env: envMap}, nil
}

// Register registers the module with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterModule("env_vars", &registry.RegisteredModule{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        Instantiate,
	})
}
