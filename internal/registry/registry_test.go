package registry

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type goodInput struct {
	Interval string         `hcl:"interval,optional"`
	Format   hcl.Expression `hcl:"format,optional"`
	Rest     hcl.Body       `hcl:",remain"`
}

type badInput struct {
	Fn   func()   `hcl:"fn"`
	Rest string   `hcl:",remain"`
	Sub  struct{} `hcl:"sub,block"`
}

func noop(context.Context, *Env, any) (any, error) { return nil, nil }

func TestRegisterModule_DuplicatePanics(t *testing.T) {
	r := New()
	m := &RegisteredModule{NewInput: func() any { return new(goodInput) }, InputType: reflect.TypeOf(goodInput{}), Fn: noop}
	r.RegisterModule("clock", m)

	got, ok := r.Lookup("clock")
	require.True(t, ok)
	assert.Same(t, m, got)

	assert.PanicsWithValue(t, "module with name 'clock' already registered", func() {
		r.RegisterModule("clock", m)
	})
	assert.Panics(t, func() {
		r.RegisterLibrary(&Library{Name: "clock"})
	}, "modules and libraries share one namespace")
}

func TestValidateRegistry(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	r := New()
	r.RegisterModule("good", &RegisteredModule{NewInput: func() any { return new(goodInput) }, InputType: reflect.TypeOf(goodInput{}), Fn: noop})
	require.NoError(t, r.ValidateRegistry(ctx))

	r.RegisterModule("bad", &RegisteredModule{NewInput: func() any { return new(badInput) }, InputType: reflect.TypeOf(badInput{}), Fn: noop})
	r.RegisterModule("mismatch", &RegisteredModule{NewInput: func() any { return new(goodInput) }, InputType: reflect.TypeOf(badInput{}), Fn: noop})
	r.RegisterModule("nofn", &RegisteredModule{NewInput: func() any { return new(goodInput) }, InputType: reflect.TypeOf(goodInput{})})

	err := r.ValidateRegistry(ctx)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "module 'bad', input 'fn'")
	assert.Contains(t, msg, "module 'bad': remain field Rest must be an hcl.Body")
	assert.Contains(t, msg, "module 'bad', input 'sub': blocks are not supported")
	assert.Contains(t, msg, "module 'mismatch': NewInput returns")
	assert.Contains(t, msg, "module 'nofn': no Fn registered")
	assert.NotContains(t, msg, "module 'good'")
}

func TestLoadLibrariesRecursively(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counter.hcl"), []byte(`cell "count" { initial = 0 }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "theme.hcl"), []byte(`accent = "teal"`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a library"), 0o644))

	r := New()
	require.NoError(t, r.LoadLibrariesRecursively(ctx, dir))
	assert.Equal(t, []string{"counter", "theme"}, r.Names())

	lib, ok := r.Library("theme")
	require.True(t, ok)
	assert.Equal(t, `accent = "teal"`, string(lib.Source))
	assert.Equal(t, filepath.Join(dir, "nested", "theme.hcl"), lib.Filename)

	// A second pass collides with what is already registered.
	require.Error(t, r.LoadLibrariesRecursively(ctx, dir))
}

func TestLoadLibrariesRecursively_SyntaxError(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.hcl"), []byte(`cell "count" {`), 0o644))

	r := New()
	err := r.LoadLibrariesRecursively(ctx, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.hcl")
	assert.Empty(t, r.Names())
}
