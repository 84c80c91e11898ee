package ctxmodule

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/specialistvlad/livebind/internal/async"
	"github.com/specialistvlad/livebind/internal/bindctx"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/diag"
	"github.com/specialistvlad/livebind/internal/provider"
	"github.com/specialistvlad/livebind/internal/reactive"
	"github.com/specialistvlad/livebind/internal/registry"
	"github.com/specialistvlad/livebind/internal/testutil"
	"github.com/specialistvlad/livebind/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type fixture struct {
	ctx      context.Context
	queue    *async.Queue
	rt       *reactive.Runtime
	registry *registry.Registry
	loader   *Loader
	logs     *testutil.SafeBuffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, logs := testutil.LogContext()
	q := async.NewQueue()
	pool := async.NewPool(ctx, 2)
	t.Cleanup(pool.Close)
	rt := reactive.NewRuntime()
	reg := registry.New()
	return &fixture{
		ctx:      ctx,
		queue:    q,
		rt:       rt,
		registry: reg,
		loader:   New(Options{Queue: q, Pool: pool, Runtime: rt, Registry: reg}),
		logs:     logs,
	}
}

func (f *fixture) load(t *testing.T, src provider.Source, parent bindctx.Context) (*provider.Module, error) {
	t.Helper()
	var st *provider.State
	if parent != nil {
		st = provider.NewState(parent, nil, nil)
	}
	return testutil.Await(t, f.queue, f.loader.Load(f.ctx, src, st))
}

func (f *fixture) mustLoad(t *testing.T, text string, parent bindctx.Context) *provider.Module {
	t.Helper()
	m, err := f.load(t, provider.Source{Text: text, Origin: "body>div#app"}, parent)
	require.NoError(t, err)
	return m
}

func str(t *testing.T, v any) string {
	t.Helper()
	if s, ok := v.(reactive.Signal); ok {
		v = s.Peek()
	}
	cv, ok := v.(cty.Value)
	require.True(t, ok, "expected a cty value, got %T", v)
	require.Equal(t, cty.String, cv.Type())
	return cv.AsString()
}

func num(t *testing.T, v any) int64 {
	t.Helper()
	if s, ok := v.(reactive.Signal); ok {
		v = s.Peek()
	}
	cv, ok := v.(cty.Value)
	require.True(t, ok, "expected a cty value, got %T", v)
	i, _ := cv.AsBigFloat().Int64()
	return i
}

func TestLoad_AttributesSeeParentAndFunctions(t *testing.T) {
	f := newFixture(t)
	m := f.mustLoad(t, `
name    = "ada"
message = "${greeting}, ${upper(name)}"
`, bindctx.Context{"greeting": "hi"})

	assert.Equal(t, "hi, ADA", str(t, m.Exports["message"]))
	assert.Equal(t, "ada", str(t, m.Exports["name"]))
	_, inherited := m.Exports["greeting"]
	assert.False(t, inherited, "exports hold own declarations only")
}

func TestLoad_OrdersByDependency(t *testing.T) {
	f := newFixture(t)
	m := f.mustLoad(t, `
c = b * 10
b = a + 1
a = 1
`, nil)

	assert.Equal(t, int64(20), num(t, m.Exports["c"]))
	assert.Equal(t, []string{"a", "b", "c"}, m.Handle.(*Instance).Names)
}

func TestLoad_SelfReferenceReadsInherited(t *testing.T) {
	f := newFixture(t)
	m := f.mustLoad(t, `n = n + 1`, bindctx.Context{"n": 1})
	assert.Equal(t, int64(2), num(t, m.Exports["n"]))
}

func TestLoad_Failures(t *testing.T) {
	testCases := []struct {
		name    string
		text    string
		kind    string
		wantErr string
	}{
		{name: "cycle", text: "a = b\nb = a", wantErr: "declaration cycle between a, b"},
		{name: "unknown function", text: `a = shout("x")`, wantErr: "shout"},
		{name: "unknown variable", text: `a = nope`, wantErr: "Unknown variable"},
		{name: "syntax", text: `a = `, wantErr: "body>div#app"},
		{name: "duplicate", text: "a = 1\ncell \"a\" {}", wantErr: "Duplicate declaration"},
		{name: "unknown block", text: `widget "w" {}`, wantErr: "widget"},
		{name: "computed error", text: `computed "c" { value = 1 + "x" }`, wantErr: "computed \"c\""},
		{name: "unknown kind", text: `a = 1`, kind: "nope", wantErr: `unknown context module kind "nope"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.load(t, provider.Source{Text: tc.text, Kind: tc.kind, Origin: "body>div#app"}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, diag.ErrModuleLoadFailure)
			assert.True(t, IsLoadFailure(err))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_CellsComputedAndHandlers(t *testing.T) {
	f := newFixture(t)
	m := f.mustLoad(t, `
cell "count" { initial = 0 }
computed "label" { value = "clicked ${count} times" }
handler "increment" {
  set = { count = count + step }
  log = "increment from ${event.target.path}"
}
`, bindctx.Context{"step": 2})

	count, ok := m.Exports["count"].(*reactive.Cell)
	require.True(t, ok)
	label, ok := m.Exports["label"].(*reactive.Memo)
	require.True(t, ok)
	h, ok := m.Exports["increment"].(*Handler)
	require.True(t, ok)
	assert.Equal(t, "increment", h.Name())

	assert.Equal(t, "clicked 0 times", str(t, label))

	doc := tree.NewDocument(nil)
	button := doc.CreateElement("button")
	button.SetAttribute("id", "go")
	doc.Root().AppendChild(button)
	h.HandleEvent(tree.Event{Type: "click", Target: button})

	assert.Equal(t, int64(2), num(t, count))
	assert.Equal(t, "clicked 2 times", str(t, label))
	assert.Contains(t, f.logs.String(), "increment from body>button#go")
}

func TestHandler_EventDetailAndFailures(t *testing.T) {
	f := newFixture(t)
	m := f.mustLoad(t, `
cell "last" { initial = "" }
computed "shout" { value = upper(last == "" ? "none" : last) }
handler "pick" { set = { last = event.detail } }
handler "bad" { set = { shout = "x" } }
handler "broken" { set = { last = event.detail.missing } }
`, nil)

	last := m.Exports["last"].(*reactive.Cell)
	assert.Equal(t, "NONE", str(t, m.Exports["shout"]))

	m.Exports["pick"].(*Handler).HandleEvent(tree.Event{Type: "select", Detail: "b"})
	assert.Equal(t, "b", str(t, last))
	assert.Equal(t, "B", str(t, m.Exports["shout"]))

	m.Exports["bad"].(*Handler).HandleEvent(tree.Event{Type: "select"})
	assert.Contains(t, f.logs.String(), "not a cell")

	m.Exports["broken"].(*Handler).HandleEvent(tree.Event{Type: "select", Detail: "c"})
	assert.Equal(t, "b", str(t, last), "a failed handler writes nothing")
}

func TestLoad_RefsAndCollections(t *testing.T) {
	f := newFixture(t)
	m := f.mustLoad(t, `
ref "input" {}
collection "rows" {}
`, nil)

	ref := m.Exports["input"].(*reactive.Cell)
	assert.Nil(t, ref.Peek())
	rows := m.Exports["rows"].(*reactive.Cell)
	assert.Equal(t, []any{}, rows.Peek())
}

func TestDispose_StopsComputations(t *testing.T) {
	f := newFixture(t)
	m := f.mustLoad(t, `
cell "count" { initial = 1 }
computed "double" { value = count * 2 }
`, nil)

	count := m.Exports["count"].(*reactive.Cell)
	double := m.Exports["double"].(*reactive.Memo)
	count.Set(cty.NumberIntVal(2))
	assert.Equal(t, int64(4), num(t, double))

	m.Dispose()
	count.Set(cty.NumberIntVal(5))
	assert.Equal(t, int64(4), num(t, double))
	assert.Zero(t, count.Observers())
}

func TestResolveImport(t *testing.T) {
	base, err := url.Parse("https://example.com/app/index.html")
	require.NoError(t, err)

	testCases := []struct {
		name string
		base *url.URL
		spec string
		want string
		err  bool
	}{
		{name: "relative", base: base, spec: "./theme.hcl", want: "https://example.com/app/theme.hcl"},
		{name: "parent", base: base, spec: "../shared/theme.hcl", want: "https://example.com/shared/theme.hcl"},
		{name: "rooted", base: base, spec: "/lib/x.hcl", want: "https://example.com/lib/x.hcl"},
		{name: "absolute", base: base, spec: "file:///etc/x.hcl", want: "file:///etc/x.hcl"},
		{name: "absolute without base", spec: "https://cdn.example.com/x.hcl", want: "https://cdn.example.com/x.hcl"},
		{name: "relative without base", spec: "./x.hcl", err: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveImport(tc.base, tc.spec)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestLoad_FileImport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "theme.hcl"), []byte(`
accent = "teal"
sizes  = [1, 2, 3]
`), 0o644))
	base := &url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(dir, "index.html"))}

	f := newFixture(t)
	m, err := f.load(t, provider.Source{
		Text: `
import "theme" { source = "./theme.hcl" }
color = theme.accent
count = length(theme.sizes)
`,
		BaseURL: base,
		Origin:  "body>div#app",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "teal", str(t, m.Exports["color"]))
	assert.Equal(t, int64(3), num(t, m.Exports["count"]))
	theme := m.Exports["theme"].(cty.Value)
	assert.Equal(t, "teal", theme.GetAttr("accent").AsString())
}

func TestLoad_HTTPImport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/shared/strings.hcl" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `hello = "hola"`)
	}))
	t.Cleanup(srv.Close)
	base, err := url.Parse(srv.URL + "/app/index.html")
	require.NoError(t, err)

	f := newFixture(t)
	m, err := f.load(t, provider.Source{
		Text:    "import \"strings\" { source = \"../shared/strings.hcl\" }\ngreeting = strings.hello",
		BaseURL: base,
		Origin:  "body>div#app",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hola", str(t, m.Exports["greeting"]))

	_, err = f.load(t, provider.Source{
		Text:    `import "missing" { source = "./missing.hcl" }`,
		BaseURL: base,
		Origin:  "body>div#app",
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrModuleLoadFailure)
	assert.Contains(t, err.Error(), "404")
}

type greeterInput struct {
	Name string `hcl:"name"`
}

type greeterOutput struct {
	Greeting string `cty:"greeting"`
	Length   int    `cty:"length"`
}

func registerGreeter(r *registry.Registry, cleanups *int) {
	r.RegisterModule("greeter", &registry.RegisteredModule{
		NewInput:  func() any { return new(greeterInput) },
		InputType: reflect.TypeOf(greeterInput{}),
		Fn: func(ctx context.Context, env *registry.Env, input any) (any, error) {
			in := input.(*greeterInput)
			ctxlog.FromContext(ctx).Debug("Greeting.", "name", in.Name)
			env.OnCleanup(func() { *cleanups++ })
			return &greeterOutput{Greeting: "hello " + in.Name, Length: len(in.Name)}, nil
		},
	})
}

func TestLoad_NativeModule(t *testing.T) {
	f := newFixture(t)
	cleanups := 0
	registerGreeter(f.registry, &cleanups)
	require.NoError(t, f.registry.ValidateRegistry(f.ctx))

	m, err := f.load(t, provider.Source{Text: `name = upper(who)`, Kind: "greeter", Origin: "body>div#app"},
		bindctx.Context{"who": "ada"})
	require.NoError(t, err)

	assert.Equal(t, "hello ADA", str(t, m.Exports["greeting"]))
	assert.Equal(t, int64(3), num(t, m.Exports["length"]))
	assert.Equal(t, "greeter", m.Handle.(*Instance).Kind)

	m.Dispose()
	assert.Equal(t, 1, cleanups)

	_, err = f.load(t, provider.Source{Text: `nickname = "x"`, Kind: "greeter", Origin: "body>div#app"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrModuleLoadFailure)
}

func TestLoad_Library(t *testing.T) {
	f := newFixture(t)
	f.registry.RegisterLibrary(&registry.Library{
		Name:     "counter",
		Filename: "counter.hcl",
		Source: []byte(`
cell "count" { initial = start }
handler "increment" { set = { count = count + 1 } }
`),
	})

	m, err := f.load(t, provider.Source{Text: `start = 5`, Kind: "counter", Origin: "body>div#app"}, nil)
	require.NoError(t, err)

	count := m.Exports["count"].(*reactive.Cell)
	assert.Equal(t, int64(5), num(t, count))
	m.Exports["increment"].(*Handler).HandleEvent(tree.Event{Type: "click"})
	assert.Equal(t, int64(6), num(t, count))
	assert.Equal(t, int64(5), num(t, m.Exports["start"]))
}

func TestToCty(t *testing.T) {
	rt := reactive.NewRuntime()
	doc := tree.NewDocument(nil)
	span := doc.CreateElement("span")
	span.SetAttribute("id", "a")
	doc.Root().AppendChild(span)

	assert.True(t, ToCty(nil).IsNull())
	assert.Equal(t, cty.StringVal("x"), ToCty("x"))
	assert.Equal(t, cty.True, ToCty(true))
	assert.True(t, ToCty(func() {}).IsNull())
	assert.Equal(t, cty.StringVal("x"), ToCty(rt.NewCell("x")))
	assert.Equal(t, cty.EmptyTupleVal, ToCty([]any{}))

	node := ToCty(span)
	assert.Equal(t, "a", node.GetAttr("id").AsString())
	assert.Equal(t, "span", node.GetAttr("tag").AsString())
	assert.Equal(t, "body>span#a", node.GetAttr("path").AsString())

	obj := ToCty(bindctx.Context{"n": 1, "names": []any{"a", "b"}})
	assert.True(t, obj.GetAttr("n").RawEquals(cty.NumberIntVal(1)))
	assert.Equal(t, 2, obj.GetAttr("names").LengthInt())

	assert.Equal(t, cty.MapVal(map[string]cty.Value{"k": cty.StringVal("v")}), ToCty(map[string]string{"k": "v"}))
}
