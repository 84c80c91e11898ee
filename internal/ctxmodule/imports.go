package ctxmodule

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// maxImportSize bounds how much of a remote import is read.
const maxImportSize = 1 << 20

// Fetcher retrieves the source of an import.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) ([]byte, error)
}

// DefaultFetcher reads file: URLs from disk and http(s): URLs with Client.
type DefaultFetcher struct {
	Client *http.Client
}

// Fetch implements Fetcher.
func (f DefaultFetcher) Fetch(ctx context.Context, u *url.URL) ([]byte, error) {
	switch u.Scheme {
	case "file", "":
		return os.ReadFile(filepath.FromSlash(u.Path))
	case "http", "https":
		client := f.Client
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxImportSize))
	default:
		return nil, fmt.Errorf("unsupported import scheme %q", u.Scheme)
	}
}

// ResolveImport resolves an import specifier against the document's base URL.
// Absolute specifiers are returned unchanged.
func ResolveImport(base *url.URL, spec string) (*url.URL, error) {
	ref, err := url.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid import %q: %w", spec, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	if base == nil {
		return nil, fmt.Errorf("relative import %q without a document base URL", spec)
	}
	return base.ResolveReference(ref), nil
}

// loadImport fetches an import and evaluates its attributes into one object.
// Imports are static: they see functions but no variables.
func (l *Loader) loadImport(ctx context.Context, base *url.URL, d *declaration) (cty.Value, error) {
	u, err := ResolveImport(base, d.source)
	if err != nil {
		return cty.NilVal, err
	}
	ctxlog.FromContext(ctx).Debug("Fetching import.", "name", d.name, "url", u.String())

	src, err := l.fetcher.Fetch(ctx, u)
	if err != nil {
		return cty.NilVal, fmt.Errorf("import %q: %w", d.name, err)
	}
	file, diags := hclsyntax.ParseConfig(src, u.String(), hcl.InitialPos)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("import %q: %w", d.name, diags)
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("import %q: %w", d.name, diags)
	}
	evalCtx := &hcl.EvalContext{Functions: l.functions}
	values := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return cty.NilVal, fmt.Errorf("import %q: %w", d.name, diags)
		}
		values[name] = v
	}
	if len(values) == 0 {
		return cty.EmptyObjectVal, nil
	}
	return cty.ObjectVal(values), nil
}
