package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/tree"
	"github.com/stretchr/testify/require"
)

// ParseDocument parses an HTML fragment into a document rooted at <body>.
func ParseDocument(t *testing.T, markup string) *tree.Document {
	t.Helper()
	doc, err := tree.ParseHTML(strings.NewReader(markup), nil)
	require.NoError(t, err)
	return doc
}

// Render returns the HTML of n.
func Render(t *testing.T, n *tree.Node) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, tree.RenderHTML(&buf, n))
	return buf.String()
}

// ByID returns the element with the given id or fails the test.
func ByID(t *testing.T, doc *tree.Document, id string) *tree.Node {
	t.Helper()
	n := doc.ElementByID(id)
	require.NotNil(t, n, "no element with id %q", id)
	return n
}

// LogContext returns a context carrying a debug logger that writes to a
// SafeBuffer, along with that buffer.
func LogContext() (context.Context, *SafeBuffer) {
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ctxlog.WithLogger(context.Background(), logger), buf
}
