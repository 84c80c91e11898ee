package app

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/tree"
)

// baseURL returns the configured base URL, or the document's file URL.
func (a *App) baseURL() (*url.URL, error) {
	if a.config.BaseURL != "" {
		return url.Parse(a.config.BaseURL)
	}
	abs, err := filepath.Abs(a.config.DocumentPath)
	if err != nil {
		return nil, err
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}, nil
}

// loadDocument parses the configured HTML document.
func (a *App) loadDocument(ctx context.Context) (*tree.Document, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading document...", "path", a.config.DocumentPath)

	base, err := a.baseURL()
	if err != nil {
		return nil, fmt.Errorf("failed to determine base URL: %w", err)
	}
	f, err := os.Open(a.config.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	doc, err := tree.ParseHTML(f, base)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", a.config.DocumentPath, err)
	}
	logger.Info("Document loaded.", "path", a.config.DocumentPath, "base_url", base.String())
	return doc, nil
}
