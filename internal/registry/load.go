package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/livebind/internal/ctxlog"
	"github.com/specialistvlad/livebind/internal/fsutil"
)

// Library is a declaration library: HCL context declarations merged into
// every script that names it.
type Library struct {
	Name     string
	Filename string
	Source   []byte
}

// RegisterLibrary registers declaration source under name.
func (r *Registry) RegisterLibrary(lib *Library) {
	if r.taken(lib.Name) {
		panic(fmt.Sprintf("module with name '%s' already registered", lib.Name))
	}
	r.LibraryRegistry[lib.Name] = lib
}

// LoadLibrariesRecursively registers every .hcl file under path as a library
// named after the file's base name. Files are parsed up front so syntax
// errors surface at startup.
func (r *Registry) LoadLibrariesRecursively(ctx context.Context, path string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Registry loading declaration libraries...", "path", path)

	filePaths, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		logger.Error("Failed to walk libraries directory", "path", path, "error", err)
		return err
	}
	if len(filePaths) == 0 {
		logger.Warn("No .hcl library files found in path", "path", path)
		return nil
	}

	parser := hclparse.NewParser()
	for _, filePath := range filePaths {
		if _, diags := parser.ParseHCLFile(filePath); diags.HasErrors() {
			return fmt.Errorf("failed to parse HCL file %s: %w", filePath, diags)
		}
		src, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read library %s: %w", filePath, err)
		}
		name := strings.TrimSuffix(filepath.Base(filePath), ".hcl")
		if r.taken(name) {
			return fmt.Errorf("library %s: name '%s' already registered", filePath, name)
		}
		r.RegisterLibrary(&Library{Name: name, Filename: filePath, Source: src})
		logger.Debug("Loaded declaration library", "name", name, "file", filePath)
	}

	logger.Info("Registry loaded successfully.", "libraries_loaded", len(r.LibraryRegistry))
	return nil
}
