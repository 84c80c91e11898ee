// Package fsutil provides file system helpers for locating declaration
// libraries.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindFilesByExtension walks root and returns every regular file whose name
// ends in ext, sorted by path. Hidden files and directories (leading dot) are
// skipped. A root that is a single matching file is returned as-is.
func FindFilesByExtension(root, ext string) ([]string, error) {
	if ext == "" {
		panic("extension must not be empty")
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("library path %s: %w", root, err)
	}
	if !info.IsDir() {
		if strings.HasSuffix(info.Name(), ext) {
			return []string{root}, nil
		}
		return nil, fmt.Errorf("library path %s is not a directory or %s file", root, ext)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := path != root && strings.HasPrefix(d.Name(), ".")
		switch {
		case d.IsDir() && hidden:
			return filepath.SkipDir
		case d.IsDir(), hidden, !d.Type().IsRegular():
			return nil
		case strings.HasSuffix(d.Name(), ext):
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
