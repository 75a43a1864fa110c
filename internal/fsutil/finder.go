// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// FindFiles resolves root to the files it names. A file is returned as is;
// a directory is searched recursively for names ending in extension. The
// result is sorted so files apply in a stable order.
func FindFiles(root string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root && !d.IsDir() {
			files = append(files, path)
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files under %s", extension, root)
	}

	slices.Sort(files)
	return files, nil
}
