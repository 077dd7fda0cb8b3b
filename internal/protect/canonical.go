// Package protect decides which paths cleanup may delete while locks are held.
package protect

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Canonical resolves path to the form every protection comparison uses: an
// absolute path with symlinks followed as far as the filesystem allows. When
// path does not exist, its deepest existing ancestor is resolved and the
// missing remainder is joined lexically.
func Canonical(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	existing := abs
	var rest []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("resolve symlinks for %s: %w", existing, err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}
}

// within reports whether child equals parent or lies beneath it. Both paths
// must already be canonical.
func within(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
