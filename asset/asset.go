// Package asset resolves requested virtual paths to files inside a plugin's
// declared web root, rejecting any form of traversal outside that root.
package asset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Asset resolution errors.
var (
	// ErrNoWebConfig indicates the plugin's manifest has no web section.
	ErrNoWebConfig = errors.New("plugin has no web configuration")

	// ErrPathTraversal indicates the requested path would resolve outside
	// the plugin's declared web root.
	ErrPathTraversal = errors.New("path traversal attempt detected")

	// ErrNotFound indicates the resolved path does not exist under the web
	// root, or is not a regular file.
	ErrNotFound = errors.New("asset not found")
)

// Resolve maps requested to an absolute filesystem path inside webRoot.
//
// The check is side-effect free apart from the final existence test and must
// be repeated on every request: the underlying filesystem may change between
// requests, so no "safe" result may be cached.
//
// Parent-directory segments, absolute-path overrides, and symlink escapes are
// all treated as traversal.
func Resolve(webRoot, requested string) (string, error) {
	if filepath.IsAbs(requested) || filepath.VolumeName(requested) != "" {
		return "", ErrPathTraversal
	}

	cleaned := filepath.Clean(filepath.FromSlash(requested))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	canonicalRoot, err := filepath.EvalSymlinks(webRoot)
	if err != nil {
		return "", fmt.Errorf("resolving web root %q: %w", webRoot, err)
	}

	candidate := filepath.Join(canonicalRoot, cleaned)

	// EvalSymlinks fails for paths that do not exist; a missing asset is
	// NotFound, not traversal.
	canonical, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", ErrNotFound
	}

	if canonical != canonicalRoot && !strings.HasPrefix(canonical, canonicalRoot+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	fi, err := os.Stat(canonical)
	if err != nil || !fi.Mode().IsRegular() {
		return "", ErrNotFound
	}

	return canonical, nil
}
