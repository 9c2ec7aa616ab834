package asset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newWebRoot lays out a web root with an index page, a nested asset, and a
// sibling directory holding a secret the root must never expose.
func newWebRoot(t *testing.T) (root, outside string) {
	t.Helper()
	base := t.TempDir()
	root = filepath.Join(base, "dist")
	outside = filepath.Join(base, "secrets")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "app.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "flag.txt"), []byte("secret"), 0o644))
	return root, outside
}

func TestResolve_ValidPaths(t *testing.T) {
	root, _ := newWebRoot(t)

	for _, requested := range []string{
		"index.html",
		"./index.html",
		"css/app.css",
		"css/../index.html", // cleans to a path inside the root
	} {
		got, err := Resolve(root, requested)
		require.NoError(t, err, "requested %q", requested)
		assert.True(t, filepath.IsAbs(got), "resolved path should be absolute")

		_, err = os.Stat(got)
		assert.NoError(t, err)
	}
}

func TestResolve_Traversal(t *testing.T) {
	root, _ := newWebRoot(t)

	for _, requested := range []string{
		"..",
		"../secrets/flag.txt",
		"css/../../secrets/flag.txt",
		"../../etc/passwd",
		"/etc/passwd",
	} {
		_, err := Resolve(root, requested)
		assert.ErrorIs(t, err, ErrPathTraversal, "requested %q", requested)
	}
}

func TestResolve_MissingAsset(t *testing.T) {
	root, _ := newWebRoot(t)

	_, err := Resolve(root, "nope.js")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_DirectoryIsNotAnAsset(t *testing.T) {
	root, _ := newWebRoot(t)

	_, err := Resolve(root, "css")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_SymlinkEscape(t *testing.T) {
	root, outside := newWebRoot(t)
	link := filepath.Join(root, "leak.txt")
	require.NoError(t, os.Symlink(filepath.Join(outside, "flag.txt"), link))

	_, err := Resolve(root, "leak.txt")
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestResolve_SymlinkInsideRootIsAllowed(t *testing.T) {
	root, _ := newWebRoot(t)
	require.NoError(t, os.Symlink(filepath.Join(root, "index.html"), filepath.Join(root, "home.html")))

	got, err := Resolve(root, "home.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(got), "index.html")
}

func TestResolve_MissingWebRoot(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "absent"), "index.html")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPathTraversal)
}
