package protect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalFollowsSymlinks(t *testing.T) {
	root := realTempDir(t)
	real := filepath.Join(root, "real")
	require.NoError(t, os.MkdirAll(filepath.Join(real, "sub"), 0o755))
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(real, link))

	got, err := Canonical(link)
	require.NoError(t, err)
	assert.Equal(t, real, got)

	got, err = Canonical(filepath.Join(link, "sub"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(real, "sub"), got)
}

func TestCanonicalResolvesDeepestExistingAncestor(t *testing.T) {
	root := realTempDir(t)
	real := filepath.Join(root, "real")
	require.NoError(t, os.MkdirAll(real, 0o755))
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(real, link))

	got, err := Canonical(filepath.Join(link, "missing", "deeper"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(real, "missing", "deeper"), got)

	got, err = Canonical(filepath.Join(root, "a", "..", "b"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "b"), got)
}

func TestCanonicalRejectsEmpty(t *testing.T) {
	_, err := Canonical("  ")
	assert.Error(t, err)
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/a/b", "/a/b"))
	assert.True(t, within("/a/b/c", "/a/b"))
	assert.False(t, within("/a/bc", "/a/b"))
	assert.False(t, within("/a", "/a/b"))
	assert.True(t, within("/a/..b", "/a"))
}

// realTempDir returns a temp dir with symlinks already resolved so expected
// values compare equal on platforms whose temp root is itself a symlink.
func realTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}
