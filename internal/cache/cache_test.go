package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateArchiveAndEntryLookup(t *testing.T) {
	root := t.TempDir()
	c, err := New(root, false)
	require.NoError(t, err)

	a, err := c.CreateArchive(1, "file:///example.zip")
	require.NoError(t, err)
	assert.Equal(t, "file:///example.zip", a.Location())
	assert.Equal(t, 0, a.Revision())

	rev, err := a.UpdateRevision(map[string][]byte{"lib/foo.so": []byte("binary")})
	require.NoError(t, err)
	assert.Equal(t, 1, rev)

	entry, err := a.GetEntry("lib/foo.so")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(a.CurrentRevisionDir(), "lib/foo.so"), entry)

	missing, err := a.GetEntry("does/not/exist")
	require.NoError(t, err)
	assert.Empty(t, missing)

	assert.Positive(t, a.SizeBytes())
	require.NoError(t, a.Close())
}

func TestFrameworkBundleUsesWorkingDirectory(t *testing.T) {
	root := t.TempDir()
	c, err := New(root, false)
	require.NoError(t, err)

	a, err := c.CreateArchive(0, "")
	require.NoError(t, err)

	wd := a.CurrentRevisionDir()
	assert.NotEmpty(t, wd)

	_, err = a.UpdateRevision(nil)
	assert.Error(t, err, "the framework bundle has no revisions")
}

func TestCleanWipesStorageRoot(t *testing.T) {
	root := t.TempDir()
	c, err := New(root, false)
	require.NoError(t, err)

	a, err := c.CreateArchive(2, "loc")
	require.NoError(t, err)
	_, err = a.UpdateRevision(map[string][]byte{"f": []byte("x")})
	require.NoError(t, err)

	c2, err := New(root, true)
	require.NoError(t, err)
	assert.Equal(t, root, c2.Root())

	entries, err := filepath.Glob(filepath.Join(root, "bundle2"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
