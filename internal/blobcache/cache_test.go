package blobcache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir())
	require.NoError(t, err)
	return c
}

func TestLoadMissingKeyReturnsNil(t *testing.T) {
	c := newCache(t)
	assert.Nil(t, c.Load("railway_JR-East"))
	assert.False(t, c.Exists("railway_JR-East"))
}

func TestSaveAndLoad(t *testing.T) {
	c := newCache(t)
	require.NoError(t, c.Save([]byte(`[{"a":1}]`), "railway_JR-East"))
	assert.Equal(t, []byte(`[{"a":1}]`), c.Load("railway_JR-East"))

	// Overwrite replaces the whole value
	require.NoError(t, c.Save([]byte(`[]`), "railway_JR-East"))
	assert.Equal(t, []byte(`[]`), c.Load("railway_JR-East"))

	_, err := os.Stat(c.Path("railway_JR-East") + tmpSuffix)
	assert.True(t, os.IsNotExist(err), "temp file must not survive a successful save")
}

func TestInterruptedSaveLeavesPreviousValue(t *testing.T) {
	c := newCache(t)
	require.NoError(t, c.Save([]byte("complete"), "k"))

	// A crash after writing the temp file but before the rename
	require.NoError(t, os.WriteFile(c.Path("k")+tmpSuffix, []byte("parti"), 0644))
	assert.Equal(t, []byte("complete"), c.Load("k"))

	// The next save overwrites the stale temp file
	require.NoError(t, c.Save([]byte("next"), "k"))
	assert.Equal(t, []byte("next"), c.Load("k"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSaveFromFailureKeepsTargetUntouched(t *testing.T) {
	c := newCache(t)
	require.NoError(t, c.Save([]byte("old"), "gtfs_zip"))

	err := c.SaveFrom(failingReader{}, "gtfs_zip")
	require.Error(t, err)
	assert.Equal(t, []byte("old"), c.Load("gtfs_zip"))

	require.NoError(t, c.SaveFrom(bytes.NewReader([]byte("new")), "gtfs_zip"))
	assert.Equal(t, []byte("new"), c.Load("gtfs_zip"))
}

func TestSaveDirectoryReplacesInsteadOfMerging(t *testing.T) {
	c := newCache(t)

	first := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(first, "routes.txt"), []byte("route_id\n1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(first, "stale.txt"), []byte("x"), 0644))
	require.NoError(t, c.SaveDirectory(first, "toei_gtfs"))

	assert.True(t, c.DirectoryExists("toei_gtfs"))

	second := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(second, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(second, "routes.txt"), []byte("route_id\n2\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(second, "nested", "a.txt"), []byte("a"), 0644))
	require.NoError(t, c.SaveDirectory(second, "toei_gtfs"))

	dir := c.LoadDirectoryPath("toei_gtfs")
	require.NotEmpty(t, dir)

	data, err := os.ReadFile(filepath.Join(dir, "routes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "route_id\n2\n", string(data))

	_, err = os.Stat(filepath.Join(dir, "stale.txt"))
	assert.True(t, os.IsNotExist(err), "files from the previous directory must be gone")

	_, err = os.Stat(filepath.Join(dir, "nested", "a.txt"))
	assert.NoError(t, err)
}

func TestLoadDirectoryPathMissing(t *testing.T) {
	c := newCache(t)
	assert.Equal(t, "", c.LoadDirectoryPath("nope"))
	assert.False(t, c.DirectoryExists("nope"))
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "odpt.Railway%3AJR-East.Yamanote", SanitizeKey("odpt.Railway:JR-East.Yamanote"))
	assert.Equal(t, "%2E.", SanitizeKey(".."))
	assert.False(t, strings.Contains(SanitizeKey("../../etc/passwd"), "/"))
	assert.Equal(t, "都営バス_20250401", SanitizeKey("都営バス_20250401"))
	assert.Equal(t, "a%25b", SanitizeKey("a%b"))
}

func TestSanitizeKeyKeepsKeysDistinct(t *testing.T) {
	keys := []string{
		"a/b", "a_b", "a:b", "a%2Fb", "a%b", "", "%", ".", "..", "%2E",
		"dirs", "%64irs", "k", "k.tmp", "k%2Etmp", "\xff", "\xef\xbf\xbd",
	}
	seen := make(map[string]string)
	for _, k := range keys {
		name := SanitizeKey(k)
		prev, dup := seen[name]
		assert.False(t, dup, "%q and %q both map to %q", prev, k, name)
		seen[name] = k
		assert.NotContains(t, name, "/")
		assert.NotEqual(t, dirsName, name)
		assert.False(t, strings.HasSuffix(name, tmpSuffix), name)
	}

	c := newCache(t)
	require.NoError(t, c.Save([]byte("slash"), "a/b"))
	require.NoError(t, c.Save([]byte("underscore"), "a_b"))
	assert.Equal(t, []byte("slash"), c.Load("a/b"))
	assert.Equal(t, []byte("underscore"), c.Load("a_b"))
}
