package coordinator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, root string) *Coordinator {
	t.Helper()
	c, err := New(Options{SourceRoot: root, MaxDepth: 5, MaxUnpackedSize: 0, CacheCapacity: 0})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestSplitArchiveBoundaryFindsOwningArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "movie.rar")
	require.NoError(t, os.WriteFile(archive, []byte("not a real rar, just bytes"), 0o600))

	full := filepath.Join(archive, "sub", "file.txt")
	got, member, ok := splitArchiveBoundary(full)
	require.True(t, ok)
	assert.Equal(t, archive, got)
	assert.Equal(t, "sub/file.txt", member)
}

func TestSplitArchiveBoundaryNoArchiveInPath(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "a", "b", "c.txt")
	_, _, ok := splitArchiveBoundary(full)
	assert.False(t, ok)
}

func TestResolveMarksRealFileAsLocal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0o600))

	c := newTestCoordinator(t, dir)
	d, err := c.Resolve("/readme.txt")
	require.NoError(t, err)
	assert.Nil(t, d)

	r := c.cache.Get("/readme.txt")
	assert.True(t, r.IsLocal())
}

func TestResolveMissingPathReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	c := newTestCoordinator(t, dir)

	_, err := c.Resolve("/nope.rar/member.txt")
	assert.Error(t, err)
}

func TestEnumerateListsRealEntriesWithNoArchives(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o600))

	c := newTestCoordinator(t, dir)
	list, err := c.Enumerate("/")
	require.NoError(t, err)

	var names []string
	for _, e := range list.Entries() {
		if e.Valid {
			names = append(names, e.Name)
		}
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

func TestVirtualJoin(t *testing.T) {
	assert.Equal(t, "/a.rar", virtualJoin("/", "a.rar"))
	assert.Equal(t, "/dir/a.rar", virtualJoin("/dir", "a.rar"))
	assert.Equal(t, "/dir/a.rar/b.rar", virtualJoin("/dir/a.rar", "b.rar"))
}

func TestHideFromListingSurvivesCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := newTestCoordinator(t, dir)

	// resolveMember sets this on the container entry for a member it has
	// descended into; addArchiveMembers must see it on the next lookup.
	c.cache.Alloc("/outer.rar/inner.rar").HideFromListing = true

	r := c.cache.Get("/outer.rar/inner.rar")
	require.False(t, r.IsMissing())
	assert.True(t, r.Descriptor().HideFromListing)
}

func TestPoolForCachesAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a.rar")
	require.NoError(t, os.WriteFile(archive, []byte("x"), 0o600))

	c := newTestCoordinator(t, dir)
	p1 := c.poolFor(archive)
	p2 := c.poolFor(archive)
	assert.Same(t, p1, p2)
}
