package decoder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsArchivePath(t *testing.T) {
	assert.True(t, IsArchivePath("a.rar"))
	assert.True(t, IsArchivePath("A.RAR"))
	assert.True(t, IsArchivePath("archive.r00"))
	assert.False(t, IsArchivePath("archive.txt"))
	assert.False(t, IsArchivePath("archive.rarx"))
}

func TestDiscoverVolumesPartStyle(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"movie.part01.rar", "movie.part02.rar", "movie.part03.rar"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o600))
	}
	vols, err := DiscoverVolumes(filepath.Join(dir, "movie.part01.rar"))
	require.NoError(t, err)
	assert.Len(t, vols, 3)
}

func TestDiscoverVolumesLegacyRNNStyle(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"movie.rar", "movie.r00", "movie.r01"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o600))
	}
	vols, err := DiscoverVolumes(filepath.Join(dir, "movie.rar"))
	require.NoError(t, err)
	assert.Len(t, vols, 3)
}

func TestDiscoverVolumesSingleVolume(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "only.rar"), []byte("x"), 0o600))
	vols, err := DiscoverVolumes(filepath.Join(dir, "only.rar"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "only.rar")}, vols)
}
