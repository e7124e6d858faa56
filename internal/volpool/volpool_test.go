package volpool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVolume(t *testing.T, dir string, idx int, content string) string {
	t.Helper()
	path := filepath.Join(dir, "vol"+string(rune('0'+idx)))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadAtReadsExpectedBytes(t *testing.T) {
	dir := t.TempDir()
	v0 := writeVolume(t, dir, 0, "hello world")

	pool := New(func(volume int) string {
		if volume == 0 {
			return v0
		}
		t.Fatalf("unexpected volume %d", volume)
		return ""
	})
	defer pool.Close()

	buf := make([]byte, 5)
	n, err := pool.ReadAt(0, 6, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))
}

func TestReleasedHandleIsReusedOnExactOffsetMatch(t *testing.T) {
	dir := t.TempDir()
	v0 := writeVolume(t, dir, 0, "0123456789")

	opens := 0
	pool := New(func(volume int) string {
		opens++
		return v0
	})
	defer pool.Close()

	buf := make([]byte, 2)
	_, err := pool.ReadAt(0, 0, buf)
	require.NoError(t, err)
	_, err = pool.ReadAt(0, 2, buf)
	require.NoError(t, err)

	assert.Equal(t, 1, opens, "second sequential read should reuse the pooled handle, not reopen")
}

func TestCloseReleasesAllHandles(t *testing.T) {
	dir := t.TempDir()
	v0 := writeVolume(t, dir, 0, "abc")

	pool := New(func(volume int) string { return v0 })
	buf := make([]byte, 1)
	_, err := pool.ReadAt(0, 0, buf)
	require.NoError(t, err)

	assert.NoError(t, pool.Close())
	assert.Empty(t, pool.handles)
}
