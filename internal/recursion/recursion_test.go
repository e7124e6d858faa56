package recursion

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministicAndSensitive(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 2000) // > 8KiB
	fp1 := ComputeFingerprint(data, int64(len(data)), 1234)
	fp2 := ComputeFingerprint(data, int64(len(data)), 1234)
	assert.Equal(t, fp1, fp2)

	mutated := append([]byte(nil), data...)
	mutated[0] ^= 0xFF
	fp3 := ComputeFingerprint(mutated, int64(len(mutated)), 1234)
	assert.NotEqual(t, fp1, fp3)

	mutatedTail := append([]byte(nil), data...)
	mutatedTail[len(mutatedTail)-1] ^= 0xFF
	fp4 := ComputeFingerprint(mutatedTail, int64(len(mutatedTail)), 1234)
	assert.NotEqual(t, fp1, fp4)
}

func TestFingerprintShortArchiveOnlyHashesFirstChunk(t *testing.T) {
	data := []byte("short archive body")
	fp := ComputeFingerprint(data, int64(len(data)), 1)
	assert.NotZero(t, fp.Hash)

	// With no last chunk the XOR term is zero, so the result is the
	// first-chunk hash, serialized little-endian and hashed once more.
	first := fnv1a64(data)
	le := make([]byte, 8)
	for i := range le {
		le[i] = byte(first >> (8 * i))
	}
	assert.Equal(t, fnv1a64(le), fp.Hash)
}

func TestSanitizeCases(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantOK  bool
	}{
		{"../../etc/passwd", "", false},
		{`a\b\c`, "a/b/c", true},
		{"/abs", "", false},
		{`C:\x`, "", false},
		{"ok/path", "ok/path", true},
		{"", "", false},
		{"..", "", false},
		{"../x", "", false},
		{"foo/../bar", "foo/bar", true},
	}
	for _, c := range cases {
		got, ok := Sanitize(c.in)
		assert.Equal(t, c.wantOK, ok, "input %q", c.in)
		if c.wantOK {
			assert.Equal(t, c.want, got, "input %q", c.in)
		}
	}
}

func TestSanitizeRejectsOverlongPath(t *testing.T) {
	long := make([]byte, MaxNestedPathLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, ok := Sanitize(string(long))
	assert.False(t, ok)
}

func TestSanitizeRejectsInvalidUTF8(t *testing.T) {
	_, ok := Sanitize("bad\xffpath")
	assert.False(t, ok)
}

func TestPushPopIsIdentity(t *testing.T) {
	ctx := NewContext(5, 0)
	fp := Fingerprint{Hash: 1, Size: 2, Mtime: 3}

	depthBefore := ctx.Depth()
	totalBefore := ctx.TotalUnpacked()
	visitedBefore := ctx.visited

	require.NoError(t, ctx.Push(fp, "a.rar"))
	ctx.Pop()

	assert.Equal(t, depthBefore, ctx.Depth())
	assert.Equal(t, totalBefore, ctx.TotalUnpacked())
	assert.Equal(t, visitedBefore, ctx.visited)
}

func TestCycleDetection(t *testing.T) {
	ctx := NewContext(5, 0)
	fpA := Fingerprint{Hash: 1, Size: 10, Mtime: 100}
	fpB := Fingerprint{Hash: 2, Size: 20, Mtime: 200}

	require.NoError(t, ctx.Push(fpA, "A.rar"))
	require.NoError(t, ctx.Push(fpB, "B.rar"))

	assert.True(t, ctx.IsCycle(fpA))
	assert.False(t, ctx.IsCycle(Fingerprint{Hash: 99, Size: 1, Mtime: 1}))
}

func TestDepthLimit(t *testing.T) {
	ctx := NewContext(2, 0)
	require.NoError(t, ctx.Push(Fingerprint{Hash: 1, Size: 1, Mtime: 1}, "a"))
	require.NoError(t, ctx.Push(Fingerprint{Hash: 2, Size: 1, Mtime: 1}, "b"))
	err := ctx.Push(Fingerprint{Hash: 3, Size: 1, Mtime: 1}, "c")
	assert.Error(t, err)
}

func TestCheckSizeGuard(t *testing.T) {
	ctx := NewContext(5, 100)
	require.NoError(t, ctx.CheckSize(60))
	assert.Equal(t, int64(60), ctx.TotalUnpacked())

	err := ctx.CheckSize(41)
	assert.Error(t, err)
	assert.Equal(t, int64(60), ctx.TotalUnpacked())

	require.NoError(t, ctx.CheckSize(40))
	assert.Equal(t, int64(100), ctx.TotalUnpacked())
}

func TestExtractBufferCapsAtOneGiB(t *testing.T) {
	var buf ExtractBuffer
	chunk := bytes.Repeat([]byte{1}, 1<<20) // 1 MiB
	for i := 0; i < 1024; i++ {
		if !buf.WriteChunk(chunk) {
			break
		}
	}
	assert.True(t, buf.WriteChunk(chunk) == false || len(buf.Bytes()) <= MaxExtractBufferSize)
}

func TestSpillToTempFileRoundTrips(t *testing.T) {
	var buf ExtractBuffer
	buf.WriteChunk([]byte("hello nested archive"))

	path, err := SpillToTempFile(t.TempDir(), &buf)
	require.NoError(t, err)
	defer func() { _ = os.Remove(path) }()

	assert.FileExists(t, path)
}
