package recursion

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nunogt/rar2fs/internal/rfs"
)

// MaxExtractBufferSize caps a single in-memory extraction, per spec §4.4
// ("capped at 1 GiB per extraction, over which the extraction aborts").
const MaxExtractBufferSize = 1 * 1024 * 1024 * 1024

// ExtractBuffer is a growable byte buffer fed by the decoder's streaming
// sink during a nested-archive extraction. It mirrors
// original_source/src/recursion.c's extract_to_memory_callback: capacity
// doubles on demand, capped at MaxExtractBufferSize.
type ExtractBuffer struct {
	data  []byte
	Error bool
}

// WriteChunk appends chunk to the buffer, doubling capacity as needed. It
// implements the streaming sink contract referenced by spec §9's answer to
// the extract_nested_rar_to_memory open question: Continue|Abort expressed
// as (ok bool).
func (b *ExtractBuffer) WriteChunk(chunk []byte) (ok bool) {
	if b.Error || len(chunk) == 0 {
		return !b.Error
	}
	needed := len(b.data) + len(chunk)
	if needed > MaxExtractBufferSize {
		b.Error = true
		return false
	}
	if cap(b.data) < needed {
		newCap := cap(b.data) * 2
		if newCap < needed {
			newCap = needed
		}
		if newCap > MaxExtractBufferSize {
			newCap = MaxExtractBufferSize
		}
		grown := make([]byte, len(b.data), newCap)
		copy(grown, b.data)
		b.data = grown
	}
	b.data = append(b.data, chunk...)
	return true
}

// Bytes returns the buffer's accumulated content.
func (b *ExtractBuffer) Bytes() []byte { return b.data }

// Reset clears the buffer for reuse.
func (b *ExtractBuffer) Reset() {
	b.data = nil
	b.Error = false
}

// SpillToTempFile writes buf to a freshly created, owner-only, unique file
// under dir (os.TempDir() if empty) and returns its path. The original C
// used mkstemp("/tmp/rar2fs_nested_XXXXXX"); this uses a UUID-suffixed name
// under os.CreateTemp for the same collision-free guarantee without a
// hand-rolled random-suffix generator.
func SpillToTempFile(dir string, buf *ExtractBuffer) (path string, err error) {
	if buf == nil || len(buf.data) == 0 {
		return "", rfs.New(rfs.KindInvalidPath, errors.New("empty extraction buffer"))
	}

	f, err := os.CreateTemp(dir, "rar2fs-nested-"+uuid.NewString()+"-*")
	if err != nil {
		return "", rfs.New(rfs.KindIO, errors.Wrap(err, "create temp file"))
	}
	path = f.Name()

	if _, err := f.Write(buf.data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", rfs.New(rfs.KindIO, errors.Wrap(err, "write temp file"))
	}
	if err := f.Sync(); err != nil {
		// Not fatal: data is already written, fsync is best-effort durability.
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", rfs.New(rfs.KindIO, errors.Wrap(err, "close temp file"))
	}
	return path, nil
}
