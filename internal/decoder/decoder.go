// Package decoder adapts github.com/javi11/rardecode to the narrow
// surface the coordinator needs (spec §6's "Decoder" external interface):
// open an archive, list its members, and extract a member either to a
// stream or a bounded in-memory buffer.
package decoder

import (
	"io"

	"github.com/javi11/rardecode"

	"github.com/nunogt/rar2fs/internal/recursion"
	"github.com/nunogt/rar2fs/internal/rfs"
)

// Member describes one file inside an archive, projected from
// rardecode.FileHeader to the fields the coordinator and file cache need
// (spec §3's descriptor table).
type Member struct {
	Name         string
	IsDir        bool
	Size         int64
	PackedSize   int64
	Offset       int64
	// Method is always 0: rardecode.FileHeader exposes no compression
	// method code, so fromFileHeader has nothing to populate it from.
	Method       int16
	Encrypted    bool
	Solid        bool
	VolumeNumber int
	PartNumber   int
	TotalParts   int
	ModTime      int64 // unix seconds
}

// Handle wraps an open archive for repeated listing/extraction.
type Handle struct {
	name     string
	password string
	rc       *rardecode.ReadCloser
}

// Open opens the archive at path (its first volume), using password if
// the archive turns out to be encrypted. Grounded on
// other_examples/ad530b0b_javi11-rardecode__reader.go.go's OpenReader.
func Open(path, password string) (*Handle, error) {
	opts := optionsFor(password)
	rc, err := rardecode.OpenReader(path, opts...)
	if err != nil {
		return nil, rfs.New(rfs.KindCorrupt, wrapOpenErr(path, err))
	}
	return &Handle{name: path, password: password, rc: rc}, nil
}

// Close releases the archive's underlying volume handles.
func (h *Handle) Close() error {
	if h.rc == nil {
		return nil
	}
	return h.rc.Close()
}

// List returns every member across all volumes, via ReadHeaders.
func (h *Handle) List() ([]Member, error) {
	headers, err := h.rc.ReadHeaders()
	if err != nil {
		return nil, rfs.New(rfs.KindCorrupt, wrapOpenErr(h.name, err))
	}
	members := make([]Member, 0, len(headers))
	for _, fh := range headers {
		members = append(members, fromFileHeader(fh))
	}
	return members, nil
}

// Volumes returns the volume file names consulted so far, for the raw
// read path's volpool keying.
func (h *Handle) Volumes() []string {
	return h.rc.Volumes()
}

// ExtractStream opens member for sequential decompressed reading,
// advancing through the archive's member sequence with Next until name is
// found. rardecode.Reader doesn't support random access, so repeated
// extraction of different members reopens the archive — the coordinator's
// volpool exists precisely to make that cheap for the raw (stored) path.
func (h *Handle) ExtractStream(name string) (io.ReadCloser, error) {
	opts := optionsFor(h.password)
	rc, err := rardecode.OpenReader(h.name, opts...)
	if err != nil {
		return nil, rfs.New(rfs.KindCorrupt, wrapOpenErr(h.name, err))
	}
	for {
		fh, err := rc.Next()
		if err == io.EOF {
			_ = rc.Close()
			return nil, rfs.New(rfs.KindNotFound, err)
		}
		if err != nil {
			_ = rc.Close()
			return nil, rfs.New(rfs.KindCorrupt, err)
		}
		if fh.Name == name {
			return &readerAndCloser{r: &rc.Reader, c: rc}, nil
		}
	}
}

// ExtractToBuffer fully extracts member name into an
// internal/recursion.ExtractBuffer, used for nested-archive unpacking
// (spec §4.4's extract-to-memory contract).
func (h *Handle) ExtractToBuffer(name string) (*recursion.ExtractBuffer, error) {
	stream, err := h.ExtractStream(name)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var buf recursion.ExtractBuffer
	chunk := make([]byte, 256*1024)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			if !buf.WriteChunk(chunk[:n]) {
				return nil, rfs.New(rfs.KindTooLarge, io.ErrShortBuffer)
			}
		}
		if err == io.EOF {
			return &buf, nil
		}
		if err != nil {
			return nil, rfs.New(rfs.KindIO, err)
		}
	}
}

// readerAndCloser pairs the streaming Reader with the ReadCloser that
// owns the underlying volume file descriptors.
type readerAndCloser struct {
	r *rardecode.Reader
	c io.Closer
}

func (rc *readerAndCloser) Read(p []byte) (int, error) { return rc.r.Read(p) }
func (rc *readerAndCloser) Close() error                { return rc.c.Close() }

func fromFileHeader(fh *rardecode.FileHeader) Member {
	var modTime int64
	if !fh.ModificationTime.IsZero() {
		modTime = fh.ModificationTime.Unix()
	}
	return Member{
		Name:         fh.Name,
		IsDir:        fh.IsDir,
		Size:         fh.UnPackedSize,
		PackedSize:   fh.PackedSize,
		Offset:       fh.Offset,
		Encrypted:    fh.Encrypted,
		Solid:        fh.Solid,
		VolumeNumber: fh.VolumeNumber,
		PartNumber:   fh.PartNumber,
		TotalParts:   fh.TotalParts,
		ModTime:      modTime,
	}
}

func optionsFor(password string) []rardecode.Option {
	if password == "" {
		return nil
	}
	return []rardecode.Option{rardecode.Password(password)}
}

func wrapOpenErr(path string, err error) error {
	return &pathError{path: path, err: err}
}

type pathError struct {
	path string
	err  error
}

func (e *pathError) Error() string { return e.path + ": " + e.err.Error() }
func (e *pathError) Unwrap() error { return e.err }
