// Package volpool pools open volume file handles for the "raw read" fast
// path: members stored without compression are read directly from volume
// bytes instead of through the decoder, so repeated reads shouldn't pay
// the cost of reopening a volume file each time.
//
// Adapted from rclone's backend/archive/squashfs cache.go, generalized
// from a single squashfs image to a RAR's sequence of numbered volumes
// (.part01.rar, .part02.rar, ...), keyed by (volume index, offset)
// instead of squashfs's single-file offset.
package volpool

import (
	"fmt"
	"os"
	"sync"
)

// key identifies a pooled handle by which volume it's open against and
// the offset it would next read from without seeking.
type key struct {
	volume int
	offset int64
}

type handle struct {
	key key
	f   *os.File
}

// Pool caches open *os.File handles per archive, reusing a handle whose
// next-read offset already matches instead of seeking or reopening.
type Pool struct {
	volumePath func(volume int) string

	mu      sync.Mutex
	handles []handle
}

// New builds a Pool whose volumePath resolves a volume index (0-based) to
// its on-disk path.
func New(volumePath func(volume int) string) *Pool {
	return &Pool{volumePath: volumePath}
}

// Open returns a handle positioned to read volume at offset, preferring an
// exact (volume, offset) match from the pool, else any pooled handle for
// the right volume (which will need a Seek), else opening a fresh file.
func (p *Pool) Open(volume int, offset int64) (*os.File, error) {
	want := key{volume: volume, offset: offset}

	p.mu.Lock()
	for i, h := range p.handles {
		if h.key == want {
			p.handles = append(p.handles[:i], p.handles[i+1:]...)
			p.mu.Unlock()
			return h.f, nil
		}
	}
	for i, h := range p.handles {
		if h.key.volume == volume {
			p.handles = append(p.handles[:i], p.handles[i+1:]...)
			p.mu.Unlock()
			if _, err := h.f.Seek(offset, os.SEEK_SET); err != nil {
				_ = h.f.Close()
				return nil, fmt.Errorf("seek volume %d: %w", volume, err)
			}
			return h.f, nil
		}
	}
	p.mu.Unlock()

	f, err := os.Open(p.volumePath(volume))
	if err != nil {
		return nil, fmt.Errorf("open volume %d: %w", volume, err)
	}
	if offset != 0 {
		if _, err := f.Seek(offset, os.SEEK_SET); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("seek volume %d: %w", volume, err)
		}
	}
	return f, nil
}

// Release returns f to the pool, recording that its next read offset
// (without further seeking) would be nextOffset.
func (p *Pool) Release(f *os.File, volume int, nextOffset int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handles = append(p.handles, handle{key: key{volume: volume, offset: nextOffset}, f: f})
}

// ReadAt reads len(b) bytes from volume starting at off, pooling the
// handle used across calls the way squashfs's cache.ReadAt does.
func (p *Pool) ReadAt(volume int, off int64, b []byte) (int, error) {
	f, err := p.Open(volume, off)
	if err != nil {
		return 0, err
	}
	n, err := f.ReadAt(b, off)
	p.Release(f, volume, off+int64(n))
	return n, err
}

// Close releases every pooled handle.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, h := range p.handles {
		if err := h.f.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.handles = nil
	return first
}
