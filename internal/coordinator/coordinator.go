// Package coordinator glues the directory-entry list, file cache,
// configuration store, and recursive-unpack guard into the FUSE
// operations a mount needs: resolve, enumerate, read, descend (spec
// §4.5).
package coordinator

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/nunogt/rar2fs/internal/decoder"
	"github.com/nunogt/rar2fs/internal/dirlist"
	"github.com/nunogt/rar2fs/internal/filecache"
	"github.com/nunogt/rar2fs/internal/rarconfig"
	"github.com/nunogt/rar2fs/internal/recursion"
	"github.com/nunogt/rar2fs/internal/rfs"
	"github.com/nunogt/rar2fs/internal/rlog"
	"github.com/nunogt/rar2fs/internal/volpool"
)

// Options configures a Coordinator.
type Options struct {
	SourceRoot      string // real directory the archives live under
	MaxDepth        int
	MaxUnpackedSize int64
	CacheCapacity   int
}

// Coordinator is the mount's single point of contact with §4.1–§4.4.
type Coordinator struct {
	root     string
	maxDepth int
	maxSize  int64

	cache  *filecache.Cache
	config *rarconfig.Store
	pools  map[string]*volpool.Pool

	tempMu    sync.Mutex
	tempFiles []string // spilled nested-archive files, removed on Close
}

// New builds a Coordinator rooted at opts.SourceRoot.
func New(opts Options) (*Coordinator, error) {
	cfg := rarconfig.New()
	if err := cfg.Init(opts.SourceRoot, ""); err != nil {
		return nil, err
	}
	return &Coordinator{
		root:     opts.SourceRoot,
		maxDepth: opts.MaxDepth,
		maxSize:  opts.MaxUnpackedSize,
		cache:    filecache.New(opts.CacheCapacity),
		config:   cfg,
		pools:    map[string]*volpool.Pool{},
	}, nil
}

// Close releases all cached state and removes any nested-archive spill
// files still on disk.
func (c *Coordinator) Close() {
	c.cache.Destroy()
	c.config.Destroy()
	for _, p := range c.pools {
		_ = p.Close()
	}
	c.tempMu.Lock()
	for _, path := range c.tempFiles {
		_ = os.Remove(path)
	}
	c.tempFiles = nil
	c.tempMu.Unlock()
}

func (c *Coordinator) trackTemp(path string) {
	c.tempMu.Lock()
	c.tempFiles = append(c.tempFiles, path)
	c.tempMu.Unlock()
}

// fullPath maps a FUSE-relative virtual path to its real location under
// the source root.
func (c *Coordinator) fullPath(virtual string) string {
	return filepath.Join(c.root, filepath.FromSlash(virtual))
}

// splitArchiveBoundary walks upward from full looking for the first
// ancestor that is an on-disk archive volume, returning that archive's
// path and the member name remaining below it.
func splitArchiveBoundary(full string) (archivePath, member string, found bool) {
	dir := full
	for {
		if decoder.IsArchivePath(dir) {
			if info, err := os.Stat(dir); err == nil && !info.IsDir() {
				rel := strings.TrimPrefix(full[len(dir):], string(filepath.Separator))
				return dir, filepath.ToSlash(rel), true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", false
		}
		dir = parent
	}
}

// Resolve is spec §4.5's "Resolve": consult the file cache under shared
// lock; on miss, list the owning archive and populate a descriptor.
func (c *Coordinator) Resolve(virtual string) (*filecache.Descriptor, error) {
	if r := c.cache.Get(virtual); !r.IsMissing() {
		if r.IsLocal() {
			return nil, nil
		}
		if r.IsLoop() {
			return nil, rfs.New(rfs.KindLoop, errors.New("path recognized as loop"))
		}
		return r.Descriptor(), nil
	}

	full := c.fullPath(virtual)
	if _, err := os.Stat(full); err == nil && !decoder.IsArchivePath(full) {
		c.cache.MarkLocal(virtual)
		return nil, nil
	}

	archivePath, member, ok := splitArchiveBoundary(full)
	if !ok {
		return nil, rfs.New(rfs.KindNotFound, errors.Errorf("no archive owns %q", virtual))
	}
	virtualArchiveDir := strings.TrimSuffix(virtual, "/"+member)

	ctx := recursion.NewContext(c.maxDepth, c.maxSize)
	found, resolvedArchivePath, depth, err := c.resolveMember(ctx, archivePath, member, virtualArchiveDir)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, rfs.New(rfs.KindNotFound, errors.Errorf("%q not found in %q", member, archivePath))
	}

	d := c.cache.Alloc(virtual)
	d.ArchivePath = resolvedArchivePath
	d.MemberName = found.Name
	d.Method = found.Method
	d.Offset = found.Offset
	d.Vpos = int16(found.PartNumber)
	d.Vlen = int16(found.TotalParts)
	d.VnoFirst = int16(found.VolumeNumber)
	d.NestedDepth = uint8(depth)
	if depth > 0 {
		d.ParentArchive = archivePath
	}
	if found.Encrypted {
		d.Flags |= filecache.FlagEncrypted
	}
	if found.TotalParts > 1 {
		d.Flags |= filecache.FlagMultipart
	}
	if !found.Solid && !found.Encrypted {
		d.Flags |= filecache.FlagRaw
	}
	if decoder.IsArchivePath(found.Name) {
		d.Flags |= filecache.FlagIsNestedRar
	}
	return d, nil
}

// resolveMember looks up memberPath inside archivePath, descending through
// any nested-RAR path segment via Descend (spec §4.5) so a virtual path
// like "outer.rar/inner.rar/file.txt" resolves through the unpacked inner
// archive. containerVirtual is the virtual path of archivePath itself, used
// to mark a descended-into member's own listing entry HideFromListing.
// Returns the matched member, the real path of the archive that directly
// contains it (archivePath itself, or a nested spill file), and the nesting
// depth at which it was found.
func (c *Coordinator) resolveMember(ctx *recursion.Context, archivePath, memberPath, containerVirtual string) (found *decoder.Member, resolvedArchivePath string, depth int, err error) {
	password, _ := c.config.GetPassword(archivePath)
	h, err := decoder.Open(archivePath, password)
	if err != nil {
		return nil, "", 0, err
	}
	defer h.Close()

	members, err := h.List()
	if err != nil {
		return nil, "", 0, err
	}

	for i := range members {
		name := members[i].Name
		if alias, ok := c.config.GetAlias(archivePath, archivePath+"/"+name); ok {
			name = strings.TrimPrefix(alias, archivePath+"/")
		}
		if name == memberPath {
			return &members[i], archivePath, ctx.Depth(), nil
		}
	}

	head, rest, hasRest := strings.Cut(memberPath, "/")
	if !hasRest {
		return nil, "", 0, nil
	}
	for i := range members {
		if members[i].Name != head || !decoder.IsArchivePath(head) {
			continue
		}
		headVirtual := virtualJoin(containerVirtual, head)
		spillPath, derr := c.Descend(ctx, &filecache.Descriptor{ArchivePath: archivePath, MemberName: head}, os.TempDir())
		if derr != nil {
			return nil, "", 0, derr
		}
		c.trackTemp(spillPath)
		c.cache.Alloc(headVirtual).HideFromListing = true

		nested, nestedPath, nestedDepth, nerr := c.resolveMember(ctx, spillPath, rest, headVirtual)
		if nerr != nil {
			return nil, "", 0, nerr
		}
		return nested, nestedPath, nestedDepth, nil
	}
	return nil, "", 0, nil
}

// Enumerate is spec §4.5's "Enumerate": merge real directory entries with
// archive-derived ones, giving real entries precedence, then close the
// list to sort and dedup.
func (c *Coordinator) Enumerate(virtual string) (*dirlist.List, error) {
	full := c.fullPath(virtual)
	list := dirlist.New()

	realEntries, err := os.ReadDir(full)
	if err != nil && !os.IsNotExist(err) {
		return nil, rfs.New(rfs.KindIO, errors.Wrapf(err, "readdir %q", full))
	}
	for _, de := range realEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		list.Add(de.Name(), info, dirlist.RegularFS)
		if decoder.IsArchivePath(de.Name()) {
			archivePath := filepath.Join(full, de.Name())
			virtualArchivePath := virtualJoin(virtual, de.Name())
			c.addArchiveMembers(list, archivePath, virtualArchivePath)
		}
	}
	list.Close()
	return list, nil
}

// virtualJoin appends name to a virtual directory path using "/" always,
// regardless of host path separator conventions.
func virtualJoin(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// addArchiveMembers lists archivePath and appends each top-level member as
// an ARCHIVE_MEMBER entry; listing failures are logged and otherwise
// ignored, since a broken archive shouldn't break directory enumeration.
// A member whose cached descriptor carries HideFromListing is skipped: per
// SPEC_FULL.md supplement 1, a nested RAR that has already been unpacked
// shouldn't also appear as an unexpanded member of its parent.
func (c *Coordinator) addArchiveMembers(list *dirlist.List, archivePath, virtualArchivePath string) {
	password, _ := c.config.GetPassword(archivePath)
	h, err := decoder.Open(archivePath, password)
	if err != nil {
		rlog.Debugf(archivePath, "enumerate: open failed: %v", err)
		return
	}
	defer h.Close()

	members, err := h.List()
	if err != nil {
		rlog.Debugf(archivePath, "enumerate: list failed: %v", err)
		return
	}
	for _, m := range members {
		if strings.Contains(m.Name, "/") {
			continue // only top-level members show directly in this directory
		}
		if r := c.cache.Get(virtualJoin(virtualArchivePath, m.Name)); !r.IsMissing() {
			if d := r.Descriptor(); d != nil && d.HideFromListing {
				continue
			}
		}
		list.Add(m.Name, nil, dirlist.ArchiveMember)
	}
}

// ReadAt is spec §4.5's "Read": raw reads go straight to volume bytes via
// the pool; everything else streams through the decoder.
func (c *Coordinator) ReadAt(d *filecache.Descriptor, buf []byte, off int64) (int, error) {
	if d.Flags.Has(filecache.FlagRaw) {
		return c.readRaw(d, buf, off)
	}
	return c.readDecoded(d, buf, off)
}

func (c *Coordinator) readRaw(d *filecache.Descriptor, buf []byte, off int64) (int, error) {
	pool := c.poolFor(d.ArchivePath)
	n, err := pool.ReadAt(int(d.VnoFirst), d.Offset+off, buf)
	if err != nil && err != io.EOF {
		return n, rfs.New(rfs.KindIO, err)
	}
	return n, nil
}

func (c *Coordinator) readDecoded(d *filecache.Descriptor, buf []byte, off int64) (int, error) {
	password, _ := c.config.GetPassword(d.ArchivePath)
	h, err := decoder.Open(d.ArchivePath, password)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	stream, err := h.ExtractStream(d.MemberName)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	if off > 0 {
		if _, err := io.CopyN(io.Discard, stream, off); err != nil {
			return 0, rfs.New(rfs.KindIO, err)
		}
	}
	n, err := io.ReadFull(stream, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, rfs.New(rfs.KindIO, err)
	}
	return n, nil
}

func (c *Coordinator) poolFor(archivePath string) *volpool.Pool {
	if p, ok := c.pools[archivePath]; ok {
		return p
	}
	vols, err := decoder.DiscoverVolumes(archivePath)
	p := volpool.New(func(volume int) string {
		if err == nil && volume < len(vols) {
			return vols[volume]
		}
		return archivePath
	})
	c.pools[archivePath] = p
	return p
}

// Descend implements spec §4.5's "Descend into nested RAR": extract the
// inner archive to memory, fingerprint it, cycle-check, push, spill to a
// temp file, and return its path for the caller to recurse into. The
// caller is responsible for Pop()-ing ctx and removing the temp file on
// unwind.
func (c *Coordinator) Descend(ctx *recursion.Context, d *filecache.Descriptor, tempDir string) (path string, err error) {
	password, _ := c.config.GetPassword(d.ArchivePath)
	h, err := decoder.Open(d.ArchivePath, password)
	if err != nil {
		return "", err
	}
	defer h.Close()

	buf, err := h.ExtractToBuffer(d.MemberName)
	if err != nil {
		return "", err
	}
	if buf.Error {
		return "", rfs.New(rfs.KindTooLarge, errors.New("nested extraction exceeded buffer cap"))
	}

	if err := ctx.CheckSize(int64(len(buf.Bytes()))); err != nil {
		return "", err
	}

	var mtime int64
	if d.Stat != nil {
		mtime = d.Stat.ModTime().Unix()
	}
	fp := recursion.ComputeFingerprint(buf.Bytes(), int64(len(buf.Bytes())), mtime)
	if ctx.IsCycle(fp) {
		return "", rfs.New(rfs.KindLoop, errors.Errorf("cycle unpacking nested archive %q", d.MemberName))
	}
	if err := ctx.Push(fp, d.ArchivePath+"/"+d.MemberName); err != nil {
		return "", err
	}

	spillPath, err := recursion.SpillToTempFile(tempDir, buf)
	if err != nil {
		ctx.Pop()
		return "", err
	}
	return spillPath, nil
}
