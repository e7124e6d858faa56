package coordinator

import (
	"fmt"
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"

	"github.com/nunogt/rar2fs/internal/dirlist"
	"github.com/nunogt/rar2fs/internal/filecache"
	"github.com/nunogt/rar2fs/internal/rfs"
	"github.com/nunogt/rar2fs/internal/rlog"
)

// noAttr is returned for an xattr name this filesystem doesn't serve.
var noAttr = fuse.Status(syscall.ENODATA)

// rarMethodXAttr is the extended attribute exposing an archive member's
// compression method code (spec §4.5, §6).
const rarMethodXAttr = "user.rar2fs.method"

// FS implements pathfs.FileSystem over a Coordinator, grounded on
// other_examples/f95ff429_hanwen-go-fuse__fuse-api.go.go's path-based
// surface (GetAttr/OpenDir/Open/Readlink), wired to the real
// github.com/hanwen/go-fuse/v2/fuse/pathfs package. This is a read-only
// view onto archive contents (spec §4.5, §7): Mkdir, Unlink, Rmdir,
// Rename, Create, Open with write flags, and archiveFile.Write return
// EROFS; other mutating calls (Chmod, Truncate, Symlink, ...) are not
// overridden and get the embedded pathfs default's ENOSYS.
type FS struct {
	pathfs.FileSystem
	coord *Coordinator
}

// NewFS wraps coord as a pathfs.FileSystem.
func NewFS(coord *Coordinator) *FS {
	return &FS{
		FileSystem: pathfs.NewDefaultFileSystem(),
		coord:      coord,
	}
}

func errnoStatus(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	return fuse.Status(rfs.Errno(err))
}

// GetAttr resolves name and reports its size/mode, whether it's a real
// file, a directory, or an archive member.
func (f *FS) GetAttr(name string, _ *fuse.Context) (*fuse.Attr, fuse.Status) {
	virtual := "/" + name
	if name == "" {
		virtual = "/"
	}

	full := f.coord.fullPath(virtual)
	if info, err := os.Stat(full); err == nil {
		return attrFromFileInfo(info), fuse.OK
	}

	d, err := f.coord.Resolve(virtual)
	if err != nil {
		rlog.Debugf(virtual, "GetAttr: resolve failed: %v", err)
		return nil, errnoStatus(err)
	}
	if d == nil {
		return nil, fuse.ENOENT
	}
	return attrFromDescriptor(d), fuse.OK
}

// Open resolves name to a Descriptor and returns a nodefs.File reading
// from it.
func (f *FS) Open(name string, flags uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	if flags&(fuse.O_ANYWRITE) != 0 {
		return nil, fuse.Status(rfs.Errno(rfs.ErrReadOnly))
	}
	virtual := "/" + name
	d, err := f.coord.Resolve(virtual)
	if err != nil {
		return nil, errnoStatus(err)
	}
	if d == nil {
		full := f.coord.fullPath(virtual)
		fh, oerr := os.Open(full)
		if oerr != nil {
			return nil, fuse.ToStatus(oerr)
		}
		return nodefs.NewLoopbackFile(fh), fuse.OK
	}
	return &archiveFile{File: nodefs.NewDefaultFile(), coord: f.coord, desc: d}, fuse.OK
}

// OpenDir merges the real directory stream with archive-derived entries.
func (f *FS) OpenDir(name string, _ *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	virtual := "/" + name
	if name == "" {
		virtual = "/"
	}
	list, err := f.coord.Enumerate(virtual)
	if err != nil {
		return nil, errnoStatus(err)
	}
	var out []fuse.DirEntry
	for _, e := range list.Entries() {
		if !e.Valid {
			continue
		}
		mode := uint32(fuse.S_IFREG)
		if e.Kind == dirlist.DirectoryMarker {
			mode = fuse.S_IFDIR
		} else if e.Stat != nil && e.Stat.IsDir() {
			mode = fuse.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return out, fuse.OK
}

// Readlink returns the resolved descriptor's LinkTarget (spec §3's
// link_target field), or EINVAL when it is empty. Resolve does not
// populate LinkTarget, so archive members answer EINVAL.
func (f *FS) Readlink(name string, _ *fuse.Context) (string, fuse.Status) {
	virtual := "/" + name
	d, err := f.coord.Resolve(virtual)
	if err != nil {
		return "", errnoStatus(err)
	}
	if d == nil || d.LinkTarget == "" {
		return "", fuse.EINVAL
	}
	return d.LinkTarget, fuse.OK
}

// GetXAttr serves rarMethodXAttr for an archive member as the decimal
// Descriptor.Method; decoder.Member.Method is always 0, so the value served
// is "0". Everything else falls through as unsupported.
func (f *FS) GetXAttr(name string, attribute string, _ *fuse.Context) ([]byte, fuse.Status) {
	if attribute != rarMethodXAttr {
		return nil, noAttr
	}
	virtual := "/" + name
	d, err := f.coord.Resolve(virtual)
	if err != nil {
		return nil, errnoStatus(err)
	}
	if d == nil {
		return nil, noAttr
	}
	return []byte(fmt.Sprintf("%d", d.Method)), fuse.OK
}

// Every structural mutation is rejected: this filesystem is read-only.
func (f *FS) Mkdir(string, uint32, *fuse.Context) fuse.Status { return fuse.Status(rfs.Errno(rfs.ErrReadOnly)) }
func (f *FS) Unlink(string, *fuse.Context) fuse.Status        { return fuse.Status(rfs.Errno(rfs.ErrReadOnly)) }
func (f *FS) Rmdir(string, *fuse.Context) fuse.Status         { return fuse.Status(rfs.Errno(rfs.ErrReadOnly)) }
func (f *FS) Rename(string, string, *fuse.Context) fuse.Status {
	return fuse.Status(rfs.Errno(rfs.ErrReadOnly))
}
func (f *FS) Create(string, uint32, uint32, *fuse.Context) (nodefs.File, fuse.Status) {
	return nil, fuse.Status(rfs.Errno(rfs.ErrReadOnly))
}

func attrFromFileInfo(info os.FileInfo) *fuse.Attr {
	a := &fuse.Attr{
		Size:  uint64(info.Size()),
		Mode:  uint32(info.Mode()),
		Mtime: uint64(info.ModTime().Unix()),
	}
	if info.IsDir() {
		a.Mode |= fuse.S_IFDIR
	} else {
		a.Mode |= fuse.S_IFREG
	}
	return a
}

func attrFromDescriptor(d *filecache.Descriptor) *fuse.Attr {
	a := &fuse.Attr{Mode: fuse.S_IFREG | 0o444}
	if d.Stat != nil {
		a.Size = uint64(d.Stat.Size())
		a.Mtime = uint64(d.Stat.ModTime().Unix())
	}
	if d.LinkTarget != "" {
		a.Mode = fuse.S_IFLNK | 0o444
	}
	return a
}

// archiveFile implements nodefs.File by reading through the Coordinator.
type archiveFile struct {
	nodefs.File
	coord *Coordinator
	desc  *filecache.Descriptor
}

func (a *archiveFile) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	n, err := a.coord.ReadAt(a.desc, dest, off)
	if err != nil {
		return nil, errnoStatus(err)
	}
	return fuse.ReadResultData(dest[:n]), fuse.OK
}

func (a *archiveFile) GetAttr(out *fuse.Attr) fuse.Status {
	*out = *attrFromDescriptor(a.desc)
	return fuse.OK
}

func (a *archiveFile) Write([]byte, int64) (uint32, fuse.Status) {
	return 0, fuse.Status(rfs.Errno(rfs.ErrReadOnly))
}

func (a *archiveFile) Release() {}

var _ pathfs.FileSystem = (*FS)(nil)
