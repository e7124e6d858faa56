// Package filecache is the process-wide mapping from virtual path to the
// descriptor that records where a file lives inside which archive:
// volume, offset, raw vs. cooked, encryption, multi-volume geometry, and
// nesting metadata (spec §3, §4.2).
package filecache

import (
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Flags is a bit set matching the C original's flags_uint32 union: whole-
// word read/reset is exposed alongside named accessors (spec §9).
type Flags uint32

const (
	FlagRaw Flags = 1 << iota
	FlagMultipart
	FlagForceDir
	FlagVsizeFixupNeeded
	FlagEncrypted
	FlagVsizeResolved
	FlagDetectionDeferred
	FlagIsNestedRar
	FlagUnresolved
	FlagDryRunDone
	FlagCheckAtime
	FlagDirectIO
	FlagAviTested
	FlagSaveEOF
)

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

// VolumeType distinguishes old-style vs. new-style multi-volume naming.
type VolumeType int

const (
	VolumeTypeOld VolumeType = iota
	VolumeTypeNew
)

// Descriptor is one per virtual path that maps to an archive-backed file,
// per the spec §3 table.
type Descriptor struct {
	ArchivePath string // filesystem path to the RAR (first volume)
	MemberName  string // name of the file inside the archive
	LinkTarget  string // optional symlink target
	Method      int16  // compression method code (for extended attrs)
	Stat        os.FileInfo

	Offset         int64 // byte offset within volume (raw mode only)
	VsizeFirst     int64 // logical size of first volume (raw)
	VsizeRealFirst int64 // on-disk size of first volume
	VsizeNext      int64 // logical size of subsequent volumes (raw)
	VsizeRealNext  int64 // on-disk size of subsequent volumes

	VnoBase  int16
	VnoFirst int16
	Vlen     int16
	Vpos     int16
	Vtype    VolumeType

	Flags Flags

	NestedDepth     uint8  // 0 if top level, else recursion level
	HideFromListing bool   // hide a nested RAR member once it's been unpacked
	ParentArchive   string // owning archive path if nested
}

// Clone returns an independent deep copy of d.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

// lookupResult is the sum type replacing the C original's pointer
// sentinels (LOCAL_FS_ENTRY, LOOP_FS_ENTRY): {Missing, Local, Loop,
// Present(desc)} per spec §9's explicit redesign note.
type lookupKind int

const (
	lookupMissing lookupKind = iota
	lookupLocal
	lookupLoop
	lookupPresent
)

// Result is returned by Get.
type Result struct {
	kind lookupKind
	desc *Descriptor
}

// IsMissing reports the path was not found in the cache at all.
func (r Result) IsMissing() bool { return r.kind == lookupMissing }

// IsLocal reports the path resolves to the underlying real filesystem.
func (r Result) IsLocal() bool { return r.kind == lookupLocal }

// IsLoop reports the path was recognized as loop-forming.
func (r Result) IsLoop() bool { return r.kind == lookupLoop }

// Descriptor returns the cached descriptor, or nil if this Result isn't
// Present.
func (r Result) Descriptor() *Descriptor {
	if r.kind != lookupPresent {
		return nil
	}
	return r.desc
}

var (
	missingResult = Result{kind: lookupMissing}
	localResult   = Result{kind: lookupLocal}
	loopResult    = Result{kind: lookupLoop}
)

// DefaultCapacity bounds the descriptor map so a directory storm of
// archives can't grow it unboundedly (see SPEC_FULL.md DOMAIN STACK); it
// is large enough that no test or realistic mount ever observes eviction
// as a behavior change from an unbounded map.
const DefaultCapacity = 1 << 20

// Cache is the process-wide, concurrency-safe file cache: a single
// readers-writer lock guards the whole map (spec §5); Get takes a shared
// lock, Alloc/Invalidate take exclusive.
type Cache struct {
	mu    sync.RWMutex
	byKey *lru.Cache[string, *Descriptor]
}

// New constructs a Cache bounded to capacity entries (DefaultCapacity if
// capacity <= 0).
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[string, *Descriptor](capacity)
	if err != nil {
		// Only returns an error for a non-positive size, which can't
		// happen given the guard above.
		panic(err)
	}
	return &Cache{byKey: c}
}

// Alloc inserts a new zero-value Descriptor for path and returns it for
// in-place population. Caller must already hold no concurrent writer for
// this Cache (Alloc itself takes the exclusive lock internally).
func (c *Cache) Alloc(path string) *Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := &Descriptor{}
	c.byKey.Add(path, d)
	return d
}

// Get looks up path, returning a Result distinguishing "not present",
// "resolves to the real filesystem", "recognized loop", and "present".
func (c *Cache) Get(path string) Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byKey.Get(path)
	if !ok {
		return missingResult
	}
	switch d {
	case localSentinel:
		return localResult
	case loopSentinel:
		return loopResult
	default:
		return Result{kind: lookupPresent, desc: d}
	}
}

// MarkLocal records that path resolves to the underlying real filesystem,
// so future lookups can skip re-probing archives for it.
func (c *Cache) MarkLocal(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey.Add(path, localSentinel)
}

// MarkLoop records that path has been recognized as loop-forming.
func (c *Cache) MarkLoop(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey.Add(path, loopSentinel)
}

// Invalidate removes path from the cache.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey.Remove(path)
}

// Destroy releases all storage.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey.Purge()
}

// localSentinel and loopSentinel are distinguishable from any real
// *Descriptor by pointer identity, replacing the C original's
// LOCAL_FS_ENTRY/LOOP_FS_ENTRY pointer sentinels.
var (
	localSentinel = &Descriptor{}
	loopSentinel  = &Descriptor{}
)
