// Package dirlist builds the ordered, deduplicated directory listing served
// by readdir: the merge of archive-member entries with real-filesystem
// entries. It re-expresses the original intrusively-linked bubble-sort list
// (original_source/src/dirlist.c) over a plain Go slice.
package dirlist

import (
	"hash/fnv"
	"os"
	"sort"
)

// Kind distinguishes where an entry came from.
type Kind int

const (
	// RegularFS is an entry found on the underlying real filesystem.
	RegularFS Kind = iota
	// ArchiveMember is an entry derived from a RAR archive's member list.
	ArchiveMember
	// DirectoryMarker is a synthetic directory entry (an archive member's
	// parent path that isn't itself a member).
	DirectoryMarker
)

// Entry is one (name, kind, hash, valid, stat) tuple, per spec §3.
type Entry struct {
	Name  string
	Kind  Kind
	Hash  uint32
	Valid bool
	Stat  os.FileInfo
}

func nameHash(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// List is a directory entry list. The zero value is not ready for use;
// call Open (or New, which calls Open for you).
type List struct {
	entries []*Entry
	closed  bool
}

// New returns a freshly opened list, equivalent to calling Open on a
// zero-value List — dir_entry_add's "no list -> create one" path.
func New() *List {
	l := &List{}
	l.Open()
	return l
}

// Open initializes root as an empty list (the sentinel head in the C
// original; here, simply an empty slice).
func (l *List) Open() {
	l.entries = nil
	l.closed = false
}

// Add appends a new entry for (name, kind), or returns the existing entry
// if one with the same (name, kind) pair is already present — the pair is
// the dedup key per spec §3 ("the first occurrence of any (name, kind)
// pair is valid"). Add does not create a list: a nil receiver panics, and
// a fresh list comes from New.
func (l *List) Add(name string, st os.FileInfo, kind Kind) *Entry {
	if l == nil {
		panic("dirlist: Add called on nil list; call New() first")
	}
	h := nameHash(name)
	for _, e := range l.entries {
		if e.Hash == h && e.Name == name && e.Kind == kind {
			return e
		}
	}
	e := &Entry{Name: name, Kind: kind, Hash: h, Valid: true, Stat: st}
	l.entries = append(l.entries, e)
	return e
}

// Close sorts entries ascending by (name, kind) and marks every entry after
// the first of a run of equal names invalid, whatever its kind. Because
// the sort orders kinds ascending, a RegularFS entry always wins over an
// ArchiveMember one of the same name regardless of the order they were
// added in, matching the original's explicit comment that "regular fs
// entries should always have priority".
func (l *List) Close() {
	sort.SliceStable(l.entries, func(i, j int) bool {
		a, b := l.entries[i], l.entries[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Kind < b.Kind
	})

	// Entries sharing a name always share a hash (computed from the name
	// alone), so the only real discriminant left is ordering: Kind's
	// ascending value already places RegularFS before ArchiveMember
	// before DirectoryMarker, so keeping the first of any run of equal
	// names valid and invalidating the rest both dedups and gives
	// RegularFS the precedence spec §3 requires.
	for i := 0; i+1 < len(l.entries); i++ {
		cur, next := l.entries[i], l.entries[i+1]
		if cur.Name == next.Name {
			next.Valid = false
		}
	}
	l.closed = true
}

// Entries returns the list's entries in their current order. After Close,
// this is sorted and deduplicated per the package contract.
func (l *List) Entries() []*Entry {
	if l == nil {
		return nil
	}
	return l.entries
}

// Dup returns an independent deep copy of l.
func (l *List) Dup() *List {
	cp := &List{closed: l.closed}
	cp.entries = make([]*Entry, len(l.entries))
	for i, e := range l.entries {
		ecopy := *e
		cp.entries[i] = &ecopy
	}
	return cp
}

// Append appends copies of b's entries onto a. Both a and b must be heads
// (i.e. obtained from New/Open, not a sub-slice) — the original's TODO
// ("make sure list1/list2 are heads") becomes an explicit invariant here:
// violating it is a programmer error, so this panics rather than silently
// corrupting a sub-list.
func Append(a, b *List) {
	if a == nil || b == nil {
		panic("dirlist: Append requires non-nil list heads")
	}
	for _, e := range b.entries {
		ecopy := *e
		a.entries = append(a.entries, &ecopy)
	}
}

// Free releases l's storage. With Go's GC this is a no-op kept for API
// symmetry with the C original's dir_list_free and to give callers an
// explicit point to stop holding a list alive.
func (l *List) Free() {
	if l == nil {
		return
	}
	l.entries = nil
}
