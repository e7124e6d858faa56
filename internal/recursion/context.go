package recursion

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nunogt/rar2fs/internal/rfs"
	"github.com/nunogt/rar2fs/internal/rlog"
)

// AbsoluteMaxDepth is the hard ceiling on nesting depth regardless of
// configuration, per spec §3 ("bounded array sized to max depth") and §4.4
// ("rejects when depth == 10").
const AbsoluteMaxDepth = 10

// DefaultMaxDepth is used when the CLI doesn't override it.
const DefaultMaxDepth = 5

// DefaultMaxUnpackedSize is the default cumulative unpack budget (10 GiB).
const DefaultMaxUnpackedSize = 10 * 1024 * 1024 * 1024

// Context is a per-extraction recursion guard: current depth, visited
// fingerprints, the archive chain, and cumulative unpacked bytes. It is
// owned by a single calling goroutine for the lifetime of one nested
// extraction and is never shared — spec §5 ("no locking needed").
type Context struct {
	MaxDepth        int
	MaxUnpackedSize int64

	depth           int
	visited         [AbsoluteMaxDepth]Fingerprint
	archiveChain    [AbsoluteMaxDepth]string
	totalUnpacked   int64
}

// NewContext builds a Context with the given configured limits. A maxDepth
// outside [1, AbsoluteMaxDepth] falls back to DefaultMaxDepth, and a
// non-positive maxUnpackedSize falls back to DefaultMaxUnpackedSize.
func NewContext(maxDepth int, maxUnpackedSize int64) *Context {
	if maxDepth < 1 || maxDepth > AbsoluteMaxDepth {
		maxDepth = DefaultMaxDepth
	}
	if maxUnpackedSize <= 0 {
		maxUnpackedSize = DefaultMaxUnpackedSize
	}
	return &Context{MaxDepth: maxDepth, MaxUnpackedSize: maxUnpackedSize}
}

// Depth returns the current nesting depth.
func (c *Context) Depth() int { return c.depth }

// TotalUnpacked returns the cumulative unpacked byte count.
func (c *Context) TotalUnpacked() int64 { return c.totalUnpacked }

// IsCycle reports whether fp has already been visited in the current
// chain. Per spec §4.4, any nil-equivalent input is fail-secure and treated
// as a cycle; in Go there's no nil Fingerprint, so a zero-value fp (which
// ComputeFingerprint never produces for real data) is the fail-secure case.
func (c *Context) IsCycle(fp Fingerprint) bool {
	if fp == (Fingerprint{}) {
		rlog.Debugf(nil, "recursion: zero fingerprint treated as cycle (fail-secure)")
		return true
	}
	for i := 0; i < c.depth; i++ {
		if c.visited[i] == fp {
			rlog.Debugf(nil, "recursion: cycle detected at depth %d", i)
			chain := "["
			for j := 0; j < c.depth; j++ {
				if j > 0 {
					chain += " -> "
				}
				chain += c.archiveChain[j]
			}
			chain += "]"
			rlog.Debugf(nil, "recursion: archive chain %s", chain)
			return true
		}
	}
	return false
}

// Push records fp/archivePath at the current depth and increments depth.
// It returns an rfs.KindLoop error if the configured or absolute depth
// limit would be exceeded, matching spec §4.4's push contract
// (0 | -LOOP | -NOMEM | -INVAL).
func (c *Context) Push(fp Fingerprint, archivePath string) error {
	if c.depth >= c.MaxDepth || c.depth >= AbsoluteMaxDepth {
		return rfs.New(rfs.KindLoop, fmt.Errorf("recursion depth limit exceeded (depth=%d, max=%d) at %q", c.depth, c.MaxDepth, archivePath))
	}
	c.visited[c.depth] = fp
	c.archiveChain[c.depth] = archivePath
	c.depth++
	rlog.Debugf(archivePath, "recursion: pushed at depth %d/%d", c.depth, c.MaxDepth)
	return nil
}

// Pop decrements depth (clamped at zero) and clears the vacated slot.
func (c *Context) Pop() {
	if c.depth <= 0 {
		return
	}
	c.depth--
	c.visited[c.depth] = Fingerprint{}
	c.archiveChain[c.depth] = ""
}

// CheckSize accounts n additional unpacked bytes against the cumulative
// budget, rejecting negative n and anything that would push the total past
// MaxUnpackedSize. The overflow-safe comparison from spec §4.4
// (total > max - n) is used instead of total + n > max.
func (c *Context) CheckSize(n int64) error {
	if n < 0 {
		return rfs.New(rfs.KindInvalidPath, errors.Errorf("negative unpack size %d", n))
	}
	if c.totalUnpacked > c.MaxUnpackedSize-n {
		return rfs.New(rfs.KindTooLarge, errors.Errorf(
			"unpack size limit exceeded (total=%d + new=%d > max=%d)",
			c.totalUnpacked, n, c.MaxUnpackedSize))
	}
	c.totalUnpacked += n
	return nil
}
