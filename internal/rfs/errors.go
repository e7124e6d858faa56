// Package rfs maps the error kinds surfaced by the core (spec §7) to the
// POSIX errno values the FUSE layer must return, and to plain Go errors for
// callers that don't sit behind a FUSE callback.
package rfs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Kind is one of the error categories the core can surface.
type Kind int

const (
	// KindNone indicates no error.
	KindNone Kind = iota
	// KindNotFound is returned when a path is absent from both the real
	// filesystem and every consulted archive.
	KindNotFound
	// KindOutOfMemory is returned when an allocation fails.
	KindOutOfMemory
	// KindLoop is returned when recursion depth is exceeded or a cycle is
	// detected.
	KindLoop
	// KindTooLarge is returned when the cumulative unpack size limit is
	// exceeded.
	KindTooLarge
	// KindInvalidPath is returned when sanitization rejects a nested path.
	KindInvalidPath
	// KindEncrypted is returned when a password is needed or wrong.
	KindEncrypted
	// KindCorrupt is returned when the decoder reports an archive format
	// error.
	KindCorrupt
	// KindIO is returned on an underlying file read/write failure.
	KindIO
	// KindReadOnly is returned by any mutating filesystem operation.
	KindReadOnly
)

// Error is a Kind carrying an optional wrapped cause.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Cause.Error()
	}
	return e.Kind.String()
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given Kind wrapping cause (which may be nil).
func New(k Kind, cause error) *Error {
	return &Error{Kind: k, Cause: cause}
}

// String names the Kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindOutOfMemory:
		return "out of memory"
	case KindLoop:
		return "loop detected"
	case KindTooLarge:
		return "too large"
	case KindInvalidPath:
		return "invalid path"
	case KindEncrypted:
		return "encrypted"
	case KindCorrupt:
		return "corrupt archive"
	case KindIO:
		return "i/o error"
	case KindReadOnly:
		return "read-only filesystem"
	default:
		return "no error"
	}
}

// Errno converts err to the unix.Errno the FUSE layer should return,
// defaulting to EIO for anything it doesn't recognize. This is fail-closed
// by design: an unrecognized internal error should never look like success.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindNotFound:
			return unix.ENOENT
		case KindOutOfMemory:
			return unix.ENOMEM
		case KindLoop:
			return unix.ELOOP
		case KindTooLarge:
			return unix.EFBIG
		case KindInvalidPath:
			return unix.EINVAL
		case KindEncrypted:
			return unix.EACCES
		case KindCorrupt:
			return unix.EIO
		case KindIO:
			return unix.EIO
		case KindReadOnly:
			return unix.EROFS
		}
	}
	return unix.EIO
}

// ErrReadOnly is returned by every mutating filesystem operation.
var ErrReadOnly = New(KindReadOnly, errors.New("filesystem is read-only"))
