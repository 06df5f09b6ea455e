// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import "fmt"

// Kind classifies the outcome of a Set operation (§4.8). Ok is the
// zero value and is never itself returned as an error.
type Kind int

const (
	Ok Kind = iota
	Empty
	Prefix
	NotFound
	Alloc
	BadInput
	FileIO
	FileType
	FileHeader
	FileVersion
	IPv6
	Corrupt
	RequireClean

	// subset and multiLeaf are internal-only signals between
	// internal/radix and this package (§4.8's "surfaced only by
	// low-level find/insert"); they are never returned to callers.
	subset
	multiLeaf
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "Ok"
	case Empty:
		return "Empty"
	case Prefix:
		return "Prefix"
	case NotFound:
		return "NotFound"
	case Alloc:
		return "Alloc"
	case BadInput:
		return "BadInput"
	case FileIO:
		return "FileIO"
	case FileType:
		return "FileType"
	case FileHeader:
		return "FileHeader"
	case FileVersion:
		return "FileVersion"
	case IPv6:
		return "IPv6"
	case Corrupt:
		return "Corrupt"
	case RequireClean:
		return "RequireClean"
	default:
		return "Kind(?)"
	}
}

// Error is the error type returned by every Set operation that fails.
type Error struct {
	Kind Kind
	Msg  string
	err  error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("ipset: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// Is implements errors.Is against the exported sentinels below by
// comparing Kind, ignoring Msg/err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), err: cause}
}

// Sentinel values for errors.Is(err, ipset.ErrXxx) against any *Error
// this package returns.
var (
	ErrPrefix       = &Error{Kind: Prefix}
	ErrNotFound     = &Error{Kind: NotFound}
	ErrAlloc        = &Error{Kind: Alloc}
	ErrBadInput     = &Error{Kind: BadInput}
	ErrFileIO       = &Error{Kind: FileIO}
	ErrFileType     = &Error{Kind: FileType}
	ErrFileHeader   = &Error{Kind: FileHeader}
	ErrFileVersion  = &Error{Kind: FileVersion}
	ErrIPv6         = &Error{Kind: IPv6}
	ErrCorrupt      = &Error{Kind: Corrupt}
	ErrRequireClean = &Error{Kind: RequireClean}
)
