// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package codec implements the five versioned on-disk formats for an
// IP-address set (§4.7): read/write of each format's exact byte
// layout, a streaming visitor that decodes without materializing a
// set, and (for version 3, native byte order, uncompressed) a
// memory-mapped read path that decodes the radix pools straight out of
// the mapping instead of first copying the file into a buffer.
//
// Package codec is deliberately family- and set-representation
// agnostic: it trades in ipaddr.Addr/prefix blocks (and, for version
// 3, directly in the arena's node/leaf pools) and knows nothing of
// the facade's flat/radix dispatch, autoconversion, or dirty
// tracking — that translation lives in the parent package.
package codec

import (
	"encoding/binary"
	"io"
)

// Stream is the byte-oriented seekable I/O surface the codec needs:
// read, write, and seek (for Tell, via Seek(0, io.SeekCurrent)). This
// stands in for the stream layer spec.md names as an external
// collaborator (buffered, optionally compressed reads/writes over a
// file descriptor) — out of scope for this module.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
}

// Tell reports the stream's current offset.
func Tell(s Stream) (int64, error) {
	return s.Seek(0, io.SeekCurrent)
}

// nativeOrder is the byte order this process writes with; readers
// compare it against the header's recorded order and byte-swap on
// mismatch (§4.7 "Byte order").
var nativeOrder = binary.NativeEndian
