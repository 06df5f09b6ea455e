// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package codec

import (
	"encoding/binary"

	"github.com/gaissmai/ipset/internal/radix"
)

// Auto lets WriteBlocks pick a format on the caller's behalf (§4.7's
// default write behavior: version 2 for IPv4, version 3 for IPv6).
const Auto Version = 0

// ProcessHeader reads and validates the generic file header, returning
// the version, byte order and address family it declares so the
// caller can route to the right decoder.
func ProcessHeader(s Stream) (Version, binary.ByteOrder, bool, error) {
	h, err := readHeader(s)
	if err != nil {
		return 0, nil, false, err
	}
	return h.version, byteOrderOf(h), h.isV6, nil
}

// ProcessStream decodes a file of any of the five versions, streaming
// its maximal CIDR blocks to visit without requiring the caller to
// branch on version; the tree-shaped version 3 is decoded into an
// in-memory tree first and then walked, since its records aren't
// individually block-shaped the way versions 2/4/5 are.
func ProcessStream(s Stream, visit func(Block) bool) (Version, bool, error) {
	version, order, isV6, err := ProcessHeader(s)
	if err != nil {
		return 0, false, err
	}
	switch version {
	case Classc:
		err = streamClassc(s, order, visit)
	case Radix:
		err = WalkRadixBlocks(s, order, isV6, visit)
	case CidrBmap:
		err = DecodeCidrBmap(s, order, isV6, visit)
	case Slash64:
		err = DecodeSlash64(s, order, visit)
	default:
		err = errFileVersion("unsupported version byte")
	}
	return version, isV6, err
}

// WriteBlocks writes blocks in the requested version's format. Auto
// picks version 2 for IPv4 and version 3 for IPv6 (§4.7's default
// write behavior); version 3 here goes through a from-scratch tree
// build, so callers already holding a tree should prefer WriteTree.
func WriteBlocks(s Stream, blocks []Block, isV6 bool, version Version) error {
	if version == Auto {
		if isV6 {
			version = Radix
		} else {
			version = Classc
		}
	}
	switch version {
	case Classc:
		return EncodeClassc(s, blocks)
	case CidrBmap:
		return EncodeCidrBmap(s, blocks, isV6)
	case Slash64:
		if !isV6 {
			return errIPv6("version 5 is IPv6-only")
		}
		return EncodeSlash64(s, blocks)
	case Radix:
		t := radix.New(isV6)
		for _, b := range blocks {
			if err := t.Insert(b.IP, b.Prefix); err != nil {
				return err
			}
		}
		return EncodeRadix(s, t)
	default:
		return errFileVersion("unsupported version requested")
	}
}

// WriteTree writes version 3 directly from an already-built tree,
// skipping a from-scratch rebuild.
func WriteTree(s Stream, t *radix.Tree) error {
	return EncodeRadix(s, t)
}
