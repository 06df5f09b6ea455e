// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
	"os"

	"github.com/gaissmai/ipset/internal/codec"
	"github.com/gaissmai/ipset/internal/ipaddr"
	"github.com/gaissmai/ipset/internal/radix"
)

// Stream is the minimal stream a wire format is read from or written
// to (§4.7's "generic SiLK file header, external stream layer"); an
// *os.File satisfies it directly, and version 3's memory-mapped fast
// path is used automatically when stream is one.
type Stream = io.ReadWriteSeeker

// translateCodecErr maps internal/codec's own *Error taxonomy onto
// this package's Kind-based *Error, and anything else (a plain I/O
// failure from the stream itself) onto FileIO.
func translateCodecErr(err error) error {
	if err == nil {
		return nil
	}
	ce, ok := err.(*codec.Error)
	if !ok {
		return wrapError(FileIO, err, "stream I/O")
	}
	switch ce.Kind {
	case "FileType":
		return newError(FileType, "%s", ce.Msg)
	case "FileVersion":
		return newError(FileVersion, "%s", ce.Msg)
	case "FileHeader":
		return newError(FileHeader, "%s", ce.Msg)
	case "Corrupt":
		return newError(Corrupt, "%s", ce.Msg)
	case "IPv6":
		return newError(IPv6, "%s", ce.Msg)
	default:
		return wrapError(FileIO, err, "codec error")
	}
}

func maybePrintReadError(err error) {
	if err != nil && printReadErrorsEnabled() {
		fmt.Fprintf(os.Stderr, "ipset: read error: %v\n", err)
	}
}

// treeForWrite returns the tree version 3 should dump: the set's own
// tree if it already is radix-backed, or a freshly built one from the
// flat representation's content otherwise.
func (s *Set) treeForWrite() *radix.Tree {
	if s.variant == variantRadix {
		return s.radix
	}
	t := radix.New(false)
	// Fresh tree, blocks sourced from the set's own already-masked,
	// already-valid content: Insert cannot fail here.
	s.walkAddrBlocks(func(ip ipaddr.Addr, prefix int) bool {
		_ = t.Insert(ip, prefix)
		return true
	})
	return t
}

// Write serializes s to stream using SILK_IPSET_RECORD_VERSION's
// default, or version 2/3 per §4.7's pure-IPv4/contains-IPv6 rule
// when that variable is unset.
func (s *Set) Write(stream Stream) error {
	return s.WriteVersion(stream, defaultRecordVersion())
}

// WriteVersion serializes s to stream in an explicit wire version (one
// of 0 [auto], 2, 3, 4, 5). It fails with IPv6 if s holds IPv6 content
// and version cannot carry it (§4.7 "Choice of write version").
func (s *Set) WriteVersion(stream Stream, version int) error {
	v := codec.Version(version)
	if v == codec.Auto {
		if s.isV6 {
			v = codec.Radix
		} else {
			v = codec.Classc
		}
	}
	if v == codec.Radix {
		return translateCodecErr(codec.WriteTree(stream, s.treeForWrite()))
	}
	var blocks []codec.Block
	s.walkAddrBlocks(func(ip ipaddr.Addr, prefix int) bool {
		blocks = append(blocks, codec.Block{IP: ip, Prefix: prefix})
		return true
	})
	return translateCodecErr(codec.WriteBlocks(stream, blocks, s.isV6, v))
}

// Save writes s to a fresh file at path in the default wire format.
func (s *Set) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return wrapError(FileIO, err, "create %s", path)
	}
	defer f.Close()
	return s.Write(f)
}

// newSetFromTree wraps an already-decoded tree as a Set without
// rebuilding it block by block.
func newSetFromTree(t *radix.Tree, isV6 bool) *Set {
	return &Set{isV6: isV6, variant: variantRadix, radix: t, dirty: t.Dirty}
}

// insertDecodedBlock inserts one block read off a stream, going
// through the ordinary public Insert so variant dispatch, autoconvert
// and mapping all behave exactly as they do for a direct caller.
func (s *Set) insertDecodedBlock(b codec.Block) error {
	return s.Insert(b.IP.ToNetip(), b.Prefix)
}

// decodeRadixBody reads a version-3 body (the stream positioned right
// after the generic header) into a tree, taking the memory-mapped
// fast path when stream is a regular, seekable *os.File in the
// process's own native byte order (§4.7 "Memory-mapping"). Because
// that path fully decodes every node/leaf value out of the mapping
// before returning (see internal/codec's own design note), the
// mapping itself is released immediately afterward rather than kept
// alive for the tree's lifetime — there is nothing left in the
// returned tree that still aliases it.
func decodeRadixBody(stream Stream, bo binary.ByteOrder, isV6 bool) (*radix.Tree, error) {
	if f, ok := stream.(*os.File); ok && codec.IsNativeOrder(bo) {
		if pos, serr := f.Seek(0, io.SeekCurrent); serr == nil {
			t, unmap, used, derr := codec.DecodeRadixMapped(f, pos, bo, isV6)
			if used {
				if unmap != nil {
					_ = unmap()
				}
				return t, derr
			}
		}
	}
	return codec.DecodeRadix(stream, bo, isV6)
}

// Read decodes stream into a freshly built Set, choosing the in-memory
// representation per §4.7's "Read decisions" table.
func Read(stream Stream) (*Set, error) {
	version, bo, isV6Hdr, err := codec.ProcessHeader(stream)
	if err != nil {
		maybePrintReadError(err)
		return nil, translateCodecErr(err)
	}

	switch version {
	case codec.Radix:
		t, derr := decodeRadixBody(stream, bo, isV6Hdr)
		if derr != nil {
			maybePrintReadError(derr)
			return nil, translateCodecErr(derr)
		}
		out := newSetFromTree(t, isV6Hdr)
		if !isV6Hdr && defaultIncoreFormat() == IncoreFlat {
			if cerr := out.convertRadixToFlat(); cerr != nil {
				return nil, cerr
			}
		}
		return out, nil

	case codec.Slash64:
		out := Create(true)
		var insertErr error
		derr := codec.DecodeSlash64(stream, bo, func(b codec.Block) bool {
			if e := out.insertDecodedBlock(b); e != nil {
				insertErr = e
				return false
			}
			return true
		})
		if derr != nil {
			maybePrintReadError(derr)
			return nil, translateCodecErr(derr)
		}
		if insertErr != nil {
			return nil, insertErr
		}
		return out, nil

	case codec.CidrBmap:
		out := Create(isV6Hdr)
		var insertErr error
		derr := codec.DecodeCidrBmap(stream, bo, isV6Hdr, func(b codec.Block) bool {
			if e := out.insertDecodedBlock(b); e != nil {
				insertErr = e
				return false
			}
			return true
		})
		if derr != nil {
			maybePrintReadError(derr)
			return nil, translateCodecErr(derr)
		}
		if insertErr != nil {
			return nil, insertErr
		}
		return out, nil

	case codec.Classc:
		out := Create(false)
		blocks, derr := codec.DecodeClassc(stream, bo)
		if derr != nil {
			maybePrintReadError(derr)
			return nil, translateCodecErr(derr)
		}
		for _, b := range blocks {
			if e := out.insertDecodedBlock(b); e != nil {
				return nil, e
			}
		}
		return out, nil

	default:
		derr := newError(FileVersion, "unsupported version byte")
		maybePrintReadError(derr)
		return nil, derr
	}
}

// Load opens path and decodes it via Read.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		werr := wrapError(FileIO, err, "open %s", path)
		maybePrintReadError(werr)
		return nil, werr
	}
	defer f.Close()
	return Read(f)
}

// ProcessStream decodes stream directly into visit without ever
// materializing a Set, applying the same V6Policy projection and
// Mode (CIDR block vs. per-address) as Iterator (§4.6/§4.7).
func ProcessStream(stream Stream, visit func(ip netip.Addr, prefix int) bool, policy V6Policy, mode Mode) error {
	_, _, err := codec.ProcessStream(stream, func(cb codec.Block) bool {
		b, ok := projectBlock(cb.IP, cb.Prefix, policy)
		if !ok {
			return true
		}
		if mode == ModeCIDR {
			return visit(b.ip.ToNetip(), b.prefix)
		}
		cur := b.ip
		last := ipaddr.LastAddr(b.ip, b.prefix)
		for {
			if !visit(cur.ToNetip(), cur.Width()) {
				return false
			}
			if ipaddr.Compare(cur, last) == 0 {
				return true
			}
			next, _ := ipaddr.Add(cur, 1)
			cur = next
		}
	})
	return translateCodecErr(err)
}
