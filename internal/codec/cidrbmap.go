// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package codec

import (
	"bufio"
	"encoding/binary"
	"io"
	"sort"

	"github.com/gaissmai/ipset/internal/ipaddr"
)

// markerBitmap signals that a 256-bit "last octet" bitmap follows the
// (base_ip, marker) pair instead of marker being a plain prefix
// length (§4.7 version 4 and version 5).
const markerBitmap = 0x81

type cidrBmapRecord struct {
	base   ipaddr.Addr
	marker uint8 // <= address width => a direct CIDR prefix; else markerBitmap
	bits   [8]uint32
}

// buildCidrBmap groups blocks into version-4 records: any block no
// narrower than one octet (prefix <= AW-8) is emitted directly as a
// single CIDR record; narrower blocks accumulate into their enclosing
// octet's 256-bit bitmap.
func buildCidrBmap(blocks []Block, isV6 bool) []cidrBmapRecord {
	aw := 32
	if isV6 {
		aw = 128
	}
	octetPrefix := aw - 8

	var direct []cidrBmapRecord
	bitmaps := map[ipaddr.Addr]*[8]uint32{}

	for _, b := range blocks {
		if b.Prefix <= octetPrefix {
			direct = append(direct, cidrBmapRecord{base: b.IP, marker: uint8(b.Prefix)})
			continue
		}
		octetBase := ipaddr.Mask(b.IP, octetPrefix)
		start := addrLow8(b.IP)
		n := 1 << uint(aw-b.Prefix)
		bm, ok := bitmaps[octetBase]
		if !ok {
			bm = &[8]uint32{}
			bitmaps[octetBase] = bm
		}
		setBitmapRange(bm, start, n)
	}

	out := make([]cidrBmapRecord, 0, len(direct)+len(bitmaps))
	out = append(out, direct...)
	for base, bm := range bitmaps {
		out = append(out, cidrBmapRecord{base: base, marker: markerBitmap, bits: *bm})
	}
	sort.Slice(out, func(i, j int) bool { return ipaddr.Less(out[i].base, out[j].base) })
	return out
}

// addrLow8 returns the low 8 bits of a, the offset within its
// enclosing octet.
func addrLow8(a ipaddr.Addr) int {
	return int(a.Lo & 0xff)
}

func writeAddr(buf []byte, a ipaddr.Addr, isV6 bool) []byte {
	if isV6 {
		buf = appendU64(buf, a.Hi)
	}
	return appendU64(buf, a.Lo)
}

// EncodeCidrBmap writes header + sorted (base, marker[, bitmap])
// records (§4.7 version 4).
func EncodeCidrBmap(s Stream, blocks []Block, isV6 bool) error {
	recs := buildCidrBmap(blocks, isV6)
	if err := writeHeader(s, header{version: CidrBmap, bigEndian: hostIsBigEndian(), isV6: isV6}); err != nil {
		return err
	}
	w := bufio.NewWriter(s)
	for _, r := range recs {
		buf := make([]byte, 0, 16+1+32)
		buf = writeAddr(buf, r.base, isV6)
		buf = append(buf, r.marker)
		if r.marker == markerBitmap {
			for _, word := range r.bits {
				buf = appendU32(buf, word)
			}
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return w.Flush()
}

// readAddr reads one address field. It returns io.EOF unchanged when
// nothing at all was read (a clean end of stream between records);
// any other short read is reported as corruption.
func readAddr(r io.Reader, order binary.ByteOrder, isV6 bool) (ipaddr.Addr, error) {
	if isV6 {
		var buf [16]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if err == io.EOF {
				return ipaddr.Addr{}, io.EOF
			}
			return ipaddr.Addr{}, errCorrupt("truncated address field")
		}
		return ipaddr.FromV6(order.Uint64(buf[0:8]), order.Uint64(buf[8:16])), nil
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			return ipaddr.Addr{}, io.EOF
		}
		return ipaddr.Addr{}, errCorrupt("truncated address field")
	}
	return ipaddr.FromV4(uint32(order.Uint64(buf[0:8]))), nil
}

// DecodeCidrBmap reads a version-4 file (already past its header),
// streaming maximal CIDR blocks to visit without buffering the file.
func DecodeCidrBmap(s io.Reader, order binary.ByteOrder, isV6 bool, visit func(Block) bool) error {
	r := bufio.NewReader(s)
	aw := 32
	if isV6 {
		aw = 128
	}
	for {
		base, err := readAddr(r, order, isV6)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		var markerBuf [1]byte
		if _, err := io.ReadFull(r, markerBuf[:]); err != nil {
			if err == io.EOF {
				return errCorrupt("version 4 record missing marker byte")
			}
			return errCorrupt("truncated version 4 marker byte")
		}
		marker := markerBuf[0]
		if marker == markerBitmap {
			var bmBuf [32]byte
			if _, err := io.ReadFull(r, bmBuf[:]); err != nil {
				return errCorrupt("truncated version 4 bitmap")
			}
			var bits [8]uint32
			for i := range bits {
				bits[i] = order.Uint32(bmBuf[i*4 : i*4+4])
			}
			if !emitBitmapRuns(base, bits, visit) {
				return nil
			}
			continue
		}
		if int(marker) > aw {
			return errCorrupt("version 4 marker exceeds address width")
		}
		if !visit(Block{base, int(marker)}) {
			return nil
		}
	}
}
