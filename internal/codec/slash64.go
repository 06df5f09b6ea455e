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

// slash64Marker values that aren't a plain prefix length (<=128).
const (
	markerUpper64 = 0x82 // an upper-64 value follows, opening a /64 group
)

// slash64Group is every record sharing one upper-64 value: either a
// single CIDR at or above /64 (group has no lower records), or a run
// of lower-64 records narrower than /64.
type slash64Group struct {
	upper  uint64
	prefix int // valid when wide, i.e. prefix <= 64
	wide   bool
	lowers []lowerRecord
}

type lowerRecord struct {
	lower  uint64
	marker uint8 // <=128: direct prefix; markerBitmap: bitmap follows
	bits   [8]uint32
}

// buildSlash64 groups IPv6 blocks by their upper 64 bits (§4.7 version
// 5, IPv6-only): blocks no narrower than /64 become a single direct
// record per upper-64 value; narrower blocks become lower-64 records,
// accumulating into a 256-bit bitmap when narrower than /120.
func buildSlash64(blocks []Block) ([]slash64Group, error) {
	groups := map[uint64]*slash64Group{}
	order := []uint64{}
	get := func(upper uint64) *slash64Group {
		g, ok := groups[upper]
		if !ok {
			g = &slash64Group{upper: upper}
			groups[upper] = g
			order = append(order, upper)
		}
		return g
	}

	bitmaps := map[uint64]map[uint64]*[8]uint32{}

	for _, b := range blocks {
		if !b.IP.Is6 {
			return nil, errIPv6("version 5 is IPv6-only")
		}
		if b.Prefix <= 64 {
			g := get(b.IP.Hi)
			g.wide = true
			g.prefix = b.Prefix
			continue
		}
		g := get(b.IP.Hi)
		if b.Prefix <= 120 {
			g.lowers = append(g.lowers, lowerRecord{lower: b.IP.Lo, marker: uint8(b.Prefix)})
			continue
		}
		perUpper, ok := bitmaps[b.IP.Hi]
		if !ok {
			perUpper = map[uint64]*[8]uint32{}
			bitmaps[b.IP.Hi] = perUpper
		}
		lowerBase := b.IP.Lo &^ 0xff
		bm, ok := perUpper[lowerBase]
		if !ok {
			bm = &[8]uint32{}
			perUpper[lowerBase] = bm
		}
		offset := int(b.IP.Lo & 0xff)
		n := 1 << uint(128-b.Prefix)
		setBitmapRange(bm, offset, n)
	}

	for upper, perUpper := range bitmaps {
		g := get(upper)
		for lowerBase, bm := range perUpper {
			g.lowers = append(g.lowers, lowerRecord{lower: lowerBase, marker: markerBitmap, bits: *bm})
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]slash64Group, 0, len(order))
	for _, upper := range order {
		g := *groups[upper]
		sort.Slice(g.lowers, func(i, j int) bool { return g.lowers[i].lower < g.lowers[j].lower })
		out = append(out, g)
	}
	return out, nil
}

// EncodeSlash64 writes header + grouped (upper64, lower64/marker...)
// records for an IPv6 block list (§4.7 version 5).
func EncodeSlash64(s Stream, blocks []Block) error {
	groups, err := buildSlash64(blocks)
	if err != nil {
		return err
	}
	if err := writeHeader(s, header{version: Slash64, bigEndian: hostIsBigEndian(), isV6: true}); err != nil {
		return err
	}
	w := bufio.NewWriter(s)
	for _, g := range groups {
		if g.wide && len(g.lowers) == 0 {
			buf := appendU64(nil, g.upper)
			buf = append(buf, uint8(g.prefix))
			if _, err := w.Write(buf); err != nil {
				return err
			}
			continue
		}
		head := appendU64(nil, g.upper)
		head = append(head, markerUpper64)
		if _, err := w.Write(head); err != nil {
			return err
		}
		for _, l := range g.lowers {
			buf := appendU64(nil, l.lower)
			buf = append(buf, l.marker)
			if l.marker == markerBitmap {
				for _, word := range l.bits {
					buf = appendU32(buf, word)
				}
			}
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// DecodeSlash64 reads a version-5 file (already past its header),
// streaming maximal CIDR blocks to visit without buffering the file.
func DecodeSlash64(s io.Reader, order binary.ByteOrder, visit func(Block) bool) error {
	r := bufio.NewReader(s)
	for {
		upper, marker, err := readU64Marker(r, order)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if marker != markerUpper64 {
			if marker > 128 {
				return errCorrupt("version 5 top-level marker exceeds address width")
			}
			if !visit(Block{ipaddr.FromV6(upper, 0), int(marker)}) {
				return nil
			}
			continue
		}
		if err := decodeSlash64Group(r, order, upper, visit); err != nil {
			return err
		}
	}
}

// decodeSlash64Group reads the lower-64 records belonging to one
// upper-64 group. Nothing marks a group's end except the next
// top-level (markerUpper64) record appearing in its place, so each
// record is peeked before being consumed: if it turns out to open the
// next group, it is left in the buffer for the outer loop.
func decodeSlash64Group(r *bufio.Reader, order binary.ByteOrder, upper uint64, visit func(Block) bool) error {
	for {
		lower, marker, err := peekU64Marker(r, order)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if marker == markerUpper64 {
			return nil
		}
		if _, err := discardU64Marker(r); err != nil {
			return err
		}
		if marker == markerBitmap {
			var bmBuf [32]byte
			if _, err := io.ReadFull(r, bmBuf[:]); err != nil {
				return errCorrupt("truncated version 5 bitmap")
			}
			var bits [8]uint32
			for i := range bits {
				bits[i] = order.Uint32(bmBuf[i*4 : i*4+4])
			}
			base := ipaddr.FromV6(upper, lower)
			if !emitBitmapRuns(base, bits, visit) {
				return nil
			}
			continue
		}
		if marker > 128 {
			return errCorrupt("version 5 lower marker exceeds address width")
		}
		if !visit(Block{ipaddr.FromV6(upper, lower), int(marker)}) {
			return nil
		}
	}
}

const u64MarkerSize = 9

func readU64Marker(r io.Reader, order binary.ByteOrder) (uint64, uint8, error) {
	var buf [u64MarkerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			return 0, 0, io.EOF
		}
		return 0, 0, errCorrupt("truncated version 5 record")
	}
	return order.Uint64(buf[0:8]), buf[8], nil
}

func peekU64Marker(r *bufio.Reader, order binary.ByteOrder) (uint64, uint8, error) {
	buf, err := r.Peek(u64MarkerSize)
	if err != nil {
		if len(buf) == 0 {
			return 0, 0, io.EOF
		}
		return 0, 0, errCorrupt("truncated version 5 record")
	}
	return order.Uint64(buf[0:8]), buf[8], nil
}

func discardU64Marker(r *bufio.Reader) (int, error) {
	return r.Discard(u64MarkerSize)
}
