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

// classCRecordSize is one base u32 plus eight u32 bitmap words.
const classCRecordSize = 9 * 4

// classcRecord is one on-disk version-2 record: base is a /24 base
// address, bits[i] covers offsets [i*32, i*32+31] within that /24.
type classcRecord struct {
	base uint32
	bits [8]uint32
}

func (r classcRecord) full() bool { return bitmapFull(r.bits) }

// buildClassc groups blocks into sorted per-/24 records, marking full
// CIDR-aligned sub-ranges by word when they span less than a whole
// /24 and whole /24s (or wider) as entirely full for every /24 they cover.
func buildClassc(blocks []Block) ([]classcRecord, error) {
	recs := map[uint32]*classcRecord{}
	get := func(base uint32) *classcRecord {
		r, ok := recs[base]
		if !ok {
			r = &classcRecord{base: base}
			recs[base] = r
		}
		return r
	}

	for _, b := range blocks {
		if b.IP.Is6 {
			return nil, errIPv6("version 2 is IPv4-only")
		}
		ip := b.IP.V4Value()
		if b.Prefix <= 24 {
			count := uint32(1) << uint(24-b.Prefix)
			base24 := ip &^ 0xff
			for i := uint32(0); i < count; i++ {
				base := base24 + i*256
				r := get(base)
				for w := range r.bits {
					r.bits[w] = 0xffffffff
				}
			}
			continue
		}
		base24 := ip &^ 0xff
		offset := int(ip & 0xff)
		n := 1 << uint(32-b.Prefix)
		r := get(base24)
		setBitmapRange(&r.bits, offset, n)
	}

	out := make([]classcRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].base < out[j].base })
	return out, nil
}

// EncodeClassc writes header + sorted class-C records for an IPv4
// block list (§4.7 version 2).
func EncodeClassc(s Stream, blocks []Block) error {
	recs, err := buildClassc(blocks)
	if err != nil {
		return err
	}
	if err := writeHeader(s, header{version: Classc, bigEndian: hostIsBigEndian(), isV6: false}); err != nil {
		return err
	}
	w := bufio.NewWriter(s)
	var buf [classCRecordSize]byte
	for _, r := range recs {
		nativeOrder.PutUint32(buf[0:4], r.base)
		for i, word := range r.bits {
			nativeOrder.PutUint32(buf[4+i*4:8+i*4], word)
		}
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// DecodeClassc reads a version-2 file already past its header and
// returns its maximal CIDR blocks, coalescing contiguous full /24
// records into wider blocks (§4.7 "extra work to coalesce").
func DecodeClassc(s Stream, order binary.ByteOrder) ([]Block, error) {
	var out []Block
	err := streamClassc(s, order, func(b Block) bool {
		out = append(out, b)
		return true
	})
	return out, err
}

// streamClassc decodes version-2 records one at a time, calling visit
// with maximal CIDR blocks as they become available, without
// buffering the whole file. Consecutive full /24 records are merged
// into wider blocks on the fly; a trailing pending run is flushed at
// EOF or when visit returns false early.
func streamClassc(s Stream, order binary.ByteOrder, visit func(Block) bool) error {
	r := bufio.NewReader(s)
	var buf [classCRecordSize]byte

	var pendingBase uint32
	var pendingCount uint32
	havePending := false

	flushPending := func() bool {
		if !havePending {
			return true
		}
		ranges := []addrRange{{
			ipaddr.FromV4(pendingBase),
			ipaddr.FromV4(pendingBase + pendingCount*256 - 1),
		}}
		ok := true
		rangesToBlocks(ranges, func(b Block) bool {
			ok = visit(b)
			return ok
		})
		havePending = false
		return ok
	}

	for {
		_, err := io.ReadFull(r, buf[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return errCorrupt("truncated version 2 record")
		}
		rec := classcRecord{base: order.Uint32(buf[0:4])}
		for i := range rec.bits {
			rec.bits[i] = order.Uint32(buf[4+i*4 : 8+i*4])
		}

		if rec.full() {
			if havePending && pendingBase+pendingCount*256 == rec.base {
				pendingCount++
				continue
			}
			if !flushPending() {
				return nil
			}
			pendingBase, pendingCount, havePending = rec.base, 1, true
			continue
		}

		if !flushPending() {
			return nil
		}
		if !emitBitmapRuns(ipaddr.FromV4(rec.base), rec.bits, visit) {
			return nil
		}
	}
	flushPending()
	return nil
}
