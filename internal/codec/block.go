// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package codec

import (
	"github.com/gaissmai/ipset/internal/ipaddr"
)

// Block is a single maximal CIDR block in the codec's family-agnostic
// currency, used by every format except version 3 (which streams the
// arena pools directly).
type Block struct {
	IP     ipaddr.Addr
	Prefix int
}

// addrRange is an inclusive [Start, End] range, the common currency
// run-merging and re-decomposition is done in.
type addrRange struct {
	start, end ipaddr.Addr
}

// mergeAdjacent coalesces a sequence of ascending, pairwise-disjoint
// ranges where some neighbors happen to be contiguous (end+1 == next
// start) into fewer, larger ranges.
func mergeAdjacent(ranges []addrRange) []addrRange {
	if len(ranges) == 0 {
		return ranges
	}
	out := make([]addrRange, 0, len(ranges))
	cur := ranges[0]
	for _, r := range ranges[1:] {
		if next, ok := ipaddr.Add(cur.end, 1); ok && ipaddr.Compare(next, r.start) == 0 {
			cur.end = r.end
			continue
		}
		out = append(out, cur)
		cur = r
	}
	out = append(out, cur)
	return out
}

// rangesToBlocks decomposes each range into maximal, prefix-aligned
// CIDR blocks, calling visit for each in ascending order.
func rangesToBlocks(ranges []addrRange, visit func(Block) bool) {
	for _, r := range ranges {
		keepGoing := true
		ipaddr.RangeToCIDRs(r.start, r.end, func(base ipaddr.Addr, prefix int) bool {
			keepGoing = visit(Block{base, prefix})
			return keepGoing
		})
		if !keepGoing {
			return
		}
	}
}

// setBitmapRange sets count consecutive bits starting at bit offset
// start (0..255) across the eight 32-bit words of a 256-bit "last
// octet" bitmap, the shape version 2 and version 4 both use to
// describe membership that isn't itself a single aligned CIDR.
func setBitmapRange(words *[8]uint32, start, count int) {
	for count > 0 {
		word := start / 32
		bitoff := start % 32
		avail := 32 - bitoff
		n := count
		if n > avail {
			n = avail
		}
		var mask uint32
		if n == 32 {
			mask = 0xffffffff
		} else {
			mask = ((uint32(1) << uint(n)) - 1) << uint(bitoff)
		}
		words[word] |= mask
		start += n
		count -= n
	}
}

func bitmapFull(bits [8]uint32) bool {
	for _, w := range bits {
		if w != 0xffffffff {
			return false
		}
	}
	return true
}

// emitBitmapRuns scans a 256-bit "last octet" bitmap for runs of set
// bits and emits each as its maximal CIDR decomposition; base is the
// octet's own base address (its low 8 bits are zero).
func emitBitmapRuns(base ipaddr.Addr, bits [8]uint32, visit func(Block) bool) bool {
	offset := 0
	for offset < 256 {
		word, bitoff := offset/32, offset%32
		if (bits[word]>>uint(bitoff))&1 == 0 {
			offset++
			continue
		}
		start := offset
		for offset < 256 {
			w, b := offset/32, offset%32
			if (bits[w]>>uint(b))&1 == 0 {
				break
			}
			offset++
		}
		startAddr, _ := ipaddr.Add(base, uint64(start))
		endAddr, _ := ipaddr.Add(base, uint64(offset-1))
		ok := true
		rangesToBlocks([]addrRange{{startAddr, endAddr}}, func(b Block) bool {
			ok = visit(b)
			return ok
		})
		if !ok {
			return false
		}
	}
	return true
}
