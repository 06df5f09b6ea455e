// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/gaissmai/ipset/internal/ipaddr"
	"github.com/gaissmai/ipset/internal/radix"
)

// Stats reports the set's storage footprint: for a radix-backed set,
// the arena node/leaf pool occupancy; for a flat set, the number of
// allocated 65536-bit slot bitmaps.
type Stats struct {
	Variant        string
	LiveNodes      int64
	TotalNodes     int64
	LiveLeaves     int64
	TotalLeaves    int64
	AllocatedSlots int
}

// Stats returns the set's current storage statistics (E4).
func (s *Set) Stats() Stats {
	st := Stats{Variant: s.variant.String()}
	if s.variant == variantRadix {
		st.LiveNodes, st.TotalNodes = s.radix.Nodes.Stats()
		st.LiveLeaves, st.TotalLeaves = s.radix.Leaves.Stats()
		return st
	}
	for i := 0; i < 1<<16; i++ {
		if s.flat.SlotAllocated(i) {
			st.AllocatedSlots++
		}
	}
	return st
}

// String renders the set as its maximal CIDR blocks, one per line,
// ascending (E4).
func (s *Set) String() string {
	var b strings.Builder
	s.Fprint(&b)
	return b.String()
}

// Fprint writes the set's maximal CIDR blocks to w, one per line.
func (s *Set) Fprint(w io.Writer) {
	s.walkBlocks(func(addr netip.Addr, prefix int) bool {
		fmt.Fprintf(w, "%s/%d\n", addr, prefix)
		return true
	})
}

// MarshalJSON renders the set as a JSON array of "addr/prefix" strings
// in ascending order (E4).
func (s *Set) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('[')
	first := true
	s.walkBlocks(func(addr netip.Addr, prefix int) bool {
		if !first {
			b.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&b, "%q", fmt.Sprintf("%s/%d", addr, prefix))
		return true
	})
	b.WriteByte(']')
	return []byte(b.String()), nil
}

// mergedRanges collects s's stored blocks as sorted, merged address
// ranges without mutating s: it never calls Clean, so it is safe to
// call on a set another goroutine may be reading concurrently (the
// set's own exclusivity contract still applies to writers).
func (s *Set) mergedRanges() []addrRange {
	var ranges []addrRange
	s.walkAddrBlocks(func(ip ipaddr.Addr, prefix int) bool {
		ranges = append(ranges, addrRange{ip, ipaddr.LastAddr(ip, prefix)})
		return true
	})
	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			if ipaddr.Compare(ranges[j].start, ranges[i].start) < 0 {
				ranges[i], ranges[j] = ranges[j], ranges[i]
			}
		}
	}
	var merged []addrRange
	for _, r := range ranges {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if next, ok := ipaddr.Add(last.end, 1); ok && ipaddr.Compare(r.start, next) <= 0 {
				if ipaddr.Compare(r.end, last.end) > 0 {
					last.end = r.end
				}
				continue
			}
		}
		merged = append(merged, r)
	}
	return merged
}

// Equal reports whether s and other hold exactly the same addresses,
// comparing their merged address ranges (E4). Unlike a naive
// block-by-block comparison, this never requires either set to be
// Clean first: it is a pure read on both receivers, matching the
// exclusive-ownership/read-only-when-clean contract that governs
// concurrent access to a *Set.
func (s *Set) Equal(other *Set) bool {
	if s.isV6 != other.isV6 {
		return false
	}

	a := s.mergedRanges()
	b := other.mergedRanges()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if ipaddr.Compare(a[i].start, b[i].start) != 0 || ipaddr.Compare(a[i].end, b[i].end) != 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep, independent copy of s.
func (s *Set) Clone() *Set {
	out := Create(s.isV6)
	out.noAutoconvert = s.noAutoconvert
	if s.isV6 {
		out.variant = variantRadix
	} else {
		out.variant = s.variant
		if s.variant == variantFlat {
			out.flat = s.flat.Clone()
			return out
		}
		out.radix = radix.New(false)
	}

	s.walkAddrBlocks(func(ip ipaddr.Addr, prefix int) bool {
		out.radix.Insert(ip, prefix)
		return true
	})
	out.dirty = out.radix.Dirty
	return out
}
