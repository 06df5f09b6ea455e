// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package flatv4 implements the two-level IPv4 bitmap (C3): 65 536
// slots, each optionally owning a 65 536-bit bitmap. Bit b of slot s
// represents address (s<<16)|b. This is the fast, low-overhead default
// representation for pure-IPv4 sets; internal/radix is used instead
// once a set also holds IPv6, or when SKIPSET_INCORE_FORMAT requests
// it explicitly.
//
// Each slot's bitmap is backed by *bitset.BitSet rather than a
// hand-rolled [2048]uint32, the way the teacher's test/bench code
// already reaches for bits-and-blooms/bitset when it needs a reference
// bit-vector to check its own hand-rolled one against.
package flatv4

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/gaissmai/ipset/internal/ipaddr"
)

const (
	slotBits  = 16
	slotCount = 1 << slotBits
	slotSize  = 1 << slotBits // bits per slot bitmap
)

// Set is the two-level IPv4 bitmap.
type Set struct {
	slots [slotCount]*bitset.BitSet
}

// New returns an empty Flat set.
func New() *Set {
	return &Set{}
}

func (s *Set) slotFor(slot uint32, create bool) *bitset.BitSet {
	bm := s.slots[slot]
	if bm == nil && create {
		bm = bitset.New(slotSize)
		s.slots[slot] = bm
	}
	return bm
}

func fillSlot(bm *bitset.BitSet) {
	for i := uint(0); i < slotSize; i++ {
		bm.Set(i)
	}
}

// Insert stores the CIDR block ip/prefix (ip already masked to prefix,
// prefix in [0,32]).
func (s *Set) Insert(ip uint32, prefix int) {
	if prefix <= slotBits {
		numSlots := uint32(1) << uint(slotBits-prefix)
		startSlot := ip >> slotBits
		for sl := startSlot; sl < startSlot+numSlots; sl++ {
			bm := s.slotFor(sl, true)
			fillSlot(bm)
		}
		return
	}
	slot := ip >> slotBits
	bm := s.slotFor(slot, true)
	bitStart := ip & (slotSize - 1)
	count := uint32(1) << uint(32-prefix)
	for b := bitStart; b < bitStart+count; b++ {
		bm.Set(uint(b))
	}
}

// Remove deletes the CIDR block ip/prefix.
func (s *Set) Remove(ip uint32, prefix int) {
	if prefix <= slotBits {
		numSlots := uint32(1) << uint(slotBits-prefix)
		startSlot := ip >> slotBits
		for sl := startSlot; sl < startSlot+numSlots; sl++ {
			s.slots[sl] = nil
		}
		return
	}
	slot := ip >> slotBits
	bm := s.slots[slot]
	if bm == nil {
		return
	}
	bitStart := ip & (slotSize - 1)
	count := uint32(1) << uint(32-prefix)
	for b := bitStart; b < bitStart+count; b++ {
		bm.Clear(uint(b))
	}
	if bm.Count() == 0 {
		s.slots[slot] = nil
	}
}

// Contains reports whether ip is a member of the set.
func (s *Set) Contains(ip uint32) bool {
	bm := s.slots[ip>>slotBits]
	if bm == nil {
		return false
	}
	return bm.Test(uint(ip & (slotSize - 1)))
}

// RemoveAll clears every slot.
func (s *Set) RemoveAll() {
	for i := range s.slots {
		s.slots[i] = nil
	}
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	out := New()
	for i, bm := range s.slots {
		if bm != nil {
			out.slots[i] = bm.Clone()
		}
	}
	return out
}

// SlotAllocated reports whether slot i currently has a backing bitmap.
func (s *Set) SlotAllocated(i int) bool {
	return s.slots[i] != nil
}

// CountAddresses returns the number of distinct addresses stored.
func (s *Set) CountAddresses() uint64 {
	var n uint64
	for _, bm := range s.slots {
		if bm != nil {
			n += uint64(bm.Count())
		}
	}
	return n
}

// WalkCIDR visits every stored block as a maximal, prefix-aligned CIDR,
// in ascending address order, stopping early if visit returns false.
func (s *Set) WalkCIDR(visit func(base uint32, prefix int) bool) {
	// A run of set bits is carried across slot boundaries so that blocks
	// wider than one slot come out whole.
	var runStart, runEnd uint32
	haveRun := false
	flush := func() bool {
		keepGoing := true
		if haveRun {
			haveRun = false
			ipaddr.RangeToCIDRs(ipaddr.FromV4(runStart), ipaddr.FromV4(runEnd), func(base ipaddr.Addr, prefix int) bool {
				keepGoing = visit(base.V4Value(), prefix)
				return keepGoing
			})
		}
		return keepGoing
	}
	defer flush()
	for slot := uint32(0); slot < slotCount; slot++ {
		bm := s.slots[slot]
		if bm == nil {
			continue
		}
		pos := uint(0)
		for {
			i, ok := bm.NextSet(pos)
			if !ok {
				break
			}
			j := i
			for {
				next, ok2 := bm.NextSet(j + 1)
				if ok2 && next == j+1 {
					j = next
					continue
				}
				break
			}
			start := (slot << slotBits) | uint32(i)
			end := (slot << slotBits) | uint32(j)
			if haveRun && runEnd+1 == start {
				runEnd = end
			} else {
				if !flush() {
					return
				}
				runStart, runEnd, haveRun = start, end, true
			}
			pos = j + 2
		}
	}
}
