// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package flatv4

import (
	"math/rand/v2"
	"testing"
)

func TestInsertContainsWholeSlot(t *testing.T) {
	s := New()
	s.Insert(10<<24, 8) // 10.0.0.0/8
	if !s.Contains(10 << 24) {
		t.Error("Contains(10.0.0.0) = false, want true")
	}
	if !s.Contains((10 << 24) | 0xffffff) {
		t.Error("Contains(10.255.255.255) = false, want true")
	}
	if s.Contains(11 << 24) {
		t.Error("Contains(11.0.0.0) = true, want false")
	}
}

func TestInsertContainsWithinSlot(t *testing.T) {
	s := New()
	base := uint32(192)<<24 | uint32(168)<<16 // 192.168.0.0/16 slot
	s.Insert(base, 24)                        // 192.168.0.0/24
	if !s.Contains(base) || !s.Contains(base+255) {
		t.Error("Contains at /24 block boundaries failed")
	}
	if s.Contains(base + 256) {
		t.Error("Contains(base+256) = true, want false (outside the inserted /24)")
	}
}

func TestRemoveWholeSlot(t *testing.T) {
	s := New()
	s.Insert(10<<24, 8)
	s.Remove(10<<24, 8)
	if s.Contains(10 << 24) {
		t.Error("Contains after Remove(whole slot) = true, want false")
	}
	if s.SlotAllocated(int(10 << 24 >> slotBits)) {
		t.Error("slot still allocated after removing its entire content")
	}
}

func TestRemoveWithinSlotFreesEmptySlot(t *testing.T) {
	s := New()
	base := uint32(1)<<24 | uint32(2)<<16 | uint32(3)<<8 // 1.2.3.0-ish
	base &^= 0xff
	s.Insert(base, 24)
	s.Remove(base, 24)
	slot := base >> slotBits
	if s.SlotAllocated(int(slot)) {
		t.Error("slot still allocated after removing its only content")
	}
}

func TestCloneIndependence(t *testing.T) {
	s := New()
	s.Insert(10<<24, 24)
	c := s.Clone()
	c.Insert((10<<24)|1<<8, 24)
	if s.Contains((10 << 24) | 1<<8) {
		t.Error("mutating the clone affected the original")
	}
	if !c.Contains(10 << 24) {
		t.Error("clone lost the original's content")
	}
}

func TestCountAddresses(t *testing.T) {
	s := New()
	s.Insert(10<<24, 24)  // 256 addresses
	s.Insert(11<<24, 30)  // 4 addresses
	if got := s.CountAddresses(); got != 260 {
		t.Errorf("CountAddresses = %d, want 260", got)
	}
}

func TestRemoveAll(t *testing.T) {
	s := New()
	s.Insert(10<<24, 16)
	s.RemoveAll()
	if s.CountAddresses() != 0 {
		t.Error("CountAddresses after RemoveAll != 0")
	}
	if s.Contains(10 << 24) {
		t.Error("Contains after RemoveAll = true")
	}
}

func TestWalkCIDRCoversInsertedRange(t *testing.T) {
	s := New()
	s.Insert(10<<24, 24)
	var total uint64
	var blocks int
	s.WalkCIDR(func(base uint32, prefix int) bool {
		blocks++
		total += uint64(1) << uint(32-prefix)
		return true
	})
	if total != 256 {
		t.Errorf("WalkCIDR total addresses = %d, want 256", total)
	}
	if blocks != 1 {
		t.Errorf("WalkCIDR produced %d blocks for an exact /24, want 1", blocks)
	}
}

func TestWalkCIDRStopsEarly(t *testing.T) {
	s := New()
	s.Insert(10<<24, 28)
	s.Insert(20<<24, 28)
	seen := 0
	s.WalkCIDR(func(base uint32, prefix int) bool {
		seen++
		return false
	})
	if seen != 1 {
		t.Errorf("WalkCIDR visited %d blocks after false return, want 1", seen)
	}
}

func TestInsertRemoveAgainstGoldMap(t *testing.T) {
	prng := rand.New(rand.NewPCG(21, 99))
	s := New()
	gold := map[uint32]bool{}

	randAddr := func() uint32 {
		return uint32(10)<<24 | uint32(prng.IntN(256))<<16 | uint32(prng.IntN(256))<<8 | uint32(prng.IntN(256))
	}

	for i := 0; i < 1000; i++ {
		addr := randAddr()
		if prng.IntN(4) == 0 {
			s.Remove(addr, 32)
			delete(gold, addr)
			continue
		}
		s.Insert(addr, 32)
		gold[addr] = true
	}

	for addr, want := range gold {
		if got := s.Contains(addr); got != want {
			t.Errorf("Contains(%d) = %v, want %v", addr, got, want)
		}
	}
	if got := s.CountAddresses(); got != uint64(len(gold)) {
		t.Errorf("CountAddresses = %d, want %d", got, len(gold))
	}
}
