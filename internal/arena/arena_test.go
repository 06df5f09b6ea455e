// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package arena

import (
	"math/rand/v2"
	"testing"
)

func TestNodePoolAcquireReserveZero(t *testing.T) {
	p := NewNodePool()
	idx, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if idx == Null {
		t.Error("Acquire returned the reserved Null index")
	}
}

func TestNodePoolReleaseReusesSlot(t *testing.T) {
	p := NewNodePool()
	a, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	// Acquire prefers the unused tail, so use up the rest of the initial
	// capacity first; only then does the next Acquire pop the free list.
	for i := 0; i < initialCapacity-2; i++ {
		if _, err := p.Acquire(); err != nil {
			t.Fatalf("Acquire filler %d: %v", i, err)
		}
	}
	p.Release(a)
	if p.IsOccupied(a) {
		t.Error("IsOccupied true immediately after Release")
	}
	b, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire b: %v", err)
	}
	if b != a {
		t.Errorf("Acquire after Release = %d, want reused slot %d", b, a)
	}
	if !p.IsOccupied(b) {
		t.Error("IsOccupied false after re-Acquire")
	}
}

func TestNodePoolGrowsPastInitialCapacity(t *testing.T) {
	p := NewNodePool()
	var last uint32
	for i := 0; i < initialCapacity+10; i++ {
		idx, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
		last = idx
	}
	if int(last) < initialCapacity {
		t.Errorf("pool did not grow past initial capacity: last index %d", last)
	}
	if live, total := p.Stats(); live != int64(initialCapacity+10) || total != int64(initialCapacity+10) {
		t.Errorf("Stats = (%d, %d), want (%d, %d)", live, total, initialCapacity+10, initialCapacity+10)
	}
}

func TestLeafPoolAcquireSetsRealloc(t *testing.T) {
	p := NewLeafPool()
	if p.LeavesRealloc {
		t.Fatal("LeavesRealloc set before any Acquire")
	}
	for i := 0; i < initialCapacity+1; i++ {
		if _, err := p.Acquire(); err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
	}
	if !p.LeavesRealloc {
		t.Error("LeavesRealloc not set after a backing-slice growth")
	}
}

func TestPoolGetSetRoundtrip(t *testing.T) {
	p := NewNodePool()
	idx, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	n := p.Get(idx)
	n.Prefix = 16
	n.Children[3] = 42
	got := p.Get(idx)
	if got.Prefix != 16 || got.Children[3] != 42 {
		t.Errorf("Get after mutation = %+v, want Prefix=16 Children[3]=42", got)
	}
}

func TestAdoptMappedCopyOnWrite(t *testing.T) {
	p := NewNodePool()
	items := []Node{{}, {Prefix: 8}, {Prefix: 16}}
	p.AdoptMapped(items)
	if !p.IsMapped() {
		t.Fatal("IsMapped false right after AdoptMapped")
	}
	if !p.IsOccupied(1) || !p.IsOccupied(2) {
		t.Error("AdoptMapped did not mark adopted slots occupied")
	}

	idx, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire on mapped pool: %v", err)
	}
	if p.IsMapped() {
		t.Error("pool still reports IsMapped after a mutating Acquire")
	}
	// The copy-on-write must have preserved the previously adopted data.
	if got := p.Get(1); got.Prefix != 8 {
		t.Errorf("adopted slot 1 lost its data after copy-on-write: %+v", got)
	}
	if idx == Null {
		t.Error("Acquire on mapped pool returned Null")
	}
}

func TestTruncateDropsTail(t *testing.T) {
	p := NewNodePool()
	for i := 0; i < 5; i++ {
		if _, err := p.Acquire(); err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
	}
	p.Truncate(3)
	if p.Len() != 3 {
		t.Errorf("Len after Truncate(3) = %d, want 3", p.Len())
	}
	if p.FreeLen() != 0 {
		t.Errorf("FreeLen after Truncate = %d, want 0", p.FreeLen())
	}
}

func TestSwapMoveCopiesSlot(t *testing.T) {
	p := NewNodePool()
	a, _ := p.Acquire()
	b, _ := p.Acquire()
	p.Get(a).Prefix = 24
	p.SwapMove(b, a)
	if p.Get(b).Prefix != 24 {
		t.Errorf("SwapMove(dst=%d, src=%d) did not copy Prefix", b, a)
	}
	if !p.IsOccupied(b) {
		t.Error("SwapMove did not mark dst occupied")
	}
}

func TestAcquireReleaseAgainstGoldModel(t *testing.T) {
	prng := rand.New(rand.NewPCG(5, 9))
	p := NewLeafPool()
	live := map[uint32]bool{}

	for i := 0; i < 2000; i++ {
		if len(live) > 0 && prng.IntN(3) == 0 {
			var victim uint32
			for k := range live {
				victim = k
				break
			}
			p.Release(victim)
			delete(live, victim)
			continue
		}
		idx, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
		if live[idx] {
			t.Fatalf("Acquire returned an index already live: %d", idx)
		}
		live[idx] = true
	}

	for idx := range live {
		if !p.IsOccupied(idx) {
			t.Errorf("gold-live index %d not IsOccupied", idx)
		}
	}
}
