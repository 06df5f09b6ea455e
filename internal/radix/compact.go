// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package radix

import "github.com/gaissmai/ipset/internal/arena"

// Compact implements §4.5's pool compaction: every live entry at or
// beyond each pool's in-use boundary is relocated into a hole below
// that boundary, every reference to a relocated entry is rewritten,
// and the backing slice is then truncated to the in-use length with an
// empty free list.
func (t *Tree) Compact() {
	t.compactNodes()
	t.compactLeaves()
}

func (t *Tree) compactNodes() {
	inUse := t.Nodes.InUse()
	total := t.Nodes.Len()
	if total == 0 {
		return
	}
	remap := map[uint32]uint32{}
	end := uint32(inUse) + 1 // InUse excludes the reserved slot 0
	hi := end
	for hole := uint32(1); hole < end; hole++ {
		if t.Nodes.IsOccupied(hole) {
			continue
		}
		for hi < uint32(total) && !t.Nodes.IsOccupied(hi) {
			hi++
		}
		if hi >= uint32(total) {
			break
		}
		t.Nodes.SwapMove(hole, hi)
		remap[hi] = hole
		hi++
	}
	if len(remap) > 0 {
		t.relinkNodeRefs(remap)
	}
	t.Nodes.Truncate(int(end))
}

func (t *Tree) compactLeaves() {
	inUse := t.Leaves.InUse()
	total := t.Leaves.Len()
	if total == 0 {
		return
	}
	remap := map[uint32]uint32{}
	end := uint32(inUse) + 1 // InUse excludes the reserved slot 0
	hi := end
	for hole := uint32(1); hole < end; hole++ {
		if t.Leaves.IsOccupied(hole) {
			continue
		}
		for hi < uint32(total) && !t.Leaves.IsOccupied(hi) {
			hi++
		}
		if hi >= uint32(total) {
			break
		}
		t.Leaves.SwapMove(hole, hi)
		remap[hi] = hole
		hi++
	}
	if len(remap) > 0 {
		t.relinkLeafRefs(remap)
	}
	t.Leaves.Truncate(int(end))
}

// relinkNodeRefs scans every node-pool slot for child references named
// in remap and rewrites them, plus the tree root. Scanning the whole
// pool rather than walking the tree from the root avoids needing
// parent backlinks, at the cost of touching dead slots too; pools stay
// small enough in practice for this not to matter.
func (t *Tree) relinkNodeRefs(remap map[uint32]uint32) {
	if !t.RootIsLeaf {
		if nr, ok := remap[t.Root]; ok {
			t.Root = nr
		}
	}
	items := t.Nodes.Items()
	for i := 1; i < len(items); i++ {
		nd := &items[i]
		for c := 0; c < 16; c++ {
			if nd.ChildIsLeaf&(1<<uint(c)) != 0 {
				continue
			}
			if nd.Children[c] == arena.Null {
				continue
			}
			if nr, ok := remap[nd.Children[c]]; ok {
				nd.Children[c] = nr
			}
		}
	}
}

func (t *Tree) relinkLeafRefs(remap map[uint32]uint32) {
	if t.RootIsLeaf {
		if nr, ok := remap[t.Root]; ok {
			t.Root = nr
		}
	}
	items := t.Nodes.Items()
	for i := 1; i < len(items); i++ {
		nd := &items[i]
		for c := 0; c < 16; c++ {
			if nd.ChildIsLeaf&(1<<uint(c)) == 0 {
				continue
			}
			if nd.Children[c] == arena.Null {
				continue
			}
			if nr, ok := remap[nd.Children[c]]; ok {
				nd.Children[c] = nr
			}
		}
	}
}
