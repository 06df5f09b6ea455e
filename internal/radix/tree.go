// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package radix implements the 16-way Patricia (radix) tree (C2) over
// the arena pools of package arena (C1). It is parametrised over
// address family only by the ipaddr.Addr values it stores; callers
// decide IsV6 once, at tree creation.
//
// The shape mirrors the teacher's split between a root-owning table
// type and an arena of node records (bart.Table / internal/nodes), but
// replaces the teacher's popcount-compressed, stride-8 ART trie with
// the plain index-addressed, 4-bit-stride, repeated-leaf-encoded
// Patricia tree that spec §3/§4.2-§4.4 requires: fan-out stays a
// constant 16 regardless of how wide a stored block is, which the
// compressed-sparse-array approach does not give you for free.
package radix

import (
	"github.com/gaissmai/ipset/internal/arena"
	"github.com/gaissmai/ipset/internal/ipaddr"
)

// Tree is a single-family (all-V4 or all-V6) radix tree.
type Tree struct {
	Nodes  *arena.NodePool
	Leaves *arena.LeafPool

	// Root is a pool index; RootIsLeaf selects which pool it names.
	// Root == arena.Null exactly when the tree is empty (§3 "Lifecycle");
	// index 0 is reserved in both pools, so this needs no separate count.
	Root       uint32
	RootIsLeaf bool

	IsV6 bool

	// Dirty mirrors the facade's is_dirty (§3): set by any structural
	// mutation, cleared by Clean.
	Dirty bool
}

// New returns an empty tree for the given address family.
func New(isV6 bool) *Tree {
	return &Tree{
		Nodes:  arena.NewNodePool(),
		Leaves: arena.NewLeafPool(),
		IsV6:   isV6,
	}
}

// Empty reports whether the tree holds no blocks at all.
func (t *Tree) Empty() bool { return t.Root == arena.Null }

// AddressWidth returns 32 or 128.
func (t *Tree) AddressWidth() int {
	if t.IsV6 {
		return 128
	}
	return 32
}

// childSlot returns the index of the 4-bit child slot of a node with
// parentPrefix that key k falls into.
func childSlot(k ipaddr.Addr, parentPrefix int) int {
	return int(ipaddr.BitsAt(k, parentPrefix))
}

// leftmostSlotFor returns the left-most child slot a block of
// leafPrefix under a node of parentPrefix occupies, given any key k
// inside that block.
func leftmostSlotFor(k ipaddr.Addr, parentPrefix, leafPrefix int) int {
	n := ipaddr.NumChildSlots(parentPrefix, leafPrefix)
	c := childSlot(k, parentPrefix)
	return c &^ (n - 1)
}

// setChildLeafSpan wires parent's slot c to point at leaf index li, and
// additionally fills the following n-1 slots as repeats when the leaf
// spans more than one slot (§3 invariant 5).
func (t *Tree) setChildLeafSpan(parent uint32, c, n int, li uint32) {
	pn := t.Nodes.Get(parent)
	pn.Children[c] = li
	pn.ChildIsLeaf |= 1 << uint(c)
	pn.ChildRepeated &^= 1 << uint(c)
	for i := 1; i < n; i++ {
		s := c + i
		pn.Children[s] = li
		pn.ChildIsLeaf |= 1 << uint(s)
		pn.ChildRepeated |= 1 << uint(s)
	}
}

// setChildNode wires parent's slot c (a single slot; nodes are never
// repeated) to point at node index ni.
func (t *Tree) setChildNode(parent uint32, c int, ni uint32) {
	pn := t.Nodes.Get(parent)
	pn.Children[c] = ni
	pn.ChildIsLeaf &^= 1 << uint(c)
	pn.ChildRepeated &^= 1 << uint(c)
}

// clearChildSpan empties n consecutive slots starting at c.
func (t *Tree) clearChildSpan(parent uint32, c, n int) {
	pn := t.Nodes.Get(parent)
	for i := 0; i < n; i++ {
		s := c + i
		pn.Children[s] = arena.Null
		pn.ChildIsLeaf &^= 1 << uint(s)
		pn.ChildRepeated &^= 1 << uint(s)
	}
}

// occupiedChildren returns the list of distinct (non-repeated) child
// slot indices on node ni.
func (t *Tree) occupiedChildren(ni uint32) []int {
	n := t.Nodes.Get(ni)
	out := make([]int, 0, 16)
	for c := 0; c < 16; c++ {
		if n.Children[c] == arena.Null {
			continue
		}
		if n.ChildRepeated&(1<<uint(c)) != 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}

// destroySubtree frees every node/leaf reachable from ref (recursively
// for nodes), used when Insert's Subset case widens a block in place
// by replacing an existing, narrower subtree (§4.3).
func (t *Tree) destroySubtree(ref uint32, isLeaf bool) {
	if ref == arena.Null {
		return
	}
	if isLeaf {
		t.Leaves.Release(ref)
		return
	}
	n := t.Nodes.Get(ref)
	seen := uint16(0)
	for c := 0; c < 16; c++ {
		if n.Children[c] == arena.Null || seen&(1<<uint(c)) != 0 {
			continue
		}
		if n.ChildRepeated&(1<<uint(c)) == 0 {
			t.destroySubtree(n.Children[c], n.ChildIsLeaf&(1<<uint(c)) != 0)
		}
		seen |= 1 << uint(c)
	}
	t.Nodes.Release(ref)
}
