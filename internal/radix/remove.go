// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package radix

import (
	"github.com/gaissmai/ipset/internal/arena"
	"github.com/gaissmai/ipset/internal/ipaddr"
)

// Remove deletes the CIDR block k/prefix (already masked), per §4.4.
func (t *Tree) Remove(k ipaddr.Addr, prefix int) error {
	res, st := t.Find(k, prefix)

	switch res {
	case Empty, NotFound, MultiLeaf:
		return nil

	case Ok:
		// Ok always terminates at a leaf (a node terminal can only ever
		// classify as NotFound or Subset, see find.go).
		if st.TermPrefix < prefix {
			return t.removeSplit(k, prefix, st)
		}
		t.clearSpanAndFreeLeaf(st)
		t.fixSingleChildUpward(st.Path)
		t.Dirty = true
		return nil

	case Subset:
		t.removeSubsetSpan(prefix, st)
		t.fixSingleChildUpward(st.Path)
		t.Dirty = true
		return nil
	}
	return nil
}

// clearSpanAndFreeLeaf removes the exact-match leaf found at st.Index
// from its parent's child slots (or clears the root) and releases it.
func (t *Tree) clearSpanAndFreeLeaf(st State) {
	lf := t.Leaves.Get(st.Index)
	leafPrefix := int(lf.Prefix)

	if !st.ParentValid {
		t.Leaves.Release(st.Index)
		t.Root, t.RootIsLeaf = arena.Null, false
		return
	}

	parentPrefix := int(t.Nodes.Get(st.Parent).Prefix)
	n := ipaddr.NumChildSlots(parentPrefix, leafPrefix)
	leftmost := st.ChildSlot &^ (n - 1)
	t.clearChildSpan(st.Parent, leftmost, n)
	t.Leaves.Release(st.Index)
}

// removeSubsetSpan destroys every distinct subtree/leaf occupying the
// child-slot span that request prefix `prefix` carves out of st.Parent
// (§4.4 "Subset with the request spanning multiple child slots").
func (t *Tree) removeSubsetSpan(prefix int, st State) {
	if !st.ParentValid {
		t.destroySubtree(t.Root, t.RootIsLeaf)
		t.Root, t.RootIsLeaf = arena.Null, false
		return
	}

	n := ipaddr.NumChildSlots(int(t.Nodes.Get(st.Parent).Prefix), prefix)
	leftmost := st.ChildSlot &^ (n - 1)
	for i := 0; i < n; i++ {
		s := leftmost + i
		pn := t.Nodes.Get(st.Parent)
		if pn.Children[s] == arena.Null || pn.ChildRepeated&(1<<uint(s)) != 0 {
			continue
		}
		t.destroySubtree(pn.Children[s], pn.ChildIsLeaf&(1<<uint(s)) != 0)
	}
	t.clearChildSpan(st.Parent, leftmost, n)
}

// removeSplit handles Remove when the stored leaf is wider than the
// requested block: the covering leaf is removed and replaced by the
// complementary halves of every split between the leaf's own prefix
// and the requested prefix, none of which contain k (§4.4).
func (t *Tree) removeSplit(k ipaddr.Addr, prefix int, st State) error {
	lf := t.Leaves.Get(st.Index)
	coveringPrefix := int(lf.Prefix)

	t.clearSpanAndFreeLeaf(st)

	for pp := coveringPrefix + 1; pp <= prefix; pp++ {
		half := ipaddr.FlipBit(ipaddr.Mask(k, pp), pp-1)
		if err := t.Insert(half, pp); err != nil {
			return err
		}
	}
	t.Dirty = true
	return nil
}

// fixSingleChildUpward implements §4.4's FixSingleChild, walking the
// recorded ancestor path from the deepest node upward: while a node
// has exactly one occupied child, collapse it into its parent (or
// hoist a lone leaf child), and if a node becomes childless, remove it
// from its own parent too, continuing upward.
func (t *Tree) fixSingleChildUpward(path []PathStep) {
	for i := len(path) - 1; i >= 0; i-- {
		nodeIdx := path[i].Node
		occ := t.occupiedChildren(nodeIdx)

		switch len(occ) {
		case 0:
			t.removeNodeFromAncestor(path, i, arena.Null, false)
			t.Nodes.Release(nodeIdx)

		case 1:
			slot := occ[0]
			nd := t.Nodes.Get(nodeIdx)
			childRef := nd.Children[slot]
			childIsLeaf := nd.ChildIsLeaf&(1<<uint(slot)) != 0
			t.removeNodeFromAncestor(path, i, childRef, childIsLeaf)
			t.Nodes.Release(nodeIdx)

		default:
			return
		}
	}
}

// removeNodeFromAncestor rewires whatever pointed at path[i].Node
// (path[i-1], or the tree root when i==0) to instead point at
// replacement (or to arena.Null when the node became childless).
func (t *Tree) removeNodeFromAncestor(path []PathStep, i int, replacement uint32, replacementIsLeaf bool) {
	if i == 0 {
		if replacement == arena.Null {
			t.Root, t.RootIsLeaf = arena.Null, false
			return
		}
		t.Root, t.RootIsLeaf = replacement, replacementIsLeaf
		return
	}

	parent := path[i-1].Node
	slot := path[i].Slot
	if replacement == arena.Null {
		t.clearChildSpan(parent, slot, 1)
		return
	}
	if replacementIsLeaf {
		parentPrefix := int(t.Nodes.Get(parent).Prefix)
		leafPrefix := int(t.Leaves.Get(replacement).Prefix)
		n := ipaddr.NumChildSlots(parentPrefix, leafPrefix)
		leftmost := slot &^ (n - 1)
		t.setChildLeafSpan(parent, leftmost, n, replacement)
		return
	}
	t.setChildNode(parent, slot, replacement)
}
