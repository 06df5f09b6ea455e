// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package radix

import (
	"github.com/gaissmai/ipset/internal/arena"
	"github.com/gaissmai/ipset/internal/ipaddr"
)

// Insert stores the CIDR block k/prefix (k must already be masked to
// prefix), per §4.3. It is a no-op if the block is already present.
func (t *Tree) Insert(k ipaddr.Addr, prefix int) error {
	res, st := t.Find(k, prefix)

	switch res {
	case Ok:
		return nil

	case Empty:
		li, err := t.Leaves.Acquire()
		if err != nil {
			return err
		}
		*t.Leaves.Get(li) = arena.Leaf{Prefix: uint8(prefix), IP: k}
		t.Root, t.RootIsLeaf = li, true
		t.Dirty = true
		return t.maybeCombineAfterGrowth()

	case MultiLeaf:
		parentPrefix := int(t.Nodes.Get(st.Parent).Prefix)
		n := ipaddr.NumChildSlots(parentPrefix, prefix)
		leftmost := st.ChildSlot &^ (n - 1)

		li, err := t.Leaves.Acquire()
		if err != nil {
			return err
		}
		*t.Leaves.Get(li) = arena.Leaf{Prefix: uint8(prefix), IP: k}
		t.setChildLeafSpan(st.Parent, leftmost, n, li)
		t.Dirty = true
		return t.maybeCombineAfterGrowth()

	case Subset:
		if err := t.insertSubset(k, prefix, st); err != nil {
			return err
		}
		t.Dirty = true
		return t.maybeCombineAfterGrowth()

	case NotFound:
		if err := t.insertNotFound(k, prefix, st); err != nil {
			return err
		}
		t.Dirty = true
		return t.maybeCombineAfterGrowth()
	}
	return nil
}

// insertSubset widens the set in place to cover k/prefix, which the
// Find walk determined already contains one or more narrower stored
// blocks (§4.3 "Subset").
func (t *Tree) insertSubset(k ipaddr.Addr, prefix int, st State) error {
	if !st.ParentValid {
		t.destroySubtree(t.Root, t.RootIsLeaf)
		li, err := t.Leaves.Acquire()
		if err != nil {
			return err
		}
		*t.Leaves.Get(li) = arena.Leaf{Prefix: uint8(prefix), IP: k}
		t.Root, t.RootIsLeaf = li, true
		return nil
	}

	parentPrefix := int(t.Nodes.Get(st.Parent).Prefix)
	n := ipaddr.NumChildSlots(parentPrefix, prefix)
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

	li, err := t.Leaves.Acquire()
	if err != nil {
		return err
	}
	*t.Leaves.Get(li) = arena.Leaf{Prefix: uint8(prefix), IP: k}
	t.setChildLeafSpan(st.Parent, leftmost, n, li)
	return nil
}

// insertNotFound handles the case where the search key diverges from
// the terminal record before either side's own prefix ends (§4.3
// "NotFound"): a fresh branching node is created at the bit position
// where they diverge, rounded down to a stride boundary, with the
// displaced old subtree and the new leaf as its two children.
func (t *Tree) insertNotFound(k ipaddr.Addr, prefix int, st State) error {
	var oldIP ipaddr.Addr
	var oldPrefix int
	if st.IsLeaf {
		lf := t.Leaves.Get(st.Index)
		oldIP, oldPrefix = lf.IP, int(lf.Prefix)
	} else {
		nd := t.Nodes.Get(st.Index)
		oldIP, oldPrefix = nd.IP, int(nd.Prefix)
	}

	newNodePrefix := (st.Common / 4) * 4

	ni, err := t.Nodes.Acquire()
	if err != nil {
		return err
	}
	nn := t.Nodes.Get(ni)
	nn.Prefix = uint8(newNodePrefix)
	nn.IP = ipaddr.Mask(k, newNodePrefix)

	spanOld := ipaddr.NumChildSlots(newNodePrefix, oldPrefix)
	cOld := childSlot(oldIP, newNodePrefix)
	leftOld := cOld &^ (spanOld - 1)
	if st.IsLeaf {
		t.setChildLeafSpan(ni, leftOld, spanOld, st.Index)
	} else {
		t.setChildNode(ni, leftOld, st.Index)
	}

	li, err := t.Leaves.Acquire()
	if err != nil {
		return err
	}
	*t.Leaves.Get(li) = arena.Leaf{Prefix: uint8(prefix), IP: k}

	spanNew := ipaddr.NumChildSlots(newNodePrefix, prefix)
	cNew := childSlot(k, newNodePrefix)
	leftNew := cNew &^ (spanNew - 1)
	t.setChildLeafSpan(ni, leftNew, spanNew, li)

	if !st.ParentValid {
		t.Root, t.RootIsLeaf = ni, false
		return nil
	}
	t.setChildNode(st.Parent, st.ChildSlot, ni)
	return nil
}

// maybeCombineAfterGrowth runs the combine-adjacent pass (§4.5) when
// the leaf pool was just reallocated, per §4.1's "Acquire policy".
func (t *Tree) maybeCombineAfterGrowth() error {
	if !t.Leaves.LeavesRealloc {
		return nil
	}
	t.Leaves.LeavesRealloc = false
	t.CombineAdjacent()
	return nil
}
