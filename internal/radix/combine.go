// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package radix

import "github.com/gaissmai/ipset/internal/ipaddr"

// CombineAdjacent implements §4.5's combine-adjacent pass: a bottom-up
// sweep that merges pairs of sibling leaves whose blocks are buddies
// (equal prefix, differing only in the final bit of that prefix, and
// positionally adjacent under a common parent) into one leaf one bit
// shorter, repeated until no more merges are possible, then collapses
// any node whose children have all converged on a single leaf into
// that leaf directly.
//
// This is run automatically after every leaf-pool growth (§4.1) and
// again as the first step of Clean (§4.6).
func (t *Tree) CombineAdjacent() {
	if t.Empty() {
		return
	}
	newRoot, newIsLeaf := t.combineSubtree(t.Root, t.RootIsLeaf)
	t.Root, t.RootIsLeaf = newRoot, newIsLeaf
}

// combineSubtree processes ref bottom-up and returns the (possibly
// different) reference that should replace it in its parent.
func (t *Tree) combineSubtree(ref uint32, isLeaf bool) (uint32, bool) {
	if isLeaf {
		return ref, true
	}

	nd := t.Nodes.Get(ref)
	for _, g := range computeGroups(nd) {
		if g.isLeaf {
			continue
		}
		newRef, newIsLeaf := t.combineSubtree(g.ref, false)
		if newRef == g.ref && newIsLeaf == g.isLeaf {
			continue
		}
		if newIsLeaf {
			// A node always occupies exactly one parent slot (§4.3's
			// NotFound construction never spans a node across slots), so
			// collapsing it into a leaf still occupies that one slot; any
			// further widening happens on the next pass once this leaf
			// sits among its new siblings.
			t.setChildLeafSpan(ref, g.start, 1, newRef)
		} else {
			t.setChildNode(ref, g.start, newRef)
		}
	}

	t.mergeSiblingLeaves(ref)

	nd = t.Nodes.Get(ref)
	groups := computeGroups(nd)
	if len(groups) == 1 && groups[0].start == 0 && groups[0].length == 16 && groups[0].isLeaf {
		leafRef := groups[0].ref
		t.Nodes.Release(ref)
		return leafRef, true
	}
	return ref, false
}

// mergeSiblingLeaves repeatedly scans node ref's children for adjacent,
// equal-length, equal-prefix leaf groups and merges each such pair into
// one leaf one bit shorter, until a full scan finds nothing left to
// merge.
func (t *Tree) mergeSiblingLeaves(ref uint32) {
	for {
		nd := t.Nodes.Get(ref)
		groups := computeGroups(nd)
		merged := false

		for i := 0; i+1 < len(groups); i++ {
			g1, g2 := groups[i], groups[i+1]
			if !g1.isLeaf || !g2.isLeaf || g1.length != g2.length {
				continue
			}
			if g1.start+g1.length != g2.start {
				continue
			}
			l1 := t.Leaves.Get(g1.ref)
			l2 := t.Leaves.Get(g2.ref)
			if l1.Prefix != l2.Prefix {
				continue
			}
			// Buddies: each leaf fills exactly its own slot span (so it is
			// no narrower than the node's 4-bit stride), and the pair starts
			// on a boundary of the doubled span.
			if int(l1.Prefix) > int(nd.Prefix)+4 || g1.start%(2*g1.length) != 0 {
				continue
			}
			newPrefix := int(l1.Prefix) - 1
			if newPrefix <= int(nd.Prefix)+3 && newPrefix < int(nd.Prefix) {
				// merging would widen past this node's own prefix; cannot
				// happen for a buddy pair (checked above), guard anyway to
				// stay defensive against malformed trees.
				continue
			}
			l1.Prefix = uint8(newPrefix)
			l1.IP = ipaddr.Mask(l1.IP, newPrefix)
			t.Leaves.Release(g2.ref)
			t.setChildLeafSpan(ref, g1.start, g1.length+g2.length, g1.ref)
			merged = true
			break
		}

		if !merged {
			return
		}
	}
}
