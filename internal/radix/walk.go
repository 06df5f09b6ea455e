// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package radix

import (
	"github.com/gaissmai/ipset/internal/arena"
	"github.com/gaissmai/ipset/internal/ipaddr"
)

// WalkCIDR performs a depth-first, left-to-right traversal of the tree
// and calls visit once per distinct stored CIDR block (repeated child
// slots referencing the same leaf are only visited once). Traversal
// stops early if visit returns false. Blocks are visited in tree order,
// which is ascending address order only after Clean (§4.6).
func (t *Tree) WalkCIDR(visit func(ip ipaddr.Addr, prefix int) bool) {
	if t.Empty() {
		return
	}
	t.walk(t.Root, t.RootIsLeaf, visit)
}

func (t *Tree) walk(ref uint32, isLeaf bool, visit func(ipaddr.Addr, int) bool) bool {
	if isLeaf {
		lf := t.Leaves.Get(ref)
		return visit(lf.IP, int(lf.Prefix))
	}
	nd := t.Nodes.Get(ref)
	for _, g := range computeGroups(nd) {
		if !t.walk(g.ref, g.isLeaf, visit) {
			return false
		}
	}
	return true
}

// group is a maximal run of contiguous child slots on a node that
// reference the same child (a single node reference, or a leaf that
// may legitimately span several slots per §3 invariant 5).
type group struct {
	start, length int
	ref           uint32
	isLeaf        bool
}

// computeGroups partitions a node's 16 child slots into occupied
// groups, skipping empty slots, used by WalkCIDR, CombineAdjacent and
// Mask/MaskAndFill alike.
func computeGroups(nd *arena.Node) []group {
	var out []group
	for s := 0; s < 16; {
		if nd.Children[s] == arena.Null {
			s++
			continue
		}
		if nd.ChildRepeated&(1<<uint(s)) != 0 {
			// shouldn't start a scan on a repeat, but guard anyway
			s++
			continue
		}
		ref := nd.Children[s]
		isLeaf := nd.ChildIsLeaf&(1<<uint(s)) != 0
		length := 1
		ss := s + 1
		for ss < 16 && nd.Children[ss] == ref && nd.ChildRepeated&(1<<uint(ss)) != 0 {
			length++
			ss++
		}
		out = append(out, group{start: s, length: length, ref: ref, isLeaf: isLeaf})
		s = ss
	}
	return out
}
