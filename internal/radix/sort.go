// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package radix

import (
	"sort"

	"github.com/gaissmai/ipset/internal/arena"
	"github.com/gaissmai/ipset/internal/ipaddr"
)

// SortLeaves implements §4.5's final Clean step: every reachable leaf
// is collected by a left-to-right depth-first walk (each one exactly
// once, regardless of how many child slots repeat it), sorted by
// address, and written back as a dense [1, n) slice so that iteration
// in tree order coincides with ascending address order. Every node's
// leaf child references are rewritten to match, including any
// repeated spans, which keep the new index of their left neighbour.
func (t *Tree) SortLeaves() {
	if t.Empty() {
		return
	}

	type pair struct {
		old uint32
		lf  arena.Leaf
	}
	var pairs []pair
	seen := map[uint32]bool{}

	var dfs func(ref uint32, isLeaf bool)
	dfs = func(ref uint32, isLeaf bool) {
		if isLeaf {
			if seen[ref] {
				return
			}
			seen[ref] = true
			pairs = append(pairs, pair{old: ref, lf: *t.Leaves.Get(ref)})
			return
		}
		nd := t.Nodes.Get(ref)
		for _, g := range computeGroups(nd) {
			dfs(g.ref, g.isLeaf)
		}
	}
	dfs(t.Root, t.RootIsLeaf)

	sort.Slice(pairs, func(i, j int) bool {
		return ipaddr.Less(pairs[i].lf.IP, pairs[j].lf.IP)
	})

	remap := make(map[uint32]uint32, len(pairs))
	newItems := make([]arena.Leaf, len(pairs)+1)
	for i, p := range pairs {
		newIdx := uint32(i + 1)
		remap[p.old] = newIdx
		newItems[newIdx] = p.lf
	}
	t.Leaves.ReplaceItems(newItems)

	if t.RootIsLeaf {
		t.Root = remap[t.Root]
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
