// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package radix

import (
	"github.com/gaissmai/ipset/internal/arena"
	"github.com/gaissmai/ipset/internal/ipaddr"
)

// Result is the outcome of a Find, per §4.2.
type Result int

const (
	Empty Result = iota
	Ok
	NotFound
	MultiLeaf
	Subset
)

func (r Result) String() string {
	switch r {
	case Empty:
		return "Empty"
	case Ok:
		return "Ok"
	case NotFound:
		return "NotFound"
	case MultiLeaf:
		return "MultiLeaf"
	case Subset:
		return "Subset"
	default:
		return "Result(?)"
	}
}

// State captures everything Insert/Remove need to act on a Find
// result without re-walking the tree (§4.2 "FindState").
type State struct {
	// Index/IsLeaf identify the record the walk terminated on. Index is
	// arena.Null when the walk stopped at an empty child slot
	// (MultiLeaf).
	Index  uint32
	IsLeaf bool

	// Parent is the last node visited before termination, or
	// arena.Null with ParentValid=false at the root.
	Parent      uint32
	ParentValid bool

	// ChildSlot is the slot on Parent through which Index (or the empty
	// slot, for MultiLeaf) was reached.
	ChildSlot int

	// Common is the number of leading bits shared between the search
	// key and the terminal record's IP at the point the walk stopped.
	Common int

	// TermPrefix is the terminal record's own prefix (leaf.Prefix or
	// node.Prefix), needed by Insert/Remove to reason about where the
	// new/old block sits relative to it.
	TermPrefix int

	// Path is the full chain of ancestor nodes from the root down to
	// (but excluding) the terminal, recording which slot was taken at
	// each. Nodes hold no parent backlink (§9 "no cyclic references" /
	// §3's plain index-addressed records), so FixSingleChild (§4.4)
	// needs this recorded path to walk back upward after a removal.
	// Path[len-1] == (Parent, ChildSlot) whenever ParentValid.
	Path []PathStep
}

// PathStep records that, while descending, the walk was at node Node
// and took child slot Slot to go deeper.
type PathStep struct {
	Node uint32
	Slot int
}

// classify maps (common, termPrefix, pSearch) to a Result per the table
// in §4.2, shared between the leaf-terminal and node-terminal cases.
func classify(common, termPrefix, pSearch int) Result {
	if common < termPrefix {
		if common < pSearch {
			return NotFound
		}
		return Subset
	}
	// common >= termPrefix
	if pSearch >= termPrefix {
		return Ok
	}
	return Subset
}

// Find descends from the root looking for k/pSearch, per §4.2.
func (t *Tree) Find(k ipaddr.Addr, pSearch int) (Result, State) {
	if t.Empty() {
		return Empty, State{}
	}

	cur := t.Root
	curIsLeaf := t.RootIsLeaf
	var parent uint32
	parentValid := false
	childSlot := -1
	var path []PathStep

	for {
		if curIsLeaf {
			lf := t.Leaves.Get(cur)
			common := ipaddr.CommonPrefixLen(k, lf.IP)
			res := classify(common, int(lf.Prefix), pSearch)
			return res, State{
				Index: cur, IsLeaf: true,
				Parent: parent, ParentValid: parentValid,
				ChildSlot: childSlot, Common: common, TermPrefix: int(lf.Prefix),
				Path: path,
			}
		}

		nd := t.Nodes.Get(cur)
		common := ipaddr.CommonPrefixLen(k, nd.IP)
		if common < int(nd.Prefix) {
			res := classify(common, int(nd.Prefix), pSearch)
			return res, State{
				Index: cur, IsLeaf: false,
				Parent: parent, ParentValid: parentValid,
				ChildSlot: childSlot, Common: common, TermPrefix: int(nd.Prefix),
				Path: path,
			}
		}

		c := int(ipaddr.BitsAt(k, int(nd.Prefix)))
		next := nd.Children[c]
		if next == arena.Null {
			if spansOccupiedSibling(nd, pSearch, int(nd.Prefix), c) {
				return Subset, State{
					Index: arena.Null, IsLeaf: false,
					Parent: cur, ParentValid: true,
					ChildSlot: c, Common: int(nd.Prefix) + 4, TermPrefix: int(nd.Prefix) + 4,
					Path: path,
				}
			}
			return MultiLeaf, State{
				Index: arena.Null, IsLeaf: false,
				Parent: cur, ParentValid: true,
				ChildSlot: c, Common: int(nd.Prefix) + 4, TermPrefix: int(nd.Prefix) + 4,
				Path: path,
			}
		}

		path = append(path, PathStep{Node: cur, Slot: c})
		parent = cur
		parentValid = true
		childSlot = c
		cur = next
		curIsLeaf = nd.ChildIsLeaf&(1<<uint(c)) != 0
	}
}

// spansOccupiedSibling reports, for a search prefix narrower than
// parentPrefix+4 (i.e. the request covers more than one child slot of
// the parent), whether any of the sibling slots in that span is
// occupied -- in which case an empty slot at c still means "the set
// holds part of the requested block" (Subset), not "nothing here at
// all" (MultiLeaf), per §4.2's final bullet.
func spansOccupiedSibling(nd *arena.Node, pSearch, parentPrefix, c int) bool {
	if pSearch >= parentPrefix+4 {
		return false
	}
	span := 1 << uint(parentPrefix+4-pSearch)
	base := c &^ (span - 1)
	for i := 0; i < span; i++ {
		if nd.Children[base+i] != arena.Null {
			return true
		}
	}
	return false
}
