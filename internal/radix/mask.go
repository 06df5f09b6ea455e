// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package radix

import (
	"fmt"

	"github.com/gaissmai/ipset/internal/ipaddr"
)

// maxMaskBlocks bounds how many distinct blocks a single stored leaf
// may decompose into during Mask/MaskAndFill. A wider bound is
// meaningless in practice: a caller masking a /0 down to /32 is asking
// for four billion singleton leaves, which blows up memory regardless
// of how the decomposition is implemented.
const maxMaskBlocks = 1 << 24

// Mask implements §4.5's Mask: every occupied block of width
// 2^(addressWidth-pm) keeps exactly one address, the block's base, and
// loses the rest.
func (t *Tree) Mask(pm int) error {
	return t.maskGeneric(pm, false)
}

// MaskAndFill implements §4.5's MaskAndFill: every occupied block of
// width 2^(addressWidth-pm) becomes entirely present.
func (t *Tree) MaskAndFill(pm int) error {
	return t.maskGeneric(pm, true)
}

// maskGeneric rebuilds the tree from the set of pm-aligned blocks
// touched by its current content, rather than performing the
// recursive in-place node surgery of §4.5 literally: for every stored
// leaf, every pm-block it overlaps is computed and re-inserted either
// as a host route (Mask) or as the whole pm-block (MaskAndFill), then
// the rebuilt content replaces the original. This produces the same
// observable set (§8's "exactly one address per occupied block" /
// "every occupied block entirely present" properties) with far less
// arena bookkeeping than splicing node spans in place.
func (t *Tree) maskGeneric(pm int, fillWhole bool) error {
	w := t.AddressWidth()
	if pm < 0 || pm > w {
		return fmt.Errorf("radix: mask prefix %d out of range for width %d", pm, w)
	}
	if t.Empty() {
		return nil
	}

	seen := map[ipaddr.Addr]struct{}{}
	var blocks []ipaddr.Addr

	var walkErr error
	t.WalkCIDR(func(ip ipaddr.Addr, prefix int) bool {
		if prefix >= pm {
			base := ipaddr.Mask(ip, pm)
			if _, ok := seen[base]; !ok {
				seen[base] = struct{}{}
				blocks = append(blocks, base)
			}
			return true
		}

		numBits := pm - prefix
		if numBits > 24 {
			walkErr = fmt.Errorf("radix: mask from /%d to /%d would expand to more than %d blocks", prefix, pm, maxMaskBlocks)
			return false
		}
		count := uint64(1) << uint(numBits)
		for i := uint64(0); i < count; i++ {
			base := ipaddr.SetField(ip, prefix, numBits, i)
			if _, ok := seen[base]; !ok {
				seen[base] = struct{}{}
				blocks = append(blocks, base)
			}
		}
		return true
	})
	if walkErr != nil {
		return walkErr
	}

	fresh := New(t.IsV6)
	for _, base := range blocks {
		prefix := pm
		if !fillWhole {
			prefix = w
		}
		if err := fresh.Insert(base, prefix); err != nil {
			return err
		}
	}

	t.Nodes, t.Leaves = fresh.Nodes, fresh.Leaves
	t.Root, t.RootIsLeaf = fresh.Root, fresh.RootIsLeaf
	t.Dirty = true
	return nil
}
