// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"net/netip"

	"github.com/gaissmai/ipset/internal/ipaddr"
)

// Mode selects whether an Iterator yields maximal CIDR blocks or
// individual addresses (§4.6).
type Mode int

const (
	// ModeCIDR yields one (address, prefix) pair per maximal stored block.
	ModeCIDR Mode = iota
	// ModeAddress yields one (address, /AW) pair per individual address.
	ModeAddress
)

// V6Policy controls how an Iterator projects addresses between the
// IPv4 and IPv6 namespaces (§4.6, §9 glossary). For a pure-V4 set,
// Mix, Ignore and AsV4 yield every block unchanged, Force yields each
// block under ::ffff:0:0/96, and OnlyV6 yields nothing.
type V6Policy int

const (
	// Mix yields each block in its most natural family: anything inside
	// ::ffff:0:0/96 comes out as plain IPv4, everything else as IPv6.
	Mix V6Policy = iota
	// Ignore drops every block outside ::ffff:0:0/96 and yields the
	// rest unprojected, still in their ::ffff:0:0/96 IPv6 form.
	Ignore
	// AsV4 drops every block outside ::ffff:0:0/96 and projects the
	// rest down to plain IPv4.
	AsV4
	// Force projects every block up into IPv6, mapping plain IPv4
	// blocks under ::ffff:0:0/96.
	Force
	// OnlyV6 drops every block inside ::ffff:0:0/96 and yields only
	// genuine IPv6 content, unprojected.
	OnlyV6
)

// Iterator performs a sorted traversal of a Set, in CIDR or per-address
// mode, with a chosen IPv6 projection policy (C6, §4.6). Set.Iterator
// cleans a dirty radix-backed set first, in either mode, and then
// traverses a snapshot of its projected blocks.
type Iterator struct {
	blocks []block // filtered/projected, in ascending order
	bi     int      // index into blocks of the block under the cursor
	mode   Mode

	// address-mode cursor into blocks[bi]
	cur  ipaddr.Addr
	last ipaddr.Addr
	live bool
}

type block struct {
	ip     ipaddr.Addr
	prefix int
}

// Iterator returns a new traversal over s's current content. Building
// one snapshots s's blocks (post-projection); mutating s afterwards
// does not affect an in-progress Iterator.
func (s *Set) Iterator(mode Mode, policy V6Policy) *Iterator {
	if s.variant == variantRadix && s.dirty {
		s.Clean()
	}

	it := &Iterator{mode: mode}
	s.walkAddrBlocks(func(ip ipaddr.Addr, prefix int) bool {
		if b, ok := projectBlock(ip, prefix, policy); ok {
			it.blocks = append(it.blocks, b)
		}
		return true
	})
	if len(it.blocks) > 0 {
		it.loadBlock(0)
	}
	return it
}

// projectBlock applies policy to one stored block, returning ok=false
// if policy drops it entirely.
func projectBlock(ip ipaddr.Addr, prefix int, policy V6Policy) (block, bool) {
	mapped := ip.Is6 && ipaddr.IsV4InV6(ip) && prefix >= 96

	switch policy {
	case Mix:
		if mapped {
			return block{ipaddr.FromV4(ipaddr.ToMappedV4(ip)), prefix - 96}, true
		}
		return block{ip, prefix}, true
	case Ignore:
		if ip.Is6 && !mapped {
			return block{}, false
		}
		return block{ip, prefix}, true
	case AsV4:
		if !ip.Is6 {
			return block{ip, prefix}, true
		}
		if !mapped {
			return block{}, false
		}
		return block{ipaddr.FromV4(ipaddr.ToMappedV4(ip)), prefix - 96}, true
	case Force:
		if !ip.Is6 {
			return block{ipaddr.FromMappedV4(ip.V4Value()), prefix + 96}, true
		}
		return block{ip, prefix}, true
	case OnlyV6:
		if !ip.Is6 || mapped {
			return block{}, false
		}
		return block{ip, prefix}, true
	default:
		return block{ip, prefix}, true
	}
}

func (it *Iterator) loadBlock(i int) {
	it.bi = i
	b := it.blocks[i]
	it.cur = b.ip
	it.last = ipaddr.LastAddr(b.ip, b.prefix)
	it.live = true
}

// Next returns the next (address, prefix) pair in ascending order, or
// ok=false once the traversal is exhausted. In ModeCIDR, prefix is the
// stored block's own prefix; in ModeAddress, prefix is always the full
// address width and successive calls step one address at a time,
// advancing to the next block on overflow.
func (it *Iterator) Next() (addr netip.Addr, prefix int, ok bool) {
	if it.mode == ModeCIDR {
		if it.bi >= len(it.blocks) {
			return netip.Addr{}, 0, false
		}
		b := it.blocks[it.bi]
		it.bi++
		return b.ip.ToNetip(), b.prefix, true
	}

	for {
		if !it.live {
			return netip.Addr{}, 0, false
		}
		out := it.cur
		if ipaddr.Less(it.last, it.cur) {
			// current block exhausted before we even started (shouldn't
			// happen since LastAddr() guarantees last >= ip), fall through
			it.live = false
			continue
		}
		if ipaddr.Compare(it.cur, it.last) == 0 {
			it.live = false
			if it.bi+1 < len(it.blocks) {
				it.loadBlock(it.bi + 1)
			}
		} else {
			next, _ := ipaddr.Add(it.cur, 1)
			it.cur = next
		}
		return out.ToNetip(), out.Width(), true
	}
}

// Reset rewinds the iterator to its first block, keeping the same
// snapshot of blocks taken at construction.
func (it *Iterator) Reset() {
	it.bi = 0
	if len(it.blocks) > 0 {
		it.loadBlock(0)
	} else {
		it.live = false
	}
}
