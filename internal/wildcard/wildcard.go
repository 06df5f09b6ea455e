// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package wildcard provides a minimal stand-in for the IP-wildcard
// iterator spec.md §1 names as an external collaborator out of scope
// for this module: something that yields (address, prefix) CIDR
// blocks in ascending order for InsertWildcard/RemoveWildcard to
// consume. Real deployments would plug in a full wildcard-expression
// parser; this package only covers the two shapes the facade and its
// tests actually need: a single CIDR block, and an arbitrary address
// range decomposed into maximal CIDR blocks.
package wildcard

import (
	"net/netip"

	"github.com/gaissmai/ipset/internal/ipaddr"
)

// Wildcard yields one or more ascending, disjoint CIDR blocks.
type Wildcard struct {
	base   netip.Addr
	prefix int // >=0 for a single CIDR block
	end    netip.Addr
	ranged bool
}

// CIDR returns a Wildcard that yields exactly the one block base/prefix.
func CIDR(base netip.Addr, prefix int) Wildcard {
	return Wildcard{base: base, prefix: prefix}
}

// Range returns a Wildcard that yields the maximal CIDR decomposition
// of the inclusive address range [begin, end].
func Range(begin, end netip.Addr) Wildcard {
	return Wildcard{base: begin, end: end, ranged: true}
}

// Blocks calls visit once per block in ascending order, stopping early
// if visit returns false.
func (w Wildcard) Blocks(visit func(addr netip.Addr, prefix int) bool) {
	if !w.ranged {
		visit(w.base, w.prefix)
		return
	}
	a := ipaddr.FromNetip(w.base)
	b := ipaddr.FromNetip(w.end)
	ipaddr.RangeToCIDRs(a, b, func(base ipaddr.Addr, prefix int) bool {
		return visit(base.ToNetip(), prefix)
	})
}
