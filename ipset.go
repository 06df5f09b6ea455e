// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package ipset implements an IP-address set: a data structure and
// on-disk format for storing, querying and combining large collections
// of IPv4 and IPv6 addresses and CIDR blocks.
//
// A Set (C4, the "facade") holds its content in one of two
// representations: the flat two-level IPv4 bitmap (internal/flatv4,
// C3) for pure-IPv4 sets, or the 16-way radix tree (internal/radix,
// C2, over internal/arena, C1) once the set carries IPv6 or the
// SKIPSET_INCORE_FORMAT environment variable requests it. Callers
// never see which representation is in play; Convert, ConvertFormat
// and Insert's IPv6 autoconversion move between them.
package ipset

import (
	"fmt"
	"math"
	"math/big"
	"net/netip"
	"os"

	"github.com/gaissmai/ipset/internal/flatv4"
	"github.com/gaissmai/ipset/internal/ipaddr"
	"github.com/gaissmai/ipset/internal/radix"
	"github.com/gaissmai/ipset/internal/wildcard"
)

// variant selects which in-memory representation backs a Set.
type variant int

const (
	variantFlat variant = iota
	variantRadix
)

func (v variant) String() string {
	if v == variantFlat {
		return "flat"
	}
	return "radix"
}

// Set is an IP-address set (C4). The zero value is not usable; build
// one with Create.
type Set struct {
	isV6    bool
	variant variant
	flat    *flatv4.Set
	radix   *radix.Tree

	dirty         bool
	noAutoconvert bool
}

// Create returns a new, empty set. supportIPv6 forces the radix
// representation from the start; otherwise the set starts as an
// IPv4-only set in whichever representation SKIPSET_INCORE_FORMAT
// selects (§6), converting to IPv6/radix automatically on first IPv6
// insert unless SetAutoconvert(false) has been called.
func Create(supportIPv6 bool) *Set {
	s := &Set{isV6: supportIPv6}
	if supportIPv6 {
		s.variant = variantRadix
		s.radix = radix.New(true)
		return s
	}
	if defaultIncoreFormat() == IncoreRadix {
		s.variant = variantRadix
		s.radix = radix.New(false)
		return s
	}
	s.variant = variantFlat
	s.flat = flatv4.New()
	return s
}

// Destroy releases the set's storage. If SKIPSET_DESTROY_PRINT is set,
// it first dumps structural diagnostics to stderr (§6).
func (s *Set) Destroy() {
	if destroyPrintEnabled() {
		fmt.Fprintf(os.Stderr, "ipset: destroy variant=%s isV6=%t dirty=%t\n", s.variant, s.isV6, s.dirty)
	}
	s.flat = nil
	s.radix = nil
}

// SetAutoconvert controls whether inserting an IPv6 address into an
// IPv4-only set silently upgrades it to IPv6/radix (the default) or
// fails with IPv6 (§3 "no_autoconvert").
func (s *Set) SetAutoconvert(enabled bool) { s.noAutoconvert = !enabled }

// IsV6 reports whether the set is presently in its IPv6/radix form.
func (s *Set) IsV6() bool { return s.isV6 }

// ContainsV6 reports whether the set holds any address outside
// ::ffff:0:0/96, i.e. any address that is not representable as plain
// IPv4 (§6).
func (s *Set) ContainsV6() bool {
	if !s.isV6 {
		return false
	}
	found := false
	s.radix.WalkCIDR(func(ip ipaddr.Addr, prefix int) bool {
		if !ipaddr.IsV4InV6(ip) || prefix < 96 {
			found = true
			return false
		}
		return true
	})
	return found
}

// IsDirty reports whether the set has been mutated since the last Clean.
func (s *Set) IsDirty() bool { return s.dirty }

func (s *Set) markDirty() { s.dirty = true }

// Clean restores invariants 1-4 of §3 (sorted, maximally-coalesced
// leaves; no pool holes) and clears IsDirty. It is a no-op on the flat
// representation, which carries no such invariants.
func (s *Set) Clean() {
	if s.variant == variantRadix {
		s.radix.Clean()
	}
	s.dirty = false
}

func (s *Set) requireClean() error {
	if s.dirty {
		return &Error{Kind: RequireClean, Msg: "operation requires a clean set; call Clean first"}
	}
	return nil
}

// addrWidth returns the address width a netip.Addr would need masking
// against, using a.Is6 (after Unmap) rather than the set's own family.
func addrWidth(a netip.Addr) int {
	if a.Unmap().Is4() {
		return 32
	}
	return 128
}

// Insert stores the CIDR block ip/prefix (ip need not be pre-masked).
func (s *Set) Insert(ip netip.Addr, prefix int) error {
	aw := addrWidth(ip)
	if prefix < 0 || prefix > aw {
		return newError(Prefix, "prefix /%d out of range for a /%d address", prefix, aw)
	}
	a := ipaddr.Mask(ipaddr.FromNetip(ip), prefix)

	if a.Is6 {
		if !s.isV6 {
			if s.noAutoconvert {
				return ErrIPv6
			}
			if err := s.convertToV6(); err != nil {
				return err
			}
		}
		return s.insertRadix(a, prefix)
	}

	if s.isV6 {
		mapped := ipaddr.FromMappedV4(a.V4Value())
		return s.insertRadix(mapped, prefix+96)
	}

	switch s.variant {
	case variantFlat:
		s.flat.Insert(a.V4Value(), prefix)
		s.markDirty()
		return nil
	default:
		return s.insertRadix(a, prefix)
	}
}

func (s *Set) insertRadix(a ipaddr.Addr, prefix int) error {
	if err := s.radix.Insert(a, prefix); err != nil {
		return wrapError(Alloc, err, "insert")
	}
	s.dirty = s.radix.Dirty
	return nil
}

// Remove deletes the CIDR block ip/prefix. It is a no-op if the exact
// block, or any part of a wider stored block not covering the rest of
// it, simply isn't present the way the caller expects (§4.4).
func (s *Set) Remove(ip netip.Addr, prefix int) error {
	aw := addrWidth(ip)
	if prefix < 0 || prefix > aw {
		return newError(Prefix, "prefix /%d out of range for a /%d address", prefix, aw)
	}
	a := ipaddr.Mask(ipaddr.FromNetip(ip), prefix)

	if a.Is6 {
		if !s.isV6 {
			return nil // nothing to remove from a pure-V4 set
		}
		return s.removeRadix(a, prefix)
	}

	if s.isV6 {
		mapped := ipaddr.FromMappedV4(a.V4Value())
		return s.removeRadix(mapped, prefix+96)
	}

	switch s.variant {
	case variantFlat:
		s.flat.Remove(a.V4Value(), prefix)
		s.markDirty()
		return nil
	default:
		return s.removeRadix(a, prefix)
	}
}

func (s *Set) removeRadix(a ipaddr.Addr, prefix int) error {
	if err := s.radix.Remove(a, prefix); err != nil {
		return wrapError(Alloc, err, "remove")
	}
	s.dirty = s.radix.Dirty
	return nil
}

// RemoveAll empties the set without changing its representation or family.
func (s *Set) RemoveAll() {
	switch s.variant {
	case variantFlat:
		s.flat.RemoveAll()
	default:
		s.radix = radix.New(s.isV6)
	}
	s.dirty = false
}

// InsertWildcard inserts every block w yields.
func (s *Set) InsertWildcard(w wildcard.Wildcard) error {
	var err error
	w.Blocks(func(addr netip.Addr, prefix int) bool {
		if e := s.Insert(addr, prefix); e != nil {
			err = e
			return false
		}
		return true
	})
	return err
}

// RemoveWildcard removes every block w yields.
func (s *Set) RemoveWildcard(w wildcard.Wildcard) error {
	var err error
	w.Blocks(func(addr netip.Addr, prefix int) bool {
		if e := s.Remove(addr, prefix); e != nil {
			err = e
			return false
		}
		return true
	})
	return err
}

// InsertRange inserts every address in the inclusive range [begin, end].
func (s *Set) InsertRange(begin, end netip.Addr) error {
	return s.InsertWildcard(wildcard.Range(begin, end))
}

// Contains reports whether ip is a member of the set.
func (s *Set) Contains(ip netip.Addr) bool {
	a := ipaddr.FromNetip(ip)

	if a.Is6 {
		if !s.isV6 {
			return false
		}
		return containsRadix(s.radix, a)
	}

	if s.isV6 {
		return containsRadix(s.radix, ipaddr.FromMappedV4(a.V4Value()))
	}

	switch s.variant {
	case variantFlat:
		return s.flat.Contains(a.V4Value())
	default:
		res, _ := s.radix.Find(a, a.Width())
		return res == radix.Ok
	}
}

func containsRadix(t *radix.Tree, a ipaddr.Addr) bool {
	res, _ := t.Find(a, a.Width())
	return res == radix.Ok
}

// ContainsAny reports whether s and other share at least one address.
func (s *Set) ContainsAny(other *Set) bool {
	found := false
	other.walkBlocks(func(addr netip.Addr, prefix int) bool {
		if s.containsBlock(addr, prefix) {
			found = true
			return false
		}
		return true
	})
	return found
}

// ContainsAnyWildcard reports whether s contains any address w yields.
func (s *Set) ContainsAnyWildcard(w wildcard.Wildcard) bool {
	found := false
	w.Blocks(func(addr netip.Addr, prefix int) bool {
		if s.containsBlock(addr, prefix) {
			found = true
			return false
		}
		return true
	})
	return found
}

// containsBlock reports whether s holds any address of addr/prefix.
func (s *Set) containsBlock(addr netip.Addr, prefix int) bool {
	a := ipaddr.Mask(ipaddr.FromNetip(addr), prefix)
	if a.Is6 {
		if !s.isV6 {
			return false
		}
		res, _ := s.radix.Find(a, prefix)
		return res == radix.Ok || res == radix.Subset
	}
	if s.isV6 {
		mapped := ipaddr.FromMappedV4(a.V4Value())
		res, _ := s.radix.Find(mapped, prefix+96)
		return res == radix.Ok || res == radix.Subset
	}
	switch s.variant {
	case variantFlat:
		// A wider stored block containing part of addr/prefix still
		// counts; cheapest correct check is any address in range.
		if prefix == 32 {
			return s.flat.Contains(a.V4Value())
		}
		found := false
		last := ipaddr.LastAddr(a, prefix)
		ipaddr.RangeToCIDRs(a, last, func(base ipaddr.Addr, p int) bool {
			if s.flat.Contains(base.V4Value()) {
				found = true
				return false
			}
			return true
		})
		return found
	default:
		res, _ := s.radix.Find(a, prefix)
		return res == radix.Ok || res == radix.Subset
	}
}

// walkAddrBlocks visits every stored maximal CIDR block in internal
// address form, shared by the public iterator, algorithms, and the
// E4 supplements (String/Equal/Clone/...).
func (s *Set) walkAddrBlocks(visit func(ipaddr.Addr, int) bool) {
	switch s.variant {
	case variantFlat:
		s.flat.WalkCIDR(func(base uint32, prefix int) bool {
			return visit(ipaddr.FromV4(base), prefix)
		})
	default:
		s.radix.WalkCIDR(visit)
	}
}

// walkBlocks is walkAddrBlocks projected to the public netip.Addr type.
func (s *Set) walkBlocks(visit func(netip.Addr, int) bool) {
	s.walkAddrBlocks(func(a ipaddr.Addr, p int) bool {
		return visit(a.ToNetip(), p)
	})
}

// CountAddresses returns the number of distinct addresses in the set:
// a low 64 bits, an overflow flag set when the true count needs more
// than 64 bits (only possible for large IPv6 sets), and a float64
// approximation usable regardless of overflow.
func (s *Set) CountAddresses() (low uint64, overflow bool, approx float64) {
	var exact uint64
	var exceeded bool
	s.walkAddrBlocks(func(a ipaddr.Addr, prefix int) bool {
		bits := a.Width() - prefix
		approx += math.Pow(2, float64(bits))
		if exceeded {
			return true
		}
		if bits >= 64 {
			exceeded = true
			return true
		}
		n := uint64(1) << uint(bits)
		next := exact + n
		if next < exact {
			exceeded = true
			return true
		}
		exact = next
		return true
	})
	if exceeded {
		return 0, true, approx
	}
	return exact, false, approx
}

// CountAddressesString returns CountAddresses's exact value as a
// decimal string, correct across the full 128-bit range.
func (s *Set) CountAddressesString() string {
	total := new(big.Int)
	pow := new(big.Int)
	one := big.NewInt(1)
	s.walkAddrBlocks(func(a ipaddr.Addr, prefix int) bool {
		pow.Lsh(one, uint(a.Width()-prefix))
		total.Add(total, pow)
		return true
	})
	return total.String()
}
