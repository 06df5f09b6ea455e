// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"net/netip"
	"sort"

	"github.com/gaissmai/ipset/internal/flatv4"
	"github.com/gaissmai/ipset/internal/ipaddr"
	"github.com/gaissmai/ipset/internal/radix"
)

// Union inserts every block of other into s (§4.5).
func (s *Set) Union(other *Set) error {
	var err error
	other.walkBlocks(func(addr netip.Addr, prefix int) bool {
		if e := s.Insert(addr, prefix); e != nil {
			err = e
			return false
		}
		return true
	})
	return err
}

// Subtract removes every block of other from s (§4.5).
func (s *Set) Subtract(other *Set) error {
	var err error
	other.walkBlocks(func(addr netip.Addr, prefix int) bool {
		if e := s.Remove(addr, prefix); e != nil {
			err = e
			return false
		}
		return true
	})
	return err
}

// addrRange is an inclusive [start, end] address range in the internal
// representation, used by Intersect's scratch accumulation and by
// Equal, which compares sets by merged address coverage rather than by
// raw block lists, since an uncleaned radix set may still hold adjacent
// blocks a clean one would have combined into one.
type addrRange struct {
	start, end ipaddr.Addr
}

// Intersect replaces s's content with the set of addresses present in
// both s and other (§4.5): both sides are read as sorted ranges
// (requiring s to be clean) and merged with a two-pointer sweep, then
// the overlap ranges are decomposed back into maximal CIDR blocks and
// reinserted into a cleared s.
func (s *Set) Intersect(other *Set) error {
	if err := s.requireClean(); err != nil {
		return err
	}

	a := rangesOf(s)
	b := rangesOfProjected(other, s.isV6)

	overlap := mergeIntersect(a, b)

	switch s.variant {
	case variantFlat:
		s.flat = flatv4.New()
	default:
		s.radix = radix.New(s.isV6)
	}
	s.dirty = false

	var err error
	for _, r := range overlap {
		ipaddr.RangeToCIDRs(r.start, r.end, func(base ipaddr.Addr, prefix int) bool {
			if e := s.insertInternal(base, prefix); e != nil {
				err = e
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// insertInternal stores an already-family-matched internal block
// directly into s's current variant, bypassing the public Insert's
// family negotiation (Intersect has already projected both operands to
// s's family).
func (s *Set) insertInternal(a ipaddr.Addr, prefix int) error {
	if s.variant == variantFlat {
		s.flat.Insert(a.V4Value(), prefix)
		return nil
	}
	if err := s.radix.Insert(a, prefix); err != nil {
		return wrapError(Alloc, err, "intersect")
	}
	return nil
}

func rangesOf(s *Set) []addrRange {
	var out []addrRange
	s.walkAddrBlocks(func(ip ipaddr.Addr, prefix int) bool {
		out = append(out, addrRange{ip, ipaddr.LastAddr(ip, prefix)})
		return true
	})
	return out
}

// rangesOfProjected returns other's blocks as ranges in wantV6's
// family: a V4 operand intersected against a V6 target is read through
// the ::ffff:0:0/96 mapping, and vice versa (anything outside that
// block on the V6 side simply contributes nothing to a V4 target).
func rangesOfProjected(other *Set, wantV6 bool) []addrRange {
	var out []addrRange
	other.walkAddrBlocks(func(ip ipaddr.Addr, prefix int) bool {
		switch {
		case wantV6 == ip.Is6:
			out = append(out, addrRange{ip, ipaddr.LastAddr(ip, prefix)})
		case wantV6 && !ip.Is6:
			mapped := ipaddr.FromMappedV4(ip.V4Value())
			out = append(out, addrRange{mapped, ipaddr.LastAddr(mapped, prefix+96)})
		case !wantV6 && ip.Is6:
			if ipaddr.IsV4InV6(ip) && prefix >= 96 {
				v4 := ipaddr.FromV4(ipaddr.ToMappedV4(ip))
				out = append(out, addrRange{v4, ipaddr.LastAddr(v4, prefix-96)})
			}
		}
		return true
	})
	return out
}

// mergeIntersect computes the overlap of two sorted, disjoint range
// lists via a two-pointer sweep (§4.5 Intersect).
func mergeIntersect(a, b []addrRange) []addrRange {
	sort.Slice(a, func(i, j int) bool { return ipaddr.Less(a[i].start, a[j].start) })
	sort.Slice(b, func(i, j int) bool { return ipaddr.Less(b[i].start, b[j].start) })

	var out []addrRange
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		lo := a[i].start
		if ipaddr.Less(lo, b[j].start) {
			lo = b[j].start
		}
		hi := a[i].end
		if ipaddr.Less(b[j].end, hi) {
			hi = b[j].end
		}
		if !ipaddr.Less(hi, lo) {
			out = append(out, addrRange{lo, hi})
		}
		if ipaddr.Less(a[i].end, b[j].end) {
			i++
		} else {
			j++
		}
	}
	return out
}

// Mask implements §4.5 Mask: keep one address per occupied block of
// width 2^(addressWidth-p).
func (s *Set) Mask(p int) error { return s.maskGeneric(p, false) }

// MaskAndFill implements §4.5 MaskAndFill: keep every occupied block
// of width 2^(addressWidth-p) entirely present.
func (s *Set) MaskAndFill(p int) error { return s.maskGeneric(p, true) }

func (s *Set) maskGeneric(p int, fillWhole bool) error {
	aw := 32
	if s.isV6 {
		aw = 128
	}
	if p < 0 || p > aw {
		return newError(Prefix, "mask prefix /%d out of range for /%d", p, aw)
	}

	if s.variant == variantRadix {
		var err error
		if fillWhole {
			err = s.radix.MaskAndFill(p)
		} else {
			err = s.radix.Mask(p)
		}
		if err != nil {
			return wrapError(Alloc, err, "mask")
		}
		s.dirty = s.radix.Dirty
		return nil
	}

	fresh := flatv4.New()
	var walkErr error
	s.flat.WalkCIDR(func(base uint32, prefix int) bool {
		ip := ipaddr.FromV4(base)
		if prefix >= p {
			b := ipaddr.Mask(ip, p)
			if fillWhole {
				fresh.Insert(b.V4Value(), p)
			} else {
				fresh.Insert(b.V4Value(), 32)
			}
			return true
		}
		numBits := p - prefix
		if numBits > 24 {
			walkErr = newError(Alloc, "mask from /%d to /%d would expand past the supported block count", prefix, p)
			return false
		}
		count := uint64(1) << uint(numBits)
		for i := uint64(0); i < count; i++ {
			b := ipaddr.SetField(ip, prefix, numBits, i)
			if fillWhole {
				fresh.Insert(b.V4Value(), p)
			} else {
				fresh.Insert(b.V4Value(), 32)
			}
		}
		return true
	})
	if walkErr != nil {
		return walkErr
	}
	s.flat = fresh
	s.dirty = true
	return nil
}
