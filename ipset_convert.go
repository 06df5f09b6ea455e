// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"github.com/gaissmai/ipset/internal/flatv4"
	"github.com/gaissmai/ipset/internal/ipaddr"
	"github.com/gaissmai/ipset/internal/radix"
)

// Convert switches the set's family: toV6=true upgrades an IPv4 set to
// radix/IPv6 (every address gets mapped under ::ffff:0:0/96 and its
// prefix shifted by 96, per §4.5); toV6=false reverses that, and fails
// with IPv6 if the set holds anything outside ::ffff:0:0/96.
func (s *Set) Convert(toV6 bool) error {
	if toV6 == s.isV6 {
		return nil
	}
	if toV6 {
		return s.convertToV6()
	}
	return s.convertToV4()
}

// convertToV6 rebuilds s's IPv4 content into a fresh IPv6 radix tree,
// mapping every block under ::ffff:0:0/96, and switches s over to it.
// It is used by Convert and by Insert's autoconversion.
func (s *Set) convertToV6() error {
	blocks := make([]struct {
		ip     ipaddr.Addr
		prefix int
	}, 0)
	s.walkAddrBlocks(func(ip ipaddr.Addr, prefix int) bool {
		blocks = append(blocks, struct {
			ip     ipaddr.Addr
			prefix int
		}{ip, prefix})
		return true
	})

	tree := radix.New(true)
	for _, b := range blocks {
		mapped := ipaddr.FromMappedV4(b.ip.V4Value())
		if err := tree.Insert(mapped, b.prefix+96); err != nil {
			return wrapError(Alloc, err, "convert to ipv6")
		}
	}

	s.flat = nil
	s.radix = tree
	s.variant = variantRadix
	s.isV6 = true
	s.dirty = tree.Dirty
	return nil
}

func (s *Set) convertToV4() error {
	if s.ContainsV6() {
		return ErrIPv6
	}

	blocks := make([]struct {
		ip     ipaddr.Addr
		prefix int
	}, 0)
	s.radix.WalkCIDR(func(ip ipaddr.Addr, prefix int) bool {
		v4 := ipaddr.FromV4(ipaddr.ToMappedV4(ip))
		blocks = append(blocks, struct {
			ip     ipaddr.Addr
			prefix int
		}{v4, prefix - 96})
		return true
	})

	if defaultIncoreFormat() == IncoreRadix {
		tree := radix.New(false)
		for _, b := range blocks {
			if err := tree.Insert(b.ip, b.prefix); err != nil {
				return wrapError(Alloc, err, "convert to ipv4")
			}
		}
		s.radix = tree
		s.flat = nil
		s.variant = variantRadix
	} else {
		flat := flatv4.New()
		for _, b := range blocks {
			flat.Insert(b.ip.V4Value(), b.prefix)
		}
		s.flat = flat
		s.radix = nil
		s.variant = variantFlat
	}
	s.isV6 = false
	s.dirty = false
	return nil
}

// ConvertFormat switches an IPv4 set between its Flat and Radix
// in-memory representations in place (§1's "flat-bitmap↔radix"
// conversion), leaving an IPv6 set untouched since it is always
// radix-backed.
func (s *Set) ConvertFormat(toRadix bool) error {
	if s.isV6 {
		return nil
	}
	if toRadix {
		return s.convertFlatToRadix()
	}
	return s.convertRadixToFlat()
}

// convertFlatToRadix rebuilds a flat-variant V4 set as a radix-variant
// V4 set in place; ConvertFormat is its caller.
func (s *Set) convertFlatToRadix() error {
	if s.variant != variantFlat {
		return nil
	}
	tree := radix.New(false)
	var err error
	s.flat.WalkCIDR(func(base uint32, prefix int) bool {
		if e := tree.Insert(ipaddr.FromV4(base), prefix); e != nil {
			err = e
			return false
		}
		return true
	})
	if err != nil {
		return wrapError(Alloc, err, "convert flat to radix")
	}
	s.flat = nil
	s.radix = tree
	s.variant = variantRadix
	s.dirty = tree.Dirty
	return nil
}

// convertRadixToFlat rebuilds a radix-variant V4 set as a flat-variant
// V4 set in place.
func (s *Set) convertRadixToFlat() error {
	if s.variant != variantRadix || s.isV6 {
		return nil
	}
	flat := flatv4.New()
	s.radix.WalkCIDR(func(ip ipaddr.Addr, prefix int) bool {
		flat.Insert(ip.V4Value(), prefix)
		return true
	})
	s.radix = nil
	s.flat = flat
	s.variant = variantFlat
	s.dirty = false
	return nil
}
