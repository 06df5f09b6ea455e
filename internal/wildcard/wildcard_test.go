// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package wildcard

import (
	"net/netip"
	"testing"
)

func TestCIDRYieldsSingleBlock(t *testing.T) {
	base := netip.MustParseAddr("10.0.0.0")
	w := CIDR(base, 24)

	var got []netip.Addr
	var prefixes []int
	w.Blocks(func(addr netip.Addr, prefix int) bool {
		got = append(got, addr)
		prefixes = append(prefixes, prefix)
		return true
	})
	if len(got) != 1 || got[0] != base || prefixes[0] != 24 {
		t.Errorf("CIDR(10.0.0.0/24).Blocks = %v/%v, want exactly [10.0.0.0]/[24]", got, prefixes)
	}
}

func TestRangeDecomposesToMaximalBlocks(t *testing.T) {
	begin := netip.MustParseAddr("10.0.0.0")
	end := netip.MustParseAddr("10.0.0.255")
	w := Range(begin, end)

	var total uint64
	var blocks int
	w.Blocks(func(addr netip.Addr, prefix int) bool {
		blocks++
		total += uint64(1) << uint(32-prefix)
		return true
	})
	if blocks != 1 {
		t.Errorf("Range(10.0.0.0-10.0.0.255) produced %d blocks, want 1 (exact /24)", blocks)
	}
	if total != 256 {
		t.Errorf("Range(10.0.0.0-10.0.0.255) total addresses = %d, want 256", total)
	}
}

func TestRangeOddBoundaryDecomposesIntoMultipleBlocks(t *testing.T) {
	begin := netip.MustParseAddr("10.0.0.1")
	end := netip.MustParseAddr("10.0.0.4")
	w := Range(begin, end)

	var total uint64
	w.Blocks(func(addr netip.Addr, prefix int) bool {
		total += uint64(1) << uint(32-prefix)
		return true
	})
	if total != 4 {
		t.Errorf("Range(10.0.0.1-10.0.0.4) total addresses = %d, want 4", total)
	}
}

func TestBlocksStopsEarly(t *testing.T) {
	begin := netip.MustParseAddr("10.0.0.0")
	end := netip.MustParseAddr("10.0.1.255")
	w := Range(begin, end)

	seen := 0
	w.Blocks(func(addr netip.Addr, prefix int) bool {
		seen++
		return false
	})
	if seen != 1 {
		t.Errorf("Blocks visited %d blocks after a false return, want 1", seen)
	}
}

func TestRangeIPv6(t *testing.T) {
	begin := netip.MustParseAddr("2001:db8::")
	end := netip.MustParseAddr("2001:db8::1")
	w := Range(begin, end)

	var got []string
	w.Blocks(func(addr netip.Addr, prefix int) bool {
		got = append(got, netip.PrefixFrom(addr, prefix).String())
		return true
	})
	if len(got) != 1 || got[0] != "2001:db8::/127" {
		t.Errorf("Range(2001:db8::-2001:db8::1).Blocks = %v, want [2001:db8::/127]", got)
	}
}
