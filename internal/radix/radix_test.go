// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package radix

import (
	"math/rand/v2"
	"net/netip"
	"testing"

	"github.com/gaissmai/ipset/internal/ipaddr"
)

func mpp(s string) netip.Prefix {
	p := netip.MustParsePrefix(s)
	return p.Masked()
}

func addrOf(p netip.Prefix) ipaddr.Addr { return ipaddr.FromNetip(p.Addr()) }

func TestInsertFindBasic(t *testing.T) {
	tr := New(false)
	p := mpp("192.168.0.0/16")
	if err := tr.Insert(addrOf(p), p.Bits()); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	res, _ := tr.Find(addrOf(mpp("192.168.5.5/32")), 32)
	if res != Subset {
		t.Errorf("Find(192.168.5.5/32) = %s, want Subset", res)
	}
	res, _ = tr.Find(addrOf(p), p.Bits())
	if res != Ok {
		t.Errorf("Find(192.168.0.0/16) = %s, want Ok", res)
	}
	res, _ = tr.Find(addrOf(mpp("10.0.0.0/8")), 8)
	if res != Empty && res != NotFound {
		t.Errorf("Find(10.0.0.0/8) = %s, want Empty or NotFound", res)
	}
}

func TestInsertSubsetWidens(t *testing.T) {
	tr := New(false)
	narrow := mpp("10.0.0.0/24")
	wide := mpp("10.0.0.0/16")
	if err := tr.Insert(addrOf(narrow), narrow.Bits()); err != nil {
		t.Fatalf("Insert narrow: %v", err)
	}
	if err := tr.Insert(addrOf(wide), wide.Bits()); err != nil {
		t.Fatalf("Insert wide: %v", err)
	}
	res, _ := tr.Find(addrOf(wide), wide.Bits())
	if res != Ok {
		t.Fatalf("Find(wide) = %s, want Ok", res)
	}
	res, _ = tr.Find(addrOf(narrow), narrow.Bits())
	if res != Subset && res != Ok {
		t.Errorf("Find(narrow after widen) = %s, want Subset/Ok", res)
	}
}

func TestRemoveExact(t *testing.T) {
	tr := New(false)
	p := mpp("172.16.0.0/12")
	if err := tr.Insert(addrOf(p), p.Bits()); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tr.Remove(addrOf(p), p.Bits()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !tr.Empty() {
		t.Error("tree not empty after removing its only block")
	}
	res, _ := tr.Find(addrOf(p), p.Bits())
	if res != Empty {
		t.Errorf("Find after remove = %s, want Empty", res)
	}
}

// walkSet collects WalkCIDR's output as a set of "addr/prefix" strings.
func walkSet(tr *Tree) map[string]bool {
	out := map[string]bool{}
	tr.WalkCIDR(func(ip ipaddr.Addr, prefix int) bool {
		out[netip.PrefixFrom(ip.ToNetip(), prefix).String()] = true
		return true
	})
	return out
}

func TestWalkCIDRAgainstGoldSet(t *testing.T) {
	prng := rand.New(rand.NewPCG(42, 7))
	tr := New(false)
	gold := map[string]bool{}

	n := 300
	for i := 0; i < n; i++ {
		bits := 16 + prng.IntN(17) // /16 .. /32
		base := prng.Uint32() &^ (uint32(1)<<uint(32-bits) - 1)
		if bits == 32 {
			base = prng.Uint32()
		}
		p := netip.PrefixFrom(netip.AddrFrom4([4]byte{byte(base >> 24), byte(base >> 16), byte(base >> 8), byte(base)}), bits)
		if err := tr.Insert(addrOf(p), bits); err != nil {
			t.Fatalf("Insert(%s): %v", p, err)
		}
		gold[p.String()] = true
	}

	tr.Clean()

	// Every gold entry must be contained (exactly or as part of a wider
	// stored block) in the cleaned tree.
	for s := range gold {
		p := netip.MustParsePrefix(s)
		res, _ := tr.Find(addrOf(p), p.Bits())
		if res != Ok && res != Subset {
			t.Errorf("Find(%s) after bulk insert = %s, want Ok/Subset", s, res)
		}
	}
}

func TestCleanIdempotent(t *testing.T) {
	tr := New(false)
	for _, s := range []string{"10.0.0.0/24", "10.0.1.0/24", "10.0.2.0/24", "192.168.1.0/24"} {
		p := mpp(s)
		if err := tr.Insert(addrOf(p), p.Bits()); err != nil {
			t.Fatalf("Insert(%s): %v", s, err)
		}
	}
	tr.Clean()
	before := walkSet(tr)
	tr.Clean()
	after := walkSet(tr)
	if len(before) != len(after) {
		t.Fatalf("Clean not idempotent: %v vs %v", before, after)
	}
	for k := range before {
		if !after[k] {
			t.Errorf("Clean changed result: %s missing after second Clean", k)
		}
	}
}

func TestMaskAndFill(t *testing.T) {
	tr := New(false)
	for _, s := range []string{"10.0.0.0/25", "10.0.0.128/25"} {
		p := mpp(s)
		if err := tr.Insert(addrOf(p), p.Bits()); err != nil {
			t.Fatalf("Insert(%s): %v", s, err)
		}
	}
	if err := tr.MaskAndFill(24); err != nil {
		t.Fatalf("MaskAndFill: %v", err)
	}
	res, _ := tr.Find(addrOf(mpp("10.0.0.0/24")), 24)
	if res != Ok {
		t.Errorf("Find(10.0.0.0/24) after MaskAndFill = %s, want Ok", res)
	}
}

func TestMaskKeepsOneAddressPerBlock(t *testing.T) {
	tr := New(false)
	p := mpp("10.0.0.0/24")
	if err := tr.Insert(addrOf(p), p.Bits()); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tr.Mask(24); err != nil {
		t.Fatalf("Mask: %v", err)
	}
	res, _ := tr.Find(addrOf(mpp("10.0.0.0/32")), 32)
	if res != Ok {
		t.Errorf("Find(10.0.0.0/32) after Mask(/24) = %s, want Ok", res)
	}
	res, _ = tr.Find(addrOf(mpp("10.0.0.1/32")), 32)
	if res == Ok {
		t.Errorf("Find(10.0.0.1/32) after Mask(/24) = Ok, want not present")
	}
}
