// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipaddr

import (
	"math/rand/v2"
	"net/netip"
	"testing"
)

var mpa = netip.MustParseAddr

func TestFromNetipRoundtrip(t *testing.T) {
	tests := []string{
		"0.0.0.0", "255.255.255.255", "192.168.1.1",
		"::", "::1", "2001:db8::1", "ffff:ffff:ffff:ffff:ffff:ffff:ffff:ffff",
	}
	for _, s := range tests {
		want := mpa(s)
		got := FromNetip(want).ToNetip()
		if got != want {
			t.Errorf("FromNetip(%s).ToNetip() = %s, want %s", s, got, want)
		}
	}
}

func TestMappedV4Roundtrip(t *testing.T) {
	prng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		v := prng.Uint32()
		mapped := FromMappedV4(v)
		if !IsV4InV6(mapped) {
			t.Fatalf("FromMappedV4(%d) not recognized as IsV4InV6", v)
		}
		if got := ToMappedV4(mapped); got != v {
			t.Errorf("ToMappedV4(FromMappedV4(%d)) = %d", v, got)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	tests := []struct{ a, b string }{
		{"1.2.3.4", "1.2.3.5"},
		{"0.0.0.0", "255.255.255.255"},
		{"::1", "::2"},
	}
	for _, tt := range tests {
		a, b := FromNetip(mpa(tt.a)), FromNetip(mpa(tt.b))
		if Compare(a, b) >= 0 {
			t.Errorf("Compare(%s, %s) >= 0, want < 0", tt.a, tt.b)
		}
		if Compare(b, a) <= 0 {
			t.Errorf("Compare(%s, %s) <= 0, want > 0", tt.b, tt.a)
		}
		if Compare(a, a) != 0 {
			t.Errorf("Compare(%s, %s) != 0", tt.a, tt.a)
		}
	}
}

func TestMaskAndLastAddr(t *testing.T) {
	a := FromNetip(mpa("192.168.1.200"))
	m := Mask(a, 24)
	if got := m.ToNetip().String(); got != "192.168.1.0" {
		t.Errorf("Mask(/24) = %s, want 192.168.1.0", got)
	}
	last := LastAddr(m, 24)
	if got := last.ToNetip().String(); got != "192.168.1.255" {
		t.Errorf("LastAddr(/24) = %s, want 192.168.1.255", got)
	}
}

func TestCommonPrefixLen(t *testing.T) {
	a := FromNetip(mpa("192.168.0.0"))
	b := FromNetip(mpa("192.168.128.0"))
	if got := CommonPrefixLen(a, b); got != 16 {
		t.Errorf("CommonPrefixLen = %d, want 16", got)
	}
	v6a := FromNetip(mpa("2001:db8::"))
	v6b := FromNetip(mpa("2001:db8::1"))
	if got := CommonPrefixLen(v6a, v6b); got != 127 {
		t.Errorf("CommonPrefixLen(v6) = %d, want 127", got)
	}
}

func TestAddOverflow(t *testing.T) {
	max4 := FromNetip(mpa("255.255.255.255"))
	if _, ok := Add(max4, 1); ok {
		t.Error("Add(max v4, 1) should overflow")
	}
	notMax := FromNetip(mpa("1.2.3.4"))
	next, ok := Add(notMax, 1)
	if !ok || next.ToNetip().String() != "1.2.3.5" {
		t.Errorf("Add(1.2.3.4, 1) = %v, %v, want 1.2.3.5, true", next, ok)
	}
}

func TestRangeToCIDRsExactBlock(t *testing.T) {
	start := FromNetip(mpa("10.0.0.0"))
	end := FromNetip(mpa("10.0.0.255"))
	var got []string
	RangeToCIDRs(start, end, func(base Addr, prefix int) bool {
		got = append(got, netip.PrefixFrom(base.ToNetip(), prefix).String())
		return true
	})
	if len(got) != 1 || got[0] != "10.0.0.0/24" {
		t.Errorf("RangeToCIDRs(10.0.0.0-10.0.0.255) = %v, want [10.0.0.0/24]", got)
	}
}

func TestRangeToCIDRsOddRange(t *testing.T) {
	// 10.0.0.1 - 10.0.0.4 isn't a single aligned block.
	start := FromNetip(mpa("10.0.0.1"))
	end := FromNetip(mpa("10.0.0.4"))
	var total uint64
	RangeToCIDRs(start, end, func(base Addr, prefix int) bool {
		total += uint64(1) << uint(32-prefix)
		return true
	})
	if total != 4 {
		t.Errorf("RangeToCIDRs total addresses = %d, want 4", total)
	}
}

func TestBitsAtAndNumChildSlots(t *testing.T) {
	a := FromNetip(mpa("128.0.0.0"))
	if got := BitsAt(a, 0); got != 8 {
		t.Errorf("BitsAt(128.0.0.0, 0) = %d, want 8 (top nibble 1000)", got)
	}
	if n := NumChildSlots(0, 4); n != 1 {
		t.Errorf("NumChildSlots(0,4) = %d, want 1", n)
	}
	if n := NumChildSlots(0, 2); n != 4 {
		t.Errorf("NumChildSlots(0,2) = %d, want 4", n)
	}
}
