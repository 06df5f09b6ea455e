// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"errors"
	"io"
	"math/rand/v2"
	"net/netip"
	"testing"
)

var mpa = netip.MustParseAddr

// memStream is a minimal in-memory ReadWriteSeeker, standing in for the
// *os.File Write/Read would normally be handed.
type memStream struct {
	buf []byte
	pos int64
}

func (m *memStream) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memStream) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = int64(len(m.buf))
	}
	m.pos = base + offset
	return m.pos, nil
}

func TestInsertContains(t *testing.T) {
	s := Create(false)
	if err := s.Insert(mpa("10.0.0.0"), 24); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !s.Contains(mpa("10.0.0.42")) {
		t.Error("Contains(10.0.0.42) = false, want true")
	}
	if s.Contains(mpa("10.0.1.1")) {
		t.Error("Contains(10.0.1.1) = true, want false")
	}
}

func TestInsertAutoconvertToV6(t *testing.T) {
	s := Create(false)
	if err := s.Insert(mpa("10.0.0.0"), 24); err != nil {
		t.Fatalf("Insert v4: %v", err)
	}
	if err := s.Insert(mpa("2001:db8::"), 32); err != nil {
		t.Fatalf("Insert v6 (should autoconvert): %v", err)
	}
	if !s.IsV6() {
		t.Error("set did not autoconvert to V6 after inserting an IPv6 block")
	}
	if !s.Contains(mpa("10.0.0.1")) {
		t.Error("original V4 content lost after autoconvert")
	}
	if !s.Contains(mpa("2001:db8::1")) {
		t.Error("Contains(2001:db8::1) = false, want true")
	}
}

func TestInsertNoAutoconvertFails(t *testing.T) {
	s := Create(false)
	s.SetAutoconvert(false)
	err := s.Insert(mpa("2001:db8::"), 32)
	if !errors.Is(err, ErrIPv6) {
		t.Errorf("Insert with autoconvert disabled = %v, want ErrIPv6", err)
	}
}

func TestRemove(t *testing.T) {
	s := Create(false)
	if err := s.Insert(mpa("10.0.0.0"), 24); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Remove(mpa("10.0.0.0"), 24); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Contains(mpa("10.0.0.1")) {
		t.Error("Contains after Remove = true, want false")
	}
}

func TestUnionSubtract(t *testing.T) {
	a := Create(false)
	b := Create(false)
	a.Insert(mpa("10.0.0.0"), 24)
	b.Insert(mpa("192.168.0.0"), 24)

	if err := a.Union(b); err != nil {
		t.Fatalf("Union: %v", err)
	}
	if !a.Contains(mpa("10.0.0.1")) || !a.Contains(mpa("192.168.0.1")) {
		t.Error("Union did not merge both ranges")
	}

	if err := a.Subtract(b); err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	if a.Contains(mpa("192.168.0.1")) {
		t.Error("Subtract did not remove b's range")
	}
	if !a.Contains(mpa("10.0.0.1")) {
		t.Error("Subtract removed more than b's range")
	}
}

func TestIntersect(t *testing.T) {
	a := Create(false)
	b := Create(false)
	a.Insert(mpa("10.0.0.0"), 24)
	b.Insert(mpa("10.0.0.128"), 25)
	a.Clean() // Intersect requires a clean receiver

	if err := a.Intersect(b); err != nil {
		t.Fatalf("Intersect: %v", err)
	}
	if !a.Contains(mpa("10.0.0.200")) {
		t.Error("Intersect lost the overlapping half")
	}
	if a.Contains(mpa("10.0.0.50")) {
		t.Error("Intersect kept a non-overlapping address")
	}
}

func TestCloneEqual(t *testing.T) {
	s := Create(false)
	s.Insert(mpa("10.0.0.0"), 24)
	s.Insert(mpa("172.16.0.0"), 16)

	c := s.Clone()
	if !s.Equal(c) {
		t.Error("Clone is not Equal to original")
	}
	c.Insert(mpa("1.2.3.4"), 32)
	if s.Equal(c) {
		t.Error("mutating the clone affected Equal against the original")
	}
	if s.Contains(mpa("1.2.3.4")) {
		t.Error("mutating the clone affected the original set")
	}
}

func TestConvertV4V6Roundtrip(t *testing.T) {
	s := Create(false)
	s.Insert(mpa("10.0.0.0"), 24)

	if err := s.Convert(true); err != nil {
		t.Fatalf("Convert(true): %v", err)
	}
	if !s.IsV6() {
		t.Error("Convert(true) did not switch to V6")
	}
	if !s.Contains(mpa("10.0.0.1")) {
		t.Error("content lost converting to V6")
	}

	if err := s.Convert(false); err != nil {
		t.Fatalf("Convert(false): %v", err)
	}
	if s.IsV6() {
		t.Error("Convert(false) did not switch back to V4")
	}
	if !s.Contains(mpa("10.0.0.1")) {
		t.Error("content lost converting back to V4")
	}
}

func TestConvertV4FailsOnRealV6(t *testing.T) {
	s := Create(true)
	s.Insert(mpa("2001:db8::"), 32)
	if err := s.Convert(false); !errors.Is(err, ErrIPv6) {
		t.Errorf("Convert(false) on genuine IPv6 content = %v, want ErrIPv6", err)
	}
}

func TestConvertFormatFlatRadix(t *testing.T) {
	s := Create(false)
	s.Insert(mpa("10.0.0.0"), 24)
	s.Insert(mpa("192.168.0.0"), 16)

	if err := s.ConvertFormat(true); err != nil {
		t.Fatalf("ConvertFormat(true): %v", err)
	}
	if s.variant != variantRadix {
		t.Error("ConvertFormat(true) did not switch to radix variant")
	}
	if !s.Contains(mpa("10.0.0.1")) || !s.Contains(mpa("192.168.1.1")) {
		t.Error("content lost converting flat -> radix")
	}

	if err := s.ConvertFormat(false); err != nil {
		t.Fatalf("ConvertFormat(false): %v", err)
	}
	if s.variant != variantFlat {
		t.Error("ConvertFormat(false) did not switch to flat variant")
	}
	if !s.Contains(mpa("10.0.0.1")) || !s.Contains(mpa("192.168.1.1")) {
		t.Error("content lost converting radix -> flat")
	}
}

func TestIteratorCIDRMode(t *testing.T) {
	s := Create(false)
	s.Insert(mpa("10.0.0.0"), 24)
	s.Insert(mpa("192.168.0.0"), 16)

	it := s.Iterator(ModeCIDR, Mix)
	count := 0
	for {
		_, _, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("Iterator yielded %d blocks, want 2", count)
	}
}

func TestIteratorAddressMode(t *testing.T) {
	s := Create(false)
	s.Insert(mpa("10.0.0.0"), 30) // 4 addresses

	it := s.Iterator(ModeAddress, Mix)
	count := 0
	for {
		_, prefix, ok := it.Next()
		if !ok {
			break
		}
		if prefix != 32 {
			t.Errorf("ModeAddress yielded prefix /%d, want /32", prefix)
		}
		count++
	}
	if count != 4 {
		t.Errorf("Iterator yielded %d addresses, want 4", count)
	}
}

func TestWriteReadRoundtrip(t *testing.T) {
	s := Create(false)
	s.Insert(mpa("10.0.0.0"), 24)
	s.Insert(mpa("192.168.1.0"), 24)
	s.Insert(mpa("8.8.8.8"), 32)

	stream := &memStream{}
	if err := s.WriteVersion(stream, 2); err != nil {
		t.Fatalf("WriteVersion(2): %v", err)
	}
	stream.pos = 0

	got, err := Read(stream)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.Contains(mpa("10.0.0.1")) || !got.Contains(mpa("192.168.1.1")) || !got.Contains(mpa("8.8.8.8")) {
		t.Error("Read result missing content written by WriteVersion(2)")
	}
	if got.Contains(mpa("1.1.1.1")) {
		t.Error("Read result contains an address that was never written")
	}
}

func TestWriteReadRoundtripV6Radix(t *testing.T) {
	s := Create(true)
	s.Insert(mpa("2001:db8::"), 32)
	s.Insert(mpa("::1"), 128)

	stream := &memStream{}
	if err := s.Write(stream); err != nil {
		t.Fatalf("Write: %v", err)
	}
	stream.pos = 0

	got, err := Read(stream)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.IsV6() {
		t.Error("Read did not reconstruct an IPv6 set")
	}
	if !got.Contains(mpa("2001:db8::1")) || !got.Contains(mpa("::1")) {
		t.Error("Read result missing content written by Write")
	}
}

func TestCountAddresses(t *testing.T) {
	s := Create(false)
	s.Insert(mpa("10.0.0.0"), 24) // 256 addresses
	s.Insert(mpa("192.168.0.0"), 30) // 4 addresses

	low, overflow, _ := s.CountAddresses()
	if overflow {
		t.Fatal("CountAddresses overflowed for a tiny set")
	}
	if low != 260 {
		t.Errorf("CountAddresses = %d, want 260", low)
	}
	if got := s.CountAddressesString(); got != "260" {
		t.Errorf("CountAddressesString = %s, want 260", got)
	}
}

func TestInsertRemoveRandomAgainstGoldMap(t *testing.T) {
	prng := rand.New(rand.NewPCG(9, 13))
	s := Create(false)
	gold := map[netip.Addr]bool{}

	randHost := func() netip.Addr {
		b := [4]byte{10, byte(prng.IntN(256)), byte(prng.IntN(256)), byte(prng.IntN(256))}
		return netip.AddrFrom4(b)
	}

	for i := 0; i < 500; i++ {
		addr := randHost()
		if prng.IntN(4) == 0 {
			s.Remove(addr, 32)
			delete(gold, addr)
			continue
		}
		if err := s.Insert(addr, 32); err != nil {
			t.Fatalf("Insert(%s): %v", addr, err)
		}
		gold[addr] = true
	}

	for addr, want := range gold {
		if got := s.Contains(addr); got != want {
			t.Errorf("Contains(%s) = %v, want %v", addr, got, want)
		}
	}
	// Sample some addresses never touched, expect absent.
	for i := 0; i < 50; i++ {
		addr := netip.AddrFrom4([4]byte{203, 0, 113, byte(i)})
		if s.Contains(addr) {
			t.Errorf("Contains(%s) = true, want false (never inserted)", addr)
		}
	}
}
