// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package codec

import (
	"encoding/binary"
	"io"
)

// Version identifies one of the five published on-disk formats.
type Version int

const (
	Classc   Version = 2
	Radix    Version = 3
	CidrBmap Version = 4
	Slash64  Version = 5
)

const magic = "IPST"

// header is the file-type tag plus version byte the generic file
// header carries (§4.7); bigEndian and isV6 are the compatibility
// fields version 2 and version 4 require the writer to set correctly.
type header struct {
	version   Version
	bigEndian bool
	isV6      bool
}

const headerSize = 8

func writeHeader(s Stream, h header) error {
	var buf [headerSize]byte
	copy(buf[0:4], magic)
	buf[4] = byte(h.version)
	if h.bigEndian {
		buf[5] = 1
	}
	if h.isV6 {
		buf[6] = 1
	}
	_, err := s.Write(buf[:])
	return err
}

func readHeader(s Stream) (header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(s, buf[:]); err != nil {
		return header{}, err
	}
	if string(buf[0:4]) != magic {
		return header{}, errFileType("bad magic")
	}
	h := header{
		version:   Version(buf[4]),
		bigEndian: buf[5] == 1,
		isV6:      buf[6] == 1,
	}
	switch h.version {
	case Classc, Radix, CidrBmap, Slash64:
	default:
		return header{}, errFileVersion("unsupported version byte")
	}
	return h, nil
}

// byteOrderOf returns the concrete encoding/binary.ByteOrder a header
// implies, for fixed-field decoding of the remaining records.
func byteOrderOf(h header) binary.ByteOrder {
	if h.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// hostIsBigEndian reports whether this process's native order is big
// endian, used when stamping a freshly written header.
func hostIsBigEndian() bool {
	var x uint16 = 1
	b := [2]byte{}
	nativeOrder.PutUint16(b[:], x)
	return b[0] == 0
}

// IsNativeOrder reports whether order matches this process's own byte
// order, the condition §4.7's "Memory-mapping" requires before a
// version-3 read may skip straight into the mapping.
func IsNativeOrder(order binary.ByteOrder) bool {
	if hostIsBigEndian() {
		return order == binary.BigEndian
	}
	return order == binary.LittleEndian
}
