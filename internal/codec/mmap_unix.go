// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

//go:build unix

package codec

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps f's full contents read-only, for the version-3
// "skip copying" read path (§4.1, §4.7): decoding then reads node and
// leaf records straight out of the mapped page cache instead of first
// copying the whole file into a Go-allocated buffer. The mapping
// itself is handed back so the caller can unmap it once every Node/Leaf
// has been decoded out of it.
func mmapFile(f *os.File) ([]byte, func() error, bool) {
	fi, err := f.Stat()
	if err != nil || fi.Size() == 0 {
		return nil, nil, false
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, false
	}
	return data, func() error { return unix.Munmap(data) }, true
}
