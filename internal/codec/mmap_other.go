// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

//go:build !unix

package codec

import "os"

// mmapFile has no portable implementation outside unix; callers fall
// back to the regular buffered read path.
func mmapFile(f *os.File) ([]byte, func() error, bool) {
	return nil, nil, false
}
