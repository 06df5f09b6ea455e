// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"os"
	"strconv"
	"sync"
)

// IncoreFormat selects the default in-memory representation for a
// freshly created IPv4 set (§6 SKIPSET_INCORE_FORMAT).
type IncoreFormat int

const (
	IncoreFlat IncoreFormat = iota
	IncoreRadix
)

var envOnce struct {
	sync.Once
	recordVersion   int
	incoreFormat    IncoreFormat
	destroyPrint    bool
	printReadErrors bool
}

// initEnv parses the four process-wide environment variables exactly
// once (§9 "Process-wide initialisation"); every other accessor below
// triggers this and then reads the cached result.
func initEnv() {
	envOnce.Do(func() {
		envOnce.recordVersion = 0
		if v, ok := os.LookupEnv("SILK_IPSET_RECORD_VERSION"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				switch n {
				case 0, 2, 3, 4, 5:
					envOnce.recordVersion = n
				}
			}
		}

		envOnce.incoreFormat = IncoreFlat
		if v, ok := os.LookupEnv("SKIPSET_INCORE_FORMAT"); ok && v == "radix" {
			envOnce.incoreFormat = IncoreRadix
		}

		if _, ok := os.LookupEnv("SKIPSET_DESTROY_PRINT"); ok {
			envOnce.destroyPrint = true
		}

		if v, ok := os.LookupEnv("SILK_IPSET_PRINT_READ_ERROR"); ok {
			if n, err := strconv.Atoi(v); err == nil && n != 0 {
				envOnce.printReadErrors = true
			}
		}
	})
}

// defaultRecordVersion returns SILK_IPSET_RECORD_VERSION's cached
// value, 0 meaning "no explicit default" (Write picks per §4.7).
func defaultRecordVersion() int {
	initEnv()
	return envOnce.recordVersion
}

// defaultIncoreFormat returns SKIPSET_INCORE_FORMAT's cached value.
func defaultIncoreFormat() IncoreFormat {
	initEnv()
	return envOnce.incoreFormat
}

// destroyPrintEnabled reports whether SKIPSET_DESTROY_PRINT is set.
func destroyPrintEnabled() bool {
	initEnv()
	return envOnce.destroyPrint
}

// printReadErrorsEnabled reports whether SILK_IPSET_PRINT_READ_ERROR
// is set to a non-zero value.
func printReadErrorsEnabled() bool {
	initEnv()
	return envOnce.printReadErrors
}
