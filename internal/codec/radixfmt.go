// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/gaissmai/ipset/internal/arena"
	"github.com/gaissmai/ipset/internal/ipaddr"
	"github.com/gaissmai/ipset/internal/radix"
)

// radixEntry is the version-3 header entry (§4.7): it records enough
// about the dump's shape for a reader to validate compatibility before
// trusting a memory-mapped read.
//
// This module does not attempt literal byte-for-byte compatibility
// with the original C struct sizes the spec's table quotes (node_size
// 36/52, leaf_size 8/24) — our Node/Leaf records carry the same
// fields in idiomatic Go layout, so leafSize/nodeSize here are
// computed from what this package actually writes and are used only
// for this format's own round-trip validation.
type radixEntry struct {
	branching  uint8
	isV6       bool
	leafSize   uint32
	nodeSize   uint32
	leafCount  uint32
	nodeCount  uint32
	rootIndex  uint32
	rootIsLeaf bool
}

const (
	nodeRecordSizeV4 = 1 + 1 + 2 + 2 + 16*4 + 8 // prefix,pad,childIsLeaf,childRepeated,children,lo
	nodeRecordSizeV6 = nodeRecordSizeV4 + 8      // + hi
	leafRecordSizeV4 = 1 + 8
	leafRecordSizeV6 = leafRecordSizeV4 + 8
)

func writeRadixEntry(s Stream, e radixEntry) error {
	buf := make([]byte, 0, 32)
	buf = append(buf, e.branching, boolByte(e.isV6))
	buf = appendU32(buf, e.leafSize)
	buf = appendU32(buf, e.nodeSize)
	buf = appendU32(buf, e.leafCount)
	buf = appendU32(buf, e.nodeCount)
	buf = appendU32(buf, e.rootIndex)
	buf = append(buf, boolByte(e.rootIsLeaf))
	_, err := s.Write(buf)
	return err
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	nativeOrder.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// EncodeRadix writes header + radix entry + node pool + leaf pool
// (§4.7 version 3).
func EncodeRadix(s Stream, t *radix.Tree) error {
	if err := writeHeader(s, header{version: Radix, bigEndian: hostIsBigEndian(), isV6: t.IsV6}); err != nil {
		return err
	}

	nodeSize, leafSize := nodeRecordSizeV4, leafRecordSizeV4
	if t.IsV6 {
		nodeSize, leafSize = nodeRecordSizeV6, leafRecordSizeV6
	}

	rootIdx := t.Root
	entry := radixEntry{
		branching:  16,
		isV6:       t.IsV6,
		leafSize:   uint32(leafSize),
		nodeSize:   uint32(nodeSize),
		leafCount:  uint32(t.Leaves.Len()),
		nodeCount:  uint32(t.Nodes.Len()),
		rootIndex:  rootIdx,
		rootIsLeaf: t.RootIsLeaf,
	}
	if err := writeRadixEntry(s, entry); err != nil {
		return err
	}

	w := bufio.NewWriter(s)
	for _, n := range t.Nodes.Items() {
		if err := writeNode(w, n, t.IsV6); err != nil {
			return err
		}
	}
	for _, l := range t.Leaves.Items() {
		if err := writeLeaf(w, l, t.IsV6); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeNode(w io.Writer, n arena.Node, isV6 bool) error {
	buf := make([]byte, 0, nodeRecordSizeV6)
	buf = append(buf, n.Prefix, 0)
	var tmp2 [2]byte
	nativeOrder.PutUint16(tmp2[:], n.ChildIsLeaf)
	buf = append(buf, tmp2[:]...)
	nativeOrder.PutUint16(tmp2[:], n.ChildRepeated)
	buf = append(buf, tmp2[:]...)
	for _, c := range n.Children {
		buf = appendU32(buf, c)
	}
	buf = appendU64(buf, n.IP.Lo)
	if isV6 {
		buf = appendU64(buf, n.IP.Hi)
	}
	_, err := w.Write(buf)
	return err
}

func writeLeaf(w io.Writer, l arena.Leaf, isV6 bool) error {
	buf := make([]byte, 0, leafRecordSizeV6)
	buf = append(buf, l.Prefix)
	buf = appendU64(buf, l.IP.Lo)
	if isV6 {
		buf = appendU64(buf, l.IP.Hi)
	}
	_, err := w.Write(buf)
	return err
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	nativeOrder.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// DecodeRadix reads a version-3 file (already past its header) into a
// freshly allocated tree, byte-swapping fixed fields if order differs
// from this process's native order.
func DecodeRadix(s io.Reader, order binary.ByteOrder, isV6 bool) (*radix.Tree, error) {
	entry, err := readRadixEntryOrdered(s, order)
	if err != nil {
		return nil, err
	}
	if entry.isV6 != isV6 {
		return nil, errFileHeader("version 3 entry family mismatch against header")
	}

	// A header declaring zero leaves but a stream that runs out partway
	// through the node/leaf body is treated as an empty set rather than
	// a corrupt file: a writer that crashed or was truncated right after
	// the header still leaves behind a file with no addresses in it.
	nodes := make([]arena.Node, entry.nodeCount)
	for i := range nodes {
		n, err := readNode(s, order, isV6)
		if err != nil {
			if entry.leafCount == 0 {
				return radix.New(isV6), nil
			}
			return nil, err
		}
		nodes[i] = n
	}
	leaves := make([]arena.Leaf, entry.leafCount)
	for i := range leaves {
		l, err := readLeaf(s, order, isV6)
		if err != nil {
			if entry.leafCount == 0 {
				return radix.New(isV6), nil
			}
			return nil, err
		}
		leaves[i] = l
	}

	t := radix.New(isV6)
	t.Nodes.AdoptMapped(nodes)
	t.Leaves.AdoptMapped(leaves)
	t.Root = entry.rootIndex
	t.RootIsLeaf = entry.rootIsLeaf
	return t, nil
}

func readRadixEntryOrdered(s io.Reader, order binary.ByteOrder) (radixEntry, error) {
	buf := make([]byte, 23)
	if _, err := io.ReadFull(s, buf); err != nil {
		return radixEntry{}, errCorrupt("truncated version 3 header entry")
	}
	return radixEntry{
		branching:  buf[0],
		isV6:       buf[1] != 0,
		leafSize:   order.Uint32(buf[2:6]),
		nodeSize:   order.Uint32(buf[6:10]),
		leafCount:  order.Uint32(buf[10:14]),
		nodeCount:  order.Uint32(buf[14:18]),
		rootIndex:  order.Uint32(buf[18:22]),
		rootIsLeaf: buf[22] != 0,
	}, nil
}

func readNode(s io.Reader, order binary.ByteOrder, isV6 bool) (arena.Node, error) {
	size := nodeRecordSizeV4
	if isV6 {
		size = nodeRecordSizeV6
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(s, buf); err != nil {
		return arena.Node{}, errCorrupt("truncated version 3 node record")
	}
	var n arena.Node
	n.Prefix = buf[0]
	n.ChildIsLeaf = order.Uint16(buf[2:4])
	n.ChildRepeated = order.Uint16(buf[4:6])
	for i := range n.Children {
		off := 6 + i*4
		n.Children[i] = order.Uint32(buf[off : off+4])
	}
	off := 6 + 16*4
	n.IP.Lo = order.Uint64(buf[off : off+8])
	if isV6 {
		n.IP.Hi = order.Uint64(buf[off+8 : off+16])
		n.IP.Is6 = true
	}
	return n, nil
}

func readLeaf(s io.Reader, order binary.ByteOrder, isV6 bool) (arena.Leaf, error) {
	size := leafRecordSizeV4
	if isV6 {
		size = leafRecordSizeV6
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(s, buf); err != nil {
		return arena.Leaf{}, errCorrupt("truncated version 3 leaf record")
	}
	var l arena.Leaf
	l.Prefix = buf[0]
	l.IP.Lo = order.Uint64(buf[1:9])
	if isV6 {
		l.IP.Hi = order.Uint64(buf[9:17])
		l.IP.Is6 = true
	}
	return l, nil
}

// DecodeRadixMapped reads a version-3 file from f via mmap when f is a
// regular, non-empty file on a platform that supports it, skipping the
// read()-into-buffer copy the ordinary Stream path takes; ok reports
// whether the mapped path was used. The returned tree's pools hold Go
// slices decoded out of the mapping, not the mapping itself, so the
// caller may call the returned unmap func (if non-nil) as soon as this
// returns.
func DecodeRadixMapped(f *os.File, headerAndEntryOffset int64, order binary.ByteOrder, isV6 bool) (t *radix.Tree, unmap func() error, ok bool, err error) {
	data, unmapFn, mapped := mmapFile(f)
	if !mapped {
		return nil, nil, false, nil
	}
	if int64(len(data)) < headerAndEntryOffset {
		_ = unmapFn()
		return nil, nil, false, nil
	}
	r := bytes.NewReader(data[headerAndEntryOffset:])
	t, err = DecodeRadix(r, order, isV6)
	if err != nil {
		_ = unmapFn()
		return nil, nil, true, err
	}
	return t, unmapFn, true, nil
}

// WalkRadixBlocks decodes a version-3 file into a temporary tree and
// visits the tree's CIDR blocks, for ProcessStream's streaming mode;
// the tree is dropped afterwards and never reaches the caller.
func WalkRadixBlocks(s io.Reader, order binary.ByteOrder, isV6 bool, visit func(Block) bool) error {
	t, err := DecodeRadix(s, order, isV6)
	if err != nil {
		return err
	}
	t.WalkCIDR(func(ip ipaddr.Addr, prefix int) bool {
		return visit(Block{ip, prefix})
	})
	return nil
}
