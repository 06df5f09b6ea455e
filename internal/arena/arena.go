// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package arena implements the two growable, index-addressed record
// pools (§4.1) that back the radix tree: one pool of Node records and
// one of Leaf records. Both pools are plain fixed-stride slices
// addressed by uint32 index instead of pointers, so that (a) a node or
// leaf reference survives a pool reallocation, and (b) the pool's byte
// layout can be written to, or memory-mapped from, a file verbatim
// (§4.7 version 3).
//
// The allocator shape is grounded on the teacher's object-pool
// (pool.go, sync.Pool-backed Get/Put/Stats) generalized from GC-backed
// reuse to index-stable reuse, in the style of the chunked bump
// allocators in the cidrx reference sources.
package arena

import (
	"fmt"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/gaissmai/ipset/internal/ipaddr"
)

// Null is the reserved "no reference" index in either pool.
const Null uint32 = 0

// initialCapacity and growthCeiling implement the growth policy of §4.1:
// start at 2048 entries, double while under 1<<20, then grow by 1<<20.
const (
	initialCapacity = 2048
	growthCeiling   = 1 << 20
)

// Node is a branching record: 16 children, each either empty, a node-pool
// index or a leaf-pool index, selected by ChildIsLeaf. ChildRepeated
// marks slots that are a copy of their left neighbour because a wide
// leaf spans more than one of this node's 4-bit child slots (§3
// invariant 5). Prefix is always a multiple of 4 and names the bit
// offset at which this node's children branch.
type Node struct {
	Children      [16]uint32
	ChildIsLeaf   uint16
	ChildRepeated uint16
	Prefix        uint8
	IP            ipaddr.Addr
}

// nextFree threads the node free list through Children[0], the way
// §3 "Free list" specifies ("reusing children[0] for nodes").
func (n *Node) nextFree() uint32     { return n.Children[0] }
func (n *Node) setNextFree(i uint32) { *n = Node{}; n.Children[0] = i }

// Leaf is a single stored CIDR block.
type Leaf struct {
	Prefix uint8
	IP     ipaddr.Addr
}

// nextFree threads the leaf free list through IP.Lo ("ip" field, per §3).
func (l *Leaf) nextFree() uint32     { return uint32(l.IP.Lo) }
func (l *Leaf) setNextFree(i uint32) { *l = Leaf{}; l.IP.Lo = uint64(i) }

// NodePool is the arena's pool of Node records.
type NodePool struct {
	items    []Node
	freeHead uint32
	freeLen  int
	occupied *bitset.BitSet // tracks live (non-hole, non-free) slots for Compact

	mapped bool // true while Items points into a read-only memory map

	totalAllocated atomic.Int64
}

// LeafPool is the arena's pool of Leaf records.
type LeafPool struct {
	items    []Leaf
	freeHead uint32
	freeLen  int
	occupied *bitset.BitSet

	mapped bool

	totalAllocated atomic.Int64

	// LeavesRealloc is set whenever Acquire grows the backing slice; the
	// radix tree consults and clears it to schedule a combine-adjacent
	// pass at the end of a mutating entry point (§4.1 "Acquire policy").
	LeavesRealloc bool
}

// growCapacity returns the backing-slice capacity that follows cur
// under the §4.1 growth policy, or an error if it would overflow.
func growCapacity(cur int) (int, error) {
	if cur == 0 {
		return initialCapacity, nil
	}
	var next int
	if cur < growthCeiling {
		next = cur * 2
	} else {
		next = cur + growthCeiling
	}
	if next <= cur {
		return 0, fmt.Errorf("arena: capacity overflow growing from %d", cur)
	}
	return next, nil
}

// NewNodePool returns an empty node pool; index 0 is reserved (§3) and
// is never handed out by Acquire.
func NewNodePool() *NodePool {
	return &NodePool{items: nil, occupied: bitset.New(0)}
}

// NewLeafPool returns an empty leaf pool; index 0 is reserved.
func NewLeafPool() *LeafPool {
	return &LeafPool{items: nil, occupied: bitset.New(0)}
}

// Len returns the number of slots currently allocated in the pool
// (in-use plus free plus any unused tail within capacity).
func (p *NodePool) Len() int { return len(p.items) }
func (p *LeafPool) Len() int { return len(p.items) }

// InUse returns the number of occupied (non-free) slots, used by
// Compact (§4.5) to compute the post-compaction length.
func (p *NodePool) InUse() int { return len(p.items) - p.freeLen - 1 + boolToInt(len(p.items) == 0) }
func (p *LeafPool) InUse() int { return len(p.items) - p.freeLen - 1 + boolToInt(len(p.items) == 0) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Get returns a pointer to the node at index i. Index 0 must not be
// dereferenced by callers (it is the null sentinel).
func (p *NodePool) Get(i uint32) *Node { return &p.items[i] }
func (p *LeafPool) Get(i uint32) *Leaf { return &p.items[i] }

// Acquire returns the index of a fresh, zeroed node, growing the pool
// if necessary. It prefers the unused tail of the backing slice before
// falling back to the free list, per §4.1 "Acquire policy".
func (p *NodePool) Acquire() (uint32, error) {
	if err := p.copyOnWriteIfMapped(); err != nil {
		return 0, err
	}
	if len(p.items) == 0 {
		if err := p.grow(); err != nil {
			return 0, err
		}
	}
	if cap(p.items) > len(p.items) {
		idx := uint32(len(p.items))
		p.items = p.items[:len(p.items)+1]
		p.items[idx] = Node{}
		p.occupied.Set(uint(idx))
		p.totalAllocated.Add(1)
		return idx, nil
	}
	if p.freeHead != Null {
		idx := p.freeHead
		p.freeHead = p.items[idx].nextFree()
		p.freeLen--
		p.items[idx] = Node{}
		p.occupied.Set(uint(idx))
		return idx, nil
	}
	if err := p.grow(); err != nil {
		return 0, err
	}
	return p.Acquire()
}

// Acquire for leaves mirrors NodePool.Acquire and additionally raises
// LeavesRealloc whenever the backing slice itself grows (not merely
// when a freed slot is reused), since only a true reallocation can
// move leaf storage around in ways worth re-tightening with a combine
// pass.
func (p *LeafPool) Acquire() (uint32, error) {
	if err := p.copyOnWriteIfMapped(); err != nil {
		return 0, err
	}
	if len(p.items) == 0 {
		if err := p.grow(); err != nil {
			return 0, err
		}
	}
	if cap(p.items) > len(p.items) {
		idx := uint32(len(p.items))
		p.items = p.items[:len(p.items)+1]
		p.items[idx] = Leaf{}
		p.occupied.Set(uint(idx))
		p.totalAllocated.Add(1)
		return idx, nil
	}
	if p.freeHead != Null {
		idx := p.freeHead
		p.freeHead = p.items[idx].nextFree()
		p.freeLen--
		p.items[idx] = Leaf{}
		p.occupied.Set(uint(idx))
		return idx, nil
	}
	if err := p.grow(); err != nil {
		return 0, err
	}
	p.LeavesRealloc = true
	return p.Acquire()
}

func (p *NodePool) grow() error {
	newCap, err := growCapacity(cap(p.items))
	if err != nil {
		return err
	}
	grown := make([]Node, len(p.items), newCap)
	copy(grown, p.items)
	if len(p.items) == 0 {
		// reserve index 0
		grown = grown[:1]
	}
	p.items = grown
	return nil
}

func (p *LeafPool) grow() error {
	newCap, err := growCapacity(cap(p.items))
	if err != nil {
		return err
	}
	grown := make([]Leaf, len(p.items), newCap)
	copy(grown, p.items)
	if len(p.items) == 0 {
		grown = grown[:1]
	}
	p.items = grown
	return nil
}

// Release pushes index i back onto the free list (§3 "Free list").
func (p *NodePool) Release(i uint32) {
	p.items[i].setNextFree(p.freeHead)
	p.freeHead = i
	p.freeLen++
	p.occupied.Clear(uint(i))
}

func (p *LeafPool) Release(i uint32) {
	p.items[i].setNextFree(p.freeHead)
	p.freeHead = i
	p.freeLen++
	p.occupied.Clear(uint(i))
}

// FreeLen reports the number of slots on the free list.
func (p *NodePool) FreeLen() int { return p.freeLen }
func (p *LeafPool) FreeLen() int { return p.freeLen }

// IsOccupied reports whether slot i is live (neither a hole nor free).
func (p *NodePool) IsOccupied(i uint32) bool { return p.occupied.Test(uint(i)) }
func (p *LeafPool) IsOccupied(i uint32) bool { return p.occupied.Test(uint(i)) }

// Reset clears the pool back to empty, releasing all storage.
func (p *NodePool) Reset() {
	p.items = nil
	p.freeHead = Null
	p.freeLen = 0
	p.occupied = bitset.New(0)
	p.mapped = false
}

func (p *LeafPool) Reset() {
	p.items = nil
	p.freeHead = Null
	p.freeLen = 0
	p.occupied = bitset.New(0)
	p.mapped = false
	p.LeavesRealloc = false
}

// Truncate implements the tail of Compact (§4.5): shrink the backing
// slice to n entries and clear the free list (the caller has already
// ensured indices [1,n) are exactly the live set).
func (p *NodePool) Truncate(n int) {
	clear(p.items[n:])
	p.items = p.items[:n]
	p.freeHead = Null
	p.freeLen = 0
}

func (p *LeafPool) Truncate(n int) {
	clear(p.items[n:])
	p.items = p.items[:n]
	p.freeHead = Null
	p.freeLen = 0
}

// SwapMove copies the entry at src over dst, used by Compact when
// relocating a live slot into a hole below the in-use boundary.
func (p *NodePool) SwapMove(dst, src uint32) {
	p.items[dst] = p.items[src]
	p.occupied.Set(uint(dst))
}

func (p *LeafPool) SwapMove(dst, src uint32) {
	p.items[dst] = p.items[src]
	p.occupied.Set(uint(dst))
}

// Items exposes the backing slice for iteration/sorting (§4.5 SortLeaves).
func (p *LeafPool) Items() []Leaf { return p.items }
func (p *NodePool) Items() []Node { return p.items }

// ReplaceItems installs items as the pool's entire backing slice (index
// 0 included as the reserved null slot), clearing the free list. Used
// by SortLeaves (§4.5), which rebuilds the leaf pool from a fresh,
// dense, address-ordered slice in one step rather than compacting then
// permuting in place.
func (p *LeafPool) ReplaceItems(items []Leaf) {
	p.items = items
	p.freeHead = Null
	p.freeLen = 0
	p.occupied = bitset.New(uint(len(items)))
	for i := 1; i < len(items); i++ {
		p.occupied.Set(uint(i))
	}
	p.mapped = false
}

// Stats mirrors the teacher's pool.Stats() debug accessor (E4).
func (p *NodePool) Stats() (live, total int64) {
	return int64(p.InUse()), p.totalAllocated.Load()
}

func (p *LeafPool) Stats() (live, total int64) {
	return int64(p.InUse()), p.totalAllocated.Load()
}

// IsMapped reports whether the pool's storage currently points into a
// read-only memory map (§4.1 "Memory-mapped backing").
func (p *NodePool) IsMapped() bool { return p.mapped }
func (p *LeafPool) IsMapped() bool { return p.mapped }

// AdoptMapped installs items as read-only, memory-mapped backing
// storage for a pool loaded directly from a version-3 file (§4.7).
// The caller guarantees items will not be mutated until
// copyOnWriteIfMapped runs.
func (p *NodePool) AdoptMapped(items []Node) {
	p.items = items
	p.mapped = true
	p.occupied = bitset.New(uint(len(items)))
	for i := 1; i < len(items); i++ {
		p.occupied.Set(uint(i))
	}
}

func (p *LeafPool) AdoptMapped(items []Leaf) {
	p.items = items
	p.mapped = true
	p.occupied = bitset.New(uint(len(items)))
	for i := 1; i < len(items); i++ {
		p.occupied.Set(uint(i))
	}
}

// copyOnWriteIfMapped implements §4.1/§5's copy-on-write contract: the
// first mutating call on a memory-mapped pool allocates an owned
// buffer of equal length, copies the data, and drops the mapping.
// Failure to allocate leaves the pool in its mapped state, matching
// the "returns Alloc, set stays mapped" rule in §5.
func (p *NodePool) copyOnWriteIfMapped() (err error) {
	if !p.mapped {
		return nil
	}
	owned, allocErr := allocNodes(len(p.items), cap(p.items))
	if allocErr != nil {
		return allocErr
	}
	copy(owned, p.items)
	p.items = owned
	p.mapped = false
	return nil
}

func (p *LeafPool) copyOnWriteIfMapped() error {
	if !p.mapped {
		return nil
	}
	owned, err := allocLeaves(len(p.items), cap(p.items))
	if err != nil {
		return err
	}
	copy(owned, p.items)
	p.items = owned
	p.mapped = false
	return nil
}

// allocNodes/allocLeaves are separated out so a future fallible
// allocation strategy (e.g. a size cap) has one choke point.
func allocNodes(length, capacity int) (_ []Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("arena: alloc %d nodes: %v", capacity, r)
		}
	}()
	if capacity < length {
		capacity = length
	}
	return make([]Node, length, capacity), nil
}

func allocLeaves(length, capacity int) (_ []Leaf, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("arena: alloc %d leaves: %v", capacity, r)
		}
	}()
	if capacity < length {
		capacity = length
	}
	return make([]Leaf, length, capacity), nil
}
