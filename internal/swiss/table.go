// Copyright 2025 Reify Labs, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package swiss provides a read-mostly swisstable keyed by integers, with an
// optional callback for hashing variable-length key material (such as field
// names) that the keys index into.
package swiss

import (
	"math/bits"
	"math/rand/v2"
)

const (
	lows  = 0x0101_0101_0101_0101
	highs = lows << 7

	groupSize = 8
)

// Key is one of the allowed keys for [Table].
type Key interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint |
		~uintptr
}

// Entry is a key-value pair for [New].
type Entry[K, V any] struct {
	Key   K
	Value V
}

// KV is a shorthand for constructing an [Entry].
func KV[K, V any](k K, v V) Entry[K, V] { return Entry[K, V]{k, v} }

// Table is a swisstable. It is built once by [New] and read-only afterwards,
// so it is safe for unsynchronized concurrent lookup.
//
// If extract is non-nil, keys are hashed and compared through the byte
// string extract returns for them, which allows a table with integer keys to
// behave as a string-keyed table whose strings live elsewhere.
type Table[K Key, V any] struct {
	seed    Hash
	mask    int // Number of control groups, minus one. Power of two minus one.
	extract func(K) []byte

	ctrl   []ctrl
	keys   []K
	values []V
}

// New builds a table from the given entries.
//
// Duplicate keys are a programming error and panic.
func New[K Key, V any](extract func(K) []byte, entries ...Entry[K, V]) *Table[K, V] {
	groups := 1
	for groups*groupSize*7/8 < len(entries)+1 {
		groups *= 2
	}
	cap := groups * groupSize

	t := &Table[K, V]{
		seed:    Hash(rand.Uint64()),
		mask:    groups - 1,
		extract: extract,
		ctrl:    make([]ctrl, groups),
		keys:    make([]K, cap),
		values:  make([]V, cap),
	}

	for _, e := range entries {
		t.insert(e.Key, e.Value)
	}
	return t
}

// Len returns the number of entries in this table.
func (t *Table[K, V]) Len() int {
	n := 0
	for _, c := range t.ctrl {
		n += c.occupied()
	}
	return n
}

// Lookup finds the value for k, or nil if it is not present.
func (t *Table[K, V]) Lookup(k K) *V {
	idx, ok := t.search(t.hash(k), k, nil)
	if !ok {
		return nil
	}
	return &t.values[idx]
}

// LookupFunc finds the value whose extracted key material equals k.
//
// Only valid on tables built with a non-nil extract callback.
func (t *Table[K, V]) LookupFunc(k []byte) *V {
	var zero K
	idx, ok := t.search(t.seed.Bytes(k), zero, k)
	if !ok {
		return nil
	}
	return &t.values[idx]
}

func (t *Table[K, V]) hash(k K) Hash {
	if t.extract != nil {
		return t.seed.Bytes(t.extract(k))
	}
	return t.seed.U64(zext(k))
}

// equalAt reports whether the entry at idx matches the probe key. raw is
// non-nil for [LookupFunc] probes.
func (t *Table[K, V]) equalAt(idx int, k K, raw []byte) bool {
	if raw != nil {
		return string(t.extract(t.keys[idx])) == string(raw)
	}
	if t.extract != nil {
		return string(t.extract(t.keys[idx])) == string(t.extract(k))
	}
	return t.keys[idx] == k
}

// search probes for a key, returning the entry index.
//
// Probing is quadratic over control groups: f(i) = (i^2 + i)/2 mod groups
// visits every group exactly once when groups is a power of two.
func (t *Table[K, V]) search(h Hash, k K, raw []byte) (idx int, ok bool) {
	group := int(h.h1()) & t.mask
	needle := broadcast(h.h2())

	for step := 1; ; step++ {
		c := t.ctrl[group]

		matches := c.matches(needle)
		for matches != 0 {
			n := bits.TrailingZeros64(uint64(matches)) / 8
			idx = group*groupSize + n
			if t.equalAt(idx, k, raw) {
				return idx, true
			}
			matches &= matches - 1 // Clear the lowest match bit.
		}

		if c.hasEmpty() {
			// An empty slot in the group means the key was never inserted.
			return group*groupSize + c.firstEmpty(), false
		}

		group = (group + step) & t.mask
	}
}

func (t *Table[K, V]) insert(k K, v V) {
	idx, ok := t.search(t.hash(k), k, nil)
	if ok {
		panic("swiss: duplicate key")
	}

	t.keys[idx] = k
	t.values[idx] = v
	t.ctrl[idx/groupSize] = t.ctrl[idx/groupSize].set(idx%groupSize, t.hash(k).h2())
}

// ctrl is a control group: a [8]byte implemented as a 64-bit integer.
//
// A zero byte marks an empty slot; occupied slots hold the h2 byte of their
// entry's hash, which is never zero because h2 has its top bit set.
type ctrl uint64

// broadcast returns a control group whose bytes are each b.
func broadcast(b byte) ctrl {
	return ctrl(b) * lows
}

// matches returns a word whose nth byte is nonzero if and only if
// c[n] == needle[n].
func (c ctrl) matches(needle ctrl) ctrl {
	x := c ^ needle
	return (x - lows) &^ x & highs
}

// hasEmpty reports whether any slot in this group is empty.
func (c ctrl) hasEmpty() bool {
	return c.matches(0) != 0
}

// firstEmpty returns the index of the first empty slot in this group.
func (c ctrl) firstEmpty() int {
	return bits.TrailingZeros64(uint64(c.matches(0))) / 8
}

// occupied returns the number of occupied slots in this group.
func (c ctrl) occupied() int {
	return groupSize - bits.OnesCount64(uint64(c.matches(0)))
}

// set returns this group with slot n holding h2.
func (c ctrl) set(n int, h2 byte) ctrl {
	return c&^(ctrl(0xff)<<(n*8)) | ctrl(h2)<<(n*8)
}
