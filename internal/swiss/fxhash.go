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

package swiss

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"unsafe"
)

// Hash is a simple fxhash-style hasher.
//
// The zero value (optionally seeded via [Hash.U64]) is ready to use.
type Hash uint64

func (h Hash) h1() uint64 { return uint64(h >> 7) }
func (h Hash) h2() byte   { return ^(byte(h) & 0x7f) }

// zext zero-extends k regardless of its sign.
func zext[T Key](k T) uint64 {
	n := uint64(k)
	n &= 1<<(8*unsafe.Sizeof(k)) - 1
	return n
}

// U64 mixes a 64-bit word into the hash.
//
// See https://docs.rs/fxhash.
func (h Hash) U64(n uint64) Hash {
	const (
		rotate = 5
		key    = 0x517cc1b727220a95
	)

	hi, lo := bits.Mul64(bits.RotateLeft64(uint64(h), rotate)^n, key)
	return Hash(lo ^ hi)
}

// Bytes mixes a byte string into the hash, eight bytes at a time.
func (h Hash) Bytes(b []byte) Hash {
	h = h.U64(uint64(len(b)))
	for len(b) >= 8 {
		h = h.U64(binary.LittleEndian.Uint64(b))
		b = b[8:]
	}

	var last uint64
	for i, by := range b {
		last |= uint64(by) << (8 * i)
	}
	if len(b) > 0 {
		h = h.U64(last)
	}
	return h
}

// String implements [fmt.Stringer].
func (h Hash) String() string {
	return fmt.Sprintf("%015x:%02x", h.h1(), h.h2())
}
