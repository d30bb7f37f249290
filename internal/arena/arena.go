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

// Package arena provides a low-level arena allocator for pointer-free
// scratch memory.
//
// # Design
//
// See <https://mcyoung.xyz/2025/04/21/go-arenas/>.
//
// Arenas only return pointers to pointer-free memory. To keep that memory
// alive, each chunk allocated for the arena has the shape
//
//	type chunk struct {
//	  memory [N]uint64
//	  arena *Arena
//	}
//
// Holding a pointer into chunk.memory anywhere reachable by a GC root marks
// the whole chunk as live, and therefore marks the trailing *Arena as live;
// tracing through arena.blocks then marks every other chunk. A builder that
// hands out scratch pointers therefore only needs to keep the arena pointer
// itself alive.
package arena

import (
	"math/bits"
	"reflect"
	"unsafe"

	"github.com/reifylabs/reify/internal/debug"
	"github.com/reifylabs/reify/internal/xunsafe"
	"github.com/reifylabs/reify/internal/xunsafe/layout"
)

// Align is the alignment of all objects on the arena.
const Align = int(unsafe.Sizeof(uintptr(0)))

// Arena holds scratch values of any type which does not contain pointers.
//
// A zero Arena is empty and ready to use.
type Arena struct {
	_ xunsafe.NoCopy

	next, end uintptr
	cap       int // Always a power of 2.

	// Blocks of memory allocated by this arena, indexed by their size log 2.
	blocks []*byte
}

// Alloc allocates memory with the given size.
//
// All memory is pointer-aligned and zeroed.
func (a *Arena) Alloc(size int) unsafe.Pointer {
	size = layout.RoundUp(size, Align)

	if a.next+uintptr(size) > a.end {
		a.grow(size)
	}

	p := a.next
	a.next += uintptr(size)
	debug.Log([]any{"%p", a}, "alloc", "%#x, %d", p, size)

	return unsafe.Pointer(p) //nolint:govet // Derived from a live chunk.
}

// Free resets this arena to an empty state, allowing all memory allocated by
// it to be re-used.
//
// Any pointer returned by Alloc must not be referenced after a call to Free.
func (a *Arena) Free() {
	a.next, a.end, a.cap = 0, 0, 0
	for log, block := range a.blocks {
		if block != nil {
			xunsafe.Clear(block, 1<<log)
		}
	}
}

// grow allocates a fresh chunk of at least the given size.
func (a *Arena) grow(size int) {
	xunsafe.Escape(a)
	p, n := a.allocChunk(max(size, a.cap*2, 64))

	a.next = uintptr(unsafe.Pointer(p))
	a.end = a.next + uintptr(n)
	a.cap = n
	debug.Log([]any{"%p", a}, "grow", "%#x:%#x:%d", a.next, a.end, a.cap)
}

// allocChunk returns a chunk with space for at least size bytes, re-using a
// previously allocated block when one of the right size class exists.
func (a *Arena) allocChunk(size int) (*byte, int) {
	log := max(6, uint(bits.Len(uint(size)-1)))
	n := 1 << log

	if int(log) >= len(a.blocks) {
		a.blocks = append(a.blocks, make([]*byte, int(log)+1-len(a.blocks))...)
	}
	if a.blocks[log] == nil {
		a.blocks[log] = allocTraceable(n, unsafe.Pointer(a))
	}
	return a.blocks[log], n
}

// allocTraceable allocates size bytes of garbage-collected memory such that
// as long as any pointer into the allocation is live, ptr is marked live by
// the garbage collector.
func allocTraceable(size int, ptr unsafe.Pointer) *byte {
	// This needs to be done with reflection, because we need a
	// weirdly-shaped allocation: a bunch of bytes followed by a pointer. The
	// shape for each power-of-two size is cached to avoid hammering
	// reflection.
	var shape reflect.Type
	if layout.IsPow2(size) {
		shape = chunkShapes[bits.TrailingZeros(uint(size))]
	} else {
		shape = chunkShape(size)
	}

	p := (*byte)(reflect.New(shape).UnsafePointer())
	xunsafe.ByteStore(p, size, ptr)
	return p
}

// Pre-allocate a shape for every power of 2.
var chunkShapes [bits.UintSize - 1]reflect.Type

func init() {
	for i := range chunkShapes {
		chunkShapes[i] = chunkShape(1 << i)
	}
}

func chunkShape(size int) reflect.Type {
	return reflect.StructOf([]reflect.StructField{
		{Name: "Data", Type: reflect.ArrayOf(size, reflect.TypeFor[byte]())},
		{Name: "Arena", Type: reflect.TypeFor[*Arena]()},
	})
}
