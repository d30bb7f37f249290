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

package arena_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifylabs/reify/internal/arena"
)

func TestAllocZeroed(t *testing.T) {
	t.Parallel()

	a := new(arena.Arena)
	p := (*[128]byte)(a.Alloc(128))
	for i, b := range p {
		require.Zero(t, b, "byte %d", i)
	}
}

func TestAllocAligned(t *testing.T) {
	t.Parallel()

	a := new(arena.Arena)
	for _, size := range []int{1, 3, 8, 17, 64, 100} {
		p := a.Alloc(size)
		assert.Zero(t, uintptr(p)%uintptr(arena.Align), "size %d", size)
	}
}

func TestAllocDisjoint(t *testing.T) {
	t.Parallel()

	a := new(arena.Arena)
	ptrs := make([]*uint64, 100)
	for i := range ptrs {
		ptrs[i] = (*uint64)(a.Alloc(8))
		*ptrs[i] = uint64(i) + 1
	}
	for i, p := range ptrs {
		assert.Equal(t, uint64(i)+1, *p)
	}
}

func TestAllocLarge(t *testing.T) {
	t.Parallel()

	// Larger than any chunk the arena has; forces a dedicated block.
	a := new(arena.Arena)
	p := (*[1 << 16]byte)(a.Alloc(1 << 16))
	p[0], p[len(p)-1] = 1, 2
	assert.Equal(t, byte(1), p[0])
	assert.Equal(t, byte(2), p[len(p)-1])
}

func TestFreeReuses(t *testing.T) {
	t.Parallel()

	a := new(arena.Arena)
	first := a.Alloc(64)
	*(*uint64)(first) = 0xdeadbeef

	a.Free()

	// The block comes back zeroed and at the same address.
	second := a.Alloc(64)
	assert.Equal(t, uintptr(first), uintptr(second))
	assert.Zero(t, *(*uint64)(second))
}

func TestZeroValueReady(t *testing.T) {
	t.Parallel()

	var a arena.Arena
	p := a.Alloc(16)
	assert.NotEqual(t, unsafe.Pointer(nil), p)

	a.Free()
	a.Free() // Idempotent.
}
