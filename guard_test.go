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

package reify

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifylabs/reify/internal/arena"
)

func TestGuardZeroSized(t *testing.T) {
	t.Parallel()

	a, err := NewGuard(For[struct{}]())
	require.NoError(t, err)
	b, err := NewGuard(For[struct{}]())
	require.NoError(t, err)

	// Zero-sized allocations share one placeholder slot.
	assert.Equal(t, a.Ptr(), b.Ptr())
	a.Release()
	b.Release()
}

func TestGuardUnsized(t *testing.T) {
	t.Parallel()

	_, err := NewGuard(SliceOf(For[int32]()))
	assert.ErrorIs(t, err, ErrUnsized)
}

func TestGuardNoBackingStorage(t *testing.T) {
	t.Parallel()

	// A sized shape with no backing Go type cannot be given typed storage;
	// the allocator reports that instead of handing out untracked memory.
	s := &Shape{name: "Phantom", size: 16, align: 8, hasPointers: true}
	s.def = &ScalarDef{Scalar: ScalarOpaque}

	_, err := NewGuard(s)
	assert.ErrorIs(t, err, ErrAlloc)
}

func TestGuardDropOnRelease(t *testing.T) {
	t.Parallel()

	var hits int
	s := NewOpaqueShape[[3]int16]("guardProbe", func(vt *VTable) {
		base := vt.Drop
		vt.Drop = func(p unsafe.Pointer, s *Shape) {
			hits++
			base(p, s)
		}
	})

	// Uninitialized: no drop.
	g, err := NewGuard(s)
	require.NoError(t, err)
	g.Release()
	assert.Equal(t, 0, hits)

	// Initialized: dropped exactly once, even across double release.
	g, err = NewGuard(s)
	require.NoError(t, err)
	g.MarkInit()
	g.Release()
	g.Release()
	assert.Equal(t, 1, hits)

	// Moved out: ownership left, so no drop.
	g, err = NewGuard(s)
	require.NoError(t, err)
	g.MarkInit()
	_ = g.Move()
	g.Release()
	assert.Equal(t, 1, hits)
}

func TestGuardDefault(t *testing.T) {
	t.Parallel()

	g, err := NewGuard(For[int64]())
	require.NoError(t, err)
	require.NoError(t, g.Default())
	assert.True(t, g.Initialized())
	assert.Equal(t, int64(0), *(*int64)(g.Ptr()))

	// Defaulting twice is refused.
	assert.ErrorIs(t, g.Default(), ErrInvariant)
	g.Release()
}

func TestGuardArenaBacked(t *testing.T) {
	t.Parallel()

	var a arena.Arena

	// Pointer-free layouts draw from the arena and come back zeroed.
	g, err := newGuard(&a, For[[4]uint64]())
	require.NoError(t, err)
	for i := range 4 {
		assert.Zero(t, *(*uint64)(unsafe.Add(g.Ptr(), i*8)))
	}
	*(*uint64)(g.Ptr()) = 99
	g.MarkInit()
	g.Release()

	// Pointer-bearing layouts never come from the arena; their storage is
	// GC-typed.
	g2, err := newGuard(&a, For[string]())
	require.NoError(t, err)
	require.NoError(t, g2.Default())
	g2.Release()

	a.Free()
}
