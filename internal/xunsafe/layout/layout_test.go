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

package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reifylabs/reify/internal/xunsafe/layout"
)

func TestOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, layout.Layout{Size: 1, Align: 1}, layout.Of[byte]())
	assert.Equal(t, layout.Layout{Size: 8, Align: 8}, layout.Of[int64]())
	assert.Equal(t, layout.Layout{Size: 0, Align: 1}, layout.Of[struct{}]())

	type pair struct {
		_ int32
		_ byte
	}
	assert.Equal(t, layout.Layout{Size: 8, Align: 4}, layout.Of[pair]())
}

func TestBits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 8, layout.Bits[byte]())
	assert.Equal(t, 64, layout.Bits[uint64]())
}

func TestMax(t *testing.T) {
	t.Parallel()

	a := layout.Layout{Size: 3, Align: 1}
	b := layout.Layout{Size: 2, Align: 8}
	assert.Equal(t, layout.Layout{Size: 3, Align: 8}, a.Max(b))
	assert.Equal(t, a.Max(b), b.Max(a))
}

func TestRoundUp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, layout.RoundUp(0, 8))
	assert.Equal(t, 8, layout.RoundUp(1, 8))
	assert.Equal(t, 8, layout.RoundUp(8, 8))
	assert.Equal(t, 16, layout.RoundUp(9, 8))
	assert.Equal(t, 7, layout.RoundUp(7, 1))
}

func TestPadding(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, layout.Padding(0, 4))
	assert.Equal(t, 3, layout.Padding(1, 4))
	assert.Equal(t, 1, layout.Padding(3, 4))
	assert.Equal(t, 0, layout.Padding(4, 4))

	// Every result lands on a multiple of the alignment.
	for n := range 65 {
		for _, align := range []int{1, 2, 4, 8, 16} {
			assert.Zero(t, layout.RoundUp(n, align)%align, "n=%d align=%d", n, align)
		}
	}
}

func TestIsPow2(t *testing.T) {
	t.Parallel()

	assert.False(t, layout.IsPow2(0))
	assert.True(t, layout.IsPow2(1))
	assert.True(t, layout.IsPow2(2))
	assert.False(t, layout.IsPow2(3))
	assert.True(t, layout.IsPow2(64))
	assert.False(t, layout.IsPow2(-4))
}
