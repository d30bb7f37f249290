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

package reify_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifylabs/reify"
)

// tracked counts how many times values of it are dropped.
type tracked struct {
	Hits *int32
}

func (tr *tracked) Drop() {
	if tr.Hits != nil {
		atomic.AddInt32(tr.Hits, 1)
	}
}

type suit struct {
	kind  uint8
	color string
	pip   int32
}

var suitShape = reify.NewEnumShape[suit]("Suit", "kind",
	reify.UnitVariant("Joker", 0),
	reify.StructVariant("Face", 1,
		reify.VariantField{Name: "color", Backing: "color"}),
	reify.TupleVariant("Pip", 2, "pip"),
)

func TestBuildStruct(t *testing.T) {
	t.Parallel()

	type ab struct {
		A int32  `reify:"a"`
		B string `reify:"b"`
	}

	p := reify.Alloc[ab]()
	require.NoError(t, p.SetField("a", int32(42)))
	require.NoError(t, p.BeginField("b"))
	require.NoError(t, p.Set("hello"))
	require.NoError(t, p.End())

	h, err := p.Build()
	require.NoError(t, err)

	v, err := reify.Take[ab](h)
	require.NoError(t, err)
	assert.Equal(t, ab{A: 42, B: "hello"}, v)
}

func TestBuildPartialInitNamesMissingSlot(t *testing.T) {
	t.Parallel()

	type ab struct {
		A int32  `reify:"a"`
		B string `reify:"b"`
	}

	p := reify.Alloc[ab]()
	require.NoError(t, p.SetField("a", int32(1)))

	_, err := p.Build()
	require.ErrorIs(t, err, reify.ErrPartialInit)
	var slotted interface{ Slot() string }
	require.ErrorAs(t, err, &slotted)
	assert.Equal(t, "b", slotted.Slot())

	// The failed build changed nothing; the builder can be completed.
	require.NoError(t, p.SetField("b", "late"))
	h, err := p.Build()
	require.NoError(t, err)
	v, err := reify.Take[ab](h)
	require.NoError(t, err)
	assert.Equal(t, ab{A: 1, B: "late"}, v)
}

func TestBuildList(t *testing.T) {
	t.Parallel()

	p := reify.Alloc[[]string]()
	for _, s := range []string{"x", "y", "z"} {
		require.NoError(t, p.BeginListItem())
		require.NoError(t, p.Set(s))
		require.NoError(t, p.End())
	}
	h, err := p.Build()
	require.NoError(t, err)

	v, err := reify.Take[[]string](h)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, v)
}

func TestBuildMap(t *testing.T) {
	t.Parallel()

	p := reify.Alloc[map[string]int64]()
	for k, v := range map[string]int64{"one": 1, "two": 2} {
		require.NoError(t, p.BeginKey())
		require.NoError(t, p.Set(k))
		require.NoError(t, p.End())
		require.NoError(t, p.BeginValue())
		require.NoError(t, p.Set(v))
		require.NoError(t, p.End())
	}
	h, err := p.Build()
	require.NoError(t, err)

	v, err := reify.Take[map[string]int64](h)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"one": 1, "two": 2}, v)
}

func TestBuildSet(t *testing.T) {
	t.Parallel()

	p := reify.Alloc[map[string]struct{}]()
	for _, s := range []string{"a", "b"} {
		require.NoError(t, p.BeginSetItem())
		require.NoError(t, p.Set(s))
		require.NoError(t, p.End())
	}
	h, err := p.Build()
	require.NoError(t, err)

	v, err := reify.Take[map[string]struct{}](h)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a": {}, "b": {}}, v)
}

func TestBuildOption(t *testing.T) {
	t.Parallel()

	p := reify.Alloc[reify.Option[string]]()
	require.NoError(t, p.BeginSome())
	require.NoError(t, p.Set("present"))
	require.NoError(t, p.End())
	h, err := p.Build()
	require.NoError(t, err)

	v, err := reify.Take[reify.Option[string]](h)
	require.NoError(t, err)
	assert.Equal(t, "present", v.MustGet())

	p = reify.Alloc[reify.Option[string]]()
	require.NoError(t, p.SetNone())
	h, err = p.Build()
	require.NoError(t, err)
	v, err = reify.Take[reify.Option[string]](h)
	require.NoError(t, err)
	assert.False(t, v.IsSome())
}

func TestBuildResult(t *testing.T) {
	t.Parallel()

	p := reify.Alloc[reify.Result[int32, string]]()
	require.NoError(t, p.BeginOk())
	require.NoError(t, p.Set(int32(7)))
	require.NoError(t, p.End())
	h, err := p.Build()
	require.NoError(t, err)
	v, err := reify.Take[reify.Result[int32, string]](h)
	require.NoError(t, err)
	ok, isOk := v.Get()
	assert.True(t, isOk)
	assert.Equal(t, int32(7), ok)

	p = reify.Alloc[reify.Result[int32, string]]()
	require.NoError(t, p.BeginErr())
	require.NoError(t, p.Set("boom"))
	require.NoError(t, p.End())
	h, err = p.Build()
	require.NoError(t, err)
	v, err = reify.Take[reify.Result[int32, string]](h)
	require.NoError(t, err)
	e, isErr := v.GetErr()
	assert.True(t, isErr)
	assert.Equal(t, "boom", e)
}

func TestBuildEnum(t *testing.T) {
	t.Parallel()

	require.Same(t, suitShape, reify.For[suit]())

	p, err := reify.NewPartial(suitShape)
	require.NoError(t, err)
	require.NoError(t, p.SelectVariant("Pip"))
	require.NoError(t, p.BeginNthField(0))
	require.NoError(t, p.Set(int32(9)))
	require.NoError(t, p.End())

	h, err := p.Build()
	require.NoError(t, err)
	v, err := reify.Take[suit](h)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), v.kind)
	assert.Equal(t, int32(9), v.pip)
}

func TestBuildEnumUnitVariant(t *testing.T) {
	t.Parallel()

	p, err := reify.NewPartial(suitShape)
	require.NoError(t, err)
	require.NoError(t, p.SelectVariant("Joker"))
	h, err := p.Build()
	require.NoError(t, err)
	v, err := reify.Take[suit](h)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), v.kind)
}

func TestSmartPtrDeferred(t *testing.T) {
	t.Parallel()

	type point struct {
		X int32
		Y int32
	}

	// Explicit FinishDeferred.
	p := reify.Alloc[*point]()
	require.NoError(t, p.BeginSmartPtr())
	require.NoError(t, p.SetField("X", int32(1)))
	require.NoError(t, p.SetField("Y", int32(2)))
	require.NoError(t, p.End())
	require.NoError(t, p.FinishDeferred())
	h, err := p.Build()
	require.NoError(t, err)
	v, err := reify.Take[*point](h)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, point{X: 1, Y: 2}, *v)

	// Build resolves a parked pointee on its own.
	p = reify.Alloc[*point]()
	require.NoError(t, p.BeginSmartPtr())
	require.NoError(t, p.SetField("X", int32(3)))
	require.NoError(t, p.SetField("Y", int32(4)))
	require.NoError(t, p.End())
	h, err = p.Build()
	require.NoError(t, err)
	v, err = reify.Take[*point](h)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, point{X: 3, Y: 4}, *v)
}

func TestAbandonDropsPrefixExactlyOnce(t *testing.T) {
	t.Parallel()

	type twoTracked struct {
		A tracked
		B tracked
	}

	var hits int32
	p := reify.Alloc[twoTracked]()
	require.NoError(t, p.BeginField("A"))
	require.NoError(t, p.Set(tracked{Hits: &hits}))
	require.NoError(t, p.End())
	p.Abandon()
	assert.Equal(t, int32(1), hits)

	// Abandoning again is a no-op.
	p.Abandon()
	assert.Equal(t, int32(1), hits)
}

func TestAbandonDropsOpenElementFrame(t *testing.T) {
	t.Parallel()

	var hits int32
	p := reify.Alloc[[]tracked]()
	for range 2 {
		require.NoError(t, p.BeginListItem())
		require.NoError(t, p.Set(tracked{Hits: &hits}))
		require.NoError(t, p.End())
	}
	// A third element is initialized but never folded in.
	require.NoError(t, p.BeginListItem())
	require.NoError(t, p.Set(tracked{Hits: &hits}))

	p.Abandon()
	assert.Equal(t, int32(3), hits)
}

func TestAbandonDropsMapEntriesAndParkedKey(t *testing.T) {
	t.Parallel()

	var hits int32
	p := reify.Alloc[map[string]tracked]()
	for _, k := range []string{"a", "b"} {
		require.NoError(t, p.BeginKey())
		require.NoError(t, p.Set(k))
		require.NoError(t, p.End())
		require.NoError(t, p.BeginValue())
		require.NoError(t, p.Set(tracked{Hits: &hits}))
		require.NoError(t, p.End())
	}
	// Park a key with no value.
	require.NoError(t, p.BeginKey())
	require.NoError(t, p.Set("c"))
	require.NoError(t, p.End())

	p.Abandon()
	assert.Equal(t, int32(2), hits)
}

func TestFreeDropsOnceAndOnlyOnce(t *testing.T) {
	t.Parallel()

	type twoTracked struct {
		A tracked
		B tracked
	}

	var hits int32
	p := reify.Alloc[twoTracked]()
	require.NoError(t, p.SetField("A", tracked{Hits: &hits}))
	require.NoError(t, p.SetField("B", tracked{Hits: &hits}))
	h, err := p.Build()
	require.NoError(t, err)

	// Building moves; nothing dropped yet.
	assert.Equal(t, int32(0), hits)

	require.NoError(t, h.Free())
	assert.Equal(t, int32(2), hits)

	err = h.Free()
	require.ErrorIs(t, err, reify.ErrInvariant)
	assert.Equal(t, int32(2), hits)
}

func TestSelectVariantDropsPreviousPayload(t *testing.T) {
	t.Parallel()

	var hits int32
	p, err := reify.NewPartial(crateShape)
	require.NoError(t, err)
	require.NoError(t, p.SelectVariant("One"))
	require.NoError(t, p.BeginField("one"))
	require.NoError(t, p.Set(tracked{Hits: &hits}))
	require.NoError(t, p.End())

	require.NoError(t, p.SelectVariant("Two"))
	assert.Equal(t, int32(1), hits)

	require.NoError(t, p.BeginNthField(0))
	require.NoError(t, p.Set(int32(5)))
	require.NoError(t, p.End())
	h, err := p.Build()
	require.NoError(t, err)
	v, err := reify.Take[crate](h)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), v.tag)
	assert.Equal(t, int32(5), v.two)
}

func TestDropLeavesCallerMemoryIntact(t *testing.T) {
	t.Parallel()

	type holder struct {
		N *int64
	}

	// The built value shares its pointee with the caller. Dropping the
	// value must release the engine's storage only, never write through
	// the shared pointer.
	n := int64(42)
	p := reify.Alloc[holder]()
	require.NoError(t, p.SetField("N", &n))
	h, err := p.Build()
	require.NoError(t, err)
	require.NoError(t, h.Free())
	assert.Equal(t, int64(42), n)

	n = 7
	p = reify.Alloc[holder]()
	require.NoError(t, p.SetField("N", &n))
	p.Abandon()
	assert.Equal(t, int64(7), n)
}

func TestAbandonDropsParkedPointee(t *testing.T) {
	t.Parallel()

	// The pointee frame has ended, so its value is complete and parked on
	// the smart pointer awaiting FinishDeferred. Abandoning here must
	// still drop it exactly once.
	var hits int32
	p := reify.Alloc[*tracked]()
	require.NoError(t, p.BeginSmartPtr())
	require.NoError(t, p.Set(tracked{Hits: &hits}))
	require.NoError(t, p.End())

	p.Abandon()
	assert.Equal(t, int32(1), hits)
}

func TestAbandonDropsParkedKey(t *testing.T) {
	t.Parallel()

	// A completed key parked without its value is still an initialized
	// sub-value; abandonment must drop it.
	var hits int32
	p := reify.Alloc[map[tracked]int64]()
	require.NoError(t, p.BeginKey())
	require.NoError(t, p.Set(tracked{Hits: &hits}))
	require.NoError(t, p.End())

	p.Abandon()
	assert.Equal(t, int32(1), hits)
}

type crate struct {
	tag uint8
	one tracked
	two int32
}

var crateShape = reify.NewEnumShape[crate]("Crate", "tag",
	reify.StructVariant("One", 1,
		reify.VariantField{Name: "one", Backing: "one"}),
	reify.TupleVariant("Two", 2, "two"),
)

func TestStackDiscipline(t *testing.T) {
	t.Parallel()

	type ab struct {
		A int32 `reify:"a"`
	}

	p := reify.Alloc[ab]()

	// End with nothing begun.
	require.ErrorIs(t, p.End(), reify.ErrInvariant)

	// Build with an open frame.
	require.NoError(t, p.BeginField("a"))
	_, err := p.Build()
	require.ErrorIs(t, err, reify.ErrInvariant)

	// Wrong value type.
	require.ErrorIs(t, p.Set("not an int32"), reify.ErrShapeMismatch)

	// Unknown names.
	require.NoError(t, p.Set(int32(1)))
	require.NoError(t, p.End())
	require.ErrorIs(t, p.BeginField("nope"), reify.ErrNoSuchField)

	// Begin ops against the wrong def kind.
	require.ErrorIs(t, p.BeginListItem(), reify.ErrShapeMismatch)
	require.ErrorIs(t, p.BeginKey(), reify.ErrShapeMismatch)
	require.ErrorIs(t, p.SelectVariant("x"), reify.ErrShapeMismatch)

	// A consumed builder rejects everything.
	h, err := p.Build()
	require.NoError(t, err)
	defer h.Free() //nolint:errcheck
	require.ErrorIs(t, p.Set(int32(2)), reify.ErrInvariant)
	_, err = p.Build()
	require.ErrorIs(t, err, reify.ErrInvariant)
}

func TestMapKeyDiscipline(t *testing.T) {
	t.Parallel()

	p := reify.Alloc[map[string]int64]()

	// Value before any key.
	require.ErrorIs(t, p.BeginValue(), reify.ErrInvariant)

	require.NoError(t, p.BeginKey())
	require.NoError(t, p.Set("k"))
	require.NoError(t, p.End())

	// Second key while one is parked.
	require.ErrorIs(t, p.BeginKey(), reify.ErrInvariant)

	// A parked key makes the map incomplete.
	_, err := p.Build()
	require.ErrorIs(t, err, reify.ErrPartialInit)

	require.NoError(t, p.BeginValue())
	require.NoError(t, p.Set(int64(1)))
	require.NoError(t, p.End())
	h, err := p.Build()
	require.NoError(t, err)
	v, err := reify.Take[map[string]int64](h)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"k": 1}, v)
}

func TestPath(t *testing.T) {
	t.Parallel()

	type inner struct {
		Names []string
	}
	type outer struct {
		In inner
	}

	p := reify.Alloc[outer]()
	require.NoError(t, p.BeginField("In"))
	require.NoError(t, p.BeginField("Names"))
	require.NoError(t, p.BeginListItem())
	assert.Contains(t, p.Path(), "In.Names.[item]")
	p.Abandon()
}
