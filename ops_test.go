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
	"errors"
	"fmt"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifylabs/reify"
)

func TestScalarCompare(t *testing.T) {
	t.Parallel()

	order := func(s *reify.Shape, a, b unsafe.Pointer) int {
		return s.VTable().Compare(a, b, s)
	}

	i8 := reify.For[int8]()
	lo, hi := int8(-5), int8(3)
	assert.Equal(t, -1, order(i8, unsafe.Pointer(&lo), unsafe.Pointer(&hi)))
	assert.Equal(t, 1, order(i8, unsafe.Pointer(&hi), unsafe.Pointer(&lo)))
	assert.Equal(t, 0, order(i8, unsafe.Pointer(&lo), unsafe.Pointer(&lo)))

	// 0xff is -1 signed but 255 unsigned; the orderings disagree.
	u8 := reify.For[uint8]()
	big, small := uint8(0xff), uint8(1)
	assert.Equal(t, 1, order(u8, unsafe.Pointer(&big), unsafe.Pointer(&small)))

	str := reify.For[string]()
	x, y := "apple", "banana"
	assert.Equal(t, -1, order(str, unsafe.Pointer(&x), unsafe.Pointer(&y)))

	b := reify.For[bool]()
	f, tr := false, true
	assert.Equal(t, -1, order(b, unsafe.Pointer(&f), unsafe.Pointer(&tr)))
	assert.Equal(t, 0, order(b, unsafe.Pointer(&tr), unsafe.Pointer(&tr)))

	f64 := reify.For[float64]()
	p, q := 1.5, 2.5
	assert.Equal(t, -1, order(f64, unsafe.Pointer(&p), unsafe.Pointer(&q)))
}

func TestScalarParse(t *testing.T) {
	t.Parallel()

	var b bool
	s := reify.For[bool]()
	require.NoError(t, s.VTable().Parse(unsafe.Pointer(&b), s, "true"))
	assert.True(t, b)

	var n int16
	s = reify.For[int16]()
	require.NoError(t, s.VTable().Parse(unsafe.Pointer(&n), s, "-1234"))
	assert.Equal(t, int16(-1234), n)

	// Out of range for the destination width.
	assert.Error(t, s.VTable().Parse(unsafe.Pointer(&n), s, "40000"))

	var u uint32
	s = reify.For[uint32]()
	require.NoError(t, s.VTable().Parse(unsafe.Pointer(&u), s, "4000000000"))
	assert.Equal(t, uint32(4000000000), u)
	assert.Error(t, s.VTable().Parse(unsafe.Pointer(&u), s, "-1"))
}

func TestScalarTryFrom(t *testing.T) {
	t.Parallel()

	t.Run("narrowing", func(t *testing.T) {
		t.Parallel()
		src := int64(100)
		var dst int32
		s := reify.For[int32]()
		require.NoError(t, s.VTable().TryFrom(unsafe.Pointer(&dst), s, reify.PeekAt(&src)))
		assert.Equal(t, int32(100), dst)

		src = 1 << 40
		err := s.VTable().TryFrom(unsafe.Pointer(&dst), s, reify.PeekAt(&src))
		assert.ErrorIs(t, err, reify.ErrShapeMismatch)
	})

	t.Run("sign", func(t *testing.T) {
		t.Parallel()
		src := int32(-1)
		var dst uint32
		s := reify.For[uint32]()
		err := s.VTable().TryFrom(unsafe.Pointer(&dst), s, reify.PeekAt(&src))
		assert.ErrorIs(t, err, reify.ErrShapeMismatch)

		src = 7
		require.NoError(t, s.VTable().TryFrom(unsafe.Pointer(&dst), s, reify.PeekAt(&src)))
		assert.Equal(t, uint32(7), dst)
	})

	t.Run("widening", func(t *testing.T) {
		t.Parallel()
		src := uint8(200)
		var dst float64
		s := reify.For[float64]()
		require.NoError(t, s.VTable().TryFrom(unsafe.Pointer(&dst), s, reify.PeekAt(&src)))
		assert.Equal(t, 200.0, dst)
	})

	t.Run("text", func(t *testing.T) {
		t.Parallel()
		src := []byte("hello")
		var dst string
		s := reify.For[string]()
		require.NoError(t, s.VTable().TryFrom(unsafe.Pointer(&dst), s, reify.PeekAt(&src)))
		assert.Equal(t, "hello", dst)

		// The inverse conversion clones; mutating the result must not
		// alias the source string's bytes.
		var back []byte
		s = reify.For[[]byte]()
		require.NoError(t, s.VTable().TryFrom(unsafe.Pointer(&back), s, reify.PeekAt(&dst)))
		assert.Equal(t, []byte("hello"), back)
	})

	t.Run("mismatch", func(t *testing.T) {
		t.Parallel()
		src := "nope"
		var dst int64
		s := reify.For[int64]()
		err := s.VTable().TryFrom(unsafe.Pointer(&dst), s, reify.PeekAt(&src))
		assert.ErrorIs(t, err, reify.ErrShapeMismatch)
	})
}

type fahrenheit int32

func (f fahrenheit) String() string {
	return fmt.Sprintf("%d°F", int32(f))
}

func (f *fahrenheit) UnmarshalText(text []byte) error {
	var v int32
	if _, err := fmt.Sscanf(string(text), "%d°F", &v); err != nil {
		return err
	}
	*f = fahrenheit(v)
	return nil
}

func TestTextHooks(t *testing.T) {
	t.Parallel()

	s := reify.For[fahrenheit]()

	v := fahrenheit(212)
	require.NotNil(t, s.VTable().Display)
	assert.Equal(t, "212°F", reify.PeekAt(&v).Display())

	var parsed fahrenheit
	require.NotNil(t, s.VTable().Parse)
	require.NoError(t, s.VTable().Parse(unsafe.Pointer(&parsed), s, "-40°F"))
	assert.Equal(t, fahrenheit(-40), parsed)
}

type port struct {
	Number uint16
}

func (p *port) Validate() error {
	if p.Number == 0 {
		return errors.New("port must be nonzero")
	}
	return nil
}

func TestValidateHook(t *testing.T) {
	t.Parallel()

	build := func(n uint16) (*reify.HeapValue, error) {
		p := reify.Alloc[port]()
		require.NoError(t, p.SetField("Number", n))
		return p.Build()
	}

	h, err := build(8080)
	require.NoError(t, err)
	got, err := reify.Take[port](h)
	require.NoError(t, err)
	assert.Equal(t, port{Number: 8080}, got)

	_, err = build(0)
	require.ErrorContains(t, err, "port must be nonzero")
}
