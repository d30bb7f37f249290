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

package swiss_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifylabs/reify/internal/swiss"
)

func TestTableLookup(t *testing.T) {
	t.Parallel()

	names := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	entries := make([]swiss.Entry[uint32, string], len(names))
	for i, n := range names {
		entries[i] = swiss.KV(uint32(i), n)
	}
	tbl := swiss.New(func(k uint32) []byte {
		return []byte(names[k])
	}, entries...)

	require.Equal(t, len(names), tbl.Len())
	for i, n := range names {
		v := tbl.Lookup(uint32(i))
		require.NotNil(t, v, "key %d", i)
		assert.Equal(t, n, *v)

		// Lookup by raw key material must agree.
		v = tbl.LookupFunc([]byte(n))
		require.NotNil(t, v)
		assert.Equal(t, n, *v)
	}

	assert.Nil(t, tbl.LookupFunc([]byte("zeta")))
	assert.Nil(t, tbl.LookupFunc(nil))
}

func TestTableManyKeys(t *testing.T) {
	t.Parallel()

	const n = 1000
	keys := make([]string, n)
	entries := make([]swiss.Entry[uint32, uint32], n)
	for i := range n {
		keys[i] = fmt.Sprintf("key-%04d", i)
		entries[i] = swiss.KV(uint32(i), uint32(i*3))
	}
	tbl := swiss.New(func(k uint32) []byte {
		return []byte(keys[k])
	}, entries...)

	for i := range n {
		v := tbl.LookupFunc([]byte(keys[i]))
		require.NotNil(t, v, "key %q", keys[i])
		assert.Equal(t, uint32(i*3), *v)
	}
	assert.Nil(t, tbl.LookupFunc([]byte("key-XXXX")))
}

func TestTableDuplicatePanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		swiss.New(func(k uint32) []byte {
			return []byte("same")
		}, swiss.KV(uint32(0), 0), swiss.KV(uint32(1), 1))
	})
}

func TestTableEmpty(t *testing.T) {
	t.Parallel()

	tbl := swiss.New[uint32, int](func(k uint32) []byte { return nil })
	assert.Equal(t, 0, tbl.Len())
	assert.Nil(t, tbl.LookupFunc([]byte("anything")))
}

func TestHashStability(t *testing.T) {
	t.Parallel()

	a := swiss.Hash(0).Bytes([]byte("hello"))
	b := swiss.Hash(0).Bytes([]byte("hello"))
	assert.Equal(t, a, b)

	c := swiss.Hash(0).Bytes([]byte("hellp"))
	assert.NotEqual(t, a, c)

	// Seeding changes the result.
	d := swiss.Hash(1).Bytes([]byte("hello"))
	assert.NotEqual(t, a, d)
}
