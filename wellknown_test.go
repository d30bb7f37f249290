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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifylabs/reify"
)

func TestUUIDShape(t *testing.T) {
	t.Parallel()

	s := reify.UUIDShape()
	assert.Same(t, s, reify.For[uuid.UUID]())

	def, ok := s.Def().(*reify.ScalarDef)
	require.True(t, ok)
	assert.Equal(t, reify.ScalarOpaque, def.Scalar)

	u := uuid.MustParse("01234567-89ab-cdef-0123-456789abcdef")
	p := reify.PeekAt(&u)
	assert.Equal(t, u.String(), p.Display())

	// Equality and hashing see the bytes, not the formatting.
	v := u
	assert.True(t, p.Equal(reify.PeekAt(&v)))
	assert.Equal(t, p.Hash(7), reify.PeekAt(&v).Hash(7))

	w := uuid.New()
	assert.False(t, p.Equal(reify.PeekAt(&w)))
}

func TestTimeShape(t *testing.T) {
	t.Parallel()

	s := reify.TimeShape()
	assert.Same(t, s, reify.For[time.Time]())

	// Equality follows time.Time semantics: same instant, different
	// location.
	utc := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	elsewhere := utc.In(time.FixedZone("X", 3600))
	assert.True(t, reify.PeekAt(&utc).Equal(reify.PeekAt(&elsewhere)))
	assert.Equal(t,
		reify.PeekAt(&utc).Hash(1),
		reify.PeekAt(&elsewhere).Hash(1))
}

func TestDurationShape(t *testing.T) {
	t.Parallel()

	s := reify.DurationShape()
	assert.Same(t, s, reify.For[time.Duration]())

	d := 90 * time.Second
	assert.Equal(t, "1m30s", reify.PeekAt(&d).Display())
}

func TestOpaqueShapesBuild(t *testing.T) {
	t.Parallel()

	type event struct {
		ID uuid.UUID
		At time.Time
	}
	reify.UUIDShape()
	reify.TimeShape()

	id := uuid.New()
	now := time.Now()

	p := reify.Alloc[event]()
	require.NoError(t, p.SetField("ID", id))
	require.NoError(t, p.SetField("At", now))
	h, err := p.Build()
	require.NoError(t, err)

	v, err := reify.Take[event](h)
	require.NoError(t, err)
	assert.Equal(t, id, v.ID)
	assert.True(t, now.Equal(v.At))
}
