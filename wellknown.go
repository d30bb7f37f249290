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
	"bytes"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reifylabs/reify/internal/swiss"
)

// Opaque shapes for common foreign types. Each registers on first use, so
// merely importing the package claims none of the backing types.

var uuidShape = sync.OnceValue(func() *Shape {
	return NewOpaqueShape[uuid.UUID]("uuid.UUID", func(vt *VTable) {
		vt.Display = DisplayThunk(func(u *uuid.UUID) string { return u.String() })
		vt.Parse = ParseThunk(uuid.Parse)
		vt.Equal = EqualThunk(func(a, b *uuid.UUID) bool { return *a == *b })
		vt.Hash = HashThunk(func(u *uuid.UUID, seed uint64) uint64 {
			return uint64(swiss.Hash(seed).Bytes(u[:]))
		})
		vt.Compare = CompareThunk(func(a, b *uuid.UUID) int {
			return bytes.Compare(a[:], b[:])
		})
	})
})

// UUIDShape returns the opaque shape for uuid.UUID, with textual display
// and parse operations.
func UUIDShape() *Shape { return uuidShape() }

var timeShape = sync.OnceValue(func() *Shape {
	return NewOpaqueShape[time.Time]("time.Time", func(vt *VTable) {
		vt.Display = DisplayThunk(func(t *time.Time) string {
			return t.Format(time.RFC3339Nano)
		})
		vt.Parse = ParseThunk(func(text string) (time.Time, error) {
			return time.Parse(time.RFC3339Nano, text)
		})
		vt.Equal = EqualThunk(func(a, b *time.Time) bool { return a.Equal(*b) })
		vt.Hash = HashThunk(func(t *time.Time, seed uint64) uint64 {
			h := swiss.Hash(seed).U64(uint64(t.Unix()))
			return uint64(h.U64(uint64(t.Nanosecond())))
		})
		vt.Compare = CompareThunk(func(a, b *time.Time) int { return a.Compare(*b) })
	})
})

// TimeShape returns the opaque shape for time.Time. Equality and ordering
// follow time.Time's own semantics, not its memory representation.
func TimeShape() *Shape { return timeShape() }

var durationShape = sync.OnceValue(func() *Shape {
	return NewOpaqueShape[time.Duration]("time.Duration", func(vt *VTable) {
		vt.Display = DisplayThunk(func(d *time.Duration) string { return d.String() })
		vt.Parse = ParseThunk(time.ParseDuration)
		vt.Compare = CompareThunk(func(a, b *time.Duration) int {
			switch {
			case *a < *b:
				return -1
			case *a > *b:
				return 1
			default:
				return 0
			}
		})
	})
})

// DurationShape returns the opaque shape for time.Duration.
func DurationShape() *Shape { return durationShape() }
