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
	"reflect"
	"unsafe"

	"github.com/reifylabs/reify/internal/arena"
	"github.com/reifylabs/reify/internal/debug"
)

// zeroSizedSlot backs every allocation of a zero-sized shape. It is never
// written; all zero-sized values share it.
var zeroSizedSlot uint64

// Guard is scoped temporary storage for a single value of one shape.
//
// The storage starts zeroed and uninitialized. The owner writes a value and
// marks it initialized, then either moves the value out (Move) or lets
// Release drop it. Release is the single choke point: it runs the drop
// operation exactly once for an initialized, un-moved value and never for
// anything else.
type Guard struct {
	shape *Shape
	ptr   unsafe.Pointer

	init     bool
	moved    bool
	released bool
}

// NewGuard allocates guarded storage for the given shape on the Go heap.
func NewGuard(s *Shape) (*Guard, error) {
	return newGuard(nil, s)
}

// newGuard allocates guarded storage, drawing pointer-free layouts from a
// when it is non-nil. Pointer-bearing layouts always get GC-typed storage
// through the shape's backing type.
func newGuard(a *arena.Arena, s *Shape) (*Guard, error) {
	if s.unsized {
		return nil, errorf(ErrUnsized, s, "", "cannot allocate an unsized shape")
	}

	g := &Guard{shape: s}
	switch {
	case s.size == 0:
		g.ptr = unsafe.Pointer(&zeroSizedSlot)
	case !s.hasPointers && a != nil:
		g.ptr = a.Alloc(s.size)
	default:
		if s.ty == nil {
			return nil, errorf(ErrAlloc, s, "", "shape has no backing storage type")
		}
		g.ptr = reflect.New(s.ty).UnsafePointer()
	}
	debug.Log([]any{"guard %p", g.ptr}, "alloc", "%s", s.name)
	return g, nil
}

// Shape returns the shape the storage was allocated for.
func (g *Guard) Shape() *Shape { return g.shape }

// Ptr returns the storage. It stays valid until Release.
func (g *Guard) Ptr() unsafe.Pointer { return g.ptr }

// Initialized reports whether the storage holds a live value.
func (g *Guard) Initialized() bool { return g.init && !g.moved }

// MarkInit records that the storage now holds a fully built value, making
// Release responsible for dropping it.
func (g *Guard) MarkInit() { g.init = true }

// Default writes the shape's default value and marks the storage
// initialized.
func (g *Guard) Default() error {
	if g.init {
		return errorf(ErrInvariant, g.shape, "", "guard already initialized")
	}
	g.shape.vt.Default(g.ptr, g.shape)
	g.init = true
	return nil
}

// Move hands the value's ownership to the caller and returns the storage;
// Release will no longer drop it. The caller must consume the value before
// the guard is released.
func (g *Guard) Move() unsafe.Pointer {
	debug.Assert(g.init && !g.moved, "moving out of a dead guard")
	g.moved = true
	return g.ptr
}

// Release drops the held value if there is one and retires the guard.
// Releasing twice is a no-op.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	if g.init && !g.moved {
		g.shape.vt.Drop(g.ptr, g.shape)
	}
	g.ptr = nil
}
