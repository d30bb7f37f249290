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
)

// HeapValue owns one completed value on the Go heap. It is the result of a
// successful Partial build: the value is fully initialized and the handle
// is responsible for dropping it exactly once.
type HeapValue struct {
	shape *Shape
	ptr   unsafe.Pointer
	freed bool
}

// newHeapValue moves the completed value at src into fresh owned storage.
func newHeapValue(s *Shape, src unsafe.Pointer) *HeapValue {
	h := &HeapValue{shape: s}
	if s.size == 0 {
		h.ptr = unsafe.Pointer(&zeroSizedSlot)
		return h
	}
	h.ptr = reflect.New(s.ty).UnsafePointer()
	moveValue(s, h.ptr, src)
	return h
}

// Shape returns the shape of the held value.
func (h *HeapValue) Shape() *Shape { return h.shape }

// Peek borrows the held value for reading. The view is valid until Free.
func (h *HeapValue) Peek() Peek {
	return Peek{shape: h.shape, ptr: h.ptr, win: rootWindow}
}

// Interface returns the held value boxed as the backing Go type. The value
// is copied shallowly; the handle still owns the original.
func (h *HeapValue) Interface() any {
	return reflect.NewAt(h.shape.ty, h.ptr).Elem().Interface()
}

// Free drops the held value and retires the handle. Freeing twice is an
// error, and the value is not dropped again.
func (h *HeapValue) Free() error {
	if h.freed {
		return errorf(ErrInvariant, h.shape, "", "value already freed")
	}
	h.freed = true
	h.shape.vt.Drop(h.ptr, h.shape)
	zeroValue(h.shape, h.ptr)
	h.ptr = nil
	return nil
}

// ValueAs clones the held value out as a T. The handle remains valid and
// keeps ownership.
func ValueAs[T any](h *HeapValue) (T, error) {
	var out T
	if h.freed {
		return out, errorf(ErrInvariant, h.shape, "", "value already freed")
	}
	want := For[T]()
	if want != h.shape {
		return out, errorf(ErrShapeMismatch, h.shape, "", "value is %s, not %s",
			h.shape.name, want.name)
	}
	if err := h.shape.vt.Clone(unsafe.Pointer(&out), h.ptr, h.shape); err != nil {
		return out, err
	}
	return out, nil
}

// Take moves the held value out as a T, retiring the handle without
// dropping: ownership transfers to the returned value.
func Take[T any](h *HeapValue) (T, error) {
	var out T
	if h.freed {
		return out, errorf(ErrInvariant, h.shape, "", "value already freed")
	}
	want := For[T]()
	if want != h.shape {
		return out, errorf(ErrShapeMismatch, h.shape, "", "value is %s, not %s",
			h.shape.name, want.name)
	}
	moveValue(h.shape, unsafe.Pointer(&out), h.ptr)
	h.freed = true
	h.ptr = nil
	return out, nil
}
