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

// Option is an optional value: either empty, or holding one T.
//
// The shape compiler recognizes Option instantiations and derives an
// option definition (flag encoding) instead of a plain struct one.
type Option[T any] struct {
	set bool
	val T
}

// Some returns an option holding v.
func Some[T any](v T) Option[T] {
	return Option[T]{set: true, val: v}
}

// None returns an empty option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// IsSome reports whether the option holds a value.
func (o Option[T]) IsSome() bool { return o.set }

// Get returns the held value and whether one is present.
func (o Option[T]) Get() (T, bool) { return o.val, o.set }

// MustGet returns the held value, panicking on an empty option.
func (o Option[T]) MustGet() T {
	if !o.set {
		panic("reify: MustGet on empty Option")
	}
	return o.val
}

// Result is a fallible value: exactly one of an ok T or an error E.
//
// The zero Result holds the zero ok value. The shape compiler recognizes
// Result instantiations and derives a result definition instead of a plain
// struct one.
type Result[T, E any] struct {
	tag uint8 // 0 = ok, 1 = err
	ok  T
	err E
}

// Ok returns a result holding the ok value v.
func Ok[T, E any](v T) Result[T, E] {
	return Result[T, E]{tag: 0, ok: v}
}

// Err returns a result holding the error value e.
func Err[T, E any](e E) Result[T, E] {
	return Result[T, E]{tag: 1, err: e}
}

// IsOk reports whether the result holds an ok value.
func (r Result[T, E]) IsOk() bool { return r.tag == 0 }

// Get returns the ok value and whether the result holds one.
func (r Result[T, E]) Get() (T, bool) { return r.ok, r.tag == 0 }

// GetErr returns the error value and whether the result holds one.
func (r Result[T, E]) GetErr() (E, bool) { return r.err, r.tag == 1 }
