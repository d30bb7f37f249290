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
	"unsafe"
)

// Indirect calling convention: every vtable entry receives a type-erased
// pointer plus the shape it belongs to, and must behave identically to the
// direct (concretely typed) operation for the same underlying type.
type (
	// DropFunc destroys the fully-initialized value at p, releasing
	// everything it owns. The memory is dead afterwards. Drop releases
	// resources only; it never writes through the value, whose referents
	// may be shared with storage the engine does not own.
	DropFunc func(p unsafe.Pointer, s *Shape)

	// DefaultFunc writes the type's default value over the zeroed memory
	// at p.
	DefaultFunc func(p unsafe.Pointer, s *Shape)

	// CloneFunc copies the value at src into the uninitialized memory at
	// dst.
	CloneFunc func(dst, src unsafe.Pointer, s *Shape) error

	// DisplayFunc renders the value at p for humans.
	DisplayFunc func(p unsafe.Pointer, s *Shape) string

	// DebugFunc renders the value at p for diagnostics, honoring
	// [FlagSensitive].
	DebugFunc func(p unsafe.Pointer, s *Shape) string

	// HashFunc mixes the value at p into seed.
	HashFunc func(p unsafe.Pointer, s *Shape, seed uint64) uint64

	// EqualFunc reports whether the values at a and b are equal.
	EqualFunc func(a, b unsafe.Pointer, s *Shape) bool

	// CompareFunc orders the values at a and b, returning -1, 0 or +1.
	CompareFunc func(a, b unsafe.Pointer, s *Shape) int

	// ParseFunc parses text into the uninitialized memory at dst.
	ParseFunc func(dst unsafe.Pointer, s *Shape, text string) error

	// TryFromFunc converts the value behind src into the uninitialized
	// memory at dst, failing when the conversion is not representable.
	TryFromFunc func(dst unsafe.Pointer, s *Shape, src Peek) error

	// ValidateFunc checks the fully-initialized value at p against the
	// type's declared invariant.
	ValidateFunc func(p unsafe.Pointer, s *Shape) error
)

// VTable is the operation dispatch table attached to a [Shape].
//
// Entries other than Drop, Default, Clone, Debug, Hash and Equal may be nil
// when the operation is not supported for the shape.
type VTable struct {
	Drop     DropFunc
	Default  DefaultFunc
	Clone    CloneFunc
	Display  DisplayFunc
	Debug    DebugFunc
	Hash     HashFunc
	Equal    EqualFunc
	Compare  CompareFunc
	Parse    ParseFunc
	TryFrom  TryFromFunc
	Validate ValidateFunc
}

// Dropper is implemented by types that want a hook run when a value of
// theirs is destroyed. The engine wires it into the shape's Drop entry.
type Dropper interface {
	Drop()
}

// Validator is implemented by types with a validity invariant; [Partial]
// runs it on every successful build. The engine wires it into the shape's
// Validate entry.
type Validator interface {
	Validate() error
}

// Direct-convention adapters. Each wraps an operation whose signature knows
// the concrete type into the indirect convention; the pair must be
// indistinguishable to callers.

// DropThunk adapts a typed drop hook. The hook releases resources only; it
// must not write through the value, whose referents may be shared.
func DropThunk[T any](f func(*T)) DropFunc {
	return func(p unsafe.Pointer, _ *Shape) {
		f((*T)(p))
	}
}

// DefaultThunk adapts a typed default constructor.
func DefaultThunk[T any](f func() T) DefaultFunc {
	return func(p unsafe.Pointer, _ *Shape) {
		*(*T)(p) = f()
	}
}

// CloneThunk adapts a typed clone operation.
func CloneThunk[T any](f func(*T) (T, error)) CloneFunc {
	return func(dst, src unsafe.Pointer, _ *Shape) error {
		v, err := f((*T)(src))
		if err != nil {
			return err
		}
		*(*T)(dst) = v
		return nil
	}
}

// DisplayThunk adapts a typed display operation.
func DisplayThunk[T any](f func(*T) string) DisplayFunc {
	return func(p unsafe.Pointer, _ *Shape) string {
		return f((*T)(p))
	}
}

// HashThunk adapts a typed hash operation.
func HashThunk[T any](f func(*T, uint64) uint64) HashFunc {
	return func(p unsafe.Pointer, _ *Shape, seed uint64) uint64 {
		return f((*T)(p), seed)
	}
}

// EqualThunk adapts a typed equality operation.
func EqualThunk[T any](f func(*T, *T) bool) EqualFunc {
	return func(a, b unsafe.Pointer, _ *Shape) bool {
		return f((*T)(a), (*T)(b))
	}
}

// CompareThunk adapts a typed ordering operation.
func CompareThunk[T any](f func(*T, *T) int) CompareFunc {
	return func(a, b unsafe.Pointer, _ *Shape) int {
		return f((*T)(a), (*T)(b))
	}
}

// ParseThunk adapts a typed text-parsing operation.
func ParseThunk[T any](f func(string) (T, error)) ParseFunc {
	return func(dst unsafe.Pointer, _ *Shape, text string) error {
		v, err := f(text)
		if err != nil {
			return err
		}
		*(*T)(dst) = v
		return nil
	}
}

// ValidateThunk adapts a typed invariant check.
func ValidateThunk[T any](f func(*T) error) ValidateFunc {
	return func(p unsafe.Pointer, _ *Shape) error {
		return f((*T)(p))
	}
}
