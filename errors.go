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
	"errors"
	"fmt"
)

// Sentinel errors for each failure class. Errors returned by this package
// match exactly one of these under [errors.Is].
var (
	// ErrShapeMismatch reports an operation invoked against a value or field
	// whose shape doesn't match what the operation expected.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNoSuchField reports a field name or index lookup failure.
	ErrNoSuchField = errors.New("no such field")

	// ErrNoSuchVariant reports a variant name or discriminant lookup failure.
	ErrNoSuchVariant = errors.New("no such variant")

	// ErrPartialInit reports a build attempted before every required slot
	// was initialized.
	ErrPartialInit = errors.New("value is partially initialized")

	// ErrInvariant reports a violated invariant: either a post-build
	// validation failure, or a broken stack-discipline rule.
	ErrInvariant = errors.New("invariant violation")

	// ErrUnsized reports an operation that requires a concrete byte size
	// attempted on a shape that has none.
	ErrUnsized = errors.New("type is unsized at runtime")

	// ErrAlloc reports that the underlying allocator could not satisfy a
	// request.
	ErrAlloc = errors.New("allocation failure")

	// ErrWindow reports an attempt to move a read-only view to a validity
	// window its shape's variance does not permit.
	ErrWindow = errors.New("validity window violation")
)

// shapeErr is the concrete error type returned by construction and reading
// operations. It pairs a sentinel with the shape and slot it concerns.
type shapeErr struct {
	sentinel error
	shape    *Shape
	slot     string // Field, variant, or path name; may be empty.
	detail   string
}

func errorf(sentinel error, shape *Shape, slot, format string, args ...any) error {
	return &shapeErr{
		sentinel: sentinel,
		shape:    shape,
		slot:     slot,
		detail:   fmt.Sprintf(format, args...),
	}
}

// Shape returns the shape the operation was targeting, if known.
func (e *shapeErr) Shape() *Shape { return e.shape }

// Slot returns the field or variant name the error concerns, if any.
func (e *shapeErr) Slot() string { return e.slot }

// Unwrap implements error unwrapping viz [errors.Unwrap].
func (e *shapeErr) Unwrap() error { return e.sentinel }

// Error implements [error].
func (e *shapeErr) Error() string {
	buf := "reify: " + e.sentinel.Error()
	if e.shape != nil {
		buf += ": " + e.shape.Name()
	}
	if e.slot != "" {
		buf += "." + e.slot
	}
	if e.detail != "" {
		buf += ": " + e.detail
	}
	return buf
}
