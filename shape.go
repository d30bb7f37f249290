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
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/reifylabs/reify/internal/xunsafe"
)

// Shape is an immutable, process-wide descriptor of one type: its memory
// layout, its structural definition, and its operation table.
//
// Exactly one *Shape exists per distinct type per process; [For] and [Of]
// always return the same pointer for the same type. A Shape is never
// mutated after it becomes observable, so it may be read concurrently
// without locking.
type Shape struct {
	_ xunsafe.NoCopy

	name string
	decl string // Declaration identity; generic instantiations share it.

	ty          reflect.Type // Backing type. Nil only for unsized shapes.
	size, align int
	unsized     bool
	hasPointers bool

	def   Def
	vt    VTable
	inner *Shape // Inner type link for wrapper shapes.

	// Set when the declaration carries a [Dropper] hook somewhere the
	// structural drop cannot reach in place (map and set entries).
	hasDropHook bool

	// Variance leaf contribution of this shape, before folding children.
	leaf Variance

	// Cached variance classification: 0 when not yet computed, else
	// Variance+1. Benign races converge because the computation is pure.
	variance atomic.Int32
}

// Name returns the shape's human-readable type identifier.
func (s *Shape) Name() string { return s.name }

// Decl returns the shape's declaration identity. Generic instantiations of
// one declaration (for example Option[int32] and Option[string]) share it.
func (s *Shape) Decl() string { return s.decl }

// Def returns the shape's structural definition.
func (s *Shape) Def() Def { return s.def }

// VTable returns the shape's operation table.
func (s *Shape) VTable() *VTable { return &s.vt }

// Inner returns the wrapped shape for wrapper shapes (options, smart
// pointers, references), or nil.
func (s *Shape) Inner() *Shape { return s.inner }

// Sized reports whether the shape has a concrete byte size.
func (s *Shape) Sized() bool { return !s.unsized }

// Layout returns the shape's size and alignment in bytes.
//
// Fails with [ErrUnsized] for shapes with no runtime size.
func (s *Shape) Layout() (size, align int, err error) {
	if s.unsized {
		return 0, 0, errorf(ErrUnsized, s, "", "")
	}
	return s.size, s.align, nil
}

// Type returns the shape's backing [reflect.Type], or nil for unsized
// shapes.
func (s *Shape) Type() reflect.Type { return s.ty }

// Format implements [fmt.Formatter].
func (s *Shape) Format(f fmt.State, verb rune) {
	if f.Flag('#') {
		fmt.Fprintf(f, "%s{%p, %s, %d:%d}", s.name, s, s.def.Kind(), s.size, s.align)
		return
	}
	fmt.Fprintf(f, fmt.FormatString(f, verb), s.name)
}

// Dump renders the shape's layout for debugging: kind, size, alignment,
// variance, and the offset of every field or variant.
func (s *Shape) Dump() string {
	buf := new(strings.Builder)
	fmt.Fprintf(buf, "%s: %s, %d:%d, %v\n", s.name, s.def.Kind(), s.size, s.align, s.Variance())

	switch def := s.def.(type) {
	case *StructDef:
		for i := range def.Fields {
			f := &def.Fields[i]
			fmt.Fprintf(buf, "  %#04x %s: %s\n", f.Offset, f.Name, f.Shape.Name())
		}
	case *EnumDef:
		fmt.Fprintf(buf, "  %#04x disc: %d bytes\n", def.DiscOffset, def.Disc.Width())
		for i := range def.Variants {
			v := &def.Variants[i]
			fmt.Fprintf(buf, "  %s = %d\n", v.Name, v.Disc)
			for j := range v.Fields {
				f := &v.Fields[j]
				fmt.Fprintf(buf, "    %#04x %s: %s\n", f.Offset, f.Name, f.Shape.Name())
			}
		}
	}
	if s.inner != nil {
		fmt.Fprintf(buf, "  inner: %s\n", s.inner.Name())
	}
	return buf.String()
}

// declOf strips the type-argument list off a generic instantiation's name,
// so Option[int32] and Option[string] group under one declaration.
func declOf(name string) string {
	if i := strings.IndexByte(name, '['); i >= 0 {
		return name[:i]
	}
	return name
}
