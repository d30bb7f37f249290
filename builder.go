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
	"strconv"
	"unsafe"

	"github.com/reifylabs/reify/internal/xsync"
)

// Explicit shape declaration, for descriptors that plain Go types cannot
// express: payload-carrying enums, smart pointers with out-of-place
// constructors, opaque scalars with custom operations, borrowed references
// and unsized element views.
//
// All declaration errors panic: they are programming mistakes in a type's
// registration, not runtime conditions.

// VariantField pairs a payload field's logical name with the backing
// struct field that stores it.
type VariantField struct {
	Name    string
	Backing string
}

// VariantSpec declares one alternative of an enum shape.
type VariantSpec struct {
	Name   string
	Disc   int64
	Repr   VariantRepr
	Fields []VariantField
}

// UnitVariant declares a payload-free variant.
func UnitVariant(name string, disc int64) VariantSpec {
	return VariantSpec{Name: name, Disc: disc, Repr: ReprUnit}
}

// TupleVariant declares a variant with positional payload fields, named
// "0", "1", ... in order, each stored in the given backing struct field.
func TupleVariant(name string, disc int64, backing ...string) VariantSpec {
	vs := VariantSpec{Name: name, Disc: disc, Repr: ReprTuple}
	for i, b := range backing {
		vs.Fields = append(vs.Fields, VariantField{Name: strconv.Itoa(i), Backing: b})
	}
	return vs
}

// StructVariant declares a variant with named payload fields.
func StructVariant(name string, disc int64, fields ...VariantField) VariantSpec {
	return VariantSpec{Name: name, Disc: disc, Repr: ReprStruct, Fields: fields}
}

// NewEnumShape declares T as an enum. T must be a struct with one integer
// field holding the discriminant; each variant's payload lives in other
// fields of T, and only the selected variant's payload is live at any time.
//
// The discriminant's encoding (width and signedness) is taken from the
// backing field's type. The resulting shape replaces the struct derivation
// for T, so any shape referring to T sees the enum.
func NewEnumShape[T any](name, discField string, variants ...VariantSpec) *Shape {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("reify: enum backing type %v is not a struct", t))
	}

	compileMu.Lock()
	defer compileMu.Unlock()
	if _, ok := registry.Load(t); ok {
		panic(fmt.Sprintf("reify: %v already has a shape", t))
	}

	df, ok := t.FieldByName(discField)
	if !ok {
		panic(fmt.Sprintf("reify: enum %s: no discriminant field %q in %v", name, discField, t))
	}
	disc := discKindOf(df.Type)

	c := &compiler{done: make(map[reflect.Type]*Shape)}
	s := &Shape{
		name:        name,
		decl:        declOf(name),
		ty:          t,
		size:        int(t.Size()),
		align:       t.Align(),
		hasPointers: typeHasPointers(t),
	}
	c.done[t] = s

	def := &EnumDef{
		Disc:       disc,
		DiscOffset: int(df.Offset),
		byDisc:     make(map[int64]int, len(variants)),
	}
	names := make([]string, len(variants))
	for i, vs := range variants {
		if !disc.Fits(vs.Disc) {
			panic(fmt.Sprintf("reify: enum %s: discriminant %d does not fit %v",
				name, vs.Disc, df.Type))
		}
		if _, dup := def.byDisc[vs.Disc]; dup {
			panic(fmt.Sprintf("reify: enum %s: duplicate discriminant %d", name, vs.Disc))
		}

		v := Variant{Name: vs.Name, Disc: vs.Disc, Repr: vs.Repr}
		for _, vf := range vs.Fields {
			bf, ok := t.FieldByName(vf.Backing)
			if !ok {
				panic(fmt.Sprintf("reify: enum %s: variant %s: no backing field %q in %v",
					name, vs.Name, vf.Backing, t))
			}
			v.Fields = append(v.Fields, Field{
				Name:   vf.Name,
				Offset: int(bf.Offset),
				Shape:  c.compile(bf.Type),
			})
		}
		def.Variants = append(def.Variants, v)
		def.byDisc[vs.Disc] = i
		names[i] = vs.Name
	}
	def.byName = newFieldTable(names)
	s.def = def

	finishVTable(s, t)
	c.publish()
	return s
}

func discKindOf(t reflect.Type) DiscKind {
	switch t.Kind() {
	case reflect.Uint8:
		return DiscU8
	case reflect.Int8:
		return DiscI8
	case reflect.Uint16:
		return DiscU16
	case reflect.Int16:
		return DiscI16
	case reflect.Uint32:
		return DiscU32
	case reflect.Int32:
		return DiscI32
	case reflect.Uint64:
		return DiscU64
	case reflect.Int64:
		return DiscI64
	case reflect.Uint, reflect.Uintptr:
		return DiscWord
	case reflect.Int:
		if t.Size() == 8 {
			return DiscI64
		}
	}
	panic(fmt.Sprintf("reify: %v cannot encode an enum discriminant", t))
}

// NewSmartPtrShape declares P as a smart pointer over T. fromValue is the
// "new from completed value" constructor; borrow yields the pointee for
// reading, or nil when the pointer is empty.
//
// A plain *T needs no declaration; it derives as an owning box.
func NewSmartPtrShape[P, T any](name string, fromValue func(*T) P, borrow func(*P) *T) *Shape {
	pt := reflect.TypeFor[P]()

	compileMu.Lock()
	defer compileMu.Unlock()
	if _, ok := registry.Load(pt); ok {
		panic(fmt.Sprintf("reify: %v already has a shape", pt))
	}

	c := &compiler{done: make(map[reflect.Type]*Shape)}
	s := &Shape{
		name:        name,
		decl:        declOf(name),
		ty:          pt,
		size:        int(pt.Size()),
		align:       pt.Align(),
		hasPointers: typeHasPointers(pt),
	}
	c.done[pt] = s
	pointee := c.compile(reflect.TypeFor[T]())

	s.def = &SmartPtrDef{
		Pointee: pointee,
		New: func(dst, src unsafe.Pointer) {
			*(*P)(dst) = fromValue((*T)(src))
			zeroValue(pointee, src)
		},
		Borrow: func(p unsafe.Pointer) unsafe.Pointer {
			return unsafe.Pointer(borrow((*P)(p)))
		},
	}
	s.inner = pointee

	finishVTable(s, pt)
	c.publish()
	return s
}

// NewOpaqueShape declares T as an opaque scalar: a leaf the engine moves
// and stores but never looks inside. configure, if non-nil, overrides
// vtable entries (display, parse, equality, hashing and so on) after the
// structural defaults are installed.
func NewOpaqueShape[T any](name string, configure func(*VTable)) *Shape {
	t := reflect.TypeFor[T]()

	compileMu.Lock()
	defer compileMu.Unlock()
	if _, ok := registry.Load(t); ok {
		panic(fmt.Sprintf("reify: %v already has a shape", t))
	}

	s := &Shape{
		name:        name,
		decl:        declOf(name),
		ty:          t,
		size:        int(t.Size()),
		align:       t.Align(),
		hasPointers: typeHasPointers(t),
	}
	s.def = &ScalarDef{Scalar: ScalarOpaque}

	finishVTable(s, t)
	if configure != nil {
		prev := reflect.ValueOf(s.vt.Drop).Pointer()
		configure(&s.vt)
		if reflect.ValueOf(s.vt.Drop).Pointer() != prev {
			// A replaced drop entry is a hook: containers holding this
			// shape must dispatch into it.
			s.hasDropHook = true
		}
	}
	registry.Store(t, s)
	return s
}

type refKey struct {
	elem    *Shape
	mutable bool
}

var refShapes xsync.Map[refKey, *Shape]

// RefOf returns the borrowed-reference shape over elem. A shared reference
// is covariant; a mutable one is invariant, since writes through it can
// observe and violate narrowed windows.
//
// Reference shapes are singletons per (element, mutability) pair and do not
// replace the boxed derivation of *T.
func RefOf(elem *Shape, mutable bool) *Shape {
	s, _ := refShapes.LoadOrStore(refKey{elem, mutable}, func() *Shape {
		decl := "Ref"
		leaf := Covariant
		if mutable {
			decl = "MutRef"
			leaf = Invariant
		}
		pt := reflect.PointerTo(elem.ty)
		s := &Shape{
			name:        decl + "[" + elem.name + "]",
			decl:        decl,
			ty:          pt,
			size:        int(pt.Size()),
			align:       pt.Align(),
			hasPointers: true,
			leaf:        leaf,
		}
		s.def = &PointerDef{
			Elem:    elem,
			Mutable: mutable,
			Deref: func(p unsafe.Pointer) unsafe.Pointer {
				return *(*unsafe.Pointer)(p)
			},
		}
		s.inner = elem
		finishVTable(s, pt)
		return s
	})
	return s
}

var sliceShapes xsync.Map[*Shape, *Shape]

// SliceOf returns the unsized contiguous-view shape over elem. Unsized
// shapes describe data reached through references; they carry no layout,
// and allocating one directly fails with ErrUnsized.
func SliceOf(elem *Shape) *Shape {
	s, _ := sliceShapes.LoadOrStore(elem, func() *Shape {
		s := &Shape{
			name:    "Slice[" + elem.name + "]",
			decl:    "Slice",
			unsized: true,
		}
		s.def = &SliceDef{Elem: elem}
		s.inner = elem
		return s
	})
	return s
}
