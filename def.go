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
	"iter"
	"unsafe"
)

// Kind classifies the structural definition of a [Shape].
type Kind int

const (
	KindScalar Kind = iota
	KindStruct
	KindEnum
	KindList
	KindMap
	KindSet
	KindOption
	KindResult
	KindArray
	KindSlice
	KindPointer
	KindSmartPtr
)

var kindNames = [...]string{
	KindScalar:   "scalar",
	KindStruct:   "struct",
	KindEnum:     "enum",
	KindList:     "list",
	KindMap:      "map",
	KindSet:      "set",
	KindOption:   "option",
	KindResult:   "result",
	KindArray:    "array",
	KindSlice:    "slice",
	KindPointer:  "pointer",
	KindSmartPtr: "smart pointer",
}

// String implements [fmt.Stringer].
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Def is the structural definition of a shape: everything an engine needs to
// manipulate values of that shape beyond its raw layout.
//
// A Def is exactly one of [ScalarDef], [StructDef], [EnumDef], [ListDef],
// [MapDef], [SetDef], [OptionDef], [ResultDef], [ArrayDef], [SliceDef],
// [PointerDef], or [SmartPtrDef].
type Def interface {
	Kind() Kind
	isDef()
}

// ScalarKind classifies a scalar shape.
type ScalarKind int

const (
	ScalarBool ScalarKind = iota
	ScalarInt8
	ScalarInt16
	ScalarInt32
	ScalarInt64
	ScalarInt
	ScalarUint8
	ScalarUint16
	ScalarUint32
	ScalarUint64
	ScalarUint
	ScalarUintptr
	ScalarFloat32
	ScalarFloat64
	ScalarString
	ScalarBytes

	// ScalarOpaque is a scalar the engine cannot see inside: equality,
	// hashing, display and parsing all come from its shape's vtable.
	ScalarOpaque
)

// ScalarDef describes a scalar shape.
type ScalarDef struct {
	Scalar ScalarKind
}

func (*ScalarDef) Kind() Kind { return KindScalar }
func (*ScalarDef) isDef()     {}

// StructDef describes a struct shape: an ordered collection of named fields
// at fixed offsets.
type StructDef struct {
	Fields []Field

	byName *fieldTable
}

func (*StructDef) Kind() Kind { return KindStruct }
func (*StructDef) isDef()     {}

// FieldByName returns the index and descriptor of the named field, or
// (-1, nil) if there is no such field.
func (d *StructDef) FieldByName(name string) (int, *Field) {
	return d.byName.lookup(d.Fields, name)
}

// EnumDef describes a tagged-union shape: a discriminant at a fixed offset
// selecting one of a set of variants, each with its own payload fields.
//
// The backing layout holds the discriminant plus every variant's fields at
// non-overlapping offsets; only the selected variant's fields are
// meaningful.
type EnumDef struct {
	Disc       DiscKind
	DiscOffset int
	Variants   []Variant

	byName *fieldTable
	byDisc map[int64]int
}

func (*EnumDef) Kind() Kind { return KindEnum }
func (*EnumDef) isDef()     {}

// VariantByName returns the index and descriptor of the named variant, or
// (-1, nil).
func (d *EnumDef) VariantByName(name string) (int, *Variant) {
	v := d.byName.table.LookupFunc([]byte(name))
	if v == nil {
		return -1, nil
	}
	return int(*v), &d.Variants[*v]
}

// VariantByDisc returns the index and descriptor of the variant with the
// given discriminant value, or (-1, nil).
func (d *EnumDef) VariantByDisc(disc int64) (int, *Variant) {
	n, ok := d.byDisc[disc]
	if !ok {
		return -1, nil
	}
	return n, &d.Variants[n]
}

// ListDef describes a growable sequence shape.
//
// The thunks are compiled when the shape is; they are the only way the
// engine touches the backing storage.
type ListDef struct {
	Elem *Shape

	// Len returns the element count of the list at p.
	Len func(p unsafe.Pointer) int
	// At returns a pointer to the ith element of the list at p.
	At func(p unsafe.Pointer, i int) unsafe.Pointer
	// Append moves the completed element at elem onto the end of the list
	// at list. The element's storage is dead afterwards.
	Append func(list, elem unsafe.Pointer)
}

func (*ListDef) Kind() Kind { return KindList }
func (*ListDef) isDef()     {}

// MapDef describes a keyed-collection shape.
type MapDef struct {
	Key, Value *Shape

	// Init makes the map at p empty and ready for insertion.
	Init func(p unsafe.Pointer)
	// Len returns the entry count of the map at p.
	Len func(p unsafe.Pointer) int
	// Insert moves the completed key and value into the map at m. Both
	// scratch storages are dead afterwards.
	Insert func(m, k, v unsafe.Pointer)
	// All ranges over the entries of the map at p. The yielded pointers
	// refer to per-entry scratch that is only valid for that iteration.
	All func(p unsafe.Pointer) iter.Seq2[unsafe.Pointer, unsafe.Pointer]
}

func (*MapDef) Kind() Kind { return KindMap }
func (*MapDef) isDef()     {}

// SetDef describes an unordered unique-element collection shape.
type SetDef struct {
	Elem *Shape

	Init   func(p unsafe.Pointer)
	Len    func(p unsafe.Pointer) int
	Insert func(s, e unsafe.Pointer)
	All    func(p unsafe.Pointer) iter.Seq[unsafe.Pointer]
}

func (*SetDef) Kind() Kind { return KindSet }
func (*SetDef) isDef()     {}

// OptionEncoding selects how an option shape stores its state.
type OptionEncoding int

const (
	// OptionFlag is a flag byte plus an in-line payload.
	OptionFlag OptionEncoding = iota
	// OptionPointer is a nil-able pointer to an out-of-line payload.
	OptionPointer
)

// OptionDef describes an optional-value shape.
type OptionDef struct {
	Inner    *Shape
	Encoding OptionEncoding

	// For OptionFlag, the offsets of the flag byte and payload.
	FlagOffset, PayloadOffset int

	// IsSome reports whether the option at p holds a value.
	IsSome func(p unsafe.Pointer) bool
	// Payload returns a pointer to the held value. Only valid when IsSome.
	Payload func(p unsafe.Pointer) unsafe.Pointer
	// SetSome moves the completed value at v into the option at p, marking
	// it present. The scratch storage at v is dead afterwards.
	SetSome func(p, v unsafe.Pointer)
	// SetNone marks the option at p empty.
	SetNone func(p unsafe.Pointer)
}

func (*OptionDef) Kind() Kind { return KindOption }
func (*OptionDef) isDef()     {}

// ResultDef describes a fallible-value shape: exactly one of an ok payload
// or an error payload, selected by a tag byte.
type ResultDef struct {
	Ok, Err *Shape

	TagOffset, OkOffset, ErrOffset int
}

func (*ResultDef) Kind() Kind { return KindResult }
func (*ResultDef) isDef()     {}

// ArrayDef describes a fixed-length in-line sequence shape.
type ArrayDef struct {
	Elem *Shape
	N    int
}

func (*ArrayDef) Kind() Kind { return KindArray }
func (*ArrayDef) isDef()     {}

// SliceDef describes an unsized element-sequence view. Shapes with this def
// have no layout of their own and cannot be allocated directly; they exist
// so wrapper shapes can point at them.
type SliceDef struct {
	Elem *Shape
}

func (*SliceDef) Kind() Kind { return KindSlice }
func (*SliceDef) isDef()     {}

// PointerDef describes a borrowed reference.
//
// A mutable reference pins its shape's variance to invariant; an immutable
// one is covariant. Elem is nil for fully opaque pointers
// (unsafe.Pointer), which are treated as mutable.
type PointerDef struct {
	Elem    *Shape
	Mutable bool

	// Deref returns a pointer to the referent, or nil. May be nil for
	// opaque pointers.
	Deref func(p unsafe.Pointer) unsafe.Pointer
}

func (*PointerDef) Kind() Kind { return KindPointer }
func (*PointerDef) isDef()     {}

// SmartPtrDef describes an owning indirection (a box, or a handle with its
// own control block).
//
// Construction is not "initialize in place": New consumes a completed
// pointee value and produces the smart pointer from it, which is why
// [Partial] defers completion of smart-pointer frames.
type SmartPtrDef struct {
	Pointee *Shape

	// New constructs the smart pointer at dst from the completed pointee
	// value at src, consuming it.
	New func(dst, src unsafe.Pointer)
	// Borrow returns a pointer to the pointee, or nil if the smart pointer
	// at p is empty.
	Borrow func(p unsafe.Pointer) unsafe.Pointer
}

func (*SmartPtrDef) Kind() Kind { return KindSmartPtr }
func (*SmartPtrDef) isDef()     {}
