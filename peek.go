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
	"reflect"
	"unsafe"
)

// Window is a validity token for borrowed views. Windows form a tree:
// Narrow creates a child covering a strictly smaller validity region, and a
// view may only ever be restricted toward a descendant, never widened.
type Window struct {
	parent *Window
}

// rootWindow covers the lifetime of an owning handle.
var rootWindow = &Window{}

// Narrow returns a child window: a strictly smaller validity region.
func (w *Window) Narrow() *Window {
	return &Window{parent: w}
}

// Encloses reports whether o's region is within w's, that is, whether o is
// w or a descendant of w.
func (w *Window) Encloses(o *Window) bool {
	for ; o != nil; o = o.parent {
		if o == w {
			return true
		}
	}
	return false
}

// Peek is a read-only, type-erased view of a value. It is a small value
// type; copies view the same storage. The zero Peek is invalid.
type Peek struct {
	shape *Shape
	ptr   unsafe.Pointer
	win   *Window
}

// PeekAt views the value at v. The view is valid while v is.
func PeekAt[T any](v *T) Peek {
	return Peek{shape: For[T](), ptr: unsafe.Pointer(v), win: rootWindow}
}

// Shape returns the viewed value's shape.
func (p Peek) Shape() *Shape { return p.shape }

// Window returns the view's validity token.
func (p Peek) Window() *Window { return p.win }

// Restrict re-scopes the view to a narrower validity window. It is a
// checked operation, never an implicit cast: the target must be enclosed by
// the current window, and the shape's variance must permit shrinking.
// Invariant shapes cannot be restricted at all.
func (p Peek) Restrict(w *Window) (Peek, error) {
	if p.shape.Variance() == Invariant {
		return Peek{}, errorf(ErrWindow, p.shape, "", "invariant shape cannot be restricted")
	}
	if !p.win.Encloses(w) {
		return Peek{}, errorf(ErrWindow, p.shape, "", "window is not a narrowing of the view's")
	}
	return Peek{shape: p.shape, ptr: p.ptr, win: w}, nil
}

// sub derives a child view sharing p's window.
func (p Peek) sub(s *Shape, q unsafe.Pointer) Peek {
	return Peek{shape: s, ptr: q, win: p.win}
}

// String renders the value for diagnostics, honoring sensitive-field
// redaction.
func (p Peek) String() string {
	return p.shape.vt.Debug(p.ptr, p.shape)
}

// Display renders the value with its display operation, falling back to the
// diagnostic rendering when the shape has none.
func (p Peek) Display() string {
	if d := p.shape.vt.Display; d != nil {
		return d(p.ptr, p.shape)
	}
	return p.String()
}

// Interface returns the value boxed as its backing Go type, copied
// shallowly.
func (p Peek) Interface() any {
	return reflect.NewAt(p.shape.ty, p.ptr).Elem().Interface()
}

// Equal reports whether two views hold equal values of the same shape.
func (p Peek) Equal(o Peek) bool {
	return p.shape == o.shape && p.shape.vt.Equal(p.ptr, o.ptr, p.shape)
}

// Hash mixes the value into seed with the shape's hash operation.
func (p Peek) Hash(seed uint64) uint64 {
	return p.shape.vt.Hash(p.ptr, p.shape, seed)
}

// Scalar extraction. Each accessor checks the def kind and returns
// ErrShapeMismatch when the view is not that scalar.

func (p Peek) scalar() (*ScalarDef, error) {
	if def, ok := p.shape.def.(*ScalarDef); ok {
		return def, nil
	}
	return nil, errorf(ErrShapeMismatch, p.shape, "", "not a scalar")
}

// Bool extracts a boolean scalar.
func (p Peek) Bool() (bool, error) {
	def, err := p.scalar()
	if err != nil || def.Scalar != ScalarBool {
		return false, errorf(ErrShapeMismatch, p.shape, "", "not a bool")
	}
	return *(*bool)(p.ptr), nil
}

// Int extracts any signed integer scalar, sign-extended.
func (p Peek) Int() (int64, error) {
	def, err := p.scalar()
	if err != nil || !def.Scalar.signed() {
		return 0, errorf(ErrShapeMismatch, p.shape, "", "not a signed integer")
	}
	return loadInt(p.ptr, p.shape.size, true), nil
}

// Uint extracts any unsigned integer scalar, zero-extended.
func (p Peek) Uint() (uint64, error) {
	def, err := p.scalar()
	if err != nil || !def.Scalar.unsigned() {
		return 0, errorf(ErrShapeMismatch, p.shape, "", "not an unsigned integer")
	}
	return uint64(loadInt(p.ptr, p.shape.size, false)), nil
}

// Float extracts a floating-point scalar, widened to float64.
func (p Peek) Float() (float64, error) {
	def, err := p.scalar()
	if err != nil || !def.Scalar.float() {
		return 0, errorf(ErrShapeMismatch, p.shape, "", "not a float")
	}
	if def.Scalar == ScalarFloat32 {
		return float64(*(*float32)(p.ptr)), nil
	}
	return *(*float64)(p.ptr), nil
}

// Str extracts a string scalar.
func (p Peek) Str() (string, error) {
	def, err := p.scalar()
	if err != nil || def.Scalar != ScalarString {
		return "", errorf(ErrShapeMismatch, p.shape, "", "not a string")
	}
	return *(*string)(p.ptr), nil
}

// Bytes extracts a byte-string scalar. The returned slice aliases the
// viewed storage.
func (p Peek) Bytes() ([]byte, error) {
	def, err := p.scalar()
	if err != nil || def.Scalar != ScalarBytes {
		return nil, errorf(ErrShapeMismatch, p.shape, "", "not a byte string")
	}
	return *(*[]byte)(p.ptr), nil
}

// PeekStruct is a struct view.
type PeekStruct struct {
	p   Peek
	def *StructDef
}

// Struct narrows the view to a struct.
func (p Peek) Struct() (PeekStruct, error) {
	def, ok := p.shape.def.(*StructDef)
	if !ok {
		return PeekStruct{}, errorf(ErrShapeMismatch, p.shape, "", "not a struct")
	}
	return PeekStruct{p: p, def: def}, nil
}

// NumFields returns the field count.
func (ps PeekStruct) NumFields() int { return len(ps.def.Fields) }

// Field returns the ith field's descriptor and value view.
func (ps PeekStruct) Field(i int) (*Field, Peek) {
	f := &ps.def.Fields[i]
	return f, ps.p.sub(f.Shape, unsafe.Add(ps.p.ptr, f.Offset))
}

// FieldByName returns the named field's value view.
func (ps PeekStruct) FieldByName(name string) (Peek, error) {
	i, f := ps.def.FieldByName(name)
	if f == nil {
		return Peek{}, errorf(ErrNoSuchField, ps.p.shape, name, "no field %q", name)
	}
	_, p := ps.Field(i)
	return p, nil
}

// Fields iterates the fields in declaration order.
func (ps PeekStruct) Fields() iter.Seq2[*Field, Peek] {
	return func(yield func(*Field, Peek) bool) {
		for i := range ps.def.Fields {
			f, p := ps.Field(i)
			if !yield(f, p) {
				return
			}
		}
	}
}

// PeekEnum is an enum view.
type PeekEnum struct {
	p   Peek
	def *EnumDef
}

// Enum narrows the view to an enum.
func (p Peek) Enum() (PeekEnum, error) {
	def, ok := p.shape.def.(*EnumDef)
	if !ok {
		return PeekEnum{}, errorf(ErrShapeMismatch, p.shape, "", "not an enum")
	}
	return PeekEnum{p: p, def: def}, nil
}

// Disc returns the discriminant value, extended per the enum's encoding.
func (pe PeekEnum) Disc() int64 {
	return pe.def.Disc.load(unsafe.Add(pe.p.ptr, pe.def.DiscOffset))
}

// Variant returns the selected variant, or ErrNoSuchVariant when the
// discriminant matches no declared variant.
func (pe PeekEnum) Variant() (*Variant, error) {
	disc := pe.Disc()
	_, v := pe.def.VariantByDisc(disc)
	if v == nil {
		return nil, errorf(ErrNoSuchVariant, pe.p.shape, "", "no variant with discriminant %d", disc)
	}
	return v, nil
}

// Field returns the value view of the selected variant's ith payload field.
func (pe PeekEnum) Field(v *Variant, i int) Peek {
	f := &v.Fields[i]
	return pe.p.sub(f.Shape, unsafe.Add(pe.p.ptr, f.Offset))
}

// FieldByName returns the value view of the selected variant's named
// payload field.
func (pe PeekEnum) FieldByName(v *Variant, name string) (Peek, error) {
	i, f := v.FieldByName(name)
	if f == nil {
		return Peek{}, errorf(ErrNoSuchField, pe.p.shape, name,
			"variant %s has no field %q", v.Name, name)
	}
	return pe.Field(v, i), nil
}

// PeekList is a sequence view, covering both growable lists and fixed
// arrays.
type PeekList struct {
	p    Peek
	elem *Shape
	n    int
	at   func(i int) unsafe.Pointer
}

// List narrows the view to a sequence.
func (p Peek) List() (PeekList, error) {
	switch def := p.shape.def.(type) {
	case *ListDef:
		return PeekList{
			p:    p,
			elem: def.Elem,
			n:    def.Len(p.ptr),
			at:   func(i int) unsafe.Pointer { return def.At(p.ptr, i) },
		}, nil
	case *ArrayDef:
		size := def.Elem.size
		return PeekList{
			p:    p,
			elem: def.Elem,
			n:    def.N,
			at:   func(i int) unsafe.Pointer { return unsafe.Add(p.ptr, i*size) },
		}, nil
	}
	return PeekList{}, errorf(ErrShapeMismatch, p.shape, "", "not a sequence")
}

// Len returns the element count.
func (pl PeekList) Len() int { return pl.n }

// At returns the ith element's view.
func (pl PeekList) At(i int) Peek {
	return pl.p.sub(pl.elem, pl.at(i))
}

// All iterates the elements in order.
func (pl PeekList) All() iter.Seq[Peek] {
	return func(yield func(Peek) bool) {
		for i := range pl.n {
			if !yield(pl.At(i)) {
				return
			}
		}
	}
}

// PeekMap is a map view.
type PeekMap struct {
	p   Peek
	def *MapDef
}

// Map narrows the view to a map.
func (p Peek) Map() (PeekMap, error) {
	def, ok := p.shape.def.(*MapDef)
	if !ok {
		return PeekMap{}, errorf(ErrShapeMismatch, p.shape, "", "not a map")
	}
	return PeekMap{p: p, def: def}, nil
}

// Len returns the entry count.
func (pm PeekMap) Len() int { return pm.def.Len(pm.p.ptr) }

// All iterates the entries. The yielded views alias per-iteration scratch
// storage and are only valid during their yield.
func (pm PeekMap) All() iter.Seq2[Peek, Peek] {
	return func(yield func(Peek, Peek) bool) {
		for k, v := range pm.def.All(pm.p.ptr) {
			kp := pm.p.sub(pm.def.Key, k)
			vp := pm.p.sub(pm.def.Value, v)
			if !yield(kp, vp) {
				return
			}
		}
	}
}

// PeekSet is a set view.
type PeekSet struct {
	p   Peek
	def *SetDef
}

// Set narrows the view to a set.
func (p Peek) Set() (PeekSet, error) {
	def, ok := p.shape.def.(*SetDef)
	if !ok {
		return PeekSet{}, errorf(ErrShapeMismatch, p.shape, "", "not a set")
	}
	return PeekSet{p: p, def: def}, nil
}

// Len returns the element count.
func (ps PeekSet) Len() int { return ps.def.Len(ps.p.ptr) }

// All iterates the elements. The yielded views alias per-iteration scratch
// storage and are only valid during their yield.
func (ps PeekSet) All() iter.Seq[Peek] {
	return func(yield func(Peek) bool) {
		for e := range ps.def.All(ps.p.ptr) {
			if !yield(ps.p.sub(ps.def.Elem, e)) {
				return
			}
		}
	}
}

// PeekOption is an option view.
type PeekOption struct {
	p   Peek
	def *OptionDef
}

// Option narrows the view to an option.
func (p Peek) Option() (PeekOption, error) {
	def, ok := p.shape.def.(*OptionDef)
	if !ok {
		return PeekOption{}, errorf(ErrShapeMismatch, p.shape, "", "not an option")
	}
	return PeekOption{p: p, def: def}, nil
}

// IsSome reports whether the option holds a value.
func (po PeekOption) IsSome() bool { return po.def.IsSome(po.p.ptr) }

// Value returns the payload view, or false for none.
func (po PeekOption) Value() (Peek, bool) {
	if !po.IsSome() {
		return Peek{}, false
	}
	return po.p.sub(po.def.Inner, po.def.Payload(po.p.ptr)), true
}

// PeekResult is a result view.
type PeekResult struct {
	p   Peek
	def *ResultDef
}

// Result narrows the view to a result.
func (p Peek) Result() (PeekResult, error) {
	def, ok := p.shape.def.(*ResultDef)
	if !ok {
		return PeekResult{}, errorf(ErrShapeMismatch, p.shape, "", "not a result")
	}
	return PeekResult{p: p, def: def}, nil
}

// IsOk reports whether the result holds the success variant.
func (pr PeekResult) IsOk() bool {
	_, s := resultPayload(pr.def, pr.p.ptr)
	return s == pr.def.Ok
}

// Value returns the live payload's view, whichever variant it is.
func (pr PeekResult) Value() Peek {
	q, s := resultPayload(pr.def, pr.p.ptr)
	return pr.p.sub(s, q)
}

// Ok returns the success payload view, or false for an error result.
func (pr PeekResult) Ok() (Peek, bool) {
	if !pr.IsOk() {
		return Peek{}, false
	}
	return pr.Value(), true
}

// Err returns the error payload view, or false for a success result.
func (pr PeekResult) Err() (Peek, bool) {
	if pr.IsOk() {
		return Peek{}, false
	}
	return pr.Value(), true
}

// PeekSmartPtr is a smart-pointer view.
type PeekSmartPtr struct {
	p   Peek
	def *SmartPtrDef
}

// SmartPtr narrows the view to a smart pointer.
func (p Peek) SmartPtr() (PeekSmartPtr, error) {
	def, ok := p.shape.def.(*SmartPtrDef)
	if !ok {
		return PeekSmartPtr{}, errorf(ErrShapeMismatch, p.shape, "", "not a smart pointer")
	}
	return PeekSmartPtr{p: p, def: def}, nil
}

// Borrow returns a view of the pointee, or false when the pointer is
// empty. The pointee's view lives in a narrowed window: it must not
// outlive the smart pointer it was borrowed from.
func (ps PeekSmartPtr) Borrow() (Peek, bool) {
	q := ps.def.Borrow(ps.p.ptr)
	if q == nil {
		return Peek{}, false
	}
	return Peek{shape: ps.def.Pointee, ptr: q, win: ps.p.win.Narrow()}, true
}

// PeekPointer is a borrowed-reference view.
type PeekPointer struct {
	p   Peek
	def *PointerDef
}

// Pointer narrows the view to a borrowed reference.
func (p Peek) Pointer() (PeekPointer, error) {
	def, ok := p.shape.def.(*PointerDef)
	if !ok {
		return PeekPointer{}, errorf(ErrShapeMismatch, p.shape, "", "not a reference")
	}
	return PeekPointer{p: p, def: def}, nil
}

// Mutable reports whether the reference permits writes through it.
func (pp PeekPointer) Mutable() bool { return pp.def.Mutable }

// Deref returns a view of the referent, or false for a nil reference.
func (pp PeekPointer) Deref() (Peek, bool) {
	if pp.def.Deref == nil {
		return Peek{}, false
	}
	q := pp.def.Deref(pp.p.ptr)
	if q == nil {
		return Peek{}, false
	}
	return Peek{shape: pp.def.Elem, ptr: q, win: pp.p.win.Narrow()}, true
}
