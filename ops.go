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
	"cmp"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unsafe"

	"github.com/tiendc/go-deepcopy"

	"github.com/reifylabs/reify/internal/swiss"
	"github.com/reifylabs/reify/internal/xunsafe"
)

// Structural default operations, installed into a shape's vtable when the
// declaration supplies nothing better. They dispatch over the Def, so one
// non-generic code path serves every shape.

// zeroValue writes the zero value over p. Typed for pointer-bearing shapes
// so the garbage collector observes the dead references.
func zeroValue(s *Shape, p unsafe.Pointer) {
	if !s.hasPointers {
		xunsafe.UntypedClear(p, s.size)
		return
	}
	reflect.NewAt(s.ty, p).Elem().SetZero()
}

// moveValue moves size bytes of src over the uninitialized dst without
// running anything's drop. Typed for pointer-bearing shapes so the write is
// visible to the garbage collector's barriers.
func moveValue(s *Shape, dst, src unsafe.Pointer) {
	if !s.hasPointers {
		xunsafe.UntypedCopy(dst, src, s.size)
		return
	}
	reflect.NewAt(s.ty, dst).Elem().Set(reflect.NewAt(s.ty, src).Elem())
}

// defaultDrop runs drop hooks structurally, children first. Drop releases
// resources only: it never writes through the value, because a value set
// from the caller's world shares referents with storage the engine does not
// own. Storage the engine does own is cleared by whoever holds it (guard,
// heap handle, builder frame).
func defaultDrop(p unsafe.Pointer, s *Shape) {
	if !s.hasDropHook {
		return
	}
	switch def := s.def.(type) {
	case *StructDef:
		for i := range def.Fields {
			f := &def.Fields[i]
			f.Shape.vt.Drop(unsafe.Add(p, f.Offset), f.Shape)
		}

	case *EnumDef:
		if _, v := def.VariantByDisc(def.Disc.load(unsafe.Add(p, def.DiscOffset))); v != nil {
			for i := range v.Fields {
				f := &v.Fields[i]
				f.Shape.vt.Drop(unsafe.Add(p, f.Offset), f.Shape)
			}
		}

	case *ListDef:
		n := def.Len(p)
		for i := 0; i < n; i++ {
			e := def.At(p, i)
			def.Elem.vt.Drop(e, def.Elem)
		}

	case *MapDef, *SetDef:
		// Entries live inside the map; hooks on entry types run against
		// the iteration scratch.
		runEntryHooks(s, p)

	case *OptionDef:
		if def.IsSome(p) {
			def.Inner.vt.Drop(def.Payload(p), def.Inner)
		}

	case *ResultDef:
		rp, rs := resultPayload(def, p)
		rs.vt.Drop(rp, rs)

	case *ArrayDef:
		for i := 0; i < def.N; i++ {
			def.Elem.vt.Drop(unsafe.Add(p, i*def.Elem.size), def.Elem)
		}

	case *SmartPtrDef:
		if q := def.Borrow(p); q != nil {
			def.Pointee.vt.Drop(q, def.Pointee)
		}
	}
	// Scalars and plain pointers hold nothing to release; a pointer's
	// referent is borrowed and not ours to destroy.
}

// runEntryHooks runs Drop hooks for map/set entries whose shapes carry one.
func runEntryHooks(s *Shape, p unsafe.Pointer) {
	switch def := s.def.(type) {
	case *MapDef:
		if !def.Key.hasDropHook && !def.Value.hasDropHook {
			return
		}
		for k, v := range def.All(p) {
			if def.Key.hasDropHook {
				def.Key.vt.Drop(k, def.Key)
			}
			if def.Value.hasDropHook {
				def.Value.vt.Drop(v, def.Value)
			}
		}
	case *SetDef:
		if !def.Elem.hasDropHook {
			return
		}
		for e := range def.All(p) {
			def.Elem.vt.Drop(e, def.Elem)
		}
	}
}

// resultPayload resolves the active payload of a result value.
func resultPayload(def *ResultDef, p unsafe.Pointer) (unsafe.Pointer, *Shape) {
	if *(*uint8)(unsafe.Add(p, def.TagOffset)) == 0 {
		return unsafe.Add(p, def.OkOffset), def.Ok
	}
	return unsafe.Add(p, def.ErrOffset), def.Err
}

// defaultDefault leaves the zero value in place, which is the default for
// every derived shape.
func defaultDefault(p unsafe.Pointer, s *Shape) {
	zeroValue(s, p)
}

// defaultClone deep-copies src into dst through the backing type.
func defaultClone(dst, src unsafe.Pointer, s *Shape) error {
	d := reflect.NewAt(s.ty, dst).Interface()
	v := reflect.NewAt(s.ty, src).Interface()
	return deepcopy.Copy(d, v)
}

// defaultEqual compares two values structurally.
func defaultEqual(a, b unsafe.Pointer, s *Shape) bool {
	switch def := s.def.(type) {
	case *ScalarDef:
		if def.Scalar == ScalarOpaque {
			av := reflect.NewAt(s.ty, a).Elem().Interface()
			bv := reflect.NewAt(s.ty, b).Elem().Interface()
			return reflect.DeepEqual(av, bv)
		}
		if def.Scalar == ScalarBytes {
			return string(*(*[]byte)(a)) == string(*(*[]byte)(b))
		}
		if def.Scalar == ScalarString {
			return *(*string)(a) == *(*string)(b)
		}
		return string(xunsafe.Slice((*byte)(a), s.size)) ==
			string(xunsafe.Slice((*byte)(b), s.size))

	case *StructDef:
		for i := range def.Fields {
			f := &def.Fields[i]
			if !f.Shape.vt.Equal(unsafe.Add(a, f.Offset), unsafe.Add(b, f.Offset), f.Shape) {
				return false
			}
		}
		return true

	case *EnumDef:
		da := def.Disc.load(unsafe.Add(a, def.DiscOffset))
		if da != def.Disc.load(unsafe.Add(b, def.DiscOffset)) {
			return false
		}
		_, v := def.VariantByDisc(da)
		if v == nil {
			return true
		}
		for i := range v.Fields {
			f := &v.Fields[i]
			if !f.Shape.vt.Equal(unsafe.Add(a, f.Offset), unsafe.Add(b, f.Offset), f.Shape) {
				return false
			}
		}
		return true

	case *ListDef:
		n := def.Len(a)
		if n != def.Len(b) {
			return false
		}
		for i := 0; i < n; i++ {
			if !def.Elem.vt.Equal(def.At(a, i), def.At(b, i), def.Elem) {
				return false
			}
		}
		return true

	case *ArrayDef:
		for i := 0; i < def.N; i++ {
			off := i * def.Elem.size
			if !def.Elem.vt.Equal(unsafe.Add(a, off), unsafe.Add(b, off), def.Elem) {
				return false
			}
		}
		return true

	case *OptionDef:
		sa, sb := def.IsSome(a), def.IsSome(b)
		if sa != sb {
			return false
		}
		if !sa {
			return true
		}
		return def.Inner.vt.Equal(def.Payload(a), def.Payload(b), def.Inner)

	case *ResultDef:
		pa, sa := resultPayload(def, a)
		pb, sb := resultPayload(def, b)
		return sa == sb && sa.vt.Equal(pa, pb, sa)

	case *SmartPtrDef:
		qa, qb := def.Borrow(a), def.Borrow(b)
		if (qa == nil) != (qb == nil) {
			return false
		}
		if qa == nil {
			return true
		}
		return def.Pointee.vt.Equal(qa, qb, def.Pointee)

	default:
		// Maps, sets and borrowed pointers fall back to the backing type.
		av := reflect.NewAt(s.ty, a).Elem().Interface()
		bv := reflect.NewAt(s.ty, b).Elem().Interface()
		return reflect.DeepEqual(av, bv)
	}
}

// defaultHash mixes a value into seed structurally.
func defaultHash(p unsafe.Pointer, s *Shape, seed uint64) uint64 {
	h := swiss.Hash(seed)
	switch def := s.def.(type) {
	case *ScalarDef:
		switch def.Scalar {
		case ScalarString:
			h = h.Bytes([]byte(*(*string)(p)))
		case ScalarBytes:
			h = h.Bytes(*(*[]byte)(p))
		default:
			if s.hasPointers {
				// Opaque pointer-bearing scalars need a vtable hash; mixing
				// nothing is the only sound default.
				return uint64(h)
			}
			h = h.Bytes(xunsafe.Slice((*byte)(p), s.size))
		}

	case *StructDef:
		for i := range def.Fields {
			f := &def.Fields[i]
			h = swiss.Hash(f.Shape.vt.Hash(unsafe.Add(p, f.Offset), f.Shape, uint64(h)))
		}

	case *EnumDef:
		disc := def.Disc.load(unsafe.Add(p, def.DiscOffset))
		h = h.U64(uint64(disc))
		if _, v := def.VariantByDisc(disc); v != nil {
			for i := range v.Fields {
				f := &v.Fields[i]
				h = swiss.Hash(f.Shape.vt.Hash(unsafe.Add(p, f.Offset), f.Shape, uint64(h)))
			}
		}

	case *ListDef:
		n := def.Len(p)
		h = h.U64(uint64(n))
		for i := 0; i < n; i++ {
			h = swiss.Hash(def.Elem.vt.Hash(def.At(p, i), def.Elem, uint64(h)))
		}

	case *ArrayDef:
		for i := 0; i < def.N; i++ {
			h = swiss.Hash(def.Elem.vt.Hash(unsafe.Add(p, i*def.Elem.size), def.Elem, uint64(h)))
		}

	case *OptionDef:
		if !def.IsSome(p) {
			return uint64(h.U64(0))
		}
		h = h.U64(1)
		h = swiss.Hash(def.Inner.vt.Hash(def.Payload(p), def.Inner, uint64(h)))

	case *ResultDef:
		rp, rs := resultPayload(def, p)
		h = h.U64(uint64(*(*uint8)(unsafe.Add(p, def.TagOffset))))
		h = swiss.Hash(rs.vt.Hash(rp, rs, uint64(h)))

	case *SmartPtrDef:
		if q := def.Borrow(p); q != nil {
			h = h.U64(1)
			h = swiss.Hash(def.Pointee.vt.Hash(q, def.Pointee, uint64(h)))
		} else {
			h = h.U64(0)
		}

	default:
		// Unordered collections hash their length only; entry order is not
		// stable.
		switch def := s.def.(type) {
		case *MapDef:
			h = h.U64(uint64(def.Len(p)))
		case *SetDef:
			h = h.U64(uint64(def.Len(p)))
		}
	}
	return uint64(h)
}

// defaultDebug renders a value for diagnostics, replacing sensitive fields.
func defaultDebug(p unsafe.Pointer, s *Shape) string {
	buf := new(strings.Builder)
	writeDebug(buf, p, s, false)
	return buf.String()
}

func writeDebug(buf *strings.Builder, p unsafe.Pointer, s *Shape, sensitive bool) {
	if sensitive {
		buf.WriteString("<redacted>")
		return
	}

	switch def := s.def.(type) {
	case *ScalarDef:
		if def.Scalar == ScalarOpaque {
			if s.vt.Display != nil {
				buf.WriteString(s.vt.Display(p, s))
				return
			}
			fmt.Fprintf(buf, "%v", reflect.NewAt(s.ty, p).Elem().Interface())
			return
		}
		fmt.Fprintf(buf, "%#v", reflect.NewAt(s.ty, p).Elem().Interface())

	case *StructDef:
		buf.WriteString(s.name)
		buf.WriteByte('{')
		for i := range def.Fields {
			f := &def.Fields[i]
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(f.Name)
			buf.WriteString(": ")
			writeDebug(buf, unsafe.Add(p, f.Offset), f.Shape, f.Flags.Has(FlagSensitive))
		}
		buf.WriteByte('}')

	case *EnumDef:
		disc := def.Disc.load(unsafe.Add(p, def.DiscOffset))
		_, v := def.VariantByDisc(disc)
		if v == nil {
			fmt.Fprintf(buf, "%s(!%d)", s.name, disc)
			return
		}
		buf.WriteString(s.name)
		buf.WriteByte('.')
		buf.WriteString(v.Name)
		if v.Repr == ReprUnit {
			return
		}
		buf.WriteByte('(')
		for i := range v.Fields {
			f := &v.Fields[i]
			if i > 0 {
				buf.WriteString(", ")
			}
			if v.Repr == ReprStruct {
				buf.WriteString(f.Name)
				buf.WriteString(": ")
			}
			writeDebug(buf, unsafe.Add(p, f.Offset), f.Shape, f.Flags.Has(FlagSensitive))
		}
		buf.WriteByte(')')

	case *ListDef:
		buf.WriteByte('[')
		for i, n := 0, def.Len(p); i < n; i++ {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeDebug(buf, def.At(p, i), def.Elem, false)
		}
		buf.WriteByte(']')

	case *ArrayDef:
		buf.WriteByte('[')
		for i := 0; i < def.N; i++ {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeDebug(buf, unsafe.Add(p, i*def.Elem.size), def.Elem, false)
		}
		buf.WriteByte(']')

	case *MapDef:
		buf.WriteByte('{')
		first := true
		for k, v := range def.All(p) {
			if !first {
				buf.WriteString(", ")
			}
			first = false
			writeDebug(buf, k, def.Key, false)
			buf.WriteString(": ")
			writeDebug(buf, v, def.Value, false)
		}
		buf.WriteByte('}')

	case *SetDef:
		buf.WriteByte('{')
		first := true
		for e := range def.All(p) {
			if !first {
				buf.WriteString(", ")
			}
			first = false
			writeDebug(buf, e, def.Elem, false)
		}
		buf.WriteByte('}')

	case *OptionDef:
		if !def.IsSome(p) {
			buf.WriteString("none")
			return
		}
		buf.WriteString("some(")
		writeDebug(buf, def.Payload(p), def.Inner, false)
		buf.WriteByte(')')

	case *ResultDef:
		rp, rs := resultPayload(def, p)
		if rs == def.Ok {
			buf.WriteString("ok(")
		} else {
			buf.WriteString("err(")
		}
		writeDebug(buf, rp, rs, false)
		buf.WriteByte(')')

	case *SmartPtrDef:
		if q := def.Borrow(p); q != nil {
			buf.WriteString("&")
			writeDebug(buf, q, def.Pointee, false)
			return
		}
		buf.WriteString("<empty>")

	default:
		fmt.Fprintf(buf, "%v", reflect.NewAt(s.ty, p).Elem().Interface())
	}
}

// scalarParse builds a Parse entry for a non-opaque scalar kind.
func scalarParse(kind ScalarKind) ParseFunc {
	return func(dst unsafe.Pointer, s *Shape, text string) error {
		switch kind {
		case ScalarBool:
			v, err := strconv.ParseBool(text)
			if err != nil {
				return err
			}
			*(*bool)(dst) = v
		case ScalarString:
			*(*string)(dst) = text
		case ScalarBytes:
			*(*[]byte)(dst) = []byte(text)
		case ScalarFloat32, ScalarFloat64:
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return err
			}
			if kind == ScalarFloat32 {
				*(*float32)(dst) = float32(v)
			} else {
				*(*float64)(dst) = v
			}
		case ScalarInt8, ScalarInt16, ScalarInt32, ScalarInt64, ScalarInt:
			v, err := strconv.ParseInt(text, 10, s.size*8)
			if err != nil {
				return err
			}
			storeInt(dst, s.size, uint64(v))
		default:
			v, err := strconv.ParseUint(text, 10, s.size*8)
			if err != nil {
				return err
			}
			storeInt(dst, s.size, v)
		}
		return nil
	}
}

func storeInt(dst unsafe.Pointer, size int, v uint64) {
	switch size {
	case 1:
		*(*uint8)(dst) = uint8(v)
	case 2:
		*(*uint16)(dst) = uint16(v)
	case 4:
		*(*uint32)(dst) = uint32(v)
	default:
		*(*uint64)(dst) = uint64(v)
	}
}

// scalarCompare builds a Compare entry for an ordered scalar kind.
func scalarCompare(kind ScalarKind) CompareFunc {
	return func(a, b unsafe.Pointer, s *Shape) int {
		switch {
		case kind == ScalarBool:
			x, y := *(*bool)(a), *(*bool)(b)
			switch {
			case x == y:
				return 0
			case y:
				return -1
			default:
				return 1
			}
		case kind == ScalarString:
			return strings.Compare(*(*string)(a), *(*string)(b))
		case kind == ScalarBytes:
			return bytes.Compare(*(*[]byte)(a), *(*[]byte)(b))
		case kind == ScalarFloat32:
			return cmp.Compare(*(*float32)(a), *(*float32)(b))
		case kind == ScalarFloat64:
			return cmp.Compare(*(*float64)(a), *(*float64)(b))
		case kind.signed():
			return cmp.Compare(loadInt(a, s.size, true), loadInt(b, s.size, true))
		default:
			return cmp.Compare(uint64(loadInt(a, s.size, false)), uint64(loadInt(b, s.size, false)))
		}
	}
}

func (k ScalarKind) signed() bool {
	return k >= ScalarInt8 && k <= ScalarInt
}

func (k ScalarKind) unsigned() bool {
	return k >= ScalarUint8 && k <= ScalarUintptr
}

func (k ScalarKind) float() bool {
	return k == ScalarFloat32 || k == ScalarFloat64
}

// scalarTryFrom builds the default TryFrom entry for a non-opaque scalar:
// checked conversion from another scalar shape. Numeric conversions reject
// values outside the destination's range rather than truncating.
func scalarTryFrom(kind ScalarKind) TryFromFunc {
	return func(dst unsafe.Pointer, s *Shape, src Peek) error {
		sd, ok := src.shape.def.(*ScalarDef)
		if !ok || sd.Scalar == ScalarOpaque {
			return errorf(ErrShapeMismatch, s, "", "cannot convert %s to %s", src.shape.name, s.name)
		}
		sk, sp := sd.Scalar, src.ptr

		switch {
		case kind == ScalarBool:
			if sk != ScalarBool {
				break
			}
			*(*bool)(dst) = *(*bool)(sp)
			return nil

		case kind == ScalarString:
			switch sk {
			case ScalarString:
				*(*string)(dst) = *(*string)(sp)
				return nil
			case ScalarBytes:
				*(*string)(dst) = string(*(*[]byte)(sp))
				return nil
			}

		case kind == ScalarBytes:
			switch sk {
			case ScalarString:
				*(*[]byte)(dst) = []byte(*(*string)(sp))
				return nil
			case ScalarBytes:
				*(*[]byte)(dst) = bytes.Clone(*(*[]byte)(sp))
				return nil
			}

		case kind.float():
			var v float64
			switch {
			case sk == ScalarFloat32:
				v = float64(*(*float32)(sp))
			case sk == ScalarFloat64:
				v = *(*float64)(sp)
			case sk.signed():
				v = float64(loadInt(sp, src.shape.size, true))
			case sk.unsigned():
				v = float64(uint64(loadInt(sp, src.shape.size, false)))
			default:
				goto mismatch
			}
			if kind == ScalarFloat32 {
				*(*float32)(dst) = float32(v)
			} else {
				*(*float64)(dst) = v
			}
			return nil

		case kind.signed():
			var v int64
			switch {
			case sk.signed():
				v = loadInt(sp, src.shape.size, true)
			case sk.unsigned():
				u := uint64(loadInt(sp, src.shape.size, false))
				if u > 1<<63-1 {
					return errorf(ErrShapeMismatch, s, "", "value %d overflows %s", u, s.name)
				}
				v = int64(u)
			default:
				goto mismatch
			}
			bits := uint(s.size * 8)
			if bits < 64 && (v < -1<<(bits-1) || v > 1<<(bits-1)-1) {
				return errorf(ErrShapeMismatch, s, "", "value %d overflows %s", v, s.name)
			}
			storeInt(dst, s.size, uint64(v))
			return nil

		case kind.unsigned():
			var u uint64
			switch {
			case sk.signed():
				v := loadInt(sp, src.shape.size, true)
				if v < 0 {
					return errorf(ErrShapeMismatch, s, "", "value %d overflows %s", v, s.name)
				}
				u = uint64(v)
			case sk.unsigned():
				u = uint64(loadInt(sp, src.shape.size, false))
			default:
				goto mismatch
			}
			if bits := uint(s.size * 8); bits < 64 && u > 1<<bits-1 {
				return errorf(ErrShapeMismatch, s, "", "value %d overflows %s", u, s.name)
			}
			storeInt(dst, s.size, u)
			return nil
		}

	mismatch:
		return errorf(ErrShapeMismatch, s, "", "cannot convert %s to %s", src.shape.name, s.name)
	}
}

func loadInt(p unsafe.Pointer, size int, signed bool) int64 {
	if signed {
		switch size {
		case 1:
			return int64(*(*int8)(p))
		case 2:
			return int64(*(*int16)(p))
		case 4:
			return int64(*(*int32)(p))
		default:
			return *(*int64)(p)
		}
	}
	switch size {
	case 1:
		return int64(*(*uint8)(p))
	case 2:
		return int64(*(*uint16)(p))
	case 4:
		return int64(*(*uint32)(p))
	default:
		return int64(*(*uint64)(p))
	}
}
