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
	"encoding"
	"fmt"
	"iter"
	"reflect"
	"strings"
	"sync"
	"unsafe"

	"github.com/reifylabs/reify/internal/debug"
	"github.com/reifylabs/reify/internal/xsync"
)

// The process-wide shape registry. Shapes are published only after their
// whole type graph has finished compiling, so readers never observe a
// half-built descriptor; the compile lock makes first access idempotent.
var (
	registry  xsync.Map[reflect.Type, *Shape]
	compileMu sync.Mutex
)

const selfPkgPath = "github.com/reifylabs/reify"

// For returns the shape singleton for T.
//
// It is pure and idempotent: repeated calls for the same type return the
// identical pointer, even under concurrent first access.
func For[T any]() *Shape {
	return Of(reflect.TypeFor[T]())
}

// Of returns the shape singleton for the given backing type.
func Of(t reflect.Type) *Shape {
	if s, ok := registry.Load(t); ok {
		return s
	}

	compileMu.Lock()
	defer compileMu.Unlock()
	if s, ok := registry.Load(t); ok {
		return s
	}

	c := &compiler{done: make(map[reflect.Type]*Shape)}
	s := c.compile(t)
	c.publish()
	return s
}

// compiler derives shapes from backing types. One compiler instance covers
// one connected type graph; recursive types tie back through done, which
// doubles as the in-progress set.
type compiler struct {
	done map[reflect.Type]*Shape
}

func (c *compiler) publish() {
	// Propagate drop hooks upward: a shape needs hook handling whenever any
	// shape reachable through its def carries one. Iterate to a fixpoint;
	// cycles converge because the flag only ever flips on.
	for changed := true; changed; {
		changed = false
		for _, s := range c.done {
			if s.hasDropHook {
				continue
			}
			for child := range shapeEdges(s) {
				if child.hasDropHook {
					s.hasDropHook = true
					changed = true
					break
				}
			}
		}
	}
	for ty, s := range c.done {
		registry.Store(ty, s)
	}
}

func (c *compiler) compile(t reflect.Type) *Shape {
	if s, ok := registry.Load(t); ok {
		return s
	}
	if s, ok := c.done[t]; ok {
		return s
	}
	debug.Log(nil, "compile", "%v", t)

	s := &Shape{
		name:        t.String(),
		ty:          t,
		size:        int(t.Size()),
		align:       t.Align(),
		hasPointers: typeHasPointers(t),
	}
	s.decl = declOf(s.name)
	c.done[t] = s

	c.fill(s, t)
	finishVTable(s, t)
	return s
}

// fill derives the structural definition.
func (c *compiler) fill(s *Shape, t reflect.Type) {
	if t.PkgPath() == selfPkgPath {
		switch {
		case strings.HasPrefix(t.Name(), "Option["):
			c.fillOption(s, t)
			return
		case strings.HasPrefix(t.Name(), "Result["):
			c.fillResult(s, t)
			return
		}
	}

	switch t.Kind() {
	case reflect.Bool:
		s.def = &ScalarDef{Scalar: ScalarBool}
	case reflect.Int8:
		s.def = &ScalarDef{Scalar: ScalarInt8}
	case reflect.Int16:
		s.def = &ScalarDef{Scalar: ScalarInt16}
	case reflect.Int32:
		s.def = &ScalarDef{Scalar: ScalarInt32}
	case reflect.Int64:
		s.def = &ScalarDef{Scalar: ScalarInt64}
	case reflect.Int:
		s.def = &ScalarDef{Scalar: ScalarInt}
	case reflect.Uint8:
		s.def = &ScalarDef{Scalar: ScalarUint8}
	case reflect.Uint16:
		s.def = &ScalarDef{Scalar: ScalarUint16}
	case reflect.Uint32:
		s.def = &ScalarDef{Scalar: ScalarUint32}
	case reflect.Uint64:
		s.def = &ScalarDef{Scalar: ScalarUint64}
	case reflect.Uint:
		s.def = &ScalarDef{Scalar: ScalarUint}
	case reflect.Uintptr:
		s.def = &ScalarDef{Scalar: ScalarUintptr}
	case reflect.Float32:
		s.def = &ScalarDef{Scalar: ScalarFloat32}
	case reflect.Float64:
		s.def = &ScalarDef{Scalar: ScalarFloat64}
	case reflect.String:
		s.def = &ScalarDef{Scalar: ScalarString}

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			s.def = &ScalarDef{Scalar: ScalarBytes}
			return
		}
		c.fillList(s, t)

	case reflect.Array:
		s.def = &ArrayDef{Elem: c.compile(t.Elem()), N: t.Len()}

	case reflect.Map:
		if t.Elem() == reflect.TypeOf(struct{}{}) {
			c.fillSet(s, t)
			return
		}
		c.fillMap(s, t)

	case reflect.Struct:
		c.fillStruct(s, t)

	case reflect.Pointer:
		c.fillBox(s, t)

	case reflect.UnsafePointer:
		s.def = &PointerDef{Mutable: true}
		s.leaf = Invariant

	case reflect.Chan, reflect.Func, reflect.Interface,
		reflect.Complex64, reflect.Complex128:
		// Opaque to the engine. Channels, funcs and interfaces can smuggle
		// mutable references, so they pin variance.
		s.def = &ScalarDef{Scalar: ScalarOpaque}
		if t.Kind() != reflect.Complex64 && t.Kind() != reflect.Complex128 {
			s.leaf = Invariant
		}

	default:
		panic(fmt.Sprintf("reify: cannot derive a shape for %v", t))
	}
}

func (c *compiler) fillStruct(s *Shape, t reflect.Type) {
	def := &StructDef{}
	names := []string{}
	for i := range t.NumField() {
		sf := t.Field(i)
		if sf.Name == "_" {
			continue
		}

		name, flags, skip := parseFieldTag(sf.Tag.Get("reify"))
		if skip {
			continue
		}
		if name == "" {
			name = sf.Name
		}

		def.Fields = append(def.Fields, Field{
			Name:   name,
			Offset: int(sf.Offset),
			Shape:  c.compile(sf.Type),
			Flags:  flags,
		})
		names = append(names, name)
	}
	def.byName = newFieldTable(names)
	s.def = def
}

func (c *compiler) fillList(s *Shape, t reflect.Type) {
	elemTy := t.Elem()
	elem := c.compile(elemTy)
	elemSize := int(elemTy.Size())

	s.def = &ListDef{
		Elem: elem,
		Len: func(p unsafe.Pointer) int {
			return (*sliceHeader)(p).len
		},
		At: func(p unsafe.Pointer, i int) unsafe.Pointer {
			return unsafe.Add((*sliceHeader)(p).data, i*elemSize)
		},
		Append: func(list, e unsafe.Pointer) {
			lv := reflect.NewAt(t, list).Elem()
			ev := reflect.NewAt(elemTy, e).Elem()
			lv.Set(reflect.Append(lv, ev))
		},
	}
	s.inner = elem
}

func (c *compiler) fillMap(s *Shape, t reflect.Type) {
	keyTy, valTy := t.Key(), t.Elem()
	s.def = &MapDef{
		Key:   c.compile(keyTy),
		Value: c.compile(valTy),
		Init: func(p unsafe.Pointer) {
			reflect.NewAt(t, p).Elem().Set(reflect.MakeMap(t))
		},
		Len: func(p unsafe.Pointer) int {
			return reflect.NewAt(t, p).Elem().Len()
		},
		Insert: func(m, k, v unsafe.Pointer) {
			mv := reflect.NewAt(t, m).Elem()
			mv.SetMapIndex(
				reflect.NewAt(keyTy, k).Elem(),
				reflect.NewAt(valTy, v).Elem(),
			)
		},
		All: func(p unsafe.Pointer) iter.Seq2[unsafe.Pointer, unsafe.Pointer] {
			return func(yield func(unsafe.Pointer, unsafe.Pointer) bool) {
				mv := reflect.NewAt(t, p).Elem()
				if mv.IsNil() {
					return
				}
				ks, vs := reflect.New(keyTy), reflect.New(valTy)
				it := mv.MapRange()
				for it.Next() {
					ks.Elem().Set(it.Key())
					vs.Elem().Set(it.Value())
					if !yield(ks.UnsafePointer(), vs.UnsafePointer()) {
						return
					}
				}
			}
		},
	}
}

func (c *compiler) fillSet(s *Shape, t reflect.Type) {
	elemTy := t.Key()
	elem := c.compile(elemTy)
	empty := reflect.ValueOf(struct{}{})

	s.def = &SetDef{
		Elem: elem,
		Init: func(p unsafe.Pointer) {
			reflect.NewAt(t, p).Elem().Set(reflect.MakeMap(t))
		},
		Len: func(p unsafe.Pointer) int {
			return reflect.NewAt(t, p).Elem().Len()
		},
		Insert: func(set, e unsafe.Pointer) {
			sv := reflect.NewAt(t, set).Elem()
			sv.SetMapIndex(reflect.NewAt(elemTy, e).Elem(), empty)
		},
		All: func(p unsafe.Pointer) iter.Seq[unsafe.Pointer] {
			return func(yield func(unsafe.Pointer) bool) {
				sv := reflect.NewAt(t, p).Elem()
				if sv.IsNil() {
					return
				}
				es := reflect.New(elemTy)
				it := sv.MapRange()
				for it.Next() {
					es.Elem().Set(it.Key())
					if !yield(es.UnsafePointer()) {
						return
					}
				}
			}
		},
	}
	s.inner = elem
}

// fillBox derives a plain *T as an owning box: a smart pointer whose
// constructor allocates and moves the completed pointee in.
func (c *compiler) fillBox(s *Shape, t reflect.Type) {
	elemTy := t.Elem()
	pointee := c.compile(elemTy)

	s.def = &SmartPtrDef{
		Pointee: pointee,
		New: func(dst, src unsafe.Pointer) {
			bv := reflect.New(elemTy)
			bv.Elem().Set(reflect.NewAt(elemTy, src).Elem())
			zeroValue(pointee, src)
			reflect.NewAt(t, dst).Elem().Set(bv)
		},
		Borrow: func(p unsafe.Pointer) unsafe.Pointer {
			return *(*unsafe.Pointer)(p)
		},
	}
	s.inner = pointee
}

func (c *compiler) fillOption(s *Shape, t reflect.Type) {
	setF, _ := t.FieldByName("set")
	valF, _ := t.FieldByName("val")
	inner := c.compile(valF.Type)

	flagOff, payOff := int(setF.Offset), int(valF.Offset)
	s.def = &OptionDef{
		Inner:         inner,
		Encoding:      OptionFlag,
		FlagOffset:    flagOff,
		PayloadOffset: payOff,
		IsSome: func(p unsafe.Pointer) bool {
			return *(*bool)(unsafe.Add(p, flagOff))
		},
		Payload: func(p unsafe.Pointer) unsafe.Pointer {
			return unsafe.Add(p, payOff)
		},
		SetSome: func(p, v unsafe.Pointer) {
			moveValue(inner, unsafe.Add(p, payOff), v)
			*(*bool)(unsafe.Add(p, flagOff)) = true
		},
		SetNone: func(p unsafe.Pointer) {
			zeroValue(s, p)
		},
	}
	s.inner = inner
}

func (c *compiler) fillResult(s *Shape, t reflect.Type) {
	tagF, _ := t.FieldByName("tag")
	okF, _ := t.FieldByName("ok")
	errF, _ := t.FieldByName("err")

	s.def = &ResultDef{
		Ok:        c.compile(okF.Type),
		Err:       c.compile(errF.Type),
		TagOffset: int(tagF.Offset),
		OkOffset:  int(okF.Offset),
		ErrOffset: int(errF.Offset),
	}
}

// sliceHeader mirrors the runtime representation of a Go slice.
type sliceHeader struct {
	data     unsafe.Pointer
	len, cap int
}

// Interface probes used for wiring vtable hooks from method sets.
var (
	dropperType   = reflect.TypeFor[Dropper]()
	validatorType = reflect.TypeFor[Validator]()
	stringerType  = reflect.TypeFor[fmt.Stringer]()
	textUnmType   = reflect.TypeFor[encoding.TextUnmarshaler]()
)

// finishVTable installs structural defaults into a derived shape's vtable
// and wires hooks declared through well-known interfaces. A hook found on
// *T behaves identically whether invoked directly or through the erased
// entry.
func finishVTable(s *Shape, t reflect.Type) {
	vt := &s.vt
	pt := reflect.PointerTo(t)

	vt.Drop = defaultDrop
	if pt.Implements(dropperType) {
		s.hasDropHook = true
		vt.Drop = func(p unsafe.Pointer, s *Shape) {
			reflect.NewAt(t, p).Interface().(Dropper).Drop()
			defaultDrop(p, s)
		}
	}

	vt.Default = defaultDefault
	vt.Clone = defaultClone
	vt.Equal = defaultEqual
	vt.Hash = defaultHash
	vt.Debug = defaultDebug

	if def, ok := s.def.(*ScalarDef); ok {
		if def.Scalar != ScalarOpaque {
			vt.Display = func(p unsafe.Pointer, s *Shape) string {
				return fmt.Sprintf("%v", reflect.NewAt(s.ty, p).Elem().Interface())
			}
			vt.Parse = scalarParse(def.Scalar)
			vt.Compare = scalarCompare(def.Scalar)
			vt.TryFrom = scalarTryFrom(def.Scalar)
		}
	}

	if pt.Implements(stringerType) {
		vt.Display = func(p unsafe.Pointer, s *Shape) string {
			return reflect.NewAt(s.ty, p).Interface().(fmt.Stringer).String()
		}
	}
	if pt.Implements(textUnmType) {
		vt.Parse = func(dst unsafe.Pointer, s *Shape, text string) error {
			return reflect.NewAt(s.ty, dst).Interface().(encoding.TextUnmarshaler).
				UnmarshalText([]byte(text))
		}
	}
	if pt.Implements(validatorType) {
		vt.Validate = func(p unsafe.Pointer, s *Shape) error {
			return reflect.NewAt(s.ty, p).Interface().(Validator).Validate()
		}
	}
}

// typeHasPointers reports whether values of t embed pointers the garbage
// collector tracks. Always terminates: recursion without indirection is
// impossible in a valid Go type.
func typeHasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return t.Len() > 0 && typeHasPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if typeHasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
