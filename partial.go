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
	"strings"
	"unsafe"

	"github.com/reifylabs/reify/internal/arena"
	"github.com/reifylabs/reify/internal/debug"
	"github.com/reifylabs/reify/internal/xunsafe"
)

// Partial builds one value incrementally, without knowing its type at
// compile time. It keeps a stack of frames, one per value currently under
// construction; Begin operations push, End pops and folds the completed
// child into its parent.
//
// Every error is local: a failed operation changes nothing, and the builder
// stays droppable. Abandon (or a failed Build followed by Abandon) runs the
// drop operation exactly once for every initialized sub-value and never for
// anything else.
//
// A Partial is not safe for concurrent use.
type Partial struct {
	arena  arena.Arena
	frames []frame
	done   bool
}

// frameMode says how End folds a frame into its parent.
type frameMode uint8

const (
	modeRoot frameMode = iota
	modeField         // writes parent storage; End marks the parent's field bit
	modeListElem      // scratch; End appends to the parent list
	modeSetElem       // scratch; End inserts into the parent set
	modeMapKey        // scratch; End parks the key on the parent
	modeMapValue      // scratch; End inserts parked key + value
	modeSome          // scratch; End stores the option payload and flag
	modeOk            // scratch; End stores the ok payload and tag
	modeErr           // scratch; End stores the err payload and tag
	modeSmartPtrInner // scratch; End parks the pointee for deferred resolution
)

type frame struct {
	shape *Shape
	ptr   unsafe.Pointer
	guard *Guard // non-nil when the frame owns scratch storage
	mode  frameMode
	name  string // slot name, for Path and diagnostics

	// Whole-value initialization. Container frames are born initialized:
	// an empty list, map or set is a complete value.
	init bool

	// Struct and enum payload tracking.
	bits  []uint64
	field int // modeField: index in the parent's field list

	// Enum: selected variant index, -1 until SelectVariant.
	variant int

	// Map: completed key awaiting its value.
	pendingKey *Guard

	// Smart pointer: completed pointee awaiting FinishDeferred.
	pendingInner *Guard
}

// NewPartial starts building a value of the given shape.
func NewPartial(s *Shape) (*Partial, error) {
	p := &Partial{}
	g, err := newGuard(&p.arena, s)
	if err != nil {
		return nil, err
	}
	p.frames = append(p.frames, p.newFrame(s, g.Ptr(), g, modeRoot, s.name))
	return p, nil
}

// Alloc starts building a value of T's shape. T is always sized, so unlike
// NewPartial this cannot fail.
func Alloc[T any]() *Partial {
	p, err := NewPartial(For[T]())
	if err != nil {
		panic(err)
	}
	return p
}

// newFrame sets up per-kind tracking for a fresh frame.
func (p *Partial) newFrame(s *Shape, ptr unsafe.Pointer, g *Guard, mode frameMode, name string) frame {
	f := frame{shape: s, ptr: ptr, guard: g, mode: mode, name: name, variant: -1}
	switch def := s.def.(type) {
	case *StructDef:
		f.bits = make([]uint64, (len(def.Fields)+63)/64)
	case *ListDef:
		f.init = true
	case *MapDef:
		def.Init(ptr)
		f.init = true
	case *SetDef:
		def.Init(ptr)
		f.init = true
	}
	return f
}

func (p *Partial) top() *frame {
	return &p.frames[len(p.frames)-1]
}

func (p *Partial) check() error {
	if p.done {
		return errorf(ErrInvariant, nil, "", "builder already consumed")
	}
	return nil
}

// Shape returns the shape of the value under construction in the current
// frame.
func (p *Partial) Shape() *Shape { return p.top().shape }

// Path renders the current frame stack for diagnostics, outermost first.
func (p *Partial) Path() string {
	parts := make([]string, len(p.frames))
	for i := range p.frames {
		parts[i] = p.frames[i].name
	}
	return strings.Join(parts, ".")
}

// pushScratch allocates scratch storage for a child value and pushes its
// frame.
func (p *Partial) pushScratch(s *Shape, mode frameMode, name string) error {
	g, err := newGuard(&p.arena, s)
	if err != nil {
		return err
	}
	p.frames = append(p.frames, p.newFrame(s, g.Ptr(), g, mode, name))
	return nil
}

// BeginField starts the named field of the current struct, or of the
// current enum's selected variant.
func (p *Partial) BeginField(name string) error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	switch def := f.shape.def.(type) {
	case *StructDef:
		i, fd := def.FieldByName(name)
		if fd == nil {
			return errorf(ErrNoSuchField, f.shape, name, "no field %q", name)
		}
		return p.beginFieldAt(f, i, fd)
	case *EnumDef:
		if f.variant < 0 {
			return errorf(ErrInvariant, f.shape, name, "no variant selected")
		}
		v := &def.Variants[f.variant]
		i, fd := v.FieldByName(name)
		if fd == nil {
			return errorf(ErrNoSuchField, f.shape, name,
				"variant %s has no field %q", v.Name, name)
		}
		return p.beginFieldAt(f, i, fd)
	}
	return errorf(ErrShapeMismatch, f.shape, name, "%s has no fields", f.shape.name)
}

// BeginNthField starts the ith field, counting declaration order.
func (p *Partial) BeginNthField(i int) error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	switch def := f.shape.def.(type) {
	case *StructDef:
		if i < 0 || i >= len(def.Fields) {
			return errorf(ErrNoSuchField, f.shape, "", "no field %d", i)
		}
		return p.beginFieldAt(f, i, &def.Fields[i])
	case *EnumDef:
		if f.variant < 0 {
			return errorf(ErrInvariant, f.shape, "", "no variant selected")
		}
		v := &def.Variants[f.variant]
		if i < 0 || i >= len(v.Fields) {
			return errorf(ErrNoSuchField, f.shape, "", "variant %s has no field %d", v.Name, i)
		}
		return p.beginFieldAt(f, i, &v.Fields[i])
	}
	return errorf(ErrShapeMismatch, f.shape, "", "%s has no fields", f.shape.name)
}

func (p *Partial) beginFieldAt(f *frame, i int, fd *Field) error {
	ptr := unsafe.Add(f.ptr, fd.Offset)
	if bitGet(f.bits, i) {
		// Re-beginning a completed field replaces its value.
		fd.Shape.vt.Drop(ptr, fd.Shape)
		zeroValue(fd.Shape, ptr)
		bitClear(f.bits, i)
	}
	nf := p.newFrame(fd.Shape, ptr, nil, modeField, fd.Name)
	nf.field = i
	p.frames = append(p.frames, nf)
	return nil
}

// SelectVariant selects the named variant of the current enum, storing its
// discriminant. Re-selecting drops whatever payload the previous selection
// had initialized.
func (p *Partial) SelectVariant(name string) error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	def, ok := f.shape.def.(*EnumDef)
	if !ok {
		return errorf(ErrShapeMismatch, f.shape, name, "%s is not an enum", f.shape.name)
	}
	i, _ := def.VariantByName(name)
	if i < 0 {
		return errorf(ErrNoSuchVariant, f.shape, name, "no variant %q", name)
	}
	p.selectVariantAt(f, def, i)
	return nil
}

// SelectVariantAt selects a variant by declaration index.
func (p *Partial) SelectVariantAt(i int) error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	def, ok := f.shape.def.(*EnumDef)
	if !ok {
		return errorf(ErrShapeMismatch, f.shape, "", "%s is not an enum", f.shape.name)
	}
	if i < 0 || i >= len(def.Variants) {
		return errorf(ErrNoSuchVariant, f.shape, "", "no variant %d", i)
	}
	p.selectVariantAt(f, def, i)
	return nil
}

func (p *Partial) selectVariantAt(f *frame, def *EnumDef, i int) {
	if f.variant >= 0 {
		dropVariantPayload(f, &def.Variants[f.variant])
	}
	v := &def.Variants[i]
	def.Disc.store(unsafe.Add(f.ptr, def.DiscOffset), v.Disc)
	f.variant = i
	f.bits = make([]uint64, (len(v.Fields)+63)/64)
	debug.Log(nil, "select", "%s.%s disc=%d", f.shape.name, v.Name, v.Disc)
}

// BeginListItem starts the next element of the current list.
func (p *Partial) BeginListItem() error {
	if err := p.check(); err != nil {
		return err
	}
	def, ok := p.top().shape.def.(*ListDef)
	if !ok {
		return errorf(ErrShapeMismatch, p.top().shape, "", "%s is not a list", p.top().shape.name)
	}
	return p.pushScratch(def.Elem, modeListElem, "[item]")
}

// BeginSetItem starts the next element of the current set.
func (p *Partial) BeginSetItem() error {
	if err := p.check(); err != nil {
		return err
	}
	def, ok := p.top().shape.def.(*SetDef)
	if !ok {
		return errorf(ErrShapeMismatch, p.top().shape, "", "%s is not a set", p.top().shape.name)
	}
	return p.pushScratch(def.Elem, modeSetElem, "[item]")
}

// BeginKey starts the next entry's key in the current map. Each key must be
// followed by BeginValue before another BeginKey.
func (p *Partial) BeginKey() error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	def, ok := f.shape.def.(*MapDef)
	if !ok {
		return errorf(ErrShapeMismatch, f.shape, "", "%s is not a map", f.shape.name)
	}
	if f.pendingKey != nil {
		return errorf(ErrInvariant, f.shape, "", "previous key has no value yet")
	}
	return p.pushScratch(def.Key, modeMapKey, "[key]")
}

// BeginValue starts the value for the most recently completed key.
func (p *Partial) BeginValue() error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	def, ok := f.shape.def.(*MapDef)
	if !ok {
		return errorf(ErrShapeMismatch, f.shape, "", "%s is not a map", f.shape.name)
	}
	if f.pendingKey == nil {
		return errorf(ErrInvariant, f.shape, "", "no key to pair a value with")
	}
	return p.pushScratch(def.Value, modeMapValue, "[value]")
}

// BeginSmartPtr starts the pointee of the current smart pointer. The
// completed pointee is parked when its frame ends; FinishDeferred (or the
// smart pointer's own End or Build) runs the constructor.
func (p *Partial) BeginSmartPtr() error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	def, ok := f.shape.def.(*SmartPtrDef)
	if !ok {
		return errorf(ErrShapeMismatch, f.shape, "", "%s is not a smart pointer", f.shape.name)
	}
	if f.init || f.pendingInner != nil {
		return errorf(ErrInvariant, f.shape, "", "smart pointer already has a pointee")
	}
	return p.pushScratch(def.Pointee, modeSmartPtrInner, "*")
}

// BeginSome starts the payload of the current option.
func (p *Partial) BeginSome() error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	def, ok := f.shape.def.(*OptionDef)
	if !ok {
		return errorf(ErrShapeMismatch, f.shape, "", "%s is not an option", f.shape.name)
	}
	if f.init {
		f.shape.vt.Drop(f.ptr, f.shape)
		zeroValue(f.shape, f.ptr)
		f.init = false
	}
	return p.pushScratch(def.Inner, modeSome, "some")
}

// SetNone completes the current option as none.
func (p *Partial) SetNone() error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	def, ok := f.shape.def.(*OptionDef)
	if !ok {
		return errorf(ErrShapeMismatch, f.shape, "", "%s is not an option", f.shape.name)
	}
	if f.init {
		f.shape.vt.Drop(f.ptr, f.shape)
	}
	def.SetNone(f.ptr)
	f.init = true
	return nil
}

// BeginOk starts the success payload of the current result.
func (p *Partial) BeginOk() error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	def, ok := f.shape.def.(*ResultDef)
	if !ok {
		return errorf(ErrShapeMismatch, f.shape, "", "%s is not a result", f.shape.name)
	}
	if f.init {
		f.shape.vt.Drop(f.ptr, f.shape)
		zeroValue(f.shape, f.ptr)
		f.init = false
	}
	return p.pushScratch(def.Ok, modeOk, "ok")
}

// BeginErr starts the error payload of the current result.
func (p *Partial) BeginErr() error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	def, ok := f.shape.def.(*ResultDef)
	if !ok {
		return errorf(ErrShapeMismatch, f.shape, "", "%s is not a result", f.shape.name)
	}
	if f.init {
		f.shape.vt.Drop(f.ptr, f.shape)
		zeroValue(f.shape, f.ptr)
		f.init = false
	}
	return p.pushScratch(def.Err, modeErr, "err")
}

// Set writes a whole value into the current frame. The value's shape must
// be exactly the frame's shape; a previously initialized value is dropped
// first.
func (p *Partial) Set(v any) error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	s := Of(reflect.TypeOf(v))
	if s != f.shape {
		return errorf(ErrShapeMismatch, f.shape, f.name, "cannot set %s into a %s slot",
			s.name, f.shape.name)
	}

	p.dropFramePartial(f)
	if s.hasPointers {
		reflect.NewAt(s.ty, f.ptr).Elem().Set(reflect.ValueOf(v))
	} else if s.size > 0 {
		xunsafe.UntypedCopy(f.ptr, xunsafe.AnyData(v), s.size)
	}
	f.init = true
	return nil
}

// SetDefault writes the frame shape's default value.
func (p *Partial) SetDefault() error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	p.dropFramePartial(f)
	f.shape.vt.Default(f.ptr, f.shape)
	f.init = true
	return nil
}

// SetField is shorthand for BeginField, Set, End.
func (p *Partial) SetField(name string, v any) error {
	if err := p.BeginField(name); err != nil {
		return err
	}
	if err := p.Set(v); err != nil {
		// Unwind the field frame we just pushed.
		p.frames = p.frames[:len(p.frames)-1]
		return err
	}
	return p.End()
}

// FinishDeferred resolves the current smart pointer from its parked
// pointee by running the constructor.
func (p *Partial) FinishDeferred() error {
	if err := p.check(); err != nil {
		return err
	}
	f := p.top()
	def, ok := f.shape.def.(*SmartPtrDef)
	if !ok {
		return errorf(ErrShapeMismatch, f.shape, "", "%s is not a smart pointer", f.shape.name)
	}
	if f.pendingInner == nil {
		return errorf(ErrInvariant, f.shape, "", "no deferred pointee to finish")
	}
	def.New(f.ptr, f.pendingInner.Move())
	f.pendingInner.Release()
	f.pendingInner = nil
	f.init = true
	return nil
}

// End completes the current frame and folds its value into the parent.
// The frame must be fully initialized.
func (p *Partial) End() error {
	if err := p.check(); err != nil {
		return err
	}
	if len(p.frames) == 1 {
		return errorf(ErrInvariant, p.top().shape, "", "End without a matching Begin")
	}

	f := p.top()
	if slot, ok := frameMissing(f); ok {
		// A parked pointee can still resolve implicitly.
		if f.pendingInner != nil {
			if err := p.FinishDeferred(); err != nil {
				return err
			}
		} else {
			return errorf(ErrPartialInit, f.shape, slot, "slot %q is not initialized", slot)
		}
	}
	if f.guard != nil {
		// The frame's value is complete; from here the guard owns it, so a
		// parked guard released by Abandon drops it.
		f.guard.MarkInit()
	}

	parent := &p.frames[len(p.frames)-2]
	switch f.mode {
	case modeField:
		bitSet(parent.bits, f.field)

	case modeListElem:
		parent.shape.def.(*ListDef).Append(parent.ptr, f.guard.Move())
		f.guard.Release()

	case modeSetElem:
		parent.shape.def.(*SetDef).Insert(parent.ptr, f.guard.Move())
		f.guard.Release()

	case modeMapKey:
		parent.pendingKey = f.guard

	case modeMapValue:
		def := parent.shape.def.(*MapDef)
		def.Insert(parent.ptr, parent.pendingKey.Move(), f.guard.Move())
		parent.pendingKey.Release()
		parent.pendingKey = nil
		f.guard.Release()

	case modeSome:
		def := parent.shape.def.(*OptionDef)
		def.SetSome(parent.ptr, f.guard.Move())
		f.guard.Release()
		parent.init = true

	case modeOk, modeErr:
		def := parent.shape.def.(*ResultDef)
		tag := unsafe.Add(parent.ptr, def.TagOffset)
		if f.mode == modeOk {
			*(*uint8)(tag) = 0
			moveValue(def.Ok, unsafe.Add(parent.ptr, def.OkOffset), f.guard.Move())
		} else {
			*(*uint8)(tag) = 1
			moveValue(def.Err, unsafe.Add(parent.ptr, def.ErrOffset), f.guard.Move())
		}
		f.guard.Release()
		parent.init = true

	case modeSmartPtrInner:
		parent.pendingInner = f.guard
	}

	p.frames = p.frames[:len(p.frames)-1]
	return nil
}

// Build completes the value. The stack must be back to its root frame and
// the value fully initialized; the shape's validate operation, if any, runs
// before ownership transfers. On error the builder is untouched and still
// droppable via Abandon.
func (p *Partial) Build() (*HeapValue, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if len(p.frames) != 1 {
		return nil, errorf(ErrInvariant, p.top().shape, "",
			"%d frames still open", len(p.frames)-1)
	}

	f := p.top()
	if slot, ok := frameMissing(f); ok {
		if f.pendingInner != nil {
			if err := p.FinishDeferred(); err != nil {
				return nil, err
			}
		} else {
			return nil, errorf(ErrPartialInit, f.shape, slot, "slot %q is not initialized", slot)
		}
	}

	if v := f.shape.vt.Validate; v != nil {
		if err := v(f.ptr, f.shape); err != nil {
			return nil, err
		}
	}

	f.guard.MarkInit()
	h := newHeapValue(f.shape, f.guard.Move())
	f.guard.Release()
	p.frames = nil
	p.done = true
	p.arena.Free()
	return h, nil
}

// Abandon discards the value under construction, dropping every
// initialized sub-value exactly once. Abandoning a consumed builder is a
// no-op.
func (p *Partial) Abandon() {
	if p.done {
		return
	}
	p.done = true
	for i := len(p.frames) - 1; i >= 0; i-- {
		f := &p.frames[i]
		if f.pendingKey != nil {
			f.pendingKey.Release()
		}
		if f.pendingInner != nil {
			f.pendingInner.Release()
		}
		p.dropFramePartial(f)
		if f.guard != nil {
			f.guard.Release()
		}
	}
	p.frames = nil
	p.arena.Free()
}

// dropFramePartial drops whatever the frame has initialized so far,
// leaving the storage zeroed and the frame uninitialized. Frames still
// open above this one track their own storage and are not touched.
func (p *Partial) dropFramePartial(f *frame) {
	if f.init {
		f.shape.vt.Drop(f.ptr, f.shape)
		zeroValue(f.shape, f.ptr)
		f.init = false
		return
	}
	switch def := f.shape.def.(type) {
	case *StructDef:
		for i := range def.Fields {
			if bitGet(f.bits, i) {
				fd := &def.Fields[i]
				fp := unsafe.Add(f.ptr, fd.Offset)
				fd.Shape.vt.Drop(fp, fd.Shape)
				zeroValue(fd.Shape, fp)
				bitClear(f.bits, i)
			}
		}
	case *EnumDef:
		if f.variant >= 0 {
			dropVariantPayload(f, &def.Variants[f.variant])
			xunsafe.UntypedClear(unsafe.Add(f.ptr, def.DiscOffset), def.Disc.Width())
			f.variant = -1
		}
	}
}

func dropVariantPayload(f *frame, v *Variant) {
	for i := range v.Fields {
		if bitGet(f.bits, i) {
			fd := &v.Fields[i]
			fp := unsafe.Add(f.ptr, fd.Offset)
			fd.Shape.vt.Drop(fp, fd.Shape)
			zeroValue(fd.Shape, fp)
			bitClear(f.bits, i)
		}
	}
}

// frameMissing reports the first uninitialized slot of a frame, if any.
func frameMissing(f *frame) (string, bool) {
	if f.pendingKey != nil {
		// The map itself is live, but an unpaired key leaves the entry
		// dangling.
		return "[value]", true
	}
	if f.init {
		return "", false
	}
	switch def := f.shape.def.(type) {
	case *StructDef:
		for i := range def.Fields {
			if !bitGet(f.bits, i) {
				return def.Fields[i].Name, true
			}
		}
		return "", false
	case *EnumDef:
		if f.variant < 0 {
			return "variant", true
		}
		v := &def.Variants[f.variant]
		for i := range v.Fields {
			if !bitGet(f.bits, i) {
				return v.Fields[i].Name, true
			}
		}
		return "", false
	}
	return "value", true
}

func bitGet(bits []uint64, i int) bool {
	return bits[i/64]&(1<<(i%64)) != 0
}

func bitSet(bits []uint64, i int) {
	bits[i/64] |= 1 << (i % 64)
}

func bitClear(bits []uint64, i int) {
	bits[i/64] &^= 1 << (i % 64)
}
