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

	"github.com/reifylabs/reify/internal/xunsafe"
)

// VariantRepr classifies how a variant's payload is declared.
type VariantRepr int

const (
	// ReprUnit is a payload-free variant.
	ReprUnit VariantRepr = iota
	// ReprTuple is a variant with positional fields, named "0", "1", ...
	ReprTuple
	// ReprStruct is a variant with named fields.
	ReprStruct
)

// Variant is one alternative of an enum shape.
type Variant struct {
	// Name is the variant's logical name.
	Name string

	// Disc is the variant's discriminant value. It must be representable in
	// the owning enum's discriminant encoding.
	Disc int64

	// Repr is the variant's declaration style.
	Repr VariantRepr

	// Fields is the variant's payload, in declaration order. Offsets are
	// relative to the enum's backing layout.
	Fields []Field
}

// FieldByName returns the index and descriptor of the named payload field,
// or (-1, nil). Variant payloads are small, so this is a linear scan.
func (v *Variant) FieldByName(name string) (int, *Field) {
	for i := range v.Fields {
		if v.Fields[i].Name == name {
			return i, &v.Fields[i]
		}
	}
	return -1, nil
}

// DiscKind is the representation of an enum's discriminant: its width and
// signedness.
type DiscKind int

const (
	DiscU8 DiscKind = iota
	DiscI8
	DiscU16
	DiscI16
	DiscU32
	DiscI32
	DiscU64
	DiscI64

	// DiscWord is pointer-sized and unsigned.
	DiscWord
)

// Width returns the encoding's width in bytes.
func (k DiscKind) Width() int {
	switch k {
	case DiscU8, DiscI8:
		return 1
	case DiscU16, DiscI16:
		return 2
	case DiscU32, DiscI32:
		return 4
	case DiscU64, DiscI64:
		return 8
	case DiscWord:
		return int(unsafe.Sizeof(uintptr(0)))
	}
	return 0
}

// Signed reports whether the encoding is sign-extended.
func (k DiscKind) Signed() bool {
	switch k {
	case DiscI8, DiscI16, DiscI32, DiscI64:
		return true
	}
	return false
}

// Fits reports whether disc is representable in this encoding. Unsigned
// encodings reject negative discriminants at every width; there is no
// raw-bit reinterpretation.
func (k DiscKind) Fits(disc int64) bool {
	bits := k.Width() * 8
	if k.Signed() {
		return bits >= 64 || (disc >= -1<<(bits-1) && disc < 1<<(bits-1))
	}
	if disc < 0 {
		return false
	}
	return bits >= 64 || disc < 1<<bits
}

// store writes disc at p in this encoding.
func (k DiscKind) store(p unsafe.Pointer, disc int64) {
	switch k.Width() {
	case 1:
		*(*uint8)(p) = uint8(disc)
	case 2:
		*(*uint16)(p) = uint16(disc)
	case 4:
		*(*uint32)(p) = uint32(disc)
	default:
		*(*uint64)(p) = uint64(disc)
	}
}

// load reads the discriminant at p, sign- or zero-extending to 64 bits per
// the encoding.
func (k DiscKind) load(p unsafe.Pointer) int64 {
	switch k {
	case DiscU8:
		return int64(*(*uint8)(p))
	case DiscI8:
		return int64(*(*int8)(p))
	case DiscU16:
		return int64(*(*uint16)(p))
	case DiscI16:
		return int64(*(*int16)(p))
	case DiscU32:
		return int64(*(*uint32)(p))
	case DiscI32:
		return int64(*(*int32)(p))
	case DiscI64:
		return *(*int64)(p)
	case DiscWord:
		return int64(*(*uintptr)(p))
	default:
		return int64(*(*uint64)(p))
	}
}

// rawDisc returns the raw discriminant bytes at p, for diagnostics and
// tests.
func (k DiscKind) rawDisc(p unsafe.Pointer) []byte {
	return xunsafe.Slice((*byte)(p), k.Width())
}
