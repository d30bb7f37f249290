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
	"strings"

	"github.com/reifylabs/reify/internal/swiss"
)

// Field is one field of a struct shape or of an enum variant's payload.
type Field struct {
	// Name is the field's logical name, which need not match the backing
	// declaration.
	Name string

	// Offset is the field's byte offset within the owning layout.
	Offset int

	// Shape describes the field's value.
	Shape *Shape

	// Flags carries the field's attributes.
	Flags FieldFlags
}

// FieldFlags is a bitset of field attributes.
type FieldFlags uint32

const (
	// FlagSkipSerialize marks a field serializers should not emit.
	FlagSkipSerialize FieldFlags = 1 << iota
	// FlagSensitive marks a field whose value must not appear in debug
	// output or diagnostics.
	FlagSensitive
	// FlagFlatten marks a field whose own fields codecs treat as if they
	// were declared on the parent.
	FlagFlatten
	// FlagChild marks a field holding child nodes in document-tree formats.
	FlagChild
)

// Has reports whether all bits of o are set in f.
func (f FieldFlags) Has(o FieldFlags) bool { return f&o == o }

// parseFieldTag splits a `reify:"..."` struct tag into a name override and
// flags. An empty name keeps the declared one.
func parseFieldTag(tag string) (name string, flags FieldFlags, skip bool) {
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "-" {
		return "", 0, true
	}
	for _, p := range parts[1:] {
		switch p {
		case "skip":
			flags |= FlagSkipSerialize
		case "sensitive":
			flags |= FlagSensitive
		case "flatten":
			flags |= FlagFlatten
		case "child":
			flags |= FlagChild
		}
	}
	return name, flags, false
}

// fieldTable maps field or variant names to their index.
//
// The swisstable stores indices only; name bytes are extracted out of the
// names slice on probe, so keys of any length cost one word per entry.
type fieldTable struct {
	names []string
	table *swiss.Table[uint32, uint32]
}

func newFieldTable(names []string) *fieldTable {
	t := &fieldTable{names: names}
	entries := make([]swiss.Entry[uint32, uint32], len(names))
	for i := range names {
		entries[i] = swiss.KV(uint32(i), uint32(i))
	}
	t.table = swiss.New(func(k uint32) []byte {
		return []byte(t.names[k])
	}, entries...)
	return t
}

func (t *fieldTable) lookup(fields []Field, name string) (int, *Field) {
	v := t.table.LookupFunc([]byte(name))
	if v == nil {
		return -1, nil
	}
	return int(*v), &fields[*v]
}
