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

package xunsafe

import "unsafe"

// iface is the internal representation of a Go interface value.
type iface struct {
	itab uintptr
	data unsafe.Pointer
}

// AnyData extracts the data pointer from an any.
//
// For indirect interfaces this is a pointer to the boxed value; callers must
// already know whether the dynamic type is stored by pointer.
func AnyData(v any) unsafe.Pointer {
	return (*iface)(unsafe.Pointer(&v)).data
}

// AnyType extracts the opaque type token from an any.
func AnyType(v any) uintptr {
	return (*iface)(unsafe.Pointer(&v)).itab
}
