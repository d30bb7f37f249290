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

// Package reify is a runtime reflection data model: a fully type-erased way
// to describe, build and read values of almost any Go type, one operation
// at a time.
//
// Every type gets a [Shape]: an immutable singleton descriptor carrying the
// type's memory layout, a structural definition ([Def]) and an operation
// table ([VTable]). Obtain one with [For] or [Of]; types Go declarations
// cannot express directly (payload-carrying enums, smart pointers with
// out-of-place constructors, opaque leaves) are declared explicitly with
// [NewEnumShape], [NewSmartPtrShape] and [NewOpaqueShape].
//
// A [Partial] builds a value incrementally against its shape, keeping a
// stack of in-progress frames, and a successful [Partial.Build] yields an
// owning [HeapValue]. A [Peek] reads any value back structurally. Codecs,
// validators and debuggers build on these three without ever being
// generic over the types they handle.
//
// The builder is strict about ownership: however a build is abandoned,
// every initialized sub-value is dropped exactly once and nothing is
// dropped twice. Reads are strict about lifetimes: a Peek carries a
// [Window] validity token, and re-scoping a view to a narrower window is a
// checked operation gated by the shape's variance.
package reify
