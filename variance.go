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

	"github.com/reifylabs/reify/internal/scc"
)

// Variance classifies whether a shape's borrowed-data validity window may
// be safely narrowed when the shape is viewed generically.
type Variance int

const (
	// Bivariant shapes borrow nothing; their window is unconstrained.
	Bivariant Variance = iota
	// Covariant shapes borrow data through read-only references; their
	// window may be narrowed but not widened.
	Covariant
	// Invariant shapes hold mutable or opaque references; their window must
	// be preserved exactly.
	Invariant
)

// String implements [fmt.Stringer].
func (v Variance) String() string {
	switch v {
	case Bivariant:
		return "bivariant"
	case Covariant:
		return "covariant"
	case Invariant:
		return "invariant"
	}
	return "invalid"
}

// Join folds two variance contributions. Bivariant is the identity and
// Invariant is absorbing.
func (v Variance) Join(o Variance) Variance {
	return max(v, o)
}

// Variance returns the shape's variance classification, computing and
// caching it on first use.
//
// The computation folds the leaf contributions of every shape reachable
// from s over the strongly-connected-component DAG of the shape graph, so a
// recursive type contributes its cycle exactly once: within a component the
// cycle edge adds nothing (the identity, bivariant), which is the only
// sound reading of "the type borrows whatever it itself borrows".
// Recursion depth is bounded by the number of distinct shapes, never by
// structural nesting.
func (s *Shape) Variance() Variance {
	if v := s.variance.Load(); v != 0 {
		return Variance(v - 1)
	}

	dag := scc.Sort(s, shapeEdges)
	for c := range dag.Topological() {
		v := Bivariant
		for _, m := range c.Members() {
			v = v.Join(m.leaf)
		}
		// Dependencies are topologically earlier, so their members' caches
		// are already populated.
		for dep := range c.Deps() {
			v = v.Join(Variance(dep.Members()[0].variance.Load() - 1))
		}
		for _, m := range c.Members() {
			m.variance.Store(int32(v) + 1)
		}
	}

	return Variance(s.variance.Load() - 1)
}

// shapeEdges yields the shapes a shape's definition refers to.
func shapeEdges(s *Shape) iter.Seq[*Shape] {
	return func(yield func(*Shape) bool) {
		emit := func(c *Shape) bool {
			if c == nil {
				return true
			}
			return yield(c)
		}

		switch def := s.def.(type) {
		case *StructDef:
			for i := range def.Fields {
				if !emit(def.Fields[i].Shape) {
					return
				}
			}
		case *EnumDef:
			for i := range def.Variants {
				for j := range def.Variants[i].Fields {
					if !emit(def.Variants[i].Fields[j].Shape) {
						return
					}
				}
			}
		case *ListDef:
			emit(def.Elem)
		case *MapDef:
			if emit(def.Key) {
				emit(def.Value)
			}
		case *SetDef:
			emit(def.Elem)
		case *OptionDef:
			emit(def.Inner)
		case *ResultDef:
			if emit(def.Ok) {
				emit(def.Err)
			}
		case *ArrayDef:
			emit(def.Elem)
		case *SliceDef:
			emit(def.Elem)
		case *PointerDef:
			emit(def.Elem)
		case *SmartPtrDef:
			emit(def.Pointee)
		}
	}
}
