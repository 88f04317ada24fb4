// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

// Package shapes defines the Shape of values flowing through the tensor IR.
//
// A Shape carries the element DType -- reusing the enumeration from
// github.com/gomlx/gopjrt/dtypes -- and the dimensions of each axis. Unlike a
// concrete tensor shape, an IR shape may be partially known: any axis whose
// size is only determined at run time holds DimDynamic.
//
// ## Glossary
//
//   - Rank: number of axes of a value.
//   - Axis: index of one dimension; axis -1 refers to the last axis.
//   - Dimension: the size of one axis, or DimDynamic if unknown.
//   - Static shape: a shape with no dynamic axes.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// DimDynamic marks an axis whose dimension is only known at run time.
const DimDynamic = -1

// Shape of a value in the IR: element type plus per-axis dimensions.
// Axes with unknown run-time size hold DimDynamic.
//
// Use Make (all axes known) or MakeDynamic to create one.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a static Shape with the given dtype and dimensions.
// It panics if any dimension is not positive; use MakeDynamic for shapes
// with unknown axes.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
	for _, dim := range dimensions {
		if dim <= 0 {
			exceptions.Panicf("shapes.Make(%s): axes must have dimension > 0, use MakeDynamic for unknown axes", s)
		}
	}
	return s
}

// MakeDynamic returns a Shape that may contain DimDynamic axes.
func MakeDynamic(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
	for _, dim := range dimensions {
		if dim <= 0 && dim != DimDynamic {
			exceptions.Panicf("shapes.MakeDynamic(%s): dimensions must be > 0 or DimDynamic", s)
		}
	}
	return s
}

// Scalar returns a rank-0 shape of the given dtype.
func Scalar(dtype dtypes.DType) Shape {
	return Shape{DType: dtype}
}

// Invalid returns an invalid shape: Invalid().Ok() == false.
func Invalid() Shape { return Shape{DType: dtypes.InvalidDType} }

// Ok returns whether this is a valid Shape. The zero value Shape{} is invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape has rank 0.
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension of the given axis. Negative axes count from the
// end, so Dim(-1) is the last axis. It panics on out-of-bounds axes.
func (s Shape) Dim(axis int) int {
	adjusted := axis
	if adjusted < 0 {
		adjusted += s.Rank()
	}
	if adjusted < 0 || adjusted >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjusted]
}

// IsDimStatic returns whether the given axis has a known dimension.
func (s Shape) IsDimStatic(axis int) bool { return s.Dim(axis) != DimDynamic }

// IsStatic returns whether all axes have known dimensions.
func (s Shape) IsStatic() bool {
	for _, dim := range s.Dimensions {
		if dim == DimDynamic {
			return false
		}
	}
	return true
}

// IsDynamic returns whether at least one axis has an unknown dimension.
func (s Shape) IsDynamic() bool { return !s.IsStatic() }

// Size returns the number of elements held by the shape: the product of all
// dimensions. It returns DimDynamic if any axis is dynamic.
func (s Shape) Size() int {
	size := 1
	for _, dim := range s.Dimensions {
		if dim == DimDynamic {
			return DimDynamic
		}
		size *= dim
	}
	return size
}

// Memory returns the bytes needed to store a static tensor of this shape.
func (s Shape) Memory() uintptr {
	size := s.Size()
	if size == DimDynamic {
		return 0
	}
	return s.DType.Memory() * uintptr(size)
}

// Shape returns a shallow copy of itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// HasShape is the interface of anything that can report its Shape.
type HasShape interface {
	Shape() Shape
}

// Equal compares dtype and dimensions. Dynamic axes only compare equal to
// dynamic axes.
func (s Shape) Equal(s2 Shape) bool {
	if s.DType != s2.DType {
		return false
	}
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// EqualDimensions compares the dimensions only, ignoring the dtypes.
func (s Shape) EqualDimensions(s2 Shape) bool {
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)}
}

// String implements fmt.Stringer, printing dynamic axes as "?".
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	parts := make([]string, 0, s.Rank())
	for _, dim := range s.Dimensions {
		if dim == DimDynamic {
			parts = append(parts, "?")
		} else {
			parts = append(parts, fmt.Sprintf("%d", dim))
		}
	}
	return fmt.Sprintf("(%s)[%s]", s.DType, strings.Join(parts, " "))
}
