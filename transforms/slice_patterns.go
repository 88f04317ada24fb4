// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass/pattern"
)

// numpyBroadcast is the broadcast attribute every element-wise op in the
// matched subgraphs carries.
var numpyBroadcast = pattern.Attrs{"auto_broadcast": "numpy"}

// genSlice matches a crop of one axis expressed as either a Slice or an
// equivalent StridedSlice. start, stop and step may be integer literals or
// symbol-expression strings; they are matched against constant operands.
//
// The StridedSlice form addresses axes 0..axis with begin/end masks set
// everywhere except the sliced axis, which is how frontends lower a
// single-axis crop.
func genSlice(data pattern.Source, start, stop, step any, axis int) *pattern.Pattern {
	sliceForm := pattern.WrapType(core.OpTypeSlice, data,
		pattern.Consts(start), pattern.Consts(stop), pattern.Consts(step), pattern.Consts(axis))

	begin := make([]any, axis+1)
	end := make([]any, axis+1)
	stride := make([]any, axis+1)
	for i := 0; i <= axis; i++ {
		begin[i], end[i], stride[i] = 0, 0, 1
	}
	begin[axis], end[axis], stride[axis] = start, stop, step

	stridedForm := pattern.WrapType(core.OpTypeStridedSlice, data,
		pattern.Consts(begin...), pattern.Consts(end...), pattern.Consts(stride...)).
		WithAttrs(stridedSliceAttrs(axis))

	return pattern.Or(sliceForm, stridedForm)
}

// genStridedSlice is the StridedSlice form alone, with the begin, end and
// stride operands given as sub-patterns instead of constant lists.
func genStridedSlice(data, begin, end, stride pattern.Source, axis int) *pattern.Pattern {
	return pattern.WrapType(core.OpTypeStridedSlice, data, begin, end, stride).
		WithAttrs(stridedSliceAttrs(axis))
}

func stridedSliceAttrs(axis int) pattern.Attrs {
	beginMask := make([]int64, axis+1)
	endMask := make([]int64, axis+1)
	for i := 0; i <= axis; i++ {
		beginMask[i], endMask[i] = 1, 1
	}
	beginMask[axis], endMask[axis] = 0, 0
	return pattern.Attrs{
		"begin_mask":       beginMask,
		"end_mask":         endMask,
		"new_axis_mask":    []int64{},
		"shrink_axis_mask": []int64{},
		"ellipsis_mask":    []int64{},
	}
}
