// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package core

import (
	"fmt"
)

// OpType identifies the operation performed by a Node.
type OpType int

const (
	OpTypeInvalid OpType = iota
	OpTypeParameter
	OpTypeConstant
	OpTypeAdd
	OpTypeMultiply
	OpTypeMatMul
	OpTypeReshape
	OpTypeConcat
	OpTypeSplit
	OpTypeVariadicSplit
	OpTypeSlice
	OpTypeStridedSlice
	OpTypeTranspose
	OpTypeGather
	OpTypeGatherElements
	OpTypeSqueeze
	OpTypeUnsqueeze
	OpTypeShapeOf
	OpTypeScatterUpdate
	OpTypeBroadcast
	OpTypeCos
	OpTypeSin
	OpTypeRoPE
)

var opTypeNames = [...]string{
	OpTypeInvalid:        "Invalid",
	OpTypeParameter:      "Parameter",
	OpTypeConstant:       "Constant",
	OpTypeAdd:            "Add",
	OpTypeMultiply:       "Multiply",
	OpTypeMatMul:         "MatMul",
	OpTypeReshape:        "Reshape",
	OpTypeConcat:         "Concat",
	OpTypeSplit:          "Split",
	OpTypeVariadicSplit:  "VariadicSplit",
	OpTypeSlice:          "Slice",
	OpTypeStridedSlice:   "StridedSlice",
	OpTypeTranspose:      "Transpose",
	OpTypeGather:         "Gather",
	OpTypeGatherElements: "GatherElements",
	OpTypeSqueeze:        "Squeeze",
	OpTypeUnsqueeze:      "Unsqueeze",
	OpTypeShapeOf:        "ShapeOf",
	OpTypeScatterUpdate:  "ScatterUpdate",
	OpTypeBroadcast:      "Broadcast",
	OpTypeCos:            "Cos",
	OpTypeSin:            "Sin",
	OpTypeRoPE:           "RoPE",
}

// String implements fmt.Stringer.
func (t OpType) String() string {
	if t < 0 || int(t) >= len(opTypeNames) {
		return fmt.Sprintf("OpType(%d)", int(t))
	}
	return opTypeNames[t]
}

// Op describes the operation a Node performs: its kind plus any static
// attributes. Ops form a closed variant set; narrowing a generic Node handle
// to a concrete op is done with As (a capability query, no reflection).
type Op interface {
	Type() OpType

	// String prints a descriptive representation of the op with its attributes.
	String() string
}

// AttrOp is implemented by ops that carry static attributes, exposing them
// for structural pattern matching by name.
type AttrOp interface {
	Op
	Attrs() map[string]any
}

// As narrows a node's op to the concrete type T.
// It returns (zero, false) when the node holds a different op kind.
func As[T Op](n *Node) (op T, ok bool) {
	if n == nil {
		return
	}
	op, ok = n.op.(T)
	return
}

// Parameter is a graph input.
type Parameter struct {
	Name string
}

func (op *Parameter) Type() OpType   { return OpTypeParameter }
func (op *Parameter) String() string { return fmt.Sprintf("Parameter(%q)", op.Name) }

// Add is element-wise addition with the given broadcast mode.
type Add struct {
	AutoBroadcast string
}

func (op *Add) Type() OpType          { return OpTypeAdd }
func (op *Add) String() string        { return "Add(auto_broadcast=" + op.AutoBroadcast + ")" }
func (op *Add) Attrs() map[string]any { return map[string]any{"auto_broadcast": op.AutoBroadcast} }

// Multiply is element-wise multiplication with the given broadcast mode.
type Multiply struct {
	AutoBroadcast string
}

func (op *Multiply) Type() OpType          { return OpTypeMultiply }
func (op *Multiply) String() string        { return "Multiply(auto_broadcast=" + op.AutoBroadcast + ")" }
func (op *Multiply) Attrs() map[string]any { return map[string]any{"auto_broadcast": op.AutoBroadcast} }

// MatMul multiplies two batched matrices.
type MatMul struct {
	TransposeA, TransposeB bool
}

func (op *MatMul) Type() OpType { return OpTypeMatMul }
func (op *MatMul) String() string {
	return fmt.Sprintf("MatMul(transpose_a=%v, transpose_b=%v)", op.TransposeA, op.TransposeB)
}
func (op *MatMul) Attrs() map[string]any {
	return map[string]any{"transpose_a": op.TransposeA, "transpose_b": op.TransposeB}
}

// Reshape reinterprets input 0 with the target shape given by input 1.
// With SpecialZero set, a target dimension of 0 copies the corresponding
// input dimension, and -1 is derived from the remaining size.
type Reshape struct {
	SpecialZero bool
}

func (op *Reshape) Type() OpType          { return OpTypeReshape }
func (op *Reshape) String() string        { return fmt.Sprintf("Reshape(special_zero=%v)", op.SpecialZero) }
func (op *Reshape) Attrs() map[string]any { return map[string]any{"special_zero": op.SpecialZero} }

// Concat concatenates all inputs along Axis.
type Concat struct {
	Axis int
}

func (op *Concat) Type() OpType          { return OpTypeConcat }
func (op *Concat) String() string        { return fmt.Sprintf("Concat(axis=%d)", op.Axis) }
func (op *Concat) Attrs() map[string]any { return map[string]any{"axis": op.Axis} }

// Split splits input 0 into NumSplits equal parts along the axis given by
// input 1 (a scalar constant). The node has NumSplits outputs.
type Split struct {
	NumSplits int
}

func (op *Split) Type() OpType          { return OpTypeSplit }
func (op *Split) String() string        { return fmt.Sprintf("Split(num_splits=%d)", op.NumSplits) }
func (op *Split) Attrs() map[string]any { return map[string]any{"num_splits": op.NumSplits} }

// VariadicSplit splits input 0 along the axis given by input 1 into parts
// whose lengths are given by input 2; a length of -1 means "the remainder".
type VariadicSplit struct{}

func (op *VariadicSplit) Type() OpType   { return OpTypeVariadicSplit }
func (op *VariadicSplit) String() string { return "VariadicSplit" }

// Slice crops input 0: inputs are (data, start, stop, step, axes).
type Slice struct{}

func (op *Slice) Type() OpType   { return OpTypeSlice }
func (op *Slice) String() string { return "Slice" }

// StridedSlice crops input 0 with TensorFlow-style masks: inputs are
// (data, begin, end, strides). A set bit in BeginMask/EndMask ignores the
// corresponding begin/end value.
type StridedSlice struct {
	BeginMask      []int64
	EndMask        []int64
	NewAxisMask    []int64
	ShrinkAxisMask []int64
	EllipsisMask   []int64
}

func (op *StridedSlice) Type() OpType { return OpTypeStridedSlice }
func (op *StridedSlice) String() string {
	return fmt.Sprintf("StridedSlice(begin_mask=%v, end_mask=%v)", op.BeginMask, op.EndMask)
}
func (op *StridedSlice) Attrs() map[string]any {
	return map[string]any{
		"begin_mask":       op.BeginMask,
		"end_mask":         op.EndMask,
		"new_axis_mask":    op.NewAxisMask,
		"shrink_axis_mask": op.ShrinkAxisMask,
		"ellipsis_mask":    op.EllipsisMask,
	}
}

// Transpose permutes the axes of input 0 by the permutation constant in input 1.
type Transpose struct{}

func (op *Transpose) Type() OpType   { return OpTypeTranspose }
func (op *Transpose) String() string { return "Transpose" }

// Gather gathers slices from input 0 at the indices of input 1, along the
// axis given by input 2.
type Gather struct {
	BatchDims int
}

func (op *Gather) Type() OpType          { return OpTypeGather }
func (op *Gather) String() string        { return fmt.Sprintf("Gather(batch_dims=%d)", op.BatchDims) }
func (op *Gather) Attrs() map[string]any { return map[string]any{"batch_dims": op.BatchDims} }

// GatherElements gathers elements of input 0 at the per-element indices of
// input 1 along Axis.
type GatherElements struct {
	Axis int
}

func (op *GatherElements) Type() OpType          { return OpTypeGatherElements }
func (op *GatherElements) String() string        { return fmt.Sprintf("GatherElements(axis=%d)", op.Axis) }
func (op *GatherElements) Attrs() map[string]any { return map[string]any{"axis": op.Axis} }

// Squeeze removes the axes listed in input 1 from input 0.
type Squeeze struct{}

func (op *Squeeze) Type() OpType   { return OpTypeSqueeze }
func (op *Squeeze) String() string { return "Squeeze" }

// Unsqueeze inserts size-1 axes at the positions listed in input 1.
type Unsqueeze struct{}

func (op *Unsqueeze) Type() OpType   { return OpTypeUnsqueeze }
func (op *Unsqueeze) String() string { return "Unsqueeze" }

// ShapeOf returns the run-time shape of input 0 as a 1D integer tensor.
type ShapeOf struct{}

func (op *ShapeOf) Type() OpType   { return OpTypeShapeOf }
func (op *ShapeOf) String() string { return "ShapeOf" }

// ScatterUpdate writes input 2 into input 0 at the indices of input 1 along
// the axis given by input 3.
type ScatterUpdate struct{}

func (op *ScatterUpdate) Type() OpType   { return OpTypeScatterUpdate }
func (op *ScatterUpdate) String() string { return "ScatterUpdate" }

// Broadcast expands input 0 to the target shape given by input 1.
type Broadcast struct {
	Mode string
}

func (op *Broadcast) Type() OpType          { return OpTypeBroadcast }
func (op *Broadcast) String() string        { return "Broadcast(mode=" + op.Mode + ")" }
func (op *Broadcast) Attrs() map[string]any { return map[string]any{"mode": op.Mode} }

// Cos is the element-wise cosine.
type Cos struct{}

func (op *Cos) Type() OpType   { return OpTypeCos }
func (op *Cos) String() string { return "Cos" }

// Sin is the element-wise sine.
type Sin struct{}

func (op *Sin) Type() OpType   { return OpTypeSin }
func (op *Sin) String() string { return "Sin" }
