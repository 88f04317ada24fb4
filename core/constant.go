// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package core

import (
	"encoding/binary"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"

	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

// Constant is an op holding immutable tensor data. The raw little-endian
// bytes are kept so structurally identical tables can be compared
// byte-for-byte by the sharing pass.
type Constant struct {
	shape shapes.Shape
	data  []byte
}

func (op *Constant) Type() OpType { return OpTypeConstant }

func (op *Constant) String() string { return "Constant" + op.shape.String() }

// ConstShape returns the shape of the held data.
func (op *Constant) ConstShape() shapes.Shape { return op.shape }

// Data returns the raw little-endian bytes of the held data.
func (op *Constant) Data() []byte { return op.data }

// ByteSize returns the size of the held data in bytes.
func (op *Constant) ByteSize() int { return len(op.data) }

// ConstFromFlat creates a Constant node with the given dtype and dimensions
// from a flat slice of values. Supported dtypes: Float32, Float16, Int32,
// Int64, Uint8.
func ConstFromFlat[T constraints.Integer | constraints.Float](g *Graph, dtype dtypes.DType, dims []int, values []T) *Node {
	shape := shapes.Make(dtype, dims...)
	if shape.Size() != len(values) {
		exceptions.Panicf("ConstFromFlat: shape %s needs %d values, got %d", shape, shape.Size(), len(values))
	}
	data := make([]byte, 0, shape.Memory())
	for _, v := range values {
		switch dtype {
		case dtypes.Float32:
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(float32(v)))
		case dtypes.Float16:
			data = binary.LittleEndian.AppendUint16(data, uint16(float16.Fromfloat32(float32(v))))
		case dtypes.Int32:
			data = binary.LittleEndian.AppendUint32(data, uint32(int32(v)))
		case dtypes.Int64:
			data = binary.LittleEndian.AppendUint64(data, uint64(int64(v)))
		case dtypes.Uint8:
			data = append(data, byte(v))
		default:
			exceptions.Panicf("ConstFromFlat: unsupported dtype %s", dtype)
		}
	}
	op := &Constant{shape: shape, data: data}
	return g.NewNode(op, []shapes.Shape{shape})
}

// ConstScalar creates a rank-0 Constant node of the given dtype.
func ConstScalar(g *Graph, dtype dtypes.DType, value float64) *Node {
	return ConstFromFlat(g, dtype, nil, []float64{value})
}

// ConstVector creates a 1D integer Constant node.
func ConstVector(g *Graph, dtype dtypes.DType, values ...int) *Node {
	return ConstFromFlat(g, dtype, []int{len(values)}, values)
}

// Ints decodes the constant as a flat []int. It returns ok=false for
// non-integer dtypes.
func (op *Constant) Ints() (values []int, ok bool) {
	n := op.shape.Size()
	values = make([]int, 0, n)
	switch op.shape.DType {
	case dtypes.Int32:
		for i := 0; i < n; i++ {
			values = append(values, int(int32(binary.LittleEndian.Uint32(op.data[i*4:]))))
		}
	case dtypes.Int64:
		for i := 0; i < n; i++ {
			values = append(values, int(int64(binary.LittleEndian.Uint64(op.data[i*8:]))))
		}
	case dtypes.Uint8:
		for i := 0; i < n; i++ {
			values = append(values, int(op.data[i]))
		}
	default:
		return nil, false
	}
	return values, true
}

// Floats decodes the constant as a flat []float32. It returns ok=false for
// non-float dtypes. Float16 data is widened via the float16 package.
func (op *Constant) Floats() (values []float32, ok bool) {
	n := op.shape.Size()
	values = make([]float32, 0, n)
	switch op.shape.DType {
	case dtypes.Float32:
		for i := 0; i < n; i++ {
			values = append(values, math.Float32frombits(binary.LittleEndian.Uint32(op.data[i*4:])))
		}
	case dtypes.Float16:
		for i := 0; i < n; i++ {
			values = append(values, float16.Float16(binary.LittleEndian.Uint16(op.data[i*2:])).Float32())
		}
	default:
		return nil, false
	}
	return values, true
}

// ScalarValue decodes a single-element constant (any rank) as float64.
// Works for both integer and float dtypes.
func (op *Constant) ScalarValue() (value float64, ok bool) {
	if op.shape.Size() != 1 {
		return 0, false
	}
	if ints, intsOk := op.Ints(); intsOk {
		return float64(ints[0]), true
	}
	if floats, floatsOk := op.Floats(); floatsOk {
		return float64(floats[0]), true
	}
	return 0, false
}

// ConstIntsOf narrows a value to a Constant and decodes it as integers.
// A convenience for reading axis/permutation operands during rewrites.
func ConstIntsOf(v Value) (values []int, ok bool) {
	c, isConst := As[*Constant](v.Node)
	if !isConst {
		return nil, false
	}
	return c.Ints()
}
