// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"math"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass"
	"github.com/AndreeaGavrilescuIntel/openvino/pass/pattern"
)

// NewRoPEFusionGPTNEOX recognizes the half-rotation layout of GPT-NeoX and
// Llama-family models:
//
//	y = x*cos + rotate_half(x)*sin
//	rotate_half(x) = concat(-x[..., d/2:], x[..., :d/2], -1)
//
// Multiply is commutative, so matching both products structurally risks
// binding x to the cos table in one branch and failing the other. Only the
// rotate_half(x)*sin branch is matched structurally; the x*cos product is
// checked in the callback, which also recovers which operand is the table.
func NewRoPEFusionGPTNEOX() *pass.MatcherPass {
	x := pattern.AnyInput(pattern.RankEquals(4))
	xOrCos1 := pattern.AnyInput(pattern.RankEquals(4))
	xOrCos2 := pattern.AnyInput(pattern.RankEquals(4))
	tSin := pattern.AnyInput(pattern.RankEquals(4))

	varsplit := pattern.WrapType(core.OpTypeVariadicSplit, x,
		pattern.Consts(3), pattern.Consts("half_ndims", "?")).
		WithOutputs(2)

	x2 := genSlice(x, "half_ndims", math.MaxInt32, 1, 3)
	x2Neg := pattern.WrapType(core.OpTypeMultiply,
		pattern.Or(x2, varsplit.Output(1)), pattern.Consts(-1.0)).
		WithAttrs(numpyBroadcast)
	x1 := genSlice(x, 0, "half_ndims", 1, 3)
	xRotateHalf := pattern.WrapType(core.OpTypeConcat,
		x2Neg, pattern.Or(x1, varsplit.Output(0))).
		WithAttrs(pattern.Attrs{"axis": -1})

	mulCos := pattern.WrapType(core.OpTypeMultiply, xOrCos1, xOrCos2).WithAttrs(numpyBroadcast)
	mulSin := pattern.WrapType(core.OpTypeMultiply, xRotateHalf, tSin).WithAttrs(numpyBroadcast)

	result := pattern.WrapType(core.OpTypeAdd, mulCos, mulSin).WithAttrs(numpyBroadcast)

	callback := func(m *pattern.Matcher) bool {
		// One of the two operands of the cos product must be x itself; the
		// other is the cos table.
		var vCos pattern.Value
		switch {
		case m.At(xOrCos1) == m.At(x):
			vCos = m.At(xOrCos2)
		case m.At(xOrCos2) == m.At(x):
			vCos = m.At(xOrCos1)
		default:
			return false
		}

		halfNDims := m.Symbols().Get("half_ndims")
		if !halfNDims.IsInteger() {
			return false
		}

		config := core.RoPEConfig{RotaryNDims: 2 * int(halfNDims.I())}

		root := m.MatchRoot()
		newNode := core.NewRoPE(m.Graph(), config, m.At(x), vCos, m.At(tSin))
		newNode.SetName(root.Name())
		core.CopyRuntimeInfo([]*core.Node{
			m.NodeAt(x2Neg), m.NodeAt(xRotateHalf),
			m.NodeAt(mulCos), m.NodeAt(mulSin), root,
		}, newNode)
		m.Graph().ReplaceNode(root, newNode)
		return true
	}

	return pass.NewMatcherPass("RoPEFusionGPTNEOX", result, callback)
}
