// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass"
	"github.com/AndreeaGavrilescuIntel/openvino/pass/pattern"
)

// NewRoPEFusionChatGLMHF recognizes the HuggingFace export of ChatGLM after
// the paged-attention rewrite (sequence length 1): separate cos/sin inputs
// are repeat-interleaved and applied to the even/odd strides of the rotated
// range, with the untouched tail concatenated back.
func NewRoPEFusionChatGLMHF() *pass.MatcherPass {
	qkLinear := pattern.AnyInput(pattern.ShapeMatches("[?, 1, ?]"))
	cos := pattern.AnyInput(pattern.ShapeMatches("[?, 1, 1, ?]"))
	sin := pattern.AnyInput(pattern.ShapeMatches("[?, 1, 1, ?]"))

	reshape := pattern.WrapType(core.OpTypeReshape, qkLinear, pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[?, head_cnt, 1, head_size]")).
		WithAttrs(pattern.Attrs{"special_zero": false})
	rotated := genSlice(reshape, 0, "ndims", 1, 3)

	constIdx := pattern.WrapType(core.OpTypeConstant).
		WithPredicates(pattern.TypeMatches(dtypes.Int32), pattern.ConstMatches(repeatInterleaveIndexes))
	repeatInterleaveCos := pattern.WrapType(core.OpTypeGather, cos, constIdx, pattern.Consts(-1)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})
	repeatInterleaveSin := pattern.WrapType(core.OpTypeGather, sin, constIdx, pattern.Consts(-1)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})

	mulCos := pattern.WrapType(core.OpTypeMultiply, rotated, repeatInterleaveCos).
		WithAttrs(numpyBroadcast)

	sliceOdd := genSlice(rotated, 1, math.MaxInt32, 2, 3)
	neg := pattern.WrapType(core.OpTypeMultiply, sliceOdd, pattern.Consts(-1)).
		WithAttrs(numpyBroadcast)
	unsqueezeNegOdd := pattern.WrapType(core.OpTypeReshape, neg, pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[?, head_cnt, 1, ndims/2, 1]")).
		WithAttrs(pattern.Attrs{"special_zero": false})
	sliceEven := genSlice(rotated, 0, math.MaxInt32, 2, 3)
	unsqueezeEven := pattern.WrapType(core.OpTypeReshape, sliceEven, pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[?, head_cnt, 1, ndims/2, 1]")).
		WithAttrs(pattern.Attrs{"special_zero": false})

	stack := pattern.WrapType(core.OpTypeConcat, unsqueezeNegOdd, unsqueezeEven).
		WithAttrs(pattern.Attrs{"axis": -1})
	flatten := pattern.WrapType(core.OpTypeReshape, stack, pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[?, head_cnt, 1, ndims]")).
		WithAttrs(pattern.Attrs{"special_zero": true})
	mulSin := pattern.WrapType(core.OpTypeMultiply, flatten, repeatInterleaveSin).
		WithAttrs(numpyBroadcast)
	add := pattern.WrapType(core.OpTypeAdd, mulCos, mulSin).WithAttrs(numpyBroadcast)

	tail := genSlice(reshape, "ndims", math.MaxInt32, 1, 3)
	result := pattern.WrapType(core.OpTypeConcat, add, tail).
		WithAttrs(pattern.Attrs{"axis": -1})

	callback := func(m *pattern.Matcher) bool {
		symbols := m.Symbols()
		ndims := symbols.Get("ndims")
		headCnt := symbols.Get("head_cnt")
		headSize := symbols.Get("head_size")
		halfNDims := symbols.Get("ndims/2")
		if !ndims.IsInteger() || !headCnt.IsInteger() || !headSize.IsInteger() ||
			!halfNDims.IsInteger() || halfNDims.I()*2 != ndims.I() {
			return false
		}

		config := core.RoPEConfig{
			RotaryNDims:   int(ndims.I()),
			IsChatGLM:     true,
			Support2DRope: true,
			HeadCnt:       int(headCnt.I()),
			HeadSize:      int(headSize.I()),
		}

		root := m.MatchRoot()
		newNode := core.NewRoPE(m.Graph(), config, m.At(qkLinear), m.At(cos), m.At(sin))
		newNode.SetName(root.Name())
		core.CopyRuntimeInfo([]*core.Node{root.Input(0).Node, root}, newNode)
		m.Graph().ReplaceNode(root, newNode)
		return true
	}

	return pass.NewMatcherPass("RoPEFusionChatGLMHF", result, callback)
}
