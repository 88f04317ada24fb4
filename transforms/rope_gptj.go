// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass"
	"github.com/AndreeaGavrilescuIntel/openvino/pass/pattern"
)

// repeatInterleaveIndexes accepts an i32 index constant of the form
// [0,0,1,1,2,2,...]: the gather indices that duplicate every table column
// for the interleaved rotation layout.
func repeatInterleaveIndexes(c *core.Constant) bool {
	if c.ConstShape().DType != dtypes.Int32 {
		return false
	}
	vec, ok := c.Ints()
	if !ok || len(vec) == 0 || len(vec)%2 != 0 {
		return false
	}
	v := 0
	for i := 0; i < len(vec); i += 2 {
		if vec[i] != v || vec[i+1] != v {
			return false
		}
		v++
	}
	return true
}

// repeatInterleavePattern matches the column duplication of one half of the
// fused sin/cos table: unsqueeze (or an equivalent reshape) followed by a
// gather with repeat-interleave indices on the last axis.
func repeatInterleavePattern(varSplitOut pattern.Source) *pattern.Pattern {
	unsqueeze := pattern.Or(
		pattern.WrapType(core.OpTypeReshape, varSplitOut,
			pattern.Consts("dim0", "dim1", 1, 32)),
		pattern.WrapType(core.OpTypeUnsqueeze, varSplitOut, pattern.Consts(2)),
	)
	constIdx := pattern.WrapType(core.OpTypeConstant).
		WithPredicates(pattern.TypeMatches(dtypes.Int32), pattern.ConstMatches(repeatInterleaveIndexes))
	return pattern.WrapType(core.OpTypeGather, unsqueeze, constIdx, pattern.Consts(3)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})
}

// NewRoPEFusionGPTJ recognizes the interleaved rotation layout of GPT-J:
// even/odd feature pairs are rotated against a fused sin/cos table whose two
// halves are split off and repeat-interleaved. A trailing [0,2,1,3]
// transpose on the sole consumer is absorbed into the fused node.
func NewRoPEFusionGPTJ() *pass.MatcherPass {
	gatherSinCos := pattern.AnyInput(pattern.TypeMatches(dtypes.Float32))
	varsplit := pattern.WrapType(core.OpTypeVariadicSplit, gatherSinCos,
		pattern.Consts(-1), pattern.Consts("ndims/2", -1)).
		WithOutputs(2)
	repeatInterleaveSin := repeatInterleavePattern(varsplit.Output(0))
	repeatInterleaveCos := repeatInterleavePattern(varsplit.Output(1))

	viewReshape := pattern.AnyInput(pattern.RankEquals(4))
	sliceHead := genSlice(viewReshape, 0, "ndims", 1, 3)
	varsplitView := pattern.WrapType(core.OpTypeVariadicSplit, viewReshape,
		pattern.Consts(3), pattern.Consts("ndims", "end")).
		WithOutputs(2)
	// The rotated sub-range of x, however it was cropped.
	xSub := pattern.Or(sliceHead, varsplitView.Output(0))

	// x interleave: (-x[..., 1::2], x[..., 0::2])
	sliceOdd := genSlice(xSub, 1, math.MaxInt32, 2, 3)
	negOdd := pattern.WrapType(core.OpTypeMultiply, sliceOdd, pattern.Consts(-1.0)).
		WithAttrs(numpyBroadcast)
	unsqueezeNegOdd := pattern.WrapType(core.OpTypeUnsqueeze, negOdd, pattern.Consts(-1))
	reshapeNegOdd := pattern.WrapType(core.OpTypeReshape, negOdd,
		pattern.Consts(-1, 1, "head_num", 32, 1)).
		WithAttrs(pattern.Attrs{"special_zero": false})

	sliceEven := genSlice(xSub, 0, math.MaxInt32, 2, 3)
	unsqueezeEven := pattern.WrapType(core.OpTypeUnsqueeze, sliceEven, pattern.Consts(-1))
	reshapeEven := pattern.WrapType(core.OpTypeReshape, sliceEven,
		pattern.Consts(-1, 1, "head_num", 32, 1)).
		WithAttrs(pattern.Attrs{"special_zero": false})

	stack := pattern.WrapType(core.OpTypeConcat,
		pattern.Or(unsqueezeNegOdd, reshapeNegOdd),
		pattern.Or(unsqueezeEven, reshapeEven)).
		WithAttrs(pattern.Attrs{"axis": -1})

	shapeOf := pattern.WrapType(core.OpTypeShapeOf, stack)
	flattenSlice := genSlice(shapeOf, 0, 3, 1, 0)
	flattenConcat := pattern.WrapType(core.OpTypeConcat, flattenSlice, pattern.Consts(-1)).
		WithAttrs(pattern.Attrs{"axis": 0})
	flattenReshape := pattern.WrapType(core.OpTypeReshape, stack, flattenConcat)
	// With special_zero, no shape-of chain is needed to rebuild the shape.
	flattenReshapeZero := pattern.WrapType(core.OpTypeReshape, stack, pattern.AnyInput()).
		WithAttrs(pattern.Attrs{"special_zero": true})

	mulCos := pattern.WrapType(core.OpTypeMultiply, xSub, repeatInterleaveCos).
		WithAttrs(numpyBroadcast)
	mulSin := pattern.WrapType(core.OpTypeMultiply,
		pattern.Or(flattenReshape, flattenReshapeZero), repeatInterleaveSin).
		WithAttrs(numpyBroadcast)

	rotaryEmb := pattern.WrapType(core.OpTypeAdd, mulCos, mulSin).WithAttrs(numpyBroadcast)

	sliceTail := genSlice(viewReshape, "ndims", math.MaxInt32, 1, 3)
	result := pattern.WrapType(core.OpTypeConcat,
		rotaryEmb, pattern.Or(sliceTail, varsplitView.Output(1))).
		WithAttrs(pattern.Attrs{"axis": -1})

	callback := func(m *pattern.Matcher) bool {
		symbols := m.Symbols()
		ndims := symbols.Get("ndims")
		ndimsOver2 := symbols.Get("ndims/2")
		if !ndims.IsInteger() || !ndimsOver2.IsInteger() || ndimsOver2.I()*2 != ndims.I() {
			return false
		}

		config := core.RoPEConfig{
			RotaryNDims:   int(ndims.I()),
			IsInterleaved: true,
		}

		g := m.Graph()
		root := m.MatchRoot()
		rtFrom := []*core.Node{
			m.NodeAt(varsplit), m.NodeAt(repeatInterleaveSin), m.NodeAt(repeatInterleaveCos),
			m.NodeAt(negOdd), m.NodeAt(stack),
			m.NodeAt(mulCos), m.NodeAt(mulSin), m.NodeAt(rotaryEmb), root,
		}

		// Fold a sole-consumer [0,2,1,3] transpose into the fused node.
		if consumer := g.SoleConsumer(root.Out(0)); consumer.Node != nil &&
			consumer.Node.Type() == core.OpTypeTranspose {
			if perm, ok := core.ConstIntsOf(consumer.Node.Input(1)); ok &&
				len(perm) == 4 && perm[0] == 0 && perm[1] == 2 && perm[2] == 1 && perm[3] == 3 {
				config.OutputTrans0213 = true
				rtFrom = append(rtFrom, consumer.Node)
				root = consumer.Node
			}
		}

		newNode := core.NewRoPE(g, config,
			m.At(viewReshape), m.At(gatherSinCos), m.At(gatherSinCos))
		newNode.SetName(root.Name())
		core.CopyRuntimeInfo(rtFrom, newNode)
		g.ReplaceNode(root, newNode)

		// A ShapeOf hoisted onto the rotary output must follow the data
		// input instead, or a dead sub-expression survives the fusion.
		rotaryOut := m.NodeAt(rotaryEmb).Out(0)
		if consumers := g.Consumers(rotaryOut); len(consumers) == 2 {
			for _, c := range consumers {
				if c.Node.Type() == core.OpTypeShapeOf {
					c.Node.SetArgument(c.InputIndex, m.At(viewReshape))
				}
			}
		}
		return true
	}

	return pass.NewMatcherPass("RoPEFusionGPTJ", result, callback)
}
