// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

// buildGPTJGraph builds the interleaved even/odd rotation of GPT-J: 64 of
// 256 head dims rotated against a fused sin/cos table split into
// repeat-interleaved halves, with the untouched tail concatenated back.
// withOutputTranspose appends the [0,2,1,3] head transpose on the result.
func buildGPTJGraph(withOutputTranspose bool) *core.Graph {
	g := core.New("gptj")
	x := g.Parameter("x", f32(2, 7, 16, 256)).Out(0)
	gatherSinCos := g.Parameter("gather_sin_cos", f32(1, 7, 64)).Out(0)

	varsplit := g.NewNode(&core.VariadicSplit{},
		[]shapes.Shape{f32(1, 7, 32), f32(1, 7, 32)},
		gatherSinCos, is(g, -1), iv(g, 32, -1))
	unsqSin := unsqueezeOf(g, varsplit.Out(0), 2, f32(1, 7, 1, 32))
	riSin := gatherOf(g, unsqSin, repeatInterleaveIdx(g, 32), 3, f32(1, 7, 1, 64))
	unsqCos := unsqueezeOf(g, varsplit.Out(1), 2, f32(1, 7, 1, 32))
	riCos := gatherOf(g, unsqCos, repeatInterleaveIdx(g, 32), 3, f32(1, 7, 1, 64))

	head := sliceOf(g, x, 0, 64, 1, 3, f32(2, 7, 16, 64))
	odd := sliceOf(g, head, 1, intMax, 2, 3, f32(2, 7, 16, 32))
	negOdd := mulOf(g, odd, fs(g, -1), f32(2, 7, 16, 32))
	unsqNegOdd := unsqueezeOf(g, negOdd, -1, f32(2, 7, 16, 32, 1))
	even := sliceOf(g, head, 0, intMax, 2, 3, f32(2, 7, 16, 32))
	unsqEven := unsqueezeOf(g, even, -1, f32(2, 7, 16, 32, 1))
	stack := concatOf(g, -1, f32(2, 7, 16, 32, 2), unsqNegOdd, unsqEven)

	stackShape := shapeOfNode(g, stack, 5)
	flatDims := sliceOf(g, stackShape, 0, 3, 1, 0, i64(3))
	flatShape := concatOf(g, 0, i64(4), flatDims, i64v(g, -1))
	flattened := reshapeOf(g, stack, flatShape, false, f32(2, 7, 16, 64))

	mulCos := mulOf(g, head, riCos, f32(2, 7, 16, 64))
	mulSin := mulOf(g, flattened, riSin, f32(2, 7, 16, 64))
	rotary := addOf(g, mulCos, mulSin, f32(2, 7, 16, 64))

	tail := sliceOf(g, x, 64, intMax, 1, 3, f32(2, 7, 16, 192))
	result := concatOf(g, -1, f32(2, 7, 16, 256), rotary, tail)
	if withOutputTranspose {
		result = g.NewNode(&core.Transpose{}, []shapes.Shape{f32(2, 16, 7, 256)},
			result, iv(g, 0, 2, 1, 3)).Out(0)
	}
	g.SetOutputs(result)
	return g
}

func TestGPTJFusion(t *testing.T) {
	tests := []struct {
		name          string
		withTranspose bool
		wantDims      []int
	}{
		{name: "plain", withTranspose: false, wantDims: []int{2, 7, 16, 256}},
		{name: "absorbs output transpose", withTranspose: true, wantDims: []int{2, 16, 7, 256}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := buildGPTJGraph(test.withTranspose)
			x := g.Nodes()[0]
			gatherSinCos := g.Nodes()[1]

			runFusion(t, g, false)

			rope, config := fusedRoPE(t, g)
			require.Equal(t, 64, config.RotaryNDims)
			require.True(t, config.IsInterleaved)
			require.Equal(t, test.withTranspose, config.OutputTrans0213)
			require.Equal(t, 3, rope.NumInputs())
			require.Equal(t, x.Out(0), rope.Input(0))
			// The fused table is passed for both the cos and the sin slot.
			require.Equal(t, gatherSinCos.Out(0), rope.Input(1))
			require.Equal(t, gatherSinCos.Out(0), rope.Input(2))
			require.Equal(t, test.wantDims, rope.Shape().Dimensions)
		})
	}
}

func TestGPTJNoFusionOnOddRotaryWidth(t *testing.T) {
	// A table whose halves are not ndims/2 wide fails the symbol checks.
	g := core.New("gptj")
	x := g.Parameter("x", f32(2, 7, 16, 256)).Out(0)
	gatherSinCos := g.Parameter("gather_sin_cos", f32(1, 7, 64)).Out(0)

	varsplit := g.NewNode(&core.VariadicSplit{},
		[]shapes.Shape{f32(1, 7, 16), f32(1, 7, 48)},
		gatherSinCos, is(g, -1), iv(g, 16, -1))
	unsqSin := unsqueezeOf(g, varsplit.Out(0), 2, f32(1, 7, 1, 16))
	riSin := gatherOf(g, unsqSin, repeatInterleaveIdx(g, 16), 3, f32(1, 7, 1, 32))
	unsqCos := unsqueezeOf(g, varsplit.Out(1), 2, f32(1, 7, 1, 48))
	riCos := gatherOf(g, unsqCos, repeatInterleaveIdx(g, 48), 3, f32(1, 7, 1, 96))

	head := sliceOf(g, x, 0, 64, 1, 3, f32(2, 7, 16, 64))
	odd := sliceOf(g, head, 1, intMax, 2, 3, f32(2, 7, 16, 32))
	negOdd := mulOf(g, odd, fs(g, -1), f32(2, 7, 16, 32))
	unsqNegOdd := unsqueezeOf(g, negOdd, -1, f32(2, 7, 16, 32, 1))
	even := sliceOf(g, head, 0, intMax, 2, 3, f32(2, 7, 16, 32))
	unsqEven := unsqueezeOf(g, even, -1, f32(2, 7, 16, 32, 1))
	stack := concatOf(g, -1, f32(2, 7, 16, 32, 2), unsqNegOdd, unsqEven)
	stackShape := shapeOfNode(g, stack, 5)
	flatDims := sliceOf(g, stackShape, 0, 3, 1, 0, i64(3))
	flatShape := concatOf(g, 0, i64(4), flatDims, i64v(g, -1))
	flattened := reshapeOf(g, stack, flatShape, false, f32(2, 7, 16, 64))
	mulCos := mulOf(g, head, riCos, f32(2, 7, 16, 64))
	mulSin := mulOf(g, flattened, riSin, f32(2, 7, 16, 64))
	rotary := addOf(g, mulCos, mulSin, f32(2, 7, 16, 64))
	tail := sliceOf(g, x, 64, intMax, 1, 3, f32(2, 7, 16, 192))
	g.SetOutputs(concatOf(g, -1, f32(2, 7, 16, 256), rotary, tail))

	require.False(t, NewRoPEFusion(false).RunOnGraph(g))
	require.Equal(t, core.OpTypeConcat, g.Outputs()[0].Node.Type())
}
