// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass"
	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

func runPass(g *core.Graph, p *pass.MatcherPass) bool {
	gr := pass.NewGraphRewrite()
	gr.Register(p)
	return gr.RunOnGraph(g)
}

// cosSinTable builds a dense float32 table constant of max_pos rows.
func cosSinTable(g *core.Graph, maxPos, width int, scale float32) core.Value {
	values := make([]float32, maxPos*width)
	for i := range values {
		values[i] = scale * float32(i%width)
	}
	return core.ConstFromFlat(g, dtypes.Float32, []int{maxPos, width}, values).Out(0)
}

func TestCosSinPreprocessAttachesTablesAndPositions(t *testing.T) {
	g := core.New("llama")
	x := g.Parameter("x", f32(2, 8, 7, 64)).Out(0)
	seqLen := g.Parameter("seq_len", i32(1)).Out(0)
	pos := g.Parameter("position_ids", i32(2, 7)).Out(0)

	prepare := func(table core.Value) core.Value {
		crop := g.NewNode(&core.Slice{}, []shapes.Shape{f32(7, 64)},
			table, iv(g, 0), seqLen, iv(g, 1), iv(g, 0)).Out(0)
		gathered := gatherOf(g, crop, pos, 0, f32(2, 7, 64))
		return unsqueezeOf(g, gathered, 1, f32(2, 1, 7, 64))
	}
	cosTable := cosSinTable(g, 10, 64, 0.5)
	sinTable := cosSinTable(g, 10, 64, 0.25)
	rope := core.NewRoPE(g, core.RoPEConfig{RotaryNDims: 64, HeadCnt: 8, HeadSize: 64},
		x, prepare(cosTable), prepare(sinTable))
	g.SetOutputs(rope.Out(0))

	require.True(t, runPass(g, NewRoPEFusionCosSinPreprocess()))

	require.Equal(t, 4, rope.NumInputs())
	require.Equal(t, cosTable, rope.Input(1))
	require.Equal(t, sinTable, rope.Input(2))
	require.Equal(t, pos, rope.Input(3))
	ropeOp, ok := core.AsRoPE(rope)
	require.True(t, ok)
	require.Equal(t, 3, ropeOp.Config().GatherPositionArgID)
	require.Equal(t, []int{2, 8, 7, 64}, rope.Shape().Dimensions)

	// The four-argument form no longer matches the preparation pattern.
	require.False(t, runPass(g, NewRoPEFusionCosSinPreprocess()))
}

func TestIOSlicingFoldsHeadAndTail(t *testing.T) {
	g := core.New("io_slicing")
	data := g.Parameter("qkv", f32(2, 8, 7, 128)).Out(0)
	cos := g.Parameter("cos", f32(1, 1, 7, 64)).Out(0)
	sin := g.Parameter("sin", f32(1, 1, 7, 64)).Out(0)

	head := sliceOf(g, data, 0, 64, 1, 3, f32(2, 8, 7, 64))
	rope := core.NewRoPE(g, core.RoPEConfig{RotaryNDims: 64}, head, cos, sin)
	tail := sliceOf(g, data, 64, intMax, 1, 3, f32(2, 8, 7, 64))
	g.SetOutputs(concatOf(g, -1, f32(2, 8, 7, 128), rope.Out(0), tail))

	require.True(t, runPass(g, NewRoPEFusionIOSlicing()))

	out := g.Outputs()[0].Node
	require.Same(t, rope, out)
	require.Equal(t, data, rope.Input(0))
	require.Equal(t, []int{2, 8, 7, 128}, rope.Shape().Dimensions)
}

func TestIOSlicingRequiresMatchingRotaryWidth(t *testing.T) {
	g := core.New("io_slicing")
	data := g.Parameter("qkv", f32(2, 8, 7, 128)).Out(0)
	cos := g.Parameter("cos", f32(1, 1, 7, 64)).Out(0)
	sin := g.Parameter("sin", f32(1, 1, 7, 64)).Out(0)

	head := sliceOf(g, data, 0, 64, 1, 3, f32(2, 8, 7, 64))
	// Rotary width disagrees with the sliced range.
	rope := core.NewRoPE(g, core.RoPEConfig{RotaryNDims: 32}, head, cos, sin)
	tail := sliceOf(g, data, 64, intMax, 1, 3, f32(2, 8, 7, 64))
	g.SetOutputs(concatOf(g, -1, f32(2, 8, 7, 128), rope.Out(0), tail))

	require.False(t, runPass(g, NewRoPEFusionIOSlicing()))
	require.Equal(t, core.OpTypeConcat, g.Outputs()[0].Node.Type())
}

func TestPreprocessAbsorbsInputTranspose(t *testing.T) {
	g := core.New("preprocess")
	x := g.Parameter("x", f32(2, 7, 32, 64)).Out(0)
	cos := g.Parameter("cos", f32(1, 1, 7, 64)).Out(0)
	sin := g.Parameter("sin", f32(1, 1, 7, 64)).Out(0)

	trans := g.NewNode(&core.Transpose{}, []shapes.Shape{f32(2, 32, 7, 64)},
		x, iv(g, 0, 2, 1, 3)).Out(0)
	rope := core.NewRoPE(g, core.RoPEConfig{RotaryNDims: 64}, trans, cos, sin)
	g.SetOutputs(rope.Out(0))

	require.True(t, runPass(g, NewRoPEFusionPreprocess()))

	ropeOp, ok := core.AsRoPE(rope)
	require.True(t, ok)
	require.True(t, ropeOp.Config().InputTrans0213)
	require.Equal(t, 0, ropeOp.Config().SliceStart)
	require.Equal(t, 0, ropeOp.Config().SliceStop)
	require.Equal(t, x, rope.Input(0))
	require.Equal(t, []int{2, 32, 7, 64}, rope.Shape().Dimensions)
}

func TestPreprocessAbsorbsSliceAndTranspose(t *testing.T) {
	g := core.New("preprocess")
	x := g.Parameter("qkv", f32(2, 7, 32, 192)).Out(0)
	cos := g.Parameter("cos", f32(1, 1, 7, 64)).Out(0)
	sin := g.Parameter("sin", f32(1, 1, 7, 64)).Out(0)

	window := sliceOf(g, x, 64, 128, 1, 3, f32(2, 7, 32, 64))
	trans := g.NewNode(&core.Transpose{}, []shapes.Shape{f32(2, 32, 7, 64)},
		window, iv(g, 0, 2, 1, 3)).Out(0)
	rope := core.NewRoPE(g, core.RoPEConfig{RotaryNDims: 64}, trans, cos, sin)
	g.SetOutputs(rope.Out(0))

	require.True(t, runPass(g, NewRoPEFusionPreprocess()))

	ropeOp, ok := core.AsRoPE(rope)
	require.True(t, ok)
	require.True(t, ropeOp.Config().InputTrans0213)
	require.Equal(t, 64, ropeOp.Config().SliceStart)
	require.Equal(t, 128, ropeOp.Config().SliceStop)
	require.Equal(t, x, rope.Input(0))
	require.Equal(t, []int{2, 32, 7, 64}, rope.Shape().Dimensions)
}
