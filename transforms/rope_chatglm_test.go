// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

// buildChatGLMGraph builds the seq-first ChatGLM rotation over a combined
// qkv projection [seq=7, batch=2, 4096+256+256]: the query range is
// reshaped to [7,2,32,128], its first 64 dims are recombined in even/odd
// pairs against a packed sin/cos cache, and the tail is concatenated back.
func buildChatGLMGraph() *core.Graph {
	g := core.New("chatglm")
	qkv := g.Parameter("qkv", f32(7, 2, 4608)).Out(0)
	seqLen := g.Parameter("seq_len", i32(1)).Out(0)
	cache := g.Parameter("cos_sin_cache", f32(4096, 2, 32, 2)).Out(0)

	qkvProj := g.NewNode(&core.VariadicSplit{},
		[]shapes.Shape{f32(7, 2, 4096), f32(7, 2, 256), f32(7, 2, 256)},
		qkv, is(g, -1), iv(g, 4096, 256, 256))
	curKey := reshapeOf(g, qkvProj.Out(0), iv(g, 0, 0, 32, 128), true, f32(7, 2, 32, 128))

	rotated := sliceOf(g, curKey, 0, 64, 1, 3, f32(7, 2, 32, 64))
	pairView := reshapeOf(g, rotated, iv(g, 0, 0, 32, 32, 2), true, f32(7, 2, 32, 32, 2))
	xEven := gatherOf(g, pairView, is(g, 0), -1, f32(7, 2, 32, 32))
	xOdd := gatherOf(g, pairView, is(g, 1), -1, f32(7, 2, 32, 32))

	cacheCrop := g.NewNode(&core.Slice{}, []shapes.Shape{f32(7, 2, 32, 2)},
		cache, iv(g, 0), seqLen, iv(g, 1), iv(g, 0)).Out(0)
	cacheView := reshapeOf(g, cacheCrop, iv(g, 7, 2, 1, 32, 2), false, f32(7, 2, 1, 32, 2))
	cosTab := gatherOf(g, cacheView, is(g, 0), -1, f32(7, 2, 1, 32))
	sinTab := gatherOf(g, cacheView, is(g, 1), -1, f32(7, 2, 1, 32))

	xEvenCos := mulOf(g, xEven, cosTab, f32(7, 2, 32, 32))
	xOddSin := mulOf(g, xOdd, sinTab, f32(7, 2, 32, 32))
	negOddSin := mulOf(g, xOddSin, fs(g, -1), f32(7, 2, 32, 32))
	evenOut := addOf(g, xEvenCos, negOddSin, f32(7, 2, 32, 32))
	yEven := unsqueezeOf(g, evenOut, -1, f32(7, 2, 32, 32, 1))

	xOddCos := mulOf(g, xOdd, cosTab, f32(7, 2, 32, 32))
	xEvenSin := mulOf(g, xEven, sinTab, f32(7, 2, 32, 32))
	oddOut := addOf(g, xOddCos, xEvenSin, f32(7, 2, 32, 32))
	yOdd := unsqueezeOf(g, oddOut, -1, f32(7, 2, 32, 32, 1))

	stack := concatOf(g, -1, f32(7, 2, 32, 32, 2), yEven, yOdd)
	flatten := reshapeOf(g, stack, iv(g, 0, 0, 32, 64), true, f32(7, 2, 32, 64))

	tail := sliceOf(g, curKey, 64, intMax, 1, 3, f32(7, 2, 32, 64))
	g.SetOutputs(concatOf(g, -1, f32(7, 2, 32, 128), flatten, tail))
	return g
}

func TestChatGLMFusion(t *testing.T) {
	g := buildChatGLMGraph()
	qkv := g.Nodes()[0]
	cache := g.Nodes()[2]

	runFusion(t, g, false)

	rope, config := fusedRoPE(t, g)
	require.True(t, config.IsChatGLM)
	require.False(t, config.Support2DRope)
	require.True(t, config.UseRopeCache)
	require.Equal(t, 64, config.RotaryNDims)
	require.Equal(t, 32, config.HeadCnt)
	require.Equal(t, 128, config.HeadSize)
	// Query range of the combined projection.
	require.Equal(t, 0, config.SliceStart)
	require.Equal(t, 4096, config.SliceStop)

	require.Equal(t, 3, rope.NumInputs())
	require.Equal(t, qkv.Out(0), rope.Input(0))
	// The packed cache serves both table slots.
	require.Equal(t, cache.Out(0), rope.Input(1))
	require.Equal(t, cache.Out(0), rope.Input(2))
	require.Equal(t, []int{7, 2, 32, 128}, rope.Shape().Dimensions)
}

func TestChatGLMNoFusionOnForeignPairLayout(t *testing.T) {
	// A pair-recombining reshape with leading dims that belong to no known
	// layout must not fuse.
	g := core.New("chatglm")
	qkv := g.Parameter("qkv", f32(7, 2, 4608)).Out(0)
	seqLen := g.Parameter("seq_len", i32(1)).Out(0)
	cache := g.Parameter("cos_sin_cache", f32(4096, 2, 32, 2)).Out(0)

	qkvProj := g.NewNode(&core.VariadicSplit{},
		[]shapes.Shape{f32(7, 2, 4096), f32(7, 2, 256), f32(7, 2, 256)},
		qkv, is(g, -1), iv(g, 4096, 256, 256))
	curKey := reshapeOf(g, qkvProj.Out(0), iv(g, 0, 0, 32, 128), true, f32(7, 2, 32, 128))
	rotated := sliceOf(g, curKey, 0, 64, 1, 3, f32(7, 2, 32, 64))
	pairView := reshapeOf(g, rotated, iv(g, 0, 0, 32, 32, 2), true, f32(7, 2, 32, 32, 2))
	xEven := gatherOf(g, pairView, is(g, 0), -1, f32(7, 2, 32, 32))
	xOdd := gatherOf(g, pairView, is(g, 1), -1, f32(7, 2, 32, 32))
	cacheCrop := g.NewNode(&core.Slice{}, []shapes.Shape{f32(7, 2, 32, 2)},
		cache, iv(g, 0), seqLen, iv(g, 1), iv(g, 0)).Out(0)
	cacheView := reshapeOf(g, cacheCrop, iv(g, 7, 2, 1, 32, 2), false, f32(7, 2, 1, 32, 2))
	cosTab := gatherOf(g, cacheView, is(g, 0), -1, f32(7, 2, 1, 32))
	sinTab := gatherOf(g, cacheView, is(g, 1), -1, f32(7, 2, 1, 32))
	xEvenCos := mulOf(g, xEven, cosTab, f32(7, 2, 32, 32))
	xOddSin := mulOf(g, xOdd, sinTab, f32(7, 2, 32, 32))
	negOddSin := mulOf(g, xOddSin, fs(g, -1), f32(7, 2, 32, 32))
	evenOut := addOf(g, xEvenCos, negOddSin, f32(7, 2, 32, 32))
	// Reshape instead of unsqueeze, with a (head_cnt, 1, -1) layout no
	// ChatGLM export produces.
	yEven := reshapeOf(g, evenOut, iv(g, 32, 1, -1, 32, 1), false, f32(32, 1, 14, 32, 1))
	xOddCos := mulOf(g, xOdd, cosTab, f32(7, 2, 32, 32))
	xEvenSin := mulOf(g, xEven, sinTab, f32(7, 2, 32, 32))
	oddOut := addOf(g, xOddCos, xEvenSin, f32(7, 2, 32, 32))
	yOdd := reshapeOf(g, oddOut, iv(g, 32, 1, -1, 32, 1), false, f32(32, 1, 14, 32, 1))
	stack := concatOf(g, -1, f32(32, 1, 14, 32, 2), yEven, yOdd)
	flatten := reshapeOf(g, stack, iv(g, 0, 0, 32, 64), true, f32(7, 2, 32, 64))
	tail := sliceOf(g, curKey, 64, intMax, 1, 3, f32(7, 2, 32, 64))
	g.SetOutputs(concatOf(g, -1, f32(7, 2, 32, 128), flatten, tail))

	require.False(t, NewRoPEFusion(false).RunOnGraph(g))
	require.Equal(t, core.OpTypeConcat, g.Outputs()[0].Node.Type())
}
