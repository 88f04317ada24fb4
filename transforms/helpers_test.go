// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/types/shapes"
)

func f32(dims ...int) shapes.Shape { return shapes.MakeDynamic(dtypes.Float32, dims...) }

func i32(dims ...int) shapes.Shape { return shapes.MakeDynamic(dtypes.Int32, dims...) }

func i64(dims ...int) shapes.Shape { return shapes.MakeDynamic(dtypes.Int64, dims...) }

func iv(g *core.Graph, values ...int) core.Value {
	return core.ConstVector(g, dtypes.Int32, values...).Out(0)
}

func i64v(g *core.Graph, values ...int) core.Value {
	return core.ConstVector(g, dtypes.Int64, values...).Out(0)
}

func shapeOfNode(g *core.Graph, data core.Value, rank int) core.Value {
	return g.NewNode(&core.ShapeOf{}, []shapes.Shape{i64(rank)}, data).Out(0)
}

func is(g *core.Graph, value int) core.Value {
	return core.ConstScalar(g, dtypes.Int32, float64(value)).Out(0)
}

func fs(g *core.Graph, value float64) core.Value {
	return core.ConstScalar(g, dtypes.Float32, value).Out(0)
}

func mulOf(g *core.Graph, a, b core.Value, out shapes.Shape) core.Value {
	return g.NewNode(&core.Multiply{AutoBroadcast: "numpy"}, []shapes.Shape{out}, a, b).Out(0)
}

func addOf(g *core.Graph, a, b core.Value, out shapes.Shape) core.Value {
	return g.NewNode(&core.Add{AutoBroadcast: "numpy"}, []shapes.Shape{out}, a, b).Out(0)
}

// sliceOf crops one axis: Slice(data, [start], [stop], [step], [axis]).
func sliceOf(g *core.Graph, data core.Value, start, stop, step, axis int, out shapes.Shape) core.Value {
	return g.NewNode(&core.Slice{}, []shapes.Shape{out}, data,
		iv(g, start), iv(g, stop), iv(g, step), iv(g, axis)).Out(0)
}

func concatOf(g *core.Graph, axis int, out shapes.Shape, ins ...core.Value) core.Value {
	return g.NewNode(&core.Concat{Axis: axis}, []shapes.Shape{out}, ins...).Out(0)
}

func reshapeOf(g *core.Graph, data, target core.Value, specialZero bool, out shapes.Shape) core.Value {
	return g.NewNode(&core.Reshape{SpecialZero: specialZero}, []shapes.Shape{out}, data, target).Out(0)
}

func unsqueezeOf(g *core.Graph, data core.Value, axis int, out shapes.Shape) core.Value {
	return g.NewNode(&core.Unsqueeze{}, []shapes.Shape{out}, data, iv(g, axis)).Out(0)
}

func gatherOf(g *core.Graph, data, indices core.Value, axis int, out shapes.Shape) core.Value {
	return g.NewNode(&core.Gather{BatchDims: 0}, []shapes.Shape{out}, data, indices, is(g, axis)).Out(0)
}

// repeatInterleaveIdx builds the [0,0,1,1,...] gather index constant.
func repeatInterleaveIdx(g *core.Graph, half int) core.Value {
	values := make([]int, 0, 2*half)
	for i := 0; i < half; i++ {
		values = append(values, i, i)
	}
	return iv(g, values...)
}

const intMax = math.MaxInt32

// fusedRoPE asserts the single graph output is a fused node and returns it.
func fusedRoPE(t *testing.T, g *core.Graph) (*core.Node, core.RoPEConfig) {
	t.Helper()
	outs := g.Outputs()
	require.Len(t, outs, 1)
	op, ok := core.AsRoPE(outs[0].Node)
	require.True(t, ok, "graph output is %s, not a fused node", outs[0].Node)
	return outs[0].Node, op.Config()
}

// runFusion asserts the bundle reports a change and that a second run is a
// no-op on the already-fused graph.
func runFusion(t *testing.T, g *core.Graph, support2DRope bool) {
	t.Helper()
	require.True(t, NewRoPEFusion(support2DRope).RunOnGraph(g))
	require.False(t, NewRoPEFusion(support2DRope).RunOnGraph(g))
}
