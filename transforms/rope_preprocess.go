// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass"
	"github.com/AndreeaGavrilescuIntel/openvino/pass/pattern"
)

// ropeWithArgs matches an already-fused node taking x plus the given cos/sin
// sub-patterns, in both the 3-argument and 4-argument (position ids) forms.
func ropeWithArgs(x, cosTab, sinTab pattern.Source) *pattern.Pattern {
	return pattern.Or(
		pattern.WrapType(core.OpTypeRoPE, x, cosTab, sinTab),
		pattern.WrapType(core.OpTypeRoPE, x, cosTab, sinTab, pattern.AnyInput()))
}

// NewRoPEFusionCosSinPreprocess folds the cos/sin table preparation
// subgraphs into a fused node: the tables become direct constant arguments
// and the gather-at-positions input, when present, is attached as an extra
// argument.
func NewRoPEFusionCosSinPreprocess() *pass.MatcherPass {
	cosConst := pattern.WrapType(core.OpTypeConstant).
		WithPredicates(pattern.TypeMatches(dtypes.Float32))
	sinConst := pattern.WrapType(core.OpTypeConstant).
		WithPredicates(pattern.TypeMatches(dtypes.Float32))

	nodeBatchSize := pattern.AnyInput(pattern.TypeMatches(dtypes.Int32), pattern.ShapeMatches("[1]"))
	gatherPositions := pattern.AnyInput(pattern.TypeMatches(dtypes.Int32), pattern.RankEquals(4))

	// gptneox-style: table cropped to the batch then gathered per element.
	prepareGPTNeoX := func(constTab pattern.Source) *pattern.Pattern {
		slice := pattern.WrapType(core.OpTypeSlice, constTab,
			pattern.Consts(0), nodeBatchSize, pattern.Consts(1), pattern.Consts(0))
		stridedSlice := genStridedSlice(constTab,
			pattern.Consts(0), nodeBatchSize, pattern.Consts(1), 0)
		return pattern.WrapType(core.OpTypeGatherElements,
			pattern.Or(stridedSlice, slice), gatherPositions).
			WithAttrs(pattern.Attrs{"axis": 2})
	}

	seqLen := pattern.AnyInput(pattern.TypeMatches(dtypes.Int32), pattern.ShapeMatches("[1]"))
	gatherPositions2D := pattern.AnyInput(pattern.TypeMatches(dtypes.Int32), pattern.RankEquals(2))

	// llama-style: table cropped to the sequence length, squeezed, gathered
	// at 2D position ids and unsqueezed back to rank 4.
	prepareLlama := func(constTab pattern.Source) *pattern.Pattern {
		scatterUpdate := pattern.WrapType(core.OpTypeScatterUpdate,
			pattern.Consts(0, 0, 0), pattern.Consts(2), seqLen, pattern.Consts(0))
		sliceSeq := pattern.WrapType(core.OpTypeSlice, constTab,
			pattern.Consts(0), seqLen, pattern.Consts(1), pattern.Consts(2))
		stridedSeq := genStridedSlice(constTab,
			pattern.Consts(0, 0, 0), scatterUpdate, pattern.Consts(1, 1, 1), 2)
		squeeze := pattern.WrapType(core.OpTypeReshape,
			pattern.Or(stridedSeq, sliceSeq), pattern.AnyInput()).
			WithPredicates(pattern.ShapeMatches("[?, head_dims]"))
		indexGather := pattern.WrapType(core.OpTypeGather,
			squeeze, gatherPositions2D, pattern.Consts(0)).
			WithAttrs(pattern.Attrs{"batch_dims": 0})

		// Simplified form gathering directly at position ids.
		sliceSeq2 := pattern.WrapType(core.OpTypeSlice, constTab,
			pattern.Consts(0), seqLen, pattern.Consts(1), pattern.Consts(0))
		stridedSeq2 := genStridedSlice(constTab,
			pattern.Consts(0), seqLen, pattern.Consts(1), 0)
		indexGather2 := pattern.WrapType(core.OpTypeGather,
			pattern.Or(sliceSeq2, stridedSeq2), gatherPositions2D, pattern.Consts(0)).
			WithAttrs(pattern.Attrs{"batch_dims": 0})

		unsqueeze := pattern.WrapType(core.OpTypeReshape,
			pattern.Or(indexGather, indexGather2), pattern.AnyInput()).
			WithPredicates(pattern.ShapeMatches("[1, 1, ?, head_dims]"))
		unsqueeze2 := pattern.WrapType(core.OpTypeUnsqueeze, indexGather2, pattern.Consts(1))

		return pattern.Or(unsqueeze2, unsqueeze)
	}

	cosTab := pattern.Or(prepareGPTNeoX(cosConst), prepareLlama(cosConst))
	sinTab := pattern.Or(prepareGPTNeoX(sinConst), prepareLlama(sinConst))

	x := pattern.AnyInput(pattern.RankEquals(4))
	rope := pattern.WrapType(core.OpTypeRoPE, x, cosTab, sinTab)

	callback := func(m *pattern.Matcher) bool {
		ropeNode := m.MatchRoot()
		ropeOp, ok := core.AsRoPE(ropeNode)
		if !ok {
			return false
		}

		if m.Has(cosConst) {
			ropeNode.SetArgument(1, m.At(cosConst))
		}
		if m.Has(sinConst) {
			ropeNode.SetArgument(2, m.At(sinConst))
		}

		config := ropeOp.Config()
		var positions pattern.Value
		switch {
		case m.Has(gatherPositions):
			positions = m.At(gatherPositions)
		case m.Has(gatherPositions2D):
			positions = m.At(gatherPositions2D)
		}
		if positions.Ok() {
			argID := ropeNode.NumInputs()
			ropeNode.SetArgument(argID, positions)
			config.GatherPositionArgID = argID
		}
		ropeOp.SetConfig(config)
		return true
	}

	return pass.NewMatcherPass("RoPEFusionCosSinPreprocess", rope, callback)
}

// NewRoPEFusionIOSlicing extends a fused node over the untouched tail of the
// head: when only rotary_ndims of the head are rotated and the surrounding
// graph slices the input and concatenates the tail back, the slice and
// concat fold into the fused node, which then consumes and produces the full
// head.
func NewRoPEFusionIOSlicing() *pass.MatcherPass {
	data := pattern.AnyInput(pattern.RankEquals(4))

	varsplit := pattern.WrapType(core.OpTypeVariadicSplit, data,
		pattern.Consts(3), pattern.Consts("ndims", "end")).
		WithOutputs(2)
	head := genSlice(data, 0, "ndims", 1, 3)
	tail := genSlice(data, "ndims", math.MaxInt32, 1, 3)

	rotated := ropeWithArgs(pattern.Or(head, varsplit.Output(0)),
		pattern.AnyInput(), pattern.AnyInput())
	result := pattern.WrapType(core.OpTypeConcat,
		rotated, pattern.Or(tail, varsplit.Output(1))).
		WithAttrs(pattern.Attrs{"axis": -1})

	callback := func(m *pattern.Matcher) bool {
		root := m.MatchRoot()
		ropeNode := root.Input(0).Node
		ropeOp, ok := core.AsRoPE(ropeNode)
		if !ok {
			return false
		}

		ndims := m.Symbols().Get("ndims")
		if !ndims.IsInteger() {
			return false
		}
		if ropeOp.Config().RotaryNDims != int(ndims.I()) {
			return false
		}

		// Drop the slice and the concat.
		ropeNode.SetArgument(0, m.At(data))
		ropeNode.SetName(root.Name())
		core.CopyRuntimeInfo([]*core.Node{root}, ropeNode)
		m.Graph().ReplaceNode(root, ropeNode)
		return true
	}

	return pass.NewMatcherPass("RoPEFusionIOSlicing", result, callback)
}

// NewRoPEFusionPreprocess absorbs the input-side preparation into a fused
// node: a crop of the combined qkv projection (recorded as the slice window)
// and/or a [0,2,1,3] head transpose (recorded as the input transpose flag).
func NewRoPEFusionPreprocess() *pass.MatcherPass {
	inputToSlice := pattern.AnyInput(pattern.RankEquals(4))
	inputToTrans := pattern.AnyInput(pattern.RankEquals(4))

	inputSlice := genSlice(inputToSlice, "slice_start", "slice_stop", 1, 3)
	x := pattern.WrapType(core.OpTypeTranspose,
		pattern.Or(inputSlice, inputToTrans), pattern.Consts(0, 2, 1, 3))
	result := ropeWithArgs(x, pattern.AnyInput(), pattern.AnyInput())

	callback := func(m *pattern.Matcher) bool {
		ropeNode := m.MatchRoot()
		ropeOp, ok := core.AsRoPE(ropeNode)
		if !ok {
			return false
		}

		// Amend the config before rewiring the argument: SetArgument
		// re-infers the output shape, which must see the new flags.
		config := ropeOp.Config()
		switch {
		case m.Has(inputToSlice):
			sliceStart := m.Symbols().Get("slice_start")
			sliceStop := m.Symbols().Get("slice_stop")
			if !sliceStart.IsInteger() || !sliceStop.IsInteger() {
				return false
			}
			config.SliceStart = int(sliceStart.I())
			config.SliceStop = int(sliceStop.I())
			config.InputTrans0213 = true
			ropeOp.SetConfig(config)
			ropeNode.SetArgument(0, m.At(inputToSlice))
		case m.Has(inputToTrans):
			config.InputTrans0213 = true
			ropeOp.SetConfig(config)
			ropeNode.SetArgument(0, m.At(inputToTrans))
		default:
			return false
		}
		return true
	}

	return pass.NewMatcherPass("RoPEFusionPreprocess", result, callback)
}
