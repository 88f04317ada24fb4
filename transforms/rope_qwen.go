// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass"
	"github.com/AndreeaGavrilescuIntel/openvino/pass/pattern"
)

// NewRoPEFusionQwen recognizes the Qwen dialect: query and key are sliced
// out of a combined qkv projection (splitOutputID selects which), and the
// cos/sin tables are cropped to the present kv-length, either by negative
// slicing against the sequence length or by gathering at position ids.
func NewRoPEFusionQwen(splitOutputID int) *pass.MatcherPass {
	rotaryEmbCos := pattern.AnyInput(pattern.ShapeMatches("[1, ?, 1, ?]"))
	rotaryEmbSin := pattern.AnyInput(pattern.ShapeMatches("[1, ?, 1, ?]"))
	qkvProj := pattern.AnyInput(pattern.ShapeMatches("[?, ?, ?]"))
	positionIDs := pattern.AnyInput()

	varsplit := pattern.WrapType(core.OpTypeVariadicSplit, qkvProj,
		pattern.Consts(2), pattern.Consts("head_cnt*head_size", "head_cnt*head_size", "?")).
		WithOutputs(3)
	// B,L,H,S
	viewReshape := pattern.WrapType(core.OpTypeReshape,
		varsplit.Output(splitOutputID), pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[?, ?, head_cnt, head_size]")).
		WithAttrs(pattern.Attrs{"special_zero": true})
	sliceHead := genSlice(viewReshape, 0, "head_size", 1, 3)

	// -seq_len, computed either by negating the whole shape before the
	// gather or by negating the gathered length.
	shapeOfNeg := pattern.WrapType(core.OpTypeShapeOf, pattern.AnyInput())
	negShape := pattern.WrapType(core.OpTypeMultiply, shapeOfNeg, pattern.Consts(-1)).
		WithAttrs(numpyBroadcast)
	gatherNegLen := pattern.WrapType(core.OpTypeGather, negShape, pattern.Consts(1), pattern.Consts(0)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})

	shapeOfPos := pattern.WrapType(core.OpTypeShapeOf, pattern.AnyInput())
	gatherLen := pattern.WrapType(core.OpTypeGather, shapeOfPos, pattern.Consts(1), pattern.Consts(0)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})
	negLen := pattern.WrapType(core.OpTypeMultiply, gatherLen, pattern.Consts(-1)).
		WithAttrs(numpyBroadcast)

	negSeqLen := pattern.Or(gatherNegLen, negLen)

	scatterUpdate := pattern.WrapType(core.OpTypeScatterUpdate,
		pattern.Consts(0, 0), pattern.Consts(1), negSeqLen, pattern.Consts(0))

	cosSlice := pattern.WrapType(core.OpTypeSlice, rotaryEmbCos,
		negSeqLen, pattern.Consts(math.MaxInt32), pattern.Consts(1), pattern.Consts(1))
	cosStrided := genStridedSlice(rotaryEmbCos,
		scatterUpdate, pattern.Consts(0, math.MaxInt32), pattern.Consts(1, 1), 1)
	gatherCosByPos := pattern.WrapType(core.OpTypeGather, rotaryEmbCos, positionIDs, pattern.Consts(1)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})
	cosByPos := pattern.WrapType(core.OpTypeReshape, gatherCosByPos, pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[?, 1, 1, 128]")).
		WithAttrs(pattern.Attrs{"special_zero": false})

	mulCos := pattern.WrapType(core.OpTypeMultiply,
		sliceHead, pattern.Or(cosStrided, cosSlice, cosByPos)).
		WithAttrs(numpyBroadcast)

	// Pair split of the rotated range: either via an explicit shape
	// reconstruction or via a reshape whose target shape is static enough
	// to check directly.
	shapeOfView := pattern.WrapType(core.OpTypeShapeOf, sliceHead)
	gatherSeq := pattern.WrapType(core.OpTypeGather, shapeOfView, pattern.Consts(1), pattern.Consts(0)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})
	gatherBatch := pattern.AnyInput(pattern.TypeMatches(dtypes.Int32), pattern.ShapeMatches("[1]"))
	listConstructSym := pattern.WrapType(core.OpTypeConcat,
		gatherBatch, gatherSeq, pattern.Consts("head_cnt"), pattern.Consts(2),
		pattern.Consts("head_size/2")).
		WithAttrs(pattern.Attrs{"axis": 0})
	gatherBatchSeq := pattern.WrapType(core.OpTypeGather, shapeOfView,
		pattern.Consts(0, 1), pattern.Consts(0)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})
	listConstructLit := pattern.WrapType(core.OpTypeConcat,
		gatherBatchSeq, pattern.Consts(32), pattern.Consts(2), pattern.Consts(64)).
		WithAttrs(pattern.Attrs{"axis": 0})
	flattened := pattern.WrapType(core.OpTypeReshape, sliceHead, pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[?, 2, head_size/2]")).
		WithAttrs(pattern.Attrs{"special_zero": true})
	reshapeRebuilt := pattern.WrapType(core.OpTypeReshape, flattened,
		pattern.Or(listConstructSym, listConstructLit)).
		WithAttrs(pattern.Attrs{"special_zero": false})

	reshapeSpecial := pattern.Or(
		pattern.WrapType(core.OpTypeReshape, sliceHead, pattern.AnyInput()).
			WithPredicates(pattern.ShapeMatches("[..., 0, 2, head_size/2]")).
			WithAttrs(pattern.Attrs{"special_zero": true}),
		pattern.WrapType(core.OpTypeReshape, sliceHead, pattern.AnyInput()).
			WithPredicates(pattern.ShapeMatches("[..., head_cnt, 2, head_size/2]")).
			WithAttrs(pattern.Attrs{"special_zero": true}))

	pairSplit := pattern.WrapType(core.OpTypeSplit,
		pattern.Or(reshapeRebuilt, reshapeSpecial), pattern.Consts(-2)).
		WithAttrs(pattern.Attrs{"num_splits": 2}).
		WithOutputs(2)
	negHalf := pattern.WrapType(core.OpTypeMultiply, pairSplit.Output(1), pattern.Consts(-1.0)).
		WithAttrs(numpyBroadcast)
	squeezeNeg := pattern.WrapType(core.OpTypeSqueeze, negHalf, pattern.Consts(-2))
	squeezePos := pattern.WrapType(core.OpTypeSqueeze, pairSplit.Output(0), pattern.Consts(-2))
	reshapeNeg := pattern.WrapType(core.OpTypeReshape, negHalf, pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[?, 1, 32, 64]")).
		WithAttrs(pattern.Attrs{"special_zero": false})
	reshapePos := pattern.WrapType(core.OpTypeReshape, pairSplit.Output(0), pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[?, 1, 32, 64]")).
		WithAttrs(pattern.Attrs{"special_zero": false})

	rotateHalf := pattern.WrapType(core.OpTypeConcat,
		pattern.Or(squeezeNeg, reshapeNeg), pattern.Or(squeezePos, reshapePos)).
		WithAttrs(pattern.Attrs{"axis": -1})

	sinStrided := genStridedSlice(rotaryEmbSin,
		scatterUpdate, pattern.Consts(0, math.MaxInt32), pattern.Consts(1, 1), 1)
	sinSlice := pattern.WrapType(core.OpTypeSlice, rotaryEmbSin,
		negSeqLen, pattern.Consts(math.MaxInt32), pattern.Consts(1), pattern.Consts(1))
	gatherSinByPos := pattern.WrapType(core.OpTypeGather, rotaryEmbSin, positionIDs, pattern.Consts(1)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})
	sinByPos := pattern.WrapType(core.OpTypeReshape, gatherSinByPos, pattern.AnyInput()).
		WithPredicates(pattern.ShapeMatches("[?, 1, 1, 128]")).
		WithAttrs(pattern.Attrs{"special_zero": false})

	mulSin := pattern.WrapType(core.OpTypeMultiply,
		rotateHalf, pattern.Or(sinStrided, sinSlice, sinByPos)).
		WithAttrs(numpyBroadcast)
	result := pattern.WrapType(core.OpTypeAdd, mulCos, mulSin).WithAttrs(numpyBroadcast)

	callback := func(m *pattern.Matcher) bool {
		symbols := m.Symbols()
		headCnt := symbols.Get("head_cnt")
		headSize := symbols.Get("head_size")
		halfHeadSize := symbols.Get("head_size/2")
		headCntByHeadSize := symbols.Get("head_cnt*head_size")
		if !headCnt.IsInteger() || !headSize.IsInteger() || !halfHeadSize.IsInteger() ||
			!headCntByHeadSize.IsInteger() ||
			halfHeadSize.I()*2 != headSize.I() ||
			headCnt.I()*headSize.I() != headCntByHeadSize.I() {
			return false
		}

		config := core.RoPEConfig{
			IsQwen:      true,
			HeadCnt:     int(headCnt.I()),
			HeadSize:    int(headSize.I()),
			RotaryNDims: int(headSize.I()),
		}
		if splitOutputID == 0 {
			// query
			config.SliceStart = 0
			config.SliceStop = config.HeadCnt * config.HeadSize
		} else {
			// key
			config.SliceStart = config.HeadCnt * config.HeadSize
			config.SliceStop = config.SliceStart + config.HeadCnt*config.HeadSize
		}

		root := m.MatchRoot()
		args := []pattern.Value{m.At(qkvProj), m.At(rotaryEmbCos), m.At(rotaryEmbSin)}
		rtFrom := []*core.Node{
			m.NodeAt(negHalf), m.NodeAt(rotateHalf), m.NodeAt(mulSin), root,
		}
		if m.Has(positionIDs) {
			args = append(args, m.At(positionIDs))
			config.GatherPositionArgID = 3
			rtFrom = append(rtFrom, m.NodeAt(reshapeNeg), m.NodeAt(reshapePos))
		} else {
			rtFrom = append(rtFrom, m.NodeAt(squeezeNeg), m.NodeAt(squeezePos))
		}

		newNode := core.NewRoPE(m.Graph(), config, args...)
		newNode.SetName(root.Name())
		core.CopyRuntimeInfo(rtFrom, newNode)
		m.Graph().ReplaceNode(root, newNode)
		return true
	}

	return pass.NewMatcherPass("RoPEFusionQwen", result, callback)
}
