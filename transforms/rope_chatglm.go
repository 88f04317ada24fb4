// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package transforms

import (
	"math"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/AndreeaGavrilescuIntel/openvino/core"
	"github.com/AndreeaGavrilescuIntel/openvino/pass"
	"github.com/AndreeaGavrilescuIntel/openvino/pass/pattern"
)

// chatglmValidReshapeSymbols checks the (A, B, C) leading dimensions of the
// pair-recombining reshapes. The symbol table cannot express "any
// permutation of these dims", so the known per-model layouts are listed:
// ChatGLM4 (-1, head_cnt, 1), ChatGLM3 (1, -1, head_cnt), and the unsqueeze
// form where none of them occur.
func chatglmValidReshapeSymbols(symbols pattern.Symbols) bool {
	a := int(symbols.Get("A").I())
	b := int(symbols.Get("B").I())
	c := int(symbols.Get("C").I())
	headCnt := int(symbols.Get("head_cnt").I())

	return (a == -1 && b == headCnt && c == 1) ||
		(a == 1 && b == -1 && c == headCnt) ||
		(a == 0 && b == 0 && c == 0)
}

// NewRoPEFusionChatGLM recognizes the ChatGLM rotation dialect: the rotated
// range is taken from a combined qkv projection (splitOutputID selects query
// or key), pairs are recombined through gathers on a packed sin/cos cache,
// and the result is flattened back. With support2DRope the layout is
// [batch, head_cnt, seq, head_size] instead of the seq-first layout.
//
// The "batch" and "seq_len" symbols are read from reshape target constants,
// which may hold -1/0 placeholders instead of the real values; they are
// exempt from cross-occurrence validation.
func NewRoPEFusionChatGLM(splitOutputID int, support2DRope bool) *pass.MatcherPass {
	qkvLinear := pattern.AnyInput(pattern.ShapeMatches("[?, ?, ?]"))
	seqLength := pattern.AnyInput(pattern.TypeMatches(dtypes.Int32), pattern.ShapeMatches("[1]"))
	// Packed cache: [max_pos, batch, half_rotary_dims, 2], or batch-first
	// with support2DRope.
	cosSinCache := pattern.AnyInput(pattern.ShapeMatches("[?, ?, ?, ?]"))

	qkvProj := pattern.WrapType(core.OpTypeVariadicSplit, qkvLinear,
		pattern.Consts(-1), pattern.Consts("total_size_q", "total_size_k", "total_size_v")).
		WithOutputs(3)
	curKey := pattern.WrapType(core.OpTypeReshape, qkvProj.Output(splitOutputID),
		pattern.Consts(0, 0, "head_cnt", "head_size")).
		WithAttrs(pattern.Attrs{"special_zero": true})

	var inputKey pattern.Source
	if support2DRope {
		// After the paged-attention rewrite all sequences have length 1 and
		// sit in the batch dim, so the head transpose degenerates to a
		// reshape.
		transposedCurKey := pattern.WrapType(core.OpTypeReshape, qkvProj.Output(splitOutputID),
			pattern.Consts(-1, "head_cnt", 1, "head_size")).
			WithAttrs(pattern.Attrs{"special_zero": false})
		inputKey = pattern.Or(
			pattern.WrapType(core.OpTypeTranspose, curKey, pattern.Consts(0, 2, 1, 3)),
			transposedCurKey)
	} else {
		inputKey = curKey
	}

	sliceHead := genSlice(inputKey, 0, "ndims", 1, 3)
	varSplit1 := pattern.WrapType(core.OpTypeVariadicSplit, inputKey,
		pattern.Consts(3), pattern.Consts("ndims", "end")).
		WithOutputs(2)
	rotatedSrc := pattern.Or(sliceHead, varSplit1.Output(0))

	var pairReshape *pattern.Pattern
	if support2DRope {
		pairReshape = pattern.WrapType(core.OpTypeReshape, rotatedSrc,
			pattern.Consts(0, "head_cnt", 0, "ndims/2", 2)).
			WithAttrs(pattern.Attrs{"special_zero": true})
	} else {
		listConstruct := pattern.WrapType(core.OpTypeConcat,
			seqLength, pattern.Consts(-1), pattern.Consts("head_cnt"),
			pattern.Consts("ndims/2"), pattern.Consts(2)).
			WithAttrs(pattern.Attrs{"axis": 0})
		targetShape0 := pattern.Consts(0, 0, "head_cnt", "ndims/2", 2)
		targetShape1 := pattern.Consts("seq_len", "batch", "head_cnt", "ndims/2", 2)
		pairReshape = pattern.WrapType(core.OpTypeReshape, rotatedSrc,
			pattern.Or(listConstruct, targetShape1, targetShape0))
	}

	xEven := pattern.WrapType(core.OpTypeGather, pairReshape, pattern.Consts(0), pattern.Consts(-1)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})
	xOdd := pattern.WrapType(core.OpTypeGather, pairReshape, pattern.Consts(1), pattern.Consts(-1)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})

	varSplit2 := pattern.WrapType(core.OpTypeVariadicSplit, cosSinCache,
		pattern.Consts(0), pattern.Consts(0, "end")).
		WithOutputs(2)

	var cacheView *pattern.Pattern
	if support2DRope {
		listConstruct := pattern.WrapType(core.OpTypeConcat,
			pattern.Consts(-1), pattern.Consts(1), seqLength,
			pattern.Consts("ndims/2"), pattern.Consts(2)).
			WithAttrs(pattern.Attrs{"axis": 0})
		targetShape2 := pattern.Consts("batch", 1, "seq_len", "ndims/2", 2)

		scatterUpdate := pattern.WrapType(core.OpTypeScatterUpdate,
			pattern.Consts(0, 0), pattern.Consts(1), seqLength, pattern.Consts(0))
		cacheSlice1D := pattern.WrapType(core.OpTypeSlice, cosSinCache,
			pattern.Consts(0), seqLength, pattern.Consts(1), pattern.Consts(1))
		cacheSlice2D := pattern.WrapType(core.OpTypeSlice, cosSinCache,
			pattern.Consts(0, 0), scatterUpdate, pattern.Consts(1, 1), pattern.Consts(0))
		ssStop := pattern.WrapType(core.OpTypeConstant)
		cacheStrided := genStridedSlice(cosSinCache,
			pattern.Consts(0, 0), pattern.Or(ssStop, scatterUpdate), pattern.Consts(1, 1), 1)

		// [batch, 1, seq_length, half_rotary_dims, 2]
		cacheView = pattern.WrapType(core.OpTypeReshape,
			pattern.Or(cacheStrided, cacheSlice1D, cacheSlice2D, varSplit2.Output(0)),
			pattern.Or(listConstruct, targetShape2))
	} else {
		listConstruct := pattern.WrapType(core.OpTypeConcat,
			seqLength, pattern.Consts(-1), pattern.Consts(1),
			pattern.Consts("ndims/2"), pattern.Consts(2)).
			WithAttrs(pattern.Attrs{"axis": 0})
		targetShape0 := pattern.Consts(1, -1, 1, "ndims/2", 2)
		targetShape2 := pattern.Consts("seq_len", "batch", 1, "ndims/2", 2)

		cacheSlice := pattern.WrapType(core.OpTypeSlice, cosSinCache,
			pattern.Consts(0), seqLength, pattern.Consts(1), pattern.Consts(0))
		cacheStrided := genStridedSlice(cosSinCache,
			pattern.Consts(0), seqLength, pattern.Consts(1), 0)

		// [seq_length, 1, batch, half_rotary_dims, 2]
		cacheView = pattern.WrapType(core.OpTypeReshape,
			pattern.Or(cacheStrided, cacheSlice, varSplit2.Output(0)),
			pattern.Or(listConstruct, targetShape0, targetShape2))
	}

	cosTab := pattern.WrapType(core.OpTypeGather, cacheView, pattern.Consts(0), pattern.Consts(-1)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})
	sinTab := pattern.WrapType(core.OpTypeGather, cacheView, pattern.Consts(1), pattern.Consts(-1)).
		WithAttrs(pattern.Attrs{"batch_dims": 0})

	xEvenCos := pattern.WrapType(core.OpTypeMultiply, xEven, cosTab).WithAttrs(numpyBroadcast)
	xOddSin := pattern.WrapType(core.OpTypeMultiply, xOdd, sinTab).WithAttrs(numpyBroadcast)
	negXOddSin := pattern.WrapType(core.OpTypeMultiply, xOddSin, pattern.Consts(-1.0)).
		WithAttrs(numpyBroadcast)
	evenOut := pattern.WrapType(core.OpTypeAdd, xEvenCos, negXOddSin).WithAttrs(numpyBroadcast)
	yEven := pattern.Or(
		pattern.WrapType(core.OpTypeUnsqueeze, evenOut, pattern.Consts(-1)),
		pattern.WrapType(core.OpTypeReshape, evenOut,
			pattern.Consts("A", "B", "C", "ndims/2", 1)).
			WithAttrs(pattern.Attrs{"special_zero": false}))

	xOddCos := pattern.WrapType(core.OpTypeMultiply, xOdd, cosTab).WithAttrs(numpyBroadcast)
	xEvenSin := pattern.WrapType(core.OpTypeMultiply, xEven, sinTab).WithAttrs(numpyBroadcast)
	oddOut := pattern.WrapType(core.OpTypeAdd, xOddCos, xEvenSin).WithAttrs(numpyBroadcast)
	yOdd := pattern.Or(
		pattern.WrapType(core.OpTypeUnsqueeze, oddOut, pattern.Consts(-1)),
		pattern.WrapType(core.OpTypeReshape, oddOut,
			pattern.Consts("A", "B", "C", "ndims/2", 1)).
			WithAttrs(pattern.Attrs{"special_zero": false}))

	stack := pattern.WrapType(core.OpTypeConcat, yEven, yOdd).
		WithAttrs(pattern.Attrs{"axis": -1})

	shapeOf := pattern.WrapType(core.OpTypeShapeOf, stack)
	flattenSlice := genSlice(shapeOf, 0, 3, 1, 0)
	flattenConcat := pattern.WrapType(core.OpTypeConcat, flattenSlice, pattern.Consts(-1)).
		WithAttrs(pattern.Attrs{"axis": 0})

	var flattenReshape *pattern.Pattern
	if support2DRope {
		targetShape := pattern.Consts("batch", "head_cnt", "seq_len", "ndims")
		flattenReshape = pattern.WrapType(core.OpTypeReshape, stack,
			pattern.Or(flattenConcat, targetShape)).
			WithAttrs(pattern.Attrs{"special_zero": true})
	} else {
		targetShape0 := pattern.Consts(0, 0, "head_cnt", "ndims")
		targetShape := pattern.Consts("seq_len", "batch", "head_cnt", "ndims")
		flattenReshape = pattern.WrapType(core.OpTypeReshape, stack,
			pattern.Or(flattenConcat, targetShape, targetShape0)).
			WithAttrs(pattern.Attrs{"special_zero": true})
	}

	sliceTail := genSlice(inputKey, "ndims", math.MaxInt32, 1, 3)
	tailConcat := pattern.WrapType(core.OpTypeConcat,
		flattenReshape, pattern.Or(sliceTail, varSplit1.Output(1))).
		WithAttrs(pattern.Attrs{"axis": -1})
	result := pattern.Or(tailConcat, flattenReshape)

	callback := func(m *pattern.Matcher) bool {
		symbols := m.Symbols()
		ndims := symbols.Get("ndims")
		headCnt := symbols.Get("head_cnt")
		headSize := symbols.Get("head_size")
		totalSizeQ := symbols.Get("total_size_q")
		totalSizeK := symbols.Get("total_size_k")
		if !ndims.IsInteger() || !headCnt.IsInteger() || !headSize.IsInteger() ||
			!totalSizeQ.IsInteger() || !totalSizeK.IsInteger() {
			return false
		}
		if !chatglmValidReshapeSymbols(symbols) {
			return false
		}

		config := core.RoPEConfig{
			RotaryNDims:   int(ndims.I()),
			IsChatGLM:     true,
			Support2DRope: support2DRope,
			UseRopeCache:  true,
			HeadCnt:       int(headCnt.I()),
			HeadSize:      int(headSize.I()),
		}
		if splitOutputID == 0 {
			// query
			config.SliceStart = 0
			config.SliceStop = int(totalSizeQ.I())
		} else {
			// key
			config.SliceStart = int(totalSizeQ.I())
			config.SliceStop = config.SliceStart + int(totalSizeK.I())
		}

		root := m.MatchRoot()
		if root.Type() == core.OpTypeReshape && config.RotaryNDims != config.HeadSize {
			// Without the tail concat the rotation must cover the full head.
			return false
		}

		newNode := core.NewRoPE(m.Graph(), config,
			m.At(qkvLinear), m.At(cosSinCache), m.At(cosSinCache))
		newNode.SetName(root.Name())
		core.CopyRuntimeInfo([]*core.Node{root.Input(0).Node, root}, newNode)
		m.Graph().ReplaceNode(root, newNode)
		return true
	}

	return pass.NewMatcherPass("RoPEFusionChatGLM", result, callback,
		pattern.WithoutValidation("batch", "seq_len"))
}
